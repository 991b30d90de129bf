package quote

import (
	"context"
	"time"
)

// AssetType is the coarse category a symbol belongs to.
type AssetType string

const (
	Stock  AssetType = "stock"
	ETF    AssetType = "etf"
	Crypto AssetType = "crypto"
	Bond   AssetType = "bond"
)

// Quote is the normalized shape returned by all adapters.
// A quote with Price <= 0 carries no usable price: callers must check
// Valid() (or ErrorNote) before charting or storing the value.
type Quote struct {
	Symbol      string    `json:"symbol"`
	DisplayName string    `json:"display_name,omitempty"`
	Price       float64   `json:"price"`
	ChangeAbs   float64   `json:"change_abs"`
	ChangePct   float64   `json:"change_pct"`
	DayLow      float64   `json:"day_low,omitempty"`
	DayHigh     float64   `json:"day_high,omitempty"`
	Open        float64   `json:"open,omitempty"`
	PrevClose   float64   `json:"prev_close,omitempty"`
	Currency    string    `json:"currency"`
	Exchange    string    `json:"exchange,omitempty"`
	MarketCap   float64   `json:"market_cap,omitempty"`
	Provider    string    `json:"provider"`
	ErrorNote   string    `json:"error_note,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Valid reports whether the quote carries a real price.
func (q Quote) Valid() bool { return q.Price > 0 }

// SearchResult is one normalized hit from a symbol search.
type SearchResult struct {
	Symbol   string    `json:"symbol"`
	Name     string    `json:"name"`
	Currency string    `json:"currency"`
	Exchange string    `json:"exchange"`
	Type     AssetType `json:"type"`
}

// Adapter wraps one external market-data source behind the common contract.
// FetchQuote must never return a zero-priced quote with a nil error: an
// upstream price of 0 or a non-2xx status is a failure.
type Adapter interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (Quote, error)
	Search(ctx context.Context, query string) ([]SearchResult, error)
}
