// Package portfolio is the record keeper for the two-user tracker: the
// investments table and the append-only transaction log. It holds no
// market logic; callers apply prices obtained from the resolver.
package portfolio

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TxKind is the type of a transaction log entry.
type TxKind string

const (
	TxBuy         TxKind = "buy"
	TxSell        TxKind = "sell"
	TxPriceUpdate TxKind = "price_update"
)

// Investment is one holding. Quantity never goes negative; IDs are unique.
type Investment struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name"`
	Quantity     float64   `json:"quantity"`
	AvgPrice     float64   `json:"avg_price"`
	CurrentPrice float64   `json:"current_price"`
	Category     string    `json:"category"`
	PurchaseDate time.Time `json:"purchase_date"`
	// OwnerSplit is the admin's share of the position, 0..1; the viewer
	// owns the remainder.
	OwnerSplit float64 `json:"owner_split"`
}

// MarketValue is quantity times current price.
func (i Investment) MarketValue() decimal.Decimal {
	return decimal.NewFromFloat(i.Quantity).Mul(decimal.NewFromFloat(i.CurrentPrice))
}

// CostBasis is quantity times average purchase price.
func (i Investment) CostBasis() decimal.Decimal {
	return decimal.NewFromFloat(i.Quantity).Mul(decimal.NewFromFloat(i.AvgPrice))
}

// GainLoss is market value minus cost basis.
func (i Investment) GainLoss() decimal.Decimal {
	return i.MarketValue().Sub(i.CostBasis())
}

// Transaction is an immutable log entry: created once, never mutated.
type Transaction struct {
	ID           string    `json:"id"`
	InvestmentID string    `json:"investment_id"`
	Kind         TxKind    `json:"kind"`
	Symbol       string    `json:"symbol"`
	Quantity     float64   `json:"quantity"`
	Price        float64   `json:"price"`
	At           time.Time `json:"at"`
}

// Store is the trivial persistence contract the rest of the system
// consumes. Uniqueness of ID and non-negative quantity are the only
// invariants.
type Store interface {
	Add(ctx context.Context, inv Investment) (Investment, error)
	Update(ctx context.Context, inv Investment) error
	Sell(ctx context.Context, id string, quantity, price float64) error
	Get(ctx context.Context, id string) (Investment, error)
	List(ctx context.Context) ([]Investment, error)
	Symbols(ctx context.Context) ([]string, error)
	ApplyPrice(ctx context.Context, symbol string, price float64) error
	Transactions(ctx context.Context) ([]Transaction, error)
	Close() error
}
