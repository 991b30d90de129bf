// Package yahoo is the tertiary quote adapter. It needs no credential, so
// it is always configured and acts as the last live source before the
// offline fallback.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"portfolioquotes/internal/httpx"
	"portfolioquotes/internal/quote"
	"portfolioquotes/internal/symbols"
)

const (
	defaultChartURL  = "https://query1.finance.yahoo.com/v8/finance/chart"
	defaultSearchURL = "https://query1.finance.yahoo.com/v1/finance/search"
)

type Config struct {
	// ChartURL and SearchURL override the endpoints (tests point these at
	// httptest).
	ChartURL  string
	SearchURL string
}

type Adapter struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Adapter {
	if cfg.ChartURL == "" {
		cfg.ChartURL = defaultChartURL
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = defaultSearchURL
	}
	return &Adapter{cfg: cfg, client: hc}
}

func (a *Adapter) Name() string { return "Yahoo" }

// chartResponse is the meta block of Yahoo's v8 chart endpoint.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency             string  `json:"currency"`
				Symbol               string  `json:"symbol"`
				ExchangeName         string  `json:"fullExchangeName"`
				RegularMarketPrice   float64 `json:"regularMarketPrice"`
				RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
				RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
				PreviousClose        float64 `json:"chartPreviousClose"`
				LongName             string  `json:"longName"`
			} `json:"meta"`
		} `json:"result"`
		Error any `json:"error"`
	} `json:"chart"`
}

type searchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		Shortname string `json:"shortname"`
		Exchange  string `json:"exchange"`
		QuoteType string `json:"quoteType"`
		Currency  string `json:"currency"`
	} `json:"quotes"`
}

func (a *Adapter) FetchQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	var resp chartResponse
	if err := a.getJSON(ctx, a.cfg.ChartURL+"/"+url.PathEscape(symbol), nil, &resp); err != nil {
		return quote.Quote{}, err
	}
	if len(resp.Chart.Result) == 0 {
		return quote.Quote{}, fmt.Errorf("yahoo has no result for %s: %w", symbol, quote.ErrNotFound)
	}
	meta := resp.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return quote.Quote{}, fmt.Errorf("yahoo has no price for %s: %w", symbol, quote.ErrNotFound)
	}

	changeAbs := 0.0
	changePct := 0.0
	if meta.PreviousClose > 0 {
		changeAbs = meta.RegularMarketPrice - meta.PreviousClose
		changePct = changeAbs / meta.PreviousClose * 100
	}
	currency := meta.Currency
	if currency == "" {
		currency = symbols.CurrencyFromSuffix(symbol)
	}
	exchange := meta.ExchangeName
	if exchange == "" {
		exchange = symbols.ExchangeFromSuffix(symbol)
	}
	return quote.Quote{
		Symbol:      symbol,
		DisplayName: meta.LongName,
		Price:       meta.RegularMarketPrice,
		ChangeAbs:   changeAbs,
		ChangePct:   changePct,
		DayLow:      meta.RegularMarketDayLow,
		DayHigh:     meta.RegularMarketDayHigh,
		PrevClose:   meta.PreviousClose,
		Currency:    currency,
		Exchange:    exchange,
		Provider:    a.Name(),
		ReceivedAt:  time.Now().UTC(),
	}, nil
}

func (a *Adapter) Search(ctx context.Context, query string) ([]quote.SearchResult, error) {
	if len(query) < 1 {
		return nil, fmt.Errorf("query too short: %w", quote.ErrNotFound)
	}
	var resp searchResponse
	params := url.Values{"q": {query}, "quotesCount": {"10"}, "newsCount": {"0"}}
	if err := a.getJSON(ctx, a.cfg.SearchURL, params, &resp); err != nil {
		return nil, err
	}
	out := make([]quote.SearchResult, 0, len(resp.Quotes))
	for _, r := range resp.Quotes {
		if r.Symbol == "" {
			continue
		}
		currency := r.Currency
		if currency == "" {
			currency = symbols.CurrencyFromSuffix(r.Symbol)
		}
		exchange := r.Exchange
		if exchange == "" {
			exchange = symbols.ExchangeFromSuffix(r.Symbol)
		}
		out = append(out, quote.SearchResult{
			Symbol:   r.Symbol,
			Name:     r.Shortname,
			Currency: currency,
			Exchange: exchange,
			Type:     symbols.Classify(r.Symbol, r.Shortname+" "+r.QuoteType),
		})
	}
	return out, nil
}

func (a *Adapter) getJSON(ctx context.Context, base string, params url.Values, out any) error {
	u, err := url.Parse(base)
	if err != nil {
		return err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	err = a.client.GetJSON(ctx, u.String(), out)
	if err == nil {
		return nil
	}
	var se *httpx.StatusError
	switch {
	case errors.As(err, &se) && se.Code == 429:
		return fmt.Errorf("yahoo: %w", quote.ErrRateLimited)
	case errors.As(err, &se) && se.Code == 404:
		return fmt.Errorf("yahoo: %w", quote.ErrNotFound)
	case errors.As(err, &se):
		return fmt.Errorf("yahoo: status %d: %w", se.Code, quote.ErrUpstream)
	default:
		return fmt.Errorf("yahoo: %v: %w", err, quote.ErrUnreachable)
	}
}
