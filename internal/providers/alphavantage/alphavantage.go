// Package alphavantage is the secondary quote adapter. Alpha Vantage's free
// tier is aggressively rate limited, so this adapter spaces its outbound
// calls and retries once after a backoff when the upstream answers 429.
package alphavantage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"portfolioquotes/internal/httpx"
	"portfolioquotes/internal/quote"
	"portfolioquotes/internal/symbols"
)

const defaultBaseURL = "https://www.alphavantage.co/query"

// Config controls the Alpha Vantage adapter behavior.
type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint (tests point this at httptest).
	BaseURL string
	// MinInterval is the minimum spacing between outbound requests.
	MinInterval time.Duration
	// RetryBackoff is slept once after an HTTP 429 before the single retry.
	RetryBackoff time.Duration
}

type Adapter struct {
	cfg    Config
	client *httpx.Client
	log    zerolog.Logger

	// gate serializes spacing bookkeeping per adapter instance.
	gateMu sync.Mutex
	last   time.Time
}

func New(cfg Config, hc *httpx.Client, log zerolog.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 100 * time.Millisecond
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	return &Adapter{cfg: cfg, client: hc, log: log.With().Str("component", "alphavantage").Logger()}
}

func (a *Adapter) Name() string { return "AlphaVantage" }

// Configured reports whether an API key is present.
func (a *Adapter) Configured() bool { return a.cfg.APIKey != "" }

// globalQuote is Alpha Vantage's GLOBAL_QUOTE payload. Field names carry
// their numeric prefixes on the wire.
type globalQuote struct {
	Quote struct {
		Symbol    string `json:"01. symbol"`
		Open      string `json:"02. open"`
		High      string `json:"03. high"`
		Low       string `json:"04. low"`
		Price     string `json:"05. price"`
		PrevClose string `json:"08. previous close"`
		Change    string `json:"09. change"`
		ChangePct string `json:"10. change percent"`
	} `json:"Global Quote"`
}

type symbolSearch struct {
	BestMatches []struct {
		Symbol   string `json:"1. symbol"`
		Name     string `json:"2. name"`
		Type     string `json:"3. type"`
		Currency string `json:"8. currency"`
	} `json:"bestMatches"`
}

// FetchQuote resolves symbol, retrying alternate exchange-suffix spellings
// until one yields a nonzero price.
func (a *Adapter) FetchQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	if a.cfg.APIKey == "" {
		return quote.Quote{}, quote.ErrNotConfigured
	}

	var lastErr error
	for _, variant := range symbols.Variants(symbol) {
		q, err := a.fetchVariant(ctx, variant)
		if err == nil {
			// Report under the requested spelling regardless of which
			// variant answered.
			q.Symbol = symbol
			q.Currency = symbols.CurrencyFromSuffix(symbol)
			q.Exchange = symbols.ExchangeFromSuffix(symbol)
			return q, nil
		}
		lastErr = err
		if errors.Is(err, quote.ErrRateLimited) || errors.Is(err, quote.ErrUnreachable) {
			// No point hammering more variants through a dead or throttled
			// upstream.
			break
		}
		a.log.Debug().Str("variant", variant).Err(err).Msg("variant failed")
	}
	return quote.Quote{}, lastErr
}

func (a *Adapter) fetchVariant(ctx context.Context, symbol string) (quote.Quote, error) {
	var resp globalQuote
	err := a.getJSON(ctx, url.Values{"function": {"GLOBAL_QUOTE"}, "symbol": {symbol}}, &resp)
	if err != nil {
		return quote.Quote{}, err
	}

	price := parseFloat(resp.Quote.Price)
	if price <= 0 {
		return quote.Quote{}, fmt.Errorf("alphavantage has no price for %s: %w", symbol, quote.ErrNotFound)
	}
	return quote.Quote{
		Symbol:     resp.Quote.Symbol,
		Price:      price,
		ChangeAbs:  parseFloat(resp.Quote.Change),
		ChangePct:  parseFloat(strings.TrimSuffix(resp.Quote.ChangePct, "%")),
		DayLow:     parseFloat(resp.Quote.Low),
		DayHigh:    parseFloat(resp.Quote.High),
		Open:       parseFloat(resp.Quote.Open),
		PrevClose:  parseFloat(resp.Quote.PrevClose),
		Provider:   a.Name(),
		ReceivedAt: time.Now().UTC(),
	}, nil
}

func (a *Adapter) Search(ctx context.Context, query string) ([]quote.SearchResult, error) {
	if a.cfg.APIKey == "" {
		return nil, quote.ErrNotConfigured
	}
	if len(query) < 2 {
		return nil, fmt.Errorf("query too short: %w", quote.ErrNotFound)
	}

	var resp symbolSearch
	if err := a.getJSON(ctx, url.Values{"function": {"SYMBOL_SEARCH"}, "keywords": {query}}, &resp); err != nil {
		return nil, err
	}
	out := make([]quote.SearchResult, 0, len(resp.BestMatches))
	for _, m := range resp.BestMatches {
		if m.Symbol == "" {
			continue
		}
		currency := m.Currency
		if currency == "" {
			currency = symbols.CurrencyFromSuffix(m.Symbol)
		}
		out = append(out, quote.SearchResult{
			Symbol:   m.Symbol,
			Name:     m.Name,
			Currency: currency,
			Exchange: symbols.ExchangeFromSuffix(m.Symbol),
			Type:     symbols.Classify(m.Symbol, m.Name+" "+m.Type),
		})
	}
	return out, nil
}

// getJSON applies the inter-request spacing gate, performs the call, and
// retries exactly once after RetryBackoff when the upstream answers 429.
func (a *Adapter) getJSON(ctx context.Context, params url.Values, out any) error {
	if err := a.waitTurn(ctx); err != nil {
		return fmt.Errorf("alphavantage: %v: %w", err, quote.ErrUnreachable)
	}
	err := a.doGet(ctx, params, out)
	if errors.Is(err, quote.ErrRateLimited) {
		a.log.Warn().Dur("backoff", a.cfg.RetryBackoff).Msg("rate limited, retrying once")
		select {
		case <-ctx.Done():
			return fmt.Errorf("alphavantage: %v: %w", ctx.Err(), quote.ErrUnreachable)
		case <-time.After(a.cfg.RetryBackoff):
		}
		err = a.doGet(ctx, params, out)
	}
	return err
}

func (a *Adapter) doGet(ctx context.Context, params url.Values, out any) error {
	u, err := url.Parse(a.cfg.BaseURL)
	if err != nil {
		return err
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	q.Set("apikey", a.cfg.APIKey)
	u.RawQuery = q.Encode()

	err = a.client.GetJSON(ctx, u.String(), out)
	if err == nil {
		return nil
	}
	var se *httpx.StatusError
	switch {
	case errors.As(err, &se) && se.Code == 429:
		return fmt.Errorf("alphavantage: %w", quote.ErrRateLimited)
	case errors.As(err, &se) && se.Code == 404:
		return fmt.Errorf("alphavantage: %w", quote.ErrNotFound)
	case errors.As(err, &se):
		return fmt.Errorf("alphavantage: status %d: %w", se.Code, quote.ErrUpstream)
	case ctx.Err() != nil:
		return fmt.Errorf("alphavantage: %v: %w", err, quote.ErrUnreachable)
	default:
		return fmt.Errorf("alphavantage: %v: %w", err, quote.ErrUnreachable)
	}
}

// waitTurn enforces MinInterval since the previous request. Concurrent
// callers queue on the gate mutex, which also serializes the bookkeeping.
func (a *Adapter) waitTurn(ctx context.Context) error {
	a.gateMu.Lock()
	defer a.gateMu.Unlock()

	wait := time.Until(a.last.Add(a.cfg.MinInterval))
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	a.last = time.Now()
	return nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
