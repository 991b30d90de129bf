// Package finnhub is the primary quote adapter.
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"portfolioquotes/internal/quote"
	"portfolioquotes/internal/symbols"
)

// Adapter translates Finnhub responses into the normalized quote model.
type Adapter struct {
	baseURL    string
	httpClient HTTPClient
	query      url.Values
}

func (a *Adapter) Name() string { return "Finnhub" }

// Configured reports whether an API token is present.
func (a *Adapter) Configured() bool { return a.query.Get("token") != "" }

// quoteResponse is Finnhub's /quote shape: current, change, percent change,
// high, low, open, previous close.
type quoteResponse struct {
	Current   float64 `json:"c"`
	Change    float64 `json:"d"`
	ChangePct float64 `json:"dp"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Open      float64 `json:"o"`
	PrevClose float64 `json:"pc"`
}

type searchResponse struct {
	Count  int `json:"count"`
	Result []struct {
		Symbol      string `json:"symbol"`
		Description string `json:"description"`
		Type        string `json:"type"`
	} `json:"result"`
}

// FetchQuote fetches one symbol. A zero current price from the upstream is
// treated as not-found, never as a valid zero quote.
func (a *Adapter) FetchQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	if !a.Configured() {
		return quote.Quote{}, quote.ErrNotConfigured
	}

	var resp quoteResponse
	if err := a.getJSON(ctx, "/quote", url.Values{"symbol": {symbol}}, &resp); err != nil {
		return quote.Quote{}, err
	}
	if resp.Current <= 0 {
		return quote.Quote{}, fmt.Errorf("finnhub has no price for %s: %w", symbol, quote.ErrNotFound)
	}

	return quote.Quote{
		Symbol:     symbol,
		Price:      resp.Current,
		ChangeAbs:  resp.Change,
		ChangePct:  resp.ChangePct,
		DayLow:     resp.Low,
		DayHigh:    resp.High,
		Open:       resp.Open,
		PrevClose:  resp.PrevClose,
		Currency:   symbols.CurrencyFromSuffix(symbol),
		Exchange:   symbols.ExchangeFromSuffix(symbol),
		Provider:   a.Name(),
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// Search issues two lookups, one for conventional securities and one
// crypto-specific, then merges and dedupes by symbol keeping the first
// occurrence.
func (a *Adapter) Search(ctx context.Context, query string) ([]quote.SearchResult, error) {
	if !a.Configured() {
		return nil, quote.ErrNotConfigured
	}
	if len(query) < 1 {
		return nil, fmt.Errorf("query too short: %w", quote.ErrNotFound)
	}

	var securities, cryptos searchResponse
	if err := a.getJSON(ctx, "/search", url.Values{"q": {query}}, &securities); err != nil {
		return nil, err
	}
	// The crypto lookup is best-effort: a failure there must not discard
	// the conventional results.
	cryptoErr := a.getJSON(ctx, "/search", url.Values{"q": {query}, "type": {"crypto"}}, &cryptos)

	seen := make(map[string]struct{})
	out := make([]quote.SearchResult, 0, len(securities.Result)+len(cryptos.Result))
	for _, batch := range []searchResponse{securities, cryptos} {
		for _, r := range batch.Result {
			if _, dup := seen[r.Symbol]; dup || r.Symbol == "" {
				continue
			}
			seen[r.Symbol] = struct{}{}
			out = append(out, quote.SearchResult{
				Symbol:   r.Symbol,
				Name:     r.Description,
				Currency: symbols.CurrencyFromSuffix(r.Symbol),
				Exchange: symbols.ExchangeFromSuffix(r.Symbol),
				Type:     symbols.Classify(r.Symbol, r.Description),
			})
		}
	}
	if len(out) == 0 && cryptoErr != nil {
		return nil, cryptoErr
	}
	return out, nil
}

func (a *Adapter) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	u, err := url.Parse(a.baseURL + path)
	if err != nil {
		return err
	}
	q := u.Query()
	for k, vs := range a.query {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("finnhub: %v: %w", err, quote.ErrUnreachable)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("finnhub: %w", quote.ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("finnhub: %w", quote.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("finnhub: GET %s -> %d %s: %w", path, resp.StatusCode, string(b), quote.ErrUpstream)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("finnhub decode: %v: %w", err, quote.ErrUpstream)
	}
	return nil
}
