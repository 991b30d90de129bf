package alphavantage_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolioquotes/internal/httpx"
	"portfolioquotes/internal/providers/alphavantage"
	"portfolioquotes/internal/quote"
)

func newAdapter(t *testing.T, handler http.Handler, cfg alphavantage.Config) *alphavantage.Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	if cfg.APIKey == "" {
		cfg.APIKey = "test-key"
	}
	cfg.BaseURL = srv.URL
	if cfg.MinInterval == 0 {
		cfg.MinInterval = time.Millisecond
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 5 * time.Millisecond
	}
	return alphavantage.New(cfg, httpx.New(5*time.Second), zerolog.Nop())
}

func globalQuoteJSON(symbol string, price float64) string {
	return fmt.Sprintf(`{"Global Quote": {
		"01. symbol": %q,
		"02. open": "183.0500",
		"03. high": "186.2100",
		"04. low": "182.4400",
		"05. price": "%.4f",
		"08. previous close": "182.6800",
		"09. change": "2.9100",
		"10. change percent": "1.5930%%"
	}}`, symbol, price)
}

func TestFetchQuote(t *testing.T) {
	a := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		fmt.Fprint(w, globalQuoteJSON("AAPL", 185.59))
	}), alphavantage.Config{})

	q, err := a.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", q.Symbol)
	assert.InDelta(t, 185.59, q.Price, 1e-9)
	assert.InDelta(t, 2.91, q.ChangeAbs, 1e-9)
	assert.InDelta(t, 1.593, q.ChangePct, 1e-9)
	assert.InDelta(t, 182.68, q.PrevClose, 1e-9)
	assert.Equal(t, "AlphaVantage", q.Provider)
	assert.Equal(t, "USD", q.Currency)
}

func TestFetchQuoteTriesVariantSpellings(t *testing.T) {
	var mu sync.Mutex
	var asked []string

	a := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sym := r.URL.Query().Get("symbol")
		mu.Lock()
		asked = append(asked, sym)
		mu.Unlock()
		if sym == "VOD" {
			fmt.Fprint(w, globalQuoteJSON("VOD", 0.739))
			return
		}
		// Unknown spelling: Alpha Vantage answers an empty Global Quote.
		fmt.Fprint(w, `{"Global Quote": {}}`)
	}), alphavantage.Config{})

	q, err := a.FetchQuote(context.Background(), "VOD.L")
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, []string{"VOD.L", "VOD"}, asked)
	mu.Unlock()

	// The answer is reported under the requested spelling.
	assert.Equal(t, "VOD.L", q.Symbol)
	assert.Equal(t, "GBP", q.Currency)
	assert.Equal(t, "London Stock Exchange", q.Exchange)
}

func TestFetchQuoteRateLimitedRetriesOnce(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	a := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusTooManyRequests)
	}), alphavantage.Config{})

	_, err := a.FetchQuote(context.Background(), "AAPL")
	require.ErrorIs(t, err, quote.ErrRateLimited)

	// One retry after the backoff, then the variant loop gives up.
	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

func TestFetchQuoteRateLimitedThenSuccess(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	a := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, globalQuoteJSON("AAPL", 185.59))
	}), alphavantage.Config{})

	q, err := a.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 185.59, q.Price, 1e-9)
}

func TestFetchQuoteNotConfigured(t *testing.T) {
	a := alphavantage.New(alphavantage.Config{}, httpx.New(time.Second), zerolog.Nop())
	assert.False(t, a.Configured())

	_, err := a.FetchQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, quote.ErrNotConfigured)

	_, err = a.Search(context.Background(), "apple")
	assert.ErrorIs(t, err, quote.ErrNotConfigured)
}

func TestFetchQuoteUpstreamError(t *testing.T) {
	a := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}), alphavantage.Config{})

	_, err := a.FetchQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, quote.ErrUpstream)
}

func TestSearch(t *testing.T) {
	a := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SYMBOL_SEARCH", r.URL.Query().Get("function"))
		assert.Equal(t, "vanguard", r.URL.Query().Get("keywords"))
		fmt.Fprint(w, `{"bestMatches": [
			{"1. symbol": "VWCE.DEX", "2. name": "Vanguard FTSE All-World UCITS ETF", "3. type": "ETF", "8. currency": "EUR"},
			{"1. symbol": "VOD.LON", "2. name": "Vodafone Group Plc", "3. type": "Equity"}
		]}`)
	}), alphavantage.Config{})

	res, err := a.Search(context.Background(), "vanguard")
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Equal(t, "VWCE.DEX", res[0].Symbol)
	assert.Equal(t, "EUR", res[0].Currency)
	assert.Equal(t, quote.ETF, res[0].Type)
	assert.Equal(t, quote.Stock, res[1].Type)
}

func TestSearchQueryTooShort(t *testing.T) {
	a := newAdapter(t, http.NotFoundHandler(), alphavantage.Config{})
	_, err := a.Search(context.Background(), "v")
	assert.Error(t, err)
}

func TestMinIntervalSpacing(t *testing.T) {
	a := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, globalQuoteJSON("AAPL", 185.59))
	}), alphavantage.Config{MinInterval: 60 * time.Millisecond})

	start := time.Now()
	_, err := a.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	_, err = a.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}
