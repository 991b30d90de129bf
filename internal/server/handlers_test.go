package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolioquotes/internal/cache"
	"portfolioquotes/internal/offline"
	"portfolioquotes/internal/portfolio"
	"portfolioquotes/internal/quote"
	"portfolioquotes/internal/resolver"
	"portfolioquotes/internal/server"
)

const testAdminToken = "secret"

type staticAdapter struct{ price float64 }

func (a *staticAdapter) Name() string { return "Static" }

func (a *staticAdapter) FetchQuote(_ context.Context, symbol string) (quote.Quote, error) {
	return quote.Quote{Symbol: symbol, Price: a.price, Provider: "Static", Currency: "USD"}, nil
}

func (a *staticAdapter) Search(context.Context, string) ([]quote.SearchResult, error) {
	return []quote.SearchResult{{Symbol: "AAPL", Name: "Apple Inc", Type: quote.Stock}}, nil
}

type onlineProber struct{}

func (onlineProber) IsOnline(context.Context) bool { return true }

type fixture struct {
	srv   *server.Server
	store *portfolio.SQLiteStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := portfolio.OpenSQLite(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	res := resolver.New(
		[]quote.Adapter{&staticAdapter{price: 123.45}},
		cache.New(time.Minute), onlineProber{}, offline.New(), zerolog.Nop(),
	)
	srv := server.New(server.Config{
		Port:       "0",
		AdminToken: testAdminToken,
		Log:        zerolog.Nop(),
		Resolver:   res,
		Store:      store,
		Refresher:  resolver.NewRefresher(res, store, time.Minute, zerolog.Nop()),
	})
	return &fixture{srv: srv, store: store}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestGetQuote(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/quote/aapl", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	q := decode[quote.Quote](t, rec)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 123.45, q.Price)
	assert.Equal(t, "Static", q.Provider)
}

func TestGetQuoteMalformedSymbol(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/quote/THISSYMBOLNAMEISFARTOOLONG", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/search?q=apple", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[[]quote.SearchResult](t, rec)
	require.Len(t, res, 1)
	assert.Equal(t, "AAPL", res[0].Symbol)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	st := decode[resolver.Status](t, rec)
	assert.Equal(t, []string{"Static"}, st.ConfiguredProviders)
	assert.True(t, st.Online)
}

func TestPortfolioTotals(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Add(context.Background(), portfolio.Investment{
		Symbol: "AAPL", Quantity: 2, AvgPrice: 100, CurrentPrice: 110, OwnerSplit: 0.5,
	})
	require.NoError(t, err)
	_, err = f.store.Add(context.Background(), portfolio.Investment{
		Symbol: "MSFT", Quantity: 1, AvgPrice: 300, CurrentPrice: 290, OwnerSplit: 0.5,
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/portfolio", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Positions []struct {
			Symbol      string `json:"symbol"`
			MarketValue string `json:"market_value"`
			GainLoss    string `json:"gain_loss"`
		} `json:"positions"`
		TotalMarketValue string `json:"total_market_value"`
		TotalCostBasis   string `json:"total_cost_basis"`
		TotalGainLoss    string `json:"total_gain_loss"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, resp.Positions, 2)
	assert.Equal(t, "220.00", resp.Positions[0].MarketValue)
	assert.Equal(t, "20.00", resp.Positions[0].GainLoss)
	assert.Equal(t, "510.00", resp.TotalMarketValue)
	assert.Equal(t, "500.00", resp.TotalCostBasis)
	assert.Equal(t, "10.00", resp.TotalGainLoss)
}

func TestTransactionsEmptyIsArray(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/transactions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestAddInvestmentRequiresToken(t *testing.T) {
	f := newFixture(t)
	body := portfolio.Investment{Symbol: "AAPL", Quantity: 1, AvgPrice: 100}

	rec := f.do(t, http.MethodPost, "/api/investments", "", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/investments", "wrong", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/investments", testAdminToken, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decode[portfolio.Investment](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "AAPL", created.Symbol)

	list, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAddInvestmentRejectsUnknownFields(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/investments", testAdminToken,
		map[string]any{"symbol": "AAPL", "quantity": 1, "avg_price": 100, "bogus": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateInvestmentNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/api/investments/no-such-id", testAdminToken,
		portfolio.Investment{Symbol: "AAPL", Quantity: 1, AvgPrice: 100})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSell(t *testing.T) {
	f := newFixture(t)
	inv, err := f.store.Add(context.Background(), portfolio.Investment{
		Symbol: "AAPL", Quantity: 10, AvgPrice: 100, OwnerSplit: 0.5,
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/investments/"+inv.ID+"/sell", testAdminToken,
		map[string]float64{"quantity": 4, "price": 120})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := f.store.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 6.0, got.Quantity)

	rec = f.do(t, http.MethodPost, "/api/investments/"+inv.ID+"/sell", testAdminToken,
		map[string]float64{"quantity": 100, "price": 120})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "overselling is rejected")
}

func TestRefreshAccepted(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/refresh", testAdminToken, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	store, err := portfolio.OpenSQLite(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	res := resolver.New(nil, cache.New(time.Minute), onlineProber{}, offline.New(), zerolog.Nop())
	srv := server.New(server.Config{
		Port: "0", Log: zerolog.Nop(), Resolver: res, Store: store,
		Refresher: resolver.NewRefresher(res, store, time.Minute, zerolog.Nop()),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/refresh", nil)
	req.Header.Set("X-Admin-Token", "anything")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code, "no configured token means no admin surface")
}
