package resolver_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolioquotes/internal/quote"
	"portfolioquotes/internal/resolver"
)

type fakeStore struct {
	mu      sync.Mutex
	symbols []string
	applied map[string]float64
}

func (s *fakeStore) Symbols(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.symbols...), nil
}

func (s *fakeStore) ApplyPrice(_ context.Context, symbol string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applied == nil {
		s.applied = make(map[string]float64)
	}
	s.applied[symbol] = price
	return nil
}

func (s *fakeStore) appliedCopy() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.applied))
	for k, v := range s.applied {
		out[k] = v
	}
	return out
}

// priceTableAdapter serves a fixed symbol->price table and reports
// ErrNotFound for anything else.
type priceTableAdapter struct {
	prices map[string]float64
}

func (a *priceTableAdapter) Name() string { return "Table" }

func (a *priceTableAdapter) FetchQuote(_ context.Context, symbol string) (quote.Quote, error) {
	p, ok := a.prices[symbol]
	if !ok {
		return quote.Quote{}, quote.ErrNotFound
	}
	return quote.Quote{Symbol: symbol, Price: p, Provider: "Table", Currency: "USD"}, nil
}

func (a *priceTableAdapter) Search(context.Context, string) ([]quote.SearchResult, error) {
	return nil, nil
}

// blockingAdapter parks every FetchQuote until released, so tests can hold
// a refresh cycle in flight.
type blockingAdapter struct {
	entered chan struct{}
	release chan struct{}
}

func (a *blockingAdapter) Name() string { return "Blocking" }

func (a *blockingAdapter) FetchQuote(_ context.Context, symbol string) (quote.Quote, error) {
	a.entered <- struct{}{}
	<-a.release
	return quote.Quote{Symbol: symbol, Price: 1, Provider: "Blocking"}, nil
}

func (a *blockingAdapter) Search(context.Context, string) ([]quote.SearchResult, error) {
	return nil, nil
}

func TestRunOnceAppliesValidPrices(t *testing.T) {
	adapter := &priceTableAdapter{prices: map[string]float64{"AAPL": 190.10, "MSFT": 410.55}}
	r := newResolver([]quote.Adapter{adapter}, true, nil)

	// ZZZZ fails live and is absent from the simulated table, so its
	// degraded quote must never reach the store.
	store := &fakeStore{symbols: []string{"AAPL", "MSFT", "ZZZZ"}}
	f := resolver.NewRefresher(r, store, time.Minute, zerolog.Nop())

	require.True(t, f.RunOnce(context.Background()))

	applied := store.appliedCopy()
	assert.Equal(t, map[string]float64{"AAPL": 190.10, "MSFT": 410.55}, applied)
}

func TestRunOnceEmptyPortfolio(t *testing.T) {
	r := newResolver(nil, true, nil)
	f := resolver.NewRefresher(r, &fakeStore{}, time.Minute, zerolog.Nop())
	assert.True(t, f.RunOnce(context.Background()))
}

func TestRunOnceCoalescesOverlap(t *testing.T) {
	adapter := &blockingAdapter{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	r := newResolver([]quote.Adapter{adapter}, true, nil)
	store := &fakeStore{symbols: []string{"AAPL"}}
	f := resolver.NewRefresher(r, store, time.Minute, zerolog.Nop())

	firstDone := make(chan bool, 1)
	go func() { firstDone <- f.RunOnce(context.Background()) }()

	select {
	case <-adapter.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first cycle never reached the adapter")
	}

	// A tick that lands while the first cycle is in flight is dropped.
	assert.False(t, f.RunOnce(context.Background()))

	close(adapter.release)
	select {
	case ok := <-firstDone:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("first cycle never finished")
	}

	// With the flag cleared a new cycle runs again.
	assert.True(t, f.RunOnce(context.Background()))
}
