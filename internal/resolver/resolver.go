// Package resolver sequences cache, connectivity check, adapters and the
// offline fallback into one deterministic resolution path.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"portfolioquotes/internal/cache"
	"portfolioquotes/internal/offline"
	"portfolioquotes/internal/quote"
	"portfolioquotes/internal/symbols"
)

// Prober reports network reachability.
type Prober interface {
	IsOnline(ctx context.Context) bool
}

// configurable is implemented by adapters that can be missing a credential.
// Adapters without the method are always considered configured.
type configurable interface {
	Configured() bool
}

// Status is the service-level view exposed by GET /api/status.
type Status struct {
	ConfiguredProviders []string `json:"configured_providers"`
	Online              bool     `json:"online"`
	CachedQuotes        int      `json:"cached_quotes"`
}

// Resolver is the quote orchestrator. Adapter order is fixed at
// construction and never reordered at runtime: for a single symbol the
// adapters are tried strictly in sequence so the first healthy source wins
// deterministically.
type Resolver struct {
	adapters []quote.Adapter
	cache    *cache.Cache
	prober   Prober
	offline  *offline.Source
	log      zerolog.Logger

	// sf coalesces concurrent resolutions of the same symbol into one
	// pipeline run.
	sf singleflight.Group

	// BatchLimit bounds cross-symbol fan-out in ResolveMany.
	BatchLimit int
}

func New(adapters []quote.Adapter, c *cache.Cache, p Prober, off *offline.Source, log zerolog.Logger) *Resolver {
	return &Resolver{
		adapters:   adapters,
		cache:      c,
		prober:     p,
		offline:    off,
		log:        log.With().Str("component", "resolver").Logger(),
		BatchLimit: 4,
	}
}

// Resolve returns a quote for the symbol. The error is non-nil only for
// malformed input; every other failure mode degrades to offline data or to
// an explicit no-data quote with ErrorNote set.
func (r *Resolver) Resolve(ctx context.Context, rawSymbol string) (quote.Quote, error) {
	sym, err := symbols.Normalize(rawSymbol)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("invalid symbol: %w", err)
	}

	if q, ok := r.cache.Get(sym); ok {
		return q, nil
	}

	v, _, _ := r.sf.Do(sym, func() (any, error) {
		return r.resolveLive(ctx, sym), nil
	})
	return v.(quote.Quote), nil
}

func (r *Resolver) resolveLive(ctx context.Context, sym string) quote.Quote {
	// One connectivity check per resolution, before the adapter sequence.
	if !r.prober.IsOnline(ctx) {
		r.log.Debug().Str("symbol", sym).Msg("offline, using simulated data")
		return r.offlineQuote(sym, "")
	}

	var failures []string
	for _, a := range r.adapters {
		q, err := a.FetchQuote(ctx, sym)
		if err == nil {
			r.normalize(&q, sym)
			r.cache.Put(sym, q)
			return q
		}
		if errors.Is(err, quote.ErrNotConfigured) {
			// Skipped, not an error worth surfacing.
			continue
		}
		failures = append(failures, fmt.Sprintf("%s: %v", a.Name(), err))
		r.log.Warn().Str("symbol", sym).Str("adapter", a.Name()).Err(err).Msg("adapter failed")
	}

	note := "all providers exhausted"
	if len(failures) > 0 {
		note = "all providers exhausted: " + strings.Join(failures, "; ")
	}
	return r.offlineQuote(sym, note)
}

// offlineQuote falls back to the simulated table, or to an explicit
// no-data quote when even the table lacks the symbol. Offline results are
// never cached: the next resolution should try the live path again.
func (r *Resolver) offlineQuote(sym, note string) quote.Quote {
	if q, ok := r.offline.Quote(sym); ok {
		q.ErrorNote = note
		return q
	}
	if note == "" {
		note = "no data available"
	}
	return quote.Quote{
		Symbol:    sym,
		Currency:  symbols.CurrencyFromSuffix(sym),
		Provider:  "none",
		ErrorNote: note + "; symbol unknown to offline dataset",
	}
}

// normalize fills gaps a provider response may leave.
func (r *Resolver) normalize(q *quote.Quote, sym string) {
	q.Symbol = sym
	if q.Currency == "" {
		q.Currency = symbols.CurrencyFromSuffix(sym)
	}
	if q.Exchange == "" {
		q.Exchange = symbols.ExchangeFromSuffix(sym)
	}
}

// ResolveMany fans out one resolution pipeline per symbol, bounded by
// BatchLimit. Each symbol's pipeline stays sequential; malformed symbols
// are skipped. The result is keyed by normalized symbol.
func (r *Resolver) ResolveMany(ctx context.Context, rawSymbols []string) map[string]quote.Quote {
	out := make(map[string]quote.Quote, len(rawSymbols))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	limit := r.BatchLimit
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	seen := make(map[string]struct{}, len(rawSymbols))
	for _, raw := range rawSymbols {
		sym, err := symbols.Normalize(raw)
		if err != nil {
			r.log.Warn().Str("symbol", raw).Err(err).Msg("skipping malformed symbol in batch")
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}

		g.Go(func() error {
			q, err := r.Resolve(ctx, sym)
			if err != nil {
				return nil
			}
			mu.Lock()
			out[sym] = q
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Search follows the adapter-priority-with-fallback pattern but without
// caching. Offline-table matches are unioned in when offline or when the
// live results come back empty.
func (r *Resolver) Search(ctx context.Context, query string) ([]quote.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	if r.prober.IsOnline(ctx) {
		for _, a := range r.adapters {
			res, err := a.Search(ctx, query)
			if err != nil {
				if !errors.Is(err, quote.ErrNotConfigured) {
					r.log.Warn().Str("adapter", a.Name()).Err(err).Msg("search failed")
				}
				continue
			}
			if len(res) > 0 {
				return res, nil
			}
		}
	}
	return r.offline.Search(query), nil
}

// Status reports which adapters hold credentials and whether the network
// is reachable right now.
func (r *Resolver) Status(ctx context.Context) Status {
	names := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		if c, ok := a.(configurable); ok && !c.Configured() {
			continue
		}
		names = append(names, a.Name())
	}
	sort.Strings(names)
	return Status{
		ConfiguredProviders: names,
		Online:              r.prober.IsOnline(ctx),
		CachedQuotes:        r.cache.Len(),
	}
}
