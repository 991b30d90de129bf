package resolver

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// PriceStore is the slice of the portfolio store the refresher needs.
type PriceStore interface {
	Symbols(ctx context.Context) ([]string, error)
	ApplyPrice(ctx context.Context, symbol string, price float64) error
}

// Refresher periodically re-resolves every portfolio symbol and applies
// the fresh prices to the store. At most one batch runs at a time: the
// cron chain skips a tick while the previous one is still in flight, and
// the running flag also covers manually triggered refreshes.
type Refresher struct {
	resolver *Resolver
	store    PriceStore
	interval time.Duration
	log      zerolog.Logger

	cron    *cron.Cron
	running atomic.Bool
}

func NewRefresher(r *Resolver, store PriceStore, interval time.Duration, log zerolog.Logger) *Refresher {
	if interval <= 0 {
		interval = 45 * time.Second
	}
	l := log.With().Str("component", "refresher").Logger()
	return &Refresher{
		resolver: r,
		store:    store,
		interval: interval,
		log:      l,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.PrintfLogger(&l)),
			cron.SkipIfStillRunning(cron.PrintfLogger(&l)),
		)),
	}
}

// Start schedules the periodic refresh. The first cycle fires after one
// interval, not immediately.
func (f *Refresher) Start() error {
	_, err := f.cron.AddFunc("@every "+f.interval.String(), func() {
		f.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}
	f.cron.Start()
	f.log.Info().Dur("interval", f.interval).Msg("periodic refresh started")
	return nil
}

// Stop halts the schedule and waits for an in-flight cycle to finish.
// After Stop returns no timer remains.
func (f *Refresher) Stop() {
	ctx := f.cron.Stop()
	<-ctx.Done()
	f.log.Info().Msg("periodic refresh stopped")
}

// RunOnce executes one refresh cycle, unless a cycle is already running,
// in which case the call is coalesced into the in-flight one and reports
// false.
func (f *Refresher) RunOnce(ctx context.Context) bool {
	if !f.running.CompareAndSwap(false, true) {
		f.log.Debug().Msg("refresh already in flight, skipping tick")
		return false
	}
	defer f.running.Store(false)

	syms, err := f.store.Symbols(ctx)
	if err != nil {
		f.log.Error().Err(err).Msg("listing portfolio symbols failed")
		return true
	}
	if len(syms) == 0 {
		return true
	}

	start := time.Now()
	quotes := f.resolver.ResolveMany(ctx, syms)
	applied := 0
	for sym, q := range quotes {
		if !q.Valid() {
			// A degraded or no-data quote never overwrites a stored price.
			continue
		}
		if err := f.store.ApplyPrice(ctx, sym, q.Price); err != nil {
			f.log.Error().Str("symbol", sym).Err(err).Msg("applying price failed")
			continue
		}
		applied++
	}
	f.log.Info().
		Int("symbols", len(syms)).
		Int("applied", applied).
		Dur("took", time.Since(start)).
		Msg("refresh cycle complete")
	return true
}
