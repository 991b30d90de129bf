package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portfolioquotes/internal/cache"
	"portfolioquotes/internal/config"
	"portfolioquotes/internal/httpx"
	"portfolioquotes/internal/logger"
	"portfolioquotes/internal/netprobe"
	"portfolioquotes/internal/offline"
	"portfolioquotes/internal/portfolio"
	"portfolioquotes/internal/providers/alphavantage"
	"portfolioquotes/internal/providers/finnhub"
	"portfolioquotes/internal/providers/yahoo"
	"portfolioquotes/internal/quote"
	"portfolioquotes/internal/resolver"
	"portfolioquotes/internal/server"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("loading configuration failed")
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	if cfg.Finnhub.APIKey == "" {
		log.Warn().Msg("FINNHUB_API_KEY not set, primary adapter will be skipped")
	}
	if cfg.AlphaVantage.APIKey == "" {
		log.Warn().Msg("ALPHAVANTAGE_API_KEY not set, secondary adapter will be skipped")
	}
	if cfg.Server.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN not set, mutating endpoints are disabled")
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

	// Fixed priority order: Finnhub, then AlphaVantage, then Yahoo.
	adapters := []quote.Adapter{
		finnhub.New(cfg.Finnhub.APIKey, finnhub.WithHTTPClient(httpClient.HTTP)),
		alphavantage.New(alphavantage.Config{
			APIKey:       cfg.AlphaVantage.APIKey,
			MinInterval:  time.Duration(cfg.AlphaVantage.MinIntervalMs) * time.Millisecond,
			RetryBackoff: time.Duration(cfg.AlphaVantage.RetryBackoffMs) * time.Millisecond,
		}, httpClient, log),
		yahoo.New(yahoo.Config{}, httpClient),
	}

	prober := netprobe.New(cfg.Quotes.ProbeEndpoint, time.Duration(cfg.Quotes.ProbeTimeoutSec)*time.Second, log)
	quoteCache := cache.New(time.Duration(cfg.Quotes.CacheTTLSeconds) * time.Second)
	offlineSrc := offline.New()

	res := resolver.New(adapters, quoteCache, prober, offlineSrc, log)
	res.BatchLimit = cfg.Quotes.BatchLimit

	store, err := portfolio.OpenSQLite(cfg.Database.Path, log)
	if err != nil {
		log.Fatal().Err(err).Msg("opening portfolio store failed")
	}
	defer store.Close()

	refresher := resolver.NewRefresher(res, store, time.Duration(cfg.Quotes.RefreshIntervalSec)*time.Second, log)
	if err := refresher.Start(); err != nil {
		log.Fatal().Err(err).Msg("starting refresher failed")
	}

	srv := server.New(server.Config{
		Port:       cfg.Server.Port,
		AdminToken: cfg.Server.AdminToken,
		Log:        log,
		Resolver:   res,
		Store:      store,
		Refresher:  refresher,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	refresher.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
}
