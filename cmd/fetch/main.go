// Command fetch resolves quotes for the symbols given on the command line
// and prints them as JSON lines. Useful for smoke-testing credentials and
// the fallback chain without starting the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"portfolioquotes/internal/cache"
	"portfolioquotes/internal/config"
	"portfolioquotes/internal/httpx"
	"portfolioquotes/internal/logger"
	"portfolioquotes/internal/netprobe"
	"portfolioquotes/internal/offline"
	"portfolioquotes/internal/providers/alphavantage"
	"portfolioquotes/internal/providers/finnhub"
	"portfolioquotes/internal/providers/yahoo"
	"portfolioquotes/internal/quote"
	"portfolioquotes/internal/resolver"
)

type offlineProber struct{}

func (offlineProber) IsOnline(context.Context) bool { return false }

func main() {
	var (
		timeout      int
		configPath   string
		forceOffline bool
		doSearch     string
	)
	flag.IntVar(&timeout, "timeout", 15, "request timeout seconds")
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json (optional)")
	flag.BoolVar(&forceOffline, "offline", false, "skip the network and use simulated data")
	flag.StringVar(&doSearch, "search", "", "run a symbol search instead of resolving quotes")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: "warn", Pretty: true})

	httpClient := httpx.New(time.Duration(timeout) * time.Second)
	adapters := []quote.Adapter{
		finnhub.New(cfg.Finnhub.APIKey, finnhub.WithHTTPClient(httpClient.HTTP)),
		alphavantage.New(alphavantage.Config{
			APIKey:       cfg.AlphaVantage.APIKey,
			MinInterval:  time.Duration(cfg.AlphaVantage.MinIntervalMs) * time.Millisecond,
			RetryBackoff: time.Duration(cfg.AlphaVantage.RetryBackoffMs) * time.Millisecond,
		}, httpClient, log),
		yahoo.New(yahoo.Config{}, httpClient),
	}

	var prober resolver.Prober = netprobe.New(cfg.Quotes.ProbeEndpoint, time.Duration(cfg.Quotes.ProbeTimeoutSec)*time.Second, log)
	if forceOffline {
		prober = offlineProber{}
	}

	res := resolver.New(adapters, cache.New(time.Duration(cfg.Quotes.CacheTTLSeconds)*time.Second), prober, offline.New(), log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout+5)*time.Second)
	defer cancel()

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)

	if doSearch != "" {
		results, err := res.Search(ctx, doSearch)
		if err != nil {
			fmt.Fprintf(os.Stderr, "search: %v\n", err)
			os.Exit(1)
		}
		for _, r := range results {
			_ = enc.Encode(r)
		}
		return
	}

	symbols := flag.Args()
	if len(symbols) == 0 {
		fmt.Fprintln(os.Stderr, "usage: fetch [flags] SYMBOL [SYMBOL...]")
		os.Exit(2)
	}

	exitCode := 0
	for _, raw := range symbols {
		q, err := res.Resolve(ctx, strings.TrimSpace(raw))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", raw, err)
			exitCode = 1
			continue
		}
		_ = enc.Encode(q)
	}
	os.Exit(exitCode)
}
