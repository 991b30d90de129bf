package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
	// AdminToken is the static shared secret the admin sends in
	// X-Admin-Token. Not a security boundary, just role separation
	// between the two users.
	AdminToken string `json:"admin_token"`
}

type Log struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
}

type Finnhub struct {
	APIKey string `json:"api_key"`
}

type AlphaVantage struct {
	APIKey         string `json:"api_key"`
	MinIntervalMs  int    `json:"min_interval_ms"`
	RetryBackoffMs int    `json:"retry_backoff_ms"`
}

type Quotes struct {
	CacheTTLSeconds    int    `json:"cache_ttl_sec"`
	RefreshIntervalSec int    `json:"refresh_interval_sec"`
	BatchLimit         int    `json:"batch_limit"`
	ProbeEndpoint      string `json:"probe_endpoint"`
	ProbeTimeoutSec    int    `json:"probe_timeout_sec"`
}

type Database struct {
	Path string `json:"path"`
}

type Config struct {
	Server       Server       `json:"server"`
	Log          Log          `json:"log"`
	Finnhub      Finnhub      `json:"finnhub"`
	AlphaVantage AlphaVantage `json:"alphavantage"`
	Quotes       Quotes       `json:"quotes"`
	Database     Database     `json:"database"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10},
		Log:    Log{Level: "info", Pretty: false},
		AlphaVantage: AlphaVantage{
			MinIntervalMs:  100,
			RetryBackoffMs: 1000,
		},
		Quotes: Quotes{
			CacheTTLSeconds:    300,
			RefreshIntervalSec: 45,
			BatchLimit:         4,
			ProbeTimeoutSec:    3,
		},
		Database: Database{Path: "portfolio.db"},
	}
}

// Load reads JSON config from path. If path is empty or the file does not
// exist, defaults apply. A .env file is honored, and environment variables
// override select fields so credentials stay out of the config file.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Server.RequestTimeoutSec = x
		}
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_PRETTY"); v != "" {
		cfg.Log.Pretty = isTrue(v)
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		cfg.Finnhub.APIKey = v
	}
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		cfg.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("ALPHAVANTAGE_MIN_INTERVAL_MS"); v != "" {
		if x := atoi(v); x >= 0 {
			cfg.AlphaVantage.MinIntervalMs = x
		}
	}
	if v := os.Getenv("ALPHAVANTAGE_RETRY_BACKOFF_MS"); v != "" {
		if x := atoi(v); x >= 0 {
			cfg.AlphaVantage.RetryBackoffMs = x
		}
	}
	if v := os.Getenv("QUOTE_CACHE_TTL_SEC"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Quotes.CacheTTLSeconds = x
		}
	}
	if v := os.Getenv("REFRESH_INTERVAL_SEC"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Quotes.RefreshIntervalSec = x
		}
	}
	if v := os.Getenv("QUOTE_BATCH_LIMIT"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Quotes.BatchLimit = x
		}
	}
	if v := os.Getenv("PROBE_ENDPOINT"); v != "" {
		cfg.Quotes.ProbeEndpoint = v
	}
	if v := os.Getenv("PROBE_TIMEOUT_SEC"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Quotes.ProbeTimeoutSec = x
		}
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

func atoi(s string) int {
	var x int
	fmt.Sscanf(s, "%d", &x)
	return x
}

func isTrue(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
