// Package config loads the trading service configuration from the
// environment. Brokerage credentials are required; everything else falls back
// to a sensible default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every runtime setting for the service.
type Config struct {
	// Brokerage (required)
	AlpacaAPIKey    string
	AlpacaAPISecret string
	AlpacaBaseURL   string

	// AI advisor; when URL is empty the Hold-only null advisor is used.
	AdvisorURL   string
	AdvisorToken string

	// Trading
	Watchlist       []string
	MaxRiskPerTrade float64

	// State store: "file" or "redis"
	StoreBackend  string
	DataDir       string
	RedisAddr     string
	RedisPassword string

	// Observability
	MetricsAddr string

	// Scheduler cadence
	TickEvery    time.Duration
	AnalyzeEvery time.Duration
	UpdateEvery  time.Duration
}

// Load reads the configuration from the environment. Missing brokerage
// credentials are a hard error: the service cannot do anything without them.
func Load() (*Config, error) {
	cfg := &Config{
		AlpacaAPIKey:    os.Getenv("ALPACA_API_KEY"),
		AlpacaAPISecret: os.Getenv("ALPACA_SECRET_KEY"),
		AlpacaBaseURL:   getEnv("ALPACA_BASE_URL", "https://paper-api.alpaca.markets"),
		AdvisorURL:      os.Getenv("ADVISOR_URL"),
		AdvisorToken:    os.Getenv("ADVISOR_TOKEN"),
		Watchlist:       splitList(getEnv("TRADING_WATCHLIST", "AAPL,MSFT,GOOGL,TSLA,NVDA")),
		MaxRiskPerTrade: getEnvFloat("MAX_RISK_PER_TRADE", 300),
		StoreBackend:    getEnv("STORE_BACKEND", "file"),
		DataDir:         getEnv("DATA_DIR", "data"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		MetricsAddr:     getEnv("METRICS_ADDR", ":9090"),
		TickEvery:       getEnvDuration("SCHED_TICK", 30*time.Second),
		AnalyzeEvery:    getEnvDuration("ANALYZE_EVERY", 5*time.Minute),
		UpdateEvery:     getEnvDuration("UPDATE_EVERY", time.Minute),
	}

	if cfg.AlpacaAPIKey == "" || cfg.AlpacaAPISecret == "" {
		return nil, fmt.Errorf("ALPACA_API_KEY and ALPACA_SECRET_KEY must be set")
	}
	if cfg.StoreBackend != "file" && cfg.StoreBackend != "redis" {
		return nil, fmt.Errorf("unknown STORE_BACKEND %q (want file or redis)", cfg.StoreBackend)
	}
	if len(cfg.Watchlist) == 0 {
		return nil, fmt.Errorf("TRADING_WATCHLIST is empty")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if sym := strings.ToUpper(strings.TrimSpace(part)); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
