package config

import (
	"testing"
	"time"
)

func TestLoadRequiresCredentials(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "")
	t.Setenv("ALPACA_SECRET_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("missing brokerage credentials must be fatal")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "key")
	t.Setenv("ALPACA_SECRET_KEY", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Watchlist) != 5 || cfg.Watchlist[0] != "AAPL" {
		t.Errorf("default watchlist: %v", cfg.Watchlist)
	}
	if cfg.MaxRiskPerTrade != 300 {
		t.Errorf("default risk: %v", cfg.MaxRiskPerTrade)
	}
	if cfg.StoreBackend != "file" {
		t.Errorf("default backend: %v", cfg.StoreBackend)
	}
	if cfg.TickEvery != 30*time.Second {
		t.Errorf("default tick: %v", cfg.TickEvery)
	}
}

func TestLoadWatchlistParsing(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "key")
	t.Setenv("ALPACA_SECRET_KEY", "secret")
	t.Setenv("TRADING_WATCHLIST", " amd , tsla,, nvda ")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"AMD", "TSLA", "NVDA"}
	if len(cfg.Watchlist) != len(want) {
		t.Fatalf("watchlist: %v", cfg.Watchlist)
	}
	for i := range want {
		if cfg.Watchlist[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, cfg.Watchlist[i], want[i])
		}
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "key")
	t.Setenv("ALPACA_SECRET_KEY", "secret")
	t.Setenv("STORE_BACKEND", "etcd")
	if _, err := Load(); err == nil {
		t.Fatal("unknown store backend must be rejected")
	}
}
