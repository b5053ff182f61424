package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected defaults to load, got error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("expected port 5000, got %d", cfg.Server.Port)
	}
	if cfg.Refresh.MarketInterval != 15*time.Minute {
		t.Errorf("expected 15m market interval, got %s", cfg.Refresh.MarketInterval)
	}
	if cfg.Refresh.OptionsInterval != 30*time.Minute {
		t.Errorf("expected 30m options interval, got %s", cfg.Refresh.OptionsInterval)
	}
	if cfg.Gamma.RiskFreeRate != 0.05 || cfg.Gamma.DaysInYear != 252 || cfg.Gamma.MaxLevels != 5 {
		t.Errorf("unexpected gamma defaults: %+v", cfg.Gamma)
	}
	if cfg.Strategy.NearbyPct != 5 {
		t.Errorf("expected nearby pct 5, got %v", cfg.Strategy.NearbyPct)
	}
	if got := len(cfg.Tickers.Symbols()); got != 10 {
		t.Errorf("expected 10 default tickers, got %d", got)
	}
	if !cfg.Tickers.IsIndex("^GSPC") || cfg.Tickers.IsIndex("AAPL") {
		t.Error("expected ^GSPC to be an index and AAPL not")
	}
	if cfg.Refresh.Location().String() != "America/New_York" {
		t.Errorf("unexpected location %s", cfg.Refresh.Location())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GEX_STORE_DRIVER", "memory")
	t.Setenv("GEX_TICKERS_STOCKS", "aapl, msft")
	t.Setenv("GEX_TICKERS_INDICES", "^spx")
	t.Setenv("GEX_REFRESH_MARKET_INTERVAL", "5m")
	t.Setenv("PORT", "8081")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Store.Driver != "memory" {
		t.Errorf("expected memory driver, got %s", cfg.Store.Driver)
	}
	want := []string{"^SPX", "AAPL", "MSFT"}
	got := cfg.Tickers.Symbols()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ticker %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if cfg.Refresh.MarketInterval != 5*time.Minute {
		t.Errorf("expected 5m, got %s", cfg.Refresh.MarketInterval)
	}
	if cfg.Server.Port != 8081 {
		t.Errorf("expected port 8081, got %d", cfg.Server.Port)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gex.yaml")
	content := `
server:
  port: 9000
tickers:
  indices: []
  stocks: [NVDA]
gamma:
  max_levels: 3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Gamma.MaxLevels != 3 || cfg.Gamma.Engine().MaxLevels != 3 {
		t.Errorf("expected 3 levels, got %d", cfg.Gamma.MaxLevels)
	}
	if !cfg.Tickers.Tracked("NVDA") || cfg.Tickers.Tracked("AAPL") {
		t.Errorf("unexpected ticker universe %v", cfg.Tickers.Symbols())
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	t.Setenv("GEX_REFRESH_WORKERS", "0")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for zero workers")
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for explicit missing config file")
	}
}
