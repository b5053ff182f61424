package config

import "strings"

// TickerType distinguishes indices from single stocks.
type TickerType string

const (
	TickerIndex TickerType = "index"
	TickerStock TickerType = "stock"
)

// DefaultIndices lists the tracked indices, in provider notation
var DefaultIndices = []string{"^GSPC", "^NDX", "^DJI"}

// DefaultStocks lists the tracked single stocks
var DefaultStocks = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA", "META", "NVDA"}

// Ticker is one tracked symbol.
type Ticker struct {
	Symbol string     `json:"symbol"`
	Type   TickerType `json:"type"`
}

type TickersConfig struct {
	Indices []string `mapstructure:"indices"`
	Stocks  []string `mapstructure:"stocks"`
}

func (t *TickersConfig) normalize() {
	t.Indices = normalizeSymbols(t.Indices)
	t.Stocks = normalizeSymbols(t.Stocks)
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// All returns indices first, then stocks, in configured order.
func (t TickersConfig) All() []Ticker {
	out := make([]Ticker, 0, len(t.Indices)+len(t.Stocks))
	for _, s := range t.Indices {
		out = append(out, Ticker{Symbol: s, Type: TickerIndex})
	}
	for _, s := range t.Stocks {
		out = append(out, Ticker{Symbol: s, Type: TickerStock})
	}
	return out
}

// Symbols returns all tracked symbols.
func (t TickersConfig) Symbols() []string {
	all := t.All()
	out := make([]string, len(all))
	for i, tk := range all {
		out[i] = tk.Symbol
	}
	return out
}

// Tracked reports whether symbol is in the tracked universe.
func (t TickersConfig) Tracked(symbol string) bool {
	for _, tk := range t.All() {
		if tk.Symbol == symbol {
			return true
		}
	}
	return false
}

// IsIndex reports whether symbol is a tracked index.
func (t TickersConfig) IsIndex(symbol string) bool {
	for _, s := range t.Indices {
		if s == symbol {
			return true
		}
	}
	return false
}
