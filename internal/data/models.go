package data

import (
	"time"

	"github.com/dgnsrekt/gamma-exposure/internal/gamma"
)

// MarketData is the latest daily bar for a ticker.
type MarketData struct {
	Ticker        string    `json:"ticker"`
	Timestamp     time.Time `json:"timestamp"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	PreviousClose float64   `json:"previousClose"`
	Change        float64   `json:"change"` // percent vs previous close
	Volume        int64     `json:"volume"`
}

// OptionSnapshot is a fetched option chain paired with the spot quote it came with.
type OptionSnapshot struct {
	Ticker      string              `json:"ticker"`
	FetchedAt   time.Time           `json:"fetchedAt"`
	SpotPrice   float64             `json:"spotPrice"`
	SpotTime    time.Time           `json:"spotTime"`
	Expirations []time.Time         `json:"expirations"`
	Calls       []gamma.OptionQuote `json:"calls"`
	Puts        []gamma.OptionQuote `json:"puts"`
}

// Chain returns the quotes as a gamma.OptionChain.
func (s *OptionSnapshot) Chain() gamma.OptionChain {
	return gamma.OptionChain{Calls: s.Calls, Puts: s.Puts}
}

// GammaSnapshot is a persisted gamma analysis for one ticker at one point in time.
type GammaSnapshot struct {
	ID            string                 `json:"id"`
	Ticker        string                 `json:"ticker"`
	Timestamp     time.Time              `json:"timestamp"`
	SpotPrice     float64                `json:"spotPrice"`
	SpotTime      time.Time              `json:"spotTime"`
	NetGamma      float64                `json:"netGamma"`
	GammaByStrike []gamma.StrikeExposure `json:"gammaByStrike"`
	GammaLevels   []gamma.StrikeExposure `json:"gammaLevels"`
}
