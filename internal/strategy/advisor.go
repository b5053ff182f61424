// Package strategy turns a gamma analysis into a trading-bias narrative.
package strategy

import (
	"fmt"
	"math"
	"sort"

	"github.com/dgnsrekt/gamma-exposure/internal/data"
	"github.com/dgnsrekt/gamma-exposure/internal/gamma"
)

// MsgDataNotAvailable is the message returned when a ticker lacks market or gamma data.
const MsgDataNotAvailable = "Data not available for this ticker"

// DefaultNearbyPct is the distance from the current price, in percent, inside
// which a level counts as nearby.
const DefaultNearbyPct = 5.0

// Bias is the directional read derived from net gamma.
type Bias string

const (
	Bullish Bias = "bullish"
	Bearish Bias = "bearish"
	Neutral Bias = "neutral"
)

const (
	bullishMessage = "Positive gamma exposure: dealer hedging dampens downside moves and tends to reinforce upside moves."
	bearishMessage = "Negative gamma exposure: dealer hedging amplifies downside moves and tends to cap upside moves."
	neutralMessage = "Gamma exposure is balanced: dealer hedging flows are not expected to favor either direction."
)

// Level is a significant gamma strike relative to the current price.
type Level struct {
	Strike        float64 `json:"strike"`
	GammaExposure float64 `json:"gammaExposure"`
	DistancePct   float64 `json:"distancePct"`
}

// Strategy is the advice for one ticker. It is recomputed on every request.
type Strategy struct {
	Ticker           string   `json:"ticker"`
	CurrentPrice     float64  `json:"currentPrice"`
	Bias             Bias     `json:"bias"`
	NetGamma         float64  `json:"netGamma"`
	Message          string   `json:"message"`
	NearbyLevels     []Level  `json:"nearbyLevels"`
	SupportLevels    []Level  `json:"supportLevels"`
	ResistanceLevels []Level  `json:"resistanceLevels"`
	Recommendations  []string `json:"recommendations"`
}

// Result is either a Strategy or an error message. Callers check Error first.
type Result struct {
	*Strategy
	Error string `json:"error,omitempty"`
}

// OK reports whether the result carries a strategy.
func (r Result) OK() bool {
	return r.Error == "" && r.Strategy != nil
}

// Config holds advisor settings.
type Config struct {
	NearbyPct float64
}

// Advisor classifies bias and support/resistance from gamma levels.
// It holds no mutable state and is safe for concurrent use.
type Advisor struct {
	cfg Config
}

// NewAdvisor creates an advisor. A non-positive NearbyPct falls back to DefaultNearbyPct.
func NewAdvisor(cfg Config) *Advisor {
	if cfg.NearbyPct <= 0 {
		cfg.NearbyPct = DefaultNearbyPct
	}
	return &Advisor{cfg: cfg}
}

// Classify maps net gamma to a bias.
func Classify(netGamma float64) Bias {
	switch {
	case netGamma > 0:
		return Bullish
	case netGamma < 0:
		return Bearish
	default:
		return Neutral
	}
}

// Advise builds the strategy for a ticker at currentPrice. currentPrice must be positive.
func (a *Advisor) Advise(ticker string, currentPrice, netGamma float64, levels []gamma.StrikeExposure) *Strategy {
	s := &Strategy{
		Ticker:           ticker,
		CurrentPrice:     currentPrice,
		Bias:             Classify(netGamma),
		NetGamma:         netGamma,
		NearbyLevels:     []Level{},
		SupportLevels:    []Level{},
		ResistanceLevels: []Level{},
	}

	for _, row := range levels {
		lvl := Level{
			Strike:        row.Strike,
			GammaExposure: row.GammaExposure,
			DistancePct:   (row.Strike/currentPrice - 1) * 100,
		}

		if math.Abs(lvl.DistancePct) < a.cfg.NearbyPct {
			s.NearbyLevels = append(s.NearbyLevels, lvl)
		}
		switch {
		case lvl.GammaExposure > 0 && lvl.Strike < currentPrice:
			s.SupportLevels = append(s.SupportLevels, lvl)
		case lvl.GammaExposure < 0 && lvl.Strike > currentPrice:
			s.ResistanceLevels = append(s.ResistanceLevels, lvl)
		}
	}

	// Closest levels first on both sides.
	sort.SliceStable(s.SupportLevels, func(i, j int) bool {
		return s.SupportLevels[i].Strike > s.SupportLevels[j].Strike
	})
	sort.SliceStable(s.ResistanceLevels, func(i, j int) bool {
		return s.ResistanceLevels[i].Strike < s.ResistanceLevels[j].Strike
	})

	s.Message, s.Recommendations = recommend(s)
	return s
}

func recommend(s *Strategy) (string, []string) {
	switch s.Bias {
	case Bullish:
		recs := []string{"Favor long positions; dips are likely to be bought as dealers hedge."}
		if len(s.SupportLevels) > 0 {
			recs = append(recs, fmt.Sprintf("Consider a stop below the support level at %s.", formatStrike(s.SupportLevels[0].Strike)))
		}
		if len(s.ResistanceLevels) > 0 {
			recs = append(recs, fmt.Sprintf("Target the resistance level at %s.", formatStrike(s.ResistanceLevels[0].Strike)))
		}
		return bullishMessage, recs

	case Bearish:
		recs := []string{"Favor short positions; rallies are likely to be sold as dealers hedge."}
		if len(s.ResistanceLevels) > 0 {
			recs = append(recs, fmt.Sprintf("Consider a stop above the resistance level at %s.", formatStrike(s.ResistanceLevels[0].Strike)))
		}
		if len(s.SupportLevels) > 0 {
			recs = append(recs, fmt.Sprintf("Target the support level at %s.", formatStrike(s.SupportLevels[0].Strike)))
		}
		return bearishMessage, recs

	default:
		return neutralMessage, []string{"No clear bias; wait for gamma exposure to shift before taking a directional position."}
	}
}

func formatStrike(strike float64) string {
	return fmt.Sprintf("%.2f", strike)
}

// ForTicker builds the strategy from the latest persisted snapshots. Missing
// inputs, or a non-positive close, yield an error Result rather than a failure.
func (a *Advisor) ForTicker(ticker string, market *data.MarketData, analysis *data.GammaSnapshot) Result {
	if market == nil || analysis == nil || market.Close <= 0 {
		return Result{Error: MsgDataNotAvailable}
	}
	return Result{Strategy: a.Advise(ticker, market.Close, analysis.NetGamma, analysis.GammaLevels)}
}
