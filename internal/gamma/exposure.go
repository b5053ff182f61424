package gamma

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// exposureScale converts dollar gamma to dollars per 1% move in spot.
const exposureScale = 0.01

// Config holds the conventions used by the aggregator.
type Config struct {
	RiskFreeRate float64
	DaysInYear   float64
	MaxLevels    int
}

// DefaultConfig returns the standard conventions: 5% rate, 252-day year, top 5 levels.
func DefaultConfig() Config {
	return Config{
		RiskFreeRate: 0.05,
		DaysInYear:   DefaultDaysInYear,
		MaxLevels:    5,
	}
}

// Aggregator turns option chains into dealer gamma exposure by strike.
// It holds no mutable state and is safe for concurrent use.
type Aggregator struct {
	cfg Config
	now func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the time source used for time to expiry.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates an Aggregator. Zero-valued config fields fall back to defaults.
func NewAggregator(cfg Config, opts ...Option) *Aggregator {
	def := DefaultConfig()
	if cfg.DaysInYear <= 0 {
		cfg.DaysInYear = def.DaysInYear
	}
	if cfg.MaxLevels <= 0 {
		cfg.MaxLevels = def.MaxLevels
	}

	a := &Aggregator{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the conventions in use.
func (a *Aggregator) Config() Config {
	return a.cfg
}

// Aggregate computes net gamma, gamma by strike and the most significant levels.
// Calls contribute positive exposure, puts negative; quotes sharing a strike net
// against each other.
func (a *Aggregator) Aggregate(chain OptionChain, spot float64) (*Analysis, error) {
	contributions, err := a.Contributions(chain, spot)
	if err != nil {
		return nil, err
	}

	var netGamma float64
	byStrike := make(map[float64]float64)
	for _, c := range contributions {
		netGamma += c.GammaExposure
		byStrike[c.Strike] += c.GammaExposure
	}

	strikes := make([]float64, 0, len(byStrike))
	for strike := range byStrike {
		strikes = append(strikes, strike)
	}
	sort.Float64s(strikes)

	gammaByStrike := make([]StrikeExposure, 0, len(strikes))
	for _, strike := range strikes {
		gammaByStrike = append(gammaByStrike, StrikeExposure{
			Strike:        strike,
			GammaExposure: byStrike[strike],
		})
	}

	return &Analysis{
		NetGamma:      netGamma,
		GammaByStrike: gammaByStrike,
		GammaLevels:   IdentifyLevels(gammaByStrike, a.cfg.MaxLevels),
	}, nil
}

// Contributions returns the signed exposure of every quote, calls first then puts,
// in chain order.
func (a *Aggregator) Contributions(chain OptionChain, spot float64) ([]Contribution, error) {
	if spot <= 0 || math.IsNaN(spot) || math.IsInf(spot, 0) {
		return nil, fmt.Errorf("aggregating chain at spot %v: %w", spot, ErrInvalidSpot)
	}

	now := a.now()
	out := make([]Contribution, 0, len(chain.Calls)+len(chain.Puts))

	for _, side := range []struct {
		side   Side
		quotes []OptionQuote
		sign   float64
	}{
		{Call, chain.Calls, 1},
		{Put, chain.Puts, -1},
	} {
		for i, q := range side.quotes {
			if err := validateQuote(q); err != nil {
				return nil, fmt.Errorf("%s #%d (strike %v): %w", side.side, i, q.Strike, err)
			}

			g := OptionGamma(q, spot, a.cfg.RiskFreeRate, a.cfg.DaysInYear, now)
			exposure := g * float64(q.OpenInterest) * spot * spot * exposureScale * side.sign

			out = append(out, Contribution{
				Side:          side.side,
				Strike:        q.Strike,
				Gamma:         g,
				GammaExposure: exposure,
			})
		}
	}

	return out, nil
}

func validateQuote(q OptionQuote) error {
	if q.Strike <= 0 || math.IsNaN(q.Strike) {
		return ErrInvalidStrike
	}
	if q.OpenInterest < 0 {
		return ErrInvalidOpenInterest
	}
	if q.Expiration.IsZero() {
		return ErrInvalidExpiration
	}
	return nil
}
