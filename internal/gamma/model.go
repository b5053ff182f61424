package gamma

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultDaysInYear is the trading-day year used for time to expiry.
const DefaultDaysInYear = 252

// Side identifies the option type of a quote.
type Side string

const (
	Call Side = "call"
	Put  Side = "put"
)

// Gamma returns the Black-Scholes gamma of a European option. Calls and puts share
// the same gamma. Expired (t <= 0) or zero-volatility inputs yield 0.
func Gamma(spot, strike, t, rate, sigma float64) float64 {
	if t <= 0 || sigma <= 0 {
		return 0
	}

	sqrtT := math.Sqrt(t)
	d1 := (math.Log(spot/strike) + (rate+0.5*sigma*sigma)*t) / (sigma * sqrtT)

	return distuv.UnitNormal.Prob(d1) / (spot * sigma * sqrtT)
}

// TimeToExpiry returns the whole number of days between now and the expiration
// date, divided by daysInYear. Days are counted on now's wall clock, so DST
// transitions do not shift the count. Partial days are floored: a contract
// expiring tomorrow evaluated during today has 0 days left.
func TimeToExpiry(expiration, now time.Time, daysInYear float64) float64 {
	y, m, d := expiration.Date()
	expiry := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	wall := time.Date(now.Year(), now.Month(), now.Day(),
		now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), time.UTC)

	days := math.Floor(expiry.Sub(wall).Hours() / 24)
	return days / daysInYear
}

// OptionGamma evaluates Gamma for a single quote at the given spot and time.
func OptionGamma(q OptionQuote, spot, rate, daysInYear float64, now time.Time) float64 {
	t := TimeToExpiry(q.Expiration, now, daysInYear)
	return Gamma(spot, q.Strike, t, rate, q.ImpliedVolatility)
}
