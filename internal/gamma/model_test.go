package gamma

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"
)

func TestGamma_DegenerateInputs(t *testing.T) {
	cases := []struct {
		name  string
		t     float64
		sigma float64
	}{
		{"expired", 0, 0.2},
		{"negative time", -0.5, 0.2},
		{"zero vol", 0.1, 0},
		{"negative vol", 0.1, -0.3},
		{"both", 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Zero(t, Gamma(100, 95, tc.t, 0.05, tc.sigma))
		})
	}
}

func TestGamma_ReferenceValue(t *testing.T) {
	// Reference Black-Scholes calculator: S=100 K=95 T=30/252 r=5% vol=20%.
	g := Gamma(100, 95, 30.0/252, 0.05, 0.2)
	require.InDelta(t, 0.0398009259917772, g, 1e-12)

	exposure := g * 1000 * 100 * 100 * 0.01
	require.InDelta(t, 3980.0925991777, exposure, 1e-6)
}

func TestGamma_AtTheMoneyIsLargest(t *testing.T) {
	atm := Gamma(100, 100, 30.0/252, 0.05, 0.2)
	itm := Gamma(100, 90, 30.0/252, 0.05, 0.2)
	otm := Gamma(100, 110, 30.0/252, 0.05, 0.2)

	require.InDelta(t, 0.0573922145139923, atm, 1e-12)
	require.Greater(t, atm, itm)
	require.Greater(t, atm, otm)
}

func TestOptionGamma_SameForCallAndPut(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	q := OptionQuote{
		Strike:            105,
		Expiration:        time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC),
		ImpliedVolatility: 0.25,
		OpenInterest:      500,
	}

	agg := NewAggregator(DefaultConfig(), WithClock(func() time.Time { return now }))
	contribs, err := agg.Contributions(OptionChain{Calls: []OptionQuote{q}, Puts: []OptionQuote{q}}, 100)
	require.NoError(t, err)
	require.Len(t, contribs, 2)

	require.Equal(t, contribs[0].Gamma, contribs[1].Gamma)
	require.InDelta(t, 0.04173034328187472, contribs[0].Gamma, 1e-12)
	require.Equal(t, contribs[0].GammaExposure, -contribs[1].GammaExposure)
}

func TestTimeToExpiry(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)

	cases := []struct {
		name       string
		expiration time.Time
		want       float64
	}{
		{"thirty days out", time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC), 30.0 / 252},
		{"tomorrow floors to zero", time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), 0},
		{"today is already past", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), -1.0 / 252},
		{"ignores time of day on expiration", time.Date(2025, 6, 12, 16, 0, 0, 0, time.UTC), 9.0 / 252},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.InDelta(t, tc.want, TimeToExpiry(tc.expiration, now, DefaultDaysInYear), 1e-15)
		})
	}
}

func TestTimeToExpiry_AcrossDSTChange(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	cases := []struct {
		name       string
		now        time.Time
		expiration time.Time
		wantDays   float64
	}{
		{"spring forward", time.Date(2025, 3, 6, 23, 30, 0, 0, ny), time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), 3},
		{"fall back", time.Date(2025, 11, 1, 0, 30, 0, 0, ny), time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC), 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TimeToExpiry(tc.expiration, tc.now, DefaultDaysInYear)
			require.InDelta(t, tc.wantDays/DefaultDaysInYear, got, 1e-15)
		})
	}
}

func TestTimeToExpiry_UsesTradingYear(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.InDelta(t, 365.0/252, TimeToExpiry(exp, now, DefaultDaysInYear), 1e-15)
}
