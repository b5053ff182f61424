package gamma

import "time"

// OptionQuote is a single option contract as delivered by the chain gateway.
type OptionQuote struct {
	ContractSymbol    string    `json:"contractSymbol,omitempty"`
	Strike            float64   `json:"strike"`
	Expiration        time.Time `json:"expiration"`
	LastPrice         float64   `json:"lastPrice"`
	Bid               float64   `json:"bid"`
	Ask               float64   `json:"ask"`
	ImpliedVolatility float64   `json:"impliedVolatility"`
	OpenInterest      int64     `json:"openInterest"`
	Volume            int64     `json:"volume"`
}

// OptionChain holds the calls and puts of one ticker for the near-term expirations.
type OptionChain struct {
	Calls []OptionQuote `json:"calls"`
	Puts  []OptionQuote `json:"puts"`
}

// Empty reports whether neither side has quotes.
func (c OptionChain) Empty() bool {
	return len(c.Calls) == 0 && len(c.Puts) == 0
}

// StrikeExposure is the aggregated dealer gamma exposure at one strike.
type StrikeExposure struct {
	Strike        float64 `json:"strike"`
	GammaExposure float64 `json:"gammaExposure"`
}

// Contribution is the signed exposure of a single quote.
type Contribution struct {
	Side          Side    `json:"side"`
	Strike        float64 `json:"strike"`
	Gamma         float64 `json:"gamma"`
	GammaExposure float64 `json:"gammaExposure"`
}

// Analysis is the result of aggregating a chain at a spot price.
type Analysis struct {
	NetGamma      float64          `json:"netGamma"`
	GammaByStrike []StrikeExposure `json:"gammaByStrike"`
	GammaLevels   []StrikeExposure `json:"gammaLevels"`
}
