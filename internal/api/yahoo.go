package api

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gamma-exposure/internal/data"
	"github.com/dgnsrekt/gamma-exposure/internal/gamma"
)

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *apiError) err() error {
	if e.Code == "Not Found" {
		return fmt.Errorf("%s: %w", e.Description, ErrNotFound)
	}
	return fmt.Errorf("upstream error %s: %s", e.Code, e.Description)
}

// chartResponse is the subset of /v8/finance/chart used here.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		RegularMarketTime  int64   `json:"regularMarketTime"`
		ChartPreviousClose float64 `json:"chartPreviousClose"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []float64 `json:"open"`
			High   []float64 `json:"high"`
			Low    []float64 `json:"low"`
			Close  []float64 `json:"close"`
			Volume []int64   `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// marketData picks the most recent bar with a close. Missing bars arrive as
// JSON nulls and decode to zero.
func (r *chartResult) marketData(ticker string) (*data.MarketData, error) {
	if len(r.Indicators.Quote) == 0 {
		return nil, ErrNoData
	}
	q := r.Indicators.Quote[0]

	last, prev := -1, -1
	for i := min(len(r.Timestamp), len(q.Close)) - 1; i >= 0; i-- {
		if q.Close[i] <= 0 {
			continue
		}
		if last < 0 {
			last = i
			continue
		}
		prev = i
		break
	}
	if last < 0 {
		return nil, ErrNoData
	}

	md := &data.MarketData{
		Ticker:    ticker,
		Timestamp: time.Unix(r.Timestamp[last], 0).UTC(),
		Open:      at(q.Open, last),
		High:      at(q.High, last),
		Low:       at(q.Low, last),
		Close:     q.Close[last],
		Volume:    atInt(q.Volume, last),
	}

	switch {
	case prev >= 0:
		md.PreviousClose = q.Close[prev]
	default:
		md.PreviousClose = r.Meta.ChartPreviousClose
	}
	if md.PreviousClose > 0 {
		md.Change = (md.Close/md.PreviousClose - 1) * 100
	}

	return md, nil
}

func at(vals []float64, i int) float64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

func atInt(vals []int64, i int) int64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

// optionsResponse is the subset of /v7/finance/options used here.
type optionsResponse struct {
	OptionChain struct {
		Result []optionResult `json:"result"`
		Error  *apiError      `json:"error"`
	} `json:"optionChain"`
}

type optionResult struct {
	UnderlyingSymbol string  `json:"underlyingSymbol"`
	ExpirationDates  []int64 `json:"expirationDates"`
	Quote            struct {
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		RegularMarketTime  int64   `json:"regularMarketTime"`
	} `json:"quote"`
	Options []optionSet `json:"options"`
}

func (r *optionResult) hasExpiration(exp int64) bool {
	for _, set := range r.Options {
		if set.ExpirationDate == exp {
			return true
		}
	}
	return false
}

type optionSet struct {
	ExpirationDate int64      `json:"expirationDate"`
	Calls          []contract `json:"calls"`
	Puts           []contract `json:"puts"`
}

type contract struct {
	ContractSymbol    string  `json:"contractSymbol"`
	Strike            float64 `json:"strike"`
	Expiration        int64   `json:"expiration"`
	LastPrice         float64 `json:"lastPrice"`
	Bid               float64 `json:"bid"`
	Ask               float64 `json:"ask"`
	ImpliedVolatility float64 `json:"impliedVolatility"`
	OpenInterest      int64   `json:"openInterest"`
	Volume            int64   `json:"volume"`
}

// convertContracts validates upstream contracts before handing them to the
// gamma engine. Non-positive strikes are dropped, negative counts clamped.
func convertContracts(in []contract, logger *zap.Logger) []gamma.OptionQuote {
	out := make([]gamma.OptionQuote, 0, len(in))
	for _, c := range in {
		if c.Strike <= 0 || math.IsNaN(c.Strike) || c.Expiration == 0 {
			logger.Debug("dropping malformed contract",
				zap.String("contract", c.ContractSymbol),
				zap.Float64("strike", c.Strike))
			continue
		}

		out = append(out, gamma.OptionQuote{
			ContractSymbol:    c.ContractSymbol,
			Strike:            c.Strike,
			Expiration:        time.Unix(c.Expiration, 0).UTC(),
			LastPrice:         c.LastPrice,
			Bid:               c.Bid,
			Ask:               c.Ask,
			ImpliedVolatility: c.ImpliedVolatility,
			OpenInterest:      max(c.OpenInterest, 0),
			Volume:            max(c.Volume, 0),
		})
	}
	return out
}
