package data

import (
	"math"
	"math/rand"
	"time"

	"github.com/contactkeval/iv-surface/internal/pricing"
)

// SyntheticRate is the flat risk-free rate used when pricing synthetic
// chains. Builds that invert synthetic quotes with the same rate recover
// the generator smile exactly.
const SyntheticRate = 0.01

// synthDataProvider implements Data Provider generating synthetic data.
//
// Chains are priced with Black-Scholes under a deterministic smile, so a
// surface built from this provider round-trips to known volatilities.
// Useful for offline runs and tests.
type synthDataProvider struct {
	rng       *rand.Rand
	spot      float64
	secondary Provider
}

// NewSyntheticProvider constructs a synthetic provider. The same seed
// always produces the same spot, bars, and chains.
func NewSyntheticProvider(seed int64) Provider {
	rng := rand.New(rand.NewSource(seed))
	return &synthDataProvider{
		rng:  rng,
		spot: 100.0 + float64(rng.Intn(200)),
	}
}

func (synthDataProv *synthDataProvider) Secondary() Provider {
	return synthDataProv.secondary
}

// SmileVol is the generator volatility at a given moneyness (K/S) and
// time-to-maturity: a symmetric smile around ATM with a mild term slope.
func SmileVol(moneyness, tau float64) float64 {
	return 0.20 + 0.5*(moneyness-1)*(moneyness-1) + 0.02*tau
}

func (synthDataProv *synthDataProvider) GetSpot(underlying string, asOf time.Time) (float64, error) {
	if synthDataProv.secondary != nil {
		return synthDataProv.secondary.GetSpot(underlying, asOf)
	}
	return synthDataProv.spot, nil
}

func (synthDataProv *synthDataProvider) GetAvailableMaturities(underlying string, asOf time.Time) ([]time.Time, error) {
	// Fixed listing schedule relative to the valuation date.
	offsets := []int{7, 14, 30, 60, 91, 182, 273, 365}
	out := make([]time.Time, 0, len(offsets))
	for _, d := range offsets {
		out = append(out, asOf.AddDate(0, 0, d))
	}
	return out, nil
}

// GetOptionChain generates call and put quotes at strikes spanning
// 70%..130% of spot in 2.5% increments, priced under the generator smile.
func (synthDataProv *synthDataProvider) GetOptionChain(underlying string, maturity, asOf time.Time) ([]OptionQuote, error) {
	tau := maturity.Sub(asOf).Hours() / 24.0 / 365.0
	if tau <= 0 {
		return nil, nil
	}

	spot := synthDataProv.spot
	var out []OptionQuote
	for pct := 0.70; pct <= 1.3001; pct += 0.025 {
		strike := math.Round(spot*pct*100) / 100
		sigma := SmileVol(strike/spot, tau)

		for _, optType := range []pricing.OptionType{pricing.Call, pricing.Put} {
			price := pricing.BlackScholesPrice(optType, spot, strike, tau, SyntheticRate, sigma)
			out = append(out, OptionQuote{
				Strike:       strike,
				OptionType:   optType,
				MarketPrice:  price,
				MaturityDate: maturity,
			})
		}
	}
	return out, nil
}

func (synthDataProv *synthDataProvider) GetDailyBars(underlying string, fromDate, toDate time.Time) ([]Bar, error) {
	cur := fromDate
	price := synthDataProv.spot
	var out []Bar
	for !cur.After(toDate) {
		if cur.Weekday() != time.Saturday && cur.Weekday() != time.Sunday {
			delta := synthDataProv.rng.NormFloat64() * 0.01 * price
			open := price
			close := price + delta
			high := math.Max(open, close) + math.Abs(synthDataProv.rng.NormFloat64()*0.3)
			low := math.Min(open, close) - math.Abs(synthDataProv.rng.NormFloat64()*0.3)
			out = append(out, Bar{Date: cur, Open: open, High: high, Low: low, Close: close, Vol: float64(1000 + synthDataProv.rng.Intn(5000))})
			price = close
		}
		cur = cur.AddDate(0, 0, 1)
	}
	return out, nil
}
