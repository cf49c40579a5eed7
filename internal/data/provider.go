package data

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/contactkeval/iv-surface/internal/pricing"
)

type DateMatchType string

// Provider supplies market data for one underlying: a spot snapshot, the
// set of listed option maturities, per-maturity option chains, and daily
// bars for realized-vol diagnostics.
//
// Implementations may chain a secondary Provider as a fallback.
type Provider interface {
	Secondary() Provider
	GetSpot(underlying string, asOf time.Time) (float64, error)
	GetAvailableMaturities(underlying string, asOf time.Time) ([]time.Time, error)
	GetOptionChain(underlying string, maturity, asOf time.Time) ([]OptionQuote, error)
	GetDailyBars(underlying string, fromDate, toDate time.Time) ([]Bar, error)
}

const (
	MatchExact   DateMatchType = "exact"   // must match exactly
	MatchHigher  DateMatchType = "higher"  // next available date after target
	MatchLower   DateMatchType = "lower"   // last available date before target
	MatchNearest DateMatchType = "nearest" // closest available date
)

// OptionQuote is one observed option market data point. Immutable once
// produced by a provider.
type OptionQuote struct {
	Strike       float64
	OptionType   pricing.OptionType
	MarketPrice  float64 // last traded or mid price
	MaturityDate time.Time
}

// Validate rejects malformed quote rows at ingestion so missing-field
// problems never propagate into the solver.
func (q OptionQuote) Validate() error {
	if q.Strike <= 0 {
		return fmt.Errorf("non-positive strike %.4f", q.Strike)
	}
	if q.MarketPrice < 0 || math.IsNaN(q.MarketPrice) {
		return fmt.Errorf("invalid market price %.4f for strike %.2f", q.MarketPrice, q.Strike)
	}
	if q.OptionType != pricing.Call && q.OptionType != pricing.Put {
		return fmt.Errorf("invalid option type %q for strike %.2f", q.OptionType, q.Strike)
	}
	if q.MaturityDate.IsZero() {
		return fmt.Errorf("missing maturity date for strike %.2f", q.Strike)
	}
	return nil
}

// Bar simplified OHLC
type Bar struct {
	Date  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
	Vol   float64
	Count int64
}

// --------------------------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------------------------

// MatchMaturity resolves a requested maturity against the dates a provider
// actually lists. With MatchExact a miss returns the zero time and the
// caller decides how to report it.
func MatchMaturity(d time.Time, dates []time.Time, mode DateMatchType) time.Time {

	// Search useful info
	var (
		exact  time.Time
		lower  time.Time
		higher time.Time
	)

	// default to MatchExact
	switch mode {
	case MatchExact, MatchHigher, MatchLower, MatchNearest:
		// ok
	default:
		mode = MatchExact
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	for _, dt := range dates {
		if dt.Equal(d) {
			exact = dt
		}
		if dt.Before(d) {
			lower = dt // will keep last ≤ d
		}
		if dt.After(d) && higher.IsZero() {
			higher = dt
		}
	}

	switch mode {

	case MatchExact:
		return exact // may be zero → caller reports it

	case MatchLower:
		return lower // last date before d

	case MatchHigher:
		return higher // first date after d

	case MatchNearest:
		if !exact.IsZero() {
			return exact
		}
		// choose whichever is closer
		switch {
		case !lower.IsZero() && !higher.IsZero():
			if d.Sub(lower) <= higher.Sub(d) {
				return lower
			}
			return higher
		case !lower.IsZero():
			return lower
		case !higher.IsZero():
			return higher
		}
	}

	return time.Time{} // nothing found
}

// AnnualizedVolatility computes the annualized standard deviation of the
// daily log returns of a close-price series. Used as a realized-vol
// reference against the implied surface. Returns 0.30 when the series is
// too short to estimate.
func AnnualizedVolatility(closes []float64) float64 {
	if len(closes) < 2 {
		return 0.30
	}

	rets := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		rets = append(rets, math.Log(closes[i]/closes[i-1]))
	}

	sd, err := stats.StandardDeviationSample(rets)
	if err != nil {
		return 0.30
	}
	return sd * math.Sqrt(252.0)
}

// ExtractCloses pulls the close series from a slice of bars.
func ExtractCloses(bars []Bar) []float64 {
	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		closes = append(closes, b.Close)
	}
	return closes
}
