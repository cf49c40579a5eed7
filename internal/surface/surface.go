// Package surface builds an implied-volatility surface from an observed
// option chain: it inverts the pricing model per quote, assembles the
// pointwise volatilities into a moneyness/maturity scatter, and
// interpolates the scatter onto a uniform grid.
package surface

import (
	"time"

	"github.com/google/uuid"

	"github.com/contactkeval/iv-surface/internal/pricing"
)

// PricingContext holds the inputs shared across all quotes of one surface
// build. It is immutable for the duration of the build; the valuation
// date is explicit so the core never reads a wall clock.
type PricingContext struct {
	Spot          float64
	RiskFreeRate  float64
	ValuationDate time.Time
}

// YearFraction converts a maturity date to a time-to-maturity in years
// using a calendar-day count over 365. The same rule is applied to quotes
// and to the uniform date axis.
func YearFraction(valuationDate, maturityDate time.Time) float64 {
	return maturityDate.Sub(valuationDate).Hours() / 24.0 / 365.0
}

// ScatterPoint is one volatility observation after quote selection.
// ImpliedVol is NaN when the inversion found no solution; such points are
// kept in the scatter for auditability and excluded before interpolation.
type ScatterPoint struct {
	Date           time.Time          `json:"date"`     // valuation date
	Maturity       time.Time          `json:"maturity"` // option expiration date
	MaturityLabel  string             `json:"maturity_label"`
	TimeToMaturity float64            `json:"time_to_maturity"` // years
	Strike         float64            `json:"strike"`
	RelativeStrike float64            `json:"relative_strike"` // (K-S)/S x 100
	OptionType     pricing.OptionType `json:"option_type"`
	ImpliedVol     float64            `json:"implied_vol"`
}

// GridNode is one cell of the uniform output surface. Only nodes inside
// the convex hull of the scatter are emitted.
type GridNode struct {
	Date           time.Time `json:"date"` // maturity date on the uniform axis
	TimeToMaturity float64   `json:"time_to_maturity"`
	RelativeStrike float64   `json:"relative_strike"`
	ImpliedVol     float64   `json:"implied_vol"`
}

// Surface is the uniformly gridded implied-volatility surface. It owns
// its nodes and retains no references to the build inputs.
type Surface struct {
	Underlying    string     `json:"underlying"`
	ValuationDate time.Time  `json:"valuation_date"`
	Spot          float64    `json:"spot"`
	Nodes         []GridNode `json:"nodes"`
}

// BuildSummary aggregates per-quote outcomes of one build so failures are
// observable rather than silently dropped.
type BuildSummary struct {
	BuildID    uuid.UUID     `json:"build_id"`
	Underlying string        `json:"underlying"`
	Quotes     int           `json:"quotes"`      // selected quotes fed to the solver
	Solved     int           `json:"solved"`      // successful inversions
	NoSolution int           `json:"no_solution"` // bracket contained no root
	Skipped    int           `json:"skipped"`     // malformed rows, filter errors, failed chain fetches
	Maturities int           `json:"maturities"`  // maturities contributing to the scatter
	GridNodes  int           `json:"grid_nodes"`
	Elapsed    time.Duration `json:"elapsed"`
}
