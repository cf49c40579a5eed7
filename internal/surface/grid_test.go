package surface

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/iv-surface/internal/pricing"
)

// scatterAt builds a solved scatter point days out from the valuation
// date, keeping Maturity and TimeToMaturity consistent with the grid's
// day-count rule.
func scatterAt(valuation time.Time, days int, rel, vol float64) ScatterPoint {
	maturity := valuation.AddDate(0, 0, days)
	return ScatterPoint{
		Date:           valuation,
		Maturity:       maturity,
		MaturityLabel:  maturity.Format("2006-01-02"),
		TimeToMaturity: YearFraction(valuation, maturity),
		RelativeStrike: rel,
		OptionType:     pricing.Call,
		ImpliedVol:     vol,
	}
}

func TestYearFraction(t *testing.T) {
	valuation := d(2026, 1, 1)
	assert.InDelta(t, 1.0, YearFraction(valuation, valuation.AddDate(0, 0, 365)), 1e-12)
	assert.InDelta(t, 7.0/365.0, YearFraction(valuation, valuation.AddDate(0, 0, 7)), 1e-12)
	assert.LessOrEqual(t, YearFraction(valuation, valuation), 0.0)
}

func TestInterpolateGridTooFewPoints(t *testing.T) {
	valuation := d(2026, 8, 3)
	scatter := []ScatterPoint{
		scatterAt(valuation, 30, -5, 0.25),
		scatterAt(valuation, 60, 5, 0.22),
	}
	assert.Empty(t, interpolateGrid(scatter, valuation, 0.5, 2))
}

func TestInterpolateGridCollinearScatter(t *testing.T) {
	valuation := d(2026, 8, 3)

	// a single maturity puts every point on one horizontal line
	scatter := []ScatterPoint{
		scatterAt(valuation, 30, -5, 0.25),
		scatterAt(valuation, 30, 0, 0.20),
		scatterAt(valuation, 30, 5, 0.22),
	}
	assert.Empty(t, interpolateGrid(scatter, valuation, 0.5, 2))
}

func TestInterpolateGridFailedPointsExcluded(t *testing.T) {
	valuation := d(2026, 8, 3)

	// only the NaN point would make the scatter 2-D; without it the
	// remaining points are collinear and no surface exists
	nan := scatterAt(valuation, 60, 0, math.NaN())
	scatter := []ScatterPoint{
		scatterAt(valuation, 30, -5, 0.25),
		scatterAt(valuation, 30, 0, 0.20),
		scatterAt(valuation, 30, 5, 0.22),
		nan,
	}
	assert.Empty(t, interpolateGrid(scatter, valuation, 0.5, 2))
}

// Linear interpolation over a triangulation reproduces a planar field
// exactly at every grid node.
func TestInterpolateGridPlanarField(t *testing.T) {
	valuation := d(2026, 8, 3)

	const (
		a = 0.20
		b = 0.004 // per pp of relative strike
		c = 0.05  // per year
	)
	plane := func(rel, tau float64) float64 { return a + b*rel + c*tau }

	var scatter []ScatterPoint
	for _, days := range []int{30, 60, 120} {
		for _, rel := range []float64{-10, -5, 0, 5, 10} {
			tau := YearFraction(valuation, valuation.AddDate(0, 0, days))
			scatter = append(scatter, scatterAt(valuation, days, rel, plane(rel, tau)))
		}
	}

	nodes := interpolateGrid(scatter, valuation, 0.5, 2)
	require.NotEmpty(t, nodes)

	for _, n := range nodes {
		want := plane(n.RelativeStrike, n.TimeToMaturity)
		assert.InDelta(t, want, n.ImpliedVol, 1e-9,
			"rel=%.2f tau=%.4f", n.RelativeStrike, n.TimeToMaturity)
	}
}

// Grid nodes must stay inside the convex hull of the scatter: a right
// triangle of observations admits no node beyond its hypotenuse.
func TestInterpolateGridConvexHull(t *testing.T) {
	valuation := d(2026, 8, 3)
	const d1, d2 = 30, 120

	t1 := YearFraction(valuation, valuation.AddDate(0, 0, d1))
	t2 := YearFraction(valuation, valuation.AddDate(0, 0, d2))

	scatter := []ScatterPoint{
		scatterAt(valuation, d1, 0, 0.20),
		scatterAt(valuation, d1, 10, 0.24),
		scatterAt(valuation, d2, 0, 0.22),
	}

	nodes := interpolateGrid(scatter, valuation, 0.5, 2)
	require.NotEmpty(t, nodes)

	for _, n := range nodes {
		// hull condition for the triangle {(0,t1), (10,t1), (0,t2)}
		frac := n.RelativeStrike/10 + (n.TimeToMaturity-t1)/(t2-t1)
		assert.LessOrEqual(t, frac, 1.0+1e-6, "node rel=%.2f tau=%.4f escapes the hull", n.RelativeStrike, n.TimeToMaturity)
		assert.GreaterOrEqual(t, n.RelativeStrike, -1e-9)
		assert.GreaterOrEqual(t, n.TimeToMaturity, t1-1e-9)
	}

	// the full rectangle has ~21x46 cells; the triangle holds well under half
	assert.Less(t, len(nodes), 21*46/2+21)
}

func TestInterpolateGridVertexValues(t *testing.T) {
	valuation := d(2026, 8, 3)

	scatter := []ScatterPoint{
		scatterAt(valuation, 30, -5, 0.26),
		scatterAt(valuation, 30, 5, 0.21),
		scatterAt(valuation, 60, -5, 0.27),
		scatterAt(valuation, 60, 5, 0.23),
	}

	nodes := interpolateGrid(scatter, valuation, 0.5, 2)
	require.NotEmpty(t, nodes)

	// grid axes start on the scatter's min coordinates, so the corner
	// observation reappears as a node with its exact vol
	found := false
	for _, n := range nodes {
		if n.RelativeStrike == -5 && n.Date.Equal(valuation.AddDate(0, 0, 30)) {
			assert.InDelta(t, 0.26, n.ImpliedVol, 1e-9)
			found = true
		}
	}
	assert.True(t, found, "corner scatter point missing from the grid")
}

func TestDedupeScatter(t *testing.T) {
	valuation := d(2026, 8, 3)

	p := scatterAt(valuation, 30, -5, 0.25)
	dup := p
	dup.ImpliedVol = 0.99 // same coordinate, later observation loses

	out := dedupeScatter([]ScatterPoint{p, dup, scatterAt(valuation, 30, 5, 0.22)})
	require.Len(t, out, 2)
	assert.Equal(t, 0.25, out[0].ImpliedVol)
}
