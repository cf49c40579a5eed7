package surface

import (
	"fmt"
	"math"
	"time"

	"github.com/fogleman/delaunay"

	"github.com/contactkeval/iv-surface/internal/logger"
)

// interpolateGrid evaluates the scatter on a uniform
// (relative strike, maturity date) grid by piecewise-linear barycentric
// interpolation over a Delaunay triangulation.
//
// The relative-strike axis steps by strikeStep percentage points across
// the scatter's min/max; the date axis steps by dateStepDays calendar
// days across the observed maturity range, each date converted to a
// time-to-maturity with the quote day-count rule. Grid points outside the
// convex hull of the scatter are dropped, never extrapolated: a vol
// extrapolated beyond the observed smile is numerically meaningless.
//
// Fewer than 3 non-collinear usable points make 2-D linear interpolation
// undefined everywhere; the result is then empty.
func interpolateGrid(scatter []ScatterPoint, valuationDate time.Time, strikeStep float64, dateStepDays int) []GridNode {
	usable := dedupeScatter(usableScatter(scatter))
	if len(usable) < 3 {
		logger.Infof("scatter has %d usable points, below the 2-D interpolation minimum", len(usable))
		return nil
	}

	points := make([]delaunay.Point, len(usable))
	for i, p := range usable {
		points[i] = delaunay.Point{X: p.RelativeStrike, Y: p.TimeToMaturity}
	}

	tri, err := delaunay.Triangulate(points)
	if err != nil || len(tri.Triangles) == 0 {
		// Collinear scatter (e.g. a single maturity) has no triangulation.
		logger.Infof("scatter is degenerate, no surface: %v", err)
		return nil
	}

	strikeMin, strikeMax := usable[0].RelativeStrike, usable[0].RelativeStrike
	matMin, matMax := usable[0].Maturity, usable[0].Maturity
	for _, p := range usable[1:] {
		strikeMin = math.Min(strikeMin, p.RelativeStrike)
		strikeMax = math.Max(strikeMax, p.RelativeStrike)
		if p.Maturity.Before(matMin) {
			matMin = p.Maturity
		}
		if p.Maturity.After(matMax) {
			matMax = p.Maturity
		}
	}

	var nodes []GridNode
	for date := matMin; !date.After(matMax); date = date.AddDate(0, 0, dateStepDays) {
		tau := YearFraction(valuationDate, date)
		if tau <= 0 {
			continue
		}

		// Epsilon keeps the upper bound inclusive under float stepping.
		for rel := strikeMin; rel <= strikeMax+1e-9; rel += strikeStep {
			vol, ok := evalTriangulation(tri, usable, rel, tau)
			if !ok {
				continue // outside the convex hull
			}
			nodes = append(nodes, GridNode{
				Date:           date,
				TimeToMaturity: tau,
				RelativeStrike: rel,
				ImpliedVol:     vol,
			})
		}
	}

	return nodes
}

// evalTriangulation finds the triangle containing (rel, tau) and returns
// the barycentric interpolation of the vertex vols. ok is false when the
// point lies outside every triangle.
func evalTriangulation(tri *delaunay.Triangulation, usable []ScatterPoint, rel, tau float64) (float64, bool) {
	const eps = 1e-9

	for t := 0; t+2 < len(tri.Triangles); t += 3 {
		i1 := tri.Triangles[t]
		i2 := tri.Triangles[t+1]
		i3 := tri.Triangles[t+2]

		x1, y1 := usable[i1].RelativeStrike, usable[i1].TimeToMaturity
		x2, y2 := usable[i2].RelativeStrike, usable[i2].TimeToMaturity
		x3, y3 := usable[i3].RelativeStrike, usable[i3].TimeToMaturity

		det := (y2-y3)*(x1-x3) + (x3-x2)*(y1-y3)
		if math.Abs(det) < eps {
			continue // degenerate triangle
		}

		l1 := ((y2-y3)*(rel-x3) + (x3-x2)*(tau-y3)) / det
		l2 := ((y3-y1)*(rel-x3) + (x1-x3)*(tau-y3)) / det
		l3 := 1 - l1 - l2

		if l1 < -eps || l2 < -eps || l3 < -eps {
			continue
		}

		return l1*usable[i1].ImpliedVol + l2*usable[i2].ImpliedVol + l3*usable[i3].ImpliedVol, true
	}

	return 0, false
}

// dedupeScatter collapses points that land on the same (relative strike,
// time-to-maturity) coordinate; duplicate vertices break triangulation.
func dedupeScatter(points []ScatterPoint) []ScatterPoint {
	seen := map[string]bool{}
	out := make([]ScatterPoint, 0, len(points))
	for _, p := range points {
		key := fmt.Sprintf("%.6f|%.6f", p.RelativeStrike, p.TimeToMaturity)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}
