package report

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/iv-surface/internal/pricing"
	"github.com/contactkeval/iv-surface/internal/surface"
)

func samplePoints() []surface.ScatterPoint {
	valuation := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	maturity := valuation.AddDate(0, 0, 46)
	return []surface.ScatterPoint{
		{
			Date:           valuation,
			Maturity:       maturity,
			MaturityLabel:  maturity.Format("2006-01-02"),
			TimeToMaturity: surface.YearFraction(valuation, maturity),
			Strike:         105,
			RelativeStrike: 5,
			OptionType:     pricing.Call,
			ImpliedVol:     0.2154,
		},
		{
			Date:           valuation,
			Maturity:       maturity,
			MaturityLabel:  maturity.Format("2006-01-02"),
			TimeToMaturity: surface.YearFraction(valuation, maturity),
			Strike:         95,
			RelativeStrike: -5,
			OptionType:     pricing.Put,
			ImpliedVol:     math.NaN(),
		},
	}
}

func TestRenderSmileTables(t *testing.T) {
	var buf bytes.Buffer
	RenderSmileTables(&buf, samplePoints())

	out := buf.String()
	assert.Contains(t, out, "maturity 2026-09-18")
	assert.Contains(t, out, "0.2154")
	assert.Contains(t, out, "-", "failed inversion renders as a dash")
}

func TestWriteScatterCSV(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteScatterCSV(samplePoints(), dir))

	f, err := os.Open(filepath.Join(dir, "scatter.csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 points

	assert.Equal(t, "0.215400", rows[1][6])
	assert.Equal(t, "", rows[2][6], "no-solution row has an empty vol cell")
}

func TestWriteJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	surf := &surface.Surface{Underlying: "SPY", Spot: 100}
	summary := &surface.BuildSummary{Underlying: "SPY", Quotes: 2, Solved: 1, NoSolution: 1}
	require.NoError(t, WriteJSON(surf, summary, dir))

	b, err := os.ReadFile(filepath.Join(dir, "surface.json"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"underlying": "SPY"`)
	assert.Contains(t, string(b), `"no_solution": 1`)
}
