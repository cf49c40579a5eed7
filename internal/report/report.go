package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/olekukonko/tablewriter"

	"github.com/contactkeval/iv-surface/internal/surface"
)

// WriteJSON writes the surface and its build summary to surface.json.
func WriteJSON(surf *surface.Surface, summary *surface.BuildSummary, outdir string) error {
	payload := struct {
		Surface *surface.Surface      `json:"surface"`
		Summary *surface.BuildSummary `json:"summary"`
	}{surf, summary}

	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outdir, "surface.json"), b, 0644)
}

// WriteSurfaceCSV writes the uniform grid to surface.csv.
func WriteSurfaceCSV(nodes []surface.GridNode, outdir string) error {
	f, err := os.Create(filepath.Join(outdir, "surface.csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	headers := []string{"date", "relative_strike", "time_to_maturity", "implied_vol"}
	if err := w.Write(headers); err != nil {
		return err
	}
	for _, n := range nodes {
		row := []string{
			n.Date.Format("2006-01-02"),
			fmt.Sprintf("%.2f", n.RelativeStrike),
			fmt.Sprintf("%.6f", n.TimeToMaturity),
			fmt.Sprintf("%.6f", n.ImpliedVol),
		}
		_ = w.Write(row)
	}
	return nil
}

// WriteScatterCSV writes the raw per-maturity scatter to scatter.csv.
// Failed inversions appear with an empty implied_vol column so the reader
// can count them.
func WriteScatterCSV(points []surface.ScatterPoint, outdir string) error {
	f, err := os.Create(filepath.Join(outdir, "scatter.csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	headers := []string{"date", "maturity", "years_to_expiry", "strike", "relative_strike", "option_type", "implied_vol"}
	if err := w.Write(headers); err != nil {
		return err
	}
	for _, p := range points {
		iv := ""
		if !math.IsNaN(p.ImpliedVol) {
			iv = fmt.Sprintf("%.6f", p.ImpliedVol)
		}
		row := []string{
			p.Date.Format("2006-01-02"),
			p.MaturityLabel,
			fmt.Sprintf("%.6f", p.TimeToMaturity),
			fmt.Sprintf("%.2f", p.Strike),
			fmt.Sprintf("%.2f", p.RelativeStrike),
			string(p.OptionType),
			iv,
		}
		_ = w.Write(row)
	}
	return nil
}

// RenderSmileTables renders one table per maturity from the raw scatter,
// sorted by relative strike. Failed inversions render as "-".
func RenderSmileTables(w io.Writer, points []surface.ScatterPoint) {
	byMaturity := map[string][]surface.ScatterPoint{}
	var labels []string
	for _, p := range points {
		if _, ok := byMaturity[p.MaturityLabel]; !ok {
			labels = append(labels, p.MaturityLabel)
		}
		byMaturity[p.MaturityLabel] = append(byMaturity[p.MaturityLabel], p)
	}
	sort.Strings(labels)

	for _, label := range labels {
		smile := byMaturity[label]
		sort.Slice(smile, func(i, j int) bool {
			return smile[i].RelativeStrike < smile[j].RelativeStrike
		})

		fmt.Fprintf(w, "maturity %s (%.4f years)\n", label, smile[0].TimeToMaturity)

		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Strike", "Rel Strike %", "Type", "Implied Vol"})
		for _, p := range smile {
			iv := "-"
			if !math.IsNaN(p.ImpliedVol) {
				iv = fmt.Sprintf("%.4f", p.ImpliedVol)
			}
			table.Append([]string{
				fmt.Sprintf("%.2f", p.Strike),
				fmt.Sprintf("%+.2f", p.RelativeStrike),
				string(p.OptionType),
				iv,
			})
		}
		table.Render()
		fmt.Fprintln(w)
	}
}
