package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/contactkeval/iv-surface/internal/data"
	"github.com/contactkeval/iv-surface/internal/logger"
	"github.com/contactkeval/iv-surface/internal/report"
	"github.com/contactkeval/iv-surface/internal/surface"
)

func main() {
	configPath := flag.String("config", "", "path to JSON build config (optional)")
	underlying := flag.String("underlying", "SPY", "underlying ticker")
	rate := flag.Float64("rate", 0.01, "flat risk-free rate")
	csvDir := flag.String("csv-dir", "", "load chains from local CSV files in this directory")
	maturityList := flag.String("maturities", "", "comma-separated maturity dates (YYYY-MM-DD), empty = all available")
	valuation := flag.String("valuation", "", "valuation date (YYYY-MM-DD), default today")
	outDir := flag.String("out", "./out", "output directory")
	verbosity := flag.Int("v", 1, "verbosity: 0=errors,1=info,2=debug,3=trace")
	printTables := flag.Bool("table", false, "print per-maturity smile tables to stdout")
	seed := flag.Int64("seed", 42, "seed for the synthetic provider")
	flag.Parse()

	// API keys live in .env during development; absence is fine.
	_ = godotenv.Load()

	cfg := surface.Config{
		Underlying:   *underlying,
		RiskFreeRate: *rate,
		Verbosity:    *verbosity,
	}
	if *configPath != "" {
		cfgData, err := os.ReadFile(*configPath)
		if err != nil {
			log.Fatalf("reading config: %v", err)
		}
		if err := json.Unmarshal(cfgData, &cfg); err != nil {
			log.Fatalf("invalid config: %v", err)
		}
	}
	logger.SetVerbosity(cfg.Verbosity)

	valuationDate := time.Now().UTC().Truncate(24 * time.Hour)
	if *valuation != "" {
		dt, err := time.Parse("2006-01-02", *valuation)
		if err != nil {
			log.Fatalf("invalid valuation date: %v", err)
		}
		valuationDate = dt
	}

	var maturities []time.Time
	if *maturityList != "" {
		for _, s := range strings.Split(*maturityList, ",") {
			dt, err := time.Parse("2006-01-02", strings.TrimSpace(s))
			if err != nil {
				log.Fatalf("invalid maturity %q: %v", s, err)
			}
			maturities = append(maturities, dt)
		}
	}

	// choose provider
	var prov data.Provider
	apiKey := os.Getenv("POLYGON_API_KEY")
	switch {
	case *csvDir != "":
		prov = data.NewCSVDataProvider(*csvDir, data.NewSyntheticProvider(*seed))
		logger.Infof("csv provider enabled (dir=%s)", *csvDir)
	case apiKey != "":
		prov = data.NewMassiveDataProvider(apiKey)
		logger.Infof("massive provider enabled")
	default:
		prov = data.NewSyntheticProvider(*seed)
		logger.Infof("synthetic provider enabled")
	}

	builder := surface.NewBuilder(&cfg, prov)
	surf, scatter, summary, err := builder.Build(valuationDate, maturities)
	if err != nil {
		log.Fatalf("surface build failed: %v", err)
	}

	// realized-vol diagnostic next to the implied surface
	if bars, err := prov.GetDailyBars(cfg.Underlying, valuationDate.AddDate(-1, 0, 0), valuationDate); err == nil && len(bars) > 1 {
		hv := data.AnnualizedVolatility(data.ExtractCloses(bars))
		logger.Infof("realized vol (1y daily) = %.2f%%", hv*100)
	}

	if *printTables {
		report.RenderSmileTables(os.Stdout, scatter)
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("could not create output dir %s: %v", *outDir, err)
	}
	if err := report.WriteJSON(surf, summary, *outDir); err != nil {
		logger.Errorf("writing surface.json: %v", err)
	}
	if err := report.WriteSurfaceCSV(surf.Nodes, *outDir); err != nil {
		logger.Errorf("writing surface.csv: %v", err)
	}
	if err := report.WriteScatterCSV(scatter, *outDir); err != nil {
		logger.Errorf("writing scatter.csv: %v", err)
	}

	logger.Infof(
		"[done] build %s: %d grid nodes, %d/%d quotes inverted, wrote reports to %s",
		summary.BuildID, summary.GridNodes, summary.Solved, summary.Quotes, *outDir,
	)
}
