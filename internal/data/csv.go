package data

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/contactkeval/iv-surface/internal/logger"
	"github.com/contactkeval/iv-surface/internal/pricing"
)

// csvDataProvider implements Data Provider from local CSV files.
//
// Expected layout under dir:
//
//	<UNDERLYING>_chain.csv  columns: expiry,type,strike,price
//	<UNDERLYING>_bars.csv   columns: date,open,high,low,close,volume
//
// Dates use the 2006-01-02 layout. Malformed rows are rejected at load
// time, not propagated into the solver.
type csvDataProvider struct {
	dir       string
	secondary Provider

	mu     sync.Mutex
	chains map[string][]OptionQuote // keyed by underlying
	bars   map[string][]Bar
}

// chainRow is the CSV schema of one option chain record.
type chainRow struct {
	Expiry string  `csv:"expiry"`
	Type   string  `csv:"type"`
	Strike float64 `csv:"strike"`
	Price  float64 `csv:"price"`
}

// barRow is the CSV schema of one daily bar record.
type barRow struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume float64 `csv:"volume"`
}

// NewCSVDataProvider convenience constructor.
func NewCSVDataProvider(dir string, secondary Provider) *csvDataProvider {
	return &csvDataProvider{
		dir:       dir,
		secondary: secondary,
		chains:    map[string][]OptionQuote{},
		bars:      map[string][]Bar{},
	}
}

func (csvDataProv *csvDataProvider) Secondary() Provider {
	return csvDataProv.secondary
}

// loadChain reads and caches the chain file for an underlying.
func (csvDataProv *csvDataProvider) loadChain(underlying string) ([]OptionQuote, error) {
	csvDataProv.mu.Lock()
	defer csvDataProv.mu.Unlock()

	key := strings.ToUpper(underlying)
	if quotes, ok := csvDataProv.chains[key]; ok {
		return quotes, nil
	}

	path := filepath.Join(csvDataProv.dir, key+"_chain.csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chain file: %w", err)
	}
	defer f.Close()

	var rows []chainRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("decode chain file %s: %w", path, err)
	}

	quotes := make([]OptionQuote, 0, len(rows))
	rejected := 0
	for _, row := range rows {
		expiry, err := time.Parse("2006-01-02", row.Expiry)
		if err != nil {
			rejected++
			continue
		}
		optType, err := pricing.ParseOptionType(row.Type)
		if err != nil {
			rejected++
			continue
		}
		q := OptionQuote{
			Strike:       row.Strike,
			OptionType:   optType,
			MarketPrice:  row.Price,
			MaturityDate: expiry,
		}
		if err := q.Validate(); err != nil {
			logger.Debugf("rejecting chain row: %v", err)
			rejected++
			continue
		}
		quotes = append(quotes, q)
	}

	if rejected > 0 {
		logger.Infof("chain file %s: %d rows rejected at ingestion", path, rejected)
	}

	csvDataProv.chains[key] = quotes
	return quotes, nil
}

// loadBars reads and caches the bars file for an underlying.
func (csvDataProv *csvDataProvider) loadBars(underlying string) ([]Bar, error) {
	csvDataProv.mu.Lock()
	defer csvDataProv.mu.Unlock()

	key := strings.ToUpper(underlying)
	if bars, ok := csvDataProv.bars[key]; ok {
		return bars, nil
	}

	path := filepath.Join(csvDataProv.dir, key+"_bars.csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars file: %w", err)
	}
	defer f.Close()

	var rows []barRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("decode bars file %s: %w", path, err)
	}

	bars := make([]Bar, 0, len(rows))
	for _, row := range rows {
		dt, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			continue
		}
		bars = append(bars, Bar{Date: dt, Open: row.Open, High: row.High, Low: row.Low, Close: row.Close, Vol: row.Volume})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	csvDataProv.bars[key] = bars
	return bars, nil
}

func (csvDataProv *csvDataProvider) GetSpot(underlying string, asOf time.Time) (float64, error) {
	bars, err := csvDataProv.loadBars(underlying)
	if err != nil {
		if csvDataProv.secondary != nil {
			return csvDataProv.secondary.GetSpot(underlying, asOf)
		}
		return 0, err
	}

	spot := 0.0
	for _, b := range bars {
		if b.Date.After(asOf) {
			break
		}
		spot = b.Close
	}
	if spot <= 0 {
		return 0, fmt.Errorf("no bar at or before %s for %s", asOf.Format("2006-01-02"), underlying)
	}
	return spot, nil
}

func (csvDataProv *csvDataProvider) GetAvailableMaturities(underlying string, asOf time.Time) ([]time.Time, error) {
	quotes, err := csvDataProv.loadChain(underlying)
	if err != nil {
		if csvDataProv.secondary != nil {
			return csvDataProv.secondary.GetAvailableMaturities(underlying, asOf)
		}
		return nil, err
	}

	seen := map[string]time.Time{}
	for _, q := range quotes {
		seen[q.MaturityDate.Format("2006-01-02")] = q.MaturityDate
	}

	out := make([]time.Time, 0, len(seen))
	for _, dt := range seen {
		out = append(out, dt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (csvDataProv *csvDataProvider) GetOptionChain(underlying string, maturity, asOf time.Time) ([]OptionQuote, error) {
	quotes, err := csvDataProv.loadChain(underlying)
	if err != nil {
		if csvDataProv.secondary != nil {
			return csvDataProv.secondary.GetOptionChain(underlying, maturity, asOf)
		}
		return nil, err
	}

	var out []OptionQuote
	for _, q := range quotes {
		if q.MaturityDate.Equal(maturity) {
			out = append(out, q)
		}
	}
	return out, nil
}

func (csvDataProv *csvDataProvider) GetDailyBars(underlying string, fromDate, toDate time.Time) ([]Bar, error) {
	bars, err := csvDataProv.loadBars(underlying)
	if err != nil {
		if csvDataProv.secondary != nil {
			return csvDataProv.secondary.GetDailyBars(underlying, fromDate, toDate)
		}
		return nil, err
	}

	var out []Bar
	for _, b := range bars {
		if b.Date.Before(fromDate) || b.Date.After(toDate) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}
