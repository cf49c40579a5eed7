package surface

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Knetic/govaluate"
	"github.com/google/uuid"

	"github.com/contactkeval/iv-surface/internal/data"
	"github.com/contactkeval/iv-surface/internal/logger"
	"github.com/contactkeval/iv-surface/internal/pricing"
)

var (
	// ErrInvalidMaturity is returned when a requested maturity cannot be
	// resolved against the provider's available set.
	ErrInvalidMaturity = errors.New("requested maturity not available")

	// ErrNoQuotes is returned when the provider lists no maturities at
	// all for the underlying.
	ErrNoQuotes = errors.New("no quotes available")
)

// Config struct
type Config struct {
	Underlying   string             `json:"underlying"`                // e.g. "AAPL"
	RiskFreeRate float64            `json:"risk_free_rate,omitempty"`  // flat rate, default 0.01
	StrikeStep   float64            `json:"strike_step,omitempty"`     // relative-strike axis step in pp, default 0.5
	DateStepDays int                `json:"date_step_days,omitempty"`  // date axis step, default 2
	MatchType    data.DateMatchType `json:"date_match_type,omitempty"` // maturity matching, default "exact"
	QuoteFilter  string             `json:"quote_filter,omitempty"`    // expression over strike/relStrike/tau/price/optionType
	Verbosity    int                `json:"verbosity,omitempty"`       // 0=errors,1=info,2=debug,3=trace
}

// Builder turns a raw option chain plus a spot snapshot into a dense,
// uniformly gridded implied-volatility surface.
type Builder struct {
	cfg    *Config
	prov   data.Provider
	pricer pricing.PriceFunc
}

// NewBuilder constructs a Builder pricing with Black-Scholes.
func NewBuilder(cfg *Config, prov data.Provider) *Builder {
	return &Builder{cfg: cfg, prov: prov, pricer: pricing.BlackScholesPrice}
}

// NewBuilderWithPricer constructs a Builder over a caller-supplied pricing
// function. The function must be monotonically non-decreasing in sigma.
func NewBuilderWithPricer(cfg *Config, prov data.Provider, pricer pricing.PriceFunc) *Builder {
	return &Builder{cfg: cfg, prov: prov, pricer: pricer}
}

// Build constructs the surface for one valuation date.
//
// maturities selects which expiries to include; nil means every maturity
// the provider lists. Requested maturities are resolved against the
// provider's available set using cfg.MatchType; with the default exact
// matching an unknown maturity aborts the build with ErrInvalidMaturity
// before any solving starts.
//
// Per-quote failures (malformed rows, inversions with no solution) never
// abort the batch: they are counted in the BuildSummary, kept in the raw
// scatter as NaN entries, and excluded from interpolation. A scatter too
// small for 2-D interpolation yields an empty surface, not an error.
func (b *Builder) Build(valuationDate time.Time, maturities []time.Time) (*Surface, []ScatterPoint, *BuildSummary, error) {
	// fill defaults into a local copy; the caller's config is not touched
	cfg := *b.cfg
	if cfg.RiskFreeRate == 0 {
		cfg.RiskFreeRate = 0.01
	}
	if cfg.StrikeStep <= 0 {
		cfg.StrikeStep = 0.5
	}
	if cfg.DateStepDays <= 0 {
		cfg.DateStepDays = 2
	}
	if cfg.MatchType == "" {
		cfg.MatchType = data.MatchExact
	}

	start := time.Now()
	summary := &BuildSummary{BuildID: uuid.New(), Underlying: cfg.Underlying}

	// Compile the quote filter up front; a bad expression makes the whole
	// build meaningless, so it is a precondition failure.
	var filter *govaluate.EvaluableExpression
	if cfg.QuoteFilter != "" {
		expr, err := govaluate.NewEvaluableExpression(cfg.QuoteFilter)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid quote filter %q: %w", cfg.QuoteFilter, err)
		}
		filter = expr
	}

	spot, err := b.prov.GetSpot(cfg.Underlying, valuationDate)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fetch spot: %w", err)
	}
	if spot <= 0 {
		return nil, nil, nil, fmt.Errorf("non-positive spot %.4f for %s", spot, cfg.Underlying)
	}

	pctx := PricingContext{
		Spot:          spot,
		RiskFreeRate:  cfg.RiskFreeRate,
		ValuationDate: valuationDate,
	}

	available, err := b.prov.GetAvailableMaturities(cfg.Underlying, valuationDate)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fetch maturities: %w", err)
	}
	if len(available) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: %s lists no maturities", ErrNoQuotes, cfg.Underlying)
	}

	resolved, err := resolveMaturities(maturities, available, cfg.MatchType)
	if err != nil {
		return nil, nil, nil, err
	}

	logger.Infof(
		"building surface: %s spot=%.2f rate=%.4f maturities=%d",
		cfg.Underlying, spot, cfg.RiskFreeRate, len(resolved),
	)

	var scatter []ScatterPoint
	for _, maturity := range resolved {
		tau := YearFraction(pctx.ValuationDate, maturity)
		if tau <= 0 {
			logger.Debugf("skipping expired maturity %s", maturity.Format("2006-01-02"))
			continue
		}

		chain, err := b.prov.GetOptionChain(cfg.Underlying, maturity, valuationDate)
		if err != nil {
			logger.Errorf("chain fetch failed for %s: %v", maturity.Format("2006-01-02"), err)
			summary.Skipped++
			continue
		}
		if len(chain) == 0 {
			logger.Debugf("empty chain for %s", maturity.Format("2006-01-02"))
			continue
		}

		points := b.invertChain(&pctx, summary, filter, chain, maturity, tau)
		if len(points) > 0 {
			summary.Maturities++
			scatter = append(scatter, points...)
		}
	}

	nodes := interpolateGrid(scatter, pctx.ValuationDate, cfg.StrikeStep, cfg.DateStepDays)

	summary.GridNodes = len(nodes)
	summary.Elapsed = time.Since(start)

	logger.Infof(
		"surface built: quotes=%d solved=%d no_solution=%d skipped=%d nodes=%d elapsed=%s",
		summary.Quotes, summary.Solved, summary.NoSolution, summary.Skipped,
		summary.GridNodes, summary.Elapsed,
	)

	surf := &Surface{
		Underlying:    cfg.Underlying,
		ValuationDate: pctx.ValuationDate,
		Spot:          pctx.Spot,
		Nodes:         nodes,
	}
	return surf, scatter, summary, nil
}

// invertChain applies the selection rule and the quote filter to one
// maturity's chain and inverts each selected quote.
func (b *Builder) invertChain(
	pctx *PricingContext,
	summary *BuildSummary,
	filter *govaluate.EvaluableExpression,
	chain []data.OptionQuote,
	maturity time.Time,
	tau float64,
) []ScatterPoint {

	var points []ScatterPoint
	for _, q := range chain {
		if err := q.Validate(); err != nil {
			logger.Debugf("skipping malformed quote: %v", err)
			summary.Skipped++
			continue
		}

		if !selectQuote(q, pctx.Spot) {
			continue
		}

		relStrike := (q.Strike - pctx.Spot) / pctx.Spot * 100.0

		if filter != nil {
			keep, err := evalFilter(filter, q, relStrike, tau)
			if err != nil {
				logger.Debugf("quote filter error at strike %.2f: %v", q.Strike, err)
				summary.Skipped++
				continue
			}
			if !keep {
				continue
			}
		}

		summary.Quotes++
		res := pricing.ImpliedVolWith(b.pricer, q.OptionType, q.MarketPrice, pctx.Spot, q.Strike, tau, pctx.RiskFreeRate)
		if res.OK {
			summary.Solved++
			logger.Tracef(
				"solved strike=%.2f rel=%.2f tau=%.4f iv=%.4f iters=%d",
				q.Strike, relStrike, tau, res.Vol, res.Iterations,
			)
		} else {
			summary.NoSolution++
			logger.Debugf(
				"no implied vol for %s strike=%.2f price=%.4f tau=%.4f",
				q.OptionType, q.Strike, q.MarketPrice, tau,
			)
		}

		points = append(points, ScatterPoint{
			Date:           pctx.ValuationDate,
			Maturity:       maturity,
			MaturityLabel:  maturity.Format("2006-01-02"),
			TimeToMaturity: tau,
			Strike:         q.Strike,
			RelativeStrike: relStrike,
			OptionType:     q.OptionType,
			ImpliedVol:     res.Vol, // NaN when no solution
		})
	}
	return points
}

// selectQuote implements the moneyness-consistent selection rule: calls
// at or above spot, puts below. Out-of-the-money options carry tighter
// quotes, which keeps stale in-the-money prices out of the inversion.
func selectQuote(q data.OptionQuote, spot float64) bool {
	if q.Strike >= spot {
		return q.OptionType == pricing.Call
	}
	return q.OptionType == pricing.Put
}

// evalFilter evaluates the configured quote filter expression for one
// quote. The expression sees strike, relStrike, tau, price, and
// optionType, and must yield a boolean.
func evalFilter(filter *govaluate.EvaluableExpression, q data.OptionQuote, relStrike, tau float64) (bool, error) {
	params := map[string]interface{}{
		"strike":     q.Strike,
		"relStrike":  relStrike,
		"tau":        tau,
		"price":      q.MarketPrice,
		"optionType": string(q.OptionType),
	}

	out, err := filter.Evaluate(params)
	if err != nil {
		return false, err
	}
	keep, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("filter did not evaluate to a boolean (got %T)", out)
	}
	return keep, nil
}

// resolveMaturities matches each requested maturity against the available
// set. nil requested means all available maturities. With MatchExact a
// miss aborts; with the looser modes unmatched requests resolve to the
// nearest listed date and duplicates collapse.
func resolveMaturities(requested, available []time.Time, mode data.DateMatchType) ([]time.Time, error) {
	if len(requested) == 0 {
		out := make([]time.Time, len(available))
		copy(out, available)
		return out, nil
	}

	seen := map[string]bool{}
	var out []time.Time
	for _, req := range requested {
		m := data.MatchMaturity(req, available, mode)
		if m.IsZero() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidMaturity, req.Format("2006-01-02"))
		}
		key := m.Format("2006-01-02")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out, nil
}

// usableScatter drops scatter entries whose inversion failed.
func usableScatter(scatter []ScatterPoint) []ScatterPoint {
	out := make([]ScatterPoint, 0, len(scatter))
	for _, p := range scatter {
		if !math.IsNaN(p.ImpliedVol) {
			out = append(out, p)
		}
	}
	return out
}
