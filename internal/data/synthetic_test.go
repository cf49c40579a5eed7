package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/iv-surface/internal/pricing"
)

func TestSyntheticProviderDeterministic(t *testing.T) {
	asOf := d(2026, 8, 3)

	a := NewSyntheticProvider(7)
	b := NewSyntheticProvider(7)

	spotA, err := a.GetSpot("SPY", asOf)
	require.NoError(t, err)
	spotB, err := b.GetSpot("SPY", asOf)
	require.NoError(t, err)
	assert.Equal(t, spotA, spotB)

	mats, err := a.GetAvailableMaturities("SPY", asOf)
	require.NoError(t, err)
	require.NotEmpty(t, mats)

	chainA, err := a.GetOptionChain("SPY", mats[2], asOf)
	require.NoError(t, err)
	chainB, err := b.GetOptionChain("SPY", mats[2], asOf)
	require.NoError(t, err)
	assert.Equal(t, chainA, chainB)
}

func TestSyntheticChainWellFormed(t *testing.T) {
	asOf := d(2026, 8, 3)
	prov := NewSyntheticProvider(7)

	mats, err := prov.GetAvailableMaturities("SPY", asOf)
	require.NoError(t, err)

	chain, err := prov.GetOptionChain("SPY", mats[3], asOf)
	require.NoError(t, err)
	require.NotEmpty(t, chain)

	calls, puts := 0, 0
	for _, q := range chain {
		require.NoError(t, q.Validate())
		if q.OptionType == pricing.Call {
			calls++
		} else {
			puts++
		}
	}
	assert.Equal(t, calls, puts, "one call and one put per strike")
}

// Inverting a synthetic quote with the same rate must recover the
// generator smile.
func TestSyntheticChainRoundTrip(t *testing.T) {
	asOf := d(2026, 8, 3)
	prov := NewSyntheticProvider(7)

	spot, err := prov.GetSpot("SPY", asOf)
	require.NoError(t, err)

	maturity := asOf.AddDate(0, 0, 91)
	tau := maturity.Sub(asOf).Hours() / 24.0 / 365.0

	chain, err := prov.GetOptionChain("SPY", maturity, asOf)
	require.NoError(t, err)

	for _, q := range chain {
		want := SmileVol(q.Strike/spot, tau)
		res := pricing.ImpliedVol(q.OptionType, q.MarketPrice, spot, q.Strike, tau, SyntheticRate)
		if !res.OK {
			// Far OTM wings can price below solver resolution; those
			// quotes legitimately have no recoverable vol.
			continue
		}
		assert.InDelta(t, want, res.Vol, 1e-5, "strike %.2f %s", q.Strike, q.OptionType)
	}
}

func TestSyntheticExpiredMaturityEmpty(t *testing.T) {
	asOf := d(2026, 8, 3)
	prov := NewSyntheticProvider(7)

	chain, err := prov.GetOptionChain("SPY", asOf.AddDate(0, 0, -1), asOf)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestSyntheticBarsWeekdaysOnly(t *testing.T) {
	prov := NewSyntheticProvider(7)

	bars, err := prov.GetDailyBars("SPY", d(2026, 8, 3), d(2026, 8, 14))
	require.NoError(t, err)
	assert.Len(t, bars, 10)
	for _, b := range bars {
		assert.NotEqual(t, time.Saturday, b.Date.Weekday())
		assert.NotEqual(t, time.Sunday, b.Date.Weekday())
	}
}
