package data

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/iv-surface/internal/pricing"
)

// newTestProvider points a massive provider at a local test server.
func newTestProvider(srv *httptest.Server) *massiveDataProvider {
	prov := NewMassiveDataProvider("test-key")
	prov.BaseURL = srv.URL
	prov.Client = srv.Client()
	return prov
}

func TestMassiveGetOptionChainPaginated(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/snapshot/options/SPY", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2026-09-18", r.URL.Query().Get("expiration_date"))
		fmt.Fprintf(w, `{
			"status": "OK",
			"results": [
				{
					"details": {"contract_type": "call", "expiration_date": "2026-09-18", "strike_price": 105, "ticker": "O:SPY260918C00105000"},
					"last_quote": {"bid": 3.40, "ask": 3.60},
					"last_trade": {"price": 3.45},
					"day": {"close": 3.55}
				}
			],
			"next_url": "%s/page2"
		}`, srv.URL)
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"status": "OK",
			"results": [
				{
					"details": {"contract_type": "put", "expiration_date": "2026-09-18", "strike_price": 95, "ticker": "O:SPY260918P00095000"},
					"last_quote": {"bid": 0, "ask": 0},
					"last_trade": {"price": 2.80},
					"day": {"close": 2.75}
				},
				{
					"details": {"contract_type": "put", "expiration_date": "2026-09-18", "strike_price": 50, "ticker": "O:SPY260918P00050000"},
					"last_quote": {"bid": 0, "ask": 0},
					"last_trade": {"price": 0},
					"day": {"close": 0}
				}
			]
		}`)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	prov := newTestProvider(srv)
	chain, err := prov.GetOptionChain("SPY", d(2026, 9, 18), d(2026, 8, 3))
	require.NoError(t, err)

	// two usable quotes; the priceless contract is skipped
	require.Len(t, chain, 2)

	assert.Equal(t, pricing.Call, chain[0].OptionType)
	assert.InDelta(t, 3.50, chain[0].MarketPrice, 1e-9, "quote mid preferred")

	assert.Equal(t, pricing.Put, chain[1].OptionType)
	assert.InDelta(t, 2.80, chain[1].MarketPrice, 1e-9, "last trade when quote is one-sided")
}

func TestMassiveGetAvailableMaturities(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/reference/options/contracts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SPY", r.URL.Query().Get("underlying_ticker"))
		fmt.Fprint(w, `{
			"status": "OK",
			"results": [
				{"contract_type": "call", "expiration_date": "2026-10-16", "strike_price": 100, "ticker": "a"},
				{"contract_type": "put", "expiration_date": "2026-09-18", "strike_price": 100, "ticker": "b"},
				{"contract_type": "call", "expiration_date": "2026-09-18", "strike_price": 105, "ticker": "c"},
				{"contract_type": "call", "expiration_date": "not-a-date", "strike_price": 105, "ticker": "d"}
			]
		}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	prov := newTestProvider(srv)
	mats, err := prov.GetAvailableMaturities("SPY", d(2026, 8, 3))
	require.NoError(t, err)

	// deduped, sorted, malformed date skipped
	require.Len(t, mats, 2)
	assert.Equal(t, d(2026, 9, 18), mats[0])
	assert.Equal(t, d(2026, 10, 16), mats[1])
}

func TestMassiveGetDailyBars(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/aggs/ticker/SPY/range/1/day/2026-08-01/2026-08-03", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"ticker": "SPY",
			"status": "OK",
			"results": [
				{"o": 99.0, "h": 101.0, "l": 98.5, "c": 100.0, "v": 10000, "n": 120, "t": 1785542400000},
				{"o": 100.0, "h": 102.0, "l": 99.5, "c": 101.5, "v": 12000, "n": 150, "t": 1785628800000}
			]
		}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	prov := newTestProvider(srv)
	bars, err := prov.GetDailyBars("SPY", d(2026, 8, 1), d(2026, 8, 3))
	require.NoError(t, err)

	require.Len(t, bars, 2)
	assert.Equal(t, 100.0, bars[0].Close)
	assert.Equal(t, int64(150), bars[1].Count)
}

// An empty bar window must fall through to the secondary provider just
// like a failed fetch would.
func TestMassiveGetSpotEmptyBarsFallsBack(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ticker": "SPY", "status": "OK", "results": []}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	secondary := NewSyntheticProvider(7)
	want, err := secondary.GetSpot("SPY", d(2026, 8, 3))
	require.NoError(t, err)

	prov := newTestProvider(srv)
	prov.secondary = secondary
	got, err := prov.GetSpot("SPY", d(2026, 8, 3))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// without a secondary the empty window is an error
	bare := newTestProvider(srv)
	_, err = bare.GetSpot("SPY", d(2026, 8, 3))
	assert.Error(t, err)
}

func TestMassiveAPIErrorSurfaced(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message": "unknown API key"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	prov := newTestProvider(srv)
	_, err := prov.GetAvailableMaturities("SPY", d(2026, 8, 3))
	assert.Error(t, err)
}
