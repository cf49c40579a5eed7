// Package data provides market data provider implementations.
//
// This file contains a Massive-backed Provider implementation that retrieves
// spot prices, option maturities, and option chain snapshots via Massive
// HTTP APIs.
//
// Design notes:
//   - Uses raw HTTP calls instead of an SDK
//   - Supports pagination, rate-limiting retries, and fallback providers
//   - Logging is intentionally verbose at Debug/Trace levels for diagnostics
package data

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/contactkeval/iv-surface/internal/logger"
	"github.com/contactkeval/iv-surface/internal/pricing"
)

// massiveDataProvider implements the Provider interface using Massive APIs.
type massiveDataProvider struct {
	// APIKey used for authenticating requests with Massive.
	APIKey string

	// Client is the HTTP client used to make API requests.
	Client *http.Client

	// BaseURL is the root endpoint for Massive APIs
	// (e.g., https://api.massive.com).
	BaseURL string

	// secondary is an optional fallback provider.
	secondary Provider
}

// massiveContract represents a single option contract
// returned by Massive's contracts reference endpoint.
type massiveContract struct {
	CFI               string  `json:"cfi"`
	ContractType      string  `json:"contract_type"`
	ExerciseStyle     string  `json:"exercise_style"`
	ExpiryDate        string  `json:"expiration_date"`
	PrimaryExchange   string  `json:"primary_exchange"`
	SharesPerContract int     `json:"shares_per_contract"`
	StrikePrice       float64 `json:"strike_price"`
	Ticker            string  `json:"ticker"`
	UnderlyingTicker  string  `json:"underlying_ticker"`
}

// massiveContractsResp models the paginated response
// returned by Massive's option contracts API.
type massiveContractsResp struct {
	Results   []massiveContract `json:"results"`
	Status    string            `json:"status"`
	RequestID string            `json:"request_id"`
	NextURL   string            `json:"next_url"`
}

// massiveChainEntry represents one contract row of an option chain
// snapshot, including the quote/trade data needed to derive a usable
// market price.
type massiveChainEntry struct {
	Details struct {
		ContractType string  `json:"contract_type"`
		ExpiryDate   string  `json:"expiration_date"`
		StrikePrice  float64 `json:"strike_price"`
		Ticker       string  `json:"ticker"`
	} `json:"details"`
	LastQuote struct {
		Bid float64 `json:"bid"`
		Ask float64 `json:"ask"`
	} `json:"last_quote"`
	LastTrade struct {
		Price float64 `json:"price"`
	} `json:"last_trade"`
	Day struct {
		Close float64 `json:"close"`
	} `json:"day"`
}

// massiveChainResp models the paginated option chain snapshot response.
type massiveChainResp struct {
	Results   []massiveChainEntry `json:"results"`
	Status    string              `json:"status"`
	RequestID string              `json:"request_id"`
	NextURL   string              `json:"next_url"`
}

// NewMassiveDataProvider constructs a Massive-backed data provider.
//
// It initializes an HTTP client with sensible defaults for:
//   - timeouts
//   - connection pooling
//   - HTTP/2 support
//   - gzip decompression
//
// Parameters:
//   - apiKey: Massive API key for authentication
//
// Returns:
//   - *massiveDataProvider: initialized provider instance
func NewMassiveDataProvider(apiKey string) *massiveDataProvider {
	logger.Infof("initializing Massive data provider")

	return &massiveDataProvider{
		APIKey: apiKey,
		Client: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				DisableCompression:    false, // must be false to enable gzip auto-decompression
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		BaseURL: "https://api.massive.com",
	}
}

// Secondary returns the configured secondary Provider, if any.
func (massiveDataProv *massiveDataProvider) Secondary() Provider {
	return massiveDataProv.secondary
}

// GetSpot returns a spot snapshot for the underlying: the most recent
// daily close at or before asOf.
//
// Parameters:
//   - underlying: underlying ticker symbol
//   - asOf: valuation date
//
// Returns:
//   - float64: spot price
//   - error: if no bars are available in the lookback window
func (massiveDataProv *massiveDataProvider) GetSpot(
	underlying string,
	asOf time.Time,
) (float64, error) {

	logger.Debugf("spot request: %s asOf=%s", underlying, asOf.Format("2006-01-02"))

	bars, err := massiveDataProv.GetDailyBars(underlying, asOf.AddDate(0, 0, -14), asOf)
	if err == nil && len(bars) == 0 {
		// empty result is as useless as a failed fetch
		err = fmt.Errorf("no spot bars for %s before %s", underlying, asOf.Format("2006-01-02"))
	}
	if err != nil {
		if massiveDataProv.secondary != nil {
			logger.Tracef("delegating spot lookup to secondary provider")
			return massiveDataProv.secondary.GetSpot(underlying, asOf)
		}
		return 0, fmt.Errorf("fetch spot bars: %w", err)
	}

	spot := bars[len(bars)-1].Close
	logger.Tracef("spot resolved %s=%.2f", underlying, spot)
	return spot, nil
}

// GetAvailableMaturities returns the sorted, unique option expiration
// dates listed for the underlying as of the given date.
//
// Parameters:
//   - underlying: underlying ticker symbol
//   - asOf: listing reference date
//
// Returns:
//   - []time.Time: sorted unique expiration dates
//   - error: if request or decoding fails
func (massiveDataProv *massiveDataProvider) GetAvailableMaturities(
	underlying string,
	asOf time.Time,
) ([]time.Time, error) {

	logger.Tracef(
		"fetching maturities: %s asOf=%s",
		underlying,
		asOf.Format("2006-01-02"),
	)

	// Build base URL
	url, err := url.Parse(massiveDataProv.BaseURL + "/v3/reference/options/contracts")
	if err != nil {
		return nil, err
	}

	// Query parameters
	query := url.Query()
	query.Set("underlying_ticker", underlying)
	query.Set("as_of", asOf.Format("2006-01-02"))
	query.Set("expiration_date.gte", asOf.Format("2006-01-02"))
	query.Set("limit", "1000")
	query.Set("apiKey", massiveDataProv.APIKey)

	url.RawQuery = query.Encode()
	reqURL := url.String()

	expiryMap := map[string]time.Time{}

	// Handle pagination
	for reqURL != "" {
		logger.Debugf("contracts request URL: %s", reqURL)

		var massiveResp massiveContractsResp
		if err := massiveDataProv.getJSON(reqURL, &massiveResp); err != nil {
			return nil, err
		}

		logger.Tracef("received %d contracts", len(massiveResp.Results))

		for _, result := range massiveResp.Results {
			t, err := time.Parse("2006-01-02", result.ExpiryDate)
			if err != nil {
				continue // skip malformed expiry dates
			}
			expiryMap[result.ExpiryDate] = t
		}

		reqURL = massiveResp.NextURL
	}

	expiries := make([]time.Time, 0, len(expiryMap))
	for _, dt := range expiryMap {
		expiries = append(expiries, dt)
	}

	sort.Slice(expiries, func(i, j int) bool {
		return expiries[i].Before(expiries[j])
	})

	logger.Infof("resolved %d unique expiries for %s", len(expiries), underlying)
	return expiries, nil
}

// GetOptionChain retrieves the full option chain snapshot for one
// maturity and maps it to OptionQuote records.
//
// Price preference per contract: quote mid when both sides are present,
// otherwise last trade, otherwise daily close. Contracts with no usable
// price are skipped.
//
// Parameters:
//   - underlying: underlying ticker symbol
//   - maturity: option expiration date
//   - asOf: valuation date (unused by the snapshot endpoint, kept for
//     interface symmetry with historical providers)
//
// Returns:
//   - []OptionQuote: chain rows with usable prices
//   - error: if request or decoding fails
func (massiveDataProv *massiveDataProvider) GetOptionChain(
	underlying string,
	maturity, asOf time.Time,
) ([]OptionQuote, error) {

	logger.Debugf(
		"chain request: %s expiry=%s",
		underlying,
		maturity.Format("2006-01-02"),
	)

	url, err := url.Parse(fmt.Sprintf("%s/v3/snapshot/options/%s", massiveDataProv.BaseURL, underlying))
	if err != nil {
		return nil, err
	}

	query := url.Query()
	query.Set("expiration_date", maturity.Format("2006-01-02"))
	query.Set("limit", "250")
	query.Set("apiKey", massiveDataProv.APIKey)

	url.RawQuery = query.Encode()
	reqURL := url.String()

	out := []OptionQuote{}

	for reqURL != "" {
		logger.Tracef("chain request URL: %s", reqURL)

		var chainResp massiveChainResp
		if err := massiveDataProv.getJSON(reqURL, &chainResp); err != nil {
			return nil, err
		}

		for _, entry := range chainResp.Results {
			optType, err := pricing.ParseOptionType(entry.Details.ContractType)
			if err != nil {
				logger.Tracef("skipping contract %s: %v", entry.Details.Ticker, err)
				continue
			}

			expiry, err := time.Parse("2006-01-02", entry.Details.ExpiryDate)
			if err != nil {
				continue // skip malformed expiry dates
			}

			price := 0.0
			switch {
			case entry.LastQuote.Bid > 0 && entry.LastQuote.Ask > 0:
				price = (entry.LastQuote.Bid + entry.LastQuote.Ask) / 2.0
			case entry.LastTrade.Price > 0:
				price = entry.LastTrade.Price
			case entry.Day.Close > 0:
				price = entry.Day.Close
			default:
				logger.Tracef("no usable price for %s", entry.Details.Ticker)
				continue
			}

			out = append(out, OptionQuote{
				Strike:       entry.Details.StrikePrice,
				OptionType:   optType,
				MarketPrice:  price,
				MaturityDate: expiry,
			})
		}

		reqURL = chainResp.NextURL
	}

	logger.Debugf("chain resolved: %d quotes", len(out))
	return out, nil
}

// GetDailyBars retrieves daily OHLCV bars for the given symbol and range.
//
// Parameters:
//   - underlying: ticker symbol
//   - fromDate: start date
//   - toDate: end date
//
// Returns:
//   - []Bar: time-ordered bars
//   - error: if retrieval or decoding fails
func (massiveDataProv *massiveDataProvider) GetDailyBars(
	underlying string,
	fromDate, toDate time.Time,
) ([]Bar, error) {

	maxLimit := 50000

	logger.Debugf(
		"fetching bars: %s from=%s to=%s",
		underlying,
		fromDate.Format("2006-01-02"),
		toDate.Format("2006-01-02"),
	)

	url := fmt.Sprintf(
		"%s/v2/aggs/ticker/%s/range/1/day/%s/%s?adjusted=true&sort=asc&limit=%d&apiKey=%s",
		massiveDataProv.BaseURL,
		underlying,
		fromDate.Format("2006-01-02"),
		toDate.Format("2006-01-02"),
		maxLimit,
		massiveDataProv.APIKey,
	)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		logger.Errorf("bars request errored=%v", err)
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("x-api-key", massiveDataProv.APIKey)

	resp, err := massiveDataProv.processGetRequest(req)
	if err != nil {
		logger.Errorf("bars request failed")
		return nil, fmt.Errorf("massive api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf(
			"massive daily bars status=%d body=%s",
			resp.StatusCode,
			string(bodyBytes),
		)
	}

	// Massive/POLYGON style response model
	var body struct {
		Ticker   string `json:"ticker"`
		Adjusted bool   `json:"adjusted"`
		Results  []struct {
			Open      float64 `json:"o"`
			Close     float64 `json:"c"`
			High      float64 `json:"h"`
			Low       float64 `json:"l"`
			VWAP      float64 `json:"vw"` // volume-weighted average price
			Volume    float64 `json:"v"`  // trading volume of the symbol in the given time period
			Trades    int64   `json:"n"`  // number of transactions in the aggregate window
			Timestamp int64   `json:"t"`  // epoch millis
		} `json:"results"`
		Status string `json:"status"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("parsing massive response: %w", err)
	}

	logger.Tracef("bars received: %d records", len(body.Results))

	out := make([]Bar, 0, len(body.Results))
	for _, r := range body.Results {
		out = append(out, Bar{
			Date:  time.UnixMilli(r.Timestamp).UTC(),
			Open:  r.Open,
			High:  r.High,
			Low:   r.Low,
			Close: r.Close,
			Vol:   r.Volume,
			Count: r.Trades,
		})
	}

	return out, nil
}

// getJSON executes a GET request against a fully-formed URL and decodes
// the JSON body into dst, reporting Massive API errors with their
// server-side message.
func (massiveDataProv *massiveDataProvider) getJSON(reqURL string, dst any) error {
	req, err := http.NewRequest("GET", reqURL, nil)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+massiveDataProv.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "massive-client/1.0")

	resp, err := massiveDataProv.processGetRequest(req)
	if err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}

	if len(body) == 0 {
		return fmt.Errorf("empty response body")
	}

	if resp.StatusCode != http.StatusOK {
		var dbg struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &dbg)

		logger.Errorf(
			"massive API error status=%d message=%s",
			resp.StatusCode,
			dbg.Message,
		)
		return fmt.Errorf(
			"massive returned status %d: %s",
			resp.StatusCode,
			dbg.Message,
		)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// processGetRequest executes an HTTP GET request with rate-limit handling.
//
// Behavior:
//   - Retries indefinitely on HTTP 429
//   - Sleeps until the next minute boundary
//   - Any other response is returned to the caller, which owns the
//     status check and the body
func (massiveDataProv *massiveDataProvider) processGetRequest(
	req *http.Request,
) (*http.Response, error) {

	for {
		resp, err := massiveDataProv.Client.Do(req)
		if err != nil {
			return nil, err
		}

		// Handle per-minute rate limit (commonly 429)
		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()

			// Sleep until the next minute boundary
			now := time.Now()
			sleepDuration := time.Until(
				now.Truncate(time.Minute).Add(time.Minute),
			)

			logger.Infof("rate limit hit, sleeping for %s", sleepDuration)
			time.Sleep(sleepDuration)
			continue
		}

		return resp, nil
	}
}
