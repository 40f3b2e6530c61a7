// Package data provides market data provider implementations.
//
// This file contains a Yahoo Finance backed ChainProvider that retrieves
// spot prices, dividend schedules, option expiries, and full option chains
// via the public query endpoints.
//
// Design notes:
//   - Uses raw HTTP calls against the v8 chart and v7 options endpoints
//   - Supports rate-limiting retries and fallback providers
//   - Logging is intentionally verbose at Debug/Trace levels for diagnostics
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"time"

	"github.com/mcravi8/OptionsParityChecker-yfinance/internal/logger"
)

// riskFreeSymbol is the 13-week treasury bill index. Yahoo quotes it in
// percent, so the annualized rate is the last close divided by 100.
const riskFreeSymbol = "^IRX"

// userAgent mirrors a desktop browser. The query endpoints reject requests
// that identify as generic HTTP clients.
const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// yahooChainProvider implements the ChainProvider interface against the
// Yahoo Finance query API.
type yahooChainProvider struct {
	// Client is the HTTP client used to make API requests.
	Client *http.Client

	// BaseURL is the root endpoint (e.g. https://query2.finance.yahoo.com).
	BaseURL string

	// secondary is an optional fallback provider.
	secondary ChainProvider
}

// yahooChartResult is one result entry of the v8 chart payload. Close
// arrays carry nulls on non-trading timestamps, so the values decode as
// pointers.
type yahooChartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
	Events struct {
		Dividends map[string]struct {
			Amount float64 `json:"amount"`
			Date   int64   `json:"date"`
		} `json:"dividends"`
	} `json:"events"`
}

// yahooChartResp models the v8 chart endpoint envelope.
type yahooChartResp struct {
	Chart struct {
		Result []yahooChartResult `json:"result"`
		Error  *yahooAPIError     `json:"error"`
	} `json:"chart"`
}

// yahooOptionQuote is a single contract row of the v7 options payload.
type yahooOptionQuote struct {
	Strike       float64 `json:"strike"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	LastPrice    float64 `json:"lastPrice"`
	Volume       int64   `json:"volume"`
	OpenInterest int64   `json:"openInterest"`
	Expiration   int64   `json:"expiration"`
}

// yahooOptionChain is the calls/puts block for one expiration.
type yahooOptionChain struct {
	ExpirationDate int64              `json:"expirationDate"`
	Calls          []yahooOptionQuote `json:"calls"`
	Puts           []yahooOptionQuote `json:"puts"`
}

// yahooOptionsResult is one result entry of the v7 options payload.
type yahooOptionsResult struct {
	UnderlyingSymbol string             `json:"underlyingSymbol"`
	ExpirationDates  []int64            `json:"expirationDates"`
	Options          []yahooOptionChain `json:"options"`
}

// yahooOptionsResp models the v7 options endpoint envelope.
type yahooOptionsResp struct {
	OptionChain struct {
		Result []yahooOptionsResult `json:"result"`
		Error  *yahooAPIError       `json:"error"`
	} `json:"optionChain"`
}

type yahooAPIError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// NewYahooProvider constructs a Yahoo Finance backed chain provider.
//
// It initializes an HTTP client with sensible defaults for:
//   - timeouts
//   - connection pooling
//   - HTTP/2 support
//   - gzip decompression
//
// The base URL can be overridden through the YAHOO_BASE_URL environment
// variable, which the tests use to point at a local fake server.
func NewYahooProvider() *yahooChainProvider {
	logger.Infof("initializing Yahoo Finance data provider")

	baseURL := os.Getenv("YAHOO_BASE_URL")
	if baseURL == "" {
		baseURL = "https://query2.finance.yahoo.com"
	}

	return &yahooChainProvider{
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
		BaseURL: baseURL,
	}
}

// Secondary returns the configured secondary ChainProvider, if any.
func (yahooProv *yahooChainProvider) Secondary() ChainProvider {
	return yahooProv.secondary
}

// FetchSpot returns the latest daily close for the ticker.
//
// It pulls a five day, one day interval chart and takes the last non-null
// close, the same reference price a trailing history lookup would yield.
func (yahooProv *yahooChainProvider) FetchSpot(ctx context.Context, ticker string) (float64, error) {
	logger.Debugf("fetching spot for %s", ticker)

	chart, err := yahooProv.fetchChart(ctx, ticker, map[string]string{
		"range":    "5d",
		"interval": "1d",
	})
	if err != nil {
		return 0, err
	}

	closes := chart.Indicators.Quote
	if len(closes) == 0 {
		return 0, fmt.Errorf("%w: no quote data for %s", ErrDataUnavailable, ticker)
	}

	spot := 0.0
	for _, c := range closes[0].Close {
		if c != nil && *c > 0 {
			spot = *c
		}
	}
	if spot <= 0 {
		return 0, fmt.Errorf("%w: no price history for %s", ErrDataUnavailable, ticker)
	}

	logger.Tracef("spot resolved %s=%.4f", ticker, spot)
	return spot, nil
}

// FetchDividends returns the trailing year of cash dividends plus any
// announced future payments, sorted by ex-date. An underlying that pays
// nothing yields an empty stream, not an error.
func (yahooProv *yahooChainProvider) FetchDividends(ctx context.Context, ticker string) (DividendStream, error) {
	logger.Debugf("fetching dividends for %s", ticker)

	chart, err := yahooProv.fetchChart(ctx, ticker, map[string]string{
		"range":    "1y",
		"interval": "1d",
		"events":   "div",
	})
	if err != nil {
		return DividendStream{}, err
	}

	var payments []DividendPayment
	for _, d := range chart.Events.Dividends {
		if d.Amount <= 0 {
			continue
		}
		payments = append(payments, DividendPayment{
			ExDate: time.Unix(d.Date, 0).UTC(),
			Amount: d.Amount,
		})
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].ExDate.Before(payments[j].ExDate) })

	logger.Tracef("received %d dividend payments for %s", len(payments), ticker)
	return DividendStream{Payments: payments}, nil
}

// FetchRiskFreeRate returns the annualized 13-week treasury yield from the
// ^IRX index, as a decimal.
func (yahooProv *yahooChainProvider) FetchRiskFreeRate(ctx context.Context) (float64, error) {
	logger.Debugf("fetching risk-free rate from %s", riskFreeSymbol)

	last, err := yahooProv.FetchSpot(ctx, riskFreeSymbol)
	if err != nil {
		return 0, fmt.Errorf("risk-free rate: %w", err)
	}

	rate := last / 100.0
	logger.Tracef("risk-free rate resolved %.4f", rate)
	return rate, nil
}

// ListExpiries returns the listed expirations whose whole-day distance from
// asOf falls inside [minDTE, maxDTE], sorted ascending.
func (yahooProv *yahooChainProvider) ListExpiries(ctx context.Context, ticker string, asOf time.Time, minDTE, maxDTE int) ([]time.Time, error) {
	logger.Infof(
		"resolving expiries for %s in window [%d, %d] days",
		ticker, minDTE, maxDTE,
	)

	optResult, err := yahooProv.fetchOptions(ctx, ticker, 0)
	if err != nil {
		return nil, err
	}

	var kept []time.Time
	for _, epoch := range optResult.ExpirationDates {
		expiry := time.Unix(epoch, 0).UTC()
		dte := int(expiry.Sub(asOf).Hours() / 24)
		if dte >= minDTE && dte <= maxDTE {
			kept = append(kept, expiry)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Before(kept[j]) })

	logger.Infof("resolved %d expiries for %s", len(kept), ticker)
	return kept, nil
}

// FetchChain returns one strike row per strike quoted on both sides of the
// market for the given expiry. Strikes listed only as a call or only as a
// put cannot enter a parity comparison and are dropped here.
func (yahooProv *yahooChainProvider) FetchChain(ctx context.Context, ticker string, expiry, asOf time.Time) ([]ChainRecord, error) {
	logger.Debugf(
		"fetching chain %s expiry=%s",
		ticker, expiry.Format("2006-01-02"),
	)

	optResult, err := yahooProv.fetchOptions(ctx, ticker, expiry.Unix())
	if err != nil {
		return nil, err
	}
	if len(optResult.Options) == 0 {
		return nil, fmt.Errorf("%w: no chain for %s %s",
			ErrDataUnavailable, ticker, expiry.Format("2006-01-02"))
	}

	chain := optResult.Options[0]
	days := DaysUntil(asOf, expiry)

	calls := make(map[float64]*Quote, len(chain.Calls))
	for _, c := range chain.Calls {
		calls[c.Strike] = &Quote{Bid: c.Bid, Ask: c.Ask}
	}

	var out []ChainRecord
	for _, p := range chain.Puts {
		call, ok := calls[p.Strike]
		if !ok {
			continue
		}
		out = append(out, ChainRecord{
			Strike:       p.Strike,
			Expiry:       expiry,
			DaysToExpiry: days,
			Call:         call,
			Put:          &Quote{Bid: p.Bid, Ask: p.Ask},
		})
	}

	SortChain(out)
	logger.Tracef("chain %s %s: %d paired strikes", ticker, expiry.Format("2006-01-02"), len(out))
	return out, nil
}

// fetchChart calls the v8 chart endpoint and returns the first result.
func (yahooProv *yahooChainProvider) fetchChart(ctx context.Context, ticker string, params map[string]string) (*yahooChartResult, error) {
	reqURL, err := url.Parse(yahooProv.BaseURL + "/v8/finance/chart/" + url.PathEscape(ticker))
	if err != nil {
		return nil, err
	}

	query := reqURL.Query()
	for k, v := range params {
		query.Set(k, v)
	}
	reqURL.RawQuery = query.Encode()

	body, err := yahooProv.getJSON(ctx, reqURL.String())
	if err != nil {
		return nil, err
	}

	var chartResp yahooChartResp
	if err := json.Unmarshal(body, &chartResp); err != nil {
		return nil, fmt.Errorf("decode chart: %w", err)
	}

	if chartResp.Chart.Error != nil {
		logger.Errorf(
			"chart API error for %s: %s %s",
			ticker, chartResp.Chart.Error.Code, chartResp.Chart.Error.Description,
		)
		return nil, fmt.Errorf("%w: %s: %s", ErrDataUnavailable, ticker, chartResp.Chart.Error.Description)
	}
	if len(chartResp.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: empty chart for %s", ErrDataUnavailable, ticker)
	}

	return &chartResp.Chart.Result[0], nil
}

// fetchOptions calls the v7 options endpoint. A zero date epoch returns the
// default chain with the complete expirationDates list.
func (yahooProv *yahooChainProvider) fetchOptions(ctx context.Context, ticker string, dateEpoch int64) (*yahooOptionsResult, error) {
	reqURL, err := url.Parse(yahooProv.BaseURL + "/v7/finance/options/" + url.PathEscape(ticker))
	if err != nil {
		return nil, err
	}

	if dateEpoch > 0 {
		query := reqURL.Query()
		query.Set("date", fmt.Sprintf("%d", dateEpoch))
		reqURL.RawQuery = query.Encode()
	}

	body, err := yahooProv.getJSON(ctx, reqURL.String())
	if err != nil {
		return nil, err
	}

	var optResp yahooOptionsResp
	if err := json.Unmarshal(body, &optResp); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}

	if optResp.OptionChain.Error != nil {
		logger.Errorf(
			"options API error for %s: %s %s",
			ticker, optResp.OptionChain.Error.Code, optResp.OptionChain.Error.Description,
		)
		return nil, fmt.Errorf("%w: %s: %s", ErrDataUnavailable, ticker, optResp.OptionChain.Error.Description)
	}
	if len(optResp.OptionChain.Result) == 0 {
		return nil, fmt.Errorf("%w: empty option chain for %s", ErrDataUnavailable, ticker)
	}

	return &optResp.OptionChain.Result[0], nil
}

// getJSON executes a GET request and returns the response body.
func (yahooProv *yahooChainProvider) getJSON(ctx context.Context, reqURL string) ([]byte, error) {
	logger.Tracef("request URL: %s", reqURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := yahooProv.processGetRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty response body", ErrDataUnavailable)
	}

	if resp.StatusCode != http.StatusOK {
		var dbg struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &dbg)

		logger.Errorf(
			"yahoo API error status=%d message=%s",
			resp.StatusCode, dbg.Message,
		)
		return nil, fmt.Errorf(
			"%w: status %d: %s",
			ErrDataUnavailable, resp.StatusCode, dbg.Message,
		)
	}

	return body, nil
}

// processGetRequest executes an HTTP GET request with rate-limit handling.
//
// Behavior:
//   - Retries on HTTP 429 until the request context is done
//   - Sleeps until the next minute boundary between attempts
//   - Returns immediately on success (<400)
//   - Hands other status codes back for the caller to inspect
func (yahooProv *yahooChainProvider) processGetRequest(req *http.Request) (*http.Response, error) {
	for {
		resp, err := yahooProv.Client.Do(req)
		if err != nil {
			return nil, err
		}

		// Success
		if resp.StatusCode < 400 {
			return resp, nil
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
			select {
			case <-time.After(sleepDuration):
			case <-req.Context().Done():
				return nil, req.Context().Err()
			}
			continue
		}

		return resp, nil
	}
}
