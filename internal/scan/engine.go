package scan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mcravi8/OptionsParityChecker-yfinance/internal/data"
	"github.com/mcravi8/OptionsParityChecker-yfinance/internal/logger"
	"github.com/mcravi8/OptionsParityChecker-yfinance/internal/parity"
	"github.com/mcravi8/OptionsParityChecker-yfinance/internal/pricing"
)

// ErrNoRows means the scan finished without producing a single parity row,
// usually an illiquid ticker or an empty DTE window.
var ErrNoRows = errors.New("no parity rows produced")

const (
	// fallbackRiskFree is used when no override is given and the provider
	// cannot supply a treasury rate.
	fallbackRiskFree = 0.03

	// maxExpiriesPerRun caps auto-selected expiries to keep one run inside
	// the data source's per-minute rate limits.
	maxExpiriesPerRun = 20
)

type Engine struct {
	cfg  *Config
	prov data.ChainProvider
}

// Config struct
type Config struct {
	Ticker           string    `json:"ticker"`                       // e.g. "SPY"
	Expiries         []string  `json:"expiries,omitempty"`           // explicit YYYY-MM-DD expiries, bypasses the DTE window
	MinDTE           int       `json:"min_dte,omitempty"`            // minimum days to expiry (auto mode)
	MaxDTE           int       `json:"max_dte,omitempty"`            // maximum days to expiry (auto mode)
	UseDividends     bool      `json:"use_dividends,omitempty"`      // adjust spot for dividends until expiry
	RFOverride       *float64  `json:"rf_override,omitempty"`        // annual risk-free rate override, e.g. 0.045
	StockSpreadCents float64   `json:"stock_spread_cents,omitempty"` // assumed stock bid-ask spread in cents
	Filter           string    `json:"filter,omitempty"`             // strike predicate, e.g. "MONEYNESS >= 0.8"
	OutDir           string    `json:"out_dir,omitempty"`            // report directory
	Plots            bool      `json:"plots,omitempty"`              // write plot input data
	Verbosity        int       `json:"verbosity,omitempty"`          // 0=errors,1=info,2=debug,3=trace
	AsOf             time.Time `json:"as_of,omitempty"`              // valuation time, zero means now
}

const (
	VerbosityError = iota // 0
	VerbosityInfo         // 1
	VerbosityDebug        // 2
	VerbosityTrace        // 3
)

// SkipCounts tallies the strikes and expiries a run could not use.
type SkipCounts struct {
	MissingQuote int `json:"missing_quote"` // strikes lacking a usable call or put market
	InvalidInput int `json:"invalid_input"` // strikes rejected as malformed (crossed quotes etc.)
	Filtered     int `json:"filtered"`      // strikes excluded by the configured filter
	Expiries     int `json:"expiries"`      // expiries skipped because chain data was unavailable
}

// Result is the full outcome of one scan.
type Result struct {
	Ticker    string                 `json:"ticker"`
	AsOf      time.Time              `json:"as_of"`
	Spot      float64                `json:"spot"`
	Rate      float64                `json:"rate"`
	Rows      []parity.Result        `json:"rows"`
	Summaries []parity.ExpirySummary `json:"summaries"`
	Skipped   SkipCounts             `json:"skipped"`
}

func NewEngine(cfg *Config, prov data.ChainProvider) *Engine {
	return &Engine{cfg: cfg, prov: prov}
}

// Run executes the parity scan
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	cfg := e.cfg
	// fill defaults
	if cfg.MaxDTE == 0 {
		cfg.MaxDTE = 120
	}
	if cfg.OutDir == "" {
		cfg.OutDir = "outputs"
	}
	if cfg.Verbosity < VerbosityError || cfg.Verbosity > VerbosityTrace {
		cfg.Verbosity = VerbosityInfo
	}
	logger.SetVerbosity(cfg.Verbosity)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	ticker := strings.ToUpper(strings.TrimSpace(cfg.Ticker))
	asOf := cfg.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	// spot
	spot, err := e.prov.FetchSpot(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("fetch spot for %s: %w", ticker, err)
	}
	logger.Infof("spot %s = %.4f", ticker, spot)

	// risk-free rate
	rate, err := e.resolveRate(ctx)
	if err != nil {
		return nil, err
	}
	logger.Infof("risk-free rate = %.4f", rate)

	// dividend policy
	policy, err := e.resolveDividendPolicy(ctx, ticker, spot, asOf)
	if err != nil {
		return nil, err
	}

	// expiries
	expiries, err := e.resolveExpiries(ctx, ticker, asOf)
	if err != nil {
		return nil, err
	}
	logger.Infof("%d expiries selected", len(expiries))

	filter, err := parity.NewStrikeFilter(cfg.Filter)
	if err != nil {
		return nil, err
	}

	params := parity.RunParams{
		Spot:             spot,
		Rate:             rate,
		AsOf:             asOf,
		Dividends:        policy,
		StockSpreadCents: cfg.StockSpreadCents,
	}

	var (
		rows    []parity.Result
		skipped SkipCounts
	)

	for _, expiry := range expiries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		recs, err := e.prov.FetchChain(ctx, ticker, expiry, asOf)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			logger.Errorf("chain %s %s unavailable, skipping expiry: %v",
				ticker, expiry.Format("2006-01-02"), err)
			skipped.Expiries++
			continue
		}

		var expiryRows []parity.Result
		for _, rec := range recs {
			keep, err := filter.Keep(rec.Strike, spot, rec.DaysToExpiry)
			if err != nil {
				return nil, err
			}
			if !keep {
				skipped.Filtered++
				continue
			}

			res, err := parity.Compute(rec, params)
			switch {
			case err == nil:
				expiryRows = append(expiryRows, res)
			case errors.Is(err, parity.ErrMissingQuoteSide):
				skipped.MissingQuote++
				logger.Tracef("skipping strike: %v", err)
			case errors.Is(err, parity.ErrInvalidInput):
				skipped.InvalidInput++
				logger.Debugf("skipping strike: %v", err)
			default:
				logger.Errorf("strike %.2f %s: %v", rec.Strike, expiry.Format("2006-01-02"), err)
			}
		}

		logger.Debugf("expiry %s: %d of %d strikes usable",
			expiry.Format("2006-01-02"), len(expiryRows), len(recs))
		logATMVol(expiryRows, spot, rate, asOf)

		rows = append(rows, expiryRows...)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoRows, ticker)
	}

	parity.SortResults(rows)

	res := &Result{
		Ticker:    ticker,
		AsOf:      asOf,
		Spot:      spot,
		Rate:      rate,
		Rows:      rows,
		Summaries: parity.Summarize(rows),
		Skipped:   skipped,
	}
	return res, nil
}

func (cfg *Config) validate() error {
	if strings.TrimSpace(cfg.Ticker) == "" {
		return fmt.Errorf("%w: ticker is required", parity.ErrInvalidInput)
	}
	if cfg.MinDTE < 0 {
		return fmt.Errorf("%w: min dte %d", parity.ErrInvalidInput, cfg.MinDTE)
	}
	if cfg.MaxDTE < cfg.MinDTE {
		return fmt.Errorf("%w: dte window [%d, %d]", parity.ErrInvalidInput, cfg.MinDTE, cfg.MaxDTE)
	}
	if cfg.StockSpreadCents < 0 || math.IsNaN(cfg.StockSpreadCents) || math.IsInf(cfg.StockSpreadCents, 0) {
		return fmt.Errorf("%w: stock spread %v cents", parity.ErrInvalidInput, cfg.StockSpreadCents)
	}
	if cfg.RFOverride != nil && (*cfg.RFOverride < 0 || math.IsNaN(*cfg.RFOverride) || math.IsInf(*cfg.RFOverride, 0)) {
		return fmt.Errorf("%w: risk-free override %v", parity.ErrInvalidInput, *cfg.RFOverride)
	}
	return nil
}

// resolveRate prefers the configured override, then the provider, then the
// fixed fallback.
func (e *Engine) resolveRate(ctx context.Context) (float64, error) {
	if e.cfg.RFOverride != nil {
		return *e.cfg.RFOverride, nil
	}

	rate, err := e.prov.FetchRiskFreeRate(ctx)
	if err != nil {
		logger.Infof("risk-free rate unavailable (%v), using fallback %.2f%%", err, fallbackRiskFree*100)
		return fallbackRiskFree, nil
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return 0, fmt.Errorf("%w: provider risk-free rate %v", parity.ErrInvalidInput, rate)
	}
	return rate, nil
}

// resolveDividendPolicy turns the provider's dividend stream into the run
// policy. Announced future payments win over a trailing-yield estimate; a
// disabled flag or an empty stream means no adjustment.
func (e *Engine) resolveDividendPolicy(ctx context.Context, ticker string, spot float64, asOf time.Time) (parity.DividendPolicy, error) {
	if !e.cfg.UseDividends {
		return parity.DividendPolicy{Mode: parity.DividendNone}, nil
	}

	stream, err := e.prov.FetchDividends(ctx, ticker)
	if err != nil {
		return parity.DividendPolicy{}, fmt.Errorf("fetch dividends for %s: %w", ticker, err)
	}

	if future := stream.FuturePayments(asOf); len(future) > 0 {
		logger.Infof("dividend policy: %d scheduled payments", len(future))
		return parity.DividendPolicy{Mode: parity.DividendAmounts, Payments: stream.Payments}, nil
	}

	if yield := stream.TrailingSum(asOf, 365) / spot; yield > 0 {
		logger.Infof("dividend policy: trailing yield %.4f", yield)
		return parity.DividendPolicy{Mode: parity.DividendYield, Yield: yield}, nil
	}

	logger.Infof("no dividend data for %s, running without adjustment", ticker)
	return parity.DividendPolicy{Mode: parity.DividendNone}, nil
}

// resolveExpiries returns the explicit list when one is configured,
// otherwise the provider's expiries inside the DTE window, capped.
func (e *Engine) resolveExpiries(ctx context.Context, ticker string, asOf time.Time) ([]time.Time, error) {
	cfg := e.cfg

	if len(cfg.Expiries) > 0 {
		out := make([]time.Time, 0, len(cfg.Expiries))
		for _, s := range cfg.Expiries {
			expiry, err := time.Parse("2006-01-02", strings.TrimSpace(s))
			if err != nil {
				return nil, fmt.Errorf("%w: expiry %q", parity.ErrInvalidInput, s)
			}
			out = append(out, expiry.UTC())
		}
		data.SortExpiries(out)
		return out, nil
	}

	expiries, err := e.prov.ListExpiries(ctx, ticker, asOf, cfg.MinDTE, cfg.MaxDTE)
	if err != nil {
		return nil, fmt.Errorf("list expiries for %s: %w", ticker, err)
	}
	if len(expiries) == 0 {
		return nil, fmt.Errorf("%w: %s window [%d, %d] days", data.ErrNoExpiries, ticker, cfg.MinDTE, cfg.MaxDTE)
	}
	if len(expiries) > maxExpiriesPerRun {
		logger.Infof("capping %d expiries to %d", len(expiries), maxExpiriesPerRun)
		expiries = expiries[:maxExpiriesPerRun]
	}
	return expiries, nil
}

// logATMVol logs the straddle-implied volatility at the strike nearest
// spot, a quick sanity check that the chain's quotes are coherent.
func logATMVol(expiryRows []parity.Result, spot, rate float64, asOf time.Time) {
	if len(expiryRows) == 0 {
		return
	}

	strikes := make([]float64, len(expiryRows))
	for i, r := range expiryRows {
		strikes[i] = r.Strike
	}
	atmStrike, ok := data.NearestStrike(strikes, spot)
	if !ok {
		return
	}

	for _, r := range expiryRows {
		if r.Strike != atmStrike {
			continue
		}
		t := float64(data.DaysUntil(asOf, r.Expiry)) / 365.0
		iv, err := pricing.ImpliedVolATM(spot, atmStrike, t, rate, r.CallMid, r.PutMid)
		if err != nil {
			logger.Tracef("atm implied vol %s: %v", r.Expiry.Format("2006-01-02"), err)
			return
		}
		logger.Debugf("expiry %s atm strike %.2f implied vol %.1f%%",
			r.Expiry.Format("2006-01-02"), atmStrike, iv*100)
		return
	}
}
