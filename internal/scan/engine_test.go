package scan

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/mcravi8/OptionsParityChecker-yfinance/internal/data"
	"github.com/mcravi8/OptionsParityChecker-yfinance/internal/parity"
)

var engineAsOf = time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

// Full integration: run the engine against the synthetic market, which is
// parity-consistent at mid by construction.
func TestEngineRunSynthetic(t *testing.T) {
	cfg := &Config{
		Ticker: "spy", // engine normalizes case
		MinDTE: 7,
		MaxDTE: 45,
		AsOf:   engineAsOf,
	}
	eng := NewEngine(cfg, data.NewSyntheticProvider())

	res, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("engine run failed: %v", err)
	}

	if res.Ticker != "SPY" {
		t.Fatalf("expected normalized ticker SPY, got %s", res.Ticker)
	}
	if res.Spot != 425.0 {
		t.Fatalf("expected synthetic spot 425, got %v", res.Spot)
	}
	if res.Rate != 0.04 {
		t.Fatalf("expected synthetic rate 0.04, got %v", res.Rate)
	}
	if len(res.Rows) == 0 || len(res.Summaries) == 0 {
		t.Fatalf("expected rows and summaries, got %d/%d", len(res.Rows), len(res.Summaries))
	}

	// a parity-consistent market scans clean
	for _, s := range res.Summaries {
		if s.AvgAbsMidGap > 1e-9 {
			t.Fatalf("expected near-zero mid gaps, got avg %v at %s", s.AvgAbsMidGap, s.Expiry)
		}
		if s.PctExecPositive != 0 {
			t.Fatalf("expected no executable edge, got %v%% at %s", s.PctExecPositive, s.Expiry)
		}
	}

	// the wings lose quote sides to the fixed half-spread
	if res.Skipped.MissingQuote == 0 {
		t.Fatalf("expected unquoted wing strikes to be counted")
	}

	// rows arrive sorted by expiry then strike
	for i := 1; i < len(res.Rows); i++ {
		prev, cur := res.Rows[i-1], res.Rows[i]
		if prev.Expiry.After(cur.Expiry) {
			t.Fatalf("rows out of expiry order at %d", i)
		}
		if prev.Expiry.Equal(cur.Expiry) && prev.Strike >= cur.Strike {
			t.Fatalf("rows out of strike order at %d", i)
		}
	}
}

// An explicit expiry list bypasses the DTE window entirely.
func TestEngineExplicitExpiries(t *testing.T) {
	cfg := &Config{
		Ticker:   "SPY",
		Expiries: []string{"2026-09-18"},
		AsOf:     engineAsOf,
	}
	eng := NewEngine(cfg, data.NewSyntheticProvider())

	res, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("engine run failed: %v", err)
	}
	if len(res.Summaries) != 1 {
		t.Fatalf("expected exactly one expiry, got %d", len(res.Summaries))
	}
	if res.Summaries[0].Expiry.Format("2006-01-02") != "2026-09-18" {
		t.Fatalf("wrong expiry: %v", res.Summaries[0].Expiry)
	}
}

// The strike filter reduces the scanned set and counts what it drops.
func TestEngineFilter(t *testing.T) {
	base := &Config{Ticker: "SPY", MinDTE: 7, MaxDTE: 30, AsOf: engineAsOf}
	eng := NewEngine(base, data.NewSyntheticProvider())
	plain, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("engine run failed: %v", err)
	}

	filtered := &Config{
		Ticker: "SPY", MinDTE: 7, MaxDTE: 30, AsOf: engineAsOf,
		Filter: "MONEYNESS >= 0.95 && MONEYNESS <= 1.05",
	}
	eng = NewEngine(filtered, data.NewSyntheticProvider())
	res, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("engine run failed: %v", err)
	}

	if len(res.Rows) >= len(plain.Rows) {
		t.Fatalf("expected the filter to drop rows: %d vs %d", len(res.Rows), len(plain.Rows))
	}
	if res.Skipped.Filtered == 0 {
		t.Fatalf("expected filtered strikes to be counted")
	}
	for _, r := range res.Rows {
		m := r.Strike / res.Spot
		if m < 0.95 || m > 1.05 {
			t.Fatalf("row escaped the filter: strike %v, moneyness %v", r.Strike, m)
		}
	}
}

func TestEngineValidation(t *testing.T) {
	cases := []Config{
		{Ticker: ""},
		{Ticker: "SPY", MinDTE: -1},
		{Ticker: "SPY", MinDTE: 50, MaxDTE: 7},
		{Ticker: "SPY", StockSpreadCents: -1},
		{Ticker: "SPY", StockSpreadCents: math.Inf(1)},
		{Ticker: "SPY", Expiries: []string{"18-09-2026"}},
	}
	for i := range cases {
		eng := NewEngine(&cases[i], data.NewSyntheticProvider())
		if _, err := eng.Run(context.Background()); !errors.Is(err, parity.ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}

	bad := -0.01
	cfg := Config{Ticker: "SPY", RFOverride: &bad}
	eng := NewEngine(&cfg, data.NewSyntheticProvider())
	if _, err := eng.Run(context.Background()); !errors.Is(err, parity.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative override, got %v", err)
	}

	// an unbounded override fails at the parameter level, before any fetch
	inf := math.Inf(1)
	cfg = Config{Ticker: "SPY", RFOverride: &inf}
	eng = NewEngine(&cfg, data.NewSyntheticProvider())
	if _, err := eng.Run(context.Background()); !errors.Is(err, parity.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for infinite override, got %v", err)
	}
}

// A configured override beats whatever the provider quotes.
func TestEngineRFOverrideWins(t *testing.T) {
	override := 0.10
	cfg := &Config{Ticker: "SPY", MinDTE: 7, MaxDTE: 30, AsOf: engineAsOf, RFOverride: &override}
	eng := NewEngine(cfg, data.NewSyntheticProvider())

	res, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("engine run failed: %v", err)
	}
	if res.Rate != 0.10 {
		t.Fatalf("expected override rate 0.10, got %v", res.Rate)
	}
}

// No listed expiry inside the window is a typed failure.
func TestEngineNoExpiries(t *testing.T) {
	monday := time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)
	cfg := &Config{Ticker: "SPY", MinDTE: 1, MaxDTE: 2, AsOf: monday}
	eng := NewEngine(cfg, data.NewSyntheticProvider())

	if _, err := eng.Run(context.Background()); !errors.Is(err, data.ErrNoExpiries) {
		t.Fatalf("expected ErrNoExpiries, got %v", err)
	}
}

// fakeProvider scripts provider behavior per test.
type fakeProvider struct {
	spot     float64
	stream   fakeDividends
	rate     float64
	rateErr  error
	expiries []time.Time
	chains   map[string][]data.ChainRecord
	chainErr map[string]error
}

type fakeDividends struct {
	stream data.DividendStream
	err    error
}

func (f *fakeProvider) Secondary() data.ChainProvider { return nil }

func (f *fakeProvider) FetchSpot(ctx context.Context, ticker string) (float64, error) {
	return f.spot, nil
}

func (f *fakeProvider) FetchDividends(ctx context.Context, ticker string) (data.DividendStream, error) {
	return f.stream.stream, f.stream.err
}

func (f *fakeProvider) FetchRiskFreeRate(ctx context.Context) (float64, error) {
	return f.rate, f.rateErr
}

func (f *fakeProvider) ListExpiries(ctx context.Context, ticker string, asOf time.Time, minDTE, maxDTE int) ([]time.Time, error) {
	return f.expiries, nil
}

func (f *fakeProvider) FetchChain(ctx context.Context, ticker string, expiry, asOf time.Time) ([]data.ChainRecord, error) {
	key := expiry.Format("2006-01-02")
	if err := f.chainErr[key]; err != nil {
		return nil, err
	}
	return f.chains[key], nil
}

func fakeRecord(strike float64, expiry time.Time, asOf time.Time, callBid, callAsk, putBid, putAsk float64) data.ChainRecord {
	return data.ChainRecord{
		Strike:       strike,
		Expiry:       expiry,
		DaysToExpiry: data.DaysUntil(asOf, expiry),
		Call:         &data.Quote{Bid: callBid, Ask: callAsk},
		Put:          &data.Quote{Bid: putBid, Ask: putAsk},
	}
}

// An expiry whose chain cannot be fetched is skipped and counted; the rest
// of the run continues.
func TestEngineSkipsUnavailableExpiry(t *testing.T) {
	good := engineAsOf.AddDate(0, 0, 30)
	bad := engineAsOf.AddDate(0, 0, 60)

	prov := &fakeProvider{
		spot:     425.0,
		rate:     0.04,
		expiries: []time.Time{good, bad},
		chains: map[string][]data.ChainRecord{
			good.Format("2006-01-02"): {
				fakeRecord(420, good, engineAsOf, 16.2, 16.6, 10.3, 10.6),
				fakeRecord(430, good, engineAsOf, 11.0, 11.4, 0, 0), // unquoted put
			},
		},
		chainErr: map[string]error{
			bad.Format("2006-01-02"): data.ErrDataUnavailable,
		},
	}

	cfg := &Config{Ticker: "SPY", MinDTE: 7, MaxDTE: 90, AsOf: engineAsOf}
	res, err := NewEngine(cfg, prov).Run(context.Background())
	if err != nil {
		t.Fatalf("engine run failed: %v", err)
	}

	if res.Skipped.Expiries != 1 {
		t.Fatalf("expected 1 skipped expiry, got %d", res.Skipped.Expiries)
	}
	if res.Skipped.MissingQuote != 1 {
		t.Fatalf("expected 1 missing-quote strike, got %d", res.Skipped.MissingQuote)
	}
	if len(res.Rows) != 1 || res.Rows[0].Strike != 420 {
		t.Fatalf("expected the quoted strike to survive, got %+v", res.Rows)
	}
	if len(res.Summaries) != 1 || res.Summaries[0].NStrikes != 1 {
		t.Fatalf("expected one summary over one strike, got %+v", res.Summaries)
	}
}

// A run that produces nothing is an error, not an empty report.
func TestEngineNoRows(t *testing.T) {
	expiry := engineAsOf.AddDate(0, 0, 30)
	prov := &fakeProvider{
		spot:     425.0,
		rate:     0.04,
		expiries: []time.Time{expiry},
		chains: map[string][]data.ChainRecord{
			expiry.Format("2006-01-02"): {
				fakeRecord(420, expiry, engineAsOf, 0, 0, 10.3, 10.6),
			},
		},
	}

	cfg := &Config{Ticker: "SPY", MinDTE: 7, MaxDTE: 90, AsOf: engineAsOf}
	if _, err := NewEngine(cfg, prov).Run(context.Background()); !errors.Is(err, ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

// A provider that cannot quote a rate falls back to the fixed default.
func TestEngineRateFallback(t *testing.T) {
	expiry := engineAsOf.AddDate(0, 0, 30)
	prov := &fakeProvider{
		spot:     425.0,
		rateErr:  data.ErrDataUnavailable,
		expiries: []time.Time{expiry},
		chains: map[string][]data.ChainRecord{
			expiry.Format("2006-01-02"): {
				fakeRecord(420, expiry, engineAsOf, 16.2, 16.6, 10.3, 10.6),
			},
		},
	}

	cfg := &Config{Ticker: "SPY", MinDTE: 7, MaxDTE: 90, AsOf: engineAsOf}
	res, err := NewEngine(cfg, prov).Run(context.Background())
	if err != nil {
		t.Fatalf("engine run failed: %v", err)
	}
	if res.Rate != 0.03 {
		t.Fatalf("expected fallback rate 0.03, got %v", res.Rate)
	}
}

// Scheduled future payments move the forward; the policy resolution picks
// them over the trailing yield, and an empty stream adjusts nothing.
func TestEngineDividendPolicy(t *testing.T) {
	expiry := engineAsOf.AddDate(0, 0, 30)
	rec := fakeRecord(420, expiry, engineAsOf, 16.2, 16.6, 10.3, 10.6)
	chains := map[string][]data.ChainRecord{expiry.Format("2006-01-02"): {rec}}

	run := func(useDividends bool, stream data.DividendStream) *Result {
		t.Helper()
		prov := &fakeProvider{
			spot:     425.0,
			rate:     0.04,
			stream:   fakeDividends{stream: stream},
			expiries: []time.Time{expiry},
			chains:   chains,
		}
		cfg := &Config{Ticker: "SPY", MinDTE: 7, MaxDTE: 90, AsOf: engineAsOf, UseDividends: useDividends}
		res, err := NewEngine(cfg, prov).Run(context.Background())
		if err != nil {
			t.Fatalf("engine run failed: %v", err)
		}
		return res
	}

	plain := run(false, data.DividendStream{})

	// announced payment: forward falls by its present value
	scheduled := run(true, data.DividendStream{Payments: []data.DividendPayment{
		{ExDate: engineAsOf.AddDate(0, 0, 10), Amount: 1.00},
	}})
	pv := 1.00 * math.Exp(-0.04*10.0/365.0)
	if math.Abs((plain.Rows[0].Forward-scheduled.Rows[0].Forward)-pv) > 1e-12 {
		t.Fatalf("expected forward drop %v, got %v", pv, plain.Rows[0].Forward-scheduled.Rows[0].Forward)
	}

	// history only: the trailing yield still lowers the forward
	trailing := run(true, data.DividendStream{Payments: []data.DividendPayment{
		{ExDate: engineAsOf.AddDate(0, 0, -90), Amount: 2.00},
		{ExDate: engineAsOf.AddDate(0, 0, -180), Amount: 2.00},
	}})
	if trailing.Rows[0].Forward >= plain.Rows[0].Forward {
		t.Fatalf("expected trailing yield to lower the forward: %v vs %v",
			trailing.Rows[0].Forward, plain.Rows[0].Forward)
	}

	// empty stream with dividends enabled: no adjustment, no error
	empty := run(true, data.DividendStream{})
	if empty.Rows[0].Forward != plain.Rows[0].Forward {
		t.Fatalf("expected no adjustment for an empty stream: %v vs %v",
			empty.Rows[0].Forward, plain.Rows[0].Forward)
	}
}
