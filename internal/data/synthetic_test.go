package data

import (
	"context"
	"math"
	"testing"
	"time"
)

var synthAsOf = time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

// The same ticker always maps to the same spot, inside [50, 500).
func TestSyntheticSpotDeterministic(t *testing.T) {
	prov := NewSyntheticProvider()

	a, err := prov.FetchSpot(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := prov.FetchSpot(context.Background(), "SPY")
	if a != b {
		t.Fatalf("spot not deterministic: %v vs %v", a, b)
	}
	if a < 50 || a >= 500 {
		t.Fatalf("spot out of range: %v", a)
	}

	other, _ := prov.FetchSpot(context.Background(), "QQQ")
	if other == a {
		t.Fatalf("expected different tickers to differ, both %v", a)
	}
}

// Generated expiries are weekly Fridays inside the DTE window, ascending.
func TestSyntheticExpiriesAreFridays(t *testing.T) {
	prov := NewSyntheticProvider()

	expiries, err := prov.ListExpiries(context.Background(), "SPY", synthAsOf, 7, 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(expiries) == 0 {
		t.Fatalf("expected expiries in a 60 day window")
	}
	for i, expiry := range expiries {
		if expiry.Weekday() != time.Friday {
			t.Fatalf("expected Friday, got %s", expiry.Weekday())
		}
		dte := DaysUntil(synthAsOf, expiry)
		if dte < 7 || dte > 60 {
			t.Fatalf("expiry outside window: %d days", dte)
		}
		if i > 0 && !expiries[i-1].Before(expiry) {
			t.Fatalf("expiries not ascending: %v", expiries)
		}
	}
}

// The synthetic chain satisfies put-call parity at mid by construction:
// C - P = S - K*exp(-rT) for every strike, so any downstream mid gap is a
// computation defect and not noise in the fixture.
func TestSyntheticChainParityConsistent(t *testing.T) {
	prov := NewSyntheticProvider()
	expiry := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)

	spot, _ := prov.FetchSpot(context.Background(), "SPY")
	rate, _ := prov.FetchRiskFreeRate(context.Background())

	recs, err := prov.FetchChain(context.Background(), "SPY", expiry, synthAsOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) == 0 {
		t.Fatalf("expected a populated chain")
	}

	yrs := float64(DaysUntil(synthAsOf, expiry)) / 365.0
	for _, rec := range recs {
		lhs := rec.Call.Mid() - rec.Put.Mid()
		rhs := spot - rec.Strike*math.Exp(-rate*yrs)
		if math.Abs(lhs-rhs) > 1e-9 {
			t.Fatalf("parity violated at strike %v: C-P=%v, S-Kd=%v", rec.Strike, lhs, rhs)
		}
	}
}

// Strikes cover roughly 70% to 130% of spot, sorted, with the day count
// filled in. Deep wings may lose a quote side to the fixed half-spread.
func TestSyntheticChainShape(t *testing.T) {
	prov := NewSyntheticProvider()
	expiry := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)

	spot, _ := prov.FetchSpot(context.Background(), "SPY")
	recs, err := prov.FetchChain(context.Background(), "SPY", expiry, synthAsOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, last := recs[0], recs[len(recs)-1]
	if first.Strike > 0.71*spot {
		t.Fatalf("chain does not reach the low wing: first strike %v, spot %v", first.Strike, spot)
	}
	if last.Strike < 1.29*spot {
		t.Fatalf("chain does not reach the high wing: last strike %v, spot %v", last.Strike, spot)
	}
	for i, rec := range recs {
		if rec.DaysToExpiry != DaysUntil(synthAsOf, expiry) {
			t.Fatalf("wrong day count at strike %v: %d", rec.Strike, rec.DaysToExpiry)
		}
		if i > 0 && recs[i-1].Strike >= rec.Strike {
			t.Fatalf("strikes not ascending at %d: %+v", i, recs)
		}
	}
}

// The synthetic market pays no dividends and quotes a fixed rate.
func TestSyntheticDividendsAndRate(t *testing.T) {
	prov := NewSyntheticProvider()

	stream, err := prov.FetchDividends(context.Background(), "SPY")
	if err != nil || len(stream.Payments) != 0 {
		t.Fatalf("expected empty stream, got %+v err=%v", stream, err)
	}
	rate, err := prov.FetchRiskFreeRate(context.Background())
	if err != nil || rate != 0.04 {
		t.Fatalf("expected rate 0.04, got %v err=%v", rate, err)
	}
}
