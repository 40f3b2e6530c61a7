package data

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"
)

// Typed errors allow callers and tests to detect failure categories
// without string matching.
var (
	// ErrDataUnavailable means the provider could not supply the requested
	// spot, dividend, rate, or chain data. Callers skip the affected scope
	// and continue where the run permits it.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrNoExpiries means no listed expiration fell inside the requested
	// DTE window.
	ErrNoExpiries = errors.New("no expiries in window")
)

// ChainProvider supplies everything a parity scan needs for one underlying:
// the spot price, the dividend schedule, a risk-free rate, the listed
// expiries, and per-expiry option chains.
//
// All methods honor context cancellation and deadlines. Implementations may
// delegate to a secondary provider when they cannot answer themselves.
type ChainProvider interface {
	Secondary() ChainProvider
	FetchSpot(ctx context.Context, ticker string) (float64, error)
	FetchDividends(ctx context.Context, ticker string) (DividendStream, error)
	FetchRiskFreeRate(ctx context.Context) (float64, error)
	ListExpiries(ctx context.Context, ticker string, asOf time.Time, minDTE, maxDTE int) ([]time.Time, error)
	FetchChain(ctx context.Context, ticker string, expiry, asOf time.Time) ([]ChainRecord, error)
}

// Quote is one side of an option market, either the call or the put.
// A side is usable only when both bid and ask are finite and positive;
// anything else counts as an unquoted side.
type Quote struct {
	Bid float64
	Ask float64
}

// Usable reports whether the quote carries a live two-sided market.
// Zero, negative, and non-finite prices all mean the side is not quoted.
func (q *Quote) Usable() bool {
	if q == nil {
		return false
	}
	if math.IsNaN(q.Bid) || math.IsInf(q.Bid, 0) || q.Bid <= 0 {
		return false
	}
	if math.IsNaN(q.Ask) || math.IsInf(q.Ask, 0) || q.Ask <= 0 {
		return false
	}
	return true
}

// Mid returns the quote midpoint. Only meaningful when Usable is true.
func (q *Quote) Mid() float64 {
	return 0.5 * (q.Bid + q.Ask)
}

// ChainRecord is one strike of a normalized option chain: the call and put
// markets observed for the same strike and expiry. A nil side means the
// contract had no quote at all.
type ChainRecord struct {
	Strike       float64
	Expiry       time.Time
	DaysToExpiry int
	Call         *Quote
	Put          *Quote
}

// DividendPayment is a single cash dividend with its ex-dividend date.
type DividendPayment struct {
	ExDate time.Time
	Amount float64
}

// DividendStream is the dividend history and any announced future payments
// for an underlying, sorted by ex-date ascending. An empty stream is valid
// and simply means the underlying pays nothing.
type DividendStream struct {
	Payments []DividendPayment
}

// TrailingSum returns the total of payments whose ex-date falls in the
// window (asOf-days, asOf]. Used to estimate an annual dividend yield from
// the trailing year of history.
func (s DividendStream) TrailingSum(asOf time.Time, days int) float64 {
	start := asOf.AddDate(0, 0, -days)
	total := 0.0
	for _, p := range s.Payments {
		if p.ExDate.After(start) && !p.ExDate.After(asOf) {
			total += p.Amount
		}
	}
	return total
}

// FuturePayments returns the payments with an ex-date strictly after asOf,
// preserving order.
func (s DividendStream) FuturePayments(asOf time.Time) []DividendPayment {
	var out []DividendPayment
	for _, p := range s.Payments {
		if p.ExDate.After(asOf) {
			out = append(out, p)
		}
	}
	return out
}

// DaysUntil returns whole calendar days from asOf to expiry, truncated
// toward zero and floored at zero.
func DaysUntil(asOf, expiry time.Time) int {
	days := int(expiry.Sub(asOf).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// NearestStrike finds the strike closest to target in a sorted slice using
// binary search (sort.Search). ok is false for an empty slice.
func NearestStrike(strikes []float64, target float64) (strike float64, ok bool) {
	n := len(strikes)
	if n == 0 {
		return 0, false
	}

	i := sort.Search(n, func(i int) bool {
		return strikes[i] >= target
	})

	if i == 0 {
		return strikes[0], true
	}
	if i == n {
		return strikes[n-1], true
	}

	before := strikes[i-1]
	after := strikes[i]

	if math.Abs(before-target) < math.Abs(after-target) {
		return before, true
	}
	return after, true
}

// SortChain orders records by strike ascending. Providers call this before
// returning so downstream consumers see a stable chain.
func SortChain(recs []ChainRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Strike < recs[j].Strike })
}

// SortExpiries orders expiration dates ascending.
func SortExpiries(expiries []time.Time) {
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })
}
