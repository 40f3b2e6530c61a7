// Package parity contains the put-call parity arithmetic: per-strike gap
// computation against a dividend- and discount-adjusted forward, and the
// per-expiry aggregation of those gaps.
//
// Responsibilities:
//   - Discount factors and dividend-adjusted spot values
//   - The frictionless mid gap and the bid/ask executable gap per strike
//   - Grouping per-strike results into expiry summaries
//
// Design notes:
//   - Every function here is deterministic and side-effect free; identical
//     inputs produce bit-identical outputs
//   - A strike missing either quote side is excluded, never approximated
//   - Errors are typed where useful and wrapped for caller inspection
package parity

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mcravi8/OptionsParityChecker-yfinance/internal/data"
)

//
// ==========================
// Error taxonomy
// ==========================
//

// Typed errors allow callers and tests to detect failure categories
// without string matching.
var (
	// ErrInvalidInput marks malformed numeric input: negative rates, days,
	// strikes, or crossed quotes. Fatal at run-parameter level, otherwise
	// the offending strike is rejected before computation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMissingQuoteSide marks a strike where the call or the put has no
	// usable two-sided market. The strike produces no result.
	ErrMissingQuoteSide = errors.New("missing quote side")
)

//
// ==========================
// Domain Types
// ==========================
//

// DividendMode selects how the spot is adjusted for dividends.
type DividendMode int

const (
	DividendNone    DividendMode = iota // no adjustment
	DividendYield                       // continuous yield, spot * exp(-q*T)
	DividendAmounts                     // discrete payments, spot - PV(dividends)
)

// DividendPolicy is the dividend treatment for one run. Exactly one mode is
// active; the yield and amount formulas are never mixed.
type DividendPolicy struct {
	Mode     DividendMode
	Yield    float64                // annualized, DividendYield only
	Payments []data.DividendPayment // DividendAmounts only
}

// RunParams is the immutable context shared by every strike of a scan:
// spot, rate, valuation time, dividend policy, and the assumed stock
// spread. Built once per run and passed explicitly.
type RunParams struct {
	Spot             float64
	Rate             float64
	AsOf             time.Time
	Dividends        DividendPolicy
	StockSpreadCents float64
}

// Result holds the parity metrics for a single strike.
type Result struct {
	Expiry  time.Time `json:"expiry"`
	Strike  float64   `json:"strike"`
	MidGap  float64   `json:"mid_gap"`
	ExecGap float64   `json:"exec_gap"`
	Forward float64   `json:"forward"`
	CallMid float64   `json:"call_mid"`
	PutMid  float64   `json:"put_mid"`
}

//
// ==========================
// Core arithmetic
// ==========================
//

// DiscountFactor returns exp(-rate * days/365).
//
// The factor is exactly 1 when either the rate or the day count is zero,
// and strictly decreasing in both. Negative inputs are rejected.
//
// Parameters:
//   - rate: annualized risk-free rate as a decimal (0.045 for 4.5%)
//   - days: whole calendar days to expiry
//
// Returns:
//   - float64: the discount factor in (0, 1]
//   - error: ErrInvalidInput for a negative rate or day count
func DiscountFactor(rate float64, days int) (float64, error) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return 0, fmt.Errorf("%w: rate %v", ErrInvalidInput, rate)
	}
	if days < 0 {
		return 0, fmt.Errorf("%w: days to expiry %d", ErrInvalidInput, days)
	}
	return math.Exp(-rate * float64(days) / 365.0), nil
}

// AdjustedSpot applies the run's dividend policy to the raw spot.
//
// DividendNone leaves the spot unchanged. DividendYield discounts it by
// exp(-yield * T) with T = days/365. DividendAmounts subtracts the present
// value of every payment whose ex-date falls in (asOf, expiry], each
// discounted at the run rate.
//
// Parameters:
//   - spot: raw underlying price
//   - pol: dividend policy for the run
//   - asOf: valuation timestamp
//   - expiry: option expiration being valued
//   - rate: annualized risk-free rate used to discount cash dividends
//
// Returns:
//   - float64: the adjusted spot
//   - error: ErrInvalidInput for non-positive spot, negative yield, or a
//     negative payment amount
func AdjustedSpot(spot float64, pol DividendPolicy, asOf, expiry time.Time, rate float64) (float64, error) {
	if math.IsNaN(spot) || math.IsInf(spot, 0) || spot <= 0 {
		return 0, fmt.Errorf("%w: spot %v", ErrInvalidInput, spot)
	}

	switch pol.Mode {
	case DividendNone:
		return spot, nil

	case DividendYield:
		if math.IsNaN(pol.Yield) || math.IsInf(pol.Yield, 0) || pol.Yield < 0 {
			return 0, fmt.Errorf("%w: dividend yield %v", ErrInvalidInput, pol.Yield)
		}
		t := float64(data.DaysUntil(asOf, expiry)) / 365.0
		return spot * math.Exp(-pol.Yield*t), nil

	case DividendAmounts:
		pv := 0.0
		for _, p := range pol.Payments {
			if math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) || p.Amount < 0 {
				return 0, fmt.Errorf("%w: dividend amount %v on %s",
					ErrInvalidInput, p.Amount, p.ExDate.Format("2006-01-02"))
			}
			if !p.ExDate.After(asOf) || p.ExDate.After(expiry) {
				continue
			}
			t := float64(data.DaysUntil(asOf, p.ExDate)) / 365.0
			pv += p.Amount * math.Exp(-rate*t)
		}
		return spot - pv, nil
	}

	return 0, fmt.Errorf("%w: dividend mode %d", ErrInvalidInput, pol.Mode)
}

// MidGap is the frictionless parity deviation at quote midpoints:
//
//	(callMid - putMid) - (spotAdj - strike*discount)
//
// Positive means the call side is rich relative to the synthetic forward,
// negative means the put side is.
func MidGap(callMid, putMid, spotAdj, strike, discount float64) float64 {
	return (callMid - putMid) - (spotAdj - strike*discount)
}

// ExecGap is the profit still available after crossing the spread, in
// dollars per share, floored at zero.
//
// Both round trips are evaluated independently of the mid gap:
//
//	sell call at bid, buy put at ask, buy stock at the ask
//	buy call at ask, sell put at bid, short stock at the bid
//
// stockHalfSpread shifts the adjusted spot to the stock's own bid and ask.
// With a zero stock spread the executable gap collapses to
// max(0, |mid gap| - option spread cost).
func ExecGap(callBid, callAsk, putBid, putAsk, spotAdj, strike, discount, stockHalfSpread float64) float64 {
	forwardAtAsk := (spotAdj + stockHalfSpread) - strike*discount
	forwardAtBid := (spotAdj - stockHalfSpread) - strike*discount

	conversion := (callBid - putAsk) - forwardAtAsk
	reversal := forwardAtBid - (callAsk - putBid)

	gap := math.Max(conversion, reversal)
	if gap < 0 {
		return 0
	}
	return gap
}

// Compute evaluates one chain record under the run parameters.
//
// Parameters:
//   - rec: a single strike of the chain
//   - p: the immutable run context
//
// Returns:
//   - Result: the strike's parity metrics
//   - error: ErrMissingQuoteSide when either side is unquoted,
//     ErrInvalidInput for malformed strikes, day counts, or crossed quotes
func Compute(rec data.ChainRecord, p RunParams) (Result, error) {
	if math.IsNaN(rec.Strike) || math.IsInf(rec.Strike, 0) || rec.Strike <= 0 {
		return Result{}, fmt.Errorf("%w: strike %v", ErrInvalidInput, rec.Strike)
	}
	if rec.DaysToExpiry < 0 {
		return Result{}, fmt.Errorf("%w: days to expiry %d", ErrInvalidInput, rec.DaysToExpiry)
	}
	if math.IsNaN(p.StockSpreadCents) || math.IsInf(p.StockSpreadCents, 0) || p.StockSpreadCents < 0 {
		return Result{}, fmt.Errorf("%w: stock spread %v cents", ErrInvalidInput, p.StockSpreadCents)
	}

	if !rec.Call.Usable() {
		return Result{}, fmt.Errorf("%w: call %.2f/%s", ErrMissingQuoteSide,
			rec.Strike, rec.Expiry.Format("2006-01-02"))
	}
	if !rec.Put.Usable() {
		return Result{}, fmt.Errorf("%w: put %.2f/%s", ErrMissingQuoteSide,
			rec.Strike, rec.Expiry.Format("2006-01-02"))
	}
	if rec.Call.Ask < rec.Call.Bid {
		return Result{}, fmt.Errorf("%w: crossed call quote %.2f/%.2f", ErrInvalidInput, rec.Call.Bid, rec.Call.Ask)
	}
	if rec.Put.Ask < rec.Put.Bid {
		return Result{}, fmt.Errorf("%w: crossed put quote %.2f/%.2f", ErrInvalidInput, rec.Put.Bid, rec.Put.Ask)
	}

	discount, err := DiscountFactor(p.Rate, rec.DaysToExpiry)
	if err != nil {
		return Result{}, err
	}
	spotAdj, err := AdjustedSpot(p.Spot, p.Dividends, p.AsOf, rec.Expiry, p.Rate)
	if err != nil {
		return Result{}, err
	}

	// cents quoted on the full spread, half on each side, in dollars
	stockHalfSpread := p.StockSpreadCents / 200.0

	callMid := rec.Call.Mid()
	putMid := rec.Put.Mid()

	return Result{
		Expiry:  rec.Expiry,
		Strike:  rec.Strike,
		MidGap:  MidGap(callMid, putMid, spotAdj, rec.Strike, discount),
		ExecGap: ExecGap(rec.Call.Bid, rec.Call.Ask, rec.Put.Bid, rec.Put.Ask, spotAdj, rec.Strike, discount, stockHalfSpread),
		Forward: spotAdj - rec.Strike*discount,
		CallMid: callMid,
		PutMid:  putMid,
	}, nil
}
