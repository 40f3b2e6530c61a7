package pricing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// stdNormal is the standard normal distribution used for the CDF and PDF
// terms of the Black-Scholes formula.
var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// BlackScholesPrice calculates the price of a European option using the Black-Scholes model.
//
// Parameters:
//   - isCall: true for call option, false for put option
//   - S: spot price of the underlying asset
//   - K: strike price of the option
//   - T: time to expiry in years
//   - r: risk-free interest rate (annual)
//   - sigma: volatility of the underlying asset (annual, as a decimal)
//
// Returns:
//
//	The theoretical price of the option. If time to expiry or volatility is
//	zero or negative, returns the intrinsic value of the option.
func BlackScholesPrice(
	isCall bool,
	S float64, // spot
	K float64, // strike
	T float64, // time to expiry in years
	r float64, // risk-free rate
	sigma float64, // volatility
) float64 {

	if T <= 0 || sigma <= 0 {
		if isCall {
			return math.Max(0, S-K)
		}
		return math.Max(0, K-S)
	}

	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * math.Sqrt(T))
	d2 := d1 - sigma*math.Sqrt(T)

	if isCall {
		return S*stdNormal.CDF(d1) - K*math.Exp(-r*T)*stdNormal.CDF(d2)
	}
	return K*math.Exp(-r*T)*stdNormal.CDF(-d2) - S*stdNormal.CDF(-d1)
}

// BlackScholesVega calculates the vega of a European option under the
// Black-Scholes model, the sensitivity of the price to a unit change in
// volatility. Calls and puts at the same strike share the same vega.
//
// Returns 0 if T or sigma is non-positive.
func BlackScholesVega(
	S float64,
	K float64,
	T float64,
	r float64,
	sigma float64,
) float64 {

	if T <= 0 || sigma <= 0 {
		return 0
	}

	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * math.Sqrt(T))
	return S * stdNormal.Prob(d1) * math.Sqrt(T)
}

// ImpliedVolATM recovers the volatility that prices the at-the-money
// straddle, using Newton-Raphson on the combined call plus put value.
// Solving on the straddle rather than a single leg keeps the estimate
// insensitive to which side of parity the quotes lean.
//
// Parameters:
//   - S: spot price
//   - K: strike of the straddle (the strike nearest spot)
//   - T: time to expiry in years
//   - r: risk-free rate
//   - callPrice, putPrice: observed mid prices of the two legs
//
// Returns the implied volatility, or an error if the inputs are invalid or
// the iteration fails to converge.
func ImpliedVolATM(
	S, K, T, r float64,
	callPrice, putPrice float64,
) (float64, error) {

	if T <= 0 {
		return 0, fmt.Errorf("invalid expiry")
	}

	marketStraddle := callPrice + putPrice

	// Initial guess: 20%
	sigma := 0.20

	const (
		maxIter = 100
		tol     = 1e-6
	)

	for i := 0; i < maxIter; i++ {
		straddle := BlackScholesPrice(true, S, K, T, r, sigma) +
			BlackScholesPrice(false, S, K, T, r, sigma)
		diff := straddle - marketStraddle

		if math.Abs(diff) < tol {
			return sigma, nil
		}

		vega := 2 * BlackScholesVega(S, K, T, r, sigma)
		if vega < 1e-8 {
			break
		}

		sigma -= diff / vega

		// Guardrails
		if sigma <= 0 {
			sigma = 1e-4
		}
		if sigma > 5 {
			sigma = 5
		}
	}

	return 0, fmt.Errorf("implied vol did not converge")
}
