package parity

import (
	"errors"
	"fmt"

	"github.com/Knetic/govaluate"
)

// ErrInvalidFilterExpression marks a strike filter that does not parse or
// does not evaluate to a boolean.
var ErrInvalidFilterExpression = errors.New("invalid filter expression")

// StrikeFilter is a compiled predicate applied to each strike before the
// parity computation. Expressions see four variables:
//
//	STRIKE     the strike price
//	SPOT       the run's raw spot
//	MONEYNESS  STRIKE / SPOT
//	DTE        whole days to expiry
//
// Example: "MONEYNESS >= 0.8 && MONEYNESS <= 1.2 && DTE > 10".
type StrikeFilter struct {
	expr *govaluate.EvaluableExpression
}

// NewStrikeFilter compiles the expression. An empty expression yields a nil
// filter, which keeps every strike.
func NewStrikeFilter(expression string) (*StrikeFilter, error) {
	if expression == "" {
		return nil, nil
	}
	expr, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFilterExpression, expression, err)
	}
	return &StrikeFilter{expr: expr}, nil
}

// Keep evaluates the predicate for one strike. A nil filter keeps
// everything.
func (f *StrikeFilter) Keep(strike, spot float64, daysToExpiry int) (bool, error) {
	if f == nil {
		return true, nil
	}

	params := map[string]interface{}{
		"STRIKE":    strike,
		"SPOT":      spot,
		"MONEYNESS": strike / spot,
		"DTE":       float64(daysToExpiry),
	}

	result, err := f.expr.Evaluate(params)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidFilterExpression, err)
	}

	keep, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("%w: expression is not a predicate", ErrInvalidFilterExpression)
	}
	return keep, nil
}
