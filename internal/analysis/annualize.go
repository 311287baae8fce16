package analysis

import (
	"github.com/shopspring/decimal"

	"fundingflow/internal/model"
)

var (
	hoursPerDay = decimal.NewFromInt(24)
	daysPerYear = decimal.NewFromInt(365)
)

// Annualize converts a periodic funding rate and its settlement interval
// into the rate a full year of identical settlements would pay:
//
//	annualized = rate * (24 / intervalHours) * 365
//
// The result is linear in rate, inversely proportional to the interval and
// deliberately not clamped — negative funding annualizes negative. A zero
// or negative interval returns ErrInvalidInterval; it is never defaulted
// because a wrong divisor silently distorts every downstream comparison.
func Annualize(rate, intervalHours decimal.Decimal) (decimal.Decimal, error) {
	if intervalHours.Sign() <= 0 {
		return decimal.Decimal{}, model.ErrInvalidInterval
	}
	return rate.Mul(hoursPerDay).Div(intervalHours).Mul(daysPerYear), nil
}
