// Package core provides money handling for the base currency (RSD).
//
// Money is an exact count of para. Conversion from a floating exchange rate
// happens once per value; everything after that is integer arithmetic.
package core

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Money is an exact amount of the base currency in minor units.
type Money struct {
	Cents int64
}

var hundred = decimal.NewFromInt(100)

// FromCurrencyAmount converts amount units of a foreign currency at rate
// (base units per one foreign unit) into Money, rounding half away from zero.
//
// The rate is taken at its shortest decimal representation, so
//
//	FromCurrencyAmount(1.005, decimal.NewFromInt(1)) -> 101 para
func FromCurrencyAmount(rate float64, amount decimal.Decimal) Money {
	cents := decimal.NewFromFloat(rate).Mul(amount).Mul(hundred).Round(0)
	return Money{Cents: cents.IntPart()}
}

// Scale multiplies m by factor with the same rounding rule as FromCurrencyAmount.
func (m Money) Scale(factor float64) Money {
	cents := decimal.NewFromFloat(factor).Mul(decimal.NewFromInt(m.Cents)).Round(0)
	return Money{Cents: cents.IntPart()}
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

// Cmp returns -1, 0 or +1.
func (m Money) Cmp(o Money) int {
	switch {
	case m.Cents < o.Cents:
		return -1
	case m.Cents > o.Cents:
		return 1
	}
	return 0
}

func (m Money) Less(o Money) bool { return m.Cents < o.Cents }

func (m Money) IsZero() bool { return m.Cents == 0 }

// String renders m as "-?int.ff", e.g. 1 -> "0.01", -1234 -> "-12.34".
func (m Money) String() string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	frac := cents % 100
	s := sign + strconv.FormatInt(cents/100, 10) + "."
	if frac < 10 {
		s += "0"
	}
	return s + strconv.FormatInt(frac, 10)
}
