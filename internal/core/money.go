// Package core holds the contribution ledger's domain types.
//
// This file contains money handling. Amounts are stored as integer cents;
// use cents for all arithmetic and convert to a decimal representation only
// at presentation or export boundaries.
package core

import (
	"fmt"
	"strconv"
)

type Money struct {
	Cents int64
}

// Units returns the decimal value as a float64 for display or export.
// Note: use cents for calculations to avoid floating-point precision issues.
func (m Money) Units() float64 {
	return float64(m.Cents) / 100.0
}

// String formats the amount as a plain decimal such as "4000.00".
func (m Money) String() string {
	return FormatCents(m.Cents)
}

// Half returns 50% of the amount, truncated toward zero to whole cents.
// Used by the dashboard's withdrawable and retained-share projections; the
// fixed contribution amount keeps the division exact in practice.
func (m Money) Half() Money {
	return Money{Cents: m.Cents / 2}
}

// FormatCents renders integer cents as a decimal string with two places.
func FormatCents(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := strconv.FormatInt(cents/100, 10) + "." + fmt.Sprintf("%02d", cents%100)
	if neg {
		return "-" + s
	}
	return s
}
