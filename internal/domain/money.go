package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Truncate floors an amount to whole currency units. Applied at every
// read/write boundary: 183.97 stores as 183 and can never round up to 184.
func Truncate(amount decimal.Decimal) decimal.Decimal {
	return amount.Floor()
}

// SameCalendarDate reports whether a and b fall on the same calendar date in
// UTC. Daily counters reset on a date change, not after 24 elapsed hours.
func SameCalendarDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// PriorityFor derives a display-only priority band from the amount.
func PriorityFor(amount decimal.Decimal) Priority {
	switch {
	case amount.GreaterThanOrEqual(decimal.NewFromInt(500_000)):
		return PriorityHigh
	case amount.GreaterThanOrEqual(decimal.NewFromInt(100_000)):
		return PriorityMedium
	default:
		return PriorityLow
	}
}
