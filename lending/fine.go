/*
fine.go - Pure overdue-fine policy

PURPOSE:
  Maps an overdue duration to a monetary penalty. This is the single
  authoritative fine calculation; the engine applies it at return time,
  on payment of a still-active loan, and for live display totals.

CONTRACT:
  ComputeFine(dueDate, referenceDate, config) -> amount
  - referenceDate within dueDate + grace period  -> 0
  - otherwise ceil(days late) * ratePerDay, days counted from the due date
    in whole wall-clock days (one second past a day boundary is a full day)
  - clamped to [0, maxFine]
  - deterministic, no side effects; an invalid config falls back to the
    documented defaults rather than failing

EXAMPLE:
  Due Monday noon, returned Thursday 13:00, rate 10, no grace:
  3 days + 1 hour late -> ceil -> 4 days -> fine 40.

SEE ALSO:
  - types.go:  FineConfig and defaults
  - engine.go: Where the policy is applied
*/
package lending

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// ComputeFine returns the fine owed when a loan due at dueDate is settled at
// referenceDate. Pure; safe to call redundantly.
func ComputeFine(dueDate, referenceDate time.Time, cfg FineConfig) decimal.Decimal {
	if !cfg.Valid() {
		cfg = DefaultFineConfig()
	}

	graceEnd := dueDate.Add(time.Duration(cfg.GracePeriodDays) * day)
	if !referenceDate.After(graceEnd) {
		return decimal.Zero
	}

	// Days late are counted from the due date, not the grace boundary;
	// the grace period only delays when fines start accruing.
	amount := cfg.RatePerDay.Mul(decimal.NewFromInt(daysLate(dueDate, referenceDate)))

	if amount.GreaterThan(cfg.MaxFine) {
		return cfg.MaxFine
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// daysLate returns the elapsed duration past due rounded up to whole days.
func daysLate(dueDate, referenceDate time.Time) int64 {
	elapsed := referenceDate.Sub(dueDate)
	if elapsed <= 0 {
		return 0
	}
	days := int64(elapsed / day)
	if elapsed%day > 0 {
		days++
	}
	return days
}
