// Package coverage clips plan assignments to bill months and prorates them.
package coverage

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Tamara540/telecom-revenue-protection/decision/billing"
	"github.com/Tamara540/telecom-revenue-protection/decision/window"
)

// Coverage is one plan interval clipped to one bill month.
type Coverage struct {
	Plan        billing.Plan
	ActiveStart time.Time
	ActiveEnd   time.Time // exclusive
	ActiveDays  int
	DaysInMonth int
	Fraction    decimal.Decimal
	// Overlapping is set on every coverage of a month that has more than one.
	Overlapping bool
}

// ProratedBase returns the plan's monthly rate scaled by the active fraction.
func (c Coverage) ProratedBase() decimal.Decimal {
	return c.Plan.MonthlyRate.Mul(c.Fraction)
}

// Resolve returns every interval that overlaps month, ordered by active
// window start and then plan ID. Intervals whose active window is empty do
// not apply and are skipped. Plan IDs missing from plans are skipped too;
// validation reports them before this point.
func Resolve(intervals []billing.PlanInterval, plans map[string]billing.Plan, month time.Time) []Coverage {
	monthEnd := window.AddMonths(month, 1)
	daysInMonth := window.DaysInMonth(month)

	var out []Coverage
	for _, iv := range intervals {
		plan, ok := plans[iv.PlanID]
		if !ok {
			continue
		}

		start := iv.EffectiveFrom
		if start.Before(month) {
			start = month
		}
		end := monthEnd
		if iv.EffectiveTo != nil && iv.EffectiveTo.Before(monthEnd) {
			end = *iv.EffectiveTo
		}

		days := window.Days(start, end)
		if days <= 0 {
			continue
		}

		out = append(out, Coverage{
			Plan:        plan,
			ActiveStart: start,
			ActiveEnd:   end,
			ActiveDays:  days,
			DaysInMonth: daysInMonth,
			Fraction:    decimal.NewFromInt(int64(days)).Div(decimal.NewFromInt(int64(daysInMonth))),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ActiveStart.Equal(out[j].ActiveStart) {
			return out[i].ActiveStart.Before(out[j].ActiveStart)
		}
		return out[i].Plan.ID < out[j].Plan.ID
	})

	if len(out) > 1 {
		for i := range out {
			out[i].Overlapping = true
		}
	}

	return out
}

// Governing returns the coverage that rates usage for the month: the one
// whose active window starts last. The second result is false when no plan
// applies.
//
// Only one allowance is applied per month. A customer who changes plan
// mid-month has all usage rated against the later plan.
func Governing(coverages []Coverage) (Coverage, bool) {
	if len(coverages) == 0 {
		return Coverage{}, false
	}
	return coverages[len(coverages)-1], true
}
