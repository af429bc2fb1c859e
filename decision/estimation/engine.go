// Package estimation composes the expected charges of a customer-month
// from plan coverage, usage and pre-resolved adjustments.
package estimation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Tamara540/telecom-revenue-protection/decision/billing"
	"github.com/Tamara540/telecom-revenue-protection/decision/coverage"
	"github.com/Tamara540/telecom-revenue-protection/decision/window"
)

// Expected contains the expected charges of one customer-month
type Expected struct {
	CustomerID string    `json:"customer_id"`
	Month      time.Time `json:"bill_month"`

	// Category amounts
	Base     decimal.Decimal `json:"base"`
	Usage    decimal.Decimal `json:"usage"`
	Discount decimal.Decimal `json:"discount"`
	TaxFee   decimal.Decimal `json:"taxes_fees"`
	Total    decimal.Decimal `json:"total"`

	// Allowance inputs for the classifier
	HasPlan       bool            `json:"has_plan"`
	UnitsUsed     decimal.Decimal `json:"units_used"`
	IncludedUnits decimal.Decimal `json:"included_units"`
	GoverningPlan string          `json:"governing_plan,omitempty"`

	// Overlapping is set when more than one plan interval covered the month
	Overlapping bool `json:"overlapping,omitempty"`

	// Breakdown
	Drivers []Driver `json:"drivers,omitempty"`
}

// Driver explains a single expected charge
type Driver struct {
	Component string          `json:"component"` // base, usage
	PlanID    string          `json:"plan_id"`
	Amount    decimal.Decimal `json:"amount"`
	Formula   string          `json:"formula"`
}

// Compose builds the expected charges for cm. Missing usage or adjustments
// are zero; no coverage means no subscription charge was expected.
func Compose(cm window.CustomerMonth, coverages []coverage.Coverage, unitsUsed, discounts, taxFees decimal.Decimal) Expected {
	exp := Expected{
		CustomerID:    cm.CustomerID,
		Month:         cm.Month,
		Base:          decimal.Zero,
		Usage:         decimal.Zero,
		Discount:      discounts,
		TaxFee:        taxFees,
		UnitsUsed:     unitsUsed,
		IncludedUnits: decimal.Zero,
	}

	for _, cov := range coverages {
		amount := cov.ProratedBase()
		exp.Base = exp.Base.Add(amount)
		exp.Drivers = append(exp.Drivers, Driver{
			Component: "base",
			PlanID:    cov.Plan.ID,
			Amount:    amount,
			Formula: fmt.Sprintf("%s × %d/%d days = %s",
				cov.Plan.MonthlyRate.StringFixed(2), cov.ActiveDays, cov.DaysInMonth, amount.StringFixed(2)),
		})
	}

	if gov, ok := coverage.Governing(coverages); ok {
		exp.HasPlan = true
		exp.GoverningPlan = gov.Plan.ID
		exp.IncludedUnits = gov.Plan.IncludedUnits
		exp.Overlapping = gov.Overlapping

		overage := decimal.Max(unitsUsed.Sub(gov.Plan.IncludedUnits), decimal.Zero)
		exp.Usage = overage.Mul(gov.Plan.OverageRate)
		if exp.Usage.IsPositive() {
			exp.Drivers = append(exp.Drivers, Driver{
				Component: "usage",
				PlanID:    gov.Plan.ID,
				Amount:    exp.Usage,
				Formula: fmt.Sprintf("(%s - %s units) × %s = %s",
					unitsUsed.String(), gov.Plan.IncludedUnits.String(),
					gov.Plan.OverageRate.String(), exp.Usage.StringFixed(2)),
			})
		}
	}

	exp.Total = exp.Base.Add(exp.Usage).Add(exp.TaxFee).Add(exp.Discount)
	return exp
}

// SumUnits totals consumed units per bill month. Usage dates are calendar
// dates and are bucketed as stored, independent of the run location.
func SumUnits(events []billing.UsageEvent) map[time.Time]decimal.Decimal {
	out := make(map[time.Time]decimal.Decimal)
	for _, ev := range events {
		m := window.MonthStart(ev.UsageDate, time.UTC)
		out[m] = out[m].Add(ev.Units)
	}
	return out
}

// SumAdjustments totals signed adjustment amounts per bill month.
func SumAdjustments(adjs []billing.Adjustment) map[time.Time]decimal.Decimal {
	out := make(map[time.Time]decimal.Decimal)
	for _, a := range adjs {
		m := window.MonthStart(a.Month, time.UTC)
		out[m] = out[m].Add(a.Amount)
	}
	return out
}
