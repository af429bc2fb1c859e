// Package api defines the output contract of a reconciliation run.
package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Finding is one flagged customer-month, ready for triage.
type Finding struct {
	RunID      uuid.UUID `json:"run_id"`
	Rank       int       `json:"rank"`
	CustomerID string    `json:"customer_id"`
	BillMonth  time.Time `json:"bill_month"`

	ExpectedTotal decimal.Decimal `json:"expected_total"`
	ActualTotal   decimal.Decimal `json:"actual_total"`

	// PctDiff is null when nothing was expected but something was billed;
	// PctDiffUnbounded marks that case.
	PctDiff          decimal.NullDecimal `json:"pct_diff"`
	PctDiffUnbounded bool                `json:"pct_diff_unbounded"`

	AnomalyReason *string  `json:"anomaly_reason"`
	ZScore        *float64 `json:"z_score"`
	Confidence    float64  `json:"confidence"`
	Severity      float64  `json:"severity"`

	Expected Breakdown    `json:"expected"`
	Actual   Breakdown    `json:"actual"`
	Pct      PctBreakdown `json:"pct"`

	BillCount int `json:"bill_count"`

	BaselineMonths int     `json:"baseline_months"`
	BaselineMean   float64 `json:"baseline_mean"`
	BaselineStdDev float64 `json:"baseline_stddev"`

	GoverningPlan string   `json:"governing_plan,omitempty"`
	Drivers       []Driver `json:"drivers,omitempty"`
}

// Breakdown is a per-category amount set.
type Breakdown struct {
	Base      decimal.Decimal `json:"base"`
	Usage     decimal.Decimal `json:"usage"`
	Discount  decimal.Decimal `json:"discount"`
	TaxesFees decimal.Decimal `json:"taxes_fees"`
}

// PctBreakdown holds per-category deviations, null where nothing was expected.
type PctBreakdown struct {
	Base      decimal.NullDecimal `json:"base"`
	Usage     decimal.NullDecimal `json:"usage"`
	Discount  decimal.NullDecimal `json:"discount"`
	TaxesFees decimal.NullDecimal `json:"taxes_fees"`
}

// Driver explains a single expected charge.
type Driver struct {
	Component string          `json:"component"`
	PlanID    string          `json:"plan_id"`
	Amount    decimal.Decimal `json:"amount"`
	Formula   string          `json:"formula"`
}

// Reason returns the anomaly reason or "" when none applies.
func (f Finding) Reason() string {
	if f.AnomalyReason == nil {
		return ""
	}
	return *f.AnomalyReason
}

// DisplayZ returns the z-score for display, 0 when absent.
func (f Finding) DisplayZ() float64 {
	if f.ZScore == nil {
		return 0
	}
	return *f.ZScore
}

// DisplayPct returns the total deviation for display. An unbounded
// deviation reads as 100%.
func (f Finding) DisplayPct() decimal.Decimal {
	if f.PctDiffUnbounded {
		return decimal.NewFromInt(1)
	}
	return f.PctDiff.Decimal
}
