package policy

import (
	"github.com/shopspring/decimal"

	"github.com/Tamara540/telecom-revenue-protection/decision/billing"
	"github.com/Tamara540/telecom-revenue-protection/decision/estimation"
)

// DefaultTolerance is the relative deviation accepted before a category or
// total is flagged.
const DefaultTolerance = 0.12

// AbsoluteFloor is the smallest category deviation, in currency units, that
// can ever be flagged.
var AbsoluteFloor = decimal.NewFromInt(2)

// Comparison joins the expected and actual charges of one customer-month.
// Either side may be all zeros.
type Comparison struct {
	Expected  estimation.Expected `json:"expected"`
	Actual    billing.Actuals     `json:"actual"`
	Tolerance decimal.Decimal     `json:"tolerance"`

	PctDiff PctDiff `json:"pct_diff"`

	PctBase     decimal.NullDecimal `json:"pct_base"`
	PctUsage    decimal.NullDecimal `json:"pct_usage"`
	PctDiscount decimal.NullDecimal `json:"pct_discount"`
	PctTaxFee   decimal.NullDecimal `json:"pct_taxes_fees"`

	Reason Reason `json:"anomaly_reason,omitempty"`
}

// Reconcile compares expected against actual charges. The reason is left
// empty; Engine.Classify assigns it.
func Reconcile(exp estimation.Expected, act billing.Actuals, tolerance float64) Comparison {
	return Comparison{
		Expected:    exp,
		Actual:      act,
		Tolerance:   decimal.NewFromFloat(tolerance),
		PctDiff:     NewPctDiff(exp.Total, act.Total),
		PctBase:     CategoryPct(exp.Base, act.Base),
		PctUsage:    CategoryPct(exp.Usage, act.Usage),
		PctDiscount: CategoryPct(exp.Discount, act.Discount),
		PctTaxFee:   CategoryPct(exp.TaxFee, act.TaxFee),
	}
}

// exceeds reports whether actual deviates from expected by more than
// max(floor, |expected| × tolerance).
func exceeds(expected, actual, tolerance decimal.Decimal) bool {
	allowed := decimal.Max(AbsoluteFloor, expected.Abs().Mul(tolerance))
	return actual.Sub(expected).Abs().GreaterThan(allowed)
}
