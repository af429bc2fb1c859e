// Package policy reconciles expected against actual charges and classifies
// each customer-month with at most one anomaly reason.
package policy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Tamara540/telecom-revenue-protection/decision/billing"
	"github.com/Tamara540/telecom-revenue-protection/decision/estimation"
)

// Rule is one step of the classification cascade
type Rule struct {
	Reason      Reason                  `json:"reason"`
	Description string                  `json:"description"`
	Severity    float64                 `json:"severity"`
	Match       func(c Comparison) bool `json:"-"`
}

// Engine evaluates the ordered rule cascade
type Engine struct {
	rules     []Rule
	tolerance float64
}

// NewEngine creates a classifier with the given relative tolerance
func NewEngine(tolerance float64) (*Engine, error) {
	if tolerance < 0 || tolerance >= 1 {
		return nil, fmt.Errorf("tolerance must be in [0, 1), got %v", tolerance)
	}
	return &Engine{
		rules:     defaultRules(),
		tolerance: tolerance,
	}, nil
}

// Tolerance returns the configured relative tolerance
func (e *Engine) Tolerance() float64 {
	return e.tolerance
}

// Rules returns the cascade in evaluation order
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Classify returns the reason of the first matching rule, or ReasonNone
func (e *Engine) Classify(c Comparison) Reason {
	for _, rule := range e.rules {
		if rule.Match(c) {
			return rule.Reason
		}
	}
	return ReasonNone
}

// Evaluate reconciles one customer-month and classifies it
func (e *Engine) Evaluate(exp estimation.Expected, act billing.Actuals) Comparison {
	c := Reconcile(exp, act, e.tolerance)
	c.Reason = e.Classify(c)
	return c
}

func defaultRules() []Rule {
	rules := []Rule{
		{
			Reason:      ReasonMissingBill,
			Description: "no bill issued for the month",
			Match:       MissingBill,
		},
		{
			Reason:      ReasonDuplicateBill,
			Description: "more than one bill issued for the month",
			Match:       DuplicateBill,
		},
		{
			Reason:      ReasonUnexpectedBill,
			Description: "charges billed where nothing was expected",
			Match:       UnexpectedBill,
		},
		{
			Reason:      ReasonAllowanceMismatch,
			Description: "usage charged while within the plan allowance",
			Match:       AllowanceMismatch,
		},
		{
			Reason:      ReasonBaseProrationMismatch,
			Description: "base charge deviates from the prorated plan rate",
			Match:       BaseProrationMismatch,
		},
		{
			Reason:      ReasonUsageMismatch,
			Description: "usage charge deviates from the expected overage",
			Match:       UsageMismatch,
		},
		{
			Reason:      ReasonDiscountMismatch,
			Description: "discount deviates from the expected discount",
			Match:       DiscountMismatch,
		},
		{
			Reason:      ReasonTaxFeeMismatch,
			Description: "taxes and fees deviate from the expected amount",
			Match:       TaxFeeMismatch,
		},
		{
			Reason:      ReasonOverBilled,
			Description: "total billed above expected plus tolerance",
			Match:       OverBilled,
		},
		{
			Reason:      ReasonUnderBilled,
			Description: "total billed below expected minus tolerance",
			Match:       UnderBilled,
		},
	}

	for i := range rules {
		rules[i].Severity = Severity(rules[i].Reason)
	}
	return rules
}

// ===== RULE PREDICATES =====

// MissingBill matches a month without any bill document
func MissingBill(c Comparison) bool {
	return c.Actual.BillCount == 0
}

// DuplicateBill matches a month split across several bill documents
func DuplicateBill(c Comparison) bool {
	return c.Actual.BillCount > 1
}

// UnexpectedBill matches charges where the expected total is zero
func UnexpectedBill(c Comparison) bool {
	return c.Expected.Total.IsZero() && !c.Actual.Total.IsZero()
}

// AllowanceMismatch matches usage billed although consumption stayed
// within the governing plan's allowance. Without a plan there is no
// allowance to violate.
func AllowanceMismatch(c Comparison) bool {
	if !c.Expected.HasPlan {
		return false
	}
	return c.Expected.UnitsUsed.LessThanOrEqual(c.Expected.IncludedUnits) && c.Actual.Usage.IsPositive()
}

// BaseProrationMismatch matches a base charge outside tolerance
func BaseProrationMismatch(c Comparison) bool {
	return exceeds(c.Expected.Base, c.Actual.Base, c.Tolerance)
}

// UsageMismatch matches a usage charge outside tolerance
func UsageMismatch(c Comparison) bool {
	return exceeds(c.Expected.Usage, c.Actual.Usage, c.Tolerance)
}

// DiscountMismatch matches a discount outside tolerance
func DiscountMismatch(c Comparison) bool {
	return exceeds(c.Expected.Discount, c.Actual.Discount, c.Tolerance)
}

// TaxFeeMismatch matches taxes and fees outside tolerance
func TaxFeeMismatch(c Comparison) bool {
	return exceeds(c.Expected.TaxFee, c.Actual.TaxFee, c.Tolerance)
}

// OverBilled matches a total above expected × (1 + tolerance)
func OverBilled(c Comparison) bool {
	limit := c.Expected.Total.Mul(decimal.NewFromInt(1).Add(c.Tolerance))
	return c.Actual.Total.GreaterThan(limit)
}

// UnderBilled matches a total below expected × (1 - tolerance)
func UnderBilled(c Comparison) bool {
	limit := c.Expected.Total.Mul(decimal.NewFromInt(1).Sub(c.Tolerance))
	return c.Actual.Total.LessThan(limit)
}
