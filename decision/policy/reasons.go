package policy

// Reason is the anomaly label assigned by the rule cascade. The empty
// Reason means no rule matched.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonMissingBill           Reason = "MISSING_BILL"
	ReasonDuplicateBill         Reason = "DUPLICATE_BILL"
	ReasonUnexpectedBill        Reason = "UNEXPECTED_BILL"
	ReasonAllowanceMismatch     Reason = "ALLOWANCE_MISMATCH"
	ReasonBaseProrationMismatch Reason = "BASE_PRORATION_MISMATCH"
	ReasonUsageMismatch         Reason = "USAGE_MISMATCH"
	ReasonDiscountMismatch      Reason = "DISCOUNT_MISMATCH"
	ReasonTaxFeeMismatch        Reason = "TAX_FEE_MISMATCH"
	ReasonOverBilled            Reason = "OVER_BILLED"
	ReasonUnderBilled           Reason = "UNDER_BILLED"
)

var severities = map[Reason]float64{
	ReasonMissingBill:           0.95,
	ReasonDuplicateBill:         0.90,
	ReasonUnexpectedBill:        0.85,
	ReasonAllowanceMismatch:     0.80,
	ReasonBaseProrationMismatch: 0.75,
	ReasonUsageMismatch:         0.72,
	ReasonDiscountMismatch:      0.70,
	ReasonTaxFeeMismatch:        0.68,
	ReasonOverBilled:            0.65,
	ReasonUnderBilled:           0.65,
}

// Severity returns the base confidence of a reason. No reason scores 0.
func Severity(r Reason) float64 {
	return severities[r]
}

// Present reports whether a rule matched.
func (r Reason) Present() bool {
	return r != ReasonNone
}

func (r Reason) String() string {
	if r == ReasonNone {
		return "none"
	}
	return string(r)
}
