// Package errors provides severity-aware data-quality error types.
package errors

import (
	"fmt"
	"time"
)

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity by name in JSON and YAML output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "info":
		*s = SeverityInfo
	case "warning":
		*s = SeverityWarning
	case "error":
		*s = SeverityError
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// QualityError is a structured, per-record data-quality problem.
// A QualityError never aborts a run; the offending record is excluded
// from the customer-month it belongs to.
type QualityError struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity"`
	CustomerID string    `json:"customer_id,omitempty"`
	Month      time.Time `json:"month,omitzero"`
}

func (e *QualityError) Error() string {
	switch {
	case e.CustomerID != "" && !e.Month.IsZero():
		return fmt.Sprintf("[%s] %s: %s (customer: %s, month: %s)",
			e.Severity, e.Code, e.Message, e.CustomerID, e.Month.Format("2006-01"))
	case e.CustomerID != "":
		return fmt.Sprintf("[%s] %s: %s (customer: %s)", e.Severity, e.Code, e.Message, e.CustomerID)
	default:
		return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
	}
}

// IsWarning reports whether the issue is informational only.
func (e *QualityError) IsWarning() bool {
	return e.Severity < SeverityError
}

// Error codes
const (
	ErrCodeInvertedInterval = "INVERTED_INTERVAL"
	ErrCodeUnknownPlan      = "UNKNOWN_PLAN"
	ErrCodeInvalidPlan      = "INVALID_PLAN"
	ErrCodeNegativeUnits    = "NEGATIVE_UNITS"
	ErrCodeUnknownLineType  = "UNKNOWN_LINE_TYPE"
	ErrCodeMissingBillID    = "MISSING_BILL_ID"
	ErrCodeOrphanRecord     = "ORPHAN_RECORD"
	ErrCodeOverlappingPlans = "OVERLAPPING_PLANS"
	ErrCodeCustomerFailed   = "CUSTOMER_FAILED"
)

// NewInvertedIntervalError reports a plan interval ending before it starts.
func NewInvertedIntervalError(customerID, planID string, from, to time.Time) *QualityError {
	return &QualityError{
		Code: ErrCodeInvertedInterval,
		Message: fmt.Sprintf("plan %s interval ends %s before it starts %s",
			planID, to.Format(time.DateOnly), from.Format(time.DateOnly)),
		Severity:   SeverityError,
		CustomerID: customerID,
	}
}

// NewUnknownPlanError reports a plan interval referencing a missing or rejected plan.
func NewUnknownPlanError(customerID, planID string) *QualityError {
	return &QualityError{
		Code:       ErrCodeUnknownPlan,
		Message:    fmt.Sprintf("no usable rate card for plan: %s", planID),
		Severity:   SeverityError,
		CustomerID: customerID,
	}
}

// NewInvalidPlanError reports a rate card with negative terms.
func NewInvalidPlanError(planID, field string) *QualityError {
	return &QualityError{
		Code:     ErrCodeInvalidPlan,
		Message:  fmt.Sprintf("plan %s has negative %s", planID, field),
		Severity: SeverityError,
	}
}

// NewNegativeUnitsError reports a usage event with a negative unit count.
func NewNegativeUnitsError(customerID string, usageDate time.Time) *QualityError {
	return &QualityError{
		Code:       ErrCodeNegativeUnits,
		Message:    fmt.Sprintf("usage event on %s has negative units", usageDate.Format(time.DateOnly)),
		Severity:   SeverityError,
		CustomerID: customerID,
		Month:      usageDate,
	}
}

// NewUnknownLineTypeError reports a billing line with an unrecognized type.
func NewUnknownLineTypeError(customerID, billID, lineType string, month time.Time) *QualityError {
	return &QualityError{
		Code:       ErrCodeUnknownLineType,
		Message:    fmt.Sprintf("bill %s has unknown line type: %q", billID, lineType),
		Severity:   SeverityError,
		CustomerID: customerID,
		Month:      month,
	}
}

// NewMissingBillIDError reports a billing line that cannot be attributed to a bill document.
func NewMissingBillIDError(customerID string, month time.Time) *QualityError {
	return &QualityError{
		Code:       ErrCodeMissingBillID,
		Message:    "billing line has no bill id",
		Severity:   SeverityError,
		CustomerID: customerID,
		Month:      month,
	}
}

// NewOrphanRecordError reports source rows for a customer outside the customer list.
func NewOrphanRecordError(customerID, dataset string) *QualityError {
	return &QualityError{
		Code:       ErrCodeOrphanRecord,
		Message:    fmt.Sprintf("%s rows reference an unknown customer", dataset),
		Severity:   SeverityWarning,
		CustomerID: customerID,
	}
}

// NewOverlappingPlansError flags a customer-month covered by more than one plan interval.
func NewOverlappingPlansError(customerID string, month time.Time, count int) *QualityError {
	return &QualityError{
		Code:       ErrCodeOverlappingPlans,
		Message:    fmt.Sprintf("%d plan intervals overlap the month; usage rated on the last one", count),
		Severity:   SeverityWarning,
		CustomerID: customerID,
		Month:      month,
	}
}

// NewCustomerFailedError reports a customer whose computation could not complete.
func NewCustomerFailedError(customerID string, cause any) *QualityError {
	return &QualityError{
		Code:       ErrCodeCustomerFailed,
		Message:    fmt.Sprintf("customer skipped: %v", cause),
		Severity:   SeverityError,
		CustomerID: customerID,
	}
}
