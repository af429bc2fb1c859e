// Package billing holds the read-only source records of a reconciliation run
// and the aggregation of actually billed line items.
//
// Records arrive from an external ingestion layer. Dates are calendar dates
// at midnight UTC; bill months are the first day of the month.
package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LineType is the category of a billed line item.
type LineType string

const (
	LineBase     LineType = "base"
	LineUsage    LineType = "usage"
	LineDiscount LineType = "discount"
	LineTax      LineType = "tax"
	LineFee      LineType = "fee"
	LineOther    LineType = "other"
)

// ParseLineType normalizes a raw line type. The second result is false for
// anything outside the known set.
func ParseLineType(s string) (LineType, bool) {
	lt := LineType(strings.ToLower(strings.TrimSpace(s)))
	switch lt {
	case LineBase, LineUsage, LineDiscount, LineTax, LineFee, LineOther:
		return lt, true
	default:
		return lt, false
	}
}

// Customer identifies a subscriber. Only the key is needed to build the grid.
type Customer struct {
	ID string `json:"customer_id"`
}

// Plan is a static rate card.
type Plan struct {
	ID            string          `json:"plan_id"`
	MonthlyRate   decimal.Decimal `json:"monthly_rate"`
	IncludedUnits decimal.Decimal `json:"included_units"`
	OverageRate   decimal.Decimal `json:"overage_rate"`
}

// PlanInterval assigns a plan to a customer over [EffectiveFrom, EffectiveTo).
// A nil EffectiveTo means the assignment is still active.
type PlanInterval struct {
	CustomerID    string     `json:"customer_id"`
	PlanID        string     `json:"plan_id"`
	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
}

// UsageEvent is a raw consumption record.
type UsageEvent struct {
	CustomerID string          `json:"customer_id"`
	UsageDate  time.Time       `json:"usage_date"`
	Units      decimal.Decimal `json:"units"`
}

// Adjustment is a pre-resolved monthly discount (negative by convention)
// or tax/fee (positive by convention) amount.
type Adjustment struct {
	CustomerID string          `json:"customer_id"`
	Month      time.Time       `json:"bill_month"`
	Amount     decimal.Decimal `json:"amount"`
}

// BillingLine is one actually billed line item. A customer-month may be
// split across several bill documents.
type BillingLine struct {
	CustomerID string          `json:"customer_id"`
	Month      time.Time       `json:"bill_month"`
	LineType   LineType        `json:"line_type"`
	Amount     decimal.Decimal `json:"amount"`
	BillID     string          `json:"bill_id"`
}

// Dataset is the full snapshot of source records for one run.
type Dataset struct {
	Customers    []Customer     `json:"customers"`
	Plans        []Plan         `json:"plans"`
	PlanHistory  []PlanInterval `json:"plan_history"`
	Usage        []UsageEvent   `json:"usage_events"`
	Discounts    []Adjustment   `json:"discount_rules"`
	TaxFees      []Adjustment   `json:"tax_fee_rules"`
	BillingLines []BillingLine  `json:"billing_lines"`
}

// CustomerIDs returns the customer keys in dataset order.
func (d *Dataset) CustomerIDs() []string {
	ids := make([]string, 0, len(d.Customers))
	for _, c := range d.Customers {
		ids = append(ids, c.ID)
	}
	return ids
}

// RecordCount returns the total number of source rows.
func (d *Dataset) RecordCount() int {
	return len(d.Customers) + len(d.Plans) + len(d.PlanHistory) + len(d.Usage) +
		len(d.Discounts) + len(d.TaxFees) + len(d.BillingLines)
}

func normalizeDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func normalizeMonth(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}
