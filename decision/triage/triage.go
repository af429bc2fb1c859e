// Package triage scores reconciled customer-months, keeps the ones worth
// investigating and ranks them.
package triage

import (
	"sort"
	"time"

	"github.com/Tamara540/telecom-revenue-protection/decision/history"
	"github.com/Tamara540/telecom-revenue-protection/decision/policy"
	"github.com/Tamara540/telecom-revenue-protection/pkg/confidence"
)

// Scored is a fully evaluated customer-month.
type Scored struct {
	CustomerID string            `json:"customer_id"`
	Month      time.Time         `json:"bill_month"`
	Comparison policy.Comparison `json:"comparison"`
	Baseline   history.Baseline  `json:"baseline"`
	Severity   float64           `json:"severity"`
	Confidence float64           `json:"confidence"`
}

// Reason returns the anomaly reason, possibly none.
func (s Scored) Reason() policy.Reason {
	return s.Comparison.Reason
}

// Scorer blends rule severity with the statistical signal.
type Scorer struct {
	ZThreshold float64
	Bonus      float64
}

// DefaultScorer returns a scorer with the default threshold and bonus.
func DefaultScorer() Scorer {
	return Scorer{ZThreshold: confidence.DefaultZThreshold, Bonus: confidence.DefaultBonus}
}

// Score assigns severity and confidence to a comparison.
func (s Scorer) Score(customerID string, month time.Time, c policy.Comparison, b history.Baseline) Scored {
	severity := policy.Severity(c.Reason)
	return Scored{
		CustomerID: customerID,
		Month:      month,
		Comparison: c,
		Baseline:   b,
		Severity:   severity,
		Confidence: confidence.Blend(severity, b.ZScore, s.ZThreshold, s.Bonus),
	}
}

// Keep reports whether a row is a finding: a rule matched, or the month is
// a statistical outlier on its own.
func (s Scorer) Keep(row Scored) bool {
	return row.Reason().Present() || confidence.Extreme(row.Baseline.ZScore, s.ZThreshold)
}

// Filter returns the rows Keep accepts, in input order.
func (s Scorer) Filter(rows []Scored) []Scored {
	out := make([]Scored, 0, len(rows))
	for _, r := range rows {
		if s.Keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Rank orders rows for triage: confidence desc, |z| desc (absent counts as
// 0), month desc, customer asc. The order is total for distinct
// customer-months.
func Rank(rows []Scored) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if za, zb := a.Baseline.AbsZ(), b.Baseline.AbsZ(); za != zb {
			return za > zb
		}
		if !a.Month.Equal(b.Month) {
			return a.Month.After(b.Month)
		}
		return a.CustomerID < b.CustomerID
	})
}
