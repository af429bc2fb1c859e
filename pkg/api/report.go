package api

import (
	"time"

	"github.com/google/uuid"

	qerrors "github.com/Tamara540/telecom-revenue-protection/pkg/errors"
)

// RunSummary describes one reconciliation run.
type RunSummary struct {
	RunID          uuid.UUID      `json:"run_id"`
	AsOfMonth      time.Time      `json:"asof_month"`
	WindowStart    time.Time      `json:"window_start"`
	LookbackMonths int            `json:"lookback_months"`
	Tolerance      float64        `json:"pct_tolerance"`
	ZThreshold     float64        `json:"z_threshold"`
	MinMonths      int            `json:"min_months_for_stats"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	Customers      int            `json:"customers"`
	CustomerMonths int            `json:"customer_months"`
	Findings       int            `json:"findings"`
	Failed         int            `json:"failed_customers"`
	Issues         int            `json:"issues"`
	ByReason       map[string]int `json:"by_reason"`
}

// Duration returns the wall time of the run.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Report is the full output of a run.
type Report struct {
	Summary  RunSummary              `json:"summary"`
	Findings []Finding               `json:"findings"`
	Issues   []*qerrors.QualityError `json:"data_quality_issues"`
}

// HasFindings reports whether anything was flagged.
func (r *Report) HasFindings() bool {
	return len(r.Findings) > 0
}
