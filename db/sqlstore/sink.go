package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/Tamara540/telecom-revenue-protection/pkg/api"
)

// WriteRun appends the run record.
func (s *Store) WriteRun(ctx context.Context, run api.RunSummary) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := s.db.Rebind(`
		INSERT INTO reconciliation_runs (
			run_id, asof_month, lookback_months, pct_tolerance, z_threshold,
			started_at, finished_at, customers, customer_months, findings,
			failed_customers, issues
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	if _, err := s.db.ExecContext(ctx, query,
		run.RunID.String(), dateArg(run.AsOfMonth), run.LookbackMonths, run.Tolerance, run.ZThreshold,
		timestampArg(run.StartedAt), timestampArg(run.FinishedAt), run.Customers, run.CustomerMonths,
		run.Findings, run.Failed, run.Issues,
	); err != nil {
		return fmt.Errorf("failed to insert run record: %w", err)
	}
	return nil
}

// WriteFindings appends findings atomically.
func (s *Store) WriteFindings(ctx context.Context, findings []api.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout*time.Duration(len(findings)/500+1))
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO billing_anomalies (
			run_id, rank, customer_id, bill_month, anomaly_reason, confidence, z_score,
			pct_diff, pct_diff_unbounded, expected_total, actual_total,
			expected_base, actual_base, expected_usage, actual_usage,
			expected_discount, actual_discount, expected_taxes_fees, actual_taxes_fees,
			bill_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := timestampArg(time.Now())
	for _, f := range findings {
		if _, err := stmt.ExecContext(ctx,
			f.RunID.String(), f.Rank, f.CustomerID, dateArg(f.BillMonth), f.AnomalyReason, f.Confidence, f.ZScore,
			f.PctDiff, f.PctDiffUnbounded, f.ExpectedTotal, f.ActualTotal,
			f.Expected.Base, f.Actual.Base, f.Expected.Usage, f.Actual.Usage,
			f.Expected.Discount, f.Actual.Discount, f.Expected.TaxesFees, f.Actual.TaxesFees,
			f.BillCount, now,
		); err != nil {
			return fmt.Errorf("failed to insert finding for %s %s: %w",
				f.CustomerID, f.BillMonth.Format("2006-01"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit findings: %w", err)
	}
	return nil
}

func timestampArg(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
