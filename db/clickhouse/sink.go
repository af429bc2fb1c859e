package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Tamara540/telecom-revenue-protection/pkg/api"
)

// =============================================================================
// FINDINGS SINK
// =============================================================================

// WriteRun appends the run record.
func (s *Store) WriteRun(ctx context.Context, run api.RunSummary) error {
	query := `
		INSERT INTO reconciliation_runs (
			run_id, asof_month, lookback_months, pct_tolerance, z_threshold,
			started_at, finished_at, customers, customer_months, findings,
			failed_customers, issues
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if err := s.conn.Exec(ctx, query,
		run.RunID, run.AsOfMonth, uint32(run.LookbackMonths), run.Tolerance, run.ZThreshold,
		run.StartedAt, run.FinishedAt, uint32(run.Customers), uint32(run.CustomerMonths),
		uint32(run.Findings), uint32(run.Failed), uint32(run.Issues),
	); err != nil {
		return fmt.Errorf("failed to insert run record: %w", err)
	}
	return nil
}

// WriteFindings appends findings in a single batch insert.
func (s *Store) WriteFindings(ctx context.Context, findings []api.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO billing_anomalies (
			run_id, rank, customer_id, bill_month, anomaly_reason, confidence, z_score,
			pct_diff, pct_diff_unbounded, expected_total, actual_total,
			expected_base, actual_base, expected_usage, actual_usage,
			expected_discount, actual_discount, expected_taxes_fees, actual_taxes_fees,
			bill_count, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	now := time.Now().UTC()
	for _, f := range findings {
		if err := batch.Append(
			f.RunID, uint32(f.Rank), f.CustomerID, f.BillMonth, f.AnomalyReason, f.Confidence, f.ZScore,
			nullDecimal(f.PctDiff), boolToUInt8(f.PctDiffUnbounded), f.ExpectedTotal, f.ActualTotal,
			f.Expected.Base, f.Actual.Base, f.Expected.Usage, f.Actual.Usage,
			f.Expected.Discount, f.Actual.Discount, f.Expected.TaxesFees, f.Actual.TaxesFees,
			uint32(f.BillCount), now,
		); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// nullDecimal maps an invalid NullDecimal to a NULL column value.
func nullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
