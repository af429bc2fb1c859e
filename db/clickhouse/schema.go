package clickhouse

import (
	"context"
	"fmt"
)

// Schema lists the idempotent DDL for the source and sink tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		customer_id String
	) ENGINE = ReplacingMergeTree ORDER BY customer_id`,

	`CREATE TABLE IF NOT EXISTS plans (
		plan_id        String,
		monthly_rate   Decimal(18, 4),
		included_units Decimal(18, 4),
		overage_rate   Decimal(18, 4)
	) ENGINE = ReplacingMergeTree ORDER BY plan_id`,

	`CREATE TABLE IF NOT EXISTS plan_history (
		customer_id    String,
		plan_id        String,
		effective_from Date,
		effective_to   Nullable(Date)
	) ENGINE = MergeTree ORDER BY (customer_id, effective_from)`,

	`CREATE TABLE IF NOT EXISTS usage_events (
		customer_id String,
		usage_date  Date,
		units       Decimal(18, 4)
	) ENGINE = MergeTree PARTITION BY toYYYYMM(usage_date) ORDER BY (customer_id, usage_date)`,

	`CREATE TABLE IF NOT EXISTS discount_rules (
		customer_id String,
		bill_month  Date,
		amount      Decimal(18, 4)
	) ENGINE = MergeTree ORDER BY (customer_id, bill_month)`,

	`CREATE TABLE IF NOT EXISTS tax_fee_rules (
		customer_id String,
		bill_month  Date,
		amount      Decimal(18, 4)
	) ENGINE = MergeTree ORDER BY (customer_id, bill_month)`,

	`CREATE TABLE IF NOT EXISTS billing_lines (
		customer_id String,
		bill_month  Date,
		line_type   LowCardinality(String),
		amount      Decimal(18, 4),
		bill_id     String
	) ENGINE = MergeTree PARTITION BY toYYYYMM(bill_month) ORDER BY (customer_id, bill_month, bill_id)`,

	`CREATE TABLE IF NOT EXISTS reconciliation_runs (
		run_id           UUID,
		asof_month       Date,
		lookback_months  UInt32,
		pct_tolerance    Float64,
		z_threshold      Float64,
		started_at       DateTime64(3, 'UTC'),
		finished_at      DateTime64(3, 'UTC'),
		customers        UInt32,
		customer_months  UInt32,
		findings         UInt32,
		failed_customers UInt32,
		issues           UInt32
	) ENGINE = MergeTree ORDER BY (asof_month, run_id)`,

	`CREATE TABLE IF NOT EXISTS billing_anomalies (
		run_id              UUID,
		rank                UInt32,
		customer_id         String,
		bill_month          Date,
		anomaly_reason      Nullable(String),
		confidence          Float64,
		z_score             Nullable(Float64),
		pct_diff            Nullable(Decimal(18, 6)),
		pct_diff_unbounded  UInt8,
		expected_total      Decimal(18, 4),
		actual_total        Decimal(18, 4),
		expected_base       Decimal(18, 4),
		actual_base         Decimal(18, 4),
		expected_usage      Decimal(18, 4),
		actual_usage        Decimal(18, 4),
		expected_discount   Decimal(18, 4),
		actual_discount     Decimal(18, 4),
		expected_taxes_fees Decimal(18, 4),
		actual_taxes_fees   Decimal(18, 4),
		bill_count          UInt32,
		created_at          DateTime64(3, 'UTC')
	) ENGINE = MergeTree PARTITION BY toYYYYMM(bill_month) ORDER BY (run_id, rank)`,
}

// Migrate creates any missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
