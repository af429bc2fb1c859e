package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

// Column types differ per dialect. SQLite keeps money as TEXT so decimal
// values round-trip exactly.
type dialect struct {
	money, ratio, date, timestamp, boolean, uuid string
}

var dialects = map[string]dialect{
	DriverPostgres: {
		money: "NUMERIC(18,4)", ratio: "NUMERIC(18,6)", date: "DATE",
		timestamp: "TIMESTAMPTZ", boolean: "BOOLEAN", uuid: "UUID",
	},
	DriverSQLite: {
		money: "TEXT", ratio: "TEXT", date: "TEXT",
		timestamp: "TEXT", boolean: "INTEGER", uuid: "TEXT",
	},
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS customers (
	customer_id TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS plans (
	plan_id        TEXT PRIMARY KEY,
	monthly_rate   {money} NOT NULL,
	included_units {money} NOT NULL,
	overage_rate   {money} NOT NULL
);

CREATE TABLE IF NOT EXISTS plan_history (
	customer_id    TEXT NOT NULL,
	plan_id        TEXT NOT NULL,
	effective_from {date} NOT NULL,
	effective_to   {date}
);
CREATE INDEX IF NOT EXISTS idx_plan_history_customer ON plan_history(customer_id, effective_from);

CREATE TABLE IF NOT EXISTS usage_events (
	customer_id TEXT NOT NULL,
	usage_date  {date} NOT NULL,
	units       {money} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_events_date ON usage_events(usage_date);

CREATE TABLE IF NOT EXISTS discount_rules (
	customer_id TEXT NOT NULL,
	bill_month  {date} NOT NULL,
	amount      {money} NOT NULL
);

CREATE TABLE IF NOT EXISTS tax_fee_rules (
	customer_id TEXT NOT NULL,
	bill_month  {date} NOT NULL,
	amount      {money} NOT NULL
);

CREATE TABLE IF NOT EXISTS billing_lines (
	customer_id TEXT NOT NULL,
	bill_month  {date} NOT NULL,
	line_type   TEXT NOT NULL,
	amount      {money} NOT NULL,
	bill_id     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_billing_lines_month ON billing_lines(bill_month);

CREATE TABLE IF NOT EXISTS reconciliation_runs (
	run_id           {uuid} PRIMARY KEY,
	asof_month       {date} NOT NULL,
	lookback_months  INTEGER NOT NULL,
	pct_tolerance    DOUBLE PRECISION NOT NULL,
	z_threshold      DOUBLE PRECISION NOT NULL,
	started_at       {timestamp} NOT NULL,
	finished_at      {timestamp} NOT NULL,
	customers        INTEGER NOT NULL,
	customer_months  INTEGER NOT NULL,
	findings         INTEGER NOT NULL,
	failed_customers INTEGER NOT NULL,
	issues           INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS billing_anomalies (
	run_id              {uuid} NOT NULL,
	rank                INTEGER NOT NULL,
	customer_id         TEXT NOT NULL,
	bill_month          {date} NOT NULL,
	anomaly_reason      TEXT,
	confidence          DOUBLE PRECISION NOT NULL,
	z_score             DOUBLE PRECISION,
	pct_diff            {ratio},
	pct_diff_unbounded  {boolean} NOT NULL,
	expected_total      {money} NOT NULL,
	actual_total        {money} NOT NULL,
	expected_base       {money} NOT NULL,
	actual_base         {money} NOT NULL,
	expected_usage      {money} NOT NULL,
	actual_usage        {money} NOT NULL,
	expected_discount   {money} NOT NULL,
	actual_discount     {money} NOT NULL,
	expected_taxes_fees {money} NOT NULL,
	actual_taxes_fees   {money} NOT NULL,
	bill_count          INTEGER NOT NULL,
	created_at          {timestamp} NOT NULL,
	PRIMARY KEY (run_id, rank)
);
CREATE INDEX IF NOT EXISTS idx_billing_anomalies_customer ON billing_anomalies(customer_id, bill_month);
`

// Schema returns the idempotent DDL statements for driver.
func Schema(driver string) ([]string, error) {
	d, ok := dialects[normalizeDriver(driver)]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver: %q", driver)
	}

	ddl := strings.NewReplacer(
		"{money}", d.money,
		"{ratio}", d.ratio,
		"{date}", d.date,
		"{timestamp}", d.timestamp,
		"{boolean}", d.boolean,
		"{uuid}", d.uuid,
	).Replace(schemaTemplate)

	var stmts []string
	for _, stmt := range strings.Split(ddl, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	stmts, err := Schema(s.driver)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
