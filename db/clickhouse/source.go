package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Tamara540/telecom-revenue-protection/decision/billing"
	"github.com/Tamara540/telecom-revenue-protection/decision/window"
)

// =============================================================================
// SOURCE LOADING
// =============================================================================

// LoadDataset reads every source row relevant to w: plan intervals that
// overlap it and usage, adjustments and billing lines that fall inside it.
// Customers and plans are read in full.
func (s *Store) LoadDataset(ctx context.Context, w window.Window) (*billing.Dataset, error) {
	start, end := w.Start(), w.End()
	ds := &billing.Dataset{}

	steps := []struct {
		name string
		load func(context.Context) error
	}{
		{"customers", func(ctx context.Context) (err error) {
			ds.Customers, err = s.loadCustomers(ctx)
			return err
		}},
		{"plans", func(ctx context.Context) (err error) {
			ds.Plans, err = s.loadPlans(ctx)
			return err
		}},
		{"plan_history", func(ctx context.Context) (err error) {
			ds.PlanHistory, err = s.loadPlanHistory(ctx, start, end)
			return err
		}},
		{"usage_events", func(ctx context.Context) (err error) {
			ds.Usage, err = s.loadUsage(ctx, start, end)
			return err
		}},
		{"discount_rules", func(ctx context.Context) (err error) {
			ds.Discounts, err = s.loadAdjustments(ctx, "discount_rules", start, end)
			return err
		}},
		{"tax_fee_rules", func(ctx context.Context) (err error) {
			ds.TaxFees, err = s.loadAdjustments(ctx, "tax_fee_rules", start, end)
			return err
		}},
		{"billing_lines", func(ctx context.Context) (err error) {
			ds.BillingLines, err = s.loadBillingLines(ctx, start, end)
			return err
		}},
	}

	for _, step := range steps {
		if err := step.load(ctx); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", step.name, err)
		}
	}

	return ds, nil
}

func (s *Store) loadCustomers(ctx context.Context) ([]billing.Customer, error) {
	rows, err := s.conn.Query(ctx, `SELECT DISTINCT customer_id FROM customers ORDER BY customer_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.Customer
	for rows.Next() {
		var c billing.Customer
		if err := rows.Scan(&c.ID); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) loadPlans(ctx context.Context) ([]billing.Plan, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT plan_id, monthly_rate, included_units, overage_rate
		FROM plans
		ORDER BY plan_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.Plan
	for rows.Next() {
		var p billing.Plan
		if err := rows.Scan(&p.ID, &p.MonthlyRate, &p.IncludedUnits, &p.OverageRate); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) loadPlanHistory(ctx context.Context, start, end time.Time) ([]billing.PlanInterval, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT customer_id, plan_id, effective_from, effective_to
		FROM plan_history
		WHERE effective_from < ? AND (effective_to IS NULL OR effective_to > ?)
		ORDER BY customer_id, effective_from
	`, end, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.PlanInterval
	for rows.Next() {
		var iv billing.PlanInterval
		if err := rows.Scan(&iv.CustomerID, &iv.PlanID, &iv.EffectiveFrom, &iv.EffectiveTo); err != nil {
			return nil, fmt.Errorf("failed to scan plan interval: %w", err)
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (s *Store) loadUsage(ctx context.Context, start, end time.Time) ([]billing.UsageEvent, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT customer_id, usage_date, units
		FROM usage_events
		WHERE usage_date >= ? AND usage_date < ?
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.UsageEvent
	for rows.Next() {
		var u billing.UsageEvent
		if err := rows.Scan(&u.CustomerID, &u.UsageDate, &u.Units); err != nil {
			return nil, fmt.Errorf("failed to scan usage event: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// loadAdjustments reads discount_rules or tax_fee_rules; both share a shape.
func (s *Store) loadAdjustments(ctx context.Context, table string, start, end time.Time) ([]billing.Adjustment, error) {
	query := fmt.Sprintf(`
		SELECT customer_id, bill_month, amount
		FROM %s
		WHERE bill_month >= ? AND bill_month < ?
	`, table)
	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.Adjustment
	for rows.Next() {
		var a billing.Adjustment
		if err := rows.Scan(&a.CustomerID, &a.Month, &a.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) loadBillingLines(ctx context.Context, start, end time.Time) ([]billing.BillingLine, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT customer_id, bill_month, line_type, amount, bill_id
		FROM billing_lines
		WHERE bill_month >= ? AND bill_month < ?
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.BillingLine
	for rows.Next() {
		var (
			l        billing.BillingLine
			lineType string
			amount   decimal.Decimal
		)
		if err := rows.Scan(&l.CustomerID, &l.Month, &lineType, &amount, &l.BillID); err != nil {
			return nil, fmt.Errorf("failed to scan billing line: %w", err)
		}
		l.LineType = billing.LineType(lineType)
		l.Amount = amount
		out = append(out, l)
	}
	return out, rows.Err()
}
