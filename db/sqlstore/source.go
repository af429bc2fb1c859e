package sqlstore

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Tamara540/telecom-revenue-protection/decision/billing"
	"github.com/Tamara540/telecom-revenue-protection/decision/window"
)

type planRow struct {
	ID            string          `db:"plan_id"`
	MonthlyRate   decimal.Decimal `db:"monthly_rate"`
	IncludedUnits decimal.Decimal `db:"included_units"`
	OverageRate   decimal.Decimal `db:"overage_rate"`
}

type intervalRow struct {
	CustomerID    string   `db:"customer_id"`
	PlanID        string   `db:"plan_id"`
	EffectiveFrom Date     `db:"effective_from"`
	EffectiveTo   NullDate `db:"effective_to"`
}

type usageRow struct {
	CustomerID string          `db:"customer_id"`
	UsageDate  Date            `db:"usage_date"`
	Units      decimal.Decimal `db:"units"`
}

type adjustmentRow struct {
	CustomerID string          `db:"customer_id"`
	Month      Date            `db:"bill_month"`
	Amount     decimal.Decimal `db:"amount"`
}

type lineRow struct {
	CustomerID string          `db:"customer_id"`
	Month      Date            `db:"bill_month"`
	LineType   string          `db:"line_type"`
	Amount     decimal.Decimal `db:"amount"`
	BillID     string          `db:"bill_id"`
}

// LoadDataset reads every source row relevant to w: plan intervals that
// overlap it and usage, adjustments and billing lines that fall inside it.
// Customers and plans are read in full.
func (s *Store) LoadDataset(ctx context.Context, w window.Window) (*billing.Dataset, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start, end := dateArg(w.Start()), dateArg(w.End())
	ds := &billing.Dataset{}

	var customers []string
	if err := s.db.SelectContext(ctx, &customers,
		`SELECT DISTINCT customer_id FROM customers ORDER BY customer_id`); err != nil {
		return nil, fmt.Errorf("failed to load customers: %w", err)
	}
	for _, id := range customers {
		ds.Customers = append(ds.Customers, billing.Customer{ID: id})
	}

	var plans []planRow
	if err := s.db.SelectContext(ctx, &plans, `
		SELECT plan_id, monthly_rate, included_units, overage_rate
		FROM plans
		ORDER BY plan_id`); err != nil {
		return nil, fmt.Errorf("failed to load plans: %w", err)
	}
	for _, p := range plans {
		ds.Plans = append(ds.Plans, billing.Plan{
			ID:            p.ID,
			MonthlyRate:   p.MonthlyRate,
			IncludedUnits: p.IncludedUnits,
			OverageRate:   p.OverageRate,
		})
	}

	var intervals []intervalRow
	if err := s.db.SelectContext(ctx, &intervals, s.db.Rebind(`
		SELECT customer_id, plan_id, effective_from, effective_to
		FROM plan_history
		WHERE effective_from < ? AND (effective_to IS NULL OR effective_to > ?)
		ORDER BY customer_id, effective_from`), end, start); err != nil {
		return nil, fmt.Errorf("failed to load plan_history: %w", err)
	}
	for _, iv := range intervals {
		ds.PlanHistory = append(ds.PlanHistory, billing.PlanInterval{
			CustomerID:    iv.CustomerID,
			PlanID:        iv.PlanID,
			EffectiveFrom: iv.EffectiveFrom.Time,
			EffectiveTo:   iv.EffectiveTo.Ptr(),
		})
	}

	var usage []usageRow
	if err := s.db.SelectContext(ctx, &usage, s.db.Rebind(`
		SELECT customer_id, usage_date, units
		FROM usage_events
		WHERE usage_date >= ? AND usage_date < ?`), start, end); err != nil {
		return nil, fmt.Errorf("failed to load usage_events: %w", err)
	}
	for _, u := range usage {
		ds.Usage = append(ds.Usage, billing.UsageEvent{
			CustomerID: u.CustomerID,
			UsageDate:  u.UsageDate.Time,
			Units:      u.Units,
		})
	}

	var err error
	if ds.Discounts, err = s.loadAdjustments(ctx, "discount_rules", start, end); err != nil {
		return nil, err
	}
	if ds.TaxFees, err = s.loadAdjustments(ctx, "tax_fee_rules", start, end); err != nil {
		return nil, err
	}

	var lines []lineRow
	if err := s.db.SelectContext(ctx, &lines, s.db.Rebind(`
		SELECT customer_id, bill_month, line_type, amount, bill_id
		FROM billing_lines
		WHERE bill_month >= ? AND bill_month < ?`), start, end); err != nil {
		return nil, fmt.Errorf("failed to load billing_lines: %w", err)
	}
	for _, l := range lines {
		ds.BillingLines = append(ds.BillingLines, billing.BillingLine{
			CustomerID: l.CustomerID,
			Month:      l.Month.Time,
			LineType:   billing.LineType(l.LineType),
			Amount:     l.Amount,
			BillID:     l.BillID,
		})
	}

	return ds, nil
}

func (s *Store) loadAdjustments(ctx context.Context, table, start, end string) ([]billing.Adjustment, error) {
	query := s.db.Rebind(fmt.Sprintf(`
		SELECT customer_id, bill_month, amount
		FROM %s
		WHERE bill_month >= ? AND bill_month < ?`, table))

	var rows []adjustmentRow
	if err := s.db.SelectContext(ctx, &rows, query, start, end); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", table, err)
	}

	out := make([]billing.Adjustment, 0, len(rows))
	for _, r := range rows {
		out = append(out, billing.Adjustment{
			CustomerID: r.CustomerID,
			Month:      r.Month.Time,
			Amount:     r.Amount,
		})
	}
	return out, nil
}
