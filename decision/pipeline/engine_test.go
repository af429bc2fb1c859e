package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tamara540/telecom-revenue-protection/decision/billing"
	"github.com/Tamara540/telecom-revenue-protection/decision/policy"
	"github.com/Tamara540/telecom-revenue-protection/decision/window"
	qerrors "github.com/Tamara540/telecom-revenue-protection/pkg/errors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func newTestEngine() *Engine {
	return NewEngine(zerolog.Nop()).WithClock(func() time.Time {
		return time.Date(2025, 4, 20, 9, 0, 0, 0, time.UTC)
	})
}

func options(lookback int) Options {
	opts := DefaultOptions()
	opts.Lookback = lookback
	opts.Workers = 2
	return opts
}

// halfMonthCustomer is subscribed to a 100/month plan for April 1-15.
func halfMonthCustomer() *billing.Dataset {
	april := date(2025, 4, 1)
	to := date(2025, 4, 16)
	return &billing.Dataset{
		Customers: []billing.Customer{{ID: "X"}},
		Plans: []billing.Plan{
			{ID: "basic", MonthlyRate: dec(100), IncludedUnits: dec(10), OverageRate: dec(1)},
		},
		PlanHistory: []billing.PlanInterval{
			{CustomerID: "X", PlanID: "basic", EffectiveFrom: april, EffectiveTo: &to},
		},
		TaxFees: []billing.Adjustment{{CustomerID: "X", Month: april, Amount: dec(10)}},
		BillingLines: []billing.BillingLine{
			{CustomerID: "X", Month: april, LineType: billing.LineBase, Amount: dec(50), BillID: "b1"},
			{CustomerID: "X", Month: april, LineType: billing.LineTax, Amount: dec(10), BillID: "b1"},
		},
	}
}

func TestRunReconciledMonth(t *testing.T) {
	res, err := newTestEngine().Run(context.Background(), halfMonthCustomer(), options(1))
	require.NoError(t, err)

	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	assert.Equal(t, "X", row.CustomerID)
	assert.Equal(t, date(2025, 4, 1), row.Month)
	assert.True(t, dec(60).Equal(row.Comparison.Expected.Total))
	assert.True(t, dec(60).Equal(row.Comparison.Actual.Total))
	assert.Equal(t, 1, row.Comparison.Actual.BillCount)
	assert.Equal(t, policy.ReasonNone, row.Reason())
	assert.Equal(t, policy.PctDefined, row.Comparison.PctDiff.State)
	ratio, ok := row.Comparison.PctDiff.Value()
	require.True(t, ok)
	assert.True(t, ratio.IsZero())

	assert.Empty(t, res.Findings)
	assert.Equal(t, 0, res.Stats.Flagged)
	assert.Equal(t, 1, res.Stats.CustomerMonths)
}

func TestRunMissingBill(t *testing.T) {
	ds := halfMonthCustomer()
	ds.BillingLines = nil

	res, err := newTestEngine().Run(context.Background(), ds, options(1))
	require.NoError(t, err)

	require.Len(t, res.Findings, 1)
	f := res.Findings[0]
	assert.Equal(t, policy.ReasonMissingBill, f.Reason())
	assert.GreaterOrEqual(t, f.Confidence, 0.95)
	assert.Nil(t, f.Baseline.ZScore)
	assert.Equal(t, 1, res.Stats.ByReason[policy.ReasonMissingBill])
}

func TestRunGridCompleteness(t *testing.T) {
	ds := &billing.Dataset{
		Customers: []billing.Customer{{ID: "a"}, {ID: "b"}, {ID: "a"}},
	}

	res, err := newTestEngine().Run(context.Background(), ds, options(6))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Stats.Customers)
	assert.Len(t, res.Rows, 12)

	seen := make(map[window.CustomerMonth]int)
	for _, r := range res.Rows {
		seen[window.CustomerMonth{CustomerID: r.CustomerID, Month: r.Month}]++
		// Nothing expected and nothing billed still means no bill was issued.
		assert.Equal(t, policy.ReasonMissingBill, r.Reason())
	}
	for _, id := range []string{"a", "b"} {
		for _, m := range res.Window.Months() {
			assert.Equal(t, 1, seen[window.CustomerMonth{CustomerID: id, Month: m}])
		}
	}
}

func TestRunStatisticalOutlier(t *testing.T) {
	ds := &billing.Dataset{
		Customers: []billing.Customer{{ID: "Y"}},
		Plans: []billing.Plan{
			{ID: "basic", MonthlyRate: dec(100), IncludedUnits: dec(10), OverageRate: dec(1)},
		},
		PlanHistory: []billing.PlanInterval{
			{CustomerID: "Y", PlanID: "basic", EffectiveFrom: date(2024, 1, 1)},
		},
	}

	taxes := []int64{0, 2, 4, 1, 3, 2, 0}
	for i, tax := range taxes {
		m := date(2025, time.Month(i+1), 1)
		bill := "y-" + m.Format("2006-01")
		ds.TaxFees = append(ds.TaxFees, billing.Adjustment{CustomerID: "Y", Month: m, Amount: dec(tax)})
		ds.BillingLines = append(ds.BillingLines,
			billing.BillingLine{CustomerID: "Y", Month: m, LineType: billing.LineBase, Amount: dec(100), BillID: bill},
			billing.BillingLine{CustomerID: "Y", Month: m, LineType: billing.LineTax, Amount: dec(tax), BillID: bill},
		)
	}

	// July: 110 units, 100 above the allowance, billed exactly as expected.
	july := date(2025, 7, 1)
	ds.Usage = append(ds.Usage, billing.UsageEvent{CustomerID: "Y", UsageDate: date(2025, 7, 9), Units: dec(110)})
	ds.BillingLines = append(ds.BillingLines,
		billing.BillingLine{CustomerID: "Y", Month: july, LineType: billing.LineUsage, Amount: dec(100), BillID: "y-2025-07"})

	opts := options(7)
	opts.AsOf = date(2025, 7, 31)

	res, err := newTestEngine().Run(context.Background(), ds, opts)
	require.NoError(t, err)

	require.Len(t, res.Findings, 1)
	f := res.Findings[0]
	assert.Equal(t, july, f.Month)
	assert.Equal(t, policy.ReasonNone, f.Reason())
	require.NotNil(t, f.Baseline.ZScore)
	assert.Greater(t, *f.Baseline.ZScore, 2.25)
	assert.Equal(t, 6, f.Baseline.Months)
	assert.Equal(t, 0.25, f.Confidence)
}

func TestRunIsolatesFailingCustomer(t *testing.T) {
	ds := halfMonthCustomer()
	ds.Customers = append(ds.Customers, billing.Customer{ID: "bad"})

	e := newTestEngine()
	process := e.processFn
	e.processFn = func(task customerTask) customerResult {
		if task.customerID == "bad" {
			panic("corrupt ledger")
		}
		return process(task)
	}

	res, err := e.Run(context.Background(), ds, options(1))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.FailedCustomers)
	assert.Len(t, res.Rows, 1)
	assert.Equal(t, "X", res.Rows[0].CustomerID)

	require.NotEmpty(t, res.Issues)
	last := res.Issues[len(res.Issues)-1]
	assert.Equal(t, qerrors.ErrCodeCustomerFailed, last.Code)
	assert.Equal(t, "bad", last.CustomerID)
	assert.Contains(t, last.Message, "corrupt ledger")
}

func TestRunReportsDataQuality(t *testing.T) {
	ds := halfMonthCustomer()
	ds.Usage = append(ds.Usage, billing.UsageEvent{CustomerID: "X", UsageDate: date(2025, 4, 2), Units: dec(-3)})
	// A second plan overlapping the first half of April.
	ds.PlanHistory = append(ds.PlanHistory, billing.PlanInterval{CustomerID: "X", PlanID: "basic", EffectiveFrom: date(2025, 4, 10)})

	res, err := newTestEngine().Run(context.Background(), ds, options(1))
	require.NoError(t, err)

	var codes []string
	for _, i := range res.Issues {
		codes = append(codes, i.Code)
	}
	assert.Contains(t, codes, qerrors.ErrCodeNegativeUnits)
	assert.Contains(t, codes, qerrors.ErrCodeOverlappingPlans)
	assert.Len(t, res.Rows, 1)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine().Run(ctx, halfMonthCustomer(), options(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRejectsInvalidOptions(t *testing.T) {
	opts := options(1)
	opts.Tolerance = 1.5

	_, err := newTestEngine().Run(context.Background(), halfMonthCustomer(), opts)
	assert.Error(t, err)
}

func TestRunDefaultsReferenceDate(t *testing.T) {
	res, err := newTestEngine().Run(context.Background(), halfMonthCustomer(), options(3))
	require.NoError(t, err)

	assert.Equal(t, date(2025, 4, 1), res.Window.Last())
	assert.Equal(t, date(2025, 2, 1), res.Window.Start())
	assert.NotEmpty(t, res.RunID.String())
	assert.Contains(t, res.Timings, StageReconcile)
}

func TestRunKeepsUsageOnItsCalendarMonth(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	ds := halfMonthCustomer()
	ds.Usage = []billing.UsageEvent{{CustomerID: "X", UsageDate: date(2025, 4, 1), Units: dec(15)}}

	opts := options(2)
	opts.Location = ny

	res, err := newTestEngine().Run(context.Background(), ds, opts)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	march, april := res.Rows[0], res.Rows[1]
	assert.Equal(t, date(2025, 3, 1), march.Month)
	assert.True(t, march.Comparison.Expected.Usage.IsZero())
	assert.Equal(t, date(2025, 4, 1), april.Month)
	assert.True(t, april.Comparison.Expected.Usage.IsPositive())
}

func TestRunZeroOptions(t *testing.T) {
	res, err := newTestEngine().Run(context.Background(), halfMonthCustomer(), Options{})
	require.NoError(t, err)

	def := DefaultOptions()
	assert.Equal(t, def.Lookback, res.Options.Lookback)
	assert.Equal(t, def.ZThreshold, res.Options.ZThreshold)
	assert.Equal(t, def.MinMonths, res.Options.MinMonths)
	assert.Equal(t, def.BaselineMonths, res.Options.BaselineMonths)
	assert.Equal(t, time.UTC, res.Options.Location)
	assert.Positive(t, res.Options.Workers)

	assert.Zero(t, res.Options.Tolerance)
	assert.Zero(t, res.Options.ConfidenceBonus)
}
