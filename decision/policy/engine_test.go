package policy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tamara540/telecom-revenue-protection/decision/billing"
	"github.com/Tamara540/telecom-revenue-protection/decision/estimation"
)

func d(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// expected builds a planned customer-month with 5 of 10 included units used.
func expected(base, usage, discount, taxFee float64) estimation.Expected {
	e := estimation.Expected{
		Base:          d(base),
		Usage:         d(usage),
		Discount:      d(discount),
		TaxFee:        d(taxFee),
		HasPlan:       true,
		UnitsUsed:     d(5),
		IncludedUnits: d(10),
	}
	e.Total = e.Base.Add(e.Usage).Add(e.Discount).Add(e.TaxFee)
	return e
}

func actual(base, usage, discount, taxFee float64, bills int) billing.Actuals {
	a := billing.Actuals{
		Base:      d(base),
		Usage:     d(usage),
		Discount:  d(discount),
		TaxFee:    d(taxFee),
		BillCount: bills,
	}
	a.Total = a.Base.Add(a.Usage).Add(a.Discount).Add(a.TaxFee)
	return a
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultTolerance)
	require.NoError(t, err)
	return e
}

func TestNewEngine(t *testing.T) {
	_, err := NewEngine(-0.1)
	assert.Error(t, err)
	_, err = NewEngine(1)
	assert.Error(t, err)

	e, err := NewEngine(0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, e.Tolerance())
}

func TestRulesOrder(t *testing.T) {
	var got []Reason
	for _, r := range newEngine(t).Rules() {
		got = append(got, r.Reason)
		assert.Equal(t, Severity(r.Reason), r.Severity)
		assert.NotEmpty(t, r.Description)
	}

	assert.Equal(t, []Reason{
		ReasonMissingBill,
		ReasonDuplicateBill,
		ReasonUnexpectedBill,
		ReasonAllowanceMismatch,
		ReasonBaseProrationMismatch,
		ReasonUsageMismatch,
		ReasonDiscountMismatch,
		ReasonTaxFeeMismatch,
		ReasonOverBilled,
		ReasonUnderBilled,
	}, got)
}

func TestSeverity(t *testing.T) {
	assert.Equal(t, 0.95, Severity(ReasonMissingBill))
	assert.Equal(t, 0.65, Severity(ReasonOverBilled))
	assert.Equal(t, 0.65, Severity(ReasonUnderBilled))
	assert.Equal(t, 0.0, Severity(ReasonNone))
	assert.Equal(t, "none", ReasonNone.String())
}

func TestClassify(t *testing.T) {
	e := newEngine(t)

	tests := []struct {
		name string
		exp  estimation.Expected
		act  billing.Actuals
		want Reason
	}{
		{
			name: "reconciled month",
			exp:  expected(50, 0, 0, 10),
			act:  actual(50, 0, 0, 10, 1),
			want: ReasonNone,
		},
		{
			name: "missing bill beats any deviation",
			exp:  expected(1000, 0, 0, 0),
			act:  actual(0, 0, 0, 0, 0),
			want: ReasonMissingBill,
		},
		{
			name: "duplicate bill even when amounts reconcile",
			exp:  expected(100, 0, 0, 0),
			act:  actual(100, 0, 0, 0, 2),
			want: ReasonDuplicateBill,
		},
		{
			name: "charges without expectation",
			exp:  estimation.Expected{Total: decimal.Zero},
			act:  actual(50, 0, 0, 0, 1),
			want: ReasonUnexpectedBill,
		},
		{
			name: "usage billed inside the allowance",
			exp:  expected(100, 0, 0, 0),
			act:  actual(100, 5, 0, 0, 1),
			want: ReasonAllowanceMismatch,
		},
		{
			name: "allowance checked before proration",
			exp:  expected(100, 0, 0, 0),
			act:  actual(150, 5, 0, 0, 1),
			want: ReasonAllowanceMismatch,
		},
		{
			name: "base off by more than tolerance",
			exp:  expected(50, 0, 0, 0),
			act:  actual(100, 0, 0, 0, 1),
			want: ReasonBaseProrationMismatch,
		},
		{
			name: "small base deviation under the absolute floor",
			exp:  expected(10, 0, 0, 0),
			act:  actual(11.1, 0, 0, 0, 1),
			want: ReasonNone,
		},
		{
			name: "discount not applied",
			exp:  expected(100, 0, -20, 0),
			act:  actual(100, 0, 0, 0, 1),
			want: ReasonDiscountMismatch,
		},
		{
			name: "tax overcharged",
			exp:  expected(100, 0, 0, 10),
			act:  actual(100, 0, 0, 20, 1),
			want: ReasonTaxFeeMismatch,
		},
		{
			name: "each category within tolerance but total over",
			exp:  expected(100, 0, -10, 10),
			act:  actual(111, 0, -8.5, 11.5, 1),
			want: ReasonOverBilled,
		},
		{
			name: "each category within tolerance but total under",
			exp:  expected(100, 0, -10, 10),
			act:  actual(89, 0, -11.5, 8.5, 1),
			want: ReasonUnderBilled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.Evaluate(tt.exp, tt.act)
			assert.Equal(t, tt.want, c.Reason)
		})
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	e := newEngine(t)
	rules := e.Rules()

	// Several rules match this row; only the first is reported.
	c := Reconcile(
		estimation.Expected{HasPlan: true, Total: decimal.Zero, UnitsUsed: d(1), IncludedUnits: d(10)},
		actual(500, 50, 50, 50, 0),
		DefaultTolerance,
	)

	matches := 0
	for _, r := range rules {
		if r.Match(c) {
			matches++
		}
	}
	assert.Greater(t, matches, 1)
	assert.Equal(t, ReasonMissingBill, e.Classify(c))
}

func TestAllowanceMismatchNeedsPlan(t *testing.T) {
	c := Reconcile(
		estimation.Expected{HasPlan: false, Total: decimal.Zero},
		actual(0, 5, 0, 0, 1),
		DefaultTolerance,
	)
	assert.False(t, AllowanceMismatch(c))
	assert.True(t, UnexpectedBill(c))
}

func TestPctDiff(t *testing.T) {
	t.Run("both zero", func(t *testing.T) {
		p := NewPctDiff(decimal.Zero, decimal.Zero)
		assert.Equal(t, PctZero, p.State)
		v, ok := p.Value()
		assert.True(t, ok)
		assert.True(t, v.IsZero())
	})

	t.Run("zero expected with charges is unbounded", func(t *testing.T) {
		p := NewPctDiff(decimal.Zero, d(50))
		assert.True(t, p.Unbounded())
		_, ok := p.Value()
		assert.False(t, ok)
		assert.True(t, d(1).Equal(p.Display()))
		assert.False(t, p.Nullable().Valid)
	})

	t.Run("defined ratio", func(t *testing.T) {
		p := NewPctDiff(d(100), d(125))
		assert.Equal(t, PctDefined, p.State)
		assert.True(t, d(0.25).Equal(p.Ratio))
	})

	t.Run("category pct absent when nothing expected", func(t *testing.T) {
		c := Reconcile(expected(100, 0, 0, 0), actual(100, 0, 0, 3, 1), DefaultTolerance)
		assert.True(t, c.PctBase.Valid)
		assert.False(t, c.PctUsage.Valid)
		assert.False(t, c.PctDiscount.Valid)
		assert.False(t, c.PctTaxFee.Valid)
	})
}

func TestZeroExpectedHandling(t *testing.T) {
	e := newEngine(t)

	nothing := estimation.Expected{Total: decimal.Zero}

	c := e.Evaluate(nothing, actual(0, 0, 0, 0, 1))
	assert.Equal(t, ReasonNone, c.Reason)
	assert.Equal(t, PctZero, c.PctDiff.State)

	c = e.Evaluate(nothing, actual(50, 0, 0, 0, 1))
	assert.Equal(t, ReasonUnexpectedBill, c.Reason)
	assert.True(t, c.PctDiff.Unbounded())
}
