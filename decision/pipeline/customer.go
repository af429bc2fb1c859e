package pipeline

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Tamara540/telecom-revenue-protection/decision/billing"
	"github.com/Tamara540/telecom-revenue-protection/decision/coverage"
	"github.com/Tamara540/telecom-revenue-protection/decision/estimation"
	"github.com/Tamara540/telecom-revenue-protection/decision/history"
	"github.com/Tamara540/telecom-revenue-protection/decision/policy"
	"github.com/Tamara540/telecom-revenue-protection/decision/triage"
	"github.com/Tamara540/telecom-revenue-protection/decision/window"
	qerrors "github.com/Tamara540/telecom-revenue-protection/pkg/errors"
)

type customerTask struct {
	customerID string
	records    *billing.CustomerRecords
	plans      map[string]billing.Plan
	months     []window.CustomerMonth // ascending
	classifier *policy.Engine
	scorer     triage.Scorer
	opts       Options
}

type customerResult struct {
	rows   []triage.Scored
	issues []*qerrors.QualityError
	failed bool
}

// processCustomer evaluates every month of one customer in order.
func (e *Engine) processCustomer(task customerTask) customerResult {
	var res customerResult

	units := estimation.SumUnits(task.records.Usage)
	discounts := estimation.SumAdjustments(task.records.Discounts)
	taxFees := estimation.SumAdjustments(task.records.TaxFees)
	actuals := billing.AggregateActuals(task.records.Lines)

	tracker := history.NewTracker(task.opts.BaselineMonths, task.opts.MinMonths)
	res.rows = make([]triage.Scored, 0, len(task.months))

	for _, cm := range task.months {
		coverages := coverage.Resolve(task.records.Intervals, task.plans, cm.Month)
		if len(coverages) > 1 {
			res.issues = append(res.issues, qerrors.NewOverlappingPlansError(cm.CustomerID, cm.Month, len(coverages)))
		}

		exp := estimation.Compose(cm, coverages, amount(units, cm.Month), amount(discounts, cm.Month), amount(taxFees, cm.Month))
		act := billing.ActualsFor(actuals, cm.Month)
		cmp := task.classifier.Evaluate(exp, act)

		baseline, err := tracker.Observe(cm.Month, act.Total, act.Billed())
		if err != nil {
			return customerResult{
				failed: true,
				issues: []*qerrors.QualityError{qerrors.NewCustomerFailedError(task.customerID, fmt.Errorf("baseline: %w", err))},
			}
		}

		res.rows = append(res.rows, task.scorer.Score(cm.CustomerID, cm.Month, cmp, baseline))
	}

	return res
}

func amount(byMonth map[time.Time]decimal.Decimal, month time.Time) decimal.Decimal {
	if v, ok := byMonth[month]; ok {
		return v
	}
	return decimal.Zero
}
