// Package report turns a pipeline result into the output contract and
// renders it.
package report

import (
	"github.com/shopspring/decimal"

	"github.com/Tamara540/telecom-revenue-protection/decision/pipeline"
	"github.com/Tamara540/telecom-revenue-protection/decision/triage"
	"github.com/Tamara540/telecom-revenue-protection/pkg/api"
	"github.com/Tamara540/telecom-revenue-protection/pkg/confidence"
)

// Build converts a run result into a report. Findings keep their rank order.
func Build(res *pipeline.Result) *api.Report {
	rep := &api.Report{
		Summary: api.RunSummary{
			RunID:          res.RunID,
			AsOfMonth:      res.Window.Last(),
			WindowStart:    res.Window.Start(),
			LookbackMonths: res.Window.Len(),
			Tolerance:      res.Options.Tolerance,
			ZThreshold:     res.Options.ZThreshold,
			MinMonths:      res.Options.MinMonths,
			StartedAt:      res.StartedAt,
			FinishedAt:     res.FinishedAt,
			Customers:      res.Stats.Customers,
			CustomerMonths: res.Stats.CustomerMonths,
			Findings:       res.Stats.Flagged,
			Failed:         res.Stats.FailedCustomers,
			Issues:         res.Stats.Issues,
			ByReason:       make(map[string]int, len(res.Stats.ByReason)),
		},
		Findings: make([]api.Finding, 0, len(res.Findings)),
		Issues:   res.Issues,
	}

	for reason, n := range res.Stats.ByReason {
		rep.Summary.ByReason[reason.String()] = n
	}

	for i, row := range res.Findings {
		f := NewFinding(row)
		f.RunID = res.RunID
		f.Rank = i + 1
		rep.Findings = append(rep.Findings, f)
	}

	return rep
}

// NewFinding maps a scored row onto the output contract.
func NewFinding(row triage.Scored) api.Finding {
	c := row.Comparison
	exp, act := c.Expected, c.Actual

	f := api.Finding{
		CustomerID:       row.CustomerID,
		BillMonth:        row.Month,
		ExpectedTotal:    orZero(exp.Total),
		ActualTotal:      orZero(act.Total),
		PctDiff:          c.PctDiff.Nullable(),
		PctDiffUnbounded: c.PctDiff.Unbounded(),
		ZScore:           row.Baseline.ZScore,
		Confidence:       confidence.Round2(row.Confidence),
		Severity:         row.Severity,
		Expected: api.Breakdown{
			Base:      orZero(exp.Base),
			Usage:     orZero(exp.Usage),
			Discount:  orZero(exp.Discount),
			TaxesFees: orZero(exp.TaxFee),
		},
		Actual: api.Breakdown{
			Base:      orZero(act.Base),
			Usage:     orZero(act.Usage),
			Discount:  orZero(act.Discount),
			TaxesFees: orZero(act.TaxFee),
		},
		Pct: api.PctBreakdown{
			Base:      c.PctBase,
			Usage:     c.PctUsage,
			Discount:  c.PctDiscount,
			TaxesFees: c.PctTaxFee,
		},
		BillCount:      act.BillCount,
		BaselineMonths: row.Baseline.Months,
		BaselineMean:   row.Baseline.Mean,
		BaselineStdDev: row.Baseline.StdDev,
		GoverningPlan:  exp.GoverningPlan,
	}

	if row.Reason().Present() {
		reason := string(row.Reason())
		f.AnomalyReason = &reason
	}

	for _, d := range exp.Drivers {
		f.Drivers = append(f.Drivers, api.Driver{
			Component: d.Component,
			PlanID:    d.PlanID,
			Amount:    d.Amount,
			Formula:   d.Formula,
		})
	}

	return f
}

// orZero replaces an uninitialized decimal with an explicit zero.
func orZero(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return decimal.Zero
	}
	return d
}
