package billing

import (
	"sort"

	qerrors "github.com/Tamara540/telecom-revenue-protection/pkg/errors"
)

// CustomerRecords are the validated source rows of a single customer.
type CustomerRecords struct {
	CustomerID string
	Intervals  []PlanInterval // ordered by EffectiveFrom
	Usage      []UsageEvent
	Discounts  []Adjustment
	TaxFees    []Adjustment
	Lines      []BillingLine
}

// Ledger is a validated, per-customer view of a Dataset. Rejected rows are
// absent from it.
type Ledger struct {
	Plans     map[string]Plan
	customers []string
	records   map[string]*CustomerRecords
}

// Customers returns the distinct customer IDs in dataset order.
func (l *Ledger) Customers() []string {
	out := make([]string, len(l.customers))
	copy(out, l.customers)
	return out
}

// Records returns the rows of a customer. Customers without any rows get an
// empty, non-nil value.
func (l *Ledger) Records(customerID string) *CustomerRecords {
	if r, ok := l.records[customerID]; ok {
		return r
	}
	return &CustomerRecords{CustomerID: customerID}
}

// Validate rejects malformed rows and indexes the rest by customer.
// Problems are returned per record; a bad row never fails the whole run.
func Validate(ds *Dataset) (*Ledger, []*qerrors.QualityError) {
	var issues []*qerrors.QualityError

	ledger := &Ledger{
		Plans:   make(map[string]Plan, len(ds.Plans)),
		records: make(map[string]*CustomerRecords, len(ds.Customers)),
	}

	for _, c := range ds.Customers {
		if _, ok := ledger.records[c.ID]; ok {
			continue
		}
		ledger.customers = append(ledger.customers, c.ID)
		ledger.records[c.ID] = &CustomerRecords{CustomerID: c.ID}
	}

	for _, p := range ds.Plans {
		if field := negativePlanField(p); field != "" {
			issues = append(issues, qerrors.NewInvalidPlanError(p.ID, field))
			continue
		}
		if _, ok := ledger.Plans[p.ID]; !ok {
			ledger.Plans[p.ID] = p
		}
	}

	orphans := make(map[[2]string]bool)
	owner := func(customerID, dataset string) *CustomerRecords {
		if r, ok := ledger.records[customerID]; ok {
			return r
		}
		key := [2]string{customerID, dataset}
		if !orphans[key] {
			orphans[key] = true
			issues = append(issues, qerrors.NewOrphanRecordError(customerID, dataset))
		}
		return nil
	}

	for _, iv := range ds.PlanHistory {
		r := owner(iv.CustomerID, "plan_history")
		if r == nil {
			continue
		}
		iv.EffectiveFrom = normalizeDate(iv.EffectiveFrom)
		if iv.EffectiveTo != nil {
			to := normalizeDate(*iv.EffectiveTo)
			iv.EffectiveTo = &to
			if to.Before(iv.EffectiveFrom) {
				issues = append(issues, qerrors.NewInvertedIntervalError(iv.CustomerID, iv.PlanID, iv.EffectiveFrom, to))
				continue
			}
		}
		if _, ok := ledger.Plans[iv.PlanID]; !ok {
			issues = append(issues, qerrors.NewUnknownPlanError(iv.CustomerID, iv.PlanID))
			continue
		}
		r.Intervals = append(r.Intervals, iv)
	}

	for _, ev := range ds.Usage {
		r := owner(ev.CustomerID, "usage_events")
		if r == nil {
			continue
		}
		ev.UsageDate = normalizeDate(ev.UsageDate)
		if ev.Units.IsNegative() {
			issues = append(issues, qerrors.NewNegativeUnitsError(ev.CustomerID, ev.UsageDate))
			continue
		}
		r.Usage = append(r.Usage, ev)
	}

	for _, adj := range ds.Discounts {
		if r := owner(adj.CustomerID, "discount_rules"); r != nil {
			adj.Month = normalizeMonth(adj.Month)
			r.Discounts = append(r.Discounts, adj)
		}
	}

	for _, adj := range ds.TaxFees {
		if r := owner(adj.CustomerID, "tax_fee_rules"); r != nil {
			adj.Month = normalizeMonth(adj.Month)
			r.TaxFees = append(r.TaxFees, adj)
		}
	}

	for _, line := range ds.BillingLines {
		r := owner(line.CustomerID, "billing_lines")
		if r == nil {
			continue
		}
		line.Month = normalizeMonth(line.Month)
		lt, ok := ParseLineType(string(line.LineType))
		if !ok {
			issues = append(issues, qerrors.NewUnknownLineTypeError(line.CustomerID, line.BillID, string(line.LineType), line.Month))
			continue
		}
		if line.BillID == "" {
			issues = append(issues, qerrors.NewMissingBillIDError(line.CustomerID, line.Month))
			continue
		}
		line.LineType = lt
		r.Lines = append(r.Lines, line)
	}

	for _, r := range ledger.records {
		sort.SliceStable(r.Intervals, func(i, j int) bool {
			return r.Intervals[i].EffectiveFrom.Before(r.Intervals[j].EffectiveFrom)
		})
	}

	return ledger, issues
}

func negativePlanField(p Plan) string {
	switch {
	case p.MonthlyRate.IsNegative():
		return "monthly_rate"
	case p.IncludedUnits.IsNegative():
		return "included_units"
	case p.OverageRate.IsNegative():
		return "overage_rate"
	default:
		return ""
	}
}
