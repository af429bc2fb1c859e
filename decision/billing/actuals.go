package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Actuals are the real billed amounts of one customer-month.
type Actuals struct {
	Base      decimal.Decimal `json:"base"`
	Usage     decimal.Decimal `json:"usage"`
	Discount  decimal.Decimal `json:"discount"`
	TaxFee    decimal.Decimal `json:"taxes_fees"`
	Total     decimal.Decimal `json:"total"`
	BillCount int             `json:"bill_count"`
}

// Billed reports whether at least one bill document was issued.
func (a Actuals) Billed() bool {
	return a.BillCount > 0
}

// AggregateActuals sums billing lines per month. Tax and fee lines share a
// bucket; "other" lines only reach the total. BillCount counts distinct
// bill documents per month.
func AggregateActuals(lines []BillingLine) map[time.Time]Actuals {
	out := make(map[time.Time]Actuals)
	bills := make(map[time.Time]map[string]struct{})

	for _, line := range lines {
		month := normalizeMonth(line.Month)
		a := out[month]

		switch line.LineType {
		case LineBase:
			a.Base = a.Base.Add(line.Amount)
		case LineUsage:
			a.Usage = a.Usage.Add(line.Amount)
		case LineDiscount:
			a.Discount = a.Discount.Add(line.Amount)
		case LineTax, LineFee:
			a.TaxFee = a.TaxFee.Add(line.Amount)
		}
		a.Total = a.Total.Add(line.Amount)

		if bills[month] == nil {
			bills[month] = make(map[string]struct{})
		}
		bills[month][line.BillID] = struct{}{}
		a.BillCount = len(bills[month])

		out[month] = a
	}

	return out
}

// ActualsFor returns the actuals of month, zero-filled when nothing was billed.
func ActualsFor(byMonth map[time.Time]Actuals, month time.Time) Actuals {
	if a, ok := byMonth[month]; ok {
		return a
	}
	return Actuals{}
}
