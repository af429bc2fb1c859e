package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Tamara540/telecom-revenue-protection/pkg/api"
)

// Format is an output rendering.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatCSV, FormatMarkdown:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format: %s", s)
	}
}

// Write renders rep to w.
func Write(w io.Writer, rep *api.Report, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, rep)
	case FormatCSV:
		return writeCSV(w, rep)
	case FormatMarkdown:
		return writeMarkdown(w, rep)
	default:
		return writeTable(w, rep)
	}
}

func writeJSON(w io.Writer, rep *api.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

var csvHeader = []string{
	"rank", "customer_id", "bill_month", "anomaly_reason", "confidence", "z_score",
	"expected_total", "actual_total", "pct_diff", "pct_diff_unbounded", "bill_count",
	"expected_base", "actual_base", "pct_base",
	"expected_usage", "actual_usage", "pct_usage",
	"expected_discount", "actual_discount", "pct_discount",
	"expected_taxes_fees", "actual_taxes_fees", "pct_taxes_fees",
	"baseline_months", "baseline_mean", "baseline_stddev",
}

// writeCSV writes one row per finding. Absent values are empty cells, so a
// missing z-score stays distinguishable from a zero one.
func writeCSV(w io.Writer, rep *api.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, f := range rep.Findings {
		z := ""
		if f.ZScore != nil {
			z = strconv.FormatFloat(*f.ZScore, 'f', 4, 64)
		}
		record := []string{
			strconv.Itoa(f.Rank),
			f.CustomerID,
			f.BillMonth.Format(time.DateOnly),
			f.Reason(),
			strconv.FormatFloat(f.Confidence, 'f', 2, 64),
			z,
			f.ExpectedTotal.StringFixed(2),
			f.ActualTotal.StringFixed(2),
			nullable(f.PctDiff),
			strconv.FormatBool(f.PctDiffUnbounded),
			strconv.Itoa(f.BillCount),
			f.Expected.Base.StringFixed(2), f.Actual.Base.StringFixed(2), nullable(f.Pct.Base),
			f.Expected.Usage.StringFixed(2), f.Actual.Usage.StringFixed(2), nullable(f.Pct.Usage),
			f.Expected.Discount.StringFixed(2), f.Actual.Discount.StringFixed(2), nullable(f.Pct.Discount),
			f.Expected.TaxesFees.StringFixed(2), f.Actual.TaxesFees.StringFixed(2), nullable(f.Pct.TaxesFees),
			strconv.Itoa(f.BaselineMonths),
			strconv.FormatFloat(f.BaselineMean, 'f', 2, 64),
			strconv.FormatFloat(f.BaselineStdDev, 'f', 2, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func writeTable(w io.Writer, rep *api.Report) error {
	s := rep.Summary
	p := &printer{w: w}

	p.println()
	p.println("╔══════════════════════════════════════════════════════════════╗")
	p.println("║                 📡 BILLING RECONCILIATION                     ║")
	p.println("╠══════════════════════════════════════════════════════════════╣")
	p.printf("║  Run:                   %-38s ║\n", s.RunID.String()[:8])
	p.printf("║  Window:                %-38s ║\n",
		fmt.Sprintf("%s .. %s", s.WindowStart.Format("2006-01"), s.AsOfMonth.Format("2006-01")))
	p.printf("║  Customers:             %-38d ║\n", s.Customers)
	p.printf("║  Customer-months:       %-38d ║\n", s.CustomerMonths)
	p.printf("║  Findings:              %-38d ║\n", s.Findings)
	p.printf("║  Data-quality issues:   %-38d ║\n", s.Issues)
	if s.Failed > 0 {
		p.printf("║  Failed customers:      %-38d ║\n", s.Failed)
	}
	p.println("╠══════════════════════════════════════════════════════════════╣")

	if len(rep.Findings) == 0 {
		p.println("║  ✅ No customer-months require investigation                 ║")
		p.println("╚══════════════════════════════════════════════════════════════╝")
		return p.err
	}

	p.println("║  #   CUSTOMER       MONTH    REASON              CONF    Z    ║")
	p.println("╠══════════════════════════════════════════════════════════════╣")
	for _, f := range rep.Findings {
		reason := f.Reason()
		if reason == "" {
			reason = "-"
		}
		p.printf("║  %-3d %-14s %-8s %-19s %4.2f %6.2f ║\n",
			f.Rank,
			truncate(f.CustomerID, 14),
			f.BillMonth.Format("2006-01"),
			truncate(reason, 19),
			f.Confidence,
			f.DisplayZ(),
		)
	}
	p.println("╚══════════════════════════════════════════════════════════════╝")
	return p.err
}

func writeMarkdown(w io.Writer, rep *api.Report) error {
	s := rep.Summary
	p := &printer{w: w}

	p.println("## 📡 Billing Reconciliation Report")
	p.println()
	p.println("| Metric | Value |")
	p.println("|--------|-------|")
	p.printf("| **Window** | %s .. %s |\n", s.WindowStart.Format("2006-01"), s.AsOfMonth.Format("2006-01"))
	p.printf("| **Customers** | %d |\n", s.Customers)
	p.printf("| **Customer-months** | %d |\n", s.CustomerMonths)
	p.printf("| **Findings** | %d |\n", s.Findings)
	p.printf("| **Data-quality issues** | %d |\n", s.Issues)

	if len(rep.Findings) > 0 {
		p.println()
		p.println("### 🔎 Findings")
		p.println()
		p.println("| # | Customer | Month | Reason | Confidence | Z | Expected | Actual | Deviation |")
		p.println("|---|----------|-------|--------|------------|---|----------|--------|-----------|")
		for _, f := range rep.Findings {
			reason := f.Reason()
			if reason == "" {
				reason = "-"
			}
			p.printf("| %d | %s | %s | %s | %.2f | %.2f | %s | %s | %s |\n",
				f.Rank, f.CustomerID, f.BillMonth.Format("2006-01"), reason,
				f.Confidence, f.DisplayZ(),
				f.ExpectedTotal.StringFixed(2), f.ActualTotal.StringFixed(2),
				percent(f.DisplayPct()))
		}
	}

	if len(rep.Issues) > 0 {
		p.println()
		p.println("### ⚠️ Data Quality")
		p.println()
		for _, issue := range rep.Issues {
			p.printf("- %s\n", issue.Error())
		}
	}

	return p.err
}

// printer remembers the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) println(args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintln(p.w, args...)
}

func nullable(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(4)
}

func percent(ratio decimal.Decimal) string {
	return ratio.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
