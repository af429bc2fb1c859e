package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tamara540/telecom-revenue-protection/decision/billing"
	"github.com/Tamara540/telecom-revenue-protection/decision/pipeline"
	"github.com/Tamara540/telecom-revenue-protection/pkg/api"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sampleReport flags two customers in April 2025: one never billed, one
// billed without any plan.
func sampleReport(t *testing.T) *api.Report {
	t.Helper()

	april := date(2025, 4, 1)
	ds := &billing.Dataset{
		Customers: []billing.Customer{{ID: "ok"}, {ID: "missing"}, {ID: "stray"}},
		Plans: []billing.Plan{
			{ID: "basic", MonthlyRate: decimal.NewFromInt(100), IncludedUnits: decimal.NewFromInt(10), OverageRate: decimal.NewFromInt(1)},
		},
		PlanHistory: []billing.PlanInterval{
			{CustomerID: "ok", PlanID: "basic", EffectiveFrom: date(2024, 1, 1)},
			{CustomerID: "missing", PlanID: "basic", EffectiveFrom: date(2024, 1, 1)},
		},
		BillingLines: []billing.BillingLine{
			{CustomerID: "ok", Month: april, LineType: billing.LineBase, Amount: decimal.NewFromInt(100), BillID: "b1"},
			{CustomerID: "stray", Month: april, LineType: billing.LineBase, Amount: decimal.NewFromInt(40), BillID: "b2"},
		},
	}

	opts := pipeline.DefaultOptions()
	opts.AsOf = april
	opts.Lookback = 1

	res, err := pipeline.NewEngine(zerolog.Nop()).Run(context.Background(), ds, opts)
	require.NoError(t, err)
	return Build(res)
}

func TestBuild(t *testing.T) {
	rep := sampleReport(t)

	assert.Equal(t, 3, rep.Summary.Customers)
	assert.Equal(t, 3, rep.Summary.CustomerMonths)
	assert.Equal(t, 2, rep.Summary.Findings)
	assert.Equal(t, 1, rep.Summary.ByReason["MISSING_BILL"])
	assert.Equal(t, 1, rep.Summary.ByReason["UNEXPECTED_BILL"])

	require.Len(t, rep.Findings, 2)

	first := rep.Findings[0]
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, "missing", first.CustomerID)
	assert.Equal(t, "MISSING_BILL", first.Reason())
	assert.Equal(t, 0.95, first.Confidence)
	assert.Equal(t, rep.Summary.RunID, first.RunID)
	assert.True(t, first.Pct.Base.Valid)
	assert.False(t, first.Pct.Usage.Valid)
	assert.NotEmpty(t, first.Drivers)

	second := rep.Findings[1]
	assert.Equal(t, "stray", second.CustomerID)
	assert.Equal(t, "UNEXPECTED_BILL", second.Reason())
	assert.True(t, second.PctDiffUnbounded)
	assert.False(t, second.PctDiff.Valid)
	assert.Equal(t, "100.0%", percent(second.DisplayPct()))
	assert.Nil(t, second.ZScore)
	assert.Equal(t, 0.0, second.DisplayZ())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("md")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatTable, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(t), FormatJSON))

	var decoded struct {
		Summary  map[string]any   `json:"summary"`
		Findings []map[string]any `json:"findings"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Findings, 2)

	stray := decoded.Findings[1]
	assert.Nil(t, stray["pct_diff"])
	assert.Equal(t, true, stray["pct_diff_unbounded"])
	assert.Nil(t, stray["z_score"])
	assert.Equal(t, "UNEXPECTED_BILL", stray["anomaly_reason"])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(t), FormatCSV))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])

	row := records[2]
	assert.Equal(t, "stray", row[1])
	assert.Equal(t, "2025-04-01", row[2])
	assert.Equal(t, "", row[5], "absent z-score is an empty cell")
	assert.Equal(t, "", row[8], "unbounded pct is an empty cell")
	assert.Equal(t, "true", row[9])
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(t), FormatTable))

	out := buf.String()
	assert.Contains(t, out, "BILLING RECONCILIATION")
	assert.Contains(t, out, "MISSING_BILL")
	assert.Contains(t, out, "2025-04")
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(t), FormatMarkdown))

	out := buf.String()
	assert.Contains(t, out, "## 📡 Billing Reconciliation Report")
	assert.Contains(t, out, "| 1 | missing | 2025-04 | MISSING_BILL |")
	assert.Contains(t, out, "100.0%")
}

func TestWriteTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, &api.Report{}, FormatTable))
	assert.Contains(t, buf.String(), "No customer-months require investigation")
}
