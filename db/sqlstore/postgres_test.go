package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tamara540/telecom-revenue-protection/decision/window"
	"github.com/Tamara540/telecom-revenue-protection/pkg/api"
)

func mockPostgres(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	return New(sqlx.NewDb(mockDB, "postgres"), 5*time.Second), mock
}

func TestPostgresLoadDataset(t *testing.T) {
	s, mock := mockPostgres(t)
	assert.Equal(t, DriverPostgres, s.Driver())

	w, err := window.New(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), 3, time.UTC)
	require.NoError(t, err)

	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT customer_id FROM customers")).
		WillReturnRows(sqlmock.NewRows([]string{"customer_id"}).AddRow("c1"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM plans")).
		WillReturnRows(sqlmock.NewRows([]string{"plan_id", "monthly_rate", "included_units", "overage_rate"}).
			AddRow("basic", []byte("60.0000"), []byte("0"), []byte("0")))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE effective_from < $1 AND (effective_to IS NULL OR effective_to > $2)")).
		WithArgs("2025-05-01", "2025-02-01").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "plan_id", "effective_from", "effective_to"}).
			AddRow("c1", "basic", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), nil))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE usage_date >= $1 AND usage_date < $2")).
		WithArgs("2025-02-01", "2025-05-01").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "usage_date", "units"}).
			AddRow("c1", time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), []byte("12.5")))
	mock.ExpectQuery(regexp.QuoteMeta("FROM discount_rules")).
		WithArgs("2025-02-01", "2025-05-01").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "bill_month", "amount"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM tax_fee_rules")).
		WithArgs("2025-02-01", "2025-05-01").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "bill_month", "amount"}).
			AddRow("c1", mar, []byte("4.20")))
	mock.ExpectQuery(regexp.QuoteMeta("FROM billing_lines")).
		WithArgs("2025-02-01", "2025-05-01").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "bill_month", "line_type", "amount", "bill_id"}).
			AddRow("c1", feb, "base", []byte("60.00"), "inv-1").
			AddRow("c1", mar, "BASE ", []byte("60.00"), "inv-2"))

	ds, err := s.LoadDataset(context.Background(), w)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []string{"c1"}, ds.CustomerIDs())
	require.Len(t, ds.PlanHistory, 1)
	assert.Nil(t, ds.PlanHistory[0].EffectiveTo)
	require.Len(t, ds.Usage, 1)
	assert.True(t, ds.Usage[0].Units.Equal(decimal.RequireFromString("12.5")))
	assert.Empty(t, ds.Discounts)
	require.Len(t, ds.TaxFees, 1)
	require.Len(t, ds.BillingLines, 2)
	assert.Equal(t, feb, ds.BillingLines[0].Month)
	assert.Equal(t, "BASE ", string(ds.BillingLines[1].LineType), "line types are normalized by validation, not the loader")
}

func TestPostgresLoadDatasetQueryError(t *testing.T) {
	s, mock := mockPostgres(t)

	w, err := window.New(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), 1, time.UTC)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT DISTINCT customer_id").WillReturnError(errors.New("connection reset"))

	_, err = s.LoadDataset(context.Background(), w)
	assert.ErrorContains(t, err, "failed to load customers")
	assert.ErrorContains(t, err, "connection reset")
}

func TestPostgresWriteFindings(t *testing.T) {
	s, mock := mockPostgres(t)
	runID := uuid.New()
	month := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	findings := []api.Finding{
		{RunID: runID, Rank: 1, CustomerID: "c1", BillMonth: month, Confidence: 0.95},
		{RunID: runID, Rank: 2, CustomerID: "c2", BillMonth: month, Confidence: 0.25},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO billing_anomalies"))
	prep.ExpectExec().
		WithArgs(runID.String(), 1, "c1", "2025-04-01",
			sqlmock.AnyArg(), 0.95, sqlmock.AnyArg(), sqlmock.AnyArg(), false,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.WriteFindings(context.Background(), findings))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriteFindingsRollsBack(t *testing.T) {
	s, mock := mockPostgres(t)
	month := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO billing_anomalies"))
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.WriteFindings(context.Background(), []api.Finding{{CustomerID: "c1", BillMonth: month}})
	assert.ErrorContains(t, err, "failed to insert finding for c1 2025-04")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriteRun(t *testing.T) {
	s, mock := mockPostgres(t)
	runID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reconciliation_runs")).
		WithArgs(runID.String(), "2025-04-01", 12, 0.12, 2.25,
			sqlmock.AnyArg(), sqlmock.AnyArg(), 3, 36, 1, 0, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.WriteRun(context.Background(), api.RunSummary{
		RunID:          runID,
		AsOfMonth:      time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		LookbackMonths: 12,
		Tolerance:      0.12,
		ZThreshold:     2.25,
		Customers:      3,
		CustomerMonths: 36,
		Findings:       1,
		Issues:         2,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaDialects(t *testing.T) {
	pg, err := Schema("postgresql")
	require.NoError(t, err)
	sqlite, err := Schema(DriverSQLite)
	require.NoError(t, err)

	assert.Equal(t, len(pg), len(sqlite))
	for _, stmt := range pg {
		assert.NotContains(t, stmt, "{")
	}
	assert.Contains(t, pg[1], "NUMERIC(18,4)")
	assert.Contains(t, sqlite[1], "monthly_rate   TEXT")

	_, err = Schema("mysql")
	assert.Error(t, err)
}
