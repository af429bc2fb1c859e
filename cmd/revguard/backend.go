package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/Tamara540/telecom-revenue-protection/config"
	"github.com/Tamara540/telecom-revenue-protection/db/clickhouse"
	"github.com/Tamara540/telecom-revenue-protection/db/publish"
	"github.com/Tamara540/telecom-revenue-protection/db/sqlstore"
	"github.com/Tamara540/telecom-revenue-protection/decision/billing"
	"github.com/Tamara540/telecom-revenue-protection/decision/window"
)

// backend is a source of records that also accepts findings.
type backend interface {
	publish.Sink
	LoadDataset(ctx context.Context, w window.Window) (*billing.Dataset, error)
	Migrate(ctx context.Context) error
	Close() error
}

var (
	_ backend = (*clickhouse.Store)(nil)
	_ backend = (*sqlstore.Store)(nil)
)

func openBackend(cfg *config.Config) (backend, error) {
	switch strings.ToLower(cfg.Source.Driver) {
	case config.DriverClickHouse:
		store, err := clickhouse.NewStore(cfg.ClickHouseConfig())
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverSQLite, config.DriverPostgres:
		store, err := sqlstore.Open(cfg.SQLConfig())
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported source driver: %s", cfg.Source.Driver)
	}
}

// schemaStatements returns the DDL for the configured backend without
// connecting to it.
func schemaStatements(cfg *config.Config) ([]string, error) {
	if strings.EqualFold(cfg.Source.Driver, config.DriverClickHouse) {
		return clickhouse.Schema, nil
	}
	return sqlstore.Schema(cfg.Source.Driver)
}
