// revguard - telecom billing reconciliation and anomaly triage
//
// Usage:
//
//	revguard reconcile --asof 2025-04 --lookback 12 [options]
//	revguard window --asof 2025-04
//	revguard schema
//	revguard rules
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Tamara540/telecom-revenue-protection/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	defaults := config.Default()

	return &cli.App{
		Name:    "revguard",
		Usage:   "Reconcile expected against billed telecom charges and rank anomalies for investigation",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"REVGUARD_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   defaults.Log.Level,
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   defaults.Log.Format,
				Usage:   "Log format (text, json)",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "source",
				Value:   defaults.Source.Driver,
				Usage:   "Source backend (sqlite, postgres, clickhouse)",
				EnvVars: []string{"REVGUARD_SOURCE_DRIVER"},
			},
			&cli.StringFlag{
				Name:    "dsn",
				Value:   defaults.Source.DSN,
				Usage:   "Database DSN for the sqlite and postgres backends",
				EnvVars: []string{"REVGUARD_DSN"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-host",
				Value:   defaults.Source.ClickHouse.Host,
				Usage:   "ClickHouse host",
				EnvVars: []string{"CLICKHOUSE_HOST"},
			},
			&cli.IntFlag{
				Name:    "clickhouse-port",
				Value:   defaults.Source.ClickHouse.Port,
				Usage:   "ClickHouse native port",
				EnvVars: []string{"CLICKHOUSE_PORT"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-database",
				Value:   defaults.Source.ClickHouse.Database,
				Usage:   "ClickHouse database",
				EnvVars: []string{"CLICKHOUSE_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-user",
				Value:   defaults.Source.ClickHouse.Username,
				Usage:   "ClickHouse user",
				EnvVars: []string{"CLICKHOUSE_USER"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-password",
				Usage:   "ClickHouse password",
				EnvVars: []string{"CLICKHOUSE_PASSWORD"},
			},
		},

		Commands: []*cli.Command{
			reconcileCommand(),
			windowCommand(),
			schemaCommand(),
			rulesCommand(),
			versionCommand(),
		},
	}
}

// loadConfig reads the configuration file and environment, then applies
// any global flags given explicitly on the command line.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if c.IsSet("source") {
		cfg.Source.Driver = c.String("source")
	}
	if c.IsSet("dsn") {
		cfg.Source.DSN = c.String("dsn")
	}

	ch := &cfg.Source.ClickHouse
	if c.IsSet("clickhouse-host") {
		ch.Host = c.String("clickhouse-host")
	}
	if c.IsSet("clickhouse-port") {
		ch.Port = c.Int("clickhouse-port")
	}
	if c.IsSet("clickhouse-database") {
		ch.Database = c.String("clickhouse-database")
	}
	if c.IsSet("clickhouse-user") {
		ch.Username = c.String("clickhouse-user")
	}
	if c.IsSet("clickhouse-password") {
		ch.Password = c.String("clickhouse-password")
	}

	return cfg, nil
}
