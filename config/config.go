// Package config loads revguard configuration from, in increasing order of
// precedence: built-in defaults, a YAML file, a .env file and the process
// environment. Command-line flags are applied on top by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Tamara540/telecom-revenue-protection/db/clickhouse"
	"github.com/Tamara540/telecom-revenue-protection/db/publish"
	"github.com/Tamara540/telecom-revenue-protection/db/sqlstore"
	"github.com/Tamara540/telecom-revenue-protection/decision/history"
	"github.com/Tamara540/telecom-revenue-protection/decision/pipeline"
	"github.com/Tamara540/telecom-revenue-protection/decision/policy"
	"github.com/Tamara540/telecom-revenue-protection/decision/window"
	"github.com/Tamara540/telecom-revenue-protection/pkg/confidence"
	"github.com/Tamara540/telecom-revenue-protection/pkg/platform"
)

// Source drivers.
const (
	DriverSQLite     = sqlstore.DriverSQLite
	DriverPostgres   = sqlstore.DriverPostgres
	DriverClickHouse = "clickhouse"
)

// Config is the full revguard configuration.
type Config struct {
	AsOfMonth       string  `yaml:"asof_month"`
	LookbackMonths  int     `yaml:"lookback_months"`
	PctTolerance    float64 `yaml:"pct_tolerance"`
	ZThreshold      float64 `yaml:"z_threshold"`
	MinMonths       int     `yaml:"min_months_for_stats"`
	BaselineMonths  int     `yaml:"baseline_months"`
	ConfidenceBonus float64 `yaml:"confidence_bonus"`
	Timezone        string  `yaml:"timezone"`
	Workers         int     `yaml:"workers"`

	Source      SourceConfig `yaml:"source"`
	Sink        SinkConfig   `yaml:"sink"`
	MetricsFile string       `yaml:"metrics_file"`
	Log         LogConfig    `yaml:"log"`
}

// SourceConfig selects and configures the backend records are read from.
// The same backend receives findings when the sink is enabled.
type SourceConfig struct {
	Driver       string            `yaml:"driver"`
	DSN          string            `yaml:"dsn"`
	QueryTimeout time.Duration     `yaml:"query_timeout"`
	ClickHouse   clickhouse.Config `yaml:"clickhouse"`
}

// SinkConfig controls publishing of findings.
type SinkConfig struct {
	Enabled   bool `yaml:"enabled"`
	BatchSize int  `yaml:"batch_size"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the documented defaults.
func Default() *Config {
	ch := *clickhouse.DefaultConfig()
	ch.QueryTimeout = 0 // inherits source.query_timeout

	return &Config{
		LookbackMonths:  window.DefaultLookback,
		PctTolerance:    policy.DefaultTolerance,
		ZThreshold:      confidence.DefaultZThreshold,
		MinMonths:       history.DefaultMinMonths,
		BaselineMonths:  history.DefaultBaselineMonths,
		ConfidenceBonus: confidence.DefaultBonus,
		Timezone:        "UTC",
		Source: SourceConfig{
			Driver:       DriverSQLite,
			DSN:          sqlstore.DefaultConfig().DSN,
			QueryTimeout: sqlstore.DefaultConfig().QueryTimeout,
			ClickHouse:   ch,
		},
		Sink: SinkConfig{
			BatchSize: publish.DefaultBatchSize,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (*Config, error) {
	loadDotEnv()

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode overlays YAML from r onto the receiver. Unknown keys are rejected.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return c.Decode(bytes.NewReader(data))
}

// applyEnv overrides fields from REVGUARD_*, CLICKHOUSE_* and LOG_* variables.
func (c *Config) applyEnv() {
	c.AsOfMonth = platform.GetEnv("REVGUARD_ASOF_MONTH", c.AsOfMonth)
	c.LookbackMonths = platform.GetEnvInt("REVGUARD_LOOKBACK_MONTHS", c.LookbackMonths)
	c.PctTolerance = platform.GetEnvFloat("REVGUARD_PCT_TOLERANCE", c.PctTolerance)
	c.ZThreshold = platform.GetEnvFloat("REVGUARD_Z_THRESHOLD", c.ZThreshold)
	c.MinMonths = platform.GetEnvInt("REVGUARD_MIN_MONTHS_FOR_STATS", c.MinMonths)
	c.BaselineMonths = platform.GetEnvInt("REVGUARD_BASELINE_MONTHS", c.BaselineMonths)
	c.ConfidenceBonus = platform.GetEnvFloat("REVGUARD_CONFIDENCE_BONUS", c.ConfidenceBonus)
	c.Timezone = platform.GetEnv("REVGUARD_TIMEZONE", c.Timezone)
	c.Workers = platform.GetEnvInt("REVGUARD_WORKERS", c.Workers)

	c.Source.Driver = platform.GetEnv("REVGUARD_SOURCE_DRIVER", c.Source.Driver)
	c.Source.DSN = platform.GetEnv("REVGUARD_DSN", c.Source.DSN)

	ch := &c.Source.ClickHouse
	ch.Host = platform.GetEnv("CLICKHOUSE_HOST", ch.Host)
	ch.Port = platform.GetEnvInt("CLICKHOUSE_PORT", ch.Port)
	ch.Database = platform.GetEnv("CLICKHOUSE_DATABASE", ch.Database)
	ch.Username = platform.GetEnv("CLICKHOUSE_USER", ch.Username)
	ch.Password = platform.GetEnv("CLICKHOUSE_PASSWORD", ch.Password)

	c.Sink.Enabled = platform.GetEnvBool("REVGUARD_SINK_ENABLED", c.Sink.Enabled)
	c.Sink.BatchSize = platform.GetEnvInt("REVGUARD_SINK_BATCH_SIZE", c.Sink.BatchSize)
	c.MetricsFile = platform.GetEnv("REVGUARD_METRICS_FILE", c.MetricsFile)

	c.Log.Level = platform.GetEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = platform.GetEnv("LOG_FORMAT", c.Log.Format)
}

// Validate rejects out-of-range values.
func (c *Config) Validate() error {
	var errs []error

	if c.AsOfMonth != "" {
		if _, err := window.ParseMonth(c.AsOfMonth); err != nil {
			errs = append(errs, fmt.Errorf("asof_month: %w", err))
		}
	}
	if c.LookbackMonths < 1 {
		errs = append(errs, fmt.Errorf("lookback_months must be at least 1, got %d", c.LookbackMonths))
	}
	if c.PctTolerance < 0 || c.PctTolerance >= 1 {
		errs = append(errs, fmt.Errorf("pct_tolerance must be in [0, 1), got %g", c.PctTolerance))
	}
	if c.ZThreshold <= 0 {
		errs = append(errs, fmt.Errorf("z_threshold must be positive, got %g", c.ZThreshold))
	}
	if c.MinMonths < 2 {
		errs = append(errs, fmt.Errorf("min_months_for_stats must be at least 2, got %d", c.MinMonths))
	}
	if c.BaselineMonths < c.MinMonths {
		errs = append(errs, fmt.Errorf("baseline_months (%d) must not be below min_months_for_stats (%d)",
			c.BaselineMonths, c.MinMonths))
	}
	if c.ConfidenceBonus < 0 || c.ConfidenceBonus > 1 {
		errs = append(errs, fmt.Errorf("confidence_bonus must be in [0, 1], got %g", c.ConfidenceBonus))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.Sink.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("sink.batch_size must be at least 1, got %d", c.Sink.BatchSize))
	}

	switch strings.ToLower(c.Source.Driver) {
	case DriverSQLite, DriverPostgres:
		if c.Source.DSN == "" {
			errs = append(errs, fmt.Errorf("source.dsn is required for driver %s", c.Source.Driver))
		}
	case DriverClickHouse:
		if c.Source.ClickHouse.Host == "" || c.Source.ClickHouse.Port <= 0 {
			errs = append(errs, fmt.Errorf("source.clickhouse host and port are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("source.driver must be sqlite, postgres or clickhouse, got %q", c.Source.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Options converts the analysis settings to pipeline options.
func (c *Config) Options() (pipeline.Options, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("invalid timezone: %w", err)
	}

	opts := pipeline.DefaultOptions()
	opts.Lookback = c.LookbackMonths
	opts.Location = loc
	opts.Tolerance = c.PctTolerance
	opts.ZThreshold = c.ZThreshold
	opts.ConfidenceBonus = c.ConfidenceBonus
	opts.MinMonths = c.MinMonths
	opts.BaselineMonths = c.BaselineMonths
	if c.Workers > 0 {
		opts.Workers = c.Workers
	}

	if c.AsOfMonth != "" {
		asOf, err := window.ParseMonth(c.AsOfMonth)
		if err != nil {
			return pipeline.Options{}, err
		}
		opts.AsOf = asOf
	}

	return opts, nil
}

// SQLConfig returns the sqlstore settings for the sqlite and postgres drivers.
func (c *Config) SQLConfig() sqlstore.Config {
	cfg := sqlstore.DefaultConfig()
	cfg.Driver = strings.ToLower(c.Source.Driver)
	cfg.DSN = c.Source.DSN
	if c.Source.QueryTimeout > 0 {
		cfg.QueryTimeout = c.Source.QueryTimeout
	}
	return cfg
}

// ClickHouseConfig returns the ClickHouse connection settings.
func (c *Config) ClickHouseConfig() *clickhouse.Config {
	cfg := c.Source.ClickHouse
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = c.Source.QueryTimeout
	}
	return &cfg
}

// loadDotEnv loads the first .env found in the working directory or the
// user config directory. Variables already set are kept.
func loadDotEnv() {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "revguard", ".env"))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}
