package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Tamara540/telecom-revenue-protection/config"
	"github.com/Tamara540/telecom-revenue-protection/db/publish"
	"github.com/Tamara540/telecom-revenue-protection/decision/pipeline"
	"github.com/Tamara540/telecom-revenue-protection/decision/policy"
	"github.com/Tamara540/telecom-revenue-protection/decision/window"
	"github.com/Tamara540/telecom-revenue-protection/pkg/api"
	"github.com/Tamara540/telecom-revenue-protection/pkg/metrics"
	"github.com/Tamara540/telecom-revenue-protection/pkg/platform"
	"github.com/Tamara540/telecom-revenue-protection/report"
)

// exitFindings is returned by reconcile --fail-on-findings when anything was flagged.
const exitFindings = 2

// stageLoad times source loading alongside the pipeline stages.
const stageLoad = "load"

// =============================================================================
// RECONCILE COMMAND
// =============================================================================

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Reconcile the analysis window and rank customer-months for investigation",
		Flags: append(analysisFlags(),
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Customers processed in parallel (default: number of CPUs)",
				EnvVars: []string{"REVGUARD_WORKERS"},
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   string(report.FormatTable),
				Usage:   "Output format (table, json, csv, markdown)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the report to a file instead of stdout",
			},
			&cli.BoolFlag{
				Name:    "publish",
				Usage:   "Append the run and its findings to the backend",
				EnvVars: []string{"REVGUARD_SINK_ENABLED"},
			},
			&cli.StringFlag{
				Name:    "metrics-file",
				Usage:   "Write Prometheus metrics to this textfile-collector path",
				EnvVars: []string{"REVGUARD_METRICS_FILE"},
			},
			&cli.BoolFlag{
				Name:  "fail-on-findings",
				Usage: fmt.Sprintf("Exit with status %d when any customer-month is flagged", exitFindings),
			},
		),
		Action: runReconcile,
	}
}

func analysisFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "asof",
			Usage:   "Reference month YYYY-MM (default: current month)",
			EnvVars: []string{"REVGUARD_ASOF_MONTH"},
		},
		&cli.IntFlag{
			Name:    "lookback",
			Usage:   "Number of months analyzed, ending at the reference month",
			EnvVars: []string{"REVGUARD_LOOKBACK_MONTHS"},
		},
		&cli.Float64Flag{
			Name:    "tolerance",
			Usage:   "Relative deviation tolerated before a mismatch is flagged",
			EnvVars: []string{"REVGUARD_PCT_TOLERANCE"},
		},
		&cli.Float64Flag{
			Name:    "z-threshold",
			Usage:   "Absolute z-score at which a month counts as a statistical outlier",
			EnvVars: []string{"REVGUARD_Z_THRESHOLD"},
		},
		&cli.IntFlag{
			Name:    "min-months",
			Usage:   "Prior billed months required before a z-score is computed",
			EnvVars: []string{"REVGUARD_MIN_MONTHS_FOR_STATS"},
		},
	}
}

// applyAnalysisFlags overlays explicitly set analysis flags and revalidates.
func applyAnalysisFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet("asof") {
		cfg.AsOfMonth = c.String("asof")
	}
	if c.IsSet("lookback") {
		cfg.LookbackMonths = c.Int("lookback")
	}
	if c.IsSet("tolerance") {
		cfg.PctTolerance = c.Float64("tolerance")
	}
	if c.IsSet("z-threshold") {
		cfg.ZThreshold = c.Float64("z-threshold")
	}
	if c.IsSet("min-months") {
		cfg.MinMonths = c.Int("min-months")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("publish") {
		cfg.Sink.Enabled = c.Bool("publish")
	}
	if c.IsSet("metrics-file") {
		cfg.MetricsFile = c.String("metrics-file")
	}
	return cfg.Validate()
}

func runReconcile(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := applyAnalysisFlags(c, cfg); err != nil {
		return err
	}

	logger := platform.InitLogger(cfg.Log.Level, cfg.Log.Format)

	format, err := report.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}

	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	// The loader and the engine must agree on the window.
	if opts.AsOf.IsZero() {
		opts.AsOf = time.Now()
	}
	w, err := window.New(opts.AsOf, opts.Lookback, opts.Location)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	loadStart := time.Now()
	ds, err := store.LoadDataset(ctx, w)
	if err != nil {
		return fmt.Errorf("failed to load source data: %w", err)
	}
	loadDuration := time.Since(loadStart)

	logger.Info().
		Str("source", cfg.Source.Driver).
		Str("window_start", w.Start().Format("2006-01")).
		Str("asof_month", w.Last().Format("2006-01")).
		Int("customers", len(ds.Customers)).
		Int("records", ds.RecordCount()).
		Dur("duration", loadDuration).
		Msg("Source data loaded")

	res, err := pipeline.NewEngine(logger).Run(ctx, ds, opts)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}
	res.Timings[stageLoad] = loadDuration

	rep := report.Build(res)

	if err := writeReport(c.App.Writer, c.String("output"), rep, format); err != nil {
		return err
	}

	if cfg.Sink.Enabled {
		if _, err := publish.NewPublisher(store, cfg.Sink.BatchSize, logger).Publish(ctx, rep); err != nil {
			return fmt.Errorf("failed to publish findings: %w", err)
		}
	}

	if cfg.MetricsFile != "" {
		m := metrics.NewRun()
		m.Record(rep, res.Timings)
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			return err
		}
		logger.Debug().Str("path", cfg.MetricsFile).Msg("Metrics written")
	}

	if c.Bool("fail-on-findings") && rep.HasFindings() {
		return cli.Exit(fmt.Sprintf("%d customer-months require investigation", len(rep.Findings)), exitFindings)
	}
	return nil
}

func writeReport(out io.Writer, path string, rep *api.Report, format report.Format) error {
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := report.Write(out, rep, format); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// =============================================================================
// WINDOW COMMAND
// =============================================================================

func windowCommand() *cli.Command {
	return &cli.Command{
		Name:  "window",
		Usage: "Print the months of the analysis window",
		Flags: analysisFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if err := applyAnalysisFlags(c, cfg); err != nil {
				return err
			}

			opts, err := cfg.Options()
			if err != nil {
				return err
			}
			if opts.AsOf.IsZero() {
				opts.AsOf = time.Now()
			}

			w, err := window.New(opts.AsOf, opts.Lookback, opts.Location)
			if err != nil {
				return err
			}
			for _, m := range w.Months() {
				fmt.Fprintln(c.App.Writer, m.Format("2006-01"))
			}
			return nil
		},
	}
}

// =============================================================================
// SCHEMA COMMAND
// =============================================================================

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Create the source and findings tables on the configured backend",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "print",
				Usage: "Print the DDL instead of applying it",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			if c.Bool("print") {
				stmts, err := schemaStatements(cfg)
				if err != nil {
					return err
				}
				for _, stmt := range stmts {
					fmt.Fprintf(c.App.Writer, "%s;\n\n", stmt)
				}
				return nil
			}

			logger := platform.InitLogger(cfg.Log.Level, cfg.Log.Format)

			store, err := openBackend(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(c.Context); err != nil {
				return err
			}
			logger.Info().Str("source", cfg.Source.Driver).Msg("Schema applied")
			return nil
		},
	}
}

// =============================================================================
// RULES COMMAND
// =============================================================================

func rulesCommand() *cli.Command {
	return &cli.Command{
		Name:  "rules",
		Usage: "List the anomaly rules in evaluation order",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:  "tolerance",
				Value: policy.DefaultTolerance,
				Usage: "Tolerance to show the thresholds for",
			},
		},
		Action: func(c *cli.Context) error {
			engine, err := policy.NewEngine(c.Float64("tolerance"))
			if err != nil {
				return err
			}
			printRules(c.App.Writer, engine)
			return nil
		},
	}
}

func printRules(w io.Writer, engine *policy.Engine) {
	fmt.Fprintf(w, "Category rules fire when |actual - expected| > max(%s, |expected| x %.2f).\n",
		policy.AbsoluteFloor.StringFixed(2), engine.Tolerance())
	fmt.Fprintln(w, "The first matching rule wins.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "#   REASON                    SEVERITY  DESCRIPTION")
	for i, r := range engine.Rules() {
		fmt.Fprintf(w, "%-3d %-25s %8.2f  %s\n", i+1, r.Reason, r.Severity, r.Description)
	}
}

// =============================================================================
// VERSION COMMAND
// =============================================================================

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "revguard %s\n", c.App.Version)
			return nil
		},
	}
}
