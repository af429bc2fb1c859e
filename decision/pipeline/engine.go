// Package pipeline runs a full reconciliation over a dataset snapshot.
//
// Customers are processed in parallel; each customer's months are scanned
// in order by a single worker because the trailing baseline of a month
// depends on every earlier month. A failing customer is skipped and
// reported; it never fails the run.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Tamara540/telecom-revenue-protection/decision/billing"
	"github.com/Tamara540/telecom-revenue-protection/decision/history"
	"github.com/Tamara540/telecom-revenue-protection/decision/policy"
	"github.com/Tamara540/telecom-revenue-protection/decision/triage"
	"github.com/Tamara540/telecom-revenue-protection/decision/window"
	"github.com/Tamara540/telecom-revenue-protection/pkg/confidence"
	qerrors "github.com/Tamara540/telecom-revenue-protection/pkg/errors"
)

// Stage names used in Result.Timings.
const (
	StageValidate  = "validate"
	StageReconcile = "reconcile"
	StageRank      = "rank"
)

// Options configures one run. Zero Lookback, Location, ZThreshold,
// MinMonths, BaselineMonths and Workers fall back to DefaultOptions.
// Tolerance and ConfidenceBonus are used as given, since zero is a valid
// setting for both, so callers should start from DefaultOptions.
type Options struct {
	AsOf     time.Time
	Lookback int
	// Location reads AsOf when picking the reference month. Source dates
	// are calendar dates and are never shifted.
	Location        *time.Location
	Tolerance       float64
	ZThreshold      float64
	ConfidenceBonus float64
	MinMonths       int
	BaselineMonths  int
	Workers         int
}

// DefaultOptions returns the documented defaults. AsOf is left zero and
// resolved from the engine clock.
func DefaultOptions() Options {
	return Options{
		Lookback:        window.DefaultLookback,
		Location:        time.UTC,
		Tolerance:       policy.DefaultTolerance,
		ZThreshold:      confidence.DefaultZThreshold,
		ConfidenceBonus: confidence.DefaultBonus,
		MinMonths:       history.DefaultMinMonths,
		BaselineMonths:  history.DefaultBaselineMonths,
		Workers:         runtime.GOMAXPROCS(0),
	}
}

// Stats summarizes a run.
type Stats struct {
	Customers       int                   `json:"customers"`
	CustomerMonths  int                   `json:"customer_months"`
	Flagged         int                   `json:"flagged"`
	FailedCustomers int                   `json:"failed_customers"`
	Issues          int                   `json:"issues"`
	ByReason        map[policy.Reason]int `json:"by_reason"`
}

// Result is the outcome of a run.
type Result struct {
	RunID      uuid.UUID
	Window     window.Window
	Options    Options
	Rows       []triage.Scored // every scored customer-month, by customer then month
	Findings   []triage.Scored // kept rows, ranked
	Issues     []*qerrors.QualityError
	Stats      Stats
	StartedAt  time.Time
	FinishedAt time.Time
	Timings    map[string]time.Duration
}

// Engine runs reconciliations.
type Engine struct {
	log zerolog.Logger
	now func() time.Time

	// processFn is swapped in tests to simulate failing customers.
	processFn func(task customerTask) customerResult
}

// NewEngine creates a pipeline engine.
func NewEngine(logger zerolog.Logger) *Engine {
	e := &Engine{
		log: logger,
		now: time.Now,
	}
	e.processFn = e.processCustomer
	return e
}

// WithClock replaces the wall clock used for the default reference date
// and run timestamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Run reconciles every customer-month of the window. Only context
// cancellation and invalid options abort it.
func (e *Engine) Run(ctx context.Context, ds *billing.Dataset, opts Options) (*Result, error) {
	opts = e.resolve(opts)

	classifier, err := policy.NewEngine(opts.Tolerance)
	if err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	w, err := window.New(opts.AsOf, opts.Lookback, opts.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	res := &Result{
		RunID:     uuid.New(),
		Window:    w,
		Options:   opts,
		StartedAt: e.now(),
		Timings:   make(map[string]time.Duration),
		Stats:     Stats{ByReason: make(map[policy.Reason]int)},
	}
	log := e.log.With().Str("run_id", res.RunID.String()).Logger()

	log.Info().
		Str("asof", w.Last().Format("2006-01")).
		Int("lookback", w.Len()).
		Int("records", ds.RecordCount()).
		Int("workers", opts.Workers).
		Msg("Starting reconciliation")

	// ===== VALIDATE =====
	stageStart := time.Now()
	ledger, issues := billing.Validate(ds)
	res.Issues = append(res.Issues, issues...)
	res.Timings[StageValidate] = time.Since(stageStart)
	for _, issue := range issues {
		logIssue(log, issue)
	}

	// ===== RECONCILE =====
	stageStart = time.Now()
	customers := ledger.Customers()
	grid := window.Grid(customers, w)
	n := w.Len()

	scorer := triage.Scorer{ZThreshold: opts.ZThreshold, Bonus: opts.ConfidenceBonus}
	results := make([]customerResult, len(customers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, id := range customers {
		if gctx.Err() != nil {
			break
		}
		task := customerTask{
			customerID: id,
			records:    ledger.Records(id),
			plans:      ledger.Plans,
			months:     grid[i*n : (i+1)*n],
			classifier: classifier,
			scorer:     scorer,
			opts:       opts,
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.safeProcess(task)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reconciliation aborted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("reconciliation aborted: %w", err)
	}
	res.Timings[StageReconcile] = time.Since(stageStart)

	// ===== RANK =====
	stageStart = time.Now()
	res.Stats.Customers = len(customers)
	for i, r := range results {
		res.Issues = append(res.Issues, r.issues...)
		for _, issue := range r.issues {
			logIssue(log, issue)
		}
		if r.failed {
			res.Stats.FailedCustomers++
			log.Error().Str("customer_id", customers[i]).Msg("Customer skipped")
			continue
		}
		res.Rows = append(res.Rows, r.rows...)
	}
	res.Stats.CustomerMonths = len(res.Rows)

	res.Findings = scorer.Filter(res.Rows)
	triage.Rank(res.Findings)
	res.Stats.Flagged = len(res.Findings)
	for _, f := range res.Findings {
		res.Stats.ByReason[f.Reason()]++
	}
	res.Stats.Issues = len(res.Issues)
	res.Timings[StageRank] = time.Since(stageStart)

	res.FinishedAt = e.now()

	log.Info().
		Int("customers", res.Stats.Customers).
		Int("customer_months", res.Stats.CustomerMonths).
		Int("flagged", res.Stats.Flagged).
		Int("failed_customers", res.Stats.FailedCustomers).
		Int("issues", res.Stats.Issues).
		Dur("duration", res.FinishedAt.Sub(res.StartedAt)).
		Msg("Reconciliation complete")

	return res, nil
}

func (e *Engine) resolve(opts Options) Options {
	def := DefaultOptions()
	if opts.AsOf.IsZero() {
		opts.AsOf = e.now()
	}
	if opts.Lookback == 0 {
		opts.Lookback = def.Lookback
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}
	if opts.ZThreshold == 0 {
		opts.ZThreshold = def.ZThreshold
	}
	if opts.MinMonths == 0 {
		opts.MinMonths = def.MinMonths
	}
	if opts.BaselineMonths == 0 {
		opts.BaselineMonths = def.BaselineMonths
	}
	if opts.Workers < 1 {
		opts.Workers = def.Workers
	}
	return opts
}

// safeProcess contains a panicking customer.
func (e *Engine) safeProcess(task customerTask) (res customerResult) {
	defer func() {
		if r := recover(); r != nil {
			res = customerResult{
				failed: true,
				issues: []*qerrors.QualityError{qerrors.NewCustomerFailedError(task.customerID, r)},
			}
		}
	}()
	return e.processFn(task)
}

func logIssue(log zerolog.Logger, issue *qerrors.QualityError) {
	ev := log.Error()
	if issue.IsWarning() {
		ev = log.Warn()
	}
	ev = ev.Str("code", issue.Code)
	if issue.CustomerID != "" {
		ev = ev.Str("customer_id", issue.CustomerID)
	}
	if !issue.Month.IsZero() {
		ev = ev.Str("month", issue.Month.Format("2006-01"))
	}
	ev.Msg(issue.Message)
}
