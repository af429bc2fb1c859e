// Package publish appends the output of a reconciliation run to a findings
// sink: one run record followed by the ranked findings in fixed-size batches.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Tamara540/telecom-revenue-protection/pkg/api"
)

// DefaultBatchSize is the number of findings written per sink call.
const DefaultBatchSize = 1000

// Sink is an append-only findings store.
type Sink interface {
	WriteRun(ctx context.Context, run api.RunSummary) error
	WriteFindings(ctx context.Context, findings []api.Finding) error
}

// Publisher writes reports to a Sink.
type Publisher struct {
	sink      Sink
	batchSize int
	log       zerolog.Logger
}

// NewPublisher creates a publisher. A non-positive batchSize uses the default.
func NewPublisher(sink Sink, batchSize int, logger zerolog.Logger) *Publisher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Publisher{sink: sink, batchSize: batchSize, log: logger}
}

// Result tracks what a publish wrote.
type Result struct {
	RunID        uuid.UUID
	Findings     int
	Batches      int
	Duration     time.Duration
	Success      bool
	ErrorMessage string
}

// Publish writes the run record and then every finding. Sink errors abort
// the publish; nothing already written is retracted.
func (p *Publisher) Publish(ctx context.Context, rep *api.Report) (*Result, error) {
	startTime := time.Now()
	result := &Result{RunID: rep.Summary.RunID}

	if err := p.sink.WriteRun(ctx, rep.Summary); err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to write run record: %v", err)
		return result, fmt.Errorf("failed to write run record: %w", err)
	}

	for i := 0; i < len(rep.Findings); i += p.batchSize {
		if err := ctx.Err(); err != nil {
			result.ErrorMessage = err.Error()
			return result, err
		}

		end := i + p.batchSize
		if end > len(rep.Findings) {
			end = len(rep.Findings)
		}

		batch := rep.Findings[i:end]
		if err := p.sink.WriteFindings(ctx, batch); err != nil {
			result.ErrorMessage = fmt.Sprintf("failed to write findings batch %d: %v", i/p.batchSize, err)
			return result, fmt.Errorf("failed to write findings batch %d: %w", i/p.batchSize, err)
		}
		result.Batches++
		result.Findings += len(batch)

		p.log.Debug().
			Str("run_id", rep.Summary.RunID.String()).
			Int("batch", i/p.batchSize).
			Int("rows", len(batch)).
			Msg("Findings batch written")
	}

	result.Success = true
	result.Duration = time.Since(startTime)

	p.log.Info().
		Str("run_id", rep.Summary.RunID.String()).
		Int("findings", result.Findings).
		Int("batches", result.Batches).
		Dur("duration", result.Duration).
		Msg("Findings published")

	return result, nil
}
