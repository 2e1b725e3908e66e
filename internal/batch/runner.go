package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/danmuck/vcictl/internal/catalog"
	"github.com/danmuck/vcictl/internal/observability"
	"github.com/danmuck/vcictl/internal/reconcile"
	"github.com/danmuck/vcictl/internal/sink"
	"github.com/danmuck/vcictl/internal/workflow"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrNotInCatalog = errors.New("batch: record not in catalog")

// Sequencer drives one record through a workflow.
type Sequencer interface {
	Run(ctx context.Context, def workflow.Definition, rec catalog.Record) (*workflow.Extraction, error)
}

// Appender receives one aggregate row per attempted extract record.
type Appender interface {
	Append(row string) error
}

type Options struct {
	DryRun bool
	// DiagnosticsDir is the base of the per-record directories that hold
	// result files.
	DiagnosticsDir string
	// ResultFile is the per-record result file name; empty disables it.
	ResultFile string
}

type Runner struct {
	seq  Sequencer
	def  workflow.Definition
	sink Appender
	opts Options
}

// NewRunner builds a runner. out may be nil for workflows without a scrape.
func NewRunner(seq Sequencer, def workflow.Definition, out Appender, opts Options) *Runner {
	return &Runner{seq: seq, def: def, sink: out, opts: opts}
}

// Run processes report.Work in order. A record's failure is recorded in its
// Outcome and never stops the batch; only ctx cancellation does.
func (r *Runner) Run(ctx context.Context, report reconcile.Report, cat *catalog.Catalog) Summary {
	summary := Summary{
		RunID:     uuid.NewString(),
		Workflow:  r.def.Kind,
		DryRun:    r.opts.DryRun,
		Started:   time.Now(),
		Filtered:  report.CatalogOnly,
		Unmatched: report.ExternalOnly,
	}
	logger := log.With().Str("run", summary.RunID).Str("workflow", string(r.def.Kind)).Logger()
	logger.Info().Int("records", len(report.Work)).Bool("dry_run", r.opts.DryRun).Msg("batch.Runner.Run start")

	for i, id := range report.Work {
		if ctx.Err() != nil {
			for _, rest := range report.Work[i:] {
				summary.Outcomes = append(summary.Outcomes, Outcome{Identifier: rest, Status: StatusCanceled, Err: ctx.Err()})
			}
			logger.Warn().Int("remaining", len(report.Work)-i).Msg("batch.Runner.Run canceled")
			break
		}
		outcome := r.runOne(ctx, cat, id)
		observability.RecordOutcome(string(r.def.Kind), string(outcome.Status), outcome.Duration)
		summary.Outcomes = append(summary.Outcomes, outcome)

		event := logger.Info()
		if outcome.Err != nil {
			event = logger.Error().Err(outcome.Err)
		}
		event.Str("record", id).
			Str("status", string(outcome.Status)).
			Dur("elapsed", outcome.Duration).
			Msgf("batch.Runner.Run record %d/%d", i+1, len(report.Work))
	}

	summary.Finished = time.Now()
	logger.Info().
		Int("succeeded", summary.Count(StatusSucceeded)).
		Int("failed", summary.Count(StatusFailed)).
		Int("dry_run", summary.Count(StatusDryRun)).
		Int("filtered", len(summary.Filtered)).
		Int("unmatched", len(summary.Unmatched)).
		Msg("batch.Runner.Run done")
	return summary
}

func (r *Runner) runOne(ctx context.Context, cat *catalog.Catalog, id string) (outcome Outcome) {
	start := time.Now()
	outcome.Identifier = id
	defer func() { outcome.Duration = time.Since(start) }()

	rec, ok := cat.Get(id)
	if !ok {
		outcome.Status = StatusFailed
		outcome.Err = fmt.Errorf("%w: %q", ErrNotInCatalog, id)
		return outcome
	}
	if r.opts.DryRun {
		log.Info().Str("record", id).Str("locator", rec.Locator).Msg("batch.Runner.Run dry run, would process")
		outcome.Status = StatusDryRun
		return outcome
	}

	var err error
	if r.def.Scrape != nil {
		outcome.Row, err = r.extract(ctx, rec)
	} else {
		_, err = r.sequence(ctx, rec)
	}
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		return outcome
	}
	outcome.Status = StatusSucceeded
	return outcome
}

// sequence runs the sequencer with a panic converted to the record's error.
func (r *Runner) sequence(ctx context.Context, rec catalog.Record) (ext *workflow.Extraction, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("batch: record %q panicked: %v", rec.Identifier, p)
		}
	}()
	return r.seq.Run(ctx, r.def, rec)
}

// extract runs the workflow and appends exactly one aggregate row on every
// exit path: the extracted cells, or the error sentinel.
func (r *Runner) extract(ctx context.Context, rec catalog.Record) (row string, err error) {
	row = sink.ErrorRow(rec.Identifier)
	defer func() {
		if r.sink == nil {
			return
		}
		if appendErr := r.sink.Append(row); appendErr != nil {
			log.Error().Err(appendErr).Str("record", rec.Identifier).Msg("batch.Runner.extract aggregate append failed")
			err = errors.Join(err, appendErr)
		}
	}()

	ext, err := r.sequence(ctx, rec)
	if err != nil {
		return row, err
	}
	if ext == nil {
		return row, fmt.Errorf("%w: no table returned", workflow.ErrExtractionFailed)
	}
	row = sink.FormatRow(ext.Cells())

	if r.opts.ResultFile != "" {
		path := filepath.Join(workflow.RecordDir(r.opts.DiagnosticsDir, rec.Identifier), r.opts.ResultFile)
		if werr := sink.WriteResultFile(path, ext.Header, ext.Rows); werr != nil {
			log.Warn().Err(werr).Str("path", path).Msg("batch.Runner.extract result file not written")
		}
	}
	return row, nil
}
