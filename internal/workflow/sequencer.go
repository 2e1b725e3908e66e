package workflow

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/danmuck/vcictl/internal/catalog"
	"github.com/danmuck/vcictl/internal/observability"
	"github.com/danmuck/vcictl/internal/page"
	"github.com/rs/zerolog/log"
)

// Options tunes the sequencer for the portal's render timing.
type Options struct {
	// ControlSelector lists every candidate control for label matching.
	ControlSelector string
	// ReadySelector must exist before the first step runs.
	ReadySelector string
	ReadyTimeout  time.Duration
	// SettleDelay is slept after navigation; the portal exposes no reliable
	// render-complete signal.
	SettleDelay    time.Duration
	Retry          RetryPolicy
	DiagnosticsDir string
	// SnapshotTimeout bounds each diagnostic capture, including those taken
	// after the caller's context is done.
	SnapshotTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		ControlSelector: ".btn",
		ReadySelector:   ".view-summary",
		ReadyTimeout:    30 * time.Second,
		SettleDelay:     7 * time.Second,
		Retry:           DefaultRetryPolicy(),
		DiagnosticsDir:  "variants",
		SnapshotTimeout: 15 * time.Second,
	}
}

// Extraction is the scraped results table of one record.
type Extraction struct {
	Header []string
	Rows   [][]string
}

// Cells flattens every data row in reading order.
func (e Extraction) Cells() []string {
	var out []string
	for _, row := range e.Rows {
		out = append(out, row...)
	}
	return out
}

// Sequencer drives one record at a time through a Definition. It holds the
// driver for its whole life and must not be shared across goroutines.
type Sequencer struct {
	driver page.Driver
	opts   Options
	rng    *rand.Rand
}

func NewSequencer(driver page.Driver, opts Options) *Sequencer {
	return &Sequencer{
		driver: driver,
		opts:   opts,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RecordDir is the directory holding a record's snapshots and result file.
func RecordDir(base, identifier string) string {
	return filepath.Join(base, SafeName(identifier))
}

// SafeName maps an identifier onto a single path element. A name that had
// to be rewritten gets a hash of the raw identifier appended so distinct
// identifiers never share a directory.
func SafeName(identifier string) string {
	name := strings.TrimSpace(identifier)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		name = "_"
	}
	if name == identifier {
		return name
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(identifier))
	return fmt.Sprintf("%s-%08x", name, h.Sum32())
}

// Run drives rec through def. Extraction is nil for workflows without a
// scrape. Any failure is a *WorkflowError.
func (s *Sequencer) Run(ctx context.Context, def Definition, rec catalog.Record) (*Extraction, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	fail := func(phase Phase, step int, name string, err error) error {
		return &WorkflowError{Workflow: def.Kind, Record: rec.Identifier, Phase: phase, Step: step, Name: name, Err: err}
	}
	logger := log.With().Str("workflow", string(def.Kind)).Str("record", rec.Identifier).Logger()

	if err := s.driver.Navigate(ctx, rec.Locator); err != nil {
		return nil, fail(PhaseNavigate, 0, "", err)
	}
	if err := s.awaitReady(ctx); err != nil {
		return nil, fail(PhaseReady, 0, "", err)
	}
	logger.Debug().Msg("workflow.Sequencer.Run page ready")

	dir := RecordDir(s.opts.DiagnosticsDir, rec.Identifier)
	for i, step := range def.Steps {
		start := time.Now()
		err := s.runStep(ctx, dir, step)
		observability.RecordStep(string(def.Kind), stepLabel(i, step), time.Since(start), err == nil)
		if err != nil {
			logger.Warn().Err(err).Int("step", i+1).Str("name", step.Name).Msg("workflow.Sequencer.Run step failed")
			return nil, fail(PhaseStep, i+1, step.Name, err)
		}
		logger.Debug().Int("step", i+1).Str("name", step.Name).Msg("workflow.Sequencer.Run step done")
	}

	if def.Scrape == nil {
		return nil, nil
	}
	extraction, err := s.scrape(ctx, *def.Scrape)
	if err != nil {
		return nil, fail(PhaseScrape, 0, "", err)
	}
	logger.Info().Int("rows", len(extraction.Rows)).Msg("workflow.Sequencer.Run extracted")
	return extraction, nil
}

func (s *Sequencer) awaitReady(ctx context.Context) error {
	if err := sleep(ctx, s.opts.SettleDelay); err != nil {
		return err
	}
	if s.opts.ReadySelector == "" {
		return nil
	}
	err := s.driver.WaitFor(ctx, s.opts.ReadySelector, page.WaitOptions{Timeout: s.opts.ReadyTimeout})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &ControlNotFoundError{Label: s.opts.ReadySelector, Attempts: 1, Err: err}
}

// runStep applies fields, fires the trigger, then waits for the await label.
// The snapshot is deferred so it also records the page a failure left behind.
func (s *Sequencer) runStep(ctx context.Context, dir string, step Step) error {
	if step.Name != "" {
		defer s.snapshot(ctx, filepath.Join(dir, step.Name+".png"))
	}

	for _, field := range step.Fields {
		if err := s.applyField(ctx, field); err != nil {
			return err
		}
	}

	switch {
	case step.TriggerSelector != "":
		if err := s.driver.Click(ctx, step.TriggerSelector); err != nil {
			return fmt.Errorf("click %s: %w", step.TriggerSelector, err)
		}
	case step.TriggerLabel != "":
		ctrl, err := s.waitForControl(ctx, step.TriggerLabel)
		if err != nil {
			return err
		}
		if err := ctrl.Click(ctx); err != nil {
			return fmt.Errorf("click %q: %w", step.TriggerLabel, err)
		}
	}

	if step.AwaitLabel != "" {
		if _, err := s.waitForControl(ctx, step.AwaitLabel); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) applyField(ctx context.Context, field FieldSelection) error {
	var err error
	switch field.Action {
	case FieldType:
		err = s.driver.Type(ctx, field.Selector, field.Value)
	default:
		err = s.driver.Select(ctx, field.Selector, field.Value)
	}
	if err != nil {
		return fmt.Errorf("%s %q in %s: %w", field.Action, field.Value, field.Selector, err)
	}
	return nil
}

// waitForControl polls until a control labelled label exists. No pause
// follows the final attempt.
func (s *Sequencer) waitForControl(ctx context.Context, label string) (page.Control, error) {
	attempts := s.opts.Retry.attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		ctrl, err := s.findControl(ctx, label)
		if err != nil {
			return nil, err
		}
		observability.RecordControlPoll(ctrl != nil)
		if ctrl != nil {
			return ctrl, nil
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, s.opts.Retry.Delay(attempt, s.rng)); err != nil {
			return nil, err
		}
	}
	return nil, &ControlNotFoundError{Label: label, Attempts: attempts}
}

// findControl returns the first control whose text, then value, equals
// label. Controls that error while being read are skipped.
func (s *Sequencer) findControl(ctx context.Context, label string) (page.Control, error) {
	controls, err := s.driver.Controls(ctx, s.opts.ControlSelector)
	if err != nil {
		if errors.Is(err, page.ErrClosed) || ctx.Err() != nil {
			return nil, err
		}
		log.Debug().Err(err).Str("label", label).Msg("workflow.Sequencer.findControl list failed")
		return nil, nil
	}
	for _, ctrl := range controls {
		if text, err := ctrl.Text(ctx); err == nil && text == label {
			return ctrl, nil
		}
		if value, err := ctrl.Value(ctx); err == nil && value == label {
			return ctrl, nil
		}
	}
	return nil, nil
}

func (s *Sequencer) scrape(ctx context.Context, sc Scrape) (*Extraction, error) {
	err := s.driver.WaitFor(ctx, sc.TableSelector, page.WaitOptions{Timeout: sc.Timeout})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	table, err := s.driver.Table(ctx, sc.TableSelector)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if len(table.Rows) == 0 {
		return nil, fmt.Errorf("%w: %s has no rows", ErrExtractionFailed, sc.TableSelector)
	}
	return &Extraction{Header: table.Header, Rows: table.Rows}, nil
}

// snapshot failures are logged, never returned.
func (s *Sequencer) snapshot(ctx context.Context, path string) {
	timeout := s.opts.SnapshotTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	snapCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := s.driver.Snapshot(snapCtx, path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("workflow.Sequencer.snapshot failed")
	}
}

func stepLabel(i int, step Step) string {
	if step.Name != "" {
		return step.Name
	}
	return fmt.Sprintf("step-%d", i+1)
}
