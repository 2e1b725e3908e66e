package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/vcictl/internal/catalog"
	"github.com/danmuck/vcictl/internal/page"
	"github.com/danmuck/vcictl/internal/page/pagetest"
	"github.com/danmuck/vcictl/internal/reconcile"
	"github.com/danmuck/vcictl/internal/sink"
	"github.com/danmuck/vcictl/internal/testutil/testlog"
	"github.com/danmuck/vcictl/internal/workflow"
)

type scriptedSequencer struct {
	calls  []string
	fail   map[string]error
	panics map[string]bool
	tables map[string]*workflow.Extraction
}

func (s *scriptedSequencer) Run(_ context.Context, _ workflow.Definition, rec catalog.Record) (*workflow.Extraction, error) {
	s.calls = append(s.calls, rec.Identifier)
	if s.panics[rec.Identifier] {
		panic("stale element")
	}
	if err := s.fail[rec.Identifier]; err != nil {
		return nil, err
	}
	return s.tables[rec.Identifier], nil
}

type memorySink struct {
	rows []string
}

func (m *memorySink) Append(row string) error {
	m.rows = append(m.rows, row)
	return nil
}

func catalogOf(ids ...string) *catalog.Catalog {
	cat := catalog.New()
	for _, id := range ids {
		cat.Put(catalog.Record{Identifier: id, Locator: "https://portal/" + id, Status: "IN PROGRESS"})
	}
	return cat
}

func TestRunIsolatesRecordFailure(t *testing.T) {
	testlog.Start(t)
	seq := &scriptedSequencer{fail: map[string]error{
		"B": &workflow.ControlNotFoundError{Label: "Save", Attempts: 5},
	}}
	runner := NewRunner(seq, workflow.Approve(workflow.DefaultSettings()), nil, Options{})

	summary := runner.Run(context.Background(), reconcile.Report{Work: []string{"A", "B", "C"}}, catalogOf("A", "B", "C"))
	if strings.Join(seq.calls, ",") != "A,B,C" {
		t.Fatalf("every record must be attempted in order: %v", seq.calls)
	}
	failures := summary.Failures()
	if len(failures) != 1 || failures[0].Identifier != "B" {
		t.Fatalf("unexpected failures: %+v", failures)
	}
	if !errors.Is(failures[0].Err, workflow.ErrControlNotFound) {
		t.Fatalf("unexpected failure cause: %v", failures[0].Err)
	}
	if got := summary.Identifiers(StatusSucceeded); strings.Join(got, ",") != "A,C" {
		t.Fatalf("unexpected successes: %v", got)
	}
	if summary.RunID == "" || summary.Elapsed() < 0 {
		t.Fatalf("unexpected summary metadata: %+v", summary)
	}
}

func TestRunRecoversPanickingRecord(t *testing.T) {
	testlog.Start(t)
	seq := &scriptedSequencer{panics: map[string]bool{"A": true}}
	runner := NewRunner(seq, workflow.Approve(workflow.DefaultSettings()), nil, Options{})

	summary := runner.Run(context.Background(), reconcile.Report{Work: []string{"A", "B"}}, catalogOf("A", "B"))
	if summary.Count(StatusFailed) != 1 || summary.Count(StatusSucceeded) != 1 {
		t.Fatalf("unexpected outcomes: %+v", summary.Outcomes)
	}
	if !strings.Contains(summary.Outcomes[0].Err.Error(), "panicked") {
		t.Fatalf("unexpected panic error: %v", summary.Outcomes[0].Err)
	}
}

func TestRunMarksMissingRecordFailed(t *testing.T) {
	testlog.Start(t)
	seq := &scriptedSequencer{}
	out := &memorySink{}
	runner := NewRunner(seq, workflow.Extract(workflow.DefaultSettings()), out, Options{})

	summary := runner.Run(context.Background(), reconcile.Report{Work: []string{"Z"}}, catalogOf("A"))
	if len(seq.calls) != 0 || len(out.rows) != 0 {
		t.Fatalf("missing record must not be attempted: calls=%v rows=%v", seq.calls, out.rows)
	}
	if !errors.Is(summary.Outcomes[0].Err, ErrNotInCatalog) {
		t.Fatalf("unexpected error: %v", summary.Outcomes[0].Err)
	}
}

func TestRunStopsWhenCanceled(t *testing.T) {
	testlog.Start(t)
	seq := &scriptedSequencer{}
	runner := NewRunner(seq, workflow.Approve(workflow.DefaultSettings()), nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := runner.Run(ctx, reconcile.Report{Work: []string{"A", "B"}}, catalogOf("A", "B"))
	if len(seq.calls) != 0 || summary.Count(StatusCanceled) != 2 || !summary.HasFailures() {
		t.Fatalf("unexpected canceled run: calls=%v outcomes=%+v", seq.calls, summary.Outcomes)
	}
}

func TestExtractAppendsOneRowPerAttempt(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	seq := &scriptedSequencer{
		fail: map[string]error{"B": errors.New("boom")},
		tables: map[string]*workflow.Extraction{
			"A": {Header: []string{"Gene"}, Rows: [][]string{{"BRCA1", "c.1A>G"}}},
		},
	}
	out := &memorySink{}
	runner := NewRunner(seq, workflow.Extract(workflow.DefaultSettings()), out, Options{DiagnosticsDir: dir, ResultFile: "clinvar.tsv"})

	summary := runner.Run(context.Background(), reconcile.Report{Work: []string{"A", "B", "C"}}, catalogOf("A", "B", "C"))
	want := []string{"BRCA1\tc.1A>G", "ERROR: B", "ERROR: C"}
	if strings.Join(out.rows, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected aggregate rows: %q", out.rows)
	}
	if summary.Count(StatusSucceeded) != 1 || summary.Count(StatusFailed) != 2 {
		t.Fatalf("unexpected outcomes: %+v", summary.Outcomes)
	}
	if !errors.Is(summary.Outcomes[2].Err, workflow.ErrExtractionFailed) {
		t.Fatalf("nil extraction must be an extraction failure: %v", summary.Outcomes[2].Err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "A", "clinvar.tsv"))
	if err != nil || string(raw) != "Gene\nBRCA1\tc.1A>G\n" {
		t.Fatalf("unexpected result file: %q (%v)", raw, err)
	}
}

func TestResultFilesOfLookalikeIdentifiersDoNotCollide(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	seq := &scriptedSequencer{
		tables: map[string]*workflow.Extraction{
			"a/b": {Rows: [][]string{{"slash"}}},
			"a_b": {Rows: [][]string{{"underscore"}}},
		},
	}
	runner := NewRunner(seq, workflow.Extract(workflow.DefaultSettings()), &memorySink{}, Options{DiagnosticsDir: dir, ResultFile: "clinvar.tsv"})
	runner.Run(context.Background(), reconcile.Report{Work: []string{"a/b", "a_b"}}, catalogOf("a/b", "a_b"))

	for id, want := range map[string]string{"a/b": "slash\n", "a_b": "underscore\n"} {
		raw, err := os.ReadFile(filepath.Join(workflow.RecordDir(dir, id), "clinvar.tsv"))
		if err != nil || string(raw) != want {
			t.Fatalf("unexpected result file for %q: %q (%v)", id, raw, err)
		}
	}
}

func TestExtractTableNeverPopulatesWritesSentinel(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	settings := workflow.DefaultSettings()
	driver := pagetest.New()
	driver.Attach(settings.SummarySelector)
	driver.OnClickSelector(settings.SummarySelector, func(d *pagetest.Driver) { d.ShowControl(workflow.LabelClinVarData) })
	driver.OnClick(workflow.LabelClinVarData, func(d *pagetest.Driver) { d.ShowControl(workflow.LabelGenerate) })

	opts := workflow.DefaultOptions()
	opts.SettleDelay = 0
	opts.Retry = workflow.RetryPolicy{Attempts: 2}
	opts.DiagnosticsDir = dir
	seq := workflow.NewSequencer(driver, opts)

	agg, err := sink.OpenAggregate(sink.AggregatePath(dir, "clinvar", time.Now()))
	if err != nil {
		t.Fatalf("open aggregate: %v", err)
	}
	runner := NewRunner(seq, workflow.Extract(settings), agg, Options{DiagnosticsDir: dir, ResultFile: "clinvar.tsv"})
	summary := runner.Run(context.Background(), reconcile.Report{Work: []string{"A"}}, catalogOf("A"))
	if err := agg.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw, err := os.ReadFile(agg.Path())
	if err != nil {
		t.Fatalf("read aggregate: %v", err)
	}
	if string(raw) != "ERROR: A\n" {
		t.Fatalf("unexpected aggregate: %q", raw)
	}
	if !errors.Is(summary.Outcomes[0].Err, workflow.ErrExtractionFailed) {
		t.Fatalf("unexpected error: %v", summary.Outcomes[0].Err)
	}
	if _, err := os.Stat(filepath.Join(dir, "A", "clinvar.tsv")); !os.IsNotExist(err) {
		t.Fatalf("failed record must not get a result file: %v", err)
	}
}

func TestFailedMultiLineIdentifierWritesOneAggregateLine(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	id := "NM_000059.3\n(BRCA2)"
	seq := &scriptedSequencer{fail: map[string]error{id: workflow.ErrExtractionFailed}}

	agg, err := sink.OpenAggregate(sink.AggregatePath(dir, "clinvar", time.Now()))
	if err != nil {
		t.Fatalf("open aggregate: %v", err)
	}
	runner := NewRunner(seq, workflow.Extract(workflow.DefaultSettings()), agg, Options{DiagnosticsDir: dir})
	runner.Run(context.Background(), reconcile.Report{Work: []string{id}}, catalogOf(id))
	if err := agg.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw, err := os.ReadFile(agg.Path())
	if err != nil {
		t.Fatalf("read aggregate: %v", err)
	}
	if string(raw) != "ERROR: NM_000059.3 (BRCA2)\n" {
		t.Fatalf("unexpected aggregate: %q", raw)
	}
}

func TestDryRunPerformsNoMutations(t *testing.T) {
	testlog.Start(t)
	driver := pagetest.New()
	driver.Attach(".view-summary")
	driver.ShowControl(workflow.LabelSave)
	driver.SetTable(workflow.DefaultSettings().ResultsTableSelector, page.Table{Rows: [][]string{{"x"}}})
	opts := workflow.DefaultOptions()
	opts.SettleDelay = 0
	seq := workflow.NewSequencer(driver, opts)
	out := &memorySink{}

	runner := NewRunner(seq, workflow.Extract(workflow.DefaultSettings()), out, Options{DryRun: true})
	summary := runner.Run(context.Background(), reconcile.Report{Work: []string{"A", "B"}}, catalogOf("A", "B"))

	if driver.Mutations() != 0 || len(driver.Navigations) != 0 || len(driver.Snapshots) != 0 {
		t.Fatalf("dry run touched the page: mutations=%d navigations=%v", driver.Mutations(), driver.Navigations)
	}
	if len(out.rows) != 0 {
		t.Fatalf("dry run must not append: %v", out.rows)
	}
	if got := summary.Identifiers(StatusDryRun); strings.Join(got, ",") != "A,B" {
		t.Fatalf("every would-be record must be reported: %v", got)
	}
	if !summary.DryRun {
		t.Fatalf("summary must be flagged as dry run")
	}
}

func TestSummaryCarriesReconcileDifferences(t *testing.T) {
	testlog.Start(t)
	runner := NewRunner(&scriptedSequencer{}, workflow.Approve(workflow.DefaultSettings()), nil, Options{})
	report := reconcile.Report{Work: []string{"A"}, ExternalOnly: []string{"D"}, CatalogOnly: []string{"C"}, External: true}
	summary := runner.Run(context.Background(), report, catalogOf("A", "C"))
	if strings.Join(summary.Filtered, ",") != "C" || strings.Join(summary.Unmatched, ",") != "D" {
		t.Fatalf("unexpected differences: %+v", summary)
	}
}
