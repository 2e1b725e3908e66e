package sink

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/vcictl/internal/testutil/testlog"
)

func TestFormatRowSanitisesCells(t *testing.T) {
	testlog.Start(t)
	got := FormatRow([]string{"BRCA1", "a\tb", "line1\nline2", "x\r\ny", ""})
	want := "BRCA1\ta b\tline1 line2\tx y\t"
	if got != want {
		t.Fatalf("unexpected row: %q", got)
	}
}

func TestErrorRow(t *testing.T) {
	testlog.Start(t)
	if got := ErrorRow("A"); got != "ERROR: A" {
		t.Fatalf("unexpected sentinel: %q", got)
	}
	if got := ErrorRow("NM_000059.3\n(BRCA2)\tx"); got != "ERROR: NM_000059.3 (BRCA2) x" {
		t.Fatalf("unexpected sentinel for multi-line identifier: %q", got)
	}
}

func TestAggregateAppendsWithoutTruncating(t *testing.T) {
	testlog.Start(t)
	now := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	path := AggregatePath(filepath.Join(t.TempDir(), "out"), "clinvar", now)
	if filepath.Base(path) != "clinvar-20261018T093000.tsv" {
		t.Fatalf("unexpected aggregate name: %q", path)
	}

	agg, err := OpenAggregate(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := agg.Append("A\t1"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := agg.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := agg.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := agg.Append("late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	again, err := OpenAggregate(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := again.Append(ErrorRow("B") + "\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = again.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "A\t1\nERROR: B\n" {
		t.Fatalf("unexpected aggregate content: %q", raw)
	}
	if again.Rows() != 1 {
		t.Fatalf("unexpected row count: %d", again.Rows())
	}
}

func TestWriteResultFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "A", "clinvar.tsv")
	err := WriteResultFile(path, []string{"Gene", "Variant"}, [][]string{{"BRCA1", "c.1A>G"}})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "Gene\tVariant\nBRCA1\tc.1A>G\n" {
		t.Fatalf("unexpected content: %q", raw)
	}
}
