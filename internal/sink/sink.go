// Package sink writes extraction output: the run-scoped aggregate TSV and
// per-record result files.
package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrorPrefix starts the sentinel row written for a failed extraction.
const ErrorPrefix = "ERROR: "

var ErrClosed = errors.New("sink: aggregate closed")

// ErrorRow is the sentinel line for identifier, sanitised like a data cell.
func ErrorRow(identifier string) string {
	return ErrorPrefix + cellReplacer.Replace(identifier)
}

var cellReplacer = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ", "\r", " ")

// FormatRow joins cells with tabs. Tabs and line breaks inside a cell become
// spaces so one record always yields exactly one line.
func FormatRow(cells []string) string {
	clean := make([]string, len(cells))
	for i, c := range cells {
		clean[i] = cellReplacer.Replace(c)
	}
	return strings.Join(clean, "\t")
}

// Aggregate is an append-only TSV opened once per run.
type Aggregate struct {
	mu   sync.Mutex
	file *os.File
	path string
	rows int
}

// AggregatePath names the run file as <dir>/<prefix>-<timestamp>.tsv.
func AggregatePath(dir, prefix string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.tsv", prefix, now.Format("20060102T150405")))
}

// OpenAggregate opens path for appending, creating parent directories.
// Existing content is never truncated.
func OpenAggregate(path string) (*Aggregate, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sink: create dir for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sink: open %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("sink.OpenAggregate ready")
	return &Aggregate{file: f, path: path}, nil
}

// Append writes row as one line and flushes it to disk.
func (a *Aggregate) Append(row string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return ErrClosed
	}
	line := strings.TrimRight(row, "\r\n") + "\n"
	if _, err := a.file.WriteString(line); err != nil {
		return fmt.Errorf("sink: append %s: %w", a.path, err)
	}
	if err := a.file.Sync(); err != nil {
		return fmt.Errorf("sink: sync %s: %w", a.path, err)
	}
	a.rows++
	return nil
}

func (a *Aggregate) Path() string {
	return a.path
}

// Rows counts lines appended through this handle.
func (a *Aggregate) Rows() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rows
}

// Close is safe to call more than once.
func (a *Aggregate) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	log.Debug().Str("path", a.path).Int("rows", a.rows).Msg("sink.Aggregate.Close")
	return err
}

// WriteResultFile writes one record's table as TSV, header first when present.
func WriteResultFile(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("sink: create dir for %s: %w", path, err)
	}
	var b strings.Builder
	if len(header) > 0 {
		b.WriteString(FormatRow(header))
		b.WriteByte('\n')
	}
	for _, row := range rows {
		b.WriteString(FormatRow(row))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("sink: write %s: %w", path, err)
	}
	return nil
}
