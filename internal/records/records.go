// Package records loads the operator-supplied list of record identifiers.
package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// DefaultColumn is the header naming the identifier column.
const DefaultColumn = "Variant"

var (
	ErrColumnNotFound    = errors.New("records: identifier column not found")
	ErrUnsupportedFormat = errors.New("records: unsupported file format")
	ErrNoHeader          = errors.New("records: missing header row")
)

// Set is an ordered collection of unique identifiers. A nil *Set means no
// external list was supplied.
type Set struct {
	order []string
	index map[string]struct{}
}

// NewSet builds a set from ids, trimming blanks and dropping repeats.
func NewSet(ids ...string) *Set {
	s := &Set{index: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id and reports whether it was new.
func (s *Set) Add(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

func (s *Set) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Items returns identifiers in first-seen order.
func (s *Set) Items() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Set) Len() int {
	return len(s.order)
}

// Load reads the identifier column from a .csv, .tsv/.txt or .xlsx file.
// An empty column falls back to DefaultColumn.
func Load(path, column string) (*Set, error) {
	if column == "" {
		column = DefaultColumn
	}
	var (
		set *Set
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		set, err = loadDelimited(path, ',', column)
	case ".tsv", ".txt":
		set, err = loadDelimited(path, '\t', column)
	case ".xlsx":
		set, err = loadWorkbook(path, column)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Str("column", column).Int("records", set.Len()).Msg("records.Load done")
	return set, nil
}

func loadDelimited(path string, comma rune, column string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("records: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadDelimited(f, comma, column)
}

// ReadDelimited reads a header row followed by data rows and collects the
// named column. Short rows are tolerated.
func ReadDelimited(r io.Reader, comma rune, column string) (*Set, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if comma == '\t' {
		cr.LazyQuotes = true
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("records: parse: %w", err)
	}
	return fromRows(rows, column)
}

func loadWorkbook(path, column string) (*Set, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("records: open workbook %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: %s has no sheets", ErrNoHeader, path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("records: read sheet %s: %w", sheets[0], err)
	}
	return fromRows(rows, column)
}

func fromRows(rows [][]string, column string) (*Set, error) {
	if len(rows) == 0 {
		return nil, ErrNoHeader
	}
	col := -1
	for i, name := range rows[0] {
		// Spreadsheet exports often carry a UTF-8 BOM on the first header.
		name = strings.TrimPrefix(strings.TrimSpace(name), "\ufeff")
		if strings.EqualFold(name, column) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}
	set := NewSet()
	for _, row := range rows[1:] {
		if col < len(row) {
			set.Add(row[col])
		}
	}
	return set, nil
}
