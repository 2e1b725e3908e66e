package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmuck/vcictl/internal/page"
	"github.com/rs/zerolog/log"
)

// Record is one curation item as listed by the portal. Locator addresses the
// record's detail page within the current session only.
type Record struct {
	Identifier string
	Locator    string
	Status     string
}

// StatusFilter is the ordered set of status labels a workflow accepts.
type StatusFilter []string

var (
	ApproveStatuses = StatusFilter{"IN PROGRESS", "PROVISIONAL"}
	ExtractStatuses = StatusFilter{"APPROVED"}
)

func (f StatusFilter) Contains(status string) bool {
	for _, s := range f {
		if s == status {
			return true
		}
	}
	return false
}

// Catalog maps identifiers to records and remembers the order in which
// identifiers were first listed.
type Catalog struct {
	order   []string
	records map[string]Record
}

func New() *Catalog {
	return &Catalog{records: make(map[string]Record)}
}

// Put stores r. A repeated identifier replaces the earlier record but keeps
// the position where the identifier first appeared.
func (c *Catalog) Put(r Record) {
	if _, ok := c.records[r.Identifier]; !ok {
		c.order = append(c.order, r.Identifier)
	}
	c.records[r.Identifier] = r
}

func (c *Catalog) Get(identifier string) (Record, bool) {
	r, ok := c.records[identifier]
	return r, ok
}

func (c *Catalog) Has(identifier string) bool {
	_, ok := c.records[identifier]
	return ok
}

// Keys returns identifiers in catalog order.
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

func (c *Catalog) Len() int {
	return len(c.order)
}

// Options names the selectors of the record listing.
type Options struct {
	RowSelector    string
	StatusSelector string
	LinkSelector   string
}

func DefaultOptions() Options {
	return Options{
		RowSelector:    ".affiliated-interpretation-list tbody tr",
		StatusSelector: ".label",
		LinkSelector:   ".affiliated-record-link",
	}
}

const (
	probeStatus  = "status"
	probeLocator = "locator"
	probeName    = "name"
)

// List reads every listing row and keeps those whose status is in filter.
// Rows without a status label, a record link, or an accepted status are
// skipped.
func List(ctx context.Context, driver page.Driver, opts Options, filter StatusFilter) (*Catalog, error) {
	probes := []page.Probe{
		{Key: probeStatus, Selector: opts.StatusSelector, Property: "innerText"},
		{Key: probeLocator, Selector: opts.LinkSelector, Property: "href"},
		{Key: probeName, Selector: opts.LinkSelector, Property: "innerText"},
	}
	rows, err := driver.Rows(ctx, opts.RowSelector, probes)
	if err != nil {
		return nil, fmt.Errorf("catalog: read rows %s: %w", opts.RowSelector, err)
	}

	cat := New()
	skipped := 0
	for _, row := range rows {
		status, ok := row[probeStatus]
		status = strings.TrimSpace(status)
		if !ok || status == "" || !filter.Contains(status) {
			skipped++
			continue
		}
		id := strings.TrimSpace(row[probeName])
		locator := row[probeLocator]
		if id == "" || locator == "" {
			skipped++
			continue
		}
		if cat.Has(id) {
			log.Debug().Str("record", id).Msg("catalog.List duplicate identifier, keeping later row")
		}
		cat.Put(Record{Identifier: id, Locator: locator, Status: status})
	}
	log.Info().
		Int("rows", len(rows)).
		Int("listed", cat.Len()).
		Int("skipped", skipped).
		Strs("statuses", filter).
		Msg("catalog.List done")
	return cat, nil
}
