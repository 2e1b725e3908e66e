package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/vcictl/internal/page"
	"github.com/danmuck/vcictl/internal/page/pagetest"
	"github.com/danmuck/vcictl/internal/testutil/testlog"
)

func listingRow(status, name, href string) page.Row {
	row := page.Row{}
	if status != "" {
		row[probeStatus] = status
	}
	if name != "" {
		row[probeName] = name
		row[probeLocator] = href
	}
	return row
}

func TestListFiltersByStatus(t *testing.T) {
	testlog.Start(t)
	opts := DefaultOptions()
	driver := pagetest.New()
	driver.SetRows(opts.RowSelector, []page.Row{
		listingRow("IN PROGRESS", "A", "https://portal/a"),
		listingRow("APPROVED", "B", "https://portal/b"),
		listingRow(" PROVISIONAL\n", "C", "https://portal/c"),
	})

	cat, err := List(context.Background(), driver, opts, ApproveStatuses)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	keys := cat.Keys()
	if len(keys) != 2 || keys[0] != "A" || keys[1] != "C" {
		t.Fatalf("unexpected keys: %v", keys)
	}
	if cat.Has("B") {
		t.Fatalf("approved record must be filtered out")
	}
	c, _ := cat.Get("C")
	if c.Status != "PROVISIONAL" || c.Locator != "https://portal/c" {
		t.Fatalf("unexpected record: %+v", c)
	}
}

func TestListSkipsRowsWithoutStatusOrLink(t *testing.T) {
	testlog.Start(t)
	opts := DefaultOptions()
	driver := pagetest.New()
	driver.SetRows(opts.RowSelector, []page.Row{
		listingRow("", "A", "https://portal/a"),
		listingRow("APPROVED", "", ""),
		listingRow("UNKNOWN", "C", "https://portal/c"),
		listingRow("APPROVED", "D", "https://portal/d"),
	})

	cat, err := List(context.Background(), driver, opts, ExtractStatuses)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if keys := cat.Keys(); len(keys) != 1 || keys[0] != "D" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestListDuplicateIdentifierLastRowWins(t *testing.T) {
	testlog.Start(t)
	opts := DefaultOptions()
	driver := pagetest.New()
	driver.SetRows(opts.RowSelector, []page.Row{
		listingRow("IN PROGRESS", "A", "https://portal/a-old"),
		listingRow("PROVISIONAL", "C", "https://portal/c"),
		listingRow("PROVISIONAL", "A", "https://portal/a-new"),
	})

	cat, err := List(context.Background(), driver, opts, ApproveStatuses)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	a, ok := cat.Get("A")
	if !ok || a.Locator != "https://portal/a-new" || a.Status != "PROVISIONAL" {
		t.Fatalf("unexpected record: %+v", a)
	}
	if keys := cat.Keys(); len(keys) != 2 || keys[0] != "A" || keys[1] != "C" {
		t.Fatalf("unexpected order: %v", keys)
	}
}

type failingRows struct {
	page.Driver
}

func (failingRows) Rows(context.Context, string, []page.Probe) ([]page.Row, error) {
	return nil, page.ErrClosed
}

func TestListWrapsDriverError(t *testing.T) {
	testlog.Start(t)
	_, err := List(context.Background(), failingRows{}, DefaultOptions(), ApproveStatuses)
	if !errors.Is(err, page.ErrClosed) {
		t.Fatalf("expected wrapped ErrClosed, got %v", err)
	}
}

func TestCatalogKeysReturnsCopy(t *testing.T) {
	testlog.Start(t)
	cat := New()
	cat.Put(Record{Identifier: "A"})
	keys := cat.Keys()
	keys[0] = "Z"
	if cat.Keys()[0] != "A" {
		t.Fatalf("keys must not alias catalog order")
	}
}
