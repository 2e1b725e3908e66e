// Package pagetest provides a scripted in-memory page.Driver for engine tests.
package pagetest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/danmuck/vcictl/internal/page"
)

// Driver is a fake browser tab. Controls are rendered by label; clicking a
// control or selector runs the hook registered for it, which usually reveals
// the next control the way the real portal does.
type Driver struct {
	mu sync.Mutex

	controls      []*Control
	pending       map[string]int
	labelHooks    map[string]func(*Driver)
	selectorHooks map[string]func(*Driver)
	selectors     map[string]bool
	rows          map[string][]page.Row
	tables        map[string]page.Table
	navigateErrs  map[string]error
	closed        bool
	mutations     int

	Navigations []string
	Clicks      []string
	Typed       map[string]string
	Selected    map[string]string
	Snapshots   []string
	Cookies     []page.Cookie
	Polls       int
	Closes      int
}

// Control is a fake actionable element.
type Control struct {
	driver *Driver
	text   string
	value  string
}

func New() *Driver {
	return &Driver{
		pending:       make(map[string]int),
		labelHooks:    make(map[string]func(*Driver)),
		selectorHooks: make(map[string]func(*Driver)),
		selectors:     make(map[string]bool),
		rows:          make(map[string][]page.Row),
		tables:        make(map[string]page.Table),
		navigateErrs:  make(map[string]error),
		Typed:         make(map[string]string),
		Selected:      make(map[string]string),
	}
}

// ShowControl renders a control whose visible text is text.
func (d *Driver) ShowControl(text string) {
	d.addControl(text, "")
}

// ShowValueControl renders an input-style control labelled by its value.
func (d *Driver) ShowValueControl(value string) {
	d.addControl("", value)
}

// ShowAfterPolls renders label once Controls has been called polls more times.
func (d *Driver) ShowAfterPolls(label string, polls int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[label] = polls
}

// HideControl removes every control carrying label.
func (d *Driver) HideControl(label string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.controls[:0]
	for _, c := range d.controls {
		if c.text != label && c.value != label {
			kept = append(kept, c)
		}
	}
	d.controls = kept
}

// OnClick registers fn to run after the control labelled label is clicked.
func (d *Driver) OnClick(label string, fn func(*Driver)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.labelHooks[label] = fn
}

// OnClickSelector registers fn to run after selector is clicked or submitted.
func (d *Driver) OnClickSelector(selector string, fn func(*Driver)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selectorHooks[selector] = fn
}

// Attach makes selector present for WaitFor, Click and friends.
func (d *Driver) Attach(selector string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selectors[selector] = true
}

func (d *Driver) Detach(selector string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.selectors, selector)
}

func (d *Driver) SetRows(rowSelector string, rows []page.Row) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rows[rowSelector] = rows
}

// SetTable attaches selector and serves table for it.
func (d *Driver) SetTable(selector string, table page.Table) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[selector] = table
	d.selectors[selector] = true
}

func (d *Driver) FailNavigation(url string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigateErrs[url] = err
}

// Mutations counts clicks, typing and selections performed so far.
func (d *Driver) Mutations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mutations
}

func (d *Driver) addControl(text, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.controls = append(d.controls, &Control{driver: d, text: text, value: value})
}

func (d *Driver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return page.ErrClosed
	}
	d.Navigations = append(d.Navigations, url)
	if err := d.navigateErrs[url]; err != nil {
		return err
	}
	return nil
}

func (d *Driver) WaitFor(ctx context.Context, selector string, opts page.WaitOptions) error {
	d.mu.Lock()
	present := d.selectors[selector]
	d.mu.Unlock()
	if present {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s after %s", page.ErrWaitTimeout, selector, opts.Timeout)
}

func (d *Driver) Controls(_ context.Context, _ string) ([]page.Control, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, page.ErrClosed
	}
	d.Polls++
	for label, remaining := range d.pending {
		if remaining <= 1 {
			delete(d.pending, label)
			d.controls = append(d.controls, &Control{driver: d, text: label})
			continue
		}
		d.pending[label] = remaining - 1
	}
	out := make([]page.Control, 0, len(d.controls))
	for _, c := range d.controls {
		out = append(out, c)
	}
	return out, nil
}

func (d *Driver) Click(_ context.Context, selector string) error {
	return d.clickSelector("click", selector)
}

func (d *Driver) Submit(_ context.Context, selector string, _ time.Duration) error {
	return d.clickSelector("submit", selector)
}

func (d *Driver) clickSelector(kind, selector string) error {
	d.mu.Lock()
	if !d.selectors[selector] {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", page.ErrElementNotFound, selector)
	}
	d.Clicks = append(d.Clicks, kind+":"+selector)
	d.mutations++
	hook := d.selectorHooks[selector]
	d.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return nil
}

func (d *Driver) Type(_ context.Context, selector, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.selectors[selector] {
		return fmt.Errorf("%w: %s", page.ErrElementNotFound, selector)
	}
	d.Typed[selector] = text
	d.mutations++
	return nil
}

func (d *Driver) Select(_ context.Context, selector, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.selectors[selector] {
		return fmt.Errorf("%w: %s", page.ErrElementNotFound, selector)
	}
	d.Selected[selector] = value
	d.mutations++
	return nil
}

func (d *Driver) Rows(_ context.Context, rowSelector string, _ []page.Probe) ([]page.Row, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows := d.rows[rowSelector]
	out := make([]page.Row, 0, len(rows))
	for _, row := range rows {
		cp := make(page.Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out, nil
}

func (d *Driver) Table(_ context.Context, selector string) (page.Table, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	table, ok := d.tables[selector]
	if !ok {
		return page.Table{}, fmt.Errorf("%w: %s", page.ErrElementNotFound, selector)
	}
	return table, nil
}

// Snapshot records path and writes a placeholder file so directory layout
// can be asserted.
func (d *Driver) Snapshot(_ context.Context, path string) error {
	d.mu.Lock()
	d.Snapshots = append(d.Snapshots, path)
	d.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("png"), 0o644)
}

func (d *Driver) SetCookie(_ context.Context, cookie page.Cookie) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Cookies = append(d.Cookies, cookie)
	return nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.Closes++
	return nil
}

func (c *Control) Text(context.Context) (string, error) {
	return c.text, nil
}

func (c *Control) Value(context.Context) (string, error) {
	return c.value, nil
}

func (c *Control) Click(context.Context) error {
	d := c.driver
	label := c.text
	if label == "" {
		label = c.value
	}
	d.mu.Lock()
	d.Clicks = append(d.Clicks, "control:"+label)
	d.mutations++
	hook := d.labelHooks[label]
	d.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return nil
}
