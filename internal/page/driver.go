package page

import (
	"context"
	"errors"
	"time"
)

var (
	ErrWaitTimeout     = errors.New("page: wait timed out")
	ErrElementNotFound = errors.New("page: element not found")
	ErrClosed          = errors.New("page: driver closed")
)

// Control is one actionable element found on the current page. Its handle is
// only valid until the next navigation.
type Control interface {
	// Text returns the rendered text of the control.
	Text(ctx context.Context) (string, error)
	// Value returns the control's value property, empty when it has none.
	Value(ctx context.Context) (string, error)
	Click(ctx context.Context) error
}

// Probe reads one property of a descendant element inside each matched row.
type Probe struct {
	Key      string `json:"key"`
	Selector string `json:"selector"`
	Property string `json:"property"`
}

// Row maps probe keys to property values. A key is absent when the probe's
// element did not exist in that row.
type Row map[string]string

// Table is the text content of an HTML table. Header holds the first row made
// only of header cells; Rows holds every other non-empty row.
type Table struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// Cookie is a session cookie installed before authentication.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
}

// WaitOptions bounds a wait for a selector.
type WaitOptions struct {
	Visible bool
	Timeout time.Duration
}

// Driver is the capability set of one authenticated browser tab. It is a
// serially reusable resource; callers must not use it from two goroutines.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// WaitFor blocks until selector is attached (or visible) or the timeout
	// elapses, in which case the error wraps ErrWaitTimeout.
	WaitFor(ctx context.Context, selector string, opts WaitOptions) error
	// Controls lists every element matching selector in document order.
	Controls(ctx context.Context, selector string) ([]Control, error)
	Click(ctx context.Context, selector string) error
	// Submit clicks selector and waits for the resulting navigation to load.
	Submit(ctx context.Context, selector string, timeout time.Duration) error
	Type(ctx context.Context, selector, text string) error
	// Select chooses the option of a <select> by value, falling back to label.
	Select(ctx context.Context, selector, value string) error
	Rows(ctx context.Context, rowSelector string, probes []Probe) ([]Row, error)
	// Table reads the table matched by selector; the error wraps
	// ErrElementNotFound when it does not exist.
	Table(ctx context.Context, selector string) (Table, error)
	// Snapshot writes a full-page PNG to path.
	Snapshot(ctx context.Context, path string) error
	SetCookie(ctx context.Context, cookie Cookie) error
	Close() error
}
