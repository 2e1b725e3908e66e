// Package roddriver implements page.Driver on go-rod.
package roddriver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danmuck/vcictl/internal/page"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Headless bool
	Timeout  time.Duration
	// Bin overrides the browser executable; empty lets the launcher fetch one.
	Bin string
}

type Driver struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	timeout  time.Duration
}

// Launch starts Chromium through the rod launcher and opens a blank tab.
func Launch(opts Options) (*Driver, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-gpu")
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("roddriver: launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("roddriver: connect: %w", err)
	}
	pg, err := browser.Timeout(opts.Timeout).Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Cleanup()
		return nil, fmt.Errorf("roddriver: new page: %w", err)
	}
	// Page inherits the browser's timeout context; detach it.
	pg = pg.CancelTimeout()

	log.Debug().Bool("headless", opts.Headless).Msg("roddriver.Launch ready")
	return &Driver{launcher: l, browser: browser, page: pg, timeout: opts.Timeout}, nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	p := d.page.Context(ctx).Timeout(d.timeout)
	defer p.CancelTimeout()
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("roddriver: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return d.mapErr(ctx, err, "load "+url)
	}
	return nil
}

func (d *Driver) WaitFor(ctx context.Context, selector string, opts page.WaitOptions) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = d.timeout
	}
	p := d.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	el, err := p.Element(selector)
	if err != nil {
		return d.mapErr(ctx, err, selector)
	}
	if opts.Visible {
		if err := el.WaitVisible(); err != nil {
			return d.mapErr(ctx, err, selector)
		}
	}
	return nil
}

func (d *Driver) Controls(ctx context.Context, selector string) ([]page.Control, error) {
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("roddriver: list %s: %w", selector, err)
	}
	out := make([]page.Control, 0, len(els))
	for _, el := range els {
		out = append(out, control{el: el})
	}
	return out, nil
}

func (d *Driver) Click(ctx context.Context, selector string) error {
	el, err := d.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("roddriver: click %s: %w", selector, err)
	}
	return nil
}

func (d *Driver) Submit(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = d.timeout
	}
	el, err := d.element(ctx, selector)
	if err != nil {
		return err
	}
	p := d.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	wait := p.WaitNavigation(proto.PageLifecycleEventNameLoad)
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("roddriver: submit %s: %w", selector, err)
	}
	wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (d *Driver) Type(ctx context.Context, selector, text string) error {
	el, err := d.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("roddriver: focus %s: %w", selector, err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("roddriver: type into %s: %w", selector, err)
	}
	return nil
}

func (d *Driver) Select(ctx context.Context, selector, value string) error {
	return page.SelectOption(ctx, d.evaluate, selector, value)
}

func (d *Driver) Rows(ctx context.Context, rowSelector string, probes []page.Probe) ([]page.Row, error) {
	raw, err := d.evaluate(ctx, page.RowsScript(rowSelector, probes))
	if err != nil {
		return nil, err
	}
	return page.DecodeRows(raw)
}

func (d *Driver) Table(ctx context.Context, selector string) (page.Table, error) {
	raw, err := d.evaluate(ctx, page.TableScript(selector))
	if err != nil {
		return page.Table{}, err
	}
	return page.DecodeTable(selector, raw)
}

func (d *Driver) Snapshot(ctx context.Context, path string) error {
	buf, err := d.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return fmt.Errorf("roddriver: screenshot %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

func (d *Driver) SetCookie(ctx context.Context, cookie page.Cookie) error {
	path := cookie.Path
	if path == "" {
		path = "/"
	}
	err := d.page.Context(ctx).SetCookies([]*proto.NetworkCookieParam{{
		Name:     cookie.Name,
		Value:    cookie.Value,
		Domain:   cookie.Domain,
		Path:     path,
		Secure:   cookie.Secure,
		HTTPOnly: cookie.HTTPOnly,
	}})
	if err != nil {
		return fmt.Errorf("roddriver: set cookie %s: %w", cookie.Name, err)
	}
	return nil
}

func (d *Driver) Close() error {
	var err error
	if d.browser != nil {
		err = d.browser.Close()
	}
	if d.launcher != nil {
		d.launcher.Cleanup()
	}
	return err
}

func (d *Driver) element(ctx context.Context, selector string) (*rod.Element, error) {
	p := d.page.Context(ctx).Timeout(d.timeout)
	defer p.CancelTimeout()
	el, err := p.Element(selector)
	if err != nil {
		return nil, d.mapErr(ctx, err, selector)
	}
	// Detach the element from the lookup timeout so later actions use ctx.
	return el.Context(ctx), nil
}

func (d *Driver) evaluate(ctx context.Context, script page.Script) (string, error) {
	res, err := d.page.Context(ctx).Eval(script.Fn, script.Arg)
	if err != nil {
		return "", fmt.Errorf("roddriver: evaluate: %w", err)
	}
	if res.Value.Nil() {
		return "", nil
	}
	return res.Value.Str(), nil
}

// mapErr turns an elapsed per-call deadline into page.ErrWaitTimeout while
// leaving caller cancellation untouched.
func (d *Driver) mapErr(ctx context.Context, err error, what string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", page.ErrWaitTimeout, what)
	}
	var notFound *rod.ElementNotFoundError
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", page.ErrElementNotFound, what)
	}
	return fmt.Errorf("roddriver: %s: %w", what, err)
}

type control struct {
	el *rod.Element
}

func (c control) Text(ctx context.Context) (string, error) {
	return c.el.Context(ctx).Text()
}

func (c control) Value(ctx context.Context) (string, error) {
	v, err := c.el.Context(ctx).Property("value")
	if err != nil {
		return "", err
	}
	if v.Nil() {
		return "", nil
	}
	return v.Str(), nil
}

func (c control) Click(ctx context.Context) error {
	return c.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}
