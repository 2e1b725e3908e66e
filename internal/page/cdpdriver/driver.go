// Package cdpdriver implements page.Driver directly on the Chrome DevTools
// Protocol through chromedp.
package cdpdriver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/danmuck/vcictl/internal/page"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Headless bool
	Timeout  time.Duration
	// ExecPath overrides the Chrome binary found on PATH.
	ExecPath string
}

type Driver struct {
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	timeout       time.Duration
}

// Launch allocates a Chrome process and attaches to its first tab.
func Launch(opts Options) (*Driver, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.NoSandbox,
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// The first Run starts the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("cdpdriver: start browser: %w", err)
	}
	log.Debug().Bool("headless", opts.Headless).Msg("cdpdriver.Launch ready")
	return &Driver{
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		timeout:       opts.Timeout,
	}, nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, d.timeout, "navigate "+url, chromedp.Navigate(url))
}

func (d *Driver) WaitFor(ctx context.Context, selector string, opts page.WaitOptions) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = d.timeout
	}
	action := chromedp.WaitReady(selector, chromedp.ByQuery)
	if opts.Visible {
		action = chromedp.WaitVisible(selector, chromedp.ByQuery)
	}
	return d.run(ctx, timeout, selector, action)
}

func (d *Driver) Controls(ctx context.Context, selector string) ([]page.Control, error) {
	var nodes []*cdp.Node
	err := d.run(ctx, d.timeout, selector,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return nil, err
	}
	out := make([]page.Control, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, control{driver: d, node: n})
	}
	return out, nil
}

func (d *Driver) Click(ctx context.Context, selector string) error {
	return d.run(ctx, d.timeout, selector,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (d *Driver) Submit(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = d.timeout
	}
	return d.run(ctx, timeout, "submit "+selector, chromedp.ActionFunc(func(runCtx context.Context) error {
		listenCtx, stop := context.WithCancel(runCtx)
		defer stop()
		loaded := make(chan struct{}, 1)
		chromedp.ListenTarget(listenCtx, func(ev any) {
			if _, ok := ev.(*cdppage.EventLoadEventFired); ok {
				select {
				case loaded <- struct{}{}:
				default:
				}
			}
		})
		if err := chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible).Do(runCtx); err != nil {
			return err
		}
		select {
		case <-loaded:
			return nil
		case <-runCtx.Done():
			return runCtx.Err()
		}
	}))
}

func (d *Driver) Type(ctx context.Context, selector, text string) error {
	return d.run(ctx, d.timeout, selector,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
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
	var buf []byte
	if err := d.run(ctx, d.timeout, "screenshot", chromedp.FullScreenshot(&buf, 100)); err != nil {
		return err
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
	return d.run(ctx, d.timeout, "cookie "+cookie.Name,
		network.SetCookie(cookie.Name, cookie.Value).
			WithDomain(cookie.Domain).
			WithPath(path).
			WithSecure(cookie.Secure).
			WithHTTPOnly(cookie.HTTPOnly),
	)
}

func (d *Driver) Close() error {
	err := chromedp.Cancel(d.browserCtx)
	d.cancelBrowser()
	d.cancelAlloc()
	return err
}

func (d *Driver) evaluate(ctx context.Context, script page.Script) (string, error) {
	expr, err := script.Expression()
	if err != nil {
		return "", err
	}
	var raw string
	if err := d.run(ctx, d.timeout, "evaluate", chromedp.Evaluate(expr, &raw)); err != nil {
		return "", err
	}
	return raw, nil
}

// run executes actions on the browser tab bounded by timeout. chromedp binds
// actions to the tab's own context, so caller cancellation is bridged in.
func (d *Driver) run(ctx context.Context, timeout time.Duration, what string, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(d.browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", page.ErrWaitTimeout, what, timeout)
	}
	return fmt.Errorf("cdpdriver: %s: %w", what, err)
}

type control struct {
	driver *Driver
	node   *cdp.Node
}

func (c control) property(ctx context.Context, name string) (string, error) {
	var raw any
	err := c.driver.run(ctx, c.driver.timeout, name,
		chromedp.JavascriptAttribute([]cdp.NodeID{c.node.NodeID}, name, &raw, chromedp.ByNodeID))
	if errors.Is(err, chromedp.ErrJSUndefined) || errors.Is(err, chromedp.ErrJSNull) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if raw == nil {
		return "", nil
	}
	return fmt.Sprint(raw), nil
}

func (c control) Text(ctx context.Context) (string, error) {
	return c.property(ctx, "innerText")
}

func (c control) Value(ctx context.Context) (string, error) {
	return c.property(ctx, "value")
}

func (c control) Click(ctx context.Context) error {
	return c.driver.run(ctx, c.driver.timeout, "click node", chromedp.MouseClickNode(c.node))
}
