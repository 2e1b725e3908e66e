// Package pwdriver implements page.Driver on playwright-go.
package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danmuck/vcictl/internal/page"
	pw "github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog/log"
)

// Options configures the launched Chromium instance.
type Options struct {
	Headless bool
	// Timeout is the default for every playwright action without its own.
	Timeout time.Duration
	Width   int
	Height  int
}

// Driver drives one Chromium tab through playwright.
type Driver struct {
	pw      *pw.Playwright
	browser pw.Browser
	page    pw.Page
	timeout time.Duration
}

// Launch starts playwright, a Chromium browser and one page.
func Launch(opts Options) (*Driver, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1280, 800
	}

	runtime, err := pw.Run()
	if err != nil {
		return nil, fmt.Errorf("pwdriver: start playwright: %w", err)
	}
	browser, err := runtime.Chromium.Launch(pw.BrowserTypeLaunchOptions{
		Headless: pw.Bool(opts.Headless),
	})
	if err != nil {
		_ = runtime.Stop()
		return nil, fmt.Errorf("pwdriver: launch chromium: %w", err)
	}
	pg, err := browser.NewPage(pw.BrowserNewPageOptions{
		Viewport: &pw.Size{Width: opts.Width, Height: opts.Height},
	})
	if err != nil {
		_ = browser.Close()
		_ = runtime.Stop()
		return nil, fmt.Errorf("pwdriver: new page: %w", err)
	}
	pg.SetDefaultTimeout(millis(opts.Timeout))

	log.Debug().Bool("headless", opts.Headless).Msg("pwdriver.Launch ready")
	return &Driver{pw: runtime, browser: browser, page: pg, timeout: opts.Timeout}, nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := d.page.Goto(url, pw.PageGotoOptions{WaitUntil: pw.WaitUntilStateLoad}); err != nil {
		return fmt.Errorf("pwdriver: goto %s: %w", url, err)
	}
	return nil
}

func (d *Driver) WaitFor(ctx context.Context, selector string, opts page.WaitOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state := pw.WaitForSelectorStateAttached
	if opts.Visible {
		state = pw.WaitForSelectorStateVisible
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = d.timeout
	}
	_, err := d.page.WaitForSelector(selector, pw.PageWaitForSelectorOptions{
		State:   state,
		Timeout: pw.Float(millis(timeout)),
	})
	if err != nil {
		if errors.Is(err, pw.ErrTimeout) {
			return fmt.Errorf("%w: %s after %s", page.ErrWaitTimeout, selector, timeout)
		}
		return fmt.Errorf("pwdriver: wait for %s: %w", selector, err)
	}
	return nil
}

func (d *Driver) Controls(ctx context.Context, selector string) ([]page.Control, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	locators, err := d.page.Locator(selector).All()
	if err != nil {
		return nil, fmt.Errorf("pwdriver: list %s: %w", selector, err)
	}
	out := make([]page.Control, 0, len(locators))
	for _, loc := range locators {
		out = append(out, control{loc: loc})
	}
	return out, nil
}

func (d *Driver) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.page.Locator(selector).First().Click(); err != nil {
		return fmt.Errorf("pwdriver: click %s: %w", selector, err)
	}
	return nil
}

func (d *Driver) Submit(ctx context.Context, selector string, timeout time.Duration) error {
	if err := d.Click(ctx, selector); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = d.timeout
	}
	err := d.page.WaitForLoadState(pw.PageWaitForLoadStateOptions{
		State:   pw.LoadStateNetworkidle,
		Timeout: pw.Float(millis(timeout)),
	})
	if err != nil {
		if errors.Is(err, pw.ErrTimeout) {
			return fmt.Errorf("%w: navigation after %s", page.ErrWaitTimeout, selector)
		}
		return fmt.Errorf("pwdriver: wait navigation: %w", err)
	}
	return nil
}

func (d *Driver) Type(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.page.Locator(selector).First().Fill(text); err != nil {
		return fmt.Errorf("pwdriver: type into %s: %w", selector, err)
	}
	return nil
}

// Select runs the shared script instead of Page.SelectOption, which blocks until
// the action timeout when no option carries value.
func (d *Driver) Select(ctx context.Context, selector, value string) error {
	if err := d.WaitFor(ctx, selector, page.WaitOptions{}); err != nil {
		return err
	}
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
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if _, err := d.page.Screenshot(pw.PageScreenshotOptions{
		Path:     pw.String(path),
		FullPage: pw.Bool(true),
	}); err != nil {
		return fmt.Errorf("pwdriver: screenshot %s: %w", path, err)
	}
	return nil
}

func (d *Driver) SetCookie(ctx context.Context, cookie page.Cookie) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := cookie.Path
	if path == "" {
		path = "/"
	}
	err := d.page.Context().AddCookies([]pw.OptionalCookie{{
		Name:     cookie.Name,
		Value:    cookie.Value,
		Domain:   pw.String(cookie.Domain),
		Path:     pw.String(path),
		Secure:   pw.Bool(cookie.Secure),
		HttpOnly: pw.Bool(cookie.HTTPOnly),
	}})
	if err != nil {
		return fmt.Errorf("pwdriver: set cookie %s: %w", cookie.Name, err)
	}
	return nil
}

func (d *Driver) Close() error {
	var errs []error
	if d.browser != nil {
		errs = append(errs, d.browser.Close())
	}
	if d.pw != nil {
		errs = append(errs, d.pw.Stop())
	}
	return errors.Join(errs...)
}

func (d *Driver) evaluate(ctx context.Context, script page.Script) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	expr, err := script.Expression()
	if err != nil {
		return "", err
	}
	res, err := d.page.Evaluate(expr)
	if err != nil {
		return "", fmt.Errorf("pwdriver: evaluate: %w", err)
	}
	raw, ok := res.(string)
	if !ok {
		return "", fmt.Errorf("pwdriver: evaluate returned %T", res)
	}
	return raw, nil
}

type control struct {
	loc pw.Locator
}

func (c control) Text(context.Context) (string, error) {
	return c.loc.InnerText()
}

func (c control) Value(context.Context) (string, error) {
	res, err := c.loc.Evaluate("(el) => el.value === undefined || el.value === null ? '' : String(el.value)", nil)
	if err != nil {
		return "", err
	}
	v, _ := res.(string)
	return v, nil
}

func (c control) Click(context.Context) error {
	return c.loc.Click()
}

func millis(d time.Duration) float64 {
	return float64(d / time.Millisecond)
}
