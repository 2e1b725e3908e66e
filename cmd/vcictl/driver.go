package main

import (
	"fmt"

	"github.com/danmuck/vcictl/internal/config"
	"github.com/danmuck/vcictl/internal/page"
	"github.com/danmuck/vcictl/internal/page/cdpdriver"
	"github.com/danmuck/vcictl/internal/page/pwdriver"
	"github.com/danmuck/vcictl/internal/page/roddriver"
)

// launchDriver is swapped out by tests.
var launchDriver = openBrowser

func openBrowser(cfg config.Config) (page.Driver, error) {
	switch cfg.Driver {
	case config.DriverPlaywright:
		d, err := pwdriver.Launch(pwdriver.Options{Headless: cfg.Headless, Timeout: cfg.BrowserTimeout})
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.DriverRod:
		d, err := roddriver.Launch(roddriver.Options{Headless: cfg.Headless, Timeout: cfg.BrowserTimeout, Bin: cfg.BrowserPath})
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.DriverChromedp:
		d, err := cdpdriver.Launch(cdpdriver.Options{Headless: cfg.Headless, Timeout: cfg.BrowserTimeout, ExecPath: cfg.BrowserPath})
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", config.ErrInvalidConfig, cfg.Driver)
	}
}
