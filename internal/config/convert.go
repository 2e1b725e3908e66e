package config

import (
	"fmt"
	"path/filepath"

	"github.com/danmuck/vcictl/internal/catalog"
	"github.com/danmuck/vcictl/internal/session"
	"github.com/danmuck/vcictl/internal/workflow"
)

// SessionTarget resolves the named portal deployment.
func (c Config) SessionTarget(name string) (session.Target, error) {
	t, ok := c.Targets[name]
	if !ok {
		return session.Target{}, fmt.Errorf("%w: unknown target %q", ErrInvalidConfig, name)
	}
	return session.Target{Name: name, Domain: t.Domain, LoginButtonSelector: t.LoginButtonSelector}, nil
}

func (c Config) SessionOptions(target session.Target, creds Credentials) session.Options {
	return session.Options{
		Target: target,
		Affiliation: session.Affiliation{
			ID:        c.AffiliationID,
			FullName:  c.AffiliationName,
			Approvers: []string{c.Approver},
		},
		Credentials:       session.Credentials{Username: creds.Username, Password: creds.Password},
		Selectors:         session.DefaultSelectors(),
		FormTimeout:       c.FormTimeout,
		NavigationTimeout: c.NavigationTimeout,
		CatalogTimeout:    c.CatalogTimeout,
		ProgressSnapshot:  filepath.Join(c.DiagnosticsDir, "progress.png"),
	}
}

func (c Config) CatalogOptions() catalog.Options {
	return catalog.DefaultOptions()
}

func (c Config) WorkflowSettings() workflow.Settings {
	s := workflow.DefaultSettings()
	s.SummarySelector = c.ReadySelector
	s.Approver = c.Approver
	s.ApproverFieldSelector = c.ApproverFieldSelector
	s.ResultsTableSelector = c.ResultsTableSelector
	s.ResultsTimeout = c.ResultsTimeout
	return s
}

func (c Config) SequencerOptions() workflow.Options {
	opts := workflow.DefaultOptions()
	opts.ControlSelector = c.ControlSelector
	opts.ReadySelector = c.ReadySelector
	opts.ReadyTimeout = c.ReadyTimeout
	opts.SettleDelay = c.SettleDelay
	opts.Retry = workflow.RetryPolicy{
		Attempts:   c.ControlRetries,
		Interval:   c.ControlInterval,
		Multiplier: c.ControlBackoff,
	}
	opts.DiagnosticsDir = c.DiagnosticsDir
	return opts
}
