package batch

import (
	"time"

	"github.com/danmuck/vcictl/internal/workflow"
)

// Record outcome status.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusDryRun    Status = "dry_run"
	StatusCanceled  Status = "canceled"
)

type Outcome struct {
	Identifier string
	Status     Status
	Err        error
	Duration   time.Duration
	// Row is the aggregate line written for an extract record.
	Row string
}

// Summary is the per-run outcome log.
type Summary struct {
	RunID    string
	Workflow workflow.Kind
	DryRun   bool
	Started  time.Time
	Finished time.Time
	Outcomes []Outcome
	// Filtered lists catalog records left out by the external list.
	Filtered []string
	// Unmatched lists external identifiers the catalog did not offer.
	Unmatched []string
}

func (s Summary) Count(status Status) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

func (s Summary) Identifiers(status Status) []string {
	var out []string
	for _, o := range s.Outcomes {
		if o.Status == status {
			out = append(out, o.Identifier)
		}
	}
	return out
}

func (s Summary) Failures() []Outcome {
	var out []Outcome
	for _, o := range s.Outcomes {
		if o.Status == StatusFailed || o.Status == StatusCanceled {
			out = append(out, o)
		}
	}
	return out
}

func (s Summary) HasFailures() bool {
	return len(s.Failures()) > 0
}

func (s Summary) Elapsed() time.Duration {
	if s.Finished.IsZero() {
		return 0
	}
	return s.Finished.Sub(s.Started)
}
