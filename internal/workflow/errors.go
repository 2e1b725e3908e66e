package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrControlNotFound  = errors.New("workflow: control not found")
	ErrExtractionFailed = errors.New("workflow: extraction failed")
)

// ControlNotFoundError names a control that never appeared within its retry
// budget.
type ControlNotFoundError struct {
	Label    string
	Attempts int
	// Err is the underlying wait failure, when there was one.
	Err error
}

func (e *ControlNotFoundError) Error() string {
	msg := fmt.Sprintf("workflow: control %q not found after %d attempt(s)", e.Label, e.Attempts)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ControlNotFoundError) Is(target error) bool {
	return target == ErrControlNotFound
}

func (e *ControlNotFoundError) Unwrap() error {
	return e.Err
}

// Workflow run phase marker.
type Phase string

const (
	PhaseNavigate Phase = "navigate"
	PhaseReady    Phase = "ready"
	PhaseStep     Phase = "step"
	PhaseScrape   Phase = "scrape"
)

// WorkflowError is the per-record failure surfaced to the batch runner.
type WorkflowError struct {
	Workflow Kind
	Record   string
	Phase    Phase
	// Step is 1-based and only set in PhaseStep.
	Step int
	Name string
	Err  error
}

func (e *WorkflowError) Error() string {
	if e.Phase == PhaseStep {
		return fmt.Sprintf("workflow: %s record=%q step=%d(%s): %v", e.Workflow, e.Record, e.Step, e.Name, e.Err)
	}
	return fmt.Sprintf("workflow: %s record=%q phase=%s: %v", e.Workflow, e.Record, e.Phase, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}
