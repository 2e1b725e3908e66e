package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/vcictl/internal/catalog"
)

// Workflow kind selected by the operator.
type Kind string

const (
	KindApprove Kind = "approve"
	KindExtract Kind = "extract"
)

var ErrUnknownKind = errors.New("workflow: unknown workflow kind")

// ParseKind accepts the operator spelling, including the legacy "clinvar"
// alias for extract.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(KindApprove):
		return KindApprove, nil
	case string(KindExtract), "clinvar":
		return KindExtract, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

// Field action applied before a step's trigger.
type FieldAction string

const (
	FieldSelect FieldAction = "select"
	FieldType   FieldAction = "type"
)

type FieldSelection struct {
	Selector string
	Value    string
	Action   FieldAction
}

// Step is one row of a workflow's transition table. A step with neither
// trigger only captures its snapshot.
type Step struct {
	// Name doubles as the snapshot file stem; empty skips the snapshot.
	Name string
	// TriggerSelector clicks a CSS selector directly.
	TriggerSelector string
	// TriggerLabel clicks the control whose text or value equals it.
	TriggerLabel string
	// AwaitLabel must appear before the next step may run.
	AwaitLabel string
	Fields     []FieldSelection
}

// Scrape reads the results table once every step has completed.
type Scrape struct {
	TableSelector string
	Timeout       time.Duration
}

// Definition is a complete workflow: which records it accepts and the steps
// it drives each one through.
type Definition struct {
	Kind     Kind
	Statuses catalog.StatusFilter
	Steps    []Step
	Scrape   *Scrape
}

var ErrInvalidDefinition = errors.New("workflow: invalid definition")

func (d Definition) Validate() error {
	if d.Kind == "" {
		return fmt.Errorf("%w: kind is empty", ErrInvalidDefinition)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: %s has no steps", ErrInvalidDefinition, d.Kind)
	}
	if len(d.Statuses) == 0 {
		return fmt.Errorf("%w: %s has no statuses", ErrInvalidDefinition, d.Kind)
	}
	for i, step := range d.Steps {
		if step.TriggerSelector != "" && step.TriggerLabel != "" {
			return fmt.Errorf("%w: step %d has two triggers", ErrInvalidDefinition, i+1)
		}
		for _, f := range step.Fields {
			if f.Selector == "" {
				return fmt.Errorf("%w: step %d field without selector", ErrInvalidDefinition, i+1)
			}
		}
	}
	if d.Scrape != nil && d.Scrape.TableSelector == "" {
		return fmt.Errorf("%w: %s scrape without table selector", ErrInvalidDefinition, d.Kind)
	}
	return nil
}

// Settings carries the portal specifics the step tables depend on.
type Settings struct {
	SummarySelector       string
	Approver              string
	ApproverFieldSelector string
	ResultsTableSelector  string
	ResultsTimeout        time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		SummarySelector:       ".view-summary",
		Approver:              "Samantha Baxter",
		ApproverFieldSelector: ".form-control",
		ResultsTableSelector:  ".clinvar-submission-data table",
		ResultsTimeout:        10 * time.Second,
	}
}

// Portal control labels. Several carry a trailing space that the portal
// really renders.
const (
	LabelSave               = "Save"
	LabelPreviewProvisional = "Preview Provisional"
	LabelSubmitProvisional  = "Submit Provisional "
	LabelPreviewApproval    = "Preview Approval"
	LabelSubmitApproval     = "Submit Approval "
	LabelClinVarData        = "ClinVar Submission Data"
	LabelGenerate           = "Generate"
)

// Approve walks a record from in progress to a submitted approval.
func Approve(s Settings) Definition {
	return Definition{
		Kind:     KindApprove,
		Statuses: catalog.ApproveStatuses,
		Steps: []Step{
			{Name: "1-initial"},
			{Name: "2-view-summary", TriggerSelector: s.SummarySelector, AwaitLabel: LabelSave},
			{Name: "3-save", TriggerLabel: LabelSave, AwaitLabel: LabelPreviewProvisional},
			{Name: "4-preview-provisional", TriggerLabel: LabelPreviewProvisional, AwaitLabel: LabelSubmitProvisional},
			{Name: "5-submit-provisional", TriggerLabel: LabelSubmitProvisional, AwaitLabel: LabelPreviewApproval},
			{
				Name:         "6-preview-approval",
				TriggerLabel: LabelPreviewApproval,
				AwaitLabel:   LabelSubmitApproval,
				Fields: []FieldSelection{
					{Selector: s.ApproverFieldSelector, Value: s.Approver, Action: FieldSelect},
				},
			},
			{Name: "7-submit-approval", TriggerLabel: LabelSubmitApproval, AwaitLabel: LabelClinVarData},
		},
	}
}

// Extract generates the ClinVar submission table of an approved record.
func Extract(s Settings) Definition {
	return Definition{
		Kind:     KindExtract,
		Statuses: catalog.ExtractStatuses,
		Steps: []Step{
			{Name: "1-view-summary", TriggerSelector: s.SummarySelector, AwaitLabel: LabelClinVarData},
			{Name: "2-clinvar-submission-data", TriggerLabel: LabelClinVarData, AwaitLabel: LabelGenerate},
			{Name: "3-generate", TriggerLabel: LabelGenerate},
		},
		Scrape: &Scrape{TableSelector: s.ResultsTableSelector, Timeout: s.ResultsTimeout},
	}
}

// For returns the definition for kind.
func For(kind Kind, s Settings) (Definition, error) {
	switch kind {
	case KindApprove:
		return Approve(s), nil
	case KindExtract:
		return Extract(s), nil
	default:
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
