package workflow

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/vcictl/internal/testutil/testlog"
)

func TestParseKind(t *testing.T) {
	testlog.Start(t)
	cases := map[string]Kind{
		"approve":  KindApprove,
		" Extract": KindExtract,
		"clinvar":  KindExtract,
	}
	for raw, want := range cases {
		got, err := ParseKind(raw)
		if err != nil || got != want {
			t.Fatalf("unexpected kind for %q: %q (%v)", raw, got, err)
		}
	}
	if _, err := ParseKind("publish"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestBuiltInDefinitions(t *testing.T) {
	testlog.Start(t)
	approve := Approve(DefaultSettings())
	if err := approve.Validate(); err != nil {
		t.Fatalf("approve invalid: %v", err)
	}
	if len(approve.Steps) != 7 || approve.Scrape != nil {
		t.Fatalf("unexpected approve definition: %+v", approve)
	}
	if approve.Steps[6].AwaitLabel != LabelClinVarData {
		t.Fatalf("approve must end on the submission data control")
	}

	extract := Extract(DefaultSettings())
	if err := extract.Validate(); err != nil {
		t.Fatalf("extract invalid: %v", err)
	}
	if len(extract.Steps) != 3 || extract.Scrape == nil {
		t.Fatalf("unexpected extract definition: %+v", extract)
	}

	if _, err := For(Kind("nope"), DefaultSettings()); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestValidateRejectsBrokenDefinitions(t *testing.T) {
	testlog.Start(t)
	base := Approve(DefaultSettings())
	broken := []Definition{
		{Statuses: base.Statuses, Steps: base.Steps},
		{Kind: KindApprove, Statuses: base.Statuses},
		{Kind: KindApprove, Steps: base.Steps},
		{Kind: KindApprove, Statuses: base.Statuses, Steps: []Step{{TriggerLabel: "a", TriggerSelector: ".a"}}},
		{Kind: KindExtract, Statuses: base.Statuses, Steps: base.Steps, Scrape: &Scrape{}},
	}
	for i, def := range broken {
		if err := def.Validate(); !errors.Is(err, ErrInvalidDefinition) {
			t.Fatalf("case %d: expected ErrInvalidDefinition, got %v", i, err)
		}
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	testlog.Start(t)
	fixed := DefaultRetryPolicy()
	for attempt := 1; attempt <= 4; attempt++ {
		if got := fixed.Delay(attempt, nil); got != time.Second {
			t.Fatalf("unexpected fixed delay at %d: %v", attempt, got)
		}
	}

	growing := RetryPolicy{Attempts: 5, Interval: 100 * time.Millisecond, Multiplier: 2, MaxInterval: 300 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if got := growing.Delay(i+1, nil); got != w {
			t.Fatalf("unexpected delay at %d: %v", i+1, got)
		}
	}

	jittered := RetryPolicy{Interval: time.Second, Multiplier: 1, Jitter: true}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		got := jittered.Delay(1, rng)
		if got < 500*time.Millisecond || got > 1500*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
	if got := (RetryPolicy{}).Delay(3, nil); got != 0 {
		t.Fatalf("zero interval must not wait: %v", got)
	}
}
