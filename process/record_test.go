package process_test

import (
	"testing"

	"github.com/xraph/procession"
	"github.com/xraph/procession/lifecycle"
	"github.com/xraph/procession/process"
)

func TestNewRecord(t *testing.T) {
	state := procession.Fields{"organisation": "ORG1"}
	rec := process.New("provision-port", state)

	if rec.ID.IsNil() {
		t.Error("record ID should be assigned at creation")
	}
	if rec.Cursor != 0 {
		t.Errorf("cursor = %d, want 0", rec.Cursor)
	}
	if rec.Lifecycle != lifecycle.StatusInitial {
		t.Errorf("lifecycle = %q, want initial", rec.Lifecycle)
	}
	if rec.RunState != process.RunStateRunning {
		t.Errorf("run state = %q, want running", rec.RunState)
	}

	// The record owns a copy of the input state.
	state["organisation"] = "MUTATED"
	if rec.State["organisation"] != "ORG1" {
		t.Error("record state should be decoupled from the caller's map")
	}
}

func TestValidateCursorInvariant(t *testing.T) {
	rec := process.New("wf", nil)
	pid := rec.ID

	outcomes := []*process.Outcome{
		process.NewOutcome(pid, "construct", process.OutcomeSuccess, ""),
		process.NewOutcome(pid, "persist", process.OutcomeFailed, "boom"),
	}

	// One progressed outcome, cursor must be 1.
	rec.Cursor = 1
	if err := rec.Validate(outcomes); err != nil {
		t.Errorf("Validate: %v", err)
	}

	rec.Cursor = 2
	if err := rec.Validate(outcomes); err == nil {
		t.Error("expected invariant violation for cursor 2")
	}

	// A retried-and-fixed step keeps its stale failed row; only
	// non-failed outcomes count.
	outcomes = append(outcomes,
		process.NewOutcome(pid, "persist", process.OutcomeSuccess, ""),
		process.NewOutcome(pid, "notify", process.OutcomeSkipped, ""),
	)
	rec.Cursor = 3
	if err := rec.Validate(outcomes); err != nil {
		t.Errorf("Validate after retry: %v", err)
	}
}

func TestRunStateTerminal(t *testing.T) {
	for state, want := range map[process.RunState]bool{
		process.RunStateRunning:   false,
		process.RunStateSuspended: false,
		process.RunStateFailed:    false,
		process.RunStateDone:      true,
		process.RunStateAborted:   true,
	} {
		if got := state.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", state, got, want)
		}
	}
}
