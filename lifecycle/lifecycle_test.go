package lifecycle_test

import (
	"errors"
	"testing"

	"github.com/xraph/procession"
	"github.com/xraph/procession/lifecycle"
)

func TestApplyLegalPath(t *testing.T) {
	m := lifecycle.NewMachine("")
	if m.Status() != lifecycle.StatusInitial {
		t.Fatalf("status = %q, want %q", m.Status(), lifecycle.StatusInitial)
	}

	for _, op := range []lifecycle.Operation{lifecycle.OpProvision, lifecycle.OpActivate} {
		changed, err := m.Apply(op)
		if err != nil {
			t.Fatalf("Apply(%s): %v", op, err)
		}
		if !changed {
			t.Errorf("Apply(%s) changed = false, want true", op)
		}
	}

	if m.Status() != lifecycle.StatusActive {
		t.Errorf("status = %q, want %q", m.Status(), lifecycle.StatusActive)
	}
	if len(m.Trail()) != 2 {
		t.Errorf("trail length = %d, want 2", len(m.Trail()))
	}
}

func TestApplyIdempotent(t *testing.T) {
	m := lifecycle.NewMachine(lifecycle.StatusInitial)
	if _, err := m.Apply(lifecycle.OpProvision); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// Re-applying provision on a provisioning entity is a no-op.
	changed, err := m.Apply(lifecycle.OpProvision)
	if err != nil {
		t.Fatalf("idempotent Apply: %v", err)
	}
	if changed {
		t.Error("idempotent Apply changed = true, want false")
	}
	if m.Status() != lifecycle.StatusProvisioning {
		t.Errorf("status = %q, want %q", m.Status(), lifecycle.StatusProvisioning)
	}
	if len(m.Trail()) != 1 {
		t.Errorf("trail length = %d, want 1 (no duplicate record)", len(m.Trail()))
	}
}

func TestApplyIllegal(t *testing.T) {
	tests := []struct {
		from lifecycle.Status
		op   lifecycle.Operation
	}{
		{lifecycle.StatusInitial, lifecycle.OpActivate},
		{lifecycle.StatusActive, lifecycle.OpProvision},
		{lifecycle.StatusActive, lifecycle.OpFail},
		{lifecycle.StatusTerminated, lifecycle.OpProvision},
		{lifecycle.StatusFailed, lifecycle.OpActivate},
	}

	for _, tt := range tests {
		_, _, err := lifecycle.Apply(tt.from, tt.op)
		if err == nil {
			t.Errorf("Apply(%s, %s): expected error", tt.from, tt.op)
			continue
		}
		if !errors.Is(err, procession.ErrInvalidTransition) {
			t.Errorf("Apply(%s, %s): error %v does not unwrap to ErrInvalidTransition", tt.from, tt.op, err)
		}
		var te *lifecycle.TransitionError
		if !errors.As(err, &te) {
			t.Errorf("Apply(%s, %s): error is not a *TransitionError", tt.from, tt.op)
		}
	}
}

func TestTerminateFromAnyNonTerminal(t *testing.T) {
	for _, from := range []lifecycle.Status{
		lifecycle.StatusInitial,
		lifecycle.StatusProvisioning,
		lifecycle.StatusActive,
	} {
		next, changed, err := lifecycle.Apply(from, lifecycle.OpTerminate)
		if err != nil {
			t.Errorf("terminate from %q: %v", from, err)
			continue
		}
		if !changed || next != lifecycle.StatusTerminated {
			t.Errorf("terminate from %q = (%q, %v), want (terminated, true)", from, next, changed)
		}
	}
}

func TestTerminal(t *testing.T) {
	if !lifecycle.StatusTerminated.Terminal() {
		t.Error("terminated should be terminal")
	}
	if !lifecycle.StatusFailed.Terminal() {
		t.Error("failed should be terminal")
	}
	if lifecycle.StatusActive.Terminal() {
		t.Error("active should not be terminal")
	}
}
