// Package lifecycle defines the states a provisioned entity passes through
// and the named operations that move it between them. Direct state
// assignment is deliberately absent from the API: every change goes through
// Apply so the trail of transitions stays auditable.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/xraph/procession"
)

// Status is a lifecycle state of a provisioned entity.
type Status string

const (
	// StatusInitial is the state of a freshly constructed entity.
	StatusInitial Status = "initial"
	// StatusProvisioning means the provisioning pipeline is in flight.
	StatusProvisioning Status = "provisioning"
	// StatusActive means provisioning completed and the entity is in service.
	StatusActive Status = "active"
	// StatusTerminated is the terminal state after explicit deactivation.
	StatusTerminated Status = "terminated"
	// StatusFailed is the terminal state after an unrecoverable
	// provisioning error.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further operations can leave this status.
func (s Status) Terminal() bool {
	return s == StatusTerminated || s == StatusFailed
}

// Operation is a named lifecycle transition.
type Operation string

const (
	// OpProvision moves an initial entity into provisioning.
	OpProvision Operation = "provision"
	// OpActivate moves a provisioning entity into service.
	OpActivate Operation = "activate"
	// OpTerminate deactivates an entity from any non-terminal state.
	OpTerminate Operation = "terminate"
	// OpFail marks a provisioning entity as unrecoverably failed.
	OpFail Operation = "fail"
)

// transitions maps each operation to its legal source states.
var transitions = map[Operation]map[Status]Status{
	OpProvision: {
		StatusInitial: StatusProvisioning,
	},
	OpActivate: {
		StatusProvisioning: StatusActive,
	},
	OpTerminate: {
		StatusInitial:      StatusTerminated,
		StatusProvisioning: StatusTerminated,
		StatusActive:       StatusTerminated,
	},
	OpFail: {
		StatusProvisioning: StatusFailed,
	},
}

// targets maps each operation to the status it produces, used for
// idempotence: re-applying an operation whose target is the current
// status is a no-op rather than an error.
var targets = map[Operation]Status{
	OpProvision: StatusProvisioning,
	OpActivate:  StatusActive,
	OpTerminate: StatusTerminated,
	OpFail:      StatusFailed,
}

// TransitionError reports an attempted illegal lifecycle change.
// It unwraps to procession.ErrInvalidTransition.
type TransitionError struct {
	Op   Operation
	From Status
}

// Error implements error.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s from %q: %v", e.Op, e.From, procession.ErrInvalidTransition)
}

// Unwrap returns the sentinel ErrInvalidTransition.
func (e *TransitionError) Unwrap() error { return procession.ErrInvalidTransition }

// Apply computes the status produced by applying op to current.
// The changed result is false when the operation is an idempotent
// re-application (current already equals the operation's target).
// An illegal transition returns a *TransitionError.
func Apply(current Status, op Operation) (next Status, changed bool, err error) {
	target, ok := targets[op]
	if !ok {
		return current, false, &TransitionError{Op: op, From: current}
	}
	if current == target {
		return current, false, nil
	}

	next, ok = transitions[op][current]
	if !ok {
		return current, false, &TransitionError{Op: op, From: current}
	}
	return next, true, nil
}

// Transition is one applied lifecycle operation, recorded for audit.
type Transition struct {
	Operation Operation `json:"operation"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	At        time.Time `json:"at"`
}

// Machine tracks a status together with its audit trail. It is not safe
// for concurrent use; callers serialize access per process record.
type Machine struct {
	status Status
	trail  []Transition
}

// NewMachine creates a machine at the given status. An empty status
// starts at StatusInitial.
func NewMachine(status Status) *Machine {
	if status == "" {
		status = StatusInitial
	}
	return &Machine{status: status}
}

// Status returns the current status.
func (m *Machine) Status() Status { return m.status }

// Trail returns the transitions applied so far, oldest first.
func (m *Machine) Trail() []Transition { return m.trail }

// Apply applies a named operation. Idempotent re-application reports
// changed=false and appends no duplicate trail record.
func (m *Machine) Apply(op Operation) (changed bool, err error) {
	next, changed, err := Apply(m.status, op)
	if err != nil || !changed {
		return changed, err
	}

	m.trail = append(m.trail, Transition{
		Operation: op,
		From:      m.status,
		To:        next,
		At:        time.Now().UTC(),
	})
	m.status = next
	return true, nil
}
