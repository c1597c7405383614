// Package pipeline implements the step pipeline executor: an ordered
// plan of named steps run against a persisted process record, with
// durable per-step commits, resume-from-failure, operator skip, and
// suspension on external callbacks.
package pipeline

import (
	"context"
	"time"

	"github.com/xraph/procession"
	"github.com/xraph/procession/lifecycle"
)

// ExecFunc is the body of an ordinary step: a function of the current
// accumulated state returning a state delta. The state argument is a
// copy; external systems are only touched by steps declared for that
// purpose (persistence, notification), which the executor treats like
// any other step.
type ExecFunc func(ctx context.Context, state procession.Fields) (procession.Fields, error)

// stepKind tags the step variants the executor knows how to run.
type stepKind int

const (
	kindExec stepKind = iota
	kindTransition
	kindAwait
)

// Step is one named unit of work in a plan. Steps are tagged variants:
// ordinary functions, lifecycle transitions, and external-event waits.
// Idempotence under re-execution is the step author's responsibility.
type Step struct {
	name string
	kind stepKind

	exec ExecFunc            // kindExec
	op   lifecycle.Operation // kindTransition

	// kindAwait
	event string
	wait  time.Duration
}

// Exec creates an ordinary step.
func Exec(name string, fn ExecFunc) Step {
	return Step{name: name, kind: kindExec, exec: fn}
}

// Transition creates a step that applies a named lifecycle operation to
// the process record. Re-applying an operation whose target state is
// already current succeeds as a no-op.
func Transition(op lifecycle.Operation) Step {
	return Step{name: "transition:" + string(op), kind: kindTransition, op: op}
}

// Await creates a step that waits for an external callback event. The
// executor subscribes to "<event>:<process-id>", so publishers scope
// their callback to one process. If no event arrives within wait (or
// the executor's default when wait is zero), the run parks as
// suspended; re-driving the record re-subscribes. A received JSON
// object payload is merged into the process state.
func Await(event string, wait time.Duration) Step {
	return Step{name: "await:" + event, kind: kindAwait, event: event, wait: wait}
}

// Name returns the step's unique name within its plan.
func (s Step) Name() string { return s.name }
