// Package process defines the persisted process record — the durable
// representation of one workflow run: its merged wizard answers, step
// cursor, lifecycle status, and append-only step outcomes — plus the
// store interface that persists it.
package process

import (
	"fmt"
	"time"

	"github.com/xraph/procession"
	"github.com/xraph/procession/id"
	"github.com/xraph/procession/lifecycle"
)

// RunState represents the execution state of a process record.
type RunState string

const (
	// RunStateRunning means the pipeline is executing or ready to execute.
	RunStateRunning RunState = "running"
	// RunStateSuspended means the pipeline is parked awaiting an external
	// callback event.
	RunStateSuspended RunState = "suspended"
	// RunStateDone means all steps succeeded.
	RunStateDone RunState = "done"
	// RunStateFailed means a step failed; the record is resumable
	// indefinitely until explicitly aborted.
	RunStateFailed RunState = "failed"
	// RunStateAborted means an operator cancelled the run.
	RunStateAborted RunState = "aborted"
)

// Terminal reports whether the run state admits no further execution.
func (s RunState) Terminal() bool {
	return s == RunStateDone || s == RunStateAborted
}

// Record is the durable state of one workflow run. All mutation goes
// through the pipeline executor's single-writer discipline; external
// actors never write Cursor, Lifecycle, or outcomes directly.
type Record struct {
	procession.Entity

	ID       id.ProcessID `json:"id"`
	Workflow string       `json:"workflow"`

	// Cursor is the index of the next step to execute. It only moves
	// forward, one durable commit at a time; a failed step halts it
	// until the step is retried or skipped.
	Cursor int `json:"cursor"`

	// State is the free-form mapping accumulated across the wizard and
	// the steps. Keys are added or overwritten, never implicitly removed.
	State procession.Fields `json:"state"`

	Lifecycle lifecycle.Status `json:"lifecycle"`
	RunState  RunState         `json:"run_state"`

	// Error holds the detail of the halting step failure, if any.
	Error string `json:"error,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a running record for a workflow with the given merged
// input record as its initial state.
func New(workflow string, state procession.Fields) *Record {
	return &Record{
		Entity:    procession.NewEntity(),
		ID:        id.NewProcessID(),
		Workflow:  workflow,
		State:     state.Clone(),
		Lifecycle: lifecycle.StatusInitial,
		RunState:  RunStateRunning,
		StartedAt: time.Now().UTC(),
	}
}

// Validate checks the cursor/outcome invariant: the cursor equals the
// number of outcomes that are not halting failures (success + skipped).
func (r *Record) Validate(outcomes []*Outcome) error {
	progressed := 0
	for _, o := range outcomes {
		if o.Status != OutcomeFailed {
			progressed++
		}
	}
	if r.Cursor != progressed {
		return fmt.Errorf("process %s: cursor %d does not match %d progressed outcomes", r.ID, r.Cursor, progressed)
	}
	return nil
}
