package process

import (
	"context"

	"github.com/xraph/procession/id"
)

// ListOpts controls filtering and pagination for process list queries.
type ListOpts struct {
	// Limit is the maximum number of records to return. Zero means no limit.
	Limit int
	// Offset is the number of records to skip.
	Offset int
	// RunState filters by run state. Empty means all states.
	RunState RunState
	// Workflow filters by workflow name. Empty means all workflows.
	Workflow string
}

// Store defines the persistence contract for process records.
type Store interface {
	// CreateProcess persists a new process record.
	CreateProcess(ctx context.Context, rec *Record) error

	// GetProcess retrieves a process record by ID.
	GetProcess(ctx context.Context, processID id.ProcessID) (*Record, error)

	// UpdateProcess persists changes to an existing process record.
	UpdateProcess(ctx context.Context, rec *Record) error

	// ListProcesses returns process records matching the given options.
	ListProcesses(ctx context.Context, opts ListOpts) ([]*Record, error)

	// AppendOutcome records a step outcome. An existing outcome for the
	// same (process, step, status) triple is replaced, so a step retried
	// after repeated failures keeps a single failed row.
	AppendOutcome(ctx context.Context, o *Outcome) error

	// ListOutcomes returns a process's outcomes ordered by recording time.
	ListOutcomes(ctx context.Context, processID id.ProcessID) ([]*Outcome, error)
}
