package process

import (
	"time"

	"github.com/xraph/procession/id"
)

// OutcomeStatus classifies one recorded step execution.
type OutcomeStatus string

const (
	// OutcomeSuccess means the step's output was durably merged.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeFailed means the step halted the pipeline at its cursor.
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomeSkipped means an operator advanced past the step.
	OutcomeSkipped OutcomeStatus = "skipped"
)

// Outcome records one step execution for a process. The sequence is
// append-only, except that re-recording the same (step, status) pair —
// a step failing again on retry, say — replaces the earlier row rather
// than duplicating it.
type Outcome struct {
	ID          id.OutcomeID  `json:"id"`
	ProcessID   id.ProcessID  `json:"process_id"`
	StepName    string        `json:"step_name"`
	Status      OutcomeStatus `json:"status"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	RecordedAt  time.Time     `json:"recorded_at"`
}

// NewOutcome creates an outcome stamped with the current UTC time.
func NewOutcome(processID id.ProcessID, step string, status OutcomeStatus, detail string) *Outcome {
	return &Outcome{
		ID:          id.NewOutcomeID(),
		ProcessID:   processID,
		StepName:    step,
		Status:      status,
		ErrorDetail: detail,
		RecordedAt:  time.Now().UTC(),
	}
}
