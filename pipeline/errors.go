package pipeline

import "fmt"

// StepError reports the step failure that halted a run. The wrapped
// error is the step's own.
type StepError struct {
	Step string
	Err  error
}

// Error implements error.
func (e *StepError) Error() string {
	return fmt.Sprintf("pipeline: step %q failed: %v", e.Step, e.Err)
}

// Unwrap returns the underlying step error.
func (e *StepError) Unwrap() error { return e.Err }

// PersistenceError reports a store failure during one of the executor's
// own commits, as opposed to a failure inside a step. The run's durable
// state is whatever the last successful commit left; callers reload the
// record before driving it again.
type PersistenceError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying store error.
func (e *PersistenceError) Unwrap() error { return e.Err }

// suspension is the internal signal an Await step returns when its wait
// window closes without an event.
type suspension struct {
	event string
}

func (s *suspension) Error() string {
	return fmt.Sprintf("pipeline: awaiting event %q", s.event)
}
