package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/procession"
	"github.com/xraph/procession/backoff"
	"github.com/xraph/procession/event"
	"github.com/xraph/procession/lifecycle"
	"github.com/xraph/procession/process"
)

const tracerName = "github.com/xraph/procession/pipeline"

// Result classifies how one drive of a record through a plan ended.
type Result string

const (
	// ResultDone means every step completed; the record is terminal.
	ResultDone Result = "done"
	// ResultFailed means a step failed after retries; the record halts at
	// its cursor and can be retried, skipped past, or aborted.
	ResultFailed Result = "failed"
	// ResultAborted means the run was cancelled; the record is terminal.
	ResultAborted Result = "aborted"
	// ResultSuspended means an Await step's wait window closed without an
	// event; the record parks and a later drive re-subscribes.
	ResultSuspended Result = "suspended"
)

// Emitter receives executor progress notifications. Implementations
// must be fast and non-blocking; they run inline on the execution path.
type Emitter interface {
	StepCompleted(ctx context.Context, rec *process.Record, step string, elapsed time.Duration)
	StepFailed(ctx context.Context, rec *process.Record, step string, err error)
	RunSuspended(ctx context.Context, rec *process.Record, eventName string)
}

type noopEmitter struct{}

func (noopEmitter) StepCompleted(context.Context, *process.Record, string, time.Duration) {}
func (noopEmitter) StepFailed(context.Context, *process.Record, string, error)            {}
func (noopEmitter) RunSuspended(context.Context, *process.Record, string)                 {}

// RetryPolicy controls in-place retry of a failing step within one
// drive. MaxAttempts <= 1 means a single attempt; the failure is then
// recorded and the run halts, resumable via a later Retry.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     backoff.Strategy
}

// Executor drives process records through plans, committing progress
// durably after every step. It is stateless between calls; all run
// state lives on the record.
type Executor struct {
	store        process.Store
	bus          *event.Bus
	logger       *slog.Logger
	emitter      Emitter
	retry        RetryPolicy
	tracer       trace.Tracer
	awaitTimeout time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the structured logger. Defaults to a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithEventBus sets the bus Await steps subscribe on. Plans without
// Await steps need no bus.
func WithEventBus(bus *event.Bus) Option {
	return func(e *Executor) { e.bus = bus }
}

// WithEmitter sets the progress notification sink.
func WithEmitter(em Emitter) Option {
	return func(e *Executor) { e.emitter = em }
}

// WithRetry sets the in-place retry policy for failing steps.
func WithRetry(p RetryPolicy) Option {
	return func(e *Executor) { e.retry = p }
}

// WithTracer sets the tracer for per-step spans. Defaults to the global
// provider's tracer, which is a no-op unless one is installed.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// WithAwaitTimeout sets the default wait window for Await steps that
// don't carry their own.
func WithAwaitTimeout(d time.Duration) Option {
	return func(e *Executor) { e.awaitTimeout = d }
}

// NewExecutor creates an executor over the given process store.
func NewExecutor(store process.Store, opts ...Option) *Executor {
	e := &Executor{
		store:        store,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		emitter:      noopEmitter{},
		tracer:       otel.Tracer(tracerName),
		awaitTimeout: procession.DefaultConfig().AwaitTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.retry.MaxAttempts > 1 && e.retry.Backoff == nil {
		e.retry.Backoff = backoff.Default()
	}
	return e
}

// Run drives rec through plan from its cursor until the plan completes,
// a step fails, the run suspends, or ctx is cancelled. Progress is
// committed after every step: each success appends an outcome and
// persists the advanced record before the next step starts, so a crash
// or failure never repeats committed work on resume.
//
// Calling Run on a record in a terminal run state returns that state's
// result without executing anything. A failed or suspended record is
// picked up again from its cursor.
//
// A *PersistenceError return means an executor commit itself failed;
// the in-memory record may be ahead of the store, so reload it before
// driving again.
func (e *Executor) Run(ctx context.Context, rec *process.Record, plan *Plan) (Result, error) {
	switch rec.RunState {
	case process.RunStateDone:
		return ResultDone, nil
	case process.RunStateAborted:
		return ResultAborted, nil
	case process.RunStateFailed, process.RunStateSuspended:
		rec.RunState = process.RunStateRunning
		rec.Error = ""
	}

	steps := plan.Steps()
	log := e.logger.With("process_id", rec.ID, "workflow", rec.Workflow)

	for rec.Cursor < len(steps) {
		if err := ctx.Err(); err != nil {
			return e.abort(ctx, rec, err)
		}

		st := steps[rec.Cursor]
		started := time.Now()
		delta, err := e.runStep(ctx, rec, st)

		var susp *suspension
		if errors.As(err, &susp) {
			rec.RunState = process.RunStateSuspended
			rec.Touch()
			if perr := e.store.UpdateProcess(ctx, rec); perr != nil {
				return ResultSuspended, &PersistenceError{Op: "suspend process", Err: perr}
			}
			log.InfoContext(ctx, "run suspended", "step", st.Name(), "event", susp.event)
			e.emitter.RunSuspended(ctx, rec, susp.event)
			return ResultSuspended, nil
		}

		if err != nil {
			o := process.NewOutcome(rec.ID, st.Name(), process.OutcomeFailed, err.Error())
			if perr := e.store.AppendOutcome(ctx, o); perr != nil {
				return ResultFailed, &PersistenceError{Op: "append failed outcome", Err: perr}
			}
			rec.RunState = process.RunStateFailed
			rec.Error = err.Error()
			rec.Touch()
			if perr := e.store.UpdateProcess(ctx, rec); perr != nil {
				return ResultFailed, &PersistenceError{Op: "mark process failed", Err: perr}
			}
			log.ErrorContext(ctx, "step failed", "step", st.Name(), "error", err)
			e.emitter.StepFailed(ctx, rec, st.Name(), err)
			return ResultFailed, &StepError{Step: st.Name(), Err: err}
		}

		// Commit: outcome first, then the advanced record. If the record
		// write is lost, the cursor re-runs the step and the outcome
		// upsert collapses the duplicate.
		o := process.NewOutcome(rec.ID, st.Name(), process.OutcomeSuccess, "")
		if perr := e.store.AppendOutcome(ctx, o); perr != nil {
			return ResultFailed, &PersistenceError{Op: "append outcome", Err: perr}
		}
		rec.State.Merge(delta)
		rec.Cursor++
		rec.Touch()
		if perr := e.store.UpdateProcess(ctx, rec); perr != nil {
			return ResultFailed, &PersistenceError{Op: "advance cursor", Err: perr}
		}

		log.DebugContext(ctx, "step completed", "step", st.Name(), "elapsed", time.Since(started))
		e.emitter.StepCompleted(ctx, rec, st.Name(), time.Since(started))
	}

	now := time.Now().UTC()
	rec.RunState = process.RunStateDone
	rec.CompletedAt = &now
	rec.Touch()
	if perr := e.store.UpdateProcess(ctx, rec); perr != nil {
		return ResultDone, &PersistenceError{Op: "complete process", Err: perr}
	}
	log.InfoContext(ctx, "run completed", "steps", len(steps))
	return ResultDone, nil
}

// Skip records a skipped outcome for the step at the record's cursor
// and advances past it without executing it. Only failed records can be
// skipped: the operator is overriding the halting failure.
func (e *Executor) Skip(ctx context.Context, rec *process.Record, plan *Plan) error {
	if rec.RunState != process.RunStateFailed {
		return procession.ErrProcessNotResumable
	}
	steps := plan.Steps()
	if rec.Cursor >= len(steps) {
		return procession.ErrProcessNotResumable
	}

	st := steps[rec.Cursor]
	o := process.NewOutcome(rec.ID, st.Name(), process.OutcomeSkipped, rec.Error)
	if err := e.store.AppendOutcome(ctx, o); err != nil {
		return &PersistenceError{Op: "append skipped outcome", Err: err}
	}
	rec.Cursor++
	rec.RunState = process.RunStateRunning
	rec.Error = ""
	rec.Touch()
	if err := e.store.UpdateProcess(ctx, rec); err != nil {
		return &PersistenceError{Op: "advance cursor", Err: err}
	}
	e.logger.WarnContext(ctx, "step skipped", "process_id", rec.ID, "step", st.Name())
	return nil
}

// abort marks the record aborted. Persisting uses a detached context so
// cancellation of the run context doesn't also lose the terminal write.
func (e *Executor) abort(ctx context.Context, rec *process.Record, cause error) (Result, error) {
	now := time.Now().UTC()
	rec.RunState = process.RunStateAborted
	rec.CompletedAt = &now
	rec.Touch()
	if perr := e.store.UpdateProcess(context.WithoutCancel(ctx), rec); perr != nil {
		return ResultAborted, &PersistenceError{Op: "abort process", Err: perr}
	}
	e.logger.InfoContext(ctx, "run aborted", "process_id", rec.ID, "cause", cause)
	return ResultAborted, cause
}

// runStep executes one step inside a span, applying the retry policy.
// Suspensions, invalid lifecycle transitions, and context cancellation
// are not retried.
func (e *Executor) runStep(ctx context.Context, rec *process.Record, st Step) (procession.Fields, error) {
	ctx, span := e.tracer.Start(ctx, "pipeline.step "+st.Name(), trace.WithAttributes(
		attribute.String("procession.process_id", rec.ID.String()),
		attribute.String("procession.workflow", rec.Workflow),
		attribute.String("procession.step", st.Name()),
		attribute.Int("procession.cursor", rec.Cursor),
	))
	defer span.End()

	attempts := e.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		delta procession.Fields
		err   error
	)
	for attempt := 1; ; attempt++ {
		delta, err = e.execute(ctx, rec, st)
		if err == nil {
			span.SetStatus(codes.Ok, "")
			return delta, nil
		}

		var susp *suspension
		if errors.As(err, &susp) {
			span.AddEvent("suspended", trace.WithAttributes(attribute.String("procession.event", susp.event)))
			return nil, err
		}
		if attempt >= attempts ||
			errors.Is(err, procession.ErrInvalidTransition) ||
			errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		delay := e.retry.Backoff.Delay(attempt)
		e.logger.WarnContext(ctx, "step attempt failed, retrying",
			"process_id", rec.ID, "step", st.Name(), "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			span.SetStatus(codes.Error, "cancelled")
			return nil, ctx.Err()
		}
	}
}

// execute dispatches on the step variant.
func (e *Executor) execute(ctx context.Context, rec *process.Record, st Step) (procession.Fields, error) {
	switch st.kind {
	case kindExec:
		return st.exec(ctx, rec.State.Clone())

	case kindTransition:
		next, changed, err := lifecycle.Apply(rec.Lifecycle, st.op)
		if err != nil {
			return nil, err
		}
		if changed {
			rec.Lifecycle = next
		}
		return nil, nil

	case kindAwait:
		if e.bus == nil {
			return nil, errors.New("pipeline: await step requires an event bus")
		}
		wait := st.wait
		if wait <= 0 {
			wait = e.awaitTimeout
		}
		name := st.event + ":" + rec.ID.String()
		evt, err := e.bus.Subscribe(ctx, name, wait)
		if err != nil {
			return nil, err
		}
		if evt == nil {
			return nil, &suspension{event: name}
		}
		if err := e.bus.Ack(ctx, evt.ID); err != nil {
			return nil, err
		}

		var delta procession.Fields
		if len(evt.Payload) > 0 {
			if err := json.Unmarshal(evt.Payload, &delta); err != nil {
				return nil, errors.New("pipeline: event payload is not a JSON object")
			}
		}
		return delta, nil

	default:
		return nil, errors.New("pipeline: unknown step kind")
	}
}
