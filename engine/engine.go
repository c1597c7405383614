// Package engine wires all procession subsystems together: the wizard
// session layer, the step pipeline executor, the event bus, and the
// inventory handoff, all over one composite store.
//
// This package exists to break the import cycle: the root procession
// package defines Entity and Fields (imported by forms, process, etc.)
// and so cannot import those packages back. The engine package sits
// above all subsystem packages and below the application layer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/procession"
	"github.com/xraph/procession/event"
	"github.com/xraph/procession/forms"
	"github.com/xraph/procession/id"
	"github.com/xraph/procession/lifecycle"
	"github.com/xraph/procession/pipeline"
	"github.com/xraph/procession/process"
	"github.com/xraph/procession/store"
)

// entityIDKey marks a record whose entity already reached the
// inventory, making the handoff exactly-once across re-drives.
const entityIDKey = "inventory_entity_id"

// Engine coordinates wizard sessions and process records over one
// composite store. All operations are idempotent where the underlying
// record state allows: re-driving a terminal record is a no-op, and
// re-applying a lifecycle operation that already took effect succeeds.
//
// At most one goroutine drives a given record at a time: concurrent
// operations on a record that is already executing return
// ErrProcessBusy, and ResumeAll leaves in-flight records to their
// driver.
type Engine struct {
	cfg      procession.Config
	store    store.Store
	registry *Registry
	hooks    *Hooks
	bus      *event.Bus
	executor *pipeline.Executor
	logger   *slog.Logger
	janitor  *janitor

	mu       sync.Mutex
	inflight map[string]struct{}

	retry          pipeline.RetryPolicy
	tracerProvider trace.TracerProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithConfig overrides the default configuration.
func WithConfig(cfg procession.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithHook registers a lifecycle hook with the engine.
func WithHook(h Hook) Option {
	return func(e *Engine) { e.hooks.Register(h) }
}

// WithRetry sets the in-place retry policy for failing steps.
func WithRetry(p pipeline.RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

// WithTracerProvider sets a custom OTel TracerProvider for per-step
// spans. If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// New creates an engine over the given store.
func New(st store.Store, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, procession.ErrNoStore
	}

	eng := &Engine{
		cfg:      procession.DefaultConfig(),
		store:    st,
		registry: NewRegistry(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		inflight: make(map[string]struct{}),
	}
	eng.hooks = NewHooks(eng.logger)
	for _, opt := range opts {
		opt(eng)
	}
	eng.hooks.logger = eng.logger

	eng.bus = event.NewBus(st)

	execOpts := []pipeline.Option{
		pipeline.WithLogger(eng.logger),
		pipeline.WithEventBus(eng.bus),
		pipeline.WithEmitter(&hookEmitter{h: eng.hooks}),
		pipeline.WithRetry(eng.retry),
		pipeline.WithAwaitTimeout(eng.cfg.AwaitTimeout),
	}
	if eng.tracerProvider != nil {
		execOpts = append(execOpts, pipeline.WithTracer(eng.tracerProvider.Tracer("github.com/xraph/procession")))
	}
	eng.executor = pipeline.NewExecutor(st, execOpts...)
	eng.janitor = newJanitor(eng)

	return eng, nil
}

// Register adds a workflow definition to the engine.
func (e *Engine) Register(def *Definition) error {
	return e.registry.Register(def)
}

// ── wizard sessions ─────────────────────────────────────────────────

// Begin starts a wizard session for a workflow and returns the session
// together with the first page schema. The session persists across
// restarts; Submit advances it one accepted page at a time.
func (e *Engine) Begin(ctx context.Context, workflow string) (*forms.SessionState, *forms.Schema, error) {
	def, err := e.registry.Lookup(workflow)
	if err != nil {
		return nil, nil, err
	}
	if len(def.Pages) == 0 {
		return nil, nil, fmt.Errorf("engine: workflow %q collects no input, use StartRaw", workflow)
	}

	w := forms.NewWizard(def.Policy, def.Pages...)
	sess := &forms.SessionState{
		Entity:   procession.NewEntity(),
		ID:       id.NewSessionID(),
		Workflow: workflow,
		Snapshot: w.Snapshot(),
	}
	if err := e.store.SaveSession(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("engine: save session: %w", err)
	}

	e.logger.InfoContext(ctx, "session started", "session_id", sess.ID, "workflow", workflow)
	return sess, w.Current(), nil
}

// Session returns the pending page schema for an in-flight session,
// rebuilt from its journal. Used to re-render the form after a restart.
func (e *Engine) Session(ctx context.Context, sessionID id.SessionID) (*forms.Schema, error) {
	_, w, err := e.loadWizard(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return w.Current(), nil
}

// SubmitResult reports the effect of one page submission.
type SubmitResult struct {
	// Submission is the validated submission, accepted or rejected.
	Submission *forms.Submission

	// Next is the schema to render next: the same page annotated with
	// errors after a rejection, the following page after an acceptance.
	// Nil once the wizard completed.
	Next *forms.Schema

	// Process is the record started when the submission completed the
	// wizard. Nil while pages remain.
	Process *process.Record

	// Result is the pipeline outcome of the started process.
	Result pipeline.Result
}

// Submit validates one page submission against a session. A rejected
// submission leaves the session untouched and returns the annotated
// schema for re-presentation. Accepting the final summary page creates
// the process record, deletes the session, and drives the plan.
//
// When the started plan halts on a step failure, Submit returns the
// populated result together with the run's *pipeline.StepError; the
// record stays resumable via Retry.
func (e *Engine) Submit(ctx context.Context, sessionID id.SessionID, raw map[string]string) (*SubmitResult, error) {
	sess, w, err := e.loadWizard(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	sub, err := w.Submit(raw)
	if err != nil {
		return nil, err
	}
	if !sub.Accepted() {
		return &SubmitResult{Submission: sub, Next: w.Current()}, nil
	}

	if !w.Completed() {
		sess.Snapshot = w.Snapshot()
		sess.Touch()
		if err := e.store.SaveSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("engine: save session: %w", err)
		}
		return &SubmitResult{Submission: sub, Next: w.Current()}, nil
	}

	record, err := w.Record()
	if err != nil {
		return nil, err
	}
	rec, res, runErr := e.start(ctx, sess.Workflow, record)
	if rec == nil {
		return nil, runErr
	}

	if err := e.store.DeleteSession(ctx, sessionID); err != nil {
		e.logger.WarnContext(ctx, "delete completed session", "session_id", sessionID, "error", err)
	}
	return &SubmitResult{Submission: sub, Process: rec, Result: res}, runErr
}

// Cancel abandons an in-flight session. Nothing was provisioned, so
// there is nothing else to undo.
func (e *Engine) Cancel(ctx context.Context, sessionID id.SessionID) error {
	if err := e.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "session cancelled", "session_id", sessionID)
	return nil
}

// loadWizard rebuilds a session's wizard by replaying its journal.
func (e *Engine) loadWizard(ctx context.Context, sessionID id.SessionID) (*forms.SessionState, *forms.Wizard, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	def, err := e.registry.Lookup(sess.Workflow)
	if err != nil {
		return nil, nil, err
	}
	w, err := forms.Restore(def.Policy, sess.Snapshot, def.Pages...)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: restore session %s: %w", sessionID, err)
	}
	return sess, w, nil
}

// ── process records ─────────────────────────────────────────────────

// StartRaw starts a workflow's plan directly with a pre-assembled input
// record, bypassing the wizard. Used by workflows without pages
// (terminate, typically) and by machine callers.
func (e *Engine) StartRaw(ctx context.Context, workflow string, input procession.Fields) (*process.Record, pipeline.Result, error) {
	if _, err := e.registry.Lookup(workflow); err != nil {
		return nil, "", err
	}
	return e.start(ctx, workflow, input)
}

// start persists a new record and drives its plan.
func (e *Engine) start(ctx context.Context, workflow string, input procession.Fields) (*process.Record, pipeline.Result, error) {
	rec := process.New(workflow, input)
	if err := e.store.CreateProcess(ctx, rec); err != nil {
		return nil, "", fmt.Errorf("engine: create process: %w", err)
	}
	e.logger.InfoContext(ctx, "process started", "process_id", rec.ID, "workflow", workflow)
	e.hooks.EmitProcessStarted(ctx, rec)

	res, err := e.drive(ctx, rec)
	return rec, res, err
}

// Get retrieves a process record.
func (e *Engine) Get(ctx context.Context, processID id.ProcessID) (*process.Record, error) {
	return e.store.GetProcess(ctx, processID)
}

// List returns process records matching the given options.
func (e *Engine) List(ctx context.Context, opts process.ListOpts) ([]*process.Record, error) {
	return e.store.ListProcesses(ctx, opts)
}

// Outcomes returns a process's recorded step outcomes, oldest first.
func (e *Engine) Outcomes(ctx context.Context, processID id.ProcessID) ([]*process.Outcome, error) {
	return e.store.ListOutcomes(ctx, processID)
}

// Retry re-drives a failed process from its halting step. The step
// executes again; committed steps before it do not.
func (e *Engine) Retry(ctx context.Context, processID id.ProcessID) (*process.Record, pipeline.Result, error) {
	rec, err := e.store.GetProcess(ctx, processID)
	if err != nil {
		return nil, "", err
	}
	if rec.RunState != process.RunStateFailed {
		return rec, "", fmt.Errorf("engine: retry process %s in state %q: %w", processID, rec.RunState, procession.ErrProcessNotResumable)
	}
	res, err := e.drive(ctx, rec)
	return rec, res, err
}

// Resume re-drives one suspended or crash-interrupted process. Failed
// processes are not resumable this way; use Retry or Skip.
func (e *Engine) Resume(ctx context.Context, processID id.ProcessID) (*process.Record, pipeline.Result, error) {
	rec, err := e.store.GetProcess(ctx, processID)
	if err != nil {
		return nil, "", err
	}
	switch rec.RunState {
	case process.RunStateSuspended, process.RunStateRunning:
	default:
		return rec, "", fmt.Errorf("engine: resume process %s in state %q: %w", processID, rec.RunState, procession.ErrProcessNotResumable)
	}
	res, err := e.drive(ctx, rec)
	return rec, res, err
}

// Skip records a skipped outcome for a failed process's halting step,
// advances past it, and continues the run. The operator owns the
// consequences of the missing step's work.
func (e *Engine) Skip(ctx context.Context, processID id.ProcessID) (*process.Record, pipeline.Result, error) {
	rec, err := e.store.GetProcess(ctx, processID)
	if err != nil {
		return nil, "", err
	}
	def, err := e.registry.Lookup(rec.Workflow)
	if err != nil {
		return nil, "", err
	}
	if !e.acquire(rec.ID) {
		return rec, "", fmt.Errorf("engine: skip process %s: %w", processID, procession.ErrProcessBusy)
	}
	defer e.release(rec.ID)
	if err := e.executor.Skip(ctx, rec, def.Plan); err != nil {
		return rec, "", err
	}
	e.logger.WarnContext(ctx, "step skipped by operator", "process_id", rec.ID)
	res, err := e.driveHeld(ctx, rec)
	return rec, res, err
}

// Abort cancels a non-terminal process. The record becomes terminal and
// its entity, if past provisioning, is terminated. Aborting an already
// aborted process is a no-op.
func (e *Engine) Abort(ctx context.Context, processID id.ProcessID) (*process.Record, error) {
	rec, err := e.store.GetProcess(ctx, processID)
	if err != nil {
		return nil, err
	}
	switch rec.RunState {
	case process.RunStateAborted:
		return rec, nil
	case process.RunStateDone:
		return rec, fmt.Errorf("engine: abort completed process %s: %w", processID, procession.ErrProcessNotResumable)
	}

	if !e.acquire(rec.ID) {
		return rec, fmt.Errorf("engine: abort process %s: %w", processID, procession.ErrProcessBusy)
	}
	defer e.release(rec.ID)

	if !rec.Lifecycle.Terminal() {
		next, changed, err := lifecycle.Apply(rec.Lifecycle, lifecycle.OpTerminate)
		if err != nil {
			return rec, err
		}
		if changed {
			rec.Lifecycle = next
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	cancel()
	def, err := e.registry.Lookup(rec.Workflow)
	if err != nil {
		return rec, err
	}
	if _, runErr := e.executor.Run(ctx, rec, def.Plan); runErr != nil && !errors.Is(runErr, context.Canceled) {
		return rec, runErr
	}
	e.logger.InfoContext(ctx, "process aborted", "process_id", rec.ID)
	return rec, nil
}

// Callback publishes an external system's completion event for one
// process and, if the process is parked on it, resumes the run
// immediately instead of waiting for the janitor.
func (e *Engine) Callback(ctx context.Context, processID id.ProcessID, eventName string, payload []byte) (*process.Record, pipeline.Result, error) {
	rec, err := e.store.GetProcess(ctx, processID)
	if err != nil {
		return nil, "", err
	}
	if _, err := e.bus.Publish(ctx, eventName+":"+processID.String(), payload); err != nil {
		return rec, "", fmt.Errorf("engine: publish callback: %w", err)
	}
	if rec.RunState != process.RunStateSuspended {
		return rec, "", nil
	}
	res, err := e.drive(ctx, rec)
	return rec, res, err
}

// ResumeAll re-drives every resumable process: suspended runs checking
// for their event, and runs left in running state by a crash. Failed
// runs are not picked up; they wait for an explicit Retry or Skip.
// Records this engine is already driving are left to their driver.
func (e *Engine) ResumeAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.ResumeConcurrency)

	for _, state := range []process.RunState{process.RunStateSuspended, process.RunStateRunning} {
		recs, err := e.store.ListProcesses(ctx, process.ListOpts{RunState: state})
		if err != nil {
			return fmt.Errorf("engine: list %s processes: %w", state, err)
		}
		for _, rec := range recs {
			g.Go(func() error {
				if _, err := e.drive(ctx, rec); err != nil {
					// A step failure is the record's business, not
					// ResumeAll's, and a busy record already has a driver.
					var stepErr *pipeline.StepError
					if errors.As(err, &stepErr) || errors.Is(err, procession.ErrProcessBusy) {
						return nil
					}
					return err
				}
				return nil
			})
		}
	}
	return g.Wait()
}

// acquire claims the single-writer slot for a record within this
// engine. Every executor entry point goes through it, so a record's
// plan never executes on two goroutines at once.
func (e *Engine) acquire(processID id.ProcessID) bool {
	key := processID.String()
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[key]; busy {
		return false
	}
	e.inflight[key] = struct{}{}
	return true
}

func (e *Engine) release(processID id.ProcessID) {
	e.mu.Lock()
	delete(e.inflight, processID.String())
	e.mu.Unlock()
}

// drive runs a record's plan and fans out the process-level hooks.
// Returns ErrProcessBusy if another goroutine is already driving the
// record.
func (e *Engine) drive(ctx context.Context, rec *process.Record) (pipeline.Result, error) {
	if !e.acquire(rec.ID) {
		return "", fmt.Errorf("engine: drive process %s: %w", rec.ID, procession.ErrProcessBusy)
	}
	defer e.release(rec.ID)
	return e.driveHeld(ctx, rec)
}

// driveHeld is drive without the guard; the caller holds the record's
// single-writer slot.
func (e *Engine) driveHeld(ctx context.Context, rec *process.Record) (pipeline.Result, error) {
	def, err := e.registry.Lookup(rec.Workflow)
	if err != nil {
		return "", err
	}

	res, runErr := e.executor.Run(ctx, rec, def.Plan)
	switch res {
	case pipeline.ResultDone:
		e.hooks.EmitProcessCompleted(ctx, rec)
		if err := e.handoff(ctx, rec, def); err != nil {
			return res, err
		}
	case pipeline.ResultFailed:
		e.hooks.EmitProcessFailed(ctx, rec, runErr)
	}
	return res, runErr
}

// handoff transfers ownership of the provisioned entity from the
// process record to the permanent inventory, exactly once per process.
func (e *Engine) handoff(ctx context.Context, rec *process.Record, def *Definition) error {
	if def.Entity == nil {
		return nil
	}
	if _, done := rec.State[entityIDKey]; done {
		return nil
	}

	ent := def.Entity(rec)
	if ent == nil {
		return nil
	}
	if err := e.store.PutEntity(ctx, ent); err != nil {
		return fmt.Errorf("engine: inventory handoff: %w", err)
	}
	rec.State[entityIDKey] = ent.ID.String()
	rec.Touch()
	if err := e.store.UpdateProcess(ctx, rec); err != nil {
		return fmt.Errorf("engine: mark handoff: %w", err)
	}
	e.logger.InfoContext(ctx, "entity provisioned", "entity_id", ent.ID, "kind", ent.Kind, "process_id", rec.ID)
	e.hooks.EmitEntityProvisioned(ctx, ent)
	return nil
}

// ── lifecycle ───────────────────────────────────────────────────────

// Start runs crash recovery and begins the background janitor that
// periodically re-drives suspended runs.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.ResumeAll(ctx); err != nil {
		e.logger.Warn("resume on start", slog.String("error", err.Error()))
	}
	return e.janitor.start()
}

// Stop halts the janitor and notifies shutdown hooks.
func (e *Engine) Stop(ctx context.Context) error {
	e.janitor.stop()
	e.hooks.EmitShutdown(ctx)
	return nil
}

// Hooks returns the hook registry.
func (e *Engine) Hooks() *Hooks { return e.hooks }

// Registry returns the workflow registry.
func (e *Engine) Registry() *Registry { return e.registry }

// EventBus returns the event bus external systems publish callbacks on.
func (e *Engine) EventBus() *event.Bus { return e.bus }

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }
