package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/procession/inventory"
	"github.com/xraph/procession/process"
)

// Hook is the base interface all engine hooks implement. Each lifecycle
// event is a separate interface so hooks opt in only to the events they
// care about — audit trails, metrics, paging.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// ProcessStarted is called after a completed wizard hands its record to
// a new process.
type ProcessStarted interface {
	OnProcessStarted(ctx context.Context, rec *process.Record) error
}

// ProcessCompleted is called after every step of a process succeeds.
type ProcessCompleted interface {
	OnProcessCompleted(ctx context.Context, rec *process.Record) error
}

// ProcessFailed is called when a process halts on a step failure.
type ProcessFailed interface {
	OnProcessFailed(ctx context.Context, rec *process.Record, err error) error
}

// ProcessSuspended is called when a process parks awaiting an external
// callback event.
type ProcessSuspended interface {
	OnProcessSuspended(ctx context.Context, rec *process.Record, eventName string) error
}

// StepCompleted is called after each step's durable commit.
type StepCompleted interface {
	OnStepCompleted(ctx context.Context, rec *process.Record, step string, elapsed time.Duration) error
}

// StepFailed is called when a step fails after its retry attempts.
type StepFailed interface {
	OnStepFailed(ctx context.Context, rec *process.Record, step string, err error) error
}

// EntityProvisioned is called after a completed process hands its
// entity to the inventory.
type EntityProvisioned interface {
	OnEntityProvisioned(ctx context.Context, ent *inventory.Entity) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}

// Named entry types pair a hook implementation with the hook name
// captured at registration time, so the emit methods never type-assert
// back to Hook.
type processStartedEntry struct {
	name string
	hook ProcessStarted
}

type processCompletedEntry struct {
	name string
	hook ProcessCompleted
}

type processFailedEntry struct {
	name string
	hook ProcessFailed
}

type processSuspendedEntry struct {
	name string
	hook ProcessSuspended
}

type stepCompletedEntry struct {
	name string
	hook StepCompleted
}

type stepFailedEntry struct {
	name string
	hook StepFailed
}

type entityProvisionedEntry struct {
	name string
	hook EntityProvisioned
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Hooks holds registered hooks and dispatches lifecycle events to them.
// It type-caches hooks at registration time so emit calls iterate only
// over hooks that implement the relevant event.
type Hooks struct {
	hooks  []Hook
	logger *slog.Logger

	processStarted    []processStartedEntry
	processCompleted  []processCompletedEntry
	processFailed     []processFailedEntry
	processSuspended  []processSuspendedEntry
	stepCompleted     []stepCompletedEntry
	stepFailed        []stepFailedEntry
	entityProvisioned []entityProvisionedEntry
	shutdown          []shutdownEntry
}

// NewHooks creates a hook registry with the given logger.
func NewHooks(logger *slog.Logger) *Hooks {
	return &Hooks{logger: logger}
}

// Register adds a hook and type-asserts it into all applicable event
// caches. Hooks are notified in registration order.
func (h *Hooks) Register(hook Hook) {
	h.hooks = append(h.hooks, hook)
	name := hook.Name()

	if v, ok := hook.(ProcessStarted); ok {
		h.processStarted = append(h.processStarted, processStartedEntry{name, v})
	}
	if v, ok := hook.(ProcessCompleted); ok {
		h.processCompleted = append(h.processCompleted, processCompletedEntry{name, v})
	}
	if v, ok := hook.(ProcessFailed); ok {
		h.processFailed = append(h.processFailed, processFailedEntry{name, v})
	}
	if v, ok := hook.(ProcessSuspended); ok {
		h.processSuspended = append(h.processSuspended, processSuspendedEntry{name, v})
	}
	if v, ok := hook.(StepCompleted); ok {
		h.stepCompleted = append(h.stepCompleted, stepCompletedEntry{name, v})
	}
	if v, ok := hook.(StepFailed); ok {
		h.stepFailed = append(h.stepFailed, stepFailedEntry{name, v})
	}
	if v, ok := hook.(EntityProvisioned); ok {
		h.entityProvisioned = append(h.entityProvisioned, entityProvisionedEntry{name, v})
	}
	if v, ok := hook.(Shutdown); ok {
		h.shutdown = append(h.shutdown, shutdownEntry{name, v})
	}
}

// Registered returns all registered hooks.
func (h *Hooks) Registered() []Hook { return h.hooks }

// EmitProcessStarted notifies all hooks that implement ProcessStarted.
func (h *Hooks) EmitProcessStarted(ctx context.Context, rec *process.Record) {
	for _, e := range h.processStarted {
		if err := e.hook.OnProcessStarted(ctx, rec); err != nil {
			h.logHookError("OnProcessStarted", e.name, err)
		}
	}
}

// EmitProcessCompleted notifies all hooks that implement ProcessCompleted.
func (h *Hooks) EmitProcessCompleted(ctx context.Context, rec *process.Record) {
	for _, e := range h.processCompleted {
		if err := e.hook.OnProcessCompleted(ctx, rec); err != nil {
			h.logHookError("OnProcessCompleted", e.name, err)
		}
	}
}

// EmitProcessFailed notifies all hooks that implement ProcessFailed.
func (h *Hooks) EmitProcessFailed(ctx context.Context, rec *process.Record, runErr error) {
	for _, e := range h.processFailed {
		if err := e.hook.OnProcessFailed(ctx, rec, runErr); err != nil {
			h.logHookError("OnProcessFailed", e.name, err)
		}
	}
}

// EmitProcessSuspended notifies all hooks that implement ProcessSuspended.
func (h *Hooks) EmitProcessSuspended(ctx context.Context, rec *process.Record, eventName string) {
	for _, e := range h.processSuspended {
		if err := e.hook.OnProcessSuspended(ctx, rec, eventName); err != nil {
			h.logHookError("OnProcessSuspended", e.name, err)
		}
	}
}

// EmitStepCompleted notifies all hooks that implement StepCompleted.
func (h *Hooks) EmitStepCompleted(ctx context.Context, rec *process.Record, step string, elapsed time.Duration) {
	for _, e := range h.stepCompleted {
		if err := e.hook.OnStepCompleted(ctx, rec, step, elapsed); err != nil {
			h.logHookError("OnStepCompleted", e.name, err)
		}
	}
}

// EmitStepFailed notifies all hooks that implement StepFailed.
func (h *Hooks) EmitStepFailed(ctx context.Context, rec *process.Record, step string, stepErr error) {
	for _, e := range h.stepFailed {
		if err := e.hook.OnStepFailed(ctx, rec, step, stepErr); err != nil {
			h.logHookError("OnStepFailed", e.name, err)
		}
	}
}

// EmitEntityProvisioned notifies all hooks that implement EntityProvisioned.
func (h *Hooks) EmitEntityProvisioned(ctx context.Context, ent *inventory.Entity) {
	for _, e := range h.entityProvisioned {
		if err := e.hook.OnEntityProvisioned(ctx, ent); err != nil {
			h.logHookError("OnEntityProvisioned", e.name, err)
		}
	}
}

// EmitShutdown notifies all hooks that implement Shutdown.
func (h *Hooks) EmitShutdown(ctx context.Context) {
	for _, e := range h.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			h.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a hook returns an error. Hook errors
// are never propagated — they must not block the pipeline.
func (h *Hooks) logHookError(event, hookName string, err error) {
	h.logger.Warn("hook error",
		slog.String("event", event),
		slog.String("hook", hookName),
		slog.String("error", err.Error()),
	)
}

// hookEmitter adapts *Hooks to satisfy pipeline.Emitter. The pipeline
// package defines the interface, Hooks provides the implementation, and
// the engine layer plugs them together.
type hookEmitter struct {
	h *Hooks
}

func (a *hookEmitter) StepCompleted(ctx context.Context, rec *process.Record, step string, elapsed time.Duration) {
	a.h.EmitStepCompleted(ctx, rec, step, elapsed)
}

func (a *hookEmitter) StepFailed(ctx context.Context, rec *process.Record, step string, err error) {
	a.h.EmitStepFailed(ctx, rec, step, err)
}

func (a *hookEmitter) RunSuspended(ctx context.Context, rec *process.Record, eventName string) {
	a.h.EmitProcessSuspended(ctx, rec, eventName)
}
