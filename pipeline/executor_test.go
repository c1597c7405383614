package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/procession"
	"github.com/xraph/procession/backoff"
	"github.com/xraph/procession/event"
	"github.com/xraph/procession/id"
	"github.com/xraph/procession/lifecycle"
	"github.com/xraph/procession/pipeline"
	"github.com/xraph/procession/process"
)

// ── test fakes ──────────────────────────────────────────────────────

type memStore struct {
	mu       sync.Mutex
	recs     map[id.ProcessID]*process.Record
	outcomes []*process.Outcome

	updateErr error // when set, UpdateProcess fails
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[id.ProcessID]*process.Record)}
}

func cloneRecord(rec *process.Record) *process.Record {
	cp := *rec
	cp.State = rec.State.Clone()
	return &cp
}

func (s *memStore) CreateProcess(_ context.Context, rec *process.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[rec.ID]; ok {
		return procession.ErrProcessAlreadyExists
	}
	s.recs[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *memStore) GetProcess(_ context.Context, processID id.ProcessID) (*process.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[processID]
	if !ok {
		return nil, procession.ErrProcessNotFound
	}
	return cloneRecord(rec), nil
}

func (s *memStore) UpdateProcess(_ context.Context, rec *process.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.recs[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *memStore) ListProcesses(_ context.Context, _ process.ListOpts) ([]*process.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*process.Record, 0, len(s.recs))
	for _, rec := range s.recs {
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

func (s *memStore) AppendOutcome(_ context.Context, o *process.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, prev := range s.outcomes {
		if prev.ProcessID == o.ProcessID && prev.StepName == o.StepName && prev.Status == o.Status {
			s.outcomes[i] = o
			return nil
		}
	}
	s.outcomes = append(s.outcomes, o)
	return nil
}

func (s *memStore) ListOutcomes(_ context.Context, processID id.ProcessID) ([]*process.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*process.Outcome
	for _, o := range s.outcomes {
		if o.ProcessID == processID {
			out = append(out, o)
		}
	}
	return out, nil
}

type memEventStore struct {
	mu     sync.Mutex
	events []*event.Event
}

func (s *memEventStore) PublishEvent(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *memEventStore) SubscribeEvent(ctx context.Context, name string, timeout time.Duration) (*event.Event, error) {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		for _, evt := range s.events {
			if evt.Name == name && !evt.Acked {
				s.mu.Unlock()
				return evt, nil
			}
		}
		s.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (s *memEventStore) AckEvent(_ context.Context, eventID id.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range s.events {
		if evt.ID == eventID {
			evt.Acked = true
			return nil
		}
	}
	return procession.ErrEventNotFound
}

// ── tests ───────────────────────────────────────────────────────────

func TestRunHappyPath(t *testing.T) {
	store := newMemStore()
	exec := pipeline.NewExecutor(store)

	var order []string
	step := func(name string, delta procession.Fields) pipeline.ExecFunc {
		return func(_ context.Context, _ procession.Fields) (procession.Fields, error) {
			order = append(order, name)
			return delta, nil
		}
	}

	plan, err := pipeline.Begin().
		Step("construct", step("construct", procession.Fields{"circuit_id": "C1"})).
		Step("persist", step("persist", nil)).
		Step("notify", step("notify", nil)).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	rec := process.New("connect", procession.Fields{"organisation": "ORG1"})
	if err := store.CreateProcess(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	res, err := exec.Run(context.Background(), rec, plan)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res != pipeline.ResultDone {
		t.Fatalf("result = %q, want done", res)
	}
	if len(order) != 3 || order[0] != "construct" || order[2] != "notify" {
		t.Errorf("execution order = %v", order)
	}
	if rec.Cursor != 3 {
		t.Errorf("cursor = %d, want 3", rec.Cursor)
	}
	if rec.RunState != process.RunStateDone {
		t.Errorf("run state = %q, want done", rec.RunState)
	}
	if rec.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if rec.State["circuit_id"] != "C1" || rec.State["organisation"] != "ORG1" {
		t.Errorf("state = %v", rec.State)
	}

	outs, _ := store.ListOutcomes(context.Background(), rec.ID)
	if len(outs) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outs))
	}
	for _, o := range outs {
		if o.Status != process.OutcomeSuccess {
			t.Errorf("outcome %s = %q, want success", o.StepName, o.Status)
		}
	}
	if err := rec.Validate(outs); err != nil {
		t.Errorf("invariant: %v", err)
	}

	persisted, err := store.GetProcess(context.Background(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if persisted.RunState != process.RunStateDone || persisted.Cursor != 3 {
		t.Errorf("persisted record: state=%q cursor=%d", persisted.RunState, persisted.Cursor)
	}
}

func TestRunFailureHaltsAndRetryResumes(t *testing.T) {
	store := newMemStore()
	exec := pipeline.NewExecutor(store)

	executed := map[string]int{}
	broken := true
	plan, err := pipeline.Begin().
		Step("construct", func(_ context.Context, _ procession.Fields) (procession.Fields, error) {
			executed["construct"]++
			return procession.Fields{"circuit_id": "C1"}, nil
		}).
		Step("persist", func(_ context.Context, _ procession.Fields) (procession.Fields, error) {
			executed["persist"]++
			if broken {
				return nil, errors.New("database offline")
			}
			return nil, nil
		}).
		Step("notify", func(_ context.Context, _ procession.Fields) (procession.Fields, error) {
			executed["notify"]++
			return nil, nil
		}).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	rec := process.New("connect", nil)
	if err := store.CreateProcess(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	res, err := exec.Run(context.Background(), rec, plan)
	if res != pipeline.ResultFailed {
		t.Fatalf("result = %q, want failed", res)
	}
	var stepErr *pipeline.StepError
	if !errors.As(err, &stepErr) || stepErr.Step != "persist" {
		t.Fatalf("err = %v, want StepError for persist", err)
	}
	if rec.Cursor != 1 {
		t.Errorf("cursor = %d, want 1 (halted at failing step)", rec.Cursor)
	}
	if rec.RunState != process.RunStateFailed || rec.Error == "" {
		t.Errorf("run state = %q error = %q", rec.RunState, rec.Error)
	}
	if executed["notify"] != 0 {
		t.Error("notify executed past a halting failure")
	}

	// Operator fixes the downstream system, retries the same record.
	broken = false
	res, err = exec.Run(context.Background(), rec, plan)
	if err != nil {
		t.Fatalf("retry Run: %v", err)
	}
	if res != pipeline.ResultDone {
		t.Fatalf("retry result = %q, want done", res)
	}
	if executed["construct"] != 1 {
		t.Errorf("construct executed %d times, want 1 (committed work never repeats)", executed["construct"])
	}
	if executed["persist"] != 2 || executed["notify"] != 1 {
		t.Errorf("executions = %v", executed)
	}

	outs, _ := store.ListOutcomes(context.Background(), rec.ID)
	if err := rec.Validate(outs); err != nil {
		t.Errorf("invariant after retry: %v", err)
	}
	// The stale failed row stays alongside the later success.
	var failed, success int
	for _, o := range outs {
		switch o.Status {
		case process.OutcomeFailed:
			failed++
		case process.OutcomeSuccess:
			success++
		}
	}
	if failed != 1 || success != 3 {
		t.Errorf("outcomes: %d failed, %d success; want 1/3", failed, success)
	}
}

func TestRunRepeatedFailureKeepsSingleFailedRow(t *testing.T) {
	store := newMemStore()
	exec := pipeline.NewExecutor(store)

	plan := pipeline.Begin().
		Step("persist", func(_ context.Context, _ procession.Fields) (procession.Fields, error) {
			return nil, errors.New("still offline")
		}).
		MustBuild()

	rec := process.New("connect", nil)
	store.CreateProcess(context.Background(), rec)

	for i := 0; i < 3; i++ {
		if res, _ := exec.Run(context.Background(), rec, plan); res != pipeline.ResultFailed {
			t.Fatalf("drive %d: result = %q, want failed", i, res)
		}
	}

	outs, _ := store.ListOutcomes(context.Background(), rec.ID)
	if len(outs) != 1 || outs[0].Status != process.OutcomeFailed {
		t.Errorf("outcomes = %d, want a single failed row", len(outs))
	}
}

func TestSkipAdvancesPastFailedStep(t *testing.T) {
	store := newMemStore()
	exec := pipeline.NewExecutor(store)

	executed := map[string]int{}
	plan := pipeline.Begin().
		Step("persist", func(_ context.Context, _ procession.Fields) (procession.Fields, error) {
			executed["persist"]++
			return nil, errors.New("database offline")
		}).
		Step("notify", func(_ context.Context, _ procession.Fields) (procession.Fields, error) {
			executed["notify"]++
			return nil, nil
		}).
		MustBuild()

	rec := process.New("connect", nil)
	store.CreateProcess(context.Background(), rec)

	if res, _ := exec.Run(context.Background(), rec, plan); res != pipeline.ResultFailed {
		t.Fatalf("result = %q, want failed", res)
	}

	if err := exec.Skip(context.Background(), rec, plan); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if rec.Cursor != 1 || rec.RunState != process.RunStateRunning {
		t.Fatalf("after skip: cursor=%d state=%q", rec.Cursor, rec.RunState)
	}

	res, err := exec.Run(context.Background(), rec, plan)
	if err != nil || res != pipeline.ResultDone {
		t.Fatalf("Run after skip: %v %v", res, err)
	}
	if executed["persist"] != 1 {
		t.Errorf("skipped step re-executed: %d", executed["persist"])
	}

	outs, _ := store.ListOutcomes(context.Background(), rec.ID)
	if err := rec.Validate(outs); err != nil {
		t.Errorf("invariant: %v (skipped counts as progressed)", err)
	}
	var skipped bool
	for _, o := range outs {
		if o.StepName == "persist" && o.Status == process.OutcomeSkipped {
			skipped = true
		}
	}
	if !skipped {
		t.Error("no skipped outcome recorded")
	}
}

func TestSkipRequiresFailedRecord(t *testing.T) {
	store := newMemStore()
	exec := pipeline.NewExecutor(store)
	plan := pipeline.Begin().
		Step("noop", func(_ context.Context, _ procession.Fields) (procession.Fields, error) { return nil, nil }).
		MustBuild()

	rec := process.New("connect", nil)
	store.CreateProcess(context.Background(), rec)

	if err := exec.Skip(context.Background(), rec, plan); !errors.Is(err, procession.ErrProcessNotResumable) {
		t.Errorf("Skip on running record: %v, want ErrProcessNotResumable", err)
	}
}

func TestRunCancelledContextAborts(t *testing.T) {
	store := newMemStore()
	exec := pipeline.NewExecutor(store)
	plan := pipeline.Begin().
		Step("noop", func(_ context.Context, _ procession.Fields) (procession.Fields, error) { return nil, nil }).
		MustBuild()

	rec := process.New("connect", nil)
	store.CreateProcess(context.Background(), rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := exec.Run(ctx, rec, plan)
	if res != pipeline.ResultAborted {
		t.Fatalf("result = %q, want aborted", res)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}

	persisted, _ := store.GetProcess(context.Background(), rec.ID)
	if persisted.RunState != process.RunStateAborted {
		t.Errorf("persisted state = %q, want aborted", persisted.RunState)
	}

	// Terminal records refuse further drives.
	if res, err := exec.Run(context.Background(), rec, plan); res != pipeline.ResultAborted || err != nil {
		t.Errorf("re-drive of aborted record: %v %v", res, err)
	}
}

func TestTransitionSteps(t *testing.T) {
	store := newMemStore()
	exec := pipeline.NewExecutor(store)

	plan := pipeline.Begin().
		Transition(lifecycle.OpProvision).
		Step("construct", func(_ context.Context, _ procession.Fields) (procession.Fields, error) { return nil, nil }).
		Transition(lifecycle.OpActivate).
		MustBuild()

	rec := process.New("connect", nil)
	store.CreateProcess(context.Background(), rec)

	res, err := exec.Run(context.Background(), rec, plan)
	if err != nil || res != pipeline.ResultDone {
		t.Fatalf("Run: %v %v", res, err)
	}
	if rec.Lifecycle != lifecycle.StatusActive {
		t.Errorf("lifecycle = %q, want active", rec.Lifecycle)
	}
}

func TestTransitionStepIllegalFails(t *testing.T) {
	store := newMemStore()
	exec := pipeline.NewExecutor(store)

	// Activation without provisioning first is illegal from initial.
	plan := pipeline.Begin().
		Transition(lifecycle.OpActivate).
		MustBuild()

	rec := process.New("connect", nil)
	store.CreateProcess(context.Background(), rec)

	res, err := exec.Run(context.Background(), rec, plan)
	if res != pipeline.ResultFailed {
		t.Fatalf("result = %q, want failed", res)
	}
	if !errors.Is(err, procession.ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
	if rec.Lifecycle != lifecycle.StatusInitial {
		t.Errorf("lifecycle mutated by illegal transition: %q", rec.Lifecycle)
	}
}

func TestAwaitSuspendsAndResumes(t *testing.T) {
	store := newMemStore()
	events := &memEventStore{}
	bus := event.NewBus(events)
	exec := pipeline.NewExecutor(store,
		pipeline.WithEventBus(bus),
		pipeline.WithAwaitTimeout(30*time.Millisecond),
	)

	plan := pipeline.Begin().
		Step("request", func(_ context.Context, _ procession.Fields) (procession.Fields, error) { return nil, nil }).
		Await("circuit-up", 0).
		Step("notify", func(_ context.Context, _ procession.Fields) (procession.Fields, error) { return nil, nil }).
		MustBuild()

	rec := process.New("connect", nil)
	store.CreateProcess(context.Background(), rec)

	res, err := exec.Run(context.Background(), rec, plan)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res != pipeline.ResultSuspended {
		t.Fatalf("result = %q, want suspended", res)
	}
	if rec.RunState != process.RunStateSuspended || rec.Cursor != 1 {
		t.Fatalf("after suspend: state=%q cursor=%d", rec.RunState, rec.Cursor)
	}

	// External system calls back for this process.
	if _, err := bus.Publish(context.Background(), "circuit-up:"+rec.ID.String(), []byte(`{"circuit_state":"up"}`)); err != nil {
		t.Fatal(err)
	}

	res, err = exec.Run(context.Background(), rec, plan)
	if err != nil || res != pipeline.ResultDone {
		t.Fatalf("resume Run: %v %v", res, err)
	}
	if rec.State["circuit_state"] != "up" {
		t.Errorf("event payload not merged: %v", rec.State)
	}

	evt, _ := events.SubscribeEvent(context.Background(), "circuit-up:"+rec.ID.String(), time.Millisecond)
	if evt != nil {
		t.Error("consumed event still subscribable")
	}
}

func TestRetryPolicyRetriesInPlace(t *testing.T) {
	store := newMemStore()
	exec := pipeline.NewExecutor(store, pipeline.WithRetry(pipeline.RetryPolicy{
		MaxAttempts: 3,
		Backoff:     backoff.None{},
	}))

	attempts := 0
	plan := pipeline.Begin().
		Step("flaky", func(_ context.Context, _ procession.Fields) (procession.Fields, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("transient")
			}
			return nil, nil
		}).
		MustBuild()

	rec := process.New("connect", nil)
	store.CreateProcess(context.Background(), rec)

	res, err := exec.Run(context.Background(), rec, plan)
	if err != nil || res != pipeline.ResultDone {
		t.Fatalf("Run: %v %v", res, err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}

	outs, _ := store.ListOutcomes(context.Background(), rec.ID)
	if len(outs) != 1 || outs[0].Status != process.OutcomeSuccess {
		t.Errorf("outcomes = %v, want a single success (in-place retries leave no failed rows)", outs)
	}
}

func TestRunPersistenceError(t *testing.T) {
	store := newMemStore()
	exec := pipeline.NewExecutor(store)
	plan := pipeline.Begin().
		Step("noop", func(_ context.Context, _ procession.Fields) (procession.Fields, error) { return nil, nil }).
		MustBuild()

	rec := process.New("connect", nil)
	store.CreateProcess(context.Background(), rec)
	store.updateErr = errors.New("connection reset")

	_, err := exec.Run(context.Background(), rec, plan)
	var perr *pipeline.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}

	// The outcome committed, the record didn't: reloading shows the
	// pre-advance cursor, and a re-drive collapses the duplicate outcome.
	store.updateErr = nil
	reloaded, _ := store.GetProcess(context.Background(), rec.ID)
	if reloaded.Cursor != 0 {
		t.Fatalf("cursor = %d, want 0", reloaded.Cursor)
	}
	if res, err := exec.Run(context.Background(), reloaded, plan); err != nil || res != pipeline.ResultDone {
		t.Fatalf("re-drive: %v %v", res, err)
	}
	outs, _ := store.ListOutcomes(context.Background(), rec.ID)
	if len(outs) != 1 {
		t.Errorf("outcomes = %d, want 1 (upsert collapsed)", len(outs))
	}
	if err := reloaded.Validate(outs); err != nil {
		t.Errorf("invariant: %v", err)
	}
}

func TestBuildRejectsBadPlans(t *testing.T) {
	if _, err := pipeline.Begin().Build(); err == nil {
		t.Error("empty plan accepted")
	}

	noop := func(_ context.Context, _ procession.Fields) (procession.Fields, error) { return nil, nil }
	if _, err := pipeline.Begin().Step("a", noop).Step("a", noop).Build(); err == nil {
		t.Error("duplicate step names accepted")
	}
	if _, err := pipeline.Begin().Step("", noop).Build(); err == nil {
		t.Error("empty step name accepted")
	}
	if _, err := pipeline.Begin().Step("a", nil).Build(); err == nil {
		t.Error("nil step function accepted")
	}
}
