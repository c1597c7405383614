package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/procession"
	"github.com/xraph/procession/event"
	"github.com/xraph/procession/forms"
	"github.com/xraph/procession/id"
	"github.com/xraph/procession/inventory"
	"github.com/xraph/procession/process"
	"github.com/xraph/procession/store"
	"github.com/xraph/procession/store/memory"
)

var _ store.Store = (*memory.Store)(nil)

func TestSessionRoundTrip(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	sess := &forms.SessionState{
		Entity:   procession.NewEntity(),
		ID:       id.NewSessionID(),
		Workflow: "connect",
		Snapshot: &forms.Snapshot{
			PageIndex: 1,
			Journal:   []map[string]string{{"organisation": "ORG1"}},
		},
	}
	if err := st.SaveSession(ctx, sess); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Workflow != "connect" || got.Snapshot.PageIndex != 1 {
		t.Errorf("got %+v", got)
	}

	if err := st.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := st.GetSession(ctx, sess.ID); !errors.Is(err, procession.ErrSessionNotFound) {
		t.Errorf("after delete: %v", err)
	}
	if err := st.DeleteSession(ctx, sess.ID); !errors.Is(err, procession.ErrSessionNotFound) {
		t.Errorf("double delete: %v", err)
	}
}

func TestProcessCRUD(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	rec := process.New("connect", procession.Fields{"organisation": "ORG1"})
	if err := st.CreateProcess(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateProcess(ctx, rec); !errors.Is(err, procession.ErrProcessAlreadyExists) {
		t.Errorf("duplicate create: %v", err)
	}

	rec.Cursor = 2
	rec.RunState = process.RunStateFailed
	rec.Error = "database offline"
	if err := st.UpdateProcess(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetProcess(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Cursor != 2 || got.RunState != process.RunStateFailed || got.Error != "database offline" {
		t.Errorf("got %+v", got)
	}
	// Mutating the returned record must not reach the store.
	got.State["organisation"] = "MUTATED"
	again, _ := st.GetProcess(ctx, rec.ID)
	if again.State["organisation"] != "ORG1" {
		t.Error("stored record aliases returned copy")
	}

	if _, err := st.GetProcess(ctx, id.NewProcessID()); !errors.Is(err, procession.ErrProcessNotFound) {
		t.Errorf("missing process: %v", err)
	}
}

func TestListProcessesFilters(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	a := process.New("connect", nil)
	b := process.New("connect", nil)
	b.RunState = process.RunStateSuspended
	c := process.New("terminate", nil)
	for _, rec := range []*process.Record{a, b, c} {
		if err := st.CreateProcess(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	suspended, err := st.ListProcesses(ctx, process.ListOpts{RunState: process.RunStateSuspended})
	if err != nil {
		t.Fatal(err)
	}
	if len(suspended) != 1 || suspended[0].ID != b.ID {
		t.Errorf("suspended = %v", suspended)
	}

	connect, _ := st.ListProcesses(ctx, process.ListOpts{Workflow: "connect"})
	if len(connect) != 2 {
		t.Errorf("connect processes = %d, want 2", len(connect))
	}

	limited, _ := st.ListProcesses(ctx, process.ListOpts{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("limited = %d, want 2", len(limited))
	}
}

func TestAppendOutcomeUpsert(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	processID := id.NewProcessID()

	first := process.NewOutcome(processID, "persist", process.OutcomeFailed, "attempt 1")
	second := process.NewOutcome(processID, "persist", process.OutcomeFailed, "attempt 2")
	second.RecordedAt = first.RecordedAt.Add(time.Second)
	success := process.NewOutcome(processID, "persist", process.OutcomeSuccess, "")
	success.RecordedAt = first.RecordedAt.Add(2 * time.Second)

	for _, o := range []*process.Outcome{first, second, success} {
		if err := st.AppendOutcome(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	outs, err := st.ListOutcomes(ctx, processID)
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 2 {
		t.Fatalf("outcomes = %d, want 2 (failed row upserted)", len(outs))
	}
	if outs[0].ErrorDetail != "attempt 2" {
		t.Errorf("failed row detail = %q, want replacement", outs[0].ErrorDetail)
	}
	if outs[1].Status != process.OutcomeSuccess {
		t.Errorf("last outcome = %q, want success", outs[1].Status)
	}
}

func TestEventSubscribeAck(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	bus := event.NewBus(st)

	evt, err := bus.Publish(ctx, "circuit-up:proc_1", []byte(`{"circuit_state":"up"}`))
	if err != nil {
		t.Fatal(err)
	}

	got, err := st.SubscribeEvent(ctx, "circuit-up:proc_1", 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != evt.ID {
		t.Fatalf("got %+v", got)
	}

	if err := st.AckEvent(ctx, evt.ID); err != nil {
		t.Fatal(err)
	}
	if again, _ := st.SubscribeEvent(ctx, "circuit-up:proc_1", 30*time.Millisecond); again != nil {
		t.Error("acked event still delivered")
	}
}

func TestEventSubscribeBlocksUntilPublish(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	done := make(chan *event.Event, 1)
	go func() {
		evt, _ := st.SubscribeEvent(ctx, "late", time.Second)
		done <- evt
	}()

	time.Sleep(30 * time.Millisecond)
	if err := st.PublishEvent(ctx, &event.Event{ID: id.NewEventID(), Name: "late", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-done:
		if evt == nil {
			t.Error("subscriber timed out despite publish")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never returned")
	}
}

func TestSubscribeEventReturnsCopy(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	evt := &event.Event{
		ID:        id.NewEventID(),
		Name:      "circuit-up:proc_1",
		Payload:   []byte(`{"circuit_state":"up"}`),
		CreatedAt: time.Now().UTC(),
	}
	if err := st.PublishEvent(ctx, evt); err != nil {
		t.Fatal(err)
	}

	got, err := st.SubscribeEvent(ctx, "circuit-up:proc_1", 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("no event delivered")
	}

	// Acking the stored event must not reach into the delivered copy.
	if err := st.AckEvent(ctx, got.ID); err != nil {
		t.Fatal(err)
	}
	if got.Acked {
		t.Error("ack leaked into the subscriber's copy")
	}

	// Nor can the subscriber mutate its copy back into the store.
	got.Acked = false
	got.Payload[0] = 'X'
	if again, _ := st.SubscribeEvent(ctx, "circuit-up:proc_1", 30*time.Millisecond); again != nil {
		t.Error("acked event still delivered")
	}
}

func TestSubscribeEventObservesCancellation(t *testing.T) {
	st := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := st.SubscribeEvent(ctx, "never", 5*time.Second)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber ignored cancellation")
	}
}

func TestEntityRoundTrip(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	ent := inventory.New("circuit", "ORG1-primary", id.NewProcessID(), procession.Fields{"bandwidth": "10G"})
	if err := st.PutEntity(ctx, ent); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetEntity(ctx, ent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != "circuit" || got.Attrs["bandwidth"] != "10G" {
		t.Errorf("got %+v", got)
	}

	byKind, _ := st.ListEntities(ctx, inventory.ListOpts{Kind: "circuit"})
	if len(byKind) != 1 {
		t.Errorf("byKind = %d", len(byKind))
	}
	none, _ := st.ListEntities(ctx, inventory.ListOpts{Kind: "port"})
	if len(none) != 0 {
		t.Errorf("port entities = %d, want 0", len(none))
	}

	if _, err := st.GetEntity(ctx, id.NewEntityID()); !errors.Is(err, procession.ErrEntityNotFound) {
		t.Errorf("missing entity: %v", err)
	}
}
