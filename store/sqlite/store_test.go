package sqlite_test

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
	"github.com/xraph/procession/lifecycle"
	"github.com/xraph/procession/process"
	"github.com/xraph/procession/store"
	"github.com/xraph/procession/store/sqlite"
)

var _ store.Store = (*sqlite.Store)(nil)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestMigrateIdempotent(t *testing.T) {
	st := newTestStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sess := &forms.SessionState{
		Entity:   procession.NewEntity(),
		ID:       id.NewSessionID(),
		Workflow: "connect",
		Snapshot: &forms.Snapshot{
			PageIndex: 2,
			Journal: []map[string]string{
				{"organisation": "ORG1"},
				{"ticket_id": "T-100"},
			},
		},
	}
	if err := st.SaveSession(ctx, sess); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Workflow != "connect" || got.Snapshot.PageIndex != 2 {
		t.Errorf("got %+v", got)
	}
	if got.Snapshot.Journal[1]["ticket_id"] != "T-100" {
		t.Errorf("journal = %v", got.Snapshot.Journal)
	}

	// Save again replaces the snapshot.
	sess.Snapshot.PageIndex = 3
	if err := st.SaveSession(ctx, sess); err != nil {
		t.Fatal(err)
	}
	got, _ = st.GetSession(ctx, sess.ID)
	if got.Snapshot.PageIndex != 3 {
		t.Errorf("after upsert: page = %d", got.Snapshot.PageIndex)
	}

	if err := st.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := st.GetSession(ctx, sess.ID); !errors.Is(err, procession.ErrSessionNotFound) {
		t.Errorf("after delete: %v", err)
	}
}

func TestProcessRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := process.New("connect", procession.Fields{"organisation": "ORG1", "bandwidth": float64(100)})
	if err := st.CreateProcess(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateProcess(ctx, rec); !errors.Is(err, procession.ErrProcessAlreadyExists) {
		t.Errorf("duplicate create: %v", err)
	}

	rec.Cursor = 1
	rec.Lifecycle = lifecycle.StatusProvisioning
	rec.RunState = process.RunStateSuspended
	rec.Touch()
	if err := st.UpdateProcess(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetProcess(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Cursor != 1 || got.Lifecycle != lifecycle.StatusProvisioning || got.RunState != process.RunStateSuspended {
		t.Errorf("got %+v", got)
	}
	// JSON round-trips numbers as float64.
	if got.State["bandwidth"] != float64(100) {
		t.Errorf("bandwidth = %v (%T)", got.State["bandwidth"], got.State["bandwidth"])
	}
	if got.CompletedAt != nil {
		t.Error("CompletedAt set on incomplete record")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	rec.RunState = process.RunStateDone
	rec.CompletedAt = &now
	if err := st.UpdateProcess(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, _ = st.GetProcess(ctx, rec.ID)
	if got.CompletedAt == nil || !got.CompletedAt.Equal(now) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, now)
	}
}

func TestListProcessesByRunState(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a := process.New("connect", nil)
	b := process.New("connect", nil)
	b.RunState = process.RunStateSuspended
	for _, rec := range []*process.Record{a, b} {
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
}

func TestOutcomeUpsert(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := process.New("connect", nil)
	if err := st.CreateProcess(ctx, rec); err != nil {
		t.Fatal(err)
	}

	first := process.NewOutcome(rec.ID, "persist", process.OutcomeFailed, "attempt 1")
	second := process.NewOutcome(rec.ID, "persist", process.OutcomeFailed, "attempt 2")
	second.RecordedAt = first.RecordedAt.Add(time.Second)
	success := process.NewOutcome(rec.ID, "persist", process.OutcomeSuccess, "")
	success.RecordedAt = first.RecordedAt.Add(2 * time.Second)

	for _, o := range []*process.Outcome{first, second, success} {
		if err := st.AppendOutcome(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	outs, err := st.ListOutcomes(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outs))
	}
	if outs[0].Status != process.OutcomeFailed || outs[0].ErrorDetail != "attempt 2" {
		t.Errorf("failed row = %+v", outs[0])
	}
}

func TestEventPublishSubscribeAck(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	evt := &event.Event{
		ID:        id.NewEventID(),
		Name:      "circuit-up:p1",
		Payload:   []byte(`{"circuit_id":"C1"}`),
		CreatedAt: time.Now().UTC(),
	}
	if err := st.PublishEvent(ctx, evt); err != nil {
		t.Fatal(err)
	}

	got, err := st.SubscribeEvent(ctx, "circuit-up:p1", 200*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != evt.ID {
		t.Fatalf("got %+v", got)
	}
	if string(got.Payload) != `{"circuit_id":"C1"}` {
		t.Errorf("payload = %s", got.Payload)
	}

	if err := st.AckEvent(ctx, evt.ID); err != nil {
		t.Fatal(err)
	}
	if again, _ := st.SubscribeEvent(ctx, "circuit-up:p1", 60*time.Millisecond); again != nil {
		t.Error("acked event still delivered")
	}
	if err := st.AckEvent(ctx, id.NewEventID()); !errors.Is(err, procession.ErrEventNotFound) {
		t.Errorf("ack missing: %v", err)
	}
}

func TestEntityRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ent := inventory.New("circuit", "ORG1-primary", id.NewProcessID(), procession.Fields{"bandwidth": "10G"})
	if err := st.PutEntity(ctx, ent); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetEntity(ctx, ent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != "circuit" || got.Lifecycle != lifecycle.StatusActive || got.Attrs["bandwidth"] != "10G" {
		t.Errorf("got %+v", got)
	}

	// Replacing advances the lifecycle (terminate workflow).
	ent.Lifecycle = lifecycle.StatusTerminated
	ent.Touch()
	if err := st.PutEntity(ctx, ent); err != nil {
		t.Fatal(err)
	}
	active, _ := st.ListEntities(ctx, inventory.ListOpts{Lifecycle: lifecycle.StatusActive})
	if len(active) != 0 {
		t.Errorf("active entities = %d, want 0", len(active))
	}
}
