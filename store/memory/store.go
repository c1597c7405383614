// Package memory provides a fully in-memory implementation of
// store.Store. Safe for concurrent access. Intended for unit testing
// and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/procession"
	"github.com/xraph/procession/event"
	"github.com/xraph/procession/forms"
	"github.com/xraph/procession/id"
	"github.com/xraph/procession/inventory"
	"github.com/xraph/procession/process"
)

// Ensure Store implements store.Store at compile time. We can't import
// store here (import cycle in tests that share this package), so we
// verify each subsystem.
var (
	_ forms.SessionStore = (*Store)(nil)
	_ process.Store      = (*Store)(nil)
	_ event.Store        = (*Store)(nil)
	_ inventory.Store    = (*Store)(nil)
)

// Store is an in-memory implementation of the composite store.
type Store struct {
	mu sync.RWMutex

	sessions map[string]*forms.SessionState
	recs     map[string]*process.Record
	outcomes map[string][]*process.Outcome // key: process ID
	events   map[string]*event.Event
	entities map[string]*inventory.Entity
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*forms.SessionState),
		recs:     make(map[string]*process.Record),
		outcomes: make(map[string][]*process.Outcome),
		events:   make(map[string]*event.Event),
		entities: make(map[string]*inventory.Entity),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Session Store
// ──────────────────────────────────────────────────

// SaveSession persists a session, replacing any previous state.
func (m *Store) SaveSession(_ context.Context, s *forms.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID.String()] = cloneSession(s)
	return nil
}

// GetSession retrieves a session by ID.
func (m *Store) GetSession(_ context.Context, sessionID id.SessionID) (*forms.SessionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID.String()]
	if !ok {
		return nil, procession.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

// DeleteSession removes a session.
func (m *Store) DeleteSession(_ context.Context, sessionID id.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionID.String()
	if _, ok := m.sessions[key]; !ok {
		return procession.ErrSessionNotFound
	}
	delete(m.sessions, key)
	return nil
}

func cloneSession(s *forms.SessionState) *forms.SessionState {
	cp := *s
	if s.Snapshot != nil {
		snap := *s.Snapshot
		snap.Journal = make([]map[string]string, len(s.Snapshot.Journal))
		copy(snap.Journal, s.Snapshot.Journal)
		cp.Snapshot = &snap
	}
	return &cp
}

// ──────────────────────────────────────────────────
// Process Store
// ──────────────────────────────────────────────────

// CreateProcess persists a new process record.
func (m *Store) CreateProcess(_ context.Context, rec *process.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rec.ID.String()
	if _, exists := m.recs[key]; exists {
		return procession.ErrProcessAlreadyExists
	}
	m.recs[key] = cloneRecord(rec)
	return nil
}

// GetProcess retrieves a process record by ID.
func (m *Store) GetProcess(_ context.Context, processID id.ProcessID) (*process.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.recs[processID.String()]
	if !ok {
		return nil, procession.ErrProcessNotFound
	}
	return cloneRecord(rec), nil
}

// UpdateProcess persists changes to an existing process record.
func (m *Store) UpdateProcess(_ context.Context, rec *process.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rec.ID.String()
	if _, ok := m.recs[key]; !ok {
		return procession.ErrProcessNotFound
	}
	m.recs[key] = cloneRecord(rec)
	return nil
}

// ListProcesses returns process records matching the given options.
func (m *Store) ListProcesses(_ context.Context, opts process.ListOpts) ([]*process.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*process.Record, 0, len(m.recs))
	for _, rec := range m.recs {
		if opts.RunState != "" && rec.RunState != opts.RunState {
			continue
		}
		if opts.Workflow != "" && rec.Workflow != opts.Workflow {
			continue
		}
		result = append(result, cloneRecord(rec))
	}

	// Sort by StartedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].StartedAt.Before(result[k].StartedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// AppendOutcome records a step outcome, replacing an existing row for
// the same (process, step, status) triple.
func (m *Store) AppendOutcome(_ context.Context, o *process.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := o.ProcessID.String()
	cp := *o
	for i, prev := range m.outcomes[key] {
		if prev.StepName == o.StepName && prev.Status == o.Status {
			m.outcomes[key][i] = &cp
			return nil
		}
	}
	m.outcomes[key] = append(m.outcomes[key], &cp)
	return nil
}

// ListOutcomes returns a process's outcomes ordered by recording time.
func (m *Store) ListOutcomes(_ context.Context, processID id.ProcessID) ([]*process.Outcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.outcomes[processID.String()]
	result := make([]*process.Outcome, len(src))
	for i, o := range src {
		cp := *o
		result[i] = &cp
	}
	sort.SliceStable(result, func(i, k int) bool {
		return result[i].RecordedAt.Before(result[k].RecordedAt)
	})
	return result, nil
}

func cloneRecord(rec *process.Record) *process.Record {
	cp := *rec
	cp.State = rec.State.Clone()
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// ──────────────────────────────────────────────────
// Event Store
// ──────────────────────────────────────────────────

// PublishEvent persists a new event.
func (m *Store) PublishEvent(_ context.Context, evt *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[evt.ID.String()] = cloneEvent(evt)
	return nil
}

// SubscribeEvent waits for an unacked event matching the given name.
// Poll-based: loops with a 10ms sleep until an event is available or
// the timeout expires.
func (m *Store) SubscribeEvent(ctx context.Context, name string, timeout time.Duration) (*event.Event, error) {
	deadline := time.Now().Add(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		m.mu.RLock()
		for _, evt := range m.events {
			if evt.Name == name && !evt.Acked {
				m.mu.RUnlock()
				return cloneEvent(evt), nil
			}
		}
		m.mu.RUnlock()

		if time.Now().After(deadline) {
			return nil, nil
		}
		sleepCtx(ctx, 10*time.Millisecond)
	}
}

func cloneEvent(evt *event.Event) *event.Event {
	cp := *evt
	if evt.Payload != nil {
		cp.Payload = append([]byte(nil), evt.Payload...)
	}
	return &cp
}

// sleepCtx sleeps for the given duration, or returns early if the
// context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// AckEvent acknowledges an event, marking it as consumed.
func (m *Store) AckEvent(_ context.Context, eventID id.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	evt, ok := m.events[eventID.String()]
	if !ok {
		return procession.ErrEventNotFound
	}
	evt.Acked = true
	return nil
}

// ──────────────────────────────────────────────────
// Inventory Store
// ──────────────────────────────────────────────────

// PutEntity persists an entity, replacing any previous version.
func (m *Store) PutEntity(_ context.Context, e *inventory.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	cp.Attrs = e.Attrs.Clone()
	m.entities[e.ID.String()] = &cp
	return nil
}

// GetEntity retrieves an entity by ID.
func (m *Store) GetEntity(_ context.Context, entityID id.EntityID) (*inventory.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entities[entityID.String()]
	if !ok {
		return nil, procession.ErrEntityNotFound
	}
	cp := *e
	cp.Attrs = e.Attrs.Clone()
	return &cp, nil
}

// ListEntities returns entities matching the given options.
func (m *Store) ListEntities(_ context.Context, opts inventory.ListOpts) ([]*inventory.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*inventory.Entity, 0, len(m.entities))
	for _, e := range m.entities {
		if opts.Kind != "" && e.Kind != opts.Kind {
			continue
		}
		if opts.Lifecycle != "" && e.Lifecycle != opts.Lifecycle {
			continue
		}
		cp := *e
		cp.Attrs = e.Attrs.Clone()
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}
