package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/procession"
	"github.com/xraph/procession/event"
	"github.com/xraph/procession/forms"
	"github.com/xraph/procession/id"
	"github.com/xraph/procession/inventory"
	"github.com/xraph/procession/lifecycle"
	"github.com/xraph/procession/process"
)

// Nested field maps are stored as raw JSON so that values round-trip
// with the same types as the SQL backends (JSON numbers as float64)
// instead of picking up BSON integer widths.

// ── Session model ─────────────────────────────────────────────────

type sessionModel struct {
	ID        string    `bson:"_id"`
	Workflow  string    `bson:"workflow"`
	Snapshot  []byte    `bson:"snapshot"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toSessionModel(sess *forms.SessionState) (*sessionModel, error) {
	snap, err := json.Marshal(sess.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("procession/mongo: marshal snapshot: %w", err)
	}
	return &sessionModel{
		ID:        sess.ID.String(),
		Workflow:  sess.Workflow,
		Snapshot:  snap,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}, nil
}

func fromSessionModel(m *sessionModel) (*forms.SessionState, error) {
	parsedID, err := id.ParseSessionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("procession/mongo: parse session id %q: %w", m.ID, err)
	}
	var snapshot forms.Snapshot
	if err := json.Unmarshal(m.Snapshot, &snapshot); err != nil {
		return nil, fmt.Errorf("procession/mongo: unmarshal snapshot: %w", err)
	}
	return &forms.SessionState{
		Entity: procession.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       parsedID,
		Workflow: m.Workflow,
		Snapshot: &snapshot,
	}, nil
}

// ── Process model ─────────────────────────────────────────────────

type processModel struct {
	ID          string     `bson:"_id"`
	Workflow    string     `bson:"workflow"`
	Cursor      int        `bson:"cursor"`
	State       []byte     `bson:"state"`
	Lifecycle   string     `bson:"lifecycle"`
	RunState    string     `bson:"run_state"`
	Error       string     `bson:"error"`
	StartedAt   time.Time  `bson:"started_at"`
	CompletedAt *time.Time `bson:"completed_at,omitempty"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
}

func toProcessModel(rec *process.Record) (*processModel, error) {
	state, err := json.Marshal(rec.State)
	if err != nil {
		return nil, fmt.Errorf("procession/mongo: marshal state: %w", err)
	}
	return &processModel{
		ID:          rec.ID.String(),
		Workflow:    rec.Workflow,
		Cursor:      rec.Cursor,
		State:       state,
		Lifecycle:   string(rec.Lifecycle),
		RunState:    string(rec.RunState),
		Error:       rec.Error,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}, nil
}

func fromProcessModel(m *processModel) (*process.Record, error) {
	parsedID, err := id.ParseProcessID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("procession/mongo: parse process id %q: %w", m.ID, err)
	}
	var fields procession.Fields
	if err := json.Unmarshal(m.State, &fields); err != nil {
		return nil, fmt.Errorf("procession/mongo: unmarshal state: %w", err)
	}
	return &process.Record{
		Entity: procession.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		Workflow:    m.Workflow,
		Cursor:      m.Cursor,
		State:       fields,
		Lifecycle:   lifecycle.Status(m.Lifecycle),
		RunState:    process.RunState(m.RunState),
		Error:       m.Error,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}, nil
}

// ── Outcome model ─────────────────────────────────────────────────

type outcomeModel struct {
	ID          string    `bson:"_id"`
	ProcessID   string    `bson:"process_id"`
	StepName    string    `bson:"step_name"`
	Status      string    `bson:"status"`
	ErrorDetail string    `bson:"error_detail"`
	RecordedAt  time.Time `bson:"recorded_at"`
}

func toOutcomeModel(o *process.Outcome) *outcomeModel {
	return &outcomeModel{
		ID:          o.ID.String(),
		ProcessID:   o.ProcessID.String(),
		StepName:    o.StepName,
		Status:      string(o.Status),
		ErrorDetail: o.ErrorDetail,
		RecordedAt:  o.RecordedAt,
	}
}

func fromOutcomeModel(m *outcomeModel) (*process.Outcome, error) {
	parsedID, err := id.ParseOutcomeID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("procession/mongo: parse outcome id %q: %w", m.ID, err)
	}
	parsedProcessID, err := id.ParseProcessID(m.ProcessID)
	if err != nil {
		return nil, fmt.Errorf("procession/mongo: parse process id %q: %w", m.ProcessID, err)
	}
	return &process.Outcome{
		ID:          parsedID,
		ProcessID:   parsedProcessID,
		StepName:    m.StepName,
		Status:      process.OutcomeStatus(m.Status),
		ErrorDetail: m.ErrorDetail,
		RecordedAt:  m.RecordedAt,
	}, nil
}

// ── Event model ───────────────────────────────────────────────────

type eventModel struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Payload   []byte    `bson:"payload,omitempty"`
	Acked     bool      `bson:"acked"`
	CreatedAt time.Time `bson:"created_at"`
}

func toEventModel(evt *event.Event) *eventModel {
	return &eventModel{
		ID:        evt.ID.String(),
		Name:      evt.Name,
		Payload:   evt.Payload,
		Acked:     evt.Acked,
		CreatedAt: evt.CreatedAt,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	parsedID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("procession/mongo: parse event id %q: %w", m.ID, err)
	}
	return &event.Event{
		ID:        parsedID,
		Name:      m.Name,
		Payload:   m.Payload,
		Acked:     m.Acked,
		CreatedAt: m.CreatedAt,
	}, nil
}

// ── Entity model ──────────────────────────────────────────────────

type entityModel struct {
	ID        string    `bson:"_id"`
	Kind      string    `bson:"kind"`
	Name      string    `bson:"name"`
	Lifecycle string    `bson:"lifecycle"`
	ProcessID string    `bson:"process_id"`
	Attrs     []byte    `bson:"attrs,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toEntityModel(e *inventory.Entity) (*entityModel, error) {
	attrs, err := json.Marshal(e.Attrs)
	if err != nil {
		return nil, fmt.Errorf("procession/mongo: marshal attrs: %w", err)
	}
	return &entityModel{
		ID:        e.ID.String(),
		Kind:      e.Kind,
		Name:      e.Name,
		Lifecycle: string(e.Lifecycle),
		ProcessID: e.ProcessID.String(),
		Attrs:     attrs,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}, nil
}

func fromEntityModel(m *entityModel) (*inventory.Entity, error) {
	parsedID, err := id.ParseEntityID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("procession/mongo: parse entity id %q: %w", m.ID, err)
	}
	parsedProcessID, err := id.ParseProcessID(m.ProcessID)
	if err != nil {
		return nil, fmt.Errorf("procession/mongo: parse process id %q: %w", m.ProcessID, err)
	}
	var fields procession.Fields
	if len(m.Attrs) > 0 {
		if err := json.Unmarshal(m.Attrs, &fields); err != nil {
			return nil, fmt.Errorf("procession/mongo: unmarshal attrs: %w", err)
		}
	}
	return &inventory.Entity{
		Entity: procession.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        parsedID,
		Kind:      m.Kind,
		Name:      m.Name,
		Lifecycle: lifecycle.Status(m.Lifecycle),
		ProcessID: parsedProcessID,
		Attrs:     fields,
	}, nil
}
