package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/procession"
	"github.com/xraph/procession/event"
	"github.com/xraph/procession/forms"
	"github.com/xraph/procession/id"
	"github.com/xraph/procession/inventory"
	"github.com/xraph/procession/lifecycle"
	"github.com/xraph/procession/process"
)

// ── Session model ─────────────────────────────────────────────────

type sessionModel struct {
	bun.BaseModel `bun:"table:procession_sessions"`

	ID        string    `bun:"id,pk"`
	Workflow  string    `bun:"workflow,notnull"`
	Snapshot  []byte    `bun:"snapshot,notnull,type:jsonb"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func toSessionModel(sess *forms.SessionState) (*sessionModel, error) {
	snap, err := json.Marshal(sess.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("procession/bun: marshal snapshot: %w", err)
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
		return nil, fmt.Errorf("procession/bun: parse session id %q: %w", m.ID, err)
	}
	var snapshot forms.Snapshot
	if err := json.Unmarshal(m.Snapshot, &snapshot); err != nil {
		return nil, fmt.Errorf("procession/bun: unmarshal snapshot: %w", err)
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
	bun.BaseModel `bun:"table:procession_processes"`

	ID          string     `bun:"id,pk"`
	Workflow    string     `bun:"workflow,notnull"`
	Cursor      int        `bun:"cursor,notnull,default:0"`
	State       []byte     `bun:"state,notnull,type:jsonb"`
	Lifecycle   string     `bun:"lifecycle,notnull"`
	RunState    string     `bun:"run_state,notnull"`
	Error       string     `bun:"error,notnull,default:''"`
	StartedAt   time.Time  `bun:"started_at,notnull"`
	CompletedAt *time.Time `bun:"completed_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toProcessModel(rec *process.Record) (*processModel, error) {
	state, err := json.Marshal(rec.State)
	if err != nil {
		return nil, fmt.Errorf("procession/bun: marshal state: %w", err)
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
		return nil, fmt.Errorf("procession/bun: parse process id %q: %w", m.ID, err)
	}
	var fields procession.Fields
	if err := json.Unmarshal(m.State, &fields); err != nil {
		return nil, fmt.Errorf("procession/bun: unmarshal state: %w", err)
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
	bun.BaseModel `bun:"table:procession_outcomes"`

	ID          string    `bun:"id,pk"`
	ProcessID   string    `bun:"process_id,notnull"`
	StepName    string    `bun:"step_name,notnull"`
	Status      string    `bun:"status,notnull"`
	ErrorDetail string    `bun:"error_detail,notnull,default:''"`
	RecordedAt  time.Time `bun:"recorded_at,notnull"`
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
		return nil, fmt.Errorf("procession/bun: parse outcome id %q: %w", m.ID, err)
	}
	parsedProcessID, err := id.ParseProcessID(m.ProcessID)
	if err != nil {
		return nil, fmt.Errorf("procession/bun: parse process id %q: %w", m.ProcessID, err)
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
	bun.BaseModel `bun:"table:procession_events"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	Payload   []byte    `bun:"payload,type:bytea"`
	Acked     bool      `bun:"acked,notnull,default:false"`
	CreatedAt time.Time `bun:"created_at,notnull"`
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
		return nil, fmt.Errorf("procession/bun: parse event id %q: %w", m.ID, err)
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
	bun.BaseModel `bun:"table:procession_entities"`

	ID        string    `bun:"id,pk"`
	Kind      string    `bun:"kind,notnull"`
	Name      string    `bun:"name,notnull,default:''"`
	Lifecycle string    `bun:"lifecycle,notnull"`
	ProcessID string    `bun:"process_id,notnull"`
	Attrs     []byte    `bun:"attrs,type:jsonb"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func toEntityModel(e *inventory.Entity) (*entityModel, error) {
	attrs, err := json.Marshal(e.Attrs)
	if err != nil {
		return nil, fmt.Errorf("procession/bun: marshal attrs: %w", err)
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
		return nil, fmt.Errorf("procession/bun: parse entity id %q: %w", m.ID, err)
	}
	parsedProcessID, err := id.ParseProcessID(m.ProcessID)
	if err != nil {
		return nil, fmt.Errorf("procession/bun: parse process id %q: %w", m.ProcessID, err)
	}
	var fields procession.Fields
	if len(m.Attrs) > 0 {
		if err := json.Unmarshal(m.Attrs, &fields); err != nil {
			return nil, fmt.Errorf("procession/bun: unmarshal attrs: %w", err)
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
