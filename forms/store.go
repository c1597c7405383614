package forms

import (
	"context"

	"github.com/xraph/procession"
	"github.com/xraph/procession/id"
)

// SessionState is the durable form of an in-flight wizard: the workflow
// it belongs to and the accepted-submission journal. No partial merged
// record is persisted; completion hands the record to the pipeline and
// deletes the session.
type SessionState struct {
	procession.Entity

	ID       id.SessionID `json:"id"`
	Workflow string       `json:"workflow"`
	Snapshot *Snapshot    `json:"snapshot"`
}

// SessionStore defines the persistence contract for wizard sessions.
type SessionStore interface {
	// SaveSession persists a session, replacing any previous state.
	SaveSession(ctx context.Context, s *SessionState) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, sessionID id.SessionID) (*SessionState, error)

	// DeleteSession removes a session (wizard completed or abandoned).
	DeleteSession(ctx context.Context, sessionID id.SessionID) error
}
