package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/procession"
	"github.com/xraph/procession/forms"
	"github.com/xraph/procession/id"
)

// SaveSession persists a session, replacing any previous state.
func (s *Store) SaveSession(ctx context.Context, sess *forms.SessionState) error {
	snap, err := json.Marshal(sess.Snapshot)
	if err != nil {
		return fmt.Errorf("procession/postgres: marshal snapshot: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO procession_sessions (id, workflow, snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			snapshot = EXCLUDED.snapshot,
			updated_at = EXCLUDED.updated_at`,
		sess.ID.String(), sess.Workflow, snap, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("procession/postgres: save session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID id.SessionID) (*forms.SessionState, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, workflow, snapshot, created_at, updated_at
		FROM procession_sessions WHERE id = $1`,
		sessionID.String())

	var (
		rawID, workflow      string
		snap                 []byte
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&rawID, &workflow, &snap, &createdAt, &updatedAt); err != nil {
		if isNoRows(err) {
			return nil, procession.ErrSessionNotFound
		}
		return nil, fmt.Errorf("procession/postgres: get session: %w", err)
	}

	parsedID, err := id.ParseSessionID(rawID)
	if err != nil {
		return nil, fmt.Errorf("procession/postgres: parse session id %q: %w", rawID, err)
	}
	var snapshot forms.Snapshot
	if err := json.Unmarshal(snap, &snapshot); err != nil {
		return nil, fmt.Errorf("procession/postgres: unmarshal snapshot: %w", err)
	}

	return &forms.SessionState{
		Entity: procession.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:       parsedID,
		Workflow: workflow,
		Snapshot: &snapshot,
	}, nil
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, sessionID id.SessionID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM procession_sessions WHERE id = $1`, sessionID.String())
	if err != nil {
		return fmt.Errorf("procession/postgres: delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return procession.ErrSessionNotFound
	}
	return nil
}
