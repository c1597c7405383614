package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/xraph/procession"
	"github.com/xraph/procession/forms"
	"github.com/xraph/procession/id"
)

// SaveSession persists a session, replacing any previous state.
func (s *Store) SaveSession(ctx context.Context, sess *forms.SessionState) error {
	snap, err := json.Marshal(sess.Snapshot)
	if err != nil {
		return fmt.Errorf("procession/sqlite: marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO procession_sessions (id, workflow, snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at`,
		sess.ID.String(), sess.Workflow, snap, fmtTime(sess.CreatedAt), fmtTime(sess.UpdatedAt))
	if err != nil {
		return fmt.Errorf("procession/sqlite: save session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID id.SessionID) (*forms.SessionState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow, snapshot, created_at, updated_at
		FROM procession_sessions WHERE id = ?`,
		sessionID.String())

	var (
		rawID, workflow, createdAt, updatedAt string
		snap                                  []byte
	)
	if err := row.Scan(&rawID, &workflow, &snap, &createdAt, &updatedAt); err != nil {
		if isNoRows(err) {
			return nil, procession.ErrSessionNotFound
		}
		return nil, fmt.Errorf("procession/sqlite: get session: %w", err)
	}

	parsedID, err := id.ParseSessionID(rawID)
	if err != nil {
		return nil, fmt.Errorf("procession/sqlite: parse session id %q: %w", rawID, err)
	}
	var snapshot forms.Snapshot
	if err := json.Unmarshal(snap, &snapshot); err != nil {
		return nil, fmt.Errorf("procession/sqlite: unmarshal snapshot: %w", err)
	}

	return &forms.SessionState{
		Entity: procession.Entity{
			CreatedAt: parseTime(createdAt),
			UpdatedAt: parseTime(updatedAt),
		},
		ID:       parsedID,
		Workflow: workflow,
		Snapshot: &snapshot,
	}, nil
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, sessionID id.SessionID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM procession_sessions WHERE id = ?`, sessionID.String())
	if err != nil {
		return fmt.Errorf("procession/sqlite: delete session: %w", err)
	}
	return affectedOr(res, procession.ErrSessionNotFound)
}

// affectedOr returns notFound when the statement touched no rows.
func affectedOr(res sql.Result, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
