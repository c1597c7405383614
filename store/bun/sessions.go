package bunstore

import (
	"context"
	"fmt"

	"github.com/xraph/procession"
	"github.com/xraph/procession/forms"
	"github.com/xraph/procession/id"
)

// SaveSession persists a session, replacing any previous state.
func (s *Store) SaveSession(ctx context.Context, sess *forms.SessionState) error {
	m, err := toSessionModel(sess)
	if err != nil {
		return err
	}

	_, err = s.db.NewInsert().
		Model(m).
		On("CONFLICT (id) DO UPDATE").
		Set("snapshot = EXCLUDED.snapshot").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("procession/bun: save session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID id.SessionID) (*forms.SessionState, error) {
	m := new(sessionModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", sessionID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, procession.ErrSessionNotFound
		}
		return nil, fmt.Errorf("procession/bun: get session: %w", err)
	}
	return fromSessionModel(m)
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, sessionID id.SessionID) error {
	res, err := s.db.NewDelete().
		Model((*sessionModel)(nil)).
		Where("id = ?", sessionID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("procession/bun: delete session: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return procession.ErrSessionNotFound
	}
	return nil
}
