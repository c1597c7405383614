package redis

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
		return fmt.Errorf("procession/redis: marshal snapshot: %w", err)
	}

	_, err = s.client.HSet(ctx, sessionKey(sess.ID.String()),
		"id", sess.ID.String(),
		"workflow", sess.Workflow,
		"snapshot", string(snap),
		"created_at", sess.CreatedAt.Format(time.RFC3339Nano),
		"updated_at", sess.UpdatedAt.Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("procession/redis: save session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID id.SessionID) (*forms.SessionState, error) {
	vals, err := s.client.HGetAll(ctx, sessionKey(sessionID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("procession/redis: get session: %w", err)
	}
	if len(vals) == 0 {
		return nil, procession.ErrSessionNotFound
	}

	parsedID, err := id.ParseSessionID(vals["id"])
	if err != nil {
		return nil, fmt.Errorf("procession/redis: parse session id: %w", err)
	}
	var snapshot forms.Snapshot
	if err := json.Unmarshal([]byte(vals["snapshot"]), &snapshot); err != nil {
		return nil, fmt.Errorf("procession/redis: unmarshal snapshot: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, vals["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, vals["updated_at"])

	return &forms.SessionState{
		Entity: procession.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:       parsedID,
		Workflow: vals["workflow"],
		Snapshot: &snapshot,
	}, nil
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, sessionID id.SessionID) error {
	deleted, err := s.client.Del(ctx, sessionKey(sessionID.String())).Result()
	if err != nil {
		return fmt.Errorf("procession/redis: delete session: %w", err)
	}
	if deleted == 0 {
		return procession.ErrSessionNotFound
	}
	return nil
}
