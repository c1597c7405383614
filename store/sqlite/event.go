package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/procession"
	"github.com/xraph/procession/event"
	"github.com/xraph/procession/id"
)

// PublishEvent persists a new event and makes it available for subscribers.
func (s *Store) PublishEvent(ctx context.Context, evt *event.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO procession_events (id, name, payload, acked, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		evt.ID.String(), evt.Name, evt.Payload, evt.Acked, fmtTime(evt.CreatedAt))
	if err != nil {
		return fmt.Errorf("procession/sqlite: publish event: %w", err)
	}
	return nil
}

// SubscribeEvent waits for an unacked event matching the given name.
// Uses a polling approach with short intervals.
func (s *Store) SubscribeEvent(ctx context.Context, name string, timeout time.Duration) (*event.Event, error) {
	deadline := time.Now().Add(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		row := s.db.QueryRowContext(ctx, `
			SELECT id, name, payload, acked, created_at
			FROM procession_events
			WHERE name = ? AND acked = 0
			ORDER BY created_at ASC
			LIMIT 1`,
			name)

		var (
			rawID, evtName, createdAt string
			payload                   []byte
			acked                     bool
		)
		err := row.Scan(&rawID, &evtName, &payload, &acked, &createdAt)
		if err != nil {
			if isNoRows(err) {
				if time.Now().After(deadline) {
					return nil, nil
				}
				sleepCtx(ctx, 50*time.Millisecond)
				continue
			}
			return nil, fmt.Errorf("procession/sqlite: subscribe event: %w", err)
		}

		parsedID, err := id.ParseEventID(rawID)
		if err != nil {
			return nil, fmt.Errorf("procession/sqlite: parse event id %q: %w", rawID, err)
		}
		return &event.Event{
			ID:        parsedID,
			Name:      evtName,
			Payload:   payload,
			Acked:     acked,
			CreatedAt: parseTime(createdAt),
		}, nil
	}
}

// AckEvent acknowledges an event, marking it as consumed.
func (s *Store) AckEvent(ctx context.Context, eventID id.EventID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE procession_events SET acked = 1 WHERE id = ?`, eventID.String())
	if err != nil {
		return fmt.Errorf("procession/sqlite: ack event: %w", err)
	}
	return affectedOr(res, procession.ErrEventNotFound)
}
