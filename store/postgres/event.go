package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/procession"
	"github.com/xraph/procession/event"
	"github.com/xraph/procession/id"
)

// PublishEvent persists a new event and notifies subscribers via NOTIFY.
func (s *Store) PublishEvent(ctx context.Context, evt *event.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO procession_events (id, name, payload, acked, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		evt.ID.String(), evt.Name, evt.Payload, evt.Acked, evt.CreatedAt)
	if err != nil {
		return fmt.Errorf("procession/postgres: publish event: %w", err)
	}

	// The event is persisted; the NOTIFY is only a wake-up hint and
	// subscribers fall back to polling, so a failure here is non-fatal.
	if _, notifyErr := s.pool.Exec(ctx,
		`SELECT pg_notify('procession_events', $1)`, evt.Name); notifyErr != nil {
		s.logger.Warn("failed to notify event subscribers",
			"event", evt.Name, "error", notifyErr)
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

		row := s.pool.QueryRow(ctx, `
			SELECT id, name, payload, acked, created_at
			FROM procession_events
			WHERE name = $1 AND acked = FALSE
			ORDER BY created_at ASC
			LIMIT 1`,
			name)

		evt, err := scanEvent(row)
		if err != nil {
			if isNoRows(err) {
				if time.Now().After(deadline) {
					return nil, nil
				}
				sleepCtx(ctx, 50*time.Millisecond)
				continue
			}
			return nil, fmt.Errorf("procession/postgres: subscribe event: %w", err)
		}
		return evt, nil
	}
}

// AckEvent acknowledges an event, marking it as consumed.
func (s *Store) AckEvent(ctx context.Context, eventID id.EventID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE procession_events SET acked = TRUE WHERE id = $1`,
		eventID.String())
	if err != nil {
		return fmt.Errorf("procession/postgres: ack event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return procession.ErrEventNotFound
	}
	return nil
}

// scanEvent scans a single event row.
func scanEvent(row pgx.Row) (*event.Event, error) {
	var (
		evt   event.Event
		idStr string
	)
	if err := row.Scan(&idStr, &evt.Name, &evt.Payload, &evt.Acked, &evt.CreatedAt); err != nil {
		return nil, err
	}

	parsedID, err := id.ParseEventID(idStr)
	if err != nil {
		return nil, fmt.Errorf("procession/postgres: parse event id %q: %w", idStr, err)
	}
	evt.ID = parsedID
	return &evt, nil
}
