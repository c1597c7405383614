package bunstore

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
	if _, err := s.db.NewInsert().Model(toEventModel(evt)).Exec(ctx); err != nil {
		return fmt.Errorf("procession/bun: publish event: %w", err)
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

		m := new(eventModel)
		err := s.db.NewSelect().
			Model(m).
			Where("name = ?", name).
			Where("acked = FALSE").
			OrderExpr("created_at ASC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if isNoRows(err) {
				if time.Now().After(deadline) {
					return nil, nil
				}
				sleepCtx(ctx, 50*time.Millisecond)
				continue
			}
			return nil, fmt.Errorf("procession/bun: subscribe event: %w", err)
		}
		return fromEventModel(m)
	}
}

// AckEvent acknowledges an event, marking it as consumed.
func (s *Store) AckEvent(ctx context.Context, eventID id.EventID) error {
	res, err := s.db.NewUpdate().
		Model((*eventModel)(nil)).
		Set("acked = TRUE").
		Where("id = ?", eventID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("procession/bun: ack event: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return procession.ErrEventNotFound
	}
	return nil
}
