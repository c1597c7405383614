package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/procession"
	"github.com/xraph/procession/event"
	"github.com/xraph/procession/id"
)

// PublishEvent persists a new event and makes it available for subscribers.
func (s *Store) PublishEvent(ctx context.Context, evt *event.Event) error {
	if _, err := s.db.Collection(colEvents).InsertOne(ctx, toEventModel(evt)); err != nil {
		return fmt.Errorf("procession/mongo: publish event: %w", err)
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

		var m eventModel
		err := s.db.Collection(colEvents).FindOne(ctx,
			bson.D{
				{Key: "name", Value: name},
				{Key: "acked", Value: false},
			},
			options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})).Decode(&m)
		if err != nil {
			if isNoDocuments(err) {
				if time.Now().After(deadline) {
					return nil, nil
				}
				sleepCtx(ctx, 50*time.Millisecond)
				continue
			}
			return nil, fmt.Errorf("procession/mongo: subscribe event: %w", err)
		}
		return fromEventModel(&m)
	}
}

// AckEvent acknowledges an event, marking it as consumed.
func (s *Store) AckEvent(ctx context.Context, eventID id.EventID) error {
	res, err := s.db.Collection(colEvents).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: eventID.String()}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "acked", Value: true}}}})
	if err != nil {
		return fmt.Errorf("procession/mongo: ack event: %w", err)
	}
	if res.MatchedCount == 0 {
		return procession.ErrEventNotFound
	}
	return nil
}
