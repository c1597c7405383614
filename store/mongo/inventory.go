package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/procession"
	"github.com/xraph/procession/id"
	"github.com/xraph/procession/inventory"
)

// PutEntity persists an entity, replacing any previous version.
func (s *Store) PutEntity(ctx context.Context, e *inventory.Entity) error {
	m, err := toEntityModel(e)
	if err != nil {
		return err
	}

	_, err = s.db.Collection(colEntities).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: m.ID}}, m,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("procession/mongo: put entity: %w", err)
	}
	return nil
}

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, entityID id.EntityID) (*inventory.Entity, error) {
	var m entityModel
	err := s.db.Collection(colEntities).FindOne(ctx,
		bson.D{{Key: "_id", Value: entityID.String()}}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, procession.ErrEntityNotFound
		}
		return nil, fmt.Errorf("procession/mongo: get entity: %w", err)
	}
	return fromEntityModel(&m)
}

// ListEntities returns entities matching the given options.
func (s *Store) ListEntities(ctx context.Context, opts inventory.ListOpts) ([]*inventory.Entity, error) {
	filter := bson.D{}
	if opts.Kind != "" {
		filter = append(filter, bson.E{Key: "kind", Value: opts.Kind})
	}
	if opts.Lifecycle != "" {
		filter = append(filter, bson.E{Key: "lifecycle", Value: string(opts.Lifecycle)})
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts = findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.db.Collection(colEntities).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("procession/mongo: list entities: %w", err)
	}
	defer cur.Close(ctx)

	var result []*inventory.Entity
	for cur.Next(ctx) {
		var m entityModel
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("procession/mongo: list entities decode: %w", err)
		}
		ent, convErr := fromEntityModel(&m)
		if convErr != nil {
			return nil, convErr
		}
		result = append(result, ent)
	}
	return result, cur.Err()
}
