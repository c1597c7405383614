package bunstore

import (
	"context"
	"fmt"

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

	_, err = s.db.NewInsert().
		Model(m).
		On("CONFLICT (id) DO UPDATE").
		Set("kind = EXCLUDED.kind").
		Set("name = EXCLUDED.name").
		Set("lifecycle = EXCLUDED.lifecycle").
		Set("attrs = EXCLUDED.attrs").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("procession/bun: put entity: %w", err)
	}
	return nil
}

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, entityID id.EntityID) (*inventory.Entity, error) {
	m := new(entityModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", entityID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, procession.ErrEntityNotFound
		}
		return nil, fmt.Errorf("procession/bun: get entity: %w", err)
	}
	return fromEntityModel(m)
}

// ListEntities returns entities matching the given options.
func (s *Store) ListEntities(ctx context.Context, opts inventory.ListOpts) ([]*inventory.Entity, error) {
	var models []entityModel
	q := s.db.NewSelect().Model(&models)

	if opts.Kind != "" {
		q = q.Where("kind = ?", opts.Kind)
	}
	if opts.Lifecycle != "" {
		q = q.Where("lifecycle = ?", string(opts.Lifecycle))
	}
	q = q.OrderExpr("created_at ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("procession/bun: list entities: %w", err)
	}

	ents := make([]*inventory.Entity, 0, len(models))
	for i := range models {
		ent, convErr := fromEntityModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("procession/bun: list entities convert: %w", convErr)
		}
		ents = append(ents, ent)
	}
	return ents, nil
}
