package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/procession"
	"github.com/xraph/procession/id"
	"github.com/xraph/procession/inventory"
	"github.com/xraph/procession/lifecycle"
)

// PutEntity persists an entity, replacing any previous version.
func (s *Store) PutEntity(ctx context.Context, e *inventory.Entity) error {
	attrs, err := json.Marshal(e.Attrs)
	if err != nil {
		return fmt.Errorf("procession/redis: marshal attrs: %w", err)
	}

	eID := e.ID.String()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, entityKey(eID),
		"id", eID,
		"kind", e.Kind,
		"name", e.Name,
		"lifecycle", string(e.Lifecycle),
		"process_id", e.ProcessID.String(),
		"attrs", string(attrs),
		"created_at", e.CreatedAt.Format(time.RFC3339Nano),
		"updated_at", e.UpdatedAt.Format(time.RFC3339Nano),
	)
	pipe.SAdd(ctx, entityIDsKey, eID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("procession/redis: put entity: %w", err)
	}
	return nil
}

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, entityID id.EntityID) (*inventory.Entity, error) {
	vals, err := s.client.HGetAll(ctx, entityKey(entityID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("procession/redis: get entity: %w", err)
	}
	if len(vals) == 0 {
		return nil, procession.ErrEntityNotFound
	}
	return mapToEntity(vals)
}

// ListEntities returns entities matching the given options. Filtering
// happens client-side over the ID set.
func (s *Store) ListEntities(ctx context.Context, opts inventory.ListOpts) ([]*inventory.Entity, error) {
	ids, err := s.client.SMembers(ctx, entityIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("procession/redis: list entities smembers: %w", err)
	}

	var ents []*inventory.Entity
	for _, eID := range ids {
		vals, getErr := s.client.HGetAll(ctx, entityKey(eID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		ent, convErr := mapToEntity(vals)
		if convErr != nil {
			continue
		}
		if opts.Kind != "" && ent.Kind != opts.Kind {
			continue
		}
		if opts.Lifecycle != "" && ent.Lifecycle != opts.Lifecycle {
			continue
		}
		ents = append(ents, ent)
	}
	sort.Slice(ents, func(i, j int) bool {
		return ents[i].CreatedAt.Before(ents[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(ents) {
			return nil, nil
		}
		ents = ents[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(ents) {
		ents = ents[:opts.Limit]
	}
	return ents, nil
}

func mapToEntity(m map[string]string) (*inventory.Entity, error) {
	parsedID, err := id.ParseEntityID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("procession/redis: parse entity id: %w", err)
	}
	parsedProcessID, err := id.ParseProcessID(m["process_id"])
	if err != nil {
		return nil, fmt.Errorf("procession/redis: parse process id: %w", err)
	}
	var fields procession.Fields
	if v := m["attrs"]; v != "" {
		if err := json.Unmarshal([]byte(v), &fields); err != nil {
			return nil, fmt.Errorf("procession/redis: unmarshal attrs: %w", err)
		}
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])

	return &inventory.Entity{
		Entity: procession.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:        parsedID,
		Kind:      m["kind"],
		Name:      m["name"],
		Lifecycle: lifecycle.Status(m["lifecycle"]),
		ProcessID: parsedProcessID,
		Attrs:     fields,
	}, nil
}
