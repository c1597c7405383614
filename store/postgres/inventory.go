package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/procession"
	"github.com/xraph/procession/id"
	"github.com/xraph/procession/inventory"
	"github.com/xraph/procession/lifecycle"
)

// PutEntity persists an entity, replacing any previous version.
func (s *Store) PutEntity(ctx context.Context, e *inventory.Entity) error {
	attrs, err := json.Marshal(e.Attrs)
	if err != nil {
		return fmt.Errorf("procession/postgres: marshal attrs: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO procession_entities
			(id, kind, name, lifecycle, process_id, attrs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			name = EXCLUDED.name,
			lifecycle = EXCLUDED.lifecycle,
			attrs = EXCLUDED.attrs,
			updated_at = EXCLUDED.updated_at`,
		e.ID.String(), e.Kind, e.Name, string(e.Lifecycle), e.ProcessID.String(),
		attrs, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("procession/postgres: put entity: %w", err)
	}
	return nil
}

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, entityID id.EntityID) (*inventory.Entity, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, kind, name, lifecycle, process_id, attrs, created_at, updated_at
		FROM procession_entities WHERE id = $1`,
		entityID.String())

	ent, err := scanEntity(row)
	if err != nil {
		if isNoRows(err) {
			return nil, procession.ErrEntityNotFound
		}
		return nil, fmt.Errorf("procession/postgres: get entity: %w", err)
	}
	return ent, nil
}

// ListEntities returns entities matching the given options.
func (s *Store) ListEntities(ctx context.Context, opts inventory.ListOpts) ([]*inventory.Entity, error) {
	query := `
		SELECT id, kind, name, lifecycle, process_id, attrs, created_at, updated_at
		FROM procession_entities`
	var (
		conds []string
		args  []any
	)
	if opts.Kind != "" {
		args = append(args, opts.Kind)
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if opts.Lifecycle != "" {
		args = append(args, string(opts.Lifecycle))
		conds = append(conds, fmt.Sprintf("lifecycle = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("procession/postgres: list entities: %w", err)
	}
	defer rows.Close()

	var result []*inventory.Entity
	for rows.Next() {
		ent, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("procession/postgres: list entities: %w", err)
		}
		result = append(result, ent)
	}
	return result, rows.Err()
}

// scanEntity reads one entity row.
func scanEntity(row pgx.Row) (*inventory.Entity, error) {
	var (
		rawID, kind, name, lc, rawProcessID string
		createdAt, updatedAt                time.Time
		attrs                               []byte
	)
	if err := row.Scan(&rawID, &kind, &name, &lc, &rawProcessID, &attrs, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	parsedID, err := id.ParseEntityID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse entity id %q: %w", rawID, err)
	}
	parsedProcessID, err := id.ParseProcessID(rawProcessID)
	if err != nil {
		return nil, fmt.Errorf("parse process id %q: %w", rawProcessID, err)
	}
	var fields procession.Fields
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &fields); err != nil {
			return nil, fmt.Errorf("unmarshal attrs: %w", err)
		}
	}

	return &inventory.Entity{
		Entity: procession.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:        parsedID,
		Kind:      kind,
		Name:      name,
		Lifecycle: lifecycle.Status(lc),
		ProcessID: parsedProcessID,
		Attrs:     fields,
	}, nil
}
