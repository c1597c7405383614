package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xraph/procession"
	"github.com/xraph/procession/id"
	"github.com/xraph/procession/inventory"
	"github.com/xraph/procession/lifecycle"
)

// PutEntity persists an entity, replacing any previous version.
func (s *Store) PutEntity(ctx context.Context, e *inventory.Entity) error {
	attrs, err := json.Marshal(e.Attrs)
	if err != nil {
		return fmt.Errorf("procession/sqlite: marshal attrs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO procession_entities
			(id, kind, name, lifecycle, process_id, attrs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind,
			name = excluded.name,
			lifecycle = excluded.lifecycle,
			attrs = excluded.attrs,
			updated_at = excluded.updated_at`,
		e.ID.String(), e.Kind, e.Name, string(e.Lifecycle), e.ProcessID.String(),
		attrs, fmtTime(e.CreatedAt), fmtTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("procession/sqlite: put entity: %w", err)
	}
	return nil
}

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, entityID id.EntityID) (*inventory.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, name, lifecycle, process_id, attrs, created_at, updated_at
		FROM procession_entities WHERE id = ?`,
		entityID.String())

	ent, err := scanEntity(row.Scan)
	if err != nil {
		if isNoRows(err) {
			return nil, procession.ErrEntityNotFound
		}
		return nil, fmt.Errorf("procession/sqlite: get entity: %w", err)
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
		conds = append(conds, "kind = ?")
		args = append(args, opts.Kind)
	}
	if opts.Lifecycle != "" {
		conds = append(conds, "lifecycle = ?")
		args = append(args, string(opts.Lifecycle))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("procession/sqlite: list entities: %w", err)
	}
	defer rows.Close()

	var result []*inventory.Entity
	for rows.Next() {
		ent, err := scanEntity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("procession/sqlite: list entities: %w", err)
		}
		result = append(result, ent)
	}
	return result, rows.Err()
}

// scanEntity reads one entity row via the given scan function.
func scanEntity(scan func(dest ...any) error) (*inventory.Entity, error) {
	var (
		rawID, kind, name, lc, rawProcessID string
		createdAt, updatedAt                string
		attrs                               []byte
	)
	if err := scan(&rawID, &kind, &name, &lc, &rawProcessID, &attrs, &createdAt, &updatedAt); err != nil {
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
			CreatedAt: parseTime(createdAt),
			UpdatedAt: parseTime(updatedAt),
		},
		ID:        parsedID,
		Kind:      kind,
		Name:      name,
		Lifecycle: lifecycle.Status(lc),
		ProcessID: parsedProcessID,
		Attrs:     fields,
	}, nil
}
