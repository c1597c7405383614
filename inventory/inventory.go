// Package inventory holds provisioned entities after their pipeline
// reaches terminal success. While a workflow is active the entity lives
// inside the process record's state; ownership transfers here exactly
// once, at completion.
package inventory

import (
	"context"

	"github.com/xraph/procession"
	"github.com/xraph/procession/id"
	"github.com/xraph/procession/lifecycle"
)

// Entity is a provisioned entity in the permanent inventory. Its
// lifecycle status mirrors the process record's at handoff time and is
// advanced by later workflows (terminate, for instance).
type Entity struct {
	procession.Entity

	ID        id.EntityID       `json:"id"`
	Kind      string            `json:"kind"`
	Name      string            `json:"name,omitempty"`
	Lifecycle lifecycle.Status  `json:"lifecycle"`
	ProcessID id.ProcessID      `json:"process_id"`
	Attrs     procession.Fields `json:"attrs,omitempty"`
}

// New creates an entity owned by the given process.
func New(kind, name string, processID id.ProcessID, attrs procession.Fields) *Entity {
	return &Entity{
		Entity:    procession.NewEntity(),
		ID:        id.NewEntityID(),
		Kind:      kind,
		Name:      name,
		Lifecycle: lifecycle.StatusActive,
		ProcessID: processID,
		Attrs:     attrs.Clone(),
	}
}

// ListOpts controls filtering for entity list queries.
type ListOpts struct {
	Limit  int
	Offset int
	// Kind filters by entity kind. Empty means all kinds.
	Kind string
	// Lifecycle filters by lifecycle status. Empty means all statuses.
	Lifecycle lifecycle.Status
}

// Store defines the persistence contract for the permanent inventory.
type Store interface {
	// PutEntity persists an entity, replacing any previous version.
	PutEntity(ctx context.Context, e *Entity) error

	// GetEntity retrieves an entity by ID.
	GetEntity(ctx context.Context, entityID id.EntityID) (*Entity, error)

	// ListEntities returns entities matching the given options.
	ListEntities(ctx context.Context, opts ListOpts) ([]*Entity, error)
}
