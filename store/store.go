// Package store defines the aggregate persistence interface. Each
// subsystem (forms, process, event, inventory) defines its own store
// interface; the composite Store composes them all, and a single
// backend implements every one. Backends: Postgres, Bun, SQLite,
// Redis, Mongo, and Memory.
package store

import (
	"context"

	"github.com/xraph/procession/event"
	"github.com/xraph/procession/forms"
	"github.com/xraph/procession/inventory"
	"github.com/xraph/procession/process"
)

// Store is the aggregate persistence interface. Each subsystem store is
// a composable interface; a single backend implements all of them.
type Store interface {
	forms.SessionStore
	process.Store
	event.Store
	inventory.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
