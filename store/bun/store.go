// Package bunstore implements store.Store on the Bun ORM with the
// PostgreSQL dialect, for applications that already carry a *bun.DB
// and want procession tables managed alongside their own models.
package bunstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/xraph/procession"
	"github.com/xraph/procession/event"
	"github.com/xraph/procession/forms"
	"github.com/xraph/procession/inventory"
	"github.com/xraph/procession/process"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ forms.SessionStore = (*Store)(nil)
	_ process.Store      = (*Store)(nil)
	_ event.Store        = (*Store)(nil)
	_ inventory.Store    = (*Store)(nil)
)

// Store is a Bun ORM implementation of store.Store. The caller owns the
// *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a new Bun store. The caller owns the db lifecycle — the
// Store will not close it on Close().
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate creates the tables and indexes from the Bun models.
// Statements are idempotent, so Migrate is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	models := []any{
		(*sessionModel)(nil),
		(*processModel)(nil),
		(*outcomeModel)(nil),
		(*eventModel)(nil),
		(*entityModel)(nil),
	}
	for _, m := range models {
		if _, err := s.db.NewCreateTable().
			Model(m).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("procession/bun: %w: %v", procession.ErrMigrationFailed, err)
		}
	}

	indexes := []*bun.CreateIndexQuery{
		s.db.NewCreateIndex().
			Model((*processModel)(nil)).
			Index("idx_procession_processes_run_state").
			Column("run_state"),
		s.db.NewCreateIndex().
			Model((*processModel)(nil)).
			Index("idx_procession_processes_workflow").
			Column("workflow"),
		s.db.NewCreateIndex().
			Model((*outcomeModel)(nil)).
			Index("idx_procession_outcomes_triple").
			Unique().
			Column("process_id", "step_name", "status"),
		s.db.NewCreateIndex().
			Model((*eventModel)(nil)).
			Index("idx_procession_events_pending").
			Column("name", "acked", "created_at"),
		s.db.NewCreateIndex().
			Model((*entityModel)(nil)).
			Index("idx_procession_entities_kind").
			Column("kind", "lifecycle"),
	}
	for _, q := range indexes {
		if _, err := q.IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("procession/bun: %w: %v", procession.ErrMigrationFailed, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error { return nil }
