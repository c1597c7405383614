// Package mongo implements store.Store on MongoDB using the official
// v2 driver. Each subsystem gets its own collection; Migrate creates
// the supporting indexes.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/procession"
	"github.com/xraph/procession/event"
	"github.com/xraph/procession/forms"
	"github.com/xraph/procession/inventory"
	"github.com/xraph/procession/process"
)

// Collection name constants.
const (
	colSessions  = "procession_sessions"
	colProcesses = "procession_processes"
	colOutcomes  = "procession_outcomes"
	colEvents    = "procession_events"
	colEntities  = "procession_entities"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ forms.SessionStore = (*Store)(nil)
	_ process.Store      = (*Store)(nil)
	_ event.Store        = (*Store)(nil)
	_ inventory.Store    = (*Store)(nil)
)

// Store is a MongoDB implementation of store.Store. The caller owns the
// client lifecycle; Store never disconnects it.
type Store struct {
	db     *mongod.Database
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a new MongoDB store over the given database.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *mongo.Database for advanced usage.
func (s *Store) DB() *mongod.Database { return s.db }

// Migrate creates indexes for all procession collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("procession/mongo: %w: %s indexes: %v",
				procession.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error { return nil }

// ── helpers ──────────────────────────────────────────────────────

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicateKey checks if a MongoDB error is a duplicate key violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "E11000")
}

// sleepCtx sleeps for the given duration, or returns early if the
// context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colSessions: {
			{Keys: bson.D{{Key: "workflow", Value: 1}}},
		},
		colProcesses: {
			{Keys: bson.D{{Key: "run_state", Value: 1}}},
			{Keys: bson.D{{Key: "workflow", Value: 1}}},
			{Keys: bson.D{{Key: "started_at", Value: 1}}},
		},
		colOutcomes: {
			// Unique compound index collapses re-recorded (step, status)
			// pairs into one document.
			{
				Keys: bson.D{
					{Key: "process_id", Value: 1},
					{Key: "step_name", Value: 1},
					{Key: "status", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{
				{Key: "process_id", Value: 1},
				{Key: "recorded_at", Value: 1},
			}},
		},
		colEvents: {
			// Pending events index for subscribe.
			{Keys: bson.D{
				{Key: "name", Value: 1},
				{Key: "acked", Value: 1},
				{Key: "created_at", Value: 1},
			}},
		},
		colEntities: {
			{Keys: bson.D{
				{Key: "kind", Value: 1},
				{Key: "lifecycle", Value: 1},
			}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
	}
}
