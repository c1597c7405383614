package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/procession"
	"github.com/xraph/procession/id"
	"github.com/xraph/procession/process"
)

// CreateProcess persists a new process record.
func (s *Store) CreateProcess(ctx context.Context, rec *process.Record) error {
	m, err := toProcessModel(rec)
	if err != nil {
		return err
	}

	if _, err := s.db.Collection(colProcesses).InsertOne(ctx, m); err != nil {
		if isDuplicateKey(err) {
			return procession.ErrProcessAlreadyExists
		}
		return fmt.Errorf("procession/mongo: create process: %w", err)
	}
	return nil
}

// GetProcess retrieves a process record by ID.
func (s *Store) GetProcess(ctx context.Context, processID id.ProcessID) (*process.Record, error) {
	var m processModel
	err := s.db.Collection(colProcesses).FindOne(ctx,
		bson.D{{Key: "_id", Value: processID.String()}}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, procession.ErrProcessNotFound
		}
		return nil, fmt.Errorf("procession/mongo: get process: %w", err)
	}
	return fromProcessModel(&m)
}

// UpdateProcess persists changes to an existing process record.
func (s *Store) UpdateProcess(ctx context.Context, rec *process.Record) error {
	m, err := toProcessModel(rec)
	if err != nil {
		return err
	}

	res, err := s.db.Collection(colProcesses).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: m.ID}}, m)
	if err != nil {
		return fmt.Errorf("procession/mongo: update process: %w", err)
	}
	if res.MatchedCount == 0 {
		return procession.ErrProcessNotFound
	}
	return nil
}

// ListProcesses returns process records matching the given options.
func (s *Store) ListProcesses(ctx context.Context, opts process.ListOpts) ([]*process.Record, error) {
	filter := bson.D{}
	if opts.RunState != "" {
		filter = append(filter, bson.E{Key: "run_state", Value: string(opts.RunState)})
	}
	if opts.Workflow != "" {
		filter = append(filter, bson.E{Key: "workflow", Value: opts.Workflow})
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "started_at", Value: 1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts = findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.db.Collection(colProcesses).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("procession/mongo: list processes: %w", err)
	}
	defer cur.Close(ctx)

	var result []*process.Record
	for cur.Next(ctx) {
		var m processModel
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("procession/mongo: list processes decode: %w", err)
		}
		rec, convErr := fromProcessModel(&m)
		if convErr != nil {
			return nil, convErr
		}
		result = append(result, rec)
	}
	return result, cur.Err()
}

// AppendOutcome records a step outcome, replacing an existing document
// for the same (process, step, status) triple.
func (s *Store) AppendOutcome(ctx context.Context, o *process.Outcome) error {
	m := toOutcomeModel(o)

	_, err := s.db.Collection(colOutcomes).ReplaceOne(ctx,
		bson.D{
			{Key: "process_id", Value: m.ProcessID},
			{Key: "step_name", Value: m.StepName},
			{Key: "status", Value: m.Status},
		},
		m,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("procession/mongo: append outcome: %w", err)
	}
	return nil
}

// ListOutcomes returns a process's outcomes ordered by recording time.
func (s *Store) ListOutcomes(ctx context.Context, processID id.ProcessID) ([]*process.Outcome, error) {
	cur, err := s.db.Collection(colOutcomes).Find(ctx,
		bson.D{{Key: "process_id", Value: processID.String()}},
		options.Find().SetSort(bson.D{{Key: "recorded_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("procession/mongo: list outcomes: %w", err)
	}
	defer cur.Close(ctx)

	var result []*process.Outcome
	for cur.Next(ctx) {
		var m outcomeModel
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("procession/mongo: list outcomes decode: %w", err)
		}
		o, convErr := fromOutcomeModel(&m)
		if convErr != nil {
			return nil, convErr
		}
		result = append(result, o)
	}
	return result, cur.Err()
}
