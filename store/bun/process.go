package bunstore

import (
	"context"
	"fmt"

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

	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return procession.ErrProcessAlreadyExists
		}
		return fmt.Errorf("procession/bun: create process: %w", err)
	}
	return nil
}

// GetProcess retrieves a process record by ID.
func (s *Store) GetProcess(ctx context.Context, processID id.ProcessID) (*process.Record, error) {
	m := new(processModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", processID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, procession.ErrProcessNotFound
		}
		return nil, fmt.Errorf("procession/bun: get process: %w", err)
	}
	return fromProcessModel(m)
}

// UpdateProcess persists changes to an existing process record.
func (s *Store) UpdateProcess(ctx context.Context, rec *process.Record) error {
	m, err := toProcessModel(rec)
	if err != nil {
		return err
	}

	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("procession/bun: update process: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return procession.ErrProcessNotFound
	}
	return nil
}

// ListProcesses returns process records matching the given options.
func (s *Store) ListProcesses(ctx context.Context, opts process.ListOpts) ([]*process.Record, error) {
	var models []processModel
	q := s.db.NewSelect().Model(&models)

	if opts.RunState != "" {
		q = q.Where("run_state = ?", string(opts.RunState))
	}
	if opts.Workflow != "" {
		q = q.Where("workflow = ?", opts.Workflow)
	}
	q = q.OrderExpr("started_at ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("procession/bun: list processes: %w", err)
	}

	recs := make([]*process.Record, 0, len(models))
	for i := range models {
		rec, convErr := fromProcessModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("procession/bun: list processes convert: %w", convErr)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// AppendOutcome records a step outcome, replacing an existing row for
// the same (process, step, status) triple.
func (s *Store) AppendOutcome(ctx context.Context, o *process.Outcome) error {
	m := toOutcomeModel(o)

	_, err := s.db.NewInsert().
		Model(m).
		On("CONFLICT (process_id, step_name, status) DO UPDATE").
		Set("error_detail = EXCLUDED.error_detail").
		Set("recorded_at = EXCLUDED.recorded_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("procession/bun: append outcome: %w", err)
	}
	return nil
}

// ListOutcomes returns a process's outcomes ordered by recording time.
func (s *Store) ListOutcomes(ctx context.Context, processID id.ProcessID) ([]*process.Outcome, error) {
	var models []outcomeModel
	err := s.db.NewSelect().
		Model(&models).
		Where("process_id = ?", processID.String()).
		OrderExpr("recorded_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("procession/bun: list outcomes: %w", err)
	}

	outcomes := make([]*process.Outcome, 0, len(models))
	for i := range models {
		o, convErr := fromOutcomeModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("procession/bun: list outcomes convert: %w", convErr)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}
