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
	"github.com/xraph/procession/lifecycle"
	"github.com/xraph/procession/process"
)

// CreateProcess persists a new process record.
func (s *Store) CreateProcess(ctx context.Context, rec *process.Record) error {
	state, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("procession/postgres: marshal state: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO procession_processes
			(id, workflow, cursor, state, lifecycle, run_state, error,
			 started_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID.String(), rec.Workflow, rec.Cursor, state,
		string(rec.Lifecycle), string(rec.RunState), rec.Error,
		rec.StartedAt, rec.CompletedAt, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return procession.ErrProcessAlreadyExists
		}
		return fmt.Errorf("procession/postgres: create process: %w", err)
	}
	return nil
}

// GetProcess retrieves a process record by ID.
func (s *Store) GetProcess(ctx context.Context, processID id.ProcessID) (*process.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, workflow, cursor, state, lifecycle, run_state, error,
		       started_at, completed_at, created_at, updated_at
		FROM procession_processes WHERE id = $1`,
		processID.String())

	rec, err := scanProcess(row)
	if err != nil {
		if isNoRows(err) {
			return nil, procession.ErrProcessNotFound
		}
		return nil, fmt.Errorf("procession/postgres: get process: %w", err)
	}
	return rec, nil
}

// UpdateProcess persists changes to an existing process record.
func (s *Store) UpdateProcess(ctx context.Context, rec *process.Record) error {
	state, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("procession/postgres: marshal state: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE procession_processes SET
			cursor = $1, state = $2, lifecycle = $3, run_state = $4, error = $5,
			completed_at = $6, updated_at = $7
		WHERE id = $8`,
		rec.Cursor, state, string(rec.Lifecycle), string(rec.RunState), rec.Error,
		rec.CompletedAt, rec.UpdatedAt, rec.ID.String())
	if err != nil {
		return fmt.Errorf("procession/postgres: update process: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return procession.ErrProcessNotFound
	}
	return nil
}

// ListProcesses returns process records matching the given options.
func (s *Store) ListProcesses(ctx context.Context, opts process.ListOpts) ([]*process.Record, error) {
	query := `
		SELECT id, workflow, cursor, state, lifecycle, run_state, error,
		       started_at, completed_at, created_at, updated_at
		FROM procession_processes`
	var (
		conds []string
		args  []any
	)
	if opts.RunState != "" {
		args = append(args, string(opts.RunState))
		conds = append(conds, fmt.Sprintf("run_state = $%d", len(args)))
	}
	if opts.Workflow != "" {
		args = append(args, opts.Workflow)
		conds = append(conds, fmt.Sprintf("workflow = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at ASC"
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
		return nil, fmt.Errorf("procession/postgres: list processes: %w", err)
	}
	defer rows.Close()

	var result []*process.Record
	for rows.Next() {
		rec, err := scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("procession/postgres: list processes: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// AppendOutcome records a step outcome, replacing an existing row for
// the same (process, step, status) triple.
func (s *Store) AppendOutcome(ctx context.Context, o *process.Outcome) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO procession_outcomes
			(id, process_id, step_name, status, error_detail, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (process_id, step_name, status) DO UPDATE SET
			error_detail = EXCLUDED.error_detail,
			recorded_at = EXCLUDED.recorded_at`,
		o.ID.String(), o.ProcessID.String(), o.StepName,
		string(o.Status), o.ErrorDetail, o.RecordedAt)
	if err != nil {
		return fmt.Errorf("procession/postgres: append outcome: %w", err)
	}
	return nil
}

// ListOutcomes returns a process's outcomes ordered by recording time.
func (s *Store) ListOutcomes(ctx context.Context, processID id.ProcessID) ([]*process.Outcome, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, process_id, step_name, status, error_detail, recorded_at
		FROM procession_outcomes
		WHERE process_id = $1
		ORDER BY recorded_at ASC`,
		processID.String())
	if err != nil {
		return nil, fmt.Errorf("procession/postgres: list outcomes: %w", err)
	}
	defer rows.Close()

	var result []*process.Outcome
	for rows.Next() {
		var (
			rawID, rawProcessID, stepName, status, detail string
			recordedAt                                    time.Time
		)
		if err := rows.Scan(&rawID, &rawProcessID, &stepName, &status, &detail, &recordedAt); err != nil {
			return nil, fmt.Errorf("procession/postgres: list outcomes: %w", err)
		}
		parsedID, err := id.ParseOutcomeID(rawID)
		if err != nil {
			return nil, fmt.Errorf("procession/postgres: parse outcome id %q: %w", rawID, err)
		}
		parsedProcessID, err := id.ParseProcessID(rawProcessID)
		if err != nil {
			return nil, fmt.Errorf("procession/postgres: parse process id %q: %w", rawProcessID, err)
		}
		result = append(result, &process.Outcome{
			ID:          parsedID,
			ProcessID:   parsedProcessID,
			StepName:    stepName,
			Status:      process.OutcomeStatus(status),
			ErrorDetail: detail,
			RecordedAt:  recordedAt,
		})
	}
	return result, rows.Err()
}

// scanProcess reads one process row.
func scanProcess(row pgx.Row) (*process.Record, error) {
	var (
		rawID, workflow, lc, runState, errMsg string
		startedAt, createdAt, updatedAt       time.Time
		completedAt                           *time.Time
		cursor                                int
		state                                 []byte
	)
	if err := row.Scan(&rawID, &workflow, &cursor, &state, &lc, &runState, &errMsg,
		&startedAt, &completedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	parsedID, err := id.ParseProcessID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse process id %q: %w", rawID, err)
	}
	var fields procession.Fields
	if err := json.Unmarshal(state, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}

	return &process.Record{
		Entity: procession.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:          parsedID,
		Workflow:    workflow,
		Cursor:      cursor,
		State:       fields,
		Lifecycle:   lifecycle.Status(lc),
		RunState:    process.RunState(runState),
		Error:       errMsg,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
	}, nil
}
