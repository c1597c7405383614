package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xraph/procession"
	"github.com/xraph/procession/id"
	"github.com/xraph/procession/lifecycle"
	"github.com/xraph/procession/process"
)

// CreateProcess persists a new process record.
func (s *Store) CreateProcess(ctx context.Context, rec *process.Record) error {
	state, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("procession/sqlite: marshal state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO procession_processes
			(id, workflow, cursor, state, lifecycle, run_state, error,
			 started_at, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Workflow, rec.Cursor, state,
		string(rec.Lifecycle), string(rec.RunState), rec.Error,
		fmtTime(rec.StartedAt), fmtTimePtr(rec.CompletedAt),
		fmtTime(rec.CreatedAt), fmtTime(rec.UpdatedAt))
	if err != nil {
		if isDuplicateKey(err) {
			return procession.ErrProcessAlreadyExists
		}
		return fmt.Errorf("procession/sqlite: create process: %w", err)
	}
	return nil
}

// GetProcess retrieves a process record by ID.
func (s *Store) GetProcess(ctx context.Context, processID id.ProcessID) (*process.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow, cursor, state, lifecycle, run_state, error,
		       started_at, completed_at, created_at, updated_at
		FROM procession_processes WHERE id = ?`,
		processID.String())

	rec, err := scanProcess(row.Scan)
	if err != nil {
		if isNoRows(err) {
			return nil, procession.ErrProcessNotFound
		}
		return nil, fmt.Errorf("procession/sqlite: get process: %w", err)
	}
	return rec, nil
}

// UpdateProcess persists changes to an existing process record.
func (s *Store) UpdateProcess(ctx context.Context, rec *process.Record) error {
	state, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("procession/sqlite: marshal state: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE procession_processes SET
			cursor = ?, state = ?, lifecycle = ?, run_state = ?, error = ?,
			completed_at = ?, updated_at = ?
		WHERE id = ?`,
		rec.Cursor, state, string(rec.Lifecycle), string(rec.RunState), rec.Error,
		fmtTimePtr(rec.CompletedAt), fmtTime(rec.UpdatedAt), rec.ID.String())
	if err != nil {
		return fmt.Errorf("procession/sqlite: update process: %w", err)
	}
	return affectedOr(res, procession.ErrProcessNotFound)
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
		conds = append(conds, "run_state = ?")
		args = append(args, string(opts.RunState))
	}
	if opts.Workflow != "" {
		conds = append(conds, "workflow = ?")
		args = append(args, opts.Workflow)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at ASC"
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
		return nil, fmt.Errorf("procession/sqlite: list processes: %w", err)
	}
	defer rows.Close()

	var result []*process.Record
	for rows.Next() {
		rec, err := scanProcess(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("procession/sqlite: list processes: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// AppendOutcome records a step outcome, replacing an existing row for
// the same (process, step, status) triple.
func (s *Store) AppendOutcome(ctx context.Context, o *process.Outcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO procession_outcomes
			(id, process_id, step_name, status, error_detail, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (process_id, step_name, status) DO UPDATE SET
			error_detail = excluded.error_detail,
			recorded_at = excluded.recorded_at`,
		o.ID.String(), o.ProcessID.String(), o.StepName,
		string(o.Status), o.ErrorDetail, fmtTime(o.RecordedAt))
	if err != nil {
		return fmt.Errorf("procession/sqlite: append outcome: %w", err)
	}
	return nil
}

// ListOutcomes returns a process's outcomes ordered by recording time.
func (s *Store) ListOutcomes(ctx context.Context, processID id.ProcessID) ([]*process.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, process_id, step_name, status, error_detail, recorded_at
		FROM procession_outcomes
		WHERE process_id = ?
		ORDER BY recorded_at ASC`,
		processID.String())
	if err != nil {
		return nil, fmt.Errorf("procession/sqlite: list outcomes: %w", err)
	}
	defer rows.Close()

	var result []*process.Outcome
	for rows.Next() {
		var (
			rawID, rawProcessID, stepName, status, detail, recordedAt string
		)
		if err := rows.Scan(&rawID, &rawProcessID, &stepName, &status, &detail, &recordedAt); err != nil {
			return nil, fmt.Errorf("procession/sqlite: list outcomes: %w", err)
		}
		parsedID, err := id.ParseOutcomeID(rawID)
		if err != nil {
			return nil, fmt.Errorf("procession/sqlite: parse outcome id %q: %w", rawID, err)
		}
		parsedProcessID, err := id.ParseProcessID(rawProcessID)
		if err != nil {
			return nil, fmt.Errorf("procession/sqlite: parse process id %q: %w", rawProcessID, err)
		}
		result = append(result, &process.Outcome{
			ID:          parsedID,
			ProcessID:   parsedProcessID,
			StepName:    stepName,
			Status:      process.OutcomeStatus(status),
			ErrorDetail: detail,
			RecordedAt:  parseTime(recordedAt),
		})
	}
	return result, rows.Err()
}

// scanProcess reads one process row via the given scan function.
func scanProcess(scan func(dest ...any) error) (*process.Record, error) {
	var (
		rawID, workflow, lc, runState, errMsg string
		startedAt, createdAt, updatedAt       string
		completedAt                           sql.NullString
		cursor                                int
		state                                 []byte
	)
	if err := scan(&rawID, &workflow, &cursor, &state, &lc, &runState, &errMsg,
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
			CreatedAt: parseTime(createdAt),
			UpdatedAt: parseTime(updatedAt),
		},
		ID:          parsedID,
		Workflow:    workflow,
		Cursor:      cursor,
		State:       fields,
		Lifecycle:   lifecycle.Status(lc),
		RunState:    process.RunState(runState),
		Error:       errMsg,
		StartedAt:   parseTime(startedAt),
		CompletedAt: parseTimePtr(completedAt),
	}, nil
}
