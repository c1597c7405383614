package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/xraph/procession"
	"github.com/xraph/procession/id"
	"github.com/xraph/procession/lifecycle"
	"github.com/xraph/procession/process"
)

// CreateProcess persists a new process record.
func (s *Store) CreateProcess(ctx context.Context, rec *process.Record) error {
	pID := rec.ID.String()
	key := processKey(pID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("procession/redis: create process exists: %w", err)
	}
	if exists > 0 {
		return procession.ErrProcessAlreadyExists
	}

	m, err := recordToMap(rec)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, m)
	pipe.SAdd(ctx, processIDsKey, pID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("procession/redis: create process: %w", err)
	}
	return nil
}

// GetProcess retrieves a process record by ID.
func (s *Store) GetProcess(ctx context.Context, processID id.ProcessID) (*process.Record, error) {
	vals, err := s.client.HGetAll(ctx, processKey(processID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("procession/redis: get process: %w", err)
	}
	if len(vals) == 0 {
		return nil, procession.ErrProcessNotFound
	}
	return mapToRecord(vals)
}

// UpdateProcess persists changes to an existing process record.
func (s *Store) UpdateProcess(ctx context.Context, rec *process.Record) error {
	key := processKey(rec.ID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("procession/redis: update process exists: %w", err)
	}
	if exists == 0 {
		return procession.ErrProcessNotFound
	}

	m, err := recordToMap(rec)
	if err != nil {
		return err
	}
	if _, err := s.client.HSet(ctx, key, m).Result(); err != nil {
		return fmt.Errorf("procession/redis: update process: %w", err)
	}
	return nil
}

// ListProcesses returns process records matching the given options.
// Filtering happens client-side over the ID set.
func (s *Store) ListProcesses(ctx context.Context, opts process.ListOpts) ([]*process.Record, error) {
	ids, err := s.client.SMembers(ctx, processIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("procession/redis: list processes smembers: %w", err)
	}

	var recs []*process.Record
	for _, pID := range ids {
		vals, getErr := s.client.HGetAll(ctx, processKey(pID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		rec, convErr := mapToRecord(vals)
		if convErr != nil {
			continue
		}
		if opts.RunState != "" && rec.RunState != opts.RunState {
			continue
		}
		if opts.Workflow != "" && rec.Workflow != opts.Workflow {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].StartedAt.Before(recs[j].StartedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(recs) {
			return nil, nil
		}
		recs = recs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(recs) {
		recs = recs[:opts.Limit]
	}
	return recs, nil
}

// AppendOutcome records a step outcome, replacing an existing entry for
// the same (step, status) pair.
func (s *Store) AppendOutcome(ctx context.Context, o *process.Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("procession/redis: marshal outcome: %w", err)
	}

	field := o.StepName + "|" + string(o.Status)
	_, err = s.client.HSet(ctx, outcomesKey(o.ProcessID.String()), field, string(data)).Result()
	if err != nil {
		return fmt.Errorf("procession/redis: append outcome: %w", err)
	}
	return nil
}

// ListOutcomes returns a process's outcomes ordered by recording time.
func (s *Store) ListOutcomes(ctx context.Context, processID id.ProcessID) ([]*process.Outcome, error) {
	vals, err := s.client.HGetAll(ctx, outcomesKey(processID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("procession/redis: list outcomes: %w", err)
	}

	outcomes := make([]*process.Outcome, 0, len(vals))
	for _, raw := range vals {
		var o process.Outcome
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, fmt.Errorf("procession/redis: unmarshal outcome: %w", err)
		}
		outcomes = append(outcomes, &o)
	}
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].RecordedAt.Before(outcomes[j].RecordedAt)
	})
	return outcomes, nil
}

// ── helpers ──

func recordToMap(rec *process.Record) (map[string]interface{}, error) {
	state, err := json.Marshal(rec.State)
	if err != nil {
		return nil, fmt.Errorf("procession/redis: marshal state: %w", err)
	}

	m := map[string]interface{}{
		"id":         rec.ID.String(),
		"workflow":   rec.Workflow,
		"cursor":     strconv.Itoa(rec.Cursor),
		"state":      string(state),
		"lifecycle":  string(rec.Lifecycle),
		"run_state":  string(rec.RunState),
		"error":      rec.Error,
		"started_at": rec.StartedAt.Format(time.RFC3339Nano),
		"created_at": rec.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": rec.UpdatedAt.Format(time.RFC3339Nano),
	}
	if rec.CompletedAt != nil {
		m["completed_at"] = rec.CompletedAt.Format(time.RFC3339Nano)
	} else {
		m["completed_at"] = ""
	}
	return m, nil
}

func mapToRecord(m map[string]string) (*process.Record, error) {
	parsedID, err := id.ParseProcessID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("procession/redis: parse process id: %w", err)
	}
	var fields procession.Fields
	if err := json.Unmarshal([]byte(m["state"]), &fields); err != nil {
		return nil, fmt.Errorf("procession/redis: unmarshal state: %w", err)
	}
	cursor, _ := strconv.Atoi(m["cursor"])

	startedAt, _ := time.Parse(time.RFC3339Nano, m["started_at"])
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])

	rec := &process.Record{
		Entity: procession.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:        parsedID,
		Workflow:  m["workflow"],
		Cursor:    cursor,
		State:     fields,
		Lifecycle: lifecycle.Status(m["lifecycle"]),
		RunState:  process.RunState(m["run_state"]),
		Error:     m["error"],
		StartedAt: startedAt,
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v)
		rec.CompletedAt = &t
	}
	return rec, nil
}
