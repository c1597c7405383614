package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// janitor periodically re-drives resumable process records: suspended
// runs whose callback event may have arrived, and runs left in running
// state by a crash. It runs in-process; deployments with multiple
// engine instances point them at the same store and rely on the
// executor's commit discipline for safety.
type janitor struct {
	eng  *Engine
	cron *cron.Cron
}

func newJanitor(eng *Engine) *janitor {
	return &janitor{eng: eng, cron: cron.New()}
}

// start schedules the sweep per the engine's JanitorSchedule.
func (j *janitor) start() error {
	schedule := j.eng.cfg.JanitorSchedule
	if schedule == "" {
		return nil
	}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return fmt.Errorf("engine: janitor schedule %q: %w", schedule, err)
	}
	j.cron.Start()
	j.eng.logger.Info("janitor started", slog.String("schedule", schedule))
	return nil
}

// stop halts the schedule and waits for an in-flight sweep to finish.
func (j *janitor) stop() {
	<-j.cron.Stop().Done()
}

func (j *janitor) sweep() {
	ctx := context.Background()
	if err := j.eng.ResumeAll(ctx); err != nil {
		j.eng.logger.Warn("janitor sweep", slog.String("error", err.Error()))
	}
}
