package procession

import "time"

// Config holds configuration for the engine.
type Config struct {
	// ResumeConcurrency is the maximum number of process records resumed
	// in parallel by ResumeAll. Distinct records share no mutable state,
	// so this bounds fan-out only.
	ResumeConcurrency int

	// JanitorSchedule is the cron expression for the background task that
	// re-drives suspended runs (e.g. "@every 1m").
	JanitorSchedule string

	// AwaitTimeout is the default wait applied to Await steps that do not
	// specify one. When the wait elapses without a matching event, the run
	// parks as suspended.
	AwaitTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ResumeConcurrency: 8,
		JanitorSchedule:   "@every 1m",
		AwaitTimeout:      30 * time.Second,
	}
}
