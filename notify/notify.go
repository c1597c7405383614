// Package notify delivers workflow completion notifications. The
// production deployments wire a mail or webhook notifier; LogNotifier
// covers development and tests.
package notify

import (
	"context"
	"log/slog"

	"github.com/xraph/procession"
	"github.com/xraph/procession/pipeline"
)

// Notifier delivers a named notification with the process state as its
// payload. Implementations should be idempotent per (name, state): a
// notification step can re-run after a crash between delivery and
// commit.
type Notifier interface {
	Notify(ctx context.Context, name string, state procession.Fields) error
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier over the given logger. A nil logger
// uses slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, name string, state procession.Fields) error {
	n.logger.InfoContext(ctx, "notification", "name", name, "state", state)
	return nil
}

// Step adapts a notifier into a pipeline step named "notify:<name>".
func Step(name string, n Notifier) pipeline.Step {
	return pipeline.Exec("notify:"+name, func(ctx context.Context, state procession.Fields) (procession.Fields, error) {
		if err := n.Notify(ctx, name, state); err != nil {
			return nil, err
		}
		return nil, nil
	})
}
