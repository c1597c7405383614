package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/procession"
)

// Logging returns middleware that logs step start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, step string, state procession.Fields, next Handler) (procession.Fields, error) {
		logger.Info("step started", slog.String("step", step))

		start := time.Now()
		out, err := next(ctx, state)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("step failed",
				slog.String("step", step),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("step completed",
				slog.String("step", step),
				slog.Duration("elapsed", elapsed),
			)
		}

		return out, err
	}
}
