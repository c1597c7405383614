package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/procession"
)

// Recover returns middleware that recovers from panics in the handler
// chain. Panics are converted to errors and logged with a stack trace,
// so a panicking step fails its process instead of crashing the driver.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, step string, state procession.Fields, next Handler) (out procession.Fields, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("step panicked",
					slog.String("step", step),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				out = nil
				retErr = fmt.Errorf("panic in step %s: %v", step, r)
			}
		}()
		return next(ctx, state)
	}
}
