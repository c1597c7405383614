package middleware

import (
	"context"
	"time"

	"github.com/xraph/procession"
)

// Timeout returns middleware that enforces a per-step execution
// deadline. When the deadline is exceeded the context is cancelled and
// the handler should return context.DeadlineExceeded, which the
// executor records as a failed outcome.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, step string, state procession.Fields, next Handler) (procession.Fields, error) {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx, state)
	}
}
