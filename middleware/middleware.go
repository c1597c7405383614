// Package middleware provides composable middleware for pipeline step
// execution. Middleware wraps a step's exec function synchronously and
// can modify execution (recover from panics, log, enforce deadlines,
// add tracing, etc.). It applies to exec steps only; transitions and
// awaits run inside the executor.
package middleware

import (
	"context"

	"github.com/xraph/procession"
	"github.com/xraph/procession/pipeline"
)

// Handler is the terminal function that executes step logic. It has the
// same shape as pipeline.ExecFunc.
type Handler func(ctx context.Context, state procession.Fields) (procession.Fields, error)

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the step name, the working state, and the next
// handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, step string, state procession.Fields, next Handler) (procession.Fields, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recovery, tracing) executes as:
//
//	logging → recovery → tracing → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, step string, state procession.Fields, next Handler) (procession.Fields, error) {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context, state procession.Fields) (procession.Fields, error) {
				return mw(ctx, step, state, prev)
			}
		}
		return h(ctx, state)
	}
}

// Wrap applies middleware to an exec function, producing a new exec
// function suitable for pipeline.Exec.
func Wrap(step string, fn pipeline.ExecFunc, mws ...Middleware) pipeline.ExecFunc {
	mw := Chain(mws...)
	return func(ctx context.Context, state procession.Fields) (procession.Fields, error) {
		return mw(ctx, step, state, Handler(fn))
	}
}

// Step builds a wrapped exec step in one call.
func Step(name string, fn pipeline.ExecFunc, mws ...Middleware) pipeline.Step {
	return pipeline.Exec(name, Wrap(name, fn, mws...))
}
