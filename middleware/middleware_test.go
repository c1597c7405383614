package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xraph/procession"
	"github.com/xraph/procession/middleware"
)

func passThrough(ctx context.Context, state procession.Fields) (procession.Fields, error) {
	out := state.Clone()
	out["ran"] = true
	return out, nil
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) middleware.Middleware {
		return func(ctx context.Context, step string, state procession.Fields, next middleware.Handler) (procession.Fields, error) {
			order = append(order, name+">")
			out, err := next(ctx, state)
			order = append(order, "<"+name)
			return out, err
		}
	}

	fn := middleware.Wrap("allocate", passThrough, mark("outer"), mark("inner"))
	out, err := fn(context.Background(), procession.Fields{})
	if err != nil {
		t.Fatal(err)
	}
	if out["ran"] != true {
		t.Error("handler did not run")
	}

	want := []string{"outer>", "inner>", "<inner", "<outer"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRecoverConvertsPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	fn := middleware.Wrap("allocate",
		func(ctx context.Context, state procession.Fields) (procession.Fields, error) {
			panic("boom")
		},
		middleware.Recover(logger))

	out, err := fn(context.Background(), procession.Fields{})
	if err == nil || !strings.Contains(err.Error(), "panic in step allocate") {
		t.Fatalf("err = %v", err)
	}
	if out != nil {
		t.Errorf("out = %v, want nil", out)
	}
	if !strings.Contains(buf.String(), "step panicked") {
		t.Error("panic was not logged")
	}
}

func TestTimeoutCancelsSlowStep(t *testing.T) {
	fn := middleware.Wrap("allocate",
		func(ctx context.Context, state procession.Fields) (procession.Fields, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return state, nil
			}
		},
		middleware.Timeout(10*time.Millisecond))

	_, err := fn(context.Background(), procession.Fields{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestLoggingRecordsOutcome(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	fn := middleware.Wrap("allocate", passThrough, middleware.Logging(logger))
	if _, err := fn(context.Background(), procession.Fields{}); err != nil {
		t.Fatal(err)
	}
	logs := buf.String()
	if !strings.Contains(logs, "step started") || !strings.Contains(logs, "step completed") {
		t.Errorf("logs = %q", logs)
	}

	buf.Reset()
	failing := middleware.Wrap("allocate",
		func(ctx context.Context, state procession.Fields) (procession.Fields, error) {
			return nil, errors.New("no capacity")
		},
		middleware.Logging(logger))
	if _, err := failing(context.Background(), procession.Fields{}); err == nil {
		t.Fatal("want error")
	}
	if !strings.Contains(buf.String(), "step failed") {
		t.Errorf("logs = %q", buf.String())
	}
}

func TestMetricsAndTracingPassThrough(t *testing.T) {
	// With noop providers both middlewares must be transparent.
	fn := middleware.Wrap("allocate", passThrough,
		middleware.MetricsWithMeter(noop.NewMeterProvider().Meter("test")),
		middleware.TracingWithTracer(tracenoop.NewTracerProvider().Tracer("test")))

	out, err := fn(context.Background(), procession.Fields{"a": "b"})
	if err != nil {
		t.Fatal(err)
	}
	if out["ran"] != true || out["a"] != "b" {
		t.Errorf("out = %v", out)
	}
}

func TestStepBuildsNamedStep(t *testing.T) {
	st := middleware.Step("allocate", passThrough, middleware.Timeout(time.Second))
	if st.Name() != "allocate" {
		t.Errorf("name = %q", st.Name())
	}
}
