package pipeline

import (
	"fmt"
	"time"

	"github.com/xraph/procession/lifecycle"
)

// Plan is an immutable ordered list of steps.
type Plan struct {
	steps []Step
}

// Steps returns a copy of the plan's steps in declaration order.
func (p *Plan) Steps() []Step {
	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// Len returns the number of steps.
func (p *Plan) Len() int { return len(p.steps) }

// Names returns the step names in declaration order.
func (p *Plan) Names() []string {
	out := make([]string, len(p.steps))
	for i, s := range p.steps {
		out[i] = s.name
	}
	return out
}

// Builder assembles a plan fluently:
//
//	plan, err := pipeline.Begin().
//	    Transition(lifecycle.OpProvision).
//	    Step("construct", constructFn).
//	    Step("persist", persistFn).
//	    Await("circuit-up", 0).
//	    Transition(lifecycle.OpActivate).
//	    Step("notify", notifyFn).
//	    Build()
type Builder struct {
	steps []Step
}

// Begin starts a new plan builder.
func Begin() *Builder {
	return &Builder{}
}

// Step appends an ordinary step.
func (b *Builder) Step(name string, fn ExecFunc) *Builder {
	b.steps = append(b.steps, Exec(name, fn))
	return b
}

// Transition appends a lifecycle transition step.
func (b *Builder) Transition(op lifecycle.Operation) *Builder {
	b.steps = append(b.steps, Transition(op))
	return b
}

// Await appends an external-event wait step.
func (b *Builder) Await(event string, wait time.Duration) *Builder {
	b.steps = append(b.steps, Await(event, wait))
	return b
}

// Add appends pre-built steps (notification adapters, for instance).
func (b *Builder) Add(steps ...Step) *Builder {
	b.steps = append(b.steps, steps...)
	return b
}

// Build validates the assembled steps and returns the plan. Plans must
// be non-empty and step names unique: the name is the resume key in the
// outcome log.
func (b *Builder) Build() (*Plan, error) {
	if len(b.steps) == 0 {
		return nil, fmt.Errorf("pipeline: plan has no steps")
	}

	seen := make(map[string]struct{}, len(b.steps))
	for _, s := range b.steps {
		if s.name == "" {
			return nil, fmt.Errorf("pipeline: step with empty name")
		}
		if s.kind == kindExec && s.exec == nil {
			return nil, fmt.Errorf("pipeline: step %q has no function", s.name)
		}
		if _, dup := seen[s.name]; dup {
			return nil, fmt.Errorf("pipeline: duplicate step name %q", s.name)
		}
		seen[s.name] = struct{}{}
	}

	steps := make([]Step, len(b.steps))
	copy(steps, b.steps)
	return &Plan{steps: steps}, nil
}

// MustBuild is like Build but panics on error. Use for plans assembled
// from constants at package init.
func (b *Builder) MustBuild() *Plan {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}
