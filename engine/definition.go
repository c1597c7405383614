package engine

import (
	"fmt"
	"sync"

	"github.com/xraph/procession"
	"github.com/xraph/procession/forms"
	"github.com/xraph/procession/inventory"
	"github.com/xraph/procession/pipeline"
	"github.com/xraph/procession/process"
)

// Definition describes one provisioning workflow: the wizard pages that
// collect its input record and the step plan that acts on it.
type Definition struct {
	// Name identifies the workflow. Process records and sessions carry it.
	Name string

	// Pages are the wizard page functions, in presentation order. A
	// workflow without pages skips collection: Begin is rejected, and the
	// process is started directly with an input record (terminate
	// workflows, typically).
	Pages []forms.PageFunc

	// Policy validates page submissions. Nil falls back to
	// forms.DefaultPolicy.
	Policy forms.Policy

	// Plan is the step pipeline executed once the input record is
	// complete.
	Plan *pipeline.Plan

	// Entity, when set, builds the inventory entity handed off after the
	// plan completes. Workflows that only mutate existing entities leave
	// it nil.
	Entity func(rec *process.Record) *inventory.Entity
}

func (d *Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("engine: workflow definition has no name")
	}
	if d.Plan == nil || d.Plan.Len() == 0 {
		return fmt.Errorf("engine: workflow %q has no plan", d.Name)
	}
	return nil
}

// Registry maps workflow names to definitions. Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds a definition. Re-registering a name is an error; plans
// are part of a workflow's identity and must not change under running
// processes.
func (r *Registry) Register(def *Definition) error {
	if err := def.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.defs[def.Name]; dup {
		return fmt.Errorf("engine: workflow %q already registered", def.Name)
	}
	r.defs[def.Name] = def
	return nil
}

// Lookup returns the definition for a workflow name.
func (r *Registry) Lookup(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("engine: workflow %q: %w", name, procession.ErrWorkflowNotFound)
	}
	return def, nil
}

// Names returns the registered workflow names in unspecified order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for name := range r.defs {
		out = append(out, name)
	}
	return out
}
