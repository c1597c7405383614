package forms

import (
	"fmt"
	"sort"

	"github.com/xraph/procession"
)

// PageFunc computes the schema for one wizard page from the fields
// accepted so far. Schemas are computed lazily so a page can depend on
// earlier answers. The function must be deterministic: no randomness,
// no wall-clock reads.
type PageFunc func(accumulated procession.Fields) *Schema

// SummarySchemaID is the schema ID of the generated confirmation page.
const SummarySchemaID = "summary"

// Wizard is the explicit state object behind the suspend/resume
// form-collection protocol: a page index plus the accumulated fields,
// advanced by a pure Submit function. There is no hidden coroutine
// state, so the whole protocol serializes across process restarts.
//
// Pages are presented strictly in declaration order, followed by a
// generated read-only summary page; accepting the summary completes the
// wizard and releases the merged input record.
type Wizard struct {
	pages   []PageFunc
	policy  Policy
	page    int
	acc     procession.Fields
	journal []map[string]string
	errs    ValidationErrors
	done    bool
}

// NewWizard creates a wizard over the given pages. A nil policy falls
// back to DefaultPolicy.
func NewWizard(policy Policy, pages ...PageFunc) *Wizard {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Wizard{
		pages:  pages,
		policy: policy,
		acc:    procession.Fields{},
	}
}

// PageIndex returns the zero-based index of the pending page. The index
// len(pages) denotes the summary page.
func (w *Wizard) PageIndex() int { return w.page }

// Completed reports whether the confirmation page has been accepted.
func (w *Wizard) Completed() bool { return w.done }

// Current returns the pending schema, annotated with the errors of the
// last rejected submission, or nil once the wizard has completed.
func (w *Wizard) Current() *Schema {
	if w.done {
		return nil
	}

	var schema *Schema
	if w.page < len(w.pages) {
		schema = w.pages[w.page](w.acc.Clone()).Clone()
	} else {
		schema = w.summary()
	}
	schema.Errors = w.errs
	return schema
}

// Submit validates raw fields against the pending schema. An accepted
// submission merges its values into the accumulated record and advances
// to the next page; a rejected one leaves the wizard state untouched so
// the same schema is re-presented with errors. Accepting the summary
// page completes the wizard.
func (w *Wizard) Submit(raw map[string]string) (*Submission, error) {
	if w.done {
		return nil, procession.ErrWizardCompleted
	}

	if w.page >= len(w.pages) {
		// Summary page: read-only, accepts unconditionally.
		w.errs = nil
		w.journal = append(w.journal, raw)
		w.done = true
		return &Submission{SchemaID: SummarySchemaID, Raw: raw, Values: procession.Fields{}}, nil
	}

	schema := w.pages[w.page](w.acc.Clone())
	values, errs := w.policy.Validate(schema, raw)
	if len(errs) > 0 {
		w.errs = errs
		return &Submission{SchemaID: schema.ID, Raw: raw, Errors: errs}, nil
	}

	w.errs = nil
	w.acc.Merge(values)
	w.journal = append(w.journal, raw)
	w.page++
	return &Submission{SchemaID: schema.ID, Raw: raw, Values: values}, nil
}

// Record returns a copy of the merged input record. It is only
// available once the wizard has completed; this is the sole handoff
// point to the pipeline.
func (w *Wizard) Record() (procession.Fields, error) {
	if !w.done {
		return nil, fmt.Errorf("wizard at page %d: record not available until completion", w.page)
	}
	return w.acc.Clone(), nil
}

// summary builds the read-only confirmation page from the accumulated
// fields, sorted by name for determinism.
func (w *Wizard) summary() *Schema {
	names := w.acc.Keys()
	sort.Strings(names)

	fields := make([]Field, 0, len(names))
	for _, name := range names {
		fields = append(fields, Field{
			Name:  name,
			Kind:  KindString,
			Value: w.acc[name],
		})
	}
	return &Schema{
		ID:       SummarySchemaID,
		Title:    "Confirm",
		Fields:   fields,
		ReadOnly: true,
	}
}

// Snapshot captures the accepted-submission journal. Replaying it
// through Restore reconstructs an identical wizard, merged record
// included, because validation is deterministic.
type Snapshot struct {
	PageIndex int                 `json:"page_index"`
	Journal   []map[string]string `json:"journal,omitempty"`
}

// Snapshot returns the wizard's durable state.
func (w *Wizard) Snapshot() *Snapshot {
	journal := make([]map[string]string, len(w.journal))
	copy(journal, w.journal)
	return &Snapshot{PageIndex: w.page, Journal: journal}
}

// Restore rebuilds a wizard by replaying a snapshot's journal in order.
// Every journaled submission must be accepted again; a rejection means
// the page definitions or policy no longer match the journal.
func Restore(policy Policy, snap *Snapshot, pages ...PageFunc) (*Wizard, error) {
	w := NewWizard(policy, pages...)
	if snap == nil {
		return w, nil
	}

	for i, raw := range snap.Journal {
		sub, err := w.Submit(raw)
		if err != nil {
			return nil, fmt.Errorf("replay submission %d: %w", i, err)
		}
		if !sub.Accepted() {
			return nil, fmt.Errorf("replay submission %d rejected: %w", i, sub.Errors)
		}
	}
	if w.page != snap.PageIndex {
		return nil, fmt.Errorf("replay ended at page %d, snapshot says %d", w.page, snap.PageIndex)
	}
	return w, nil
}
