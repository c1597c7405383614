package forms_test

import (
	"errors"
	"testing"

	"github.com/xraph/procession"
	"github.com/xraph/procession/forms"
)

// twoPages is the two-page wizard from the provisioning scenario:
// page A requires organisation, page B collects an optional ticket_id.
func twoPages() []forms.PageFunc {
	pageA := func(_ procession.Fields) *forms.Schema {
		return &forms.Schema{
			ID: "page-a",
			Fields: []forms.Field{
				{Name: "organisation", Kind: forms.KindString, Required: true},
			},
		}
	}
	pageB := func(_ procession.Fields) *forms.Schema {
		return &forms.Schema{
			ID: "page-b",
			Fields: []forms.Field{
				{Name: "ticket_id", Kind: forms.KindString},
			},
		}
	}
	return []forms.PageFunc{pageA, pageB}
}

// driveToCompletion submits the given page answers plus the summary
// confirmation, failing the test on any rejection.
func driveToCompletion(t *testing.T, w *forms.Wizard, answers []map[string]string) {
	t.Helper()
	for i, raw := range answers {
		sub, err := w.Submit(raw)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if !sub.Accepted() {
			t.Fatalf("submit %d rejected: %v", i, sub.Errors)
		}
	}
	if _, err := w.Submit(nil); err != nil { // confirmation page
		t.Fatalf("confirm: %v", err)
	}
}

func TestWizardScenario(t *testing.T) {
	w := forms.NewWizard(nil, twoPages()...)

	// Empty organisation is rejected; page A is re-presented.
	sub, err := w.Submit(map[string]string{"organisation": ""})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.Accepted() {
		t.Fatal("empty organisation should be rejected")
	}
	if sub.Errors["organisation"] != "required" {
		t.Errorf("error = %q, want required", sub.Errors["organisation"])
	}
	if cur := w.Current(); cur.ID != "page-a" || cur.Errors["organisation"] != "required" {
		t.Errorf("current = %q errors=%v, want annotated page-a", cur.ID, cur.Errors)
	}

	// Accepted A advances to B.
	if sub, err = w.Submit(map[string]string{"organisation": "ORG1"}); err != nil || !sub.Accepted() {
		t.Fatalf("page A: err=%v errors=%v", err, sub.Errors)
	}
	if w.Current().ID != "page-b" {
		t.Errorf("current = %q, want page-b", w.Current().ID)
	}

	// Empty ticket_id is accepted and part of the merged record.
	if sub, err = w.Submit(map[string]string{"ticket_id": ""}); err != nil || !sub.Accepted() {
		t.Fatalf("page B: err=%v errors=%v", err, sub.Errors)
	}

	// Summary page.
	cur := w.Current()
	if cur.ID != forms.SummarySchemaID || !cur.ReadOnly {
		t.Fatalf("expected read-only summary, got %q", cur.ID)
	}
	if _, err = w.Submit(nil); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !w.Completed() {
		t.Fatal("wizard should be completed")
	}

	record, err := w.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if record["organisation"] != "ORG1" {
		t.Errorf("organisation = %v, want ORG1", record["organisation"])
	}
	if v, ok := record["ticket_id"]; !ok || v != "" {
		t.Errorf("ticket_id = %v (present=%v), want empty string present", v, ok)
	}
}

func TestWizardRejectionDoesNotContaminate(t *testing.T) {
	w := forms.NewWizard(nil, twoPages()...)

	before := w.Snapshot()
	if _, err := w.Submit(map[string]string{"organisation": ""}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	after := w.Snapshot()

	if after.PageIndex != before.PageIndex {
		t.Error("rejected submission advanced the page index")
	}
	if len(after.Journal) != len(before.Journal) {
		t.Error("rejected submission was journaled")
	}
}

func TestWizardReplayDeterminism(t *testing.T) {
	answers := []map[string]string{
		{"organisation": "ORG1"},
		{"ticket_id": "TCK-7"},
	}

	first := forms.NewWizard(nil, twoPages()...)
	driveToCompletion(t, first, answers)
	want, err := first.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Replaying the same submissions from scratch yields the same record.
	second := forms.NewWizard(nil, twoPages()...)
	driveToCompletion(t, second, answers)
	got, err := second.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("record sizes differ: %d vs %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("record[%q] = %v, want %v", k, got[k], v)
		}
	}
}

func TestWizardSnapshotRestore(t *testing.T) {
	w := forms.NewWizard(nil, twoPages()...)
	if _, err := w.Submit(map[string]string{"organisation": "ORG1"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := w.Snapshot()
	restored, err := forms.Restore(nil, snap, twoPages()...)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.PageIndex() != 1 {
		t.Errorf("restored page = %d, want 1", restored.PageIndex())
	}
	if restored.Current().ID != "page-b" {
		t.Errorf("restored current = %q, want page-b", restored.Current().ID)
	}
}

func TestWizardLazySchemas(t *testing.T) {
	// Page two's field set depends on page one's answer.
	pageOne := func(_ procession.Fields) *forms.Schema {
		return &forms.Schema{ID: "p1", Fields: []forms.Field{
			{Name: "redundant", Kind: forms.KindBool, Required: true},
		}}
	}
	pageTwo := func(acc procession.Fields) *forms.Schema {
		fields := []forms.Field{{Name: "primary_port", Kind: forms.KindString, Required: true}}
		if acc["redundant"] == true {
			fields = append(fields, forms.Field{Name: "backup_port", Kind: forms.KindString, Required: true})
		}
		return &forms.Schema{ID: "p2", Fields: fields}
	}

	w := forms.NewWizard(nil, pageOne, pageTwo)
	if _, err := w.Submit(map[string]string{"redundant": "true"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := len(w.Current().Fields); got != 2 {
		t.Errorf("dependent page has %d fields, want 2", got)
	}
}

func TestWizardSubmitAfterCompletion(t *testing.T) {
	w := forms.NewWizard(nil, twoPages()...)
	driveToCompletion(t, w, []map[string]string{
		{"organisation": "ORG1"},
		{"ticket_id": ""},
	})

	if _, err := w.Submit(nil); !errors.Is(err, procession.ErrWizardCompleted) {
		t.Errorf("Submit after completion = %v, want ErrWizardCompleted", err)
	}
}
