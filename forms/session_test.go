package forms_test

import (
	"testing"

	"github.com/xraph/procession/forms"
)

func orgSchema() *forms.Schema {
	return &forms.Schema{
		ID: "page-a",
		Fields: []forms.Field{
			{Name: "organisation", Kind: forms.KindString, Required: true},
		},
	}
}

func TestSessionRejectAndRePresent(t *testing.T) {
	s := forms.NewSession(orgSchema(), nil)

	sub := s.Accept(map[string]string{"organisation": ""})
	if sub.Accepted() {
		t.Fatal("empty required field should be rejected")
	}
	if sub.Errors["organisation"] != "required" {
		t.Errorf("error = %q, want %q", sub.Errors["organisation"], "required")
	}

	// Re-presenting yields the same schema annotated with the errors.
	prompt := s.Present()
	if prompt.ID != "page-a" {
		t.Errorf("re-presented schema = %q, want page-a", prompt.ID)
	}
	if prompt.Errors["organisation"] != "required" {
		t.Error("re-presented schema should carry validation errors")
	}

	// A corrected submission clears the annotation.
	sub = s.Accept(map[string]string{"organisation": "ORG1"})
	if !sub.Accepted() {
		t.Fatalf("corrected submission rejected: %v", sub.Errors)
	}
	if sub.Values["organisation"] != "ORG1" {
		t.Errorf("value = %v, want ORG1", sub.Values["organisation"])
	}
	if s.Present().Errors != nil {
		t.Error("accepted submission should clear schema annotations")
	}
}

func TestSessionValidationDeterministic(t *testing.T) {
	schema := &forms.Schema{
		ID: "p",
		Fields: []forms.Field{
			{Name: "count", Kind: forms.KindInt, Required: true},
			{Name: "enabled", Kind: forms.KindBool},
		},
	}
	raw := map[string]string{"count": "oops", "enabled": "yes-ish"}

	first := forms.DefaultPolicy()
	_, errs1 := first.Validate(schema, raw)
	_, errs2 := first.Validate(schema, raw)
	if len(errs1) != 2 || len(errs2) != 2 {
		t.Fatalf("error counts = %d, %d; want 2, 2", len(errs1), len(errs2))
	}
	for k, v := range errs1 {
		if errs2[k] != v {
			t.Errorf("errors differ across runs for %q: %q vs %q", k, v, errs2[k])
		}
	}
}

func TestPolicyCoercion(t *testing.T) {
	schema := &forms.Schema{
		ID: "p",
		Fields: []forms.Field{
			{Name: "speed", Kind: forms.KindInt, Required: true},
			{Name: "redundant", Kind: forms.KindBool},
			{Name: "remark", Kind: forms.KindString},
		},
	}

	values, errs := forms.DefaultPolicy().Validate(schema, map[string]string{
		"speed":     "1000",
		"redundant": "true",
		"remark":    "",
	})
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if values["speed"] != 1000 {
		t.Errorf("speed = %v (%T), want int 1000", values["speed"], values["speed"])
	}
	if values["redundant"] != true {
		t.Errorf("redundant = %v, want true", values["redundant"])
	}
	if v, ok := values["remark"]; !ok || v != "" {
		t.Errorf("remark = %v (present=%v), want empty string present", v, ok)
	}
}

func TestPolicyRejectsUnknownFields(t *testing.T) {
	_, errs := forms.DefaultPolicy().Validate(orgSchema(), map[string]string{
		"organisation": "ORG1",
		"surprise":     "x",
	})
	if errs["surprise"] != "unknown field" {
		t.Errorf("unknown field error = %q", errs["surprise"])
	}
}
