package forms

import "github.com/xraph/procession"

// Session manages one suspend/resume cycle of a single form page:
// present a schema, accept a submission, validate it, or re-prompt.
// It has no side effects beyond its returned values; persistence is
// the caller's responsibility.
type Session struct {
	schema *Schema
	policy Policy
	errs   ValidationErrors
}

// NewSession creates a session for one schema. A nil policy falls back
// to DefaultPolicy.
func NewSession(schema *Schema, policy Policy) *Session {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Session{schema: schema, policy: policy}
}

// Present returns the schema to render. After a rejected submission the
// returned copy is annotated with the validation errors so the actor can
// correct and resubmit.
func (s *Session) Present() *Schema {
	out := s.schema.Clone()
	out.Errors = s.errs
	return out
}

// Accept validates raw fields against the schema. The returned
// submission carries either the coerced values or the error set; on
// rejection the session re-presents the same schema annotated with the
// errors and never advances state. Read-only schemas accept
// unconditionally (they collect confirmation, not data).
func (s *Session) Accept(raw map[string]string) *Submission {
	if s.schema.ReadOnly {
		s.errs = nil
		return &Submission{SchemaID: s.schema.ID, Raw: raw, Values: procession.Fields{}}
	}

	values, errs := s.policy.Validate(s.schema, raw)
	s.errs = errs
	return &Submission{
		SchemaID: s.schema.ID,
		Raw:      raw,
		Values:   values,
		Errors:   errs,
	}
}
