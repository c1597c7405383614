package forms

import (
	"strconv"

	"github.com/xraph/procession"
)

// Policy validates and coerces a raw submission against a schema.
// Implementations must be pure and deterministic: the same
// (schema, raw) pair always yields the same result. Which fields are
// mandatory at which lifecycle stage is a per-workflow concern, so it
// lives behind this interface rather than in the engine.
type Policy interface {
	Validate(schema *Schema, raw map[string]string) (procession.Fields, ValidationErrors)
}

// RequiredPolicy is the default policy: it enforces the plain Required
// marker, coerces values by field kind, and rejects fields the schema
// does not declare.
type RequiredPolicy struct{}

// DefaultPolicy returns the policy used when a workflow supplies none.
func DefaultPolicy() Policy { return RequiredPolicy{} }

// Validate implements Policy.
func (RequiredPolicy) Validate(schema *Schema, raw map[string]string) (procession.Fields, ValidationErrors) {
	errs := make(ValidationErrors)
	values := make(procession.Fields, len(schema.Fields))

	declared := make(map[string]struct{}, len(schema.Fields))
	for _, f := range schema.Fields {
		declared[f.Name] = struct{}{}
	}
	for name := range raw {
		if _, ok := declared[name]; !ok {
			errs[name] = "unknown field"
		}
	}

	for _, f := range schema.Fields {
		v, present := raw[f.Name]
		if f.Required && v == "" {
			errs[f.Name] = "required"
			continue
		}

		switch f.Kind {
		case KindString:
			// Empty optional strings are part of the record (a field can
			// legitimately be collected as "").
			if present || f.Required {
				values[f.Name] = v
			}
		case KindInt:
			if v == "" {
				continue
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				errs[f.Name] = "must be an integer"
				continue
			}
			values[f.Name] = n
		case KindBool:
			if v == "" {
				continue
			}
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs[f.Name] = "must be a boolean"
				continue
			}
			values[f.Name] = b
		default:
			errs[f.Name] = "unsupported field kind"
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return values, nil
}
