// Package forms implements the suspend/resume form-collection protocol:
// single-page input sessions with pluggable validation, and a restartable
// wizard that presents pages in declaration order, accumulates accepted
// fields, and hands off a merged input record once its confirmation page
// is accepted.
package forms

// FieldKind selects the coercion applied to a submitted raw value.
type FieldKind string

const (
	// KindString accepts any string, including the empty string.
	KindString FieldKind = "string"
	// KindInt coerces the raw value with strconv.Atoi.
	KindInt FieldKind = "int"
	// KindBool coerces the raw value with strconv.ParseBool.
	KindBool FieldKind = "bool"
)

// Field describes one input in a schema.
type Field struct {
	Name     string    `json:"name"`
	Label    string    `json:"label,omitempty"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required,omitempty"`
	// Value carries the current value on read-only schemas (summary pages).
	Value any `json:"value,omitempty"`
}

// Schema describes one form page presented to the external actor.
// Errors is populated only when a schema is re-presented after a
// rejected submission.
type Schema struct {
	ID       string           `json:"id"`
	Title    string           `json:"title,omitempty"`
	Fields   []Field          `json:"fields"`
	ReadOnly bool             `json:"read_only,omitempty"`
	Errors   ValidationErrors `json:"errors,omitempty"`
}

// Clone returns a deep-enough copy: the field slice is copied so
// annotations on the copy never leak back into page definitions.
func (s *Schema) Clone() *Schema {
	out := *s
	out.Fields = make([]Field, len(s.Fields))
	copy(out.Fields, s.Fields)
	if s.Errors != nil {
		out.Errors = make(ValidationErrors, len(s.Errors))
		for k, v := range s.Errors {
			out.Errors[k] = v
		}
	}
	return &out
}
