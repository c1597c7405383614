package forms

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xraph/procession"
)

// ValidationErrors maps field names to a user-correctable message.
// An empty set means the submission was accepted.
type ValidationErrors map[string]string

// Error implements error with a deterministic field ordering.
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "no validation errors"
	}
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, v[name]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Submission is the outcome of accepting raw fields against a schema.
// It is ephemeral; persistence is the caller's responsibility.
type Submission struct {
	SchemaID string            `json:"schema_id"`
	Raw      map[string]string `json:"raw"`
	// Values holds the coerced fields; populated only when accepted.
	Values procession.Fields `json:"values,omitempty"`
	Errors ValidationErrors  `json:"errors,omitempty"`
}

// Accepted reports whether validation produced no errors.
func (s *Submission) Accepted() bool { return len(s.Errors) == 0 }
