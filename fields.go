package procession

// Fields is the free-form mapping accumulated by wizards and pipeline
// steps. Keys are added or overwritten, never implicitly removed.
type Fields map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty map so
// callers can merge into the result unconditionally.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Merge copies every key from delta into f, overwriting existing keys.
func (f Fields) Merge(delta Fields) {
	for k, v := range delta {
		f[k] = v
	}
}

// Keys returns the field names in unspecified order.
func (f Fields) Keys() []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	return out
}
