// Package optional provides a JSON field wrapper that keeps the difference
// between an absent key, an explicit null and a value.
package optional

import (
	"bytes"
	"encoding/json"
)

// Field is absent when Set is false. A present null has Set and Null true.
type Field[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// HasValue reports whether the field is present and not null.
func (f Field[T]) HasValue() bool { return f.Set && !f.Null }

// Ptr returns the value as a pointer, nil when absent or null.
func (f Field[T]) Ptr() *T {
	if !f.HasValue() {
		return nil
	}
	v := f.Value
	return &v
}

// UnmarshalJSON is only invoked by encoding/json when the key is present.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.Null = true
		var zero T
		f.Value = zero
		return nil
	}
	f.Null = false
	return json.Unmarshal(data, &f.Value)
}
