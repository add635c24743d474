package billing

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/diewo77/maritime-billing/validation"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrValidation        = errors.New("validation failed")
	ErrReferenceNotFound = errors.New("reference not found")
	ErrState             = errors.New("operation not allowed in current status")
	ErrTransition        = errors.New("status transition not allowed")
	ErrUniqueness        = errors.New("invoice number collision")
	ErrNotFound          = errors.New("not found")
)

// ValidationError carries every field violation of an input.
type ValidationError struct {
	Fields validation.Violations
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Fields[k])
	}
	return fmt.Sprintf("%v: %s", ErrValidation, strings.Join(parts, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError returns nil when v is empty.
func NewValidationError(v validation.Violations) error {
	if v.Empty() {
		return nil
	}
	return &ValidationError{Fields: v}
}

// Reference names one foreign identifier, e.g. {Kind: "ship", ID: 7}.
type Reference struct {
	Kind  string `json:"kind"`
	Field string `json:"field"`
	ID    uint   `json:"id"`
}

// ReferenceNotFoundError lists every reference that did not resolve.
type ReferenceNotFoundError struct {
	Missing []Reference
}

func (e *ReferenceNotFoundError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, r := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s %d (%s)", r.Kind, r.ID, r.Field))
	}
	return fmt.Sprintf("%v: %s", ErrReferenceNotFound, strings.Join(parts, ", "))
}

func (e *ReferenceNotFoundError) Is(target error) bool { return target == ErrReferenceNotFound }

// StateError reports an operation refused by the current status.
type StateError struct {
	Op     string
	Status Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%v: cannot %s invoice in status %s", ErrState, e.Op, e.Status)
}

func (e *StateError) Is(target error) bool { return target == ErrState }

// TransitionError reports a pair absent from the transition table.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: %s -> %s", ErrTransition, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrTransition }

// UniquenessError is returned once number assignment exhausted its retries.
type UniquenessError struct {
	Number   string
	Attempts int
}

func (e *UniquenessError) Error() string {
	return fmt.Sprintf("%v: %s after %d attempts", ErrUniqueness, e.Number, e.Attempts)
}

func (e *UniquenessError) Is(target error) bool { return target == ErrUniqueness }

// NotFoundError reports an id that does not resolve to an active record.
type NotFoundError struct {
	Entity string
	ID     uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d: %v", e.Entity, e.ID, ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
