package rag

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrProvider      = errors.New("provider error")
	ErrIndexing      = errors.New("indexing error")
	ErrNotFound      = errors.New("not found")
	ErrConfiguration = errors.New("configuration error")
	ErrDuplicate     = errors.New("duplicate detected")
)

// FieldError is a validation failure tied to a named input field.
type FieldError struct {
	Field  string
	Reason string
}

func NewFieldError(field, reason string) *FieldError {
	return &FieldError{Field: field, Reason: reason}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrValidation }

// ProviderError reports a backend call that failed after the retry policy gave up.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() []error { return []error{ErrProvider, e.Err} }

// ItemError pins a failure to one element of a batch call.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// MissingCollection is returned by vector indexes when a project has no collection yet.
func MissingCollection(projectID string) error {
	return fmt.Errorf("%w: collection %s does not exist", ErrIndexing, CollectionName(projectID))
}

// DimensionMismatch reports an existing collection created with another dimension.
func DimensionMismatch(projectID string, have, want int) error {
	return fmt.Errorf("%w: collection %s has dimension %d, expected %d",
		ErrConfiguration, CollectionName(projectID), have, want)
}
