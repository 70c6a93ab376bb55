package helper

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound marks a referenced entity, document or chunk as absent.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists marks a uniqueness violation on entity_id.
	ErrAlreadyExists = errors.New("already exists")
	// ErrValidation marks malformed input rejected before any store mutation.
	ErrValidation = errors.New("validation failed")
	// ErrStoreUnavailable marks a connection or transport failure of a backing store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDegraded marks a non-fatal feature failure, e.g. an unreachable summarizer.
	ErrDegraded = errors.New("degraded feature")
)

// NewError wraps err with the name of the operation that failed.
func NewError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// NewValidationError returns an ErrValidation carrying the reason.
func NewValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// StoreError is the user-visible failure of a multi-store operation.
type StoreError struct {
	Op       string
	EntityID string
	Store    string
	Err      error
}

// NewStoreError wraps err with the operation, entity and store that failed.
func NewStoreError(op, entityID, store string, err error) *StoreError {
	return &StoreError{Op: op, EntityID: entityID, Store: store, Err: err}
}

func (e *StoreError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.EntityID != "" {
		b.WriteString(" ")
		b.WriteString(e.EntityID)
	}
	if e.Store != "" {
		b.WriteString(" (")
		b.WriteString(e.Store)
		b.WriteString(" store)")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// PartialFailureError reports the entities of a batch that failed.
// The batch result slice is always returned alongside it.
type PartialFailureError struct {
	Failed map[string]string
	Total  int
}

func (e *PartialFailureError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("%d of %d entities failed: %s", len(e.Failed), e.Total, strings.Join(ids, ", "))
}

// DegradedFeatureWarning describes a feature that failed without aborting the operation.
type DegradedFeatureWarning struct {
	Feature string
	Err     error
}

func (w *DegradedFeatureWarning) Error() string {
	return fmt.Sprintf("%s: %s unavailable: %v", ErrDegraded, w.Feature, w.Err)
}

func (w *DegradedFeatureWarning) Unwrap() []error {
	return []error{ErrDegraded, w.Err}
}
