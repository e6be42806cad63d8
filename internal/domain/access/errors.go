package access

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnauthenticated is returned when a core operation is reached without
	// a resolved principal. Callers are expected to reject such requests
	// earlier; reaching the core without one is a precondition violation.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden is an authorization denial on an otherwise well-formed write.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a referenced object does not exist or is
	// outside the caller's visible scope.
	ErrNotFound = errors.New("not found")

	// ErrMalformedTarget is returned when an authorization target cannot be
	// resolved to a controlling owner.
	ErrMalformedTarget = errors.New("malformed authorization target")
)

// Forbidden wraps ErrForbidden with a human readable reason.
func Forbidden(reason string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, reason)
}

// NotFound wraps ErrNotFound with the kind of object that was missing.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// ValidationError is a field-level business rule violation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors collects every field violation found in a payload.
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Fields returns the violations keyed by field name.
func (v ValidationErrors) Fields() map[string]string {
	out := make(map[string]string, len(v))
	for _, e := range v {
		out[e.Field] = e.Message
	}
	return out
}

// Has reports whether field has a violation.
func (v ValidationErrors) Has(field string) bool {
	for _, e := range v {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Add appends a violation for field.
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, &ValidationError{Field: field, Message: message})
}

// Err returns nil when there are no violations. Violations are sorted by
// field so the message is stable.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	sort.SliceStable(v, func(i, j int) bool { return v[i].Field < v[j].Field })
	return v
}

// InvalidFilterError reports a malformed exact-match filter value.
type InvalidFilterError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid filter %s=%q: %s", e.Field, e.Value, e.Reason)
}
