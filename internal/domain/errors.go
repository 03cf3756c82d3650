package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSpecification signals a caller error in the filter, order or page descriptor.
	ErrSpecification = errors.New("invalid specification")
	// ErrDelegateUnavailable signals a timeout, connection failure or non-success
	// response from the external search delegate.
	ErrDelegateUnavailable = errors.New("delegate unavailable")
	// ErrBackend signals a relational backend failure.
	ErrBackend = errors.New("backend error")
	// ErrServiceUnavailable signals that every execution path failed.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrCache signals a result cache failure. Never returned to callers.
	ErrCache = errors.New("cache error")
)

// SpecificationError wraps ErrSpecification with enough detail to fix the request.
type SpecificationError struct {
	Field  string
	Op     string
	Reason string
}

func (e *SpecificationError) Error() string {
	switch {
	case e.Field != "" && e.Op != "":
		return fmt.Sprintf("%s: field %q, operator %q: %s", ErrSpecification.Error(), e.Field, e.Op, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("%s: field %q: %s", ErrSpecification.Error(), e.Field, e.Reason)
	default:
		return fmt.Sprintf("%s: %s", ErrSpecification.Error(), e.Reason)
	}
}

func (e *SpecificationError) Unwrap() error { return ErrSpecification }

// NewSpecError creates a specification error for a field/operator pair.
func NewSpecError(field, op, format string, args ...any) error {
	return &SpecificationError{Field: field, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsSpecification reports whether err is a caller error.
func IsSpecification(err error) bool {
	return errors.Is(err, ErrSpecification)
}
