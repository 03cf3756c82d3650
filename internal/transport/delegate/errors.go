package delegate

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/catalogq/internal/domain"
)

// Error describes a failed delegate call. It matches domain.ErrDelegateUnavailable
// and the underlying cause with errors.Is.
type Error struct {
	Op       string
	Kind     domain.Kind
	Status   int // last HTTP status, 0 when no response was received
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("delegate %s", e.Op)
	if e.Kind != "" {
		msg += " " + string(e.Kind)
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrDelegateUnavailable}
	}
	return []error{domain.ErrDelegateUnavailable, e.Err}
}

// Timeout reports whether the call ran out of time.
func (e *Error) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded) || errors.Is(e.Err, errAttemptTimeout)
}

var (
	errAttemptTimeout = errors.New("attempt timed out")
	errStatus         = errors.New("unexpected status")
	errProtocol       = errors.New("malformed response")
)
