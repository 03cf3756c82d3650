package model

import (
	"bytes"
	"encoding/json"
)

type relationState uint8

const (
	notRequested relationState = iota
	absent
	present
)

// Relation is a hydrated one-to-one relation with three states: not
// requested (omitted from JSON), absent (JSON null) and present.
type Relation[T any] struct {
	state relationState
	value *T
}

// Present returns a populated relation.
func Present[T any](v T) Relation[T] {
	return Relation[T]{state: present, value: &v}
}

// Absent returns a requested relation with no related row.
func Absent[T any]() Relation[T] {
	return Relation[T]{state: absent}
}

// Requested reports whether population was requested.
func (r Relation[T]) Requested() bool { return r.state != notRequested }

// Value returns the related row, or nil when not requested or absent.
func (r Relation[T]) Value() *T { return r.value }

// IsZero reports the not-requested state; used by the omitzero tag.
func (r Relation[T]) IsZero() bool { return r.state == notRequested }

// MarshalJSON implements json.Marshaler.
func (r Relation[T]) MarshalJSON() ([]byte, error) {
	if r.state != present || r.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(r.value)
}

// UnmarshalJSON implements json.Unmarshaler. A key that is present marks the
// relation requested; null decodes as absent.
func (r *Relation[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = Absent[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err //nolint:wrapcheck // json error is descriptive
	}
	*r = Present(v)
	return nil
}
