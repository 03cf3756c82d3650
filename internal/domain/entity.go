package domain

import "fmt"

// Kind identifies which primary table a query runs against.
type Kind string

const (
	// KindRecord queries the records table.
	KindRecord Kind = "records"
	// KindGroup queries the groups table.
	KindGroup Kind = "groups"
)

// KeyPrefix is the default prefix for every cache key owned by catalogq.
const KeyPrefix = "catalogq:"

// IsValid reports whether k names a known entity kind.
func (k Kind) IsValid() bool {
	return k == KindRecord || k == KindGroup
}

// ParseKind converts a caller-supplied name into a Kind.
// Singular forms are accepted for convenience.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "records", "record":
		return KindRecord, nil
	case "groups", "group":
		return KindGroup, nil
	default:
		return "", &SpecificationError{Reason: fmt.Sprintf("unknown entity kind %q", s)}
	}
}
