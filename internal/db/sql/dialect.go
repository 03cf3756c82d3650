package sqldb

import "time"

// Dialect renders the backend-specific pieces of a query. Fragments use "?"
// placeholders; Rebind converts a finished statement to the native style.
type Dialect interface {
	Name() string
	// DriverName is the database/sql driver name.
	DriverName() string
	Rebind(query string) string

	// ArrayAny is true when some element of the array column, lower-cased,
	// equals one of n placeholders.
	ArrayAny(col string, n int) string
	// ArrayNonEmpty is true when the array column is non-NULL with at least one element.
	ArrayNonEmpty(col string) string
	// ArrayJSON reads an array column as JSON text.
	ArrayJSON(col string) string

	// ILike is a case-insensitive LIKE of col against one lower-cased pattern placeholder.
	ILike(col string) string
	// Contains is true when expr contains one placeholder as a substring.
	Contains(expr string) string
	// WordSet lower-cases col, sorts its whitespace-separated words and re-joins them.
	WordSet(col string) string
	// Host extracts the registrable host of a URL column.
	Host(col string) string

	// NumberParam is the placeholder fragment for a numeric bind argument.
	// Numbers are compared as double precision whatever the column type.
	NumberParam() string

	// TimeArg converts a timestamp into a bind argument comparable with stored values.
	TimeArg(t time.Time) any
}
