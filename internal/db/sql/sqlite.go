package sqldb

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"

	"github.com/kailas-cloud/catalogq/internal/domain/filter"
)

// SQLite scalar functions registered for every connection.
const (
	fnWordSet = "catalogq_wordset"
	fnDomain  = "catalogq_domain"
	// fnLower folds the whole of Unicode like strings.ToLower; the built-in
	// lower() only folds ASCII.
	fnLower = "catalogq_lower"
)

// SQLiteTimeLayout is the storage layout of timestamps in SQLite: RFC 3339
// in UTC without fractional seconds, so text comparison orders correctly.
const SQLiteTimeLayout = "2006-01-02T15:04:05Z"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(fnWordSet, 1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		s, ok := textArg(args[0])
		if !ok {
			return nil, nil
		}
		return filter.NormalizeWords(s), nil
	})
	sqlite.MustRegisterDeterministicScalarFunction(fnLower, 1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		s, ok := textArg(args[0])
		if !ok {
			return nil, nil
		}
		return strings.ToLower(s), nil
	})
	sqlite.MustRegisterDeterministicScalarFunction(fnDomain, 1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		s, ok := textArg(args[0])
		if !ok {
			return nil, nil
		}
		host, valid := filter.Host(s)
		if !valid {
			return nil, nil
		}
		return host, nil
	})
}

func textArg(v driver.Value) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	default:
		return "", false
	}
}

// SQLite renders SQLite SQL. Arrays are JSON text arrays.
type SQLite struct{}

// Name implements Dialect.
func (SQLite) Name() string { return DriverSQLite }

// DriverName implements Dialect.
func (SQLite) DriverName() string { return "sqlite" }

// Rebind implements Dialect; SQLite accepts "?" natively.
func (SQLite) Rebind(query string) string { return query }

// ArrayAny implements Dialect.
func (SQLite) ArrayAny(col string, n int) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) AS ae WHERE %s(ae.value) IN (%s))", col, fnLower, Placeholders(n))
}

// ArrayNonEmpty implements Dialect.
func (SQLite) ArrayNonEmpty(col string) string {
	return fmt.Sprintf("(%s IS NOT NULL AND json_array_length(%s) > 0)", col, col)
}

// ArrayJSON implements Dialect.
func (SQLite) ArrayJSON(col string) string { return col }

// ILike implements Dialect.
func (SQLite) ILike(col string) string {
	return fmt.Sprintf(`%s(%s) LIKE ? ESCAPE '\'`, fnLower, col)
}

// Contains implements Dialect.
func (SQLite) Contains(expr string) string {
	return fmt.Sprintf("instr(%s, ?) > 0", expr)
}

// WordSet implements Dialect.
func (SQLite) WordSet(col string) string {
	return fmt.Sprintf("%s(%s)", fnWordSet, col)
}

// Host implements Dialect.
func (SQLite) Host(col string) string {
	return fmt.Sprintf("%s(%s)", fnDomain, col)
}

// NumberParam implements Dialect.
func (SQLite) NumberParam() string { return "?" }

// TimeArg implements Dialect.
func (SQLite) TimeArg(t time.Time) any { return t.UTC().Format(SQLiteTimeLayout) }
