package sqldb

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Postgres renders PostgreSQL SQL. Arrays are native text[].
type Postgres struct{}

// Name implements Dialect.
func (Postgres) Name() string { return DriverPostgres }

// DriverName implements Dialect.
func (Postgres) DriverName() string { return "pgx" }

// Rebind rewrites "?" placeholders to $1..$n, leaving quoted literals and identifiers intact.
func (Postgres) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			b.WriteByte(c)
		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
		case c == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// ArrayAny implements Dialect.
func (Postgres) ArrayAny(col string, n int) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(%s) AS ae(v) WHERE lower(ae.v) IN (%s))", col, Placeholders(n))
}

// ArrayNonEmpty implements Dialect.
func (Postgres) ArrayNonEmpty(col string) string {
	return fmt.Sprintf("(%s IS NOT NULL AND cardinality(%s) > 0)", col, col)
}

// ArrayJSON implements Dialect.
func (Postgres) ArrayJSON(col string) string {
	return fmt.Sprintf("array_to_json(%s)::text", col)
}

// ILike implements Dialect.
func (Postgres) ILike(col string) string {
	return col + ` ILIKE ? ESCAPE '\'`
}

// Contains implements Dialect.
func (Postgres) Contains(expr string) string {
	return fmt.Sprintf("strpos(%s, ?) > 0", expr)
}

// WordSet implements Dialect.
func (Postgres) WordSet(col string) string {
	return fmt.Sprintf(`array_to_string(ARRAY(SELECT w FROM regexp_split_to_table(lower(btrim(%s)), '\s+') AS w WHERE w <> '' ORDER BY w COLLATE "C"), ' ')`, col)
}

// Host implements Dialect. Mirrors filter.Host step by step.
func (Postgres) Host(col string) string {
	s := fmt.Sprintf(`regexp_replace(lower(btrim(%s)), '^[a-z][a-z0-9+.-]*://', '')`, col)
	s = fmt.Sprintf(`regexp_replace(%s, '[/?#].*$', '')`, s)
	s = fmt.Sprintf(`regexp_replace(%s, '^[^@]*@', '')`, s)
	s = fmt.Sprintf(`regexp_replace(%s, '^www\.', '')`, s)
	return fmt.Sprintf(`split_part(%s, ':', 1)`, s)
}

// NumberParam implements Dialect. An untyped $n next to an integer column
// is inferred as integer and fractional values would be truncated.
func (Postgres) NumberParam() string { return "CAST(? AS double precision)" }

// TimeArg implements Dialect.
func (Postgres) TimeArg(t time.Time) any { return t.UTC() }
