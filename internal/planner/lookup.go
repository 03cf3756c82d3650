package planner

import (
	"strings"

	sqldb "github.com/kailas-cloud/catalogq/internal/db/sql"
	"github.com/kailas-cloud/catalogq/internal/domain/schema"
)

// Lookup compiles a key-set fetch of every column of t, in declaration
// order, for rows whose key is in keys. Array columns are read as JSON text.
// Row order is unspecified; callers merge by key.
func (p *Planner) Lookup(t *schema.Table, keys []string) Plan {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		ref := t.Alias + "." + c.Name
		if c.Kind == schema.Array {
			ref = p.d.ArrayJSON(ref) + " AS " + c.Name
		}
		cols[i] = ref
	}
	sql := "SELECT " + strings.Join(cols, ", ") + " FROM " + t.Name + " " + t.Alias +
		" WHERE " + t.Alias + "." + t.Key + " IN (" + sqldb.Placeholders(len(keys)) + ")"
	return Plan{SQL: p.d.Rebind(sql), Args: sqldb.InArgs(keys)}
}
