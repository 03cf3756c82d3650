package planner

import (
	"github.com/kailas-cloud/catalogq/internal/domain/query"
)

// DefaultOrderField is the sort column used when none is requested.
const DefaultOrderField = "created_at"

// orderBy renders the ORDER BY clause. NULLs sort last in both directions
// and the primary key breaks ties so windows never overlap.
func (b *builder) orderBy(o query.Order) (string, error) {
	p := b.entity.Primary
	dir := " ASC"
	if o.IsDefault() || o.Descending() {
		dir = " DESC"
	}
	expr := p.Alias + "." + DefaultOrderField
	if !o.IsDefault() {
		f, err := b.entity.ResolveSort(o.Field)
		if err != nil {
			return "", err
		}
		if f.Related() {
			t := f.Table
			expr = "(SELECT " + t.Alias + "." + f.Column.Name + " FROM " + t.Name + " " + t.Alias +
				" WHERE " + t.Alias + "." + t.Key + " = " + p.Alias + "." + f.Link.ForeignKey + ")"
		} else {
			expr = p.Alias + "." + f.Column.Name
		}
	}
	return expr + dir + " NULLS LAST, " + p.Alias + "." + p.Key + dir, nil
}
