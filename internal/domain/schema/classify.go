package schema

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/filter"
)

// Field is a resolved field reference.
type Field struct {
	Name   string
	Table  *Table
	Column Column
	// Link is nil for primary-table columns.
	Link *Link
}

// Related reports whether the field lives outside the primary table.
func (f Field) Related() bool { return f.Link != nil }

// Resolve maps a field name to its table and column for queries over kind.
func Resolve(kind domain.Kind, name string) (Field, error) {
	e, err := EntityFor(kind)
	if err != nil {
		return Field{}, err
	}
	return e.Resolve(name)
}

// Resolve maps a field name to its table and column.
func (e *Entity) Resolve(name string) (Field, error) {
	for i := range e.Links {
		l := &e.Links[i]
		rest, ok := strings.CutPrefix(name, l.Prefix)
		if !ok {
			continue
		}
		col, ok := l.Table.Column(rest)
		if !ok {
			return Field{}, &domain.SpecificationError{Field: name, Reason: fmt.Sprintf("unknown field on %s", l.Table.Name)}
		}
		return Field{Name: name, Table: l.Table, Column: col, Link: l}, nil
	}
	col, ok := e.Primary.Column(name)
	if !ok {
		return Field{}, &domain.SpecificationError{Field: name, Reason: fmt.Sprintf("unknown field on %s", e.Primary.Name)}
	}
	return Field{Name: name, Table: e.Primary, Column: col}, nil
}

// Refs is the set of related tables a filter references.
type Refs struct {
	Group            bool
	RecordEnrichment bool
	GroupEnrichment  bool
}

// Any reports whether any related table is referenced.
func (r Refs) Any() bool { return r.Group || r.RecordEnrichment || r.GroupEnrichment }

// Tables returns referenced table names in a fixed order.
func (r Refs) Tables() []string {
	var out []string
	if r.Group {
		out = append(out, TableGroups)
	}
	if r.RecordEnrichment {
		out = append(out, TableRecordEnrichments)
	}
	if r.GroupEnrichment {
		out = append(out, TableGroupEnrichments)
	}
	return out
}

// Mark adds table to the set.
func (r *Refs) Mark(table string) {
	switch table {
	case TableGroups:
		r.Group = true
	case TableRecordEnrichments:
		r.RecordEnrichment = true
	case TableGroupEnrichments:
		r.GroupEnrichment = true
	}
}

// Classify walks the tree once, resolving every field and checking every
// operator against the field's kind, and returns the related tables touched.
func Classify(kind domain.Kind, n filter.Node) (Refs, error) {
	e, err := EntityFor(kind)
	if err != nil {
		return Refs{}, err
	}
	var refs Refs
	err = filter.Walk(n, func(c filter.Condition) error {
		f, err := e.Resolve(c.Field())
		if err != nil {
			return err
		}
		if err := CheckOp(f, c.Op()); err != nil {
			return err
		}
		if f.Related() {
			refs.Mark(f.Table.Name)
		}
		return nil
	})
	if err != nil {
		return Refs{}, err
	}
	return refs, nil
}

// CheckOp rejects operators that the field's kind does not accept.
func CheckOp(f Field, op filter.Op) error {
	if !f.Column.Kind.Allows(op) {
		return domain.NewSpecError(f.Name, string(op), "operator not supported for %s fields", f.Column.Kind)
	}
	return nil
}

// ResolveSort resolves an ORDER BY field, rejecting non-scalar kinds.
func ResolveSort(kind domain.Kind, name string) (Field, error) {
	e, err := EntityFor(kind)
	if err != nil {
		return Field{}, err
	}
	return e.ResolveSort(name)
}

// ResolveSort resolves an ORDER BY field, rejecting non-scalar kinds.
func (e *Entity) ResolveSort(name string) (Field, error) {
	f, err := e.Resolve(name)
	if err != nil {
		return Field{}, err
	}
	if !f.Column.Kind.Sortable() {
		return Field{}, &domain.SpecificationError{Field: name, Reason: fmt.Sprintf("%s fields are not sortable", f.Column.Kind)}
	}
	return f, nil
}
