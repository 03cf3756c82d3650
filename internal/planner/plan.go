// Package planner compiles filter trees into JOIN-free SQL over one primary
// table. Conditions on related tables become correlated EXISTS subqueries.
package planner

import (
	sqldb "github.com/kailas-cloud/catalogq/internal/db/sql"
	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/filter"
	"github.com/kailas-cloud/catalogq/internal/domain/query"
	"github.com/kailas-cloud/catalogq/internal/domain/schema"
)

// Plan is a compiled statement in the dialect's native placeholder style.
type Plan struct {
	SQL  string
	Args []any
	// Refs are the related tables the filter touches.
	Refs schema.Refs
}

// Planner builds statements for one dialect. It is stateless and safe for concurrent use.
type Planner struct {
	d sqldb.Dialect
}

// New creates a planner for dialect d.
func New(d sqldb.Dialect) *Planner {
	return &Planner{d: d}
}

// Dialect returns the dialect statements are rendered in.
func (p *Planner) Dialect() sqldb.Dialect { return p.d }

// Select compiles an ordered, windowed key query: the primary keys of the
// matching rows in final order.
func (p *Planner) Select(kind domain.Kind, n filter.Node, o query.Order, limit, offset int) (Plan, error) {
	b, err := p.newBuilder(kind)
	if err != nil {
		return Plan{}, err
	}
	where, err := b.root(n)
	if err != nil {
		return Plan{}, err
	}
	orderBy, err := b.orderBy(o)
	if err != nil {
		return Plan{}, err
	}
	t := b.entity.Primary
	sql := "SELECT " + t.Alias + "." + t.Key + " FROM " + t.Name + " " + t.Alias +
		" WHERE " + where + " ORDER BY " + orderBy + " LIMIT ? OFFSET ?"
	b.args = append(b.args, limit, offset)
	return b.plan(sql), nil
}

// Count compiles an exact count of the matching rows.
func (p *Planner) Count(kind domain.Kind, n filter.Node) (Plan, error) {
	b, err := p.newBuilder(kind)
	if err != nil {
		return Plan{}, err
	}
	where, err := b.root(n)
	if err != nil {
		return Plan{}, err
	}
	t := b.entity.Primary
	return b.plan("SELECT COUNT(*) FROM " + t.Name + " " + t.Alias + " WHERE " + where), nil
}

// IDs compiles a key query in default order.
func (p *Planner) IDs(kind domain.Kind, n filter.Node, limit, offset int) (Plan, error) {
	return p.Select(kind, n, query.Order{}, limit, offset)
}

// Where compiles only the predicate, with "?" placeholders, for callers
// that embed it in their own statement.
func (p *Planner) Where(kind domain.Kind, n filter.Node) (string, []any, error) {
	b, err := p.newBuilder(kind)
	if err != nil {
		return "", nil, err
	}
	where, err := b.root(n)
	if err != nil {
		return "", nil, err
	}
	return where, b.args, nil
}

func (p *Planner) newBuilder(kind domain.Kind) (*builder, error) {
	e, err := schema.EntityFor(kind)
	if err != nil {
		return nil, err
	}
	return &builder{d: p.d, entity: e}, nil
}
