package planner

import (
	"fmt"
	"strings"

	sqldb "github.com/kailas-cloud/catalogq/internal/db/sql"
	"github.com/kailas-cloud/catalogq/internal/domain/filter"
	"github.com/kailas-cloud/catalogq/internal/domain/schema"
)

const (
	sqlTrue  = "1=1"
	sqlFalse = "1=0"
)

// builder accumulates one statement. Fragments are emitted in the order
// their placeholders appear so args stay aligned.
type builder struct {
	d      sqldb.Dialect
	entity *schema.Entity
	args   []any
	refs   schema.Refs
}

func (b *builder) plan(sql string) Plan {
	return Plan{SQL: b.d.Rebind(sql), Args: b.args, Refs: b.refs}
}

func (b *builder) root(n filter.Node) (string, error) {
	switch v := n.(type) {
	case nil:
		return sqlTrue, nil
	case filter.Group:
		return b.group(v)
	case filter.Condition:
		return b.group(filter.MustGroup(filter.And, v))
	default:
		return "", fmt.Errorf("planner: unsupported node %T", n)
	}
}

// group compiles one boolean node. Primary-table conditions become direct
// predicates; all conditions on one related table share a single EXISTS
// emitted where the first of them appears.
func (b *builder) group(g filter.Group) (string, error) {
	children := g.Children()
	fields := make([]schema.Field, len(children))
	byTable := make(map[string][]int)
	for i, ch := range children {
		c, ok := ch.(filter.Condition)
		if !ok {
			continue
		}
		f, err := b.entity.Resolve(c.Field())
		if err != nil {
			return "", err
		}
		if err := schema.CheckOp(f, c.Op()); err != nil {
			return "", err
		}
		fields[i] = f
		if f.Related() {
			byTable[f.Table.Name] = append(byTable[f.Table.Name], i)
		}
	}

	joiner := " AND "
	if g.Combinator() == filter.Or {
		joiner = " OR "
	}
	parts := make([]string, 0, len(children))
	emitted := make(map[string]bool)
	for i, ch := range children {
		switch v := ch.(type) {
		case filter.Group:
			sub, err := b.group(v)
			if err != nil {
				return "", err
			}
			parts = append(parts, "("+sub+")")
		case filter.Condition:
			f := fields[i]
			if !f.Related() {
				pred, err := b.predicate(b.entity.Primary.Alias+"."+f.Column.Name, f, v)
				if err != nil {
					return "", err
				}
				parts = append(parts, pred)
				continue
			}
			if emitted[f.Table.Name] {
				continue
			}
			emitted[f.Table.Name] = true
			ex, err := b.exists(*f.Link, joiner, children, fields, byTable[f.Table.Name])
			if err != nil {
				return "", err
			}
			parts = append(parts, ex)
		}
	}

	switch len(parts) {
	case 0:
		if g.Combinator() == filter.Or {
			return sqlFalse, nil
		}
		return sqlTrue, nil
	case 1:
		return parts[0], nil
	default:
		return strings.Join(parts, joiner), nil
	}
}

func (b *builder) exists(l schema.Link, joiner string, children []filter.Node, fields []schema.Field, idx []int) (string, error) {
	b.refs.Mark(l.Table.Name)
	t := l.Table
	preds := make([]string, 0, len(idx))
	for _, i := range idx {
		pred, err := b.predicate(t.Alias+"."+fields[i].Column.Name, fields[i], children[i].(filter.Condition))
		if err != nil {
			return "", err
		}
		preds = append(preds, pred)
	}
	p := b.entity.Primary
	return "EXISTS (SELECT 1 FROM " + t.Name + " " + t.Alias +
		" WHERE " + t.Alias + "." + t.Key + " = " + p.Alias + "." + l.ForeignKey +
		" AND (" + strings.Join(preds, joiner) + "))", nil
}
