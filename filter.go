package catalogq

import (
	"github.com/kailas-cloud/catalogq/internal/domain/filter"
)

// Filter is a node of a filter tree. Construction errors are kept and
// reported when the query runs.
type Filter struct {
	node filter.Node
	err  error
}

// Field builds conditions on one field. Related fields use dotted paths
// such as "group.industries" or "enrichment.timezone".
type Field struct {
	name string
}

// Where starts a condition on field.
func Where(field string) Field {
	return Field{name: field}
}

func (f Field) cond(op filter.Op, v any) Filter {
	c, err := filter.NewCondition(f.name, op, v)
	if err != nil {
		return Filter{err: err}
	}
	return Filter{node: c}
}

// Eq matches rows whose field equals v.
func (f Field) Eq(v any) Filter { return f.cond(filter.OpEq, v) }

// Neq matches rows whose field is absent or differs from v.
func (f Field) Neq(v any) Filter { return f.cond(filter.OpNeq, v) }

// Gt matches rows whose field is greater than v.
func (f Field) Gt(v any) Filter { return f.cond(filter.OpGt, v) }

// Gte matches rows whose field is at least v.
func (f Field) Gte(v any) Filter { return f.cond(filter.OpGte, v) }

// Lt matches rows whose field is less than v.
func (f Field) Lt(v any) Filter { return f.cond(filter.OpLt, v) }

// Lte matches rows whose field is at most v.
func (f Field) Lte(v any) Filter { return f.cond(filter.OpLte, v) }

// In matches rows whose field equals one of vs.
func (f Field) In(vs ...any) Filter { return f.cond(filter.OpIn, vs) }

// NotIn matches rows whose field is absent or equals none of vs.
func (f Field) NotIn(vs ...any) Filter { return f.cond(filter.OpNin, vs) }

// HasAny matches rows whose array field contains one of vs, case-insensitively.
func (f Field) HasAny(vs ...string) Filter { return f.cond(filter.OpArrayContains, vs) }

// HasNone matches rows whose array field contains none of vs.
func (f Field) HasNone(vs ...string) Filter { return f.cond(filter.OpArrayNotContains, vs) }

// Exists matches rows where the field is present and non-empty.
func (f Field) Exists() Filter { return f.cond(filter.OpExists, nil) }

// NotExists matches rows where the field is absent or empty.
func (f Field) NotExists() Filter { return f.cond(filter.OpNotExists, nil) }

// Contains matches a case-insensitive substring.
func (f Field) Contains(s string) Filter { return f.cond(filter.OpContains, s) }

// WordSet lower-cases and sorts the words of both s and the stored value,
// then matches when the normalised value contains normalised s as a
// substring. Stored "ceo global tech" matches "global ceo" but not
// "ceo tech".
func (f Field) WordSet(s string) Filter { return f.cond(filter.OpWordSet, s) }

// WordJumble matches rows containing every word of s in any order.
func (f Field) WordJumble(s string) Filter { return f.cond(filter.OpWordJumble, s) }

// Between matches a numeric range. A nil bound is open.
func (f Field) Between(lo, hi *float64) Filter {
	bounds := make(map[string]any, 2)
	if lo != nil {
		bounds["min"] = *lo
	}
	if hi != nil {
		bounds["max"] = *hi
	}
	return f.cond(filter.OpRange, bounds)
}

// AtLeast matches a numeric range with only a lower bound.
func (f Field) AtLeast(lo float64) Filter { return f.Between(&lo, nil) }

// AtMost matches a numeric range with only an upper bound.
func (f Field) AtMost(hi float64) Filter { return f.Between(nil, &hi) }

// Domain matches URL fields by registrable host.
func (f Field) Domain(host string) Filter { return f.cond(filter.OpDomain, host) }

// And matches rows satisfying every filter.
func And(fs ...Filter) Filter { return group(filter.And, fs) }

// Or matches rows satisfying at least one filter.
func Or(fs ...Filter) Filter { return group(filter.Or, fs) }

func group(comb filter.Combinator, fs []Filter) Filter {
	children := make([]filter.Node, 0, len(fs))
	for _, f := range fs {
		if f.err != nil {
			return f
		}
		if f.node != nil {
			children = append(children, f.node)
		}
	}
	g, err := filter.NewGroup(comb, children...)
	if err != nil {
		return Filter{err: err}
	}
	return Filter{node: g}
}

// ParseFilter decodes a JSON filter tree.
func ParseFilter(data []byte) Filter {
	n, err := filter.Decode(data)
	return Filter{node: n, err: err}
}

// MarshalJSON encodes the filter in its JSON wire shape.
func (f Filter) MarshalJSON() ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return filter.Encode(f.node) //nolint:wrapcheck // encoding a validated tree
}

// Err returns the first construction error, if any.
func (f Filter) Err() error { return f.err }
