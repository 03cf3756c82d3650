package filter

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kailas-cloud/catalogq/internal/domain"
)

// Limits on filter tree size.
const (
	MaxDepth      = 8
	MaxConditions = 256
	MaxListValues = 500
)

// Node is either a Condition or a Group. The set of implementations is closed.
type Node interface {
	isNode()
}

// Condition is a single field/operator/value clause.
type Condition struct {
	field  string
	op     Op
	scalar any // string | float64
	list   []any
	rng    *Range
}

func (Condition) isNode() {}

// Group combines child nodes with AND or OR.
type Group struct {
	comb     Combinator
	children []Node
}

func (Group) isNode() {}

// Range is an inclusive numeric interval. A nil bound is unbounded.
type Range struct {
	min *float64
	max *float64
}

// NewRange validates and creates a Range.
// At least one bound is required; negative bounds and min > max are rejected.
func NewRange(minV, maxV *float64) (Range, error) {
	if minV == nil && maxV == nil {
		return Range{}, fmt.Errorf("at least one range bound is required")
	}
	if minV != nil && (*minV < 0 || math.IsNaN(*minV)) {
		return Range{}, fmt.Errorf("range min must be a non-negative number, got %v", *minV)
	}
	if maxV != nil && (*maxV < 0 || math.IsNaN(*maxV)) {
		return Range{}, fmt.Errorf("range max must be a non-negative number, got %v", *maxV)
	}
	if minV != nil && maxV != nil && *minV > *maxV {
		return Range{}, fmt.Errorf("range min %v is greater than max %v", *minV, *maxV)
	}
	return Range{min: minV, max: maxV}, nil
}

// Min returns the inclusive lower bound.
func (r Range) Min() *float64 { return r.min }

// Max returns the inclusive upper bound.
func (r Range) Max() *float64 { return r.max }

// NewCondition validates and creates a Condition. Accepted Go values:
// string, bool-free numerics (int*, uint*, float*), time.Time (stored as
// RFC 3339), slices of those, []any from JSON decoding and Range.
func NewCondition(field string, op Op, value any) (Condition, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return Condition{}, domain.NewSpecError("", string(op), "field is required")
	}
	shape, ok := opShapes[op]
	if !ok {
		return Condition{}, domain.NewSpecError(field, string(op), "unknown operator")
	}

	c := Condition{field: field, op: op}
	switch shape {
	case shapeNone:
		// exists/not_exists carry no value; a boolean "true" is tolerated.
		if value != nil {
			if b, isBool := value.(bool); !isBool || !b {
				return Condition{}, domain.NewSpecError(field, string(op), "operator takes no value")
			}
		}
	case shapeScalar:
		s, err := normalizeScalar(value)
		if err != nil {
			return Condition{}, domain.NewSpecError(field, string(op), "%v", err)
		}
		c.scalar = s
	case shapeText:
		s, isStr := value.(string)
		if !isStr {
			return Condition{}, domain.NewSpecError(field, string(op), "value must be a string")
		}
		c.scalar = s
	case shapeList, shapeTextList:
		list, err := normalizeList(value, shape == shapeTextList)
		if err != nil {
			return Condition{}, domain.NewSpecError(field, string(op), "%v", err)
		}
		c.list = list
	case shapeRange:
		r, err := toRange(value)
		if err != nil {
			return Condition{}, domain.NewSpecError(field, string(op), "%v", err)
		}
		c.rng = &r
	}
	return c, nil
}

// MustCondition is NewCondition that panics on error. Intended for tests and static filters.
func MustCondition(field string, op Op, value any) Condition {
	c, err := NewCondition(field, op, value)
	if err != nil {
		panic(err)
	}
	return c
}

// Field returns the field name.
func (c Condition) Field() string { return c.field }

// Op returns the operator.
func (c Condition) Op() Op { return c.op }

// Scalar returns the single value (string or float64), nil for list/range/exists operators.
func (c Condition) Scalar() any { return c.scalar }

// Text returns the scalar value as a string.
func (c Condition) Text() string {
	s, _ := c.scalar.(string)
	return s
}

// List returns the value set for in/nin/array operators.
func (c Condition) List() []any { return c.list }

// Strings returns the value set as strings (array operators guarantee string values).
func (c Condition) Strings() []string {
	out := make([]string, 0, len(c.list))
	for _, v := range c.list {
		out = append(out, fmt.Sprint(v))
	}
	return out
}

// Range returns the range bounds for the range operator.
func (c Condition) Range() *Range { return c.rng }

// NewGroup validates and creates a Group. An empty AND matches everything,
// an empty OR matches nothing.
func NewGroup(comb Combinator, children ...Node) (Group, error) {
	if comb != And && comb != Or {
		return Group{}, &domain.SpecificationError{Reason: fmt.Sprintf("unknown combinator %q", comb)}
	}
	for i, ch := range children {
		if ch == nil {
			return Group{}, &domain.SpecificationError{Reason: fmt.Sprintf("%s child %d is empty", comb, i)}
		}
	}
	g := Group{comb: comb, children: append([]Node(nil), children...)}
	if err := checkLimits(g); err != nil {
		return Group{}, err
	}
	return g, nil
}

// MustGroup is NewGroup that panics on error.
func MustGroup(comb Combinator, children ...Node) Group {
	g, err := NewGroup(comb, children...)
	if err != nil {
		panic(err)
	}
	return g
}

// Combinator returns AND or OR.
func (g Group) Combinator() Combinator { return g.comb }

// Children returns a copy of the child nodes.
func (g Group) Children() []Node { return append([]Node(nil), g.children...) }

// Len returns the number of children.
func (g Group) Len() int { return len(g.children) }

// Walk calls fn for every Condition in the tree, depth-first, in order.
func Walk(n Node, fn func(Condition) error) error {
	switch v := n.(type) {
	case nil:
		return nil
	case Condition:
		return fn(v)
	case Group:
		for _, ch := range v.children {
			if err := Walk(ch, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Fields returns the distinct field names referenced by the tree, in first-seen order.
func Fields(n Node) []string {
	seen := make(map[string]bool)
	var out []string
	_ = Walk(n, func(c Condition) error {
		if !seen[c.field] {
			seen[c.field] = true
			out = append(out, c.field)
		}
		return nil
	})
	return out
}

func checkLimits(n Node) error {
	depth, count := measure(n, 1)
	if depth > MaxDepth {
		return &domain.SpecificationError{Reason: fmt.Sprintf("filter nesting too deep (max %d)", MaxDepth)}
	}
	if count > MaxConditions {
		return &domain.SpecificationError{Reason: fmt.Sprintf("too many conditions (max %d)", MaxConditions)}
	}
	return nil
}

func measure(n Node, level int) (depth, count int) {
	switch v := n.(type) {
	case Condition:
		return level, 1
	case Group:
		depth = level
		for _, ch := range v.children {
			d, c := measure(ch, level+1)
			depth = max(depth, d)
			count += c
		}
	}
	return depth, count
}

func normalizeScalar(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, fmt.Errorf("value is required")
	case string:
		return x, nil
	case time.Time:
		return x.UTC().Format(time.RFC3339), nil
	case bool:
		return nil, fmt.Errorf("boolean values are not supported")
	}
	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
	return f, nil
}

func normalizeList(v any, textOnly bool) ([]any, error) {
	var raw []any
	switch x := v.(type) {
	case nil:
		return nil, fmt.Errorf("value list is required")
	case []any:
		raw = x
	case []string:
		for _, s := range x {
			raw = append(raw, s)
		}
	case []float64:
		for _, f := range x {
			raw = append(raw, f)
		}
	case []int:
		for _, i := range x {
			raw = append(raw, i)
		}
	case string:
		if !textOnly {
			return nil, fmt.Errorf("value must be a list")
		}
		raw = []any{x}
	default:
		return nil, fmt.Errorf("value must be a list, got %T", v)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("value list must not be empty")
	}
	if len(raw) > MaxListValues {
		return nil, fmt.Errorf("too many values (max %d)", MaxListValues)
	}
	out := make([]any, 0, len(raw))
	for _, item := range raw {
		if textOnly {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("array values must be strings, got %T", item)
			}
			out = append(out, s)
			continue
		}
		s, err := normalizeScalar(item)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func toRange(v any) (Range, error) {
	switch x := v.(type) {
	case Range:
		return NewRange(x.min, x.max)
	case *Range:
		if x == nil {
			return Range{}, fmt.Errorf("range value is required")
		}
		return NewRange(x.min, x.max)
	case map[string]any:
		var minV, maxV *float64
		for k, raw := range x {
			f, ok := toFloat(raw)
			if raw == nil {
				continue
			}
			if !ok {
				return Range{}, fmt.Errorf("range bound %q must be a number", k)
			}
			switch k {
			case "min", "gte":
				minV = &f
			case "max", "lte":
				maxV = &f
			default:
				return Range{}, fmt.Errorf("unknown range bound %q", k)
			}
		}
		return NewRange(minV, maxV)
	case []any:
		if len(x) != 2 {
			return Range{}, fmt.Errorf("range list must have exactly two bounds")
		}
		var bounds [2]*float64
		for i, raw := range x {
			if raw == nil {
				continue
			}
			f, ok := toFloat(raw)
			if !ok {
				return Range{}, fmt.Errorf("range bound %d must be a number", i)
			}
			bounds[i] = &f
		}
		return NewRange(bounds[0], bounds[1])
	default:
		return Range{}, fmt.Errorf("range value must be an object with min/max, got %T", v)
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}
