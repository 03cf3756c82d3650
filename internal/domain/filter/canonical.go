package filter

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Canonical returns a deterministic textual form of the tree. Logically
// identical trees that differ only in child order, set-value order or
// redundant same-combinator nesting produce the same string.
func Canonical(n Node) string {
	if n == nil {
		return "*"
	}
	return canonical(n)
}

func canonical(n Node) string {
	switch v := n.(type) {
	case Condition:
		return canonicalCondition(v)
	case Group:
		parts := make([]string, 0, len(v.children))
		for _, ch := range flatten(v) {
			parts = append(parts, canonical(ch))
		}
		if len(parts) == 1 {
			return parts[0]
		}
		slices.Sort(parts)
		parts = slices.Compact(parts)
		if len(parts) == 1 {
			return parts[0]
		}
		return string(v.comb) + "(" + strings.Join(parts, ",") + ")"
	default:
		return "?"
	}
}

// flatten inlines children that are groups with the same combinator.
func flatten(g Group) []Node {
	out := make([]Node, 0, len(g.children))
	for _, ch := range g.children {
		if sub, ok := ch.(Group); ok && sub.comb == g.comb {
			out = append(out, flatten(sub)...)
			continue
		}
		out = append(out, ch)
	}
	return out
}

func canonicalCondition(c Condition) string {
	var b strings.Builder
	b.WriteString(strconv.Quote(c.field))
	b.WriteByte(' ')
	b.WriteString(string(c.op))
	switch {
	case c.rng != nil:
		b.WriteString(" [")
		if c.rng.min != nil {
			b.WriteString(formatFloat(*c.rng.min))
		}
		b.WriteByte(':')
		if c.rng.max != nil {
			b.WriteString(formatFloat(*c.rng.max))
		}
		b.WriteByte(']')
	case c.list != nil:
		vals := make([]string, 0, len(c.list))
		for _, v := range c.list {
			vals = append(vals, canonicalScalar(v))
		}
		slices.Sort(vals)
		vals = slices.Compact(vals)
		b.WriteString(" {")
		b.WriteString(strings.Join(vals, ","))
		b.WriteByte('}')
	case c.scalar != nil:
		b.WriteByte(' ')
		b.WriteString(canonicalScalar(c.scalar))
	}
	return b.String()
}

func canonicalScalar(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case float64:
		return formatFloat(x)
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(raw)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
