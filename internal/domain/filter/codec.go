package filter

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/catalogq/internal/domain"
)

// Decode parses a JSON filter tree. Empty input and JSON null yield a nil Node (no filter).
func Decode(data []byte) (Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &domain.SpecificationError{Reason: fmt.Sprintf("malformed filter JSON: %v", err)}
	}
	n, err := FromValue(raw)
	if err != nil {
		return nil, err
	}
	if err := checkLimits(n); err != nil {
		return nil, err
	}
	return n, nil
}

// FromValue builds a Node from a decoded JSON value (map[string]any).
func FromValue(raw any) (Node, error) {
	return fromValue(raw, 1)
}

func fromValue(raw any, depth int) (Node, error) {
	if depth > MaxDepth {
		return nil, &domain.SpecificationError{Reason: fmt.Sprintf("filter nesting too deep (max %d)", MaxDepth)}
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &domain.SpecificationError{Reason: fmt.Sprintf("filter node must be an object, got %T", raw)}
	}

	for _, comb := range []Combinator{And, Or} {
		rawChildren, isGroup := obj[string(comb)]
		if !isGroup {
			continue
		}
		if len(obj) != 1 {
			return nil, &domain.SpecificationError{Reason: fmt.Sprintf("%q group must not carry other keys", comb)}
		}
		list, isList := rawChildren.([]any)
		if !isList {
			return nil, &domain.SpecificationError{Reason: fmt.Sprintf("%q must be a list of nodes", comb)}
		}
		children := make([]Node, 0, len(list))
		for _, item := range list {
			ch, err := fromValue(item, depth+1)
			if err != nil {
				return nil, err
			}
			children = append(children, ch)
		}
		return Group{comb: comb, children: children}, nil
	}

	field, _ := obj["field"].(string)
	opName, _ := obj["op"].(string)
	if field == "" {
		return nil, &domain.SpecificationError{Reason: `condition requires "field" (or use "and"/"or")`}
	}
	op, ok := ParseOp(opName)
	if !ok {
		return nil, domain.NewSpecError(field, opName, "unknown operator")
	}
	for k := range obj {
		if k != "field" && k != "op" && k != "value" {
			return nil, domain.NewSpecError(field, opName, "unexpected key %q", k)
		}
	}
	return NewCondition(field, op, obj["value"])
}

// Encode serialises a tree to its JSON wire shape. A nil Node encodes as null.
func Encode(n Node) ([]byte, error) {
	if n == nil {
		return []byte("null"), nil
	}
	return json.Marshal(n)
}

// MarshalJSON implements json.Marshaler.
func (c Condition) MarshalJSON() ([]byte, error) {
	out := struct {
		Field string `json:"field"`
		Op    Op     `json:"op"`
		Value any    `json:"value,omitempty"`
	}{Field: c.field, Op: c.op}
	switch {
	case c.rng != nil:
		out.Value = rangeJSON{Min: c.rng.min, Max: c.rng.max}
	case c.list != nil:
		out.Value = c.list
	case c.scalar != nil:
		out.Value = c.scalar
	}
	return json.Marshal(out)
}

// MarshalJSON implements json.Marshaler.
func (g Group) MarshalJSON() ([]byte, error) {
	children := g.children
	if children == nil {
		children = []Node{}
	}
	return json.Marshal(map[string][]Node{string(g.comb): children})
}

type rangeJSON struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}
