package filter

// Op is a condition operator.
type Op string

// Supported operators.
const (
	OpEq               Op = "eq"
	OpNeq              Op = "neq"
	OpGt               Op = "gt"
	OpGte              Op = "gte"
	OpLt               Op = "lt"
	OpLte              Op = "lte"
	OpIn               Op = "in"
	OpNin              Op = "nin"
	OpArrayContains    Op = "array_contains"
	OpArrayNotContains Op = "array_not_contains"
	OpExists           Op = "exists"
	OpNotExists        Op = "not_exists"
	OpContains         Op = "contains"
	OpWordSet          Op = "word_set"
	OpWordJumble       Op = "word_jumble"
	OpRange            Op = "range"
	OpDomain           Op = "domain"
)

// valueShape describes what a condition value must look like for an operator.
type valueShape int

const (
	shapeNone valueShape = iota
	shapeScalar
	shapeText
	shapeList
	shapeTextList
	shapeRange
)

var opShapes = map[Op]valueShape{
	OpEq:               shapeScalar,
	OpNeq:              shapeScalar,
	OpGt:               shapeScalar,
	OpGte:              shapeScalar,
	OpLt:               shapeScalar,
	OpLte:              shapeScalar,
	OpIn:               shapeList,
	OpNin:              shapeList,
	OpArrayContains:    shapeTextList,
	OpArrayNotContains: shapeTextList,
	OpExists:           shapeNone,
	OpNotExists:        shapeNone,
	OpContains:         shapeText,
	OpWordSet:          shapeText,
	OpWordJumble:       shapeText,
	OpRange:            shapeRange,
	OpDomain:           shapeText,
}

// aliases accepted on input; canonical names are used everywhere else.
var opAliases = map[string]Op{
	"ne":           OpNeq,
	"not_in":       OpNin,
	"ilike":        OpContains,
	"not_contains": OpArrayNotContains,
	"between":      OpRange,
	"jumble":       OpWordJumble,
}

// ParseOp resolves an operator name, accepting a few aliases.
func ParseOp(s string) (Op, bool) {
	op := Op(s)
	if _, ok := opShapes[op]; ok {
		return op, true
	}
	if a, ok := opAliases[s]; ok {
		return a, true
	}
	return "", false
}

// IsValid reports whether op is a known operator.
func (op Op) IsValid() bool {
	_, ok := opShapes[op]
	return ok
}

// MatchesAbsent reports whether the operator is satisfied by a missing value
// on a present row (neq, nin, not_exists, array_not_contains).
func (op Op) MatchesAbsent() bool {
	switch op {
	case OpNeq, OpNin, OpNotExists, OpArrayNotContains:
		return true
	default:
		return false
	}
}

// Combinator joins the children of a Group.
type Combinator string

const (
	// And requires every child to match.
	And Combinator = "and"
	// Or requires at least one child to match.
	Or Combinator = "or"
)
