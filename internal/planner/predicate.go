package planner

import (
	"strings"

	sqldb "github.com/kailas-cloud/catalogq/internal/db/sql"
	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/filter"
	"github.com/kailas-cloud/catalogq/internal/domain/schema"
)

// predicate compiles one condition against the qualified column col.
// NULL never satisfies a positive operator; neq, nin and not_exists match it.
func (b *builder) predicate(col string, f schema.Field, c filter.Condition) (string, error) {
	kind := f.Column.Kind
	switch op := c.Op(); op {
	case filter.OpExists:
		if kind == schema.Array {
			return b.d.ArrayNonEmpty(col), nil
		}
		return col + " IS NOT NULL", nil

	case filter.OpNotExists:
		if kind == schema.Array {
			return "NOT " + b.d.ArrayNonEmpty(col), nil
		}
		return col + " IS NULL", nil

	case filter.OpEq, filter.OpGt, filter.OpGte, filter.OpLt, filter.OpLte:
		if err := b.bind(f, c, c.Scalar()); err != nil {
			return "", err
		}
		return col + " " + comparison[op] + " " + b.param(kind), nil

	case filter.OpNeq:
		if err := b.bind(f, c, c.Scalar()); err != nil {
			return "", err
		}
		return "(" + col + " IS NULL OR " + col + " <> " + b.param(kind) + ")", nil

	case filter.OpIn, filter.OpNin:
		params := make([]string, len(c.List()))
		for i, v := range c.List() {
			if err := b.bind(f, c, v); err != nil {
				return "", err
			}
			params[i] = b.param(kind)
		}
		set := "(" + strings.Join(params, ",") + ")"
		if op == filter.OpNin {
			return "(" + col + " IS NULL OR " + col + " NOT IN " + set + ")", nil
		}
		return col + " IN " + set, nil

	case filter.OpRange:
		return b.rangePredicate(col, c.Range()), nil

	case filter.OpContains:
		v := strings.ToLower(c.Text())
		if v == "" {
			return sqlFalse, nil
		}
		b.args = append(b.args, likePattern(v))
		return b.d.ILike(col), nil

	case filter.OpWordSet:
		q := filter.NormalizeWords(c.Text())
		if q == "" {
			return sqlFalse, nil
		}
		b.args = append(b.args, q)
		return b.d.Contains(b.d.WordSet(col)), nil

	case filter.OpWordJumble:
		words := filter.Words(c.Text())
		if len(words) == 0 {
			return sqlFalse, nil
		}
		preds := make([]string, len(words))
		for i, w := range words {
			b.args = append(b.args, likePattern(w))
			preds[i] = b.d.ILike(col)
		}
		if len(preds) == 1 {
			return preds[0], nil
		}
		return "(" + strings.Join(preds, " AND ") + ")", nil

	case filter.OpDomain:
		host, ok := filter.Host(c.Text())
		if !ok {
			return sqlFalse, nil
		}
		b.args = append(b.args, host)
		return b.d.Host(col) + " = ?", nil

	case filter.OpArrayContains, filter.OpArrayNotContains:
		vals := c.Strings()
		for _, v := range vals {
			b.args = append(b.args, strings.ToLower(v))
		}
		member := b.d.ArrayAny(col, len(vals))
		if op == filter.OpArrayNotContains {
			return "NOT " + member, nil
		}
		return member, nil

	default:
		return "", domain.NewSpecError(c.Field(), string(op), "unknown operator")
	}
}

var comparison = map[filter.Op]string{
	filter.OpEq:  "=",
	filter.OpGt:  ">",
	filter.OpGte: ">=",
	filter.OpLt:  "<",
	filter.OpLte: "<=",
}

func (b *builder) rangePredicate(col string, r *filter.Range) string {
	var parts []string
	if lo := r.Min(); lo != nil {
		b.args = append(b.args, *lo)
		parts = append(parts, col+" >= "+b.d.NumberParam())
	}
	if hi := r.Max(); hi != nil {
		b.args = append(b.args, *hi)
		parts = append(parts, col+" <= "+b.d.NumberParam())
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// param is the placeholder for one bound value of a column kind.
func (b *builder) param(kind schema.Kind) string {
	if kind == schema.Number {
		return b.d.NumberParam()
	}
	return "?"
}

// bind appends v converted for the column kind.
func (b *builder) bind(f schema.Field, c filter.Condition, v any) error {
	switch f.Column.Kind {
	case schema.Number:
		n, ok := v.(float64)
		if !ok {
			return domain.NewSpecError(f.Name, string(c.Op()), "value must be a number")
		}
		b.args = append(b.args, n)
	case schema.Time:
		s, ok := v.(string)
		if !ok {
			return domain.NewSpecError(f.Name, string(c.Op()), "value must be an RFC 3339 timestamp")
		}
		t, err := sqldb.ParseTime(s)
		if err != nil {
			return domain.NewSpecError(f.Name, string(c.Op()), "value must be an RFC 3339 timestamp")
		}
		b.args = append(b.args, b.d.TimeArg(t))
	default:
		s, ok := v.(string)
		if !ok {
			return domain.NewSpecError(f.Name, string(c.Op()), "value must be a string")
		}
		b.args = append(b.args, s)
	}
	return nil
}

func likePattern(v string) string {
	return "%" + filter.EscapeLike(v) + "%"
}
