package planner

import (
	"context"
	"database/sql"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"
	"time"

	sqldb "github.com/kailas-cloud/catalogq/internal/db/sql"
	"github.com/kailas-cloud/catalogq/internal/db/sql/sqltest"
	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/filter"
	"github.com/kailas-cloud/catalogq/internal/domain/query"
	"github.com/kailas-cloud/catalogq/internal/domain/schema"
)

func queryKeys(t *testing.T, conn *sql.DB, plan Plan) []string {
	t.Helper()
	rows, err := conn.QueryContext(context.Background(), plan.SQL, plan.Args...)
	if err != nil {
		t.Fatalf("query: %v\nSQL: %s", err, plan.SQL)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	return out
}

// evaluator is an in-memory model of the filter semantics over a fixture.
type evaluator struct {
	entity *schema.Entity
	tables map[string]map[string]sqltest.Row
}

func newEvaluator(t *testing.T, kind domain.Kind, fx sqltest.Fixture) *evaluator {
	t.Helper()
	e, err := schema.EntityFor(kind)
	if err != nil {
		t.Fatal(err)
	}
	index := func(table string, rows []sqltest.Row) map[string]sqltest.Row {
		tbl, _ := schema.TableByName(table)
		m := make(map[string]sqltest.Row, len(rows))
		for _, r := range rows {
			m[r[tbl.Key].(string)] = r
		}
		return m
	}
	return &evaluator{entity: e, tables: map[string]map[string]sqltest.Row{
		schema.TableRecords:           index(schema.TableRecords, fx.Records),
		schema.TableGroups:            index(schema.TableGroups, fx.Groups),
		schema.TableRecordEnrichments: index(schema.TableRecordEnrichments, fx.RecordEnrichments),
		schema.TableGroupEnrichments:  index(schema.TableGroupEnrichments, fx.GroupEnrichments),
	}}
}

func (ev *evaluator) matching(n filter.Node) []string {
	var out []string
	for key, row := range ev.tables[ev.entity.Primary.Name] {
		if ev.eval(n, row) {
			out = append(out, key)
		}
	}
	slices.Sort(out)
	return out
}

func (ev *evaluator) eval(n filter.Node, row sqltest.Row) bool {
	switch v := n.(type) {
	case nil:
		return true
	case filter.Condition:
		return ev.condition(v, row)
	case filter.Group:
		if v.Combinator() == filter.And {
			for _, ch := range v.Children() {
				if !ev.eval(ch, row) {
					return false
				}
			}
			return true
		}
		for _, ch := range v.Children() {
			if ev.eval(ch, row) {
				return true
			}
		}
		return false
	}
	return false
}

func (ev *evaluator) condition(c filter.Condition, row sqltest.Row) bool {
	f, err := ev.entity.Resolve(c.Field())
	if err != nil {
		panic(err)
	}
	target := row
	if f.Related() {
		fk, _ := row[f.Link.ForeignKey].(string)
		related, ok := ev.tables[f.Table.Name][fk]
		if !ok {
			return false
		}
		target = related
	}
	return matchValue(f.Column.Kind, c, target[f.Column.Name])
}

func matchValue(kind schema.Kind, c filter.Condition, v any) bool {
	if kind == schema.Array {
		arr, _ := v.([]string)
		switch c.Op() {
		case filter.OpExists:
			return len(arr) > 0
		case filter.OpNotExists:
			return len(arr) == 0
		case filter.OpArrayContains:
			return arrayHasAny(arr, c.Strings())
		case filter.OpArrayNotContains:
			return !arrayHasAny(arr, c.Strings())
		}
		return false
	}

	switch c.Op() {
	case filter.OpExists:
		return v != nil
	case filter.OpNotExists:
		return v == nil
	case filter.OpNeq:
		return v == nil || compare(kind, v, c.Scalar()) != 0
	case filter.OpNin:
		return v == nil || !inList(kind, v, c.List())
	}
	if v == nil {
		return false
	}
	switch c.Op() {
	case filter.OpEq:
		return compare(kind, v, c.Scalar()) == 0
	case filter.OpGt:
		return compare(kind, v, c.Scalar()) > 0
	case filter.OpGte:
		return compare(kind, v, c.Scalar()) >= 0
	case filter.OpLt:
		return compare(kind, v, c.Scalar()) < 0
	case filter.OpLte:
		return compare(kind, v, c.Scalar()) <= 0
	case filter.OpIn:
		return inList(kind, v, c.List())
	case filter.OpRange:
		n := number(v)
		r := c.Range()
		return (r.Min() == nil || n >= *r.Min()) && (r.Max() == nil || n <= *r.Max())
	case filter.OpContains:
		q := strings.ToLower(c.Text())
		return q != "" && strings.Contains(strings.ToLower(v.(string)), q)
	case filter.OpWordSet:
		q := filter.NormalizeWords(c.Text())
		return q != "" && strings.Contains(filter.NormalizeWords(v.(string)), q)
	case filter.OpWordJumble:
		words := filter.Words(c.Text())
		for _, w := range words {
			if !strings.Contains(strings.ToLower(v.(string)), w) {
				return false
			}
		}
		return len(words) > 0
	case filter.OpDomain:
		q, ok := filter.Host(c.Text())
		h, valid := filter.Host(v.(string))
		return ok && valid && q == h
	}
	return false
}

func arrayHasAny(arr, want []string) bool {
	for _, a := range arr {
		for _, w := range want {
			if strings.EqualFold(a, w) {
				return true
			}
		}
	}
	return false
}

func inList(kind schema.Kind, v any, list []any) bool {
	for _, item := range list {
		if compare(kind, v, item) == 0 {
			return true
		}
	}
	return false
}

func compare(kind schema.Kind, stored, query any) int {
	switch kind {
	case schema.Number:
		a, b := number(stored), query.(float64)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	case schema.Time:
		q, err := sqldb.ParseTime(query.(string))
		if err != nil {
			panic(err)
		}
		return stored.(time.Time).Compare(q)
	default:
		return strings.Compare(stored.(string), query.(string))
	}
}

func number(v any) float64 {
	switch x := v.(type) {
	case int:
		return float64(x)
	case float64:
		return x
	}
	panic("not a number")
}

// conditionPool holds conditions spanning every kind, operator family and
// related table.
func conditionPool(kind domain.Kind) []filter.Condition {
	ts := func(h int) string { return sqltest.At(h).Format(time.RFC3339) }
	if kind == domain.KindGroup {
		return []filter.Condition{
			cond("name", filter.OpContains, "ACME"),
			cond("name", filter.OpWordSet, "corporation globex"),
			cond("city", filter.OpEq, "Austin"),
			cond("state", filter.OpNeq, "TX"),
			cond("employee_count", filter.OpRange, map[string]any{"min": 100.0}),
			cond("employee_count", filter.OpLt, 100),
			cond("employee_count", filter.OpNin, []any{50.0}),
			cond("founded_year", filter.OpExists, nil),
			cond("industries", filter.OpArrayContains, []string{"TECHNOLOGY", "retail"}),
			cond("keywords", filter.OpExists, nil),
			cond("website_url", filter.OpDomain, "acme.com"),
			cond("created_at", filter.OpGte, ts(2)),
			cond("enrichment.phone", filter.OpExists, nil),
			cond("enrichment.postal_code", filter.OpNeq, "99999"),
		}
	}
	return []filter.Condition{
		cond("title", filter.OpContains, "ceo"),
		cond("title", filter.OpEq, "CEO"),
		cond("title", filter.OpWordJumble, "chief ceo"),
		cond("title", filter.OpIn, []string{"CTO", "CEO"}),
		cond("email_status", filter.OpEq, "valid"),
		cond("email_status", filter.OpNeq, "valid"),
		cond("email_status", filter.OpNotExists, nil),
		cond("seniority", filter.OpNin, []string{"founder"}),
		cond("departments", filter.OpArrayContains, []string{"engineering"}),
		cond("departments", filter.OpArrayNotContains, []string{"executive"}),
		cond("linkedin_url", filter.OpDomain, "linkedin.com"),
		cond("created_at", filter.OpGt, ts(25)),
		cond("created_at", filter.OpLte, ts(10)),
		cond("group.name", filter.OpEq, "Acme"),
		cond("group.name", filter.OpNeq, "Acme"),
		cond("group.industries", filter.OpArrayContains, []string{"Technology"}),
		cond("group.employee_count", filter.OpRange, map[string]any{"min": 10.0, "max": 100.0}),
		cond("group.employee_count", filter.OpNotExists, nil),
		cond("group.city", filter.OpEq, "Austin"),
		cond("enrichment.phone", filter.OpExists, nil),
		cond("enrichment.timezone", filter.OpContains, "america"),
		cond("enrichment.github_url", filter.OpNotExists, nil),
		cond("group.enrichment.postal_code", filter.OpEq, "10115"),
		cond("group.enrichment.phone", filter.OpNotExists, nil),
		cond("title", filter.OpContains, "école"),
		cond("title", filter.OpContains, "ÉCOLE"),
		cond("title", filter.OpWordJumble, "école directeur"),
		cond("departments", filter.OpArrayContains, []string{"équipe"}),
	}
}

const recordUnicode = "rec-zoe"

// withUnicode adds a record whose text has non-ASCII capitals.
func withUnicode(f sqltest.Fixture) sqltest.Fixture {
	f.Records = append(f.Records, sqltest.Row{
		"id": recordUnicode, "first_name": "Zoé", "title": "DIRECTEUR ÉCOLE",
		"departments": []string{"Équipe", "Éducation"}, "group_id": sqltest.GroupGlobex,
		"created_at": sqltest.At(1),
	})
	return f
}

func randomTree(r *rand.Rand, pool []filter.Condition, depth int) filter.Node {
	if depth == 0 || r.IntN(3) == 0 {
		return pool[r.IntN(len(pool))]
	}
	comb := filter.And
	if r.IntN(2) == 0 {
		comb = filter.Or
	}
	children := make([]filter.Node, r.IntN(4))
	for i := range children {
		children[i] = randomTree(r, pool, depth-1)
	}
	return filter.MustGroup(comb, children...)
}

func TestSQLite_MatchesReferenceEvaluator(t *testing.T) {
	fx := withUnicode(sqltest.WithOrphan(sqltest.Scenario()))
	conn, d := sqltest.Open(t, &fx)
	p := New(d)
	r := rand.New(rand.NewPCG(7, 11))

	for _, kind := range []domain.Kind{domain.KindRecord, domain.KindGroup} {
		ev := newEvaluator(t, kind, fx)
		pool := conditionPool(kind)
		for i := range 300 {
			tree := randomTree(r, pool, 3)
			plan, err := p.Select(kind, tree, query.Order{Field: "id"}, 1000, 0)
			if err != nil {
				t.Fatalf("%s #%d: Select: %v", kind, i, err)
			}
			got := queryKeys(t, conn, plan)
			want := ev.matching(tree)
			if strings.Join(got, ",") != strings.Join(want, ",") {
				raw, _ := filter.Encode(tree)
				t.Fatalf("%s #%d: got %v, want %v\nfilter: %s\nSQL: %s", kind, i, got, want, raw, plan.SQL)
			}
		}
	}
}

func TestSQLite_WordSetEquivalence(t *testing.T) {
	fx := sqltest.Scenario()
	conn, d := sqltest.Open(t, &fx)
	p := New(d)

	permutations := []string{
		"Executive Chief Officer",
		"officer chief executive",
		"  CHIEF   officer   executive ",
	}
	var first []string
	for i, q := range permutations {
		plan, err := p.Select(domain.KindRecord, cond("title", filter.OpWordSet, q), query.Order{}, 100, 0)
		if err != nil {
			t.Fatal(err)
		}
		got := queryKeys(t, conn, plan)
		if i == 0 {
			first = got
			if len(first) != 1 || first[0] != sqltest.RecordDee {
				t.Fatalf("%q matched %v", q, got)
			}
			continue
		}
		if strings.Join(got, ",") != strings.Join(first, ",") {
			t.Errorf("%q matched %v, want %v", q, got, first)
		}
	}
}

func TestSQLite_UnicodeCaseFolding(t *testing.T) {
	fx := withUnicode(sqltest.Scenario())
	conn, d := sqltest.Open(t, &fx)
	p := New(d)

	tests := []struct {
		name string
		cond filter.Condition
	}{
		{"contains lower", cond("title", filter.OpContains, "école")},
		{"contains exact case", cond("title", filter.OpContains, "ÉCOLE")},
		{"contains mixed case", cond("title", filter.OpContains, "Directeur École")},
		{"word jumble", cond("title", filter.OpWordJumble, "école directeur")},
		{"word set", cond("title", filter.OpWordSet, "école directeur")},
		{"array contains", cond("departments", filter.OpArrayContains, []string{"équipe"})},
		{"array contains upper", cond("departments", filter.OpArrayContains, []string{"ÉDUCATION"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := p.Select(domain.KindRecord, tt.cond, query.Order{}, 100, 0)
			if err != nil {
				t.Fatal(err)
			}
			got := queryKeys(t, conn, plan)
			if len(got) != 1 || got[0] != recordUnicode {
				t.Errorf("matched %v, want [%s]\nSQL: %s", got, recordUnicode, plan.SQL)
			}
		})
	}

	plan, err := p.Select(domain.KindRecord, cond("departments", filter.OpArrayNotContains, []string{"ÉQUIPE"}), query.Order{}, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := queryKeys(t, conn, plan); slices.Contains(got, recordUnicode) {
		t.Errorf("array_not_contains kept %s: %v", recordUnicode, got)
	}
}
