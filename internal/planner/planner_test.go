package planner

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	sqldb "github.com/kailas-cloud/catalogq/internal/db/sql"
	"github.com/kailas-cloud/catalogq/internal/db/sql/sqltest"
	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/filter"
	"github.com/kailas-cloud/catalogq/internal/domain/query"
	"github.com/kailas-cloud/catalogq/internal/domain/schema"
)

var dialects = []sqldb.Dialect{sqldb.Postgres{}, sqldb.SQLite{}}

func cond(field string, op filter.Op, v any) filter.Condition {
	return filter.MustCondition(field, op, v)
}

func and(children ...filter.Node) filter.Group { return filter.MustGroup(filter.And, children...) }
func or(children ...filter.Node) filter.Group  { return filter.MustGroup(filter.Or, children...) }

func scenarioFilter() filter.Node {
	return and(
		cond("title", filter.OpContains, "CEO"),
		cond("group.industries", filter.OpArrayContains, []string{"Technology"}),
	)
}

func TestSelect_NeverJoins(t *testing.T) {
	filters := []filter.Node{
		nil,
		scenarioFilter(),
		or(
			cond("group.name", filter.OpEq, "Acme"),
			and(cond("enrichment.phone", filter.OpExists, nil), cond("group.enrichment.postal_code", filter.OpEq, "10115")),
		),
	}
	for _, d := range dialects {
		p := New(d)
		for _, f := range filters {
			plan, err := p.Select(domain.KindRecord, f, query.Order{Field: "group.name"}, 10, 0)
			if err != nil {
				t.Fatalf("%s: Select: %v", d.Name(), err)
			}
			if strings.Contains(strings.ToUpper(plan.SQL), "JOIN") {
				t.Errorf("%s: plan contains a JOIN: %s", d.Name(), plan.SQL)
			}
		}
	}
}

func TestSelect_PrimaryOnlyFilterHasNoSubquery(t *testing.T) {
	f := and(
		cond("title", filter.OpContains, "CEO"),
		or(cond("email_status", filter.OpEq, "valid"), cond("city", filter.OpIn, []string{"Berlin", "Austin"})),
	)
	plan, err := New(sqldb.SQLite{}).Count(domain.KindRecord, f)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if strings.Contains(plan.SQL, "EXISTS") {
		t.Errorf("record-only filter produced a subquery: %s", plan.SQL)
	}
	if plan.Refs.Any() {
		t.Errorf("Refs = %+v, want none", plan.Refs)
	}
	if len(plan.Args) != 4 {
		t.Errorf("args = %v", plan.Args)
	}
}

func TestSelect_OneExistsPerRelatedTablePerNode(t *testing.T) {
	f := and(
		cond("group.name", filter.OpContains, "acme"),
		cond("title", filter.OpEq, "CEO"),
		cond("group.employee_count", filter.OpGte, 100),
		cond("enrichment.timezone", filter.OpEq, "UTC"),
	)
	plan, err := New(sqldb.SQLite{}).Count(domain.KindRecord, f)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n := strings.Count(plan.SQL, "FROM groups g"); n != 1 {
		t.Errorf("groups subqueries = %d, want 1: %s", n, plan.SQL)
	}
	if n := strings.Count(plan.SQL, "FROM record_enrichments re"); n != 1 {
		t.Errorf("record_enrichments subqueries = %d, want 1: %s", n, plan.SQL)
	}
	if !plan.Refs.Group || !plan.Refs.RecordEnrichment || plan.Refs.GroupEnrichment {
		t.Errorf("Refs = %+v", plan.Refs)
	}
	if !strings.Contains(plan.SQL, "g.id = r.group_id") || !strings.Contains(plan.SQL, "re.record_id = r.id") {
		t.Errorf("correlation missing: %s", plan.SQL)
	}
}

func TestSelect_OrNodeKeepsCombinatorInsideExists(t *testing.T) {
	f := or(
		cond("group.name", filter.OpEq, "Acme"),
		cond("group.city", filter.OpEq, "Austin"),
	)
	plan, err := New(sqldb.SQLite{}).Count(domain.KindRecord, f)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if !strings.Contains(plan.SQL, "AND (g.name = ? OR g.city = ?)") {
		t.Errorf("OR not preserved inside EXISTS: %s", plan.SQL)
	}
}

func TestSelect_PostgresPlaceholdersMatchArgs(t *testing.T) {
	f := and(
		scenarioFilter(),
		cond("group.employee_count", filter.OpRange, map[string]any{"min": 10.0, "max": 1000.0}),
		cond("created_at", filter.OpGte, "2024-01-01T00:00:00Z"),
	)
	plan, err := New(sqldb.Postgres{}).Select(domain.KindRecord, f, query.Order{}, 25, 50)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if strings.Contains(plan.SQL, "?") {
		t.Errorf("unbound placeholder left: %s", plan.SQL)
	}
	last := "$" + strconv.Itoa(len(plan.Args))
	if !strings.Contains(plan.SQL, last) || strings.Contains(plan.SQL, "$"+strconv.Itoa(len(plan.Args)+1)) {
		t.Errorf("placeholders do not match %d args: %s", len(plan.Args), plan.SQL)
	}
	if plan.Args[len(plan.Args)-2] != 25 || plan.Args[len(plan.Args)-1] != 50 {
		t.Errorf("limit/offset args = %v", plan.Args[len(plan.Args)-2:])
	}
}

func TestSelect_PostgresNumbersBindAsDouble(t *testing.T) {
	f := and(
		cond("group.employee_count", filter.OpEq, 50.5),
		cond("group.founded_year", filter.OpIn, []any{1999.0, 2001.5}),
		cond("group.employee_count", filter.OpRange, map[string]any{"min": 10.5}),
		cond("group.founded_year", filter.OpNeq, 1990.0),
	)
	plan, err := New(sqldb.Postgres{}).Select(domain.KindRecord, f, query.Order{}, 10, 0)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	for _, want := range []string{
		"g.employee_count = CAST($1 AS double precision)",
		"g.founded_year IN (CAST($2 AS double precision),CAST($3 AS double precision))",
		"g.employee_count >= CAST($4 AS double precision)",
		"g.founded_year <> CAST($5 AS double precision)",
	} {
		if !strings.Contains(plan.SQL, want) {
			t.Errorf("missing %q in %s", want, plan.SQL)
		}
	}
	if plan.Args[0] != 50.5 || plan.Args[3] != 10.5 {
		t.Errorf("args = %v", plan.Args)
	}
}

func TestSelect_Ordering(t *testing.T) {
	p := New(sqldb.SQLite{})
	tests := []struct {
		name  string
		order query.Order
		want  string
	}{
		{"default", query.Order{}, "ORDER BY r.created_at DESC NULLS LAST, r.id DESC"},
		{"primary asc", query.Order{Field: "last_name", Direction: query.Asc}, "ORDER BY r.last_name ASC NULLS LAST, r.id ASC"},
		{"related desc", query.Order{Field: "group.employee_count", Direction: query.Desc},
			"ORDER BY (SELECT g.employee_count FROM groups g WHERE g.id = r.group_id) DESC NULLS LAST, r.id DESC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := p.Select(domain.KindRecord, nil, tt.order, 10, 0)
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			if !strings.Contains(plan.SQL, tt.want) {
				t.Errorf("SQL = %s\nwant %s", plan.SQL, tt.want)
			}
		})
	}
}

func TestSelect_SpecificationErrors(t *testing.T) {
	p := New(sqldb.SQLite{})
	tests := []struct {
		name   string
		filter filter.Node
		order  query.Order
		field  string
	}{
		{"unknown field", cond("salary", filter.OpEq, "x"), query.Order{}, "salary"},
		{"unknown related field", cond("group.ceo", filter.OpEq, "x"), query.Order{}, "group.ceo"},
		{"op kind mismatch", cond("group.employee_count", filter.OpContains, "5"), query.Order{}, "group.employee_count"},
		{"number as text", cond("group.employee_count", filter.OpEq, "many"), query.Order{}, "group.employee_count"},
		{"bad timestamp", cond("created_at", filter.OpGt, "yesterday"), query.Order{}, "created_at"},
		{"text as number", cond("title", filter.OpEq, 5), query.Order{}, "title"},
		{"array sort", nil, query.Order{Field: "departments"}, "departments"},
		{"nested unknown", and(or(cond("nope", filter.OpExists, nil))), query.Order{}, "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Select(domain.KindRecord, tt.filter, tt.order, 10, 0)
			var se *domain.SpecificationError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want SpecificationError", err)
			}
			if se.Field != tt.field {
				t.Errorf("Field = %q, want %q", se.Field, tt.field)
			}
		})
	}
}

func TestSelect_UnknownKind(t *testing.T) {
	if _, err := New(sqldb.SQLite{}).Count("people", nil); !domain.IsSpecification(err) {
		t.Errorf("err = %v", err)
	}
}

func TestWhere_EmptyGroups(t *testing.T) {
	p := New(sqldb.SQLite{})
	where, _, err := p.Where(domain.KindRecord, filter.MustGroup(filter.And))
	if err != nil || where != "1=1" {
		t.Errorf("empty AND = %q, %v", where, err)
	}
	where, _, err = p.Where(domain.KindRecord, filter.MustGroup(filter.Or))
	if err != nil || where != "1=0" {
		t.Errorf("empty OR = %q, %v", where, err)
	}
}

func TestLookup(t *testing.T) {
	groups, _ := schema.TableByName(schema.TableGroups)
	plan := New(sqldb.Postgres{}).Lookup(groups, []string{"a", "b"})
	if !strings.Contains(plan.SQL, "array_to_json(g.industries)::text AS industries") {
		t.Errorf("array column not read as JSON: %s", plan.SQL)
	}
	if !strings.HasSuffix(plan.SQL, "WHERE g.id IN ($1,$2)") {
		t.Errorf("SQL = %s", plan.SQL)
	}
	if len(plan.Args) != 2 {
		t.Errorf("args = %v", plan.Args)
	}
}

func TestSQLite_Scenarios(t *testing.T) {
	fx := sqltest.WithOrphan(sqltest.Scenario())
	conn, d := sqltest.Open(t, &fx)
	p := New(d)

	tests := []struct {
		name   string
		kind   domain.Kind
		filter filter.Node
		order  query.Order
		want   []string
	}{
		{"ceo at technology group", domain.KindRecord, scenarioFilter(), query.Order{},
			[]string{sqltest.RecordAda, sqltest.RecordBo, sqltest.RecordDee}},
		{"valid email", domain.KindRecord, cond("email_status", filter.OpEq, "valid"), query.Order{},
			[]string{sqltest.RecordAda, sqltest.RecordCyd, sqltest.RecordDee}},
		{"word set any order", domain.KindRecord, cond("title", filter.OpWordSet, "CEO Co-Founder"), query.Order{},
			[]string{sqltest.RecordBo}},
		{"word jumble", domain.KindRecord, cond("title", filter.OpWordJumble, "officer chief"), query.Order{},
			[]string{sqltest.RecordDee}},
		{"domain strips www and path", domain.KindRecord, cond("group.website_url", filter.OpDomain, "ACME.com"), query.Order{},
			[]string{sqltest.RecordAda, sqltest.RecordDee, sqltest.RecordEli}},
		{"domain strips port", domain.KindGroup, cond("website_url", filter.OpDomain, "https://globex.io/"), query.Order{},
			[]string{sqltest.GroupGlobex}},
		{"neq matches null", domain.KindRecord, cond("email_status", filter.OpNeq, "valid"), query.Order{},
			[]string{sqltest.RecordBo, sqltest.RecordEli, sqltest.RecordOrphan}},
		{"related neq needs related row", domain.KindRecord, cond("group.name", filter.OpNeq, "Acme"), query.Order{},
			[]string{sqltest.RecordBo, sqltest.RecordCyd}},
		{"array not contains matches null", domain.KindRecord, cond("departments", filter.OpArrayNotContains, []string{"engineering"}), query.Order{},
			[]string{sqltest.RecordAda, sqltest.RecordBo, sqltest.RecordCyd, sqltest.RecordOrphan}},
		{"empty array does not exist", domain.KindGroup, cond("keywords", filter.OpNotExists, nil), query.Order{Field: "name"},
			[]string{sqltest.GroupGlobex, sqltest.GroupInitech}},
		{"range inclusive", domain.KindGroup, cond("employee_count", filter.OpRange, map[string]any{"min": 50.0, "max": 500.0}), query.Order{Field: "employee_count"},
			[]string{sqltest.GroupGlobex, sqltest.GroupAcme}},
		{"nulls last descending", domain.KindGroup, nil, query.Order{Field: "employee_count", Direction: query.Desc},
			[]string{sqltest.GroupAcme, sqltest.GroupGlobex, sqltest.GroupInitech}},
		{"sort by related column", domain.KindRecord, cond("country", filter.OpEq, "Germany"), query.Order{Field: "enrichment.timezone"},
			[]string{sqltest.RecordAda, sqltest.RecordDee, sqltest.RecordEli}},
		{"group enrichment through group id", domain.KindRecord, cond("group.enrichment.postal_code", filter.OpEq, "10115"), query.Order{},
			[]string{sqltest.RecordAda, sqltest.RecordDee, sqltest.RecordEli}},
		{"contains escapes wildcards", domain.KindRecord, cond("title", filter.OpContains, "%"), query.Order{}, nil},
		{"empty contains matches nothing", domain.KindRecord, cond("title", filter.OpContains, ""), query.Order{}, nil},
		{"time bound", domain.KindRecord, cond("created_at", filter.OpLt, sqltest.At(20).Format("2006-01-02T15:04:05Z")), query.Order{},
			[]string{sqltest.RecordEli, sqltest.RecordOrphan}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := p.Select(tt.kind, tt.filter, tt.order, 100, 0)
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			got := queryKeys(t, conn, plan)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v\nSQL: %s", got, tt.want, plan.SQL)
			}

			cp, err := p.Count(tt.kind, tt.filter)
			if err != nil {
				t.Fatalf("Count: %v", err)
			}
			var n int
			if err := conn.QueryRowContext(context.Background(), cp.SQL, cp.Args...).Scan(&n); err != nil {
				t.Fatalf("count: %v", err)
			}
			if n != len(tt.want) {
				t.Errorf("count = %d, want %d", n, len(tt.want))
			}
		})
	}
}

func TestSQLite_Window(t *testing.T) {
	fx := sqltest.Scenario()
	conn, d := sqltest.Open(t, &fx)
	p := New(d)

	plan, err := p.Select(domain.KindRecord, scenarioFilter(), query.Order{}, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := queryKeys(t, conn, plan); strings.Join(got, ",") != sqltest.RecordAda+","+sqltest.RecordBo {
		t.Errorf("first page = %v", got)
	}
	plan, err = p.Select(domain.KindRecord, scenarioFilter(), query.Order{}, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := queryKeys(t, conn, plan); strings.Join(got, ",") != sqltest.RecordDee {
		t.Errorf("second page = %v", got)
	}
}
