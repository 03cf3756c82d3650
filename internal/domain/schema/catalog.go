// Package schema is the static field catalog: which table and column every
// filterable field name resolves to, and which operators its kind accepts.
package schema

import (
	"fmt"

	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/filter"
)

// Table names of the externally owned relational schema.
const (
	TableRecords           = "records"
	TableGroups            = "groups"
	TableRecordEnrichments = "record_enrichments"
	TableGroupEnrichments  = "group_enrichments"
)

// Kind is the value kind of a column.
type Kind int

// Column kinds.
const (
	Text Kind = iota + 1
	URL
	Number
	Time
	Array
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case URL:
		return "url"
	case Number:
		return "number"
	case Time:
		return "time"
	case Array:
		return "array"
	default:
		return "unknown"
	}
}

var kindOps = map[Kind][]filter.Op{
	Text: {filter.OpEq, filter.OpNeq, filter.OpIn, filter.OpNin, filter.OpContains,
		filter.OpWordSet, filter.OpWordJumble, filter.OpExists, filter.OpNotExists},
	URL: {filter.OpEq, filter.OpNeq, filter.OpContains, filter.OpDomain, filter.OpExists, filter.OpNotExists},
	Number: {filter.OpEq, filter.OpNeq, filter.OpGt, filter.OpGte, filter.OpLt, filter.OpLte,
		filter.OpIn, filter.OpNin, filter.OpRange, filter.OpExists, filter.OpNotExists},
	Time:  {filter.OpEq, filter.OpGt, filter.OpGte, filter.OpLt, filter.OpLte, filter.OpExists, filter.OpNotExists},
	Array: {filter.OpArrayContains, filter.OpArrayNotContains, filter.OpExists, filter.OpNotExists},
}

// Allows reports whether op is legal for columns of kind k.
func (k Kind) Allows(op filter.Op) bool {
	for _, o := range kindOps[k] {
		if o == op {
			return true
		}
	}
	return false
}

// Sortable reports whether columns of kind k can appear in ORDER BY.
func (k Kind) Sortable() bool { return k != Array }

// Column is one column of a table.
type Column struct {
	Name string
	Kind Kind
}

// Table describes one table of the relational schema.
type Table struct {
	Name    string
	Key     string
	Alias   string
	Columns []Column
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

var (
	records = &Table{
		Name: TableRecords, Key: "id", Alias: "r",
		Columns: []Column{
			{"id", Text}, {"first_name", Text}, {"last_name", Text}, {"title", Text},
			{"email", Text}, {"email_status", Text}, {"seniority", Text}, {"departments", Array},
			{"city", Text}, {"state", Text}, {"country", Text}, {"linkedin_url", URL},
			{"group_id", Text}, {"created_at", Time}, {"updated_at", Time},
		},
	}
	groups = &Table{
		Name: TableGroups, Key: "id", Alias: "g",
		Columns: []Column{
			{"id", Text}, {"name", Text}, {"website_url", URL}, {"industries", Array},
			{"technologies", Array}, {"keywords", Array}, {"employee_count", Number},
			{"annual_revenue", Number}, {"founded_year", Number}, {"city", Text},
			{"state", Text}, {"country", Text}, {"created_at", Time},
		},
	}
	recordEnrichments = &Table{
		Name: TableRecordEnrichments, Key: "record_id", Alias: "re",
		Columns: []Column{
			{"record_id", Text}, {"phone", Text}, {"mobile_phone", Text}, {"personal_email", Text},
			{"twitter_url", URL}, {"github_url", URL}, {"postal_code", Text}, {"timezone", Text},
		},
	}
	groupEnrichments = &Table{
		Name: TableGroupEnrichments, Key: "group_id", Alias: "ge",
		Columns: []Column{
			{"group_id", Text}, {"phone", Text}, {"linkedin_url", URL}, {"twitter_url", URL},
			{"facebook_url", URL}, {"street_address", Text}, {"postal_code", Text}, {"logo_url", URL},
		},
	}
)

// Link ties a related table to the primary table of a query:
// related.Key = primary.ForeignKey.
type Link struct {
	Prefix     string
	Table      *Table
	ForeignKey string
}

// Entity is the catalog entry of one queryable entity kind.
type Entity struct {
	Kind    domain.Kind
	Primary *Table
	Links   []Link
}

var entities = map[domain.Kind]*Entity{
	domain.KindRecord: {
		Kind:    domain.KindRecord,
		Primary: records,
		Links: []Link{
			// longest prefix first so "group.enrichment." wins over "group."
			{Prefix: "group.enrichment.", Table: groupEnrichments, ForeignKey: "group_id"},
			{Prefix: "group.", Table: groups, ForeignKey: "group_id"},
			{Prefix: "enrichment.", Table: recordEnrichments, ForeignKey: "id"},
		},
	},
	domain.KindGroup: {
		Kind:    domain.KindGroup,
		Primary: groups,
		Links: []Link{
			{Prefix: "enrichment.", Table: groupEnrichments, ForeignKey: "id"},
		},
	},
}

func init() {
	if err := validateCatalog(); err != nil {
		panic(err)
	}
}

func validateCatalog() error {
	tables := []*Table{records, groups, recordEnrichments, groupEnrichments}
	aliases := make(map[string]string)
	for _, t := range tables {
		if prev, dup := aliases[t.Alias]; dup {
			return fmt.Errorf("schema: alias %q used by %s and %s", t.Alias, prev, t.Name)
		}
		aliases[t.Alias] = t.Name
		seen := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			if seen[c.Name] {
				return fmt.Errorf("schema: duplicate column %s.%s", t.Name, c.Name)
			}
			if _, ok := kindOps[c.Kind]; !ok {
				return fmt.Errorf("schema: column %s.%s has no kind", t.Name, c.Name)
			}
			seen[c.Name] = true
		}
		if !seen[t.Key] {
			return fmt.Errorf("schema: key %s.%s is not a column", t.Name, t.Key)
		}
	}
	for kind, e := range entities {
		if !e.Primary.hasColumn("created_at") {
			return fmt.Errorf("schema: %s has no created_at column for default ordering", kind)
		}
		prefixes := make(map[string]bool)
		for _, l := range e.Links {
			if prefixes[l.Prefix] {
				return fmt.Errorf("schema: %s: duplicate prefix %q", kind, l.Prefix)
			}
			prefixes[l.Prefix] = true
			if !e.Primary.hasColumn(l.ForeignKey) {
				return fmt.Errorf("schema: %s: dangling foreign key %s.%s", kind, e.Primary.Name, l.ForeignKey)
			}
		}
	}
	return nil
}

func (t *Table) hasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// EntityFor returns the catalog entry for kind.
func EntityFor(kind domain.Kind) (*Entity, error) {
	e, ok := entities[kind]
	if !ok {
		return nil, &domain.SpecificationError{Reason: fmt.Sprintf("unknown entity kind %q", kind)}
	}
	return e, nil
}

// LinkFor returns the link for a related table name.
func (e *Entity) LinkFor(table string) (Link, bool) {
	for _, l := range e.Links {
		if l.Table.Name == table {
			return l, true
		}
	}
	return Link{}, false
}

// Fields lists every filterable field name of kind, primary columns first.
func Fields(kind domain.Kind) []string {
	e, ok := entities[kind]
	if !ok {
		return nil
	}
	out := e.Primary.ColumnNames()
	for i := len(e.Links) - 1; i >= 0; i-- {
		l := e.Links[i]
		for _, c := range l.Table.Columns {
			out = append(out, l.Prefix+c.Name)
		}
	}
	return out
}

// TableByName returns the table definition by name.
func TableByName(name string) (*Table, bool) {
	for _, t := range []*Table{records, groups, recordEnrichments, groupEnrichments} {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}
