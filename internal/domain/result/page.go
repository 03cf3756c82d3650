// Package result holds the Result Page returned by queries.
package result

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/model"
)

// ServedBy names the execution path that produced a page.
type ServedBy string

// Execution paths.
const (
	ServedByDelegate   ServedBy = "delegate"
	ServedByRelational ServedBy = "relational"
)

// Rows is an ordered set of hydrated rows of a single kind.
type Rows struct {
	Kind    domain.Kind
	Records []model.Record
	Groups  []model.Group
}

// Len returns the number of rows.
func (r Rows) Len() int {
	if r.Kind == domain.KindGroup {
		return len(r.Groups)
	}
	return len(r.Records)
}

// IDs returns primary keys in row order.
func (r Rows) IDs() []string {
	out := make([]string, 0, r.Len())
	if r.Kind == domain.KindGroup {
		for _, g := range r.Groups {
			out = append(out, g.ID)
		}
		return out
	}
	for _, rec := range r.Records {
		out = append(out, rec.ID)
	}
	return out
}

// MarshalJSON encodes rows as a plain JSON array.
func (r Rows) MarshalJSON() ([]byte, error) {
	if r.Kind == domain.KindGroup {
		if r.Groups == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(r.Groups)
	}
	if r.Records == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Records)
}

// DecodeRows decodes a JSON array of denormalised rows of kind.
func DecodeRows(kind domain.Kind, data []byte) (Rows, error) {
	rows := Rows{Kind: kind}
	var err error
	switch kind {
	case domain.KindRecord:
		err = json.Unmarshal(data, &rows.Records)
	case domain.KindGroup:
		err = json.Unmarshal(data, &rows.Groups)
	default:
		return Rows{}, fmt.Errorf("decode rows: unknown kind %q", kind)
	}
	if err != nil {
		return Rows{}, fmt.Errorf("decode %s rows: %w", kind, err)
	}
	return rows, nil
}

// Page is one page of query results.
type Page struct {
	Kind     domain.Kind `json:"kind"`
	Rows     Rows        `json:"rows"`
	Total    *int        `json:"total,omitempty"`
	Limit    int         `json:"limit"`
	Offset   int         `json:"offset"`
	Next     string      `json:"next,omitempty"`
	Prev     string      `json:"prev,omitempty"`
	NextLink string      `json:"next_link,omitempty"`
	PrevLink string      `json:"prev_link,omitempty"`
	ServedBy ServedBy    `json:"served_by"`
	Fallback bool        `json:"fallback,omitempty"`
}

// UnmarshalJSON restores a cached page, decoding rows by kind.
func (p *Page) UnmarshalJSON(data []byte) error {
	type alias Page
	var aux struct {
		alias
		Rows json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err //nolint:wrapcheck // json error is descriptive
	}
	*p = Page(aux.alias)
	rows := aux.Rows
	if len(rows) == 0 {
		rows = []byte("[]")
	}
	decoded, err := DecodeRows(p.Kind, rows)
	if err != nil {
		return err
	}
	p.Rows = decoded
	return nil
}
