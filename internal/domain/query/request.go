// Package query holds the inbound query descriptor.
package query

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/filter"
	"github.com/kailas-cloud/catalogq/internal/domain/model"
	"github.com/kailas-cloud/catalogq/internal/domain/page"
)

// Direction is a sort direction.
type Direction string

const (
	// Asc sorts ascending.
	Asc Direction = "asc"
	// Desc sorts descending.
	Desc Direction = "desc"
)

// Order is a sort key. The zero value means the default ordering.
type Order struct {
	Field     string    `json:"field,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

// IsDefault reports whether no explicit order was requested.
func (o Order) IsDefault() bool { return o.Field == "" }

// Descending reports whether the order is descending.
func (o Order) Descending() bool { return o.Direction == Desc }

// ParseOrder parses "field", "-field", "field:asc" or "field:desc".
func ParseOrder(s string) (Order, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Order{}, nil
	}
	if rest, ok := strings.CutPrefix(s, "-"); ok {
		return Order{Field: rest, Direction: Desc}, nil
	}
	field, dir, hasDir := strings.Cut(s, ":")
	if !hasDir {
		return Order{Field: field, Direction: Asc}, nil
	}
	switch Direction(strings.ToLower(dir)) {
	case Asc:
		return Order{Field: field, Direction: Asc}, nil
	case Desc:
		return Order{Field: field, Direction: Desc}, nil
	default:
		return Order{}, &domain.SpecificationError{Field: "order", Reason: fmt.Sprintf("unknown direction %q", dir)}
	}
}

// String renders the order in ParseOrder syntax.
func (o Order) String() string {
	if o.IsDefault() {
		return ""
	}
	if o.Descending() {
		return "-" + o.Field
	}
	return o.Field
}

// Route selects the execution path for a single call.
type Route string

// Routes.
const (
	RouteAuto       Route = ""
	RouteDelegate   Route = "delegate"
	RouteRelational Route = "relational"
)

// ParseRoute validates a per-call route override.
func ParseRoute(s string) (Route, error) {
	switch r := Route(strings.ToLower(s)); r {
	case RouteAuto, RouteDelegate, RouteRelational:
		return r, nil
	default:
		return "", &domain.SpecificationError{Field: "route", Reason: fmt.Sprintf("unknown route %q", s)}
	}
}

// Request is a full query: what to match, how to order and which page.
type Request struct {
	Kind       domain.Kind
	Filter     filter.Node
	Order      Order
	Page       page.Request
	Populate   model.Populate
	ExactCount bool
	Route      Route
	// Link is the caller-facing URL of this request; next/prev links are
	// derived from it when set.
	Link *url.URL
}

// Validate checks the parts of the request that do not need the catalog.
func (r Request) Validate() error {
	if !r.Kind.IsValid() {
		return &domain.SpecificationError{Reason: fmt.Sprintf("unknown entity kind %q", r.Kind)}
	}
	if r.Order.Direction != "" && r.Order.Direction != Asc && r.Order.Direction != Desc {
		return &domain.SpecificationError{Field: "order", Reason: fmt.Sprintf("unknown direction %q", r.Order.Direction)}
	}
	if r.Kind == domain.KindGroup && r.Populate.Group {
		return &domain.SpecificationError{Field: "populate", Reason: "groups have no parent group"}
	}
	return nil
}

// NormalizedPopulate folds relation aliases per kind: for groups
// "group_enrichment" means the group's own enrichment, and for records
// a group enrichment requires the group itself.
func (r Request) NormalizedPopulate() model.Populate {
	p := r.Populate
	switch r.Kind {
	case domain.KindGroup:
		if p.GroupEnrichment {
			p.Enrichment = true
			p.GroupEnrichment = false
		}
	case domain.KindRecord:
		if p.GroupEnrichment {
			p.Group = true
		}
	}
	return p
}

// Canonical is the normalised form of a request used for cache keys.
// Logically identical requests produce identical bytes.
func (r Request) Canonical(w page.Window) []byte {
	c := struct {
		Kind     domain.Kind    `json:"k"`
		Filter   string         `json:"f"`
		Order    string         `json:"o"`
		Limit    int            `json:"l"`
		Offset   int            `json:"off"`
		Populate model.Populate `json:"p"`
		Count    bool           `json:"c"`
	}{
		Kind:     r.Kind,
		Filter:   filter.Canonical(r.Filter),
		Order:    r.Order.String(),
		Limit:    w.Limit,
		Offset:   w.Offset,
		Populate: r.NormalizedPopulate(),
		Count:    r.ExactCount,
	}
	raw, _ := json.Marshal(c)
	return raw
}
