package chi

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/filter"
	"github.com/kailas-cloud/catalogq/internal/domain/model"
	"github.com/kailas-cloud/catalogq/internal/domain/page"
	"github.com/kailas-cloud/catalogq/internal/domain/query"
	healthuc "github.com/kailas-cloud/catalogq/internal/usecase/health"
)

// queryBody is the JSON body of POST /v1/{kind}/query.
type queryBody struct {
	Filter     json.RawMessage `json:"filter"`
	Order      string          `json:"order"`
	Limit      int             `json:"limit"`
	Offset     int             `json:"offset"`
	Cursor     string          `json:"cursor"`
	Populate   []string        `json:"populate"`
	ExactCount bool            `json:"exact_count"`
	Route      string          `json:"route"`
}

type countResponse struct {
	Kind  domain.Kind `json:"kind"`
	Count int         `json:"count"`
}

type idsResponse struct {
	Kind domain.Kind `json:"kind"`
	IDs  []string    `json:"ids"`
}

type healthResponse struct {
	Status string                          `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

func (b queryBody) request(kindName string) (query.Request, error) {
	kind, err := domain.ParseKind(kindName)
	if err != nil {
		return query.Request{}, err //nolint:wrapcheck // specification errors are returned as-is
	}
	f, err := filter.Decode(b.Filter)
	if err != nil {
		return query.Request{}, err //nolint:wrapcheck // specification errors are returned as-is
	}
	return assemble(kind, f, b.Order, b.Route, b.Populate,
		page.Request{Limit: b.Limit, Offset: b.Offset, Cursor: b.Cursor}, b.ExactCount)
}

// queryFromURL parses GET /v1/{kind}?filter=&order=&limit=&offset=&cursor=&populate=&count=&route=.
func queryFromURL(kindName string, q url.Values) (query.Request, error) {
	kind, f, err := kindAndFilter(kindName, q)
	if err != nil {
		return query.Request{}, err
	}
	limit, err := intParam(q, "limit")
	if err != nil {
		return query.Request{}, err
	}
	offset, err := intParam(q, "offset")
	if err != nil {
		return query.Request{}, err
	}
	count, err := boolParam(q, "count")
	if err != nil {
		return query.Request{}, err
	}
	var populate []string
	if v := q.Get("populate"); v != "" {
		populate = strings.Split(v, ",")
	}
	return assemble(kind, f, q.Get("order"), q.Get("route"), populate,
		page.Request{Limit: limit, Offset: offset, Cursor: q.Get("cursor")}, count)
}

func assemble(
	kind domain.Kind, f filter.Node, order, route string, populate []string, pg page.Request, count bool,
) (query.Request, error) {
	o, err := query.ParseOrder(order)
	if err != nil {
		return query.Request{}, err //nolint:wrapcheck // specification errors are returned as-is
	}
	rt, err := query.ParseRoute(route)
	if err != nil {
		return query.Request{}, err //nolint:wrapcheck // specification errors are returned as-is
	}
	p, unknown := model.ParsePopulate(trimAll(populate))
	if len(unknown) > 0 {
		return query.Request{}, &domain.SpecificationError{
			Field:  "populate",
			Reason: fmt.Sprintf("unknown relation %q", unknown[0]),
		}
	}
	return query.Request{
		Kind:       kind,
		Filter:     f,
		Order:      o,
		Page:       pg,
		Populate:   p,
		ExactCount: count,
		Route:      rt,
	}, nil
}

func kindAndFilter(kindName string, q url.Values) (domain.Kind, filter.Node, error) {
	kind, err := domain.ParseKind(kindName)
	if err != nil {
		return "", nil, err //nolint:wrapcheck // specification errors are returned as-is
	}
	f, err := filter.Decode([]byte(q.Get("filter")))
	if err != nil {
		return "", nil, err //nolint:wrapcheck // specification errors are returned as-is
	}
	return kind, f, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &domain.SpecificationError{Field: name, Reason: "must be an integer"}
	}
	return n, nil
}

func boolParam(q url.Values, name string) (bool, error) {
	v := q.Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &domain.SpecificationError{Field: name, Reason: "must be a boolean"}
	}
	return b, nil
}

func trimAll(ss []string) []string {
	out := ss[:0:0]
	for _, s := range ss {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}
