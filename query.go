package catalogq

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/model"
	"github.com/kailas-cloud/catalogq/internal/domain/page"
	"github.com/kailas-cloud/catalogq/internal/domain/query"
)

// Query is a fluent builder for one catalog query.
type Query struct {
	c      *Client
	req    query.Request
	filter Filter
	err    error
}

func newQuery(c *Client, kind Kind) *Query {
	return &Query{c: c, req: query.Request{Kind: kind}}
}

// Filter sets the filter tree. Without one every row matches.
func (q *Query) Filter(f Filter) *Query {
	q.filter = f
	return q
}

// OrderBy sorts by field. Without it rows come newest first by created_at.
func (q *Query) OrderBy(field string, dir Direction) *Query {
	q.req.Order = query.Order{Field: field, Direction: dir}
	return q
}

// Limit sets the page size.
func (q *Query) Limit(n int) *Query {
	q.req.Page.Limit = n
	return q
}

// Offset sets the number of rows to skip. It excludes Cursor.
func (q *Query) Offset(n int) *Query {
	q.req.Page.Offset = n
	return q
}

// Cursor continues from a Next or Prev token of an earlier page.
func (q *Query) Cursor(token string) *Query {
	q.req.Page.Cursor = token
	return q
}

// Populate hydrates relations: "group", "enrichment", "group_enrichment".
func (q *Query) Populate(relations ...string) *Query {
	p, unknown := model.ParsePopulate(relations)
	if len(unknown) > 0 && q.err == nil {
		q.err = &domain.SpecificationError{Field: "populate", Reason: fmt.Sprintf("unknown relations %v", unknown)}
	}
	q.req.Populate = p
	return q
}

// ExactCount requests the total number of matching rows with the page.
func (q *Query) ExactCount() *Query {
	q.req.ExactCount = true
	return q
}

// Route overrides the routing mode for this query.
func (q *Query) Route(r Route) *Query {
	q.req.Route = r
	return q
}

func (q *Query) build() (query.Request, error) {
	if q.err != nil {
		return query.Request{}, q.err
	}
	if q.filter.err != nil {
		return query.Request{}, q.filter.err
	}
	req := q.req
	req.Filter = q.filter.node
	return req, nil
}

// Do runs the query and returns one page.
func (q *Query) Do(ctx context.Context) (Page, error) {
	req, err := q.build()
	if err != nil {
		return Page{}, err
	}
	pg, err := q.c.queries.Query(ctx, req)
	if err != nil {
		return Page{}, fmt.Errorf("query %s: %w", req.Kind, err)
	}
	return pg, nil
}

// Count returns the exact number of matching rows. Paging is ignored.
func (q *Query) Count(ctx context.Context) (int, error) {
	req, err := q.build()
	if err != nil {
		return 0, err
	}
	n, err := q.c.queries.Count(ctx, req.Kind, req.Filter)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", req.Kind, err)
	}
	return n, nil
}

// IDs returns up to limit primary keys of matching rows in default order.
func (q *Query) IDs(ctx context.Context, limit int) ([]string, error) {
	req, err := q.build()
	if err != nil {
		return nil, err
	}
	ids, err := q.c.queries.UuidsMatching(ctx, req.Kind, req.Filter, limit)
	if err != nil {
		return nil, fmt.Errorf("ids %s: %w", req.Kind, err)
	}
	return ids, nil
}

// Pages walks every page from the current position, calling fn until it
// returns false, an error occurs or the rows run out.
func (q *Query) Pages(ctx context.Context, fn func(Page) bool) error {
	for {
		pg, err := q.Do(ctx)
		if err != nil {
			return err
		}
		if !fn(pg) || pg.Next == "" {
			return nil
		}
		q.req.Page = page.Request{Limit: pg.Limit, Cursor: pg.Next}
	}
}
