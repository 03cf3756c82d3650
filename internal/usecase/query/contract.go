package query

import (
	"context"

	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/filter"
	"github.com/kailas-cloud/catalogq/internal/domain/model"
	domquery "github.com/kailas-cloud/catalogq/internal/domain/query"
	"github.com/kailas-cloud/catalogq/internal/domain/result"
)

// Relational defines the storage contract of the relational path.
type Relational interface {
	Search(
		ctx context.Context, kind domain.Kind, f filter.Node, order domquery.Order,
		limit, offset int, populate model.Populate,
	) (result.Rows, error)
	Count(ctx context.Context, kind domain.Kind, f filter.Node) (int, error)
	IDs(ctx context.Context, kind domain.Kind, f filter.Node, limit int) ([]string, error)
	Hydrate(ctx context.Context, kind domain.Kind, keys []string, populate model.Populate) (result.Rows, error)
}

// Delegate is the external search service. The count returned by Search is
// nil unless the delegate reported an exact total.
type Delegate interface {
	Search(
		ctx context.Context, kind domain.Kind, f filter.Node, order domquery.Order, limit, offset int,
	) (result.Rows, *int, error)
	Count(ctx context.Context, kind domain.Kind, f filter.Node) (int, error)
	IDs(ctx context.Context, kind domain.Kind, f filter.Node, limit int) ([]string, error)
}

// Cache memoises results by canonical request. Implementations swallow
// their own failures.
type Cache interface {
	Key(kind domain.Kind, canonical []byte) string
	Page(ctx context.Context, key string, load func(context.Context) (result.Page, error)) (result.Page, error)
	Count(ctx context.Context, key string, load func(context.Context) (int, error)) (int, error)
	IDs(ctx context.Context, key string, load func(context.Context) ([]string, error)) ([]string, error)
	Invalidate(ctx context.Context, kind domain.Kind)
}
