// Package query routes catalog queries between the search delegate and the
// relational backend and assembles result pages.
package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/filter"
	"github.com/kailas-cloud/catalogq/internal/domain/model"
	"github.com/kailas-cloud/catalogq/internal/domain/page"
	domquery "github.com/kailas-cloud/catalogq/internal/domain/query"
	"github.com/kailas-cloud/catalogq/internal/domain/result"
	"github.com/kailas-cloud/catalogq/internal/domain/schema"
	logpkg "github.com/kailas-cloud/catalogq/internal/logger"
	"github.com/kailas-cloud/catalogq/internal/metrics"
)

// Mode is the global routing mode.
type Mode string

// Routing modes.
const (
	ModeDelegateFirst Mode = "delegate_first"
	ModeRelational    Mode = "relational"
)

// servedByCache labels metrics of calls answered from the result cache.
const servedByCache = "cache"

// Options configure the Service.
type Options struct {
	Mode Mode
	// SupportedFields are the fields the delegate can filter and sort on.
	// Empty means every catalog field.
	SupportedFields []string
	// Rehydrate reloads delegate rows through the relational hydrator.
	Rehydrate       bool
	DefaultPageSize int
	MaxPageSize     int
	SlowThreshold   time.Duration
	// DefaultTimeout bounds calls whose context has no deadline.
	DefaultTimeout time.Duration
	Cursor         *page.Codec
	Logger         *zap.Logger
}

// Service executes queries.
type Service struct {
	relational Relational
	delegate   Delegate
	cache      Cache

	mode            Mode
	supported       map[string]bool
	rehydrate       bool
	defaultPageSize int
	maxPageSize     int
	slowThreshold   time.Duration
	defaultTimeout  time.Duration
	cursor          *page.Codec
	logger          *zap.Logger
}

// New creates a query service. delegate and cache may be nil.
func New(relational Relational, delegate Delegate, cache Cache, opts Options) *Service {
	if opts.Mode == "" {
		opts.Mode = ModeDelegateFirst
	}
	if opts.Cursor == nil {
		opts.Cursor = page.NewCodec("")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	var supported map[string]bool
	if len(opts.SupportedFields) > 0 {
		supported = make(map[string]bool, len(opts.SupportedFields))
		for _, f := range opts.SupportedFields {
			supported[f] = true
		}
	}
	return &Service{
		relational:      relational,
		delegate:        delegate,
		cache:           cache,
		mode:            opts.Mode,
		supported:       supported,
		rehydrate:       opts.Rehydrate,
		defaultPageSize: opts.DefaultPageSize,
		maxPageSize:     opts.MaxPageSize,
		slowThreshold:   opts.SlowThreshold,
		defaultTimeout:  opts.DefaultTimeout,
		cursor:          opts.Cursor,
		logger:          opts.Logger,
	}
}

// Query returns one page of rows matching req.
func (s *Service) Query(ctx context.Context, req domquery.Request) (result.Page, error) {
	start := time.Now()
	w, err := s.prepare(req)
	if err != nil {
		return result.Page{}, s.fail("query", req.Kind, err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	servedBy := servedByCache
	load := func(ctx context.Context) (result.Page, error) {
		pg, err := s.execute(ctx, req, w)
		servedBy = string(pg.ServedBy)
		return pg, err
	}
	var pg result.Page
	if s.cache != nil {
		pg, err = s.cache.Page(ctx, s.cache.Key(req.Kind, req.Canonical(w)), load)
	} else {
		pg, err = load(ctx)
	}
	if err != nil {
		return result.Page{}, s.fail("query", req.Kind, err)
	}

	links := s.cursor.Links(req.Link, w, pg.Rows.Len())
	pg.Next, pg.Prev = links.Next, links.Prev
	pg.NextLink, pg.PrevLink = links.NextLink, links.PrevLink

	s.done(ctx, "query", req.Kind, servedBy, pg.Fallback, start)
	return pg, nil
}

// Count returns the exact number of rows of kind matching f.
func (s *Service) Count(ctx context.Context, kind domain.Kind, f filter.Node) (int, error) {
	start := time.Now()
	req := domquery.Request{Kind: kind, Filter: f, ExactCount: true}
	if err := s.check(req); err != nil {
		return 0, s.fail("count", kind, err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var out outcome
	out.servedBy = servedByCache
	load := func(ctx context.Context) (int, error) {
		var n int
		o, err := s.run(ctx, call{
			op:     "count",
			kind:   kind,
			fields: filter.Fields(f),
			viaDelegate: s.delegateStep(func(ctx context.Context) (err error) {
				n, err = s.delegate.Count(ctx, kind, f)
				return err
			}),
			viaRelational: func(ctx context.Context) (err error) {
				n, err = s.relational.Count(ctx, kind, f)
				return err
			},
		})
		out = o
		return n, err
	}
	var (
		n   int
		err error
	)
	if s.cache != nil {
		n, err = s.cache.Count(ctx, s.cache.Key(kind, append([]byte("count:"), req.Canonical(page.Window{})...)), load)
	} else {
		n, err = load(ctx)
	}
	if err != nil {
		return 0, s.fail("count", kind, err)
	}
	s.done(ctx, "count", kind, string(out.servedBy), out.fallback, start)
	return n, nil
}

// UuidsMatching returns up to limit keys of kind matching f in default
// order. Large limits are served in chunks by the relational backend.
func (s *Service) UuidsMatching(ctx context.Context, kind domain.Kind, f filter.Node, limit int) ([]string, error) {
	start := time.Now()
	req := domquery.Request{Kind: kind, Filter: f}
	err := s.check(req)
	if err == nil && limit <= 0 {
		err = &domain.SpecificationError{Field: "limit", Reason: "must be positive"}
	}
	if err != nil {
		return nil, s.fail("ids", kind, err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var out outcome
	out.servedBy = servedByCache
	load := func(ctx context.Context) ([]string, error) {
		var ids []string
		o, err := s.run(ctx, call{
			op:     "ids",
			kind:   kind,
			fields: filter.Fields(f),
			viaDelegate: s.delegateStep(func(ctx context.Context) (err error) {
				ids, err = s.delegate.IDs(ctx, kind, f, limit)
				return err
			}),
			viaRelational: func(ctx context.Context) (err error) {
				ids, err = s.relational.IDs(ctx, kind, f, limit)
				return err
			},
		})
		out = o
		return ids, err
	}
	var ids []string
	if s.cache != nil {
		key := s.cache.Key(kind, append([]byte("ids:"), req.Canonical(page.Window{Limit: limit})...))
		ids, err = s.cache.IDs(ctx, key, load)
	} else {
		ids, err = load(ctx)
	}
	if err != nil {
		return nil, s.fail("ids", kind, err)
	}
	if ids == nil {
		ids = []string{}
	}
	s.done(ctx, "ids", kind, string(out.servedBy), out.fallback, start)
	return ids, nil
}

// Invalidate drops cached results after a write to kind.
func (s *Service) Invalidate(ctx context.Context, kind domain.Kind) error {
	if !kind.IsValid() {
		return &domain.SpecificationError{Reason: fmt.Sprintf("unknown entity kind %q", kind)}
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, kind)
	}
	return nil
}

// execute runs an uncached query through the router.
func (s *Service) execute(ctx context.Context, req domquery.Request, w page.Window) (result.Page, error) {
	pg := result.Page{Kind: req.Kind, Limit: w.Limit, Offset: w.Offset}
	populate := req.NormalizedPopulate()

	out, err := s.run(ctx, call{
		op:     "query",
		kind:   req.Kind,
		route:  req.Route,
		fields: requestFields(req),
		viaDelegate: s.delegateStep(func(ctx context.Context) error {
			rows, total, err := s.delegate.Search(ctx, req.Kind, req.Filter, req.Order, w.Limit, w.Offset)
			if err != nil {
				return err //nolint:wrapcheck // delegate errors are typed
			}
			if s.rehydrate {
				if rows, err = s.relational.Hydrate(ctx, req.Kind, rows.IDs(), populate); err != nil {
					return fmt.Errorf("rehydrate delegate rows: %w", err)
				}
			} else {
				rows = shape(rows, populate)
			}
			if req.ExactCount && total == nil {
				n, err := s.delegate.Count(ctx, req.Kind, req.Filter)
				if err != nil {
					return err //nolint:wrapcheck // delegate errors are typed
				}
				total = &n
			}
			pg.Rows = rows
			if req.ExactCount {
				pg.Total = total
			}
			return nil
		}),
		viaRelational: func(ctx context.Context) error {
			rows, err := s.relational.Search(ctx, req.Kind, req.Filter, req.Order, w.Limit, w.Offset, populate)
			if err != nil {
				return err //nolint:wrapcheck // repository errors are already wrapped
			}
			var total *int
			if req.ExactCount {
				n, err := s.relational.Count(ctx, req.Kind, req.Filter)
				if err != nil {
					return err //nolint:wrapcheck // repository errors are already wrapped
				}
				total = &n
			}
			pg.Rows, pg.Total = rows, total
			return nil
		},
	})
	if err != nil {
		return result.Page{}, err
	}
	pg.ServedBy, pg.Fallback = out.servedBy, out.fallback
	return pg, nil
}

// delegateStep returns nil when no delegate is configured so that the
// router never selects it.
func (s *Service) delegateStep(fn func(context.Context) error) func(context.Context) error {
	if s.delegate == nil {
		return nil
	}
	return fn
}

// check validates the request against the catalog without touching a backend.
func (s *Service) check(req domquery.Request) error {
	if err := req.Validate(); err != nil {
		return err //nolint:wrapcheck // specification errors are returned as-is
	}
	if _, err := schema.Classify(req.Kind, req.Filter); err != nil {
		return err //nolint:wrapcheck // specification errors are returned as-is
	}
	if !req.Order.IsDefault() {
		if _, err := schema.ResolveSort(req.Kind, req.Order.Field); err != nil {
			return err //nolint:wrapcheck // specification errors are returned as-is
		}
	}
	return nil
}

func (s *Service) prepare(req domquery.Request) (page.Window, error) {
	if err := s.check(req); err != nil {
		return page.Window{}, err
	}
	return s.cursor.Resolve(req.Page, s.defaultPageSize, s.maxPageSize) //nolint:wrapcheck // specification errors are returned as-is
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.defaultTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.defaultTimeout)
}

func (s *Service) done(ctx context.Context, op string, kind domain.Kind, servedBy string, fallback bool, start time.Time) {
	elapsed := time.Since(start)
	metrics.QueriesTotal.WithLabelValues(op, string(kind), servedBy).Inc()
	metrics.QueryDuration.WithLabelValues(op, string(kind), servedBy).Observe(elapsed.Seconds())
	if s.slowThreshold <= 0 || elapsed <= s.slowThreshold {
		return
	}
	metrics.SlowQueriesTotal.WithLabelValues(op, string(kind), strconv.FormatBool(fallback)).Inc()
	logpkg.FromContextOr(ctx, s.logger).Warn("Slow query",
		zap.String("op", op),
		zap.String("kind", string(kind)),
		zap.String("served_by", servedBy),
		zap.Bool("fallback", fallback),
		zap.Duration("elapsed", elapsed),
		zap.Duration("threshold", s.slowThreshold),
		zap.Bool("canceled", ctx.Err() != nil),
	)
}

func (s *Service) fail(op string, kind domain.Kind, err error) error {
	class := errorClass(err)
	metrics.QueryErrorsTotal.WithLabelValues(op, string(kind), class).Inc()
	if class != "specification" && class != "canceled" {
		s.logger.Error("Query failed",
			zap.String("op", op),
			zap.String("kind", string(kind)),
			zap.String("class", class),
			zap.Error(err),
		)
	}
	return err
}

func errorClass(err error) string {
	switch {
	case domain.IsSpecification(err):
		return "specification"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, domain.ErrServiceUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrBackend):
		return "backend"
	default:
		return "internal"
	}
}

// requestFields are the fields the delegate must support to serve req.
func requestFields(req domquery.Request) []string {
	fields := filter.Fields(req.Filter)
	if !req.Order.IsDefault() {
		fields = append(fields, req.Order.Field)
	}
	return fields
}

// shape aligns denormalised delegate rows with the requested relations:
// unrequested relations are dropped and requested ones the delegate left
// out become absent.
func shape(rows result.Rows, p model.Populate) result.Rows {
	for i := range rows.Records {
		rec := &rows.Records[i]
		rec.Group = keep(rec.Group, p.Group)
		rec.Enrichment = keep(rec.Enrichment, p.Enrichment)
		if g := rec.Group.Value(); g != nil {
			g.Enrichment = keep(g.Enrichment, p.GroupEnrichment)
		}
	}
	for i := range rows.Groups {
		rows.Groups[i].Enrichment = keep(rows.Groups[i].Enrichment, p.Enrichment)
	}
	return rows
}

func keep[T any](r model.Relation[T], requested bool) model.Relation[T] {
	switch {
	case !requested:
		return model.Relation[T]{}
	case !r.Requested():
		return model.Absent[T]()
	default:
		return r
	}
}
