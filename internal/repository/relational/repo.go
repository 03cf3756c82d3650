// Package relational executes compiled plans against the SQL backend and
// hydrates matching keys into denormalised rows.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/filter"
	"github.com/kailas-cloud/catalogq/internal/domain/model"
	"github.com/kailas-cloud/catalogq/internal/domain/query"
	"github.com/kailas-cloud/catalogq/internal/domain/result"
	"github.com/kailas-cloud/catalogq/internal/planner"
)

// Statement labels for the backend duration histogram.
const (
	stmtSelect = "select"
	stmtCount  = "count"
	stmtIDs    = "ids"
	stmtLookup = "lookup"
)

// Hydration chunking defaults.
const (
	DefaultChunkThreshold = 1000
	DefaultChunkSize      = 500
)

// querier is the consumer interface for the SQL backend (ISP). *sql.DB implements it.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Options tune the repository.
type Options struct {
	// ChunkThreshold is the key-set size above which lookups are split.
	ChunkThreshold int
	// ChunkSize is the number of keys per split lookup.
	ChunkSize int
	// StmtDuration observes statement latency, label "stmt". Optional.
	StmtDuration *prometheus.HistogramVec
	Logger       *zap.Logger
}

// Repo runs queries on the relational backend.
type Repo struct {
	db             querier
	planner        *planner.Planner
	chunkThreshold int
	chunkSize      int
	stmtDuration   *prometheus.HistogramVec
	logger         *zap.Logger
}

// New creates a relational repository.
func New(db querier, p *planner.Planner, opts Options) *Repo {
	if opts.ChunkThreshold <= 0 {
		opts.ChunkThreshold = DefaultChunkThreshold
	}
	if opts.ChunkSize <= 0 || opts.ChunkSize > opts.ChunkThreshold {
		opts.ChunkSize = min(DefaultChunkSize, opts.ChunkThreshold)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Repo{
		db:             db,
		planner:        p,
		chunkThreshold: opts.ChunkThreshold,
		chunkSize:      opts.ChunkSize,
		stmtDuration:   opts.StmtDuration,
		logger:         opts.Logger,
	}
}

// Planner returns the planner statements are compiled with.
func (r *Repo) Planner() *planner.Planner { return r.planner }

// Search returns one ordered window of matching rows, hydrated with the requested relations.
func (r *Repo) Search(
	ctx context.Context, kind domain.Kind, f filter.Node, order query.Order,
	limit, offset int, populate model.Populate,
) (result.Rows, error) {
	plan, err := r.planner.Select(kind, f, order, limit, offset)
	if err != nil {
		return result.Rows{}, err
	}
	keys, err := r.keys(ctx, stmtSelect, plan)
	if err != nil {
		return result.Rows{}, err
	}
	return r.Hydrate(ctx, kind, keys, populate)
}

// Count returns the exact number of matching rows.
func (r *Repo) Count(ctx context.Context, kind domain.Kind, f filter.Node) (int, error) {
	plan, err := r.planner.Count(kind, f)
	if err != nil {
		return 0, err
	}
	defer r.observe(stmtCount, time.Now())

	var n int
	if err := r.db.QueryRowContext(ctx, plan.SQL, plan.Args...).Scan(&n); err != nil {
		return 0, backendErr(stmtCount, kind, err)
	}
	return n, nil
}

// IDs returns up to limit matching keys in default order. Limits above the
// chunk threshold are read in sequential windows of chunk size.
func (r *Repo) IDs(ctx context.Context, kind domain.Kind, f filter.Node, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	step := limit
	if limit > r.chunkThreshold {
		step = r.chunkSize
	}
	out := make([]string, 0, min(limit, r.chunkThreshold))
	for offset := 0; offset < limit; offset += step {
		n := min(step, limit-offset)
		plan, err := r.planner.IDs(kind, f, n, offset)
		if err != nil {
			return nil, err
		}
		keys, err := r.keys(ctx, stmtIDs, plan)
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
		if len(keys) < n {
			break
		}
	}
	return out, nil
}

func (r *Repo) keys(ctx context.Context, stmt string, plan planner.Plan) ([]string, error) {
	defer r.observe(stmt, time.Now())

	rows, err := r.db.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, backendErr(stmt, "", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, backendErr(stmt, "", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, backendErr(stmt, "", err)
	}
	return keys, nil
}

func (r *Repo) observe(stmt string, start time.Time) {
	if r.stmtDuration != nil {
		r.stmtDuration.WithLabelValues(stmt).Observe(time.Since(start).Seconds())
	}
}

// backendErr marks err as a backend failure while keeping context errors visible.
func backendErr(stmt string, kind domain.Kind, err error) error {
	if kind != "" {
		return fmt.Errorf("%w: %s %s: %w", domain.ErrBackend, stmt, kind, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrBackend, stmt, err)
}
