package catalogq

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogq/internal/db"
	dbRedis "github.com/kailas-cloud/catalogq/internal/db/redis"
	sqldb "github.com/kailas-cloud/catalogq/internal/db/sql"
	"github.com/kailas-cloud/catalogq/internal/domain/page"
	"github.com/kailas-cloud/catalogq/internal/metrics"
	"github.com/kailas-cloud/catalogq/internal/planner"
	"github.com/kailas-cloud/catalogq/internal/repository/relational"
	"github.com/kailas-cloud/catalogq/internal/repository/resultcache"
	"github.com/kailas-cloud/catalogq/internal/transport/delegate"
	healthuc "github.com/kailas-cloud/catalogq/internal/usecase/health"
	queryuc "github.com/kailas-cloud/catalogq/internal/usecase/query"
)

const defaultReadinessTimeout = 10 * time.Second

// Client is the catalogq SDK entry point.
type Client struct {
	conn      *sql.DB
	ownsConn  bool
	store     db.Store // nil without a cache
	queries   *queryuc.Service
	healthSvc *healthuc.Service
}

// New creates a Client and connects to the configured backends.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.driver == "" || (cfg.dsn == "" && cfg.conn == nil) {
		return nil, errors.New("catalogq: relational backend required (use WithPostgres, WithSQLite or WithDB)")
	}

	ctx := context.Background()
	c := &Client{conn: cfg.conn}
	dialect, err := sqldb.ForDriver(cfg.driver)
	if err != nil {
		return nil, fmt.Errorf("catalogq: %w", err)
	}
	if c.conn == nil {
		c.conn, dialect, err = sqldb.Open(ctx, sqldb.Config{Driver: cfg.driver, DSN: cfg.dsn})
		if err != nil {
			return nil, fmt.Errorf("catalogq: %w", err)
		}
		c.ownsConn = true
	}

	if err := c.wire(ctx, cfg, dialect); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) wire(ctx context.Context, cfg *clientConfig, dialect sqldb.Dialect) error {
	// Pass nil interfaces (not typed nil pointers) for disabled components.
	var (
		cache       queryuc.Cache
		cachePinger healthuc.CachePinger
	)
	if len(cfg.cacheAddrs) > 0 {
		store, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.cacheAddrs, Password: cfg.cachePassword})
		if err != nil {
			return fmt.Errorf("catalogq: create cache store: %w", err)
		}
		c.store = store
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			return fmt.Errorf("catalogq: cache not ready: %w", err)
		}
		cache = resultcache.New(store, resultcache.Options{
			TTL:        cfg.cacheTTL,
			CacheTotal: metrics.CacheTotal,
			Logger:     cfg.logger,
		})
		cachePinger = store
	}

	var (
		searchDelegate  queryuc.Delegate
		delegateChecker healthuc.DelegateChecker
	)
	if cfg.delegateURL != "" {
		client, err := delegate.New(delegate.Config{
			BaseURL:    cfg.delegateURL,
			Credential: cfg.delegateCredential,
			Timeout:    cfg.delegateTimeout,
			Retries:    1,
			Logger:     cfg.logger,
		})
		if err != nil {
			return fmt.Errorf("catalogq: %w", err)
		}
		searchDelegate = client
		delegateChecker = client
	}

	mode := queryuc.ModeDelegateFirst
	if cfg.relationalOnly {
		mode = queryuc.ModeRelational
	}
	repo := relational.New(c.conn, planner.New(dialect), relational.Options{
		StmtDuration: metrics.BackendQueryDuration,
		Logger:       cfg.logger,
	})
	c.queries = queryuc.New(repo, searchDelegate, cache, queryuc.Options{
		Mode:            mode,
		SupportedFields: cfg.supportedFields,
		Rehydrate:       cfg.rehydrate,
		DefaultPageSize: cfg.pageSize,
		MaxPageSize:     cfg.maxPageSize,
		Cursor:          page.NewCodec(cfg.cursorSecret),
		Logger:          cfg.logger,
	})
	c.healthSvc = healthuc.New(c.conn, cachePinger, delegateChecker, cfg.logger)
	return nil
}

// Close releases all resources. A pool passed through WithDB stays open.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
	if c.ownsConn && c.conn != nil {
		_ = c.conn.Close()
	}
}

// Ping checks relational backend connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Health probes every configured backend.
func (c *Client) Health(ctx context.Context) HealthReport {
	return c.healthSvc.Check(ctx)
}

// Records starts a query over records.
func (c *Client) Records() *Query {
	return newQuery(c, KindRecord)
}

// Groups starts a query over groups.
func (c *Client) Groups() *Query {
	return newQuery(c, KindGroup)
}

// Invalidate drops cached results for kind. Call it after writing to the
// catalog; invalidating groups also drops record results.
func (c *Client) Invalidate(ctx context.Context, kind Kind) error {
	if err := c.queries.Invalidate(ctx, kind); err != nil {
		return fmt.Errorf("invalidate: %w", err)
	}
	return nil
}
