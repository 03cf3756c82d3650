package catalogq

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	sqldb "github.com/kailas-cloud/catalogq/internal/db/sql"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	driver string
	dsn    string
	conn   *sql.DB

	cacheAddrs    []string
	cachePassword string
	cacheTTL      time.Duration

	delegateURL        string
	delegateCredential string
	delegateTimeout    time.Duration
	supportedFields    []string
	rehydrate          bool
	relationalOnly     bool

	cursorSecret string
	pageSize     int
	maxPageSize  int
	logger       *zap.Logger
}

// WithPostgres uses a PostgreSQL relational backend.
func WithPostgres(dsn string) Option {
	return func(c *clientConfig) {
		c.driver = sqldb.DriverPostgres
		c.dsn = dsn
	}
}

// WithSQLite uses a SQLite relational backend, e.g. "file:catalog.db" or
// "file::memory:?cache=shared".
func WithSQLite(dsn string) Option {
	return func(c *clientConfig) {
		c.driver = sqldb.DriverSQLite
		c.dsn = dsn
	}
}

// WithDB uses an already opened pool. driver is "postgres" or "sqlite".
// The Client does not close conn.
func WithDB(conn *sql.DB, driver string) Option {
	return func(c *clientConfig) {
		c.driver = driver
		c.conn = conn
	}
}

// WithRedisCache caches results in Redis or Valkey.
func WithRedisCache(password string, addrs ...string) Option {
	return func(c *clientConfig) {
		c.cacheAddrs = addrs
		c.cachePassword = password
	}
}

// WithCacheTTL sets how long cached results live.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *clientConfig) {
		c.cacheTTL = ttl
	}
}

// WithDelegate routes queries to an external search service first.
// supportedFields lists what it can filter and sort on; none means all.
func WithDelegate(baseURL, credential string, supportedFields ...string) Option {
	return func(c *clientConfig) {
		c.delegateURL = baseURL
		c.delegateCredential = credential
		c.supportedFields = supportedFields
	}
}

// WithDelegateTimeout bounds each delegate attempt.
func WithDelegateTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.delegateTimeout = d
	}
}

// WithRehydrate reloads delegate rows from the relational backend.
func WithRehydrate() Option {
	return func(c *clientConfig) {
		c.rehydrate = true
	}
}

// WithRelationalOnly keeps a configured delegate for explicit per-query
// routing but sends automatic routing to the relational backend.
func WithRelationalOnly() Option {
	return func(c *clientConfig) {
		c.relationalOnly = true
	}
}

// WithCursorSecret signs pagination cursors.
func WithCursorSecret(secret string) Option {
	return func(c *clientConfig) {
		c.cursorSecret = secret
	}
}

// WithPageSize sets the default and maximum page sizes.
func WithPageSize(defaultSize, maxSize int) Option {
	return func(c *clientConfig) {
		c.pageSize = defaultSize
		c.maxPageSize = maxSize
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}
