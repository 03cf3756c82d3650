// Package resultcache caches query results in a key-value store.
package resultcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/catalogq/internal/db"
	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/result"
)

// DefaultTTL applies when Options.TTL is zero.
const DefaultTTL = 5 * time.Minute

// store is the consumer interface for the result cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Options configure the cache.
type Options struct {
	TTL time.Duration
	// Prefix namespaces every key; defaults to domain.KeyPrefix.
	Prefix string
	// CacheTotal is a counter vec with label "result" ("hit"/"miss"/"error"). Optional.
	CacheTotal *prometheus.CounterVec
	Logger     *zap.Logger
}

// Cache stores JSON-encoded results with a TTL. Store failures are logged
// and never returned. A nil *Cache is a valid pass-through.
type Cache struct {
	store      store
	ttl        time.Duration
	prefix     string
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
	flight     singleflight.Group
	// gen is bumped by Invalidate. A load started under an older generation
	// is returned to its callers but never stored.
	gen atomic.Uint64
}

// New creates a result cache.
func New(s store, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Prefix == "" {
		opts.Prefix = domain.KeyPrefix
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Cache{
		store:      s,
		ttl:        opts.TTL,
		prefix:     opts.Prefix,
		cacheTotal: opts.CacheTotal,
		logger:     opts.Logger,
	}
}

// Key derives the cache key of a canonical request: <prefix>result:{<kind>}:<sha256>.
// The braces are a cluster hash tag, so every key of a kind lives in one slot.
func (c *Cache) Key(kind domain.Kind, canonical []byte) string {
	h := sha256.Sum256(canonical)
	return c.kindPrefix(kind) + hex.EncodeToString(h[:])
}

func (c *Cache) kindPrefix(kind domain.Kind) string {
	prefix := domain.KeyPrefix
	if c != nil {
		prefix = c.prefix
	}
	return prefix + "result:{" + string(kind) + "}:"
}

// Fetch returns the cached value for key or computes it with load and
// stores it. Concurrent misses on one key share a single load.
func Fetch[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}
	var v T
	if c.get(ctx, key, &v) {
		return v, nil
	}

	gen := c.gen.Load()
	res, err, shared := c.flight.Do(key+"@"+strconv.FormatUint(gen, 10), func() (any, error) {
		out, err := load(ctx)
		if err != nil {
			return out, err
		}
		if c.gen.Load() != gen {
			c.logger.Debug("Skipping cache write after invalidation", zap.String("key", key))
			return out, nil
		}
		c.set(ctx, key, out)
		return out, nil
	})
	if err != nil {
		// the leading caller's cancellation must not fail callers still waiting
		if shared && isContextErr(err) && ctx.Err() == nil {
			return load(ctx)
		}
		var zero T
		return zero, err //nolint:wrapcheck // load errors pass through unchanged
	}
	return res.(T), nil
}

// Page caches a result page.
func (c *Cache) Page(ctx context.Context, key string, load func(context.Context) (result.Page, error)) (result.Page, error) {
	return Fetch(ctx, c, key, load)
}

// Count caches an exact match count.
func (c *Cache) Count(ctx context.Context, key string, load func(context.Context) (int, error)) (int, error) {
	return Fetch(ctx, c, key, load)
}

// IDs caches a list of matching keys.
func (c *Cache) IDs(ctx context.Context, key string, load func(context.Context) ([]string, error)) ([]string, error) {
	return Fetch(ctx, c, key, load)
}

func (c *Cache) get(ctx context.Context, key string, dst any) bool {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			c.inc("miss")
		} else {
			c.inc("error")
			c.logger.Warn("Failed to read cached result", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.inc("error")
		c.logger.Warn("Failed to decode cached result", zap.String("key", key), zap.Error(err))
		return false
	}
	c.inc("hit")
	return true
}

func (c *Cache) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.inc("error")
		c.logger.Warn("Failed to encode result for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.inc("error")
		c.logger.Warn("Failed to cache result", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops cached results affected by a write to kind. Groups are
// embedded in record rows, so a group write drops both kinds.
func (c *Cache) Invalidate(ctx context.Context, kind domain.Kind) {
	if c == nil {
		return
	}
	c.gen.Add(1)
	kinds := []domain.Kind{kind}
	if kind == domain.KindGroup {
		kinds = append(kinds, domain.KindRecord)
	}
	for _, k := range kinds {
		n, err := c.store.DeletePrefix(ctx, c.kindPrefix(k))
		if err != nil {
			c.inc("error")
			c.logger.Warn("Failed to invalidate cached results", zap.String("kind", string(k)), zap.Error(err))
			continue
		}
		c.logger.Debug("Invalidated cached results", zap.String("kind", string(k)), zap.Int("keys", n))
	}
}

func (c *Cache) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
