package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogq/internal/config"
	dbRedis "github.com/kailas-cloud/catalogq/internal/db/redis"
	sqldb "github.com/kailas-cloud/catalogq/internal/db/sql"
	"github.com/kailas-cloud/catalogq/internal/domain/page"
	logpkg "github.com/kailas-cloud/catalogq/internal/logger"
	"github.com/kailas-cloud/catalogq/internal/metrics"
	"github.com/kailas-cloud/catalogq/internal/planner"
	"github.com/kailas-cloud/catalogq/internal/repository/relational"
	"github.com/kailas-cloud/catalogq/internal/repository/resultcache"
	chiTransport "github.com/kailas-cloud/catalogq/internal/transport/chi"
	"github.com/kailas-cloud/catalogq/internal/transport/delegate"
	healthuc "github.com/kailas-cloud/catalogq/internal/usecase/health"
	queryuc "github.com/kailas-cloud/catalogq/internal/usecase/query"
	"github.com/kailas-cloud/catalogq/internal/version"
)

func serve(ctx context.Context, cfg config.Config, env string) error {
	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting catalogq API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("cache_driver", cfg.Cache.Driver),
		zap.Bool("delegate_enabled", cfg.Delegate.Enabled),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterQueryMetrics()
	metrics.RegisterHTTPMetrics()

	conn, dialect, err := sqldb.Open(ctx, sqldb.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: config.Duration(cfg.Database.ConnMaxLifetime),
		PingTimeout:     time.Duration(cfg.Database.PingTimeoutSec) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = conn.Close() }()
	logger.Info("Connected to relational backend", zap.String("dialect", dialect.Name()))

	// Pass nil interfaces (not typed nil pointers) for disabled components.
	var (
		cache       queryuc.Cache
		cachePinger healthuc.CachePinger
	)
	switch cfg.Cache.Driver {
	case "redis", "valkey":
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			return fmt.Errorf("create cache store: %w", err)
		}
		defer store.Close()
		if err := store.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			return fmt.Errorf("cache not ready: %w", err)
		}
		logger.Info("Connected to result cache", zap.Strings("addrs", cfg.Cache.Addrs))
		cache = resultcache.New(store, resultcache.Options{
			TTL:        config.Duration(cfg.Cache.TTL),
			Prefix:     cfg.Cache.KeyPrefix,
			CacheTotal: metrics.CacheTotal,
			Logger:     logger,
		})
		cachePinger = store
	}

	var (
		searchDelegate  queryuc.Delegate
		delegateChecker healthuc.DelegateChecker
	)
	if cfg.Delegate.Enabled {
		client, err := delegate.New(delegate.Config{
			BaseURL:    cfg.Delegate.BaseURL,
			Credential: cfg.Delegate.Credential,
			Timeout:    config.Duration(cfg.Delegate.Timeout),
			Retries:    cfg.Delegate.Retries,
			Backoff:    config.Duration(cfg.Delegate.Backoff),
			RateLimit:  cfg.Delegate.RateLimit,
			Burst:      cfg.Delegate.Burst,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("create delegate client: %w", err)
		}
		searchDelegate = client
		delegateChecker = client
	}

	repo := relational.New(conn, planner.New(dialect), relational.Options{
		ChunkThreshold: cfg.Hydrate.ChunkThreshold,
		ChunkSize:      cfg.Hydrate.ChunkSize,
		StmtDuration:   metrics.BackendQueryDuration,
		Logger:         logger,
	})

	querySvc := queryuc.New(repo, searchDelegate, cache, queryuc.Options{
		Mode:            queryuc.Mode(cfg.Delegate.Mode),
		SupportedFields: cfg.Delegate.SupportedFields,
		Rehydrate:       cfg.Delegate.Rehydrate,
		DefaultPageSize: cfg.Query.DefaultPageSize,
		MaxPageSize:     cfg.Query.MaxPageSize,
		SlowThreshold:   config.Duration(cfg.Query.SlowThreshold),
		DefaultTimeout:  config.Duration(cfg.Query.DefaultTimeout),
		Cursor:          page.NewCodec(cfg.Query.CursorSecret),
		Logger:          logger,
	})
	healthSvc := healthuc.New(conn, cachePinger, delegateChecker, logger)

	var publicURL *url.URL
	if cfg.HTTP.PublicURL != "" {
		if publicURL, err = url.Parse(cfg.HTTP.PublicURL); err != nil {
			return fmt.Errorf("parse http.public_url: %w", err)
		}
	}
	server := chiTransport.NewServer(querySvc, healthSvc, publicURL, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}
