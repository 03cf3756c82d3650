package health

import (
	"context"

	"go.uber.org/zap"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component failed; queries are still served.
	Degraded Status = "degraded"
	// Unhealthy indicates the relational backend is down.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db       DBPinger
	cache    CachePinger
	delegate DelegateChecker
	logger   *zap.Logger
}

// New creates a Service. cache and delegate can be nil.
func New(db DBPinger, cache CachePinger, delegate DelegateChecker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, cache: cache, delegate: delegate, logger: logger}
}

// Check runs health checks against all components. The database is the
// only component whose failure makes the service unhealthy: the cache is
// bypassed and the delegate falls back when they are down.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks["database"] = s.probe("database", s.db.PingContext(ctx))
	if s.cache != nil {
		checks["cache"] = s.probe("cache", s.cache.Ping(ctx))
	}
	if s.delegate != nil {
		checks["delegate"] = s.probe("delegate", s.delegate.Health(ctx))
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks["database"] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func (s *Service) probe(component string, err error) CheckResult {
	if err != nil {
		s.logger.Warn("Health check failed", zap.String("component", component), zap.Error(err))
		return CheckError
	}
	return CheckOK
}
