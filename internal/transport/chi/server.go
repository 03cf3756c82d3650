// Package chi exposes the query service over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogq/internal/domain"
	logpkg "github.com/kailas-cloud/catalogq/internal/logger"
	healthuc "github.com/kailas-cloud/catalogq/internal/usecase/health"
	queryuc "github.com/kailas-cloud/catalogq/internal/usecase/query"
)

// statusClientClosedRequest is reported when the caller went away mid-query.
const statusClientClosedRequest = 499

// Error codes of the JSON error body.
const (
	codeBadRequest         = "bad_request"
	codeInvalidSpec        = "invalid_specification"
	codeServiceUnavailable = "service_unavailable"
	codeBackendError       = "backend_error"
	codeTimeout            = "timeout"
	codeCanceled           = "canceled"
	codeInternal           = "internal_error"
)

// errorResponse is the JSON body of every non-2xx answer.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves catalog queries.
type Server struct {
	queries       *queryuc.Service
	health        *healthuc.Service
	publicURL     *url.URL
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. publicURL is the externally visible
// base for next/prev links; the request host is used when it is nil.
func NewServer(queries *queryuc.Service, health *healthuc.Service, publicURL *url.URL, logger *zap.Logger) *Server {
	s := &Server{
		queries:   queries,
		health:    health,
		publicURL: publicURL,
		logger:    logger,
	}
	// Order matters: a fallback failure also wraps the backend error text.
	s.errorHandlers = []errorHandler{
		specificationHandler,
		sentinelHandler(domain.ErrServiceUnavailable, http.StatusServiceUnavailable, codeServiceUnavailable),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, codeTimeout),
		sentinelHandler(context.Canceled, statusClientClosedRequest, codeCanceled),
		sentinelHandler(domain.ErrBackend, http.StatusServiceUnavailable, codeBackendError),
		sentinelHandler(domain.ErrDelegateUnavailable, http.StatusBadGateway, codeServiceUnavailable),
	}
	return s
}

// Register mounts the API routes on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1/{kind}", func(r chi.Router) {
		r.Get("/", s.Query)
		r.Post("/query", s.QueryBody)
		r.Get("/count", s.Count)
		r.Get("/ids", s.IDs)
		r.Post("/invalidate", s.Invalidate)
	})
}

// Query handles GET /v1/{kind}.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	req, err := queryFromURL(chi.URLParam(r, "kind"), r.URL.Query())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	req.Link = s.link(r)

	pg, err := s.queries.Query(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pg)
}

// QueryBody handles POST /v1/{kind}/query. Pages carry cursor tokens only.
func (s *Server) QueryBody(w http.ResponseWriter, r *http.Request) {
	var body queryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	req, err := body.request(chi.URLParam(r, "kind"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	pg, err := s.queries.Query(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pg)
}

// Count handles GET /v1/{kind}/count.
func (s *Server) Count(w http.ResponseWriter, r *http.Request) {
	kind, f, err := kindAndFilter(chi.URLParam(r, "kind"), r.URL.Query())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	n, err := s.queries.Count(r.Context(), kind, f)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Kind: kind, Count: n})
}

// IDs handles GET /v1/{kind}/ids.
func (s *Server) IDs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, f, err := kindAndFilter(chi.URLParam(r, "kind"), q)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	limit, err := intParam(q, "limit")
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	ids, err := s.queries.UuidsMatching(r.Context(), kind, f, limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idsResponse{Kind: kind, IDs: ids})
}

// Invalidate handles POST /v1/{kind}/invalidate, the hook for writers.
func (s *Server) Invalidate(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseKind(chi.URLParam(r, "kind"))
	if err == nil {
		err = s.queries.Invalidate(r.Context(), kind)
	}
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// link is the caller-facing URL of r, used as the base of page links.
func (s *Server) link(r *http.Request) *url.URL {
	u := *r.URL
	if s.publicURL != nil {
		u.Scheme = s.publicURL.Scheme
		u.Host = s.publicURL.Host
		u.Path = s.publicURL.JoinPath(r.URL.Path).Path
		return &u
	}
	u.Scheme = "http"
	if r.TLS != nil {
		u.Scheme = "https"
	}
	u.Host = r.Host
	return &u
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// specificationHandler reports caller errors with their full detail.
func specificationHandler(w http.ResponseWriter, err error) bool {
	if !domain.IsSpecification(err) {
		return false
	}
	var se *domain.SpecificationError
	if errors.As(err, &se) {
		writeError(w, http.StatusBadRequest, codeInvalidSpec, se.Error())
		return true
	}
	writeError(w, http.StatusBadRequest, codeInvalidSpec, domain.ErrSpecification.Error())
	return true
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// The sentinel text is the only detail exposed to the client.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContextOr(r.Context(), s.logger)
	for _, h := range s.errorHandlers {
		if h(w, err) {
			if !domain.IsSpecification(err) {
				log.Warn("Query failed", zap.String("path", r.URL.Path), zap.Error(err))
			}
			return
		}
	}
	log.Error("Internal error", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}
