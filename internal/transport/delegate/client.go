// Package delegate is the HTTP client of the external search service that
// can execute filter trees directly and return denormalised rows.
package delegate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/filter"
	"github.com/kailas-cloud/catalogq/internal/domain/query"
	"github.com/kailas-cloud/catalogq/internal/domain/result"
	"github.com/kailas-cloud/catalogq/internal/metrics"
)

// Client defaults.
const (
	DefaultTimeout = 2 * time.Second
	DefaultRetries = 2
	DefaultBackoff = 100 * time.Millisecond

	maxErrorBody = 4 << 10
)

// Config holds the delegate connection settings.
type Config struct {
	BaseURL    string
	Credential string
	// Timeout bounds each attempt.
	Timeout time.Duration
	// Retries is the number of additional attempts after the first.
	Retries int
	Backoff time.Duration
	// RateLimit is requests per second across all callers; 0 disables limiting.
	RateLimit  float64
	Burst      int
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client calls the search delegate.
type Client struct {
	base       *url.URL
	credential string
	timeout    time.Duration
	retries    int
	backoff    time.Duration
	limiter    *rate.Limiter
	http       *http.Client
	logger     *zap.Logger
}

// New creates a delegate client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("delegate: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := max(cfg.Burst, 1)
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Client{
		base:       base,
		credential: cfg.Credential,
		timeout:    cfg.Timeout,
		retries:    cfg.Retries,
		backoff:    cfg.Backoff,
		limiter:    limiter,
		http:       cfg.HTTPClient,
		logger:     cfg.Logger,
	}, nil
}

// searchRequest is the wire body of POST /v1/{kind}/search.
type searchRequest struct {
	FilterTree filter.Node `json:"filter_tree"`
	OrderBy    string      `json:"order_by,omitempty"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
	CountOnly  bool        `json:"count_only"`
	IDsOnly    bool        `json:"ids_only"`
}

type searchResponse struct {
	Rows  json.RawMessage `json:"rows"`
	Count *int            `json:"count"`
}

// Search executes a windowed search. Zero rows is a successful answer.
// The returned count is non-nil only when the delegate reported an exact total.
func (c *Client) Search(
	ctx context.Context, kind domain.Kind, f filter.Node, order query.Order, limit, offset int,
) (result.Rows, *int, error) {
	var resp searchResponse
	body := searchRequest{FilterTree: f, OrderBy: order.String(), Limit: limit, Offset: offset}
	if err := c.search(ctx, "search", kind, body, &resp); err != nil {
		return result.Rows{}, nil, err
	}
	rows, err := decodeRows(kind, resp.Rows)
	if err != nil {
		return result.Rows{}, nil, &Error{Op: "search", Kind: kind, Attempts: 1, Err: fmt.Errorf("%w: %w", errProtocol, err)}
	}
	return rows, resp.Count, nil
}

// Count returns the exact number of matches.
func (c *Client) Count(ctx context.Context, kind domain.Kind, f filter.Node) (int, error) {
	var resp searchResponse
	if err := c.search(ctx, "count", kind, searchRequest{FilterTree: f, CountOnly: true}, &resp); err != nil {
		return 0, err
	}
	if resp.Count == nil {
		return 0, &Error{Op: "count", Kind: kind, Attempts: 1, Err: fmt.Errorf("%w: count missing", errProtocol)}
	}
	return *resp.Count, nil
}

// IDs returns up to limit matching keys in default order.
func (c *Client) IDs(ctx context.Context, kind domain.Kind, f filter.Node, limit int) ([]string, error) {
	var resp searchResponse
	if err := c.search(ctx, "ids", kind, searchRequest{FilterTree: f, Limit: limit, IDsOnly: true}, &resp); err != nil {
		return nil, err
	}
	rows, err := decodeRows(kind, resp.Rows)
	if err != nil {
		return nil, &Error{Op: "ids", Kind: kind, Attempts: 1, Err: fmt.Errorf("%w: %w", errProtocol, err)}
	}
	return rows.IDs(), nil
}

// Health probes GET {base}/health with a single attempt.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.JoinPath("health").String(), nil)
	if err != nil {
		return &Error{Op: "health", Err: err}
	}
	c.authorize(req, uuid.NewString())
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: "health", Attempts: 1, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode/100 != 2 {
		return &Error{Op: "health", Status: resp.StatusCode, Attempts: 1, Err: errStatus}
	}
	return nil
}

func decodeRows(kind domain.Kind, raw json.RawMessage) (result.Rows, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("[]")
	}
	return result.DecodeRows(kind, raw)
}

// search POSTs body with retries. Transport errors, attempt timeouts, 429
// and 5xx are retried with exponential backoff; other statuses fail at once.
// Caller cancellation stops immediately.
func (c *Client) search(ctx context.Context, op string, kind domain.Kind, body searchRequest, out *searchResponse) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &Error{Op: op, Kind: kind, Err: fmt.Errorf("encode request: %w", err)}
	}
	endpoint := c.base.JoinPath("v1", string(kind), "search").String()
	requestID := uuid.NewString()

	start := time.Now()
	defer func() {
		metrics.DelegateRequestDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}()

	var last *Error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.backoff<<(attempt-1)); err != nil {
				return &Error{Op: op, Kind: kind, Status: last.Status, Attempts: attempt, Err: err}
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				metrics.DelegateRequestsTotal.WithLabelValues(string(kind), "rate_limited").Inc()
				return &Error{Op: op, Kind: kind, Attempts: attempt, Err: err}
			}
		}

		status, retry, err := c.attempt(ctx, endpoint, requestID, payload, out)
		metrics.DelegateRequestsTotal.WithLabelValues(string(kind), statusLabel(status, err)).Inc()
		if err == nil {
			return nil
		}
		last = &Error{Op: op, Kind: kind, Status: status, Attempts: attempt + 1, Err: err}
		if ctx.Err() != nil {
			last.Err = fmt.Errorf("%w: %w", ctx.Err(), err)
			return last
		}
		if !retry {
			return last
		}
		c.logger.Warn("Delegate attempt failed",
			zap.String("op", op),
			zap.String("kind", string(kind)),
			zap.String("request_id", requestID),
			zap.Int("attempt", attempt+1),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	return last
}

// attempt performs one request. It reports the HTTP status (0 without a
// response) and whether the failure is worth retrying.
func (c *Client) attempt(ctx context.Context, endpoint, requestID string, payload []byte, out *searchResponse) (int, bool, error) {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, false, err //nolint:wrapcheck // wrapped in *Error by caller
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.authorize(req, requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return 0, true, fmt.Errorf("%w: %w", errAttemptTimeout, err)
		}
		return 0, true, err //nolint:wrapcheck // wrapped in *Error by caller
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return resp.StatusCode, retry, fmt.Errorf("%w: %s", errStatus, strings.TrimSpace(string(detail)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return resp.StatusCode, true, fmt.Errorf("%w: %w", errAttemptTimeout, err)
		}
		return resp.StatusCode, false, fmt.Errorf("%w: %w", errProtocol, err)
	}
	return resp.StatusCode, false, nil
}

func (c *Client) authorize(req *http.Request, requestID string) {
	if c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}
	req.Header.Set("X-Request-ID", requestID)
}

func statusLabel(status int, err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errAttemptTimeout):
		return "timeout"
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 500:
		return "http_5xx"
	case status != 0:
		return "http_" + strconv.Itoa(status)
	default:
		return "error"
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
