package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogq/internal/db/sql/sqltest"
	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/page"
	"github.com/kailas-cloud/catalogq/internal/planner"
	"github.com/kailas-cloud/catalogq/internal/repository/relational"
	healthuc "github.com/kailas-cloud/catalogq/internal/usecase/health"
	queryuc "github.com/kailas-cloud/catalogq/internal/usecase/query"
)

// --- Mocks ---

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) PingContext(_ context.Context) error { return m.err }

// --- Helpers ---

const scenarioFilter = `{"and":[{"field":"title","op":"contains","value":"CEO"},` +
	`{"field":"group.industries","op":"array_contains","value":["Technology"]}]}`

func newTestServer(t *testing.T, dbErr error, publicURL *url.URL) *httptest.Server {
	t.Helper()
	fx := sqltest.Scenario()
	conn, d := sqltest.Open(t, &fx)
	repo := relational.New(conn, planner.New(d), relational.Options{})
	queries := queryuc.New(repo, nil, nil, queryuc.Options{
		Mode:   queryuc.ModeRelational,
		Cursor: page.NewCodec("test"),
	})
	health := healthuc.New(&mockDBPinger{err: dbErr}, nil, nil, nil)

	r := chi.NewRouter()
	NewServer(queries, health, publicURL, zap.NewNop()).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string, params url.Values) (*http.Response, map[string]any) {
	t.Helper()
	u := srv.URL + path
	if params != nil {
		u += "?" + params.Encode()
	}
	resp, err := http.Get(u) //nolint:noctx // test helper
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func rowIDs(body map[string]any) []string {
	rows, _ := body["rows"].([]any)
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if m, ok := r.(map[string]any); ok {
			ids = append(ids, fmt.Sprint(m["id"]))
		}
	}
	return ids
}

// --- Tests ---

func TestQuery_ScenarioFirstPage(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	resp, body := get(t, srv, "/v1/records", url.Values{
		"filter":   {scenarioFilter},
		"limit":    {"2"},
		"populate": {"group"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if ids := rowIDs(body); len(ids) != 2 || ids[0] != sqltest.RecordAda || ids[1] != sqltest.RecordBo {
		t.Errorf("ids = %v", ids)
	}
	next, _ := body["next_link"].(string)
	if !strings.HasPrefix(next, srv.URL+"/v1/records?") || !strings.Contains(next, "offset=2") {
		t.Errorf("next_link = %q", next)
	}
	if _, ok := body["prev_link"]; ok {
		t.Error("prev_link must be absent on the first page")
	}
	if body["served_by"] != "relational" {
		t.Errorf("served_by = %v", body["served_by"])
	}

	resp, body = get(t, srv, strings.TrimPrefix(next, srv.URL), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("next page status = %d", resp.StatusCode)
	}
	if ids := rowIDs(body); len(ids) != 1 || ids[0] != sqltest.RecordDee {
		t.Errorf("next page ids = %v", ids)
	}
}

func TestQuery_PublicURL(t *testing.T) {
	public, _ := url.Parse("https://catalog.example.com/api")
	srv := newTestServer(t, nil, public)
	_, body := get(t, srv, "/v1/groups", url.Values{"limit": {"1"}})
	next, _ := body["next_link"].(string)
	if !strings.HasPrefix(next, "https://catalog.example.com/api/v1/groups?") {
		t.Errorf("next_link = %q", next)
	}
}

func TestQueryBody(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	payload := `{"filter":{"field":"email_status","op":"eq","value":"valid"},"limit":2,"exact_count":true}`
	resp, err := http.Post(srv.URL+"/v1/records/query", "application/json", strings.NewReader(payload)) //nolint:noctx // test
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	body := decode(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["total"] != float64(3) {
		t.Errorf("total = %v", body["total"])
	}
	if body["next"] == nil || body["next_link"] != nil {
		t.Errorf("body pages carry tokens only: next=%v next_link=%v", body["next"], body["next_link"])
	}
}

func TestCount(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	resp, body := get(t, srv, "/v1/records/count", url.Values{
		"filter": {`{"field":"title","op":"eq","value":"Janitor"}`},
	})
	if resp.StatusCode != http.StatusOK || body["count"] != float64(0) {
		t.Errorf("status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestIDs(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	resp, body := get(t, srv, "/v1/records/ids", url.Values{
		"filter": {`{"field":"email_status","op":"eq","value":"valid"}`},
		"limit":  {"10"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	ids, _ := body["ids"].([]any)
	if len(ids) != 3 || ids[0] != sqltest.RecordAda {
		t.Errorf("ids = %v", ids)
	}
}

func TestInvalidate(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	resp, err := http.Post(srv.URL+"/v1/groups/invalidate", "application/json", nil) //nolint:noctx // test
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	_ = decode(t, resp)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	tests := []struct {
		name   string
		path   string
		params url.Values
	}{
		{"unknown kind", "/v1/people", nil},
		{"malformed filter", "/v1/records", url.Values{"filter": {`{"and":`}}},
		{"unknown field", "/v1/records", url.Values{"filter": {`{"field":"shoe_size","op":"eq","value":"9"}`}}},
		{"unknown relation", "/v1/records", url.Values{"populate": {"friends"}}},
		{"bad limit", "/v1/records", url.Values{"limit": {"ten"}}},
		{"bad cursor", "/v1/records", url.Values{"cursor": {"forged"}}},
		{"bad route", "/v1/records", url.Values{"route": {"both"}}},
		{"ids without limit", "/v1/records/ids", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, srv, tt.path, tt.params)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
			}
			if body["code"] != codeInvalidSpec {
				t.Errorf("code = %v", body["code"])
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	resp, body := get(t, newTestServer(t, nil, nil), "/health", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("status = %d, body = %v", resp.StatusCode, body)
	}

	resp, body = get(t, newTestServer(t, errors.New("down"), nil), "/health", nil)
	if resp.StatusCode != http.StatusServiceUnavailable || body["status"] != "error" {
		t.Errorf("status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestHandleDomainError(t *testing.T) {
	s := NewServer(nil, nil, nil, zap.NewNop())
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"specification", &domain.SpecificationError{Field: "limit", Reason: "must be positive"}, http.StatusBadRequest, codeInvalidSpec},
		{"both paths failed", fmt.Errorf("%w: delegate: x; relational: %v", domain.ErrServiceUnavailable, domain.ErrBackend),
			http.StatusServiceUnavailable, codeServiceUnavailable},
		{"backend", fmt.Errorf("%w: select: boom", domain.ErrBackend), http.StatusServiceUnavailable, codeBackendError},
		{"deadline", fmt.Errorf("%w: slow", context.DeadlineExceeded), http.StatusGatewayTimeout, codeTimeout},
		{"canceled", context.Canceled, statusClientClosedRequest, codeCanceled},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, codeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.handleDomainError(rec, httptest.NewRequest(http.MethodGet, "/v1/records", nil), tt.err)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var body errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != tt.code {
				t.Errorf("code = %q, want %q", body.Code, tt.code)
			}
			if tt.code == codeBackendError && strings.Contains(body.Message, "boom") {
				t.Errorf("internal detail leaked: %q", body.Message)
			}
		})
	}
}
