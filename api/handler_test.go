package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sheetstore "github.com/danielGPGT/go-sheetstore"
	"github.com/danielGPGT/go-sheetstore/adapters/memory"
	"github.com/danielGPGT/go-sheetstore/api"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usersGrid() [][]string {
	return [][]string{
		{"Email", "Password", "login_count", "package_id"},
		{"a@x.com", "pw", "3", "p1,p2"},
		{"b@x.com", "pw2", "7", "p3"},
	}
}

type fixture struct {
	backend *memory.Adapter
	client  *sheetstore.Client
	router  http.Handler
}

func newFixture(t *testing.T, opts api.Options) *fixture {
	t.Helper()
	backend := memory.New()
	backend.Seed("Users", usersGrid())

	logger, _ := test.NewNullLogger()
	client := sheetstore.New(backend, &sheetstore.Config{MaxRetries: -1, Logger: logger, Metrics: metricsOrNil(opts.Metrics)})
	t.Cleanup(func() { client.Close() })

	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &fixture{backend: backend, client: client, router: api.NewRouter(client, opts)}
}

func metricsOrNil(m *api.Metrics) sheetstore.MetricsRecorder {
	if m == nil {
		return nil
	}
	return m
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	return serve(t, f.router, method, path, body, headers...)
}

func serve(t *testing.T, h http.Handler, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

type errorResponse struct {
	Error            string   `json:"error"`
	Message          string   `json:"message"`
	AvailableColumns []string `json:"availableColumns"`
}

func TestList(t *testing.T) {
	f := newFixture(t, api.Options{})

	rec := f.do(t, http.MethodGet, "/api/v1/sheets/Users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var rows []map[string]interface{}
	decode(t, rec, &rows)
	require.Len(t, rows, 2)
	assert.Equal(t, "a@x.com", rows[0]["email"])
	assert.Equal(t, float64(3), rows[0]["login_count"])
}

func TestList_Filters(t *testing.T) {
	f := newFixture(t, api.Options{})

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"by field", "?email=b@x.com", []string{"b@x.com"}},
		{"numeric string", "?login_count=3", []string{"a@x.com"}},
		{"list membership via alias", "?packageId=p2", []string{"a@x.com"}},
		{"limit", "?limit=1", []string{"a@x.com"}},
		{"offset", "?offset=1", []string{"b@x.com"}},
		{"camelCase parameter", "?loginCount=3", []string{"a@x.com"}},
		{"cache buster ignored", "?_=1712345", []string{"a@x.com", "b@x.com"}},
		{"unknown field ignored", "?sport=f1&email=b@x.com", []string{"b@x.com"}},
		{"no match", "?email=zzz", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/v1/sheets/Users"+tt.query, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var rows []map[string]interface{}
			decode(t, rec, &rows)
			got := make([]string, 0, len(rows))
			for _, row := range rows {
				got = append(got, row["email"].(string))
			}
			assert.Equal(t, tt.want, got)
		})
	}

	rec := f.do(t, http.MethodGet, "/api/v1/sheets/Users?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestList_UnknownSheet(t *testing.T) {
	f := newFixture(t, api.Options{})

	rec := f.do(t, http.MethodGet, "/api/v1/sheets/Nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body errorResponse
	decode(t, rec, &body)
	assert.Equal(t, "NotFoundError", body.Error)
}

func TestColumns(t *testing.T) {
	f := newFixture(t, api.Options{})

	rec := f.do(t, http.MethodGet, "/api/v1/sheets/Users/columns", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sheet   string   `json:"sheet"`
		Columns []string `json:"columns"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "Users", body.Sheet)
	assert.Equal(t, []string{"Email", "Password", "login_count", "package_id"}, body.Columns)
}

func TestGet(t *testing.T) {
	f := newFixture(t, api.Options{})

	rec := f.do(t, http.MethodGet, "/api/v1/sheets/Users/Email/b@x.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var row map[string]interface{}
	decode(t, rec, &row)
	assert.Equal(t, "pw2", row["password"])

	rec = f.do(t, http.MethodGet, "/api/v1/sheets/Users/Email/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreate(t *testing.T) {
	f := newFixture(t, api.Options{})

	rec := f.do(t, http.MethodPost, "/api/v1/sheets/Users", []interface{}{"c@x.com", "pw3", 0})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/sheets/Users", map[string]interface{}{
		"email":       "d@x.com",
		"login_count": 1.5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	grid := f.backend.Grid("Users")
	require.Len(t, grid, 5)
	assert.Equal(t, []string{"c@x.com", "pw3", "0"}, grid[3][:3])
	assert.Equal(t, "d@x.com", grid[4][0])
	assert.Equal(t, "1.5", grid[4][2])

	// New rows are visible to the next read
	rec = f.do(t, http.MethodGet, "/api/v1/sheets/Users/Email/d@x.com", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreate_BadBodies(t *testing.T) {
	f := newFixture(t, api.Options{})

	for _, body := range []string{`"just a string"`, `{bad json`, `42`, `[{"nested": "object"}]`} {
		rec := f.do(t, http.MethodPost, "/api/v1/sheets/Users", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)

		var resp errorResponse
		decode(t, rec, &resp)
		assert.Equal(t, "ValidationError", resp.Error)
	}
	assert.Len(t, f.backend.Grid("Users"), 3)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t, api.Options{})

	rec := f.do(t, http.MethodPut, "/api/v1/sheets/Users/Email/a@x.com", map[string]interface{}{
		"column": "login_count",
		"value":  4,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "Cell updated", body["message"])
	assert.Equal(t, "4", f.backend.Grid("Users")[1][2])
}

func TestUpdate_UnknownColumn(t *testing.T) {
	f := newFixture(t, api.Options{})

	rec := f.do(t, http.MethodPut, "/api/v1/sheets/Users/Email/a@x.com", map[string]interface{}{
		"column": "nickname",
		"value":  "x",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorResponse
	decode(t, rec, &body)
	assert.Equal(t, "ValidationError", body.Error)
	assert.Contains(t, body.Message, "available columns: Email, Password, login_count, package_id")
	assert.Equal(t, []string{"Email", "Password", "login_count", "package_id"}, body.AvailableColumns)
}

func TestUpdate_BadBodies(t *testing.T) {
	f := newFixture(t, api.Options{})

	for _, body := range []string{
		`{"value": 1}`,
		`{"column": "", "value": 1}`,
		`{"column": "Password"}`,
		`{"column": "Password", "value": {"a": 1}}`,
		`[]`,
	} {
		rec := f.do(t, http.MethodPut, "/api/v1/sheets/Users/Email/a@x.com", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestBulkUpdate(t *testing.T) {
	f := newFixture(t, api.Options{})

	rec := f.do(t, http.MethodPut, "/api/v1/sheets/Users/Email/b@x.com/bulk", []map[string]interface{}{
		{"column": "Password", "value": "secret"},
		{"column": "login_count", "value": 8},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, float64(2), body["updated"])
	assert.Equal(t, []string{"b@x.com", "secret", "8", "p3"}, f.backend.Grid("Users")[2])

	rec = f.do(t, http.MethodPut, "/api/v1/sheets/Users/Email/b@x.com/bulk", `[]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, api.Options{})

	rec := f.do(t, http.MethodDelete, "/api/v1/sheets/Users/Email/a@x.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.backend.Grid("Users"), 2)

	rec = f.do(t, http.MethodDelete, "/api/v1/sheets/Users/Email/a@x.com", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEncodedPathParams(t *testing.T) {
	f := newFixture(t, api.Options{})
	f.backend.Seed("Team Members", [][]string{{"Full Name", "Role"}, {"Ann Lee", "ops"}})

	rec := f.do(t, http.MethodGet, "/api/v1/sheets/Users/Email/a%40x.com", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var row map[string]interface{}
	decode(t, rec, &row)
	assert.Equal(t, "a@x.com", row["email"])

	rec = f.do(t, http.MethodGet, "/api/v1/sheets/Team%20Members/Full%20Name/Ann%20Lee", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &row)
	assert.Equal(t, "ops", row["role"])

	rec = f.do(t, http.MethodPut, "/api/v1/sheets/Users/Email/a%40x.com", map[string]interface{}{
		"column": "login_count",
		"value":  5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "5", f.backend.Grid("Users")[1][2])

	rec = f.do(t, http.MethodDelete, "/api/v1/sheets/Team%20Members/Full%20Name/Ann%20Lee", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, f.backend.Grid("Team Members"), 1)

	// A raw path whose escapes cannot be decoded is rejected
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sheets/Users/Email/x", nil)
	req.URL.RawPath = "/api/v1/sheets/Users/Email/%zz"
	bad := httptest.NewRecorder()
	f.router.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

// stubStore fails every operation with err.
type stubStore struct{ err error }

func (s stubStore) List(context.Context, string, sheetstore.Query) ([]*sheetstore.Record, error) {
	return nil, s.err
}
func (s stubStore) Get(context.Context, string, string, string) (*sheetstore.Record, error) {
	return nil, s.err
}
func (s stubStore) Headers(context.Context, string) ([]string, error) { return nil, s.err }
func (s stubStore) Create(context.Context, string, sheetstore.Payload) error {
	return s.err
}
func (s stubStore) UpdateCell(context.Context, string, string, string, string, interface{}) error {
	return s.err
}
func (s stubStore) BulkUpdate(context.Context, string, string, string, []sheetstore.CellValue) error {
	return s.err
}
func (s stubStore) Delete(context.Context, string, string, string) error { return s.err }

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err         error
		wantStatus  int
		wantName    string
		wantMessage string
	}{
		{fmt.Errorf("%w: update already in progress", sheetstore.ErrConflict), http.StatusConflict, "ConflictError", "conflict: update already in progress"},
		{fmt.Errorf("%w: quota exceeded", sheetstore.ErrUnavailable), http.StatusServiceUnavailable, "ServiceUnavailable", "Spreadsheet service is currently unavailable"},
		{sheetstore.ErrClosed, http.StatusServiceUnavailable, "ServiceUnavailable", "Spreadsheet service is currently unavailable"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "InternalServerError", "An unexpected error occurred"},
	}
	logger, _ := test.NewNullLogger()

	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			router := api.NewRouter(stubStore{err: tt.err}, api.Options{Logger: logger})
			rec := serve(t, router, http.MethodDelete, "/api/v1/sheets/Users/Email/a@x.com", nil)
			require.Equal(t, tt.wantStatus, rec.Code)

			var body errorResponse
			decode(t, rec, &body)
			assert.Equal(t, tt.wantName, body.Error)
			assert.Equal(t, tt.wantMessage, body.Message)
		})
	}
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	f := newFixture(t, api.Options{})

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v2/whatever", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	var body errorResponse
	decode(t, rec, &body)
	assert.Equal(t, "Route not found", body.Message)
}

func TestMiddleware(t *testing.T) {
	f := newFixture(t, api.Options{AllowedOrigins: []string{"https://app.example.com/"}})

	t.Run("request id", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/healthz", nil)
		assert.NotEmpty(t, rec.Header().Get(api.RequestIDHeader))

		rec = f.do(t, http.MethodGet, "/healthz", nil, api.RequestIDHeader, "given-id")
		assert.Equal(t, "given-id", rec.Header().Get(api.RequestIDHeader))
	})

	t.Run("security headers", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/healthz", nil)
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	})

	t.Run("cors preflight", func(t *testing.T) {
		rec := f.do(t, http.MethodOptions, "/api/v1/sheets/Users", nil,
			"Origin", "https://app.example.com",
			"Access-Control-Request-Method", "PUT")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("cors rejects other origins", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/healthz", nil, "Origin", "https://evil.example.com")
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestCORS_Modes(t *testing.T) {
	tests := []struct {
		name            string
		origins         []string
		wantOrigin      string
		wantCredentials string
	}{
		{"no origins configured", nil, "", ""},
		{"listed origin", []string{"https://app.example.com"}, "https://app.example.com", "true"},
		{"wildcard never sends credentials", []string{"*"}, "*", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, api.Options{AllowedOrigins: tt.origins})
			rec := f.do(t, http.MethodGet, "/healthz", nil, "Origin", "https://app.example.com")
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCredentials, rec.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, api.Options{SheetsLimit: api.Limit{Requests: 2, Window: time.Minute}})

	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodGet, "/api/v1/sheets/Users", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/api/v1/sheets/Users", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "31", rec.Header().Get("Retry-After"))

	var body errorResponse
	decode(t, rec, &body)
	assert.Equal(t, "TooManyRequests", body.Error)

	// Routes outside the sheets group keep working
	rec = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_PerClient(t *testing.T) {
	limiter := api.NewRateLimiter(api.Limit{Requests: 1, Window: time.Hour}, "slow down")
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"))
	assert.True(t, api.Limit{}.Disabled())
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := api.NewMetrics()
	f := newFixture(t, api.Options{Metrics: metrics})

	f.do(t, http.MethodGet, "/api/v1/sheets/Users", nil)
	f.do(t, http.MethodGet, "/api/v1/sheets/Users", nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `sheetstore_http_requests_total{method="GET",route="/api/v1/sheets/{sheet}",status="200"} 2`)
	assert.Contains(t, out, `sheetstore_cache_lookups_total{result="miss",sheet="Users"} 1`)
	assert.Contains(t, out, `sheetstore_cache_lookups_total{result="hit",sheet="Users"} 3`)
	assert.Contains(t, out, `sheetstore_backend_calls_total{op="get_range",result="ok"} 1`)
}

func TestMetrics_SheetLabelsStayBounded(t *testing.T) {
	metrics := api.NewMetrics()
	f := newFixture(t, api.Options{Metrics: metrics})

	// Unknown sheets never reach the cache metrics
	for i := 0; i < 5; i++ {
		rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/sheets/random-%d", i), nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	}
	// Past the label limit every sheet shares one series
	for i := 0; i < 150; i++ {
		metrics.WriteConflict(fmt.Sprintf("sheet-%d", i))
	}

	out := f.do(t, http.MethodGet, "/metrics", nil).Body.String()
	assert.NotContains(t, out, `sheet="random-`)
	assert.Contains(t, out, `sheetstore_write_conflicts_total{sheet="sheet-99"} 1`)
	assert.NotContains(t, out, `sheet="sheet-100"`)
	assert.Contains(t, out, `sheetstore_write_conflicts_total{sheet="other"} 50`)
}
