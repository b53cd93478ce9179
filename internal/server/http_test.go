package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"responselog/internal/observability"
	"responselog/internal/responselog"
)

type memorySink struct {
	mu      sync.Mutex
	records []*responselog.Record
}

func (s *memorySink) Commit(_ context.Context, _ *responselog.Schema, r *responselog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) all() []*responselog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*responselog.Record(nil), s.records...)
}

func TestRequestIDMiddleware(t *testing.T) {
	srv := New(nil)

	t.Run("generates request ID when missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		got := rec.Header().Get("X-Request-ID")
		if got == "" {
			t.Fatal("expected X-Request-ID in response header, got empty")
		}
		// Validate UUID format (8-4-4-4-12 hex digits)
		if len(got) != 36 {
			t.Errorf("expected UUID (36 chars), got %q (%d chars)", got, len(got))
		}
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "my-custom-id")
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if got := rec.Header().Get("X-Request-ID"); got != "my-custom-id" {
			t.Errorf("expected response header X-Request-ID to be %q, got %q", "my-custom-id", got)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	tests := []struct {
		name           string
		config         *Config
		requestPath    string
		expectedStatus int
		expectBody     string // substring to check in response body
	}{
		{
			name: "metrics enabled - default endpoint accessible",
			config: &Config{
				MetricsEnabled:  true,
				MetricsEndpoint: "/metrics",
			},
			requestPath:    "/metrics",
			expectedStatus: http.StatusOK,
			expectBody:     "go_goroutines",
		},
		{
			name: "metrics enabled - empty endpoint defaults to /metrics",
			config: &Config{
				MetricsEnabled: true,
			},
			requestPath:    "/metrics",
			expectedStatus: http.StatusOK,
			expectBody:     "go_goroutines",
		},
		{
			name: "metrics disabled - endpoint returns 404",
			config: &Config{
				MetricsEnabled:  false,
				MetricsEndpoint: "/metrics",
			},
			requestPath:    "/metrics",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "nil config - metrics disabled by default",
			config:         nil,
			requestPath:    "/metrics",
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "custom endpoint - default path returns 404",
			config: &Config{
				MetricsEnabled:  true,
				MetricsEndpoint: "/custom-metrics",
			},
			requestPath:    "/metrics",
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "metrics endpoint with unclean path",
			config: &Config{
				MetricsEnabled:  true,
				MetricsEndpoint: "/internal/../api//metrics/",
			},
			requestPath:    "/api/metrics",
			expectedStatus: http.StatusOK,
			expectBody:     "go_goroutines",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(tt.config)

			req := httptest.NewRequest(http.MethodGet, tt.requestPath, nil)
			rec := httptest.NewRecorder()

			srv.ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}

			if tt.expectBody != "" && !strings.Contains(rec.Body.String(), tt.expectBody) {
				t.Errorf("expected body to contain %q, got: %s", tt.expectBody, rec.Body.String())
			}
		})
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
	}{
		{name: "get", method: http.MethodGet, target: "/check", wantStatus: http.StatusOK},
		{name: "post", method: http.MethodPost, target: "/check", wantStatus: http.StatusOK},
		{name: "selected status", method: http.MethodGet, target: "/check?status=404", wantStatus: http.StatusNotFound},
		{name: "invalid status", method: http.MethodGet, target: "/check?status=abc", wantStatus: http.StatusBadRequest},
		{name: "out of range status", method: http.MethodGet, target: "/check?status=100", wantStatus: http.StatusBadRequest},
	}

	srv := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			rec := httptest.NewRecorder()

			srv.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus < 400 {
				assert.Equal(t, "ok", gjson.Get(rec.Body.String(), "status").String())
			}
		})
	}
}

func TestBodySizeLimit(t *testing.T) {
	srv := New(&Config{BodySizeLimit: 8})

	req := httptest.NewRequest(http.MethodPost, "/check", strings.NewReader(`{"too":"large"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestResponseLogIsApplied(t *testing.T) {
	sink := &memorySink{}
	mw := responselog.NewMiddleware(sink, responselog.Config{
		Measurement: "api_calls",
		Namespace:   "demo",
		StatusCodes: []int{200},
	})
	srv := New(&Config{ResponseLog: mw})

	req := httptest.NewRequest(http.MethodPost, "/check?x=1", strings.NewReader(`{ "a": 1 }`))
	req.Header.Set("Content-Type", "application/json")
	srv.ServeHTTP(httptest.NewRecorder(), req)

	// filtered out by the status allowlist
	srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/check?status=404", nil))

	records := sink.all()
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "demo", r.Namespace)
	assert.Equal(t, "/check", r.Path)
	assert.Equal(t, "/check?x=1", r.FullPath)
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, `{"a":1}`, r.Payload)
	assert.Equal(t, `{"status":"ok"}`, r.Response)
	assert.Equal(t, 200, r.StatusCode)
}

func TestResponseLogRecordsPanics(t *testing.T) {
	sink := &memorySink{}
	srv := New(&Config{ResponseLog: responselog.NewMiddleware(sink, responselog.DefaultConfig())})
	srv.echo.GET("/boom", func(_ echo.Context) error { panic("boom") })

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	records := sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, http.StatusInternalServerError, records[0].StatusCode)
}

func TestMetricsEndpointExposesResponseLogMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder := observability.NewMetricRecorder()
	recorder.MustRegister(reg)

	mw := responselog.NewMiddleware(&memorySink{}, responselog.DefaultConfig())
	mw.SetEventRecorder(recorder)

	srv := New(&Config{
		ResponseLog:     mw,
		MetricsEnabled:  true,
		MetricsEndpoint: "/metrics",
		Gatherer:        reg,
	})

	srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/check", nil))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "# TYPE responselog_records_total counter")
	assert.Contains(t, body, `responselog_records_total{measurement="response_log",method="GET",outcome="committed"} 1`)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
