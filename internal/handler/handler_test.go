package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aman-churiwal/loadmon/internal/envelope"
	"github.com/aman-churiwal/loadmon/internal/healthcheck"
	"github.com/aman-churiwal/loadmon/internal/models"
	"github.com/aman-churiwal/loadmon/internal/ratelimit"
	"github.com/aman-churiwal/loadmon/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubCollector struct {
	err       error
	submitted []string
	window    time.Duration
}

func (s *stubCollector) Submit(_ context.Context, sealed string) (envelope.Record, error) {
	s.submitted = append(s.submitted, sealed)
	return envelope.Record{}, s.err
}

func (s *stubCollector) Recent(_ context.Context, _ uint, window time.Duration) ([]service.LoadPoint, error) {
	s.window = window
	if s.err != nil {
		return nil, s.err
	}
	return []service.LoadPoint{{Time: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), Value: 55}}, nil
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		message string
	}{
		{err: fmt.Errorf("%w: invalid padding", envelope.ErrDecryption), status: 400, message: "Decryption failed"},
		{err: ratelimit.ErrRateLimitExceeded, status: 429, message: "daily registration limit exceeded"},
		{err: ratelimit.ErrSuspiciousActivity, status: 429, message: "too many requests"},
		{err: &service.ValidationError{Reason: "Unknown server id 8"}, status: 400, message: "Unknown server id 8"},
		{err: fmt.Errorf("%w: bad", service.ErrValidation), status: 400, message: "Invalid request"},
		{err: fmt.Errorf("%w: connection reset", service.ErrStorage), status: 500, message: "Internal Server Error"},
		{err: errors.New("unexpected"), status: 500, message: "Internal Server Error"},
	}

	for _, tt := range tests {
		status, message := classify(tt.err)
		require.Equal(t, tt.status, status, tt.err.Error())
		require.Equal(t, tt.message, message)
	}
}

func TestUpdateLoad(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{name: "Success", body: `{"data":"abc"}`, wantStatus: 200, wantBody: `{"status":"success"}`},
		{name: "MissingData", body: `{}`, wantStatus: 400, wantBody: `{"status":"error","message":"No data provided"}`},
		{name: "NotJSON", body: `data=abc`, wantStatus: 400, wantBody: `{"status":"error","message":"No data provided"}`},
		{
			name:       "DecryptionFailed",
			body:       `{"data":"abc"}`,
			err:        envelope.ErrDecryption,
			wantStatus: 400,
			wantBody:   `{"status":"error","message":"Decryption failed"}`,
		},
		{
			name:       "StorageFailure",
			body:       `{"data":"abc"}`,
			err:        service.ErrStorage,
			wantStatus: 500,
			wantBody:   `{"status":"error","message":"Internal Server Error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.POST("/api/update_load", NewTelemetryHandler(&stubCollector{err: tt.err}).UpdateLoad)

			req := httptest.NewRequest(http.MethodPost, "/api/update_load", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			require.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestHistory(t *testing.T) {
	collector := &stubCollector{}
	router := gin.New()
	router.GET("/api/nodes/:id/history", NewTelemetryHandler(collector).History)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nodes/7/history?window=1h", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"server_id":7,"points":[{"time":"2024-05-01T10:00:00Z","value":55}]}`, w.Body.String())
	require.Equal(t, time.Hour, collector.window)

	for _, path := range []string{"/api/nodes/abc/history", "/api/nodes/0/history", "/api/nodes/7/history?window=soon"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

type stubRegistrar struct {
	err error
	got service.RegistrationRequest
}

func (s *stubRegistrar) Register(_ context.Context, req service.RegistrationRequest) (*models.Registration, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.Registration{ID: 12, NodeID: req.NodeID, Nickname: req.Nickname}, nil
}

func postForm(router *gin.Engine, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "203.0.113.9:4000"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegister(t *testing.T) {
	registrar := &stubRegistrar{}
	router := gin.New()
	router.POST("/register", NewRegistrationHandler(registrar).Register)

	w := postForm(router, url.Values{"nickname": {"alice"}, "server_id": {"3"}})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, w.Body.String(), `"registration_id":12`)
	require.Equal(t, service.RegistrationRequest{Address: "203.0.113.9", Nickname: "alice", NodeID: 3}, registrar.got)

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"nickname":"bob","server_id":4}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, uint(4), registrar.got.NodeID)

	registrar.got = service.RegistrationRequest{}
	w = postForm(router, url.Values{"nickname": {"alice"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, registrar.got.Address, "quota must not be consulted for incomplete forms")

	registrar.err = ratelimit.ErrRateLimitExceeded
	w = postForm(router, url.Values{"nickname": {"alice"}, "server_id": {"3"}})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.JSONEq(t, `{"status":"error","message":"daily registration limit exceeded"}`, w.Body.String())
	require.Empty(t, w.Header().Get("Retry-After"))

	registrar.err = &ratelimit.LimitError{RetryAfter: 90*time.Second + 500*time.Millisecond}
	w = postForm(router, url.Values{"nickname": {"alice"}, "server_id": {"3"}})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "91", w.Header().Get("Retry-After"))
	require.JSONEq(t, `{"status":"error","message":"daily registration limit exceeded"}`, w.Body.String())
}

func TestRetryAfter(t *testing.T) {
	require.Equal(t, "1", retryAfter(0))
	require.Equal(t, "1", retryAfter(-time.Minute))
	require.Equal(t, "1", retryAfter(200*time.Millisecond))
	require.Equal(t, "86400", retryAfter(24*time.Hour))
}

type stubNodeLister struct {
	nodes []models.Node
	err   error
}

func (s stubNodeLister) ListAvailable(context.Context) ([]models.Node, error) {
	return s.nodes, s.err
}

func TestListNodes(t *testing.T) {
	lister := stubNodeLister{nodes: []models.Node{
		{ID: 1, Address: "10.0.0.1", Purpose: "web", CurrentLoad: 40, IsAvailable: true},
		{ID: 3, Address: "10.0.0.3", CurrentLoad: 75, IsAvailable: true},
	}}
	router := gin.New()
	router.GET("/api/nodes", NewNodeHandler(lister).List)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nodes", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"nodes":[
		{"id":1,"ip_address":"10.0.0.1","purpose":"web","current_load":40},
		{"id":3,"ip_address":"10.0.0.3","purpose":"","current_load":75}
	]}`, w.Body.String())

	router = gin.New()
	router.GET("/api/nodes", NewNodeHandler(stubNodeLister{err: errors.New("connection reset")}).List)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nodes", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "connection reset")
}

type stubReporter struct {
	overall healthcheck.HealthStatus
}

func (s stubReporter) OverallHealth() healthcheck.HealthStatus {
	return s.overall
}

func (s stubReporter) GetAllStatus() map[string]*healthcheck.Status {
	return map[string]*healthcheck.Status{
		"database": {Target: "database", IsHealthy: s.overall == healthcheck.Healthy},
	}
}

func TestHealth(t *testing.T) {
	for overall, want := range map[healthcheck.HealthStatus]int{
		healthcheck.Healthy:   http.StatusOK,
		healthcheck.Degraded:  http.StatusServiceUnavailable,
		healthcheck.Unhealthy: http.StatusServiceUnavailable,
	} {
		router := gin.New()
		router.GET("/health", NewHealthHandler(stubReporter{overall: overall}).Health)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, want, w.Code)
		require.Contains(t, w.Body.String(), `"status":"`+overall.String()+`"`)
	}
}
