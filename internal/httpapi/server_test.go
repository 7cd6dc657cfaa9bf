package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	got  events.APIGatewayProxyRequest
	resp events.APIGatewayProxyResponse
	err  error
}

func (h *recordingHandler) Handle(_ context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	h.got = req
	return h.resp, h.err
}

func newTestServer(t *testing.T, cfg Config, h EventHandler) *Server {
	t.Helper()
	s, err := New(cfg, h)
	require.NoError(t, err)
	return s
}

func TestNew_RequiresHandler(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
}

func TestProxy_TranslatesRequest(t *testing.T) {
	h := &recordingHandler{resp: events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json", "X-Correlation-Id": "corr-1"},
		Body:       `{"step":"name"}`,
	}}
	s := newTestServer(t, Config{}, h)

	req := httptest.NewRequest(http.MethodPost, "/sessions/abc/messages", strings.NewReader(`{"text":"Jane"}`))
	req.Header.Set("X-Correlation-Id", "corr-1")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"step":"name"}`, rec.Body.String())
	require.Equal(t, "corr-1", rec.Header().Get("X-Correlation-Id"))

	require.Equal(t, http.MethodPost, h.got.HTTPMethod)
	require.Equal(t, "/sessions/abc/messages", h.got.Path)
	require.Equal(t, "abc", h.got.PathParameters["key"])
	require.Equal(t, `{"text":"Jane"}`, h.got.Body)
	require.False(t, h.got.IsBase64Encoded)
	require.Equal(t, "corr-1", h.got.Headers["X-Correlation-Id"])
	require.NotEmpty(t, h.got.RequestContext.RequestID)
}

func TestProxy_NoContent(t *testing.T) {
	h := &recordingHandler{resp: events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}}
	s := newTestServer(t, Config{}, h)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/abc", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Body.String())
}

func TestProxy_HandlerError(t *testing.T) {
	h := &recordingHandler{err: errors.New("boom")}
	s := newTestServer(t, Config{}, h)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "boom")
}

func TestProxy_RejectsOversizedBody(t *testing.T) {
	h := &recordingHandler{}
	s := newTestServer(t, Config{}, h)

	body := strings.NewReader(strings.Repeat("a", maxBodyBytes+1))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions", body))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, h.got.HTTPMethod)
}

func TestRouter_UnknownRoute(t *testing.T) {
	s := newTestServer(t, Config{}, &recordingHandler{})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Healthz(t *testing.T) {
	s := newTestServer(t, Config{}, &recordingHandler{})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_CORSPreflight(t *testing.T) {
	s := newTestServer(t, Config{CORSOrigins: []string{"https://clinic.example"}}, &recordingHandler{})

	req := httptest.NewRequest(http.MethodOptions, "/sessions", nil)
	req.Header.Set("Origin", "https://clinic.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, "https://clinic.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter_PerIP(t *testing.T) {
	h := &recordingHandler{resp: events.APIGatewayProxyResponse{StatusCode: http.StatusOK}}
	s := newTestServer(t, Config{RateLimitRPS: 0.001, RateLimitBurst: 2}, h)

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/sessions/abc", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do("10.0.0.1"))
	require.Equal(t, http.StatusOK, do("10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))
	require.Equal(t, http.StatusOK, do("10.0.0.2"))
}

func TestRateLimiter_SweepDropsIdleVisitors(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	rl.limiterFor("10.0.0.1")
	now = now.Add(visitorTTL + time.Second)
	rl.limiterFor("10.0.0.2")
	rl.sweep()

	require.Len(t, rl.visitors, 1)
	require.Contains(t, rl.visitors, "10.0.0.2")
}
