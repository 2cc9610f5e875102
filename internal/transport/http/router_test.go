package httptransport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldgate/internal/platform/config"
	"fieldgate/internal/proxy"
)

func testRouter(t *testing.T, upstreamURL string, health func(ctx context.Context) error) http.Handler {
	t.Helper()
	gate := proxy.NewGate(proxy.NewMemoryCounterStore(), 100, time.Minute)
	upstream := proxy.NewUpstream(config.UpstreamConfig{
		URL:     upstreamURL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	})
	return NewRouter(Deps{
		Proxy:          proxy.NewHandler(gate, upstream),
		AllowedOrigins: []string{"https://forms.example.com"},
		Health:         health,
	})
}

func TestRouter_Healthz(t *testing.T) {
	h := testRouter(t, "http://example.invalid", nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestRouter_HealthzDegraded(t *testing.T) {
	h := testRouter(t, "http://example.invalid", func(ctx context.Context) error {
		return errors.New("redis down")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_Metrics(t *testing.T) {
	h := testRouter(t, "http://example.invalid", nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_PreflightCarriesCORSHeaders(t *testing.T) {
	h := testRouter(t, "http://example.invalid", nil)

	req := httptest.NewRequest(http.MethodOptions, "/v1/phone/verify", nil)
	req.Header.Set("Origin", "https://forms.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://forms.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_VerifyRouted(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"valid"}`))
	}))
	t.Cleanup(upstream.Close)

	h := testRouter(t, upstream.URL, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/phone/verify", strings.NewReader(`{"number":"+491511234567"}`))
	req.Header.Set("Origin", "https://forms.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":"valid"}`, rec.Body.String())
}

func TestRouter_UnknownPath(t *testing.T) {
	h := testRouter(t, "http://example.invalid", nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
