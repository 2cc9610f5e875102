package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"fieldgate/internal/normalize"
	"fieldgate/internal/platform/metrics"
	"fieldgate/pkg/platform/httputil"
)

// verifyRequest is the widget's request body. Only the candidate number is
// carried; everything else the upstream needs is added server-side.
type verifyRequest struct {
	Number string `json:"number"`
}

// rateLimitedEnvelope is deliberately a 200-level answer. The widget treats
// it as a recoverable condition and keeps the form usable; a 429 would trip
// generic fetch error paths in older embedders.
type rateLimitedEnvelope struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
}

// Handler is the edge proxy's HTTP surface.
type Handler struct {
	gate     *Gate
	upstream *Upstream
	throttle *rate.Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type HandlerOption func(*Handler)

func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithHandlerMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithGlobalThrottle caps the whole process across all clients. A nil
// limiter disables the cap.
func WithGlobalThrottle(l *rate.Limiter) HandlerOption {
	return func(h *Handler) {
		h.throttle = l
	}
}

func NewHandler(gate *Gate, upstream *Upstream, opts ...HandlerOption) *Handler {
	h := &Handler{
		gate:     gate,
		upstream: upstream,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts the proxy surface. Preflight is answered here so embedding
// pages can call the proxy cross-origin; any verb other than POST or
// OPTIONS is rejected.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is accepted")
	})
	r.Options("/verify", h.preflight)
	r.Post("/verify", h.verify)
	return r
}

func (h *Handler) preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.throttle != nil && !h.throttle.Allow() {
		h.metrics.IncProxyRateLimited()
		h.writeRateLimited(w, GateResult{ResetAt: time.Now().Add(time.Second)})
		return
	}

	result := h.gate.Allow(ctx, clientIP(r))
	addRateLimitHeaders(w, result)
	if !result.Allowed {
		h.writeRateLimited(w, result)
		return
	}

	req, err := decodeVerifyRequest(r)
	if err != nil {
		h.metrics.IncProxyRequest("400")
		httputil.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if !h.upstream.Ready() {
		h.logger.Error("upstream credential missing, refusing request")
		h.metrics.IncProxyRequest("500")
		httputil.WriteError(w, http.StatusInternalServerError, "configuration_error", "")
		return
	}

	number := normalize.Phone(req.Number)
	resp, err := h.upstream.Verify(ctx, number)
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}

	h.metrics.IncProxyRequest(strconv.Itoa(resp.StatusCode))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func (h *Handler) writeRateLimited(w http.ResponseWriter, result GateResult) {
	retryAfter := int(time.Until(result.ResetAt).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	h.metrics.IncProxyRequest("rate_limited")
	httputil.WriteJSON(w, http.StatusOK, rateLimitedEnvelope{
		Error:      "rate_limited",
		RetryAfter: retryAfter,
	})
}

func (h *Handler) writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUpstreamTimeout):
		h.metrics.IncProxyRequest("504")
		httputil.WriteError(w, http.StatusGatewayTimeout, "upstream_timeout", "")
	case errors.Is(err, ErrMissingCredential):
		h.metrics.IncProxyRequest("500")
		httputil.WriteError(w, http.StatusInternalServerError, "configuration_error", "")
	default:
		h.logger.Warn("upstream call failed", "error", err)
		h.metrics.IncProxyRequest("502")
		httputil.WriteError(w, http.StatusBadGateway, "upstream_error", "")
	}
}

func decodeVerifyRequest(r *http.Request) (verifyRequest, error) {
	var req verifyRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<14))
	if err != nil {
		return req, errors.New("unreadable request body")
	}
	if len(body) == 0 {
		return req, errors.New("request body is required")
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, errors.New("request body must be JSON")
	}
	if strings.TrimSpace(req.Number) == "" {
		return req, errors.New("number is required")
	}
	return req, nil
}

// clientIP prefers the forwarding chain's originating address; the edge
// always sits behind a CDN in production.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func addRateLimitHeaders(w http.ResponseWriter, result GateResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
