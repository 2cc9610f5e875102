package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"fieldgate/internal/platform/config"
	"fieldgate/internal/platform/metrics"
)

// Upstream failure classes. The handler maps these to gateway statuses;
// everything else about the upstream answer passes through untouched.
var (
	ErrUpstreamTimeout     = errors.New("upstream timed out")
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	ErrUpstreamBadResponse = errors.New("upstream returned an unusable response")
	ErrMissingCredential   = errors.New("upstream credential not configured")
)

// UpstreamResponse is the upstream's answer, relayed verbatim.
type UpstreamResponse struct {
	StatusCode int
	Body       []byte
}

// Upstream forwards verification requests to the third-party lookup API
// under a hard timeout. Responses are screened for shape only: a non-JSON
// content type or an HTML error page from an intermediary is a gateway
// failure, not a verdict.
type Upstream struct {
	httpClient *http.Client
	url        string
	apiKey     string
	timeout    time.Duration
	metrics    *metrics.Metrics
}

type UpstreamOption func(*Upstream)

func WithUpstreamHTTPClient(hc *http.Client) UpstreamOption {
	return func(u *Upstream) {
		u.httpClient = hc
	}
}

func WithUpstreamMetrics(m *metrics.Metrics) UpstreamOption {
	return func(u *Upstream) {
		u.metrics = m
	}
}

func NewUpstream(cfg config.UpstreamConfig, opts ...UpstreamOption) *Upstream {
	u := &Upstream{
		httpClient: &http.Client{},
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
	}
	if u.timeout <= 0 {
		u.timeout = 8 * time.Second
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Ready reports whether the upstream credential is configured. The handler
// refuses requests with a server error when it is not, instead of leaking
// unauthenticated calls upstream.
func (u *Upstream) Ready() bool {
	return u.apiKey != ""
}

// Verify forwards one number to the lookup API and relays status and body.
func (u *Upstream) Verify(ctx context.Context, number string) (*UpstreamResponse, error) {
	if !u.Ready() {
		return nil, ErrMissingCredential
	}

	payload, err := json.Marshal(map[string]string{"number": number})
	if err != nil {
		return nil, fmt.Errorf("encode upstream request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+u.apiKey)

	start := time.Now()
	resp, err := u.httpClient.Do(req)
	u.metrics.ObserveUpstreamLatencyMs(float64(time.Since(start).Milliseconds()))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrUpstreamTimeout
		}
		return nil, fmt.Errorf("%w: %s", ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrUpstreamTimeout
		}
		return nil, fmt.Errorf("%w: read body: %s", ErrUpstreamUnreachable, err)
	}

	if !upstreamBodyUsable(resp.Header.Get("Content-Type"), body) {
		return nil, ErrUpstreamBadResponse
	}

	return &UpstreamResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

// upstreamBodyUsable rejects non-JSON answers. Proxies and CDNs in front of
// the lookup API answer with HTML error pages under load; those must never
// reach the widget as if they were verdicts.
func upstreamBodyUsable(contentType string, body []byte) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") {
			return json.Valid(body)
		}
		return false
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] == '<' {
		return false
	}
	return json.Valid(trimmed)
}
