package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"fieldgate/internal/verdict"
)

// CheckClient is the single external call contract of the pipeline.
type CheckClient interface {
	Check(ctx context.Context, value string, attempt int) (verdict.Verdict, error)
}

// checkResponse is the remote contract: a result discriminator plus optional
// detail. Rate-limited proxies answer 200 with an error envelope instead of
// a result.
type checkResponse struct {
	Result     string `json:"result"`
	Reason     string `json:"reason,omitempty"`
	DidYouMean string `json:"did_you_mean,omitempty"`
	Error      string `json:"error,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// Client performs remote verdict checks over HTTP. Concurrent checks for the
// identical value share one in-flight request instead of issuing duplicates.
type Client struct {
	httpClient *http.Client
	endpoint   string
	field      string // JSON property carrying the candidate value
	flight     singleflight.Group
	logger     *slog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient builds a verdict client posting {field: value} to endpoint.
func NewClient(endpoint, field string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{},
		endpoint:   endpoint,
		field:      field,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check issues one POST for value. Non-2xx statuses, non-JSON content types
// and undecodable bodies are transient errors; a well-formed body yields a
// verdict (or a rate-limited error for the proxy's failure envelope).
func (c *Client) Check(ctx context.Context, value string, attempt int) (verdict.Verdict, error) {
	result, err, _ := c.flight.Do(value, func() (any, error) {
		return c.check(ctx, value, attempt)
	})
	if err != nil {
		return verdict.Verdict{}, err
	}
	return result.(verdict.Verdict), nil
}

func (c *Client) check(ctx context.Context, value string, attempt int) (verdict.Verdict, error) {
	payload, err := json.Marshal(map[string]string{c.field: value})
	if err != nil {
		return verdict.Verdict{}, fmt.Errorf("encode check request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return verdict.Verdict{}, fmt.Errorf("build check request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return verdict.Verdict{}, context.Canceled
		}
		return verdict.Verdict{}, verdict.NewCheckError(
			verdict.CategoryTransient, value, "check request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return verdict.Verdict{}, verdict.NewCheckError(
			verdict.CategoryTransient, value,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	if !jsonContentType(resp.Header.Get("Content-Type")) {
		return verdict.Verdict{}, verdict.NewCheckError(
			verdict.CategoryMalformed, value, "non-JSON response", nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return verdict.Verdict{}, verdict.NewCheckError(
			verdict.CategoryTransient, value, "read response body", err)
	}

	var decoded checkResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return verdict.Verdict{}, verdict.NewCheckError(
			verdict.CategoryMalformed, value, "undecodable response body", err)
	}

	if decoded.Error != "" {
		if decoded.Error == "rate_limited" {
			return verdict.Verdict{}, verdict.NewCheckError(
				verdict.CategoryRateLimited, value, "remote rate limit", nil)
		}
		return verdict.Verdict{}, verdict.NewCheckError(
			verdict.CategoryTransient, value, "remote error: "+decoded.Error, nil)
	}

	v := verdict.Verdict{
		Value:     value,
		Attempt:   attempt,
		CheckedAt: time.Now(),
	}
	switch decoded.Result {
	case "valid":
		v.Outcome = verdict.OutcomeValid
	case "invalid":
		v.Outcome = verdict.OutcomeInvalid
		v.Reason = decoded.Reason
		v.Suggestion = decoded.DidYouMean
	case "unknown":
		v.Outcome = verdict.OutcomeUnknown
	default:
		return verdict.Verdict{}, verdict.NewCheckError(
			verdict.CategoryMalformed, value, "missing result discriminator", nil)
	}
	return v, nil
}

func jsonContentType(header string) bool {
	if header == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
