// Package proxy is the edge surface in front of the upstream lookup API:
// per-client rate gating backed by a counter store, a global throttle, and
// request/response passthrough with a hard upstream timeout.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fieldgate/internal/platform/metrics"
)

// GateKeyPrefix namespaces counter keys so a shared Redis can host other
// tenants without collisions.
const GateKeyPrefix = "fieldgate:gate:"

// CounterStore is the minimal contract the gate needs: read a window's
// count and write it back with a TTL. Implementations must return a zero
// count, not an error, for absent keys.
type CounterStore interface {
	Get(ctx context.Context, key string) (int, error)
	Put(ctx context.Context, key string, count int, ttl time.Duration) error
}

// GateResult reports one admission decision together with the header
// material the handler exposes to clients.
type GateResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Gate admits at most limit requests per client per fixed window. Counter
// store failures fail open: the edge must never reject traffic because its
// bookkeeping backend is down.
type Gate struct {
	store  CounterStore
	limit  int
	window time.Duration
	now    func() time.Time

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type GateOption func(*Gate)

func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

func WithGateMetrics(m *metrics.Metrics) GateOption {
	return func(g *Gate) {
		g.metrics = m
	}
}

// WithGateNow overrides the clock, for deterministic window tests.
func WithGateNow(now func() time.Time) GateOption {
	return func(g *Gate) {
		g.now = now
	}
}

func NewGate(store CounterStore, limit int, window time.Duration, opts ...GateOption) *Gate {
	g := &Gate{
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
		logger: slog.Default(),
	}
	if g.limit <= 0 {
		g.limit = 30
	}
	if g.window <= 0 {
		g.window = time.Minute
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Allow decides admission for one client. The counter key is derived from
// the client identifier and the current fixed window, so counts reset
// naturally at window boundaries and expired keys age out via TTL.
func (g *Gate) Allow(ctx context.Context, client string) GateResult {
	now := g.now()
	windowStart := now.Truncate(g.window)
	resetAt := windowStart.Add(g.window)
	key := fmt.Sprintf("%s%s:%d", GateKeyPrefix, sanitizeClient(client), windowStart.Unix())

	count, err := g.store.Get(ctx, key)
	if err != nil {
		g.logger.Warn("counter store read failed, failing open", "error", err)
		return GateResult{Allowed: true, Limit: g.limit, Remaining: g.limit, ResetAt: resetAt}
	}

	if count >= g.limit {
		g.metrics.IncProxyRateLimited()
		return GateResult{Allowed: false, Limit: g.limit, Remaining: 0, ResetAt: resetAt}
	}

	if err := g.store.Put(ctx, key, count+1, g.window); err != nil {
		g.logger.Warn("counter store write failed, failing open", "error", err)
		return GateResult{Allowed: true, Limit: g.limit, Remaining: g.limit, ResetAt: resetAt}
	}

	return GateResult{
		Allowed:   true,
		Limit:     g.limit,
		Remaining: g.limit - count - 1,
		ResetAt:   resetAt,
	}
}

// sanitizeClient keeps counter keys to a safe charset. Client identifiers
// come from network metadata and are not trusted.
func sanitizeClient(client string) string {
	if client == "" {
		return "unknown"
	}
	var b strings.Builder
	b.Grow(len(client))
	for _, r := range client {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ':':
			// IPv6 separators collide with the key layout
			b.WriteByte('|')
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
