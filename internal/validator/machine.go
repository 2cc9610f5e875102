// Package validator orchestrates how one field's raw input becomes an
// authoritative verdict: debounce, queueing, deduplication, budget, retries,
// caching and render batching are composed here.
package validator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"fieldgate/internal/cache"
	"fieldgate/internal/debounce"
	"fieldgate/internal/platform/metrics"
	"fieldgate/internal/queue"
	"fieldgate/internal/ratewindow"
	"fieldgate/internal/render"
	"fieldgate/internal/retry"
	"fieldgate/internal/verdict"
	"fieldgate/pkg/platform/sentinel"
)

// State is the machine's position in the validation lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateDebouncing State = "debouncing"
	StateQueued     State = "queued"
	StateValidating State = "validating"
	StateValid      State = "valid"
	StateInvalid    State = "invalid"
	StateUnknown    State = "unknown"
	// StateError covers failsafe mode and spent budgets: validation is
	// suspended, submission is allowed.
	StateError State = "error"
)

// Field messages. Intentionally fixed strings: message i18n is out of scope.
const (
	msgChecking    = "Checking…"
	msgValid       = "Looks good."
	msgInvalid     = "This value doesn't look right."
	msgSyntax      = "Please enter a complete value."
	msgBlocked     = "Please correct this field before submitting."
	msgRateLimited = "Too many checks right now. Please try again in a moment."
)

// Config tunes the orchestration. Zero values fall back to defaults.
type Config struct {
	DebounceDelay     time.Duration // quiet period before a validation trigger
	UnknownRetries    int           // extra checks after an ambiguous answer; negative disables
	UnknownRetryDelay time.Duration
	BudgetLimit       int // remote checks permitted per budget window
	BudgetWindow      time.Duration
}

func (c Config) withDefaults() Config {
	if c.DebounceDelay <= 0 {
		c.DebounceDelay = 300 * time.Millisecond
	}
	if c.UnknownRetries == 0 {
		c.UnknownRetries = 2
	}
	if c.UnknownRetries < 0 {
		c.UnknownRetries = 0
	}
	if c.UnknownRetryDelay <= 0 {
		c.UnknownRetryDelay = 2 * time.Second
	}
	if c.BudgetLimit <= 0 {
		c.BudgetLimit = 20
	}
	if c.BudgetWindow <= 0 {
		c.BudgetWindow = time.Minute
	}
	return c
}

// Machine is the per-field validation orchestrator. Create one with New and
// release it with Dispose; there is no package-level state.
type Machine struct {
	mu            sync.Mutex
	state         State
	value         string // raw input as typed
	normalized    string // derived on every edit, never stored elsewhere
	lastConfirmed string // normalized value the last verdict applied to
	lastVerdict   *verdict.Verdict
	failsafe      bool

	profile   Profile
	cfg       Config
	client    CheckClient
	cache     *cache.Cache
	window    *ratewindow.Window
	queue     *queue.Queue
	retrier   *retry.Controller
	renderer  *render.Scheduler
	debouncer *debounce.Debouncer

	renderInterval time.Duration // consulted only during construction

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Machine)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Machine) {
		m.metrics = mx
	}
}

func WithConfig(cfg Config) Option {
	return func(m *Machine) {
		m.cfg = cfg.withDefaults()
	}
}

func WithCache(c *cache.Cache) Option {
	return func(m *Machine) {
		m.cache = c
	}
}

func WithQueue(q *queue.Queue) Option {
	return func(m *Machine) {
		m.queue = q
	}
}

func WithRetry(r *retry.Controller) Option {
	return func(m *Machine) {
		m.retrier = r
	}
}

func WithWindow(w *ratewindow.Window) Option {
	return func(m *Machine) {
		m.window = w
	}
}

func WithRenderInterval(d time.Duration) Option {
	return func(m *Machine) {
		m.renderInterval = d
	}
}

// New constructs a machine for one field and starts its render loop.
func New(profile Profile, client CheckClient, sink render.Sink, opts ...Option) (*Machine, error) {
	if profile.Normalize == nil || profile.Plausible == nil {
		return nil, errors.New("profile is incomplete")
	}
	if client == nil {
		return nil, errors.New("check client is required")
	}
	if sink == nil {
		return nil, errors.New("render sink is required")
	}

	m := &Machine{
		state:   StateIdle,
		profile: profile,
		cfg:     Config{}.withDefaults(),
		client:  client,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.cache == nil {
		m.cache = cache.New(cache.NewMemoryStore(200))
	}
	if m.queue == nil {
		m.queue = queue.New(queue.WithLogger(m.logger), queue.WithMetrics(m.metrics))
	}
	if m.retrier == nil {
		m.retrier = retry.New(retry.WithLogger(m.logger), retry.WithMetrics(m.metrics))
	}
	if m.window == nil {
		m.window = ratewindow.New(m.cfg.BudgetLimit, m.cfg.BudgetWindow)
	}

	var renderOpts []render.Option
	if m.renderInterval > 0 {
		renderOpts = append(renderOpts, render.WithInterval(m.renderInterval))
	}
	m.renderer = render.NewScheduler(sink, renderOpts...)
	m.renderer.Start()

	m.debouncer = debounce.New(m.cfg.DebounceDelay)

	return m, nil
}

// Dispose releases timers, workers and the render loop. The machine must not
// be used afterwards.
func (m *Machine) Dispose() {
	m.debouncer.Cancel()
	m.queue.Close()
	m.renderer.Stop()
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Value returns the raw input the machine currently holds.
func (m *Machine) Value() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

// Input records an edit and re-arms debounced validation. Any failsafe from
// earlier failures is lifted: user edits are the only way back.
func (m *Machine) Input(raw string) {
	m.mu.Lock()
	m.value = raw
	norm := m.profile.Normalize(raw)
	m.normalized = norm
	m.failsafe = false
	m.state = StateDebouncing
	m.mu.Unlock()

	m.debouncer.Trigger(func() {
		m.startValidation(norm)
	})
}

// Blur bypasses the quiet period: a plausible, not-yet-confirmed value is
// validated immediately.
func (m *Machine) Blur() {
	m.mu.Lock()
	norm := m.normalized
	confirmed := m.lastConfirmed
	m.mu.Unlock()

	if norm == "" || !m.profile.Plausible(norm) || norm == confirmed {
		return
	}
	m.debouncer.Flush(func() {
		m.startValidation(norm)
	})
}

// Submit reports whether submission may proceed. Only a confirmed Invalid
// verdict blocks; unknown and error states fail open.
func (m *Machine) Submit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateInvalid {
		m.scheduleLocked(render.Batch{
			Message:       msgBlocked,
			Tone:          render.ToneInvalid,
			Suggestion:    m.suggestionLocked(),
			SubmitEnabled: false,
		})
		return false
	}
	return true
}

// AcceptSuggestion replaces the input with the last verdict's suggested
// correction and validates it immediately, bypassing debounce. Returns the
// adopted value, or "" when no suggestion is pending.
func (m *Machine) AcceptSuggestion() string {
	m.mu.Lock()
	suggestion := m.suggestionLocked()
	if suggestion == "" {
		m.mu.Unlock()
		return ""
	}
	m.value = suggestion
	norm := m.profile.Normalize(suggestion)
	m.normalized = norm
	m.failsafe = false
	m.state = StateDebouncing
	m.mu.Unlock()

	m.debouncer.Cancel()
	m.startValidation(norm)
	return suggestion
}

func (m *Machine) suggestionLocked() string {
	if m.lastVerdict == nil {
		return ""
	}
	return m.lastVerdict.Suggestion
}

// currentNormalized is handed to the retry controller so in-flight jobs can
// notice a superseded value before every side effect.
func (m *Machine) currentNormalized() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.normalized
}

// startValidation is the debounce/blur trigger target. It resolves the
// cheap paths (empty, implausible, cached, budget) and otherwise enqueues a
// remote check job.
func (m *Machine) startValidation(norm string) {
	m.mu.Lock()
	if m.normalized != norm || m.failsafe {
		m.mu.Unlock()
		return
	}

	if norm == "" {
		m.state = StateIdle
		m.scheduleLocked(neutralBatch())
		m.mu.Unlock()
		return
	}

	if !m.profile.Plausible(norm) {
		m.state = StateInvalid
		m.lastConfirmed = norm
		m.lastVerdict = &verdict.Verdict{Value: norm, Outcome: verdict.OutcomeInvalid, Reason: msgSyntax}
		m.scheduleLocked(render.Batch{
			Message:       msgSyntax,
			Tone:          render.ToneInvalid,
			SubmitEnabled: false,
		})
		m.mu.Unlock()
		m.metrics.IncValidation("invalid_syntax")
		return
	}
	m.mu.Unlock()

	if result, ok := m.cache.Lookup(context.Background(), norm); ok {
		v := verdict.Verdict{Value: norm, Outcome: verdict.OutcomeInvalid, Reason: msgInvalid}
		if result {
			v = verdict.Verdict{Value: norm, Outcome: verdict.OutcomeValid}
		}
		m.applyVerdict(norm, v)
		return
	}

	if !m.window.Allow() {
		m.mu.Lock()
		if m.normalized == norm {
			m.state = StateError
			m.scheduleLocked(render.Batch{
				Message:       msgRateLimited,
				Tone:          render.ToneNotice,
				SubmitEnabled: true,
			})
		}
		m.mu.Unlock()
		m.metrics.IncValidation("rate_limited")
		return
	}

	m.mu.Lock()
	if m.normalized != norm {
		m.mu.Unlock()
		return
	}
	m.state = StateQueued
	m.scheduleLocked(render.Batch{
		Message:       msgChecking,
		Tone:          render.ToneChecking,
		SubmitEnabled: true,
	})
	m.mu.Unlock()

	if !m.queue.Enqueue(norm, func(ctx context.Context) {
		m.runJob(ctx, norm)
	}) {
		// queue full: silently a no-op per contract
		m.mu.Lock()
		if m.normalized == norm && m.state == StateQueued {
			m.state = StateIdle
		}
		m.mu.Unlock()
	}
}

// runJob executes the retry sequence for one queued value, then the bounded
// unknown re-check loop, and finally applies whatever verdict survived the
// race checks.
func (m *Machine) runJob(ctx context.Context, norm string) {
	m.mu.Lock()
	if m.normalized == norm && m.state == StateQueued {
		m.state = StateValidating
	}
	m.mu.Unlock()

	unknownAttempts := 0
	for {
		v, err := m.retrier.Execute(ctx, norm, m.currentNormalized, m.client.Check)
		if err != nil {
			m.handleJobError(norm, err)
			return
		}

		if v.Outcome == verdict.OutcomeUnknown && unknownAttempts < m.cfg.UnknownRetries {
			unknownAttempts++
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.cfg.UnknownRetryDelay):
			}
			if m.currentNormalized() != norm {
				return
			}
			continue
		}

		m.applyVerdict(norm, v)
		return
	}
}

func (m *Machine) handleJobError(norm string, err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, sentinel.ErrSuperseded):
		// a newer value took over; nothing to render
	case verdict.GetCategory(err) == verdict.CategoryRateLimited:
		m.mu.Lock()
		if m.normalized == norm {
			m.state = StateError
			m.scheduleLocked(render.Batch{
				Message:       msgRateLimited,
				Tone:          render.ToneNotice,
				SubmitEnabled: true,
			})
		}
		m.mu.Unlock()
		m.metrics.IncValidation("rate_limited")
	default:
		m.enterFailsafe(norm, err)
	}
}

// enterFailsafe suspends validation after exhausted retries. Submission is
// re-enabled unconditionally; the next edit lifts the failsafe.
func (m *Machine) enterFailsafe(norm string, err error) {
	m.mu.Lock()
	if m.normalized != norm {
		m.mu.Unlock()
		return
	}
	m.failsafe = true
	m.state = StateError
	m.scheduleLocked(render.Batch{
		Tone:          render.ToneNone,
		SubmitEnabled: true,
	})
	m.mu.Unlock()

	m.logger.Warn("validation failsafe engaged",
		"profile", m.profile.Name,
		"error", err,
	)
	m.metrics.IncValidation("error")
}

// applyVerdict is the only place a verdict reaches UI state. The current
// value is re-checked under the lock; a stale verdict is discarded whole.
func (m *Machine) applyVerdict(norm string, v verdict.Verdict) {
	m.mu.Lock()
	if m.normalized != norm {
		m.mu.Unlock()
		return
	}

	m.lastConfirmed = norm
	vv := v
	m.lastVerdict = &vv

	var batch render.Batch
	switch v.Outcome {
	case verdict.OutcomeValid:
		m.state = StateValid
		batch = render.Batch{Message: msgValid, Tone: render.ToneValid, SubmitEnabled: true}
	case verdict.OutcomeInvalid:
		m.state = StateInvalid
		reason := v.Reason
		if reason == "" {
			reason = msgInvalid
		}
		batch = render.Batch{
			Message:       reason,
			Tone:          render.ToneInvalid,
			Suggestion:    v.Suggestion,
			SubmitEnabled: false,
		}
	default:
		// unknown resolved to neutral: fail open
		m.state = StateIdle
		batch = neutralBatch()
	}
	m.scheduleLocked(batch)
	m.mu.Unlock()

	if v.Conclusive() {
		m.cache.Record(context.Background(), norm, v.Accepted())
	}
	m.metrics.IncValidation(string(v.Outcome))
}

func (m *Machine) scheduleLocked(b render.Batch) {
	m.renderer.Schedule(b)
}

func neutralBatch() render.Batch {
	return render.Batch{Tone: render.ToneNone, SubmitEnabled: true}
}
