// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

// Package mediator funnels every outbound provider call through the shared
// two-tier cache, a per-source concurrency cap and token bucket, a bounded
// retry policy, and the daily cost ledger. Source adapters never talk to
// providers directly; they hand the mediator an execute function and get
// back the cached or freshly fetched payload.
package mediator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"baobab/platform/collector/cache"
)

// Failure kinds propagated to supervisors. Rate and cost kinds are
// recoverable: pipelines skip work and report a recommendation instead of
// failing.
const (
	KindRateLimited = "rate_limited"
	KindCostLimit   = "cost_limit_exceeded"
	KindNetwork     = "network_error"
	KindTimeout     = "timeout"
	KindAPI         = "api_error"
	KindAuth        = "auth_error"
	KindValidation  = "validation_failed"
	KindCancelled   = "cancelled"
	KindInternal    = "internal_error"
)

const (
	// minUsefulPayload is the smallest provider response worth keeping;
	// anything shorter is cached as insufficient_content.
	minUsefulPayload = 50

	// costLimitNegativeTTL keeps budget-exhausted queries out of the
	// upstream path briefly without masking the next day's budget.
	costLimitNegativeTTL = 15 * time.Minute

	negativeWriteTimeout = 3 * time.Second

	defaultBreakerThreshold = 5
	defaultBreakerReset     = 30 * time.Second
)

// ErrCircuitOpen marks calls short-circuited by an open breaker. They are
// never negatively cached: breaker state is per source, not per query.
var ErrCircuitOpen = errors.New("circuit open")

// ErrInsufficientContent lets an execute function report that the provider
// answered but the answer is too thin to keep. Adapters that wrap provider
// output in an envelope return it instead of relying on the raw payload
// length check. The charge stands and the query is negatively cached.
var ErrInsufficientContent = errors.New("insufficient content")

// Error is a classified provider-call failure.
type Error struct {
	Source string
	Kind   string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from any error produced by Call,
// including negative-cache hits observed by later callers.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	var ne *cache.NegativeError
	if errors.As(err, &ne) {
		switch ne.Reason {
		case cache.ReasonRateLimited:
			return KindRateLimited
		case cache.ReasonNetworkError:
			return KindNetwork
		case cache.ReasonAPIError:
			return KindAPI
		default:
			return KindValidation
		}
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// Limit is the per-source call budget.
type Limit struct {
	MaxConcurrent    int
	RatePerSecond    float64
	Burst            int
	MaxAttempts      int
	CallTimeout      time.Duration
	EstimatedCostUSD float64
}

// Options configure a Mediator.
type Options struct {
	Cache *cache.TwoTierCache

	// Limits are keyed by source name. Unknown sources get a conservative
	// default budget.
	Limits map[string]Limit

	DailyCostLimitUSD float64

	// RedisURL backs the cross-replica minute guard; empty falls back to an
	// in-process window.
	RedisURL string

	// MinuteLimit caps calls per minute across the sources named in
	// MinuteLimited. Zero disables the guard.
	MinuteLimit   int
	MinuteLimited []string

	BreakerThreshold int
	BreakerReset     time.Duration

	Clock Clock

	// OnOutcome observes every dispatched provider call for metrics. Cache
	// hits never reach it.
	OnOutcome func(source, outcome string, elapsed time.Duration)
}

// sourceState bundles the throttling machinery for one source.
type sourceState struct {
	permits chan struct{}
	bucket  *RateLimiter
	breaker *CircuitBreaker
	limit   Limit
}

// Mediator coordinates all outbound provider traffic.
type Mediator struct {
	cache     *cache.TwoTierCache
	limits    map[string]Limit
	ledger    *CostLedger
	guard     *MinuteGuard
	guarded   map[string]bool
	threshold int
	reset     time.Duration
	onOutcome func(source, outcome string, elapsed time.Duration)

	mu     sync.RWMutex
	states map[string]*sourceState
}

// New builds a mediator. The cache is mandatory; everything else has
// workable defaults.
func New(opts Options) (*Mediator, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("mediator requires a cache")
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = defaultBreakerThreshold
	}
	if opts.BreakerReset <= 0 {
		opts.BreakerReset = defaultBreakerReset
	}

	guarded := make(map[string]bool, len(opts.MinuteLimited))
	for _, s := range opts.MinuteLimited {
		guarded[s] = true
	}

	m := &Mediator{
		cache:     opts.Cache,
		limits:    opts.Limits,
		ledger:    NewCostLedger(opts.DailyCostLimitUSD, opts.Clock),
		guard:     NewMinuteGuard(opts.RedisURL, opts.MinuteLimit),
		guarded:   guarded,
		threshold: opts.BreakerThreshold,
		reset:     opts.BreakerReset,
		onOutcome: opts.OnOutcome,
		states:    make(map[string]*sourceState),
	}
	return m, nil
}

// Close releases the mediator's redis connection.
func (m *Mediator) Close() error {
	return m.guard.Close()
}

// Ledger exposes the daily cost ledger so batch planners can skip jobs whose
// estimate would cross the budget.
func (m *Mediator) Ledger() *CostLedger {
	return m.ledger
}

// limitFor returns the source's budget with zero fields normalized, so a
// sparse config entry cannot produce an instantly-expiring timeout or a
// zero-capacity bucket.
func (m *Mediator) limitFor(source string) Limit {
	l, ok := m.limits[source]
	if !ok {
		return Limit{
			MaxConcurrent: 1,
			RatePerSecond: 0.5,
			Burst:         1,
			MaxAttempts:   2,
			CallTimeout:   30 * time.Second,
		}
	}
	if l.MaxConcurrent <= 0 {
		l.MaxConcurrent = 1
	}
	if l.RatePerSecond <= 0 {
		l.RatePerSecond = 0.5
	}
	if l.Burst <= 0 {
		l.Burst = 1
	}
	if l.MaxAttempts <= 0 {
		l.MaxAttempts = 1
	}
	if l.CallTimeout <= 0 {
		l.CallTimeout = 30 * time.Second
	}
	return l
}

// stateFor lazily builds the per-source throttle state, double-checking
// under the write lock so concurrent first calls share one state.
func (m *Mediator) stateFor(source string) *sourceState {
	m.mu.RLock()
	st, ok := m.states[source]
	m.mu.RUnlock()
	if ok {
		return st
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[source]; ok {
		return st
	}

	limit := m.limitFor(source)
	st = &sourceState{
		permits: make(chan struct{}, limit.MaxConcurrent),
		bucket:  NewRateLimiter(limit.RatePerSecond, limit.Burst),
		breaker: NewCircuitBreaker(m.threshold, m.reset),
		limit:   limit,
	}
	m.states[source] = st
	return st
}

// Call resolves (source, params) through the cache, collapsing concurrent
// misses into a single provider dispatch. A NegativeError reports a cached
// failure; an *Error reports a classified fresh failure.
func (m *Mediator) Call(ctx context.Context, source string, params map[string]any, execute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	return m.cache.Fetch(ctx, source, params, func(ctx context.Context) ([]byte, error) {
		return m.dispatch(ctx, source, params, execute)
	})
}

// dispatch runs a single provider call under the source's budget. It only
// ever runs for the single-flight winner, so it alone decides what gets
// cached.
func (m *Mediator) dispatch(ctx context.Context, source string, params map[string]any, execute func(ctx context.Context) ([]byte, error)) (payload []byte, err error) {
	start := time.Now()
	defer func() {
		if m.onOutcome != nil {
			m.onOutcome(source, outcomeOf(err), time.Since(start))
		}
	}()

	limit := m.limitFor(source)
	st := m.stateFor(source)

	// Budget gate. Free sources never consult the ledger, so an exhausted
	// budget cannot stall feeds that cost nothing.
	charged := false
	if limit.EstimatedCostUSD > 0 {
		if !m.ledger.Reserve(limit.EstimatedCostUSD) {
			m.storeNegative(source, params, cache.ReasonRateLimited, costLimitNegativeTTL)
			return nil, &Error{
				Source: source,
				Kind:   KindCostLimit,
				Err:    fmt.Errorf("daily budget exhausted: spent $%.4f of $%.4f", m.ledger.Spent(), m.ledger.Limit()),
			}
		}
		charged = true
	}
	refund := func() {
		if charged {
			m.ledger.Refund(limit.EstimatedCostUSD)
		}
	}

	if !st.breaker.Allow() {
		refund()
		return nil, &Error{Source: source, Kind: KindAPI, Err: ErrCircuitOpen}
	}

	if m.guarded[source] {
		if gerr := m.guard.Allow(ctx, source); gerr != nil {
			refund()
			return nil, &Error{Source: source, Kind: KindRateLimited, Err: gerr}
		}
	}

	// Concurrency permit.
	select {
	case st.permits <- struct{}{}:
		defer func() { <-st.permits }()
	case <-ctx.Done():
		refund()
		return nil, contextError(ctx, source)
	}

	// Token bucket, bounded by the call timeout.
	waitCtx, cancel := context.WithTimeout(ctx, limit.CallTimeout)
	werr := st.bucket.Wait(waitCtx)
	cancel()
	if werr != nil {
		refund()
		if ctx.Err() != nil {
			return nil, contextError(ctx, source)
		}
		return nil, &Error{
			Source: source,
			Kind:   KindRateLimited,
			Err:    fmt.Errorf("no rate token within %s", limit.CallTimeout),
		}
	}

	cfg := DefaultRetryConfig()
	if limit.MaxAttempts > 0 {
		cfg.MaxRetries = limit.MaxAttempts - 1
	}

	payload, err = RetryWithBackoff(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, limit.CallTimeout)
		defer cancel()
		return execute(attemptCtx)
	})
	if errors.Is(err, ErrInsufficientContent) {
		// The provider answered, so the breaker and the ledger both treat
		// this as a completed call.
		st.breaker.RecordSuccess()
		m.storeNegative(source, params, cache.ReasonInsufficientContent, 0)
		return nil, &cache.NegativeError{Source: source, Reason: cache.ReasonInsufficientContent}
	}
	if err != nil {
		refund()
		cerr := m.classifyFailure(ctx, source, params, err)
		// Caller cancellation says nothing about provider health.
		var me *Error
		if errors.As(cerr, &me) && me.Kind != KindCancelled {
			st.breaker.RecordFailure()
		}
		return nil, cerr
	}
	st.breaker.RecordSuccess()

	if len(payload) < minUsefulPayload {
		// The provider did answer, so the charge stands.
		m.storeNegative(source, params, cache.ReasonInsufficientContent, 0)
		return nil, &cache.NegativeError{Source: source, Reason: cache.ReasonInsufficientContent}
	}

	if serr := m.cache.Store(ctx, source, params, payload); serr != nil {
		log.Printf("[Mediator] ⚠️  Failed to cache %s result: %v", source, serr)
	}
	return payload, nil
}

// classifyFailure maps a post-retry failure onto the error taxonomy and
// writes the matching negative entry. Caller cancellation is not provider
// state and never poisons the cache.
func (m *Mediator) classifyFailure(ctx context.Context, source string, params map[string]any, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return &Error{Source: source, Kind: KindCancelled, Err: err}
	}

	kind := KindAPI
	reason := cache.ReasonAPIError

	var apiErr *APIError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind, reason = KindTimeout, cache.ReasonNetworkError
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.Type == "rate_limit_error":
			kind, reason = KindRateLimited, cache.ReasonRateLimited
		case apiErr.StatusCode == http.StatusUnauthorized ||
			apiErr.StatusCode == http.StatusForbidden ||
			apiErr.Type == "authentication_error" || apiErr.Type == "permission_error":
			kind, reason = KindAuth, cache.ReasonAPIError
		}
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			kind, reason = KindTimeout, cache.ReasonNetworkError
		} else {
			kind, reason = KindNetwork, cache.ReasonNetworkError
		}
	}

	m.storeNegative(source, params, reason, 0)
	return &Error{Source: source, Kind: kind, Err: err}
}

// storeNegative writes a negative entry on a detached context: the caller's
// may already be dead, and a failed write must not mask the real failure.
func (m *Mediator) storeNegative(source string, params map[string]any, reason cache.NegativeReason, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), negativeWriteTimeout)
	defer cancel()

	var err error
	if ttl > 0 {
		err = m.cache.StoreNegativeWithTTL(ctx, source, params, reason, ttl)
	} else {
		err = m.cache.StoreNegative(ctx, source, params, reason)
	}
	if err != nil {
		log.Printf("[Mediator] ⚠️  Failed to cache %s failure for %s: %v", reason, source, err)
	}
}

func contextError(ctx context.Context, source string) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Source: source, Kind: KindTimeout, Err: ctx.Err()}
	}
	return &Error{Source: source, Kind: KindCancelled, Err: ctx.Err()}
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	var ne *cache.NegativeError
	if errors.As(err, &ne) {
		return string(ne.Reason)
	}
	return KindOf(err)
}

// WarmTask pre-executes one provider call so its result is cached before a
// collection cycle needs it.
type WarmTask struct {
	Source  string
	Params  map[string]any
	Execute func(ctx context.Context) ([]byte, error)
}

// Warm runs tasks through Call with bounded parallelism and reports how many
// produced positive cache entries and how many failed. Negative results
// count as warmed: the cache now answers for them too.
func (m *Mediator) Warm(ctx context.Context, tasks []WarmTask) (warmed, failed int) {
	var okCount, negCount, failCount atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			_, err := m.Call(gctx, t.Source, t.Params, t.Execute)
			switch {
			case err == nil:
				okCount.Add(1)
			case errors.As(err, new(*cache.NegativeError)):
				negCount.Add(1)
			default:
				failCount.Add(1)
				log.Printf("[Mediator] ⚠️  Warm task for %s failed: %v", t.Source, err)
			}
			return nil
		})
	}
	g.Wait()

	return int(okCount.Load() + negCount.Load()), int(failCount.Load())
}

// CostSnapshot is the control-surface view of the daily ledger.
type CostSnapshot struct {
	Day          string  `json:"day"`
	SpentUSD     float64 `json:"spent_usd"`
	LimitUSD     float64 `json:"limit_usd"`
	RemainingUSD float64 `json:"remaining_usd"`
}

// Costs snapshots the ledger.
func (m *Mediator) Costs() CostSnapshot {
	return CostSnapshot{
		Day:          m.ledger.Day(),
		SpentUSD:     m.ledger.Spent(),
		LimitUSD:     m.ledger.Limit(),
		RemainingUSD: m.ledger.Remaining(),
	}
}

// SourceStatus is the control-surface view of one source's throttles.
type SourceStatus struct {
	Source          string  `json:"source"`
	TokensAvailable int     `json:"tokens_available"`
	RatePerSecond   float64 `json:"rate_per_second"`
	Burst           int     `json:"burst"`
	MaxConcurrent   int     `json:"max_concurrent"`
	InFlight        int     `json:"in_flight"`
	Circuit         string  `json:"circuit"`
}

// Sources snapshots every source that has dispatched at least once, sorted
// by name.
func (m *Mediator) Sources() []SourceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SourceStatus, 0, len(m.states))
	for name, st := range m.states {
		out = append(out, SourceStatus{
			Source:          name,
			TokensAvailable: st.bucket.Available(),
			RatePerSecond:   st.limit.RatePerSecond,
			Burst:           st.limit.Burst,
			MaxConcurrent:   st.limit.MaxConcurrent,
			InFlight:        len(st.permits),
			Circuit:         st.breaker.State().String(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
