// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"baobab/platform/collector/store"
	"baobab/platform/shared/logger"
	"baobab/platform/shared/types"
)

// Pipeline names. Each holds at most one running run at a time.
const (
	PipelineNews           = "news"
	PipelineAcademic       = "academic"
	PipelineAcademicArxiv  = "academic_arxiv"
	PipelineAcademicPubmed = "academic_pubmed"
	PipelineDiscovery      = "discovery"
	PipelineEnrichment     = "enrichment"
)

// PipelineNames lists every supervised pipeline in display order.
var PipelineNames = []string{
	PipelineNews,
	PipelineAcademic,
	PipelineAcademicArxiv,
	PipelineAcademicPubmed,
	PipelineDiscovery,
	PipelineEnrichment,
}

// StartResult is the verdict of a trigger attempt.
type StartResult string

const (
	StartAccepted       StartResult = "accepted"
	StartAlreadyRunning StartResult = "already_running"
	StartDisabled       StartResult = "disabled"
)

// ErrRunSkipped is returned by a pipeline function to record the run as
// skipped rather than succeeded, for example when the news window is empty.
var ErrRunSkipped = errors.New("run skipped")

// RunStats is what a pipeline function reports back on completion.
// BatchSize is the raw fetch count before filtering; zero falls back to
// processed plus failed.
type RunStats struct {
	ItemsProcessed    int
	ItemsFailed       int
	DuplicatesRemoved int
	BatchSize         int
}

// PipelineFunc is the unit of work one run executes. It must honor ctx
// cancellation; returned errors mark the run failed.
type PipelineFunc func(ctx context.Context) (RunStats, error)

// Supervisor state machine. Terminal run outcomes live on the persisted
// PipelineRun; the in-memory state returns to idle once completion lands.
const (
	stateIdle int32 = iota
	stateStarting
	stateRunning
	stateCompleting
)

func stateName(s int32) string {
	switch s {
	case stateStarting:
		return "starting"
	case stateRunning, stateCompleting:
		return "running"
	default:
		return "idle"
	}
}

// Supervisor serializes runs of one pipeline. All transitions go through
// compare-and-swap on the state word so concurrent triggers cannot double
// start and a crashing run cannot wedge the pipeline.
type Supervisor struct {
	name     string
	disabled func() bool
	runs     store.RunStore
	clock    Clock
	log      *logger.Logger

	state          atomic.Int32
	totalProcessed atomic.Int64
	errorCount     atomic.Int64

	mu      sync.Mutex
	current *types.PipelineRun
	lastRun *types.PipelineRun
	cancel  context.CancelFunc
	done    chan *types.PipelineRun
}

// NewSupervisor builds a supervisor for one named pipeline. disabled is
// polled at trigger time so feature flags apply without restarts; nil means
// always enabled.
func NewSupervisor(name string, runs store.RunStore, clock Clock, disabled func() bool) *Supervisor {
	if clock == nil {
		clock = RealClock{}
	}
	return &Supervisor{
		name:     name,
		disabled: disabled,
		runs:     runs,
		clock:    clock,
		log:      logger.New("supervisor"),
	}
}

// Name returns the supervised pipeline's name.
func (s *Supervisor) Name() string { return s.name }

// Start triggers a run. Exactly one caller wins when triggers race; losers
// see already_running. The work itself happens on a background goroutine.
func (s *Supervisor) Start(ctx context.Context, fn PipelineFunc) StartResult {
	return s.start(ctx, fn, nil)
}

// StartAndWait triggers a run and blocks until it reaches a terminal state,
// returning the persisted run. Rejected triggers return a nil run.
func (s *Supervisor) StartAndWait(ctx context.Context, fn PipelineFunc) (StartResult, *types.PipelineRun) {
	done := make(chan *types.PipelineRun, 1)
	res := s.start(ctx, fn, done)
	if res != StartAccepted {
		return res, nil
	}
	return res, <-done
}

func (s *Supervisor) start(ctx context.Context, fn PipelineFunc, done chan *types.PipelineRun) StartResult {
	if s.disabled != nil && s.disabled() {
		return StartDisabled
	}
	if !s.state.CompareAndSwap(stateIdle, stateStarting) {
		return StartAlreadyRunning
	}

	run := &types.PipelineRun{
		PipelineName: s.name,
		RunID:        uuid.New().String(),
		StartedAt:    s.clock.Now(),
		Status:       types.RunRunning,
	}
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.current = run
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	// Persist the open run first so a crash leaves a row for boot recovery
	// to find. Persistence failure degrades bookkeeping, not execution.
	if err := s.runs.CreateRun(runCtx, run); err != nil {
		s.log.Error(s.name, run.RunID, "failed to record run start", map[string]interface{}{"error": err.Error()})
	}
	s.log.Info(s.name, run.RunID, "pipeline run started", nil)

	s.state.Store(stateRunning)
	go s.execute(runCtx, cancel, run, fn)
	return StartAccepted
}

func (s *Supervisor) execute(ctx context.Context, cancel context.CancelFunc, run *types.PipelineRun, fn PipelineFunc) {
	defer cancel()
	defer func() {
		// A panicking pipeline must still release the state machine or the
		// pipeline is blocked until restart.
		if r := recover(); r != nil {
			s.log.Error(s.name, run.RunID, "pipeline panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
			s.complete(run, types.RunFailed, RunStats{}, fmt.Errorf("%s: panic: %v", types.ErrKindInternal, r))
		}
	}()

	stats, err := fn(ctx)
	switch {
	case errors.Is(err, ErrRunSkipped):
		s.complete(run, types.RunSkipped, stats, nil)
	case ctx.Err() != nil:
		if err == nil {
			err = ctx.Err()
		}
		s.complete(run, types.RunFailed, stats, fmt.Errorf("%s: %w", types.ErrKindCancelled, err))
	case err != nil:
		s.complete(run, types.RunFailed, stats, err)
	default:
		s.complete(run, types.RunSucceeded, stats, nil)
	}
}

// complete lands a terminal outcome exactly once and returns the supervisor
// to idle. Extra calls, like the panic guard firing after a normal
// completion, are no-ops.
func (s *Supervisor) complete(run *types.PipelineRun, status types.RunStatus, stats RunStats, err error) {
	if !s.state.CompareAndSwap(stateRunning, stateCompleting) {
		return
	}

	ended := s.clock.Now()
	run.EndedAt = &ended
	run.Status = status
	run.ItemsProcessed = stats.ItemsProcessed
	run.ItemsFailed = stats.ItemsFailed
	run.DuplicatesRemoved = stats.DuplicatesRemoved
	batch := stats.BatchSize
	if batch == 0 {
		batch = stats.ItemsProcessed + stats.ItemsFailed
	}
	run.Metrics = types.RunMetrics{
		BatchSize:        batch,
		SuccessRate:      successRate(stats),
		ProcessingTimeMs: ended.Sub(run.StartedAt).Milliseconds(),
	}
	if err != nil {
		run.Error = err.Error()
		s.errorCount.Add(1)
	}
	s.totalProcessed.Add(int64(stats.ItemsProcessed))

	promPipelineRuns.WithLabelValues(s.name, string(status)).Inc()
	promRecordsProcessed.WithLabelValues(s.name).Add(float64(stats.ItemsProcessed))
	promDuplicates.WithLabelValues(s.name).Add(float64(stats.DuplicatesRemoved))

	// The run context may already be cancelled; completion still persists.
	if perr := s.runs.CompleteRun(context.Background(), run); perr != nil {
		s.log.Error(s.name, run.RunID, "failed to persist run completion", map[string]interface{}{"error": perr.Error()})
	}

	s.mu.Lock()
	s.lastRun = run
	s.current = nil
	s.cancel = nil
	done := s.done
	s.done = nil
	s.mu.Unlock()
	s.state.Store(stateIdle)
	if done != nil {
		done <- run
	}

	fields := map[string]interface{}{
		"status":          string(status),
		"items_processed": stats.ItemsProcessed,
		"items_failed":    stats.ItemsFailed,
		"duplicates":      stats.DuplicatesRemoved,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	s.log.InfoWithDuration(s.name, run.RunID, "pipeline run completed", float64(run.Metrics.ProcessingTimeMs), fields)
}

func successRate(stats RunStats) float64 {
	total := stats.ItemsProcessed + stats.ItemsFailed
	if total == 0 {
		return 1
	}
	return float64(stats.ItemsProcessed) / float64(total)
}

// Cancel asks the in-flight run to stop. Returns false when nothing is
// running. The run records failed with a cancelled error once the pipeline
// function observes the context.
func (s *Supervisor) Cancel() bool {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// SupervisorStatus is the externally visible snapshot of one pipeline.
type SupervisorStatus struct {
	Pipeline       string             `json:"pipeline"`
	State          string             `json:"state"`
	LastRun        *types.PipelineRun `json:"last_run,omitempty"`
	ItemsProcessed int64              `json:"items_processed"`
	ErrorCount     int64              `json:"error_count"`
}

// Status reports the pipeline state, its most recent terminal run, and
// cumulative counters.
func (s *Supervisor) Status() SupervisorStatus {
	s.mu.Lock()
	last := s.lastRun
	current := s.current
	s.mu.Unlock()

	shown := last
	state := s.state.Load()
	if state != stateIdle && current != nil {
		shown = current
	}
	var cp *types.PipelineRun
	if shown != nil {
		c := *shown
		cp = &c
	}
	return SupervisorStatus{
		Pipeline:       s.name,
		State:          stateName(state),
		LastRun:        cp,
		ItemsProcessed: s.totalProcessed.Load(),
		ErrorCount:     s.errorCount.Load(),
	}
}

// Registry holds the supervisor for every pipeline.
type Registry struct {
	mu   sync.RWMutex
	sups map[string]*Supervisor
}

// NewRegistry builds supervisors for all pipelines, gated by the feature
// flags that disable their families.
func NewRegistry(runs store.RunStore, cfg *Config, clock Clock) *Registry {
	academicOff := func() bool { return cfg.Flags.DisableAcademicScraping }
	sups := map[string]*Supervisor{
		PipelineNews:           NewSupervisor(PipelineNews, runs, clock, func() bool { return cfg.Flags.DisableRSSMonitoring }),
		PipelineAcademic:       NewSupervisor(PipelineAcademic, runs, clock, academicOff),
		PipelineAcademicArxiv:  NewSupervisor(PipelineAcademicArxiv, runs, clock, academicOff),
		PipelineAcademicPubmed: NewSupervisor(PipelineAcademicPubmed, runs, clock, academicOff),
		PipelineDiscovery:      NewSupervisor(PipelineDiscovery, runs, clock, func() bool { return cfg.Flags.DisableExternalSearch }),
		PipelineEnrichment:     NewSupervisor(PipelineEnrichment, runs, clock, func() bool { return cfg.Flags.DisableAIEnrichment }),
	}
	return &Registry{sups: sups}
}

// Get returns the supervisor for a pipeline name.
func (r *Registry) Get(name string) (*Supervisor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sups[name]
	return s, ok
}

// Statuses snapshots every pipeline, ordered by name for stable output.
func (r *Registry) Statuses() []SupervisorStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SupervisorStatus, 0, len(r.sups))
	for _, s := range r.sups {
		out = append(out, s.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pipeline < out[j].Pipeline })
	return out
}

// CancelAll stops every in-flight run, returning how many were cancelled.
func (r *Registry) CancelAll() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int
	for _, s := range r.sups {
		if s.Cancel() {
			n++
		}
	}
	return n
}
