// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"baobab/platform/shared/logger"
	"baobab/platform/shared/types"
)

// Scheduler drives the orchestrator on a fixed cadence. A tick that lands
// while a cycle is still in flight is skipped, never queued, so a slow cycle
// cannot build a backlog of stacked runs. Manual triggers bypass the cadence
// but still pass through the orchestrator's single-run guard.
type Scheduler struct {
	orch  *Orchestrator
	clock Clock
	log   *logger.Logger

	mu           sync.Mutex
	interval     time.Duration
	enabled      bool
	params       CycleParams
	cancel       context.CancelFunc
	nextTickAt   time.Time
	lastTickAt   time.Time
	ticksRun     int
	ticksSkipped int
	lastCycle    *CollectionCycleResult

	// reload wakes the loop so an interval change takes effect before the
	// old timer would have fired.
	reload chan struct{}

	wg sync.WaitGroup
}

// ScheduleUpdate is a partial change to the cadence. Nil fields keep their
// current value; non-nil slices replace the current ones wholesale.
type ScheduleUpdate struct {
	Interval        *time.Duration
	Enabled         *bool
	ReportTypes     []types.ReportType
	Provider        *string
	GeographicFocus []string
	DisableSnowball *bool
}

// SchedulerStatus is the control-surface snapshot of the cadence.
type SchedulerStatus struct {
	Running         bool                   `json:"running"`
	Enabled         bool                   `json:"enabled"`
	Interval        string                 `json:"interval"`
	CycleInFlight   bool                   `json:"cycle_in_flight"`
	NextTickAt      *time.Time             `json:"next_tick_at,omitempty"`
	LastTickAt      *time.Time             `json:"last_tick_at,omitempty"`
	TicksRun        int                    `json:"ticks_run"`
	TicksSkipped    int                    `json:"ticks_skipped"`
	ReportTypes     []types.ReportType     `json:"report_types,omitempty"`
	Provider        string                 `json:"provider,omitempty"`
	GeographicFocus []string               `json:"geographic_focus,omitempty"`
	DisableSnowball bool                   `json:"disable_snowball,omitempty"`
	LastCycle       *CollectionCycleResult `json:"last_cycle,omitempty"`
}

// NewScheduler seeds the cadence and default cycle parameters from
// configuration. The loop does not run until Start.
func NewScheduler(orch *Orchestrator, cfg *Config, clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	interval := cfg.ScheduleInterval
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Scheduler{
		orch:     orch,
		clock:    clock,
		log:      logger.New("scheduler"),
		interval: interval,
		enabled:  cfg.ScheduleEnabled,
		params: CycleParams{
			Provider:        cfg.IntelProvider,
			GeographicFocus: cfg.GeographicFocus,
		},
		reload: make(chan struct{}, 1),
	}
}

// Start launches the cadence loop. Returns false when already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(ctx)
	s.log.Info("scheduler", "", "scheduler started", map[string]interface{}{
		"interval": s.interval.String(),
		"enabled":  s.enabled,
	})
	return true
}

// Stop halts the cadence loop and waits for it to exit. A cycle in flight is
// cancelled through its context rather than abandoned. Returns false when
// the loop was not running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.nextTickAt = time.Time{}
	s.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	s.wg.Wait()
	s.log.Info("scheduler", "", "scheduler stopped", nil)
	return true
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		d := s.interval
		s.nextTickAt = s.clock.Now().Add(d)
		s.mu.Unlock()

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.reload:
			timer.Stop()
		case <-timer.C:
			s.tick(ctx)
		}
	}
}

// tick runs one scheduled cycle unless the schedule is disabled or a cycle
// is already in flight, in which case the tick is dropped.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	enabled := s.enabled
	params := s.params
	s.lastTickAt = s.clock.Now()
	s.mu.Unlock()

	switch {
	case !enabled:
		s.skipTick("schedule disabled")
	case s.orch.Running():
		s.skipTick("previous cycle still running")
	default:
		res := s.orch.RunCycle(ctx, params)
		s.mu.Lock()
		// An empty phase list means the single-run guard rejected the
		// cycle; a trigger won the race between our check and the run.
		if len(res.Phases) > 0 {
			s.ticksRun++
			s.lastCycle = res
		} else {
			s.ticksSkipped++
		}
		s.mu.Unlock()
	}
}

func (s *Scheduler) skipTick(reason string) {
	s.mu.Lock()
	s.ticksSkipped++
	s.mu.Unlock()
	s.log.Info("scheduler", "", "tick skipped", map[string]interface{}{"reason": reason})
}

// Trigger runs a cycle immediately, outside the cadence. The orchestrator's
// single-run guard still rejects it when a cycle is in flight; the rejection
// is reported in the returned result and does not disturb the cadence state.
func (s *Scheduler) Trigger(ctx context.Context, params CycleParams) *CollectionCycleResult {
	res := s.orch.RunCycle(ctx, params)
	if len(res.Phases) > 0 {
		s.mu.Lock()
		s.lastCycle = res
		s.mu.Unlock()
	}
	return res
}

// UpdateSchedule applies a partial cadence change. An interval change
// re-arms the loop immediately instead of waiting out the old timer.
func (s *Scheduler) UpdateSchedule(upd ScheduleUpdate) error {
	if upd.Interval != nil && *upd.Interval <= 0 {
		return fmt.Errorf("%s: schedule interval must be positive, got %s",
			types.ErrKindValidation, *upd.Interval)
	}

	s.mu.Lock()
	rearm := false
	if upd.Interval != nil && *upd.Interval != s.interval {
		s.interval = *upd.Interval
		rearm = s.cancel != nil
	}
	if upd.Enabled != nil {
		s.enabled = *upd.Enabled
	}
	if upd.ReportTypes != nil {
		s.params.ReportTypes = upd.ReportTypes
	}
	if upd.Provider != nil {
		s.params.Provider = *upd.Provider
	}
	if upd.GeographicFocus != nil {
		s.params.GeographicFocus = upd.GeographicFocus
	}
	if upd.DisableSnowball != nil {
		s.params.DisableSnowball = *upd.DisableSnowball
	}
	s.mu.Unlock()

	if rearm {
		select {
		case s.reload <- struct{}{}:
		default:
		}
	}
	return nil
}

// Status reports the cadence state without blocking the loop.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SchedulerStatus{
		Running:         s.cancel != nil,
		Enabled:         s.enabled,
		Interval:        s.interval.String(),
		CycleInFlight:   s.orch.Running(),
		TicksRun:        s.ticksRun,
		TicksSkipped:    s.ticksSkipped,
		ReportTypes:     s.params.ReportTypes,
		Provider:        s.params.Provider,
		GeographicFocus: s.params.GeographicFocus,
		DisableSnowball: s.params.DisableSnowball,
		LastCycle:       s.lastCycle,
	}
	if !s.nextTickAt.IsZero() {
		at := s.nextTickAt
		st.NextTickAt = &at
	}
	if !s.lastTickAt.IsZero() {
		at := s.lastTickAt
		st.LastTickAt = &at
	}
	return st
}
