// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baobab/platform/shared/types"
)

func waitForIdle(t *testing.T, s *Supervisor) SupervisorStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := s.Status()
		if st.State == "idle" && st.LastRun != nil {
			return st
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("pipeline %s never returned to idle", s.Name())
	return SupervisorStatus{}
}

func TestSupervisorRunLifecycle(t *testing.T) {
	st := newFakeStore()
	sup := NewSupervisor(PipelineNews, st, fixedClock{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}, nil)

	res := sup.Start(context.Background(), func(ctx context.Context) (RunStats, error) {
		return RunStats{ItemsProcessed: 12, ItemsFailed: 3, DuplicatesRemoved: 2}, nil
	})
	require.Equal(t, StartAccepted, res)

	status := waitForIdle(t, sup)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, types.RunSucceeded, status.LastRun.Status)
	assert.Equal(t, 12, status.LastRun.ItemsProcessed)
	assert.Equal(t, 3, status.LastRun.ItemsFailed)
	assert.Equal(t, 2, status.LastRun.DuplicatesRemoved)
	assert.Equal(t, 15, status.LastRun.Metrics.BatchSize)
	assert.InDelta(t, 0.8, status.LastRun.Metrics.SuccessRate, 1e-9)
	assert.Equal(t, int64(12), status.ItemsProcessed)
	assert.Equal(t, int64(0), status.ErrorCount)

	persisted, err := st.LastCompletedRun(context.Background(), PipelineNews)
	require.NoError(t, err)
	assert.Equal(t, types.RunSucceeded, persisted.Status)
	require.NotNil(t, persisted.EndedAt)
}

func TestSupervisorSingleRunInvariant(t *testing.T) {
	st := newFakeStore()
	sup := NewSupervisor(PipelineNews, st, nil, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	res := sup.Start(context.Background(), func(ctx context.Context) (RunStats, error) {
		close(started)
		<-release
		return RunStats{ItemsProcessed: 1}, nil
	})
	require.Equal(t, StartAccepted, res)
	<-started

	assert.Equal(t, StartAlreadyRunning, sup.Start(context.Background(), func(ctx context.Context) (RunStats, error) {
		return RunStats{}, nil
	}))
	assert.Equal(t, "running", sup.Status().State)

	close(release)
	status := waitForIdle(t, sup)
	assert.Equal(t, types.RunSucceeded, status.LastRun.Status)

	// Once idle the pipeline accepts triggers again.
	res = sup.Start(context.Background(), func(ctx context.Context) (RunStats, error) {
		return RunStats{}, nil
	})
	assert.Equal(t, StartAccepted, res)
	waitForIdle(t, sup)
}

func TestSupervisorDisabledGate(t *testing.T) {
	st := newFakeStore()
	off := true
	sup := NewSupervisor(PipelineEnrichment, st, nil, func() bool { return off })

	res := sup.Start(context.Background(), func(ctx context.Context) (RunStats, error) {
		t.Fatal("disabled pipeline must not run")
		return RunStats{}, nil
	})
	assert.Equal(t, StartDisabled, res)

	// The gate is polled per trigger, so flipping the flag takes effect
	// without rebuilding the supervisor.
	off = false
	res = sup.Start(context.Background(), func(ctx context.Context) (RunStats, error) {
		return RunStats{}, nil
	})
	assert.Equal(t, StartAccepted, res)
	waitForIdle(t, sup)
}

func TestSupervisorPanicStillCompletes(t *testing.T) {
	st := newFakeStore()
	sup := NewSupervisor(PipelineDiscovery, st, nil, nil)

	res := sup.Start(context.Background(), func(ctx context.Context) (RunStats, error) {
		panic("boom")
	})
	require.Equal(t, StartAccepted, res)

	status := waitForIdle(t, sup)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, types.RunFailed, status.LastRun.Status)
	assert.Contains(t, status.LastRun.Error, "panic")
	assert.Contains(t, status.LastRun.Error, string(types.ErrKindInternal))
	assert.Equal(t, int64(1), status.ErrorCount)

	// The crash must not wedge the state machine.
	res = sup.Start(context.Background(), func(ctx context.Context) (RunStats, error) {
		return RunStats{ItemsProcessed: 1}, nil
	})
	assert.Equal(t, StartAccepted, res)
	status = waitForIdle(t, sup)
	assert.Equal(t, types.RunSucceeded, status.LastRun.Status)
}

func TestSupervisorSkippedRun(t *testing.T) {
	st := newFakeStore()
	sup := NewSupervisor(PipelineNews, st, nil, nil)

	res := sup.Start(context.Background(), func(ctx context.Context) (RunStats, error) {
		return RunStats{}, fmt.Errorf("window empty: %w", ErrRunSkipped)
	})
	require.Equal(t, StartAccepted, res)

	status := waitForIdle(t, sup)
	assert.Equal(t, types.RunSkipped, status.LastRun.Status)
	assert.Empty(t, status.LastRun.Error)
	assert.Equal(t, int64(0), status.ErrorCount)
}

func TestSupervisorCancel(t *testing.T) {
	st := newFakeStore()
	sup := NewSupervisor(PipelineAcademic, st, nil, nil)

	started := make(chan struct{})
	res := sup.Start(context.Background(), func(ctx context.Context) (RunStats, error) {
		close(started)
		<-ctx.Done()
		return RunStats{ItemsProcessed: 4}, ctx.Err()
	})
	require.Equal(t, StartAccepted, res)
	<-started

	require.True(t, sup.Cancel())
	status := waitForIdle(t, sup)
	assert.Equal(t, types.RunFailed, status.LastRun.Status)
	assert.Contains(t, status.LastRun.Error, string(types.ErrKindCancelled))
	assert.Equal(t, 4, status.LastRun.ItemsProcessed, "partial progress is still recorded")

	assert.False(t, sup.Cancel(), "nothing left to cancel")
}

func TestSupervisorFailureRecordsError(t *testing.T) {
	st := newFakeStore()
	sup := NewSupervisor(PipelineNews, st, nil, nil)

	sup.Start(context.Background(), func(ctx context.Context) (RunStats, error) {
		return RunStats{ItemsProcessed: 2, ItemsFailed: 8}, errors.New("upstream 500")
	})
	status := waitForIdle(t, sup)
	assert.Equal(t, types.RunFailed, status.LastRun.Status)
	assert.Equal(t, "upstream 500", status.LastRun.Error)
	assert.InDelta(t, 0.2, status.LastRun.Metrics.SuccessRate, 1e-9)
}

func TestRegistryGatesAndStatuses(t *testing.T) {
	st := newFakeStore()
	cfg := DefaultConfig()
	cfg.Flags.DisableAIEnrichment = true
	reg := NewRegistry(st, cfg, RealClock{})

	enrich, ok := reg.Get(PipelineEnrichment)
	require.True(t, ok)
	assert.Equal(t, StartDisabled, enrich.Start(context.Background(), func(ctx context.Context) (RunStats, error) {
		return RunStats{}, nil
	}))

	news, ok := reg.Get(PipelineNews)
	require.True(t, ok)
	assert.Equal(t, StartAccepted, news.Start(context.Background(), func(ctx context.Context) (RunStats, error) {
		return RunStats{}, nil
	}))
	waitForIdle(t, news)

	_, ok = reg.Get("bogus")
	assert.False(t, ok)

	statuses := reg.Statuses()
	require.Len(t, statuses, len(PipelineNames))
	for i := 1; i < len(statuses); i++ {
		assert.Less(t, statuses[i-1].Pipeline, statuses[i].Pipeline)
	}
}
