// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"baobab/platform/collector/cache"
	"baobab/platform/collector/mediator"
)

// Prometheus metrics
var (
	promPipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_pipeline_runs_total",
			Help: "Completed pipeline runs by terminal status",
		},
		[]string{"pipeline", "status"},
	)
	promRecordsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_records_processed_total",
			Help: "Records processed by pipeline runs",
		},
		[]string{"pipeline"},
	)
	promDuplicates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_duplicates_total",
			Help: "Duplicates removed by pipeline runs",
		},
		[]string{"pipeline"},
	)
	promProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_provider_calls_total",
			Help: "Outbound provider dispatches by outcome",
		},
		[]string{"source", "outcome"},
	)
	promProviderCallSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collector_provider_call_seconds",
			Help:    "Outbound provider call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)
	promCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collector_cycle_duration_seconds",
			Help:    "End to end collection cycle duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)
	promBackfillJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_backfill_jobs_total",
			Help: "Backfill jobs by terminal status",
		},
		[]string{"status"},
	)

	// Mirrored from the cache and cost ledger counters before each scrape,
	// so restarts reset them the same way in-process counters reset.
	promCacheRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "collector_cache_requests_total",
			Help: "Cumulative cache lookups by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)
	promCacheEvictions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "collector_cache_evictions_total",
			Help: "Cumulative memory tier evictions",
		},
	)
	promDailyCost = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "collector_daily_cost_usd",
			Help: "Provider spend so far today in USD",
		},
	)
)

func init() {
	prometheus.MustRegister(promPipelineRuns)
	prometheus.MustRegister(promRecordsProcessed)
	prometheus.MustRegister(promDuplicates)
	prometheus.MustRegister(promProviderCalls)
	prometheus.MustRegister(promProviderCallSeconds)
	prometheus.MustRegister(promCycleDuration)
	prometheus.MustRegister(promBackfillJobs)
	prometheus.MustRegister(promCacheRequests)
	prometheus.MustRegister(promCacheEvictions)
	prometheus.MustRegister(promDailyCost)
}

// observeProviderCall is wired as the mediator outcome hook.
func observeProviderCall(source, outcome string, elapsed time.Duration) {
	promProviderCalls.WithLabelValues(source, outcome).Inc()
	promProviderCallSeconds.WithLabelValues(source).Observe(elapsed.Seconds())
}

// syncObservedMetrics refreshes the mirrored gauges from the cache and cost
// ledger snapshots. Called before serving a scrape.
func syncObservedMetrics(stats cache.Stats, costs mediator.CostSnapshot) {
	promCacheRequests.WithLabelValues("memory", "hit").Set(float64(stats.MemoryHits))
	promCacheRequests.WithLabelValues("durable", "hit").Set(float64(stats.DurableHits))
	promCacheRequests.WithLabelValues("any", "negative").Set(float64(stats.NegativeHits))
	promCacheRequests.WithLabelValues("any", "miss").Set(float64(stats.Misses))
	promCacheEvictions.Set(float64(stats.Evictions))
	promDailyCost.Set(costs.SpentUSD)
}
