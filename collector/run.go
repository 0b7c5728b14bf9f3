// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/cors"

	"baobab/platform/collector/cache"
	"baobab/platform/collector/intel"
	"baobab/platform/collector/mediator"
	"baobab/platform/collector/sources"
	"baobab/platform/collector/store"
)

// Run is the exported entry point for the collector service.
//
// It wires configuration, storage, the two-tier cache, the provider
// mediator, the source adapters, and the pipeline machinery, then serves
// the control surface until SIGINT or SIGTERM.
//
// Environment variables used:
//   - PORT: HTTP server port (default: 8090)
//   - DATABASE_URL: PostgreSQL connection string (required)
//   - REDIS_URL: durable cache tier (optional; memory-only without it)
//   - COLLECTOR_API_SECRET: bearer auth for mutating routes (optional)
//   - PERPLEXITY_API_KEY, OPENAI_API_KEY, BEDROCK_REGION: intelligence
//     providers; with none set the mock provider takes over
//   - SEARCH_API_KEY: web search and scholar adapters (optional)
//   - NEWS_FEEDS: comma-separated RSS/Atom URLs (optional)
//   - COLLECTOR_CONFIG_FILE: YAML overlay over defaults and environment
func Run() {
	log.Println("Starting Baobab Collector...")

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("[Collector] configuration failed: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatalf("[Collector] DATABASE_URL is required")
	}

	ctx := context.Background()
	clock := RealClock{}
	mock := cfg.Flags.EnableMockData
	if mock {
		log.Println("[Collector] Mock mode enabled - adapters serve canned data")
	}

	// Two-tier cache. A missing redis degrades to memory-only inside New.
	tc, err := cache.New(cache.Options{
		RedisURL:      cfg.RedisURL,
		MemoryBytes:   cfg.MemoryCacheBytes,
		CompressAbove: cfg.CompressAbove,
		PositiveTTL:   positiveTTLs(cfg),
	})
	if err != nil {
		log.Fatalf("[Collector] cache init failed: %v", err)
	}

	// Provider mediator: every outbound call shares this budget.
	med, err := mediator.New(mediator.Options{
		Cache:             tc,
		Limits:            mediatorLimits(cfg),
		DailyCostLimitUSD: cfg.Flags.DailyCostLimitUSD,
		RedisURL:          cfg.RedisURL,
		MinuteLimit:       cfg.Flags.MaxAICallsPerMinute,
		MinuteLimited:     []string{SrcIntel, SrcEmbeddings},
		OnOutcome:         observeProviderCall,
	})
	if err != nil {
		log.Fatalf("[Collector] mediator init failed: %v", err)
	}

	// Persistence gateway.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[Collector] database open failed: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("[Collector] database unreachable: %v", err)
	}
	pg := store.NewPostgres(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		log.Fatalf("[Collector] schema migration failed: %v", err)
	}

	// Vector index. Without an embedder (or the pgvector extension) the
	// deduplicator falls back to fingerprint-only matching.
	var index store.VectorIndex
	var embedder store.Embedder
	switch {
	case mock:
		embedder = NewMockEmbedder(cfg.EmbeddingDims)
	case cfg.OpenAIAPIKey != "":
		embedder = NewOpenAIEmbedder(med, nil, cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDims)
	default:
		log.Println("[Collector] OPENAI_API_KEY not set; vector similarity disabled")
	}
	if embedder != nil {
		vec := store.NewPGVector(db, embedder)
		if err := vec.EnsureSchema(ctx); err != nil {
			log.Printf("[Collector] vector index unavailable, similarity disabled: %v", err)
		} else {
			index = vec
		}
	}

	// Intelligence providers and source adapters. Sources without their
	// prerequisites stay nil and their passes skip.
	reg := intel.NewRegistry(intel.RegistryConfig{
		PerplexityKey: cfg.PerplexityAPIKey,
		OpenAIKey:     cfg.OpenAIAPIKey,
		BedrockRegion: cfg.BedrockRegion,
		BedrockModel:  cfg.BedrockModel,
		Primary:       cfg.IntelProvider,
		MockMode:      mock,
	})
	intelSrc := sources.NewIntelligenceSource(sources.IntelligenceOptions{
		Registry: reg,
		Mediator: med,
		Provider: cfg.IntelProvider,
		MockMode: mock,
	})

	arxivTh := cfg.ThresholdsFor(SrcArxiv)
	arxiv := sources.NewArxivSource(sources.ArxivOptions{
		Mediator:            med,
		MinAfricanRelevance: arxivTh.AfricanRelevance,
		MinAIRelevance:      arxivTh.AIRelevance,
		MockMode:            mock,
	})
	pubmedTh := cfg.ThresholdsFor(SrcPubmed)
	pubmed := sources.NewPubmedSource(sources.PubmedOptions{
		Mediator:            med,
		APIKey:              cfg.PubmedAPIKey,
		MinAfricanRelevance: pubmedTh.AfricanRelevance,
		MinAIRelevance:      pubmedTh.AIRelevance,
		MockMode:            mock,
	})

	var newsSrc, webSearch, scholar sources.Source
	if len(cfg.NewsFeeds) > 0 || mock {
		newsTh := cfg.ThresholdsFor(SrcNewsRSS)
		newsSrc = sources.NewNewsSource(sources.NewsOptions{
			Mediator:            med,
			Feeds:               cfg.NewsFeeds,
			Window:              time.Duration(cfg.NewsWindowHrs) * time.Hour,
			MinAfricanRelevance: newsTh.AfricanRelevance,
			MinAIRelevance:      newsTh.AIRelevance,
			MockMode:            mock,
		})
	} else {
		log.Println("[Collector] NEWS_FEEDS not set; news pipeline has no source")
	}
	if cfg.SearchAPIKey != "" || mock {
		webSearch = sources.NewWebSearchSource(sources.WebSearchOptions{
			Mediator: med,
			BaseURL:  cfg.SearchAPIURL,
			APIKey:   cfg.SearchAPIKey,
			MockMode: mock,
		})
		scholar = sources.NewScholarSource(sources.ScholarOptions{
			Mediator: med,
			BaseURL:  cfg.ScholarAPIURL,
			APIKey:   cfg.SearchAPIKey,
			MockMode: mock,
		})
	} else {
		log.Println("[Collector] SEARCH_API_KEY not set; discovery and scholar passes disabled")
	}

	// Pipeline machinery.
	dedup := NewDeduplicator(pg, pg, index, cfg, clock)
	sups := NewRegistry(pg, cfg, clock)

	bfDeps := BackfillDeps{
		Config:  cfg,
		Store:   pg,
		Intel:   intelSrc,
		Web:     webSearch,
		Scholar: scholar,
		Costs:   med,
		Clock:   clock,
	}
	bf := NewBackfill(bfDeps)

	orch := NewOrchestrator(OrchestratorDeps{
		Config:      cfg,
		Store:       pg,
		Index:       index,
		Dedup:       dedup,
		Supervisors: sups,
		Backfill:    bf,
		Costs:       med,
		Intel:       intelSrc,
		Arxiv:       arxiv,
		Pubmed:      pubmed,
		News:        newsSrc,
		WebSearch:   webSearch,
		Clock:       clock,
	})
	sched := NewScheduler(orch, cfg, clock)
	community := NewCommunity(pg, cfg, clock)

	// Runs orphaned by a previous crash would block their pipelines forever.
	if n, err := pg.RecoverStaleRuns(ctx, clock.Now().Add(-cfg.StaleRunAfter)); err != nil {
		log.Printf("[Collector] stale run recovery failed: %v", err)
	} else if n > 0 {
		log.Printf("[Collector] recovered %d stale pipeline runs", n)
	}

	srcs := map[string]sources.Source{
		SrcArxiv:  arxiv,
		SrcPubmed: pubmed,
		SrcIntel:  intelSrc,
	}
	if newsSrc != nil {
		srcs[SrcNewsRSS] = newsSrc
	}
	if webSearch != nil {
		srcs[SrcWebSearch] = webSearch
	}
	if scholar != nil {
		srcs[SrcScholar] = scholar
	}

	srv := NewServer(ServerDeps{
		Config:      cfg,
		Store:       pg,
		Cache:       tc,
		Mediator:    med,
		Supervisors: sups,
		Orch:        orch,
		Scheduler:   sched,
		Backfill:    bf,
		Community:   community,
		Sources:     srcs,
		Clock:       clock,
	})

	// CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: c.Handler(srv.Router()),
	}

	if cfg.ScheduleEnabled {
		sched.Start()
		log.Printf("[Collector] scheduler running every %s", cfg.ScheduleInterval)
	} else {
		log.Println("[Collector] scheduler disabled; cycles run on manual trigger only")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Baobab Collector listening on port %s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Collector] HTTP server failed: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down...")

	sched.Stop()
	if n := sups.CancelAll(); n > 0 {
		log.Printf("[Collector] cancelled %d in-flight pipeline runs", n)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Collector] HTTP shutdown: %v", err)
	}

	if err := med.Close(); err != nil {
		log.Printf("[Collector] mediator close: %v", err)
	}
	if err := tc.Close(); err != nil {
		log.Printf("[Collector] cache close: %v", err)
	}
	if err := db.Close(); err != nil {
		log.Printf("[Collector] database close: %v", err)
	}
}

// positiveTTLs projects the per-source positive cache TTLs out of the
// mediator limits so the cache and the budget read from one table.
func positiveTTLs(cfg *Config) map[string]time.Duration {
	out := make(map[string]time.Duration, len(cfg.SourceLimits))
	for name, l := range cfg.SourceLimits {
		if l.PositiveTTL > 0 {
			out[name] = l.PositiveTTL
		}
	}
	return out
}

func mediatorLimits(cfg *Config) map[string]mediator.Limit {
	out := make(map[string]mediator.Limit, len(cfg.SourceLimits))
	for name, l := range cfg.SourceLimits {
		out[name] = mediator.Limit{
			MaxConcurrent:    l.MaxConcurrent,
			RatePerSecond:    l.RatePerSecond,
			Burst:            l.Burst,
			MaxAttempts:      l.MaxAttempts,
			CallTimeout:      l.CallTimeout,
			EstimatedCostUSD: l.EstimatedCost,
		}
	}
	return out
}
