// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"baobab/platform/shared/types"
)

// FeatureFlags gate whole pipeline families and global cost/batch behavior.
type FeatureFlags struct {
	DisableAIEnrichment     bool    `yaml:"disable_ai_enrichment"`
	DisableExternalSearch   bool    `yaml:"disable_external_search"`
	DisableRSSMonitoring    bool    `yaml:"disable_rss_monitoring"`
	DisableAcademicScraping bool    `yaml:"disable_academic_scraping"`
	EnableMockData          bool    `yaml:"enable_mock_data"`
	MaxETLBatchSize         int     `yaml:"max_etl_batch_size"`
	MaxAICallsPerMinute     int     `yaml:"max_ai_calls_per_minute"`
	DailyCostLimitUSD       float64 `yaml:"daily_cost_limit_usd"`
	Debug                   bool    `yaml:"debug"`
}

// SourceThresholds are the admission thresholds for one upstream source.
type SourceThresholds struct {
	AfricanRelevance float64 `yaml:"african_relevance"`
	AIRelevance      float64 `yaml:"ai_relevance"`
}

// DedupThresholds control the fuzzy-title layer of the deduplicator.
type DedupThresholds struct {
	// SimilarityHigh: top-1 vector similarity at or above this is the same
	// record. SimilarityLow..SimilarityHigh is a candidate merge.
	SimilarityHigh float64 `yaml:"similarity_high"`
	SimilarityLow  float64 `yaml:"similarity_low"`
}

// BackfillConfig tunes the enrichment engine.
type BackfillConfig struct {
	// ValidateConfidence: results at or above are written, between
	// ReviewConfidence and this are flagged for review, below ReviewConfidence
	// are discarded.
	ValidateConfidence float64 `yaml:"validate_confidence"`
	ReviewConfidence   float64 `yaml:"review_confidence"`
	MaxJobsPerCycle    int     `yaml:"max_jobs_per_cycle"`
	StaleAfter         time.Duration `yaml:"stale_after"`
}

// SnowballConfig bounds citation snowball sampling.
type SnowballConfig struct {
	MaxDepth     int     `yaml:"max_depth"`
	MaxCitations int     `yaml:"max_citations"`
	MinCitationConfidence float64 `yaml:"min_citation_confidence"`
}

// SourceLimit is the mediator budget for one provider: concurrency cap,
// token bucket, retry bound, and per-call cost estimate.
type SourceLimit struct {
	MaxConcurrent  int           `yaml:"max_concurrent"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
	Burst          int           `yaml:"burst"`
	MaxAttempts    int           `yaml:"max_attempts"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	EstimatedCost  float64       `yaml:"estimated_cost_usd"`
	PositiveTTL    time.Duration `yaml:"positive_ttl"`
}

// AdmissionConfig gates candidate innovations out of target extraction.
type AdmissionConfig struct {
	MinCompleteness float64 `yaml:"min_completeness"`
	MinConfidence   float64 `yaml:"min_confidence"`
}

// Config is the process-wide configuration registry. Environment variables
// populate it first; an optional YAML overlay (COLLECTOR_CONFIG_FILE) wins
// over both defaults and environment.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
	APISecret   string `yaml:"api_secret"`

	Flags FeatureFlags `yaml:"flags"`

	// Thresholds are keyed by source name; missing sources fall back to
	// the "default" entry.
	Thresholds map[string]SourceThresholds `yaml:"thresholds"`

	Dedup     DedupThresholds `yaml:"dedup"`
	Admission AdmissionConfig `yaml:"admission"`
	Backfill  BackfillConfig  `yaml:"backfill"`
	Snowball  SnowballConfig  `yaml:"snowball"`

	// SourceLimits are keyed by mediator source name.
	SourceLimits map[string]SourceLimit `yaml:"source_limits"`

	// SourceReliability ranks upstreams for merge conflict resolution.
	SourceReliability map[string]float64 `yaml:"source_reliability"`

	// MemoryCacheBytes is the in-memory tier byte budget.
	MemoryCacheBytes int64 `yaml:"memory_cache_bytes"`
	// CompressAbove: durable-tier payloads at or above this many bytes are
	// lz4-compressed.
	CompressAbove int `yaml:"compress_above"`

	ScheduleInterval time.Duration `yaml:"schedule_interval"`
	ScheduleEnabled  bool          `yaml:"schedule_enabled"`

	IntelProvider   string   `yaml:"intel_provider"`
	GeographicFocus []string `yaml:"geographic_focus"`

	// Intelligence and embedding credentials. A variant only registers when
	// its key is present; with none at all the mock provider takes over.
	PerplexityAPIKey string `yaml:"perplexity_api_key"`
	OpenAIAPIKey     string `yaml:"openai_api_key"`
	BedrockRegion    string `yaml:"bedrock_region"`
	BedrockModel     string `yaml:"bedrock_model"`

	// EmbeddingModel names the OpenAI embeddings model backing the vector
	// index; EmbeddingDims must match the model's output width.
	EmbeddingModel string `yaml:"embedding_model"`
	EmbeddingDims  int    `yaml:"embedding_dims"`

	// Search endpoints. Both speak the same JSON contract; the scholar
	// endpoint adds bibliographic fields. Empty values fall back to the
	// adapters' public defaults.
	SearchAPIURL  string `yaml:"search_api_url"`
	SearchAPIKey  string `yaml:"search_api_key"`
	ScholarAPIURL string `yaml:"scholar_api_url"`
	PubmedAPIKey  string `yaml:"pubmed_api_key"`

	NewsFeeds     []string `yaml:"news_feeds"`
	NewsWindowHrs int      `yaml:"news_window_hours"`

	CommunityPromoteVotes int `yaml:"community_promote_votes"`

	StaleRunAfter time.Duration `yaml:"stale_run_after"`
}

// Mediator source names. Cache keys and rate-limit buckets share them.
const (
	SrcArxiv      = "arxiv"
	SrcPubmed     = "pubmed"
	SrcNewsRSS    = "news_rss"
	SrcWebSearch  = "web_search"
	SrcScholar    = "scholar"
	SrcIntel      = "llm_intelligence"
	SrcEmbeddings = "embeddings"
)

// DefaultConfig returns a fully-populated configuration. Every tunable has a
// production-safe default so the service starts with nothing but a database
// and redis URL.
func DefaultConfig() *Config {
	return &Config{
		Port:     "8090",
		RedisURL: "redis://localhost:6379/0",
		Flags: FeatureFlags{
			MaxETLBatchSize:     50,
			MaxAICallsPerMinute: 10,
			DailyCostLimitUSD:   10.0,
		},
		Thresholds: map[string]SourceThresholds{
			"default":  {AfricanRelevance: 0.2, AIRelevance: 0.3},
			SrcArxiv:   {AfricanRelevance: 0.2, AIRelevance: 0.3},
			SrcPubmed:  {AfricanRelevance: 0.2, AIRelevance: 0.3},
			SrcNewsRSS: {AfricanRelevance: 0.15, AIRelevance: 0.2},
		},
		Dedup:     DedupThresholds{SimilarityHigh: 0.92, SimilarityLow: 0.80},
		Admission: AdmissionConfig{MinCompleteness: 0.3, MinConfidence: 0.5},
		Backfill: BackfillConfig{
			ValidateConfidence: 0.6,
			ReviewConfidence:   0.4,
			MaxJobsPerCycle:    20,
			StaleAfter:         7 * 24 * time.Hour,
		},
		Snowball: SnowballConfig{MaxDepth: 2, MaxCitations: 15, MinCitationConfidence: 0.5},
		SourceLimits: map[string]SourceLimit{
			SrcArxiv:      {MaxConcurrent: 2, RatePerSecond: 1, Burst: 1, MaxAttempts: 3, CallTimeout: 30 * time.Second, EstimatedCost: 0, PositiveTTL: 24 * time.Hour},
			SrcPubmed:     {MaxConcurrent: 3, RatePerSecond: 3, Burst: 3, MaxAttempts: 3, CallTimeout: 30 * time.Second, EstimatedCost: 0, PositiveTTL: 24 * time.Hour},
			SrcNewsRSS:    {MaxConcurrent: 8, RatePerSecond: 5, Burst: 5, MaxAttempts: 2, CallTimeout: 20 * time.Second, EstimatedCost: 0, PositiveTTL: time.Hour},
			SrcWebSearch:  {MaxConcurrent: 2, RatePerSecond: 1, Burst: 2, MaxAttempts: 3, CallTimeout: 20 * time.Second, EstimatedCost: 0.01, PositiveTTL: 6 * time.Hour},
			SrcScholar:    {MaxConcurrent: 4, RatePerSecond: 2, Burst: 2, MaxAttempts: 3, CallTimeout: 20 * time.Second, EstimatedCost: 0.005, PositiveTTL: 12 * time.Hour},
			SrcIntel:      {MaxConcurrent: 2, RatePerSecond: 0.5, Burst: 1, MaxAttempts: 3, CallTimeout: 120 * time.Second, EstimatedCost: 0.10, PositiveTTL: 24 * time.Hour},
			SrcEmbeddings: {MaxConcurrent: 4, RatePerSecond: 5, Burst: 5, MaxAttempts: 3, CallTimeout: 30 * time.Second, EstimatedCost: 0.0001, PositiveTTL: 24 * time.Hour},
		},
		SourceReliability: map[string]float64{
			string(types.SourcePubmed):           0.9,
			string(types.SourceArxiv):            0.85,
			string(types.SourceSystematicReview): 0.8,
			string(types.SourceScholar):          0.7,
			"news":                               0.5,
			"community":                          0.45,
			"web":                                0.4,
			"llm":                                0.3,
		},
		MemoryCacheBytes:      64 << 20,
		CompressAbove:         4096,
		ScheduleInterval:      6 * time.Hour,
		ScheduleEnabled:       true,
		IntelProvider:         "perplexity",
		GeographicFocus:       []string{"africa"},
		EmbeddingModel:        "text-embedding-3-small",
		EmbeddingDims:         1536,
		NewsWindowHrs:         24,
		CommunityPromoteVotes: 3,
		StaleRunAfter:         2 * time.Hour,
	}
}

// LoadConfig builds the runtime configuration: defaults, then environment,
// then the optional YAML overlay.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.APISecret = getEnv("COLLECTOR_API_SECRET", cfg.APISecret)
	cfg.IntelProvider = getEnv("INTEL_PROVIDER", cfg.IntelProvider)
	cfg.PerplexityAPIKey = getEnv("PERPLEXITY_API_KEY", cfg.PerplexityAPIKey)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.BedrockRegion = getEnv("BEDROCK_REGION", cfg.BedrockRegion)
	cfg.BedrockModel = getEnv("BEDROCK_MODEL", cfg.BedrockModel)
	cfg.SearchAPIURL = getEnv("SEARCH_API_URL", cfg.SearchAPIURL)
	cfg.SearchAPIKey = getEnv("SEARCH_API_KEY", cfg.SearchAPIKey)
	cfg.ScholarAPIURL = getEnv("SCHOLAR_API_URL", cfg.ScholarAPIURL)
	cfg.PubmedAPIKey = getEnv("PUBMED_API_KEY", cfg.PubmedAPIKey)
	if feeds := os.Getenv("NEWS_FEEDS"); feeds != "" {
		cfg.NewsFeeds = splitList(feeds)
	}
	cfg.NewsWindowHrs = getEnvInt("NEWS_WINDOW_HOURS", cfg.NewsWindowHrs)

	cfg.Flags.DisableAIEnrichment = getEnvBool("DISABLE_AI_ENRICHMENT", cfg.Flags.DisableAIEnrichment)
	cfg.Flags.DisableExternalSearch = getEnvBool("DISABLE_EXTERNAL_SEARCH", cfg.Flags.DisableExternalSearch)
	cfg.Flags.DisableRSSMonitoring = getEnvBool("DISABLE_RSS_MONITORING", cfg.Flags.DisableRSSMonitoring)
	cfg.Flags.DisableAcademicScraping = getEnvBool("DISABLE_ACADEMIC_SCRAPING", cfg.Flags.DisableAcademicScraping)
	cfg.Flags.EnableMockData = getEnvBool("ENABLE_MOCK_DATA", cfg.Flags.EnableMockData)
	cfg.Flags.MaxETLBatchSize = getEnvInt("MAX_ETL_BATCH_SIZE", cfg.Flags.MaxETLBatchSize)
	cfg.Flags.MaxAICallsPerMinute = getEnvInt("MAX_AI_CALLS_PER_MINUTE", cfg.Flags.MaxAICallsPerMinute)
	cfg.Flags.DailyCostLimitUSD = getEnvFloat("DAILY_COST_LIMIT_USD", cfg.Flags.DailyCostLimitUSD)
	cfg.Flags.Debug = getEnvBool("DEBUG", cfg.Flags.Debug)

	if path := os.Getenv("COLLECTOR_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	return cfg, nil
}

// ThresholdsFor returns the admission thresholds for a source, falling back
// to the default entry.
func (c *Config) ThresholdsFor(source string) SourceThresholds {
	if t, ok := c.Thresholds[source]; ok {
		return t
	}
	return c.Thresholds["default"]
}

// LimitFor returns the mediator limits for a source. Unknown sources get a
// conservative budget rather than an open one.
func (c *Config) LimitFor(source string) SourceLimit {
	if l, ok := c.SourceLimits[source]; ok {
		return l
	}
	return SourceLimit{
		MaxConcurrent: 1,
		RatePerSecond: 0.5,
		Burst:         1,
		MaxAttempts:   2,
		CallTimeout:   30 * time.Second,
		PositiveTTL:   time.Hour,
	}
}

// ReliabilityFor ranks an upstream for merge conflict resolution.
func (c *Config) ReliabilityFor(source string) float64 {
	if r, ok := c.SourceReliability[source]; ok {
		return r
	}
	return 0.3
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}
