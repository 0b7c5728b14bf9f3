// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package intel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"baobab/platform/collector/intel/bedrock"
	"baobab/platform/collector/intel/openai"
	"baobab/platform/collector/intel/perplexity"
)

// Registry maps provider names to instances. Providers register at startup
// based on which credentials are configured; synthesis picks the primary
// unless a call names a specific variant.
type Registry struct {
	providers map[string]Provider
	primary   string
	mu        sync.RWMutex
}

// RegistryConfig contains the credentials and defaults for every variant.
// A variant registers only when its credentials are present.
type RegistryConfig struct {
	PerplexityKey   string
	PerplexityModel string

	OpenAIKey   string
	OpenAIModel string

	BedrockRegion      string
	BedrockModel       string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// Primary names the preferred provider; falls back on availability
	// order when the named one did not register.
	Primary string

	// MockMode replaces every variant with canned synthesis.
	MockMode bool
}

// preferenceOrder ranks providers when no explicit primary is available.
// Perplexity first: search grounding matters more than raw model quality
// for intelligence reports.
var preferenceOrder = []string{"perplexity", "openai", "bedrock", "mock"}

// NewRegistry builds the provider registry from configured credentials.
// With no credentials at all it registers the mock so the enrichment
// pipeline keeps producing output in development environments.
func NewRegistry(cfg RegistryConfig) *Registry {
	r := &Registry{providers: make(map[string]Provider)}

	if cfg.MockMode {
		mock := NewMockProvider()
		r.providers[mock.Name()] = mock
		r.primary = mock.Name()
		log.Printf("[Intel] Mock mode enabled - all synthesis is canned")
		return r
	}

	if cfg.PerplexityKey != "" {
		p, err := perplexity.NewProvider(perplexity.Config{
			APIKey: cfg.PerplexityKey,
			Model:  cfg.PerplexityModel,
		})
		if err != nil {
			log.Printf("[Intel] ERROR: Failed to initialize perplexity provider: %v", err)
		} else {
			r.providers["perplexity"] = &perplexityProvider{provider: p}
		}
	}

	if cfg.OpenAIKey != "" {
		p, err := openai.NewProvider(openai.Config{
			APIKey: cfg.OpenAIKey,
			Model:  cfg.OpenAIModel,
		})
		if err != nil {
			log.Printf("[Intel] ERROR: Failed to initialize openai provider: %v", err)
		} else {
			r.providers["openai"] = &openaiProvider{provider: p}
		}
	}

	if cfg.BedrockRegion != "" {
		p, err := bedrock.NewProvider(bedrock.Config{
			Region:          cfg.BedrockRegion,
			Model:           cfg.BedrockModel,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			log.Printf("[Intel] ERROR: Failed to initialize bedrock provider: %v", err)
			log.Printf("[Intel] WARNING: Bedrock is configured (region=%s) but NOT available", cfg.BedrockRegion)
		} else {
			r.providers["bedrock"] = &bedrockProvider{provider: p}
		}
	}

	if len(r.providers) == 0 {
		log.Printf("[Intel] ⚠️  No provider credentials configured - falling back to mock synthesis")
		mock := NewMockProvider()
		r.providers[mock.Name()] = mock
	}

	r.primary = resolvePrimary(cfg.Primary, r.providers)
	r.logProviderStatus()

	return r
}

func resolvePrimary(requested string, providers map[string]Provider) string {
	if _, ok := providers[requested]; ok {
		return requested
	}
	if requested != "" {
		log.Printf("[Intel] WARNING: Requested primary provider %q is not available", requested)
	}
	for _, name := range preferenceOrder {
		if _, ok := providers[name]; ok {
			return name
		}
	}
	return ""
}

// logProviderStatus logs a summary of registered providers at startup.
func (r *Registry) logProviderStatus() {
	log.Printf("[Intel] ========== Intelligence Provider Status ==========")
	log.Printf("[Intel] Available: %s", strings.Join(r.Names(), ", "))
	log.Printf("[Intel] Primary:   %s", r.primary)
	log.Printf("[Intel] ==================================================")
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown intel provider %q", name)
	}
	return p, nil
}

// Primary returns the preferred provider.
func (r *Registry) Primary() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[r.primary]
	if !ok {
		return nil, fmt.Errorf("no intel provider available")
	}
	return p, nil
}

// PrimaryName returns the name of the preferred provider.
func (r *Registry) PrimaryName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primary
}

// Register adds or replaces a provider. The first registration becomes the
// primary when none is set.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	if r.primary == "" {
		r.primary = p.Name()
	}
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func maxTokensFor(spec ReportSpec) int {
	if spec.MaxTokens > 0 {
		return spec.MaxTokens
	}
	return DefaultMaxTokens
}

func temperatureFor(spec ReportSpec) float64 {
	if spec.Temperature > 0 {
		return spec.Temperature
	}
	return DefaultTemperature
}

// perplexityProvider adapts the perplexity client to the Provider interface.
type perplexityProvider struct {
	provider *perplexity.Provider
}

func (p *perplexityProvider) Name() string { return "perplexity" }

func (p *perplexityProvider) Synthesize(ctx context.Context, spec ReportSpec) (*ReportPayload, error) {
	resp, err := p.provider.Complete(ctx, perplexity.CompletionRequest{
		Prompt:       BuildPrompt(spec),
		SystemPrompt: SystemPrompt,
		MaxTokens:    maxTokensFor(spec),
		Temperature:  temperatureFor(spec),
		Model:        spec.Model,
	})
	if err != nil {
		var apiErr *perplexity.APIError
		if errors.As(err, &apiErr) {
			return nil, &APIError{StatusCode: apiErr.StatusCode, Type: apiErr.Type, Message: apiErr.Message}
		}
		return nil, err
	}

	return &ReportPayload{
		Text:       resp.Content,
		ResponseID: resp.ID,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
		Citations:  resp.Citations,
	}, nil
}

func (p *perplexityProvider) HealthCheck(ctx context.Context) error {
	if !p.provider.IsHealthy() {
		return fmt.Errorf("perplexity provider is unhealthy")
	}
	return nil
}

func (p *perplexityProvider) EstimateCost(spec ReportSpec) float64 {
	return p.provider.EstimateCost(promptTokens(spec))
}

// openaiProvider adapts the openai client to the Provider interface.
type openaiProvider struct {
	provider *openai.Provider
}

func (p *openaiProvider) Name() string { return "openai" }

func (p *openaiProvider) Synthesize(ctx context.Context, spec ReportSpec) (*ReportPayload, error) {
	resp, err := p.provider.Complete(ctx, openai.CompletionRequest{
		Prompt:       BuildPrompt(spec),
		SystemPrompt: SystemPrompt,
		MaxTokens:    maxTokensFor(spec),
		Temperature:  temperatureFor(spec),
		Model:        spec.Model,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &APIError{StatusCode: apiErr.StatusCode, Type: apiErr.Type, Message: apiErr.Message}
		}
		return nil, err
	}

	return &ReportPayload{
		Text:       resp.Content,
		ResponseID: resp.ID,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

func (p *openaiProvider) HealthCheck(ctx context.Context) error {
	if !p.provider.IsHealthy() {
		return fmt.Errorf("openai provider is unhealthy")
	}
	return nil
}

func (p *openaiProvider) EstimateCost(spec ReportSpec) float64 {
	return p.provider.EstimateCost(promptTokens(spec))
}

// bedrockProvider adapts the bedrock client to the Provider interface.
type bedrockProvider struct {
	provider *bedrock.Provider
}

func (p *bedrockProvider) Name() string { return "bedrock" }

func (p *bedrockProvider) Synthesize(ctx context.Context, spec ReportSpec) (*ReportPayload, error) {
	resp, err := p.provider.Complete(ctx, bedrock.CompletionRequest{
		Prompt:       BuildPrompt(spec),
		SystemPrompt: SystemPrompt,
		MaxTokens:    maxTokensFor(spec),
		Temperature:  temperatureFor(spec),
		Model:        spec.Model,
	})
	if err != nil {
		var apiErr *bedrock.APIError
		if errors.As(err, &apiErr) {
			return nil, &APIError{StatusCode: apiErr.StatusCode, Type: apiErr.Code, Message: apiErr.Message}
		}
		return nil, err
	}

	return &ReportPayload{
		Text:       resp.Content,
		ResponseID: resp.ID,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

func (p *bedrockProvider) HealthCheck(ctx context.Context) error {
	if !p.provider.IsHealthy() {
		return fmt.Errorf("bedrock provider is unhealthy")
	}
	return nil
}

func (p *bedrockProvider) EstimateCost(spec ReportSpec) float64 {
	return p.provider.EstimateCost(promptTokens(spec))
}
