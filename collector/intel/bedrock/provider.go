// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

// Package bedrock provides an intelligence client for AWS Bedrock using the
// AWS SDK v2. Requests are signed with Signature V4 from the ambient IAM
// role or from static credentials, which keeps synthesis inside an AWS
// account boundary when that is a deployment requirement.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const (
	// DefaultRegion is used when no region is configured.
	DefaultRegion = "us-east-1"

	// DefaultModel is the default anthropic-family model ID.
	DefaultModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"

	// DefaultMaxTokens is the default max output tokens for completions.
	DefaultMaxTokens = 4096

	// DefaultTemperature is the default temperature for completions.
	DefaultTemperature = 0.2

	// anthropicVersion is the Bedrock wire version for anthropic bodies.
	anthropicVersion = "bedrock-2023-05-31"
)

// InvokeAPI is the subset of the Bedrock runtime client the provider uses
// (enables testing).
type InvokeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Provider is a Bedrock intelligence client. Only anthropic-family models
// are supported; the request body follows the anthropic messages shape.
type Provider struct {
	client  InvokeAPI
	region  string
	model   string
	healthy bool
	mu      sync.RWMutex
}

// Config contains configuration for the Bedrock provider.
type Config struct {
	Region          string // Optional: AWS region (default: us-east-1)
	Model           string // Optional: anthropic-family model ID
	AccessKeyID     string // Optional: static credential; IAM role when empty
	SecretAccessKey string // Required when AccessKeyID is set
}

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Model        string
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	ID         string
	Model      string
	StopReason string
	Usage      UsageStats
	Latency    time.Duration
}

// UsageStats contains token usage statistics.
type UsageStats struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// NewProvider creates a new Bedrock provider. Static credentials are used
// when configured; otherwise the default AWS credential chain applies.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if family := detectModelFamily(cfg.Model); family != "anthropic" {
		return nil, fmt.Errorf("bedrock model %q is not an anthropic-family model", cfg.Model)
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for Bedrock (region: %s): %w", cfg.Region, err)
	}

	return &Provider{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		region:  cfg.Region,
		model:   cfg.Model,
		healthy: true,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "bedrock"
}

// Region returns the configured AWS region.
func (p *Provider) Region() string {
	return p.region
}

// IsHealthy returns whether the provider is healthy.
func (p *Provider) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthy && p.client != nil
}

func (p *Provider) setHealthy(healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = healthy
}

// EstimateCost estimates the cost for a given number of tokens.
// Pricing based on Claude 3.5 Sonnet on Bedrock: $3/1M input, $15/1M output.
// Using average estimate: $0.000009 per token.
func (p *Provider) EstimateCost(tokens int) float64 {
	return float64(tokens) * 0.000009
}

// Complete generates a completion for the given request.
func (p *Provider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.model
	}
	if family := detectModelFamily(model); family != "anthropic" {
		return nil, fmt.Errorf("bedrock model %q is not an anthropic-family model", model)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	temperature := req.Temperature
	if temperature < 0 {
		temperature = DefaultTemperature
	}

	body := map[string]any{
		"anthropic_version": anthropicVersion,
		"max_tokens":        maxTokens,
		"temperature":       temperature,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
	}
	if req.SystemPrompt != "" {
		body["system"] = req.SystemPrompt
	}

	requestJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        requestJSON,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		p.setHealthy(false)
		return nil, classifyInvokeError(err)
	}

	p.setHealthy(true)

	var resp anthropicResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	content := ""
	if len(resp.Content) > 0 {
		content = resp.Content[0].Text
	}

	return &CompletionResponse{
		Content:    content,
		ID:         resp.ID,
		Model:      model,
		StopReason: resp.StopReason,
		Usage: UsageStats{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		Latency: time.Since(start),
	}, nil
}

// classifyInvokeError maps SDK exception types onto APIError so callers can
// treat Bedrock failures like any HTTP provider's.
func classifyInvokeError(err error) error {
	var (
		throttle  *types.ThrottlingException
		quota     *types.ServiceQuotaExceededException
		denied    *types.AccessDeniedException
		notReady  *types.ModelNotReadyException
		modelTime *types.ModelTimeoutException
		internal  *types.InternalServerException
		validate  *types.ValidationException
	)

	switch {
	case errors.As(err, &throttle):
		return &APIError{StatusCode: 429, Code: "ThrottlingException", Message: throttle.ErrorMessage()}
	case errors.As(err, &quota):
		return &APIError{StatusCode: 429, Code: "ServiceQuotaExceededException", Message: quota.ErrorMessage()}
	case errors.As(err, &denied):
		return &APIError{StatusCode: 403, Code: "AccessDeniedException", Message: denied.ErrorMessage()}
	case errors.As(err, &notReady):
		return &APIError{StatusCode: 503, Code: "ModelNotReadyException", Message: notReady.ErrorMessage()}
	case errors.As(err, &modelTime):
		return &APIError{StatusCode: 504, Code: "ModelTimeoutException", Message: modelTime.ErrorMessage()}
	case errors.As(err, &internal):
		return &APIError{StatusCode: 500, Code: "InternalServerException", Message: internal.ErrorMessage()}
	case errors.As(err, &validate):
		return &APIError{StatusCode: 400, Code: "ValidationException", Message: validate.ErrorMessage()}
	default:
		return fmt.Errorf("bedrock API error: %w", err)
	}
}

// APIError represents a Bedrock API error.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bedrock API error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
}

// IsRateLimitError returns true if this is a throttling or quota error.
func (e *APIError) IsRateLimitError() bool {
	return e.StatusCode == 429
}

// IsAuthError returns true if access was denied.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == 403
}

// inferenceProfilePrefixes are the known Bedrock inference profile prefixes.
var inferenceProfilePrefixes = []string{"us", "eu", "apac", "global"}

// detectModelFamily extracts the family segment from a Bedrock model ID.
// Model IDs follow provider.model-name-version; inference profile IDs add a
// regional prefix like "eu.anthropic.claude-sonnet-4-5-20250929-v1:0".
func detectModelFamily(modelID string) string {
	segments := strings.Split(modelID, ".")
	if len(segments) < 2 {
		return ""
	}
	for _, prefix := range inferenceProfilePrefixes {
		if segments[0] == prefix {
			return segments[1]
		}
	}
	return segments[0]
}

// Internal API types

type anthropicResponse struct {
	ID         string `json:"id"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// SetClient sets a custom Bedrock client for testing.
func (p *Provider) SetClient(client InvokeAPI) {
	p.client = client
}
