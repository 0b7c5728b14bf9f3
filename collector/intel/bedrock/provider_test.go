// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// mockInvoker is a mock Bedrock runtime client for testing.
type mockInvoker struct {
	output    *bedrockruntime.InvokeModelOutput
	err       error
	lastInput *bedrockruntime.InvokeModelInput
}

func (m *mockInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	m.lastInput = params
	if m.err != nil {
		return nil, m.err
	}
	return m.output, nil
}

func newTestProvider(mock *mockInvoker) *Provider {
	return &Provider{
		client:  mock,
		region:  DefaultRegion,
		model:   DefaultModel,
		healthy: true,
	}
}

func TestNewProviderRejectsNonAnthropicModel(t *testing.T) {
	_, err := NewProvider(Config{Model: "meta.llama3-70b-instruct-v1:0"})
	if err == nil {
		t.Fatal("expected error for non-anthropic model")
	}
}

func TestDetectModelFamily(t *testing.T) {
	tests := []struct {
		modelID string
		want    string
	}{
		{"anthropic.claude-3-5-sonnet-20240620-v1:0", "anthropic"},
		{"eu.anthropic.claude-sonnet-4-5-20250929-v1:0", "anthropic"},
		{"global.anthropic.claude-sonnet-4-5-20250929-v1:0", "anthropic"},
		{"meta.llama3-70b-instruct-v1:0", "meta"},
		{"amazon.titan-text-express-v1", "amazon"},
		{"", ""},
		{"noprefix", ""},
	}

	for _, tt := range tests {
		if got := detectModelFamily(tt.modelID); got != tt.want {
			t.Errorf("detectModelFamily(%q) = %q, want %q", tt.modelID, got, tt.want)
		}
	}
}

func TestProviderComplete(t *testing.T) {
	respBody := []byte(`{"id":"msg_bdrk_01","type":"message","role":"assistant","content":[{"type":"text","text":"Two Kenyan startups raised seed rounds."}],"stop_reason":"end_turn","usage":{"input_tokens":25,"output_tokens":150}}`)

	mock := &mockInvoker{output: &bedrockruntime.InvokeModelOutput{Body: respBody}}
	provider := newTestProvider(mock)

	resp, err := provider.Complete(context.Background(), CompletionRequest{
		Prompt:       "What happened in East Africa?",
		SystemPrompt: "You are an analyst",
		MaxTokens:    500,
		Temperature:  0.1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != "Two Kenyan startups raised seed rounds." {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.ID != "msg_bdrk_01" {
		t.Errorf("unexpected response ID %q", resp.ID)
	}
	if resp.Usage.TotalTokens != 175 {
		t.Errorf("expected total tokens 175, got %d", resp.Usage.TotalTokens)
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("unexpected stop reason %q", resp.StopReason)
	}

	if got := aws.ToString(mock.lastInput.ModelId); got != DefaultModel {
		t.Errorf("expected model %q, got %q", DefaultModel, got)
	}
	if got := aws.ToString(mock.lastInput.ContentType); got != "application/json" {
		t.Errorf("expected JSON content type, got %q", got)
	}

	var body map[string]any
	if err := json.Unmarshal(mock.lastInput.Body, &body); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if body["anthropic_version"] != anthropicVersion {
		t.Errorf("expected anthropic_version %q, got %v", anthropicVersion, body["anthropic_version"])
	}
	if body["max_tokens"] != float64(500) {
		t.Errorf("expected max_tokens 500, got %v", body["max_tokens"])
	}
	if body["system"] != "You are an analyst" {
		t.Errorf("expected system prompt, got %v", body["system"])
	}
	messages, ok := body["messages"].([]any)
	if !ok || len(messages) != 1 {
		t.Fatalf("expected one message, got %v", body["messages"])
	}
	msg := messages[0].(map[string]any)
	if msg["role"] != "user" || msg["content"] != "What happened in East Africa?" {
		t.Errorf("unexpected user message %v", msg)
	}
}

func TestProviderCompleteRejectsModelOverrideOutsideFamily(t *testing.T) {
	provider := newTestProvider(&mockInvoker{})
	_, err := provider.Complete(context.Background(), CompletionRequest{
		Prompt: "Hello",
		Model:  "mistral.mistral-large-2402-v1:0",
	})
	if err == nil {
		t.Fatal("expected error for non-anthropic model override")
	}
}

func TestProviderCompleteErrorClassification(t *testing.T) {
	t.Run("throttling", func(t *testing.T) {
		mock := &mockInvoker{err: &types.ThrottlingException{Message: aws.String("Too many requests")}}
		provider := newTestProvider(mock)

		_, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "Hello"})
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if !apiErr.IsRateLimitError() {
			t.Errorf("throttling should classify as rate limit, got %v", apiErr)
		}
		if provider.IsHealthy() {
			t.Error("failed invoke should mark provider unhealthy")
		}
	})

	t.Run("access denied", func(t *testing.T) {
		mock := &mockInvoker{err: &types.AccessDeniedException{Message: aws.String("no bedrock:InvokeModel")}}
		provider := newTestProvider(mock)

		_, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "Hello"})
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if !apiErr.IsAuthError() {
			t.Errorf("access denied should classify as auth error, got %v", apiErr)
		}
	})

	t.Run("model not ready is retryable server error", func(t *testing.T) {
		mock := &mockInvoker{err: &types.ModelNotReadyException{Message: aws.String("warming up")}}
		provider := newTestProvider(mock)

		_, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "Hello"})
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 503 {
			t.Errorf("expected status 503, got %d", apiErr.StatusCode)
		}
	})

	t.Run("unknown errors pass through wrapped", func(t *testing.T) {
		mock := &mockInvoker{err: errors.New("dial tcp: no route to host")}
		provider := newTestProvider(mock)

		_, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "Hello"})
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			t.Errorf("transport errors should not become APIError, got %v", apiErr)
		}
	})
}
