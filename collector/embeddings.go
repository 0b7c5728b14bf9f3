// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"

	"baobab/platform/collector/mediator"
	"baobab/platform/collector/sources"
	"baobab/platform/collector/store"
)

const embeddingsBaseURL = "https://api.openai.com/v1"

// OpenAIEmbedder backs the vector index with the OpenAI embeddings API.
// Every call goes through the mediator under the embeddings source, so the
// vectors share the two-tier cache and the same throttle and cost controls
// as the rest of the upstream traffic. Re-embedding identical text is a
// cache hit, not an API call.
type OpenAIEmbedder struct {
	caller  sources.Caller
	client  sources.HTTPClient
	apiKey  string
	baseURL string
	model   string
	dims    int
}

// NewOpenAIEmbedder creates the embedder. Model and dims must agree; the
// index column width is fixed at schema creation.
func NewOpenAIEmbedder(caller sources.Caller, client sources.HTTPClient, apiKey, model string, dims int) *OpenAIEmbedder {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIEmbedder{
		caller:  caller,
		client:  client,
		apiKey:  apiKey,
		baseURL: embeddingsBaseURL,
		model:   model,
		dims:    dims,
	}
}

var _ store.Embedder = (*OpenAIEmbedder)(nil)

// Dimensions returns the configured vector width.
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

// Embed returns the vector for text, via cache when the same text was
// embedded before.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	params := map[string]any{"model": e.model, "text": text}
	payload, err := e.caller.Call(ctx, SrcEmbeddings, params, func(ctx context.Context) ([]byte, error) {
		vec, err := e.fetch(ctx, text)
		if err != nil {
			return nil, err
		}
		return json.Marshal(vec)
	})
	if err != nil {
		return nil, err
	}

	var vec []float32
	if err := json.Unmarshal(payload, &vec); err != nil {
		return nil, fmt.Errorf("failed to decode cached embedding: %w", err)
	}
	return vec, nil
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *OpenAIEmbedder) fetch(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings API error: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read embeddings response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return nil, &mediator.APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embeddings response: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embeddings response carried no vectors")
	}

	return parsed.Data[0].Embedding, nil
}

// MockEmbedder produces deterministic vectors with no network: each token
// hashes into a bucket, so texts sharing words land near each other in the
// index. Good enough for mock mode and tests where only relative similarity
// matters.
type MockEmbedder struct {
	dims int
}

// NewMockEmbedder creates a deterministic embedder of the given width.
func NewMockEmbedder(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &MockEmbedder{dims: dims}
}

var _ store.Embedder = (*MockEmbedder)(nil)

// Dimensions returns the configured vector width.
func (m *MockEmbedder) Dimensions() int { return m.dims }

// Embed hashes tokens into buckets and L2-normalizes the result.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	vec := make([]float32, m.dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[int(h.Sum32())%m.dims]++
	}

	var norm float64
	for _, f := range vec {
		norm += float64(f) * float64(f)
	}
	if norm == 0 {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}

	return vec, nil
}
