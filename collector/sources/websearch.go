// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	websearchDefaultBaseURL = "https://google.serper.dev/search"
	websearchDefaultNum     = 10
)

// WebSearchOptions configures the keyword search adapter.
type WebSearchOptions struct {
	// Mediator dispatches the search calls. Required unless MockMode.
	Mediator Caller

	// BaseURL overrides the search endpoint. Optional.
	BaseURL string

	// Client overrides the HTTP transport. Optional.
	Client HTTPClient

	// APIKey authenticates against the provider. Required unless MockMode.
	APIKey string

	// MockMode serves canned records instead of calling the provider.
	MockMode bool
}

// WebSearchSource issues one keyword query per invocation against the paid
// search endpoint and emits ranked link+snippet records. It is the expensive
// last-resort discovery channel, so every call goes through the mediator's
// budget and cache.
type WebSearchSource struct {
	baseURL  string
	client   HTTPClient
	mediator Caller
	apiKey   string
	mock     bool
}

// NewWebSearchSource creates the keyword search adapter.
func NewWebSearchSource(opts WebSearchOptions) *WebSearchSource {
	if opts.BaseURL == "" {
		opts.BaseURL = websearchDefaultBaseURL
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 20 * time.Second}
	}
	return &WebSearchSource{
		baseURL:  opts.BaseURL,
		client:   opts.Client,
		mediator: opts.Mediator,
		apiKey:   opts.APIKey,
		mock:     opts.MockMode,
	}
}

// Name returns the mediator source name.
func (s *WebSearchSource) Name() string { return "web_search" }

// Fetch issues a single search query built from the spec terms.
func (s *WebSearchSource) Fetch(ctx context.Context, spec QuerySpec) (*RecordIterator, error) {
	if s.mock {
		return NewRecordIterator(mockSearchRecords(s.Name())), nil
	}

	q := strings.TrimSpace(strings.Join(spec.Terms, " "))
	if q == "" {
		return nil, NewSourceError(s.Name(), "fetch", "empty query", nil)
	}
	num := spec.MaxResults
	if num <= 0 {
		num = websearchDefaultNum
	}

	params := map[string]any{"q": q, "num": num}
	payload, err := s.mediator.Call(ctx, s.Name(), params, func(ctx context.Context) ([]byte, error) {
		return postSearch(ctx, s.client, s.Name(), s.baseURL, s.apiKey, q, num)
	})
	if err != nil {
		return nil, err
	}

	records, err := splitSearchResults(s.Name(), q, payload)
	if err != nil {
		return nil, err
	}
	return NewRecordIterator(records), nil
}

// searchHit is the provider's result schema, shared by the web and scholar
// endpoints; the scholar endpoint fills the bibliographic fields.
type searchHit struct {
	Title       string   `json:"title"`
	Link        string   `json:"link"`
	Snippet     string   `json:"snippet"`
	Position    int      `json:"position"`
	Authors     []string `json:"authors"`
	Year        int      `json:"year"`
	CitedBy     int      `json:"cited_by"`
	Publication string   `json:"publication"`
}

// Parse converts one search result into a SearchHit. Hits carry no relevance
// scores: they exist to be resolved into targets, and the extractor judges
// what they point at, not the snippet.
func (s *WebSearchSource) Parse(raw RawRecord) (TypedRecord, *Discard) {
	var hit searchHit
	if err := json.Unmarshal(raw.Payload, &hit); err != nil {
		return nil, &Discard{Reason: DiscardValidationFailed, Detail: fmt.Sprintf("malformed search result: %v", err)}
	}
	if strings.TrimSpace(hit.Link) == "" {
		return nil, &Discard{Reason: DiscardValidationFailed, Detail: "search result has no link"}
	}
	return &SearchHit{
		Title:    squashWhitespace(hit.Title),
		Link:     strings.TrimSpace(hit.Link),
		Snippet:  squashWhitespace(hit.Snippet),
		Position: hit.Position,
	}, nil
}

type searchRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num"`
}

type searchResponse struct {
	Results []json.RawMessage `json:"results"`
}

// postSearch issues the shared POST contract of the web and scholar search
// endpoints.
func postSearch(ctx context.Context, client HTTPClient, source, baseURL, apiKey, q string, num int) ([]byte, error) {
	body, err := json.Marshal(searchRequest{Query: q, Num: num})
	if err != nil {
		return nil, NewSourceError(source, "fetch", "failed to encode search request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, NewSourceError(source, "fetch", "failed to create search request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	return doRequest(client, req)
}

// splitSearchResults re-emits each ranked result as its own raw record so
// parsing stays per-item.
func splitSearchResults(source, query string, payload []byte) ([]RawRecord, error) {
	var res searchResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, NewSourceError(source, "fetch", "decode search response", err)
	}

	records := make([]RawRecord, 0, len(res.Results))
	for _, raw := range res.Results {
		var probe struct {
			Link string `json:"link"`
		}
		_ = json.Unmarshal(raw, &probe)
		records = append(records, RawRecord{
			Source:  source,
			ID:      probe.Link,
			Payload: append([]byte(nil), raw...),
			Meta:    map[string]string{"query": query},
		})
	}
	return records, nil
}
