// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	scholarDefaultBaseURL = "https://google.serper.dev/scholar"
	scholarDefaultNum     = 20
)

// ScholarOptions configures the scholarly search adapter.
type ScholarOptions struct {
	// Mediator dispatches the search calls. Required unless MockMode.
	Mediator Caller

	// BaseURL overrides the scholar endpoint. Optional.
	BaseURL string

	// Client overrides the HTTP transport. Optional.
	Client HTTPClient

	// APIKey authenticates against the provider. Required unless MockMode.
	APIKey string

	// MockMode serves canned records instead of calling the provider.
	MockMode bool
}

// ScholarSource queries the scholarly index through the same POST contract
// as web search; results add an author list, citation count, and venue, so
// they become publications rather than bare hits.
type ScholarSource struct {
	baseURL  string
	client   HTTPClient
	mediator Caller
	apiKey   string
	mock     bool
}

// NewScholarSource creates the scholarly search adapter.
func NewScholarSource(opts ScholarOptions) *ScholarSource {
	if opts.BaseURL == "" {
		opts.BaseURL = scholarDefaultBaseURL
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 20 * time.Second}
	}
	return &ScholarSource{
		baseURL:  opts.BaseURL,
		client:   opts.Client,
		mediator: opts.Mediator,
		apiKey:   opts.APIKey,
		mock:     opts.MockMode,
	}
}

// Name returns the mediator source name.
func (s *ScholarSource) Name() string { return "scholar" }

// Fetch issues a single scholarly query built from the spec terms.
func (s *ScholarSource) Fetch(ctx context.Context, spec QuerySpec) (*RecordIterator, error) {
	if s.mock {
		return NewRecordIterator(mockSearchRecords(s.Name())), nil
	}

	q := strings.TrimSpace(strings.Join(spec.Terms, " "))
	if q == "" {
		return nil, NewSourceError(s.Name(), "fetch", "empty query", nil)
	}
	num := spec.MaxResults
	if num <= 0 {
		num = scholarDefaultNum
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

// Parse converts one scholar result into a Publication. Relevance scores are
// computed for downstream ranking but never gate here: scholar queries are
// already targeted, and the admission decision belongs to the pipeline that
// asked.
func (s *ScholarSource) Parse(raw RawRecord) (TypedRecord, *Discard) {
	var hit searchHit
	if err := json.Unmarshal(raw.Payload, &hit); err != nil {
		return nil, &Discard{Reason: DiscardValidationFailed, Detail: fmt.Sprintf("malformed scholar result: %v", err)}
	}

	title := squashWhitespace(hit.Title)
	if title == "" {
		return nil, &Discard{Reason: DiscardValidationFailed, Detail: "scholar result has no title"}
	}
	link := strings.TrimSpace(hit.Link)
	if link == "" {
		return nil, &Discard{Reason: DiscardValidationFailed, Detail: "scholar result has no link"}
	}

	snippet := squashWhitespace(hit.Snippet)
	text := title + " " + snippet
	african, entities := AfricanRelevance(text, strings.Join(hit.Authors, " "))
	ai := AIRelevance(text, nil)

	return &Publication{
		Title:           title,
		Abstract:        snippet,
		Authors:         hit.Authors,
		Year:            hit.Year,
		Venue:           squashWhitespace(hit.Publication),
		Source:          s.Name(),
		SourceID:        link,
		URL:             link,
		CitedBy:         hit.CitedBy,
		AfricanEntities: entities,
		AfricanScore:    african,
		AIScore:         ai,
	}, nil
}
