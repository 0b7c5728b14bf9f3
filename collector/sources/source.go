// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

// Package sources implements the upstream adapters: the arxiv preprint feed,
// the pubmed biomedical index, the news RSS monitor, web search, scholarly
// search, and the LLM intelligence engine. Every adapter speaks to its
// provider exclusively through the mediator, so caching, throttling, retries,
// and cost accounting apply uniformly; the adapter's own job is building
// requests, splitting pages into raw records, and parsing records into typed
// products.
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"baobab/platform/collector/mediator"
)

const (
	// maxResponseSize caps any single provider response read (10MB).
	maxResponseSize = 10 * 1024 * 1024

	userAgent = "BaobabCollector/1.0 (+https://baobabinsights.africa)"
)

// Caller dispatches one provider call under the shared cache, throttle, and
// budget machinery. *mediator.Mediator satisfies it.
type Caller interface {
	Call(ctx context.Context, source string, params map[string]any, execute func(ctx context.Context) ([]byte, error)) ([]byte, error)
}

// HTTPClient is the transport dependency. *http.Client satisfies it; tests
// inject a mock.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// QuerySpec bounds one fetch.
type QuerySpec struct {
	// Terms are extra query terms beyond the adapter's built-in topic query.
	// Search adapters join them into the query string; feed adapters AND
	// them onto the boolean query.
	Terms []string

	// From/To date-bound feed queries. Zero values mean the source default.
	From time.Time
	To   time.Time

	// Offset and MaxResults page through ranked sources. MaxResults zero
	// means the adapter default.
	Offset     int
	MaxResults int

	// Window bounds the news monitor to items published in the last
	// duration. Zero means the adapter default.
	Window time.Duration

	// Intelligence synthesis parameters. Provider overrides the source's
	// configured backend for this call only. Subject names a single entity
	// for the field_* report types.
	ReportType      string
	TimePeriod      string
	GeographicFocus []string
	Provider        string
	Subject         string
}

// RawRecord is one upstream item before parsing. Payload holds the
// source-native encoding: a single Atom entry, one PubmedArticle element,
// one RSS item, or one JSON result object.
type RawRecord struct {
	Source  string
	ID      string
	Payload []byte
	Meta    map[string]string
}

// RecordIterator walks a finite batch of raw records in fetch order. It is
// restartable: Reset rewinds to the first record without refetching.
type RecordIterator struct {
	records []RawRecord
	pos     int
}

// NewRecordIterator wraps an already-fetched batch.
func NewRecordIterator(records []RawRecord) *RecordIterator {
	return &RecordIterator{records: records}
}

// Next returns the next record, or ok=false when the batch is exhausted.
func (it *RecordIterator) Next() (RawRecord, bool) {
	if it.pos >= len(it.records) {
		return RawRecord{}, false
	}
	rec := it.records[it.pos]
	it.pos++
	return rec, true
}

// Reset rewinds the iterator to the first record.
func (it *RecordIterator) Reset() { it.pos = 0 }

// Len reports the total number of records in the batch.
func (it *RecordIterator) Len() int { return len(it.records) }

// TypedRecord is an interface holding one of the parse product types:
// *Publication, *NewsArticle, *SearchHit, or *IntelReport. Callers that know
// their adapter switch directly on the concrete type.
type TypedRecord any

// Discard reasons. Validation failures count toward a pipeline's
// items_failed; stale records are silently skipped.
const (
	DiscardValidationFailed = "validation_failed"
	DiscardStale            = "stale"
)

// Discard explains why a raw record produced no typed record. Discards are
// record-level: callers count them and move on.
type Discard struct {
	Reason string
	Detail string
}

func (d *Discard) String() string {
	if d.Detail == "" {
		return d.Reason
	}
	return d.Reason + ": " + d.Detail
}

// Source is the adapter contract. Fetch issues the mediated provider calls
// and returns the raw records in fetch order; Parse converts one raw record
// into its typed product or a Discard.
type Source interface {
	Name() string
	Fetch(ctx context.Context, spec QuerySpec) (*RecordIterator, error)
	Parse(raw RawRecord) (TypedRecord, *Discard)
}

// SourceError wraps adapter failures with the source and operation that
// produced them.
type SourceError struct {
	Source    string
	Operation string
	Message   string
	Cause     error
}

func (e *SourceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("source %s: %s failed: %s: %v", e.Source, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("source %s: %s failed: %s", e.Source, e.Operation, e.Message)
}

func (e *SourceError) Unwrap() error {
	return e.Cause
}

// NewSourceError creates a new source error.
func NewSourceError(source, operation, message string, cause error) *SourceError {
	return &SourceError{
		Source:    source,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// doRequest executes req, bounds the body read, and maps non-2xx responses
// onto the mediator's error taxonomy so retry and negative caching see them.
func doRequest(client HTTPClient, req *http.Request) ([]byte, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > maxResponseSize {
		return nil, fmt.Errorf("response size exceeds limit of %d bytes", maxResponseSize)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiError(resp.StatusCode, resp.Header, body)
	}
	return body, nil
}

// apiError builds a classified provider error from a non-2xx response,
// honoring Retry-After when the provider states one.
func apiError(status int, header http.Header, body []byte) *mediator.APIError {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	apiErr := &mediator.APIError{
		StatusCode: status,
		Message:    fmt.Sprintf("HTTP %d: %s", status, msg),
	}
	if ra := header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return apiErr
}

// squashWhitespace collapses runs of whitespace (feed titles and abstracts
// arrive with embedded newlines and indentation) into single spaces.
func squashWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
