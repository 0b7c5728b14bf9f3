// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package sources

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	arxivDefaultBaseURL = "http://export.arxiv.org/api/query"
	arxivPageSize       = 100
	arxivDefaultMax     = 100
)

// arxivAITerms is the AI disjunction of the boolean query. Scoring uses the
// full tables in relevance.go; the query stays compact to keep the URL well
// under provider limits.
var arxivAITerms = []string{
	"artificial intelligence", "machine learning", "deep learning",
	"neural network", "natural language processing", "computer vision",
}

// ArxivOptions configures the preprint feed adapter.
type ArxivOptions struct {
	// Mediator dispatches the feed calls. Required unless MockMode.
	Mediator Caller

	// BaseURL overrides the public export API. Optional.
	BaseURL string

	// Client overrides the HTTP transport. Optional.
	Client HTTPClient

	// Admission thresholds. Zero admits everything.
	MinAfricanRelevance float64
	MinAIRelevance      float64

	// MockMode serves canned records instead of calling the provider.
	MockMode bool
}

// ArxivSource reads the arxiv Atom feed: a boolean query over AI terms and
// African entities, date-bounded, paginated by offset.
type ArxivSource struct {
	baseURL  string
	client   HTTPClient
	mediator Caller
	minAfr   float64
	minAI    float64
	mock     bool
}

// NewArxivSource creates the preprint feed adapter.
func NewArxivSource(opts ArxivOptions) *ArxivSource {
	if opts.BaseURL == "" {
		opts.BaseURL = arxivDefaultBaseURL
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ArxivSource{
		baseURL:  opts.BaseURL,
		client:   opts.Client,
		mediator: opts.Mediator,
		minAfr:   opts.MinAfricanRelevance,
		minAI:    opts.MinAIRelevance,
		mock:     opts.MockMode,
	}
}

// Name returns the mediator source name.
func (s *ArxivSource) Name() string { return "arxiv" }

// Fetch pages through the feed until MaxResults records arrive or the feed
// is exhausted. A failed later page degrades to partial results; a failed
// first page fails the fetch.
func (s *ArxivSource) Fetch(ctx context.Context, spec QuerySpec) (*RecordIterator, error) {
	if s.mock {
		return NewRecordIterator(mockArxivRecords()), nil
	}

	max := spec.MaxResults
	if max <= 0 {
		max = arxivDefaultMax
	}
	query := arxivQuery(spec)

	var records []RawRecord
	offset := spec.Offset
	for len(records) < max {
		page := arxivPageSize
		if remaining := max - len(records); remaining < page {
			page = remaining
		}

		start := offset
		params := map[string]any{"query": query, "start": start, "max_results": page}
		payload, err := s.mediator.Call(ctx, s.Name(), params, func(ctx context.Context) ([]byte, error) {
			return s.fetchPage(ctx, query, start, page)
		})
		if err != nil {
			if len(records) == 0 {
				return nil, err
			}
			log.Printf("[Sources] ⚠️  arxiv page at offset %d failed: %v", start, err)
			break
		}

		entries, derr := splitAtomEntries(s.Name(), payload)
		if derr != nil {
			if len(records) == 0 {
				return nil, NewSourceError(s.Name(), "fetch", "decode atom feed", derr)
			}
			log.Printf("[Sources] ⚠️  arxiv page at offset %d undecodable: %v", start, derr)
			break
		}
		if len(entries) == 0 {
			break
		}

		records = append(records, entries...)
		offset += len(entries)
		if len(entries) < page {
			break
		}
	}

	return NewRecordIterator(records), nil
}

func (s *ArxivSource) fetchPage(ctx context.Context, query string, start, count int) ([]byte, error) {
	q := url.Values{}
	q.Set("search_query", query)
	q.Set("start", strconv.Itoa(start))
	q.Set("max_results", strconv.Itoa(count))
	q.Set("sortBy", "submittedDate")
	q.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, NewSourceError(s.Name(), "fetch", "failed to create request", err)
	}
	req.Header.Set("Accept", "application/atom+xml")

	return doRequest(s.client, req)
}

// arxivQuery builds the boolean search expression: (AI terms) AND (African
// entities), optionally AND extra terms and a submitted-date bound.
func arxivQuery(spec QuerySpec) string {
	group := func(terms []string) string {
		parts := make([]string, 0, len(terms))
		for _, t := range terms {
			parts = append(parts, fmt.Sprintf("all:%q", t))
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	}

	q := group(arxivAITerms) + " AND " + group(africanQueryTerms)
	if len(spec.Terms) > 0 {
		q += " AND " + group(spec.Terms)
	}
	if !spec.From.IsZero() {
		to := spec.To
		if to.IsZero() {
			to = time.Now().UTC()
		}
		q += fmt.Sprintf(" AND submittedDate:[%s TO %s]",
			spec.From.UTC().Format("200601021504"),
			to.UTC().Format("200601021504"))
	}
	return q
}

// atomEntryShell captures each entry's identity and raw body so parsing
// stays lazy: records carry source-native XML until Parse is called.
type atomEnvelope struct {
	Entries []atomEntryShell `xml:"entry"`
}

type atomEntryShell struct {
	ID  string `xml:"id"`
	Raw []byte `xml:",innerxml"`
}

func splitAtomEntries(source string, payload []byte) ([]RawRecord, error) {
	var feed atomEnvelope
	if err := xml.Unmarshal(payload, &feed); err != nil {
		return nil, err
	}

	records := make([]RawRecord, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		var buf bytes.Buffer
		buf.WriteString("<entry>")
		buf.Write(e.Raw)
		buf.WriteString("</entry>")
		records = append(records, RawRecord{Source: source, ID: e.ID, Payload: buf.Bytes()})
	}
	return records, nil
}

// arxivEntry is the per-entry Atom schema, matched by local name.
type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Updated   string `xml:"updated"`
	DOI       string `xml:"doi"`
	Authors   []struct {
		Name        string `xml:"name"`
		Affiliation string `xml:"affiliation"`
	} `xml:"author"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
}

// Parse converts one Atom entry into a Publication, or discards it when the
// entry is malformed or scores below the admission thresholds.
func (s *ArxivSource) Parse(raw RawRecord) (TypedRecord, *Discard) {
	var entry arxivEntry
	if err := xml.Unmarshal(raw.Payload, &entry); err != nil {
		return nil, &Discard{Reason: DiscardValidationFailed, Detail: fmt.Sprintf("malformed atom entry: %v", err)}
	}

	title := squashWhitespace(entry.Title)
	abstract := squashWhitespace(entry.Summary)
	if title == "" {
		return nil, &Discard{Reason: DiscardValidationFailed, Detail: "entry has no title"}
	}

	authors := make([]string, 0, len(entry.Authors))
	var affiliations []string
	for _, a := range entry.Authors {
		if name := squashWhitespace(a.Name); name != "" {
			authors = append(authors, name)
		}
		if aff := squashWhitespace(a.Affiliation); aff != "" {
			affiliations = append(affiliations, aff)
		}
	}

	categories := make([]string, 0, len(entry.Categories))
	for _, c := range entry.Categories {
		if c.Term != "" {
			categories = append(categories, c.Term)
		}
	}

	text := title + " " + abstract
	authorLine := strings.Join(authors, " ") + " " + strings.Join(affiliations, " ")
	african, entities := AfricanRelevance(text, authorLine)
	ai := AIRelevance(text, categories)
	if african < s.minAfr || ai < s.minAI {
		return nil, &Discard{
			Reason: DiscardValidationFailed,
			Detail: fmt.Sprintf("relevance below threshold: african=%.2f ai=%.2f", african, ai),
		}
	}

	var published *time.Time
	year := 0
	if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
		published = &t
		year = t.Year()
	}

	return &Publication{
		Title:           title,
		Abstract:        abstract,
		Authors:         authors,
		Published:       published,
		Year:            year,
		Venue:           "arXiv",
		DOI:             entry.DOI,
		Source:          s.Name(),
		SourceID:        arxivID(entry.ID),
		URL:             entry.ID,
		Keywords:        categories,
		AfricanEntities: entities,
		AfricanScore:    african,
		AIScore:         ai,
	}, nil
}

// arxivID extracts the bare identifier from an abs URL.
func arxivID(absURL string) string {
	if i := strings.Index(absURL, "/abs/"); i >= 0 {
		return absURL[i+len("/abs/"):]
	}
	return absURL
}
