// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package sources

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"log"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	newsDefaultWindow = 24 * time.Hour
	newsFeedWorkers   = 4
)

// NewsOptions configures the news monitor.
type NewsOptions struct {
	// Mediator dispatches the feed fetches. Required unless MockMode.
	Mediator Caller

	// Feeds is the set of RSS/Atom URLs to monitor. Required unless
	// MockMode.
	Feeds []string

	// Client overrides the HTTP transport. Optional.
	Client HTTPClient

	// Window is how far back items are kept. Defaults to 24h.
	Window time.Duration

	// Admission thresholds. Zero admits everything.
	MinAfricanRelevance float64
	MinAIRelevance      float64

	// MockMode serves canned records instead of calling the feeds.
	MockMode bool
}

// NewsSource monitors a configured set of RSS and Atom feeds and emits the
// items published inside a rolling window.
type NewsSource struct {
	feeds    []string
	client   HTTPClient
	mediator Caller
	window   time.Duration
	minAfr   float64
	minAI    float64
	mock     bool
}

// NewNewsSource creates the news monitor.
func NewNewsSource(opts NewsOptions) *NewsSource {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Window <= 0 {
		opts.Window = newsDefaultWindow
	}
	return &NewsSource{
		feeds:    opts.Feeds,
		client:   opts.Client,
		mediator: opts.Mediator,
		window:   opts.Window,
		minAfr:   opts.MinAfricanRelevance,
		minAI:    opts.MinAIRelevance,
		mock:     opts.MockMode,
	}
}

// Name returns the mediator source name.
func (s *NewsSource) Name() string { return "news_rss" }

// Fetch pulls every configured feed in bounded parallel. The mediator keys
// each call by feed URL alone, so the rolling window never defeats the cache;
// the window cutoff travels on each record and staleness is decided at parse
// time. A failed feed degrades to partial results.
func (s *NewsSource) Fetch(ctx context.Context, spec QuerySpec) (*RecordIterator, error) {
	if s.mock {
		return NewRecordIterator(mockNewsRecords()), nil
	}
	if len(s.feeds) == 0 {
		return NewRecordIterator(nil), nil
	}

	window := spec.Window
	if window <= 0 {
		window = s.window
	}
	cutoff := time.Now().UTC().Add(-window).Format(time.RFC3339)

	results := make([][]RawRecord, len(s.feeds))

	var mu sync.Mutex
	var failed int
	var firstErr error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(newsFeedWorkers)
	for i, feed := range s.feeds {
		i, feed := i, feed
		g.Go(func() error {
			payload, err := s.mediator.Call(gctx, s.Name(), map[string]any{"feed": feed}, func(ctx context.Context) ([]byte, error) {
				return s.fetchFeed(ctx, feed)
			})
			if err == nil {
				var recs []RawRecord
				recs, err = splitFeedItems(s.Name(), feed, cutoff, payload)
				if err == nil {
					results[i] = recs
					return nil
				}
			}
			mu.Lock()
			failed++
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			log.Printf("[Sources] ⚠️  news feed %s failed: %v", feed, err)
			return nil
		})
	}
	_ = g.Wait()

	if failed == len(s.feeds) {
		return nil, NewSourceError(s.Name(), "fetch", "all feeds failed", firstErr)
	}

	var records []RawRecord
	for _, recs := range results {
		records = append(records, recs...)
	}
	return NewRecordIterator(records), nil
}

func (s *NewsSource) fetchFeed(ctx context.Context, feed string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed, nil)
	if err != nil {
		return nil, NewSourceError(s.Name(), "fetch", "failed to create feed request", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	return doRequest(s.client, req)
}

// feedEnvelope decodes the shared shell of RSS 2.0 (<rss><channel><item>)
// and Atom (<feed><entry>) documents.
type feedEnvelope struct {
	Title   string `xml:"title"`
	Channel struct {
		Title string          `xml:"title"`
		Items []feedItemShell `xml:"item"`
	} `xml:"channel"`
	Entries []feedItemShell `xml:"entry"`
}

type feedItemShell struct {
	GUID string `xml:"guid"`
	ID   string `xml:"id"`
	Raw  []byte `xml:",innerxml"`
}

func splitFeedItems(source, feed, cutoff string, payload []byte) ([]RawRecord, error) {
	var env feedEnvelope
	if err := xml.Unmarshal(payload, &env); err != nil {
		return nil, NewSourceError(source, "fetch", "decode feed", err)
	}

	title := env.Channel.Title
	if title == "" {
		title = env.Title
	}

	shells := env.Channel.Items
	element := "item"
	if len(shells) == 0 && len(env.Entries) > 0 {
		shells = env.Entries
		element = "entry"
	}

	records := make([]RawRecord, 0, len(shells))
	for _, sh := range shells {
		id := sh.GUID
		if id == "" {
			id = sh.ID
		}
		var buf bytes.Buffer
		buf.WriteString("<" + element + ">")
		buf.Write(sh.Raw)
		buf.WriteString("</" + element + ">")
		records = append(records, RawRecord{
			Source:  source,
			ID:      id,
			Payload: buf.Bytes(),
			Meta: map[string]string{
				"feed":       feed,
				"feed_title": title,
				"cutoff":     cutoff,
			},
		})
	}
	return records, nil
}

// newsItem tolerates both dialects: RSS carries the link as character data
// and the date in pubDate, Atom carries the link in an href attribute and
// the date in published/updated.
type newsItem struct {
	Title string `xml:"title"`
	Links []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
		Text string `xml:",chardata"`
	} `xml:"link"`
	Description string `xml:"description"`
	Summary     string `xml:"summary"`
	Content     string `xml:"content"`
	PubDate     string `xml:"pubDate"`
	Published   string `xml:"published"`
	Updated     string `xml:"updated"`
}

var (
	tagPattern = regexp.MustCompile(`<[^>]*>`)

	newsDateFormats = []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		time.RFC822Z,
		time.RFC822,
		time.RFC3339,
	}
)

// Parse converts one feed item into a NewsArticle. Items older than the
// window cutoff are discarded as stale; undated items count as fresh.
func (s *NewsSource) Parse(raw RawRecord) (TypedRecord, *Discard) {
	var item newsItem
	if err := xml.Unmarshal(raw.Payload, &item); err != nil {
		return nil, &Discard{Reason: DiscardValidationFailed, Detail: fmt.Sprintf("malformed feed item: %v", err)}
	}

	title := squashWhitespace(stripTags(item.Title))
	if title == "" {
		return nil, &Discard{Reason: DiscardValidationFailed, Detail: "feed item has no title"}
	}

	link := itemLink(item)
	summary := item.Description
	if summary == "" {
		summary = item.Summary
	}
	if summary == "" {
		summary = item.Content
	}
	summary = squashWhitespace(stripTags(summary))

	published, _ := parseNewsDate(item.PubDate, item.Published, item.Updated)
	if published != nil && raw.Meta["cutoff"] != "" {
		if cutoff, err := time.Parse(time.RFC3339, raw.Meta["cutoff"]); err == nil && published.Before(cutoff) {
			return nil, &Discard{
				Reason: DiscardStale,
				Detail: fmt.Sprintf("published %s before window cutoff %s", published.Format(time.RFC3339), raw.Meta["cutoff"]),
			}
		}
	}

	text := title + " " + summary
	african, _ := AfricanRelevance(text, "")
	ai := AIRelevance(text, nil)
	if african < s.minAfr || ai < s.minAI {
		return nil, &Discard{
			Reason: DiscardValidationFailed,
			Detail: fmt.Sprintf("relevance below threshold: african=%.2f ai=%.2f", african, ai),
		}
	}

	feed := raw.Meta["feed_title"]
	if feed == "" {
		feed = raw.Meta["feed"]
	}
	return &NewsArticle{
		Title:        title,
		Link:         link,
		Summary:      summary,
		Feed:         feed,
		Published:    published,
		AfricanScore: african,
		AIScore:      ai,
	}, nil
}

func itemLink(item newsItem) string {
	var alternate string
	for _, l := range item.Links {
		if text := strings.TrimSpace(l.Text); text != "" {
			return text
		}
		if l.Href != "" && (l.Rel == "" || l.Rel == "alternate") && alternate == "" {
			alternate = l.Href
		}
	}
	return alternate
}

// stripTags removes markup and resolves HTML entities that survive CDATA
// sections.
func stripTags(s string) string {
	return html.UnescapeString(tagPattern.ReplaceAllString(s, " "))
}

func parseNewsDate(candidates ...string) (*time.Time, bool) {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		for _, layout := range newsDateFormats {
			if t, err := time.Parse(layout, c); err == nil {
				utc := t.UTC()
				return &utc, true
			}
		}
	}
	return nil, false
}
