// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const rssTestFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
  <title>TechCabal</title>
  <item>
    <title>Kenya's Amini raises seed round for climate AI</title>
    <link>https://example.com/amini</link>
    <description>The Nairobi startup applies machine learning to satellite data.</description>
    <pubDate>Tue, 10 Jun 2025 08:30:00 +0000</pubDate>
    <guid>https://example.com/amini</guid>
  </item>
  <item>
    <title>Archive: AI pilot in Ghana from 2020</title>
    <link>https://example.com/archive</link>
    <description>An artificial intelligence pilot program.</description>
    <pubDate>Mon, 01 Jun 2020 08:00:00 +0000</pubDate>
    <guid>https://example.com/archive</guid>
  </item>
</channel></rss>`

const atomTestFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Ventureburn</title>
  <entry>
    <title>Zindi launches computer vision challenge for Tunisia</title>
    <link rel="alternate" href="https://example.com/zindi-challenge"/>
    <summary>The data science platform partnered with a Tunis research lab.</summary>
    <published>2025-06-13T10:15:00Z</published>
    <id>tag:example.com,2025:zindi</id>
  </entry>
</feed>`

func TestNewsFetchRSS(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssTestFeed))
	}))
	defer server.Close()

	caller := &passthroughCaller{}
	source := NewNewsSource(NewsOptions{
		Mediator: caller,
		Feeds:    []string{server.URL + "/feed"},
		Client:   server.Client(),
		Window:   24 * time.Hour,
	})

	it, err := source.Fetch(context.Background(), QuerySpec{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	// Both items arrive; staleness is a parse-time decision.
	if it.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", it.Len())
	}

	rec, _ := it.Next()
	if !strings.HasPrefix(string(rec.Payload), "<item>") {
		t.Errorf("payload should be a wrapped item, got %q", rec.Payload[:12])
	}
	if rec.Meta["feed"] != server.URL+"/feed" || rec.Meta["feed_title"] != "TechCabal" {
		t.Errorf("meta = %v", rec.Meta)
	}

	cutoff, err := time.Parse(time.RFC3339, rec.Meta["cutoff"])
	if err != nil {
		t.Fatalf("cutoff %q not RFC3339: %v", rec.Meta["cutoff"], err)
	}
	if drift := time.Since(cutoff.Add(24 * time.Hour)); drift < -time.Minute || drift > time.Minute {
		t.Errorf("cutoff = %v, want about 24h ago", cutoff)
	}

	// The cache key is the feed URL alone: a moving cutoff must never
	// bust the one-hour cache.
	calls := caller.recorded()
	if len(calls) != 1 {
		t.Fatalf("mediator saw %d calls, want 1", len(calls))
	}
	if len(calls[0].params) != 1 || calls[0].params["feed"] != server.URL+"/feed" {
		t.Errorf("params = %v, want feed URL only", calls[0].params)
	}
}

func TestNewsFetchAtom(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(atomTestFeed))
	}))
	defer server.Close()

	source := NewNewsSource(NewsOptions{
		Mediator: &passthroughCaller{},
		Feeds:    []string{server.URL},
		Client:   server.Client(),
	})

	it, err := source.Fetch(context.Background(), QuerySpec{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if it.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", it.Len())
	}

	rec, _ := it.Next()
	if !strings.HasPrefix(string(rec.Payload), "<entry>") {
		t.Errorf("payload should be a wrapped entry, got %q", rec.Payload[:12])
	}
	if rec.ID != "tag:example.com,2025:zindi" {
		t.Errorf("record ID = %q, want the atom id", rec.ID)
	}
	if rec.Meta["feed_title"] != "Ventureburn" {
		t.Errorf("feed_title = %q", rec.Meta["feed_title"])
	}

	typed, discard := source.Parse(rec)
	if discard != nil {
		t.Fatalf("unexpected discard: %s", discard)
	}
	article := typed.(*NewsArticle)
	if article.Link != "https://example.com/zindi-challenge" {
		t.Errorf("link = %q, want the alternate href", article.Link)
	}
	if article.Published == nil || !article.Published.Equal(time.Date(2025, 6, 13, 10, 15, 0, 0, time.UTC)) {
		t.Errorf("published = %v", article.Published)
	}
}

func TestNewsFetchPartialFeedFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(rssTestFeed))
	}))
	defer server.Close()

	source := NewNewsSource(NewsOptions{
		Mediator: &passthroughCaller{},
		Feeds:    []string{server.URL + "/good", server.URL + "/bad"},
		Client:   server.Client(),
	})

	it, err := source.Fetch(context.Background(), QuerySpec{})
	if err != nil {
		t.Fatalf("one failed feed should keep partial results, got %v", err)
	}
	if it.Len() != 2 {
		t.Errorf("Len() = %d, want 2 from the healthy feed", it.Len())
	}

	allBad := NewNewsSource(NewsOptions{
		Mediator: &passthroughCaller{},
		Feeds:    []string{server.URL + "/bad"},
		Client:   server.Client(),
	})
	_, err = allBad.Fetch(context.Background(), QuerySpec{})
	var srcErr *SourceError
	if !errors.As(err, &srcErr) || !strings.Contains(srcErr.Message, "all feeds failed") {
		t.Fatalf("expected all-feeds failure, got %v", err)
	}
}

func TestNewsFetchNoFeeds(t *testing.T) {
	source := NewNewsSource(NewsOptions{Mediator: &passthroughCaller{}})
	it, err := source.Fetch(context.Background(), QuerySpec{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if it.Len() != 0 {
		t.Errorf("Len() = %d, want 0", it.Len())
	}
}

func TestNewsParse(t *testing.T) {
	source := NewNewsSource(NewsOptions{MockMode: true, MinAfricanRelevance: 0.15, MinAIRelevance: 0.2})

	payload := `<item>
  <title>Nigeria unveils AI strategy &amp; compute fund</title>
  <link>https://example.com/ai-strategy</link>
  <description><![CDATA[The plan includes <b>machine learning</b> research grants.]]></description>
  <pubDate>Mon, 02 Jun 2025 10:00:00 +0000</pubDate>
</item>`
	rec := RawRecord{
		Source:  "news_rss",
		Payload: []byte(payload),
		Meta: map[string]string{
			"feed":       "https://example.com/feed",
			"feed_title": "TechCabal",
			"cutoff":     "2000-01-01T00:00:00Z",
		},
	}

	typed, discard := source.Parse(rec)
	if discard != nil {
		t.Fatalf("unexpected discard: %s", discard)
	}
	article := typed.(*NewsArticle)

	if article.Title != "Nigeria unveils AI strategy & compute fund" {
		t.Errorf("title = %q", article.Title)
	}
	if article.Summary != "The plan includes machine learning research grants." {
		t.Errorf("summary = %q, want markup stripped", article.Summary)
	}
	if article.Link != "https://example.com/ai-strategy" {
		t.Errorf("link = %q", article.Link)
	}
	if article.Feed != "TechCabal" {
		t.Errorf("feed = %q", article.Feed)
	}
	if article.Published == nil || !article.Published.Equal(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("published = %v", article.Published)
	}
	if article.AfricanScore < 0.15 || article.AIScore < 0.2 {
		t.Errorf("scores = %v/%v", article.AfricanScore, article.AIScore)
	}
}

func TestNewsParseStale(t *testing.T) {
	source := NewNewsSource(NewsOptions{MockMode: true})

	payload := `<item><title>Old AI news from Kenya</title><link>https://example.com/x</link><pubDate>Mon, 01 Jun 2020 08:00:00 +0000</pubDate></item>`
	rec := RawRecord{
		Source:  "news_rss",
		Payload: []byte(payload),
		Meta:    map[string]string{"cutoff": time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339)},
	}

	_, discard := source.Parse(rec)
	if discard == nil || discard.Reason != DiscardStale {
		t.Fatalf("expected stale discard, got %v", discard)
	}
	if !strings.Contains(discard.Detail, "window cutoff") {
		t.Errorf("detail = %q", discard.Detail)
	}
}

func TestNewsParseUndatedIsFresh(t *testing.T) {
	source := NewNewsSource(NewsOptions{MockMode: true})

	payload := `<item><title>Machine learning lab opens in Rwanda</title><link>https://example.com/lab</link></item>`
	rec := RawRecord{
		Source:  "news_rss",
		Payload: []byte(payload),
		Meta:    map[string]string{"cutoff": time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)},
	}

	typed, discard := source.Parse(rec)
	if discard != nil {
		t.Fatalf("undated item should be fresh, got %s", discard)
	}
	if typed.(*NewsArticle).Published != nil {
		t.Error("published should be nil for undated item")
	}
}

func TestItemLink(t *testing.T) {
	link := func(href, rel, text string) struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
		Text string `xml:",chardata"`
	} {
		return struct {
			Href string `xml:"href,attr"`
			Rel  string `xml:"rel,attr"`
			Text string `xml:",chardata"`
		}{Href: href, Rel: rel, Text: text}
	}

	// RSS character-data link wins outright.
	item := newsItem{}
	item.Links = append(item.Links, link("", "", "https://example.com/rss"))
	if got := itemLink(item); got != "https://example.com/rss" {
		t.Errorf("itemLink = %q", got)
	}

	// Atom: the alternate href is chosen over self.
	item = newsItem{}
	item.Links = append(item.Links, link("https://example.com/self.xml", "self", ""))
	item.Links = append(item.Links, link("https://example.com/page", "alternate", ""))
	if got := itemLink(item); got != "https://example.com/page" {
		t.Errorf("itemLink = %q", got)
	}

	if got := itemLink(newsItem{}); got != "" {
		t.Errorf("itemLink = %q, want empty", got)
	}
}

func TestParseNewsDate(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want string
	}{
		{"Tue, 10 Jun 2025 08:30:00 +0000", true, "2025-06-10T08:30:00Z"},
		{"Tue, 10 Jun 2025 08:30:00 GMT", true, "2025-06-10T08:30:00Z"},
		{"Mon, 2 Jun 2025 08:30:00 +0200", true, "2025-06-02T06:30:00Z"},
		{"2025-06-13T10:15:00Z", true, "2025-06-13T10:15:00Z"},
		{"not a date", false, ""},
		{"", false, ""},
	}
	for _, tt := range tests {
		got, ok := parseNewsDate(tt.in)
		if ok != tt.ok {
			t.Errorf("parseNewsDate(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && got.Format(time.RFC3339) != tt.want {
			t.Errorf("parseNewsDate(%q) = %v, want %s", tt.in, got, tt.want)
		}
	}
}

func TestStripTags(t *testing.T) {
	got := squashWhitespace(stripTags("<p>AI &amp; ML in <a href=\"x\">Dakar</a></p>"))
	if got != "AI & ML in Dakar" {
		t.Errorf("stripTags = %q", got)
	}
}

func TestNewsMockMode(t *testing.T) {
	source := NewNewsSource(NewsOptions{MockMode: true, MinAfricanRelevance: 0.15, MinAIRelevance: 0.2})

	it, err := source.Fetch(context.Background(), QuerySpec{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if it.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", it.Len())
	}
	for {
		rec, ok := it.Next()
		if !ok {
			break
		}
		typed, discard := source.Parse(rec)
		if discard != nil {
			t.Errorf("fixture %s discarded: %s", rec.ID, discard)
			continue
		}
		article := typed.(*NewsArticle)
		if article.Link == "" || article.Feed == "" {
			t.Errorf("fixture %s incomplete: %+v", rec.ID, article)
		}
	}
}
