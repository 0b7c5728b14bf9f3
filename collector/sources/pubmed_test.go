// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"
)

func pubmedTestArticle(pmid string) string {
	return fmt.Sprintf(`<PubmedArticle>
  <MedlineCitation>
    <PMID>%s</PMID>
    <Article>
      <ArticleTitle>Machine learning study %s on clinical data from Ghana.</ArticleTitle>
      <Journal><Title>Test Journal</Title><JournalIssue><PubDate><Year>2025</Year></PubDate></JournalIssue></Journal>
    </Article>
  </MedlineCitation>
</PubmedArticle>`, pmid, pmid)
}

func pubmedTestServer(t *testing.T, ids []string, failBatchWith string) (*httptest.Server, *[]url.Values) {
	t.Helper()
	var captured []url.Values

	mux := http.NewServeMux()
	mux.HandleFunc("/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		captured = append(captured, r.URL.Query())
		resp := map[string]any{
			"esearchresult": map[string]any{
				"count":  strconv.Itoa(len(ids)),
				"idlist": ids,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/efetch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		batch := strings.Split(r.URL.Query().Get("id"), ",")
		if failBatchWith != "" {
			for _, id := range batch {
				if id == failBatchWith {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
			}
		}
		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><PubmedArticleSet>`)
		for _, id := range batch {
			b.WriteString(pubmedTestArticle(id))
		}
		b.WriteString("</PubmedArticleSet>")
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(b.String()))
	})

	return httptest.NewServer(mux), &captured
}

func testIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = strconv.Itoa(100 + i)
	}
	return ids
}

func TestPubmedFetchTwoPhase(t *testing.T) {
	ids := testIDs(45)
	server, captured := pubmedTestServer(t, ids, "")
	defer server.Close()

	caller := &passthroughCaller{}
	source := NewPubmedSource(PubmedOptions{
		Mediator: caller,
		BaseURL:  server.URL,
		Client:   server.Client(),
		APIKey:   "k123",
	})

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	it, err := source.Fetch(context.Background(), QuerySpec{MaxResults: 45, From: from})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if it.Len() != 45 {
		t.Fatalf("Len() = %d, want 45", it.Len())
	}

	// Batch order is preserved even though batches fetch in parallel.
	rec, _ := it.Next()
	if rec.ID != "100" {
		t.Errorf("first record ID = %q, want 100", rec.ID)
	}
	if !strings.HasPrefix(string(rec.Payload), "<PubmedArticle>") {
		t.Errorf("payload should be a wrapped article, got %q", rec.Payload[:24])
	}

	calls := caller.recorded()
	if len(calls) != 4 {
		t.Fatalf("mediator saw %d calls, want 1 esearch + 3 efetch", len(calls))
	}
	if calls[0].params["op"] != "esearch" {
		t.Fatalf("first call op = %v, want esearch", calls[0].params["op"])
	}
	term, _ := calls[0].params["term"].(string)
	if !strings.Contains(term, "[Title/Abstract]") {
		t.Errorf("esearch term = %q, want fielded groups", term)
	}
	if calls[0].params["mindate"] != "2025/06/01" {
		t.Errorf("mindate = %v", calls[0].params["mindate"])
	}

	var batchSizes []int
	seen := map[string]bool{}
	for _, c := range calls[1:] {
		if c.params["op"] != "efetch" {
			t.Fatalf("expected efetch call, got %v", c.params["op"])
		}
		batch := strings.Split(c.params["ids"].(string), ",")
		batchSizes = append(batchSizes, len(batch))
		for _, id := range batch {
			seen[id] = true
		}
	}
	sort.Ints(batchSizes)
	if fmt.Sprint(batchSizes) != "[5 20 20]" {
		t.Errorf("batch sizes = %v, want two full batches and a remainder", batchSizes)
	}
	if len(seen) != 45 {
		t.Errorf("efetch covered %d ids, want 45", len(seen))
	}

	// The API key rides on the provider URL, not the cache key.
	if got := (*captured)[0].Get("api_key"); got != "k123" {
		t.Errorf("esearch api_key = %q", got)
	}
	if got := (*captured)[0].Get("retmode"); got != "json" {
		t.Errorf("esearch retmode = %q", got)
	}
}

func TestPubmedFetchEmptyResult(t *testing.T) {
	server, _ := pubmedTestServer(t, nil, "")
	defer server.Close()

	caller := &passthroughCaller{}
	source := NewPubmedSource(PubmedOptions{Mediator: caller, BaseURL: server.URL, Client: server.Client()})

	it, err := source.Fetch(context.Background(), QuerySpec{MaxResults: 10})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if it.Len() != 0 {
		t.Errorf("Len() = %d, want 0", it.Len())
	}
	if calls := caller.recorded(); len(calls) != 1 {
		t.Errorf("mediator saw %d calls, want esearch only", len(calls))
	}
}

func TestPubmedFetchBatchFailureKeepsPartial(t *testing.T) {
	ids := testIDs(45)
	// ids[20] leads the second batch; failing on it drops that batch only.
	server, _ := pubmedTestServer(t, ids, ids[20])
	defer server.Close()

	source := NewPubmedSource(PubmedOptions{Mediator: &passthroughCaller{}, BaseURL: server.URL, Client: server.Client()})

	it, err := source.Fetch(context.Background(), QuerySpec{MaxResults: 45})
	if err != nil {
		t.Fatalf("single failed batch should keep partial results, got %v", err)
	}
	if it.Len() != 25 {
		t.Errorf("Len() = %d, want 25", it.Len())
	}
}

func TestPubmedFetchAllBatchesFailed(t *testing.T) {
	ids := testIDs(5)
	// Every batch contains ids[0], so every batch fails.
	server, _ := pubmedTestServer(t, ids, ids[0])
	defer server.Close()

	source := NewPubmedSource(PubmedOptions{Mediator: &passthroughCaller{}, BaseURL: server.URL, Client: server.Client()})

	_, err := source.Fetch(context.Background(), QuerySpec{MaxResults: 5})
	var srcErr *SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("expected *SourceError, got %T: %v", err, err)
	}
	if !strings.Contains(srcErr.Message, "all efetch batches failed") {
		t.Errorf("message = %q", srcErr.Message)
	}
}

func TestPubmedParse(t *testing.T) {
	source := NewPubmedSource(PubmedOptions{MockMode: true, MinAfricanRelevance: 0.2, MinAIRelevance: 0.3})

	typed, discard := source.Parse(mockPubmedRecords()[0])
	if discard != nil {
		t.Fatalf("unexpected discard: %s", discard)
	}
	pub := typed.(*Publication)

	if !strings.HasPrefix(pub.Title, "Deep learning for tuberculosis screening") {
		t.Errorf("title = %q", pub.Title)
	}
	if len(pub.Authors) != 2 || pub.Authors[0] != "Folake Adeyemi" {
		t.Errorf("authors = %v", pub.Authors)
	}
	if !strings.Contains(pub.Abstract, "Radiologist scarcity") || !strings.Contains(pub.Abstract, "0.94 AUC") {
		t.Errorf("abstract sections not joined: %q", pub.Abstract)
	}
	if pub.Venue != "The Lancet Digital Health" {
		t.Errorf("venue = %q", pub.Venue)
	}
	if pub.DOI != "10.1000/demo.2825.0412" {
		t.Errorf("DOI = %q", pub.DOI)
	}
	if pub.Source != "pubmed" || pub.SourceID != "38914402" {
		t.Errorf("source = %q/%q", pub.Source, pub.SourceID)
	}
	if pub.URL != "https://pubmed.ncbi.nlm.nih.gov/38914402/" {
		t.Errorf("URL = %q", pub.URL)
	}
	if pub.Published == nil || !pub.Published.Equal(time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("published = %v", pub.Published)
	}
	if len(pub.Keywords) != 2 || pub.Keywords[0] != "Deep Learning" {
		t.Errorf("keywords = %v", pub.Keywords)
	}

	// Second fixture: collective author and a MedlineDate-only PubDate.
	typed, discard = source.Parse(mockPubmedRecords()[1])
	if discard != nil {
		t.Fatalf("unexpected discard: %s", discard)
	}
	pub = typed.(*Publication)
	if pub.Authors[0] != "KEMRI-Wellcome Trust Research Programme" {
		t.Errorf("collective author = %q", pub.Authors[0])
	}
	if pub.Year != 2025 {
		t.Errorf("year from MedlineDate = %d", pub.Year)
	}
	if pub.DOI != "" {
		t.Errorf("DOI = %q, want empty", pub.DOI)
	}
}

func TestPubmedParseDiscards(t *testing.T) {
	source := NewPubmedSource(PubmedOptions{MockMode: true, MinAfricanRelevance: 0.2, MinAIRelevance: 0.3})

	_, discard := source.Parse(RawRecord{Source: "pubmed", Payload: []byte("<PubmedArticle><MedlineCitation>")})
	if discard == nil || discard.Reason != DiscardValidationFailed {
		t.Fatalf("malformed article: discard = %v", discard)
	}

	noTitle := `<PubmedArticle><MedlineCitation><PMID>1</PMID><Article></Article></MedlineCitation></PubmedArticle>`
	_, discard = source.Parse(RawRecord{Source: "pubmed", Payload: []byte(noTitle)})
	if discard == nil || !strings.Contains(discard.Detail, "no title") {
		t.Fatalf("missing title: discard = %v", discard)
	}

	offTopic := `<PubmedArticle><MedlineCitation><PMID>2</PMID><Article><ArticleTitle>Hip replacement outcomes in Sweden.</ArticleTitle></Article></MedlineCitation></PubmedArticle>`
	_, discard = source.Parse(RawRecord{Source: "pubmed", Payload: []byte(offTopic)})
	if discard == nil || !strings.Contains(discard.Detail, "relevance below threshold") {
		t.Fatalf("off-topic article: discard = %v", discard)
	}
}

func TestPubmedMockMode(t *testing.T) {
	source := NewPubmedSource(PubmedOptions{MockMode: true, MinAfricanRelevance: 0.2, MinAIRelevance: 0.3})

	it, err := source.Fetch(context.Background(), QuerySpec{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if it.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", it.Len())
	}
	for {
		rec, ok := it.Next()
		if !ok {
			break
		}
		if _, discard := source.Parse(rec); discard != nil {
			t.Errorf("fixture %s discarded: %s", rec.ID, discard)
		}
	}
}

func TestPubmedTerm(t *testing.T) {
	term := pubmedTerm(QuerySpec{})
	if !strings.Contains(term, `"artificial intelligence"[Title/Abstract]`) {
		t.Errorf("term missing AI group: %q", term)
	}
	if !strings.Contains(term, `"Nigeria"[Title/Abstract]`) {
		t.Errorf("term missing African group: %q", term)
	}

	term = pubmedTerm(QuerySpec{Terms: []string{"telemedicine"}})
	if !strings.Contains(term, `"telemedicine"[Title/Abstract]`) {
		t.Errorf("term missing caller group: %q", term)
	}
}

func TestParsePubDate(t *testing.T) {
	tests := []struct {
		year, month, day, medline string
		want                      string
		wantYear                  int
	}{
		{"2025", "Apr", "15", "", "2025-04-15", 2025},
		{"2025", "4", "", "", "2025-04-01", 2025},
		{"", "", "", "2024 Jan-Feb", "2024-01-01", 2024},
		{"2025", "13", "40", "", "2025-01-01", 2025},
		{"", "", "", "", "", 0},
	}
	for _, tt := range tests {
		got, year := parsePubDate(tt.year, tt.month, tt.day, tt.medline)
		if tt.want == "" {
			if got != nil || year != 0 {
				t.Errorf("parsePubDate(%q,%q,%q,%q) = %v, %d; want nil", tt.year, tt.month, tt.day, tt.medline, got, year)
			}
			continue
		}
		if got == nil || got.Format("2006-01-02") != tt.want || year != tt.wantYear {
			t.Errorf("parsePubDate(%q,%q,%q,%q) = %v, %d; want %s, %d", tt.year, tt.month, tt.day, tt.medline, got, year, tt.want, tt.wantYear)
		}
	}
}

func TestChunkStrings(t *testing.T) {
	tests := []struct {
		n    int
		want []int
	}{
		{0, nil},
		{5, []int{5}},
		{20, []int{20}},
		{21, []int{20, 1}},
		{45, []int{20, 20, 5}},
	}
	for _, tt := range tests {
		chunks := chunkStrings(testIDs(tt.n), 20)
		var sizes []int
		for _, c := range chunks {
			sizes = append(sizes, len(c))
		}
		if fmt.Sprint(sizes) != fmt.Sprint(tt.want) {
			t.Errorf("chunkStrings(%d ids) sizes = %v, want %v", tt.n, sizes, tt.want)
		}
	}
}
