// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	pubmedDefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	pubmedBatchSize      = 20
	pubmedBatchWorkers   = 3
	pubmedDefaultMax     = 100
)

// pubmedAITerms is the AI disjunction of the esearch term. Biomedical works
// phrase AI differently from CS preprints, so the list differs from arxiv's.
var pubmedAITerms = []string{
	"artificial intelligence", "machine learning", "deep learning",
	"neural network", "natural language processing", "clinical decision support",
}

// PubmedOptions configures the biomedical index adapter.
type PubmedOptions struct {
	// Mediator dispatches the esearch and efetch calls. Required unless
	// MockMode.
	Mediator Caller

	// BaseURL overrides the public E-utilities endpoint. Optional.
	BaseURL string

	// Client overrides the HTTP transport. Optional.
	Client HTTPClient

	// APIKey raises the provider's rate allowance. Optional.
	APIKey string

	// Admission thresholds. Zero admits everything.
	MinAfricanRelevance float64
	MinAIRelevance      float64

	// MockMode serves canned records instead of calling the provider.
	MockMode bool
}

// PubmedSource reads the biomedical citation index in two phases: an esearch
// call returning a JSON id list, then efetch calls returning article XML in
// batches of twenty.
type PubmedSource struct {
	baseURL  string
	client   HTTPClient
	mediator Caller
	apiKey   string
	minAfr   float64
	minAI    float64
	mock     bool
}

// NewPubmedSource creates the biomedical index adapter.
func NewPubmedSource(opts PubmedOptions) *PubmedSource {
	if opts.BaseURL == "" {
		opts.BaseURL = pubmedDefaultBaseURL
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &PubmedSource{
		baseURL:  opts.BaseURL,
		client:   opts.Client,
		mediator: opts.Mediator,
		apiKey:   opts.APIKey,
		minAfr:   opts.MinAfricanRelevance,
		minAI:    opts.MinAIRelevance,
		mock:     opts.MockMode,
	}
}

// Name returns the mediator source name.
func (s *PubmedSource) Name() string { return "pubmed" }

// Fetch searches for matching PMIDs, then fetches article details in
// bounded-parallel batches. Batch order is preserved so records arrive in
// search-rank order; a failed batch degrades to partial results.
func (s *PubmedSource) Fetch(ctx context.Context, spec QuerySpec) (*RecordIterator, error) {
	if s.mock {
		return NewRecordIterator(mockPubmedRecords()), nil
	}

	max := spec.MaxResults
	if max <= 0 {
		max = pubmedDefaultMax
	}
	term := pubmedTerm(spec)

	ids, err := s.searchIDs(ctx, term, spec, max)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return NewRecordIterator(nil), nil
	}

	batches := chunkStrings(ids, pubmedBatchSize)
	results := make([][]RawRecord, len(batches))

	var mu sync.Mutex
	var failed int
	var firstErr error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pubmedBatchWorkers)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			recs, err := s.fetchBatch(gctx, batch)
			if err != nil {
				mu.Lock()
				failed++
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				log.Printf("[Sources] ⚠️  pubmed efetch batch %d/%d failed: %v", i+1, len(batches), err)
				return nil
			}
			results[i] = recs
			return nil
		})
	}
	_ = g.Wait()

	if failed == len(batches) {
		return nil, NewSourceError(s.Name(), "fetch", "all efetch batches failed", firstErr)
	}

	var records []RawRecord
	for _, recs := range results {
		records = append(records, recs...)
	}
	return NewRecordIterator(records), nil
}

func (s *PubmedSource) searchIDs(ctx context.Context, term string, spec QuerySpec, max int) ([]string, error) {
	params := map[string]any{"op": "esearch", "term": term, "retmax": max}
	if !spec.From.IsZero() {
		params["mindate"] = spec.From.UTC().Format("2006/01/02")
	}
	if !spec.To.IsZero() {
		params["maxdate"] = spec.To.UTC().Format("2006/01/02")
	}

	payload, err := s.mediator.Call(ctx, s.Name(), params, func(ctx context.Context) ([]byte, error) {
		return s.esearch(ctx, term, spec, max)
	})
	if err != nil {
		return nil, err
	}

	var res esearchResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, NewSourceError(s.Name(), "fetch", "decode esearch response", err)
	}
	ids := res.Result.IDList
	if len(ids) > max {
		ids = ids[:max]
	}
	return ids, nil
}

func (s *PubmedSource) esearch(ctx context.Context, term string, spec QuerySpec, max int) ([]byte, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", term)
	q.Set("retmode", "json")
	q.Set("retmax", strconv.Itoa(max))
	q.Set("sort", "pub_date")
	if !spec.From.IsZero() {
		q.Set("mindate", spec.From.UTC().Format("2006/01/02"))
		q.Set("datetype", "pdat")
	}
	if !spec.To.IsZero() {
		q.Set("maxdate", spec.To.UTC().Format("2006/01/02"))
		q.Set("datetype", "pdat")
	}
	if s.apiKey != "" {
		q.Set("api_key", s.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/esearch.fcgi?"+q.Encode(), nil)
	if err != nil {
		return nil, NewSourceError(s.Name(), "fetch", "failed to create esearch request", err)
	}
	req.Header.Set("Accept", "application/json")

	return doRequest(s.client, req)
}

func (s *PubmedSource) fetchBatch(ctx context.Context, ids []string) ([]RawRecord, error) {
	joined := strings.Join(ids, ",")
	params := map[string]any{"op": "efetch", "ids": joined}

	payload, err := s.mediator.Call(ctx, s.Name(), params, func(ctx context.Context) ([]byte, error) {
		return s.efetch(ctx, joined)
	})
	if err != nil {
		return nil, err
	}
	return splitPubmedArticles(s.Name(), payload)
}

func (s *PubmedSource) efetch(ctx context.Context, ids string) ([]byte, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", ids)
	q.Set("retmode", "xml")
	if s.apiKey != "" {
		q.Set("api_key", s.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/efetch.fcgi?"+q.Encode(), nil)
	if err != nil {
		return nil, NewSourceError(s.Name(), "fetch", "failed to create efetch request", err)
	}
	req.Header.Set("Accept", "application/xml")

	return doRequest(s.client, req)
}

// pubmedTerm builds the esearch boolean term over title/abstract fields.
func pubmedTerm(spec QuerySpec) string {
	group := func(terms []string) string {
		parts := make([]string, 0, len(terms))
		for _, t := range terms {
			parts = append(parts, fmt.Sprintf("%q[Title/Abstract]", t))
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	}

	term := group(pubmedAITerms) + " AND " + group(africanQueryTerms)
	if len(spec.Terms) > 0 {
		term += " AND " + group(spec.Terms)
	}
	return term
}

type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type pubmedEnvelope struct {
	Articles []pubmedArticleShell `xml:"PubmedArticle"`
}

type pubmedArticleShell struct {
	PMID string `xml:"MedlineCitation>PMID"`
	Raw  []byte `xml:",innerxml"`
}

func splitPubmedArticles(source string, payload []byte) ([]RawRecord, error) {
	var set pubmedEnvelope
	if err := xml.Unmarshal(payload, &set); err != nil {
		return nil, NewSourceError(source, "fetch", "decode efetch response", err)
	}

	records := make([]RawRecord, 0, len(set.Articles))
	for _, a := range set.Articles {
		var buf bytes.Buffer
		buf.WriteString("<PubmedArticle>")
		buf.Write(a.Raw)
		buf.WriteString("</PubmedArticle>")
		records = append(records, RawRecord{Source: source, ID: a.PMID, Payload: buf.Bytes()})
	}
	return records, nil
}

// pubmedArticle is the efetch article schema, reduced to the consumed
// fields.
type pubmedArticle struct {
	Citation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    string `xml:"ArticleTitle"`
			Abstract struct {
				Sections []string `xml:"AbstractText"`
			} `xml:"Abstract"`
			Authors []struct {
				LastName       string   `xml:"LastName"`
				ForeName       string   `xml:"ForeName"`
				CollectiveName string   `xml:"CollectiveName"`
				Affiliations   []string `xml:"AffiliationInfo>Affiliation"`
			} `xml:"AuthorList>Author"`
			Journal struct {
				Title string `xml:"Title"`
				Issue struct {
					PubDate struct {
						Year        string `xml:"Year"`
						Month       string `xml:"Month"`
						Day         string `xml:"Day"`
						MedlineDate string `xml:"MedlineDate"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
		} `xml:"Article"`
		Mesh []string `xml:"MeshHeadingList>MeshHeading>DescriptorName"`
	} `xml:"MedlineCitation"`
	Data struct {
		IDs []struct {
			Type  string `xml:"IdType,attr"`
			Value string `xml:",chardata"`
		} `xml:"ArticleIdList>ArticleId"`
	} `xml:"PubmedData"`
}

// Parse converts one PubmedArticle element into a Publication, or discards
// it when malformed or below the admission thresholds.
func (s *PubmedSource) Parse(raw RawRecord) (TypedRecord, *Discard) {
	var art pubmedArticle
	if err := xml.Unmarshal(raw.Payload, &art); err != nil {
		return nil, &Discard{Reason: DiscardValidationFailed, Detail: fmt.Sprintf("malformed article: %v", err)}
	}

	title := squashWhitespace(art.Citation.Article.Title)
	if title == "" {
		return nil, &Discard{Reason: DiscardValidationFailed, Detail: "article has no title"}
	}
	abstract := squashWhitespace(strings.Join(art.Citation.Article.Abstract.Sections, " "))

	var authors []string
	var affiliations []string
	for _, a := range art.Citation.Article.Authors {
		switch {
		case a.CollectiveName != "":
			authors = append(authors, squashWhitespace(a.CollectiveName))
		case a.LastName != "":
			authors = append(authors, squashWhitespace(strings.TrimSpace(a.ForeName+" "+a.LastName)))
		}
		for _, aff := range a.Affiliations {
			if aff = squashWhitespace(aff); aff != "" {
				affiliations = append(affiliations, aff)
			}
		}
	}

	var doi string
	for _, id := range art.Data.IDs {
		if strings.EqualFold(id.Type, "doi") {
			doi = strings.TrimSpace(id.Value)
			break
		}
	}

	text := title + " " + abstract
	authorLine := strings.Join(authors, " ") + " " + strings.Join(affiliations, " ")
	african, entities := AfricanRelevance(text, authorLine)
	ai := AIRelevance(text, art.Citation.Mesh)
	if african < s.minAfr || ai < s.minAI {
		return nil, &Discard{
			Reason: DiscardValidationFailed,
			Detail: fmt.Sprintf("relevance below threshold: african=%.2f ai=%.2f", african, ai),
		}
	}

	pd := art.Citation.Article.Journal.Issue.PubDate
	published, year := parsePubDate(pd.Year, pd.Month, pd.Day, pd.MedlineDate)

	pmid := art.Citation.PMID
	return &Publication{
		Title:           title,
		Abstract:        abstract,
		Authors:         authors,
		Published:       published,
		Year:            year,
		Venue:           squashWhitespace(art.Citation.Article.Journal.Title),
		DOI:             doi,
		Source:          s.Name(),
		SourceID:        pmid,
		URL:             "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/",
		Keywords:        art.Citation.Mesh,
		AfricanEntities: entities,
		AfricanScore:    african,
		AIScore:         ai,
	}, nil
}

// parsePubDate handles the index's loose date schema: Year/Month/Day
// elements when present, otherwise a MedlineDate like "2024 Jan-Feb".
func parsePubDate(year, month, day, medline string) (*time.Time, int) {
	y, _ := strconv.Atoi(year)
	if y == 0 && medline != "" {
		if fields := strings.Fields(medline); len(fields) > 0 {
			y, _ = strconv.Atoi(fields[0])
		}
	}
	if y == 0 {
		return nil, 0
	}

	m := time.January
	if month != "" {
		if n, err := strconv.Atoi(month); err == nil && n >= 1 && n <= 12 {
			m = time.Month(n)
		} else if t, err := time.Parse("Jan", month); err == nil {
			m = t.Month()
		}
	}

	d := 1
	if n, err := strconv.Atoi(day); err == nil && n >= 1 && n <= 31 {
		d = n
	}

	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t, y
}

// chunkStrings splits ids into batches of at most size.
func chunkStrings(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
