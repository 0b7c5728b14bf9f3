// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package sources

import "time"

// Publication is the parse product of the academic adapters (arxiv, pubmed,
// scholar): the wire fields plus relevance scores. Identity, fingerprints,
// and timestamps are minted downstream when the record is admitted.
type Publication struct {
	Title           string
	Abstract        string
	Authors         []string
	Published       *time.Time
	Year            int
	Venue           string
	DOI             string
	Source          string
	SourceID        string
	URL             string
	Keywords        []string
	CitedBy         int
	AfricanEntities []string
	AfricanScore    float64
	AIScore         float64
}

// NewsArticle is the parse product of the RSS monitor.
type NewsArticle struct {
	Title        string
	Link         string
	Summary      string
	Feed         string
	Published    *time.Time
	AfricanScore float64
	AIScore      float64
}

// SearchHit is one ranked web-search result.
type SearchHit struct {
	Title    string
	Link     string
	Snippet  string
	Position int
}

// IntelReport is the raw product of one intelligence synthesis call: the
// provider's prose untouched, plus enough metadata to extract and attribute
// it downstream.
type IntelReport struct {
	ReportType      string
	TimePeriod      string
	GeographicFocus []string
	Text            string
	ResponseID      string
	Provider        string
	Model           string
	TokensUsed      int
	Citations       []string
}
