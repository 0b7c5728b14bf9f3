// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"regexp"
	"strings"

	"baobab/platform/collector/sources"
	"baobab/platform/shared/types"
)

const (
	defaultSummarySentences = 3
	minSalientSentenceLen   = 40
	minParagraphLen         = 40
	maxKeyFindings          = 10
	maxListedUpdates        = 10
)

// Extractor mines the structured fields of an intelligence report out of
// free-form LLM prose. It is stateless and safe for concurrent use.
type Extractor struct {
	summarySentences int
}

// NewExtractor creates an extractor with the default summary length.
func NewExtractor() *Extractor {
	return &Extractor{summarySentences: defaultSummarySentences}
}

// enumeratedLineRe matches "1. finding", "2) finding", and bulleted lines.
var enumeratedLineRe = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s+(.+)$`)

// keyFindingRe drives the fallback when prose has no enumeration markers.
// Word boundaries matter: "ai" must not fire inside "raised".
var keyFindingRe = regexp.MustCompile(`(?i)\b(?:ai|innovations?|startups?|funding|research)\b`)

// policyRe marks a sentence as regulatory or governmental news. "bill" is
// word-bounded so "billion" never reads as legislation.
var policyRe = regexp.MustCompile(`(?i)(?:\b(?:policy|policies|regulations?|regulatory|bill|ministry|government|commission|framework)\b|(?:national|ai|digital) strategy)`)

// Extract parses raw prose into a report skeleton: summary, key findings,
// structured findings, sources, citations, derived entity lists, and the
// report confidence score. Identity fields (ReportID, ReportType, Title,
// Provider, timestamps) are the caller's to set.
func (e *Extractor) Extract(raw string) *types.IntelligenceReport {
	report := &types.IntelligenceReport{}
	text := strings.TrimSpace(raw)
	if text == "" {
		report.ValidationFlags = []string{"empty_report"}
		return report
	}

	sentences := splitSentences(text)
	report.Summary = e.buildSummary(sentences)
	report.KeyFindings = extractKeyFindings(text, sentences)
	report.StructuredFindings = extractStructuredFindings(text)
	report.Sources = extractSources(text)
	report.ExtractedCitations = extractCitations(text)
	report.FundingUpdates = fundingSentences(sentences)
	report.PolicyDevelopments = policySentences(sentences)

	for _, f := range report.StructuredFindings {
		report.InnovationsMentioned = appendUnique(report.InnovationsMentioned, f.Companies...)
		report.GeographicFocus = appendUnique(report.GeographicFocus, f.Locations...)
	}

	report.ConfidenceScore = reportConfidence(text, report)
	report.ValidationFlags = validationFlags(text, report)
	return report
}

// buildSummary takes the first salient sentences: long enough to carry a
// claim and not an enumeration item, which belongs in key findings.
func (e *Extractor) buildSummary(sentences []string) string {
	var picked []string
	for _, s := range sentences {
		if len(s) < minSalientSentenceLen || enumeratedLineRe.MatchString(s) {
			continue
		}
		picked = append(picked, s)
		if len(picked) == e.summarySentences {
			break
		}
	}
	return strings.Join(picked, " ")
}

// extractKeyFindings collects enumerated and bulleted lines; when the prose
// has none it falls back to sentences that mention the domain's subjects.
func extractKeyFindings(text string, sentences []string) []string {
	var findings []string
	for _, line := range strings.Split(text, "\n") {
		m := enumeratedLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		finding := strings.TrimSpace(m[1])
		if finding == "" {
			continue
		}
		findings = append(findings, finding)
		if len(findings) == maxKeyFindings {
			return findings
		}
	}
	if len(findings) > 0 {
		return findings
	}

	for _, s := range sentences {
		if len(s) < minSalientSentenceLen {
			continue
		}
		if keyFindingRe.MatchString(s) {
			findings = append(findings, s)
		}
		if len(findings) == maxKeyFindings {
			break
		}
	}
	return findings
}

// extractStructuredFindings tags each paragraph with the entities the
// pattern tables detect in it. Paragraphs with no entities are dropped.
func extractStructuredFindings(text string) []types.StructuredFinding {
	var findings []types.StructuredFinding
	for _, para := range splitParagraphs(text) {
		if len(para) < minParagraphLen {
			continue
		}

		finding := types.StructuredFinding{
			Paragraph: para,
			Companies: companyCandidates(para),
			Locations: sources.CountriesIn(para),
		}
		for _, m := range amountPattern.Matches(para) {
			finding.FundingAmounts = append(finding.FundingAmounts, ParseAmount(m.Value))
		}
		for _, m := range roundPattern.Matches(para) {
			if round := CanonicalRoundType(m.Value); round != "" {
				finding.RoundTypes = appendUnique(finding.RoundTypes, round)
			}
		}
		for _, m := range institutionPattern.Matches(para) {
			finding.Institutions = appendUnique(finding.Institutions, m.Value)
		}

		kinds := countEntityKinds(finding)
		if kinds == 0 {
			continue
		}
		finding.Confidence = clamp01(0.4 + 0.15*float64(kinds))
		findings = append(findings, finding)
	}
	return findings
}

// extractSources returns every URL in the text, cleaned of trailing
// punctuation and deduplicated in first-appearance order.
func extractSources(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range urlPattern.Matches(text) {
		u := CleanURL(m.Value)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// extractCitations mines every bibliographic pointer with its surrounding
// context, deduplicated by the cleaned raw value.
func extractCitations(text string) []types.ExtractedCitation {
	var out []types.ExtractedCitation
	seen := make(map[string]bool)
	for _, p := range citationPatterns {
		for _, m := range p.Matches(text) {
			raw := m.Value
			switch p.Name {
			case "url":
				raw = CleanURL(raw)
			case "doi":
				raw = strings.TrimRight(raw, ".,;:)")
			}
			if raw == "" || seen[raw] {
				continue
			}
			seen[raw] = true
			out = append(out, types.ExtractedCitation{
				Raw:        raw,
				Context:    m.Context,
				Resolution: types.CitationUnresolved,
				Confidence: m.Confidence,
			})
		}
	}
	return out
}

func fundingSentences(sentences []string) []string {
	var out []string
	for _, s := range sentences {
		if len(amountPattern.Matches(s)) == 0 {
			continue
		}
		out = append(out, s)
		if len(out) == maxListedUpdates {
			break
		}
	}
	return out
}

func policySentences(sentences []string) []string {
	var out []string
	for _, s := range sentences {
		if len(s) < minSalientSentenceLen {
			continue
		}
		if !policyRe.MatchString(s) {
			continue
		}
		out = append(out, s)
		if len(out) == maxListedUpdates {
			break
		}
	}
	return out
}

// reportConfidence weighs content length, finding count, entity kind
// diversity, and source presence, clamped to [0,1].
func reportConfidence(text string, report *types.IntelligenceReport) float64 {
	length := float64(len(text)) / 2000
	if length > 1 {
		length = 1
	}

	findings := float64(len(report.StructuredFindings)) / 5
	if findings > 1 {
		findings = 1
	}

	kindSet := make(map[string]bool)
	for _, f := range report.StructuredFindings {
		if len(f.Companies) > 0 {
			kindSet["companies"] = true
		}
		if len(f.Locations) > 0 {
			kindSet["locations"] = true
		}
		if len(f.FundingAmounts) > 0 {
			kindSet["amounts"] = true
		}
		if len(f.RoundTypes) > 0 {
			kindSet["rounds"] = true
		}
		if len(f.Institutions) > 0 {
			kindSet["institutions"] = true
		}
	}
	kinds := float64(len(kindSet)) / 5

	var urls float64
	if len(report.Sources) > 0 {
		urls = 1
	}

	return clamp01(0.3*length + 0.3*findings + 0.2*kinds + 0.2*urls)
}

func validationFlags(text string, report *types.IntelligenceReport) []string {
	var flags []string
	if len(text) < 200 {
		flags = append(flags, "low_content")
	}
	if len(report.Sources) == 0 {
		flags = append(flags, "no_sources")
	}
	if len(report.StructuredFindings) == 0 {
		flags = append(flags, "no_structured_findings")
	}
	return flags
}

func countEntityKinds(f types.StructuredFinding) int {
	kinds := 0
	if len(f.Companies) > 0 {
		kinds++
	}
	if len(f.Locations) > 0 {
		kinds++
	}
	if len(f.FundingAmounts) > 0 {
		kinds++
	}
	if len(f.RoundTypes) > 0 {
		kinds++
	}
	if len(f.Institutions) > 0 {
		kinds++
	}
	return kinds
}

// sentenceEndRe splits after terminal punctuation followed by whitespace.
// Common abbreviations and decimal points survive because they are not
// followed by a space plus capital or digit boundary in practice; the
// splitter favors recall over precision, which summary selection tolerates.
var sentenceEndRe = regexp.MustCompile(`([.!?])\s+`)

// splitSentences breaks prose into trimmed sentences, treating newlines as
// hard breaks.
func splitSentences(text string) []string {
	marked := sentenceEndRe.ReplaceAllString(text, "$1\n")
	var out []string
	for _, line := range strings.Split(marked, "\n") {
		s := strings.TrimSpace(line)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitParagraphs splits on blank lines; a text without any falls back to
// single-newline blocks so flat LLM output still yields findings.
func splitParagraphs(text string) []string {
	sep := "\n\n"
	if !strings.Contains(text, sep) {
		sep = "\n"
	}
	var out []string
	for _, chunk := range strings.Split(text, sep) {
		p := strings.TrimSpace(chunk)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		dup := false
		for _, have := range list {
			if have == v {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, v)
		}
	}
	return list
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
