// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"regexp"
	"strconv"
	"strings"

	"baobab/platform/collector/sources"
	"baobab/platform/shared/types"
)

// ExtractionPattern is one compiled rule for mining structure out of
// free-form intelligence prose. The Validator inspects the surrounding
// context and returns whether the match should be kept and at what
// confidence; when it is nil the base Confidence applies.
type ExtractionPattern struct {
	Name          string
	Pattern       *regexp.Regexp
	Validator     func(match, context string) (bool, float64)
	Confidence    float64
	ContextWindow int
}

// PatternMatch is a single accepted match with its surrounding context.
type PatternMatch struct {
	Pattern    string
	Value      string
	Context    string
	Confidence float64
	Start      int
	End        int
}

// Matches scans text and returns every match the validator accepts.
func (p *ExtractionPattern) Matches(text string) []PatternMatch {
	var out []PatternMatch
	for _, loc := range p.Pattern.FindAllStringIndex(text, -1) {
		value := text[loc[0]:loc[1]]
		context := contextWindow(text, loc[0], loc[1], p.ContextWindow)

		confidence := p.Confidence
		if p.Validator != nil {
			ok, c := p.Validator(value, context)
			if !ok {
				continue
			}
			confidence = c
		}

		out = append(out, PatternMatch{
			Pattern:    p.Name,
			Value:      value,
			Context:    context,
			Confidence: confidence,
			Start:      loc[0],
			End:        loc[1],
		})
	}
	return out
}

// contextWindow returns the text around [start,end) clipped to the bounds.
func contextWindow(text string, start, end, window int) string {
	from := start - window
	if from < 0 {
		from = 0
	}
	to := end + window
	if to > len(text) {
		to = len(text)
	}
	return text[from:to]
}

// amountRe captures a currency marker, a grouped number, and an optional
// magnitude word. Longer currency alternatives precede their prefixes so
// "US$" never matches as a bare "$".
var amountRe = regexp.MustCompile(`(?i)(US\$|USD|\$|EUR|€|GBP|£|NGN|₦|KSh|KES|ZAR)\s?(\d{1,3}(?:,\d{3})*(?:\.\d+)?|\d+(?:\.\d+)?)\s?(million|billion|thousand|bn|mn|[kmb])?\b`)

var magnitudeFactors = map[string]float64{
	"k": 1e3, "thousand": 1e3,
	"m": 1e6, "mn": 1e6, "million": 1e6,
	"b": 1e9, "bn": 1e9, "billion": 1e9,
}

var usdMarkers = map[string]bool{"$": true, "us$": true, "usd": true}

// fundingContextTerms mark the surrounding text as money-raising prose
// rather than pricing or revenue.
var fundingContextTerms = []string{
	"raise", "round", "funding", "invest", "secured", "grant", "backed",
	"financing", "valuation", "closed",
}

var nonFundingContextTerms = []string{
	"per month", "per user", "salary", "price", "fee", "subscription",
	"costs $", "revenue of",
}

// ParseAmount parses a matched money string. Only dollar-denominated
// amounts get a USD value; other currencies keep their original text with
// Parsed false so nothing is silently converted at a made-up rate.
func ParseAmount(text string) types.AmountMatch {
	m := amountRe.FindStringSubmatch(text)
	if m == nil {
		return types.AmountMatch{Text: text}
	}
	out := types.AmountMatch{Text: strings.TrimSpace(m[0])}
	if !usdMarkers[strings.ToLower(m[1])] {
		return out
	}

	value, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
	if err != nil || value <= 0 {
		return out
	}
	if factor, ok := magnitudeFactors[strings.ToLower(m[3])]; ok {
		value *= factor
	}
	out.USD = value
	out.Parsed = true
	return out
}

func validateAmount(match, context string) (bool, float64) {
	parsed := ParseAmount(match)
	lower := strings.ToLower(context)

	if containsAny(lower, nonFundingContextTerms) {
		return false, 0.2
	}
	if containsAny(lower, fundingContextTerms) {
		return true, 0.95
	}
	// A magnitude word is strong evidence on its own; a small bare figure
	// with no funding verbs nearby is usually a price.
	m := amountRe.FindStringSubmatch(match)
	if m != nil && m[3] != "" {
		return true, 0.8
	}
	if parsed.Parsed && parsed.USD < 10_000 {
		return false, 0.4
	}
	return true, 0.7
}

// urlRe matches http(s) URLs and bare www hosts. Trailing sentence
// punctuation is stripped afterwards by CleanURL.
var urlRe = regexp.MustCompile(`(?:https?://|www\.)[^\s<>"')\]]+`)

// CleanURL strips the sentence punctuation that prose attaches to a URL.
func CleanURL(raw string) string {
	return strings.TrimRight(raw, `.,;:!?'")`)
}

func validateURL(match, _ string) (bool, float64) {
	clean := CleanURL(match)
	host := strings.TrimPrefix(strings.TrimPrefix(clean, "https://"), "http://")
	host = strings.TrimPrefix(host, "www.")
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if !strings.Contains(host, ".") {
		return false, 0
	}
	return true, 0.9
}

// roundRe matches funding stage names, optionally followed by the noun that
// usually accompanies them.
var (
	roundRe     = regexp.MustCompile(`(?i)\b(pre-seed|seed|series\s+[a-e]|angel|bridge|grant|venture debt)(\s+(?:round|funding|financing|investment|extension))?\b`)
	roundNounRe = regexp.MustCompile(`(?i)\b(round|funding|financing|investment|extension)\b`)
)

// validateRound rejects stage words that appear outside funding prose.
// "Seed" and "grant" are ordinary words in agricultural and research text,
// which this corpus is full of. The stage word itself is cut out of the
// context before the money check so "grant" never vouches for itself.
func validateRound(match, context string) (bool, float64) {
	matchLower := strings.ToLower(strings.TrimSpace(match))
	lower := strings.Replace(strings.ToLower(context), matchLower, "", 1)

	hasNoun := roundNounRe.MatchString(matchLower)
	hasMoney := containsAny(lower, fundingContextTerms) || amountRe.MatchString(context)

	switch {
	case hasNoun && hasMoney:
		return true, 0.95
	case hasNoun || strings.HasPrefix(matchLower, "series") || strings.HasPrefix(matchLower, "pre-seed"):
		return true, 0.8
	case hasMoney:
		return true, 0.7
	default:
		return false, 0.3
	}
}

// CanonicalRoundType normalizes a matched stage to its storage form:
// "Series A extension" becomes "series_a".
func CanonicalRoundType(match string) string {
	m := roundRe.FindStringSubmatch(match)
	if m == nil {
		return ""
	}
	stage := strings.ToLower(strings.Join(strings.Fields(m[1]), " "))
	stage = strings.ReplaceAll(stage, " ", "_")
	return strings.ReplaceAll(stage, "-", "_")
}

// institutionRe matches "University of X" style names and "X University"
// style names, including Institute, Polytechnic, College, and Foundation.
var institutionRe = regexp.MustCompile(`\b(?:University of [A-Z][\w'-]+(?: [A-Z][\w'-]+)*|[A-Z][\w'-]+(?: [A-Z][\w'-]+)* (?:University|Institute|Polytechnic|College|Laboratory|Foundation)(?:(?: of| for)? [A-Z][\w'-]+(?: [A-Z][\w'-]+)*)?)\b`)

func validateInstitution(match, _ string) (bool, float64) {
	if sources.KnownAfricanInstitution(match) {
		return true, 0.95
	}
	if len(strings.Fields(match)) < 2 {
		return false, 0
	}
	return true, 0.7
}

// doiRe, arxivRefRe, and authorYearRe cover the bibliographic pointer
// shapes LLM output actually produces: bare DOIs, arXiv identifiers, and
// "Okafor et al. (2023)" style references.
var (
	doiRe        = regexp.MustCompile(`\b10\.\d{4,9}/[-._;()/:A-Za-z0-9]+`)
	arxivRefRe   = regexp.MustCompile(`(?i)\barxiv:\s?\d{4}\.\d{4,5}(?:v\d+)?\b`)
	authorYearRe = regexp.MustCompile(`\b[A-Z][a-z]+(?: (?:et al\.|and [A-Z][a-z]+))? \((?:19|20)\d{2}\)`)
)

func validateDOI(match, _ string) (bool, float64) {
	// DOIs picked up mid-sentence drag trailing punctuation along.
	clean := strings.TrimRight(match, ".,;:)")
	if len(clean) < 10 {
		return false, 0
	}
	return true, 0.95
}

func validateAuthorYear(match, context string) (bool, float64) {
	open := strings.Index(match, "(")
	year, err := strconv.Atoi(match[open+1 : open+5])
	if err != nil || year < 1900 || year > 2035 {
		return false, 0
	}
	lower := strings.ToLower(context)
	if containsAny(lower, []string{"study", "paper", "research", "published", "report", "according to", "et al"}) {
		return true, 0.85
	}
	return true, 0.6
}

// companyRe matches capitalized word runs: CamelCase brand names, regular
// capitalized words, and short all-caps acronyms, up to four words.
var companyRe = regexp.MustCompile(`\b(?:[A-Z][A-Za-z0-9]*[a-z0-9][A-Za-z0-9]*|[A-Z]{2,6})(?:[ ](?:[A-Z][A-Za-z0-9]*[a-z0-9][A-Za-z0-9]*|[A-Z]{2,6})){0,3}\b`)

// companyTriggers are the words whose proximity turns a capitalized run
// into a company candidate.
var companyTriggers = []string{"startup", "founded", "launch", "company", "fintech", "venture", "co-founded", "builds", "spun out"}

// companyStopwords are capitalized sentence furniture and domain nouns that
// the company matcher must never emit, alone or as a leading word.
var companyStopwords = map[string]bool{
	"The": true, "This": true, "That": true, "These": true, "Those": true,
	"In": true, "On": true, "At": true, "It": true, "Its": true, "A": true,
	"An": true, "As": true, "By": true, "For": true, "From": true,
	"We": true, "They": true, "Their": true, "Our": true, "Series": true,
	"African": true, "Africa": true, "University": true, "Institute": true,
	"January": true, "February": true, "March": true, "April": true,
	"May": true, "June": true, "July": true, "August": true,
	"September": true, "October": true, "November": true, "December": true,
	"AI": true, "ML": true, "NLP": true, "USD": true, "API": true,
}

func validateCompany(match, context string) (bool, float64) {
	if sources.IsAfricanCountry(match) {
		return false, 0
	}
	words := strings.Fields(match)
	allStop := true
	for _, w := range words {
		if !companyStopwords[w] {
			allStop = false
			break
		}
	}
	if allStop {
		return false, 0
	}

	lower := strings.ToLower(context)
	if !containsAny(lower, companyTriggers) {
		return false, 0.3
	}
	return true, 0.6
}

// trimCompanyName strips stopwords off either end of a matched run, so
// "The Flutterwave" and "Flutterwave In" both come out as "Flutterwave".
func trimCompanyName(match string) string {
	words := strings.Fields(match)
	for len(words) > 0 && companyStopwords[words[0]] {
		words = words[1:]
	}
	for len(words) > 0 && companyStopwords[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// The pattern tables. Each entry is independently testable; the extractor
// composes them per paragraph.
var (
	amountPattern = &ExtractionPattern{
		Name:          "funding_amount",
		Pattern:       amountRe,
		Validator:     validateAmount,
		Confidence:    0.7,
		ContextWindow: 60,
	}
	urlPattern = &ExtractionPattern{
		Name:          "source_url",
		Pattern:       urlRe,
		Validator:     validateURL,
		Confidence:    0.9,
		ContextWindow: 80,
	}
	roundPattern = &ExtractionPattern{
		Name:          "round_type",
		Pattern:       roundRe,
		Validator:     validateRound,
		Confidence:    0.7,
		ContextWindow: 60,
	}
	institutionPattern = &ExtractionPattern{
		Name:          "institution",
		Pattern:       institutionRe,
		Validator:     validateInstitution,
		Confidence:    0.7,
		ContextWindow: 40,
	}
	companyPattern = &ExtractionPattern{
		Name:          "company",
		Pattern:       companyRe,
		Validator:     validateCompany,
		Confidence:    0.6,
		ContextWindow: 50,
	}

	citationPatterns = []*ExtractionPattern{
		{Name: "doi", Pattern: doiRe, Validator: validateDOI, Confidence: 0.95, ContextWindow: 80},
		{Name: "arxiv_id", Pattern: arxivRefRe, Confidence: 0.95, ContextWindow: 80},
		{Name: "author_year", Pattern: authorYearRe, Validator: validateAuthorYear, Confidence: 0.6, ContextWindow: 80},
		{Name: "url", Pattern: urlRe, Validator: validateURL, Confidence: 0.9, ContextWindow: 80},
	}
)

// companyCandidates returns cleaned, deduplicated company names found near
// founding language in text.
func companyCandidates(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range companyPattern.Matches(text) {
		name := trimCompanyName(m.Value)
		if name == "" || seen[name] || sources.IsAfricanCountry(name) {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
