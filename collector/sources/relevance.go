// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package sources

import (
	"regexp"
	"strings"
)

// Relevance weights. Specificity ordering: an institution mention is
// stronger evidence than a country, a country stronger than a regional term,
// and a mention that appears only in the author line weakest of all.
const (
	institutionWeight = 0.3
	countryWeight     = 0.2
	regionWeight      = 0.15
	affiliationWeight = 0.1

	aiHighWeight     = 0.25
	aiStandardWeight = 0.1
	aiCategoryWeight = 0.3
)

// africanCountries lists every African country in display form. Longer
// variants precede their substrings (South Sudan before Sudan) so the
// substring guard in the scorer credits the more specific name.
var africanCountries = []string{
	"Algeria", "Angola", "Benin", "Botswana", "Burkina Faso", "Burundi",
	"Cabo Verde", "Cape Verde", "Cameroon", "Central African Republic",
	"Chad", "Comoros", "Democratic Republic of the Congo", "Congo",
	"Côte d'Ivoire", "Cote d'Ivoire", "Ivory Coast", "Djibouti", "Egypt",
	"Equatorial Guinea", "Guinea-Bissau", "Guinea", "Eritrea", "Eswatini",
	"Ethiopia", "Gabon", "Gambia", "Ghana", "Kenya", "Lesotho", "Liberia",
	"Libya", "Madagascar", "Malawi", "Mali", "Mauritania", "Mauritius",
	"Morocco", "Mozambique", "Namibia", "Nigeria", "Niger", "Rwanda",
	"São Tomé and Príncipe", "Sao Tome", "Senegal", "Seychelles",
	"Sierra Leone", "Somalia", "South Africa", "South Sudan", "Sudan",
	"Tanzania", "Togo", "Tunisia", "Uganda", "Zambia", "Zimbabwe",
}

// africanInstitutions are universities, research groups, and ecosystem
// organizations whose presence marks a work as African AI regardless of
// which country it names.
var africanInstitutions = []string{
	"University of Cape Town", "Stellenbosch University",
	"University of the Witwatersrand", "University of Pretoria",
	"Makerere University", "University of Nairobi", "Strathmore University",
	"Cairo University", "American University in Cairo",
	"Mohammed VI Polytechnic University", "University of Lagos",
	"University of Ibadan", "Covenant University", "Ashesi University",
	"University of Ghana", "Kwame Nkrumah University",
	"Addis Ababa University", "University of Rwanda",
	"Carnegie Mellon University Africa",
	"African Institute for Mathematical Sciences", "Masakhane",
	"Deep Learning Indaba", "Data Science Nigeria", "Zindi", "InstaDeep",
	"Lelapa AI",
}

// africanRegionalTerms are weaker geographic signals. African languages are
// included: a paper on Swahili or Yoruba NLP is African work even when no
// country is named.
// Longer forms lead so Pan-African does not additionally credit African.
var africanRegionalTerms = []string{
	"Pan-African", "African", "Africa", "Sub-Saharan", "Maghreb", "Sahel",
	"Swahili", "Yoruba", "Hausa", "Amharic", "Igbo", "Zulu", "Xhosa",
	"Wolof", "Afrikaans",
}

// africanQueryTerms is the compact high-signal subset the feed adapters put
// in their boolean queries; scoring always uses the full tables above.
var africanQueryTerms = []string{
	"Africa", "African", "Nigeria", "Kenya", "South Africa", "Egypt",
	"Ghana", "Ethiopia", "Morocco", "Rwanda", "Senegal", "Tunisia",
	"Uganda", "Tanzania",
}

var aiTermsHighValue = []string{
	"artificial intelligence", "machine learning", "deep learning",
	"neural network", "natural language processing", "computer vision",
	"reinforcement learning", "large language model", "generative ai",
	"speech recognition",
}

var aiTermsStandard = []string{
	"ai", "nlp", "llm", "chatbot", "data science", "predictive model",
	"image classification", "object detection", "federated learning",
	"transfer learning", "text mining", "sentiment analysis",
	"recommender system", "language model", "automl",
}

// aiCategories whitelists arxiv categories and pubmed MeSH descriptors that
// mark a work as AI regardless of phrasing.
var aiCategories = map[string]bool{
	"cs.ai":   true,
	"cs.lg":   true,
	"cs.cl":   true,
	"cs.cv":   true,
	"cs.ne":   true,
	"cs.ir":   true,
	"cs.ro":   true,
	"cs.ma":   true,
	"stat.ml": true,
	"eess.as": true,
	"eess.iv": true,

	"artificial intelligence":     true,
	"machine learning":            true,
	"deep learning":               true,
	"neural networks, computer":   true,
	"natural language processing": true,
	"supervised machine learning": true,
}

// relevanceTerm pairs a display name with its word-boundary matcher, so that
// Niger never matches inside Nigeria.
type relevanceTerm struct {
	display string
	re      *regexp.Regexp
}

func compileTerms(terms []string) []relevanceTerm {
	out := make([]relevanceTerm, 0, len(terms))
	for _, t := range terms {
		out = append(out, relevanceTerm{
			display: t,
			re:      regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(t)) + `\b`),
		})
	}
	return out
}

var (
	countryTerms     = compileTerms(africanCountries)
	institutionTerms = compileTerms(africanInstitutions)
	regionalTerms    = compileTerms(africanRegionalTerms)
	aiHighTerms      = compileTerms(aiTermsHighValue)
	aiStandardTerms  = compileTerms(aiTermsStandard)

	canonicalCountries = func() map[string]string {
		m := make(map[string]string, len(africanCountries))
		for _, c := range africanCountries {
			m[strings.ToLower(c)] = c
		}
		return m
	}()

	canonicalInstitutions = func() map[string]string {
		m := make(map[string]string, len(africanInstitutions))
		for _, i := range africanInstitutions {
			m[strings.ToLower(i)] = i
		}
		return m
	}()
)

// AfricanRelevance scores how strongly text (title plus abstract) and the
// author line tie a work to Africa, capped at 1.0, and returns the matched
// countries and institutions. A term already covered by a longer match is
// not credited again: South Africa does not also count as Africa.
func AfricanRelevance(text, authors string) (float64, []string) {
	lower := strings.ToLower(text)
	lowerAuthors := strings.ToLower(authors)

	var (
		score    float64
		entities []string
		matched  []string
	)

	covered := func(term string) bool {
		for _, m := range matched {
			if strings.Contains(m, term) {
				return true
			}
		}
		return false
	}

	apply := func(terms []relevanceTerm, weight float64, entity bool) {
		for _, t := range terms {
			key := strings.ToLower(t.display)
			if covered(key) {
				continue
			}
			switch {
			case t.re.MatchString(lower):
				score += weight
			case t.re.MatchString(lowerAuthors):
				score += affiliationWeight
			default:
				continue
			}
			matched = append(matched, key)
			if entity {
				entities = append(entities, t.display)
			}
		}
	}

	apply(institutionTerms, institutionWeight, true)
	apply(countryTerms, countryWeight, true)
	apply(regionalTerms, regionWeight, false)

	if score > 1 {
		score = 1
	}
	return score, entities
}

// AIRelevance scores how strongly text and its source categories tie a work
// to AI, capped at 1.0.
func AIRelevance(text string, categories []string) float64 {
	lower := strings.ToLower(text)

	var score float64
	for _, t := range aiHighTerms {
		if t.re.MatchString(lower) {
			score += aiHighWeight
		}
	}
	for _, t := range aiStandardTerms {
		if t.re.MatchString(lower) {
			score += aiStandardWeight
		}
	}
	for _, c := range categories {
		if aiCategories[strings.ToLower(strings.TrimSpace(c))] {
			score += aiCategoryWeight
		}
	}

	if score > 1 {
		score = 1
	}
	return score
}

// CountriesIn returns the canonical African countries mentioned in text.
// A mention already covered by a longer match is not repeated: South Sudan
// does not also report Sudan.
func CountriesIn(text string) []string {
	lower := strings.ToLower(text)

	var out []string
	var matched []string
	for _, t := range countryTerms {
		key := strings.ToLower(t.display)
		covered := false
		for _, m := range matched {
			if strings.Contains(m, key) {
				covered = true
				break
			}
		}
		if covered || !t.re.MatchString(lower) {
			continue
		}
		matched = append(matched, key)
		out = append(out, t.display)
	}
	return out
}

// IsAfricanCountry reports whether name, in any casing, is an African
// country.
func IsAfricanCountry(name string) bool {
	_, ok := canonicalCountries[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// KnownAfricanInstitution reports whether name matches one of the tracked
// African universities and ecosystem organizations.
func KnownAfricanInstitution(name string) bool {
	_, ok := canonicalInstitutions[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// CanonicalCountry normalizes a country mention to its display form.
func CanonicalCountry(name string) (string, bool) {
	c, ok := canonicalCountries[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// AfricanCountries returns the canonical country display names.
func AfricanCountries() []string {
	out := make([]string, len(africanCountries))
	copy(out, africanCountries)
	return out
}
