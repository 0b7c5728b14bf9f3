// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package sources

import (
	"math"
	"testing"
)

func scoresClose(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAfricanRelevanceWordBoundaries(t *testing.T) {
	// Niger must not match inside Nigeria, and vice versa.
	score, entities := AfricanRelevance("Flood forecasting along the Niger river basin", "")
	if !scoresClose(score, countryWeight) {
		t.Errorf("score = %v, want %v", score, countryWeight)
	}
	if len(entities) != 1 || entities[0] != "Niger" {
		t.Errorf("entities = %v, want [Niger]", entities)
	}

	score, entities = AfricanRelevance("Nigeria's fintech sector adopts credit scoring models", "")
	if !scoresClose(score, countryWeight) {
		t.Errorf("score = %v, want %v", score, countryWeight)
	}
	if len(entities) != 1 || entities[0] != "Nigeria" {
		t.Errorf("entities = %v, want [Nigeria]", entities)
	}
}

func TestAfricanRelevanceSubstringGuard(t *testing.T) {
	// South Africa must not additionally credit the regional term Africa.
	score, entities := AfricanRelevance("Load shedding prediction in South Africa", "")
	if !scoresClose(score, countryWeight) {
		t.Errorf("score = %v, want country weight only, got extra credit", score)
	}
	if len(entities) != 1 || entities[0] != "South Africa" {
		t.Errorf("entities = %v, want [South Africa]", entities)
	}

	// South Sudan outranks Sudan for the same span.
	_, entities = AfricanRelevance("Conflict early warning in South Sudan", "")
	if len(entities) != 1 || entities[0] != "South Sudan" {
		t.Errorf("entities = %v, want [South Sudan]", entities)
	}
}

func TestAfricanRelevanceAdjectivalForms(t *testing.T) {
	// The adjective must score even when no country or continent noun
	// appears: "11 African languages" is African work.
	score, _ := AfricanRelevance("A multilingual corpus covering 11 African languages", "")
	if !scoresClose(score, regionWeight) {
		t.Errorf("score = %v, want %v", score, regionWeight)
	}

	// Pan-African credits once, not once for itself and once for African.
	score, _ = AfricanRelevance("A pan-African research network for speech technology", "")
	if !scoresClose(score, regionWeight) {
		t.Errorf("pan-African score = %v, want single region credit %v", score, regionWeight)
	}
}

func TestAfricanRelevanceWeightOrdering(t *testing.T) {
	institution, _ := AfricanRelevance("A dataset released by Makerere University", "")
	country, _ := AfricanRelevance("A dataset collected in Uganda", "")
	region, _ := AfricanRelevance("A dataset for Swahili", "")

	if !(institution > country && country > region) {
		t.Errorf("want institution > country > region, got %v, %v, %v", institution, country, region)
	}
	if !scoresClose(institution, institutionWeight) {
		t.Errorf("institution score = %v, want %v", institution, institutionWeight)
	}
	if !scoresClose(region, regionWeight) {
		t.Errorf("region score = %v, want %v", region, regionWeight)
	}
}

func TestAfricanRelevanceAffiliationOnly(t *testing.T) {
	// A mention that appears only in the author line gets the weaker
	// affiliation weight.
	text := "Benchmarking gradient compression for federated optimization"
	score, entities := AfricanRelevance(text, "Jane Doe, University of Cape Town, Rondebosch")
	if !scoresClose(score, affiliationWeight) {
		t.Errorf("score = %v, want %v", score, affiliationWeight)
	}
	if len(entities) != 1 || entities[0] != "University of Cape Town" {
		t.Errorf("entities = %v, want [University of Cape Town]", entities)
	}

	// The same mention in the text proper gets the full weight.
	score, _ = AfricanRelevance(text+" at the University of Cape Town", "")
	if !scoresClose(score, institutionWeight) {
		t.Errorf("score = %v, want %v", score, institutionWeight)
	}
}

func TestAfricanRelevanceCapsAtOne(t *testing.T) {
	text := "Masakhane and Zindi ran challenges across Nigeria, Kenya, Ghana, Egypt, Senegal and Rwanda with Swahili and Yoruba tracks"
	score, _ := AfricanRelevance(text, "")
	if score != 1.0 {
		t.Errorf("score = %v, want capped at 1.0", score)
	}
}

func TestAfricanRelevanceNoSignal(t *testing.T) {
	score, entities := AfricanRelevance("Quantum error correction with surface codes", "MIT, Cambridge")
	if score != 0 {
		t.Errorf("score = %v, want 0", score)
	}
	if len(entities) != 0 {
		t.Errorf("entities = %v, want none", entities)
	}
}

func TestAIRelevanceTerms(t *testing.T) {
	if got := AIRelevance("deep learning for retinal imaging", nil); !scoresClose(got, aiHighWeight) {
		t.Errorf("high-value term score = %v, want %v", got, aiHighWeight)
	}
	if got := AIRelevance("an AI assistant for farmers", nil); !scoresClose(got, aiStandardWeight) {
		t.Errorf("standard term score = %v, want %v", got, aiStandardWeight)
	}
	if got := AIRelevance("a survey of bridge maintenance", nil); got != 0 {
		t.Errorf("score = %v, want 0", got)
	}
	// Plural trips the word boundary: "models" is not "model".
	if got := AIRelevance("we train several language models", nil); got != 0 {
		t.Errorf("score = %v, want 0 for plural-only mention", got)
	}
}

func TestAIRelevanceCategories(t *testing.T) {
	if got := AIRelevance("", []string{"cs.LG"}); !scoresClose(got, aiCategoryWeight) {
		t.Errorf("arxiv category score = %v, want %v", got, aiCategoryWeight)
	}
	if got := AIRelevance("", []string{"Machine Learning"}); !scoresClose(got, aiCategoryWeight) {
		t.Errorf("MeSH descriptor score = %v, want %v", got, aiCategoryWeight)
	}
	if got := AIRelevance("", []string{"math.PR", "Malaria"}); got != 0 {
		t.Errorf("unrelated categories score = %v, want 0", got)
	}
}

func TestAIRelevanceCapsAtOne(t *testing.T) {
	text := "machine learning, deep learning, computer vision, natural language processing and reinforcement learning"
	if got := AIRelevance(text, []string{"cs.AI", "cs.LG"}); got != 1.0 {
		t.Errorf("score = %v, want capped at 1.0", got)
	}
}

func TestIsAfricanCountry(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Kenya", true},
		{"kenya", true},
		{" South Africa ", true},
		{"Cote d'Ivoire", true},
		{"France", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsAfricanCountry(tt.name); got != tt.want {
			t.Errorf("IsAfricanCountry(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCanonicalCountry(t *testing.T) {
	got, ok := CanonicalCountry("south africa")
	if !ok || got != "South Africa" {
		t.Errorf("CanonicalCountry(south africa) = %q, %v", got, ok)
	}
	if _, ok := CanonicalCountry("atlantis"); ok {
		t.Error("CanonicalCountry(atlantis) should not resolve")
	}
}

func TestAfricanCountriesCopy(t *testing.T) {
	countries := AfricanCountries()
	if len(countries) == 0 {
		t.Fatal("expected country list")
	}
	countries[0] = "mutated"
	if AfricanCountries()[0] == "mutated" {
		t.Error("AfricanCountries must return a copy")
	}
}
