// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baobab/platform/shared/types"
)

func fundingProfile(entity string, usd float64, investors ...string) EventProfile {
	return EventProfile{
		Entity:    entity,
		EventType: EventFunding,
		AmountUSD: usd,
		Investors: investors,
	}
}

func TestClassifyRelationSameEntity(t *testing.T) {
	// The same raise reported twice with rounding noise.
	a := fundingProfile("PayCrest", 5_000_000)
	b := fundingProfile("paycrest", 5_200_000)
	assert.Equal(t, RelSameEvent, ClassifyRelation(a, b))

	// Materially different amounts are consecutive rounds.
	c := fundingProfile("PayCrest", 20_000_000)
	assert.Equal(t, RelSequentialFunding, ClassifyRelation(a, c))

	// Matching amounts months apart are also consecutive rounds.
	early := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC)
	d := fundingProfile("PayCrest", 5_000_000)
	d.Date = &early
	e := fundingProfile("PayCrest", 5_000_000)
	e.Date = &late
	assert.Equal(t, RelSequentialFunding, ClassifyRelation(d, e))

	// Unparsed amounts fall back to the round label.
	f := EventProfile{Entity: "PayCrest", EventType: EventFunding, Round: "seed"}
	g := EventProfile{Entity: "PayCrest", EventType: EventFunding, Round: "seed"}
	assert.Equal(t, RelSameEvent, ClassifyRelation(f, g))

	// Same entity, same non-funding event kind.
	h := EventProfile{Entity: "PayCrest", EventType: EventLaunch}
	i := EventProfile{Entity: "PayCrest", EventType: EventLaunch}
	assert.Equal(t, RelSameEvent, ClassifyRelation(h, i))

	// Same entity, unrelated event kinds.
	j := EventProfile{Entity: "PayCrest", EventType: EventPartnership}
	assert.Equal(t, RelEcosystemRelated, ClassifyRelation(h, j))
}

func TestClassifyRelationAcrossEntities(t *testing.T) {
	// A shared investor ties two raises together.
	a := fundingProfile("PayCrest", 5_000_000, "Partech")
	b := fundingProfile("Chipper", 8_000_000, "partech", "YC")
	assert.Equal(t, RelRelatedFunding, ClassifyRelation(a, b))

	// Cohort mates of one program.
	c := EventProfile{Entity: "AgriSense", EventType: EventProgram, Program: "Norrsken Accelerator"}
	d := EventProfile{Entity: "MediScan", EventType: EventProgram, Program: "norrsken accelerator"}
	assert.Equal(t, RelProgramBeneficiaries, ClassifyRelation(c, d))

	// One article names the other's entity as a partner.
	e := EventProfile{Entity: "MTN", EventType: EventPartnership, Partners: []string{"PayCrest"}}
	f := EventProfile{Entity: "PayCrest", EventType: EventPartnership}
	assert.Equal(t, RelRelatedPartnership, ClassifyRelation(e, f))

	// Same country and kind is only a weak ecosystem tie.
	g := EventProfile{Entity: "AgriSense", EventType: EventLaunch, Country: "Kenya"}
	h := EventProfile{Entity: "MediScan", EventType: EventLaunch, Country: "Kenya"}
	assert.Equal(t, RelEcosystemRelated, ClassifyRelation(g, h))

	// Nothing shared.
	i := EventProfile{Entity: "AgriSense", EventType: EventOther, Country: "Kenya"}
	j := EventProfile{Entity: "MediScan", EventType: EventOther, Country: "Nigeria"}
	assert.Equal(t, RelNone, ClassifyRelation(i, j))
}

func TestDeriveEventProfile(t *testing.T) {
	announced := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	inn := &types.Innovation{
		Title:   "PayCrest",
		Country: "Nigeria",
		Fundings: []types.FundingEvent{
			{Amount: 5_000_000, Investor: "Partech", AnnouncedAt: &announced},
		},
	}
	finding := types.StructuredFinding{
		Paragraph:      "PayCrest raised $5 million in a Series A round led by Partech, with MTN participating.",
		Companies:      []string{"PayCrest", "MTN"},
		Locations:      []string{"Nigeria"},
		FundingAmounts: []types.AmountMatch{{Text: "$5 million", USD: 5_000_000, Parsed: true}},
		RoundTypes:     []string{"series_a"},
	}

	p := DeriveEventProfile(inn, finding)
	assert.Equal(t, "PayCrest", p.Entity)
	assert.Equal(t, EventFunding, p.EventType)
	assert.Equal(t, 5_000_000.0, p.AmountUSD)
	assert.Equal(t, "series_a", p.Round)
	assert.Equal(t, []string{"MTN"}, p.Partners)
	assert.Equal(t, []string{"Partech"}, p.Investors)
	assert.Equal(t, "Nigeria", p.Country)
	require.NotNil(t, p.Date)
	assert.True(t, p.Date.Equal(announced))
}

func TestDeriveEventProfileProgramName(t *testing.T) {
	inn := &types.Innovation{Title: "AgriSense"}
	finding := types.StructuredFinding{
		Paragraph: "AgriSense joined the Norrsken Accelerator cohort in Kigali this month.",
		Companies: []string{"AgriSense"},
	}
	p := DeriveEventProfile(inn, finding)
	assert.Equal(t, EventProgram, p.EventType)
	assert.Equal(t, "Norrsken Accelerator", p.Program)
}

func TestClusterNewsCandidatesSameFundingRound(t *testing.T) {
	// Three articles covering one raise, plus one unrelated record.
	mk := func(title string, confidence float64, usd float64) NewsCandidate {
		return NewsCandidate{
			Innovation: &types.Innovation{Title: title, Confidence: confidence},
			Finding: types.StructuredFinding{
				Paragraph:      title,
				Companies:      []string{"PayCrest"},
				FundingAmounts: []types.AmountMatch{{USD: usd, Parsed: true}},
			},
		}
	}
	cands := []NewsCandidate{
		mk("PayCrest raises $5M", 0.6, 5_000_000),
		mk("Nigerian fintech PayCrest secures funding", 0.9, 5_000_000),
		mk("PayCrest closes round", 0.7, 5_100_000),
		{
			Innovation: &types.Innovation{Title: "MediScan launches", Confidence: 0.8},
			Finding: types.StructuredFinding{
				Paragraph: "MediScan launches a new triage tool.",
				Companies: []string{"MediScan"},
			},
		},
	}

	clusters := ClusterNewsCandidates(cands)
	require.Len(t, clusters, 2)

	funding := clusters[0]
	assert.Equal(t, 1, funding.Canonical, "highest confidence record is canonical")
	require.Len(t, funding.Members, 2)
	for _, m := range funding.Members {
		assert.Equal(t, RelSameEvent, m.Relation)
	}

	solo := clusters[1]
	assert.Equal(t, 3, solo.Canonical)
	assert.Empty(t, solo.Members)
}

func TestClusterNewsCandidatesTransitive(t *testing.T) {
	// A and B share a raise; B and C share an investor; A and C share
	// nothing directly but still land in one cluster.
	a := NewsCandidate{
		Innovation: &types.Innovation{Title: "PayCrest raises", Confidence: 0.9},
		Finding: types.StructuredFinding{
			Companies:      []string{"PayCrest"},
			FundingAmounts: []types.AmountMatch{{USD: 5_000_000, Parsed: true}},
		},
	}
	b := NewsCandidate{
		Innovation: &types.Innovation{
			Title:    "PayCrest funding confirmed",
			Fundings: []types.FundingEvent{{Investor: "Partech"}},
		},
		Finding: types.StructuredFinding{
			Companies:      []string{"PayCrest"},
			FundingAmounts: []types.AmountMatch{{USD: 5_000_000, Parsed: true}},
		},
	}
	c := NewsCandidate{
		Innovation: &types.Innovation{
			Title:    "Chipper raise",
			Fundings: []types.FundingEvent{{Investor: "Partech"}},
		},
		Finding: types.StructuredFinding{
			Companies:      []string{"Chipper"},
			FundingAmounts: []types.AmountMatch{{USD: 8_000_000, Parsed: true}},
		},
	}

	clusters := ClusterNewsCandidates([]NewsCandidate{a, b, c})
	require.Len(t, clusters, 1)
	assert.Equal(t, 0, clusters[0].Canonical)
	assert.Len(t, clusters[0].Members, 2)
}

func TestClusterNewsCandidatesEmpty(t *testing.T) {
	assert.Nil(t, ClusterNewsCandidates(nil))
}
