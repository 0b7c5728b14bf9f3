// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baobab/platform/collector/mediator"
	"baobab/platform/collector/sources"
	"baobab/platform/shared/types"
)

func seedInnovation(t *testing.T, st *fakeStore, inn *types.Innovation) string {
	t.Helper()
	if inn.Fingerprint == "" {
		inn.Fingerprint = InnovationFingerprint(inn.Title)
	}
	outcome, err := st.UpsertInnovation(context.Background(), inn)
	require.NoError(t, err)
	require.True(t, outcome.Created)
	return outcome.ID
}

// fieldReply registers a canned field reply under its report type, so a
// fetchFn keyed on spec.ReportType can replay it.
func fieldReply(intel *fakeSource, field, body string) {
	id := "field_" + field
	intel.add(id, &sources.IntelReport{ReportType: id, Provider: "perplexity", Text: body})
}

func replayByReportType(intel *fakeSource) {
	intel.fetchFn = func(spec sources.QuerySpec) ([]sources.RawRecord, error) {
		return []sources.RawRecord{{Source: intel.name, ID: spec.ReportType}}, nil
	}
}

func newBackfillEngine(st *fakeStore, intel, web *fakeSource) *Backfill {
	deps := BackfillDeps{
		Config: DefaultConfig(),
		Store:  st,
		Costs:  &fakeCosts{snap: mediator.CostSnapshot{Day: "2025-07-01", LimitUSD: 10, RemainingUSD: 10}},
		Clock:  fixedClock{now: time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC)},
	}
	if intel != nil {
		deps.Intel = intel
	}
	if web != nil {
		deps.Web = web
	}
	return NewBackfill(deps)
}

func TestInnovationCompleteness(t *testing.T) {
	bare := &types.Innovation{Title: "PayCrest"}
	assert.InDelta(t, 0.125, innovationCompleteness(bare), 1e-9, "title alone is one of eight")

	partial := &types.Innovation{Title: "PayCrest", Description: "Payment rails.", Country: "Kenya"}
	assert.InDelta(t, 0.375, innovationCompleteness(partial), 1e-9)

	created := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	full := &types.Innovation{
		Title: "PayCrest", Description: "Payment rails.", Country: "Kenya",
		WebsiteURL:    "https://paycrest.io",
		Fundings:      []types.FundingEvent{{Amount: 5_000_000}},
		Organizations: []types.OrgRef{{Name: "Safaricom"}},
		CreationDate:  &created,
		Tags:          []string{"fintech"},
	}
	assert.InDelta(t, 1.0, innovationCompleteness(full), 1e-9)
}

func TestMissingFieldsComeOutInPriorityOrder(t *testing.T) {
	st := newFakeStore()
	e := newBackfillEngine(st, nil, nil)

	missing := e.missingFields(&types.Innovation{Title: "PayCrest"})
	require.Len(t, missing, 7)
	assert.Equal(t, "description", missing[0].Name)
	assert.Equal(t, types.PriorityCritical, missing[0].Priority)
	assert.Equal(t, "tags", missing[6].Name)
	assert.Equal(t, types.PriorityLow, missing[6].Priority)

	// Strategy drives the estimate: LLM-only, search-only, and combined.
	byName := make(map[string]types.MissingField)
	for _, m := range missing {
		byName[m.Name] = m
	}
	assert.InDelta(t, 0.10, byName["description"].EstimatedCost, 1e-9)
	assert.InDelta(t, 0.01, byName["website_url"].EstimatedCost, 1e-9)
	assert.InDelta(t, 0.11, byName["country"].EstimatedCost, 1e-9)
}

func TestParseFieldReply(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantValue  string
		wantConf   float64
		wantProv   string
		wantErr    bool
	}{
		{
			name:      "plain object",
			text:      `{"value": "Kenya", "confidence": 0.85, "evidence": "company registry"}`,
			wantValue: "Kenya", wantConf: 0.85, wantProv: "llm: company registry",
		},
		{
			name:      "prose around the object",
			text:      "Here is what I found.\n{\"value\": \"2019\", \"confidence\": 0.7}\nLet me know if you need more.",
			wantValue: "2019", wantConf: 0.7, wantProv: "llm",
		},
		{
			name:      "list value flattens",
			text:      `{"value": ["fintech", "payments"], "confidence": 0.9}`,
			wantValue: "fintech, payments", wantConf: 0.9, wantProv: "llm",
		},
		{
			name:      "numeric value formats",
			text:      `{"value": 2019, "confidence": 0.6}`,
			wantValue: "2019", wantConf: 0.6, wantProv: "llm",
		},
		{
			name:      "confidence clamps to one",
			text:      `{"value": "Kenya", "confidence": 1.4}`,
			wantValue: "Kenya", wantConf: 1,
			wantProv: "llm",
		},
		{name: "empty value rejected", text: `{"value": "", "confidence": 0.9}`, wantErr: true},
		{name: "no object rejected", text: "I could not find a reliable source.", wantErr: true},
		{name: "malformed object rejected", text: `{"value": "Kenya",`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := parseFieldReply(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, res.Value)
			assert.InDelta(t, tt.wantConf, res.Confidence, 1e-9)
			assert.Equal(t, tt.wantProv, res.Provenance)
		})
	}
}

func TestApplyFieldValidatesShape(t *testing.T) {
	t.Run("country must be African", func(t *testing.T) {
		inn := &types.Innovation{Title: "PayCrest"}
		assert.False(t, applyField(inn, "country", types.FieldResult{Value: "Norway"}))
		assert.Empty(t, inn.Country)
		assert.True(t, applyField(inn, "country", types.FieldResult{Value: "Kenya"}))
		assert.Equal(t, "Kenya", inn.Country)
	})

	t.Run("website must be a link", func(t *testing.T) {
		inn := &types.Innovation{Title: "PayCrest"}
		assert.False(t, applyField(inn, "website_url", types.FieldResult{Value: "ask their sales team"}))
		assert.True(t, applyField(inn, "website_url", types.FieldResult{Value: "https://paycrest.io."}))
		assert.Equal(t, "https://paycrest.io", inn.WebsiteURL, "trailing punctuation stripped")
	})

	t.Run("funding must parse to dollars", func(t *testing.T) {
		inn := &types.Innovation{Title: "PayCrest"}
		assert.False(t, applyField(inn, "fundings", types.FieldResult{Value: "an undisclosed amount"}))
		assert.True(t, applyField(inn, "fundings", types.FieldResult{Value: "$2.5 million"}))
		require.Len(t, inn.Fundings, 1)
		assert.Equal(t, 2_500_000.0, inn.Fundings[0].Amount)
	})

	t.Run("creation date accepts common layouts", func(t *testing.T) {
		for _, value := range []string{"2019-04-02", "2019-04", "2019", "April 2019", "founded in 2019"} {
			inn := &types.Innovation{Title: "PayCrest"}
			assert.True(t, applyField(inn, "creation_date", types.FieldResult{Value: value}), "value %q", value)
			require.NotNil(t, inn.CreationDate)
			assert.Equal(t, 2019, inn.CreationDate.Year())
		}
		inn := &types.Innovation{Title: "PayCrest"}
		assert.False(t, applyField(inn, "creation_date", types.FieldResult{Value: "sometime before independence"}))
	})

	t.Run("tags lowercase and deduplicate", func(t *testing.T) {
		inn := &types.Innovation{Title: "PayCrest"}
		assert.True(t, applyField(inn, "tags", types.FieldResult{Value: "FinTech; ML, FinTech"}))
		assert.Equal(t, []string{"fintech", "ml"}, inn.Tags)
	})

	t.Run("organizations split on separators", func(t *testing.T) {
		inn := &types.Innovation{Title: "PayCrest"}
		assert.True(t, applyField(inn, "organizations", types.FieldResult{Value: "Safaricom; MTN Group"}))
		require.Len(t, inn.Organizations, 2)
		assert.Equal(t, "Safaricom", inn.Organizations[0].Name)
		assert.Equal(t, "organization", inn.Organizations[0].Role)
	})
}

func TestBackfillRunPassRecoversAllFields(t *testing.T) {
	st := newFakeStore()
	id := seedInnovation(t, st, &types.Innovation{
		Title:     "PayCrest",
		CreatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	})

	intel := newFakeSource("llm_intelligence")
	fieldReply(intel, "description", `{"value": "Stablecoin payment rails for African merchants.", "confidence": 0.85, "evidence": "company site"}`)
	fieldReply(intel, "country", `{"value": "Kenya", "confidence": 0.9}`)
	fieldReply(intel, "fundings", `{"value": "$5 million", "confidence": 0.8}`)
	fieldReply(intel, "creation_date", `{"value": "2019", "confidence": 0.7}`)
	fieldReply(intel, "tags", `{"value": ["fintech", "payments"], "confidence": 0.7}`)
	replayByReportType(intel)

	web := newFakeSource("web_search")
	web.add("site", &sources.SearchHit{
		Title: "PayCrest", Link: "https://paycrest.io",
		Snippet: "Payment infrastructure for African merchants.", Position: 1,
	})
	web.add("funding", &sources.SearchHit{
		Title: "PayCrest raises capital", Link: "https://techcabal.com/paycrest",
		Snippet: "The startup PayCrest raised $5 million in seed funding.", Position: 1,
	})
	web.add("country", &sources.SearchHit{
		Title: "PayCrest profile", Link: "https://example.com/profile",
		Snippet: "The startup PayCrest is headquartered in Kenya.", Position: 1,
	})
	web.add("orgs", &sources.SearchHit{
		Title: "PayCrest partners", Link: "https://example.com/partners",
		Snippet: "The startup PayCrest works with Safaricom and MTN Group.", Position: 1,
	})
	web.fetchFn = func(spec sources.QuerySpec) ([]sources.RawRecord, error) {
		q := strings.Join(spec.Terms, " ")
		var id string
		switch {
		case strings.Contains(q, "official website"):
			id = "site"
		case strings.Contains(q, "funding"):
			id = "funding"
		case strings.Contains(q, "headquarters"):
			id = "country"
		case strings.Contains(q, "partners"):
			id = "orgs"
		default:
			return nil, nil
		}
		return []sources.RawRecord{{Source: "web_search", ID: id}}, nil
	}

	e := newBackfillEngine(st, intel, web)
	stats, err := e.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.JobsProcessed)
	assert.Equal(t, 0, stats.JobsFailed)
	assert.Equal(t, 0, stats.JobsSkipped)
	assert.Equal(t, 7, stats.FieldsWritten)
	assert.Equal(t, 0, stats.FieldsFlagged)

	inn, err := st.GetInnovation(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Stablecoin payment rails for African merchants.", inn.Description)
	assert.Equal(t, "Kenya", inn.Country)
	assert.Equal(t, "https://paycrest.io", inn.WebsiteURL)
	require.Len(t, inn.Fundings, 1)
	assert.Equal(t, 5_000_000.0, inn.Fundings[0].Amount)
	assert.Len(t, inn.Organizations, 2)
	require.NotNil(t, inn.CreationDate)
	assert.Equal(t, 2019, inn.CreationDate.Year())
	assert.Equal(t, []string{"fintech", "payments"}, inn.Tags)
	assert.InDelta(t, 1.0, inn.Completeness, 1e-9)
	require.NotNil(t, inn.Backfill.LastBackfillAt)
	assert.Len(t, inn.Backfill.BackfilledFields, 7)

	job, ok := st.lastJob()
	require.True(t, ok)
	assert.Equal(t, types.BackfillCompleted, job.Status)
	assert.Equal(t, id, job.InnovationID)
	assert.Len(t, job.Results, 7)
	assert.InDelta(t, 0.54, job.TotalCost, 1e-9, "two combined fields bill both legs")

	day := e.Stats()
	assert.Equal(t, 1, day.JobsToday)
	assert.Equal(t, 7, day.FieldsWrittenToday)
	assert.InDelta(t, 0.54, day.CostTodayUSD, 1e-9)
}

func TestBackfillCombinedFieldMarksDualSource(t *testing.T) {
	st := newFakeStore()
	id := seedInnovation(t, st, &types.Innovation{
		Title: "PayCrest", Description: "Payment rails.",
		WebsiteURL:    "https://paycrest.io",
		Fundings:      []types.FundingEvent{{Amount: 5_000_000}},
		Organizations: []types.OrgRef{{Name: "Safaricom"}},
		CreationDate:  timePtr(time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)),
		Tags:          []string{"fintech"},
		CreatedAt:     time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	})

	intel := newFakeSource("llm_intelligence")
	fieldReply(intel, "country", `{"value": "Kenya", "confidence": 0.9}`)
	replayByReportType(intel)

	web := newFakeSource("web_search")
	web.add("country", &sources.SearchHit{
		Title: "PayCrest profile", Link: "https://example.com/profile",
		Snippet: "The startup PayCrest is headquartered in Kenya.", Position: 1,
	})

	e := newBackfillEngine(st, intel, web)
	stats, err := e.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FieldsWritten)

	inn, err := st.GetInnovation(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Kenya", inn.Country)

	job, ok := st.lastJob()
	require.True(t, ok)
	res := job.Results["country"]
	assert.Equal(t, "dual_source", res.Provenance)
	assert.InDelta(t, (0.9+0.8*0.9)/2, res.Confidence, 1e-9, "averaged across both legs")
}

func TestBackfillSkipsUnaffordableJobWithoutCalls(t *testing.T) {
	st := newFakeStore()
	id := seedInnovation(t, st, &types.Innovation{
		Title: "Amini", Country: "Kenya",
		WebsiteURL:    "https://amini.ai",
		Fundings:      []types.FundingEvent{{Amount: 2_000_000}},
		Organizations: []types.OrgRef{{Name: "Microsoft"}},
		CreationDate:  timePtr(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)),
		Tags:          []string{"climate"},
		CreatedAt:     time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	})

	intel := newFakeSource("llm_intelligence")
	e := NewBackfill(BackfillDeps{
		Config: DefaultConfig(),
		Store:  st,
		Intel:  intel,
		Costs:  &fakeCosts{snap: mediator.CostSnapshot{Day: "2025-07-01", LimitUSD: 10, RemainingUSD: 0.05}},
		Clock:  fixedClock{now: time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC)},
	})

	stats, err := e.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackfillPassStats{JobsSkipped: 1}, stats)
	assert.Equal(t, 0, intel.fetchCount(), "an unaffordable job must not reach the provider")

	job, ok := st.lastJob()
	require.True(t, ok)
	assert.Equal(t, types.BackfillSkipped, job.Status)

	inn, err := st.GetInnovation(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, inn.Backfill.LastBackfillAt, "skipped jobs stay queued for the next pass")
}

func TestBackfillFlagsMidConfidenceForReview(t *testing.T) {
	st := newFakeStore()
	id := seedInnovation(t, st, descriptionOnlyGap("Amini"))

	intel := newFakeSource("llm_intelligence")
	fieldReply(intel, "description", `{"value": "Possibly a climate data platform.", "confidence": 0.5}`)
	replayByReportType(intel)

	e := newBackfillEngine(st, intel, nil)
	stats, err := e.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.JobsProcessed)
	assert.Equal(t, 0, stats.FieldsWritten)
	assert.Equal(t, 1, stats.FieldsFlagged)

	inn, err := st.GetInnovation(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, inn.Description, "review-band values are not written")
	assert.Equal(t, []string{"description"}, inn.Backfill.NeedsReview)
	require.NotNil(t, inn.Backfill.LastBackfillAt)
}

func TestBackfillDiscardsLowConfidence(t *testing.T) {
	st := newFakeStore()
	id := seedInnovation(t, st, descriptionOnlyGap("Amini"))

	intel := newFakeSource("llm_intelligence")
	fieldReply(intel, "description", `{"value": "Maybe something with satellites.", "confidence": 0.3}`)
	replayByReportType(intel)

	e := newBackfillEngine(st, intel, nil)
	stats, err := e.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.JobsProcessed, "a job that recovers nothing still completes")
	assert.Equal(t, 0, stats.FieldsWritten)
	assert.Equal(t, 0, stats.FieldsFlagged)

	inn, err := st.GetInnovation(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, inn.Description)
	assert.Empty(t, inn.Backfill.NeedsReview)
	require.NotNil(t, inn.Backfill.LastBackfillAt, "the stamp stops re-queue thrash")

	job, ok := st.lastJob()
	require.True(t, ok)
	assert.Equal(t, types.BackfillCompleted, job.Status)
	assert.Empty(t, job.Results)
}

func TestBackfillJobFailsWhenEveryLegFails(t *testing.T) {
	st := newFakeStore()
	seedInnovation(t, st, descriptionOnlyGap("Amini"))

	intel := newFakeSource("llm_intelligence")
	intel.fetchErr = errors.New("provider down")

	e := newBackfillEngine(st, intel, nil)
	stats, err := e.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.JobsFailed)
	assert.Equal(t, 0, stats.JobsProcessed)

	job, ok := st.lastJob()
	require.True(t, ok)
	assert.Equal(t, types.BackfillFailed, job.Status)
}

func TestBackfillTargetedIgnoresStaleness(t *testing.T) {
	st := newFakeStore()
	fresh := time.Date(2025, 7, 1, 5, 0, 0, 0, time.UTC)
	gap := descriptionOnlyGap("Amini")
	gap.Backfill.LastBackfillAt = &fresh
	id := seedInnovation(t, st, gap)

	intel := newFakeSource("llm_intelligence")
	fieldReply(intel, "description", `{"value": "Climate data infrastructure.", "confidence": 0.85}`)
	replayByReportType(intel)

	e := newBackfillEngine(st, intel, nil)

	passStats, err := e.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackfillPassStats{}, passStats, "freshly stamped records wait out the stale window")

	targeted, err := e.RunTargeted(context.Background(), []string{id}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, targeted.JobsProcessed)
	assert.Equal(t, 1, targeted.FieldsWritten)

	inn, err := st.GetInnovation(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Climate data infrastructure.", inn.Description)
}

func TestBackfillOrdersJobsByPriorityThenAge(t *testing.T) {
	st := newFakeStore()

	tagsGap := fullRecord("OldTimer")
	tagsGap.Tags = nil
	tagsGap.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	oldID := seedInnovation(t, st, tagsGap)

	descGap := descriptionOnlyGap("Newcomer")
	descGap.CreatedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	newID := seedInnovation(t, st, descGap)

	intel := newFakeSource("llm_intelligence")
	fieldReply(intel, "description", `{"value": "A fresh record.", "confidence": 0.85}`)
	fieldReply(intel, "tags", `{"value": ["ai"], "confidence": 0.8}`)
	replayByReportType(intel)

	e := newBackfillEngine(st, intel, nil)
	stats, err := e.RunTargeted(context.Background(), []string{oldID, newID}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.JobsProcessed)
	assert.Equal(t, 2, stats.FieldsWritten)

	// The younger record ran first because its gap is critical.
	require.GreaterOrEqual(t, intel.fetchCount(), 2)
	assert.Equal(t, "field_description", intel.specAt(0).ReportType)
	assert.Equal(t, "field_tags", intel.specAt(1).ReportType)
}

func TestBackfillDailyCountersRoll(t *testing.T) {
	st := newFakeStore()
	seedInnovation(t, st, descriptionOnlyGap("Amini"))

	intel := newFakeSource("llm_intelligence")
	fieldReply(intel, "description", `{"value": "Climate data infrastructure.", "confidence": 0.85}`)
	replayByReportType(intel)

	clock := &stepClock{now: time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC)}
	e := NewBackfill(BackfillDeps{
		Config: DefaultConfig(),
		Store:  st,
		Intel:  intel,
		Costs:  &fakeCosts{snap: mediator.CostSnapshot{LimitUSD: 10, RemainingUSD: 10}},
		Clock:  clock,
	})

	_, err := e.RunPass(context.Background())
	require.NoError(t, err)

	today := e.Stats()
	assert.Equal(t, 1, today.JobsToday)
	assert.Equal(t, 1, today.FieldsWrittenToday)
	assert.InDelta(t, 0.10, today.CostTodayUSD, 1e-9)

	clock.advance(48 * time.Hour)
	later := e.Stats()
	assert.Equal(t, 0, later.JobsToday)
	assert.Equal(t, 0, later.FieldsWrittenToday)
	assert.Zero(t, later.CostTodayUSD)
	assert.NotEqual(t, today.Day, later.Day)
	assert.Equal(t, today.LastPass, later.LastPass, "pass history survives the roll")
}

func TestBackfillRoutesResearchSearchesToScholar(t *testing.T) {
	st := newFakeStore()
	gap := fullRecord("Masakhane NER Corpus")
	gap.InnovationType = types.TypeResearch
	gap.WebsiteURL = ""
	id := seedInnovation(t, st, gap)

	scholar := newFakeSource("scholar")
	scholar.add("paper", &sources.Publication{
		Title:    "Masakhane NER Corpus",
		Abstract: "Named entity annotations for ten African languages.",
		URL:      "https://journal.example/masakhane-ner",
		Source:   "scholar",
	})
	web := newFakeSource("web_search")

	e := NewBackfill(BackfillDeps{
		Config:  DefaultConfig(),
		Store:   st,
		Web:     web,
		Scholar: scholar,
		Costs:   &fakeCosts{snap: mediator.CostSnapshot{LimitUSD: 10, RemainingUSD: 10}},
		Clock:   fixedClock{now: time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC)},
	})

	stats, err := e.RunTargeted(context.Background(), []string{id}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FieldsWritten)
	assert.Equal(t, 1, scholar.fetchCount())
	assert.Equal(t, 0, web.fetchCount(), "research records search scholarly indexes")

	inn, err := st.GetInnovation(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "https://journal.example/masakhane-ner", inn.WebsiteURL)
}

// descriptionOnlyGap builds a record complete except for its description.
func descriptionOnlyGap(title string) *types.Innovation {
	inn := fullRecord(title)
	inn.Description = ""
	return inn
}

// fullRecord builds a record with every schema field filled.
func fullRecord(title string) *types.Innovation {
	created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	return &types.Innovation{
		Title:         title,
		Description:   "A platform serving African markets.",
		Country:       "Kenya",
		WebsiteURL:    "https://" + strings.ToLower(strings.Fields(title)[0]) + ".example",
		Fundings:      []types.FundingEvent{{Amount: 1_000_000}},
		Organizations: []types.OrgRef{{Name: "Safaricom"}},
		CreationDate:  &created,
		Tags:          []string{"ai"},
		CreatedAt:     time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func timePtr(t time.Time) *time.Time { return &t }
