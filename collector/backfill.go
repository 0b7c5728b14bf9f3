// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"baobab/platform/collector/sources"
	"baobab/platform/collector/store"
	"baobab/platform/shared/types"
)

// Recoverable field names. They double as the field_* suffix in intelligence
// queries and as keys in job result maps.
const (
	fieldDescription   = "description"
	fieldCountry       = "country"
	fieldWebsiteURL    = "website_url"
	fieldFundings      = "fundings"
	fieldOrganizations = "organizations"
	fieldCreationDate  = "creation_date"
	fieldTags          = "tags"
)

type fieldStrategy int

const (
	// strategyIntelligence asks the LLM for the field and parses the JSON
	// object out of its reply.
	strategyIntelligence fieldStrategy = iota
	// strategySearch issues a targeted search and recovers the field from
	// result text with patterns.
	strategySearch
	// strategyCombined runs both and merges agreeing results into a
	// dual-source answer with averaged confidence.
	strategyCombined
)

type fieldSpec struct {
	name     string
	priority types.FieldPriority
	strategy fieldStrategy
}

// fieldSchema lists every recoverable field, highest priority first.
// Completeness counts these plus the title.
var fieldSchema = []fieldSpec{
	{fieldDescription, types.PriorityCritical, strategyIntelligence},
	{fieldCountry, types.PriorityCritical, strategyCombined},
	{fieldWebsiteURL, types.PriorityHigh, strategySearch},
	{fieldFundings, types.PriorityHigh, strategyCombined},
	{fieldOrganizations, types.PriorityMedium, strategySearch},
	{fieldCreationDate, types.PriorityMedium, strategyIntelligence},
	{fieldTags, types.PriorityLow, strategyIntelligence},
}

func fieldSpecFor(name string) (fieldSpec, bool) {
	for _, s := range fieldSchema {
		if s.name == name {
			return s, true
		}
	}
	return fieldSpec{}, false
}

// innovationCompleteness scores how many schema fields carry a value, title
// included. A record with everything filled scores 1.
func innovationCompleteness(inn *types.Innovation) float64 {
	filled := 0
	if strings.TrimSpace(inn.Title) != "" {
		filled++
	}
	for _, spec := range fieldSchema {
		if fieldPresent(inn, spec.name) {
			filled++
		}
	}
	return float64(filled) / float64(len(fieldSchema)+1)
}

func fieldPresent(inn *types.Innovation, field string) bool {
	switch field {
	case fieldDescription:
		return strings.TrimSpace(inn.Description) != ""
	case fieldCountry:
		return inn.Country != ""
	case fieldWebsiteURL:
		return inn.WebsiteURL != ""
	case fieldFundings:
		return len(inn.Fundings) > 0
	case fieldOrganizations:
		return len(inn.Organizations) > 0
	case fieldCreationDate:
		return inn.CreationDate != nil
	case fieldTags:
		return len(inn.Tags) > 0
	}
	return false
}

// BackfillPassStats summarizes one enrichment pass.
type BackfillPassStats struct {
	JobsProcessed int `json:"jobs_processed"`
	JobsFailed    int `json:"jobs_failed"`
	JobsSkipped   int `json:"jobs_skipped"`
	FieldsWritten int `json:"fields_written"`
	FieldsFlagged int `json:"fields_flagged"`
}

// BackfillStats is the control-surface snapshot. Daily counters reset at
// local midnight.
type BackfillStats struct {
	Day                string            `json:"day"`
	JobsToday          int               `json:"jobs_today"`
	CostTodayUSD       float64           `json:"cost_today_usd"`
	FieldsWrittenToday int               `json:"fields_written_today"`
	LastPassAt         time.Time         `json:"last_pass_at,omitempty"`
	LastPass           BackfillPassStats `json:"last_pass"`
}

// Backfill fills missing fields on stored innovations through targeted
// provider calls: an LLM ask, a patterned search, or both. Budget is checked
// before each job; an unaffordable job is skipped with zero calls issued.
type Backfill struct {
	cfg     *Config
	st      store.Gateway
	intel   sources.Source
	web     sources.Source
	scholar sources.Source
	costs   CostReporter
	clock   Clock

	mu          sync.Mutex
	day         string
	jobsToday   int
	costToday   float64
	writesToday int
	lastPass    BackfillPassStats
	lastPassAt  time.Time
}

// BackfillDeps wires the engine. Config and Store are required; a nil
// source disables its strategy leg.
type BackfillDeps struct {
	Config  *Config
	Store   store.Gateway
	Intel   sources.Source
	Web     sources.Source
	Scholar sources.Source
	Costs   CostReporter
	Clock   Clock
}

// NewBackfill builds the enrichment engine.
func NewBackfill(deps BackfillDeps) *Backfill {
	clock := deps.Clock
	if clock == nil {
		clock = RealClock{}
	}
	return &Backfill{
		cfg:     deps.Config,
		st:      deps.Store,
		intel:   deps.Intel,
		web:     deps.Web,
		scholar: deps.Scholar,
		costs:   deps.Costs,
		clock:   clock,
	}
}

// backfillJob pairs the persisted job with the record it enriches.
type backfillJob struct {
	types.BackfillJob
	inn *types.Innovation
}

// RunPass enriches the stalest incomplete records, up to the configured job
// cap.
func (e *Backfill) RunPass(ctx context.Context) (BackfillPassStats, error) {
	cutoff := e.clock.Now().Add(-e.cfg.Backfill.StaleAfter)
	cands, err := e.st.InnovationsForBackfill(ctx, cutoff, e.cfg.Backfill.MaxJobsPerCycle)
	if err != nil {
		return BackfillPassStats{}, fmt.Errorf("load candidates: %w", err)
	}
	return e.runJobs(ctx, e.buildJobs(cands))
}

// RunTargeted enriches the named records regardless of staleness. Zero
// maxJobs falls back to the configured cap.
func (e *Backfill) RunTargeted(ctx context.Context, ids []string, maxJobs int) (BackfillPassStats, error) {
	if maxJobs <= 0 {
		maxJobs = e.cfg.Backfill.MaxJobsPerCycle
	}
	var cands []types.Innovation
	for _, id := range ids {
		if len(cands) == maxJobs {
			break
		}
		inn, err := e.st.GetInnovation(ctx, id)
		if err != nil {
			log.Printf("[Backfill] ⚠️ record %s not loadable: %v", id, err)
			continue
		}
		cands = append(cands, *inn)
	}
	return e.runJobs(ctx, e.buildJobs(cands))
}

// Stats reports the daily counters and the last pass.
func (e *Backfill) Stats() BackfillStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollDayLocked()
	return BackfillStats{
		Day:                e.day,
		JobsToday:          e.jobsToday,
		CostTodayUSD:       e.costToday,
		FieldsWrittenToday: e.writesToday,
		LastPassAt:         e.lastPassAt,
		LastPass:           e.lastPass,
	}
}

// buildJobs turns incomplete records into jobs sorted by (priority, age).
// Priority of a job is its most urgent missing field; missing fields come
// out of the schema in priority order already.
func (e *Backfill) buildJobs(cands []types.Innovation) []backfillJob {
	now := e.clock.Now()
	var jobs []backfillJob
	for i := range cands {
		inn := &cands[i]
		missing := e.missingFields(inn)
		if len(missing) == 0 {
			continue
		}
		jobs = append(jobs, backfillJob{
			BackfillJob: types.BackfillJob{
				JobID:         uuid.New().String(),
				InnovationID:  inn.ID,
				MissingFields: missing,
				Status:        types.BackfillPending,
				CreatedAt:     now,
				UpdatedAt:     now,
			},
			inn: inn,
		})
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		pi := types.PriorityRank(jobs[i].MissingFields[0].Priority)
		pj := types.PriorityRank(jobs[j].MissingFields[0].Priority)
		if pi != pj {
			return pi < pj
		}
		return jobs[i].inn.CreatedAt.Before(jobs[j].inn.CreatedAt)
	})
	return jobs
}

func (e *Backfill) missingFields(inn *types.Innovation) []types.MissingField {
	var out []types.MissingField
	for _, spec := range fieldSchema {
		if fieldPresent(inn, spec.name) {
			continue
		}
		out = append(out, types.MissingField{
			Name:          spec.name,
			Priority:      spec.priority,
			EstimatedCost: e.strategyCost(spec.strategy, inn),
		})
	}
	return out
}

func (e *Backfill) strategyCost(s fieldStrategy, inn *types.Innovation) float64 {
	intelCost := e.cfg.SourceLimits[SrcIntel].EstimatedCost
	searchCost := e.cfg.SourceLimits[e.searchSourceName(inn)].EstimatedCost
	switch s {
	case strategyIntelligence:
		return intelCost
	case strategySearch:
		return searchCost
	default:
		return intelCost + searchCost
	}
}

func (e *Backfill) searchSourceName(inn *types.Innovation) string {
	if inn.InnovationType == types.TypeResearch && e.scholar != nil {
		return SrcScholar
	}
	return SrcWebSearch
}

func jobEstimate(fields []types.MissingField) float64 {
	var sum float64
	for _, f := range fields {
		sum += f.EstimatedCost
	}
	return sum
}

func (e *Backfill) runJobs(ctx context.Context, jobs []backfillJob) (BackfillPassStats, error) {
	var stats BackfillPassStats
	for i := range jobs {
		if err := ctx.Err(); err != nil {
			e.recordPass(stats)
			return stats, err
		}
		e.runJob(ctx, &jobs[i], &stats)
	}
	e.recordPass(stats)
	return stats, nil
}

func (e *Backfill) runJob(ctx context.Context, job *backfillJob, stats *BackfillPassStats) {
	if snap := e.costs.Costs(); snap.LimitUSD > 0 && jobEstimate(job.MissingFields) > snap.RemainingUSD {
		job.Status = types.BackfillSkipped
		stats.JobsSkipped++
		e.saveJob(ctx, job)
		return
	}

	job.Status = types.BackfillInProgress
	job.Results = make(map[string]types.FieldResult)
	inn := job.inn

	var written, flagged, failures int
	for _, mf := range job.MissingFields {
		if ctx.Err() != nil {
			break
		}
		res, cost, err := e.recoverField(ctx, inn, mf.Name)
		job.TotalCost += cost
		if err != nil {
			failures++
			log.Printf("[Backfill] ⚠️ field %s for %s: %v", mf.Name, job.InnovationID, err)
			continue
		}
		switch {
		case res.Confidence >= e.cfg.Backfill.ValidateConfidence:
			if !applyField(inn, mf.Name, res) {
				continue
			}
			job.Results[mf.Name] = res
			inn.Backfill.BackfilledFields = appendUnique(inn.Backfill.BackfilledFields, mf.Name)
			written++
		case res.Confidence >= e.cfg.Backfill.ReviewConfidence:
			job.Results[mf.Name] = res
			inn.Backfill.NeedsReview = appendUnique(inn.Backfill.NeedsReview, mf.Name)
			flagged++
		}
		// Below the review band the result is discarded.
	}

	// The pass stamp stops the same record from being re-queued every
	// cycle even when nothing was recovered.
	now := e.clock.Now()
	inn.Backfill.LastBackfillAt = &now
	inn.Completeness = innovationCompleteness(inn)
	inn.UpdatedAt = now

	if err := e.st.UpdateInnovation(ctx, inn); err != nil {
		log.Printf("[Backfill] ⚠️ update record %s: %v", job.InnovationID, err)
		job.Status = types.BackfillFailed
		stats.JobsFailed++
		e.saveJob(ctx, job)
		e.addToDay(1, job.TotalCost, 0)
		return
	}

	stats.FieldsWritten += written
	stats.FieldsFlagged += flagged
	if failures > 0 && written == 0 && flagged == 0 {
		job.Status = types.BackfillFailed
		stats.JobsFailed++
	} else {
		job.Status = types.BackfillCompleted
		stats.JobsProcessed++
	}
	e.saveJob(ctx, job)
	e.addToDay(1, job.TotalCost, written)
}

func (e *Backfill) saveJob(ctx context.Context, job *backfillJob) {
	job.UpdatedAt = e.clock.Now()
	promBackfillJobs.WithLabelValues(string(job.Status)).Inc()
	if err := e.st.SaveBackfillJob(ctx, &job.BackfillJob); err != nil {
		log.Printf("[Backfill] ⚠️ save job %s: %v", job.JobID, err)
	}
}

func (e *Backfill) recoverField(ctx context.Context, inn *types.Innovation, field string) (types.FieldResult, float64, error) {
	spec, ok := fieldSpecFor(field)
	if !ok {
		return types.FieldResult{}, 0, fmt.Errorf("unknown field %q", field)
	}
	switch spec.strategy {
	case strategyIntelligence:
		res, err := e.askIntelligence(ctx, inn, field)
		return res, e.cfg.SourceLimits[SrcIntel].EstimatedCost, err
	case strategySearch:
		res, err := e.searchField(ctx, inn, field)
		return res, e.cfg.SourceLimits[e.searchSourceName(inn)].EstimatedCost, err
	default:
		intelRes, intelErr := e.askIntelligence(ctx, inn, field)
		searchRes, searchErr := e.searchField(ctx, inn, field)
		cost := e.cfg.SourceLimits[SrcIntel].EstimatedCost +
			e.cfg.SourceLimits[e.searchSourceName(inn)].EstimatedCost
		switch {
		case intelErr == nil && searchErr == nil:
			return combineResults(intelRes, searchRes), cost, nil
		case intelErr == nil:
			return intelRes, cost, nil
		case searchErr == nil:
			return searchRes, cost, nil
		default:
			return types.FieldResult{}, cost, fmt.Errorf("intelligence: %v; search: %v", intelErr, searchErr)
		}
	}
}

// combineResults merges a dual-source answer: the higher-confidence value
// wins, confidence is averaged.
func combineResults(a, b types.FieldResult) types.FieldResult {
	res := a
	if b.Confidence > a.Confidence {
		res = b
	}
	res.Confidence = (a.Confidence + b.Confidence) / 2
	res.Provenance = "dual_source"
	return res
}

func (e *Backfill) askIntelligence(ctx context.Context, inn *types.Innovation, field string) (types.FieldResult, error) {
	if e.intel == nil {
		return types.FieldResult{}, errors.New("no intelligence source")
	}
	subject := inn.Title
	if inn.Country != "" {
		subject += " (" + inn.Country + ")"
	}
	it, err := e.intel.Fetch(ctx, sources.QuerySpec{
		ReportType: "field_" + field,
		Subject:    subject,
	})
	if err != nil {
		return types.FieldResult{}, err
	}
	raw, ok := it.Next()
	if !ok {
		return types.FieldResult{}, errors.New("empty reply")
	}
	rec, discard := e.intel.Parse(raw)
	if discard != nil {
		return types.FieldResult{}, fmt.Errorf("reply discarded: %s", discard)
	}
	rep, ok := rec.(*sources.IntelReport)
	if !ok {
		return types.FieldResult{}, fmt.Errorf("unexpected record type %T", rec)
	}
	return parseFieldReply(rep.Text)
}

// parseFieldReply pulls the {value, confidence, evidence} object out of a
// field reply, tolerating prose around the JSON.
func parseFieldReply(text string) (types.FieldResult, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return types.FieldResult{}, errors.New("no JSON object in reply")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return types.FieldResult{}, fmt.Errorf("malformed field reply: %w", err)
	}

	value := strings.TrimSpace(fieldValueString(obj["value"]))
	if value == "" {
		return types.FieldResult{}, errors.New("empty value in reply")
	}
	conf, _ := obj["confidence"].(float64)
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	res := types.FieldResult{Value: value, Confidence: conf, Provenance: "llm"}
	if ev, _ := obj["evidence"].(string); strings.TrimSpace(ev) != "" {
		res.Provenance = "llm: " + clipText(ev, 200)
	}
	return res, nil
}

// fieldValueString flattens whatever JSON shape the model chose for the
// value into one string.
func fieldValueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := strings.TrimSpace(fieldValueString(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (e *Backfill) searchField(ctx context.Context, inn *types.Innovation, field string) (types.FieldResult, error) {
	src := e.web
	if e.searchSourceName(inn) == SrcScholar {
		src = e.scholar
	}
	if src == nil {
		return types.FieldResult{}, errors.New("no search source")
	}
	results, err := fetchSearchResults(ctx, src, fieldQuery(inn, field), 3)
	if err != nil {
		return types.FieldResult{}, err
	}
	if len(results) == 0 {
		return types.FieldResult{}, errors.New("no results")
	}
	return extractFieldFromResults(inn, field, results)
}

// searchResult normalizes web hits and scholar publications into the shape
// the field patterns scan.
type searchResult struct {
	title    string
	snippet  string
	link     string
	position int
}

func fetchSearchResults(ctx context.Context, src sources.Source, query string, limit int) ([]searchResult, error) {
	it, err := src.Fetch(ctx, sources.QuerySpec{Terms: []string{query}, MaxResults: limit})
	if err != nil {
		return nil, err
	}
	var out []searchResult
	for {
		raw, ok := it.Next()
		if !ok {
			return out, nil
		}
		rec, discard := src.Parse(raw)
		if discard != nil {
			continue
		}
		switch r := rec.(type) {
		case *sources.SearchHit:
			out = append(out, searchResult{title: r.Title, snippet: r.Snippet, link: r.Link, position: r.Position})
		case *sources.Publication:
			out = append(out, searchResult{title: r.Title, snippet: r.Abstract, link: r.URL, position: len(out) + 1})
		}
	}
}

func fieldQuery(inn *types.Innovation, field string) string {
	name := inn.Title
	switch field {
	case fieldWebsiteURL:
		return fmt.Sprintf("%q official website", name)
	case fieldFundings:
		return fmt.Sprintf("%q funding raised investment", name)
	case fieldCountry:
		return fmt.Sprintf("%q headquarters country", name)
	case fieldOrganizations:
		return fmt.Sprintf("%q partners investors", name)
	case fieldCreationDate:
		return fmt.Sprintf("%q founded year", name)
	}
	return fmt.Sprintf("%q %s", name, strings.ReplaceAll(field, "_", " "))
}

var foundedRe = regexp.MustCompile(`(?i)\b(?:founded|established|launched|started)\b[^.]{0,40}\b(19\d{2}|20\d{2})\b`)

func foundedYear(text string) int {
	m := foundedRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	year, _ := strconv.Atoi(m[1])
	return year
}

// extractFieldFromResults recovers the field from result text with the
// pattern that fits it. Result rank drives confidence.
func extractFieldFromResults(inn *types.Innovation, field string, results []searchResult) (types.FieldResult, error) {
	for _, r := range results {
		text := r.title + ". " + r.snippet
		conf := hitConfidence(r.position)
		prov := "search: " + r.link

		switch field {
		case fieldWebsiteURL:
			link := CleanURL(r.link)
			if link != "" && !newsHosts[hostOf(link)] {
				return types.FieldResult{Value: link, Confidence: conf, Provenance: prov}, nil
			}
		case fieldFundings:
			if m := ParseAmount(text); m.Parsed {
				return types.FieldResult{Value: m.Text, Confidence: conf, Provenance: prov}, nil
			}
		case fieldCountry:
			for _, f := range extractStructuredFindings(text) {
				if loc := africanLocation(f.Locations); loc != "" {
					return types.FieldResult{Value: loc, Confidence: conf * 0.9, Provenance: prov}, nil
				}
			}
		case fieldOrganizations:
			if names := organizationNames(inn, text); len(names) > 0 {
				return types.FieldResult{Value: strings.Join(names, "; "), Confidence: conf * 0.8, Provenance: prov}, nil
			}
		case fieldCreationDate:
			if y := foundedYear(text); y != 0 {
				return types.FieldResult{Value: strconv.Itoa(y), Confidence: conf, Provenance: prov}, nil
			}
		default:
			return types.FieldResult{}, fmt.Errorf("no search pattern for %s", field)
		}
	}
	return types.FieldResult{}, errors.New("no usable result")
}

func organizationNames(inn *types.Innovation, text string) []string {
	var names []string
	for _, f := range extractStructuredFindings(text) {
		names = append(names, f.Institutions...)
		names = append(names, f.Companies...)
	}
	var out []string
	for _, name := range names {
		if strings.EqualFold(name, inn.Title) || len(out) == 6 {
			continue
		}
		out = appendUnique(out, name)
	}
	return out
}

// applyField writes a validated result onto the record. It returns false
// when the value cannot be expressed in the field's shape.
func applyField(inn *types.Innovation, field string, res types.FieldResult) bool {
	value := strings.TrimSpace(res.Value)
	if value == "" {
		return false
	}
	switch field {
	case fieldDescription:
		inn.Description = clipText(value, 2000)
	case fieldCountry:
		if !sources.IsAfricanCountry(value) {
			return false
		}
		inn.Country = value
	case fieldWebsiteURL:
		link := CleanURL(value)
		if !strings.HasPrefix(link, "http") {
			return false
		}
		inn.WebsiteURL = link
	case fieldFundings:
		m := ParseAmount(value)
		if !m.Parsed {
			return false
		}
		inn.Fundings = append(inn.Fundings, types.FundingEvent{Amount: m.USD, AmountText: m.Text})
	case fieldOrganizations:
		names := splitListValue(value)
		if len(names) == 0 {
			return false
		}
		for _, name := range names {
			inn.Organizations = append(inn.Organizations, types.OrgRef{Name: name, Role: "organization"})
		}
	case fieldCreationDate:
		t, ok := parseCreationDate(value)
		if !ok {
			return false
		}
		inn.CreationDate = &t
	case fieldTags:
		tags := splitListValue(strings.ToLower(value))
		if len(tags) == 0 {
			return false
		}
		inn.Tags = appendUnique(inn.Tags, tags...)
	default:
		return false
	}
	return true
}

var yearOnlyRe = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)

func parseCreationDate(value string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "2006-01", "2006", "January 2006", "Jan 2006"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	if m := yearOnlyRe.FindString(value); m != "" {
		year, _ := strconv.Atoi(m)
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func splitListValue(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ';' })
	var out []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || len(out) == 6 {
			continue
		}
		out = appendUnique(out, f)
	}
	return out
}

func (e *Backfill) recordPass(stats BackfillPassStats) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastPass = stats
	e.lastPassAt = e.clock.Now()
}

// addToDay accumulates the daily counters, resetting them at local
// midnight.
func (e *Backfill) addToDay(jobs int, cost float64, writes int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollDayLocked()
	e.jobsToday += jobs
	e.costToday += cost
	e.writesToday += writes
}

func (e *Backfill) rollDayLocked() {
	day := e.clock.Now().Local().Format("2006-01-02")
	if day != e.day {
		e.day = day
		e.jobsToday = 0
		e.costToday = 0
		e.writesToday = 0
	}
}
