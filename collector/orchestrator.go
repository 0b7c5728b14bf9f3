// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"baobab/platform/collector/mediator"
	"baobab/platform/collector/sources"
	"baobab/platform/collector/store"
	"baobab/platform/shared/logger"
	"baobab/platform/shared/types"
)

const (
	// maxSynthesisWorkers bounds concurrent intelligence calls per cycle.
	maxSynthesisWorkers = 3

	// maxURLDiscoveryCalls bounds the web-search lookups spent resolving a
	// homepage for targets that arrived without one.
	maxURLDiscoveryCalls = 10

	// extractionSuccessFloor is the target-to-candidate conversion rate
	// below which the cycle recommends improving URL discovery.
	extractionSuccessFloor = 0.7

	defaultTimePeriod = "last_30_days"
)

// Phase names, in execution order.
const (
	phaseIntelligence = "intelligence_synthesis"
	phaseExtraction   = "target_extraction"
	phaseValidation   = "validation_dedup"
	phasePersistence  = "persistence_indexing"
	phaseSourcePasses = "source_passes"
	phaseEnrichment   = "enrichment_backfill"
	phaseSnowball     = "citation_snowball"
)

// errPhaseSkipped marks a phase that did not apply this cycle, for example
// when its feature flag is off. Skipped phases are not failures.
var errPhaseSkipped = errors.New("phase skipped")

// CycleParams tunes one collection cycle. Zero values fall back to the
// configured defaults.
type CycleParams struct {
	// ReportTypes selects the synthesis angles; empty runs all of them.
	ReportTypes []types.ReportType

	// Provider overrides the configured intelligence backend.
	Provider string

	// TimePeriod is the synthesis lookback label, for example last_30_days.
	TimePeriod string

	// GeographicFocus narrows synthesis and discovery queries.
	GeographicFocus []string

	// Terms are extra query terms for the source passes.
	Terms []string

	// DisableSnowball turns off citation chasing for this cycle only.
	DisableSnowball bool
}

// PhaseResult records one phase of a cycle.
type PhaseResult struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// CollectionCycleResult is the full accounting of one cycle. It is populated
// on every return, including cancelled and panicking cycles.
type CollectionCycleResult struct {
	CycleID   string        `json:"cycle_id"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Phases    []PhaseResult `json:"phases"`

	IntelligenceReports  int `json:"intelligence_reports"`
	TargetsDiscovered    int `json:"targets_discovered"`
	InnovationsExtracted int `json:"innovations_extracted"`
	DuplicatesRemoved    int `json:"duplicates_removed"`
	RecordsStored        int `json:"records_stored"`
	BackfilledFields     int `json:"backfilled_fields"`
	SnowballDiscoveries  int `json:"snowball_discoveries"`

	// TotalItemsProcessed sums reports, extracted candidates, source pass
	// items, backfilled fields, and snowball discoveries.
	TotalItemsProcessed int `json:"total_items_processed"`

	Errors          []string `json:"errors,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Backfiller runs one enrichment pass over incomplete records. *Backfill
// satisfies it.
type Backfiller interface {
	RunPass(ctx context.Context) (BackfillPassStats, error)
}

// CostReporter exposes the mediator's budget ledger. *mediator.Mediator
// satisfies it.
type CostReporter interface {
	Costs() mediator.CostSnapshot
}

// Target is one lead worth turning into a candidate record: an entity named
// in intelligence prose or a URL it cited, with the finding that produced it.
type Target struct {
	Name       string
	URL        string
	Snippet    string
	ReportID   string
	Finding    types.StructuredFinding
	Confidence float64
}

// Orchestrator runs the collection cycle end to end: synthesis, target
// extraction, admission, source passes, enrichment, and citation snowball.
// At most one cycle runs at a time; a second call returns immediately with
// an error entry instead of queueing.
type Orchestrator struct {
	cfg       *Config
	st        store.Gateway
	index     store.VectorIndex
	dedup     *Deduplicator
	extractor *Extractor
	sups      *Registry
	backfill  Backfiller
	costs     CostReporter
	intel     sources.Source
	arxiv     sources.Source
	pubmed    sources.Source
	news      sources.Source
	search    sources.Source
	clock     Clock
	log       *logger.Logger
	running   atomic.Bool
}

// OrchestratorDeps wires the cycle's collaborators. Config, Store, and Dedup
// are required. Nil sources skip their passes, a nil Backfill skips
// enrichment, and a nil Index disables citation title matching.
type OrchestratorDeps struct {
	Config      *Config
	Store       store.Gateway
	Index       store.VectorIndex
	Dedup       *Deduplicator
	Extractor   *Extractor
	Supervisors *Registry
	Backfill    Backfiller
	Costs       CostReporter
	Intel       sources.Source
	Arxiv       sources.Source
	Pubmed      sources.Source
	News        sources.Source
	WebSearch   sources.Source
	Clock       Clock
}

// NewOrchestrator builds the cycle runner.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	clock := deps.Clock
	if clock == nil {
		clock = RealClock{}
	}
	extractor := deps.Extractor
	if extractor == nil {
		extractor = NewExtractor()
	}
	return &Orchestrator{
		cfg:       deps.Config,
		st:        deps.Store,
		index:     deps.Index,
		dedup:     deps.Dedup,
		extractor: extractor,
		sups:      deps.Supervisors,
		backfill:  deps.Backfill,
		costs:     deps.Costs,
		intel:     deps.Intel,
		arxiv:     deps.Arxiv,
		pubmed:    deps.Pubmed,
		news:      deps.News,
		search:    deps.WebSearch,
		clock:     clock,
		log:       logger.New("orchestrator"),
	}
}

// Running reports whether a cycle is in flight.
func (o *Orchestrator) Running() bool { return o.running.Load() }

// RunCycle executes one collection cycle. It never panics outward and never
// returns an error: every failure lands in the result's phase records and
// error list so a broken provider cannot take the scheduler down with it.
func (o *Orchestrator) RunCycle(ctx context.Context, params CycleParams) *CollectionCycleResult {
	res := &CollectionCycleResult{
		CycleID:   uuid.New().String(),
		StartedAt: o.clock.Now(),
	}
	if !o.running.CompareAndSwap(false, true) {
		res.Errors = append(res.Errors, "collection cycle already running")
		res.EndedAt = o.clock.Now()
		return res
	}
	defer o.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("cycle panic: %v", r))
			if res.EndedAt.IsZero() {
				res.EndedAt = o.clock.Now()
			}
		}
	}()

	params = o.fillParams(params)
	o.log.Info("orchestrator", res.CycleID, "collection cycle started", map[string]interface{}{
		"report_types": len(params.ReportTypes),
		"time_period":  params.TimePeriod,
	})

	var (
		reports     []*types.IntelligenceReport
		targets     []Target
		candidates  []*types.Innovation
		admissions  []admission
		cycleErrs   []error
		passItems   int
		passFetched int
	)

	o.runPhase(ctx, res, phaseIntelligence, func(ctx context.Context) error {
		if o.cfg.Flags.DisableAIEnrichment || o.intel == nil {
			return errPhaseSkipped
		}
		var errs []error
		reports, errs = o.synthesizeReports(ctx, params)
		cycleErrs = append(cycleErrs, errs...)
		surfaceErrors(res, phaseIntelligence, errs)
		res.IntelligenceReports = len(reports)
		targets = o.discoverTargets(ctx, reports)
		res.TargetsDiscovered = len(targets)
		if len(reports) == 0 && len(errs) > 0 {
			return errors.New("every report type failed")
		}
		return nil
	})

	o.runPhase(ctx, res, phaseExtraction, func(ctx context.Context) error {
		if len(targets) == 0 {
			return errPhaseSkipped
		}
		candidates = o.extractTargets(targets)
		res.InnovationsExtracted = len(candidates)
		return nil
	})

	o.runPhase(ctx, res, phaseValidation, func(ctx context.Context) error {
		if len(candidates) == 0 {
			return errPhaseSkipped
		}
		var errs []error
		admissions, errs = o.admitCandidates(ctx, candidates)
		cycleErrs = append(cycleErrs, errs...)
		surfaceErrors(res, phaseValidation, errs)
		for _, a := range admissions {
			if a.outcome.Duplicate() {
				res.DuplicatesRemoved++
			} else {
				res.RecordsStored++
			}
		}
		if len(admissions) == 0 && len(errs) > 0 {
			return errors.New("no candidate survived admission")
		}
		return nil
	})

	o.runPhase(ctx, res, phasePersistence, func(ctx context.Context) error {
		if len(reports) == 0 && len(admissions) == 0 {
			return errPhaseSkipped
		}
		errs := o.persistArtifacts(ctx, reports, admissions)
		cycleErrs = append(cycleErrs, errs...)
		surfaceErrors(res, phasePersistence, errs)
		if len(errs) > 0 {
			return fmt.Errorf("%d save failures", len(errs))
		}
		return nil
	})

	o.runPhase(ctx, res, phaseSourcePasses, func(ctx context.Context) error {
		if o.sups == nil {
			return errPhaseSkipped
		}
		items, fetched, dups, stored, errs := o.runSourcePasses(ctx, params)
		passItems = items
		passFetched = fetched
		res.DuplicatesRemoved += dups
		res.RecordsStored += stored
		cycleErrs = append(cycleErrs, errs...)
		surfaceErrors(res, phaseSourcePasses, errs)
		if items == 0 && len(errs) > 0 {
			return errors.New("every source pass failed")
		}
		return nil
	})

	o.runPhase(ctx, res, phaseEnrichment, func(ctx context.Context) error {
		n, err := o.runEnrichment(ctx)
		res.BackfilledFields = n
		return err
	})

	o.runPhase(ctx, res, phaseSnowball, func(ctx context.Context) error {
		if params.DisableSnowball || len(reports) == 0 || o.cfg.Snowball.MaxDepth < 1 {
			return errPhaseSkipped
		}
		n, errs := o.snowball(ctx, reports)
		res.SnowballDiscoveries = n
		cycleErrs = append(cycleErrs, errs...)
		surfaceErrors(res, phaseSnowball, errs)
		return nil
	})

	res.TotalItemsProcessed = res.IntelligenceReports + res.InnovationsExtracted +
		passItems + res.BackfilledFields + res.SnowballDiscoveries
	res.Recommendations = o.recommend(res, cycleErrs, passFetched)
	res.EndedAt = o.clock.Now()
	promCycleDuration.Observe(res.EndedAt.Sub(res.StartedAt).Seconds())

	o.log.InfoWithDuration("orchestrator", res.CycleID, "collection cycle completed",
		float64(res.EndedAt.Sub(res.StartedAt).Milliseconds()), map[string]interface{}{
			"reports":    res.IntelligenceReports,
			"stored":     res.RecordsStored,
			"duplicates": res.DuplicatesRemoved,
			"errors":     len(res.Errors),
		})
	return res
}

func (o *Orchestrator) fillParams(p CycleParams) CycleParams {
	if len(p.ReportTypes) == 0 {
		p.ReportTypes = types.AllReportTypes
	}
	if p.TimePeriod == "" {
		p.TimePeriod = defaultTimePeriod
	}
	if len(p.GeographicFocus) == 0 {
		p.GeographicFocus = o.cfg.GeographicFocus
	}
	return p
}

// runPhase executes one phase with panic containment and records its result.
// Once the cycle context is cancelled, remaining phases fail fast without
// running.
func (o *Orchestrator) runPhase(ctx context.Context, res *CollectionCycleResult, name string, fn func(context.Context) error) {
	start := o.clock.Now()
	var err error
	if ctx.Err() != nil {
		err = fmt.Errorf("%s: %w", types.ErrKindCancelled, ctx.Err())
	} else {
		err = o.safePhase(ctx, fn)
	}

	pr := PhaseResult{Name: name, DurationMs: o.clock.Now().Sub(start).Milliseconds()}
	switch {
	case errors.Is(err, errPhaseSkipped):
		pr.Status = "skipped"
	case err != nil:
		pr.Status = "failed"
		pr.Error = err.Error()
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", name, err))
	default:
		pr.Status = "succeeded"
	}
	res.Phases = append(res.Phases, pr)
}

// surfaceErrors copies up to three phase errors into the cycle result so
// one flapping provider cannot flood it.
func surfaceErrors(res *CollectionCycleResult, phase string, errs []error) {
	for i, err := range errs {
		if i == 3 {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %d more errors", phase, len(errs)-i))
			return
		}
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", phase, err))
	}
}

func (o *Orchestrator) safePhase(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", types.ErrKindInternal, r)
		}
	}()
	return fn(ctx)
}

// synthesizeReports runs one intelligence call per report type under a
// bounded worker pool. Individual failures are collected, not fatal.
func (o *Orchestrator) synthesizeReports(ctx context.Context, params CycleParams) ([]*types.IntelligenceReport, []error) {
	var (
		mu      sync.Mutex
		reports []*types.IntelligenceReport
		errs    []error
	)

	g := new(errgroup.Group)
	g.SetLimit(maxSynthesisWorkers)
	for _, rt := range params.ReportTypes {
		rt := rt
		g.Go(func() error {
			rep, err := o.synthesizeOne(ctx, rt, params)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("synthesize %s: %w", rt, err))
				return nil
			}
			if rep != nil {
				reports = append(reports, rep)
			}
			return nil
		})
	}
	_ = g.Wait()

	rank := make(map[types.ReportType]int, len(params.ReportTypes))
	for i, rt := range params.ReportTypes {
		rank[rt] = i
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return rank[reports[i].ReportType] < rank[reports[j].ReportType]
	})
	return reports, errs
}

func (o *Orchestrator) synthesizeOne(ctx context.Context, rt types.ReportType, params CycleParams) (*types.IntelligenceReport, error) {
	it, err := o.intel.Fetch(ctx, sources.QuerySpec{
		ReportType:      string(rt),
		TimePeriod:      params.TimePeriod,
		GeographicFocus: params.GeographicFocus,
		Provider:        params.Provider,
	})
	if err != nil {
		return nil, err
	}
	raw, ok := it.Next()
	if !ok {
		return nil, nil
	}
	rec, discard := o.intel.Parse(raw)
	if discard != nil {
		return nil, fmt.Errorf("report discarded: %s", discard)
	}
	ir, ok := rec.(*sources.IntelReport)
	if !ok {
		return nil, fmt.Errorf("unexpected record type %T", rec)
	}

	rep := o.extractor.Extract(ir.Text)
	rep.ReportID = uuid.New().String()
	rep.ReportType = rt
	rep.GeneratedAt = o.clock.Now()
	rep.TimePeriod = ir.TimePeriod
	if rep.TimePeriod == "" {
		rep.TimePeriod = params.TimePeriod
	}
	rep.Title = fmt.Sprintf("African AI %s (%s)", strings.ReplaceAll(string(rt), "_", " "), rep.TimePeriod)
	rep.Provider = ir.Provider
	if len(rep.GeographicFocus) == 0 {
		rep.GeographicFocus = params.GeographicFocus
	}
	// Provider citations the prose did not repeat inline still count as
	// sources.
	rep.Sources = appendUnique(rep.Sources, ir.Citations...)
	return rep, nil
}

// discoverTargets turns report entities and cited URLs into targets. Company
// targets without a URL get at most maxURLDiscoveryCalls web lookups.
func (o *Orchestrator) discoverTargets(ctx context.Context, reports []*types.IntelligenceReport) []Target {
	var targets []Target
	seenName := make(map[string]bool)
	seenURL := make(map[string]bool)

	for _, rep := range reports {
		for _, f := range rep.StructuredFindings {
			for _, company := range f.Companies {
				key := strings.ToLower(company)
				if seenName[key] {
					continue
				}
				seenName[key] = true
				targets = append(targets, Target{
					Name:       company,
					ReportID:   rep.ReportID,
					Finding:    f,
					Confidence: f.Confidence,
				})
			}
		}
		for _, src := range rep.Sources {
			if seenURL[src] {
				continue
			}
			seenURL[src] = true
			targets = append(targets, Target{
				URL:        src,
				ReportID:   rep.ReportID,
				Confidence: rep.ConfidenceScore,
			})
		}
	}

	o.resolveTargetURLs(ctx, targets)
	return targets
}

func (o *Orchestrator) resolveTargetURLs(ctx context.Context, targets []Target) {
	if o.search == nil || o.cfg.Flags.DisableExternalSearch {
		return
	}
	budget := maxURLDiscoveryCalls
	for i := range targets {
		if targets[i].URL != "" || targets[i].Name == "" {
			continue
		}
		if budget == 0 || ctx.Err() != nil {
			return
		}
		budget--
		hit := o.topHit(ctx, fmt.Sprintf("%q official website", targets[i].Name))
		if hit == nil {
			continue
		}
		targets[i].URL = hit.Link
		if targets[i].Snippet == "" {
			targets[i].Snippet = hit.Snippet
		}
	}
}

// topHit runs one web search and returns the first parseable result.
func (o *Orchestrator) topHit(ctx context.Context, query string) *sources.SearchHit {
	it, err := o.search.Fetch(ctx, sources.QuerySpec{Terms: []string{query}, MaxResults: 3})
	if err != nil {
		log.Printf("[Orchestrator] ⚠️ web lookup %q failed: %v", query, err)
		return nil
	}
	for {
		raw, ok := it.Next()
		if !ok {
			return nil
		}
		rec, discard := o.search.Parse(raw)
		if discard != nil {
			continue
		}
		if hit, ok := rec.(*sources.SearchHit); ok {
			return hit
		}
	}
}

func (o *Orchestrator) extractTargets(targets []Target) []*types.Innovation {
	out := make([]*types.Innovation, 0, len(targets))
	for _, t := range targets {
		if inn := o.extractTarget(t); inn != nil {
			out = append(out, inn)
		}
	}
	return out
}

// Content types drive the per-target extraction schema.
const (
	contentStartupProfile = "startup_profile"
	contentRepository     = "repository"
	contentPaper          = "paper"
	contentNewsArticle    = "news_article"
	contentFinding        = "intel_finding"
)

var newsHosts = map[string]bool{
	"techcrunch.com":     true,
	"techcabal.com":      true,
	"techpoint.africa":   true,
	"disrupt-africa.com": true,
	"ventureburn.com":    true,
	"medium.com":         true,
}

func contentTypeFor(rawURL string) string {
	if rawURL == "" {
		return contentFinding
	}
	host := hostOf(rawURL)
	switch {
	case host == "github.com" || host == "gitlab.com":
		return contentRepository
	case host == "arxiv.org" || host == "doi.org" || host == "biorxiv.org" || strings.HasSuffix(host, "nih.gov"):
		return contentPaper
	case newsHosts[host]:
		return contentNewsArticle
	}
	return contentStartupProfile
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func innovationTypeFor(contentType string) types.InnovationType {
	switch contentType {
	case contentPaper:
		return types.TypeResearch
	case contentRepository:
		return types.TypePlatform
	default:
		return types.TypeStartup
	}
}

// extractTarget builds a candidate record from one target using the schema
// for its content type. Completeness and confidence are scored here; the
// admission gates decide downstream.
func (o *Orchestrator) extractTarget(t Target) *types.Innovation {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		name = hostOf(t.URL)
	}
	if name == "" {
		return nil
	}

	contentType := contentTypeFor(t.URL)
	now := o.clock.Now()
	inn := &types.Innovation{
		Title:              name,
		InnovationType:     innovationTypeFor(contentType),
		VerificationStatus: types.VerificationPending,
		Visibility:         types.VisibilityHidden,
		SourceURL:          t.URL,
		SourceKind:         targetSourceKind(t),
		Confidence:         t.Confidence,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	switch contentType {
	case contentRepository:
		inn.GithubURL = t.URL
	case contentStartupProfile:
		inn.WebsiteURL = t.URL
	}

	inn.Description = strings.TrimSpace(t.Snippet)
	if inn.Description == "" {
		inn.Description = clipText(t.Finding.Paragraph, 280)
	}
	inn.Country = africanLocation(t.Finding.Locations)
	inn.Fundings = fundingsFromFinding(t.Finding, t.URL, nil)
	for _, org := range t.Finding.Institutions {
		inn.Organizations = append(inn.Organizations, types.OrgRef{Name: org, Role: "institution"})
	}
	inn.Tags = targetTags(t, contentType)
	inn.Completeness = innovationCompleteness(inn)
	return inn
}

// targetSourceKind keys the reliability table: intelligence-derived targets
// rank below web search hits.
func targetSourceKind(t Target) string {
	if t.ReportID != "" {
		return "llm"
	}
	return "web"
}

func targetTags(t Target, contentType string) []string {
	tags := []string{"ai"}
	switch contentType {
	case contentRepository:
		tags = append(tags, "open-source")
	case contentPaper:
		tags = append(tags, "research")
	}
	if len(t.Finding.FundingAmounts) > 0 || len(t.Finding.RoundTypes) > 0 {
		tags = append(tags, "funding")
	}
	return tags
}

func africanLocation(locations []string) string {
	for _, loc := range locations {
		if sources.IsAfricanCountry(loc) {
			return loc
		}
	}
	return ""
}

func fundingsFromFinding(f types.StructuredFinding, sourceURL string, announced *time.Time) []types.FundingEvent {
	var out []types.FundingEvent
	for _, a := range f.FundingAmounts {
		if !a.Parsed {
			continue
		}
		ev := types.FundingEvent{
			Amount:      a.USD,
			AmountText:  a.Text,
			AnnouncedAt: announced,
			SourceURL:   sourceURL,
		}
		if len(out) == 0 && len(f.RoundTypes) > 0 {
			ev.RoundType = f.RoundTypes[0]
		}
		out = append(out, ev)
		if len(out) == 3 {
			break
		}
	}
	return out
}

func clipText(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	clipped := s[:max]
	if i := strings.LastIndexByte(clipped, ' '); i > 0 {
		clipped = clipped[:i]
	}
	return clipped + "..."
}

type admission struct {
	inn     *types.Innovation
	outcome DedupOutcome
}

func (o *Orchestrator) admissible(inn *types.Innovation) bool {
	return inn.Completeness >= o.cfg.Admission.MinCompleteness &&
		inn.Confidence >= o.cfg.Admission.MinConfidence
}

// admitCandidates gates and deduplicates candidates sequentially, preserving
// discovery order so fingerprint ties resolve deterministically.
func (o *Orchestrator) admitCandidates(ctx context.Context, cands []*types.Innovation) ([]admission, []error) {
	var (
		admitted []admission
		errs     []error
	)
	for _, cand := range cands {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if !o.admissible(cand) {
			continue
		}
		outcome, err := o.dedup.AdmitInnovation(ctx, cand, PolicyReject)
		if err != nil {
			errs = append(errs, fmt.Errorf("admit %q: %w", cand.Title, err))
			continue
		}
		admitted = append(admitted, admission{inn: cand, outcome: outcome})
	}
	return admitted, errs
}

// persistArtifacts saves the cycle's reports and retries vector pushes that
// failed during admission. Save failures surface; index retries stay
// advisory, matching the dedup layer.
func (o *Orchestrator) persistArtifacts(ctx context.Context, reports []*types.IntelligenceReport, admissions []admission) []error {
	var errs []error
	for _, rep := range reports {
		if err := o.st.SaveReport(ctx, rep); err != nil {
			errs = append(errs, fmt.Errorf("save report %s: %w", rep.ReportID, err))
		}
	}
	if o.index == nil {
		return errs
	}
	for _, a := range admissions {
		if a.outcome.Indexed || a.outcome.Action == ActionRejected {
			continue
		}
		inn := a.inn
		if a.outcome.CanonicalID != inn.ID {
			if fresh, err := o.st.GetInnovation(ctx, a.outcome.CanonicalID); err == nil {
				inn = fresh
			}
		}
		err := o.index.IndexRecord(ctx, store.IndexRecord{
			ID:    a.outcome.CanonicalID,
			Kind:  "innovation",
			Title: inn.Title,
			Text:  inn.Title + "\n" + inn.Description,
		})
		if err != nil {
			log.Printf("[Orchestrator] ⚠️ vector index retry failed for %s: %v", a.outcome.CanonicalID, err)
		}
	}
	return errs
}

type sourcePass struct {
	pipeline string
	fn       PipelineFunc
}

// passCounters aggregate raw fetch and store counts across the concurrent
// source passes. The persisted run cannot carry them: linked news members
// count as processed whether or not their upsert created a row.
type passCounters struct {
	raw    atomic.Int64
	stored atomic.Int64
}

// runSourcePasses triggers the per-source pipelines through their
// supervisors and waits for all of them. Disabled pipelines are silent;
// busy and failed ones are reported.
func (o *Orchestrator) runSourcePasses(ctx context.Context, params CycleParams) (items, fetched, dups, stored int, errs []error) {
	var counters passCounters

	var passes []sourcePass
	if o.arxiv != nil {
		passes = append(passes, sourcePass{PipelineAcademicArxiv, o.academicPass(o.arxiv, params, &counters)})
	}
	if o.pubmed != nil {
		passes = append(passes, sourcePass{PipelineAcademicPubmed, o.academicPass(o.pubmed, params, &counters)})
	}
	if o.news != nil {
		passes = append(passes, sourcePass{PipelineNews, o.newsPass(&counters)})
	}
	if o.search != nil {
		passes = append(passes, sourcePass{PipelineDiscovery, o.discoveryPass(params, &counters)})
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	for _, p := range passes {
		p := p
		sup, ok := o.sups.Get(p.pipeline)
		if !ok {
			continue
		}
		g.Go(func() error {
			verdict, run := sup.StartAndWait(ctx, p.fn)
			mu.Lock()
			defer mu.Unlock()
			switch verdict {
			case StartAlreadyRunning:
				errs = append(errs, fmt.Errorf("pipeline %s busy, pass skipped", p.pipeline))
			case StartAccepted:
				items += run.ItemsProcessed
				dups += run.DuplicatesRemoved
				if run.Status == types.RunFailed {
					errs = append(errs, fmt.Errorf("pipeline %s: %s", p.pipeline, run.Error))
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return items, int(counters.raw.Load()), dups, int(counters.stored.Load()), errs
}

// PipelineFuncFor returns the standalone work function for one named
// pipeline, so control-surface triggers run the same code a cycle pass
// runs. False means the pipeline's source is not wired.
func (o *Orchestrator) PipelineFuncFor(name string, params CycleParams) (PipelineFunc, bool) {
	params = o.fillParams(params)
	pc := new(passCounters)
	switch name {
	case PipelineNews:
		if o.news == nil {
			return nil, false
		}
		return o.newsPass(pc), true
	case PipelineAcademicArxiv:
		if o.arxiv == nil {
			return nil, false
		}
		return o.academicPass(o.arxiv, params, pc), true
	case PipelineAcademicPubmed:
		if o.pubmed == nil {
			return nil, false
		}
		return o.academicPass(o.pubmed, params, pc), true
	case PipelineAcademic:
		if o.arxiv == nil && o.pubmed == nil {
			return nil, false
		}
		return func(ctx context.Context) (RunStats, error) {
			var total RunStats
			var failures []string
			for _, src := range []sources.Source{o.arxiv, o.pubmed} {
				if src == nil {
					continue
				}
				stats, err := o.academicPass(src, params, pc)(ctx)
				total.ItemsProcessed += stats.ItemsProcessed
				total.ItemsFailed += stats.ItemsFailed
				total.DuplicatesRemoved += stats.DuplicatesRemoved
				total.BatchSize += stats.BatchSize
				if err != nil && !errors.Is(err, ErrRunSkipped) {
					failures = append(failures, fmt.Sprintf("%s: %v", src.Name(), err))
				}
			}
			if len(failures) > 0 {
				return total, errors.New(strings.Join(failures, "; "))
			}
			if total.BatchSize == 0 {
				return total, ErrRunSkipped
			}
			return total, nil
		}, true
	case PipelineDiscovery:
		if o.search == nil {
			return nil, false
		}
		return o.discoveryPass(params, pc), true
	case PipelineEnrichment:
		if o.backfill == nil {
			return nil, false
		}
		return func(ctx context.Context) (RunStats, error) {
			p, err := o.backfill.RunPass(ctx)
			stats := RunStats{ItemsProcessed: p.FieldsWritten, ItemsFailed: p.JobsFailed}
			if err != nil {
				return stats, err
			}
			if p.JobsProcessed == 0 && p.JobsSkipped == 0 {
				return stats, ErrRunSkipped
			}
			return stats, nil
		}, true
	}
	return nil, false
}

// academicPass ingests one academic feed: fetch, parse, relevance filter,
// then merge-policy admission so multi-source papers enrich the canonical
// row instead of bouncing off it.
func (o *Orchestrator) academicPass(src sources.Source, params CycleParams, pc *passCounters) PipelineFunc {
	return func(ctx context.Context) (RunStats, error) {
		var stats RunStats
		it, err := src.Fetch(ctx, sources.QuerySpec{
			Terms:      params.Terms,
			MaxResults: o.cfg.Flags.MaxETLBatchSize,
		})
		if err != nil {
			return stats, err
		}
		pc.raw.Add(int64(it.Len()))
		stats.BatchSize = it.Len()
		if it.Len() == 0 {
			return stats, ErrRunSkipped
		}

		th := o.cfg.ThresholdsFor(src.Name())
		for {
			raw, ok := it.Next()
			if !ok {
				break
			}
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			rec, discard := src.Parse(raw)
			if discard != nil {
				if discard.Reason == sources.DiscardValidationFailed {
					stats.ItemsFailed++
				}
				continue
			}
			p, ok := rec.(*sources.Publication)
			if !ok {
				stats.ItemsFailed++
				continue
			}
			if p.AfricanScore < th.AfricanRelevance || p.AIScore < th.AIRelevance {
				continue
			}
			outcome, err := o.dedup.AdmitPublication(ctx, publicationFromSource(p), PolicyMerge)
			if err != nil {
				stats.ItemsFailed++
				continue
			}
			if outcome.Duplicate() {
				stats.DuplicatesRemoved++
			} else {
				stats.ItemsProcessed++
				pc.stored.Add(1)
			}
		}
		return stats, nil
	}
}

func publicationFromSource(p *sources.Publication) *types.Publication {
	return &types.Publication{
		Title:                 p.Title,
		Abstract:              p.Abstract,
		Authors:               p.Authors,
		PublicationDate:       p.Published,
		Year:                  p.Year,
		Venue:                 p.Venue,
		DOI:                   p.DOI,
		Source:                types.PublicationSource(p.Source),
		SourceID:              p.SourceID,
		Keywords:              p.Keywords,
		AfricanEntities:       p.AfricanEntities,
		AfricanRelevanceScore: p.AfricanScore,
		AIRelevanceScore:      p.AIScore,
	}
}

// newsPass ingests the RSS window, clusters articles by the event they
// cover, stores each cluster's best article as canonical, and links the
// rest with their detected relation.
func (o *Orchestrator) newsPass(pc *passCounters) PipelineFunc {
	return func(ctx context.Context) (RunStats, error) {
		var stats RunStats
		window := time.Duration(o.cfg.NewsWindowHrs) * time.Hour
		it, err := o.news.Fetch(ctx, sources.QuerySpec{Window: window})
		if err != nil {
			return stats, err
		}
		pc.raw.Add(int64(it.Len()))
		stats.BatchSize = it.Len()
		if it.Len() == 0 {
			return stats, ErrRunSkipped
		}

		th := o.cfg.ThresholdsFor(o.news.Name())
		var cands []NewsCandidate
		for {
			raw, ok := it.Next()
			if !ok {
				break
			}
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			rec, discard := o.news.Parse(raw)
			if discard != nil {
				if discard.Reason == sources.DiscardValidationFailed {
					stats.ItemsFailed++
				}
				continue
			}
			art, ok := rec.(*sources.NewsArticle)
			if !ok {
				stats.ItemsFailed++
				continue
			}
			if art.AfricanScore < th.AfricanRelevance || art.AIScore < th.AIRelevance {
				continue
			}
			cands = append(cands, o.newsCandidate(art))
		}
		if len(cands) == 0 {
			return stats, ErrRunSkipped
		}

		for _, cluster := range ClusterNewsCandidates(cands) {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			outcome, err := o.dedup.AdmitInnovation(ctx, cands[cluster.Canonical].Innovation, PolicyMerge)
			if err != nil {
				stats.ItemsFailed++
				continue
			}
			if outcome.Duplicate() {
				stats.DuplicatesRemoved++
			} else {
				stats.ItemsProcessed++
				pc.stored.Add(1)
			}
			for _, m := range cluster.Members {
				linked, err := o.dedup.LinkInnovation(ctx, cands[m.Index].Innovation, outcome.CanonicalID, m.Relation)
				if err != nil {
					stats.ItemsFailed++
					continue
				}
				stats.ItemsProcessed++
				if linked.Created {
					pc.stored.Add(1)
				}
			}
		}
		return stats, nil
	}
}

func (o *Orchestrator) newsCandidate(art *sources.NewsArticle) NewsCandidate {
	finding := bestFinding(extractStructuredFindings(art.Title + ". " + art.Summary))
	now := o.clock.Now()

	inn := &types.Innovation{
		Title:              strings.TrimSpace(art.Title),
		Description:        strings.TrimSpace(art.Summary),
		InnovationType:     types.TypeStartup,
		Country:            africanLocation(finding.Locations),
		VerificationStatus: types.VerificationPending,
		Visibility:         types.VisibilityHidden,
		SourceURL:          art.Link,
		SourceKind:         "news",
		Confidence:         newsConfidence(art, finding),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	inn.Fundings = fundingsFromFinding(finding, art.Link, art.Published)
	for i, company := range finding.Companies {
		role := "company"
		if i > 0 {
			role = "partner"
		}
		inn.Organizations = append(inn.Organizations, types.OrgRef{Name: company, Role: role})
	}
	inn.Tags = newsTags(finding)
	inn.Completeness = innovationCompleteness(inn)
	return NewsCandidate{Innovation: inn, Finding: finding}
}

func bestFinding(findings []types.StructuredFinding) types.StructuredFinding {
	var best types.StructuredFinding
	for _, f := range findings {
		if f.Confidence > best.Confidence {
			best = f
		}
	}
	return best
}

func newsConfidence(art *sources.NewsArticle, finding types.StructuredFinding) float64 {
	if finding.Confidence > 0 {
		return finding.Confidence
	}
	return (art.AfricanScore + art.AIScore) / 2
}

func newsTags(f types.StructuredFinding) []string {
	tags := []string{"ai"}
	if len(f.FundingAmounts) > 0 || len(f.RoundTypes) > 0 {
		tags = append(tags, "funding")
	}
	return tags
}

// discoveryPass turns ranked web search hits into candidates under the
// reject policy. Rank decays confidence, so deep results fall below the
// admission gate on their own.
func (o *Orchestrator) discoveryPass(params CycleParams, pc *passCounters) PipelineFunc {
	return func(ctx context.Context) (RunStats, error) {
		var stats RunStats
		it, err := o.search.Fetch(ctx, sources.QuerySpec{
			Terms:      discoveryTerms(params),
			MaxResults: o.cfg.Flags.MaxETLBatchSize,
		})
		if err != nil {
			return stats, err
		}
		pc.raw.Add(int64(it.Len()))
		stats.BatchSize = it.Len()
		if it.Len() == 0 {
			return stats, ErrRunSkipped
		}

		for {
			raw, ok := it.Next()
			if !ok {
				break
			}
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			rec, discard := o.search.Parse(raw)
			if discard != nil {
				if discard.Reason == sources.DiscardValidationFailed {
					stats.ItemsFailed++
				}
				continue
			}
			hit, ok := rec.(*sources.SearchHit)
			if !ok {
				stats.ItemsFailed++
				continue
			}
			cand := o.extractTarget(Target{
				Name:       hit.Title,
				URL:        hit.Link,
				Snippet:    hit.Snippet,
				Confidence: hitConfidence(hit.Position),
			})
			if cand == nil || !o.admissible(cand) {
				continue
			}
			outcome, err := o.dedup.AdmitInnovation(ctx, cand, PolicyReject)
			if err != nil {
				stats.ItemsFailed++
				continue
			}
			if outcome.Duplicate() {
				stats.DuplicatesRemoved++
			} else {
				stats.ItemsProcessed++
				pc.stored.Add(1)
			}
		}
		return stats, nil
	}
}

func discoveryTerms(params CycleParams) []string {
	if len(params.Terms) > 0 {
		return params.Terms
	}
	focus := "Africa"
	if len(params.GeographicFocus) > 0 {
		focus = params.GeographicFocus[0]
	}
	return []string{focus, "AI startup funding announcement"}
}

func hitConfidence(position int) float64 {
	c := 0.8 - 0.05*float64(position-1)
	if c < 0.4 {
		return 0.4
	}
	return c
}

// runEnrichment executes one backfill pass under the enrichment supervisor
// so it shows up in pipeline status like any other run.
func (o *Orchestrator) runEnrichment(ctx context.Context) (int, error) {
	if o.backfill == nil || o.sups == nil {
		return 0, errPhaseSkipped
	}
	sup, ok := o.sups.Get(PipelineEnrichment)
	if !ok {
		return 0, errPhaseSkipped
	}

	var pass BackfillPassStats
	verdict, run := sup.StartAndWait(ctx, func(ctx context.Context) (RunStats, error) {
		p, err := o.backfill.RunPass(ctx)
		pass = p
		stats := RunStats{ItemsProcessed: p.FieldsWritten, ItemsFailed: p.JobsFailed}
		if err != nil {
			return stats, err
		}
		if p.JobsProcessed == 0 && p.JobsSkipped == 0 {
			return stats, ErrRunSkipped
		}
		return stats, nil
	})
	switch verdict {
	case StartDisabled:
		return 0, errPhaseSkipped
	case StartAlreadyRunning:
		return 0, errors.New("enrichment pipeline busy")
	}
	if run != nil && run.Status == types.RunFailed {
		return pass.FieldsWritten, errors.New(run.Error)
	}
	return pass.FieldsWritten, nil
}

// snowball resolves the cycle's extracted citations against the store, then
// chases confident unresolved ones through a bounded number of targeted
// searches. URL-shaped citations already flowed through target discovery.
func (o *Orchestrator) snowball(ctx context.Context, reports []*types.IntelligenceReport) (int, []error) {
	var (
		discoveries int
		errs        []error
	)
	searchBudget := o.cfg.Snowball.MaxCitations
	chaseAllowed := o.cfg.Snowball.MaxDepth >= 2 &&
		!o.cfg.Flags.DisableExternalSearch && o.search != nil

	for _, rep := range reports {
		changed := false
		for i := range rep.ExtractedCitations {
			if ctx.Err() != nil {
				return discoveries, append(errs, ctx.Err())
			}
			c := &rep.ExtractedCitations[i]
			if c.Resolution != types.CitationUnresolved || isURLCitation(c.Raw) {
				continue
			}

			if id, ok := o.resolveCitation(ctx, c.Raw); ok {
				c.Resolution = types.ResolvedTo(id)
				changed = true
				continue
			}
			if c.Confidence < o.cfg.Snowball.MinCitationConfidence {
				continue
			}
			if !chaseAllowed || searchBudget == 0 {
				continue
			}
			searchBudget--
			id, stored, resolved := o.chaseCitation(ctx, *c)
			changed = true
			if resolved {
				c.Resolution = types.ResolvedTo(id)
				if stored {
					discoveries++
				}
			} else {
				c.Resolution = types.CitationUnresolvable
			}
		}
		if changed {
			if err := o.st.SaveReport(ctx, rep); err != nil {
				errs = append(errs, fmt.Errorf("update report %s: %w", rep.ReportID, err))
			}
		}
	}
	return discoveries, errs
}

func isURLCitation(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}

// resolveCitation checks whether the store already holds the cited work:
// DOIs and arxiv IDs by identity, author-year references by title
// similarity.
func (o *Orchestrator) resolveCitation(ctx context.Context, raw string) (string, bool) {
	switch {
	case strings.HasPrefix(raw, "10."):
		if pub, err := o.st.PublicationByDOI(ctx, raw); err == nil {
			return pub.ID, true
		}
	case isArxivCitation(raw):
		if pub, err := o.st.PublicationBySourceID(ctx, types.SourceArxiv, arxivIDOf(raw)); err == nil {
			return pub.ID, true
		}
	default:
		if o.index == nil {
			return "", false
		}
		matches, err := o.index.Search(ctx, raw, "publication", 1)
		if err == nil && len(matches) > 0 && matches[0].Similarity >= o.cfg.Dedup.SimilarityHigh {
			return matches[0].RecordID, true
		}
	}
	return "", false
}

func isArxivCitation(raw string) bool {
	return strings.HasPrefix(strings.ToLower(raw), "arxiv:")
}

func arxivIDOf(raw string) string {
	return strings.TrimSpace(raw[len("arxiv:"):])
}

// chaseCitation searches for an unresolved citation and admits what it
// finds as a publication stub. Identity hints from the citation itself ride
// along so future cycles resolve it without a search.
func (o *Orchestrator) chaseCitation(ctx context.Context, c types.ExtractedCitation) (id string, stored, resolved bool) {
	hit := o.topHit(ctx, citationQuery(c))
	if hit == nil {
		return "", false, false
	}
	pub := &types.Publication{
		Title:    strings.TrimSpace(hit.Title),
		Abstract: strings.TrimSpace(hit.Snippet),
		Source:   types.SourceOtherPublication,
	}
	if pub.Title == "" {
		return "", false, false
	}
	switch {
	case strings.HasPrefix(c.Raw, "10."):
		pub.DOI = c.Raw
	case isArxivCitation(c.Raw):
		pub.Source = types.SourceArxiv
		pub.SourceID = arxivIDOf(c.Raw)
	}

	outcome, err := o.dedup.AdmitPublication(ctx, pub, PolicyReject)
	if err != nil {
		log.Printf("[Orchestrator] ⚠️ citation admit %q failed: %v", c.Raw, err)
		return "", false, false
	}
	return outcome.CanonicalID, outcome.Action == ActionStored, true
}

func citationQuery(c types.ExtractedCitation) string {
	if strings.HasPrefix(c.Raw, "10.") || isArxivCitation(c.Raw) {
		return c.Raw
	}
	if len(strings.Fields(c.Context)) >= 4 {
		return c.Context
	}
	return c.Raw
}

// recommend derives operator hints from the cycle's shape.
func (o *Orchestrator) recommend(res *CollectionCycleResult, errs []error, fetched int) []string {
	var recs []string

	if res.TargetsDiscovered > 0 {
		rate := float64(res.InnovationsExtracted) / float64(res.TargetsDiscovered)
		if rate < extractionSuccessFloor {
			recs = append(recs, fmt.Sprintf(
				"extraction converted %.0f%% of %d targets; improve URL discovery or extraction patterns",
				rate*100, res.TargetsDiscovered))
		}
	}

	costLimited := false
	for _, err := range errs {
		if mediator.KindOf(err) == mediator.KindCostLimit {
			costLimited = true
			break
		}
	}
	if costLimited {
		recs = append(recs, fmt.Sprintf(
			"daily cost limit reached mid-cycle; raise daily_cost_limit_usd (currently $%.2f) or run fewer report types",
			o.cfg.Flags.DailyCostLimitUSD))
	} else if o.costs != nil {
		snap := o.costs.Costs()
		if snap.LimitUSD > 0 && snap.RemainingUSD <= snap.LimitUSD*0.1 {
			recs = append(recs, fmt.Sprintf(
				"budget nearly exhausted: $%.2f of $%.2f remaining", snap.RemainingUSD, snap.LimitUSD))
		}
	}

	if fetched == 0 && res.TargetsDiscovered == 0 && len(res.Errors) == 0 {
		recs = append(recs, "no source returned any item; broaden query terms or extend the news window")
	}
	if res.DuplicatesRemoved > 0 && res.DuplicatesRemoved > res.RecordsStored {
		recs = append(recs, "most candidates were already known; consider a longer schedule interval")
	}
	return recs
}
