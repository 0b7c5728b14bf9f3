// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"baobab/platform/collector/mediator"
	"baobab/platform/collector/sources"
	"baobab/platform/collector/store"
	"baobab/platform/shared/types"
)

// fakeStore is an in-memory store.Gateway so pipeline logic can be
// exercised without a database. Records are copied in and out the way a
// real row round-trip would.
type fakeStore struct {
	mu  sync.Mutex
	seq int

	inns     map[string]*types.Innovation
	innOrder []string
	innFP    map[string]string

	pubs     map[string]*types.Publication
	pubOrder []string
	pubFP    map[string]string
	pubDOI   map[string]string
	pubSrc   map[string]string

	reports []types.IntelligenceReport
	runs    []*types.PipelineRun
	jobs    []*types.BackfillJob
	subs    []types.CommunitySubmission
	votes   map[string]map[string]bool
	links   []fakeLink

	failUpdate bool
}

type fakeLink struct {
	CanonicalID string
	LinkedID    string
	Relation    string
}

var _ store.Gateway = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		inns:   make(map[string]*types.Innovation),
		innFP:  make(map[string]string),
		pubs:   make(map[string]*types.Publication),
		pubFP:  make(map[string]string),
		pubDOI: make(map[string]string),
		pubSrc: make(map[string]string),
		votes:  make(map[string]map[string]bool),
	}
}

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// --- innovations ---

func (s *fakeStore) UpsertInnovation(_ context.Context, inn *types.Innovation) (store.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.innFP[inn.Fingerprint]; ok {
		return store.UpsertOutcome{ID: id, Created: false}, nil
	}
	cp := *inn
	if cp.ID == "" {
		cp.ID = s.nextID("inn")
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.inns[cp.ID] = &cp
	s.innOrder = append(s.innOrder, cp.ID)
	s.innFP[cp.Fingerprint] = cp.ID
	return store.UpsertOutcome{ID: cp.ID, Created: true}, nil
}

func (s *fakeStore) UpdateInnovation(_ context.Context, inn *types.Innovation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate {
		return fmt.Errorf("update rejected")
	}
	if _, ok := s.inns[inn.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *inn
	s.inns[inn.ID] = &cp
	return nil
}

func (s *fakeStore) GetInnovation(_ context.Context, id string) (*types.Innovation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inn, ok := s.inns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *inn
	return &cp, nil
}

func (s *fakeStore) InnovationByFingerprint(_ context.Context, fingerprint string) (*types.Innovation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.innFP[fingerprint]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s.inns[id]
	return &cp, nil
}

func (s *fakeStore) RecentInnovations(_ context.Context, limit int) ([]types.Innovation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	var out []types.Innovation
	for i := len(s.innOrder) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.inns[s.innOrder[i]])
	}
	return out, nil
}

func (s *fakeStore) InnovationsForBackfill(_ context.Context, before time.Time, limit int) ([]types.Innovation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	var out []types.Innovation
	for _, id := range s.innOrder {
		inn := s.inns[id]
		last := inn.Backfill.LastBackfillAt
		if last == nil || last.Before(before) {
			out = append(out, *inn)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) LinkInnovations(_ context.Context, canonicalID, linkedID, relation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.links {
		if l.CanonicalID == canonicalID && l.LinkedID == linkedID {
			s.links[i].Relation = relation
			return nil
		}
	}
	s.links = append(s.links, fakeLink{CanonicalID: canonicalID, LinkedID: linkedID, Relation: relation})
	return nil
}

func (s *fakeStore) linkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

func (s *fakeStore) lastLink() (fakeLink, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.links) == 0 {
		return fakeLink{}, false
	}
	return s.links[len(s.links)-1], true
}

// --- publications ---

func pubSrcKey(source types.PublicationSource, sourceID string) string {
	return string(source) + "|" + sourceID
}

func (s *fakeStore) UpsertPublication(_ context.Context, pub *types.Publication) (store.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.pubFP[pub.Fingerprint]; ok {
		return store.UpsertOutcome{ID: id, Created: false}, nil
	}
	cp := *pub
	if cp.ID == "" {
		cp.ID = s.nextID("pub")
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.pubs[cp.ID] = &cp
	s.pubOrder = append(s.pubOrder, cp.ID)
	s.pubFP[cp.Fingerprint] = cp.ID
	if cp.DOI != "" {
		s.pubDOI[cp.DOI] = cp.ID
	}
	if cp.SourceID != "" {
		s.pubSrc[pubSrcKey(cp.Source, cp.SourceID)] = cp.ID
	}
	return store.UpsertOutcome{ID: cp.ID, Created: true}, nil
}

func (s *fakeStore) UpdatePublication(_ context.Context, pub *types.Publication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pubs[pub.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *pub
	s.pubs[pub.ID] = &cp
	return nil
}

func (s *fakeStore) GetPublication(_ context.Context, id string) (*types.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pub, ok := s.pubs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *pub
	return &cp, nil
}

func (s *fakeStore) PublicationByFingerprint(_ context.Context, fingerprint string) (*types.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.pubFP[fingerprint]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s.pubs[id]
	return &cp, nil
}

func (s *fakeStore) PublicationByDOI(_ context.Context, doi string) (*types.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.pubDOI[doi]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s.pubs[id]
	return &cp, nil
}

func (s *fakeStore) PublicationBySourceID(_ context.Context, source types.PublicationSource, sourceID string) (*types.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.pubSrc[pubSrcKey(source, sourceID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s.pubs[id]
	return &cp, nil
}

func (s *fakeStore) RecentPublications(_ context.Context, limit int) ([]types.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	var out []types.Publication
	for i := len(s.pubOrder) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.pubs[s.pubOrder[i]])
	}
	return out, nil
}

// --- reports ---

func (s *fakeStore) SaveReport(_ context.Context, report *types.IntelligenceReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.reports {
		if s.reports[i].ReportID == report.ReportID {
			s.reports[i] = *report
			return nil
		}
	}
	s.reports = append(s.reports, *report)
	return nil
}

func (s *fakeStore) reportByID(id string) (types.IntelligenceReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rep := range s.reports {
		if rep.ReportID == id {
			return rep, true
		}
	}
	return types.IntelligenceReport{}, false
}

func (s *fakeStore) RecentReports(_ context.Context, limit int) ([]types.IntelligenceReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	var out []types.IntelligenceReport
	for i := len(s.reports) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.reports[i])
	}
	return out, nil
}

// --- runs ---

func (s *fakeStore) CreateRun(_ context.Context, run *types.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs = append(s.runs, &cp)
	return nil
}

func (s *fakeStore) CompleteRun(_ context.Context, run *types.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, have := range s.runs {
		if have.RunID == run.RunID {
			cp := *run
			s.runs[i] = &cp
			return nil
		}
	}
	cp := *run
	s.runs = append(s.runs, &cp)
	return nil
}

func (s *fakeStore) RecentRuns(_ context.Context, pipeline string, limit int) ([]types.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	var out []types.PipelineRun
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.runs[i].PipelineName == pipeline {
			out = append(out, *s.runs[i])
		}
	}
	return out, nil
}

func (s *fakeStore) LastCompletedRun(_ context.Context, pipeline string) (*types.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.runs) - 1; i >= 0; i-- {
		run := s.runs[i]
		if run.PipelineName == pipeline && run.Status != types.RunRunning {
			cp := *run
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) RecoverStaleRuns(_ context.Context, staleBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recovered int64
	for _, run := range s.runs {
		if run.Status == types.RunRunning && run.StartedAt.Before(staleBefore) {
			run.Status = types.RunFailed
			run.Error = "recovered stale run"
			recovered++
		}
	}
	return recovered, nil
}

// --- backfill jobs ---

func (s *fakeStore) SaveBackfillJob(_ context.Context, job *types.BackfillJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, have := range s.jobs {
		if have.JobID == job.JobID {
			cp := *job
			s.jobs[i] = &cp
			return nil
		}
	}
	cp := *job
	s.jobs = append(s.jobs, &cp)
	return nil
}

func (s *fakeStore) BackfillJobCounts(_ context.Context) (map[types.BackfillStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[types.BackfillStatus]int)
	for _, job := range s.jobs {
		out[job.Status]++
	}
	return out, nil
}

func (s *fakeStore) lastJob() (types.BackfillJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		return types.BackfillJob{}, false
	}
	return *s.jobs[len(s.jobs)-1], true
}

// --- community ---

func (s *fakeStore) SaveSubmission(_ context.Context, sub *types.CommunitySubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, *sub)
	return nil
}

func (s *fakeStore) SaveVote(_ context.Context, vote *types.CommunityVote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byVoter, ok := s.votes[vote.InnovationID]
	if !ok {
		byVoter = make(map[string]bool)
		s.votes[vote.InnovationID] = byVoter
	}
	byVoter[vote.VoterID] = vote.Upvote
	return nil
}

func (s *fakeStore) UpvoteCount(_ context.Context, innovationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, up := range s.votes[innovationID] {
		if up {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) PendingSubmissions(_ context.Context, limit int) ([]types.CommunitySubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.subs) {
		limit = len(s.subs)
	}
	out := make([]types.CommunitySubmission, limit)
	copy(out, s.subs[:limit])
	return out, nil
}

// fakeIndex is an in-memory store.VectorIndex with canned search results
// keyed by query string.
type fakeIndex struct {
	mu        sync.Mutex
	records   map[string]store.IndexRecord
	results   map[string][]store.Match
	writes    int
	searchErr error
	indexErr  error
}

var _ store.VectorIndex = (*fakeIndex)(nil)

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		records: make(map[string]store.IndexRecord),
		results: make(map[string][]store.Match),
	}
}

func (f *fakeIndex) stub(query string, matches ...store.Match) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[query] = matches
}

func (f *fakeIndex) IndexRecord(_ context.Context, rec store.IndexRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return f.indexErr
	}
	f.writes++
	f.records[rec.ID] = rec
	return nil
}

func (f *fakeIndex) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakeIndex) Search(_ context.Context, query, kind string, limit int) ([]store.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []store.Match
	for _, m := range f.results[query] {
		if kind != "" && m.Kind != kind {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeIndex) indexed(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[id]
	return ok
}

// fixedClock pins time for deterministic assertions.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

// stepClock is a fixedClock that tests can move forward.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSource scripts a source adapter. Fetch returns the queued records, the
// scripted error, or whatever fetchFn decides; Parse replays the typed
// record registered under the raw record's ID.
type fakeSource struct {
	mu       sync.Mutex
	name     string
	fetchErr error
	fetchFn  func(spec sources.QuerySpec) ([]sources.RawRecord, error)
	raws     []sources.RawRecord
	parsed   map[string]sources.TypedRecord
	discards map[string]*sources.Discard
	specs    []sources.QuerySpec
}

var _ sources.Source = (*fakeSource)(nil)

func newFakeSource(name string) *fakeSource {
	return &fakeSource{
		name:     name,
		parsed:   make(map[string]sources.TypedRecord),
		discards: make(map[string]*sources.Discard),
	}
}

func (f *fakeSource) add(id string, rec sources.TypedRecord) {
	f.raws = append(f.raws, sources.RawRecord{Source: f.name, ID: id})
	f.parsed[id] = rec
}

func (f *fakeSource) addDiscard(id string, d *sources.Discard) {
	f.raws = append(f.raws, sources.RawRecord{Source: f.name, ID: id})
	f.discards[id] = d
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(_ context.Context, spec sources.QuerySpec) (*sources.RecordIterator, error) {
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	fetchFn, fetchErr := f.fetchFn, f.fetchErr
	raws := append([]sources.RawRecord(nil), f.raws...)
	f.mu.Unlock()

	if fetchFn != nil {
		scripted, err := fetchFn(spec)
		if err != nil {
			return nil, err
		}
		return sources.NewRecordIterator(scripted), nil
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	return sources.NewRecordIterator(raws), nil
}

func (f *fakeSource) Parse(raw sources.RawRecord) (sources.TypedRecord, *sources.Discard) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.discards[raw.ID]; ok {
		return nil, d
	}
	return f.parsed[raw.ID], nil
}

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.specs)
}

func (f *fakeSource) lastSpec() sources.QuerySpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.specs) == 0 {
		return sources.QuerySpec{}
	}
	return f.specs[len(f.specs)-1]
}

func (f *fakeSource) specAt(i int) sources.QuerySpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.specs) {
		return sources.QuerySpec{}
	}
	return f.specs[i]
}

// fakeCosts serves a fixed budget snapshot.
type fakeCosts struct {
	mu   sync.Mutex
	snap mediator.CostSnapshot
}

func (f *fakeCosts) Costs() mediator.CostSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeCosts) setRemaining(limit, remaining float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.LimitUSD = limit
	f.snap.RemainingUSD = remaining
}
