// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"baobab/platform/collector/store"
	"baobab/platform/shared/types"
)

// DedupPolicy is what to do with a candidate once a duplicate is found.
type DedupPolicy string

const (
	PolicyReject DedupPolicy = "reject"
	PolicyMerge  DedupPolicy = "merge"
	PolicyUpdate DedupPolicy = "update"
	PolicyLink   DedupPolicy = "link"
)

// DedupAction is what the deduplicator actually did with a candidate.
type DedupAction string

const (
	// ActionStored means no duplicate existed; the candidate is now canonical.
	ActionStored   DedupAction = "stored"
	ActionRejected DedupAction = "rejected"
	ActionMerged   DedupAction = "merged"
	ActionUpdated  DedupAction = "updated"
	ActionLinked   DedupAction = "linked"
)

// Duplicate detection layers, strongest first.
const (
	LayerIdentity    = "identity"
	LayerFingerprint = "fingerprint"
	LayerVector      = "vector"
)

// DedupOutcome reports the decision for one candidate. CanonicalID is always
// the surviving record's identity, whether that is the candidate or the
// record it collided with.
type DedupOutcome struct {
	Action      DedupAction
	CanonicalID string
	// Layer names the detection layer that found the duplicate; empty when
	// the candidate was stored as new.
	Layer string
	// Similarity is the vector layer's top-1 score; zero for other layers.
	Similarity float64
	// Indexed is false when the outcome wrote canonical state but the
	// vector push failed. The orchestrator retries those after the batch.
	Indexed bool
	// Created is true when this call inserted a new row: always for
	// stored candidates, and for linked ones whose upsert did not collide.
	Created bool
}

// Duplicate reports whether the candidate collided with existing state.
func (o DedupOutcome) Duplicate() bool { return o.Action != ActionStored }

// Deduplicator decides, for each candidate record, whether canonical state
// already covers it and applies the configured policy. It is the write path
// to the store: pipelines hand it candidates and it owns upsert, merge,
// link, and vector indexing.
type Deduplicator struct {
	innovations  store.InnovationStore
	publications store.PublicationStore
	index        store.VectorIndex
	cfg          *Config
	clock        Clock
}

// NewDeduplicator wires the dedup engine. A nil index disables the fuzzy
// title layer, which degrades matching but never blocks ingestion.
func NewDeduplicator(innovations store.InnovationStore, publications store.PublicationStore, index store.VectorIndex, cfg *Config, clock Clock) *Deduplicator {
	if clock == nil {
		clock = RealClock{}
	}
	return &Deduplicator{
		innovations:  innovations,
		publications: publications,
		index:        index,
		cfg:          cfg,
		clock:        clock,
	}
}

// titleStopwords are dropped from titles before fingerprinting so "The AI
// Lab" and "AI Lab" collide.
var titleStopwords = map[string]bool{
	"a": true, "an": true, "and": true, "at": true, "by": true, "for": true,
	"from": true, "in": true, "of": true, "on": true, "or": true, "the": true,
	"to": true, "with": true,
}

var nonWordRe = regexp.MustCompile(`[^a-z0-9\s]+`)

// NormalizeTitle lowercases, strips non-word characters, and drops
// stopwords, producing the canonical token string the fingerprint hashes.
func NormalizeTitle(title string) string {
	lower := nonWordRe.ReplaceAllString(strings.ToLower(title), " ")
	var kept []string
	for _, w := range strings.Fields(lower) {
		if !titleStopwords[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// InnovationFingerprint derives the identity hash for an innovation.
func InnovationFingerprint(title string) string {
	return fingerprintOf(NormalizeTitle(title))
}

// PublicationFingerprint derives the identity hash for a publication. The
// first author's surname and the year join the normalized title so revised
// versions of one paper collide while different papers with generic titles
// do not.
func PublicationFingerprint(title string, authors []string, year int) string {
	parts := []string{NormalizeTitle(title)}
	if len(authors) > 0 {
		if s := surname(authors[0]); s != "" {
			parts = append(parts, s)
		}
	}
	if year > 0 {
		parts = append(parts, strconv.Itoa(year))
	}
	return fingerprintOf(strings.Join(parts, "|"))
}

// surname extracts the family name from "Ada Okafor" or "Okafor, Ada".
func surname(author string) string {
	if i := strings.Index(author, ","); i >= 0 {
		return strings.ToLower(strings.TrimSpace(author[:i]))
	}
	fields := strings.Fields(author)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

func fingerprintOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// AdmitInnovation runs the candidate through the detection layers and
// applies policy. Record-level failures return errors; the caller counts
// them and moves on.
func (d *Deduplicator) AdmitInnovation(ctx context.Context, cand *types.Innovation, policy DedupPolicy) (DedupOutcome, error) {
	if strings.TrimSpace(cand.Title) == "" {
		return DedupOutcome{}, errors.New("innovation title required")
	}
	if cand.Fingerprint == "" {
		cand.Fingerprint = InnovationFingerprint(cand.Title)
	}
	if cand.SourceReliability == 0 {
		cand.SourceReliability = d.cfg.ReliabilityFor(cand.SourceKind)
	}

	existing, layer, sim, weak, err := d.findInnovationDuplicate(ctx, cand)
	if err != nil {
		return DedupOutcome{}, err
	}
	// A weak vector hit is a candidate merge, not a verdict: policies that
	// would discard or overwrite data ignore it.
	if existing != nil && weak && policy != PolicyMerge && policy != PolicyLink {
		existing = nil
	}
	if existing == nil {
		return d.storeNewInnovation(ctx, cand, policy)
	}
	return d.applyInnovationPolicy(ctx, cand, existing, policy, layer, sim)
}

func (d *Deduplicator) findInnovationDuplicate(ctx context.Context, cand *types.Innovation) (existing *types.Innovation, layer string, sim float64, weak bool, err error) {
	existing, err = d.innovations.InnovationByFingerprint(ctx, cand.Fingerprint)
	switch {
	case err == nil:
		return existing, LayerFingerprint, 0, false, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, "", 0, false, fmt.Errorf("fingerprint lookup: %w", err)
	}

	if d.index == nil {
		return nil, "", 0, false, nil
	}
	matches, err := d.index.Search(ctx, cand.Title, "innovation", 1)
	if err != nil {
		// The vector layer is advisory: a search failure weakens dedup but
		// must not block ingestion.
		log.Printf("[Dedup] ⚠️ vector search failed for %q: %v", cand.Title, err)
		return nil, "", 0, false, nil
	}
	if len(matches) == 0 {
		return nil, "", 0, false, nil
	}

	top := matches[0]
	if top.Similarity < d.cfg.Dedup.SimilarityLow {
		return nil, "", 0, false, nil
	}
	match, err := d.innovations.GetInnovation(ctx, top.RecordID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", 0, false, nil
		}
		return nil, "", 0, false, fmt.Errorf("vector match lookup: %w", err)
	}
	return match, LayerVector, top.Similarity, top.Similarity < d.cfg.Dedup.SimilarityHigh, nil
}

func (d *Deduplicator) storeNewInnovation(ctx context.Context, cand *types.Innovation, policy DedupPolicy) (DedupOutcome, error) {
	outcome, err := d.innovations.UpsertInnovation(ctx, cand)
	if err != nil {
		return DedupOutcome{}, fmt.Errorf("upsert innovation: %w", err)
	}
	if !outcome.Created {
		// Lost a race with a concurrent writer on the same fingerprint: the
		// other row is canonical now, so apply policy against it.
		existing, err := d.innovations.GetInnovation(ctx, outcome.ID)
		if err != nil {
			return DedupOutcome{}, fmt.Errorf("conflicting row lookup: %w", err)
		}
		return d.applyInnovationPolicy(ctx, cand, existing, policy, LayerFingerprint, 0)
	}

	cand.ID = outcome.ID
	indexed := d.indexInnovation(ctx, cand)
	return DedupOutcome{Action: ActionStored, CanonicalID: outcome.ID, Indexed: indexed, Created: true}, nil
}

func (d *Deduplicator) applyInnovationPolicy(ctx context.Context, cand, existing *types.Innovation, policy DedupPolicy, layer string, sim float64) (DedupOutcome, error) {
	switch policy {
	case PolicyMerge:
		merged := MergeInnovations(existing, cand, d.cfg)
		// An identical re-ingest contributes nothing: leave the row and the
		// vector index untouched.
		if !innovationChanged(existing, merged) {
			return DedupOutcome{Action: ActionMerged, CanonicalID: existing.ID, Layer: layer, Similarity: sim, Indexed: true}, nil
		}
		merged.UpdatedAt = d.clock.Now()
		if err := d.innovations.UpdateInnovation(ctx, merged); err != nil {
			return DedupOutcome{}, fmt.Errorf("merge update: %w", err)
		}
		indexed := d.indexInnovation(ctx, merged)
		return DedupOutcome{Action: ActionMerged, CanonicalID: existing.ID, Layer: layer, Similarity: sim, Indexed: indexed}, nil

	case PolicyUpdate:
		if cand.SourceReliability <= reliabilityOf(existing, d.cfg) {
			return DedupOutcome{Action: ActionRejected, CanonicalID: existing.ID, Layer: layer, Similarity: sim, Indexed: true}, nil
		}
		updated := overwriteScalars(existing, cand)
		updated.UpdatedAt = d.clock.Now()
		if err := d.innovations.UpdateInnovation(ctx, updated); err != nil {
			return DedupOutcome{}, fmt.Errorf("update overwrite: %w", err)
		}
		indexed := d.indexInnovation(ctx, updated)
		return DedupOutcome{Action: ActionUpdated, CanonicalID: existing.ID, Layer: layer, Similarity: sim, Indexed: indexed}, nil

	case PolicyLink:
		return d.linkInnovation(ctx, cand, existing, string(RelEcosystemRelated), layer, sim)

	default: // PolicyReject
		return DedupOutcome{Action: ActionRejected, CanonicalID: existing.ID, Layer: layer, Similarity: sim, Indexed: true}, nil
	}
}

// LinkInnovation stores the candidate as its own row and records a directed
// relation from it to the canonical record. Used by the link policy and by
// relationship clustering, which names the relation it detected.
func (d *Deduplicator) LinkInnovation(ctx context.Context, cand *types.Innovation, canonicalID string, relation RelationKind) (DedupOutcome, error) {
	if cand.Fingerprint == "" {
		cand.Fingerprint = InnovationFingerprint(cand.Title)
	}
	existing, err := d.innovations.GetInnovation(ctx, canonicalID)
	if err != nil {
		return DedupOutcome{}, fmt.Errorf("canonical lookup: %w", err)
	}
	return d.linkInnovation(ctx, cand, existing, string(relation), "", 0)
}

func (d *Deduplicator) linkInnovation(ctx context.Context, cand, existing *types.Innovation, relation, layer string, sim float64) (DedupOutcome, error) {
	outcome, err := d.innovations.UpsertInnovation(ctx, cand)
	if err != nil {
		return DedupOutcome{}, fmt.Errorf("upsert linked record: %w", err)
	}
	indexed := true
	if outcome.Created {
		cand.ID = outcome.ID
		indexed = d.indexInnovation(ctx, cand)
	}
	if outcome.ID != existing.ID {
		if err := d.innovations.LinkInnovations(ctx, existing.ID, outcome.ID, relation); err != nil {
			return DedupOutcome{}, fmt.Errorf("record link: %w", err)
		}
	}
	return DedupOutcome{Action: ActionLinked, CanonicalID: existing.ID, Layer: layer, Similarity: sim, Indexed: indexed, Created: outcome.Created}, nil
}

func (d *Deduplicator) indexInnovation(ctx context.Context, inn *types.Innovation) bool {
	if d.index == nil || inn.ID == "" {
		return true
	}
	err := d.index.IndexRecord(ctx, store.IndexRecord{
		ID:    inn.ID,
		Kind:  "innovation",
		Title: inn.Title,
		Text:  inn.Title + "\n" + inn.Description,
	})
	if err != nil {
		log.Printf("[Dedup] ⚠️ vector index write failed for %s: %v", inn.ID, err)
		return false
	}
	return true
}

// AdmitPublication runs a publication through its detection layers: DOI,
// upstream source ID, fingerprint, then fuzzy title. Publications support
// reject and merge; update is treated as merge and link as reject since
// publications carry no link relation.
func (d *Deduplicator) AdmitPublication(ctx context.Context, pub *types.Publication, policy DedupPolicy) (DedupOutcome, error) {
	if strings.TrimSpace(pub.Title) == "" {
		return DedupOutcome{}, errors.New("publication title required")
	}
	if pub.Fingerprint == "" {
		pub.Fingerprint = PublicationFingerprint(pub.Title, pub.Authors, pub.Year)
	}

	existing, layer, sim, weak, err := d.findPublicationDuplicate(ctx, pub)
	if err != nil {
		return DedupOutcome{}, err
	}
	if existing != nil && weak && policy != PolicyMerge {
		existing = nil
	}
	if existing == nil {
		outcome, err := d.publications.UpsertPublication(ctx, pub)
		if err != nil {
			return DedupOutcome{}, fmt.Errorf("upsert publication: %w", err)
		}
		if !outcome.Created {
			return DedupOutcome{Action: ActionRejected, CanonicalID: outcome.ID, Layer: LayerFingerprint, Indexed: true}, nil
		}
		pub.ID = outcome.ID
		indexed := d.indexPublication(ctx, pub)
		return DedupOutcome{Action: ActionStored, CanonicalID: outcome.ID, Indexed: indexed, Created: true}, nil
	}

	if policy == PolicyMerge || policy == PolicyUpdate {
		merged := MergePublications(existing, pub)
		merged.UpdatedAt = d.clock.Now()
		if err := d.publications.UpdatePublication(ctx, merged); err != nil {
			return DedupOutcome{}, fmt.Errorf("merge publication: %w", err)
		}
		indexed := d.indexPublication(ctx, merged)
		return DedupOutcome{Action: ActionMerged, CanonicalID: existing.ID, Layer: layer, Similarity: sim, Indexed: indexed}, nil
	}
	return DedupOutcome{Action: ActionRejected, CanonicalID: existing.ID, Layer: layer, Similarity: sim, Indexed: true}, nil
}

func (d *Deduplicator) findPublicationDuplicate(ctx context.Context, pub *types.Publication) (existing *types.Publication, layer string, sim float64, weak bool, err error) {
	if pub.DOI != "" {
		existing, err = d.publications.PublicationByDOI(ctx, pub.DOI)
		if err == nil {
			return existing, LayerIdentity, 0, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, "", 0, false, fmt.Errorf("doi lookup: %w", err)
		}
	}
	if pub.SourceID != "" {
		existing, err = d.publications.PublicationBySourceID(ctx, pub.Source, pub.SourceID)
		if err == nil {
			return existing, LayerIdentity, 0, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, "", 0, false, fmt.Errorf("source id lookup: %w", err)
		}
	}

	existing, err = d.publications.PublicationByFingerprint(ctx, pub.Fingerprint)
	if err == nil {
		return existing, LayerFingerprint, 0, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, "", 0, false, fmt.Errorf("fingerprint lookup: %w", err)
	}

	if d.index == nil {
		return nil, "", 0, false, nil
	}
	matches, err := d.index.Search(ctx, pub.Title, "publication", 1)
	if err != nil {
		log.Printf("[Dedup] ⚠️ vector search failed for %q: %v", pub.Title, err)
		return nil, "", 0, false, nil
	}
	if len(matches) == 0 || matches[0].Similarity < d.cfg.Dedup.SimilarityLow {
		return nil, "", 0, false, nil
	}
	top := matches[0]
	match, err := d.publications.GetPublication(ctx, top.RecordID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", 0, false, nil
		}
		return nil, "", 0, false, fmt.Errorf("vector match lookup: %w", err)
	}
	return match, LayerVector, top.Similarity, top.Similarity < d.cfg.Dedup.SimilarityHigh, nil
}

func (d *Deduplicator) indexPublication(ctx context.Context, pub *types.Publication) bool {
	if d.index == nil || pub.ID == "" {
		return true
	}
	err := d.index.IndexRecord(ctx, store.IndexRecord{
		ID:    pub.ID,
		Kind:  "publication",
		Title: pub.Title,
		Text:  pub.Title + "\n" + pub.Abstract,
	})
	if err != nil {
		log.Printf("[Dedup] ⚠️ vector index write failed for %s: %v", pub.ID, err)
		return false
	}
	return true
}

// reliabilityOf reads a record's stamped reliability, falling back to the
// config table for records stored before stamping existed.
func reliabilityOf(inn *types.Innovation, cfg *Config) float64 {
	if inn.SourceReliability > 0 {
		return inn.SourceReliability
	}
	return cfg.ReliabilityFor(inn.SourceKind)
}

// innovationChanged reports whether a merge actually altered the canonical
// record. Lists only ever grow under merge, so length comparison suffices.
func innovationChanged(before, after *types.Innovation) bool {
	return before.Title != after.Title ||
		before.Description != after.Description ||
		before.Country != after.Country ||
		before.WebsiteURL != after.WebsiteURL ||
		before.SourceURL != after.SourceURL ||
		before.GithubURL != after.GithubURL ||
		before.DemoURL != after.DemoURL ||
		before.InnovationType != after.InnovationType ||
		before.CreationDate != after.CreationDate ||
		len(before.Fundings) != len(after.Fundings) ||
		len(before.Organizations) != len(after.Organizations) ||
		len(before.Individuals) != len(after.Individuals) ||
		len(before.Tags) != len(after.Tags) ||
		len(before.ImpactMetrics) != len(after.ImpactMetrics) ||
		before.VerificationStatus != after.VerificationStatus ||
		before.Completeness != after.Completeness ||
		before.Confidence != after.Confidence ||
		before.SourceReliability != after.SourceReliability
}

// MergeInnovations folds the incoming record into the canonical one: list
// attributes union, scalar conflicts resolve by source reliability then
// recency, and verification status never moves backwards.
func MergeInnovations(canonical, incoming *types.Innovation, cfg *Config) *types.Innovation {
	merged := *canonical

	preferIncoming := incoming.SourceReliability > reliabilityOf(canonical, cfg) ||
		(incoming.SourceReliability == reliabilityOf(canonical, cfg) && incoming.UpdatedAt.After(canonical.UpdatedAt))

	merged.Title = chooseScalar(canonical.Title, incoming.Title, preferIncoming)
	merged.Description = chooseScalar(canonical.Description, incoming.Description, preferIncoming)
	merged.Country = chooseScalar(canonical.Country, incoming.Country, preferIncoming)
	merged.WebsiteURL = chooseScalar(canonical.WebsiteURL, incoming.WebsiteURL, preferIncoming)
	merged.SourceURL = chooseScalar(canonical.SourceURL, incoming.SourceURL, preferIncoming)
	merged.GithubURL = chooseScalar(canonical.GithubURL, incoming.GithubURL, preferIncoming)
	merged.DemoURL = chooseScalar(canonical.DemoURL, incoming.DemoURL, preferIncoming)
	if string(incoming.InnovationType) != "" && (string(merged.InnovationType) == "" || preferIncoming) {
		merged.InnovationType = incoming.InnovationType
	}
	if incoming.CreationDate != nil && (merged.CreationDate == nil || preferIncoming) {
		merged.CreationDate = incoming.CreationDate
	}

	merged.Fundings = mergeFundings(canonical.Fundings, incoming.Fundings)
	merged.Organizations = mergeOrgs(canonical.Organizations, incoming.Organizations)
	merged.Individuals = mergePeople(canonical.Individuals, incoming.Individuals)
	merged.Tags = mergeTags(canonical.Tags, incoming.Tags)
	merged.ImpactMetrics = mergeMetrics(canonical.ImpactMetrics, incoming.ImpactMetrics)

	merged.VerificationStatus = types.HigherVerification(canonical.VerificationStatus, incoming.VerificationStatus)
	if incoming.Completeness > merged.Completeness {
		merged.Completeness = incoming.Completeness
	}
	if incoming.Confidence > merged.Confidence {
		merged.Confidence = incoming.Confidence
	}
	if incoming.SourceReliability > merged.SourceReliability {
		merged.SourceReliability = incoming.SourceReliability
	}
	return &merged
}

// overwriteScalars replaces the canonical record's scalars with the
// incoming record's non-empty values, keeping list attributes and never
// downgrading verification.
func overwriteScalars(canonical, incoming *types.Innovation) *types.Innovation {
	updated := *canonical
	updated.Title = chooseScalar(canonical.Title, incoming.Title, true)
	updated.Description = chooseScalar(canonical.Description, incoming.Description, true)
	updated.Country = chooseScalar(canonical.Country, incoming.Country, true)
	updated.WebsiteURL = chooseScalar(canonical.WebsiteURL, incoming.WebsiteURL, true)
	updated.SourceURL = chooseScalar(canonical.SourceURL, incoming.SourceURL, true)
	updated.GithubURL = chooseScalar(canonical.GithubURL, incoming.GithubURL, true)
	updated.DemoURL = chooseScalar(canonical.DemoURL, incoming.DemoURL, true)
	if string(incoming.InnovationType) != "" {
		updated.InnovationType = incoming.InnovationType
	}
	if incoming.CreationDate != nil {
		updated.CreationDate = incoming.CreationDate
	}
	if incoming.SourceReliability > updated.SourceReliability {
		updated.SourceReliability = incoming.SourceReliability
	}
	updated.VerificationStatus = types.HigherVerification(canonical.VerificationStatus, incoming.VerificationStatus)
	return &updated
}

// MergePublications fills the canonical publication's blanks and unions its
// lists; relevance scores keep their maxima.
func MergePublications(canonical, incoming *types.Publication) *types.Publication {
	merged := *canonical
	merged.Abstract = chooseScalar(canonical.Abstract, incoming.Abstract, false)
	merged.DOI = chooseScalar(canonical.DOI, incoming.DOI, false)
	merged.Venue = chooseScalar(canonical.Venue, incoming.Venue, false)
	merged.DevelopmentStage = chooseScalar(canonical.DevelopmentStage, incoming.DevelopmentStage, false)
	merged.BusinessModel = chooseScalar(canonical.BusinessModel, incoming.BusinessModel, false)
	if len(merged.Authors) == 0 {
		merged.Authors = incoming.Authors
	}
	merged.Keywords = mergeTags(canonical.Keywords, incoming.Keywords)
	merged.AfricanEntities = mergeTags(canonical.AfricanEntities, incoming.AfricanEntities)
	merged.ExtractedTechnologies = mergeTags(canonical.ExtractedTechnologies, incoming.ExtractedTechnologies)
	merged.ImpactMetrics = mergeMetrics(canonical.ImpactMetrics, incoming.ImpactMetrics)
	if incoming.AfricanRelevanceScore > merged.AfricanRelevanceScore {
		merged.AfricanRelevanceScore = incoming.AfricanRelevanceScore
	}
	if incoming.AIRelevanceScore > merged.AIRelevanceScore {
		merged.AIRelevanceScore = incoming.AIRelevanceScore
	}
	if merged.Year == 0 {
		merged.Year = incoming.Year
	}
	if merged.PublicationDate == nil {
		merged.PublicationDate = incoming.PublicationDate
	}
	return &merged
}

// chooseScalar resolves one scalar conflict: a blank side loses outright,
// otherwise preference decides.
func chooseScalar(canonical, incoming string, preferIncoming bool) string {
	if canonical == "" {
		return incoming
	}
	if incoming == "" {
		return canonical
	}
	if preferIncoming {
		return incoming
	}
	return canonical
}

func mergeFundings(a, b []types.FundingEvent) []types.FundingEvent {
	out := append([]types.FundingEvent(nil), a...)
	for _, f := range b {
		dup := false
		for _, have := range out {
			if have.Amount == f.Amount && have.RoundType == f.RoundType && have.Investor == f.Investor {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, f)
		}
	}
	return out
}

func mergeOrgs(a, b []types.OrgRef) []types.OrgRef {
	out := append([]types.OrgRef(nil), a...)
	for _, o := range b {
		dup := false
		for _, have := range out {
			if strings.EqualFold(have.Name, o.Name) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, o)
		}
	}
	return out
}

func mergePeople(a, b []types.PersonRef) []types.PersonRef {
	out := append([]types.PersonRef(nil), a...)
	for _, p := range b {
		dup := false
		for _, have := range out {
			if strings.EqualFold(have.Name, p.Name) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}

func mergeTags(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, t := range b {
		dup := false
		for _, have := range out {
			if strings.EqualFold(have, t) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, t)
		}
	}
	return out
}

func mergeMetrics(a, b map[string]any) map[string]any {
	if len(b) == 0 {
		return a
	}
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if _, exists := out[k]; !exists {
			out[k] = v
		}
	}
	return out
}
