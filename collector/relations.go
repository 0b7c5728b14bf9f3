// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"math"
	"regexp"
	"strings"
	"time"

	"baobab/platform/shared/types"
)

// RelationKind classifies how two news-derived records relate. Non-none
// kinds put the pair in the same event cluster.
type RelationKind string

const (
	RelSameEvent            RelationKind = "same_event"
	RelRelatedFunding       RelationKind = "related_funding"
	RelSequentialFunding    RelationKind = "sequential_funding"
	RelProgramBeneficiaries RelationKind = "program_beneficiaries"
	RelRelatedPartnership   RelationKind = "related_partnership"
	RelEcosystemRelated     RelationKind = "ecosystem_related"
	RelNone                 RelationKind = "none"
)

// EventKind is the coarse type of the event a news finding describes.
type EventKind string

const (
	EventFunding     EventKind = "funding"
	EventPartnership EventKind = "partnership"
	EventProgram     EventKind = "program"
	EventLaunch      EventKind = "launch"
	EventOther       EventKind = "other"
)

var (
	partnershipRe = regexp.MustCompile(`(?i)\b(partner(?:s|ship|ships|ed)?|collaborat\w*|joint venture|memorandum of understanding)\b`)
	programHintRe = regexp.MustCompile(`(?i)\b(accelerator|incubator|programme|fellowship|cohort|bootcamp)\b|\bprogram\b`)
	launchHintRe  = regexp.MustCompile(`(?i)\b(launch(?:es|ed|ing)?|unveil(?:s|ed)?|introduc(?:es|ed|ing))\b`)
	programNameRe = regexp.MustCompile(`\b((?:[A-Z][A-Za-z0-9&'-]*\s+){0,4}(?:Accelerator|Incubator|Programme|Program|Fellowship|Cohort))\b`)
)

// EventProfile is the comparable digest of one news-derived record used by
// relationship classification.
type EventProfile struct {
	Entity    string
	EventType EventKind
	AmountUSD float64
	Round     string
	Investors []string
	Partners  []string
	Program   string
	Country   string
	Date      *time.Time
}

// NewsCandidate pairs an innovation extracted from a news-like stream with
// the structured finding it came from.
type NewsCandidate struct {
	Innovation *types.Innovation
	Finding    types.StructuredFinding
}

// DeriveEventProfile digests a news candidate for pairwise comparison.
func DeriveEventProfile(inn *types.Innovation, finding types.StructuredFinding) EventProfile {
	p := EventProfile{Country: inn.Country}

	if len(finding.Companies) > 0 {
		p.Entity = finding.Companies[0]
	} else {
		p.Entity = inn.Title
	}
	for _, c := range finding.Companies {
		if !strings.EqualFold(c, p.Entity) {
			p.Partners = append(p.Partners, c)
		}
	}
	if p.Country == "" && len(finding.Locations) > 0 {
		p.Country = finding.Locations[0]
	}

	for _, a := range finding.FundingAmounts {
		if a.Parsed {
			p.AmountUSD = a.USD
			break
		}
	}
	if len(finding.RoundTypes) > 0 {
		p.Round = finding.RoundTypes[0]
	}
	for _, f := range inn.Fundings {
		if f.Investor != "" {
			p.Investors = append(p.Investors, f.Investor)
		}
		if p.Date == nil && f.AnnouncedAt != nil {
			p.Date = f.AnnouncedAt
		}
	}

	p.EventType = classifyEventKind(finding)
	if p.EventType == EventProgram {
		if m := programNameRe.FindStringSubmatch(finding.Paragraph); m != nil {
			p.Program = strings.TrimSpace(m[1])
		} else if len(finding.Institutions) > 0 {
			p.Program = finding.Institutions[0]
		}
	}
	return p
}

func classifyEventKind(finding types.StructuredFinding) EventKind {
	if len(finding.FundingAmounts) > 0 || len(finding.RoundTypes) > 0 {
		return EventFunding
	}
	switch {
	case programHintRe.MatchString(finding.Paragraph):
		return EventProgram
	case partnershipRe.MatchString(finding.Paragraph):
		return EventPartnership
	case launchHintRe.MatchString(finding.Paragraph):
		return EventLaunch
	default:
		return EventOther
	}
}

// sequentialFundingGap separates two raises by the same company into
// distinct rounds even when the amounts look alike.
const sequentialFundingGap = 120 * 24 * time.Hour

// ClassifyRelation decides how two event profiles relate. The rules run
// strongest claim first: identity of the primary entity, then shared
// investors, programs, and partnerships, then a weak ecosystem signal.
func ClassifyRelation(a, b EventProfile) RelationKind {
	if entityEq(a.Entity, b.Entity) {
		if a.EventType == EventFunding && b.EventType == EventFunding {
			if a.Date != nil && b.Date != nil && absDuration(a.Date.Sub(*b.Date)) > sequentialFundingGap {
				return RelSequentialFunding
			}
			if amountsMatch(a, b) {
				return RelSameEvent
			}
			return RelSequentialFunding
		}
		if a.EventType == b.EventType {
			return RelSameEvent
		}
		return RelEcosystemRelated
	}

	if a.EventType == EventFunding && b.EventType == EventFunding && sharedName(a.Investors, b.Investors) {
		return RelRelatedFunding
	}
	if a.Program != "" && strings.EqualFold(a.Program, b.Program) {
		return RelProgramBeneficiaries
	}
	if containsFold(a.Partners, b.Entity) || containsFold(b.Partners, a.Entity) {
		return RelRelatedPartnership
	}
	if a.Country != "" && a.Country == b.Country && a.EventType == b.EventType && a.EventType != EventOther {
		return RelEcosystemRelated
	}
	return RelNone
}

func entityEq(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// amountsMatch treats two funding amounts as the same raise when both parse
// and agree within 10%, or when neither parses but the round labels agree.
func amountsMatch(a, b EventProfile) bool {
	if a.AmountUSD > 0 && b.AmountUSD > 0 {
		larger := math.Max(a.AmountUSD, b.AmountUSD)
		return math.Abs(a.AmountUSD-b.AmountUSD) <= 0.1*larger
	}
	if a.AmountUSD == 0 && b.AmountUSD == 0 {
		return a.Round != "" && a.Round == b.Round
	}
	return false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func sharedName(a, b []string) bool {
	for _, x := range a {
		if containsFold(b, x) {
			return true
		}
	}
	return false
}

func containsFold(list []string, want string) bool {
	if want == "" {
		return false
	}
	for _, have := range list {
		if strings.EqualFold(have, want) {
			return true
		}
	}
	return false
}

// ClusterMember is one non-canonical record in an event cluster, with the
// relation that ties it to the canonical record.
type ClusterMember struct {
	Index    int
	Relation RelationKind
}

// EventCluster groups candidate indexes describing one underlying event.
type EventCluster struct {
	Canonical int
	Members   []ClusterMember
}

// ClusterNewsCandidates groups candidates by pairwise relation, connected
// components over non-none edges. Within each cluster the canonical record
// is the highest-confidence one, completeness breaking ties; every other
// member carries its relation to the canonical record.
func ClusterNewsCandidates(cands []NewsCandidate) []EventCluster {
	n := len(cands)
	if n == 0 {
		return nil
	}

	profiles := make([]EventProfile, n)
	for i, c := range cands {
		profiles[i] = DeriveEventProfile(c.Innovation, c.Finding)
	}

	uf := newUnionFind(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if ClassifyRelation(profiles[i], profiles[j]) != RelNone {
				uf.union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}

	var clusters []EventCluster
	for i := 0; i < n; i++ {
		members, ok := groups[uf.find(i)]
		if !ok || members[0] != i {
			continue // emit each component once, at its first index
		}

		canonical := members[0]
		for _, m := range members[1:] {
			if betterCanonical(cands[m].Innovation, cands[canonical].Innovation) {
				canonical = m
			}
		}

		cluster := EventCluster{Canonical: canonical}
		for _, m := range members {
			if m == canonical {
				continue
			}
			rel := ClassifyRelation(profiles[m], profiles[canonical])
			if rel == RelNone {
				// Connected only through intermediate records.
				rel = RelEcosystemRelated
			}
			cluster.Members = append(cluster.Members, ClusterMember{Index: m, Relation: rel})
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

func betterCanonical(cand, current *types.Innovation) bool {
	if cand.Confidence != current.Confidence {
		return cand.Confidence > current.Confidence
	}
	return cand.Completeness > current.Completeness
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}
