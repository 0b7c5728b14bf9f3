// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"time"
)

// InnovationType classifies what kind of African AI effort a record tracks.
type InnovationType string

const (
	TypeStartup  InnovationType = "startup"
	TypeResearch InnovationType = "research"
	TypePlatform InnovationType = "platform"
	TypeService  InnovationType = "service"
	TypeOther    InnovationType = "other"
)

// VerificationStatus is the trust level of an innovation record. Transitions
// are monotonic: pending → community → verified; any state may move to
// rejected. Nothing ever moves backward, including through merges.
type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "pending"
	VerificationCommunity VerificationStatus = "community"
	VerificationVerified  VerificationStatus = "verified"
	VerificationRejected  VerificationStatus = "rejected"
)

// verificationRank orders statuses for the no-downgrade rule. Rejected is a
// terminal branch, not a rank above verified.
func verificationRank(s VerificationStatus) int {
	switch s {
	case VerificationPending:
		return 0
	case VerificationCommunity:
		return 1
	case VerificationVerified:
		return 2
	default:
		return -1
	}
}

// CanTransitionVerification reports whether moving from to next is allowed.
func CanTransitionVerification(from, to VerificationStatus) bool {
	if from == to {
		return true
	}
	if to == VerificationRejected {
		return true
	}
	if from == VerificationRejected {
		return false
	}
	return verificationRank(to) > verificationRank(from)
}

// HigherVerification returns the more trusted of two statuses under the
// monotonic ordering. Rejected wins over everything because it is terminal.
func HigherVerification(a, b VerificationStatus) VerificationStatus {
	if a == VerificationRejected || b == VerificationRejected {
		return VerificationRejected
	}
	if verificationRank(b) > verificationRank(a) {
		return b
	}
	return a
}

// Visibility controls whether a record is exposed publicly. Public requires
// community or verified status.
type Visibility string

const (
	VisibilityPublic Visibility = "public"
	VisibilityHidden Visibility = "hidden"
)

// FundingEvent is one funding round attached to an innovation.
type FundingEvent struct {
	Amount      float64    `json:"amount_usd"`
	AmountText  string     `json:"amount_text,omitempty"`
	RoundType   string     `json:"round_type,omitempty"`
	Investor    string     `json:"investor,omitempty"`
	AnnouncedAt *time.Time `json:"announced_at,omitempty"`
	SourceURL   string     `json:"source_url,omitempty"`
}

// OrgRef points at an organization by ID plus a display name, avoiding
// object cycles between innovations and organizations.
type OrgRef struct {
	OrgID string `json:"org_id,omitempty"`
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
}

// PersonRef points at an individual by ID plus a display name.
type PersonRef struct {
	PersonID string `json:"person_id,omitempty"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
}

// BackfillMeta records what enrichment has already touched an innovation.
type BackfillMeta struct {
	LastBackfillAt   *time.Time `json:"last_backfill_at,omitempty"`
	BackfilledFields []string   `json:"backfilled_fields,omitempty"`
	NeedsReview      []string   `json:"needs_review,omitempty"`
}

// Innovation is the canonical record of an African AI effort.
type Innovation struct {
	ID                 string             `json:"id"`
	Fingerprint        string             `json:"fingerprint"`
	Title              string             `json:"title"`
	Description        string             `json:"description,omitempty"`
	InnovationType     InnovationType     `json:"innovation_type"`
	Country            string             `json:"country,omitempty"`
	CreationDate       *time.Time         `json:"creation_date,omitempty"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	Visibility         Visibility         `json:"visibility"`
	Fundings           []FundingEvent     `json:"fundings,omitempty"`
	Organizations      []OrgRef           `json:"organizations,omitempty"`
	Individuals        []PersonRef        `json:"individuals,omitempty"`
	WebsiteURL         string             `json:"website_url,omitempty"`
	SourceURL          string             `json:"source_url,omitempty"`
	GithubURL          string             `json:"github_url,omitempty"`
	DemoURL            string             `json:"demo_url,omitempty"`
	Tags               []string           `json:"tags,omitempty"`
	ImpactMetrics      map[string]any     `json:"impact_metrics,omitempty"`
	SourceKind         string             `json:"source_kind,omitempty"`
	SourceReliability  float64            `json:"source_reliability,omitempty"`
	Completeness       float64            `json:"completeness"`
	Confidence         float64            `json:"confidence"`
	Backfill           BackfillMeta       `json:"backfill,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// PublicationSource identifies the upstream family a publication came from.
type PublicationSource string

const (
	SourceArxiv            PublicationSource = "arxiv"
	SourcePubmed           PublicationSource = "pubmed"
	SourceScholar          PublicationSource = "scholar"
	SourceSystematicReview PublicationSource = "systematic_review"
	SourceOtherPublication PublicationSource = "other"
)

// Publication is a canonical academic artifact.
type Publication struct {
	ID                    string            `json:"id"`
	Fingerprint           string            `json:"fingerprint"`
	Title                 string            `json:"title"`
	Abstract              string            `json:"abstract,omitempty"`
	Authors               []string          `json:"authors,omitempty"`
	PublicationDate       *time.Time        `json:"publication_date,omitempty"`
	Year                  int               `json:"year,omitempty"`
	Venue                 string            `json:"venue,omitempty"`
	DOI                   string            `json:"doi,omitempty"`
	Source                PublicationSource `json:"source"`
	SourceID              string            `json:"source_id,omitempty"`
	Keywords              []string          `json:"keywords,omitempty"`
	AfricanEntities       []string          `json:"african_entities,omitempty"`
	AfricanRelevanceScore float64           `json:"african_relevance_score"`
	AIRelevanceScore      float64           `json:"ai_relevance_score"`
	DevelopmentStage      string            `json:"development_stage,omitempty"`
	BusinessModel         string            `json:"business_model,omitempty"`
	ExtractedTechnologies []string          `json:"extracted_technologies,omitempty"`
	ImpactMetrics         map[string]any    `json:"impact_metrics,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// ReportType enumerates the intelligence synthesis angles.
type ReportType string

const (
	ReportInnovationDiscovery  ReportType = "innovation_discovery"
	ReportFundingLandscape     ReportType = "funding_landscape"
	ReportResearchBreakthrough ReportType = "research_breakthrough"
	ReportPolicyDevelopment    ReportType = "policy_development"
	ReportTalentEcosystem      ReportType = "talent_ecosystem"
	ReportMarketAnalysis       ReportType = "market_analysis"
)

// AllReportTypes lists every synthesis angle in cycle order.
var AllReportTypes = []ReportType{
	ReportInnovationDiscovery,
	ReportFundingLandscape,
	ReportResearchBreakthrough,
	ReportPolicyDevelopment,
	ReportTalentEcosystem,
	ReportMarketAnalysis,
}

// CitationResolution tracks where a mined citation landed.
type CitationResolution string

const (
	CitationUnresolved   CitationResolution = "unresolved"
	CitationUnresolvable CitationResolution = "unresolvable"
)

// ResolvedTo builds the resolution marker for a matched publication.
func ResolvedTo(publicationID string) CitationResolution {
	return CitationResolution("resolved_to:" + publicationID)
}

// ExtractedCitation is a single reference mined from LLM prose.
type ExtractedCitation struct {
	Raw        string             `json:"raw"`
	Context    string             `json:"context,omitempty"`
	Resolution CitationResolution `json:"resolution"`
	Confidence float64            `json:"confidence"`
}

// AmountMatch is a parsed funding amount with its original text.
type AmountMatch struct {
	Text   string  `json:"text"`
	USD    float64 `json:"usd"`
	Parsed bool    `json:"parsed"`
}

// StructuredFinding is one paragraph of intelligence prose tagged with the
// entities detected inside it.
type StructuredFinding struct {
	Paragraph      string        `json:"paragraph"`
	Companies      []string      `json:"companies,omitempty"`
	Locations      []string      `json:"locations,omitempty"`
	FundingAmounts []AmountMatch `json:"funding_amounts,omitempty"`
	RoundTypes     []string      `json:"round_types,omitempty"`
	Institutions   []string      `json:"institutions,omitempty"`
	Confidence     float64       `json:"confidence"`
}

// IntelligenceReport is the structured product of one LLM intelligence call.
type IntelligenceReport struct {
	ReportID             string              `json:"report_id"`
	ReportType           ReportType          `json:"report_type"`
	Title                string              `json:"title"`
	Summary              string              `json:"summary"`
	KeyFindings          []string            `json:"key_findings,omitempty"`
	InnovationsMentioned []string            `json:"innovations_mentioned,omitempty"`
	FundingUpdates       []string            `json:"funding_updates,omitempty"`
	PolicyDevelopments   []string            `json:"policy_developments,omitempty"`
	Sources              []string            `json:"sources,omitempty"`
	ExtractedCitations   []ExtractedCitation `json:"extracted_citations,omitempty"`
	StructuredFindings   []StructuredFinding `json:"structured_findings,omitempty"`
	GeographicFocus      []string            `json:"geographic_focus,omitempty"`
	ConfidenceScore      float64             `json:"confidence_score"`
	GeneratedAt          time.Time           `json:"generated_at"`
	TimePeriod           string              `json:"time_period,omitempty"`
	ValidationFlags      []string            `json:"validation_flags,omitempty"`
	Provider             string              `json:"provider,omitempty"`
}

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped"
)

// RunMetrics aggregates per-run processing statistics.
type RunMetrics struct {
	BatchSize        int     `json:"batch_size"`
	SuccessRate      float64 `json:"success_rate"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
}

// PipelineRun records one invocation of a pipeline. At most one run per
// pipeline holds status=running at any time.
type PipelineRun struct {
	PipelineName      string     `json:"pipeline_name"`
	RunID             string     `json:"run_id"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	Status            RunStatus  `json:"status"`
	ItemsProcessed    int        `json:"items_processed"`
	ItemsFailed       int        `json:"items_failed"`
	DuplicatesRemoved int        `json:"duplicates_removed"`
	Error             string     `json:"error,omitempty"`
	Metrics           RunMetrics `json:"metrics"`
}

// FieldPriority ranks how urgently a missing field should be backfilled.
type FieldPriority string

const (
	PriorityCritical FieldPriority = "critical"
	PriorityHigh     FieldPriority = "high"
	PriorityMedium   FieldPriority = "medium"
	PriorityLow      FieldPriority = "low"
)

// PriorityRank maps a priority to its sort position, critical first.
func PriorityRank(p FieldPriority) int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// MissingField names one absent attribute on an innovation record.
type MissingField struct {
	Name          string        `json:"name"`
	Priority      FieldPriority `json:"priority"`
	EstimatedCost float64       `json:"estimated_cost_usd"`
}

// BackfillStatus is the lifecycle state of a backfill job.
type BackfillStatus string

const (
	BackfillPending    BackfillStatus = "pending"
	BackfillInProgress BackfillStatus = "in_progress"
	BackfillCompleted  BackfillStatus = "completed"
	BackfillFailed     BackfillStatus = "failed"
	BackfillSkipped    BackfillStatus = "skipped"
)

// FieldResult is the outcome of backfilling one field.
type FieldResult struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Provenance string  `json:"provenance"`
}

// BackfillJob aggregates the missing fields of one innovation.
type BackfillJob struct {
	JobID         string                 `json:"job_id"`
	InnovationID  string                 `json:"innovation_id"`
	MissingFields []MissingField         `json:"missing_fields"`
	Status        BackfillStatus         `json:"status"`
	Results       map[string]FieldResult `json:"results,omitempty"`
	TotalCost     float64                `json:"total_cost_usd"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// EstimatedCost sums the per-field estimates for the whole job.
func (j *BackfillJob) EstimatedCost() float64 {
	var total float64
	for _, f := range j.MissingFields {
		total += f.EstimatedCost
	}
	return total
}

// CommunitySubmission proposes a new innovation or a correction.
type CommunitySubmission struct {
	SubmissionID string    `json:"submission_id"`
	InnovationID string    `json:"innovation_id,omitempty"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	SubmitterID  string    `json:"submitter_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// CommunityVote endorses or disputes an innovation record.
type CommunityVote struct {
	VoteID       string    `json:"vote_id"`
	InnovationID string    `json:"innovation_id"`
	VoterID      string    `json:"voter_id"`
	Upvote       bool      `json:"upvote"`
	CreatedAt    time.Time `json:"created_at"`
}

// ErrorKind is the propagated classification for failures. Record-level
// kinds never fail a pipeline; pipeline-level kinds never fail a cycle.
type ErrorKind string

const (
	ErrKindRateLimited     ErrorKind = "rate_limited"
	ErrKindCostLimit       ErrorKind = "cost_limit_exceeded"
	ErrKindNetwork         ErrorKind = "network_error"
	ErrKindTimeout         ErrorKind = "timeout"
	ErrKindAPI             ErrorKind = "api_error"
	ErrKindAuth            ErrorKind = "auth_error"
	ErrKindValidation      ErrorKind = "validation_failed"
	ErrKindDuplicateReject ErrorKind = "duplicate_rejected"
	ErrKindCancelled       ErrorKind = "cancelled"
	ErrKindInternal        ErrorKind = "internal_error"
)
