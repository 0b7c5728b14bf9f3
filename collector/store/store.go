// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

// Package store is the persistence boundary of the collector. It exposes the
// relational store and the vector index as narrow gateways so the pipelines
// never touch SQL directly. All writes are idempotent on the entity
// fingerprint; re-ingesting the same record is a no-op that reports the
// existing row.
package store

import (
	"context"
	"errors"
	"time"

	"baobab/platform/shared/types"
)

// ErrNotFound is returned by lookups that matched no row.
var ErrNotFound = errors.New("record not found")

// UpsertOutcome reports what an idempotent upsert actually did.
type UpsertOutcome struct {
	ID      string
	Created bool
}

// InnovationStore persists canonical innovation records.
type InnovationStore interface {
	// UpsertInnovation inserts the record or, when another row already owns
	// its fingerprint, returns that row's identity with Created=false.
	UpsertInnovation(ctx context.Context, inn *types.Innovation) (UpsertOutcome, error)
	UpdateInnovation(ctx context.Context, inn *types.Innovation) error
	GetInnovation(ctx context.Context, id string) (*types.Innovation, error)
	InnovationByFingerprint(ctx context.Context, fingerprint string) (*types.Innovation, error)
	RecentInnovations(ctx context.Context, limit int) ([]types.Innovation, error)
	// InnovationsForBackfill returns records never backfilled or last
	// backfilled before the cutoff, oldest first.
	InnovationsForBackfill(ctx context.Context, before time.Time, limit int) ([]types.Innovation, error)
	// LinkInnovations records a dedup relationship from a canonical record
	// to a related one. Re-linking the same pair overwrites the relation.
	LinkInnovations(ctx context.Context, canonicalID, linkedID, relation string) error
}

// PublicationStore persists academic artifacts.
type PublicationStore interface {
	UpsertPublication(ctx context.Context, pub *types.Publication) (UpsertOutcome, error)
	UpdatePublication(ctx context.Context, pub *types.Publication) error
	GetPublication(ctx context.Context, id string) (*types.Publication, error)
	PublicationByFingerprint(ctx context.Context, fingerprint string) (*types.Publication, error)
	PublicationByDOI(ctx context.Context, doi string) (*types.Publication, error)
	PublicationBySourceID(ctx context.Context, source types.PublicationSource, sourceID string) (*types.Publication, error)
	RecentPublications(ctx context.Context, limit int) ([]types.Publication, error)
}

// ReportStore persists intelligence synthesis output.
type ReportStore interface {
	SaveReport(ctx context.Context, report *types.IntelligenceReport) error
	RecentReports(ctx context.Context, limit int) ([]types.IntelligenceReport, error)
}

// RunStore records pipeline run bookkeeping.
type RunStore interface {
	CreateRun(ctx context.Context, run *types.PipelineRun) error
	CompleteRun(ctx context.Context, run *types.PipelineRun) error
	RecentRuns(ctx context.Context, pipeline string, limit int) ([]types.PipelineRun, error)
	LastCompletedRun(ctx context.Context, pipeline string) (*types.PipelineRun, error)
	// RecoverStaleRuns force-fails runs stuck in running since before the
	// cutoff and returns how many were recovered. Called at boot so a crash
	// never wedges a pipeline in running forever.
	RecoverStaleRuns(ctx context.Context, staleBefore time.Time) (int64, error)
}

// JobStore persists backfill jobs.
type JobStore interface {
	SaveBackfillJob(ctx context.Context, job *types.BackfillJob) error
	BackfillJobCounts(ctx context.Context) (map[types.BackfillStatus]int, error)
}

// CommunityStore persists community submissions and votes.
type CommunityStore interface {
	SaveSubmission(ctx context.Context, sub *types.CommunitySubmission) error
	// SaveVote records one vote per voter per innovation; a repeat vote by
	// the same voter replaces the earlier one.
	SaveVote(ctx context.Context, vote *types.CommunityVote) error
	UpvoteCount(ctx context.Context, innovationID string) (int, error)
	PendingSubmissions(ctx context.Context, limit int) ([]types.CommunitySubmission, error)
}

// Gateway is the full persistence surface the collector wires at startup.
type Gateway interface {
	InnovationStore
	PublicationStore
	ReportStore
	RunStore
	JobStore
	CommunityStore
}

// IndexRecord is one entity pushed into the vector index.
type IndexRecord struct {
	ID    string
	Kind  string // "innovation" or "publication"
	Title string
	Text  string // title plus description/abstract, used for embedding
}

// Match is one semantic search hit, most similar first.
type Match struct {
	RecordID   string
	Kind       string
	Title      string
	Similarity float64 // cosine similarity in [0,1]
}

// VectorIndex is the embed-and-upsert gateway over the vector store.
type VectorIndex interface {
	IndexRecord(ctx context.Context, rec IndexRecord) error
	// Search embeds the query and returns up to limit nearest records of the
	// given kind; kind "" searches every kind.
	Search(ctx context.Context, query, kind string, limit int) ([]Match, error)
}

// Embedder turns text into a fixed-dimension vector. Implementations route
// through the call mediator so embedding traffic obeys the same rate and
// cost controls as every other upstream call.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
