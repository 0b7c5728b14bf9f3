// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"baobab/platform/shared/types"
)

// Postgres implements Gateway using PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a new PostgreSQL gateway.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

var _ Gateway = (*Postgres)(nil)

// DB exposes the underlying handle for components that share the connection
// pool, such as the vector index.
func (r *Postgres) DB() *sql.DB {
	return r.db
}

// EnsureSchema creates the collector tables if they don't exist.
func (r *Postgres) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS innovations (
		id UUID PRIMARY KEY,
		fingerprint VARCHAR(64) NOT NULL UNIQUE,
		title TEXT NOT NULL,
		description TEXT,
		innovation_type VARCHAR(20) NOT NULL,
		country VARCHAR(100),
		creation_date TIMESTAMP,
		verification_status VARCHAR(20) NOT NULL DEFAULT 'pending',
		visibility VARCHAR(10) NOT NULL DEFAULT 'hidden',
		fundings JSONB,
		organizations JSONB,
		individuals JSONB,
		website_url TEXT,
		source_url TEXT,
		github_url TEXT,
		demo_url TEXT,
		tags JSONB,
		impact_metrics JSONB,
		source_kind VARCHAR(40),
		source_reliability DOUBLE PRECISION NOT NULL DEFAULT 0,
		completeness DOUBLE PRECISION NOT NULL DEFAULT 0,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_backfill_at TIMESTAMP,
		backfilled_fields JSONB,
		needs_review JSONB,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_innovations_country ON innovations(country);
	CREATE INDEX IF NOT EXISTS idx_innovations_verification ON innovations(verification_status);
	CREATE INDEX IF NOT EXISTS idx_innovations_backfill ON innovations(last_backfill_at NULLS FIRST);

	CREATE TABLE IF NOT EXISTS innovation_links (
		canonical_id UUID NOT NULL,
		linked_id UUID NOT NULL,
		relation VARCHAR(40) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (canonical_id, linked_id)
	);

	CREATE TABLE IF NOT EXISTS publications (
		id UUID PRIMARY KEY,
		fingerprint VARCHAR(64) NOT NULL UNIQUE,
		title TEXT NOT NULL,
		abstract TEXT,
		authors JSONB,
		publication_date TIMESTAMP,
		year INTEGER,
		venue TEXT,
		doi VARCHAR(255),
		source VARCHAR(30) NOT NULL,
		source_id VARCHAR(255),
		keywords JSONB,
		african_entities JSONB,
		african_relevance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		ai_relevance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		development_stage VARCHAR(50),
		business_model VARCHAR(50),
		extracted_technologies JSONB,
		impact_metrics JSONB,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_publications_doi ON publications(doi);
	CREATE INDEX IF NOT EXISTS idx_publications_source_ref ON publications(source, source_id);

	CREATE TABLE IF NOT EXISTS intelligence_reports (
		report_id UUID PRIMARY KEY,
		report_type VARCHAR(40) NOT NULL,
		title TEXT NOT NULL,
		summary TEXT,
		key_findings JSONB,
		innovations_mentioned JSONB,
		funding_updates JSONB,
		policy_developments JSONB,
		sources JSONB,
		extracted_citations JSONB,
		structured_findings JSONB,
		geographic_focus JSONB,
		confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		generated_at TIMESTAMP NOT NULL,
		time_period VARCHAR(40),
		validation_flags JSONB,
		provider VARCHAR(40)
	);

	CREATE INDEX IF NOT EXISTS idx_reports_type ON intelligence_reports(report_type, generated_at DESC);

	CREATE TABLE IF NOT EXISTS pipeline_runs (
		run_id UUID PRIMARY KEY,
		pipeline_name VARCHAR(40) NOT NULL,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP,
		status VARCHAR(20) NOT NULL,
		items_processed INTEGER NOT NULL DEFAULT 0,
		items_failed INTEGER NOT NULL DEFAULT 0,
		duplicates_removed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		batch_size INTEGER NOT NULL DEFAULT 0,
		success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		processing_time_ms BIGINT NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_pipeline_runs_name ON pipeline_runs(pipeline_name, started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs(status);

	CREATE TABLE IF NOT EXISTS backfill_jobs (
		job_id UUID PRIMARY KEY,
		innovation_id UUID NOT NULL,
		missing_fields JSONB,
		status VARCHAR(20) NOT NULL,
		results JSONB,
		total_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_backfill_jobs_status ON backfill_jobs(status);

	CREATE TABLE IF NOT EXISTS community_submissions (
		submission_id UUID PRIMARY KEY,
		innovation_id UUID,
		title TEXT NOT NULL,
		description TEXT,
		submitter_id VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS community_votes (
		vote_id UUID PRIMARY KEY,
		innovation_id UUID NOT NULL,
		voter_id VARCHAR(255) NOT NULL,
		upvote BOOLEAN NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (innovation_id, voter_id)
	);
	`

	_, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create collector tables: %w", err)
	}
	return nil
}

// --- innovations ---

const innovationColumns = `id, fingerprint, title, description, innovation_type, country,
	creation_date, verification_status, visibility, fundings, organizations,
	individuals, website_url, source_url, github_url, demo_url, tags,
	impact_metrics, source_kind, source_reliability, completeness, confidence,
	last_backfill_at, backfilled_fields, needs_review, created_at, updated_at`

// UpsertInnovation inserts the record keyed by fingerprint. On conflict the
// existing row wins: only updated_at moves forward, and the outcome carries
// the existing row's ID with Created=false. Content merges are the dedup
// engine's job, not the store's.
func (r *Postgres) UpsertInnovation(ctx context.Context, inn *types.Innovation) (UpsertOutcome, error) {
	if inn.ID == "" {
		inn.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if inn.CreatedAt.IsZero() {
		inn.CreatedAt = now
	}
	if inn.UpdatedAt.IsZero() {
		inn.UpdatedAt = now
	}

	fundings, err := json.Marshal(inn.Fundings)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("failed to marshal fundings: %w", err)
	}
	orgs, err := json.Marshal(inn.Organizations)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("failed to marshal organizations: %w", err)
	}
	people, err := json.Marshal(inn.Individuals)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("failed to marshal individuals: %w", err)
	}
	tags, err := json.Marshal(inn.Tags)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("failed to marshal tags: %w", err)
	}
	impact, err := json.Marshal(inn.ImpactMetrics)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("failed to marshal impact metrics: %w", err)
	}
	backfilled, err := json.Marshal(inn.Backfill.BackfilledFields)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("failed to marshal backfilled fields: %w", err)
	}
	review, err := json.Marshal(inn.Backfill.NeedsReview)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("failed to marshal review fields: %w", err)
	}

	query := `
		INSERT INTO innovations (
			id, fingerprint, title, description, innovation_type, country,
			creation_date, verification_status, visibility, fundings,
			organizations, individuals, website_url, source_url, github_url,
			demo_url, tags, impact_metrics, source_kind, source_reliability,
			completeness, confidence, last_backfill_at, backfilled_fields,
			needs_review, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
		ON CONFLICT (fingerprint) DO UPDATE
		SET updated_at = GREATEST(innovations.updated_at, EXCLUDED.updated_at)
		RETURNING id, (xmax = 0) AS created
	`

	var out UpsertOutcome
	err = r.db.QueryRowContext(ctx, query,
		inn.ID, inn.Fingerprint, inn.Title, nullString(inn.Description),
		inn.InnovationType, nullString(inn.Country), nullTime(inn.CreationDate),
		inn.VerificationStatus, inn.Visibility, fundings, orgs, people,
		nullString(inn.WebsiteURL), nullString(inn.SourceURL),
		nullString(inn.GithubURL), nullString(inn.DemoURL), tags, impact,
		nullString(inn.SourceKind), inn.SourceReliability, inn.Completeness,
		inn.Confidence, nullTime(inn.Backfill.LastBackfillAt), backfilled,
		review, inn.CreatedAt, inn.UpdatedAt,
	).Scan(&out.ID, &out.Created)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("failed to upsert innovation: %w", err)
	}

	return out, nil
}

// UpdateInnovation rewrites every mutable column of an existing record.
func (r *Postgres) UpdateInnovation(ctx context.Context, inn *types.Innovation) error {
	inn.UpdatedAt = time.Now().UTC()

	fundings, err := json.Marshal(inn.Fundings)
	if err != nil {
		return fmt.Errorf("failed to marshal fundings: %w", err)
	}
	orgs, err := json.Marshal(inn.Organizations)
	if err != nil {
		return fmt.Errorf("failed to marshal organizations: %w", err)
	}
	people, err := json.Marshal(inn.Individuals)
	if err != nil {
		return fmt.Errorf("failed to marshal individuals: %w", err)
	}
	tags, err := json.Marshal(inn.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	impact, err := json.Marshal(inn.ImpactMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal impact metrics: %w", err)
	}
	backfilled, err := json.Marshal(inn.Backfill.BackfilledFields)
	if err != nil {
		return fmt.Errorf("failed to marshal backfilled fields: %w", err)
	}
	review, err := json.Marshal(inn.Backfill.NeedsReview)
	if err != nil {
		return fmt.Errorf("failed to marshal review fields: %w", err)
	}

	query := `
		UPDATE innovations SET
			title = $2, description = $3, innovation_type = $4, country = $5,
			creation_date = $6, verification_status = $7, visibility = $8,
			fundings = $9, organizations = $10, individuals = $11,
			website_url = $12, source_url = $13, github_url = $14,
			demo_url = $15, tags = $16, impact_metrics = $17, source_kind = $18,
			source_reliability = $19, completeness = $20, confidence = $21,
			last_backfill_at = $22, backfilled_fields = $23, needs_review = $24,
			updated_at = $25
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		inn.ID, inn.Title, nullString(inn.Description), inn.InnovationType,
		nullString(inn.Country), nullTime(inn.CreationDate),
		inn.VerificationStatus, inn.Visibility, fundings, orgs, people,
		nullString(inn.WebsiteURL), nullString(inn.SourceURL),
		nullString(inn.GithubURL), nullString(inn.DemoURL), tags, impact,
		nullString(inn.SourceKind), inn.SourceReliability, inn.Completeness,
		inn.Confidence, nullTime(inn.Backfill.LastBackfillAt), backfilled,
		review, inn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update innovation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// GetInnovation retrieves an innovation by ID.
func (r *Postgres) GetInnovation(ctx context.Context, id string) (*types.Innovation, error) {
	query := `SELECT ` + innovationColumns + ` FROM innovations WHERE id = $1`
	return r.scanInnovation(r.db.QueryRowContext(ctx, query, id))
}

// InnovationByFingerprint retrieves an innovation by its dedup fingerprint.
func (r *Postgres) InnovationByFingerprint(ctx context.Context, fingerprint string) (*types.Innovation, error) {
	query := `SELECT ` + innovationColumns + ` FROM innovations WHERE fingerprint = $1`
	return r.scanInnovation(r.db.QueryRowContext(ctx, query, fingerprint))
}

// RecentInnovations returns the newest records first.
func (r *Postgres) RecentInnovations(ctx context.Context, limit int) ([]types.Innovation, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + innovationColumns + ` FROM innovations ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list innovations: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []types.Innovation
	for rows.Next() {
		inn, err := r.scanInnovation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inn)
	}
	return out, rows.Err()
}

// InnovationsForBackfill returns records never backfilled or last backfilled
// before the cutoff, oldest first.
func (r *Postgres) InnovationsForBackfill(ctx context.Context, before time.Time, limit int) ([]types.Innovation, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + innovationColumns + ` FROM innovations
		WHERE last_backfill_at IS NULL OR last_backfill_at < $1
		ORDER BY last_backfill_at ASC NULLS FIRST, created_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list backfill candidates: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []types.Innovation
	for rows.Next() {
		inn, err := r.scanInnovation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inn)
	}
	return out, rows.Err()
}

// LinkInnovations records a dedup relationship between two records.
func (r *Postgres) LinkInnovations(ctx context.Context, canonicalID, linkedID, relation string) error {
	query := `
		INSERT INTO innovation_links (canonical_id, linked_id, relation, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (canonical_id, linked_id) DO UPDATE SET relation = EXCLUDED.relation
	`
	_, err := r.db.ExecContext(ctx, query, canonicalID, linkedID, relation, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to link innovations: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Postgres) scanInnovation(row rowScanner) (*types.Innovation, error) {
	var inn types.Innovation
	var description, country, websiteURL, sourceURL, githubURL, demoURL, sourceKind sql.NullString
	var creationDate, lastBackfill sql.NullTime
	var fundings, orgs, people, tags, impact, backfilled, review []byte

	err := row.Scan(
		&inn.ID, &inn.Fingerprint, &inn.Title, &description,
		&inn.InnovationType, &country, &creationDate,
		&inn.VerificationStatus, &inn.Visibility, &fundings, &orgs, &people,
		&websiteURL, &sourceURL, &githubURL, &demoURL, &tags, &impact,
		&sourceKind, &inn.SourceReliability, &inn.Completeness,
		&inn.Confidence, &lastBackfill, &backfilled, &review,
		&inn.CreatedAt, &inn.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan innovation: %w", err)
	}

	inn.Description = description.String
	inn.Country = country.String
	inn.WebsiteURL = websiteURL.String
	inn.SourceURL = sourceURL.String
	inn.GithubURL = githubURL.String
	inn.DemoURL = demoURL.String
	inn.SourceKind = sourceKind.String
	if creationDate.Valid {
		t := creationDate.Time
		inn.CreationDate = &t
	}
	if lastBackfill.Valid {
		t := lastBackfill.Time
		inn.Backfill.LastBackfillAt = &t
	}

	if err := unmarshalJSON(fundings, &inn.Fundings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fundings: %w", err)
	}
	if err := unmarshalJSON(orgs, &inn.Organizations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal organizations: %w", err)
	}
	if err := unmarshalJSON(people, &inn.Individuals); err != nil {
		return nil, fmt.Errorf("failed to unmarshal individuals: %w", err)
	}
	if err := unmarshalJSON(tags, &inn.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if err := unmarshalJSON(impact, &inn.ImpactMetrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal impact metrics: %w", err)
	}
	if err := unmarshalJSON(backfilled, &inn.Backfill.BackfilledFields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal backfilled fields: %w", err)
	}
	if err := unmarshalJSON(review, &inn.Backfill.NeedsReview); err != nil {
		return nil, fmt.Errorf("failed to unmarshal review fields: %w", err)
	}

	return &inn, nil
}

// --- publications ---

const publicationColumns = `id, fingerprint, title, abstract, authors, publication_date,
	year, venue, doi, source, source_id, keywords, african_entities,
	african_relevance_score, ai_relevance_score, development_stage,
	business_model, extracted_technologies, impact_metrics, created_at, updated_at`

// UpsertPublication inserts the publication keyed by fingerprint, reporting
// the existing row on conflict.
func (r *Postgres) UpsertPublication(ctx context.Context, pub *types.Publication) (UpsertOutcome, error) {
	if pub.ID == "" {
		pub.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if pub.CreatedAt.IsZero() {
		pub.CreatedAt = now
	}
	if pub.UpdatedAt.IsZero() {
		pub.UpdatedAt = now
	}

	authors, err := json.Marshal(pub.Authors)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("failed to marshal authors: %w", err)
	}
	keywords, err := json.Marshal(pub.Keywords)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("failed to marshal keywords: %w", err)
	}
	entities, err := json.Marshal(pub.AfricanEntities)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("failed to marshal entities: %w", err)
	}
	techs, err := json.Marshal(pub.ExtractedTechnologies)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("failed to marshal technologies: %w", err)
	}
	impact, err := json.Marshal(pub.ImpactMetrics)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("failed to marshal impact metrics: %w", err)
	}

	query := `
		INSERT INTO publications (
			id, fingerprint, title, abstract, authors, publication_date, year,
			venue, doi, source, source_id, keywords, african_entities,
			african_relevance_score, ai_relevance_score, development_stage,
			business_model, extracted_technologies, impact_metrics,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (fingerprint) DO UPDATE
		SET updated_at = GREATEST(publications.updated_at, EXCLUDED.updated_at)
		RETURNING id, (xmax = 0) AS created
	`

	var out UpsertOutcome
	err = r.db.QueryRowContext(ctx, query,
		pub.ID, pub.Fingerprint, pub.Title, nullString(pub.Abstract), authors,
		nullTime(pub.PublicationDate), pub.Year, nullString(pub.Venue),
		nullString(pub.DOI), pub.Source, nullString(pub.SourceID), keywords,
		entities, pub.AfricanRelevanceScore, pub.AIRelevanceScore,
		nullString(pub.DevelopmentStage), nullString(pub.BusinessModel),
		techs, impact, pub.CreatedAt, pub.UpdatedAt,
	).Scan(&out.ID, &out.Created)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("failed to upsert publication: %w", err)
	}

	return out, nil
}

// UpdatePublication rewrites an existing publication in place.
func (r *Postgres) UpdatePublication(ctx context.Context, pub *types.Publication) error {
	pub.UpdatedAt = time.Now().UTC()

	authors, err := json.Marshal(pub.Authors)
	if err != nil {
		return fmt.Errorf("failed to marshal authors: %w", err)
	}
	keywords, err := json.Marshal(pub.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	entities, err := json.Marshal(pub.AfricanEntities)
	if err != nil {
		return fmt.Errorf("failed to marshal entities: %w", err)
	}
	techs, err := json.Marshal(pub.ExtractedTechnologies)
	if err != nil {
		return fmt.Errorf("failed to marshal technologies: %w", err)
	}
	impact, err := json.Marshal(pub.ImpactMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal impact metrics: %w", err)
	}

	query := `
		UPDATE publications SET
			title = $2, abstract = $3, authors = $4, publication_date = $5,
			year = $6, venue = $7, doi = $8, keywords = $9,
			african_entities = $10, african_relevance_score = $11,
			ai_relevance_score = $12, development_stage = $13,
			business_model = $14, extracted_technologies = $15,
			impact_metrics = $16, updated_at = $17
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		pub.ID, pub.Title, nullString(pub.Abstract), authors,
		nullTime(pub.PublicationDate), pub.Year, nullString(pub.Venue),
		nullString(pub.DOI), keywords, entities, pub.AfricanRelevanceScore,
		pub.AIRelevanceScore, nullString(pub.DevelopmentStage),
		nullString(pub.BusinessModel), techs, impact, pub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update publication: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetPublication retrieves a publication by primary key.
func (r *Postgres) GetPublication(ctx context.Context, id string) (*types.Publication, error) {
	query := `SELECT ` + publicationColumns + ` FROM publications WHERE id = $1`
	return r.scanPublication(r.db.QueryRowContext(ctx, query, id))
}

// PublicationByFingerprint retrieves a publication by its dedup fingerprint.
func (r *Postgres) PublicationByFingerprint(ctx context.Context, fingerprint string) (*types.Publication, error) {
	query := `SELECT ` + publicationColumns + ` FROM publications WHERE fingerprint = $1`
	return r.scanPublication(r.db.QueryRowContext(ctx, query, fingerprint))
}

// PublicationByDOI retrieves a publication by DOI.
func (r *Postgres) PublicationByDOI(ctx context.Context, doi string) (*types.Publication, error) {
	query := `SELECT ` + publicationColumns + ` FROM publications WHERE doi = $1`
	return r.scanPublication(r.db.QueryRowContext(ctx, query, doi))
}

// PublicationBySourceID retrieves a publication by its upstream identity.
func (r *Postgres) PublicationBySourceID(ctx context.Context, source types.PublicationSource, sourceID string) (*types.Publication, error) {
	query := `SELECT ` + publicationColumns + ` FROM publications WHERE source = $1 AND source_id = $2`
	return r.scanPublication(r.db.QueryRowContext(ctx, query, source, sourceID))
}

// RecentPublications returns the newest publications first.
func (r *Postgres) RecentPublications(ctx context.Context, limit int) ([]types.Publication, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + publicationColumns + ` FROM publications ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list publications: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []types.Publication
	for rows.Next() {
		pub, err := r.scanPublication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pub)
	}
	return out, rows.Err()
}

func (r *Postgres) scanPublication(row rowScanner) (*types.Publication, error) {
	var pub types.Publication
	var abstract, venue, doi, sourceID, stage, model sql.NullString
	var pubDate sql.NullTime
	var authors, keywords, entities, techs, impact []byte

	err := row.Scan(
		&pub.ID, &pub.Fingerprint, &pub.Title, &abstract, &authors, &pubDate,
		&pub.Year, &venue, &doi, &pub.Source, &sourceID, &keywords, &entities,
		&pub.AfricanRelevanceScore, &pub.AIRelevanceScore, &stage, &model,
		&techs, &impact, &pub.CreatedAt, &pub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan publication: %w", err)
	}

	pub.Abstract = abstract.String
	pub.Venue = venue.String
	pub.DOI = doi.String
	pub.SourceID = sourceID.String
	pub.DevelopmentStage = stage.String
	pub.BusinessModel = model.String
	if pubDate.Valid {
		t := pubDate.Time
		pub.PublicationDate = &t
	}

	if err := unmarshalJSON(authors, &pub.Authors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authors: %w", err)
	}
	if err := unmarshalJSON(keywords, &pub.Keywords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
	}
	if err := unmarshalJSON(entities, &pub.AfricanEntities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entities: %w", err)
	}
	if err := unmarshalJSON(techs, &pub.ExtractedTechnologies); err != nil {
		return nil, fmt.Errorf("failed to unmarshal technologies: %w", err)
	}
	if err := unmarshalJSON(impact, &pub.ImpactMetrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal impact metrics: %w", err)
	}

	return &pub, nil
}

// --- intelligence reports ---

const reportColumns = `report_id, report_type, title, summary, key_findings,
	innovations_mentioned, funding_updates, policy_developments, sources,
	extracted_citations, structured_findings, geographic_focus,
	confidence_score, generated_at, time_period, validation_flags, provider`

// SaveReport persists one intelligence report.
func (r *Postgres) SaveReport(ctx context.Context, report *types.IntelligenceReport) error {
	if report.ReportID == "" {
		report.ReportID = uuid.New().String()
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now().UTC()
	}

	findings, err := json.Marshal(report.KeyFindings)
	if err != nil {
		return fmt.Errorf("failed to marshal key findings: %w", err)
	}
	mentioned, err := json.Marshal(report.InnovationsMentioned)
	if err != nil {
		return fmt.Errorf("failed to marshal mentions: %w", err)
	}
	funding, err := json.Marshal(report.FundingUpdates)
	if err != nil {
		return fmt.Errorf("failed to marshal funding updates: %w", err)
	}
	policy, err := json.Marshal(report.PolicyDevelopments)
	if err != nil {
		return fmt.Errorf("failed to marshal policy developments: %w", err)
	}
	sources, err := json.Marshal(report.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}
	citations, err := json.Marshal(report.ExtractedCitations)
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}
	structured, err := json.Marshal(report.StructuredFindings)
	if err != nil {
		return fmt.Errorf("failed to marshal structured findings: %w", err)
	}
	focus, err := json.Marshal(report.GeographicFocus)
	if err != nil {
		return fmt.Errorf("failed to marshal geographic focus: %w", err)
	}
	flags, err := json.Marshal(report.ValidationFlags)
	if err != nil {
		return fmt.Errorf("failed to marshal validation flags: %w", err)
	}

	// Re-saving after citation resolution must not duplicate the row, so
	// the mutable columns upsert on report_id.
	query := `
		INSERT INTO intelligence_reports (
			report_id, report_type, title, summary, key_findings,
			innovations_mentioned, funding_updates, policy_developments,
			sources, extracted_citations, structured_findings,
			geographic_focus, confidence_score, generated_at, time_period,
			validation_flags, provider
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17)
		ON CONFLICT (report_id) DO UPDATE SET
			extracted_citations = EXCLUDED.extracted_citations,
			validation_flags = EXCLUDED.validation_flags
	`

	_, err = r.db.ExecContext(ctx, query,
		report.ReportID, report.ReportType, report.Title,
		nullString(report.Summary), findings, mentioned, funding, policy,
		sources, citations, structured, focus, report.ConfidenceScore,
		report.GeneratedAt, nullString(report.TimePeriod), flags,
		nullString(report.Provider),
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	return nil
}

// RecentReports returns the newest reports first.
func (r *Postgres) RecentReports(ctx context.Context, limit int) ([]types.IntelligenceReport, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + reportColumns + ` FROM intelligence_reports ORDER BY generated_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []types.IntelligenceReport
	for rows.Next() {
		var rep types.IntelligenceReport
		var summary, timePeriod, provider sql.NullString
		var findings, mentioned, funding, policy, sources, citations, structured, focus, flags []byte

		err := rows.Scan(
			&rep.ReportID, &rep.ReportType, &rep.Title, &summary, &findings,
			&mentioned, &funding, &policy, &sources, &citations, &structured,
			&focus, &rep.ConfidenceScore, &rep.GeneratedAt, &timePeriod,
			&flags, &provider,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}

		rep.Summary = summary.String
		rep.TimePeriod = timePeriod.String
		rep.Provider = provider.String
		if err := unmarshalJSON(findings, &rep.KeyFindings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal key findings: %w", err)
		}
		if err := unmarshalJSON(mentioned, &rep.InnovationsMentioned); err != nil {
			return nil, fmt.Errorf("failed to unmarshal mentions: %w", err)
		}
		if err := unmarshalJSON(funding, &rep.FundingUpdates); err != nil {
			return nil, fmt.Errorf("failed to unmarshal funding updates: %w", err)
		}
		if err := unmarshalJSON(policy, &rep.PolicyDevelopments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal policy developments: %w", err)
		}
		if err := unmarshalJSON(sources, &rep.Sources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
		}
		if err := unmarshalJSON(citations, &rep.ExtractedCitations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal citations: %w", err)
		}
		if err := unmarshalJSON(structured, &rep.StructuredFindings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal structured findings: %w", err)
		}
		if err := unmarshalJSON(focus, &rep.GeographicFocus); err != nil {
			return nil, fmt.Errorf("failed to unmarshal geographic focus: %w", err)
		}
		if err := unmarshalJSON(flags, &rep.ValidationFlags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal validation flags: %w", err)
		}

		out = append(out, rep)
	}
	return out, rows.Err()
}

// --- pipeline runs ---

const runColumns = `run_id, pipeline_name, started_at, ended_at, status,
	items_processed, items_failed, duplicates_removed, error, batch_size,
	success_rate, processing_time_ms`

// CreateRun inserts a new run in status running.
func (r *Postgres) CreateRun(ctx context.Context, run *types.PipelineRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = types.RunRunning
	}

	query := `
		INSERT INTO pipeline_runs (
			run_id, pipeline_name, started_at, ended_at, status,
			items_processed, items_failed, duplicates_removed, error,
			batch_size, success_rate, processing_time_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.RunID, run.PipelineName, run.StartedAt, nullTime(run.EndedAt),
		run.Status, run.ItemsProcessed, run.ItemsFailed, run.DuplicatesRemoved,
		nullString(run.Error), run.Metrics.BatchSize, run.Metrics.SuccessRate,
		run.Metrics.ProcessingTimeMs,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// CompleteRun writes the terminal state of a run.
func (r *Postgres) CompleteRun(ctx context.Context, run *types.PipelineRun) error {
	query := `
		UPDATE pipeline_runs SET
			ended_at = $2, status = $3, items_processed = $4, items_failed = $5,
			duplicates_removed = $6, error = $7, batch_size = $8,
			success_rate = $9, processing_time_ms = $10
		WHERE run_id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		run.RunID, nullTime(run.EndedAt), run.Status, run.ItemsProcessed,
		run.ItemsFailed, run.DuplicatesRemoved, nullString(run.Error),
		run.Metrics.BatchSize, run.Metrics.SuccessRate,
		run.Metrics.ProcessingTimeMs,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check run update: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// RecentRuns returns the newest runs for a pipeline, or for all pipelines
// when pipeline is empty.
func (r *Postgres) RecentRuns(ctx context.Context, pipeline string, limit int) ([]types.PipelineRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + runColumns + ` FROM pipeline_runs`
	args := []any{}
	argIndex := 1
	if pipeline != "" {
		query += fmt.Sprintf(" WHERE pipeline_name = $%d", argIndex)
		args = append(args, pipeline)
		argIndex++
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []types.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// LastCompletedRun returns the newest run that reached a terminal status.
func (r *Postgres) LastCompletedRun(ctx context.Context, pipeline string) (*types.PipelineRun, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs
		WHERE pipeline_name = $1 AND status IN ('succeeded', 'failed', 'skipped')
		ORDER BY started_at DESC
		LIMIT 1`
	return scanRun(r.db.QueryRowContext(ctx, query, pipeline))
}

// RecoverStaleRuns force-fails runs stuck in running since before the cutoff.
func (r *Postgres) RecoverStaleRuns(ctx context.Context, staleBefore time.Time) (int64, error) {
	query := `
		UPDATE pipeline_runs
		SET status = 'failed', error = 'recovered stale run', ended_at = $2
		WHERE status = 'running' AND started_at < $1
	`

	result, err := r.db.ExecContext(ctx, query, staleBefore, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale runs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count recovered runs: %w", err)
	}
	return rows, nil
}

func scanRun(row rowScanner) (*types.PipelineRun, error) {
	var run types.PipelineRun
	var endedAt sql.NullTime
	var errMsg sql.NullString

	err := row.Scan(
		&run.RunID, &run.PipelineName, &run.StartedAt, &endedAt, &run.Status,
		&run.ItemsProcessed, &run.ItemsFailed, &run.DuplicatesRemoved,
		&errMsg, &run.Metrics.BatchSize, &run.Metrics.SuccessRate,
		&run.Metrics.ProcessingTimeMs,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Error = errMsg.String
	if endedAt.Valid {
		t := endedAt.Time
		run.EndedAt = &t
	}

	return &run, nil
}

// --- backfill jobs ---

// SaveBackfillJob inserts or updates a job keyed by job_id.
func (r *Postgres) SaveBackfillJob(ctx context.Context, job *types.BackfillJob) error {
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	fields, err := json.Marshal(job.MissingFields)
	if err != nil {
		return fmt.Errorf("failed to marshal missing fields: %w", err)
	}
	results, err := json.Marshal(job.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	query := `
		INSERT INTO backfill_jobs (
			job_id, innovation_id, missing_fields, status, results,
			total_cost_usd, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status, results = EXCLUDED.results,
			total_cost_usd = EXCLUDED.total_cost_usd,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		job.JobID, job.InnovationID, fields, job.Status, results,
		job.TotalCost, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save backfill job: %w", err)
	}

	return nil
}

// BackfillJobCounts returns how many jobs sit in each status.
func (r *Postgres) BackfillJobCounts(ctx context.Context) (map[types.BackfillStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM backfill_jobs GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count backfill jobs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	counts := make(map[types.BackfillStatus]int)
	for rows.Next() {
		var status types.BackfillStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// --- community ---

// SaveSubmission persists one community submission.
func (r *Postgres) SaveSubmission(ctx context.Context, sub *types.CommunitySubmission) error {
	if sub.SubmissionID == "" {
		sub.SubmissionID = uuid.New().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO community_submissions (
			submission_id, innovation_id, title, description, submitter_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		sub.SubmissionID, nullString(sub.InnovationID), sub.Title,
		nullString(sub.Description), sub.SubmitterID, sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save submission: %w", err)
	}

	return nil
}

// SaveVote records one vote per voter per innovation.
func (r *Postgres) SaveVote(ctx context.Context, vote *types.CommunityVote) error {
	if vote.VoteID == "" {
		vote.VoteID = uuid.New().String()
	}
	if vote.CreatedAt.IsZero() {
		vote.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO community_votes (vote_id, innovation_id, voter_id, upvote, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (innovation_id, voter_id) DO UPDATE SET
			upvote = EXCLUDED.upvote, created_at = EXCLUDED.created_at
	`

	_, err := r.db.ExecContext(ctx, query,
		vote.VoteID, vote.InnovationID, vote.VoterID, vote.Upvote, vote.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save vote: %w", err)
	}

	return nil
}

// UpvoteCount returns the number of distinct upvoters for a record.
func (r *Postgres) UpvoteCount(ctx context.Context, innovationID string) (int, error) {
	query := `SELECT COUNT(*) FROM community_votes WHERE innovation_id = $1 AND upvote = TRUE`

	var n int
	err := r.db.QueryRowContext(ctx, query, innovationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count upvotes: %w", err)
	}
	return n, nil
}

// PendingSubmissions returns the newest submissions first.
func (r *Postgres) PendingSubmissions(ctx context.Context, limit int) ([]types.CommunitySubmission, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT submission_id, innovation_id, title, description, submitter_id, created_at
		FROM community_submissions ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []types.CommunitySubmission
	for rows.Next() {
		var sub types.CommunitySubmission
		var innovationID, description sql.NullString
		if err := rows.Scan(&sub.SubmissionID, &innovationID, &sub.Title,
			&description, &sub.SubmitterID, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		sub.InnovationID = innovationID.String
		sub.Description = description.String
		out = append(out, sub)
	}
	return out, rows.Err()
}

// --- helpers ---

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func unmarshalJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
