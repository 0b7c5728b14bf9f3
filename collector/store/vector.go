// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// maxEmbedChars caps the text sent to the embedding API. Longer inputs are
// truncated; the title always survives because it leads the text.
const maxEmbedChars = 8000

// PGVector implements VectorIndex on a pgvector-enabled PostgreSQL database.
// It shares the relational store's connection pool.
type PGVector struct {
	db    *sql.DB
	embed Embedder
}

// NewPGVector creates a vector index gateway. The embedder decides the
// column dimension, so swapping embedding models requires a reindex.
func NewPGVector(db *sql.DB, embed Embedder) *PGVector {
	return &PGVector{db: db, embed: embed}
}

var _ VectorIndex = (*PGVector)(nil)

// EnsureSchema creates the embeddings table if it doesn't exist.
func (v *PGVector) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS record_embeddings (
		record_id UUID PRIMARY KEY,
		kind VARCHAR(20) NOT NULL,
		title TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_record_embeddings_kind ON record_embeddings(kind);
	`, v.embed.Dimensions())

	_, err := v.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create embeddings table: %w", err)
	}
	return nil
}

// IndexRecord embeds the record text and upserts it keyed by record ID.
func (v *PGVector) IndexRecord(ctx context.Context, rec IndexRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("index record requires an ID")
	}

	text := embedText(rec)
	vec, err := v.embed.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed record %s: %w", rec.ID, err)
	}
	if len(vec) != v.embed.Dimensions() {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vec), v.embed.Dimensions())
	}

	query := `
		INSERT INTO record_embeddings (record_id, kind, title, embedding, updated_at)
		VALUES ($1, $2, $3, $4::vector, $5)
		ON CONFLICT (record_id) DO UPDATE SET
			kind = EXCLUDED.kind, title = EXCLUDED.title,
			embedding = EXCLUDED.embedding, updated_at = EXCLUDED.updated_at
	`

	_, err = v.db.ExecContext(ctx, query,
		rec.ID, rec.Kind, rec.Title, vectorLiteral(vec), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to index record %s: %w", rec.ID, err)
	}

	return nil
}

// Search embeds the query and returns the nearest records by cosine
// similarity, most similar first.
func (v *PGVector) Search(ctx context.Context, query, kind string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 5
	}

	vec, err := v.embed.Embed(ctx, truncate(query, maxEmbedChars))
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	sqlQuery := `
		SELECT record_id, kind, title, 1 - (embedding <=> $1::vector) AS similarity
		FROM record_embeddings
		WHERE ($2 = '' OR kind = $2)
		ORDER BY embedding <=> $1::vector
		LIMIT $3
	`

	rows, err := v.db.QueryContext(ctx, sqlQuery, vectorLiteral(vec), kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.RecordID, &m.Kind, &m.Title, &m.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		if m.Similarity < 0 {
			m.Similarity = 0
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// embedText builds the embedding input: title first so truncation trims the
// body, never the identity.
func embedText(rec IndexRecord) string {
	text := rec.Title
	if rec.Text != "" && rec.Text != rec.Title {
		text += "\n" + rec.Text
	}
	return truncate(text, maxEmbedChars)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// vectorLiteral renders a float32 slice in pgvector's text format.
func vectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
