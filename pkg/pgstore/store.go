// Package pgstore implements the vector index on Postgres with the pgvector extension.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"campus-rag-go/internal/model"
	"campus-rag-go/pkg/log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var errNilPool = errors.New("postgres pool is nil")

// schemaStatements returns the DDL for the vector table with the given dimension.
func schemaStatements(dimension int) []string {
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS campus_vectors (
			id TEXT PRIMARY KEY,
			content_hash TEXT NOT NULL,
			file_name TEXT NOT NULL,
			chunk_id INT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			metadata JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_campus_vectors_hash ON campus_vectors(content_hash)",
		"CREATE INDEX IF NOT EXISTS idx_campus_vectors_embedding ON campus_vectors USING ivfflat (embedding vector_cosine_ops)",
	}
}

// EnsureSchema creates the extension, table and indexes if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if pool == nil {
		return errNilPool
	}
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	for _, stmt := range schemaStatements(dimension) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

// Store is a pgvector-backed vector index. Scores are cosine similarity.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Upsert writes the records in one transaction, replacing rows with the same id.
func (s *Store) Upsert(ctx context.Context, records []model.VectorRecord) error {
	if s.pool == nil {
		return errNilPool
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", r.ID, err)
		}
		batch.Queue(`
			INSERT INTO campus_vectors (id, content_hash, file_name, chunk_id, embedding, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				content_hash = EXCLUDED.content_hash,
				file_name = EXCLUDED.file_name,
				chunk_id = EXCLUDED.chunk_id,
				embedding = EXCLUDED.embedding,
				metadata = EXCLUDED.metadata
		`, r.ID, r.Metadata.ContentHash, r.Metadata.Filename, r.Metadata.ChunkID, pgvector.NewVector(r.Vector), meta)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit vectors: %w", err)
	}
	log.Debugf("[PGStore] 写入 %d 条向量", len(records))
	return nil
}

// Query returns the topK nearest rows by cosine distance.
func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]model.VectorMatch, error) {
	if s.pool == nil {
		return nil, errNilPool
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("embedding is empty")
	}
	if topK <= 0 {
		topK = 5
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, metadata, (embedding <=> $1::vector) AS distance
		FROM campus_vectors
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("query similar vectors: %w", err)
	}
	defer rows.Close()

	matches := make([]model.VectorMatch, 0, topK)
	for rows.Next() {
		var (
			m        model.VectorMatch
			raw      []byte
			distance float64
		)
		if err := rows.Scan(&m.ID, &raw, &distance); err != nil {
			return nil, fmt.Errorf("scan similar vector: %w", err)
		}
		if err := json.Unmarshal(raw, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", m.ID, err)
		}
		m.Score = 1 - distance
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// DeleteByContentHash removes every vector of one document version.
func (s *Store) DeleteByContentHash(ctx context.Context, hash string) (int64, error) {
	if s.pool == nil {
		return 0, errNilPool
	}
	tag, err := s.pool.Exec(ctx, "DELETE FROM campus_vectors WHERE content_hash = $1", hash)
	if err != nil {
		return 0, fmt.Errorf("delete vectors: %w", err)
	}
	return tag.RowsAffected(), nil
}
