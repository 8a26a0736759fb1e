package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
)

// PostgresStore keeps vectors in Postgres with the pgvector extension.
// It is the only backend with native text ranking, served by Postgres
// full-text search, and it doubles as the query analytics sink.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a Postgres-backed vector store.
func NewPostgresStore(cfg Config) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) EnsureCollection(ctx context.Context, collection string, dimension int, metric DistanceMetric) error {
	if _, err := metric.Operator(); err != nil {
		return err
	}

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS vector_records (
			id UUID PRIMARY KEY,
			collection TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vector_records_collection ON vector_records (collection)`,
		`CREATE TABLE IF NOT EXISTS queries (
			id BIGSERIAL PRIMARY KEY,
			collection TEXT NOT NULL,
			query_text TEXT NOT NULL,
			has_vector BOOLEAN NOT NULL,
			result_count INTEGER NOT NULL,
			latency_ms DOUBLE PRECISION NOT NULL,
			filters JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure vector schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin insert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vector_records (id, collection, content, embedding, metadata)
		VALUES ($1, $2, $3, $4::vector, $5)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content,
		    embedding = EXCLUDED.embedding,
		    metadata = EXCLUDED.metadata`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		metadata, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", record.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, record.ID, collection, record.Content, vectorLiteral(record.Vector), metadata); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", record.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) QueryNearest(ctx context.Context, collection string, vector []float32, metric DistanceMetric, limit int, filter map[string]any) ([]Row, error) {
	operator, err := metric.Operator()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, content, metadata, embedding %s $1::vector AS distance
		FROM vector_records
		WHERE collection = $2`, operator)
	args := []any{vectorLiteral(vector), collection}

	query, args, err = appendMetadataFilter(query, args, filter)
	if err != nil {
		return nil, err
	}
	query += fmt.Sprintf(" ORDER BY distance ASC LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbor query failed: %w", err)
	}
	defer rows.Close()

	var results []Row
	for rows.Next() {
		var row Row
		var metadata []byte
		if err := rows.Scan(&row.ID, &row.Content, &metadata, &row.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		if row.Metadata, err = decodeMetadata(metadata); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func (s *PostgresStore) QueryTextRank(ctx context.Context, collection string, text string, limit int, filter map[string]any) ([]TextRow, error) {
	query := `
		SELECT id, content, metadata,
		       ts_rank(to_tsvector('english', content), plainto_tsquery('english', $1)) AS relevance
		FROM vector_records
		WHERE collection = $2
		  AND to_tsvector('english', content) @@ plainto_tsquery('english', $1)`
	args := []any{text, collection}

	query, args, err := appendMetadataFilter(query, args, filter)
	if err != nil {
		return nil, err
	}
	query += fmt.Sprintf(" ORDER BY relevance DESC LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("text rank query failed: %w", err)
	}
	defer rows.Close()

	var results []TextRow
	for rows.Next() {
		var row TextRow
		var metadata []byte
		if err := rows.Scan(&row.ID, &row.Content, &metadata, &row.Relevance); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		if row.Metadata, err = decodeMetadata(metadata); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func (s *PostgresStore) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	query := `DELETE FROM vector_records WHERE collection = $1`
	args := []any{collection}

	query, args, err := appendMetadataFilter(query, args, filter)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete by filter failed: %w", err)
	}
	return nil
}

// RecordQuery writes one analytics entry. Callers treat failures as
// non-fatal.
func (s *PostgresStore) RecordQuery(ctx context.Context, record QueryRecord) error {
	var filters any
	if len(record.Filter) > 0 {
		encoded, err := json.Marshal(record.Filter)
		if err != nil {
			return fmt.Errorf("failed to marshal query filters: %w", err)
		}
		filters = encoded
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queries (collection, query_text, has_vector, result_count, latency_ms, filters)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		record.Collection, record.QueryText, record.HasVector, record.ResultCount,
		float64(record.Latency.Microseconds())/1000.0, filters)
	if err != nil {
		return fmt.Errorf("failed to record query: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// vectorLiteral renders a vector in pgvector's input syntax.
func vectorLiteral(vector []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// appendMetadataFilter adds a jsonb containment condition when a
// filter is present.
func appendMetadataFilter(query string, args []any, filter map[string]any) (string, []any, error) {
	if len(filter) == 0 {
		return query, args, nil
	}
	encoded, err := json.Marshal(filter)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal metadata filter: %w", err)
	}
	query += fmt.Sprintf(" AND metadata @> $%d::jsonb", len(args)+1)
	return query, append(args, encoded), nil
}

func decodeMetadata(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("failed to decode record metadata: %w", err)
	}
	return metadata, nil
}

var (
	_ Store     = (*PostgresStore)(nil)
	_ Analytics = (*PostgresStore)(nil)
)
