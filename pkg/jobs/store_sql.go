package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore persists jobs in Postgres or SQLite via database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

const createJobsTableSQL = `
CREATE TABLE IF NOT EXISTS ingestion_jobs (
    id VARCHAR(255) PRIMARY KEY,
    collection_name VARCHAR(255) NOT NULL,
    file_path TEXT NOT NULL,
    file_type VARCHAR(50) NOT NULL,
    chunking TEXT NOT NULL,
    status VARCHAR(50) NOT NULL,
    total_chunks INTEGER NOT NULL DEFAULT 0,
    processed_chunks INTEGER NOT NULL DEFAULT 0,
    failed_chunks INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    started_at TIMESTAMP,
    completed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_ingestion_jobs_status ON ingestion_jobs(status);
CREATE INDEX IF NOT EXISTS idx_ingestion_jobs_created_at ON ingestion_jobs(created_at);
`

// NewSQLStore wraps an existing connection and ensures the schema.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	switch dialect {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, sqlite)", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// NewSQLStoreFromDSN opens a connection and wraps it. The sqlite
// dialect maps to the go-sqlite3 driver name.
func NewSQLStoreFromDSN(dialect, dsn string, maxConns, maxIdle int) (*SQLStore, error) {
	driverName := dialect
	if driverName == "sqlite" {
		driverName = "sqlite3"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := NewSQLStore(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, createJobsTableSQL)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// rebind converts ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

func (s *SQLStore) Create(ctx context.Context, job *IngestionJob) error {
	chunkingJSON, err := json.Marshal(job.Chunking)
	if err != nil {
		return fmt.Errorf("failed to serialize chunking config: %w", err)
	}

	query := s.rebind(`
INSERT INTO ingestion_jobs
    (id, collection_name, file_path, file_type, chunking, status,
     total_chunks, processed_chunks, failed_chunks, error_message,
     cancel_requested, created_at, updated_at, started_at, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = s.db.ExecContext(ctx, query,
		job.ID, job.CollectionName, job.FilePath, job.FileType, string(chunkingJSON), string(job.Status),
		job.TotalChunks, job.ProcessedChunks, job.FailedChunks, job.ErrorMessage,
		job.CancelRequested, job.CreatedAt, job.UpdatedAt, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*IngestionJob, error) {
	query := s.rebind(`
SELECT id, collection_name, file_path, file_type, chunking, status,
       total_chunks, processed_chunks, failed_chunks, error_message,
       cancel_requested, created_at, updated_at, started_at, completed_at
FROM ingestion_jobs WHERE id = ?`)

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return job, nil
}

func (s *SQLStore) Update(ctx context.Context, job *IngestionJob) error {
	chunkingJSON, err := json.Marshal(job.Chunking)
	if err != nil {
		return fmt.Errorf("failed to serialize chunking config: %w", err)
	}

	query := s.rebind(`
UPDATE ingestion_jobs
SET collection_name = ?, file_path = ?, file_type = ?, chunking = ?, status = ?,
    total_chunks = ?, processed_chunks = ?, failed_chunks = ?, error_message = ?,
    cancel_requested = ?, updated_at = ?, started_at = ?, completed_at = ?
WHERE id = ?`)

	result, err := s.db.ExecContext(ctx, query,
		job.CollectionName, job.FilePath, job.FileType, string(chunkingJSON), string(job.Status),
		job.TotalChunks, job.ProcessedChunks, job.FailedChunks, job.ErrorMessage,
		job.CancelRequested, job.UpdatedAt, job.StartedAt, job.CompletedAt, job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, opts ListOptions) ([]*IngestionJob, int, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	countQuery := `SELECT COUNT(*) FROM ingestion_jobs`
	listQuery := `
SELECT id, collection_name, file_path, file_type, chunking, status,
       total_chunks, processed_chunks, failed_chunks, error_message,
       cancel_requested, created_at, updated_at, started_at, completed_at
FROM ingestion_jobs`

	var args []any
	if opts.Status != "" {
		countQuery += ` WHERE status = ?`
		listQuery += ` WHERE status = ?`
		args = append(args, string(opts.Status))
	}
	listQuery += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`, limit, opts.Offset)

	var total int
	if err := s.db.QueryRowContext(ctx, s.rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(listQuery), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*IngestionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

// Close releases the underlying connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*IngestionJob, error) {
	var job IngestionJob
	var chunkingJSON, status string
	var errorMessage sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&job.ID, &job.CollectionName, &job.FilePath, &job.FileType, &chunkingJSON, &status,
		&job.TotalChunks, &job.ProcessedChunks, &job.FailedChunks, &errorMessage,
		&job.CancelRequested, &job.CreatedAt, &job.UpdatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(chunkingJSON), &job.Chunking); err != nil {
		return nil, fmt.Errorf("failed to decode chunking config: %w", err)
	}
	job.Status = Status(status)
	job.ErrorMessage = errorMessage.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

var _ Store = (*SQLStore)(nil)
