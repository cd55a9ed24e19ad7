// Package postgres persists document metadata, settings and query results
// through database/sql with the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026080601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	blob_key TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	file_size_bytes BIGINT NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	uploaded_at TIMESTAMPTZ NOT NULL,
	processing_started_at TIMESTAMPTZ,
	processing_completed_at TIMESTAMPTZ,
	processing_time_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	vector_count INTEGER NOT NULL DEFAULT 0,
	qa_pairs_count INTEGER NOT NULL DEFAULT 0,
	detected_languages JSONB NOT NULL DEFAULT '[]'::jsonb,
	primary_language TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_uploaded_at ON documents(uploaded_at DESC);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS query_results (
	id TEXT PRIMARY KEY,
	query_text TEXT NOT NULL,
	answer TEXT,
	confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	citations JSONB NOT NULL DEFAULT '[]'::jsonb,
	total_time_ms BIGINT NOT NULL DEFAULT 0,
	iteration_count INTEGER NOT NULL DEFAULT 0,
	debug_data JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	languagesJSON, err := marshalJSON(doc.DetectedLanguages)
	if err != nil {
		return fmt.Errorf("marshal detected languages: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, filename, blob_key, mime_type, file_size_bytes, status, uploaded_at,
	detected_languages, primary_language, summary, error_message
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		doc.ID, doc.Filename, doc.BlobKey, doc.MimeType, doc.FileSizeBytes,
		string(doc.Status), doc.UploadedAt, languagesJSON, doc.PrimaryLanguage,
		doc.Summary, doc.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, blob_key, mime_type, file_size_bytes, status, uploaded_at,
	processing_started_at, processing_completed_at, processing_time_seconds,
	chunk_count, vector_count, qa_pairs_count, detected_languages,
	primary_language, summary, error_message
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var languagesRaw []byte
	var status string

	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.BlobKey, &doc.MimeType, &doc.FileSizeBytes,
		&status, &doc.UploadedAt, &doc.ProcessingStartedAt, &doc.ProcessingCompletedAt,
		&doc.ProcessingTimeSeconds, &doc.ChunkCount, &doc.VectorCount,
		&doc.QAPairsCount, &languagesRaw, &doc.PrimaryLanguage, &doc.Summary,
		&doc.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "fetch document", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	if err := unmarshalJSON(languagesRaw, &doc.DetectedLanguages); err != nil {
		return nil, fmt.Errorf("unmarshal detected languages: %w", err)
	}
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func (r *DocumentRepository) MarkProcessing(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, processing_started_at = $3, error_message = ''
WHERE id = $1
`, id, string(domain.StatusProcessing), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark document processing: %w", err)
	}
	return nil
}

func (r *DocumentRepository) MarkCompleted(ctx context.Context, id string, counters domain.IngestCounters) error {
	languagesJSON, err := marshalJSON(counters.DetectedLanguages)
	if err != nil {
		return fmt.Errorf("marshal detected languages: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2,
	processing_completed_at = $3,
	processing_time_seconds = EXTRACT(EPOCH FROM ($3 - processing_started_at)),
	chunk_count = $4,
	vector_count = $5,
	qa_pairs_count = $6,
	detected_languages = $7,
	primary_language = $8,
	summary = $9,
	error_message = ''
WHERE id = $1
`, id, string(domain.StatusCompleted), time.Now().UTC(),
		counters.ChunkCount, counters.VectorCount, counters.QAPairsCount,
		languagesJSON, counters.PrimaryLanguage, counters.Summary,
	)
	if err != nil {
		return fmt.Errorf("mark document completed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) MarkFailed(ctx context.Context, id, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2,
	processing_completed_at = $3,
	processing_time_seconds = COALESCE(EXTRACT(EPOCH FROM ($3 - processing_started_at)), 0),
	error_message = $4
WHERE id = $1
`, id, string(domain.StatusFailed), time.Now().UTC(), errMessage)
	if err != nil {
		return fmt.Errorf("mark document failed: %w", err)
	}
	return nil
}
