package ports

import (
	"context"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
)

// DocumentIngestor is the inbound contract for the ingestion worker.
type DocumentIngestor interface {
	HandleIngestJob(ctx context.Context, job domain.IngestJob) error
}

// QueryAnswerer is the inbound contract for the query worker.
type QueryAnswerer interface {
	Answer(ctx context.Context, job domain.QueryJob) (*domain.QueryResult, error)
}
