package domain

import "time"

// IngestJob is the bus envelope for one document ingestion. Delivery is
// at-least-once; the handler must be idempotent on DocumentID.
type IngestJob struct {
	DocumentID    string    `json:"document_id"`
	BlobKey       string    `json:"blob_key"`
	CorrelationID string    `json:"correlation_id"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// QueryJob is the bus envelope for one query execution.
type QueryJob struct {
	QueryID        string   `json:"query_id"`
	QueryText      string   `json:"query_text"`
	DebugMode      bool     `json:"debug_mode"`
	DocumentFilter []string `json:"document_filter"`
	CorrelationID  string   `json:"correlation_id"`
}
