package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Document is the metadata row for one uploaded file. The ingestion
// orchestrator is the single writer of Status and the derived counters;
// the query side only ever reads it.
type Document struct {
	ID            string         `json:"id"`
	Filename      string         `json:"filename"`
	BlobKey       string         `json:"blob_key"`
	MimeType      string         `json:"mime_type"`
	FileSizeBytes int64          `json:"file_size_bytes"`
	Status        DocumentStatus `json:"status"`

	UploadedAt            time.Time  `json:"uploaded_at"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
	ProcessingTimeSeconds float64    `json:"processing_time_seconds"`

	ChunkCount   int `json:"chunk_count"`
	VectorCount  int `json:"vector_count"`
	QAPairsCount int `json:"qa_pairs_count"`

	DetectedLanguages []string `json:"detected_languages"`
	PrimaryLanguage   string   `json:"primary_language"`

	Summary      string `json:"summary,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// IngestCounters is everything the orchestrator commits in one shot when a
// document reaches the completed state. Either all fields land or none do.
type IngestCounters struct {
	ChunkCount        int
	VectorCount       int
	QAPairsCount      int
	DetectedLanguages []string
	PrimaryLanguage   string
	Summary           string
}
