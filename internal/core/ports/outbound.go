package ports

import (
	"context"
	"io"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
)

// BlobStore reads stored source documents.
type BlobStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Block roles as reported by document extractors.
type BlockRole string

const (
	BlockTitle     BlockRole = "title"
	BlockHeading   BlockRole = "heading"
	BlockParagraph BlockRole = "paragraph"
	BlockTable     BlockRole = "table"
)

// Block is one ordered piece of extractor output. Table blocks carry Rows;
// everything else carries Text.
type Block struct {
	Role       BlockRole
	Depth      int
	PageNumber int
	Text       string
	Rows       [][]string
}

// ImageRegion is an image found during extraction. ReadingOrder is the
// block index the region precedes in document order.
type ImageRegion struct {
	PageNumber   int
	ReadingOrder int
	Data         []byte
}

// ExtractedDocument is the structure-extraction result the tree builder
// consumes.
type ExtractedDocument struct {
	Blocks []Block
	Images []ImageRegion
}

// DocumentExtractor turns raw bytes into ordered blocks, tables and image
// regions.
type DocumentExtractor interface {
	Extract(ctx context.Context, r io.Reader, mimeType string) (*ExtractedDocument, error)
}

// VisionDescriber captions one image region.
type VisionDescriber interface {
	Describe(ctx context.Context, image []byte) (string, error)
}

// ChatRequest is a single completion call. Retry policy lives in the
// adapter, not the caller.
type ChatRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

// Chat is the LLM completion capability.
type Chat interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// Embedder builds fixed-dimension vectors for chunk contents and queries.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the per-collection vector store: dense cosine search plus
// a lexical ranked list over the full-text-indexed content field.
type VectorIndex interface {
	Upsert(ctx context.Context, collection string, records []domain.VectorRecord) error
	DeleteByDoc(ctx context.Context, collection string, docID string) error
	DenseSearch(ctx context.Context, collection string, vector []float32, topK int, docFilter []string) ([]domain.Candidate, error)
	LexicalSearch(ctx context.Context, collection string, text string, topK int, docFilter []string) ([]domain.Candidate, error)
}

// DocumentRepository persists document state. The ingestion orchestrator is
// the only writer of status and counters.
type DocumentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, counters domain.IngestCounters) error
	MarkFailed(ctx context.Context, id string, errMessage string) error
}

// SettingsStore reads and writes runtime-tunable settings. Implementations
// may cache reads; staleness of a few seconds is tolerated.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}

// QueryResultStore persists finished (or failed) query results.
type QueryResultStore interface {
	Save(ctx context.Context, result *domain.QueryResult) error
}

// JobBus delivers ingest and query jobs at least once over durable queues.
type JobBus interface {
	PublishIngest(ctx context.Context, job domain.IngestJob) error
	PublishQuery(ctx context.Context, job domain.QueryJob) error
	SubscribeIngest(ctx context.Context, handler func(context.Context, domain.IngestJob) error) error
	SubscribeQuery(ctx context.Context, handler func(context.Context, domain.QueryJob) error) error
}

// LanguageTagger is the external per-chunk language tagger.
type LanguageTagger interface {
	Analyze(text string) domain.LanguageInfo
}

// ChunkerConfig carries the chunking settings resolved from the settings
// store.
type ChunkerConfig struct {
	ChunkSize                  int
	ChunkOverlap               int
	HierarchicalThresholdChars int
	MinHeadersForSemantic      int
	ParentChunkMultiplier      int
	ParentSummaryMaxLength     int
}

// Chunker produces the text_chunk variants from a built tree. Summary and
// Q&A chunks are materialized by the orchestrator.
type Chunker interface {
	Chunk(ctx context.Context, tree *domain.DocumentTree, docID string, cfg ChunkerConfig) ([]domain.Chunk, error)
}

// Reranker rescored the provided candidates against the query. The returned
// slice is aligned with the input; only monotone rescoring is assumed.
type Reranker interface {
	Score(ctx context.Context, query string, candidates []domain.Candidate) ([]float64, error)
}
