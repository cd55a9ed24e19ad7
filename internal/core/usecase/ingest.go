package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

const (
	errorMessageMaxLen = 500
	embedBatchSize     = 64
	defaultQAPairs     = 5
)

// IngestionOrchestrator drives one document through the eight pipeline
// stages. It is the single writer of the document row and of all vector
// collections for that document id.
type IngestionOrchestrator struct {
	repo        ports.DocumentRepository
	settings    ports.SettingsStore
	blobs       ports.BlobStore
	extractor   ports.DocumentExtractor
	vision      ports.VisionDescriber
	treeBuilder *TreeBuilder
	summarizer  *Summarizer
	qaGen       *QAGenerator
	chunker     ports.Chunker
	tagger      ports.LanguageTagger
	embedder    ports.Embedder
	index       ports.VectorIndex
	logger      *slog.Logger

	visionEnabled bool
}

func NewIngestionOrchestrator(
	repo ports.DocumentRepository,
	settings ports.SettingsStore,
	blobs ports.BlobStore,
	extractor ports.DocumentExtractor,
	vision ports.VisionDescriber,
	treeBuilder *TreeBuilder,
	summarizer *Summarizer,
	qaGen *QAGenerator,
	chunker ports.Chunker,
	tagger ports.LanguageTagger,
	embedder ports.Embedder,
	index ports.VectorIndex,
	visionEnabled bool,
	logger *slog.Logger,
) *IngestionOrchestrator {
	return &IngestionOrchestrator{
		repo:          repo,
		settings:      settings,
		blobs:         blobs,
		extractor:     extractor,
		vision:        vision,
		treeBuilder:   treeBuilder,
		summarizer:    summarizer,
		qaGen:         qaGen,
		chunker:       chunker,
		tagger:        tagger,
		embedder:      embedder,
		index:         index,
		visionEnabled: visionEnabled,
		logger:        logger,
	}
}

// HandleIngestJob processes one ingest job end to end. Any stage error
// marks the document failed and is returned so the bus handler can log it;
// the message is acknowledged either way to avoid poison-loop redelivery.
func (o *IngestionOrchestrator) HandleIngestJob(ctx context.Context, job domain.IngestJob) error {
	logger := o.logger.With("document_id", job.DocumentID, "correlation_id", job.CorrelationID)

	doc, err := o.repo.GetByID(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}

	if err := o.repo.MarkProcessing(ctx, doc.ID); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}
	logger.Info("ingestion started", "filename", doc.Filename, "mime_type", doc.MimeType)

	counters, err := o.pipeline(ctx, doc, job, logger)
	if err != nil {
		if failErr := o.repo.MarkFailed(ctx, doc.ID, failureMessage(err)); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := o.repo.MarkCompleted(ctx, doc.ID, counters); err != nil {
		return fmt.Errorf("set status=completed: %w", err)
	}
	logger.Info("ingestion completed",
		"chunks", counters.ChunkCount,
		"vectors", counters.VectorCount,
		"qa_pairs", counters.QAPairsCount,
		"primary_language", counters.PrimaryLanguage,
	)
	return nil
}

func (o *IngestionOrchestrator) pipeline(
	ctx context.Context,
	doc *domain.Document,
	job domain.IngestJob,
	logger *slog.Logger,
) (domain.IngestCounters, error) {
	var none domain.IngestCounters
	cfg := LoadSettings(ctx, o.settings)

	// Stage 1: fetch blob.
	raw, err := o.fetchBlob(ctx, job.BlobKey)
	if err != nil {
		return none, err
	}

	// Stage 2: extract structure.
	extracted, err := o.extractor.Extract(ctx, raw, doc.MimeType)
	if err != nil {
		return none, fmt.Errorf("extract structure: %w", err)
	}
	logger.Info("structure extracted", "blocks", len(extracted.Blocks), "images", len(extracted.Images))

	// Stage 3: describe images.
	captions, err := o.describeImages(ctx, extracted, logger)
	if err != nil {
		return none, err
	}

	// Stage 4: build the tree.
	tree := o.treeBuilder.Build(doc.Filename, extracted, captions)

	// Stage 5: summarize.
	summaries, err := o.summarizer.Summarize(ctx, tree, documentType(doc.MimeType), cfg)
	if err != nil {
		return none, fmt.Errorf("summarize: %w", err)
	}
	logger.Info("summaries generated", "method", summaries.Method, "sections", summaries.SectionsCount)

	// Stage 6: generate Q&A pairs.
	pairs, err := o.qaGen.Generate(ctx, tree, defaultQAPairs, cfg)
	if err != nil {
		return none, fmt.Errorf("generate qa: %w", err)
	}

	// Stage 7: chunk, then materialize summary and qa chunks.
	textChunks, err := o.chunker.Chunk(ctx, tree, doc.ID, chunkerConfig(cfg))
	if err != nil {
		return none, fmt.Errorf("chunk document: %w", err)
	}
	chunks := textChunks
	chunks = append(chunks, o.summaryChunks(doc.ID, summaries)...)
	chunks = append(chunks, o.qaChunks(doc.ID, pairs)...)
	logger.Info("chunks materialized",
		"text", len(textChunks),
		"total", len(chunks),
	)

	// Stage 8: embed and store atomically per document.
	if err := o.embedAndStore(ctx, doc.ID, chunks); err != nil {
		return none, err
	}

	detected, primary := aggregateLanguages(textChunks)
	return domain.IngestCounters{
		ChunkCount:        len(chunks),
		VectorCount:       len(chunks),
		QAPairsCount:      len(pairs),
		DetectedLanguages: detected,
		PrimaryLanguage:   primary,
		Summary:           summaries.DocumentSummary,
	}, nil
}

func (o *IngestionOrchestrator) fetchBlob(ctx context.Context, key string) (io.Reader, error) {
	reader, err := o.blobs.Open(ctx, key)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInputRejected, "fetch blob", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return bytes.NewReader(raw), nil
}

func (o *IngestionOrchestrator) describeImages(
	ctx context.Context,
	extracted *ports.ExtractedDocument,
	logger *slog.Logger,
) (map[int]string, error) {
	captions := make(map[int]string)
	if !o.visionEnabled || len(extracted.Images) == 0 {
		return captions, nil
	}
	if o.vision == nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "describe images",
			errors.New("vision enabled but no describer wired"))
	}
	for _, img := range extracted.Images {
		caption, err := o.vision.Describe(ctx, img.Data)
		if err != nil {
			return nil, fmt.Errorf("describe image at position %d: %w", img.ReadingOrder, err)
		}
		captions[img.ReadingOrder] = caption
	}
	logger.Info("images described", "count", len(captions))
	return captions, nil
}

// summaryChunks materializes one document-level chunk plus one per section
// summary.
func (o *IngestionOrchestrator) summaryChunks(docID string, summaries *domain.DocumentSummaries) []domain.Chunk {
	var out []domain.Chunk
	if summaries.DocumentSummary != "" {
		out = append(out, o.taggedChunk(domain.Chunk{
			ChunkID:       uuid.NewString(),
			DocID:         docID,
			Kind:          domain.ChunkSummary,
			Content:       summaries.DocumentSummary,
			HierarchyPath: []string{},
			Metadata:      domain.ChunkMetadata{Level: domain.SummaryLevelDocument},
		}))
	}
	for _, section := range summaries.SectionSummaries {
		if section.Summary == "" {
			continue
		}
		out = append(out, o.taggedChunk(domain.Chunk{
			ChunkID:       uuid.NewString(),
			DocID:         docID,
			Kind:          domain.ChunkSummary,
			Content:       section.Summary,
			HierarchyPath: []string{section.Title},
			Metadata:      domain.ChunkMetadata{Level: domain.SummaryLevelSection},
		}))
	}
	return out
}

func (o *IngestionOrchestrator) qaChunks(docID string, pairs []domain.QAPair) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(pairs))
	for _, pair := range pairs {
		out = append(out, o.taggedChunk(domain.Chunk{
			ChunkID:       uuid.NewString(),
			DocID:         docID,
			Kind:          domain.ChunkQA,
			Content:       fmt.Sprintf("Q: %s\nA: %s", pair.Question, pair.Answer),
			HierarchyPath: []string{},
			Metadata: domain.ChunkMetadata{
				Question:     pair.Question,
				Answer:       pair.Answer,
				QuestionType: string(pair.Type),
			},
		}))
	}
	return out
}

func (o *IngestionOrchestrator) taggedChunk(chunk domain.Chunk) domain.Chunk {
	info := o.tagger.Analyze(chunk.Content)
	chunk.Language = info.PrimaryLanguage
	chunk.IsMultilingual = info.IsMultilingual
	chunk.Languages = info.Languages
	chunk.LanguageDistribution = info.Distribution
	return chunk
}

// embedAndStore deletes any prior vectors for the document across all
// three collections, then embeds and upserts the new set. Readers may see
// a transient empty window but never a mix of old and new records.
func (o *IngestionOrchestrator) embedAndStore(ctx context.Context, docID string, chunks []domain.Chunk) error {
	for _, collection := range searchCollections {
		if err := o.index.DeleteByDoc(ctx, collection, docID); err != nil {
			return domain.WrapError(domain.ErrStoragePostcondition, "delete prior vectors", err)
		}
	}
	if len(chunks) == 0 {
		return nil
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Content)
		}
		batch, err := o.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks [%d:%d]: %w", start, end, err)
		}
		if len(batch) != len(texts) {
			return domain.WrapError(domain.ErrStoragePostcondition, "embed chunks",
				fmt.Errorf("vectors/texts mismatch: %d/%d", len(batch), len(texts)))
		}
		vectors = append(vectors, batch...)
	}

	dim := len(vectors[0])
	byCollection := make(map[string][]domain.VectorRecord, len(searchCollections))
	for i, chunk := range chunks {
		if len(vectors[i]) != dim {
			return domain.WrapError(domain.ErrStoragePostcondition, "embed chunks",
				fmt.Errorf("inconsistent embedding dimension: %d vs %d", len(vectors[i]), dim))
		}
		collection := domain.CollectionForKind(chunk.Kind)
		byCollection[collection] = append(byCollection[collection], domain.VectorRecord{
			ChunkID:   chunk.ChunkID,
			DocID:     docID,
			Embedding: vectors[i],
			Payload:   chunk,
		})
	}

	for collection, records := range byCollection {
		if err := o.index.Upsert(ctx, collection, records); err != nil {
			return domain.WrapError(domain.ErrStoragePostcondition,
				fmt.Sprintf("upsert %d records into %s", len(records), collection), err)
		}
	}
	return nil
}

// aggregateLanguages unions the chunk languages ordered by frequency and
// picks the most common primary.
func aggregateLanguages(chunks []domain.Chunk) ([]string, string) {
	counts := make(map[string]int)
	primaryCounts := make(map[string]int)
	for _, chunk := range chunks {
		for _, lang := range chunk.Languages {
			counts[lang]++
		}
		if chunk.Language != "" {
			primaryCounts[chunk.Language]++
		}
	}

	detected := make([]string, 0, len(counts))
	for lang := range counts {
		detected = append(detected, lang)
	}
	sort.Slice(detected, func(i, j int) bool {
		if counts[detected[i]] != counts[detected[j]] {
			return counts[detected[i]] > counts[detected[j]]
		}
		return detected[i] < detected[j]
	})

	primary := ""
	for lang, count := range primaryCounts {
		if primary == "" || count > primaryCounts[primary] || (count == primaryCounts[primary] && lang < primary) {
			primary = lang
		}
	}
	return detected, primary
}

func chunkerConfig(cfg Settings) ports.ChunkerConfig {
	return ports.ChunkerConfig{
		ChunkSize:                  cfg.ChunkSize,
		ChunkOverlap:               cfg.ChunkOverlap,
		HierarchicalThresholdChars: 60000,
		MinHeadersForSemantic:      3,
		ParentChunkMultiplier:      2,
		ParentSummaryMaxLength:     500,
	}
}

func documentType(mimeType string) string {
	switch mimeType {
	case "application/pdf":
		return "PDF Document"
	case "text/markdown":
		return "Markdown Document"
	case "application/json":
		return "JSON Document"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return "Spreadsheet"
	default:
		return "Document"
	}
}

// failureMessage prefixes the persisted error with a stable reason code so
// the control plane can group failures without parsing free text.
func failureMessage(err error) string {
	msg := failureReason(err) + ": " + err.Error()
	if len(msg) > errorMessageMaxLen {
		msg = msg[:errorMessageMaxLen]
	}
	return msg
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "stage_timeout"
	case domain.IsKind(err, domain.ErrRateLimited):
		return "rate_limited"
	case domain.IsKind(err, domain.ErrStoragePostcondition):
		return "storage_error"
	case domain.IsKind(err, domain.ErrInputRejected):
		return "input_rejected"
	case domain.IsKind(err, domain.ErrTransient):
		return "transient_error"
	default:
		return "processing_error"
	}
}
