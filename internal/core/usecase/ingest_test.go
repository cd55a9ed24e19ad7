package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

func newTestOrchestrator(repo *repoFake, blob *blobFake, ext *extractorFake, chat *chatFake, index *indexFake) *IngestionOrchestrator {
	logger := discardLogger()
	return NewIngestionOrchestrator(
		repo,
		&settingsFake{},
		blob,
		ext,
		&visionFake{caption: "a chart"},
		NewTreeBuilder(),
		NewSummarizer(chat, logger),
		NewQAGenerator(chat, logger),
		&chunkerFake{perChunkTokens: 4},
		taggerFake{},
		&embedderFake{},
		index,
		false,
		logger,
	)
}

func paragraphDoc(texts ...string) *ports.ExtractedDocument {
	doc := &ports.ExtractedDocument{}
	for _, text := range texts {
		doc.Blocks = append(doc.Blocks, ports.Block{Role: ports.BlockParagraph, PageNumber: 1, Text: text})
	}
	return doc
}

func qaChat() func(req ports.ChatRequest) (string, error) {
	return func(req ports.ChatRequest) (string, error) {
		if strings.Contains(req.User, "question-answer") || strings.Contains(req.System, "question-answer") {
			return `{"qa_pairs":[{"question":"What is it?","answer":"A test.","type":"factual"}]}`, nil
		}
		return "a short summary", nil
	}
}

func TestHandleIngestJobHappyPath(t *testing.T) {
	repo := &repoFake{doc: &domain.Document{ID: "doc-1", Filename: "hello.txt", MimeType: "text/plain"}}
	chat := &chatFake{respond: qaChat()}
	index := newIndexFake()
	uc := newTestOrchestrator(repo,
		&blobFake{content: "Hello world. This is a test."},
		&extractorFake{doc: paragraphDoc("Hello world. This is a test.")},
		chat, index)

	err := uc.HandleIngestJob(context.Background(), domain.IngestJob{DocumentID: "doc-1", BlobKey: "blobs/doc-1"})
	if err != nil {
		t.Fatalf("HandleIngestJob() error = %v", err)
	}

	if len(repo.statusCalls) != 2 {
		t.Fatalf("expected 2 status calls, got %+v", repo.statusCalls)
	}
	if repo.statusCalls[0].status != domain.StatusProcessing || repo.statusCalls[1].status != domain.StatusCompleted {
		t.Fatalf("unexpected status sequence: %+v", repo.statusCalls)
	}

	// 2 text chunks (6 words, 4 per chunk) + 1 summary + 1 qa.
	if repo.counters.ChunkCount != 4 {
		t.Fatalf("expected chunk_count 4, got %d", repo.counters.ChunkCount)
	}
	if repo.counters.VectorCount != repo.counters.ChunkCount {
		t.Fatalf("expected vector_count == chunk_count, got %d/%d", repo.counters.VectorCount, repo.counters.ChunkCount)
	}
	if repo.counters.QAPairsCount != 1 {
		t.Fatalf("expected 1 qa pair, got %d", repo.counters.QAPairsCount)
	}
	if repo.counters.PrimaryLanguage != "en" {
		t.Fatalf("expected primary language en, got %q", repo.counters.PrimaryLanguage)
	}
	if got := index.countByDoc("doc-1"); got != 4 {
		t.Fatalf("expected 4 stored vectors, got %d", got)
	}
	if len(index.upserts[domain.CollectionChunks]) != 2 ||
		len(index.upserts[domain.CollectionSummaries]) != 1 ||
		len(index.upserts[domain.CollectionQA]) != 1 {
		t.Fatalf("unexpected per-collection upserts: %+v", map[string]int{
			"chunks":    len(index.upserts[domain.CollectionChunks]),
			"summaries": len(index.upserts[domain.CollectionSummaries]),
			"qa":        len(index.upserts[domain.CollectionQA]),
		})
	}
}

func TestHandleIngestJobMarksFailedOnExtractError(t *testing.T) {
	repo := &repoFake{doc: &domain.Document{ID: "doc-1", Filename: "x.txt", MimeType: "text/plain"}}
	uc := newTestOrchestrator(repo,
		&blobFake{content: "text"},
		&extractorFake{err: errors.New("extract fail")},
		&chatFake{}, newIndexFake())

	err := uc.HandleIngestJob(context.Background(), domain.IngestJob{DocumentID: "doc-1"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(repo.statusCalls) != 2 || repo.statusCalls[1].status != domain.StatusFailed {
		t.Fatalf("expected processing then failed, got %+v", repo.statusCalls)
	}
	if !strings.Contains(repo.statusCalls[1].errMsg, "extract") {
		t.Fatalf("expected extract error message, got %q", repo.statusCalls[1].errMsg)
	}
}

func TestHandleIngestJobNoPartialCountersOnStorageError(t *testing.T) {
	repo := &repoFake{doc: &domain.Document{ID: "doc-1", Filename: "x.txt", MimeType: "text/plain"}}
	index := newIndexFake()
	index.upsertErr = errors.New("upsert boom")
	uc := newTestOrchestrator(repo,
		&blobFake{content: "some text"},
		&extractorFake{doc: paragraphDoc("some text here to chunk")},
		&chatFake{respond: qaChat()}, index)

	err := uc.HandleIngestJob(context.Background(), domain.IngestJob{DocumentID: "doc-1"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrStoragePostcondition) {
		t.Fatalf("expected storage postcondition kind, got %v", err)
	}
	if repo.statusCalls[len(repo.statusCalls)-1].status != domain.StatusFailed {
		t.Fatalf("expected failed status, got %+v", repo.statusCalls)
	}
	if repo.counters.ChunkCount != 0 {
		t.Fatalf("expected untouched counters, got %+v", repo.counters)
	}
}

func TestReingestReplacesPriorVectors(t *testing.T) {
	repo := &repoFake{doc: &domain.Document{ID: "doc-x", Filename: "x.txt", MimeType: "text/plain"}}
	chat := &chatFake{respond: qaChat()}
	index := newIndexFake()

	first := newTestOrchestrator(repo,
		&blobFake{content: "one"},
		&extractorFake{doc: paragraphDoc("alpha beta gamma delta epsilon zeta eta theta")},
		chat, index)
	if err := first.HandleIngestJob(context.Background(), domain.IngestJob{DocumentID: "doc-x"}); err != nil {
		t.Fatalf("first ingest error = %v", err)
	}
	firstCount := index.countByDoc("doc-x")

	second := newTestOrchestrator(repo,
		&blobFake{content: "two"},
		&extractorFake{doc: paragraphDoc("alpha beta gamma")},
		chat, index)
	if err := second.HandleIngestJob(context.Background(), domain.IngestJob{DocumentID: "doc-x"}); err != nil {
		t.Fatalf("second ingest error = %v", err)
	}

	secondCount := index.countByDoc("doc-x")
	if secondCount == firstCount {
		t.Fatalf("expected chunk set to change between ingests")
	}
	// 1 text chunk + 1 summary + 1 qa after re-ingest; no orphans from run one.
	if secondCount != 3 {
		t.Fatalf("expected exactly the new chunk set, got %d records", secondCount)
	}

	// Deletes must have run for every collection before the second upserts.
	deletes := 0
	for _, entry := range index.deletes {
		if strings.HasSuffix(entry, ":doc-x") {
			deletes++
		}
	}
	if deletes != 6 {
		t.Fatalf("expected delete-by-doc across 3 collections twice, got %d", deletes)
	}
}

func TestHandleIngestJobZeroParagraphDocument(t *testing.T) {
	repo := &repoFake{doc: &domain.Document{ID: "doc-1", Filename: "empty.txt", MimeType: "text/plain"}}
	chat := &chatFake{}
	uc := newTestOrchestrator(repo,
		&blobFake{content: ""},
		&extractorFake{doc: &ports.ExtractedDocument{}},
		chat, newIndexFake())

	if err := uc.HandleIngestJob(context.Background(), domain.IngestJob{DocumentID: "doc-1"}); err != nil {
		t.Fatalf("HandleIngestJob() error = %v", err)
	}
	if repo.statusCalls[len(repo.statusCalls)-1].status != domain.StatusCompleted {
		t.Fatalf("expected completed status, got %+v", repo.statusCalls)
	}
	if repo.counters.ChunkCount != 0 {
		t.Fatalf("expected zero chunks, got %d", repo.counters.ChunkCount)
	}
	if chat.callCount() != 0 {
		t.Fatalf("expected no chat calls for empty document, got %d", chat.callCount())
	}
}

func TestHandleIngestJobDescribesImagesWhenEnabled(t *testing.T) {
	repo := &repoFake{doc: &domain.Document{ID: "doc-1", Filename: "fig.pdf", MimeType: "application/pdf"}}
	vision := &visionFake{caption: "a revenue chart"}
	chat := &chatFake{respond: qaChat()}
	logger := discardLogger()

	extracted := paragraphDoc("Quarterly results improved.")
	extracted.Images = []ports.ImageRegion{{PageNumber: 1, ReadingOrder: 1}}

	uc := NewIngestionOrchestrator(
		repo, &settingsFake{}, &blobFake{content: "pdf bytes"},
		&extractorFake{doc: extracted}, vision,
		NewTreeBuilder(), NewSummarizer(chat, logger), NewQAGenerator(chat, logger),
		&chunkerFake{perChunkTokens: 50}, taggerFake{}, &embedderFake{}, newIndexFake(),
		true, logger,
	)

	if err := uc.HandleIngestJob(context.Background(), domain.IngestJob{DocumentID: "doc-1"}); err != nil {
		t.Fatalf("HandleIngestJob() error = %v", err)
	}
	if vision.calls != 1 {
		t.Fatalf("expected one vision call, got %d", vision.calls)
	}
}
