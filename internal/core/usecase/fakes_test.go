package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

type chatFake struct {
	mu           sync.Mutex
	calls        []ports.ChatRequest
	inFlight     int
	maxInFlight  int
	respond      func(req ports.ChatRequest) (string, error)
	blockRelease chan struct{}
}

func (f *chatFake) Complete(_ context.Context, req ports.ChatRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	respond := f.respond
	f.mu.Unlock()

	if f.blockRelease != nil {
		<-f.blockRelease
	}

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if respond != nil {
		return respond(req)
	}
	return "ok", nil
}

func (f *chatFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

type repoFake struct {
	mu          sync.Mutex
	doc         *domain.Document
	getErr      error
	statusCalls []statusCall
	counters    domain.IngestCounters
}

func (f *repoFake) GetByID(context.Context, string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	copyDoc := *f.doc
	return &copyDoc, nil
}

func (f *repoFake) MarkProcessing(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, statusCall{status: domain.StatusProcessing})
	return nil
}

func (f *repoFake) MarkCompleted(_ context.Context, _ string, counters domain.IngestCounters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, statusCall{status: domain.StatusCompleted})
	f.counters = counters
	return nil
}

func (f *repoFake) MarkFailed(_ context.Context, _ string, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, statusCall{status: domain.StatusFailed, errMsg: errMessage})
	return nil
}

type settingsFake struct {
	values map[string]string
}

func (f *settingsFake) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *settingsFake) Put(_ context.Context, key, value string) error {
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[key] = value
	return nil
}

type blobFake struct {
	content string
	err     error
}

func (f *blobFake) Open(context.Context, string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.content)), nil
}

type extractorFake struct {
	doc *ports.ExtractedDocument
	err error
}

func (f *extractorFake) Extract(context.Context, io.Reader, string) (*ports.ExtractedDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

type visionFake struct {
	caption string
	calls   int
}

func (f *visionFake) Describe(context.Context, []byte) (string, error) {
	f.calls++
	return f.caption, nil
}

type taggerFake struct{}

func (taggerFake) Analyze(string) domain.LanguageInfo {
	return domain.LanguageInfo{
		PrimaryLanguage: "en",
		Languages:       []string{"en"},
		Distribution:    map[string]float64{"en": 1},
	}
}

type chunkerFake struct {
	perChunkTokens int
	err            error
}

func (f *chunkerFake) Chunk(_ context.Context, tree *domain.DocumentTree, docID string, _ ports.ChunkerConfig) ([]domain.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	size := f.perChunkTokens
	if size <= 0 {
		size = 100
	}
	words := strings.Fields(tree.FullText())
	var out []domain.Chunk
	for start := 0; start < len(words); start += size {
		end := min(start+size, len(words))
		out = append(out, domain.Chunk{
			ChunkID:       uuid.NewString(),
			DocID:         docID,
			Kind:          domain.ChunkText,
			Content:       strings.Join(words[start:end], " "),
			HierarchyPath: []string{},
			TokenCount:    end - start,
			Language:      "en",
			Languages:     []string{"en"},
		})
	}
	return out, nil
}

type embedderFake struct {
	mu    sync.Mutex
	calls int
	err   error
	dim   int
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	dim := f.dim
	if dim <= 0 {
		dim = 3
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, dim)
		vec[0] = float32(len(text))
		vec[1] = 1
		out[i] = vec
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// indexFake records writes per collection and serves canned search results.
type indexFake struct {
	mu      sync.Mutex
	deletes []string
	upserts map[string][]domain.VectorRecord
	stored  map[string]map[string]domain.VectorRecord

	denseResults   map[string][]domain.Candidate
	lexicalResults map[string][]domain.Candidate
	searchErr      error
	upsertErr      error
}

func newIndexFake() *indexFake {
	return &indexFake{
		upserts:        make(map[string][]domain.VectorRecord),
		stored:         make(map[string]map[string]domain.VectorRecord),
		denseResults:   make(map[string][]domain.Candidate),
		lexicalResults: make(map[string][]domain.Candidate),
	}
}

func (f *indexFake) Upsert(_ context.Context, collection string, records []domain.VectorRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts[collection] = append(f.upserts[collection], records...)
	if f.stored[collection] == nil {
		f.stored[collection] = make(map[string]domain.VectorRecord)
	}
	for _, record := range records {
		f.stored[collection][record.ChunkID] = record
	}
	return nil
}

func (f *indexFake) DeleteByDoc(_ context.Context, collection, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, fmt.Sprintf("%s:%s", collection, docID))
	for id, record := range f.stored[collection] {
		if record.DocID == docID {
			delete(f.stored[collection], id)
		}
	}
	return nil
}

func (f *indexFake) DenseSearch(_ context.Context, collection string, _ []float32, topK int, _ []string) ([]domain.Candidate, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return capList(f.denseResults[collection], topK), nil
}

func (f *indexFake) LexicalSearch(_ context.Context, collection, _ string, topK int, _ []string) ([]domain.Candidate, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return capList(f.lexicalResults[collection], topK), nil
}

func (f *indexFake) countByDoc(docID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, bucket := range f.stored {
		for _, record := range bucket {
			if record.DocID == docID {
				count++
			}
		}
	}
	return count
}

func capList(list []domain.Candidate, topK int) []domain.Candidate {
	if topK > 0 && len(list) > topK {
		return list[:topK]
	}
	return list
}

type rerankerFake struct {
	scores []float64
	err    error
	calls  int
}

func (f *rerankerFake) Score(_ context.Context, _ string, candidates []domain.Candidate) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.scores != nil {
		return f.scores, nil
	}
	out := make([]float64, len(candidates))
	for i := range out {
		out[i] = 0.5
	}
	return out, nil
}

type resultStoreFake struct {
	saved []*domain.QueryResult
	err   error
}

func (f *resultStoreFake) Save(_ context.Context, result *domain.QueryResult) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, result)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
