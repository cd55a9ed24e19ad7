// Package memindex is an in-memory VectorIndex used by tests and local
// development runs. Search semantics mirror the qdrant adapter: cosine
// similarity for dense queries, term-overlap scoring for lexical ones.
package memindex

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
)

type Index struct {
	mu          sync.RWMutex
	collections map[string]map[string]domain.VectorRecord
}

func New() *Index {
	return &Index{collections: make(map[string]map[string]domain.VectorRecord)}
}

func (x *Index) Upsert(_ context.Context, collection string, records []domain.VectorRecord) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	bucket, ok := x.collections[collection]
	if !ok {
		bucket = make(map[string]domain.VectorRecord)
		x.collections[collection] = bucket
	}
	for _, record := range records {
		bucket[record.ChunkID] = record
	}
	return nil
}

func (x *Index) DeleteByDoc(_ context.Context, collection, docID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, record := range x.collections[collection] {
		if record.DocID == docID {
			delete(x.collections[collection], id)
		}
	}
	return nil
}

func (x *Index) DenseSearch(_ context.Context, collection string, vector []float32, topK int, docFilter []string) ([]domain.Candidate, error) {
	return x.rank(collection, topK, docFilter, func(record domain.VectorRecord) float64 {
		return cosine(vector, record.Embedding)
	}), nil
}

func (x *Index) LexicalSearch(_ context.Context, collection, text string, topK int, docFilter []string) ([]domain.Candidate, error) {
	query := tokenSet(text)
	if len(query) == 0 {
		return nil, nil
	}
	hits := x.rank(collection, topK, docFilter, func(record domain.VectorRecord) float64 {
		return overlapScore(query, record.Payload.Content)
	})
	out := hits[:0]
	for _, hit := range hits {
		if hit.Score > 0 {
			out = append(out, hit)
		}
	}
	return out, nil
}

// CountByDoc reports how many records a document has in a collection.
func (x *Index) CountByDoc(collection, docID string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	count := 0
	for _, record := range x.collections[collection] {
		if record.DocID == docID {
			count++
		}
	}
	return count
}

func (x *Index) rank(collection string, topK int, docFilter []string, score func(domain.VectorRecord) float64) []domain.Candidate {
	filter := make(map[string]bool, len(docFilter))
	for _, id := range docFilter {
		filter[id] = true
	}

	x.mu.RLock()
	var out []domain.Candidate
	for _, record := range x.collections[collection] {
		if len(filter) > 0 && !filter[record.DocID] {
			continue
		}
		chunk := record.Payload
		out = append(out, domain.Candidate{
			ChunkID:       record.ChunkID,
			DocID:         record.DocID,
			Kind:          chunk.Kind,
			Content:       chunk.Content,
			HierarchyPath: chunk.HierarchyPath,
			PageNumber:    chunk.PageNumber,
			Collection:    collection,
			Score:         score(record),
		})
	}
	x.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func overlapScore(query map[string]bool, content string) float64 {
	if len(query) == 0 {
		return 0
	}
	matches := 0
	for token := range tokenSet(content) {
		if query[token] {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			out[b.String()] = true
			b.Reset()
		}
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()
	return out
}
