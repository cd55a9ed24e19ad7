package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

// HybridRetriever runs dense and lexical search over the three chunk
// collections and fuses the ranked lists with reciprocal-rank fusion.
type HybridRetriever struct {
	index ports.VectorIndex
}

func NewHybridRetriever(index ports.VectorIndex) *HybridRetriever {
	return &HybridRetriever{index: index}
}

// RetrievalResult is the fused candidate list plus the per-source hit
// accounting the debug UI shows.
type RetrievalResult struct {
	Candidates []domain.Candidate
	Sources    domain.SearchSources
}

var searchCollections = []string{
	domain.CollectionChunks,
	domain.CollectionSummaries,
	domain.CollectionQA,
}

// Search fans out six fetches (dense and lexical per collection), merges
// the lexical hits into one keyword ranked list, fuses the four lists, and
// truncates to topK. An empty docFilter means no filter.
func (r *HybridRetriever) Search(
	ctx context.Context,
	queryText string,
	queryVector []float32,
	topK int,
	rrfK int,
	docFilter []string,
) (*RetrievalResult, error) {
	if topK <= 0 {
		topK = 10
	}

	dense := make([][]domain.Candidate, len(searchCollections))
	lexical := make([][]domain.Candidate, len(searchCollections))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, collection := range searchCollections {
		g.Go(func() error {
			hits, err := r.index.DenseSearch(gctx, collection, queryVector, topK, docFilter)
			if err != nil {
				return fmt.Errorf("dense search %s: %w", collection, err)
			}
			mu.Lock()
			dense[i] = hits
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			hits, err := r.index.LexicalSearch(gctx, collection, queryText, topK, docFilter)
			if err != nil {
				return fmt.Errorf("lexical search %s: %w", collection, err)
			}
			mu.Lock()
			lexical[i] = hits
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sources := domain.SearchSources{
		VectorChunks:    len(dense[0]),
		VectorSummaries: len(dense[1]),
		VectorQA:        len(dense[2]),
		KeywordBM25:     len(lexical[0]) + len(lexical[1]) + len(lexical[2]),
	}

	keywordList := mergeLexicalLists(lexical)
	fused := fuseCandidatesRRF([][]domain.Candidate{dense[0], dense[1], dense[2], keywordList}, rrfK)
	sources.AfterMerge = len(fused)

	if len(fused) > topK {
		fused = fused[:topK]
	}
	return &RetrievalResult{Candidates: fused, Sources: sources}, nil
}

// mergeLexicalLists concatenates the per-collection lexical hits into one
// ranked keyword list ordered by lexical score.
func mergeLexicalLists(lists [][]domain.Candidate) []domain.Candidate {
	var out []domain.Candidate
	for _, list := range lists {
		out = append(out, list...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return lessByTieBreak(&out[i], &out[j])
	})
	return out
}

type fusedCandidate struct {
	candidate domain.Candidate
	score     float64
}

// fuseCandidatesRRF sums 1/(k+rank) contributions per ranked list, deduped
// by chunk id, and sorts by fused score with deterministic tie-breaks:
// collection priority chunks > qa > summaries, then doc id, then chunk id.
func fuseCandidatesRRF(lists [][]domain.Candidate, rrfK int) []domain.Candidate {
	if rrfK <= 0 {
		rrfK = 60
	}

	acc := make(map[string]fusedCandidate)
	for _, list := range lists {
		for rank, candidate := range list {
			entry, seen := acc[candidate.ChunkID]
			if !seen {
				entry.candidate = candidate
			}
			entry.score += 1.0 / float64(rrfK+rank+1)
			acc[candidate.ChunkID] = entry
		}
	}

	out := make([]domain.Candidate, 0, len(acc))
	for _, entry := range acc {
		candidate := entry.candidate
		candidate.Score = entry.score
		out = append(out, candidate)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return lessByTieBreak(&out[i], &out[j])
	})
	return out
}

func lessByTieBreak(a, b *domain.Candidate) bool {
	pa, pb := collectionPriority(a.Collection), collectionPriority(b.Collection)
	if pa != pb {
		return pa < pb
	}
	if a.DocID != b.DocID {
		return a.DocID < b.DocID
	}
	return a.ChunkID < b.ChunkID
}

func collectionPriority(collection string) int {
	switch collection {
	case domain.CollectionChunks:
		return 0
	case domain.CollectionQA:
		return 1
	case domain.CollectionSummaries:
		return 2
	default:
		return 3
	}
}
