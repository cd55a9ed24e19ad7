package usecase

import (
	"context"
	"log/slog"
	"sort"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

// rerankOutcome is the reranked head plus whether the scorer fell back to
// passthrough order.
type rerankOutcome struct {
	ranked   []domain.RerankedCandidate
	fellBack bool
}

// rerankCandidates rescores the top rerankTop fused candidates through the
// reranker port. A transient scorer failure degrades to passthrough order
// with zero score change rather than failing the iteration.
func rerankCandidates(
	ctx context.Context,
	reranker ports.Reranker,
	query string,
	fused []domain.Candidate,
	rerankTop int,
	logger *slog.Logger,
) rerankOutcome {
	if rerankTop <= 0 || rerankTop > len(fused) {
		rerankTop = len(fused)
	}
	head := make([]domain.Candidate, rerankTop)
	copy(head, fused[:rerankTop])
	if len(head) == 0 {
		return rerankOutcome{ranked: []domain.RerankedCandidate{}}
	}

	scores, err := reranker.Score(ctx, query, head)
	if err != nil || len(scores) != len(head) {
		if err != nil {
			logger.Warn("reranker failed, passing candidates through", "error", err)
		}
		return rerankOutcome{ranked: passthrough(head), fellBack: true}
	}

	ranked := make([]domain.RerankedCandidate, len(head))
	for i, candidate := range head {
		ranked[i] = domain.RerankedCandidate{
			Candidate:   candidate,
			PriorScore:  candidate.Score,
			Score:       scores[i],
			ScoreChange: scores[i] - candidate.Score,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return lessByTieBreak(&ranked[i].Candidate, &ranked[j].Candidate)
	})
	return rerankOutcome{ranked: ranked}
}

func passthrough(head []domain.Candidate) []domain.RerankedCandidate {
	ranked := make([]domain.RerankedCandidate, len(head))
	for i, candidate := range head {
		ranked[i] = domain.RerankedCandidate{
			Candidate:   candidate,
			PriorScore:  candidate.Score,
			Score:       candidate.Score,
			ScoreChange: 0,
		}
	}
	return ranked
}
