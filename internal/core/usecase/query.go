package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

const previewMaxChars = 200

// iterationSoftBudget is the per-iteration duration past which the
// orchestrator warns but does not abort.
const iterationSoftBudget = 30 * time.Second

// expandSearchCap bounds how far expand_search may grow top_k, as a
// multiple of the configured default.
const expandSearchCap = 4

// QueryOrchestrator drives the bounded agent loop: embed, retrieve,
// rerank, evaluate, then generate, capturing the full debug record along
// the way.
type QueryOrchestrator struct {
	settings  ports.SettingsStore
	embedder  ports.Embedder
	retriever *HybridRetriever
	reranker  ports.Reranker
	evaluator *AgentEvaluator
	generator *AnswerGenerator
	results   ports.QueryResultStore
	documents ports.DocumentRepository
	logger    *slog.Logger
}

func NewQueryOrchestrator(
	settings ports.SettingsStore,
	embedder ports.Embedder,
	retriever *HybridRetriever,
	reranker ports.Reranker,
	evaluator *AgentEvaluator,
	generator *AnswerGenerator,
	results ports.QueryResultStore,
	documents ports.DocumentRepository,
	logger *slog.Logger,
) *QueryOrchestrator {
	return &QueryOrchestrator{
		settings:  settings,
		embedder:  embedder,
		retriever: retriever,
		reranker:  reranker,
		evaluator: evaluator,
		generator: generator,
		results:   results,
		documents: documents,
		logger:    logger,
	}
}

// Answer executes the query job and persists the result, failed or not.
// The returned result mirrors what was persisted.
func (o *QueryOrchestrator) Answer(ctx context.Context, job domain.QueryJob) (*domain.QueryResult, error) {
	start := time.Now()
	cfg := LoadSettings(ctx, o.settings)
	logger := o.logger.With("query_id", job.QueryID, "correlation_id", job.CorrelationID)

	state := &queryState{
		currentQuery: job.QueryText,
		topK:         cfg.DefaultTopK,
		filter:       append([]string(nil), job.DocumentFilter...),
	}

	var lastRanked []domain.RerankedCandidate
	var lastEval domain.AgentEvaluation

	for i := 1; i <= cfg.MaxAgentIterations; i++ {
		ranked, eval, err := o.runIteration(ctx, state, cfg, i, logger)
		if err != nil {
			return o.persistFailure(ctx, job, state, start, err)
		}
		lastRanked = ranked
		lastEval = eval

		if eval.Decision == domain.DecisionProceed || i == cfg.MaxAgentIterations {
			break
		}
		// An empty refined query is equivalent to proceed.
		if eval.Decision == domain.DecisionRefineQuery && eval.RefinedQuery == "" {
			break
		}
		switch eval.Decision {
		case domain.DecisionRefineQuery:
			state.currentQuery = eval.RefinedQuery
		case domain.DecisionExpandSearch:
			state.topK *= 2
			if limit := expandSearchCap * cfg.DefaultTopK; state.topK > limit {
				state.topK = limit
			}
			state.filter = nil
		}
	}

	genStart := time.Now()
	answer, citations, err := o.generator.Generate(ctx, job.QueryText, lastRanked)
	state.timing.GenerationMS = time.Since(genStart).Milliseconds()
	if err != nil {
		return o.persistFailure(ctx, job, state, start, err)
	}
	o.resolveDocumentNames(ctx, citations)

	state.timing.TotalMS = time.Since(start).Milliseconds()
	result := &domain.QueryResult{
		QueryID:         job.QueryID,
		QueryText:       job.QueryText,
		Answer:          answer,
		Citations:       citations,
		ConfidenceScore: lastEval.Confidence,
		TotalTimeMS:     state.timing.TotalMS,
		IterationCount:  len(state.iterations),
	}
	if job.DebugMode {
		result.DebugData = &domain.DebugData{
			Iterations: state.iterations,
			Timing:     state.timing,
		}
	}

	if err := o.results.Save(ctx, result); err != nil {
		return nil, fmt.Errorf("persist query result: %w", err)
	}
	logger.Info("query answered",
		"iterations", result.IterationCount,
		"citations", len(result.Citations),
		"total_ms", result.TotalTimeMS,
	)
	return result, nil
}

type queryState struct {
	currentQuery string
	topK         int
	filter       []string

	iterations []domain.DebugIteration
	timing     domain.DebugTiming
}

func (o *QueryOrchestrator) runIteration(
	ctx context.Context,
	state *queryState,
	cfg Settings,
	number int,
	logger *slog.Logger,
) ([]domain.RerankedCandidate, domain.AgentEvaluation, error) {
	iterStart := time.Now()

	embedStart := time.Now()
	queryVector, err := o.embedder.EmbedQuery(ctx, state.currentQuery)
	embedMS := time.Since(embedStart).Milliseconds()
	state.timing.EmbeddingMS += embedMS
	if err != nil {
		return nil, domain.AgentEvaluation{}, fmt.Errorf("embed query: %w", err)
	}

	searchStart := time.Now()
	retrieval, err := o.retriever.Search(ctx, state.currentQuery, queryVector, state.topK, cfg.RRFK, state.filter)
	state.timing.SearchMS += time.Since(searchStart).Milliseconds()
	if err != nil {
		return nil, domain.AgentEvaluation{}, fmt.Errorf("hybrid search: %w", err)
	}

	head := retrieval.Candidates
	if len(head) > cfg.DefaultRerankTop {
		head = head[:cfg.DefaultRerankTop]
	}
	before := chunkResults(head)

	rerankStart := time.Now()
	outcome := rerankCandidates(ctx, o.reranker, state.currentQuery, retrieval.Candidates, cfg.DefaultRerankTop, logger)
	state.timing.RerankMS += time.Since(rerankStart).Milliseconds()

	agentStart := time.Now()
	eval := o.evaluator.Evaluate(ctx, state.currentQuery, outcome.ranked)
	state.timing.AgentMS += time.Since(agentStart).Milliseconds()
	if outcome.fellBack {
		if eval.Reasoning != "" {
			eval.Reasoning += "; "
		}
		eval.Reasoning += "rerank_fallback"
	}

	iterDuration := time.Since(iterStart)
	if iterDuration > iterationSoftBudget {
		logger.Warn("iteration exceeded soft budget",
			"iteration", number,
			"duration_ms", iterDuration.Milliseconds(),
		)
	}

	state.iterations = append(state.iterations, domain.DebugIteration{
		IterationNumber:    number,
		QueryUsed:          state.currentQuery,
		SearchSources:      retrieval.Sources,
		ChunksBeforeRerank: before,
		ChunksAfterRerank:  rerankedChunkResults(outcome.ranked),
		AgentEvaluation:    eval,
		DurationMS:         iterDuration.Milliseconds(),
	})

	logger.Info("iteration complete",
		"iteration", number,
		"decision", eval.Decision,
		"confidence", eval.Confidence,
		"after_merge", retrieval.Sources.AfterMerge,
	)
	return outcome.ranked, eval, nil
}

func (o *QueryOrchestrator) persistFailure(
	ctx context.Context,
	job domain.QueryJob,
	state *queryState,
	start time.Time,
	cause error,
) (*domain.QueryResult, error) {
	state.timing.TotalMS = time.Since(start).Milliseconds()
	result := &domain.QueryResult{
		QueryID:        job.QueryID,
		QueryText:      job.QueryText,
		TotalTimeMS:    state.timing.TotalMS,
		IterationCount: len(state.iterations),
		ErrorMessage:   cause.Error(),
	}
	if job.DebugMode {
		result.DebugData = &domain.DebugData{
			Iterations: state.iterations,
			Timing:     state.timing,
		}
	}
	if saveErr := o.results.Save(ctx, result); saveErr != nil {
		return nil, fmt.Errorf("%w; persist failed result: %v", cause, saveErr)
	}
	return result, cause
}

// resolveDocumentNames fills citation document names from the metadata
// store, best effort.
func (o *QueryOrchestrator) resolveDocumentNames(ctx context.Context, citations []domain.Citation) {
	names := make(map[string]string)
	for i := range citations {
		if citations[i].DocumentName != "" {
			continue
		}
		docID := citations[i].DocumentID
		name, cached := names[docID]
		if !cached {
			doc, err := o.documents.GetByID(ctx, docID)
			if err != nil {
				continue
			}
			name = doc.Filename
			names[docID] = name
		}
		citations[i].DocumentName = name
	}
}

func chunkResults(candidates []domain.Candidate) []domain.ChunkResult {
	out := make([]domain.ChunkResult, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, domain.ChunkResult{
			ID:      c.ChunkID,
			Score:   c.Score,
			Source:  c.Collection,
			Section: c.Section(),
			Preview: preview(c.Content),
		})
	}
	return out
}

func rerankedChunkResults(ranked []domain.RerankedCandidate) []domain.ChunkResult {
	out := make([]domain.ChunkResult, 0, len(ranked))
	for _, r := range ranked {
		change := r.ScoreChange
		out = append(out, domain.ChunkResult{
			ID:          r.Candidate.ChunkID,
			Score:       r.Score,
			Source:      r.Candidate.Collection,
			Section:     r.Candidate.Section(),
			Preview:     preview(r.Candidate.Content),
			ScoreChange: &change,
		})
	}
	return out
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewMaxChars {
		return content
	}
	return string(runes[:previewMaxChars])
}
