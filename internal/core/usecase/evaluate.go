package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

const (
	evaluatorMaxTokens      = 200
	evaluatorTemperature    = 0.1
	evaluatorContextChunks  = 5
	evaluatorSnippetMaxSize = 300
)

// AgentEvaluator asks the LLM whether the reranked context is sufficient
// and what to do next. Responses are repaired toward safe defaults rather
// than failing the query.
type AgentEvaluator struct {
	chat   ports.Chat
	logger *slog.Logger
}

func NewAgentEvaluator(chat ports.Chat, logger *slog.Logger) *AgentEvaluator {
	return &AgentEvaluator{chat: chat, logger: logger}
}

func (e *AgentEvaluator) Evaluate(ctx context.Context, query string, items []domain.RerankedCandidate) domain.AgentEvaluation {
	var snippets []string
	for i, item := range items {
		if i >= evaluatorContextChunks {
			break
		}
		snippet := item.Candidate.Content
		if len(snippet) > evaluatorSnippetMaxSize {
			snippet = snippet[:evaluatorSnippetMaxSize] + "..."
		}
		snippets = append(snippets, snippet)
	}

	prompt := renderTemplate(evaluatorUser, map[string]string{
		"query":   query,
		"context": strings.Join(snippets, "\n\n"),
	})

	raw, err := e.chat.Complete(ctx, ports.ChatRequest{
		System:      evaluatorSystem,
		User:        prompt,
		MaxTokens:   evaluatorMaxTokens,
		Temperature: evaluatorTemperature,
		JSONMode:    true,
	})
	if err != nil {
		return domain.AgentEvaluation{
			Decision:   domain.DecisionProceed,
			Confidence: 0.5,
			Reasoning:  fmt.Sprintf("evaluator call failed: %v", err),
		}
	}

	return e.parse(raw)
}

func (e *AgentEvaluator) parse(raw string) domain.AgentEvaluation {
	var parsed domain.AgentEvaluation
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		e.logger.Warn("evaluator response not parseable", "error", err)
		return domain.AgentEvaluation{
			Decision:   domain.DecisionProceed,
			Confidence: 0.5,
			Reasoning:  "parse_failed",
		}
	}

	var notes []string
	switch parsed.Decision {
	case domain.DecisionProceed, domain.DecisionRefineQuery, domain.DecisionExpandSearch:
	default:
		notes = append(notes, fmt.Sprintf("unknown decision %q coerced to proceed", parsed.Decision))
		parsed.Decision = domain.DecisionProceed
	}
	if parsed.Confidence < 0 {
		notes = append(notes, "confidence clamped to 0")
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		notes = append(notes, "confidence clamped to 1")
		parsed.Confidence = 1
	}
	parsed.RefinedQuery = strings.TrimSpace(parsed.RefinedQuery)
	if strings.EqualFold(parsed.RefinedQuery, "null") {
		parsed.RefinedQuery = ""
	}

	if len(notes) > 0 {
		if parsed.Reasoning != "" {
			parsed.Reasoning += "; "
		}
		parsed.Reasoning += strings.Join(notes, "; ")
	}
	return parsed
}
