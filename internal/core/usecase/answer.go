package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

const (
	answerMaxTokens   = 500
	answerTemperature = 0.3
)

// AnswerGenerator produces the grounded final answer with numbered inline
// citations referencing the reranked context.
type AnswerGenerator struct {
	chat   ports.Chat
	logger *slog.Logger
}

func NewAnswerGenerator(chat ports.Chat, logger *slog.Logger) *AnswerGenerator {
	return &AnswerGenerator{chat: chat, logger: logger}
}

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

func (g *AnswerGenerator) Generate(ctx context.Context, query string, items []domain.RerankedCandidate) (string, []domain.Citation, error) {
	if len(items) == 0 {
		return "I don't have enough information to answer this question.", []domain.Citation{}, nil
	}

	var contextParts []string
	for i, item := range items {
		contextParts = append(contextParts, fmt.Sprintf("[%d] %s", i+1, item.Candidate.Content))
	}

	prompt := renderTemplate(answerUser, map[string]string{
		"query":   query,
		"context": strings.Join(contextParts, "\n\n"),
	})

	answer, err := g.chat.Complete(ctx, ports.ChatRequest{
		System:      answerSystem,
		User:        prompt,
		MaxTokens:   answerMaxTokens,
		Temperature: answerTemperature,
	})
	if err != nil {
		return "", nil, fmt.Errorf("generate answer: %w", err)
	}
	answer = strings.TrimSpace(answer)

	return answer, extractCitations(answer, items), nil
}

// extractCitations collects [n] markers in order of first appearance and
// resolves each to the n-th context chunk. Markers outside the context
// range are ignored.
func extractCitations(answer string, items []domain.RerankedCandidate) []domain.Citation {
	seen := make(map[int]bool)
	citations := []domain.Citation{}
	for _, match := range citationMarker.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(items) || seen[n] {
			continue
		}
		seen[n] = true
		candidate := items[n-1].Candidate
		citations = append(citations, domain.Citation{
			Number:        n,
			ChunkID:       candidate.ChunkID,
			DocumentID:    candidate.DocID,
			DocumentName:  candidate.DocumentName,
			HierarchyPath: candidate.HierarchyPath,
			PageNumber:    candidate.PageNumber,
		})
	}
	return citations
}
