package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

const (
	qaMaxTokens      = 800
	qaTemperature    = 0.5
	qaContentMaxSize = 12000
)

// QAGenerator synthesizes question-answer pairs for a document with a
// single structured-JSON chat call. Malformed pairs are dropped, unknown
// types coerce to factual, and an empty result is not a failure.
type QAGenerator struct {
	chat   ports.Chat
	logger *slog.Logger
}

func NewQAGenerator(chat ports.Chat, logger *slog.Logger) *QAGenerator {
	return &QAGenerator{chat: chat, logger: logger}
}

func (g *QAGenerator) Generate(ctx context.Context, tree *domain.DocumentTree, n int, settings Settings) ([]domain.QAPair, error) {
	if n <= 0 {
		n = 5
	}
	content := tree.FullText()
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	if len(content) > qaContentMaxSize {
		content = content[:qaContentMaxSize]
	}

	tpl := settings.PromptQA
	if tpl == "" {
		tpl = qaGenerationUser
	}
	prompt := renderTemplate(tpl, map[string]string{
		"document_title":   tree.Title,
		"document_type":    "Document",
		"document_content": content,
		"num_questions":    strconv.Itoa(n),
	})

	raw, err := g.chat.Complete(ctx, ports.ChatRequest{
		System:      qaGenerationSystem,
		User:        prompt,
		MaxTokens:   qaMaxTokens,
		Temperature: qaTemperature,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("generate qa pairs: %w", err)
	}

	return g.parsePairs(raw), nil
}

func (g *QAGenerator) parsePairs(raw string) []domain.QAPair {
	var envelope struct {
		QAPairs []struct {
			Question string `json:"question"`
			Answer   string `json:"answer"`
			Type     string `json:"type"`
		} `json:"qa_pairs"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &envelope); err != nil {
		g.logger.Warn("qa response not parseable, continuing without pairs", "error", err)
		return nil
	}

	pairs := make([]domain.QAPair, 0, len(envelope.QAPairs))
	for _, p := range envelope.QAPairs {
		question := strings.TrimSpace(p.Question)
		answer := strings.TrimSpace(p.Answer)
		if question == "" || answer == "" {
			continue
		}
		qaType := domain.QAType(strings.ToLower(strings.TrimSpace(p.Type)))
		if !domain.KnownQAType(qaType) {
			qaType = domain.QATypeFactual
		}
		pairs = append(pairs, domain.QAPair{
			Question: question,
			Answer:   answer,
			Type:     qaType,
		})
	}
	return pairs
}
