package usecase

import (
	"context"
	"testing"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

func rankedContext(ids ...string) []domain.RerankedCandidate {
	out := make([]domain.RerankedCandidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.RerankedCandidate{
			Candidate: domain.Candidate{
				ChunkID:       id,
				DocID:         "doc-1",
				Content:       "content " + id,
				HierarchyPath: []string{"Section"},
				Collection:    domain.CollectionChunks,
			},
		})
	}
	return out
}

func TestGenerateOrdersCitationsByFirstAppearance(t *testing.T) {
	chat := &chatFake{respond: func(ports.ChatRequest) (string, error) {
		return "Per [2], things improved. Earlier data [1] agrees, and [2] repeats.", nil
	}}
	g := NewAnswerGenerator(chat, discardLogger())

	answer, citations, err := g.Generate(context.Background(), "q", rankedContext("a", "b", "c"))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if answer == "" {
		t.Fatalf("expected answer text")
	}
	if len(citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(citations))
	}
	if citations[0].Number != 2 || citations[0].ChunkID != "b" {
		t.Fatalf("first citation must be [2]->b, got %+v", citations[0])
	}
	if citations[1].Number != 1 || citations[1].ChunkID != "a" {
		t.Fatalf("second citation must be [1]->a, got %+v", citations[1])
	}
}

func TestGenerateIgnoresOutOfRangeMarkers(t *testing.T) {
	chat := &chatFake{respond: func(ports.ChatRequest) (string, error) {
		return "See [1] and the imaginary [9].", nil
	}}
	g := NewAnswerGenerator(chat, discardLogger())

	_, citations, err := g.Generate(context.Background(), "q", rankedContext("a"))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(citations) != 1 || citations[0].ChunkID != "a" {
		t.Fatalf("expected only the in-range citation, got %+v", citations)
	}
}

func TestGenerateEmptyContext(t *testing.T) {
	chat := &chatFake{}
	g := NewAnswerGenerator(chat, discardLogger())

	answer, citations, err := g.Generate(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if answer == "" {
		t.Fatalf("expected an explicit no-information answer")
	}
	if len(citations) != 0 {
		t.Fatalf("expected no citations, got %d", len(citations))
	}
	if chat.callCount() != 0 {
		t.Fatalf("empty context must not reach the model")
	}
}
