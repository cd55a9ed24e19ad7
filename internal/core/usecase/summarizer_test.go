package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

func treeWithSections(sectionSize, sections int) *domain.DocumentTree {
	tree := domain.NewDocumentTree("doc")
	paragraph := strings.Repeat("word ", sectionSize/5)
	for i := 0; i < sections; i++ {
		title := fmt.Sprintf("Chapter %d", i+1)
		idx := tree.AddNode(0, domain.Node{
			Kind: domain.NodeSection, Title: title, Depth: 1, HierarchyPath: []string{},
		})
		tree.AddNode(idx, domain.Node{
			Kind: domain.NodeParagraph, Content: paragraph, Depth: 2, HierarchyPath: []string{title},
		})
	}
	return tree
}

func TestSummarizeShortDocumentUsesSingleMethod(t *testing.T) {
	chat := &chatFake{respond: func(ports.ChatRequest) (string, error) { return "short summary", nil }}
	s := NewSummarizer(chat, discardLogger())

	tree := domain.NewDocumentTree("doc")
	tree.AddNode(0, domain.Node{Kind: domain.NodeParagraph, Content: "Hello world.", HierarchyPath: []string{}})

	result, err := s.Summarize(context.Background(), tree, "Document", DefaultSettings())
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if result.Method != domain.SummaryMethodSingle {
		t.Fatalf("expected single method, got %s", result.Method)
	}
	if len(result.SectionSummaries) != 0 {
		t.Fatalf("single method must not produce section summaries")
	}
	if result.SectionsCount != 0 {
		t.Fatalf("expected sections_count 0, got %d", result.SectionsCount)
	}
	if chat.callCount() != 1 {
		t.Fatalf("expected one chat call, got %d", chat.callCount())
	}
}

func TestSummarizeMethodBoundaryAtThreshold(t *testing.T) {
	settings := DefaultSettings()
	settings.ShortDocThreshold = 100
	settings.MinSectionSize = 10
	settings.MaxConcurrent = 2

	atThreshold := domain.NewDocumentTree("doc")
	atThreshold.AddNode(0, domain.Node{Kind: domain.NodeParagraph, Content: strings.Repeat("a", 100), HierarchyPath: []string{}})

	overThreshold := domain.NewDocumentTree("doc")
	overThreshold.AddNode(0, domain.Node{Kind: domain.NodeParagraph, Content: strings.Repeat("a", 101), HierarchyPath: []string{}})

	chat := &chatFake{respond: func(ports.ChatRequest) (string, error) { return "s", nil }}
	s := NewSummarizer(chat, discardLogger())

	atResult, err := s.Summarize(context.Background(), atThreshold, "Document", settings)
	if err != nil {
		t.Fatalf("Summarize(at) error = %v", err)
	}
	if atResult.Method != domain.SummaryMethodSingle {
		t.Fatalf("document exactly at threshold must use single, got %s", atResult.Method)
	}

	overResult, err := s.Summarize(context.Background(), overThreshold, "Document", settings)
	if err != nil {
		t.Fatalf("Summarize(over) error = %v", err)
	}
	if overResult.Method != domain.SummaryMethodMapReduce {
		t.Fatalf("document over threshold must use map_reduce, got %s", overResult.Method)
	}
}

func TestSummarizeMapReducePreservesSectionOrder(t *testing.T) {
	settings := DefaultSettings()
	settings.ShortDocThreshold = 50
	settings.MinSectionSize = 10

	chat := &chatFake{respond: func(req ports.ChatRequest) (string, error) {
		// Echo the section title back so order is observable.
		for _, line := range strings.Split(req.User, "\n") {
			if strings.HasPrefix(line, "Chapter ") {
				return "summary of " + line, nil
			}
		}
		return "final summary", nil
	}}
	s := NewSummarizer(chat, discardLogger())

	result, err := s.Summarize(context.Background(), treeWithSections(200, 6), "Document", settings)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if result.Method != domain.SummaryMethodMapReduce {
		t.Fatalf("expected map_reduce, got %s", result.Method)
	}
	if result.SectionsCount != 6 || len(result.SectionSummaries) != 6 {
		t.Fatalf("expected 6 sections, got %d/%d", result.SectionsCount, len(result.SectionSummaries))
	}
	for i, section := range result.SectionSummaries {
		want := fmt.Sprintf("Chapter %d", i+1)
		if section.Title != want {
			t.Fatalf("section %d out of order: got %q want %q", i, section.Title, want)
		}
	}
	if result.DocumentSummary != "final summary" {
		t.Fatalf("unexpected reduce output: %q", result.DocumentSummary)
	}
}

func TestSummarizeMapPhaseRespectsConcurrencyLimit(t *testing.T) {
	settings := DefaultSettings()
	settings.ShortDocThreshold = 50
	settings.MinSectionSize = 10
	settings.MaxConcurrent = 2

	release := make(chan struct{})
	chat := &chatFake{
		blockRelease: release,
		respond:      func(ports.ChatRequest) (string, error) { return "s", nil },
	}
	s := NewSummarizer(chat, discardLogger())

	done := make(chan error, 1)
	go func() {
		_, err := s.Summarize(context.Background(), treeWithSections(200, 5), "Document", settings)
		done <- err
	}()

	// 5 map calls + 1 reduce call all pass the same gate.
	for i := 0; i < 6; i++ {
		release <- struct{}{}
	}
	if err := <-done; err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if chat.maxInFlight > settings.MaxConcurrent {
		t.Fatalf("map phase exceeded concurrency limit: %d > %d", chat.maxInFlight, settings.MaxConcurrent)
	}
}

func TestSummarizeMapFailurePropagates(t *testing.T) {
	settings := DefaultSettings()
	settings.ShortDocThreshold = 50
	settings.MinSectionSize = 10

	boom := errors.New("chat down")
	chat := &chatFake{respond: func(ports.ChatRequest) (string, error) { return "", boom }}
	s := NewSummarizer(chat, discardLogger())

	_, err := s.Summarize(context.Background(), treeWithSections(200, 3), "Document", settings)
	if !errors.Is(err, boom) {
		t.Fatalf("expected map failure to propagate, got %v", err)
	}
}

func TestSummarizeSplitsOversizedSectionIntoParts(t *testing.T) {
	settings := DefaultSettings()
	settings.ShortDocThreshold = 50
	settings.MinSectionSize = 10
	settings.MaxSectionSize = 120

	tree := domain.NewDocumentTree("doc")
	idx := tree.AddNode(0, domain.Node{Kind: domain.NodeSection, Title: "Big", Depth: 1, HierarchyPath: []string{}})
	for i := 0; i < 4; i++ {
		tree.AddNode(idx, domain.Node{
			Kind: domain.NodeParagraph, Content: strings.Repeat("x", 80), Depth: 2, HierarchyPath: []string{"Big"},
		})
	}

	chat := &chatFake{respond: func(ports.ChatRequest) (string, error) { return "s", nil }}
	s := NewSummarizer(chat, discardLogger())

	result, err := s.Summarize(context.Background(), tree, "Document", settings)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if len(result.SectionSummaries) < 2 {
		t.Fatalf("expected oversized section split into parts, got %d", len(result.SectionSummaries))
	}
	if !strings.HasPrefix(result.SectionSummaries[0].Title, "Big (Part 1") {
		t.Fatalf("expected part titles, got %q", result.SectionSummaries[0].Title)
	}
}
