package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

const (
	sectionSummaryMaxTokens = 400
	finalSummaryMaxTokens   = 1000
	summaryTemperature      = 0.3
)

// Summarizer generates hierarchical document summaries: a single call for
// short documents, map-reduce with bounded parallelism otherwise.
type Summarizer struct {
	chat   ports.Chat
	logger *slog.Logger
}

func NewSummarizer(chat ports.Chat, logger *slog.Logger) *Summarizer {
	return &Summarizer{chat: chat, logger: logger}
}

type summarizeSection struct {
	title   string
	content string
}

// Summarize picks the method by full-text size against the short-doc
// threshold and returns the complete summaries record.
func (s *Summarizer) Summarize(ctx context.Context, tree *domain.DocumentTree, docType string, settings Settings) (*domain.DocumentSummaries, error) {
	text := tree.FullText()

	if len(text) <= settings.ShortDocThreshold {
		return s.summarizeShort(ctx, tree.Title, docType, text, settings)
	}
	return s.summarizeMapReduce(ctx, tree, docType, settings)
}

func (s *Summarizer) summarizeShort(ctx context.Context, title, docType, text string, settings Settings) (*domain.DocumentSummaries, error) {
	if strings.TrimSpace(text) == "" {
		return &domain.DocumentSummaries{
			Method:           domain.SummaryMethodSingle,
			SectionSummaries: []domain.SectionSummary{},
		}, nil
	}

	tpl := settings.PromptSummary
	if tpl == "" {
		tpl = shortDocSummaryUser
	}
	prompt := renderTemplate(tpl, map[string]string{
		"document_title":   title,
		"document_type":    docType,
		"document_content": text,
	})

	summary, err := s.chat.Complete(ctx, ports.ChatRequest{
		System:      shortDocSummarySystem,
		User:        prompt,
		MaxTokens:   finalSummaryMaxTokens,
		Temperature: summaryTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("short document summary: %w", err)
	}

	return &domain.DocumentSummaries{
		DocumentSummary:  strings.TrimSpace(summary),
		SectionSummaries: []domain.SectionSummary{},
		Method:           domain.SummaryMethodSingle,
	}, nil
}

func (s *Summarizer) summarizeMapReduce(ctx context.Context, tree *domain.DocumentTree, docType string, settings Settings) (*domain.DocumentSummaries, error) {
	sections := s.splitIntoSections(tree, settings)
	if len(sections) == 0 {
		return s.summarizeShort(ctx, tree.Title, docType, tree.FullText(), settings)
	}

	s.logger.Info("map phase start",
		"sections", len(sections),
		"max_concurrent", settings.MaxConcurrent,
	)

	// Results are written by index so the output order matches the input
	// section order regardless of task completion order.
	summaries := make([]domain.SectionSummary, len(sections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(settings.MaxConcurrent)
	for i, section := range sections {
		g.Go(func() error {
			summary, err := s.summarizeSingleSection(gctx, section, settings)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("map phase: %w", err)
	}

	final, err := s.reduce(ctx, tree.Title, docType, summaries)
	if err != nil {
		return nil, fmt.Errorf("reduce phase: %w", err)
	}

	return &domain.DocumentSummaries{
		DocumentSummary:  final,
		SectionSummaries: summaries,
		Method:           domain.SummaryMethodMapReduce,
		SectionsCount:    len(sections),
	}, nil
}

// splitIntoSections uses the tree's direct-child sections when present:
// short sections are skipped, oversized ones split on paragraph boundaries
// into titled parts. Without structure it falls back to size-based splits
// of the full text.
func (s *Summarizer) splitIntoSections(tree *domain.DocumentTree, settings Settings) []summarizeSection {
	var sections []summarizeSection

	for _, idx := range tree.SectionChildren() {
		node := &tree.Nodes[idx]
		content := tree.NodeText(idx)
		if len(content) < settings.MinSectionSize {
			continue
		}
		title := node.Title
		if title == "" {
			title = "Untitled Section"
		}
		if len(content) > settings.MaxSectionSize {
			sections = append(sections, splitLongSection(title, content, settings.MaxSectionSize)...)
		} else {
			sections = append(sections, summarizeSection{title: title, content: content})
		}
	}

	if len(sections) == 0 {
		sections = splitBySize(tree.FullText(), settings.MaxSectionSize)
	}
	return sections
}

func splitLongSection(title, content string, maxSize int) []summarizeSection {
	parts := accumulateParagraphs(content, maxSize)
	out := make([]summarizeSection, 0, len(parts))
	for i, part := range parts {
		partTitle := title
		if len(parts) > 1 {
			partTitle = fmt.Sprintf("%s (Part %d)", title, i+1)
		}
		out = append(out, summarizeSection{title: partTitle, content: part})
	}
	return out
}

func splitBySize(text string, maxSize int) []summarizeSection {
	parts := accumulateParagraphs(text, maxSize)
	out := make([]summarizeSection, 0, len(parts))
	for i, part := range parts {
		out = append(out, summarizeSection{
			title:   fmt.Sprintf("Section %d", i+1),
			content: part,
		})
	}
	return out
}

// accumulateParagraphs packs blank-line-separated paragraphs into parts of
// at most maxSize characters, flushing before a paragraph would overflow.
func accumulateParagraphs(text string, maxSize int) []string {
	paragraphs := strings.Split(text, "\n\n")
	var parts []string
	var current strings.Builder
	for _, para := range paragraphs {
		if current.Len() > 0 && current.Len()+len(para) > maxSize {
			if flushed := strings.TrimSpace(current.String()); flushed != "" {
				parts = append(parts, flushed)
			}
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	if flushed := strings.TrimSpace(current.String()); flushed != "" {
		parts = append(parts, flushed)
	}
	return parts
}

func (s *Summarizer) summarizeSingleSection(ctx context.Context, section summarizeSection, settings Settings) (domain.SectionSummary, error) {
	content := section.content
	if len(content) > settings.MaxSectionSize {
		content = content[:settings.MaxSectionSize]
	}

	prompt := renderTemplate(sectionSummaryUser, map[string]string{
		"section_title":   section.title,
		"section_content": content,
	})
	summary, err := s.chat.Complete(ctx, ports.ChatRequest{
		System:      sectionSummarySystem,
		User:        prompt,
		MaxTokens:   sectionSummaryMaxTokens,
		Temperature: summaryTemperature,
	})
	if err != nil {
		return domain.SectionSummary{}, fmt.Errorf("summarize section %q: %w", section.title, err)
	}

	return domain.SectionSummary{
		Title:          section.title,
		Summary:        strings.TrimSpace(summary),
		OriginalLength: len(section.content),
	}, nil
}

func (s *Summarizer) reduce(ctx context.Context, title, docType string, summaries []domain.SectionSummary) (string, error) {
	var formatted strings.Builder
	for _, sec := range summaries {
		formatted.WriteString("### " + sec.Title + "\n" + sec.Summary + "\n\n")
	}

	prompt := renderTemplate(finalSummaryUser, map[string]string{
		"document_title":    title,
		"document_type":     docType,
		"section_summaries": strings.TrimSpace(formatted.String()),
	})
	final, err := s.chat.Complete(ctx, ports.ChatRequest{
		System:      finalSummarySystem,
		User:        prompt,
		MaxTokens:   finalSummaryMaxTokens,
		Temperature: summaryTemperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(final), nil
}
