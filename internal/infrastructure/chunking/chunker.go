// Package chunking turns a built document tree into language-tagged,
// hierarchy-pathed text chunks with token overlap between neighbours.
package chunking

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

// minFillRatio is the smallest fraction of chunk_size a chunk may close at
// when respecting a sentence boundary.
const minFillRatio = 0.6

const parentSummaryTemperature = 0.3

// Chunker implements the text_chunk production strategy. Chat is used only
// for the hierarchical variant's parent-chunk summaries and may be nil,
// which disables that variant.
type Chunker struct {
	tagger ports.LanguageTagger
	chat   ports.Chat
}

func New(tagger ports.LanguageTagger, chat ports.Chat) *Chunker {
	return &Chunker{tagger: tagger, chat: chat}
}

type leaf struct {
	text string
	path []string
	page int
}

type token struct {
	text string
	leaf int
}

func (c *Chunker) Chunk(ctx context.Context, tree *domain.DocumentTree, docID string, cfg ports.ChunkerConfig) ([]domain.Chunk, error) {
	cfg = normalize(cfg)

	leaves := collectLeaves(tree)
	if len(leaves) == 0 {
		return nil, nil
	}

	chunks := c.accumulate(leaves, docID, cfg)

	if c.hierarchicalEligible(tree, cfg) {
		parents, err := c.parentChunks(ctx, tree, docID, chunks, cfg)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, parents...)
	}
	return chunks, nil
}

func normalize(cfg ports.ChunkerConfig) ports.ChunkerConfig {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 512
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 4
	}
	return cfg
}

func collectLeaves(tree *domain.DocumentTree) []leaf {
	var leaves []leaf
	tree.Walk(func(_ int, n *domain.Node) {
		switch n.Kind {
		case domain.NodeParagraph, domain.NodeTable, domain.NodeImageDescription:
			if strings.TrimSpace(n.Content) == "" {
				return
			}
			leaves = append(leaves, leaf{
				text: n.Content,
				path: n.HierarchyPath,
				page: n.PageNumber,
			})
		}
	})
	return leaves
}

// accumulate packs leaf sentences into chunks of at most ChunkSize tokens.
// When a sentence would overflow, the chunk closes at the sentence boundary
// if it is at least minFillRatio full; otherwise the sentence is split at
// the token boundary. Each new chunk starts with the previous chunk's
// trailing overlap tokens.
func (c *Chunker) accumulate(leaves []leaf, docID string, cfg ports.ChunkerConfig) []domain.Chunk {
	var chunks []domain.Chunk
	var current []token
	fresh := false
	minFill := int(minFillRatio * float64(cfg.ChunkSize))

	emit := func() {
		if len(current) == 0 || !fresh {
			return
		}
		chunks = append(chunks, c.buildChunk(current, leaves, docID))
		overlap := cfg.ChunkOverlap
		if overlap > len(current) {
			overlap = len(current)
		}
		next := make([]token, overlap)
		copy(next, current[len(current)-overlap:])
		current = next
		fresh = false
	}

	for leafIdx, l := range leaves {
		for _, sentence := range splitSentences(l.text) {
			words := strings.Fields(sentence)
			for len(words) > 0 {
				space := cfg.ChunkSize - len(current)
				if space <= 0 {
					emit()
					continue
				}
				if len(words) <= space {
					current = appendWords(current, words, leafIdx)
					fresh = true
					words = nil
					continue
				}
				// Sentence does not fit. Close at the boundary when the
				// chunk is full enough, otherwise break mid-sentence.
				if fresh && len(current) >= minFill {
					emit()
					continue
				}
				current = appendWords(current, words[:space], leafIdx)
				fresh = true
				words = words[space:]
				emit()
			}
			if len(current) >= cfg.ChunkSize {
				emit()
			}
		}
	}
	// Flush the tail unless it is overlap-only carryover.
	if fresh && len(current) > 0 {
		chunks = append(chunks, c.buildChunk(current, leaves, docID))
	}
	return chunks
}

func appendWords(current []token, words []string, leafIdx int) []token {
	for _, w := range words {
		current = append(current, token{text: w, leaf: leafIdx})
	}
	return current
}

func (c *Chunker) buildChunk(tokens []token, leaves []leaf, docID string) domain.Chunk {
	words := make([]string, len(tokens))
	for i, t := range tokens {
		words[i] = t.text
	}
	content := strings.Join(words, " ")

	first := leaves[tokens[0].leaf]
	path := first.path
	for _, t := range tokens[1:] {
		other := leaves[t.leaf].path
		if !equalPaths(path, other) {
			path = sharedPrefix(path, other)
		}
	}

	chunk := domain.Chunk{
		ChunkID:       uuid.NewString(),
		DocID:         docID,
		Kind:          domain.ChunkText,
		Content:       content,
		HierarchyPath: append([]string{}, path...),
		PageNumber:    first.page,
		TokenCount:    len(tokens),
		Metadata:      domain.ChunkMetadata{TokenCountMethod: "estimated"},
	}

	if len(words) >= 1 {
		info := c.tagger.Analyze(content)
		chunk.Language = info.PrimaryLanguage
		chunk.IsMultilingual = info.IsMultilingual
		chunk.Languages = info.Languages
		chunk.LanguageDistribution = info.Distribution
	}
	return chunk
}

func (c *Chunker) hierarchicalEligible(tree *domain.DocumentTree, cfg ports.ChunkerConfig) bool {
	if c.chat == nil {
		return false
	}
	if len(tree.FullText()) <= cfg.HierarchicalThresholdChars {
		return false
	}
	return tree.SectionHeaderCount() >= cfg.MinHeadersForSemantic
}

// parentChunks emits one parent chunk per direct-child section: the heading
// plus a short generated summary, referencing the section's child chunk ids.
func (c *Chunker) parentChunks(
	ctx context.Context,
	tree *domain.DocumentTree,
	docID string,
	children []domain.Chunk,
	cfg ports.ChunkerConfig,
) ([]domain.Chunk, error) {
	var out []domain.Chunk
	for _, idx := range tree.SectionChildren() {
		section := &tree.Nodes[idx]
		if section.Title == "" {
			continue
		}

		var childIDs []string
		for _, chunk := range children {
			if len(chunk.HierarchyPath) > 0 && chunk.HierarchyPath[0] == section.Title {
				childIDs = append(childIDs, chunk.ChunkID)
			}
		}
		if len(childIDs) == 0 {
			continue
		}

		content := tree.NodeText(idx)
		budget := cfg.ParentChunkMultiplier * cfg.ChunkSize * 4
		if len(content) > budget {
			content = content[:budget]
		}
		summary, err := c.chat.Complete(ctx, ports.ChatRequest{
			System:      "You summarize document sections in one short paragraph.",
			User:        fmt.Sprintf("Summarize this section in at most %d characters.\n\n%s", cfg.ParentSummaryMaxLength, content),
			MaxTokens:   cfg.ParentSummaryMaxLength / 3,
			Temperature: parentSummaryTemperature,
		})
		if err != nil {
			return nil, fmt.Errorf("parent summary for %q: %w", section.Title, err)
		}
		summary = strings.TrimSpace(summary)
		if len(summary) > cfg.ParentSummaryMaxLength {
			summary = summary[:cfg.ParentSummaryMaxLength]
		}

		parentContent := section.Title + "\n" + summary
		parent := domain.Chunk{
			ChunkID:       uuid.NewString(),
			DocID:         docID,
			Kind:          domain.ChunkText,
			Content:       parentContent,
			HierarchyPath: []string{section.Title},
			PageNumber:    section.PageNumber,
			TokenCount:    len(strings.Fields(parentContent)),
			Metadata: domain.ChunkMetadata{
				TokenCountMethod: "estimated",
				Children:         childIDs,
			},
		}
		info := c.tagger.Analyze(parent.Content)
		parent.Language = info.PrimaryLanguage
		parent.IsMultilingual = info.IsMultilingual
		parent.Languages = info.Languages
		parent.LanguageDistribution = info.Distribution
		out = append(out, parent)
	}
	return out, nil
}

// splitSentences cuts on sentence-final punctuation followed by space,
// keeping the punctuation with the sentence.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				if s := strings.TrimSpace(b.String()); s != "" {
					sentences = append(sentences, s)
				}
				b.Reset()
			}
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func equalPaths(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sharedPrefix(a, b []string) []string {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return a[:n]
}
