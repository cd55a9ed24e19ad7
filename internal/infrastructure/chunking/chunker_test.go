package chunking

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
	"github.com/mkravchenko/groundedqa/internal/infrastructure/language"
)

func testConfig(size, overlap int) ports.ChunkerConfig {
	return ports.ChunkerConfig{
		ChunkSize:                  size,
		ChunkOverlap:               overlap,
		HierarchicalThresholdChars: 60000,
		MinHeadersForSemantic:      3,
		ParentChunkMultiplier:      2,
		ParentSummaryMaxLength:     500,
	}
}

func flatTree(paragraphs ...string) *domain.DocumentTree {
	tree := domain.NewDocumentTree("doc")
	for _, p := range paragraphs {
		tree.AddNode(0, domain.Node{
			Kind: domain.NodeParagraph, Content: p, Depth: 1, HierarchyPath: []string{}, PageNumber: 1,
		})
	}
	return tree
}

func sentenceText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&b, "Sentence number %d has exactly eight words total. ", i)
	}
	return strings.TrimSpace(b.String())
}

func TestChunkSmallDocumentSingleChunk(t *testing.T) {
	c := New(language.New(), nil)

	chunks, err := c.Chunk(context.Background(), flatTree("Hello world. This is a test."), "doc-1", testConfig(512, 50))
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	chunk := chunks[0]
	assert.Equal(t, domain.ChunkText, chunk.Kind)
	assert.Equal(t, "Hello world. This is a test.", chunk.Content)
	assert.Equal(t, "en", chunk.Language)
	assert.Equal(t, "doc-1", chunk.DocID)
	assert.Equal(t, 6, chunk.TokenCount)
	assert.Equal(t, "estimated", chunk.Metadata.TokenCountMethod)
	assert.NotEmpty(t, chunk.ChunkID)
}

func TestChunkOverlapProperty(t *testing.T) {
	c := New(language.New(), nil)
	cfg := testConfig(40, 8)

	chunks, err := c.Chunk(context.Background(), flatTree(sentenceText(30)), "doc-1", cfg)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	for i := 0; i < len(chunks)-1; i++ {
		earlier := strings.Fields(chunks[i].Content)
		later := strings.Fields(chunks[i+1].Content)
		require.GreaterOrEqual(t, len(earlier), cfg.ChunkOverlap)
		tail := earlier[len(earlier)-cfg.ChunkOverlap:]
		head := later[:cfg.ChunkOverlap]
		assert.Equal(t, tail, head, "overlap mismatch between chunks %d and %d", i, i+1)
	}
}

func TestChunkSizeBounds(t *testing.T) {
	c := New(language.New(), nil)
	cfg := testConfig(40, 8)

	chunks, err := c.Chunk(context.Background(), flatTree(sentenceText(30)), "doc-1", cfg)
	require.NoError(t, err)

	minFill := int(0.6 * float64(cfg.ChunkSize))
	for i, chunk := range chunks {
		assert.LessOrEqual(t, chunk.TokenCount, cfg.ChunkSize, "chunk %d too large", i)
		if i < len(chunks)-1 {
			assert.GreaterOrEqual(t, chunk.TokenCount, minFill, "chunk %d under-filled", i)
		}
		assert.Equal(t, len(strings.Fields(chunk.Content)), chunk.TokenCount)
	}
}

func TestChunkInheritsHierarchyFromFirstLeaf(t *testing.T) {
	tree := domain.NewDocumentTree("doc")
	idx := tree.AddNode(0, domain.Node{
		Kind: domain.NodeSection, Title: "Methods", Depth: 1, HierarchyPath: []string{},
	})
	tree.AddNode(idx, domain.Node{
		Kind: domain.NodeParagraph, Content: "Procedure described here.", Depth: 2,
		HierarchyPath: []string{"Methods"}, PageNumber: 4,
	})

	c := New(language.New(), nil)
	chunks, err := c.Chunk(context.Background(), tree, "doc-1", testConfig(512, 50))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"Methods"}, chunks[0].HierarchyPath)
	assert.Equal(t, 4, chunks[0].PageNumber)
}

func TestChunkSpanningSectionsUsesSharedPrefix(t *testing.T) {
	tree := domain.NewDocumentTree("doc")
	parent := tree.AddNode(0, domain.Node{
		Kind: domain.NodeSection, Title: "Guide", Depth: 1, HierarchyPath: []string{},
	})
	a := tree.AddNode(parent, domain.Node{
		Kind: domain.NodeSection, Title: "Setup", Depth: 2, HierarchyPath: []string{"Guide"},
	})
	b := tree.AddNode(parent, domain.Node{
		Kind: domain.NodeSection, Title: "Usage", Depth: 2, HierarchyPath: []string{"Guide"},
	})
	tree.AddNode(a, domain.Node{
		Kind: domain.NodeParagraph, Content: "install the thing now", Depth: 3,
		HierarchyPath: []string{"Guide", "Setup"},
	})
	tree.AddNode(b, domain.Node{
		Kind: domain.NodeParagraph, Content: "use the thing daily", Depth: 3,
		HierarchyPath: []string{"Guide", "Usage"},
	})

	c := New(language.New(), nil)
	chunks, err := c.Chunk(context.Background(), tree, "doc-1", testConfig(512, 0))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"Guide"}, chunks[0].HierarchyPath)
}

func TestChunkMultilingualTagging(t *testing.T) {
	c := New(language.New(), nil)

	chunks, err := c.Chunk(context.Background(),
		flatTree("שלום my name is דוד and I live in ירושלים"), "doc-1", testConfig(512, 50))
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	chunk := chunks[0]
	assert.Equal(t, "en", chunk.Language)
	assert.True(t, chunk.IsMultilingual)
	assert.Equal(t, []string{"he", "en"}, chunk.Languages)

	sum := 0.0
	for _, ratio := range chunk.LanguageDistribution {
		sum += ratio
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestChunkEmptyTreeProducesNothing(t *testing.T) {
	c := New(language.New(), nil)
	chunks, err := c.Chunk(context.Background(), domain.NewDocumentTree("doc"), "doc-1", testConfig(512, 50))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

type parentChat struct{ calls int }

func (p *parentChat) Complete(_ context.Context, _ ports.ChatRequest) (string, error) {
	p.calls++
	return "section overview", nil
}

func TestHierarchicalVariantEmitsParentChunks(t *testing.T) {
	tree := domain.NewDocumentTree("doc")
	body := sentenceText(400)
	for _, title := range []string{"One", "Two", "Three"} {
		idx := tree.AddNode(0, domain.Node{
			Kind: domain.NodeSection, Title: title, Depth: 1, HierarchyPath: []string{},
		})
		tree.AddNode(idx, domain.Node{
			Kind: domain.NodeParagraph, Content: body, Depth: 2, HierarchyPath: []string{title},
		})
	}

	chat := &parentChat{}
	c := New(language.New(), chat)
	cfg := testConfig(512, 50)
	cfg.HierarchicalThresholdChars = 1000

	chunks, err := c.Chunk(context.Background(), tree, "doc-1", cfg)
	require.NoError(t, err)

	var parents []domain.Chunk
	childIDs := map[string]bool{}
	for _, chunk := range chunks {
		if len(chunk.Metadata.Children) > 0 {
			parents = append(parents, chunk)
			continue
		}
		childIDs[chunk.ChunkID] = true
	}
	require.Len(t, parents, 3)
	assert.Equal(t, 3, chat.calls)
	for _, parent := range parents {
		assert.True(t, strings.Contains(parent.Content, "section overview"))
		for _, child := range parent.Metadata.Children {
			assert.True(t, childIDs[child], "parent references unknown child %s", child)
		}
	}
}
