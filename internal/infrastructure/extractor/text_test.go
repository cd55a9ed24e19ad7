package extractor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

func TestTextProcessorPlainParagraphs(t *testing.T) {
	doc, err := NewTextProcessor().Extract(context.Background(),
		strings.NewReader("First paragraph.\n\nSecond paragraph."), "text/plain")
	require.NoError(t, err)
	require.Len(t, doc.Blocks, 2)
	assert.Equal(t, ports.BlockParagraph, doc.Blocks[0].Role)
	assert.Equal(t, "First paragraph.", doc.Blocks[0].Text)
}

func TestTextProcessorMarkdownHeadings(t *testing.T) {
	content := "# Title\n\nIntro text.\n\n## Section A\nBody of A.\n\n### Deep\n\nDeep body."
	doc, err := NewTextProcessor().Extract(context.Background(), strings.NewReader(content), "text/markdown")
	require.NoError(t, err)

	var headings []ports.Block
	for _, block := range doc.Blocks {
		if block.Role == ports.BlockHeading {
			headings = append(headings, block)
		}
	}
	require.Len(t, headings, 3)
	assert.Equal(t, "Title", headings[0].Text)
	assert.Equal(t, 1, headings[0].Depth)
	assert.Equal(t, "Section A", headings[1].Text)
	assert.Equal(t, 2, headings[1].Depth)
	assert.Equal(t, 3, headings[2].Depth)
}

func TestTextProcessorHeadingWithTrailingBodyLine(t *testing.T) {
	content := "## Section\nBody right after."
	doc, err := NewTextProcessor().Extract(context.Background(), strings.NewReader(content), "text/markdown")
	require.NoError(t, err)
	require.Len(t, doc.Blocks, 2)
	assert.Equal(t, ports.BlockHeading, doc.Blocks[0].Role)
	assert.Equal(t, ports.BlockParagraph, doc.Blocks[1].Role)
	assert.Equal(t, "Body right after.", doc.Blocks[1].Text)
}

func TestTextProcessorFlattensJSON(t *testing.T) {
	content := `{"name":"report","stats":{"pages":4},"tags":["a","b"]}`
	doc, err := NewTextProcessor().Extract(context.Background(), strings.NewReader(content), "application/json")
	require.NoError(t, err)
	require.NotEmpty(t, doc.Blocks)

	text := doc.Blocks[0].Text
	assert.Contains(t, text, "name: report")
	assert.Contains(t, text, "stats.pages: 4")
	assert.Contains(t, text, "tags[0]: a")
}

func TestTextProcessorRejectsBinary(t *testing.T) {
	_, err := NewTextProcessor().Extract(context.Background(), strings.NewReader("\xff\xfe\x00binary"), "text/plain")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInputRejected))
}

func TestDispatcherRejectsUnsupportedMime(t *testing.T) {
	_, err := NewDispatcher().Extract(context.Background(), strings.NewReader("x"), "application/zip")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInputRejected))
}

func TestDispatcherStripsMimeParameters(t *testing.T) {
	doc, err := NewDispatcher().Extract(context.Background(),
		strings.NewReader("hello"), "text/plain; charset=utf-8")
	require.NoError(t, err)
	require.Len(t, doc.Blocks, 1)
}
