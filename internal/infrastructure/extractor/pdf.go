package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

// PDFExtractor reads page text from PDF bytes. Structure recovery is
// line-oriented: short standalone lines without terminal punctuation are
// treated as headings, blank-line groups as paragraphs.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

const headingMaxLen = 80

func (e *PDFExtractor) Extract(_ context.Context, r io.Reader, _ string) (*ports.ExtractedDocument, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf document: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInputRejected, "parse pdf", err)
	}

	var blocks []ports.Block
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract pdf page %d: %w", pageNum, err)
		}
		blocks = append(blocks, pageBlocks(text, pageNum)...)
	}
	return &ports.ExtractedDocument{Blocks: blocks}, nil
}

func pageBlocks(text string, pageNum int) []ports.Block {
	var blocks []ports.Block
	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if looksLikeHeading(paragraph) {
			blocks = append(blocks, ports.Block{
				Role: ports.BlockHeading, Depth: 1, PageNumber: pageNum, Text: paragraph,
			})
			continue
		}
		blocks = append(blocks, ports.Block{
			Role: ports.BlockParagraph, PageNumber: pageNum, Text: paragraph,
		})
	}
	return blocks
}

func looksLikeHeading(paragraph string) bool {
	if strings.Contains(paragraph, "\n") || len(paragraph) > headingMaxLen {
		return false
	}
	return !strings.ContainsAny(paragraph[len(paragraph)-1:], ".,:;!?")
}
