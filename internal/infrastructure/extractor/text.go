package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

// TextProcessor handles plain text, markdown and JSON uploads. Markdown
// headings become heading blocks so the tree keeps the author's structure;
// JSON is flattened into a single paragraph of "path: value" lines.
type TextProcessor struct{}

func NewTextProcessor() *TextProcessor {
	return &TextProcessor{}
}

func (p *TextProcessor) Extract(_ context.Context, r io.Reader, mimeType string) (*ports.ExtractedDocument, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read text document: %w", err)
	}
	if !utf8.Valid(raw) {
		return nil, domain.WrapError(domain.ErrInputRejected, "extract text",
			fmt.Errorf("content is not valid utf-8"))
	}

	content := string(raw)
	if mimeType == "application/json" {
		content = flattenJSON(raw)
	}

	var blocks []ports.Block
	for _, paragraph := range strings.Split(content, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		// A paragraph may open with a markdown heading line.
		lines := strings.Split(paragraph, "\n")
		var body []string
		for _, line := range lines {
			if depth, title, ok := markdownHeading(line); ok {
				if len(body) > 0 {
					blocks = append(blocks, ports.Block{
						Role: ports.BlockParagraph, PageNumber: 1, Text: strings.Join(body, "\n"),
					})
					body = body[:0]
				}
				blocks = append(blocks, ports.Block{
					Role: ports.BlockHeading, Depth: depth, PageNumber: 1, Text: title,
				})
				continue
			}
			body = append(body, line)
		}
		if len(body) > 0 {
			blocks = append(blocks, ports.Block{
				Role: ports.BlockParagraph, PageNumber: 1, Text: strings.Join(body, "\n"),
			})
		}
	}

	return &ports.ExtractedDocument{Blocks: blocks}, nil
}

func markdownHeading(line string) (depth int, title string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return 0, "", false
	}
	hashes := 0
	for hashes < len(trimmed) && trimmed[hashes] == '#' {
		hashes++
	}
	if hashes > 6 || hashes == len(trimmed) || trimmed[hashes] != ' ' {
		return 0, "", false
	}
	return hashes, strings.TrimSpace(trimmed[hashes:]), true
}

// flattenJSON renders a JSON document as one "path: value" line per scalar
// so the content stays searchable. Invalid JSON falls back to the raw text.
func flattenJSON(raw []byte) string {
	var value any
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&value); err != nil {
		return string(raw)
	}
	var lines []string
	flattenValue("", value, &lines)
	return strings.Join(lines, "\n")
}

func flattenValue(path string, value any, lines *[]string) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			flattenValue(joinPath(path, key), v[key], lines)
		}
	case []any:
		for i, item := range v {
			flattenValue(fmt.Sprintf("%s[%d]", path, i), item, lines)
		}
	default:
		*lines = append(*lines, fmt.Sprintf("%s: %v", path, v))
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
