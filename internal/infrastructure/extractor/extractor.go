// Package extractor turns stored document bytes into the ordered block
// structure the tree builder consumes, dispatching on MIME type.
package extractor

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

const (
	mimePDF  = "application/pdf"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Dispatcher selects the extraction path by MIME type: a text path for
// plain text, markdown and JSON, PDF and spreadsheet paths for the binary
// formats.
type Dispatcher struct {
	text  *TextProcessor
	pdf   *PDFExtractor
	sheet *SheetExtractor
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		text:  NewTextProcessor(),
		pdf:   NewPDFExtractor(),
		sheet: NewSheetExtractor(),
	}
}

func (d *Dispatcher) Extract(ctx context.Context, r io.Reader, mimeType string) (*ports.ExtractedDocument, error) {
	base := mimeType
	if idx := strings.Index(base, ";"); idx >= 0 {
		base = strings.TrimSpace(base[:idx])
	}

	switch base {
	case "text/plain", "text/markdown", "application/json", "text/x-markdown":
		return d.text.Extract(ctx, r, base)
	case mimePDF:
		return d.pdf.Extract(ctx, r, base)
	case mimeXLSX:
		return d.sheet.Extract(ctx, r, base)
	default:
		return nil, domain.WrapError(domain.ErrInputRejected, "extract",
			fmt.Errorf("unsupported mime type %q", mimeType))
	}
}
