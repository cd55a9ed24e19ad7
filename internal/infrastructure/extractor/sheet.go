package extractor

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

// SheetExtractor turns an XLSX workbook into one heading plus one table
// block per sheet, rows serialized positionally.
type SheetExtractor struct{}

func NewSheetExtractor() *SheetExtractor {
	return &SheetExtractor{}
}

func (e *SheetExtractor) Extract(_ context.Context, r io.Reader, _ string) (*ports.ExtractedDocument, error) {
	workbook, err := excelize.OpenReader(r)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInputRejected, "parse spreadsheet", err)
	}
	defer workbook.Close()

	var blocks []ports.Block
	for i, sheet := range workbook.GetSheetList() {
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		page := i + 1
		blocks = append(blocks, ports.Block{
			Role: ports.BlockHeading, Depth: 1, PageNumber: page, Text: sheet,
		})
		blocks = append(blocks, ports.Block{
			Role: ports.BlockTable, PageNumber: page, Rows: rows,
		})
	}
	return &ports.ExtractedDocument{Blocks: blocks}, nil
}
