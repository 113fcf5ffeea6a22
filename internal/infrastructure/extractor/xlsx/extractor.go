// Package xlsx extracts sheet rows from Excel workbooks as tables.
package xlsx

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/sop-rag/internal/core/domain"
)

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(raw []byte, filename string) (domain.ExtractedContent, error) {
	file, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return domain.ExtractedContent{}, fmt.Errorf("open workbook %s: %w", filename, err)
	}
	defer file.Close()

	var content domain.ExtractedContent
	for _, sheet := range file.GetSheetList() {
		rows, err := file.GetRows(sheet)
		if err != nil {
			return domain.ExtractedContent{}, fmt.Errorf("read sheet %s of %s: %w", sheet, filename, err)
		}
		if len(rows) == 0 {
			continue
		}
		content.Tables = append(content.Tables, rows)
	}
	return content, nil
}
