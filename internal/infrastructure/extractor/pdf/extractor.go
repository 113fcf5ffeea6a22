// Package pdf extracts plain text from PDF documents.
package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/sop-rag/internal/core/domain"
)

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(raw []byte, filename string) (domain.ExtractedContent, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return domain.ExtractedContent{}, fmt.Errorf("parse pdf %s: %w", filename, err)
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return domain.ExtractedContent{}, fmt.Errorf("read pdf text %s: %w", filename, err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		return domain.ExtractedContent{}, fmt.Errorf("buffer pdf text %s: %w", filename, err)
	}

	return domain.ExtractedContent{Text: strings.TrimSpace(buf.String())}, nil
}
