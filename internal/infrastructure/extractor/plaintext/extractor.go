// Package plaintext treats the whole file as UTF-8 text.
package plaintext

import (
	"strings"

	"github.com/kirillkom/sop-rag/internal/core/domain"
)

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(raw []byte, _ string) (domain.ExtractedContent, error) {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	return domain.ExtractedContent{Text: strings.TrimSpace(text)}, nil
}
