// Package extractor selects a format-specific extractor for a stored
// document and runs it over the raw file bytes.
package extractor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kirillkom/sop-rag/internal/core/domain"
	"github.com/kirillkom/sop-rag/internal/core/ports"
	"github.com/kirillkom/sop-rag/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/sop-rag/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/sop-rag/internal/infrastructure/extractor/xlsx"
)

// FormatExtractor parses one file format into extractable content.
type FormatExtractor interface {
	Extract(raw []byte, filename string) (domain.ExtractedContent, error)
}

type Registry struct {
	storage  ports.ObjectStorage
	logger   *slog.Logger
	byExt    map[string]FormatExtractor
	fallback FormatExtractor
}

func NewRegistry(storage ports.ObjectStorage, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	plain := plaintext.New()
	return &Registry{
		storage: storage,
		logger:  logger,
		byExt: map[string]FormatExtractor{
			".pdf":  pdf.New(),
			".xlsx": xlsx.New(),
			".txt":  plain,
			".md":   plain,
		},
		fallback: plain,
	}
}

// Register overrides or adds the extractor for a file extension.
func (r *Registry) Register(ext string, fe FormatExtractor) {
	r.byExt[strings.ToLower(ext)] = fe
}

func (r *Registry) Extract(ctx context.Context, doc *domain.Document) (domain.ExtractedContent, error) {
	if doc == nil || strings.TrimSpace(doc.StoragePath) == "" {
		return domain.ExtractedContent{}, domain.WrapError(domain.ErrInvalidInput, "extract", fmt.Errorf("document has no storage path"))
	}

	reader, err := r.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return domain.ExtractedContent{}, fmt.Errorf("open stored document %s: %w", doc.StoragePath, err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return domain.ExtractedContent{}, fmt.Errorf("read stored document %s: %w", doc.StoragePath, err)
	}

	ext := strings.ToLower(filepath.Ext(doc.Filename))
	fe, ok := r.byExt[ext]
	if !ok {
		r.logger.Warn("no extractor registered for extension, using plaintext",
			"extension", ext,
			"document_id", doc.ID,
		)
		fe = r.fallback
	}

	content, err := fe.Extract(raw, doc.Filename)
	if err != nil {
		return domain.ExtractedContent{}, fmt.Errorf("extract %s: %w", doc.Filename, err)
	}
	return content, nil
}
