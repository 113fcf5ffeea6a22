package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/sop-rag/internal/core/domain"
	"github.com/kirillkom/sop-rag/internal/core/ports"
)

// IngestUseCase accepts an uploaded document, stores the raw bytes, records
// metadata and hands processing off to the queue.
type IngestUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	logger  *slog.Logger
}

func NewIngestUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	logger *slog.Logger,
) *IngestUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{repo: repo, storage: storage, queue: queue, logger: logger}
}

func (u *IngestUseCase) Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	safeName := sanitizeFilename(filename)
	if safeName == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("filename is empty"))
	}

	doc := &domain.Document{
		ID:       uuid.NewString(),
		Filename: safeName,
		MimeType: mimeType,
		Status:   domain.StatusUploaded,
	}
	doc.StoragePath = path.Join("docs", doc.ID, safeName)

	if err := u.storage.Save(ctx, doc.StoragePath, body); err != nil {
		return nil, fmt.Errorf("store upload %s: %w", safeName, err)
	}
	if err := u.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("record upload %s: %w", safeName, err)
	}

	if err := u.queue.PublishDocumentUploaded(ctx, doc.ID); err != nil {
		u.logger.Error("failed to enqueue document for processing",
			"document_id", doc.ID,
			"error", err,
		)
		if statusErr := u.repo.UpdateStatus(ctx, doc.ID, domain.StatusFailed, "enqueue failed: "+err.Error()); statusErr != nil {
			u.logger.Error("failed to mark document failed", "document_id", doc.ID, "error", statusErr)
		}
		return nil, fmt.Errorf("enqueue document %s: %w", doc.ID, err)
	}

	u.logger.Info("document uploaded",
		"document_id", doc.ID,
		"filename", safeName,
		"mime_type", mimeType,
	)
	return doc, nil
}

// sanitizeFilename strips directory components and characters that make
// object keys awkward.
func sanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.TrimSpace(base)
	if base == "." || base == "/" {
		return ""
	}

	var builder strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('_')
		}
	}
	return strings.Trim(builder.String(), "._")
}
