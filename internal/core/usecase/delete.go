package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/sop-rag/internal/core/domain"
	"github.com/kirillkom/sop-rag/internal/core/ports"
)

// RemoveDocumentUseCase deletes a document everywhere it lives. Removal is
// best effort: individual step failures are collected in the report instead
// of aborting, so a half-deleted document never blocks retrying.
type RemoveDocumentUseCase struct {
	repo    ports.DocumentRepository
	index   ports.VectorIndex
	cache   ports.ResultCache
	storage ports.ObjectStorage
	logger  *slog.Logger
}

func NewRemoveDocumentUseCase(
	repo ports.DocumentRepository,
	index ports.VectorIndex,
	cache ports.ResultCache,
	storage ports.ObjectStorage,
	logger *slog.Logger,
) *RemoveDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoveDocumentUseCase{
		repo:    repo,
		index:   index,
		cache:   cache,
		storage: storage,
		logger:  logger,
	}
}

func (u *RemoveDocumentUseCase) Remove(ctx context.Context, documentID string) (domain.DeletionReport, error) {
	report := domain.DeletionReport{
		DocumentID:     documentID,
		VectorsDeleted: make(map[string]int),
	}

	doc, err := u.repo.GetByID(ctx, documentID)
	if err != nil {
		return report, fmt.Errorf("load document %s: %w", documentID, err)
	}

	for _, collection := range domain.AllCollections() {
		deleted, err := u.index.DeleteByDocument(ctx, collection, documentID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("delete vectors from %s: %v", collection, err))
			continue
		}
		report.VectorsDeleted[collection] = deleted
	}

	// Cached answers may cite the removed document, so the whole query
	// namespace goes.
	invalidated, err := u.cache.Invalidate(ctx, "query:*")
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("invalidate query cache: %v", err))
	} else {
		report.CacheInvalidated = invalidated
	}

	if err := u.storage.Remove(ctx, doc.StoragePath); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("remove stored file: %v", err))
	}

	if err := u.repo.Delete(ctx, documentID); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("delete metadata: %v", err))
	}

	u.logger.Info("document removed",
		"document_id", documentID,
		"errors", len(report.Errors),
	)
	return report, nil
}
