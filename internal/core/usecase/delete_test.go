package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/kirillkom/sop-rag/internal/core/domain"
)

func TestRemoveDeletesEverywhere(t *testing.T) {
	repo := newFakeRepo(readyDoc())
	index := newFakeIndex()
	index.deleted[domain.CollectionText] = 12
	index.deleted[domain.CollectionTable] = 3
	cache := newMemoryCache()
	cache.invalidated = 5
	storage := newFakeObjectStorage()
	storage.files["docs/doc-1/sop.pdf"] = []byte("pdf")

	u := NewRemoveDocumentUseCase(repo, index, cache, storage, nil)
	report, err := u.Remove(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if report.VectorsDeleted[domain.CollectionText] != 12 || report.VectorsDeleted[domain.CollectionTable] != 3 {
		t.Fatalf("unexpected vector counts %v", report.VectorsDeleted)
	}
	if report.CacheInvalidated != 5 {
		t.Fatalf("cache invalidation count not reported: %d", report.CacheInvalidated)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("unexpected errors %v", report.Errors)
	}
	if _, ok := storage.files["docs/doc-1/sop.pdf"]; ok {
		t.Fatalf("stored file not removed")
	}
	if _, err := repo.GetByID(context.Background(), "doc-1"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("metadata not deleted")
	}
}

func TestRemoveUnknownDocumentFails(t *testing.T) {
	u := NewRemoveDocumentUseCase(newFakeRepo(), newFakeIndex(), newMemoryCache(), newFakeObjectStorage(), nil)
	if _, err := u.Remove(context.Background(), "absent"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestRemoveCollectsPartialFailures(t *testing.T) {
	repo := newFakeRepo(readyDoc())
	index := newFakeIndex()
	index.deleteErrs[domain.CollectionImage] = fmt.Errorf("collection offline")
	index.deleted[domain.CollectionText] = 4
	cache := newMemoryCache()
	cache.invalidErr = fmt.Errorf("redis down")
	storage := newFakeObjectStorage()
	storage.removeErr = fmt.Errorf("bucket gone")

	u := NewRemoveDocumentUseCase(repo, index, cache, storage, nil)
	report, err := u.Remove(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("partial failures must not abort removal, got %v", err)
	}

	if len(report.Errors) != 3 {
		t.Fatalf("expected 3 recorded failures, got %v", report.Errors)
	}
	if report.VectorsDeleted[domain.CollectionText] != 4 {
		t.Fatalf("successful collections must still report counts: %v", report.VectorsDeleted)
	}
	if _, err := repo.GetByID(context.Background(), "doc-1"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("metadata delete should still run")
	}
}
