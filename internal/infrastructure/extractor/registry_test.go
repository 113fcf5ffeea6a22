package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/kirillkom/sop-rag/internal/core/domain"
)

type fakeStorage struct {
	files map[string][]byte
}

func (s *fakeStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.files[key] = raw
	return nil
}

func (s *fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := s.files[key]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *fakeStorage) Remove(_ context.Context, key string) error {
	delete(s.files, key)
	return nil
}

func TestRegistryExtractsPlainText(t *testing.T) {
	storage := &fakeStorage{files: map[string][]byte{
		"docs/sop.txt": []byte("Step one.\r\nStep two.\n"),
	}}
	registry := NewRegistry(storage, nil)

	content, err := registry.Extract(context.Background(), &domain.Document{
		ID:          "doc-1",
		Filename:    "sop.txt",
		StoragePath: "docs/sop.txt",
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if content.Text != "Step one.\nStep two." {
		t.Fatalf("unexpected text %q", content.Text)
	}
}

func TestRegistryFallsBackForUnknownExtension(t *testing.T) {
	storage := &fakeStorage{files: map[string][]byte{
		"docs/notes.log": []byte("raw log line"),
	}}
	registry := NewRegistry(storage, nil)

	content, err := registry.Extract(context.Background(), &domain.Document{
		ID:          "doc-2",
		Filename:    "notes.log",
		StoragePath: "docs/notes.log",
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if content.Text != "raw log line" {
		t.Fatalf("unexpected text %q", content.Text)
	}
}

func TestRegistryRejectsMissingStoragePath(t *testing.T) {
	registry := NewRegistry(&fakeStorage{files: map[string][]byte{}}, nil)

	_, err := registry.Extract(context.Background(), &domain.Document{ID: "doc-3", Filename: "a.txt"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestRegistryPropagatesStorageFailure(t *testing.T) {
	registry := NewRegistry(&fakeStorage{files: map[string][]byte{}}, nil)

	_, err := registry.Extract(context.Background(), &domain.Document{
		ID:          "doc-4",
		Filename:    "gone.txt",
		StoragePath: "docs/gone.txt",
	})
	if err == nil {
		t.Fatalf("expected error for missing object")
	}
}
