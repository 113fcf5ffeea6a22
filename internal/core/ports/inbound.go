package ports

import (
	"context"
	"io"

	"github.com/kirillkom/sop-rag/internal/core/domain"
)

// QueryService is the inbound contract for answering and retrieval.
type QueryService interface {
	Answer(ctx context.Context, q domain.QueryContext) (*domain.AnswerResult, error)
	Retrieve(ctx context.Context, q domain.QueryContext) ([]domain.RetrievedResult, error)
	Healthy(ctx context.Context) bool
}

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentRemover deletes a document across all stores, best effort.
type DocumentRemover interface {
	Remove(ctx context.Context, documentID string) (domain.DeletionReport, error)
}
