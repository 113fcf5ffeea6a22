package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/sop-rag/internal/core/domain"
)

// DocumentRepository persists and reads document metadata.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SetChunkCount(ctx context.Context, id string, count int) error
	Delete(ctx context.Context, id string) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes document-processing events.
type MessageQueue interface {
	PublishDocumentUploaded(ctx context.Context, documentID string) error
	SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// ContentExtractor pulls text, tables and images out of a stored document.
type ContentExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (domain.ExtractedContent, error)
}

// Chunker converts raw content into bounded, overlap-consistent chunks.
type Chunker interface {
	ChunkText(text, documentID string, meta domain.ChunkMetadata) []domain.Chunk
	ChunkTable(rows [][]string, documentID string, meta domain.ChunkMetadata) []domain.Chunk
	ChunkImage(caption, imageID string, meta domain.ChunkMetadata) (domain.Chunk, bool)
	ChunkComposite(content string, components []string, documentID string, position int, meta domain.ChunkMetadata) []domain.Chunk
	ValidateChunkBoundaries(chunks []domain.Chunk) bool
}

// Embedder builds vectors for chunks, queries and image bytes.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, data []byte) ([]float32, error)
}

// VectorIndex is a named-collection nearest-neighbor store.
type VectorIndex interface {
	Add(ctx context.Context, collection string, chunks []domain.EmbeddedChunk) error
	Update(ctx context.Context, collection string, chunks []domain.EmbeddedChunk) error
	Search(ctx context.Context, collection string, queryVector []float32, topK int, filter domain.SearchFilter) ([]domain.RetrievedResult, error)
	Delete(ctx context.Context, collection string, chunkIDs []string) error
	DeleteByDocument(ctx context.Context, collection, documentID string) (int, error)
	Count(ctx context.Context, collection string) (int, error)
	Clear(ctx context.Context, collection string) error
}

// ResultCache caches embeddings and full query results. Lookups and stores
// must degrade to miss/no-op when the backend is unavailable; only Invalidate
// surfaces errors because document deletion needs to report them.
type ResultCache interface {
	CacheEmbedding(ctx context.Context, text string, vector []float32, ttl time.Duration)
	CachedEmbedding(ctx context.Context, text string) ([]float32, bool)
	CacheQueryResult(ctx context.Context, query string, result *domain.AnswerResult, ttl time.Duration)
	CachedQueryResult(ctx context.Context, query string) (*domain.AnswerResult, bool)
	Invalidate(ctx context.Context, pattern string) (int, error)
	ClearAll(ctx context.Context) error
	Stats(ctx context.Context) (domain.CacheStats, error)
}

// PairScorer is the cross-encoder capability: joint relevance of one
// (query, text) pair.
type PairScorer interface {
	Score(ctx context.Context, query, text string) (float64, error)
}

type GenerateOptions struct {
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// TextGenerator is the LLM capability used for answer generation.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	ListModels(ctx context.Context) ([]string, error)
	Healthy(ctx context.Context) bool
}
