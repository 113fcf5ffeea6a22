package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/sop-rag/internal/core/domain"
	"github.com/kirillkom/sop-rag/internal/core/ports"
)

// ProcessUseCase turns an uploaded document into indexed vectors: extract,
// chunk per modality, embed, index. Status transitions record progress so a
// failed document carries its failure reason.
type ProcessUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.ContentExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	index     ports.VectorIndex
	logger    *slog.Logger
}

func NewProcessUseCase(
	repo ports.DocumentRepository,
	extractor ports.ContentExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	logger *slog.Logger,
) *ProcessUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessUseCase{
		repo:      repo,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		logger:    logger,
	}
}

func (u *ProcessUseCase) ProcessByID(ctx context.Context, documentID string) error {
	doc, err := u.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", documentID, err)
	}

	if err := u.repo.UpdateStatus(ctx, doc.ID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("mark processing %s: %w", doc.ID, err)
	}

	if err := u.process(ctx, doc); err != nil {
		if statusErr := u.repo.UpdateStatus(ctx, doc.ID, domain.StatusFailed, err.Error()); statusErr != nil {
			u.logger.Error("failed to mark document failed", "document_id", doc.ID, "error", statusErr)
		}
		return err
	}

	if err := u.repo.UpdateStatus(ctx, doc.ID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("mark ready %s: %w", doc.ID, err)
	}
	return nil
}

func (u *ProcessUseCase) process(ctx context.Context, doc *domain.Document) error {
	content, err := u.extractor.Extract(ctx, doc)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	chunks, images := u.chunkContent(doc, content)
	if len(chunks) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "process", fmt.Errorf("document %s produced no chunks", doc.ID))
	}
	if !u.chunker.ValidateChunkBoundaries(chunks) {
		return domain.WrapError(domain.ErrInvalidInput, "process", fmt.Errorf("document %s produced inconsistent chunks", doc.ID))
	}

	embedded, err := u.embedChunks(ctx, chunks, images)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	byCollection := make(map[string][]domain.EmbeddedChunk)
	for _, ec := range embedded {
		collection := domain.CollectionFor(ec.Chunk.Type)
		byCollection[collection] = append(byCollection[collection], ec)
	}
	for collection, batch := range byCollection {
		if err := u.index.Add(ctx, collection, batch); err != nil {
			return fmt.Errorf("index %s: %w", collection, err)
		}
	}

	if err := u.repo.SetChunkCount(ctx, doc.ID, len(embedded)); err != nil {
		return fmt.Errorf("record chunk count: %w", err)
	}

	u.logger.Info("document processed",
		"document_id", doc.ID,
		"chunks", len(embedded),
		"collections", len(byCollection),
	)
	return nil
}

// chunkContent builds chunks for every modality and remembers which image
// chunk came from which raw image so embedding can use the image bytes.
func (u *ProcessUseCase) chunkContent(doc *domain.Document, content domain.ExtractedContent) ([]domain.Chunk, map[string][]byte) {
	meta := domain.ChunkMetadata{
		DocumentID: doc.ID,
		SourceFile: doc.Filename,
	}

	var chunks []domain.Chunk
	textChunks := u.chunker.ChunkText(content.Text, doc.ID, meta)
	chunks = append(chunks, textChunks...)

	var tableChunks []domain.Chunk
	for _, table := range content.Tables {
		tableChunks = append(tableChunks, u.chunker.ChunkTable(table, doc.ID, meta)...)
	}
	chunks = append(chunks, tableChunks...)

	imageData := make(map[string][]byte)
	for _, img := range content.Images {
		chunk, ok := u.chunker.ChunkImage(img.Caption, img.ID, meta)
		if !ok {
			u.logger.Warn("skipping image without viable caption",
				"document_id", doc.ID,
				"image_id", img.ID,
			)
			continue
		}
		chunks = append(chunks, chunk)
		if len(img.Data) > 0 {
			imageData[chunk.ID] = img.Data
		}
	}

	// Tables embedded alongside their surrounding text retrieve better than
	// either alone, so pair each table chunk with the leading text chunk.
	if len(textChunks) > 0 {
		for i, tableChunk := range tableChunks {
			composite := textChunks[0].Content + "\n\n" + tableChunk.Content
			components := []string{textChunks[0].ID, tableChunk.ID}
			chunks = append(chunks, u.chunker.ChunkComposite(composite, components, doc.ID, i, meta)...)
		}
	}

	return chunks, imageData
}

func (u *ProcessUseCase) embedChunks(ctx context.Context, chunks []domain.Chunk, imageData map[string][]byte) ([]domain.EmbeddedChunk, error) {
	embedded := make([]domain.EmbeddedChunk, 0, len(chunks))

	var textChunks []domain.Chunk
	for _, chunk := range chunks {
		if data, ok := imageData[chunk.ID]; ok {
			vector, err := u.embedder.EmbedImage(ctx, data)
			if err != nil {
				return nil, fmt.Errorf("embed image chunk %s: %w", chunk.ID, err)
			}
			embedded = append(embedded, domain.EmbeddedChunk{Chunk: chunk, Vector: vector})
			continue
		}
		textChunks = append(textChunks, chunk)
	}

	if len(textChunks) == 0 {
		return embedded, nil
	}

	texts := make([]string, len(textChunks))
	for i, chunk := range textChunks {
		texts[i] = chunk.Content
	}
	vectors, err := u.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(textChunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(textChunks))
	}
	for i, chunk := range textChunks {
		embedded = append(embedded, domain.EmbeddedChunk{Chunk: chunk, Vector: vectors[i]})
	}
	return embedded, nil
}
