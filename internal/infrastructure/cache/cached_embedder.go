package cache

import (
	"context"

	"github.com/kirillkom/sop-rag/internal/core/ports"
)

// CachedEmbedder decorates an embedder with the embedding cache so repeated
// content is never embedded twice.
type CachedEmbedder struct {
	inner ports.Embedder
	cache ports.ResultCache
}

func NewCachedEmbedder(inner ports.Embedder, cache ports.ResultCache) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		cache: cache,
	}
}

func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vector, ok := e.cache.CachedEmbedding(ctx, text); ok {
		return vector, nil
	}
	vector, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vector) > 0 {
		e.cache.CacheEmbedding(ctx, text, vector, 0)
	}
	return vector, nil
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	missing := make([]string, 0, len(texts))
	missingIdx := make([]int, 0, len(texts))
	for i, text := range texts {
		if vector, ok := e.cache.CachedEmbedding(ctx, text); ok {
			out[i] = vector
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := e.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, idx := range missingIdx {
		if j >= len(vectors) {
			break
		}
		out[idx] = vectors[j]
		if len(vectors[j]) > 0 {
			e.cache.CacheEmbedding(ctx, missing[j], vectors[j], 0)
		}
	}
	return out, nil
}

// EmbedImage is passed through; image bytes are not content-addressed here.
func (e *CachedEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	return e.inner.EmbedImage(ctx, data)
}
