package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/sop-rag/internal/core/domain"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	c := NewWithClient(client, time.Hour, nil)
	t.Cleanup(func() { _ = c.Close() })
	return c, server
}

func TestEmbeddingCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if _, ok := c.CachedEmbedding(ctx, "hello world"); ok {
		t.Fatalf("expected miss before caching")
	}

	c.CacheEmbedding(ctx, "hello world", []float32{0.1, 0.2}, 0)
	c.CacheEmbedding(ctx, "hello world", []float32{0.3, 0.4}, 0)

	vector, ok := c.CachedEmbedding(ctx, "hello world")
	if !ok {
		t.Fatalf("expected cached embedding")
	}
	if vector[0] != 0.3 || vector[1] != 0.4 {
		t.Fatalf("expected most recent write to win, got %v", vector)
	}
}

func TestEmbeddingKeyIgnoresCaseAndSpacing(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.CacheEmbedding(ctx, "Hello   World", []float32{1}, 0)
	if _, ok := c.CachedEmbedding(ctx, "hello world"); !ok {
		t.Fatalf("normalized inputs must share a key")
	}
}

func TestQueryResultCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	result := &domain.AnswerResult{
		Response:  "answer",
		Citations: []domain.Citation{{Index: 1, Source: "a.txt", ContentPreview: "preview"}},
		Metadata:  domain.AnswerMetadata{RetrievedChunks: 3, RerankedChunks: 2, QueryLength: 5},
	}
	c.CacheQueryResult(ctx, "what is x?", result, 0)

	cached, ok := c.CachedQueryResult(ctx, "what is x?")
	if !ok {
		t.Fatalf("expected cached result")
	}
	if cached.Response != "answer" || len(cached.Citations) != 1 || cached.Citations[0].Index != 1 {
		t.Fatalf("unexpected cached result %+v", cached)
	}
}

func TestQueryResultExpires(t *testing.T) {
	c, server := newTestCache(t)
	ctx := context.Background()

	c.CacheQueryResult(ctx, "q", &domain.AnswerResult{Response: "r"}, time.Minute)
	server.FastForward(2 * time.Minute)

	if _, ok := c.CachedQueryResult(ctx, "q"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestInvalidatePatternRemovesOnlyNamespace(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.CacheEmbedding(ctx, "text", []float32{1}, 0)
	c.CacheQueryResult(ctx, "q1", &domain.AnswerResult{Response: "a"}, 0)
	c.CacheQueryResult(ctx, "q2", &domain.AnswerResult{Response: "b"}, 0)

	n, err := c.Invalidate(ctx, QueryPrefix+"*")
	if err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 invalidated query entries, got %d", n)
	}
	if _, ok := c.CachedQueryResult(ctx, "q1"); ok {
		t.Fatalf("query entry should be gone")
	}
	if _, ok := c.CachedEmbedding(ctx, "text"); !ok {
		t.Fatalf("embedding entry must survive query invalidation")
	}
}

func TestStatsCountsEntriesPerNamespace(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.CacheEmbedding(ctx, "one", []float32{1}, 0)
	c.CacheEmbedding(ctx, "two", []float32{2}, 0)
	c.CacheQueryResult(ctx, "q", &domain.AnswerResult{Response: "a"}, 0)

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.EntryCounts["embedding"] != 2 || stats.EntryCounts["query"] != 1 {
		t.Fatalf("unexpected entry counts %v", stats.EntryCounts)
	}
}

func TestUnavailableBackendDegradesToMiss(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	c := NewWithClient(client, time.Hour, nil)
	server.Close()

	ctx := context.Background()
	c.CacheEmbedding(ctx, "text", []float32{1}, 0)
	if _, ok := c.CachedEmbedding(ctx, "text"); ok {
		t.Fatalf("expected miss when backend is down")
	}
	if _, ok := c.CachedQueryResult(ctx, "q"); ok {
		t.Fatalf("expected miss when backend is down")
	}
}

func TestClearAll(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.CacheEmbedding(ctx, "text", []float32{1}, 0)
	if err := c.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if _, ok := c.CachedEmbedding(ctx, "text"); ok {
		t.Fatalf("expected empty cache after clear")
	}
}
