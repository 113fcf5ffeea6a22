package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/sop-rag/internal/core/domain"
)

const (
	EmbeddingPrefix = "embedding:"
	QueryPrefix     = "query:"

	defaultTTL = time.Hour

	scanBatch = 200
)

// RedisCache is a content-addressed cache for embeddings and query results.
// Keys are derived from a hash of the normalized input, so identical inputs
// map to the same key across processes. Reads and writes degrade to
// miss/no-op on backend errors; the pipeline must never block on the cache.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func New(addr string, db int, ttl time.Duration, logger *slog.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	return NewWithClient(client, ttl, logger)
}

func NewWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) CacheEmbedding(ctx context.Context, text string, vector []float32, ttl time.Duration) {
	c.set(ctx, embeddingKey(text), vector, ttl)
}

func (c *RedisCache) CachedEmbedding(ctx context.Context, text string) ([]float32, bool) {
	var vector []float32
	if !c.get(ctx, embeddingKey(text), &vector) {
		return nil, false
	}
	return vector, true
}

func (c *RedisCache) CacheQueryResult(ctx context.Context, query string, result *domain.AnswerResult, ttl time.Duration) {
	if result == nil {
		return
	}
	c.set(ctx, queryKey(query), result, ttl)
}

func (c *RedisCache) CachedQueryResult(ctx context.Context, query string) (*domain.AnswerResult, bool) {
	var result domain.AnswerResult
	if !c.get(ctx, queryKey(query), &result) {
		return nil, false
	}
	return &result, true
}

// Invalidate removes all keys matching the namespace pattern and returns how
// many were deleted. Unlike reads/writes this surfaces errors, because
// document deletion reports invalidation failures to the caller.
func (c *RedisCache) Invalidate(ctx context.Context, pattern string) (int, error) {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("delete cache keys: %w", err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func (c *RedisCache) ClearAll(ctx context.Context) error {
	if err := c.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("flush cache db: %w", err)
	}
	return nil
}

func (c *RedisCache) Stats(ctx context.Context) (domain.CacheStats, error) {
	stats := domain.CacheStats{
		EntryCounts: map[string]int{},
	}
	for _, prefix := range []string{EmbeddingPrefix, QueryPrefix} {
		n, err := c.countKeys(ctx, prefix+"*")
		if err != nil {
			return stats, err
		}
		stats.EntryCounts[strings.TrimSuffix(prefix, ":")] = n
	}

	// used_memory is informational only; tolerate backends without INFO.
	info, err := c.client.Info(ctx, "memory").Result()
	if err == nil {
		stats.UsedMemoryBytes = parseUsedMemory(info)
	}
	return stats, nil
}

func (c *RedisCache) countKeys(ctx context.Context, pattern string) (int, error) {
	var cursor uint64
	count := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return 0, fmt.Errorf("scan cache keys: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

func (c *RedisCache) set(ctx context.Context, key string, value any, ttl time.Duration) {
	payload, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache marshal failed", "key", key, "error", err)
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func (c *RedisCache) get(ctx context.Context, key string, out any) bool {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(payload, out); err != nil {
		c.logger.Warn("cache payload corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func embeddingKey(text string) string {
	return EmbeddingPrefix + hashNormalized(text)
}

func queryKey(query string) string {
	return QueryPrefix + hashNormalized(query)
}

// hashNormalized lowercases and collapses whitespace before hashing, so the
// same logical input always lands on the same key.
func hashNormalized(s string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "used_memory:"); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err == nil {
				return n
			}
		}
	}
	return 0
}
