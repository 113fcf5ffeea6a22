package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/sop-rag/internal/core/domain"
	"github.com/kirillkom/sop-rag/internal/core/ports"
)

const (
	noRelevantInformationResponse = "I could not find relevant information in the indexed documents to answer your question."
	degradedGenerationResponse    = "I found relevant sources but could not generate an answer right now. Please try again in a moment."
)

type QueryConfig struct {
	Collections []string
	DefaultTopK int
	// RerankThreshold drops reranked chunks scoring below it. The zero value
	// is the intended default: cross-encoder scores are signed and negative
	// means not relevant.
	RerankThreshold float64
	ContextBudget   int
	GenerateModel   string
	FallbackModel   string
	GenerateTimeout time.Duration
	Temperature     float64
	SystemPrompt    string
	CacheTTL        time.Duration
}

func (c QueryConfig) normalize() QueryConfig {
	out := c
	if len(out.Collections) == 0 {
		out.Collections = domain.AllCollections()
	}
	if out.DefaultTopK <= 0 {
		out.DefaultTopK = 10
	}
	if out.ContextBudget <= 0 {
		out.ContextBudget = 4000
	}
	if out.GenerateTimeout <= 0 {
		out.GenerateTimeout = 90 * time.Second
	}
	if out.CacheTTL <= 0 {
		out.CacheTTL = time.Hour
	}
	return out
}

// QueryUseCase runs the full answering pipeline: cache lookup, query
// embedding, concurrent multi-collection retrieval, cross-encoder reranking,
// context assembly and generation with model fallback.
type QueryUseCase struct {
	embedder  ports.Embedder
	index     ports.VectorIndex
	cache     ports.ResultCache
	reranker  *Reranker
	generator ports.TextGenerator
	cfg       QueryConfig
	logger    *slog.Logger
}

func NewQueryUseCase(
	embedder ports.Embedder,
	index ports.VectorIndex,
	cache ports.ResultCache,
	reranker *Reranker,
	generator ports.TextGenerator,
	cfg QueryConfig,
	logger *slog.Logger,
) *QueryUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryUseCase{
		embedder:  embedder,
		index:     index,
		cache:     cache,
		reranker:  reranker,
		generator: generator,
		cfg:       cfg.normalize(),
		logger:    logger,
	}
}

func (u *QueryUseCase) Answer(ctx context.Context, q domain.QueryContext) (*domain.AnswerResult, error) {
	query := strings.TrimSpace(q.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", fmt.Errorf("query is empty"))
	}
	started := time.Now()

	if cached, ok := u.cache.CachedQueryResult(ctx, query); ok {
		cached.Metadata.CacheHit = true
		cached.Metadata.DurationMS = time.Since(started).Milliseconds()
		return cached, nil
	}

	topK := q.TopK
	if topK <= 0 {
		topK = u.cfg.DefaultTopK
	}
	// Unset rerank depth follows the effective topK so callers tuning one
	// knob get a consistent pipeline.
	rerankK := q.RerankTopK
	if rerankK <= 0 {
		rerankK = topK
	}

	queryVector, err := u.embedder.EmbedQuery(ctx, query)
	if err != nil || len(queryVector) == 0 {
		u.logger.Warn("query embedding unavailable", "error", err)
		return u.emptyAnswer(query, started), nil
	}

	retrieved := u.searchCollections(ctx, queryVector, topK, domain.SearchFilter{DocumentIDs: q.DocumentIDs})
	if len(retrieved) == 0 {
		return u.emptyAnswer(query, started), nil
	}

	reranked := retrieved
	if len(retrieved) > rerankK {
		reranked = u.reranker.Rerank(ctx, query, retrieved, rerankK, u.cfg.RerankThreshold)
	}

	contextText, used := assembleContext(reranked, u.cfg.ContextBudget)
	citations := buildCitations(reranked, used)
	prompt := buildAnswerPrompt(firstNonEmpty(q.SystemPrompt, u.cfg.SystemPrompt), contextText, query)

	response, model, genErr := u.generate(ctx, prompt)
	if genErr != nil {
		u.logger.Error("generation failed on all models", "error", genErr)
		response = degradedGenerationResponse
	}

	result := &domain.AnswerResult{
		Response:  response,
		Citations: citations,
		Metadata: domain.AnswerMetadata{
			RetrievedChunks: len(retrieved),
			RerankedChunks:  len(reranked),
			QueryLength:     len(query),
			DurationMS:      time.Since(started).Milliseconds(),
			Model:           model,
		},
	}

	if genErr == nil && ctx.Err() == nil {
		u.cache.CacheQueryResult(ctx, query, result, u.cfg.CacheTTL)
	}
	return result, nil
}

// Retrieve runs the pipeline up to (optional) reranking without generation.
func (u *QueryUseCase) Retrieve(ctx context.Context, q domain.QueryContext) ([]domain.RetrievedResult, error) {
	query := strings.TrimSpace(q.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("query is empty"))
	}

	topK := q.TopK
	if topK <= 0 {
		topK = u.cfg.DefaultTopK
	}

	queryVector, err := u.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rerankK := q.RerankTopK
	if rerankK <= 0 {
		rerankK = topK
	}

	results := u.searchCollections(ctx, queryVector, topK, domain.SearchFilter{DocumentIDs: q.DocumentIDs})
	if len(results) > rerankK {
		results = u.reranker.Rerank(ctx, query, results, rerankK, u.cfg.RerankThreshold)
	}
	return results, nil
}

func (u *QueryUseCase) Healthy(ctx context.Context) bool {
	return u.generator.Healthy(ctx)
}

// searchCollections fans out over all configured collections concurrently.
// A failing collection degrades to empty results rather than failing the
// query; ties in similarity keep the configured collection order.
func (u *QueryUseCase) searchCollections(ctx context.Context, queryVector []float32, topK int, filter domain.SearchFilter) []domain.RetrievedResult {
	perCollection := make([][]domain.RetrievedResult, len(u.cfg.Collections))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, collection := range u.cfg.Collections {
		group.Go(func() error {
			results, err := u.index.Search(groupCtx, collection, queryVector, topK, filter)
			if err != nil {
				u.logger.Warn("collection search failed",
					"collection", collection,
					"error", err,
				)
				return nil
			}
			perCollection[i] = results
			return nil
		})
	}
	_ = group.Wait()

	var merged []domain.RetrievedResult
	for _, results := range perCollection {
		merged = append(merged, results...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})

	limit := topK * len(u.cfg.Collections)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// generate tries the primary model and falls back once. Cancelled contexts
// skip the fallback.
func (u *QueryUseCase) generate(ctx context.Context, prompt string) (string, string, error) {
	opts := ports.GenerateOptions{
		Model:       u.cfg.GenerateModel,
		Temperature: u.cfg.Temperature,
		Timeout:     u.cfg.GenerateTimeout,
	}

	response, err := u.generator.Generate(ctx, prompt, opts)
	if err == nil {
		return response, opts.Model, nil
	}
	if ctx.Err() != nil || u.cfg.FallbackModel == "" {
		return "", "", err
	}

	u.logger.Warn("primary model failed, trying fallback",
		"model", u.cfg.GenerateModel,
		"fallback", u.cfg.FallbackModel,
		"error", err,
	)
	opts.Model = u.cfg.FallbackModel
	response, fallbackErr := u.generator.Generate(ctx, prompt, opts)
	if fallbackErr != nil {
		return "", "", fmt.Errorf("primary: %w; fallback: %w", err, fallbackErr)
	}
	return response, opts.Model, nil
}

func (u *QueryUseCase) emptyAnswer(query string, started time.Time) *domain.AnswerResult {
	return &domain.AnswerResult{
		Response:  noRelevantInformationResponse,
		Citations: []domain.Citation{},
		Metadata: domain.AnswerMetadata{
			QueryLength: len(query),
			DurationMS:  time.Since(started).Milliseconds(),
		},
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
