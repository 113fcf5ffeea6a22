package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kirillkom/sop-rag/internal/core/domain"
	"github.com/kirillkom/sop-rag/internal/core/ports"
)

// Reranker re-orders vector-search hits with a cross-encoder. Scoring
// failures fall back to the vector ordering instead of failing the query.
type Reranker struct {
	scorer ports.PairScorer
	logger *slog.Logger
}

func NewReranker(scorer ports.PairScorer, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{scorer: scorer, logger: logger}
}

// Rerank scores every (query, chunk) pair jointly, drops pairs scoring below
// threshold and returns the topK best of what remains. Cross-encoder logits
// are signed, so the zero threshold already cuts chunks the model considers
// irrelevant. The sort is stable, so equal scores keep their vector-search
// order. The fallback path on scorer failure keeps the unfiltered vector
// ordering because no relevance scores exist to filter on.
func (r *Reranker) Rerank(ctx context.Context, query string, results []domain.RetrievedResult, topK int, threshold float64) []domain.RetrievedResult {
	if topK <= 0 || topK > len(results) {
		topK = len(results)
	}
	if r.scorer == nil || len(results) == 0 {
		return results[:topK]
	}

	scored := make([]domain.RetrievedResult, len(results))
	copy(scored, results)
	for i := range scored {
		score, err := r.scorer.Score(ctx, query, scored[i].Chunk.Content)
		if err != nil {
			r.logger.Warn("rerank scoring failed, keeping vector order",
				"chunk_id", scored[i].Chunk.ID,
				"error", err,
			)
			return results[:topK]
		}
		s := score
		scored[i].RelevanceScore = &s
	}

	scored = FilterLowScores(scored, threshold)
	sort.SliceStable(scored, func(i, j int) bool {
		return *scored[i].RelevanceScore > *scored[j].RelevanceScore
	})
	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK]
}

// ComputeRelevanceScore scores a single pair directly.
func (r *Reranker) ComputeRelevanceScore(ctx context.Context, query, text string) (float64, error) {
	if r.scorer == nil {
		return 0, domain.WrapError(domain.ErrUnavailable, "compute relevance", fmt.Errorf("no scorer configured"))
	}
	return r.scorer.Score(ctx, query, text)
}

// FilterLowScores drops reranked results below threshold. Results without a
// relevance score pass through untouched.
func FilterLowScores(results []domain.RetrievedResult, threshold float64) []domain.RetrievedResult {
	kept := make([]domain.RetrievedResult, 0, len(results))
	for _, result := range results {
		if result.RelevanceScore != nil && *result.RelevanceScore < threshold {
			continue
		}
		kept = append(kept, result)
	}
	return kept
}

// GroupSimilarResults splits a score-ordered result list into groups of
// near-equal relevance. A new group starts when a result's score falls more
// than (1 - proximity) below the group anchor.
func GroupSimilarResults(results []domain.RetrievedResult, proximity float64) [][]domain.RetrievedResult {
	if len(results) == 0 {
		return nil
	}

	gap := 1.0 - proximity
	var groups [][]domain.RetrievedResult
	current := []domain.RetrievedResult{results[0]}
	anchor := scoreOf(results[0])

	for _, result := range results[1:] {
		if anchor-scoreOf(result) > gap {
			groups = append(groups, current)
			current = nil
			anchor = scoreOf(result)
		}
		current = append(current, result)
	}
	return append(groups, current)
}

func scoreOf(result domain.RetrievedResult) float64 {
	if result.RelevanceScore != nil {
		return *result.RelevanceScore
	}
	return result.Similarity
}
