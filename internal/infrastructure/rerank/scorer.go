// Package rerank talks to an external cross-encoder scoring service that
// evaluates (query, text) pairs jointly.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/sop-rag/internal/infrastructure/resilience"
)

type Scorer struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func NewScorer(baseURL, model string) *Scorer {
	return &Scorer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func NewScorerWithExecutor(baseURL, model string, executor *resilience.Executor) *Scorer {
	s := NewScorer(baseURL, model)
	s.executor = executor
	return s
}

func (s *Scorer) Score(ctx context.Context, query, text string) (float64, error) {
	var score float64
	call := func(callCtx context.Context) error {
		var err error
		score, err = s.score(callCtx, query, text)
		return err
	}

	if s.executor == nil {
		return score, call(ctx)
	}
	err := s.executor.Execute(ctx, "rerank.score", call, classifyScoreError)
	return score, err
}

func (s *Scorer) score(ctx context.Context, query, text string) (float64, error) {
	body, err := json.Marshal(map[string]any{
		"model": s.model,
		"query": query,
		"text":  text,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rerank score request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return 0, &statusError{statusCode: resp.StatusCode, status: resp.Status, body: string(raw)}
	}

	var scoreResp struct {
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&scoreResp); err != nil {
		return 0, fmt.Errorf("decode score response: %w", err)
	}
	return scoreResp.Score, nil
}

type statusError struct {
	statusCode int
	status     string
	body       string
}

func (e *statusError) Error() string {
	if strings.TrimSpace(e.body) == "" {
		return fmt.Sprintf("rerank score status: %s", e.status)
	}
	return fmt.Sprintf("rerank score status: %s: %s", e.status, strings.TrimSpace(e.body))
}

func classifyScoreError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var statusErr *statusError
	if errors.As(err, &statusErr) {
		switch statusErr.statusCode {
		case http.StatusRequestTimeout,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
