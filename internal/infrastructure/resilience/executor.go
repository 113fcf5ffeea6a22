// Package resilience wraps calls to the ollama and reranker upstreams in a
// bounded retry loop behind a per-operation circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrorClassification tells the executor what to do with a failed call:
// whether another attempt may help and whether the breaker should count the
// failure against the upstream.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

// ErrorClassifier maps an upstream error onto a classification. A nil
// classifier treats every error as final and breaker-visible.
type ErrorClassifier func(err error) ErrorClassification

// Executor runs upstream calls under the configured retry and breaker
// policies. Breakers are keyed by operation name, so a dead reranker cannot
// open the circuit for generation.
type Executor struct {
	retry   RetryPolicy
	breaker BreakerPolicy

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewExecutor(cfg Config) *Executor {
	cfg = cfg.withDefaults()
	return &Executor{
		retry:    cfg.Retry,
		breaker:  cfg.Breaker,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classify ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: nil call for operation %q", operation)
	}
	if operation == "" {
		operation = "unnamed"
	}
	if classify == nil {
		classify = func(error) ErrorClassification {
			return ErrorClassification{RecordFailure: true}
		}
	}

	if e.breaker.Disabled {
		return e.attempt(ctx, operation, fn, classify)
	}

	cb := e.breakerFor(operation, classify)
	_, err := cb.Execute(func() (any, error) {
		return nil, e.attempt(ctx, operation, fn, classify)
	})
	return err
}

// attempt runs the retry loop. The last upstream error is returned as-is so
// callers can still inspect status codes after exhausted retries.
func (e *Executor) attempt(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classify ErrorClassifier,
) error {
	var lastErr error
	for n := 0; n < e.retry.Attempts; n++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !classify(lastErr).Retryable || n == e.retry.Attempts-1 {
			return lastErr
		}

		wait := e.backoff(n)
		slog.Warn("upstream call retried",
			"operation", operation,
			"attempt", n+1,
			"wait", wait,
			"error", lastErr,
		)
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(wait):
		}
	}
	return lastErr
}

// backoff doubles per attempt: Base, 2*Base, 4*Base, capped at Cap.
func (e *Executor) backoff(attempt int) time.Duration {
	d := e.retry.Base << attempt
	if d <= 0 || d > e.retry.Cap {
		d = e.retry.Cap
	}
	return d
}

func (e *Executor) breakerFor(operation string, classify ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[operation]; ok {
		return cb
	}

	p := e.breaker
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        operation,
		MaxRequests: p.ProbeRequests,
		Timeout:     p.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= p.MinSamples &&
				float64(counts.TotalFailures) >= p.FailureRatio*float64(counts.Requests)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("breaker state changed",
				"operation", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	e.breakers[operation] = cb
	return cb
}

// IsCircuitOpen reports whether err came from an open or saturated breaker
// rather than from the upstream itself.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
