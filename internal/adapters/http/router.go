// Package http exposes the REST surface of the service.
package http

import (
	"log/slog"
	"net/http"

	"github.com/kirillkom/sop-rag/internal/core/ports"
	"github.com/kirillkom/sop-rag/internal/observability/metrics"
)

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type Deps struct {
	Query     ports.QueryService
	Ingestor  ports.DocumentIngestor
	Remover   ports.DocumentRemover
	Documents ports.DocumentRepository
	Cache     ports.ResultCache
	Index     ports.VectorIndex
	Metrics   *metrics.HTTPMetrics
	Logger    *slog.Logger
	RateLimit RateLimitConfig
}

func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &server{deps: deps}

	mux := http.NewServeMux()
	s.route(mux, "POST /v1/query", "/v1/query", s.handleAnswer)
	s.route(mux, "POST /v1/query/retrieve", "/v1/query/retrieve", s.handleRetrieve)
	s.route(mux, "GET /v1/query/health", "/v1/query/health", s.handleQueryHealth)
	s.route(mux, "POST /v1/documents", "/v1/documents", s.handleUpload)
	s.route(mux, "GET /v1/documents/{id}", "/v1/documents/{id}", s.handleGetDocument)
	s.route(mux, "DELETE /v1/documents/{id}", "/v1/documents/{id}", s.handleDeleteDocument)
	s.route(mux, "GET /v1/stats", "/v1/stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	var handler http.Handler = mux
	if deps.RateLimit.RPS > 0 {
		handler = rateLimitMiddleware(deps.RateLimit, handler)
	}
	handler = accessLogMiddleware(deps.Logger, handler)
	handler = requestIDMiddleware(handler)
	return handler
}

type server struct {
	deps Deps
}

func (s *server) route(mux *http.ServeMux, pattern, label string, handler http.HandlerFunc) {
	if s.deps.Metrics != nil {
		mux.Handle(pattern, s.deps.Metrics.Middleware(label, handler))
		return
	}
	mux.Handle(pattern, handler)
}

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
