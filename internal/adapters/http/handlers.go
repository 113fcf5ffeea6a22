package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kirillkom/sop-rag/internal/core/domain"
)

// maxUploadBytes bounds multipart uploads; larger documents belong in a
// side channel, not an HTTP request.
const maxUploadBytes = 64 << 20

func (s *server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var q domain.QueryContext
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	result, err := s.deps.Query.Answer(r.Context(), q)
	if err != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveQuery("error", false)
		}
		writeDomainError(w, err)
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveQuery("ok", result.Metadata.CacheHit)
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var q domain.QueryContext
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	results, err := s.deps.Query.Retrieve(r.Context(), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":  q.Query,
		"count":  len(results),
		"chunks": results,
	})
}

func (s *server) handleQueryHealth(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Query.Healthy(r.Context()) {
		writeError(w, http.StatusServiceUnavailable, "generation backend unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required: "+err.Error())
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	doc, err := s.deps.Ingestor.Upload(r.Context(), header.Filename, mimeType, file)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (s *server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	doc, err := s.deps.Documents.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	report, err := s.deps.Remover.Remove(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	cacheStats, err := s.deps.Cache.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("cache stats: %v", err))
		return
	}

	vectorCounts := make(map[string]int, len(domain.AllCollections()))
	for _, collection := range domain.AllCollections() {
		count, err := s.deps.Index.Count(r.Context(), collection)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("vector count %s: %v", collection, err))
			return
		}
		vectorCounts[collection] = count
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cache":   cacheStats,
		"vectors": vectorCounts,
	})
}
