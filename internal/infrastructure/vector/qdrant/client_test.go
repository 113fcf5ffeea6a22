package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/sop-rag/internal/core/domain"
)

func embedded(id, docID, text string, vector []float32) domain.EmbeddedChunk {
	return domain.EmbeddedChunk{
		Chunk: domain.Chunk{
			ID:         id,
			Content:    text,
			Type:       domain.ChunkTypeText,
			TokenCount: 4,
			Metadata:   domain.ChunkMetadata{DocumentID: docID, SourceFile: "a.txt"},
		},
		Vector: vector,
	}
}

func TestAddEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/text_chunks":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/text_chunks/points":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL)
	chunks := []domain.EmbeddedChunk{embedded("c1", "doc-1", "a", []float32{0.1, 0.2})}

	if err := client.Add(context.Background(), domain.CollectionText, chunks); err != nil {
		t.Fatalf("first Add() error = %v", err)
	}
	if err := client.Add(context.Background(), domain.CollectionText, chunks); err != nil {
		t.Fatalf("second Add() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected one ensure-collection call, got %d", got)
	}
}

func TestAddUsesDeterministicPointIDs(t *testing.T) {
	var captured []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/text_chunks/points" {
			var body struct {
				Points []struct {
					ID string `json:"id"`
				} `json:"points"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("decode upsert: %v", err)
			}
			for _, p := range body.Points {
				captured = append(captured, p.ID)
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := New(server.URL)
	chunks := []domain.EmbeddedChunk{embedded("c1", "doc-1", "a", []float32{0.1})}
	for range 2 {
		if err := client.Add(context.Background(), domain.CollectionText, chunks); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if len(captured) != 2 || captured[0] != captured[1] {
		t.Fatalf("expected identical point ids for identical chunk ids, got %v", captured)
	}
}

func TestUpdateDeletesStalePointsBeforeUpsert(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := New(server.URL)
	chunks := []domain.EmbeddedChunk{embedded("c1", "doc-1", "revised text", []float32{0.3, 0.4})}

	if err := client.Update(context.Background(), domain.CollectionText, chunks); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	var deleteAt, upsertAt = -1, -1
	for i, call := range calls {
		switch call {
		case "POST /collections/text_chunks/points/delete":
			deleteAt = i
		case "PUT /collections/text_chunks/points":
			upsertAt = i
		}
	}
	if deleteAt == -1 || upsertAt == -1 {
		t.Fatalf("expected both delete and upsert calls, got %v", calls)
	}
	if deleteAt > upsertAt {
		t.Fatalf("stale points must be deleted before the upsert, got %v", calls)
	}
}

func TestUpdateToleratesMissingCollectionOnDelete(t *testing.T) {
	var upserted bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/collections/text_chunks/points/delete" {
			http.NotFound(w, r)
			return
		}
		if r.Method == http.MethodPut && r.URL.Path == "/collections/text_chunks/points" {
			upserted = true
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := New(server.URL)
	chunks := []domain.EmbeddedChunk{embedded("c1", "doc-1", "a", []float32{0.1})}

	if err := client.Update(context.Background(), domain.CollectionText, chunks); err != nil {
		t.Fatalf("Update() on fresh collection error = %v", err)
	}
	if !upserted {
		t.Fatalf("expected the upsert to proceed when the delete finds nothing")
	}
}

func TestSearchRebuildsChunksFromPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/collections/table_chunks/points/search" {
			_, _ = w.Write([]byte(`{"result":[
				{"score":0.91,"payload":{"chunk_id":"c1","doc_id":"doc-1","source_file":"sop.xlsx","page":2,"chunk_type":"table","token_count":12,"text":"name | value"}}
			]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL)
	results, err := client.Search(context.Background(), domain.CollectionTable, []float32{0.1, 0.2}, 5, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	got := results[0]
	if got.Similarity != 0.91 || got.SourceCollection != domain.CollectionTable {
		t.Fatalf("unexpected retrieval annotations %+v", got)
	}
	if got.Chunk.ID != "c1" || got.Chunk.Type != domain.ChunkTypeTable || got.Chunk.Metadata.Page != 2 {
		t.Fatalf("payload not rebuilt into chunk: %+v", got.Chunk)
	}
}

func TestSearchAppliesDocumentFilter(t *testing.T) {
	var capturedFilter map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		capturedFilter, _ = body["filter"].(map[string]any)
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL)
	_, err := client.Search(context.Background(), domain.CollectionText, []float32{0.1}, 5, domain.SearchFilter{DocumentIDs: []string{"doc-1"}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if capturedFilter == nil {
		t.Fatalf("expected a doc_id filter in the search request")
	}
}

func TestDeleteByDocumentReturnsPriorCount(t *testing.T) {
	var deleteCalled bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/text_chunks/points/count":
			_, _ = w.Write([]byte(`{"result":{"count":7}}`))
		case "/collections/text_chunks/points/delete":
			deleteCalled = true
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL)
	n, err := client.DeleteByDocument(context.Background(), domain.CollectionText, "doc-1")
	if err != nil {
		t.Fatalf("DeleteByDocument() error = %v", err)
	}
	if n != 7 || !deleteCalled {
		t.Fatalf("expected 7 deleted with delete call, got n=%d called=%v", n, deleteCalled)
	}
}

func TestCountTreatsMissingCollectionAsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL)
	n, err := client.Count(context.Background(), domain.CollectionImage)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 for missing collection, got %d", n)
	}
}

func TestErrorIncludesResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "wrong vector size", http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(server.URL)
	err := client.Add(context.Background(), domain.CollectionText, []domain.EmbeddedChunk{embedded("c1", "doc-1", "a", []float32{0.1})})
	if err == nil || !strings.Contains(err.Error(), "wrong vector size") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}
