package domain

// SearchFilter narrows a vector search. Empty DocumentIDs means no filter.
type SearchFilter struct {
	DocumentIDs []string
}

// RetrievedResult is one vector-search hit. Similarity is the cosine score
// from the index; RelevanceScore is set only after cross-encoder reranking.
type RetrievedResult struct {
	Chunk            Chunk    `json:"chunk"`
	Similarity       float64  `json:"similarity"`
	SourceCollection string   `json:"source_collection"`
	RelevanceScore   *float64 `json:"relevance_score,omitempty"`
}

// QueryContext carries one question through the pipeline. Zero values fall
// back to the orchestrator's configured defaults.
type QueryContext struct {
	Query        string   `json:"query"`
	TopK         int      `json:"top_k,omitempty"`
	RerankTopK   int      `json:"rerank_top_k,omitempty"`
	DocumentIDs  []string `json:"document_ids,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
}

// Citation points an answer back at a source chunk. Index is 1-based and
// matches the [Source N] markers in the assembled context.
type Citation struct {
	Index          int    `json:"index"`
	Source         string `json:"source"`
	Page           int    `json:"page,omitempty"`
	ContentPreview string `json:"content_preview"`
}

type AnswerMetadata struct {
	RetrievedChunks int    `json:"retrieved_chunks"`
	RerankedChunks  int    `json:"reranked_chunks"`
	QueryLength     int    `json:"query_length"`
	DurationMS      int64  `json:"duration_ms"`
	CacheHit        bool   `json:"cache_hit"`
	Model           string `json:"model,omitempty"`
}

type AnswerResult struct {
	Response  string         `json:"response"`
	Citations []Citation     `json:"citations"`
	Metadata  AnswerMetadata `json:"metadata"`
}

// CacheStats reports cache usage per key namespace.
type CacheStats struct {
	UsedMemoryBytes int64          `json:"used_memory_bytes"`
	EntryCounts     map[string]int `json:"entry_counts"`
}

// DeletionReport summarizes a best-effort document removal. Errors holds
// human-readable failures from steps that did not stop the removal.
type DeletionReport struct {
	DocumentID       string         `json:"document_id"`
	VectorsDeleted   map[string]int `json:"vectors_deleted"`
	CacheInvalidated int            `json:"cache_invalidated"`
	Errors           []string       `json:"errors,omitempty"`
}
