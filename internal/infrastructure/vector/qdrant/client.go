package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/sop-rag/internal/core/domain"
)

// Client is a multi-collection qdrant wrapper. Collections are created lazily
// with cosine indexing on first write; point ids are derived from chunk ids
// so re-indexing the same chunk upserts instead of duplicating.
type Client struct {
	baseURL    string
	httpClient *http.Client

	ensureMu sync.Mutex
	ensured  map[string]int // collection -> vector size
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		ensured:    make(map[string]int),
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) Add(ctx context.Context, collection string, chunks []domain.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, ec := range chunks {
		if len(ec.Vector) == 0 {
			return fmt.Errorf("chunk %s has no vector", ec.Chunk.ID)
		}
	}

	if err := c.ensureCollection(ctx, collection, len(chunks[0].Vector)); err != nil {
		return err
	}

	points := make([]point, 0, len(chunks))
	for _, ec := range chunks {
		points = append(points, point{
			ID:     pointID(ec.Chunk.ID),
			Vector: ec.Vector,
			Payload: map[string]any{
				"chunk_id":    ec.Chunk.ID,
				"doc_id":      ec.Chunk.Metadata.DocumentID,
				"source_file": ec.Chunk.Metadata.SourceFile,
				"page":        ec.Chunk.Metadata.Page,
				"chunk_type":  string(ec.Chunk.Type),
				"token_count": ec.Chunk.TokenCount,
				"text":        ec.Chunk.Content,
			},
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, collection)
	return c.call(ctx, http.MethodPut, url, map[string]any{"points": points}, nil, "upsert points")
}

// Update replaces the indexed points for the given chunks: stale points are
// deleted by chunk id first, then the fresh vectors and payloads are written.
// Point ids are deterministic, so for an unchanged chunk id the write lands
// on the same point either way.
func (c *Client) Update(ctx context.Context, collection string, chunks []domain.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, 0, len(chunks))
	for _, ec := range chunks {
		ids = append(ids, ec.Chunk.ID)
	}
	if err := c.Delete(ctx, collection, ids); err != nil && !isNotFound(err) {
		return err
	}
	return c.Add(ctx, collection, chunks)
}

func (c *Client) Search(
	ctx context.Context,
	collection string,
	queryVector []float32,
	topK int,
	filter domain.SearchFilter,
) ([]domain.RetrievedResult, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        topK,
		"with_payload": true,
	}
	if f := documentFilter(filter); f != nil {
		reqBody["filter"] = f
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, collection)
	if err := c.call(ctx, http.MethodPost, url, reqBody, &searchResp, "search points"); err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedResult, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RetrievedResult{
			Chunk: domain.Chunk{
				ID:         stringPayload(r.Payload, "chunk_id"),
				Content:    stringPayload(r.Payload, "text"),
				Type:       domain.ChunkType(stringPayload(r.Payload, "chunk_type")),
				TokenCount: intPayload(r.Payload, "token_count"),
				Metadata: domain.ChunkMetadata{
					DocumentID: stringPayload(r.Payload, "doc_id"),
					SourceFile: stringPayload(r.Payload, "source_file"),
					Page:       intPayload(r.Payload, "page"),
				},
			},
			// Cosine scores from qdrant are similarities already.
			Similarity:       r.Score,
			SourceCollection: collection,
		})
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, collection string, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		ids = append(ids, pointID(id))
	}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, collection)
	return c.call(ctx, http.MethodPost, url, map[string]any{"points": ids}, nil, "delete points")
}

// DeleteByDocument removes every point belonging to the document and returns
// how many points the collection held for it beforehand.
func (c *Client) DeleteByDocument(ctx context.Context, collection, documentID string) (int, error) {
	filter := map[string]any{
		"must": []map[string]any{
			{"key": "doc_id", "match": map[string]any{"value": documentID}},
		},
	}

	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	countURL := fmt.Sprintf("%s/collections/%s/points/count", c.baseURL, collection)
	err := c.call(ctx, http.MethodPost, countURL, map[string]any{"filter": filter, "exact": true}, &countResp, "count points")
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	if countResp.Result.Count == 0 {
		return 0, nil
	}

	deleteURL := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, collection)
	if err := c.call(ctx, http.MethodPost, deleteURL, map[string]any{"filter": filter}, nil, "delete points"); err != nil {
		return 0, err
	}
	return countResp.Result.Count, nil
}

func (c *Client) Count(ctx context.Context, collection string) (int, error) {
	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/count", c.baseURL, collection)
	err := c.call(ctx, http.MethodPost, url, map[string]any{"exact": true}, &countResp, "count points")
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return countResp.Result.Count, nil
}

// Clear drops the collection; it is recreated lazily on the next write.
func (c *Client) Clear(ctx context.Context, collection string) error {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, collection)
	err := c.call(ctx, http.MethodDelete, url, nil, nil, "drop collection")
	if err != nil && !isNotFound(err) {
		return err
	}
	c.ensureMu.Lock()
	delete(c.ensured, collection)
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) ensureCollection(ctx context.Context, collection string, vectorSize int) error {
	c.ensureMu.Lock()
	if size, ok := c.ensured[collection]; ok && size == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, collection)
	err := c.call(ctx, http.MethodPut, url, reqBody, nil, "ensure collection")
	if err != nil && !isConflict(err) {
		return err
	}

	c.ensureMu.Lock()
	c.ensured[collection] = vectorSize
	c.ensureMu.Unlock()
	return nil
}

type statusError struct {
	operation  string
	statusCode int
	status     string
	body       string
}

func (e *statusError) Error() string {
	if strings.TrimSpace(e.body) == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.operation, e.status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.operation, e.status, strings.TrimSpace(e.body))
}

func (c *Client) call(ctx context.Context, method, url string, payload any, out any, operation string) error {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{
			operation:  operation,
			statusCode: resp.StatusCode,
			status:     resp.Status,
			body:       string(raw),
		}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
	}
	return nil
}

func documentFilter(filter domain.SearchFilter) map[string]any {
	if len(filter.DocumentIDs) == 0 {
		return nil
	}
	return map[string]any{
		"must": []map[string]any{
			{"key": "doc_id", "match": map[string]any{"any": filter.DocumentIDs}},
		},
	}
}

func isNotFound(err error) bool {
	var se *statusError
	return asStatusError(err, &se) && se.statusCode == http.StatusNotFound
}

func isConflict(err error) bool {
	var se *statusError
	return asStatusError(err, &se) && se.statusCode == http.StatusConflict
}

func asStatusError(err error, target **statusError) bool {
	se, ok := err.(*statusError)
	if !ok {
		return false
	}
	*target = se
	return true
}

// pointID maps a chunk id onto a deterministic UUID, which qdrant requires
// as the point id format.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

func stringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func intPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
