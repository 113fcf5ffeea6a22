package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/sop-rag/internal/core/domain"
	"github.com/kirillkom/sop-rag/internal/core/ports"
)

type fakeEmbedder struct {
	queryVector []float32
	queryErr    error
	embedErr    error
	imageVector []float32

	queryCalls int
	embedCalls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.embedCalls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{0.1, 0.2}
	}
	return vectors, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	f.queryCalls++
	return f.queryVector, f.queryErr
}

func (f *fakeEmbedder) EmbedImage(_ context.Context, _ []byte) ([]float32, error) {
	if f.imageVector == nil {
		return []float32{0.9, 0.9}, nil
	}
	return f.imageVector, nil
}

type fakeIndex struct {
	mu          sync.Mutex
	results     map[string][]domain.RetrievedResult
	searchErrs  map[string]error
	added       map[string][]domain.EmbeddedChunk
	addErr      error
	deleted     map[string]int
	deleteErrs  map[string]error
	lastFilters map[string]domain.SearchFilter
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		results:     make(map[string][]domain.RetrievedResult),
		searchErrs:  make(map[string]error),
		added:       make(map[string][]domain.EmbeddedChunk),
		deleted:     make(map[string]int),
		deleteErrs:  make(map[string]error),
		lastFilters: make(map[string]domain.SearchFilter),
	}
}

func (f *fakeIndex) Add(_ context.Context, collection string, chunks []domain.EmbeddedChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added[collection] = append(f.added[collection], chunks...)
	return nil
}

func (f *fakeIndex) Update(ctx context.Context, collection string, chunks []domain.EmbeddedChunk) error {
	return f.Add(ctx, collection, chunks)
}

func (f *fakeIndex) Search(_ context.Context, collection string, _ []float32, _ int, filter domain.SearchFilter) ([]domain.RetrievedResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.searchErrs[collection]; ok {
		return nil, err
	}
	f.lastFilters[collection] = filter
	return f.results[collection], nil
}

func (f *fakeIndex) Delete(_ context.Context, _ string, _ []string) error { return nil }

func (f *fakeIndex) DeleteByDocument(_ context.Context, collection, _ string) (int, error) {
	if err, ok := f.deleteErrs[collection]; ok {
		return 0, err
	}
	return f.deleted[collection], nil
}

func (f *fakeIndex) Count(_ context.Context, _ string) (int, error) { return 0, nil }
func (f *fakeIndex) Clear(_ context.Context, _ string) error       { return nil }

type memoryCache struct {
	mu          sync.Mutex
	queries     map[string]*domain.AnswerResult
	invalidated int
	invalidErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{queries: make(map[string]*domain.AnswerResult)}
}

func (c *memoryCache) CacheEmbedding(_ context.Context, _ string, _ []float32, _ time.Duration) {}

func (c *memoryCache) CachedEmbedding(_ context.Context, _ string) ([]float32, bool) {
	return nil, false
}

func (c *memoryCache) CacheQueryResult(_ context.Context, query string, result *domain.AnswerResult, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *result
	c.queries[query] = &clone
}

func (c *memoryCache) CachedQueryResult(_ context.Context, query string) (*domain.AnswerResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, ok := c.queries[query]
	if !ok {
		return nil, false
	}
	clone := *result
	return &clone, true
}

func (c *memoryCache) Invalidate(_ context.Context, _ string) (int, error) {
	if c.invalidErr != nil {
		return 0, c.invalidErr
	}
	n := c.invalidated
	c.queries = make(map[string]*domain.AnswerResult)
	return n, nil
}

func (c *memoryCache) ClearAll(_ context.Context) error { return nil }

func (c *memoryCache) Stats(_ context.Context) (domain.CacheStats, error) {
	return domain.CacheStats{}, nil
}

type fakeGenerator struct {
	responses map[string]string
	errs      map[string]error
	healthy   bool

	mu      sync.Mutex
	models  []string
	prompts []string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string, opts ports.GenerateOptions) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.models = append(g.models, opts.Model)
	g.prompts = append(g.prompts, prompt)
	if err, ok := g.errs[opts.Model]; ok {
		return "", err
	}
	return g.responses[opts.Model], nil
}

func (g *fakeGenerator) ListModels(_ context.Context) ([]string, error) {
	return []string{"llama3.1:8b", "mistral:7b"}, nil
}

func (g *fakeGenerator) Healthy(_ context.Context) bool { return g.healthy }

type fakeScorer struct {
	scores map[string]float64
	err    error
	calls  int
}

func (s *fakeScorer) Score(_ context.Context, _, text string) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.scores[text], nil
}

type fakeRepo struct {
	mu       sync.Mutex
	docs     map[string]*domain.Document
	statuses map[string][]domain.DocumentStatus
	counts   map[string]int
	deleteErr error
}

func newFakeRepo(docs ...*domain.Document) *fakeRepo {
	repo := &fakeRepo{
		docs:     make(map[string]*domain.Document),
		statuses: make(map[string][]domain.DocumentStatus),
		counts:   make(map[string]int),
	}
	for _, doc := range docs {
		repo.docs[doc.ID] = doc
	}
	return repo
}

func (r *fakeRepo) Create(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
	}
	clone := *doc
	return &clone, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update status", fmt.Errorf("id %s", id))
	}
	doc.Status = status
	doc.Error = errMessage
	r.statuses[id] = append(r.statuses[id], status)
	return nil
}

func (r *fakeRepo) SetChunkCount(_ context.Context, id string, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[id] = count
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.docs, id)
	return nil
}

type fakeObjectStorage struct {
	mu        sync.Mutex
	files     map[string][]byte
	removeErr error
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{files: make(map[string][]byte)}
}

func (s *fakeObjectStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = raw
	return nil
}

func (s *fakeObjectStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.files[key]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *fakeObjectStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeErr != nil {
		return s.removeErr
	}
	delete(s.files, key)
	return nil
}

type fakeQueue struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (q *fakeQueue) PublishDocumentUploaded(_ context.Context, documentID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, documentID)
	return nil
}

func (q *fakeQueue) SubscribeDocumentUploaded(_ context.Context, _ func(context.Context, string) error) error {
	return nil
}

type fakeExtractor struct {
	content domain.ExtractedContent
	err     error
}

func (e *fakeExtractor) Extract(_ context.Context, _ *domain.Document) (domain.ExtractedContent, error) {
	return e.content, e.err
}

func textResult(id, content string, similarity float64, collection string) domain.RetrievedResult {
	return domain.RetrievedResult{
		Chunk: domain.Chunk{
			ID:      id,
			Content: content,
			Type:    domain.ChunkTypeText,
			Metadata: domain.ChunkMetadata{
				DocumentID: "doc-1",
				SourceFile: "sop.pdf",
			},
		},
		Similarity:       similarity,
		SourceCollection: collection,
	}
}
