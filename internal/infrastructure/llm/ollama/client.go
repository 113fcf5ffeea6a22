package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/sop-rag/internal/core/ports"
	"github.com/kirillkom/sop-rag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func NewWithExecutor(baseURL string, executor *resilience.Executor) *Client {
	c := New(baseURL)
	c.executor = executor
	return c
}

// Embedder embeds text through the embedding model and images through a
// caption-then-embed round trip over the vision model.
type Embedder struct {
	client      *Client
	textModel   string
	visionModel string
}

func NewEmbedder(client *Client, textModel, visionModel string) *Embedder {
	return &Embedder{
		client:      client,
		textModel:   textModel,
		visionModel: visionModel,
	}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.textModel,
		"input": texts,
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.execute(ctx, "ollama.embed", func(callCtx context.Context) error {
		return e.client.postJSON(callCtx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, err
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func (e *Embedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image payload")
	}

	caption, err := e.caption(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("caption image: %w", err)
	}
	if strings.TrimSpace(caption) == "" {
		return nil, fmt.Errorf("vision model produced no caption")
	}
	return e.EmbedQuery(ctx, caption)
}

func (e *Embedder) caption(ctx context.Context, data []byte) (string, error) {
	request := map[string]any{
		"model":  e.visionModel,
		"prompt": "Describe this image in one concise paragraph.",
		"images": []string{base64.StdEncoding.EncodeToString(data)},
		"stream": false,
	}
	var response struct {
		Response string `json:"response"`
	}
	err := e.client.execute(ctx, "ollama.caption", func(callCtx context.Context) error {
		return e.client.postJSON(callCtx, "/api/generate", request, &response, "caption")
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

// Generator generates free text for a prompt against a caller-chosen model.
// Model fallback chains are the orchestrator's concern, not this adapter's.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, prompt string, opts ports.GenerateOptions) (string, error) {
	if strings.TrimSpace(opts.Model) == "" {
		return "", fmt.Errorf("generate: model is required")
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	request := map[string]any{
		"model":  opts.Model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": opts.Temperature,
		},
	}
	var response struct {
		Response string `json:"response"`
	}
	err := g.client.execute(ctx, "ollama.generate", func(callCtx context.Context) error {
		return g.client.postJSON(callCtx, "/api/generate", request, &response, "generate")
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func (g *Generator) ListModels(ctx context.Context) ([]string, error) {
	var response struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := g.client.getJSON(ctx, "/api/tags", &response, "list models"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(response.Models))
	for _, m := range response.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (g *Generator) Healthy(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := g.ListModels(healthCtx)
	return err == nil
}

func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	if c.executor == nil {
		return wrapTemporaryIfNeeded(operation, call(ctx))
	}
	err := c.executor.Execute(ctx, operation, call, classifyOllamaError)
	return wrapTemporaryIfNeeded(operation, err)
}
