// Package bootstrap wires configuration, adapters and use cases into a
// runnable application graph.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/sop-rag/internal/config"
	"github.com/kirillkom/sop-rag/internal/core/ports"
	"github.com/kirillkom/sop-rag/internal/core/usecase"
	"github.com/kirillkom/sop-rag/internal/infrastructure/cache"
	"github.com/kirillkom/sop-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/sop-rag/internal/infrastructure/extractor"
	"github.com/kirillkom/sop-rag/internal/infrastructure/llm/ollama"
	natsq "github.com/kirillkom/sop-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/sop-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/sop-rag/internal/infrastructure/rerank"
	"github.com/kirillkom/sop-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/sop-rag/internal/infrastructure/storage/localfs"
	miniostore "github.com/kirillkom/sop-rag/internal/infrastructure/storage/minio"
	"github.com/kirillkom/sop-rag/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/sop-rag/internal/observability/logging"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger

	DB        *sql.DB
	Documents *postgres.DocumentRepository
	Storage   ports.ObjectStorage
	Queue     *natsq.Queue
	Cache     *cache.RedisCache
	Index     *qdrant.Client
	Embedder  ports.Embedder
	Generator ports.TextGenerator

	QueryUC   *usecase.QueryUseCase
	IngestUC  *usecase.IngestUseCase
	ProcessUC *usecase.ProcessUseCase
	RemoveUC  *usecase.RemoveDocumentUseCase

	closers []func()
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.LogLevel)

	app := &App{Config: cfg, Logger: logger}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	app.DB = db
	app.closers = append(app.closers, func() { _ = db.Close() })

	app.Documents = postgres.NewDocumentRepository(db)
	if err := app.Documents.EnsureSchema(ctx); err != nil {
		app.Close()
		return nil, err
	}

	app.Storage, err = buildStorage(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	queue, err := natsq.New(cfg.NATSURL, cfg.NATSSubject, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Queue = queue
	app.closers = append(app.closers, queue.Close)

	app.Cache = cache.New(cfg.RedisAddr, cfg.RedisDB, cfg.CacheTTL(), logger)
	app.Index = qdrant.New(cfg.QdrantURL)

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	ollamaClient := ollama.NewWithExecutor(cfg.OllamaURL, executor)
	app.Embedder = cache.NewCachedEmbedder(
		ollama.NewEmbedder(ollamaClient, cfg.OllamaEmbedModel, cfg.OllamaVisionModel),
		app.Cache,
	)
	app.Generator = ollama.NewGenerator(ollamaClient)

	var scorer ports.PairScorer
	if cfg.RerankerURL != "" {
		scorer = rerank.NewScorerWithExecutor(cfg.RerankerURL, cfg.RerankerModel, executor)
	}
	reranker := usecase.NewReranker(scorer, logger)

	engine := chunking.NewEngine(cfg.ChunkSize, cfg.ChunkOverlap)
	registry := extractor.NewRegistry(app.Storage, logger)

	app.QueryUC = usecase.NewQueryUseCase(
		app.Embedder, app.Index, app.Cache, reranker, app.Generator,
		usecase.QueryConfig{
			DefaultTopK:     cfg.RAGTopK,
			RerankThreshold: cfg.RAGRerankThreshold,
			ContextBudget:   cfg.RAGContextBudget,
			GenerateModel:   cfg.OllamaGenModel,
			FallbackModel:   cfg.OllamaFallbackModel,
			GenerateTimeout: cfg.GenerateTimeout(),
			Temperature:     cfg.GenerateTemperature,
			CacheTTL:        cfg.CacheTTL(),
		},
		logger,
	)
	app.IngestUC = usecase.NewIngestUseCase(app.Documents, app.Storage, app.Queue, logger)
	app.ProcessUC = usecase.NewProcessUseCase(app.Documents, registry, engine, app.Embedder, app.Index, logger)
	app.RemoveUC = usecase.NewRemoveDocumentUseCase(app.Documents, app.Index, app.Cache, app.Storage, logger)

	return app, nil
}

func buildStorage(ctx context.Context, cfg *config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "minio":
		store, err := miniostore.New(miniostore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "local":
		return localfs.New(cfg.StoragePath)
	default:
		return nil, fmt.Errorf("bootstrap: unknown storage backend %q", cfg.StorageBackend)
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
