// Package bootstrap wires the capability adapters into the core use cases.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkravchenko/groundedqa/internal/config"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
	"github.com/mkravchenko/groundedqa/internal/core/usecase"
	"github.com/mkravchenko/groundedqa/internal/infrastructure/chunking"
	"github.com/mkravchenko/groundedqa/internal/infrastructure/extractor"
	"github.com/mkravchenko/groundedqa/internal/infrastructure/language"
	"github.com/mkravchenko/groundedqa/internal/infrastructure/llm/ollama"
	natsqueue "github.com/mkravchenko/groundedqa/internal/infrastructure/queue/nats"
	"github.com/mkravchenko/groundedqa/internal/infrastructure/repository/postgres"
	"github.com/mkravchenko/groundedqa/internal/infrastructure/resilience"
	"github.com/mkravchenko/groundedqa/internal/infrastructure/storage/localfs"
	"github.com/mkravchenko/groundedqa/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Bus       *natsqueue.Bus
	Documents ports.DocumentRepository
	Settings  ports.SettingsStore

	Ingestor ports.DocumentIngestor
	Querier  ports.QueryAnswerer

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	documents := postgres.NewDocumentRepository(db)
	if err := documents.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	settings := postgres.NewSettingsRepository(db, time.Duration(cfg.SettingsCacheTTLSeconds)*time.Second)
	queryResults := postgres.NewQueryResultRepository(db)

	blobs, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init blob storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	bus, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSIngestSubject, cfg.NATSQuerySubject, natsqueue.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init job bus: %w", err)
	}

	llmClient := ollama.New(cfg.OllamaURL, cfg.OllamaChatModel, cfg.OllamaEmbedModel, cfg.OllamaVisionModel, ollama.Options{
		ChatTimeout:        time.Duration(cfg.ChatTimeoutSeconds) * time.Second,
		EmbedTimeout:       time.Duration(cfg.EmbedTimeoutSeconds) * time.Second,
		ResilienceExecutor: executor,
	})
	embedder := ollama.NewEmbedder(llmClient, float64(cfg.EmbedRequestsPerSecond))
	vision := ollama.NewVision(llmClient)
	reranker := ollama.NewReranker(llmClient)

	index := qdrant.New(cfg.QdrantURL)
	tagger := language.New()

	treeBuilder := usecase.NewTreeBuilder()
	summarizer := usecase.NewSummarizer(llmClient, logger)
	qaGen := usecase.NewQAGenerator(llmClient, logger)
	chunker := chunking.New(tagger, llmClient)

	ingestor := usecase.NewIngestionOrchestrator(
		documents,
		settings,
		blobs,
		extractor.NewDispatcher(),
		vision,
		treeBuilder,
		summarizer,
		qaGen,
		chunker,
		tagger,
		embedder,
		index,
		cfg.VisionEnabled,
		logger,
	)

	retriever := usecase.NewHybridRetriever(index)
	evaluator := usecase.NewAgentEvaluator(llmClient, logger)
	generator := usecase.NewAnswerGenerator(llmClient, logger)
	querier := usecase.NewQueryOrchestrator(
		settings,
		embedder,
		retriever,
		reranker,
		evaluator,
		generator,
		queryResults,
		documents,
		logger,
	)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Bus:       bus,
		Documents: documents,
		Settings:  settings,
		Ingestor:  ingestor,
		Querier:   querier,

		closeFn: func() {
			bus.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
