package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/btasdemir/medgraph-rag/internal/config"
	"github.com/btasdemir/medgraph-rag/internal/core/domain"
	"github.com/btasdemir/medgraph-rag/internal/core/ports"
	"github.com/btasdemir/medgraph-rag/internal/core/usecase"
	"github.com/btasdemir/medgraph-rag/internal/infrastructure/chunking"
	"github.com/btasdemir/medgraph-rag/internal/infrastructure/entity"
	"github.com/btasdemir/medgraph-rag/internal/infrastructure/extractor/pdf"
	"github.com/btasdemir/medgraph-rag/internal/infrastructure/graph/neo4j"
	"github.com/btasdemir/medgraph-rag/internal/infrastructure/lexical/opensearch"
	"github.com/btasdemir/medgraph-rag/internal/infrastructure/llm/ollama"
	"github.com/btasdemir/medgraph-rag/internal/infrastructure/queue/nats"
	"github.com/btasdemir/medgraph-rag/internal/infrastructure/repository/postgres"
	"github.com/btasdemir/medgraph-rag/internal/infrastructure/resilience"
	"github.com/btasdemir/medgraph-rag/internal/infrastructure/storage/localfs"
	"github.com/btasdemir/medgraph-rag/internal/infrastructure/vector/qdrant"
	"github.com/btasdemir/medgraph-rag/internal/observability/logging"
)

const closeTimeout = 5 * time.Second

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue ports.MessageQueue
	Repo  ports.DocumentRepository

	IngestUC   ports.DocumentIngestor
	ProcessUC  ports.DocumentProcessor
	AskUC      ports.QuestionService
	Classifier ports.QueryClassifier
	Generator  ports.AnswerGenerator

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	classifier := ollama.NewClassifier(ollamaClient)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	extractor, err := newEntityExtractor(cfg, ollamaClient)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init entity extractor: %w", err)
	}

	lexicalIndex := opensearch.New(cfg.OpenSearchURL, cfg.OpenSearchIndex)
	vectorIndex := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, embedder)

	graphExecutor := resilience.NewExecutor(resilience.GraphStoreConfig(), logger)
	graphStore, err := neo4j.New(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase, graphExecutor)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init graph store: %w", err)
	}

	expander := usecase.NewGraphExpander(graphStore, extractor, usecase.ExpanderConfig{
		MaxHops:  cfg.KGMaxHops,
		Strategy: domain.ExpansionStrategy(cfg.KGExpansionStrategy),
	}, logger)

	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	pageExtractor := pdf.New(storage)

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue)
	processUC := usecase.NewProcessDocumentUseCase(repo, pageExtractor, chunker, embedder, lexicalIndex, vectorIndex)
	askUC := usecase.NewAskUseCase(lexicalIndex, vectorIndex, expander, generator, usecase.RetrievalConfig{
		TopKLexical:  cfg.TopKLexical,
		TopKSemantic: cfg.TopKSemantic,
		TopKFused:    cfg.TopKFused,
		Fusion: usecase.FusionConfig{
			K:              cfg.RRFK,
			LexicalWeight:  cfg.LexicalWeight,
			SemanticWeight: cfg.SemanticWeight,
		},
	}, logger)

	return &App{
		Config: cfg,
		Logger: logger,
		Queue:  queue,
		Repo:   repo,

		IngestUC:   ingestUC,
		ProcessUC:  processUC,
		AskUC:      askUC,
		Classifier: classifier,
		Generator:  generator,

		closeFn: func() {
			queue.Close()
			closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := graphStore.Close(closeCtx); err != nil {
				logger.Warn("neo4j_close_failed", "error", err)
			}
			_ = db.Close()
		},
	}, nil
}

// newEntityExtractor picks between the curated vocabulary matcher and the
// LLM-backed extractor. The vocabulary is the default: deterministic and free
// of extra generation calls on the ask path.
func newEntityExtractor(cfg config.Config, client *ollama.Client) (ports.EntityExtractor, error) {
	switch cfg.EntityExtractor {
	case "llm":
		return ollama.NewEntityExtractor(client), nil
	default:
		return entity.LoadVocabulary(cfg.EntityVocabularyPath)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
