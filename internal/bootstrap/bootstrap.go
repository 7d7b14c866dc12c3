package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/olegkarev/testcase-search/internal/config"
	"github.com/olegkarev/testcase-search/internal/core/dedupe"
	"github.com/olegkarev/testcase-search/internal/core/domain"
	"github.com/olegkarev/testcase-search/internal/core/ports"
	"github.com/olegkarev/testcase-search/internal/core/ranking"
	"github.com/olegkarev/testcase-search/internal/core/usecase"
	"github.com/olegkarev/testcase-search/internal/infrastructure/llm/ollama"
	"github.com/olegkarev/testcase-search/internal/infrastructure/parser/tabular"
	"github.com/olegkarev/testcase-search/internal/infrastructure/queue/nats"
	"github.com/olegkarev/testcase-search/internal/infrastructure/repository/postgres"
	"github.com/olegkarev/testcase-search/internal/infrastructure/resilience"
	"github.com/olegkarev/testcase-search/internal/infrastructure/storage/localfs"
	"github.com/olegkarev/testcase-search/internal/infrastructure/vector/qdrant"
	"github.com/olegkarev/testcase-search/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Tuning config.Tuning

	Queue   ports.MessageQueue
	Records ports.RecordRepository
	Batches ports.BatchRepository

	UploadUC  ports.BatchIngestor
	ProcessUC ports.BatchProcessor
	SearchUC  ports.SearchService

	HTTPMetrics   *metrics.HTTPServerMetrics
	WorkerMetrics *metrics.WorkerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tuning, err := config.LoadTuning(cfg.TuningPath)
	if err != nil {
		return nil, fmt.Errorf("load tuning: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	records := postgres.NewRecordRepository(db)
	batches := postgres.NewBatchRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutorWithLogger(resilience.DefaultConfig(), logger)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		ResilienceExecutor: executor,
	})
	embedder := ollama.NewEmbedder(ollamaClient)

	var enricher ports.Enricher = ollama.NewEnricher(ollamaClient)
	if !cfg.EnrichmentEnabled {
		enricher = noopEnricher{}
	}

	var reranker ranking.Reranker
	if cfg.RerankEnabled {
		reranker = ollama.NewReranker(ollamaClient)
	}

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, cfg.FuzzyWindow)

	dedupeCfg := tuning.Dedupe
	if cfg.DedupeTopN > 0 {
		dedupeCfg.TopN = cfg.DedupeTopN
	}
	detector := dedupe.NewDetector(vectorDB, vectorDB, records, dedupeCfg, logger)

	rankingCfg := tuning.Ranking
	if cfg.SearchTopK > 0 {
		rankingCfg.TopK = cfg.SearchTopK
	}
	engine := ranking.NewEngine(rankingCfg, reranker, logger)

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	workerMetrics := metrics.NewWorkerMetrics("worker")
	engine.OnRerankFallback(func() {
		httpMetrics.RecordRerankFallback("api")
	})

	uploadUC := usecase.NewUploadBatchUseCase(batches, storage, queue)
	processUC := usecase.NewProcessBatchUseCase(
		batches, records, storage,
		tabular.NewParser(), enricher, embedder, vectorDB,
		detector, logger,
	)
	processUC.SetVerdictObserver(func(verdict domain.Verdict) {
		workerMetrics.RecordVerdict("worker", verdict.Duplicate, verdict.CandidatesChecked)
	})
	searchUC := usecase.NewSearchUseCase(embedder, vectorDB, records, engine, cfg.SearchCandidatePool, logger)

	return &App{
		Config: cfg,
		Tuning: tuning,

		Queue:   queue,
		Records: records,
		Batches: batches,

		UploadUC:  uploadUC,
		ProcessUC: processUC,
		SearchUC:  searchUC,

		HTTPMetrics:   httpMetrics,
		WorkerMetrics: workerMetrics,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

type noopEnricher struct{}

func (noopEnricher) Enrich(context.Context, *domain.TestCase) (domain.Enrichment, error) {
	return domain.Enrichment{Keywords: []string{}}, nil
}
