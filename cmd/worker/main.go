package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luantaraschi/petichat-definitive/ai"
	"github.com/luantaraschi/petichat-definitive/config"
	"github.com/luantaraschi/petichat-definitive/export"
	"github.com/luantaraschi/petichat-definitive/jobs"
	"github.com/luantaraschi/petichat-definitive/logger"
	"github.com/luantaraschi/petichat-definitive/queue"
	"github.com/luantaraschi/petichat-definitive/repository"
	"github.com/luantaraschi/petichat-definitive/service"
	"github.com/luantaraschi/petichat-definitive/storage"

	"github.com/robfig/cron/v3"
)

// Active jobs whose lease is older than this are handed back to the queue
const stalledAfter = 15 * time.Minute

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		os.Exit(1)
	}

	appLogger, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	appLogger = appLogger.With("process", "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		appLogger.Fatal("Failed to initialize Postgres", "error", err)
	}
	defer db.Close()

	rdb, err := queue.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		appLogger.Fatal("Failed to initialize Redis", "error", err)
	}
	defer rdb.Close()
	jobQueue := queue.NewRedisQueue(rdb, queue.RedisWithLogger(appLogger.With("component", "queue")))

	fileStorage, err := storage.NewStorage(ctx, cfg.Storage)
	if err != nil {
		appLogger.Fatal("Failed to initialize storage", "error", err)
	}

	auditRepo := repository.NewAuditRepository(db)
	caseRepo := repository.NewCaseRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	fileRepo := repository.NewFileRepository(db)
	jobRecordRepo := repository.NewJobRecordRepository(db)
	jurisprudenceRepo := repository.NewJurisprudenceRepository(db)
	thesisRepo := repository.NewThesisRepository(db)

	providers := ai.NewRegistry(ai.Settings{
		DefaultProvider:      cfg.AIProvider,
		OpenAIAPIKey:         cfg.OpenAIAPIKey,
		OpenAIModel:          cfg.OpenAIModel,
		OpenAIEmbeddingModel: cfg.OpenAIEmbeddingModel,
		GeminiAPIKey:         cfg.GeminiAPIKey,
		GeminiModel:          cfg.GeminiModel,
		GeminiEmbeddingModel: cfg.GeminiEmbeddingModel,
	}, ai.RegistryWithLogger(appLogger.With("component", "ai")))
	defer providers.Close()

	audit := service.NewAuditService(
		service.AuditWithStore(auditRepo),
		service.AuditWithLogger(appLogger.With("component", "audit")),
	)
	caseService := service.NewCaseService(
		service.WithCaseStore(caseRepo),
		service.WithCaseAudit(audit),
	)
	documentService := service.NewDocumentService(
		service.DocumentWithCaseStore(caseRepo),
		service.DocumentWithStore(documentRepo),
		service.DocumentWithExporter(export.New(fileStorage, cfg.ChromePath,
			export.WithFiles(fileRepo),
			export.WithLogger(appLogger.With("component", "export")),
		)),
		service.DocumentWithAudit(audit),
	)
	draftService := service.NewDraftService(
		service.DraftWithCaseStore(caseRepo),
		service.DraftWithThesisStore(thesisRepo),
		service.DraftWithJurisprudenceStore(jurisprudenceRepo),
		service.DraftWithDocuments(documentService),
		service.DraftWithProviders(providers),
		service.DraftWithRetrieval(providers, cfg.AIProvider),
		service.DraftWithJobRecords(jobRecordRepo),
		service.DraftWithAudit(audit),
		service.DraftWithLogger(appLogger.With("component", "draft")),
	)

	sources, err := jobs.LoadSources(cfg.IngestSourcesFile)
	if err != nil {
		// Ingestion by explicit dataset URL still works without the registry
		appLogger.Warn("Ingest sources not loaded", "path", cfg.IngestSourcesFile, "error", err)
	}

	registry := queue.NewRegistry()
	if err := jobs.Register(registry,
		jobs.NewGenerateHandler(draftService),
		jobs.NewIngestHandler(jurisprudenceRepo, sources, jobs.IngestWithEnqueuer(jobQueue)),
		jobs.NewEmbeddingsHandler(jurisprudenceRepo, providers, cfg.AIProvider,
			jobs.EmbeddingsWithRateLimit(cfg.EmbeddingRateLimit),
		),
	); err != nil {
		appLogger.Fatal("Failed to register job handlers", "error", err)
	}

	archive := jobs.ArchiveHook(jobRecordRepo, appLogger.With("component", "archive"))
	worker := queue.NewWorker(jobQueue, registry,
		queue.WorkerWithLogger(appLogger.With("component", "worker")),
		queue.WorkerWithConcurrency(queue.KindGenerateDocument, cfg.GenerateConcurrency),
		queue.WorkerWithConcurrency(queue.KindIngestJurisprudence, cfg.IngestConcurrency),
		queue.WorkerWithConcurrency(queue.KindGenerateEmbeddings, cfg.EmbeddingConcurrency),
		queue.WorkerOnCompleted(archive),
		queue.WorkerOnFailed(archive),
	)

	maintenance := cron.New()
	if _, err := maintenance.AddFunc(cfg.MaintenanceSpec, func() {
		archived, err := caseService.ArchiveAbandonedDrafts(ctx, cfg.AbandonedDraftAge)
		if err != nil {
			appLogger.Error("Failed to archive abandoned drafts", "error", err)
			return
		}
		appLogger.Info("Archived abandoned drafts", "count", archived)
	}); err != nil {
		appLogger.Fatal("Invalid maintenance schedule", "spec", cfg.MaintenanceSpec, "error", err)
	}
	if _, err := maintenance.AddFunc("@every 5m", func() {
		for _, kind := range []queue.Kind{queue.KindGenerateDocument, queue.KindIngestJurisprudence, queue.KindGenerateEmbeddings} {
			n, err := jobQueue.RequeueStalled(ctx, kind, stalledAfter)
			if err != nil {
				appLogger.Error("Failed to requeue stalled jobs", "kind", kind, "error", err)
				continue
			}
			if n > 0 {
				appLogger.Warn("Requeued stalled jobs", "kind", kind, "count", n)
			}
		}
	}); err != nil {
		appLogger.Fatal("Failed to schedule stall recovery", "error", err)
	}
	if _, err := maintenance.AddFunc("@hourly", func() {
		// Chunks whose embedding jobs could not be queued at ingestion time
		if _, err := jobQueue.Enqueue(ctx, queue.KindGenerateEmbeddings, jobs.EmbeddingsPayload{}, ""); err != nil {
			appLogger.Error("Failed to queue embedding backfill", "error", err)
		}
	}); err != nil {
		appLogger.Fatal("Failed to schedule embedding backfill", "error", err)
	}
	maintenance.Start()

	appLogger.Info("Worker starting",
		"generate", cfg.GenerateConcurrency,
		"ingest", cfg.IngestConcurrency,
		"embeddings", cfg.EmbeddingConcurrency,
	)
	worker.Start(ctx)

	<-ctx.Done()
	appLogger.Info("Shutting down, draining active jobs", "timeout", cfg.ShutdownTimeout)

	<-maintenance.Stop().Done()
	if err := worker.Wait(cfg.ShutdownTimeout); err != nil {
		appLogger.Error("Worker did not drain in time", "error", err)
		os.Exit(1)
	}
}
