package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luantaraschi/petichat-definitive/ai"
	"github.com/luantaraschi/petichat-definitive/config"
	"github.com/luantaraschi/petichat-definitive/editor"
	"github.com/luantaraschi/petichat-definitive/export"
	"github.com/luantaraschi/petichat-definitive/handlers"
	"github.com/luantaraschi/petichat-definitive/logger"
	"github.com/luantaraschi/petichat-definitive/queue"
	"github.com/luantaraschi/petichat-definitive/repository"
	"github.com/luantaraschi/petichat-definitive/service"
	"github.com/luantaraschi/petichat-definitive/storage"
	"github.com/luantaraschi/petichat-definitive/wizard"

	"github.com/robfig/cron/v3"
)

// Editor sessions nobody touched for this long are closed by the sweeper
const editorIdle = 2 * time.Hour

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connections
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

	// Initialize storage
	fileStorage, err := storage.NewStorage(ctx, cfg.Storage)
	if err != nil {
		appLogger.Fatal("Failed to initialize storage", "error", err)
	}
	appLogger.Info("Storage initialized", "type", cfg.Storage.Type)

	// Initialize repositories
	auditRepo := repository.NewAuditRepository(db)
	authRepo := repository.NewAuthRepository(db)
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

	// Initialize services
	audit := service.NewAuditService(
		service.AuditWithStore(auditRepo),
		service.AuditWithLogger(appLogger.With("component", "audit")),
	)
	authService := service.NewAuthService(
		service.AuthWithStore(authRepo),
		service.AuthWithSecret(cfg.JWTSecret, cfg.JWTTTL),
	)
	caseService := service.NewCaseService(
		service.WithCaseStore(caseRepo),
		service.WithCaseAudit(audit),
	)
	exporter := export.New(fileStorage, cfg.ChromePath,
		export.WithFiles(fileRepo),
		export.WithLogger(appLogger.With("component", "export")),
	)
	documentService := service.NewDocumentService(
		service.DocumentWithCaseStore(caseRepo),
		service.DocumentWithStore(documentRepo),
		service.DocumentWithExporter(exporter),
		service.DocumentWithAudit(audit),
	)
	thesisService := service.NewThesisService(
		service.ThesisWithCaseStore(caseRepo),
		service.ThesisWithStore(thesisRepo),
		service.ThesisWithProviders(providers),
		service.ThesisWithAudit(audit),
	)
	jurisprudenceService := service.NewJurisprudenceService(
		service.JurisprudenceWithStore(jurisprudenceRepo),
		service.JurisprudenceWithCaseStore(caseRepo),
		service.JurisprudenceWithEmbedders(providers, cfg.AIProvider),
		service.JurisprudenceWithLogger(appLogger.With("component", "jurisprudence")),
	)
	draftService := service.NewDraftService(
		service.DraftWithCaseStore(caseRepo),
		service.DraftWithThesisStore(thesisRepo),
		service.DraftWithJurisprudenceStore(jurisprudenceRepo),
		service.DraftWithDocuments(documentService),
		service.DraftWithProviders(providers),
		service.DraftWithRetrieval(providers, cfg.AIProvider),
		service.DraftWithQueue(jobQueue),
		service.DraftWithJobRecords(jobRecordRepo),
		service.DraftWithAudit(audit),
		service.DraftWithLogger(appLogger.With("component", "draft")),
	)

	// Interactive state lives in this process
	actions := editor.NewActionStore(providers,
		editor.StoreWithDocuments(documentService),
		editor.StoreWithAudit(audit),
		editor.StoreWithLogger(appLogger.With("component", "editor")),
	)
	editorSessions := editor.NewManager(documentService, providers,
		editor.ManagerWithAudit(audit),
		editor.ManagerWithLogger(appLogger.With("component", "editor")),
	)
	wizards := wizard.NewManager(wizard.Backend{
		Cases:         caseService,
		Theses:        thesisService,
		Drafts:        draftService,
		Jurisprudence: jurisprudenceService,
		Documents:     documentService,
	}, wizard.ManagerWithLogger(appLogger.With("component", "wizard")))

	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 1m", func() {
		expired := actions.Sweep()
		closed := editorSessions.EvictIdle(editorIdle)
		ended := wizards.EvictIdle()
		if expired+closed+ended > 0 {
			appLogger.Debug("Swept idle state", "actions", expired, "editor_sessions", closed, "wizards", ended)
		}
	}); err != nil {
		appLogger.Fatal("Failed to schedule sweeper", "error", err)
	}
	sweeper.Start()

	router := handlers.NewRouter(handlers.RouterConfig{
		Logger:         appLogger,
		AllowedOrigins: cfg.AllowedOrigins,
		Auth:           authService,
		HealthChecks: map[string]handlers.HealthCheck{
			"database": db.Ping,
			"redis": func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
		},
		AuthHandler:          handlers.NewAuthHandler(authService),
		CaseHandler:          handlers.NewCaseHandler(caseService, thesisService, draftService, jurisprudenceService),
		DocumentHandler:      handlers.NewDocumentHandler(documentService),
		FileHandler:          handlers.NewFileHandler(fileRepo, fileStorage),
		JurisprudenceHandler: handlers.NewJurisprudenceHandler(jurisprudenceService, jobQueue),
		EditorHandler:        handlers.NewEditorHandler(actions, editorSessions),
		WizardHandler:        handlers.NewWizardHandler(wizards),
		AIHandler:            handlers.NewAIHandler(providers, audit),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		appLogger.Info("Server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		appLogger.Info("Shutting down")
	case err := <-serveErr:
		appLogger.Error("Server stopped", "error", err)
		exitCode = 1
	}

	<-sweeper.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Graceful shutdown failed", "error", err)
		exitCode = 1
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
