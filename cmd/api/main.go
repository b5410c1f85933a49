package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/aulalabs/aula-api/internal/config"
	"github.com/aulalabs/aula-api/internal/database"
	"github.com/aulalabs/aula-api/internal/handler"
	"github.com/aulalabs/aula-api/internal/middleware"
	"github.com/aulalabs/aula-api/internal/models"
	"github.com/aulalabs/aula-api/internal/observability"
	"github.com/aulalabs/aula-api/internal/repository"
	"github.com/aulalabs/aula-api/internal/router"
	"github.com/aulalabs/aula-api/internal/service"
	"github.com/aulalabs/aula-api/internal/worker"
	cloud "github.com/aulalabs/aula-api/pkg/cloudinary"
	"github.com/aulalabs/aula-api/pkg/llm"
	"github.com/aulalabs/aula-api/pkg/rag"
	"github.com/aulalabs/aula-api/pkg/sandbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Activity{},
		&models.Exercise{},
		&models.Submission{},
		&models.ExerciseAttempt{},
		&models.RiskReport{},
		&models.ActivityDocument{},
		&models.LearningSession{},
		&models.ChatMessage{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	// Messaging is optional; risk completion events are skipped without it.
	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, risk events disabled")
			natsConn = nil
		} else {
			defer natsConn.Close()
		}
	}

	ollamaClient, err := llm.NewOllamaClient(llm.OllamaConfig{
		Endpoints:    cfg.OllamaEndpoints,
		Model:        cfg.OllamaModel,
		ProbeTimeout: cfg.ProbeTimeout,
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("failed to create inference gateway: %v", err)
	}

	provider, err := buildProvider(cfg, ollamaClient, logger)
	if err != nil {
		log.Fatalf("failed to create ai provider: %v", err)
	}

	executor, err := buildExecutor(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create sandbox executor: %v", err)
	}

	index, err := rag.NewChromaIndex(context.Background(), cfg.ChromaURL, cfg.ChromaCollection, logger)
	if err != nil {
		log.Fatalf("failed to connect to vector index: %v", err)
	}

	embedder := rag.NewOllamaEmbedder(ollamaClient, cfg.EmbeddingModel)
	chunker := rag.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	retriever := rag.NewService(chunker, embedder, index, cfg.ChromaCollection, logger)
	tutor := rag.NewTutor(provider, cfg.TutorTimeout, logger)

	auditor := llm.NewAuditor(provider, cfg.AuditTimeout, logger)
	analyzer := llm.NewRiskAnalyzer(provider, cfg.RiskTimeout, logger)
	generator := llm.NewGenerator(provider, cfg.GenerateTimeout, logger)

	var uploader service.FileUploader
	if cfg.CloudinaryCloudName != "" {
		uploader, err = cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	submissionRepo := repository.NewSubmissionRepository(db)
	exerciseRepo := repository.NewExerciseRepository(db)
	reportRepo := repository.NewRiskReportRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	documentRepo := repository.NewDocumentRepository(db)

	pool := worker.NewPool(worker.PoolConfig{
		Workers:   cfg.RiskWorkers,
		QueueSize: cfg.RiskQueueSize,
		Logger:    logger,
	})
	riskScheduler := worker.NewRiskScheduler(db, analyzer, natsConn, logger)

	submissionService := service.NewSubmissionService(db, submissionRepo, exerciseRepo, reportRepo, executor, auditor, pool, riskScheduler, validate, logger)
	tutorService := service.NewTutorService(sessionRepo, exerciseRepo, retriever, tutor, redisClient, cfg.ChatCacheTTL, validate, logger)
	chatService := service.NewChatService(retriever, tutor, logger)
	documentService := service.NewDocumentService(documentRepo, retriever, uploader, logger)
	generatorService := service.NewGeneratorService(exerciseRepo, retriever, generator, validate, logger)

	submissionHandler := handler.NewSubmissionHandler(submissionService, logger)
	sessionHandler := handler.NewSessionHandler(tutorService, logger)
	documentHandler := handler.NewDocumentHandler(documentService, chatService, logger)
	generatorHandler := handler.NewGeneratorHandler(generatorService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    25 << 20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	app.Get("/metrics", observability.MetricsHandler())
	router.Register(app, cfg, router.Dependencies{
		SubmissionHandler: submissionHandler,
		SessionHandler:    sessionHandler,
		DocumentHandler:   documentHandler,
		GeneratorHandler:  generatorHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, pool)
}

func buildProvider(cfg config.Config, ollamaClient *llm.OllamaClient, logger zerolog.Logger) (llm.Provider, error) {
	if cfg.AIProvider == "openai" {
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Logger:  logger,
		})
	}
	return ollamaClient, nil
}

func buildExecutor(cfg config.Config, logger zerolog.Logger) (sandbox.Executor, error) {
	if cfg.SandboxBackend == "docker" {
		return sandbox.NewDockerExecutor(sandbox.DockerConfig{
			Host:          cfg.DockerHost,
			Timeout:       cfg.ExecutionTimeout,
			MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
			CPUShares:     int64(cfg.CodeRunCPUShares),
			Logger:        logger,
		})
	}
	return sandbox.NewProcessExecutor(sandbox.ProcessConfig{
		Timeout: cfg.ExecutionTimeout,
		Logger:  logger,
	}), nil
}

func waitForShutdown(app *fiber.App, pool *worker.Pool) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	// Let queued risk analyses finish before the process exits.
	if err := pool.Shutdown(ctx); err != nil {
		log.Printf("worker pool shutdown incomplete: %v", err)
	}

	log.Println("server stopped")
}
