package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kterao/paperbase/internal/api"
	"github.com/kterao/paperbase/internal/chunking"
	"github.com/kterao/paperbase/internal/config"
	"github.com/kterao/paperbase/internal/logger"
	"github.com/kterao/paperbase/internal/repository"
	"github.com/kterao/paperbase/internal/service"
	"github.com/kterao/paperbase/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLog := logger.New(logger.DefaultConfig())
	logger.SetDefault(appLog)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	docRepo := repository.NewDocumentRepository(db)
	jobRepo := repository.NewJobRepository(db)
	pageRepo := repository.NewPageTextRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	userRepo := repository.NewUserRepository(db)

	qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Qdrant.Dimensions,
	})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize Qdrant repository")
	}
	defer qdrantRepo.Close()

	// Ensure Qdrant collection exists
	ctx := context.Background()
	if err := qdrantRepo.EnsureCollection(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to ensure Qdrant collection")
	}

	// Initialize object storage archive (optional)
	var archive *storage.DocumentArchive
	if cfg.Storage.Enabled {
		objectStorage, err := storage.NewStorage(&storage.S3Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			appLog.WithError(err).Fatal("Failed to initialize storage")
		}
		if s3, ok := objectStorage.(*storage.S3Storage); ok {
			if err := s3.EnsureBucket(ctx); err != nil {
				appLog.WithError(err).Fatal("Failed to ensure storage bucket")
			}
		}
		archive = storage.NewDocumentArchive(objectStorage)
	}

	// Initialize services
	embeddingService := service.NewEmbeddingService(&service.EmbeddingConfig{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
	})

	extractorService := service.NewExtractorService(&service.ExtractorConfig{
		BaseURL:  cfg.Extractor.BaseURL,
		Timeout:  cfg.Extractor.Timeout,
		ForceOCR: cfg.Extractor.ForceOCR,
	})

	chunker, err := chunking.New(chunking.Config{
		ChunkSize:            cfg.Chunking.ChunkSize,
		ChunkOverlap:         cfg.Chunking.ChunkOverlap,
		MinChunkLength:       cfg.Chunking.MinChunkLength,
		MinWordCount:         cfg.Chunking.MinWordCount,
		MinAlphaRatio:        cfg.Chunking.MinAlphaRatio,
		SentencePattern:      cfg.Chunking.SentencePattern,
		MinSentenceLength:    cfg.Chunking.MinSentenceLength,
		MaxSentencesPerChunk: cfg.Chunking.MaxSentencesPerChunk,
		OversizeMultiplier:   cfg.Chunking.OversizeMultiplier,
	})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize chunker")
	}

	indexerService := service.NewIndexerService(chunkRepo, qdrantRepo, embeddingService)
	pipelineService := service.NewPipelineService(
		docRepo, jobRepo, pageRepo, chunkRepo,
		extractorService, indexerService, chunker,
	)
	searchService := service.NewSearchService(docRepo, qdrantRepo, embeddingService)
	authService := service.NewAuthService(userRepo, &service.AuthConfig{
		JWTSecret: cfg.Auth.JWTSecret,
		TokenTTL:  cfg.Auth.TokenTTL,
	})

	if err := authService.EnsureAdminUser(ctx, cfg.Auth.AdminUser, cfg.Auth.AdminPassword); err != nil {
		appLog.WithError(err).Fatal("Failed to ensure admin user")
	}

	// Start the background scheduler
	schedulerService := service.NewSchedulerService(jobRepo, pipelineService, service.SchedulerConfig{
		PollInterval:  cfg.Pipeline.PollInterval,
		IdleInterval:  cfg.Pipeline.IdleInterval,
		ErrorInterval: cfg.Pipeline.ErrorInterval,
	})
	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	go schedulerService.Run(schedulerCtx)

	// Setup router
	router := api.SetupRouter(&api.RouterDeps{
		DocRepo:        docRepo,
		JobRepo:        jobRepo,
		ChunkRepo:      chunkRepo,
		Pipeline:       pipelineService,
		Indexer:        indexerService,
		Search:         searchService,
		Auth:           authService,
		Archive:        archive,
		UploadDir:      cfg.Upload.Dir,
		MaxUploadMB:    int64(cfg.Upload.MaxSizeMB),
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
	}, cfg.Server.Mode)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLog.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down server...")
	stopScheduler()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Fatal("Server forced to shutdown")
	}

	appLog.Info("Server exited")
}
