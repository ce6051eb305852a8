package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kterao/paperbase/internal/api/handler"
	"github.com/kterao/paperbase/internal/api/middleware"
	"github.com/kterao/paperbase/internal/repository"
	"github.com/kterao/paperbase/internal/service"
	"github.com/kterao/paperbase/internal/storage"
)

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	DocRepo   *repository.DocumentRepository
	JobRepo   *repository.JobRepository
	ChunkRepo *repository.ChunkRepository
	Pipeline  *service.PipelineService
	Indexer   *service.IndexerService
	Search    *service.SearchService
	Auth      *service.AuthService
	Archive   *storage.DocumentArchive

	UploadDir      string
	MaxUploadMB    int64
	AllowedOrigins []string
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps *RouterDeps, mode string) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  deps.AllowedOrigins,
		AllowAllOrigins: len(deps.AllowedOrigins) == 0,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	documentHandler := handler.NewDocumentHandler(
		deps.DocRepo, deps.ChunkRepo, deps.Pipeline, deps.Indexer,
		deps.Archive, deps.UploadDir, deps.MaxUploadMB,
	)
	jobHandler := handler.NewJobHandler(deps.JobRepo)
	searchHandler := handler.NewSearchHandler(deps.Search)
	adminHandler := handler.NewAdminHandler(deps.JobRepo, deps.Pipeline, deps.Auth)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.POST("/auth/login", adminHandler.Login)

		// Documents
		v1.POST("/documents", documentHandler.Upload)
		v1.GET("/documents", documentHandler.List)
		v1.GET("/documents/:id", documentHandler.Get)
		v1.DELETE("/documents/:id", documentHandler.Delete)
		v1.PUT("/documents/:id/metadata", documentHandler.PutMetadata)
		v1.GET("/documents/:id/chunks", documentHandler.ListChunks)
		v1.POST("/documents/:id/rechunk", documentHandler.Rechunk)

		// Jobs
		v1.GET("/jobs", jobHandler.List)
		v1.GET("/jobs/:id", jobHandler.Get)

		// Search
		v1.POST("/search", searchHandler.Search)
		v1.GET("/search", searchHandler.SearchGet)

		// Admin (token required)
		admin := v1.Group("/admin")
		admin.Use(middleware.RequireAuth(deps.Auth), middleware.RequireAdmin())
		{
			admin.GET("/progress", adminHandler.Progress)
			admin.POST("/jobs/:id/reset", adminHandler.ResetStep)
		}
	}

	return r
}
