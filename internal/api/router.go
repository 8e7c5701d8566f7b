package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/pagepipe/internal/api/handler"
	"github.com/timmy/pagepipe/internal/api/middleware"
	"github.com/timmy/pagepipe/internal/config"
)

// RouterDeps holds what the router needs to build its handlers.
type RouterDeps struct {
	Jobs   handler.JobService
	DB     handler.Pinger
	Server config.ServerConfig
	// WorkDir is where uploads are spooled before rendering.
	WorkDir string
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps) *gin.Engine {
	switch deps.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	if deps.Server.MaxUploadSize > 0 {
		r.MaxMultipartMemory = deps.Server.MaxUploadSize
	}

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORS(deps.Server.CORS))

	healthHandler := handler.NewHealthHandler(deps.DB)
	jobHandler := handler.NewJobHandler(deps.Jobs, deps.Server.MaxUploadSize, deps.WorkDir)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/jobs", jobHandler.CreateJob)
		v1.GET("/jobs", jobHandler.ListJobs)
		v1.GET("/jobs/:id/status", jobHandler.GetStatus)
		v1.GET("/jobs/:id/pages", jobHandler.GetPages)
		v1.GET("/jobs/:id/summary", jobHandler.GetSummary)
		v1.GET("/jobs/:id/summaries", jobHandler.ListSummaries)
		v1.POST("/jobs/:id/retry", jobHandler.RetryJob)
		v1.GET("/patients/:identifier/jobs", jobHandler.ListPatientJobs)
	}

	return r
}
