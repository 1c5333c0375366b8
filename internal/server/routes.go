package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.MaxMultipartMemory = 32 << 20

	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.CORS.AllowedOrigins,
		AllowMethods:     s.config.CORS.AllowedMethods,
		AllowHeaders:     s.config.CORS.AllowedHeaders,
		AllowCredentials: s.config.CORS.AllowCredentials,
		MaxAge:           time.Duration(s.config.CORS.MaxAge) * time.Second,
	}))

	r.GET("/health", s.readyHandler)
	r.GET("/online", s.onlineHandler)

	api := r.Group("/api")
	{
		api.POST("/upload", s.uploadHandler)
		api.GET("/events", s.eventsHandler)

		jobs := api.Group("/jobs")
		jobs.GET("", s.listJobsHandler)
		jobs.GET("/types", s.listJobTypesHandler)
		jobs.GET("/:jobId", s.getJobHandler)
		jobs.GET("/:jobId/progress", s.getProgressHandler)
		jobs.GET("/:jobId/download", s.downloadSummaryHandler)
		jobs.GET("/:jobId/failed", s.failedRecordsHandler)
		jobs.GET("/:jobId/failed/download", s.downloadFailedHandler)
		jobs.POST("/:jobId/failed/archive", s.archiveFailedHandler)
		jobs.POST("/:jobId/retry", s.retryHandler)

		api.GET("/stores", s.listStoresHandler)
		api.GET("/admin/overview", s.overviewHandler)
	}

	return r
}
