package api

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "quantity-pipeline/docs"
	"quantity-pipeline/internal/api/handler"
	"quantity-pipeline/pkg/router"
)

// @title Quantity Pipeline API
// @version 1.0
// @description Extracts, aggregates and compares building element quantities.
// @BasePath /api/v1
func RegisterRoutes(r *router.Router, h *handler.Handler) {
	r.Mount("/metrics", promhttp.Handler())
	r.Mount("/swagger/", httpSwagger.WrapHandler)

	r.POST("/api/v1/extractions", h.CreateExtraction)
	r.GET("/api/v1/extractions", h.ListExtractions)
	// More specific routes first
	r.GET("/api/v1/extractions/*/results", h.GetExtractionResults)
	r.GET("/api/v1/extractions/*/observations", h.GetExtractionObservations)
	r.GET("/api/v1/extractions/*/export", h.ExportExtraction)
	r.GET("/api/v1/extractions/*/logs", h.GetExtractionLogs)
	r.GET("/api/v1/extractions/*", h.GetExtraction)

	r.POST("/api/v1/comparisons", h.CreateComparison)
	r.GET("/api/v1/comparisons", h.ListComparisons)
	r.GET("/api/v1/comparisons/*/results", h.GetComparisonResults)
	r.GET("/api/v1/comparisons/*/export", h.ExportComparison)
	r.GET("/api/v1/comparisons/*/logs", h.GetComparisonLogs)
	r.GET("/api/v1/comparisons/*", h.GetComparison)

	r.POST("/api/v1/jobs/*/retry", h.RetryJob)
	r.GET("/api/v1/jobs/*/metrics", h.GetJobMetrics)
	r.GET("/api/v1/jobs/*/files/*", h.DownloadFile)
	r.GET("/api/v1/jobs/*/files", h.GetJobFiles)
}
