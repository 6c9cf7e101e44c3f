package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"quantity-pipeline/internal/model"
	"quantity-pipeline/internal/store"
	"quantity-pipeline/pkg/router"
	"quantity-pipeline/pkg/utils"
)

// RetryJob reruns a failed or completed job
// @Summary Retry job
// @Description Run an extraction or comparison again with its stored specification
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 202 {object} map[string]interface{} "Retry initiated"
// @Failure 404 {object} map[string]interface{} "Job not found"
// @Failure 409 {object} map[string]interface{} "Job still running"
// @Router /jobs/{id}/retry [post]
func (h *Handler) RetryJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r, router.Param(r, 0), "")
	if !ok {
		return
	}
	if job.Status == model.StatusPending || job.Status == model.StatusRunning {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "job is still active",
			"job_id": job.ID,
			"status": job.Status,
		})
		return
	}

	h.Invalidate(job.ID)
	h.runner.StartRetry(job)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message": "Retry initiated",
		"job_id":  job.ID,
		"status":  "retrying",
	})
}

// GetJobMetrics retrieves stage metrics of a finished job
// @Summary Get job metrics
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} model.PipelineMetrics "Pipeline metrics"
// @Failure 409 {object} map[string]interface{} "Job not completed"
// @Router /jobs/{id}/metrics [get]
func (h *Handler) GetJobMetrics(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r, router.Param(r, 0), "")
	if !ok {
		return
	}
	metrics, ok := result[model.PipelineMetrics](h, w, r, job, store.ResultMetrics)
	if ok {
		writeJSON(w, http.StatusOK, metrics)
	}
}

// GetJobFiles lists the export files written for a job
// @Summary List job files
// @Tags files
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} map[string]interface{} "Job files"
// @Router /jobs/{id}/files [get]
func (h *Handler) GetJobFiles(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r, router.Param(r, 0), "")
	if !ok {
		return
	}
	files, err := h.outputs.ListFiles(job.ID)
	if err != nil {
		slog.Error("list files", "job", job.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list files")
		return
	}
	if files == nil {
		files = []utils.OutputFile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id": job.ID,
		"files":  files,
		"count":  len(files),
	})
}

// DownloadFile serves a file for download
// @Summary Download file
// @Description Download an export file written by a job
// @Tags files
// @Produce application/octet-stream
// @Param id path string true "Job ID"
// @Param filename path string true "File name"
// @Success 200 {file} file "File download"
// @Failure 404 {object} map[string]interface{} "File not found"
// @Router /jobs/{id}/files/{filename} [get]
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r, router.Param(r, 0), "")
	if !ok {
		return
	}
	fileName := router.Param(r, 1)
	path, err := h.outputs.Lookup(job.ID, fileName)
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Content-Type", utils.ContentType(fileName))
	http.ServeFile(w, r, path)
}
