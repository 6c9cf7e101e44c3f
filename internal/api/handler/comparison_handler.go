package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"quantity-pipeline/internal/model"
	"quantity-pipeline/internal/pipeline"
	"quantity-pipeline/internal/store"
	"quantity-pipeline/pkg/router"
)

// CreateComparison creates a new comparison job
// @Summary Create a comparison
// @Description Extract two model snapshots and list the quantity differences between them
// @Tags comparisons
// @Accept json
// @Produce json
// @Param comparison body model.ComparisonJobSpec true "Both model dumps, mappings and options"
// @Success 202 {object} map[string]interface{} "Comparison accepted"
// @Failure 400 {object} map[string]interface{} "Invalid request payload"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /comparisons [post]
func (h *Handler) CreateComparison(w http.ResponseWriter, r *http.Request) {
	var spec model.ComparisonJobSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if len(spec.ModelA.Elements) == 0 || len(spec.ModelB.Elements) == 0 {
		writeError(w, http.StatusBadRequest, "both models need elements")
		return
	}
	if err := spec.MappingA.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if spec.MappingB != nil {
		if err := spec.MappingB.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if spec.Export != nil {
		if _, err := pipeline.FormatOf(spec.Export.File); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	jobID := uuid.New().String()
	if err := h.store.SaveJob(r.Context(), jobID, model.JobComparison, spec); err != nil {
		slog.Error("save job", "job", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save job")
		return
	}

	h.runner.StartComparison(jobID, spec)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":   "Comparison created successfully!",
		"jobID":     jobID,
		"status":    model.StatusPending,
		"createdAt": time.Now().UTC(),
	})
}

// ListComparisons retrieves all comparison jobs
// @Summary List comparisons
// @Tags comparisons
// @Produce json
// @Success 200 {array} store.Job "Comparison jobs"
// @Router /comparisons [get]
func (h *Handler) ListComparisons(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, model.JobComparison)
}

// GetComparison retrieves one comparison job
// @Summary Get comparison
// @Tags comparisons
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} store.Job "Comparison job"
// @Failure 404 {object} map[string]interface{} "Job not found"
// @Router /comparisons/{id} [get]
func (h *Handler) GetComparison(w http.ResponseWriter, r *http.Request) {
	if job, ok := h.job(w, r, router.Param(r, 0), model.JobComparison); ok {
		writeJSON(w, http.StatusOK, job)
	}
}

// GetComparisonResults retrieves the difference table
// @Summary Get differences
// @Description Rows where the two snapshots differ; "mirror" swaps sides
// @Tags comparisons
// @Produce json
// @Param id path string true "Job ID"
// @Param mirror query bool false "Report B against A"
// @Success 200 {object} map[string]interface{} "Comparison rows"
// @Failure 409 {object} map[string]interface{} "Job not completed"
// @Router /comparisons/{id}/results [get]
func (h *Handler) GetComparisonResults(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r, router.Param(r, 0), model.JobComparison)
	if !ok {
		return
	}
	rows, ok := result[[]model.ComparisonRow](h, w, r, job, store.ResultComparison)
	if !ok {
		return
	}
	if r.URL.Query().Get("mirror") == "true" {
		rows = pipeline.Mirror(rows)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id": job.ID,
		"rows":   rows,
		"count":  len(rows),
	})
}

// ExportComparison downloads the difference table
// @Summary Export comparison
// @Tags comparisons
// @Produce octet-stream
// @Param id path string true "Job ID"
// @Param format query string false "xlsx, csv or json" default(xlsx)
// @Param locale query string false "Number locale, e.g. de or en"
// @Success 200 {file} file "Exported differences"
// @Failure 400 {object} map[string]interface{} "Unsupported format"
// @Router /comparisons/{id}/export [get]
func (h *Handler) ExportComparison(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r, router.Param(r, 0), model.JobComparison)
	if !ok {
		return
	}
	rows, ok := result[[]model.ComparisonRow](h, w, r, job, store.ResultComparison)
	if ok {
		h.export(w, r, job, "vergleich", rows, "xlsx", "csv", "json")
	}
}

// GetComparisonLogs retrieves the stage logs of a comparison
// @Summary Get comparison logs
// @Tags comparisons
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} map[string]interface{} "Stage logs"
// @Router /comparisons/{id}/logs [get]
func (h *Handler) GetComparisonLogs(w http.ResponseWriter, r *http.Request) {
	h.logs(w, r, model.JobComparison)
}
