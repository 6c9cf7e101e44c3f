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

// CreateExtraction creates a new extraction job
// @Summary Create an extraction
// @Description Extract and aggregate the quantities of one model dump with the given mapping
// @Tags extractions
// @Accept json
// @Produce json
// @Param extraction body model.ExtractionJobSpec true "Model dump, mapping and options"
// @Success 202 {object} map[string]interface{} "Extraction accepted"
// @Failure 400 {object} map[string]interface{} "Invalid request payload"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /extractions [post]
func (h *Handler) CreateExtraction(w http.ResponseWriter, r *http.Request) {
	var spec model.ExtractionJobSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	// 1. Validate payload
	if len(spec.Model.Elements) == 0 {
		writeError(w, http.StatusBadRequest, pipeline.ErrNoElements.Error())
		return
	}
	if err := spec.Mapping.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if spec.Export != nil {
		if _, err := pipeline.FormatOf(spec.Export.File); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	// 2. Generate job ID and save
	jobID := uuid.New().String()
	if err := h.store.SaveJob(r.Context(), jobID, model.JobExtraction, spec); err != nil {
		slog.Error("save job", "job", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save job")
		return
	}

	// 3. Start asynchronously
	h.runner.StartExtraction(jobID, spec)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":   "Extraction created successfully!",
		"jobID":     jobID,
		"status":    model.StatusPending,
		"createdAt": time.Now().UTC(),
	})
}

// ListExtractions retrieves all extraction jobs
// @Summary List extractions
// @Description Get all extraction jobs with their current status, newest first
// @Tags extractions
// @Produce json
// @Success 200 {array} store.Job "Extraction jobs"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /extractions [get]
func (h *Handler) ListExtractions(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, model.JobExtraction)
}

// GetExtraction retrieves one extraction job
// @Summary Get extraction
// @Tags extractions
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} store.Job "Extraction job"
// @Failure 404 {object} map[string]interface{} "Job not found"
// @Router /extractions/{id} [get]
func (h *Handler) GetExtraction(w http.ResponseWriter, r *http.Request) {
	if job, ok := h.job(w, r, router.Param(r, 0), model.JobExtraction); ok {
		writeJSON(w, http.StatusOK, job)
	}
}

// GetExtractionResults retrieves the aggregated table of an extraction
// @Summary Get aggregated quantities
// @Description One row per (Kategorie, Gruppe, Art, Status), one column per property
// @Tags extractions
// @Produce json
// @Param id path string true "Job ID"
// @Param sort query string false "Column to sort by"
// @Param order query string false "asc or desc"
// @Success 200 {object} model.AggregatedTable "Aggregated table"
// @Failure 404 {object} map[string]interface{} "Job not found"
// @Failure 409 {object} map[string]interface{} "Job not completed"
// @Router /extractions/{id}/results [get]
func (h *Handler) GetExtractionResults(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r, router.Param(r, 0), model.JobExtraction)
	if !ok {
		return
	}
	table, ok := result[model.AggregatedTable](h, w, r, job, store.ResultAggregated)
	if !ok {
		return
	}
	if col := r.URL.Query().Get("sort"); col != "" {
		table = pipeline.SortTable(table, col, r.URL.Query().Get("order") != "desc")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":  job.ID,
		"columns": table.Columns,
		"rows":    table.Rows,
		"count":   len(table.Rows),
	})
}

// GetExtractionObservations retrieves the long-form table of an extraction
// @Summary Get observations
// @Tags extractions
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} map[string]interface{} "Observation rows"
// @Failure 404 {object} map[string]interface{} "Job not found"
// @Failure 409 {object} map[string]interface{} "Job not completed"
// @Router /extractions/{id}/observations [get]
func (h *Handler) GetExtractionObservations(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r, router.Param(r, 0), model.JobExtraction)
	if !ok {
		return
	}
	rows, ok := result[[]model.ObservationRow](h, w, r, job, store.ResultObservations)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":       job.ID,
		"observations": rows,
		"count":        len(rows),
	})
}

// ExportExtraction downloads a table of an extraction
// @Summary Export extraction
// @Tags extractions
// @Produce octet-stream
// @Param id path string true "Job ID"
// @Param format query string false "csv, json or xlsx" default(csv)
// @Param table query string false "aggregated or observations" default(aggregated)
// @Param locale query string false "Number locale, e.g. de or en"
// @Success 200 {file} file "Exported table"
// @Failure 400 {object} map[string]interface{} "Unsupported format"
// @Router /extractions/{id}/export [get]
func (h *Handler) ExportExtraction(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r, router.Param(r, 0), model.JobExtraction)
	if !ok {
		return
	}
	if r.URL.Query().Get("table") == store.ResultObservations {
		rows, ok := result[[]model.ObservationRow](h, w, r, job, store.ResultObservations)
		if ok {
			h.export(w, r, job, "observations", rows, "csv", "json", "xlsx")
		}
		return
	}
	table, ok := result[model.AggregatedTable](h, w, r, job, store.ResultAggregated)
	if ok {
		h.export(w, r, job, "quantities", table, "csv", "json", "xlsx")
	}
}

// GetExtractionLogs retrieves the stage logs of an extraction
// @Summary Get extraction logs
// @Tags extractions
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} map[string]interface{} "Stage logs"
// @Router /extractions/{id}/logs [get]
func (h *Handler) GetExtractionLogs(w http.ResponseWriter, r *http.Request) {
	h.logs(w, r, model.JobExtraction)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, kind model.JobKind) {
	jobs, err := h.store.ListJobs(r.Context(), kind)
	if err != nil {
		slog.Error("list jobs", "kind", kind, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch jobs")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request, kind model.JobKind) {
	job, ok := h.job(w, r, router.Param(r, 0), kind)
	if !ok {
		return
	}
	logs, err := h.store.GetPipelineLogs(r.Context(), job.ID)
	if err != nil {
		slog.Error("get logs", "job", job.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id": job.ID,
		"logs":   logs,
		"count":  len(logs),
	})
}
