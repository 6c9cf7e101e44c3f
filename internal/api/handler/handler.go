package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"

	"quantity-pipeline/internal/model"
	"quantity-pipeline/internal/pipeline"
	"quantity-pipeline/internal/store"
	"quantity-pipeline/pkg/utils"
)

// Store is what the handlers read jobs and results from.
type Store interface {
	SaveJob(ctx context.Context, jobID string, kind model.JobKind, spec any) error
	GetJob(ctx context.Context, jobID string) (*store.Job, error)
	ListJobs(ctx context.Context, kind model.JobKind) ([]store.Job, error)
	GetPipelineLogs(ctx context.Context, jobID string) ([]model.StageLog, error)
	GetResult(ctx context.Context, jobID, kind string, target any) error
}

// Runner starts jobs in the background.
type Runner interface {
	StartExtraction(jobID string, spec model.ExtractionJobSpec)
	StartComparison(jobID string, spec model.ComparisonJobSpec)
	StartRetry(job *store.Job)
}

// Handler serves the extraction, comparison and job endpoints.
type Handler struct {
	store   Store
	runner  Runner
	outputs *utils.OutputManager
	locale  utils.Locale
	// cache holds decoded result tables of completed jobs, keyed "<job>:<kind>".
	cache *lru.Cache[string, any]
}

var resultKinds = []string{
	store.ResultObservations,
	store.ResultAggregated,
	store.ResultComparison,
	store.ResultMetrics,
	store.ResultExport,
}

func New(s Store, r Runner, outputs *utils.OutputManager, loc utils.Locale, cacheSize int) (*Handler, error) {
	if cacheSize < 1 {
		cacheSize = 256
	}
	cache, err := lru.New[string, any](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	return &Handler{store: s, runner: r, outputs: outputs, locale: loc, cache: cache}, nil
}

// Invalidate drops the cached results of jobID. The runner calls it when a
// job finishes.
func (h *Handler) Invalidate(jobID string) {
	for _, kind := range resultKinds {
		h.cache.Remove(jobID + ":" + kind)
	}
}

// ------------------- Shared lookups -------------------

// job loads jobID and checks its kind; it writes the error response itself.
func (h *Handler) job(w http.ResponseWriter, r *http.Request, jobID string, kind model.JobKind) (*store.Job, bool) {
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "Job ID is required")
		return nil, false
	}
	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && kind != "" && job.Kind != kind) {
		writeError(w, http.StatusNotFound, "Job not found")
		return nil, false
	}
	if err != nil {
		slog.Error("get job", "job", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch job")
		return nil, false
	}
	return job, true
}

// result loads a stored result table of a completed job into target.
func result[T any](h *Handler, w http.ResponseWriter, r *http.Request, job *store.Job, kind string) (T, bool) {
	var zero T
	key := job.ID + ":" + kind
	if cached, ok := h.cache.Get(key); ok {
		if v, ok := cached.(T); ok {
			return v, true
		}
	}
	if job.Status != model.StatusCompleted {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "results are not available",
			"job_id": job.ID,
			"status": job.Status,
		})
		return zero, false
	}

	var v T
	err := h.store.GetResult(r.Context(), job.ID, kind, &v)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No "+kind+" results for this job")
		return zero, false
	}
	if err != nil {
		slog.Error("get result", "job", job.ID, "kind", kind, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve results")
		return zero, false
	}
	h.cache.Add(key, v)
	return v, true
}

// export streams table in the format named by the "format" query parameter.
func (h *Handler) export(w http.ResponseWriter, r *http.Request, job *store.Job, name string, table any, formats ...string) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = formats[0]
	}
	allowed := false
	for _, f := range formats {
		allowed = allowed || f == format
	}
	if !allowed {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
		return
	}

	loc := h.locale
	if s := r.URL.Query().Get("locale"); s != "" {
		parsed, err := utils.ParseLocale(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		loc = parsed
	}

	fileName := fmt.Sprintf("%s-%s.%s", name, job.ID, format)
	w.Header().Set("Content-Type", utils.ContentType(fileName))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	if err := pipeline.NewExportManager(job.ID, loc).WriteTo(w, format, table); err != nil {
		slog.Error("export", "job", job.ID, "format", format, "error", err)
	}
}

// ------------------- Responses -------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
