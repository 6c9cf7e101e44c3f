package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantity-pipeline/internal/api/handler"
	"quantity-pipeline/internal/model"
	"quantity-pipeline/internal/store"
	"quantity-pipeline/pkg/router"
	"quantity-pipeline/pkg/utils"
)

// fakeRunner records started jobs instead of running them.
type fakeRunner struct {
	mu          sync.Mutex
	extractions []string
	comparisons []string
	retries     []string
}

func (f *fakeRunner) StartExtraction(jobID string, _ model.ExtractionJobSpec) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extractions = append(f.extractions, jobID)
}

func (f *fakeRunner) StartComparison(jobID string, _ model.ComparisonJobSpec) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comparisons = append(f.comparisons, jobID)
}

func (f *fakeRunner) StartRetry(job *store.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = append(f.retries, job.ID)
}

type testAPI struct {
	db      *store.DB
	runner  *fakeRunner
	outputs *utils.OutputManager
	handler *handler.Handler
	router  *router.Router
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "quantities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runner := &fakeRunner{}
	outputs := utils.NewOutputManager(filepath.Join(dir, "exports"))
	h, err := handler.New(db, runner, outputs, utils.DefaultLocale, 16)
	require.NoError(t, err)

	r := router.New().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	RegisterRoutes(r, h)
	return &testAPI{db: db, runner: runner, outputs: outputs, handler: h, router: r}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func wallSpec() model.ExtractionJobSpec {
	return model.ExtractionJobSpec{
		Model: model.ModelDump{Elements: []model.RawElement{{
			ID: "1", Class: "IfcWall", Name: "Mauer",
			Psets: map[string]map[string]any{"LL AM": {"Typ": "AW", "Länge": 3.5}},
		}}},
		Mapping: model.Mapping{Rules: map[string]model.MappingRule{
			"IfcWall": {Group: []string{"LL AM.Typ"}, Sum: []string{"LL AM.Länge"}},
		}},
	}
}

func aggregated() model.AggregatedTable {
	return model.AggregatedTable{
		Columns: []string{"Länge", model.CountProperty},
		Rows: []model.AggregatedRow{
			{Key: model.GroupKey{Kategorie: "IfcWall", Gruppe: "AW"}, Values: map[string]model.Value{"Länge": model.Number(3.5), model.CountProperty: model.Number(1)}},
			{Key: model.GroupKey{Kategorie: "IfcWall", Gruppe: "IW"}, Values: map[string]model.Value{"Länge": model.Number(9), model.CountProperty: model.Number(2)}},
		},
	}
}

// createExtraction posts a valid extraction and returns its job id.
func (a *testAPI) createExtraction(t *testing.T) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/extractions", wallSpec())
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, model.StatusPending, body["status"])
	return body["jobID"].(string)
}

// complete marks jobID completed with the aggregated sample table.
func (a *testAPI) complete(t *testing.T, jobID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.db.SaveResult(ctx, jobID, store.ResultAggregated, aggregated()))
	require.NoError(t, a.db.SaveResult(ctx, jobID, store.ResultMetrics, model.PipelineMetrics{Elements: 3}))
	require.NoError(t, a.db.UpdateJobStatus(ctx, jobID, model.StatusCompleted))
}

func TestRoutesAreOrdered(t *testing.T) {
	a := newTestAPI(t)
	routes := a.router.Routes()
	index := func(route string) int {
		for i, r := range routes {
			if r == route {
				return i
			}
		}
		t.Fatalf("route %s not registered", route)
		return -1
	}
	assert.Less(t, index("GET:/api/v1/extractions/*/results"), index("GET:/api/v1/extractions/*"))
	assert.Less(t, index("GET:/api/v1/comparisons/*/export"), index("GET:/api/v1/comparisons/*"))
	assert.Less(t, index("GET:/api/v1/jobs/*/files/*"), index("GET:/api/v1/jobs/*/files"))
}

func TestCreateExtraction(t *testing.T) {
	a := newTestAPI(t)
	id := a.createExtraction(t)
	assert.Equal(t, []string{id}, a.runner.extractions)

	rec := a.do(t, http.MethodGet, "/api/v1/extractions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "extraction", decode(t, rec)["kind"])

	rec = a.do(t, http.MethodGet, "/api/v1/extractions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []store.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	assert.Len(t, jobs, 1)
}

func TestCreateExtractionValidation(t *testing.T) {
	a := newTestAPI(t)

	noElements := wallSpec()
	noElements.Model.Elements = nil
	conflict := wallSpec()
	conflict.Mapping.Rules["IfcWall"] = model.MappingRule{Group: []string{"LL AM.Typ"}, Group2: []string{"LL AM.Typ"}}
	badExport := wallSpec()
	badExport.Export = &model.Export{File: "mengen.pdf"}

	for name, body := range map[string]any{
		"invalid json":  "{",
		"no elements":   noElements,
		"mapping":       conflict,
		"export format": badExport,
	} {
		t.Run(name, func(t *testing.T) {
			rec := a.do(t, http.MethodPost, "/api/v1/extractions", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
	assert.Empty(t, a.runner.extractions)
}

func TestExtractionResults(t *testing.T) {
	a := newTestAPI(t)
	id := a.createExtraction(t)

	rec := a.do(t, http.MethodGet, "/api/v1/extractions/"+id+"/results", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, model.StatusPending, decode(t, rec)["status"])

	a.complete(t, id)
	rec = a.do(t, http.MethodGet, "/api/v1/extractions/"+id+"/results?sort=L%C3%A4nge&order=desc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Columns []string              `json:"columns"`
		Rows    []model.AggregatedRow `json:"rows"`
		Count   int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "IW", body.Rows[0].Key.Gruppe)

	rec = a.do(t, http.MethodGet, "/api/v1/extractions/"+id+"/observations", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no observations stored")

	rec = a.do(t, http.MethodGet, "/api/v1/jobs/"+id+"/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3.0, decode(t, rec)["elements"])

	rec = a.do(t, http.MethodGet, "/api/v1/comparisons/"+id+"/results", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "kind mismatch")
	rec = a.do(t, http.MethodGet, "/api/v1/extractions/unknown/results", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportExtraction(t *testing.T) {
	a := newTestAPI(t)
	id := a.createExtraction(t)
	a.complete(t, id)

	rec := a.do(t, http.MethodGet, "/api/v1/extractions/"+id+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "quantities-"+id+".csv")
	assert.Contains(t, rec.Body.String(), "IfcWall;AW;;;3,5;1")

	rec = a.do(t, http.MethodGet, "/api/v1/extractions/"+id+"/export?locale=en", nil)
	assert.Contains(t, rec.Body.String(), "IfcWall;AW;;;3.5;1")

	rec = a.do(t, http.MethodGet, "/api/v1/extractions/"+id+"/export?format=json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "aggregated", decode(t, rec)["export_info"].(map[string]any)["export_type"])

	rec = a.do(t, http.MethodGet, "/api/v1/extractions/"+id+"/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodGet, "/api/v1/extractions/"+id+"/export?locale=!!", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestComparisonEndpoints(t *testing.T) {
	a := newTestAPI(t)
	spec := model.ComparisonJobSpec{
		ModelA:   wallSpec().Model,
		ModelB:   wallSpec().Model,
		MappingA: wallSpec().Mapping,
	}
	rec := a.do(t, http.MethodPost, "/api/v1/comparisons", spec)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	id := decode(t, rec)["jobID"].(string)
	assert.Equal(t, []string{id}, a.runner.comparisons)

	spec.ModelB.Elements = nil
	rec = a.do(t, http.MethodPost, "/api/v1/comparisons", spec)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	delta := 0.5
	rows := []model.ComparisonRow{{
		Kategorie: "IfcWall", Gruppe: "AW", Eigenschaft: "Länge",
		WertA: model.Number(3.5), WertB: model.Number(4), Delta: &delta, Change: model.ChangeChanged,
	}}
	ctx := context.Background()
	require.NoError(t, a.db.SaveResult(ctx, id, store.ResultComparison, rows))
	require.NoError(t, a.db.UpdateJobStatus(ctx, id, model.StatusCompleted))

	rec = a.do(t, http.MethodGet, "/api/v1/comparisons/"+id+"/results?mirror=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Rows []model.ComparisonRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
	assert.Equal(t, model.Number(4), body.Rows[0].WertA)
	assert.Equal(t, -0.5, *body.Rows[0].Delta)

	rec = a.do(t, http.MethodGet, "/api/v1/comparisons/"+id+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, utils.ContentType("x.xlsx"), rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())

	require.NoError(t, a.db.SavePipelineLog(ctx, model.StageLog{JobID: id, Stage: "comparison", Level: "info", Message: "stage completed"}))
	rec = a.do(t, http.MethodGet, "/api/v1/comparisons/"+id+"/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decode(t, rec)["count"])
}

func TestRetryJob(t *testing.T) {
	a := newTestAPI(t)
	id := a.createExtraction(t)

	rec := a.do(t, http.MethodPost, "/api/v1/jobs/"+id+"/retry", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "pending jobs cannot be retried")

	a.complete(t, id)
	rec = a.do(t, http.MethodGet, "/api/v1/extractions/"+id+"/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/v1/jobs/"+id+"/retry", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "retrying", decode(t, rec)["status"])
	assert.Equal(t, []string{id}, a.runner.retries)

	// the retry invalidated the cached table, so a running job is reported again
	require.NoError(t, a.db.UpdateJobStatus(context.Background(), id, model.StatusRunning))
	rec = a.do(t, http.MethodGet, "/api/v1/extractions/"+id+"/results", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/jobs/"+id+"/retry", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestJobFiles(t *testing.T) {
	a := newTestAPI(t)
	id := a.createExtraction(t)

	rec := a.do(t, http.MethodGet, "/api/v1/jobs/"+id+"/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, decode(t, rec)["count"])

	path, err := a.outputs.FilePath(id, "mengen.csv")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("Kategorie;Gruppe\n"), 0o644))

	rec = a.do(t, http.MethodGet, "/api/v1/jobs/"+id+"/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decode(t, rec)["count"])

	rec = a.do(t, http.MethodGet, "/api/v1/jobs/"+id+"/files/mengen.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Kategorie;Gruppe\n", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "mengen.csv")

	rec = a.do(t, http.MethodGet, "/api/v1/jobs/"+id+"/files/missing.csv", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
