package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantity-pipeline/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "quantities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestJobLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	spec := model.ExtractionJobSpec{Timeout: "1m", Mapping: model.Mapping{Categories: map[string]string{"IfcWall": "Wände"}}}

	require.NoError(t, db.SaveJob(ctx, "job-1", model.JobExtraction, spec))
	job, err := db.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobExtraction, job.Kind)
	assert.Equal(t, model.StatusPending, job.Status)
	assert.WithinDuration(t, time.Now(), job.CreatedAt, time.Minute)

	var decoded model.ExtractionJobSpec
	require.NoError(t, DecodeSpec(job, &decoded))
	assert.Equal(t, "1m", decoded.Timeout)
	assert.Equal(t, "Wände", decoded.Mapping.Categories["IfcWall"])

	require.NoError(t, db.UpdateJobStatus(ctx, "job-1", model.StatusRunning))
	require.NoError(t, db.SaveJobError(ctx, "job-1", errors.New("model contains no elements")))
	job, err = db.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, job.Status)
	assert.Equal(t, "model contains no elements", job.Error)

	assert.NoError(t, db.SaveJobError(ctx, "job-1", nil))
}

func TestJobNotFound(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.UpdateJobStatus(ctx, "missing", model.StatusRunning), ErrNotFound)

	var table model.AggregatedTable
	assert.ErrorIs(t, db.GetResult(ctx, "missing", ResultAggregated, &table), ErrNotFound)
}

func TestListJobs(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveJob(ctx, "e1", model.JobExtraction, struct{}{}))
	require.NoError(t, db.SaveJob(ctx, "c1", model.JobComparison, struct{}{}))
	require.NoError(t, db.SaveJob(ctx, "e2", model.JobExtraction, struct{}{}))

	extractions, err := db.ListJobs(ctx, model.JobExtraction)
	require.NoError(t, err)
	require.Len(t, extractions, 2)
	assert.Equal(t, "e2", extractions[0].ID, "newest first")
	assert.Empty(t, extractions[0].Spec)

	all, err := db.ListJobs(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPipelineLogs(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SavePipelineLog(ctx, model.StageLog{JobID: "j", Stage: "transform", Level: "info", Message: "stage started", Details: map[string]any{"workers": 4}}))
	require.NoError(t, db.SavePipelineLog(ctx, model.StageLog{JobID: "j", Stage: "transform", Level: "info", Message: "stage completed"}))
	require.NoError(t, db.SavePipelineLog(ctx, model.StageLog{JobID: "other", Stage: "scale"}))

	logs, err := db.GetPipelineLogs(ctx, "j")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "stage started", logs[0].Message)
	assert.Equal(t, 4.0, logs[0].Details["workers"])
	assert.Nil(t, logs[1].Details)

	none, err := db.GetPipelineLogs(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestResults(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	table := model.AggregatedTable{
		Columns: []string{"Länge", "Material"},
		Rows: []model.AggregatedRow{{
			Key:    model.GroupKey{Kategorie: "Wände", Gruppe: "AW"},
			Values: map[string]model.Value{"Länge": model.Number(7.5), "Material": model.Text("Beton")},
		}},
	}
	require.NoError(t, db.SaveResult(ctx, "j", ResultAggregated, table))

	var got model.AggregatedTable
	require.NoError(t, db.GetResult(ctx, "j", ResultAggregated, &got))
	assert.Equal(t, table, got)

	table.Columns = []string{"Länge"}
	require.NoError(t, db.SaveResult(ctx, "j", ResultAggregated, table), "results are replaced")
	require.NoError(t, db.GetResult(ctx, "j", ResultAggregated, &got))
	assert.Equal(t, []string{"Länge"}, got.Columns)

	require.NoError(t, db.DeleteResults(ctx, "j"))
	assert.ErrorIs(t, db.GetResult(ctx, "j", ResultAggregated, &got), ErrNotFound)
}
