package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"quantity-pipeline/internal/model"
	"quantity-pipeline/internal/modelfile"
	"quantity-pipeline/internal/store"
	"quantity-pipeline/pkg/utils"
)

// JobStore is the persistence the runner reports into.
type JobStore interface {
	UpdateJobStatus(ctx context.Context, jobID, status string) error
	SaveJobError(ctx context.Context, jobID string, err error) error
	SavePipelineLog(ctx context.Context, entry model.StageLog) error
	SaveResult(ctx context.Context, jobID, kind string, payload any) error
	DeleteResults(ctx context.Context, jobID string) error
}

// Runner executes stored extraction and comparison jobs.
type Runner struct {
	Store    JobStore
	Outputs  *utils.OutputManager
	Defaults model.RunOptions
	Locale   utils.Locale
	Timeout  time.Duration
	// OnDone is called after a job finished, successfully or not.
	OnDone func(jobID string)
}

// ------------------- Async start -------------------

// StartExtraction runs an extraction job in the background.
func (r *Runner) StartExtraction(jobID string, spec model.ExtractionJobSpec) {
	r.start(jobID, spec.Timeout, func(ctx context.Context) error {
		return r.RunExtraction(ctx, jobID, spec)
	})
}

// StartComparison runs a comparison job in the background.
func (r *Runner) StartComparison(jobID string, spec model.ComparisonJobSpec) {
	r.start(jobID, spec.Timeout, func(ctx context.Context) error {
		return r.RunComparison(ctx, jobID, spec)
	})
}

// StartRetry reruns a stored job in the background under the timeout of its
// stored spec.
func (r *Runner) StartRetry(job *store.Job) {
	var spec struct {
		Timeout string `json:"timeout"`
	}
	if err := store.DecodeSpec(job, &spec); err != nil {
		slog.Warn("retry without stored timeout", "job", job.ID, "error", err)
	}
	r.start(job.ID, spec.Timeout, func(ctx context.Context) error {
		return r.Retry(ctx, job)
	})
}

func (r *Runner) start(jobID, timeout string, run func(context.Context) error) {
	d := r.Timeout
	if timeout != "" || d <= 0 {
		d = utils.ParseDuration(timeout)
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	go func() {
		defer cancel()
		if err := run(ctx); err != nil {
			slog.Error("job failed", "job", jobID, "error", err)
		}
	}()
}

// ------------------- Execution -------------------

// RunExtraction executes one extraction job and persists its tables.
func (r *Runner) RunExtraction(ctx context.Context, jobID string, spec model.ExtractionJobSpec) (err error) {
	defer r.done(ctx, jobID, &err)
	if err := r.Store.UpdateJobStatus(ctx, jobID, model.StatusRunning); err != nil {
		return err
	}

	reader, err := modelfile.FromDump(spec.Model)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	tr := NewTracker(jobID, model.JobExtraction, r.sink(ctx))
	res, err := Run(ctx, reader, spec.Mapping, Options{RunOptions: r.options(spec.Options), Tracker: tr})
	if err != nil {
		return err
	}

	if err := r.save(ctx, jobID, store.ResultObservations, res.Observations); err != nil {
		return err
	}
	if err := r.save(ctx, jobID, store.ResultAggregated, res.Aggregated); err != nil {
		return err
	}

	if spec.Export != nil && spec.Export.File != "" {
		em, path, err := r.exporter(jobID, tr, *spec.Export)
		if err != nil {
			return err
		}
		tr.StartStage(StageExport, 1, int64(len(res.Aggregated.Rows)))
		result := em.ExportAggregated(ctx, path, res.Aggregated)
		tr.EndStage(StageExport, int64(result.RecordCount))
		if err := r.save(ctx, jobID, store.ResultExport, result); err != nil {
			return err
		}
	}

	tr.Complete()
	return r.save(ctx, jobID, store.ResultMetrics, tr.Metrics())
}

// RunComparison executes one comparison job and persists the difference table.
func (r *Runner) RunComparison(ctx context.Context, jobID string, spec model.ComparisonJobSpec) (err error) {
	defer r.done(ctx, jobID, &err)
	if err := r.Store.UpdateJobStatus(ctx, jobID, model.StatusRunning); err != nil {
		return err
	}

	readerA, err := modelfile.FromDump(spec.ModelA)
	if err != nil {
		return fmt.Errorf("load model A: %w", err)
	}
	readerB, err := modelfile.FromDump(spec.ModelB)
	if err != nil {
		return fmt.Errorf("load model B: %w", err)
	}
	mappingB := spec.MappingA
	if spec.MappingB != nil {
		mappingB = *spec.MappingB
	}

	tr := NewTracker(jobID, model.JobComparison, r.sink(ctx))
	cmp, err := CompareRun(ctx, readerA, readerB, spec.MappingA, mappingB,
		Options{RunOptions: r.options(spec.Options), Tracker: tr}, spec.Compare)
	if err != nil {
		return err
	}
	if err := r.save(ctx, jobID, store.ResultComparison, cmp.Rows); err != nil {
		return err
	}

	if spec.Export != nil && spec.Export.File != "" {
		em, path, err := r.exporter(jobID, tr, *spec.Export)
		if err != nil {
			return err
		}
		tr.StartStage(StageExport, 1, int64(len(cmp.Rows)))
		result := em.ExportComparison(ctx, path, cmp.Rows)
		tr.EndStage(StageExport, int64(result.RecordCount))
		if err := r.save(ctx, jobID, store.ResultExport, result); err != nil {
			return err
		}
	}

	tr.Complete()
	return r.save(ctx, jobID, store.ResultMetrics, tr.Metrics())
}

// Retry drops the stored results of job and runs its spec again.
func (r *Runner) Retry(ctx context.Context, job *store.Job) error {
	if err := r.Store.DeleteResults(ctx, job.ID); err != nil {
		return err
	}
	switch job.Kind {
	case model.JobExtraction:
		var spec model.ExtractionJobSpec
		if err := store.DecodeSpec(job, &spec); err != nil {
			return err
		}
		return r.RunExtraction(ctx, job.ID, spec)
	case model.JobComparison:
		var spec model.ComparisonJobSpec
		if err := store.DecodeSpec(job, &spec); err != nil {
			return err
		}
		return r.RunComparison(ctx, job.ID, spec)
	default:
		return fmt.Errorf("job %s: unknown kind %q", job.ID, job.Kind)
	}
}

// ------------------- Helpers -------------------

// options fills the unset fields of o from the runner defaults.
func (r *Runner) options(o model.RunOptions) model.RunOptions {
	out := o
	out.ConvertMMToM = o.ConvertMMToM || r.Defaults.ConvertMMToM
	if len(out.MillimeterFields) == 0 {
		out.MillimeterFields = r.Defaults.MillimeterFields
	}
	if out.Workers < 1 {
		out.Workers = r.Defaults.Workers
	}
	return out
}

func (r *Runner) exporter(jobID string, tr *Tracker, exp model.Export) (*ExportManager, string, error) {
	loc := r.Locale
	if exp.Locale != "" {
		parsed, err := utils.ParseLocale(exp.Locale)
		if err != nil {
			tr.Fail(StageExport, err)
			return nil, "", err
		}
		loc = parsed
	}
	outputs := r.Outputs
	if outputs == nil {
		outputs = utils.NewOutputManager("exports")
	}
	path, err := outputs.FilePath(jobID, exp.File)
	if err != nil {
		tr.Fail(StageExport, err)
		return nil, "", err
	}
	return NewExportManager(jobID, loc), path, nil
}

// sink persists stage logs; writes outlive a cancelled job context so the
// failure itself is still recorded.
func (r *Runner) sink(ctx context.Context) StageSink {
	logCtx := context.WithoutCancel(ctx)
	return func(entry model.StageLog) {
		if err := r.Store.SavePipelineLog(logCtx, entry); err != nil {
			slog.Warn("failed to save pipeline log", "job", entry.JobID, "stage", entry.Stage, "error", err)
		}
	}
}

func (r *Runner) save(ctx context.Context, jobID, kind string, payload any) error {
	err := WithRetry(ctx, DefaultRetryConfigs["store"], func() error {
		return r.Store.SaveResult(ctx, jobID, kind, payload)
	})
	if err != nil {
		return fmt.Errorf("persist %s: %w", kind, err)
	}
	return nil
}

// done records the final job status.
func (r *Runner) done(ctx context.Context, jobID string, errp *error) {
	finalCtx := context.WithoutCancel(ctx)
	if err := *errp; err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("job timed out: %w", err)
			*errp = err
		}
		if serr := r.Store.SaveJobError(finalCtx, jobID, err); serr != nil {
			slog.Error("failed to save job error", "job", jobID, "error", serr)
		}
	} else if serr := r.Store.UpdateJobStatus(finalCtx, jobID, model.StatusCompleted); serr != nil {
		*errp = serr
	}
	if r.OnDone != nil {
		r.OnDone(jobID)
	}
}
