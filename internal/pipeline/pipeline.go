package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"quantity-pipeline/internal/model"
)

// ErrNoElements is returned when the model reader yields no elements at all.
var ErrNoElements = errors.New("model contains no elements")

// channelBuffer sizes the channels between the streaming stages.
const channelBuffer = 64

// Options configure one Run.
type Options struct {
	model.RunOptions
	// Tracker records stage metrics; nil disables tracking.
	Tracker *Tracker
}

// Result holds every table one extraction produced.
type Result struct {
	Scale        float64                `json:"scale"`
	Observations []model.ObservationRow `json:"observations"`
	Aggregated   model.AggregatedTable  `json:"aggregated"`
	Schema       *Schema                `json:"schema"`
	UnitColumns  map[string]string      `json:"unit_columns,omitempty"` // renamed millimeter column -> schema column
	Skipped      int                    `json:"skipped"`
	Metrics      model.PipelineMetrics  `json:"metrics"`
}

// ------------------- Pipeline Runner -------------------

// Run extracts the quantities of one model: scale detection, flattening,
// categorization, row building, schema resolution, aggregation and the unit
// pass. It depends only on its arguments; mapping is not modified.
func Run(ctx context.Context, reader ModelReader, mapping model.Mapping, opts Options) (*Result, error) {
	tr := opts.Tracker
	if err := mapping.Validate(); err != nil {
		tr.Fail(StageSchema, err)
		return nil, fmt.Errorf("invalid mapping: %w", err)
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	// --- SCALE ---
	tr.StartStage(StageScale, 1, 0)
	scale := DetectScale(reader)
	tr.EndStage(StageScale, 1)
	tr.SetScale(scale)

	// --- INGESTION + TRANSFORMATION ---
	tr.StartStage(StageTransform, workers, 0)
	transformed, err := transformAll(ctx, reader, mapping, scale, opts.SkipUnmapped, workers)
	if err != nil {
		tr.Fail(StageTransform, err)
		return nil, err
	}

	res := &Result{Scale: scale}
	var ruleDriven, heuristic int64
	for _, t := range transformed {
		if t.Skipped {
			res.Skipped++
			continue
		}
		if t.RuleDriven {
			ruleDriven++
		} else {
			heuristic++
		}
		res.Observations = append(res.Observations, t.Rows...)
	}
	tr.CountElements(ruleDriven, heuristic)
	tr.EndStage(StageTransform, int64(len(res.Observations)))

	// --- SCHEMA ---
	tr.StartStage(StageSchema, 1, int64(len(res.Observations)))
	schema, err := BuildSchema(res.Observations, mapping, true)
	if err != nil {
		tr.Fail(StageSchema, err)
		return nil, fmt.Errorf("build schema: %w", err)
	}
	res.Schema = schema
	tr.EndStage(StageSchema, int64(len(schema.Categories)))

	// --- AGGREGATION ---
	tr.StartStage(StageAggregation, workers, int64(len(res.Observations)))
	table, err := Aggregate(ctx, res.Observations, schema, AggregateOptions{Workers: workers})
	if err != nil {
		tr.Fail(StageAggregation, err)
		return nil, err
	}
	tr.EndStage(StageAggregation, int64(len(table.Rows)))

	// --- UNITS ---
	tr.StartStage(StageUnits, 1, int64(len(table.Rows)))
	res.Aggregated = ApplyUnits(table, opts.MillimeterFields, opts.ConvertMMToM)
	res.UnitColumns = UnitSources(table.Columns, opts.MillimeterFields, opts.ConvertMMToM)
	tr.EndStage(StageUnits, int64(len(res.Aggregated.Rows)))

	tr.Update(func(m *model.PipelineMetrics) {
		m.Observations += int64(len(res.Observations))
		m.AggregatedRows += int64(len(res.Aggregated.Rows))
	})
	res.Metrics = tr.Metrics()

	slog.Info("extraction finished",
		"elements", len(transformed),
		"skipped", res.Skipped,
		"rule_driven", ruleDriven,
		"heuristic", heuristic,
		"observations", len(res.Observations),
		"rows", len(res.Aggregated.Rows),
		"scale", scale,
	)
	return res, nil
}

// transformAll streams the model through the transformation workers and
// returns the per-element results in model order.
func transformAll(ctx context.Context, reader ModelReader, mapping model.Mapping, scale float64, skipUnmapped bool, workers int) ([]elementRows, error) {
	elementsCh := make(chan indexedElement, channelBuffer)
	rowsCh := make(chan elementRows, channelBuffer)

	var g errgroup.Group
	g.Go(func() error {
		_, err := StartIngestion(ctx, reader, elementsCh)
		return err
	})

	TransformElements(ctx, NewCategorizer(mapping, scale), mapping, skipUnmapped, elementsCh, rowsCh, workers)

	var out []elementRows
	for r := range rowsCh {
		out = append(out, r)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// Comparison is the outcome of CompareRun.
type Comparison struct {
	A    *Result               `json:"a"`
	B    *Result               `json:"b"`
	Rows []model.ComparisonRow `json:"rows"`
}

// CompareRun extracts two models concurrently and compares them.
func CompareRun(ctx context.Context, readerA, readerB ModelReader, mappingA, mappingB model.Mapping, opts Options, cmp model.CompareOptions) (*Comparison, error) {
	out := &Comparison{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := Run(gctx, readerA, mappingA, Options{RunOptions: opts.RunOptions, Tracker: opts.Tracker.Sub("a")})
		if err != nil {
			return fmt.Errorf("model A: %w", err)
		}
		out.A = res
		return nil
	})
	g.Go(func() error {
		res, err := Run(gctx, readerB, mappingB, Options{RunOptions: opts.RunOptions, Tracker: opts.Tracker.Sub("b")})
		if err != nil {
			return fmt.Errorf("model B: %w", err)
		}
		out.B = res
		return nil
	})
	if err := g.Wait(); err != nil {
		opts.Tracker.Fail(StageComparison, err)
		return nil, err
	}

	tr := opts.Tracker
	tr.StartStage(StageComparison, 1, int64(len(out.A.Aggregated.Rows)+len(out.B.Aggregated.Rows)))
	out.Rows = CompareModels(out.A, out.B, cmp)
	tr.EndStage(StageComparison, int64(len(out.Rows)))
	tr.Update(func(m *model.PipelineMetrics) { m.ComparisonRows = int64(len(out.Rows)) })

	slog.Info("comparison finished", "rows_a", len(out.A.Aggregated.Rows), "rows_b", len(out.B.Aggregated.Rows), "differences", len(out.Rows))
	return out, nil
}
