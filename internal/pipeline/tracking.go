package pipeline

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"quantity-pipeline/internal/model"
)

// Stage names.
const (
	StageScale       = "scale"
	StageTransform   = "transform"
	StageSchema      = "schema"
	StageAggregation = "aggregation"
	StageUnits       = "units"
	StageComparison  = "comparison"
	StageExport      = "export"
)

var (
	// stageDuration tracks stage latency
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quantities_stage_duration_seconds",
		Help:    "Pipeline stage duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"stage"})

	// stageRecords counts records leaving each stage
	stageRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantities_stage_records_total",
		Help: "Records produced per pipeline stage",
	}, []string{"stage"})

	// runsTotal counts finished runs by kind and status
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantities_runs_total",
		Help: "Finished pipeline runs by kind and status",
	}, []string{"kind", "status"})

	// elementsTotal counts categorized elements by mode
	elementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantities_elements_total",
		Help: "Categorized elements by categorization mode",
	}, []string{"mode"})
)

// StageSink receives a log line whenever a stage starts or ends.
type StageSink func(model.StageLog)

// Tracker records per-stage timings and row counts of one run.
type Tracker struct {
	JobID string
	Kind  model.JobKind

	mu      sync.Mutex
	start   time.Time
	metrics model.PipelineMetrics
	sink    StageSink

	// parent is set on sub-trackers, which record into it under prefix.
	parent *Tracker
	prefix string
}

// NewTracker starts tracking a run. sink may be nil.
func NewTracker(jobID string, kind model.JobKind, sink StageSink) *Tracker {
	return &Tracker{
		JobID:   jobID,
		Kind:    kind,
		start:   time.Now(),
		sink:    sink,
		metrics: model.PipelineMetrics{StageMetrics: make(map[string]model.StageMetrics)},
	}
}

// Sub returns a tracker whose stages are recorded in t as "<prefix>.<stage>".
// The sub-tracker also keeps its own metrics under the plain stage names.
// Comparisons use it to keep the two snapshots apart.
func (t *Tracker) Sub(prefix string) *Tracker {
	if t == nil {
		return nil
	}
	return &Tracker{
		JobID:   t.JobID,
		Kind:    t.Kind,
		start:   time.Now(),
		metrics: model.PipelineMetrics{StageMetrics: make(map[string]model.StageMetrics)},
		parent:  t,
		prefix:  prefix + ".",
	}
}

// StartStage marks the start of a pipeline stage
func (t *Tracker) StartStage(stage string, workerCount int, recordsIn int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.metrics.StageMetrics[stage] = model.StageMetrics{
		StageName:   stage,
		StartTime:   time.Now(),
		RecordsIn:   recordsIn,
		WorkerCount: workerCount,
	}
	t.mu.Unlock()
	if t.parent != nil {
		t.parent.StartStage(t.prefix+stage, workerCount, recordsIn)
		return
	}

	t.emit(stage, "info", "stage started", map[string]any{"records_in": recordsIn, "workers": workerCount})
}

// EndStage marks the end of a pipeline stage
func (t *Tracker) EndStage(stage string, recordsOut int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	sm := t.metrics.StageMetrics[stage]
	sm.StageName = stage
	sm.EndTime = time.Now()
	if sm.StartTime.IsZero() {
		sm.StartTime = sm.EndTime
	}
	sm.Duration = sm.EndTime.Sub(sm.StartTime)
	sm.RecordsOut = recordsOut
	t.metrics.StageMetrics[stage] = sm
	t.mu.Unlock()
	if t.parent != nil {
		t.parent.EndStage(t.prefix+stage, recordsOut)
		return
	}

	label := stage
	if i := strings.LastIndexByte(stage, '.'); i >= 0 {
		label = stage[i+1:]
	}
	stageDuration.WithLabelValues(label).Observe(sm.Duration.Seconds())
	stageRecords.WithLabelValues(label).Add(float64(recordsOut))
	slog.Info("stage completed", "job", t.JobID, "stage", stage, "records_in", sm.RecordsIn, "records_out", recordsOut, "duration", sm.Duration)
	t.emit(stage, "info", "stage completed", map[string]any{
		"records_out": recordsOut,
		"duration_ms": sm.Duration.Milliseconds(),
	})
}

// Update applies fn to the run metrics under the tracker lock. On a
// sub-tracker fn is applied to its own metrics and to the parent's.
func (t *Tracker) Update(fn func(*model.PipelineMetrics)) {
	if t == nil {
		return
	}
	t.mu.Lock()
	fn(&t.metrics)
	t.mu.Unlock()
	if t.parent != nil {
		t.parent.Update(fn)
	}
}

// SetScale records the length scale of the tracked model. A sub-tracker
// keeps it to itself; the parent spans two models.
func (t *Tracker) SetScale(scale float64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics.Scale = scale
}

// CountElements records how many elements went through each mode.
func (t *Tracker) CountElements(ruleDriven, heuristic int64) {
	elementsTotal.WithLabelValues("rule").Add(float64(ruleDriven))
	elementsTotal.WithLabelValues("heuristic").Add(float64(heuristic))
	t.Update(func(m *model.PipelineMetrics) {
		m.RuleDriven += ruleDriven
		m.Heuristic += heuristic
		m.Elements += ruleDriven + heuristic
	})
}

// Complete closes the run as successful.
func (t *Tracker) Complete() {
	t.finish(model.StatusCompleted)
}

// Fail closes the run as failed and logs err.
func (t *Tracker) Fail(stage string, err error) {
	if t == nil {
		return
	}
	if t.parent != nil {
		t.parent.emit(t.prefix+stage, "error", err.Error(), nil)
		return
	}
	t.emit(stage, "error", err.Error(), nil)
	t.finish(model.StatusFailed)
}

func (t *Tracker) finish(status string) {
	if t == nil || t.parent != nil {
		return
	}
	t.mu.Lock()
	t.metrics.ProcessingTime = time.Since(t.start)
	if secs := t.metrics.ProcessingTime.Seconds(); secs > 0 {
		t.metrics.ThroughputPerSec = float64(t.metrics.Elements) / secs
	}
	t.mu.Unlock()
	runsTotal.WithLabelValues(string(t.Kind), status).Inc()
}

// Metrics returns a copy of the collected metrics.
func (t *Tracker) Metrics() model.PipelineMetrics {
	if t == nil {
		return model.PipelineMetrics{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.metrics
	m.StageMetrics = make(map[string]model.StageMetrics, len(t.metrics.StageMetrics))
	for k, v := range t.metrics.StageMetrics {
		m.StageMetrics[k] = v
	}
	return m
}

func (t *Tracker) emit(stage, level, msg string, details map[string]any) {
	if t.sink == nil {
		return
	}
	t.sink(model.StageLog{
		JobID:     t.JobID,
		Stage:     stage,
		Level:     level,
		Message:   msg,
		Details:   details,
		CreatedAt: time.Now(),
	})
}
