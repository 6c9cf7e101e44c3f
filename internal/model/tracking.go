package model

import "time"

// PipelineMetrics summarizes one extraction or comparison run.
type PipelineMetrics struct {
	Elements         int64                   `json:"elements"`
	RuleDriven       int64                   `json:"rule_driven"`
	Heuristic        int64                   `json:"heuristic"`
	Observations     int64                   `json:"observations"`
	AggregatedRows   int64                   `json:"aggregated_rows"`
	ComparisonRows   int64                   `json:"comparison_rows,omitempty"`
	Scale            float64                 `json:"scale"`
	ProcessingTime   time.Duration           `json:"processing_time"`
	ThroughputPerSec float64                 `json:"throughput_per_sec"`
	StageMetrics     map[string]StageMetrics `json:"stage_metrics"`
}

// StageMetrics represents metrics for a specific pipeline stage
type StageMetrics struct {
	StageName   string        `json:"stage_name"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	RecordsIn   int64         `json:"records_in"`
	RecordsOut  int64         `json:"records_out"`
	WorkerCount int           `json:"worker_count"`
}

// StageLog is a persisted log line of a job stage.
type StageLog struct {
	JobID     string         `json:"job_id"`
	Stage     string         `json:"stage"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
