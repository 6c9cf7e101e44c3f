package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"quantity-pipeline/internal/model"
)

// ErrNotFound is returned when a job or result does not exist.
var ErrNotFound = errors.New("not found")

// Result kinds stored per job.
const (
	ResultObservations = "observations"
	ResultAggregated   = "aggregated"
	ResultComparison   = "comparison"
	ResultMetrics      = "metrics"
	ResultExport       = "export"
)

// DB persists jobs, their stage logs and their result tables in sqlite.
type DB struct {
	db *sql.DB
}

// Job is a stored extraction or comparison job.
type Job struct {
	ID        string          `json:"id"`
	Kind      model.JobKind   `json:"kind"`
	Status    string          `json:"status"`
	Spec      json.RawMessage `json:"spec,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	spec TEXT,
	status TEXT,
	error TEXT NOT NULL DEFAULT '',
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS job_errors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT,
	error_message TEXT,
	created_at DATETIME
);
CREATE TABLE IF NOT EXISTS pipeline_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT,
	stage TEXT,
	level TEXT,
	message TEXT,
	details TEXT,
	created_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_pipeline_logs_job ON pipeline_logs(job_id);
CREATE TABLE IF NOT EXISTS results (
	job_id TEXT,
	kind TEXT,
	payload TEXT,
	created_at DATETIME,
	PRIMARY KEY (job_id, kind)
);
`

// Open connects to the sqlite database at path and creates missing tables.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (s *DB) Close() error {
	return s.db.Close()
}

// SaveJob stores a new pending job
func (s *DB) SaveJob(ctx context.Context, jobID string, kind model.JobKind, spec any) error {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("encode job spec: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, kind, spec, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		jobID, string(kind), string(specJSON), model.StatusPending, now, now)
	if err != nil {
		return fmt.Errorf("save job %s: %w", jobID, err)
	}
	return nil
}

// UpdateJobStatus updates job status
func (s *DB) UpdateJobStatus(ctx context.Context, jobID, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// SaveJobError records an error for a job and marks it failed
func (s *DB) SaveJobError(ctx context.Context, jobID string, jobErr error) error {
	if jobErr == nil {
		return nil
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO job_errors (job_id, error_message, created_at) VALUES (?, ?, ?)`,
		jobID, jobErr.Error(), now); err != nil {
		return fmt.Errorf("save job error: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		model.StatusFailed, jobErr.Error(), now, jobID)
	return err
}

// GetJob fetches full job spec and status
func (s *DB) GetJob(ctx context.Context, jobID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, spec, status, error, created_at, updated_at FROM jobs WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// ListJobs returns jobs of kind, newest first, without their specs. An empty
// kind lists all jobs.
func (s *DB) ListJobs(ctx context.Context, kind model.JobKind) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, '', status, error, created_at, updated_at FROM jobs
		 WHERE ? = '' OR kind = ? ORDER BY created_at DESC`, string(kind), string(kind))
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		job  Job
		kind string
		spec string
	)
	if err := row.Scan(&job.ID, &kind, &spec, &job.Status, &job.Error, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	job.Kind = model.JobKind(kind)
	if spec != "" {
		job.Spec = json.RawMessage(spec)
	}
	return &job, nil
}

// DecodeSpec unmarshals the stored spec of job into target.
func DecodeSpec(job *Job, target any) error {
	if len(job.Spec) == 0 {
		return fmt.Errorf("job %s has no stored spec", job.ID)
	}
	if err := json.Unmarshal(job.Spec, target); err != nil {
		return fmt.Errorf("decode spec of job %s: %w", job.ID, err)
	}
	return nil
}

// SavePipelineLog stores one stage log line.
func (s *DB) SavePipelineLog(ctx context.Context, entry model.StageLog) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("encode log details: %w", err)
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pipeline_logs (job_id, stage, level, message, details, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.JobID, entry.Stage, entry.Level, entry.Message, string(details), created.UTC())
	if err != nil {
		return fmt.Errorf("save pipeline log: %w", err)
	}
	return nil
}

// GetPipelineLogs returns the log lines of a job in insertion order.
func (s *DB) GetPipelineLogs(ctx context.Context, jobID string) ([]model.StageLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, stage, level, message, details, created_at FROM pipeline_logs WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("get pipeline logs: %w", err)
	}
	defer rows.Close()

	logs := []model.StageLog{}
	for rows.Next() {
		var (
			entry   model.StageLog
			details string
		)
		if err := rows.Scan(&entry.JobID, &entry.Stage, &entry.Level, &entry.Message, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("get pipeline logs: %w", err)
		}
		if details != "" && details != "null" {
			if err := json.Unmarshal([]byte(details), &entry.Details); err != nil {
				return nil, fmt.Errorf("decode log details: %w", err)
			}
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// SaveResult stores (or replaces) one result table of a job as JSON.
func (s *DB) SaveResult(ctx context.Context, jobID, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s result: %w", kind, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (job_id, kind, payload, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(job_id, kind) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at`,
		jobID, kind, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save %s result: %w", kind, err)
	}
	return nil
}

// GetResult decodes a stored result table into target.
func (s *DB) GetResult(ctx context.Context, jobID, kind string, target any) error {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM results WHERE job_id = ? AND kind = ?`, jobID, kind).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s result of job %s: %w", kind, jobID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get %s result: %w", kind, err)
	}
	if err := json.Unmarshal([]byte(payload), target); err != nil {
		return fmt.Errorf("decode %s result: %w", kind, err)
	}
	return nil
}

// DeleteResults drops the stored results of a job, used before a retry.
func (s *DB) DeleteResults(ctx context.Context, jobID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("delete results of job %s: %w", jobID, err)
	}
	return nil
}
