package jobstore

import "time"

// JobRecord is one persisted row of the jobs table: the outer envelope
// around a dubbing job's lifecycle and final rollup metrics.
type JobRecord struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"` // "running", "succeeded", "failed"
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	DurationMs   float64    `json:"duration_ms,omitempty"`
	SyncGood     int        `json:"sync_good,omitempty"`
	SyncFair     int        `json:"sync_fair,omitempty"`
	SyncPoor     int        `json:"sync_poor,omitempty"`
	OverallLUFS  float64    `json:"overall_lufs,omitempty"`
	PartialCount int        `json:"partial_count,omitempty"`
	StageCount   int        `json:"stage_count,omitempty"`
}

// StageRecord is one persisted row of the job_stages table: one of the
// seven pipeline stages' terminal outcome for a given job.
type StageRecord struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Warnings   string    `json:"warnings,omitempty"` // newline-joined; callers split on "\n"
}
