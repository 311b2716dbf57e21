package jobstore

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voicebridge/dubline/internal/model"
)

const (
	// maxFieldLen caps the length of error/warning strings stored per stage.
	maxFieldLen = 2000

	// recordChannelBuffer is how many job/stage events can queue before the
	// background drain goroutine writes them to the store.
	recordChannelBuffer = 64
)

type recordMsg struct {
	kind string // "job_start", "job_end", "stage"
	// job fields
	jobID        string
	durationMs   float64
	success      bool
	syncGood     int
	syncFair     int
	syncPoor     int
	overallLUFS  float64
	partialCount int
	// stage fields
	stage model.StageResult
}

// Tracer persists job/stage transitions asynchronously via a buffered
// channel, so a slow database write never blocks the Orchestrator's stage
// loop. It implements orchestrator.Recorder; all methods are nil-safe.
type Tracer struct {
	store *Store
	ch    chan recordMsg
	done  chan struct{}
}

// NewTracer creates a tracer backed by store. Launches a background
// goroutine (drain) that writes events to the store sequentially. Callers
// MUST call Close() when done to flush pending writes and stop the
// goroutine — otherwise writes are lost and the goroutine leaks.
func NewTracer(store *Store) *Tracer {
	t := &Tracer{
		store: store,
		ch:    make(chan recordMsg, recordChannelBuffer),
		done:  make(chan struct{}),
	}
	go t.drain()
	return t
}

func (t *Tracer) drain() {
	defer close(t.done)
	for msg := range t.ch {
		t.handle(msg)
	}
}

func (t *Tracer) handle(m recordMsg) {
	if err := t.dispatch(m); err != nil {
		slog.Warn("jobstore write failed", "kind", m.kind, "job_id", m.jobID, "error", err)
	}
}

func (t *Tracer) dispatch(m recordMsg) error {
	switch m.kind {
	case "job_start":
		return t.store.CreateJob(m.jobID)
	case "job_end":
		return t.store.EndJob(m.jobID, m.durationMs, m.success, m.syncGood, m.syncFair, m.syncPoor, m.overallLUFS, m.partialCount)
	case "stage":
		return t.store.CreateStage(StageRecord{
			ID:         uuid.NewString(),
			JobID:      m.jobID,
			Name:       string(m.stage.Name),
			StartedAt:  time.Now().UTC(),
			DurationMs: m.stage.DurationMs,
			Status:     string(m.stage.Status),
			Error:      truncate(m.stage.Error, maxFieldLen),
			ErrorKind:  m.stage.ErrorKind,
			Warnings:   truncate(strings.Join(m.stage.Warnings, "\n"), maxFieldLen),
		})
	}
	return nil
}

// StartJob records a job's creation.
func (t *Tracer) StartJob(jobID string) {
	if t == nil {
		return
	}
	t.ch <- recordMsg{kind: "job_start", jobID: jobID}
}

// RecordStage records one stage's terminal outcome.
func (t *Tracer) RecordStage(jobID string, stage model.StageResult) {
	if t == nil {
		return
	}
	t.ch <- recordMsg{kind: "stage", jobID: jobID, stage: stage}
}

// EndJob records a job's terminal status and rollup metrics.
func (t *Tracer) EndJob(jobID string, result model.Result) {
	if t == nil {
		return
	}
	var durationMs float64
	for _, s := range result.Stages {
		durationMs += s.DurationMs
	}
	t.ch <- recordMsg{
		kind:         "job_end",
		jobID:        jobID,
		durationMs:   durationMs,
		success:      result.Success,
		syncGood:     result.Metrics.SyncGood,
		syncFair:     result.Metrics.SyncFair,
		syncPoor:     result.Metrics.SyncPoor,
		overallLUFS:  result.Metrics.OverallLUFS,
		partialCount: result.Metrics.PartialCount,
	}
}

// Close drains pending writes and shuts down the background goroutine.
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	close(t.ch)
	<-t.done
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
