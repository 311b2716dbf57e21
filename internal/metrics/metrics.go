// Package metrics registers the Prometheus gauges, counters, and
// histograms exported by a running dubline worker, all declared once at
// package init via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsActive is the number of jobs currently inside Orchestrator.Run.
	JobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dubline_jobs_active",
		Help: "Currently running dubbing jobs",
	})

	// JobsTotal counts every job that reached a terminal state, by outcome.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dubline_jobs_total",
		Help: "Total dubbing jobs processed, by outcome",
	}, []string{"outcome"}) // "succeeded" | "failed"

	// StageDuration is per-stage wall-clock latency, keyed by stage name.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dubline_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600, 1200},
	}, []string{"stage"})

	// StageErrors counts stage failures/degradations by stage and error kind.
	StageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dubline_stage_errors_total",
		Help: "Stage failure/degradation counts by stage and error kind",
	}, []string{"stage", "error_kind"})

	// SyncQuality tallies S5's per-segment sync bucket across every job.
	SyncQuality = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dubline_sync_quality_total",
		Help: "Synthesized segment counts by sync quality bucket",
	}, []string{"bucket"}) // "good" | "fair" | "poor"

	// OverallLUFS is the integrated loudness of the most recently mixed job.
	OverallLUFS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dubline_overall_lufs",
		Help: "Integrated loudness (LUFS) of the most recently completed job's final mix",
	})
)
