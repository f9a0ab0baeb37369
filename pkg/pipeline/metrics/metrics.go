// Package metrics exposes the pipeline's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Clamp kinds.
	ClampHealth      = "health"
	ClampProbability = "probability"
	ClampRUL         = "rul"

	// Run statuses.
	StatusOK    = "ok"
	StatusError = "error"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forgelake_build_info",
			Help: "Build information of forgelake",
		},
		[]string{"version", "commit", "date"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgelake_pipeline_runs_total",
			Help: "Pipeline runs by outcome",
		},
		[]string{"status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forgelake_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	StageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgelake_pipeline_stage_errors_total",
			Help: "Stage failures by stage",
		},
		[]string{"stage"},
	)

	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgelake_pipeline_rows_written_total",
			Help: "Rows written to the warehouse by table",
		},
		[]string{"table"},
	)

	ValuesClamped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgelake_pipeline_values_clamped_total",
			Help: "Generated values forced back into their documented range",
		},
		[]string{"kind"},
	)

	SkippedAssets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forgelake_pipeline_skipped_assets_total",
			Help: "Facts dropped because their asset is not in the catalog",
		},
	)

	LastRunCompleted = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forgelake_pipeline_last_run_completed_timestamp_seconds",
			Help: "Unix time of the last successful pipeline run",
		},
	)
)
