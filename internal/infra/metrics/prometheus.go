package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panoconv_jobs_processed_total",
		Help: "Total number of export jobs processed, by status",
	}, []string{"status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "panoconv_job_processing_duration_seconds",
		Help:    "Duration of export pipeline stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesRenderedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "panoconv_frames_rendered_total",
		Help: "Total number of stills rendered across all jobs",
	})

	CellsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "panoconv_cells_skipped_total",
		Help: "Total number of export cells skipped after render failures",
	})

	ProviderBusyRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "panoconv_provider_busy_rejections_total",
		Help: "Render requests rejected because a render was already in flight",
	})

	BackendReinitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "panoconv_backend_reinits_total",
		Help: "Decode backend reinitializations after fatal errors",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "panoconv_active_workers",
		Help: "Number of currently active workers processing export jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panoconv_retry_total",
		Help: "Total number of job retries",
	}, []string{"attempt"})
)
