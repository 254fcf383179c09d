// Package metrics exposes prometheus instruments for the reporting pipeline.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config labels every pipeline metric with service identity.
type Config struct {
	ServiceName string
	Environment string
}

// PipelineMetrics tracks batch job throughput and failure classes.
type PipelineMetrics struct {
	snapshotUpserts   *prometheus.CounterVec
	rollupProcessed   *prometheus.CounterVec
	freezesCreated    prometheus.Counter
	freezesSkipped    prometheus.Counter
	dispatchDuration  *prometheus.HistogramVec
	reportsGenerated  prometheus.Counter
	deliveryAttempts  *prometheus.CounterVec
	scheduleStateErrs prometheus.Counter
}

var (
	pipelineMetricsOnce sync.Once
	pipelineMetrics     *PipelineMetrics
)

// Pipeline returns the process-wide pipeline metrics.
func Pipeline() *PipelineMetrics {
	return PipelineWithConfig(Config{})
}

// PipelineWithConfig initializes the pipeline metrics once with the given config.
func PipelineWithConfig(cfg Config) *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetrics = newPipelineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return pipelineMetrics
}

// ResetPipelineMetricsForTest clears the singleton between test runs.
func ResetPipelineMetricsForTest() {
	pipelineMetricsOnce = sync.Once{}
	pipelineMetrics = nil
}

func newPipelineMetrics(registerer prometheus.Registerer, cfg Config) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "flowreport"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	snapshotUpserts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "flowreport_snapshot_upserts_total",
			Help:        "Live snapshot upserts by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // created | merged | rejected
	)

	rollupProcessed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "flowreport_rollup_units_total",
			Help:        "Rollup units processed by result.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // success | failed | empty
	)

	freezesCreated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "flowreport_snapshot_versions_created_total",
			Help:        "Frozen snapshot versions created.",
			ConstLabels: constLabels,
		},
	)

	freezesSkipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "flowreport_snapshot_freezes_skipped_total",
			Help:        "Freeze no-ops because a version already exists in the window.",
			ConstLabels: constLabels,
		},
	)

	dispatchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "flowreport_dispatch_schedule_seconds",
			Help: "Wall time spent processing one due schedule.",
			Buckets: []float64{
				0.1, 0.5, 1, 5, 15, 30, 60, 120,
			},
			ConstLabels: constLabels,
		},
		[]string{"result"}, // success | render_failed | update_failed
	)

	reportsGenerated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "flowreport_reports_generated_total",
			Help:        "Successfully rendered report artifacts.",
			ConstLabels: constLabels,
		},
	)

	deliveryAttempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "flowreport_delivery_attempts_total",
			Help:        "Recipient delivery attempts by channel and result.",
			ConstLabels: constLabels,
		},
		[]string{"channel", "result"}, // result: success | failed
	)

	scheduleStateErrs := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "flowreport_schedule_state_errors_total",
			Help:        "Failed schedule lastRun/nextRun persistence writes.",
			ConstLabels: constLabels,
		},
	)

	registerer.MustRegister(
		snapshotUpserts,
		rollupProcessed,
		freezesCreated,
		freezesSkipped,
		dispatchDuration,
		reportsGenerated,
		deliveryAttempts,
		scheduleStateErrs,
	)

	return &PipelineMetrics{
		snapshotUpserts:   snapshotUpserts,
		rollupProcessed:   rollupProcessed,
		freezesCreated:    freezesCreated,
		freezesSkipped:    freezesSkipped,
		dispatchDuration:  dispatchDuration,
		reportsGenerated:  reportsGenerated,
		deliveryAttempts:  deliveryAttempts,
		scheduleStateErrs: scheduleStateErrs,
	}
}

// IncSnapshotUpsert records one upsert outcome.
func (m *PipelineMetrics) IncSnapshotUpsert(result string) {
	if m == nil {
		return
	}
	m.snapshotUpserts.WithLabelValues(result).Inc()
}

// IncRollupUnit records one rollup unit outcome.
func (m *PipelineMetrics) IncRollupUnit(result string) {
	if m == nil {
		return
	}
	m.rollupProcessed.WithLabelValues(result).Inc()
}

// IncFreezeCreated counts a newly frozen version.
func (m *PipelineMetrics) IncFreezeCreated() {
	if m == nil {
		return
	}
	m.freezesCreated.Inc()
}

// IncFreezeSkipped counts an idempotent freeze no-op.
func (m *PipelineMetrics) IncFreezeSkipped() {
	if m == nil {
		return
	}
	m.freezesSkipped.Inc()
}

// ObserveDispatch records processing time for one due schedule.
func (m *PipelineMetrics) ObserveDispatch(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// IncReportGenerated counts a rendered report artifact.
func (m *PipelineMetrics) IncReportGenerated() {
	if m == nil {
		return
	}
	m.reportsGenerated.Inc()
}

// IncDeliveryAttempt records one recipient delivery outcome.
func (m *PipelineMetrics) IncDeliveryAttempt(channel, result string) {
	if m == nil {
		return
	}
	m.deliveryAttempts.WithLabelValues(channel, result).Inc()
}

// IncScheduleStateError counts a failed schedule state write. These risk
// duplicate or missed firings and page the on-call.
func (m *PipelineMetrics) IncScheduleStateError() {
	if m == nil {
		return
	}
	m.scheduleStateErrs.Inc()
}
