package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder exposes pipeline metrics to Prometheus. Its methods are no-ops on a nil *Recorder.
type Recorder struct {
	runsTotal      *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	retriesTotal   prometheus.Counter
	panicsTotal    prometheus.Counter
	queueDepth     prometheus.Gauge
	insightsTotal  *prometheus.CounterVec
	missedPeriods  *prometheus.CounterVec
	claimConflicts prometheus.Counter
}

// New creates a recorder registered on reg. Passing nil uses a private
// registry, which keeps tests from colliding on the default one.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r := &Recorder{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Job runs reaching a terminal state",
		}, []string{"status", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_pool_retries_total",
			Help: "Transient failures retried by the worker pool",
		}),
		panicsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_pool_panics_total",
			Help: "Panics recovered at the worker boundary",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worker_pool_queue_depth",
			Help: "Tasks waiting in the worker pool queue",
		}),
		insightsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insight_generations_total",
			Help: "Insights generated by source",
		}, []string{"source"}),
		missedPeriods: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_missed_periods_total",
			Help: "Periods skipped by the scheduler",
		}, []string{"symbol"}),
		claimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_claim_conflicts_total",
			Help: "Claims lost to another orchestrator",
		}),
	}

	reg.MustRegister(r.runsTotal, r.stageDuration, r.retriesTotal, r.panicsTotal,
		r.queueDepth, r.insightsTotal, r.missedPeriods, r.claimConflicts)
	return r
}

func (r *Recorder) RecordRun(status, outcome string) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(status, outcome).Inc()
}

func (r *Recorder) ObserveStage(stage string, seconds float64) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(seconds)
}

func (r *Recorder) RecordRetry() {
	if r == nil {
		return
	}
	r.retriesTotal.Inc()
}

func (r *Recorder) RecordPanic() {
	if r == nil {
		return
	}
	r.panicsTotal.Inc()
}

func (r *Recorder) SetQueueDepth(n int) {
	if r == nil {
		return
	}
	r.queueDepth.Set(float64(n))
}

func (r *Recorder) RecordInsight(source string) {
	if r == nil {
		return
	}
	r.insightsTotal.WithLabelValues(source).Inc()
}

func (r *Recorder) RecordMissedPeriod(symbol string) {
	if r == nil {
		return
	}
	r.missedPeriods.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordClaimConflict() {
	if r == nil {
		return
	}
	r.claimConflicts.Inc()
}
