package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "docwiki"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration      *prom.HistogramVec
	stageResults       *prom.CounterVec
	jobDuration        prom.Histogram
	jobOutcome         *prom.CounterVec
	generationDuration *prom.HistogramVec
	retries            prom.Counter
	retriesExhausted   prom.Counter
	inFlight           prom.Gauge
	requeued           prom.Counter
	recordFailures     *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the pipeline metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800, 3600},
		}, []string{"stage"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		jobDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Total duration of a job run from claim to final status",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		}),
		jobOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "job_outcomes_total",
			Help:      "Job runs by final status",
		}, []string{"status"}),
		generationDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_call_duration_seconds",
			Help:      "Duration of text-generation backend calls",
			Buckets:   prom.DefBuckets,
		}, []string{"model", "result"}),
		retries: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "generation_retries_total",
			Help:      "Generation attempts retried after a failure",
		}),
		retriesExhausted: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "generation_retries_exhausted_total",
			Help:      "Catalogue nodes whose generation retries were exhausted",
		}),
		inFlight: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "generation_in_flight",
			Help:      "Outstanding text-generation calls",
		}),
		requeued: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_requeued_total",
			Help:      "Completed jobs re-queued by the incremental update sweep",
		}),
		recordFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "job_record_failures_total",
			Help:      "Final job statuses that could not be persisted",
		}, []string{"status"}),
	}
	reg.MustRegister(pr.stageDuration, pr.stageResults, pr.jobDuration, pr.jobOutcome,
		pr.generationDuration, pr.retries, pr.retriesExhausted, pr.inFlight, pr.requeued, pr.recordFailures)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveJobDuration(d time.Duration) {
	p.jobDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncJobOutcome(status string) {
	p.jobOutcome.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveGenerationDuration(model string, d time.Duration, success bool) {
	res := "failed"
	if success {
		res = "success"
	}
	p.generationDuration.WithLabelValues(model, res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncGenerationRetry() { p.retries.Inc() }

func (p *PrometheusRecorder) IncGenerationRetriesExhausted() { p.retriesExhausted.Inc() }

func (p *PrometheusRecorder) SetGenerationInFlight(n int) { p.inFlight.Set(float64(n)) }

func (p *PrometheusRecorder) IncJobsRequeued(n int) { p.requeued.Add(float64(n)) }

func (p *PrometheusRecorder) IncJobRecordFailure(status string) {
	p.recordFailures.WithLabelValues(status).Inc()
}
