// Package metrics holds the Prometheus collectors for the dispatch pipeline.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Failure stages.
const (
	StageDecode  = "decode"
	StageExists  = "exists"
	StageCreate  = "create"
	StageTrigger = "trigger"
	StageForward = "forward"
	StagePanic   = "panic"
	StageIngest  = "ingest"
)

// Handler kinds used on the duration histogram.
const (
	KindResult = "result"
	KindValue  = "value"
)

type Metrics struct {
	registry *prometheus.Registry

	resultsReceived    prometheus.Counter
	duplicates         prometheus.Counter
	recordsCreated     prometheus.Counter
	workflowsTriggered *prometheus.CounterVec
	valuesForwarded    prometheus.Counter
	failures           *prometheus.CounterVec
	handlerDuration    *prometheus.HistogramVec
}

// New builds the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resultsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plantdata_result_events_total",
			Help: "Inspection-result events received by the dispatcher.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plantdata_duplicate_results_total",
			Help: "Inspection-result events suppressed because a record already existed.",
		}),
		recordsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plantdata_records_created_total",
			Help: "Inspection records created.",
		}),
		workflowsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plantdata_workflows_triggered_total",
			Help: "Analysis workflows triggered, by constant-level-oiler flag.",
		}, []string{"constant_level_oiler"}),
		valuesForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plantdata_value_events_forwarded_total",
			Help: "Inspection-value events written to the time-series store.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plantdata_failures_total",
			Help: "Event handling failures by stage.",
		}, []string{"stage"}),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "plantdata_handler_duration_seconds",
			Help:    "Time spent handling one event.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.resultsReceived,
		m.duplicates,
		m.recordsCreated,
		m.workflowsTriggered,
		m.valuesForwarded,
		m.failures,
		m.handlerDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the private registry for scraping and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ResultReceived() {
	if m == nil {
		return
	}
	m.resultsReceived.Inc()
}

func (m *Metrics) DuplicateSuppressed() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

func (m *Metrics) RecordCreated() {
	if m == nil {
		return
	}
	m.recordsCreated.Inc()
}

func (m *Metrics) WorkflowTriggered(constantLevelOiler bool) {
	if m == nil {
		return
	}
	m.workflowsTriggered.WithLabelValues(strconv.FormatBool(constantLevelOiler)).Inc()
}

func (m *Metrics) ValueForwarded() {
	if m == nil {
		return
	}
	m.valuesForwarded.Inc()
}

func (m *Metrics) Failure(stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stage).Inc()
}

// ObserveHandler records the time since start for a handler of kind.
func (m *Metrics) ObserveHandler(kind string, start time.Time) {
	if m == nil {
		return
	}
	m.handlerDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
