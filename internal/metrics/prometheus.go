package metrics

import (
	"errors"
	"strconv"

	"github.com/fivetwenty-io/crm-client/pkg/connpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus exports call metrics.
type Prometheus struct {
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	waitDuration *prometheus.HistogramVec
}

var _ connpool.Recorder = (*Prometheus)(nil)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// NewPrometheus registers the metrics with registerer, or with the default
// registry when registerer is nil. Collectors already registered under the
// same names are reused, so several clients in one process share them.
func NewPrometheus(namespace string, registerer prometheus.Registerer) (*Prometheus, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	reg := &registration{registerer: registerer}

	callsTotal, err := register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of remote calls by tenant, operation kind and outcome",
		},
		[]string{"tenant", "sandbox", "kind", "outcome"},
	))
	if err != nil {
		reg.rollback()

		return nil, err
	}

	callDuration, err := register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Remote call duration in seconds, excluding admission wait",
			Buckets:   durationBuckets,
		},
		[]string{"tenant", "kind"},
	))
	if err != nil {
		reg.rollback()

		return nil, err
	}

	waitDuration, err := register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "admission_wait_seconds",
			Help:      "Time spent waiting for a concurrency permit",
			Buckets:   durationBuckets,
		},
		[]string{"tenant", "kind"},
	))
	if err != nil {
		reg.rollback()

		return nil, err
	}

	return &Prometheus{
		callsTotal:   callsTotal,
		callDuration: callDuration,
		waitDuration: waitDuration,
	}, nil
}

// RecordCall implements connpool.Recorder.
func (p *Prometheus) RecordCall(event connpool.CallEvent) {
	kind := event.Kind.String()

	p.callsTotal.WithLabelValues(event.Tenant, strconv.FormatBool(event.Sandbox), kind, event.Outcome()).Inc()
	p.callDuration.WithLabelValues(event.Tenant, kind).Observe(event.Duration.Seconds())
	p.waitDuration.WithLabelValues(event.Tenant, kind).Observe(event.Wait.Seconds())
}

// registration tracks collectors registered by one NewPrometheus call so a
// failure part way through can undo them. Reused collectors are not tracked.
type registration struct {
	registerer prometheus.Registerer
	fresh      []prometheus.Collector
}

func (r *registration) rollback() {
	for _, collector := range r.fresh {
		r.registerer.Unregister(collector)
	}

	r.fresh = nil
}

func register[T prometheus.Collector](reg *registration, collector T) (T, error) {
	if err := reg.registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}

		var zero T

		return zero, err
	}

	reg.fresh = append(reg.fresh, collector)

	return collector, nil
}
