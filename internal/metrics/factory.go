package metrics

import (
	"errors"
	"fmt"

	"github.com/fivetwenty-io/crm-client/internal/constants"
	"github.com/fivetwenty-io/crm-client/pkg/connpool"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
	"github.com/prometheus/client_golang/prometheus"
)

// Static errors for err113 compliance.
var (
	ErrNoRecorders = errors.New("no metrics backend enabled")
)

// Set is the recorder built from a crm.MetricsConfig.
type Set struct {
	// Recorder fans out to every enabled backend.
	Recorder connpool.Recorder
	// Collector is the in-memory backend, nil unless enabled.
	Collector *Collector

	closers []func()
}

// Close releases backend connections.
func (s *Set) Close() {
	for _, closeFn := range s.closers {
		closeFn()
	}

	s.closers = nil
}

// FromConfig builds the enabled backends. registerer may be nil to use the
// default Prometheus registry.
func FromConfig(config *crm.MetricsConfig, registerer prometheus.Registerer, logger crm.Logger) (*Set, error) {
	if config == nil {
		return nil, ErrNoRecorders
	}

	set := &Set{}

	var recorders Multi

	if config.InMemory {
		set.Collector = NewCollector()
		recorders = append(recorders, set.Collector)
	}

	if config.NATSURL != "" {
		conn, err := ConnectNATS(config.NATSURL)
		if err != nil {
			set.Close()

			return nil, err
		}

		prefix := config.NATSSubjectPrefix
		if prefix == "" {
			prefix = constants.DefaultNATSSubjectPrefix
		}

		recorders = append(recorders, NewNATSPublisher(conn, prefix, logger))
		set.closers = append(set.closers, func() { _ = conn.Drain() })
	}

	// Registered last: a failed NATS dial leaves no collectors behind.
	if config.Prometheus {
		namespace := config.PrometheusNamespace
		if namespace == "" {
			namespace = constants.DefaultMetricsNamespace
		}

		exporter, err := NewPrometheus(namespace, registerer)
		if err != nil {
			set.Close()

			return nil, fmt.Errorf("registering prometheus metrics: %w", err)
		}

		recorders = append(recorders, exporter)
	}

	switch len(recorders) {
	case 0:
		return nil, ErrNoRecorders
	case 1:
		set.Recorder = recorders[0]
	default:
		set.Recorder = recorders
	}

	return set, nil
}
