// Package metrics provides connpool.Recorder implementations.
package metrics

import (
	"sync"
	"time"

	"github.com/fivetwenty-io/crm-client/pkg/connpool"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
)

// Metrics aggregates calls for one tenant and operation kind.
type Metrics struct {
	TotalCalls     int64
	TotalErrors    int64
	TotalWait      time.Duration
	TotalLatency   time.Duration
	AverageLatency time.Duration
	LastCallTime   time.Time
	Outcomes       map[string]int64
}

func (m *Metrics) clone() *Metrics {
	clone := *m

	clone.Outcomes = make(map[string]int64, len(m.Outcomes))
	for outcome, count := range m.Outcomes {
		clone.Outcomes[outcome] = count
	}

	return &clone
}

// Collector keeps per-tenant, per-kind call metrics in memory.
type Collector struct {
	mutex    sync.RWMutex
	metrics  map[string]*Metrics
	onChange func(key string, metrics *Metrics)
}

var _ connpool.Recorder = (*Collector)(nil)

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		metrics: make(map[string]*Metrics),
	}
}

// Key is the collector key for a tenant and kind.
func Key(tenant crm.Tenant, kind crm.OperationKind) string {
	return tenant.String() + " " + kind.String()
}

// SetOnChange sets a callback invoked after every recorded call with a
// copy of the updated metrics.
func (c *Collector) SetOnChange(fn func(key string, metrics *Metrics)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.onChange = fn
}

// RecordCall implements connpool.Recorder.
func (c *Collector) RecordCall(event connpool.CallEvent) {
	key := Key(crm.Tenant{Key: event.Tenant, Sandbox: event.Sandbox}, event.Kind)

	c.mutex.Lock()

	metrics, ok := c.metrics[key]
	if !ok {
		metrics = &Metrics{Outcomes: make(map[string]int64)}
		c.metrics[key] = metrics
	}

	metrics.TotalCalls++
	metrics.TotalWait += event.Wait
	metrics.TotalLatency += event.Duration
	metrics.AverageLatency = metrics.TotalLatency / time.Duration(metrics.TotalCalls)
	metrics.LastCallTime = event.Started.Add(event.Wait + event.Duration)
	metrics.Outcomes[event.Outcome()]++

	if event.Err != nil {
		metrics.TotalErrors++
	}

	onChange := c.onChange
	snapshot := metrics.clone()

	c.mutex.Unlock()

	if onChange != nil {
		onChange(key, snapshot)
	}
}

// GetMetrics returns a copy of the metrics for key, or nil.
func (c *Collector) GetMetrics(key string) *Metrics {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if metrics, ok := c.metrics[key]; ok {
		return metrics.clone()
	}

	return nil
}

// Snapshot copies every entry.
func (c *Collector) Snapshot() map[string]*Metrics {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	snapshot := make(map[string]*Metrics, len(c.metrics))
	for key, metrics := range c.metrics {
		snapshot[key] = metrics.clone()
	}

	return snapshot
}
