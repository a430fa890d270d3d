package metrics

import "github.com/fivetwenty-io/crm-client/pkg/connpool"

// Multi fans each event out to several recorders in order.
type Multi []connpool.Recorder

var _ connpool.Recorder = Multi(nil)

// RecordCall implements connpool.Recorder.
func (m Multi) RecordCall(event connpool.CallEvent) {
	for _, recorder := range m {
		recorder.RecordCall(event)
	}
}
