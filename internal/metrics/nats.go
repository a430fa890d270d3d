package metrics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fivetwenty-io/crm-client/internal/logging"
	"github.com/fivetwenty-io/crm-client/pkg/connpool"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn used here.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// CallEventMessage is the JSON published for each call.
type CallEventMessage struct {
	ID         string    `json:"id"`
	Tenant     string    `json:"tenant"`
	Sandbox    bool      `json:"sandbox"`
	Kind       string    `json:"kind"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	Started    time.Time `json:"started"`
	WaitMillis float64   `json:"wait_ms"`
	TookMillis float64   `json:"took_ms"`
}

// NATSPublisher publishes one message per call to <prefix>.<kind>.
// Publishing is fire-and-forget; failures are logged and dropped.
type NATSPublisher struct {
	publisher Publisher
	prefix    string
	logger    crm.Logger
}

var _ connpool.Recorder = (*NATSPublisher)(nil)

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(publisher Publisher, prefix string, logger crm.Logger) *NATSPublisher {
	if logger == nil {
		logger = logging.Nop{}
	}

	return &NATSPublisher{publisher: publisher, prefix: prefix, logger: logger}
}

// ConnectNATS dials a NATS server for use with NewNATSPublisher.
func ConnectNATS(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("crm-client"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	return conn, nil
}

// Subject returns the subject events of kind are published on.
func (n *NATSPublisher) Subject(kind crm.OperationKind) string {
	return n.prefix + "." + kind.String()
}

// RecordCall implements connpool.Recorder.
func (n *NATSPublisher) RecordCall(event connpool.CallEvent) {
	message := CallEventMessage{
		ID:         uuid.NewString(),
		Tenant:     event.Tenant,
		Sandbox:    event.Sandbox,
		Kind:       event.Kind.String(),
		Outcome:    event.Outcome(),
		Started:    event.Started,
		WaitMillis: float64(event.Wait) / float64(time.Millisecond),
		TookMillis: float64(event.Duration) / float64(time.Millisecond),
	}

	if event.Err != nil {
		message.Error = event.Err.Error()
	}

	data, err := json.Marshal(message)
	if err != nil {
		n.logger.Warn("Failed to encode call event", map[string]interface{}{"error": err.Error()})

		return
	}

	if err := n.publisher.Publish(n.Subject(event.Kind), data); err != nil {
		n.logger.Warn("Failed to publish call event", map[string]interface{}{
			"subject": n.Subject(event.Kind),
			"error":   err.Error(),
		})
	}
}
