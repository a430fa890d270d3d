package crm

import (
	"context"
	"errors"
	"time"
)

// Static errors for err113 compliance.
var (
	ErrConfigRequired = errors.New("config is required")
)

// TenantClients configures tenant connections.
type TenantClients interface {
	Configure(ctx context.Context, tenant Tenant, username, password string, maxConcurrent int) error
	Reauthenticate(ctx context.Context, tenant Tenant) error
}

// QueryClient runs queries. Query strings are passed through verbatim.
type QueryClient interface {
	Query(ctx context.Context, tenant Tenant, query string) (*QueryResult, error)
	QueryAll(ctx context.Context, tenant Tenant, query string) (*QueryResult, error)
	QueryMore(ctx context.Context, tenant Tenant, cursor string) (*QueryResult, error)
	QueryEach(ctx context.Context, tenant Tenant, query string, fn func(*Record) error) error
}

// RecordClient reads and writes single records.
type RecordClient interface {
	Retrieve(ctx context.Context, tenant Tenant, objectType string, id ID, fields []string) (*Record, error)
	Create(ctx context.Context, tenant Tenant, record *Record) (*SaveResult, error)
	Update(ctx context.Context, tenant Tenant, record *Record) error
	Delete(ctx context.Context, tenant Tenant, objectType string, id ID) error
}

// DescribeClient reads object metadata.
type DescribeClient interface {
	Describe(ctx context.Context, tenant Tenant, objectType string) (*ObjectDescribe, error)
	DependentPicklist(ctx context.Context, tenant Tenant, objectType, field string) (*DependentValues, error)
}

// Client is the full caller-facing surface.
type Client interface {
	TenantClients
	QueryClient
	RecordClient
	DescribeClient
}

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Config represents client configuration for building a crm.Client.
//
// # Login
//
// Production tenants log in against LoginURL and sandbox tenants against
// SandboxLoginURL. Login uses the OAuth2 username-password flow with
// ClientID/ClientSecret identifying the connected application. The login
// response names the instance URL from which the per-kind server URLs are
// derived using APIVersion.
//
// # Timeouts and retries
//
// Per-call deadlines should be set on the context. RetryMax defaults to zero:
// callers decide whether to retry a failed operation. Setting it enables
// transport level retries of connection errors, 429 and 5xx responses.
type Config struct {
	// LoginURL: production login host. Defaults to constants.DefaultLoginURL.
	LoginURL string
	// SandboxLoginURL: sandbox login host. Defaults to constants.DefaultSandboxLoginURL.
	SandboxLoginURL string
	// APIVersion: remote API version, e.g. "59.0".
	APIVersion string
	// ClientID: OAuth2 client ID of the connected application.
	ClientID string
	// ClientSecret: OAuth2 client secret of the connected application.
	ClientSecret string

	// HTTPTimeout: per-request timeout of the transport.
	HTTPTimeout time.Duration
	// RetryMax: transport retries; zero disables them.
	RetryMax int
	// RetryWaitMin: minimum backoff between retries.
	RetryWaitMin time.Duration
	// RetryWaitMax: maximum backoff between retries.
	RetryWaitMax time.Duration
	// UserAgent: overrides the default User-Agent header.
	UserAgent string
	// Debug: enables request/response logging when a Logger is provided.
	Debug bool
	// Logger: optional structured logger.
	Logger Logger

	// BatchConcurrency bounds BatchExecutor fan-out.
	BatchConcurrency int

	// Metrics: optional call instrumentation.
	Metrics *MetricsConfig
}

// MetricsConfig selects call instrumentation backends. Any combination may
// be enabled; with none, calls are not instrumented.
type MetricsConfig struct {
	// InMemory keeps per-kind counters readable through the client.
	InMemory bool
	// Prometheus registers collectors with the default registerer.
	Prometheus bool
	// PrometheusNamespace prefixes metric names.
	PrometheusNamespace string
	// NATSURL publishes one event per call to NATS when set.
	NATSURL string
	// NATSSubjectPrefix is the subject prefix; the kind is appended.
	NATSSubjectPrefix string
}
