package crmclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fivetwenty-io/crm-client/internal/auth"
	"github.com/fivetwenty-io/crm-client/internal/client"
	"github.com/fivetwenty-io/crm-client/internal/constants"
	"github.com/fivetwenty-io/crm-client/internal/http"
	"github.com/fivetwenty-io/crm-client/internal/logging"
	"github.com/fivetwenty-io/crm-client/internal/metrics"
	"github.com/fivetwenty-io/crm-client/pkg/connpool"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
)

// Batch types re-exported for callers outside this module.
type (
	BatchOperation = client.BatchOperation
	BatchResult    = client.BatchResult
	BatchExecutor  = client.BatchExecutor
	OperationType  = client.OperationType
)

// Batch operation types.
const (
	OperationQuery    = client.OperationQuery
	OperationQueryAll = client.OperationQueryAll
	OperationRetrieve = client.OperationRetrieve
	OperationCreate   = client.OperationCreate
	OperationUpdate   = client.OperationUpdate
	OperationDelete   = client.OperationDelete
	OperationDescribe = client.OperationDescribe
)

// SessionStore persists sessions between runs; see WithSessionStore.
type SessionStore = auth.SessionPersister

// CallMetrics are the in-memory counters of one tenant and kind.
type CallMetrics = metrics.Metrics

// Option configures New.
type Option func(*options)

type options struct {
	authenticator connpool.Authenticator
	sessions      SessionStore
	registerer    prometheus.Registerer
}

// WithAuthenticator replaces the OAuth2 password login.
func WithAuthenticator(authenticator connpool.Authenticator) Option {
	return func(o *options) {
		o.authenticator = authenticator
	}
}

// WithSessionStore reuses persisted sessions instead of logging in, and
// saves new ones.
func WithSessionStore(store SessionStore) Option {
	return func(o *options) {
		o.sessions = store
	}
}

// WithRegisterer registers Prometheus collectors with registerer instead
// of the default registry.
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = registerer
	}
}

// Client is a crm.Client with batch execution, session persistence and
// call metrics on top.
type Client struct {
	*client.Client

	caching          *auth.CachingAuthenticator
	metrics          *metrics.Set
	batchConcurrency int
	logger           crm.Logger
}

var _ crm.Client = (*Client)(nil)

// New creates a client from config. No tenant is configured yet.
func New(config *crm.Config, opts ...Option) (*Client, error) {
	if config == nil {
		return nil, crm.ErrConfigRequired
	}

	settings := &options{}
	for _, opt := range opts {
		opt(settings)
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.Nop{}
	}

	transport := transportOptions(config, logger)
	callTimeout := config.HTTPTimeout

	if callTimeout <= 0 {
		callTimeout = constants.DefaultHTTPTimeout
	}

	authenticator := settings.authenticator
	if authenticator == nil {
		authenticator = auth.NewPasswordAuthenticator(auth.Config{
			LoginURL:        config.LoginURL,
			SandboxLoginURL: config.SandboxLoginURL,
			APIVersion:      config.APIVersion,
			ClientID:        config.ClientID,
			ClientSecret:    config.ClientSecret,
		}, logger, transport...)
	}

	var caching *auth.CachingAuthenticator
	if settings.sessions != nil {
		caching = auth.NewCachingAuthenticator(authenticator, settings.sessions, logger)
		authenticator = caching
	}

	poolOpts := []connpool.Option{connpool.WithLogger(logger)}

	var set *metrics.Set

	if config.Metrics != nil {
		var err error

		set, err = metrics.FromConfig(config.Metrics, settings.registerer, logger)

		switch {
		case errors.Is(err, metrics.ErrNoRecorders):
			set = nil
		case err != nil:
			return nil, fmt.Errorf("configuring metrics: %w", err)
		default:
			poolOpts = append(poolOpts, connpool.WithRecorder(set.Recorder))
		}
	}

	pool, err := connpool.NewPool(authenticator, client.NewBindingFactory(append(transport, http.WithTimeout(callTimeout))...), poolOpts...)
	if err != nil {
		if set != nil {
			set.Close()
		}

		return nil, fmt.Errorf("creating pool: %w", err)
	}

	batchConcurrency := config.BatchConcurrency
	if batchConcurrency <= 0 {
		batchConcurrency = constants.DefaultBatchConcurrency
	}

	return &Client{
		Client:           client.New(pool, logger),
		caching:          caching,
		metrics:          set,
		batchConcurrency: batchConcurrency,
		logger:           logger,
	}, nil
}

// Reauthenticate logs the tenant in again. A persisted session for the
// tenant's user is dropped first so the login reaches the server.
func (c *Client) Reauthenticate(ctx context.Context, tenant crm.Tenant) error {
	bundle, err := c.Pool().TenantBundle(tenant)
	if err != nil {
		return err
	}

	if c.caching != nil {
		if err := c.caching.Invalidate(bundle.Username(), tenant.Sandbox); err != nil {
			c.logger.Warn("Failed to drop persisted session", map[string]interface{}{
				"tenant": tenant.String(),
				"error":  err.Error(),
			})
		}
	}

	return bundle.Reauthenticate(ctx)
}

// NewBatchExecutor returns an executor bounded by the configured batch
// concurrency.
func (c *Client) NewBatchExecutor() *BatchExecutor {
	return client.NewBatchExecutor(c, c.batchConcurrency)
}

// CallMetrics returns the in-memory counters for tenant and kind. ok is
// false when in-memory metrics are off or nothing was recorded.
func (c *Client) CallMetrics(tenant crm.Tenant, kind crm.OperationKind) (CallMetrics, bool) {
	if c.metrics == nil || c.metrics.Collector == nil {
		return CallMetrics{}, false
	}

	snapshot := c.metrics.Collector.GetMetrics(metrics.Key(tenant, kind))
	if snapshot == nil {
		return CallMetrics{}, false
	}

	return *snapshot, true
}

// Close releases metric backend connections.
func (c *Client) Close() {
	if c.metrics != nil {
		c.metrics.Close()
	}
}

// transportOptions are shared by the login and call transports. Login keeps
// its own shorter timeout.
func transportOptions(config *crm.Config, logger crm.Logger) []http.Option {
	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = constants.DefaultUserAgent
	}

	transport := []http.Option{
		http.WithUserAgent(userAgent),
		http.WithLogger(logger),
		http.WithDebug(config.Debug),
	}

	if config.RetryMax > 0 {
		minWait := config.RetryWaitMin
		if minWait <= 0 {
			minWait = constants.DefaultRetryWaitMin
		}

		maxWait := config.RetryWaitMax
		if maxWait <= 0 {
			maxWait = constants.DefaultRetryWaitMax
		}

		transport = append(transport, http.WithRetryConfig(config.RetryMax, minWait, maxWait))
	}

	return transport
}
