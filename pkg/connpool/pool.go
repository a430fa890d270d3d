package connpool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/fivetwenty-io/crm-client/internal/logging"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
)

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger used by the pool and its bundles.
func WithLogger(logger crm.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRecorder sets the call recorder shared by every bundle.
func WithRecorder(recorder Recorder) Option {
	return func(p *Pool) {
		if recorder != nil {
			p.recorder = recorder
		}
	}
}

// Pool maps tenant keys to bundles. Production and sandbox tenants live in
// separate registries, so the same key may be configured in both without
// either affecting the other.
type Pool struct {
	auth     Authenticator
	factory  BindingFactory
	logger   crm.Logger
	recorder Recorder

	production registry
	sandbox    registry
}

// registry is a concurrent tenant map. Each key owns a slot whose mutex
// serializes configuration of that key only.
type registry struct {
	slots sync.Map // string -> *slot
}

type slot struct {
	mutex  sync.Mutex
	bundle atomic.Pointer[Bundle]
}

// NewPool creates an empty pool.
func NewPool(auth Authenticator, factory BindingFactory, opts ...Option) (*Pool, error) {
	if auth == nil {
		return nil, ErrAuthenticatorNil
	}

	if factory == nil {
		return nil, ErrBindingFactoryNil
	}

	pool := &Pool{
		auth:     auth,
		factory:  factory,
		logger:   logging.Nop{},
		recorder: nopRecorder{},
	}

	for _, opt := range opts {
		opt(pool)
	}

	return pool, nil
}

// Configure creates the production bundle for key, logging in, or updates
// the existing one.
func (p *Pool) Configure(ctx context.Context, key, username, password string, maxConcurrent int) error {
	return p.configure(ctx, &p.production, key, Credentials{Username: username, Password: password}, maxConcurrent)
}

// ConfigureSandbox is Configure for the sandbox registry.
func (p *Pool) ConfigureSandbox(ctx context.Context, key, username, password string, maxConcurrent int) error {
	creds := Credentials{Username: username, Password: password, Sandbox: true}

	return p.configure(ctx, &p.sandbox, key, creds, maxConcurrent)
}

// ConfigureTenant dispatches to Configure or ConfigureSandbox.
func (p *Pool) ConfigureTenant(ctx context.Context, tenant crm.Tenant, username, password string, maxConcurrent int) error {
	if tenant.Sandbox {
		return p.ConfigureSandbox(ctx, tenant.Key, username, password, maxConcurrent)
	}

	return p.Configure(ctx, tenant.Key, username, password, maxConcurrent)
}

// Bundle returns the production bundle for key.
func (p *Pool) Bundle(key string) (*Bundle, error) {
	return p.production.get(key, false)
}

// SandboxBundle returns the sandbox bundle for key.
func (p *Pool) SandboxBundle(key string) (*Bundle, error) {
	return p.sandbox.get(key, true)
}

// TenantBundle dispatches to Bundle or SandboxBundle.
func (p *Pool) TenantBundle(tenant crm.Tenant) (*Bundle, error) {
	if tenant.Sandbox {
		return p.SandboxBundle(tenant.Key)
	}

	return p.Bundle(tenant.Key)
}

// Remove forgets a tenant. Calls already running on its bundle finish
// normally.
func (p *Pool) Remove(tenant crm.Tenant) {
	if tenant.Sandbox {
		p.sandbox.remove(tenant.Key)
	} else {
		p.production.remove(tenant.Key)
	}

	p.logger.Info("Tenant removed", map[string]interface{}{"tenant": tenant.String()})
}

// Keys lists configured tenants, production first, each group sorted.
func (p *Pool) Keys() []crm.Tenant {
	production := p.production.keys()
	sandbox := p.sandbox.keys()

	tenants := make([]crm.Tenant, 0, len(production)+len(sandbox))
	for _, key := range production {
		tenants = append(tenants, crm.Tenant{Key: key})
	}

	for _, key := range sandbox {
		tenants = append(tenants, crm.Tenant{Key: key, Sandbox: true})
	}

	return tenants
}

func (p *Pool) configure(ctx context.Context, reg *registry, key string, creds Credentials, maxConcurrent int) error {
	if key == "" {
		return crm.ErrTenantKeyRequired
	}

	if creds.Username == "" {
		return crm.ErrUsernameRequired
	}

	s := reg.lock(key)
	defer s.mutex.Unlock()

	tenant := crm.Tenant{Key: key, Sandbox: creds.Sandbox}

	if existing := s.bundle.Load(); existing != nil {
		if err := existing.UpdateCredentials(ctx, creds.Username, creds.Password, maxConcurrent); err != nil {
			p.logger.Error("Tenant update failed", map[string]interface{}{
				"tenant": tenant.String(),
				"error":  err.Error(),
			})

			return fmt.Errorf("updating tenant %s: %w", tenant, err)
		}

		return nil
	}

	bundle, err := newBundle(ctx, key, creds, maxConcurrent, p.auth, p.factory, p.logger, p.recorder)
	if err != nil {
		p.logger.Error("Tenant login failed", map[string]interface{}{
			"tenant": tenant.String(),
			"error":  err.Error(),
		})

		return fmt.Errorf("configuring tenant %s: %w", tenant, err)
	}

	s.bundle.Store(bundle)

	p.logger.Info("Tenant configured", map[string]interface{}{
		"tenant":         tenant.String(),
		"max_concurrent": bundle.gate.Limit(),
	})

	return nil
}

// lock returns the locked slot currently registered for key. A slot that
// was removed while waiting for its mutex is skipped for a fresh one.
func (r *registry) lock(key string) *slot {
	for {
		actual, _ := r.slots.LoadOrStore(key, &slot{})
		s, _ := actual.(*slot)

		s.mutex.Lock()

		if current, ok := r.slots.Load(key); ok && current == actual {
			return s
		}

		s.mutex.Unlock()
	}
}

// remove deletes key under its slot mutex so it never races a configure
// holding the same slot.
func (r *registry) remove(key string) {
	actual, ok := r.slots.Load(key)
	if !ok {
		return
	}

	s, _ := actual.(*slot)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	r.slots.CompareAndDelete(key, actual)
}

func (r *registry) get(key string, sandbox bool) (*Bundle, error) {
	if value, ok := r.slots.Load(key); ok {
		if s, _ := value.(*slot); s != nil {
			if bundle := s.bundle.Load(); bundle != nil {
				return bundle, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %s", crm.ErrNotConfigured, crm.Tenant{Key: key, Sandbox: sandbox})
}

func (r *registry) keys() []string {
	var keys []string

	r.slots.Range(func(key, value any) bool {
		if s, _ := value.(*slot); s != nil && s.bundle.Load() != nil {
			keys = append(keys, key.(string)) //nolint:forcetypeassert
		}

		return true
	})

	sort.Strings(keys)

	return keys
}
