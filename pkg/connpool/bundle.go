package connpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fivetwenty-io/crm-client/pkg/crm"
)

// BundleStats is a point-in-time view of a bundle.
type BundleStats struct {
	Tenant     string
	Sandbox    bool
	Limit      int
	InFlight   int
	Idle       int
	CheckedOut int
	IssuedAt   time.Time
}

// Bundle is one authenticated tenant session. It owns a BindingCache and a
// Gate, and every call made through it holds one of each.
type Bundle struct {
	key      string
	auth     Authenticator
	cache    *BindingCache
	gate     *Gate
	logger   crm.Logger
	recorder Recorder

	// loginMutex serializes credential changes on this bundle.
	loginMutex sync.Mutex

	mutex       sync.RWMutex
	credentials Credentials
	session     *Session
}

func newBundle(
	ctx context.Context,
	key string,
	creds Credentials,
	maxConcurrent int,
	auth Authenticator,
	factory BindingFactory,
	logger crm.Logger,
	recorder Recorder,
) (*Bundle, error) {
	session, err := login(ctx, auth, creds)
	if err != nil {
		return nil, err
	}

	return &Bundle{
		key:         key,
		auth:        auth,
		cache:       NewBindingCache(factory),
		gate:        NewGate(maxConcurrent),
		logger:      logger,
		recorder:    recorder,
		credentials: creds,
		session:     session,
	}, nil
}

// Key returns the tenant key the bundle was configured under.
func (b *Bundle) Key() string {
	return b.key
}

// Sandbox reports whether the bundle talks to the sandbox environment.
func (b *Bundle) Sandbox() bool {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return b.credentials.Sandbox
}

// Username is the login user of the current credentials.
func (b *Bundle) Username() string {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return b.credentials.Username
}

// Session returns a copy of the current session.
func (b *Bundle) Session() *Session {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return b.session.Clone()
}

// WithBinding runs fn with a binding configured for kind. It waits for a
// permit, checks out a binding and binds it to the current session. On
// every exit path the binding goes back to the cache before the permit is
// released.
func (b *Bundle) WithBinding(
	ctx context.Context,
	kind crm.OperationKind,
	fn func(ctx context.Context, binding Binding) error,
) (err error) {
	started := time.Now()
	admitted := started

	defer func() {
		b.recorder.RecordCall(CallEvent{
			Tenant:   b.key,
			Sandbox:  b.Sandbox(),
			Kind:     kind,
			Started:  started,
			Wait:     admitted.Sub(started),
			Duration: time.Since(admitted),
			Err:      err,
		})
	}()

	if err := b.gate.Acquire(ctx); err != nil {
		admitted = time.Now()

		return err
	}
	defer b.gate.Release()

	admitted = time.Now()

	binding, err := b.cache.Checkout(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if releaseErr := b.cache.Release(binding); releaseErr != nil {
			b.logger.Error("Failed to release binding", map[string]interface{}{
				"tenant": b.key,
				"kind":   kind.String(),
				"error":  releaseErr.Error(),
			})

			if err == nil {
				err = releaseErr
			}
		}
	}()

	if err := binding.Bind(kind, b.Session()); err != nil {
		return fmt.Errorf("binding %s for tenant %s: %w", kind, b.key, err)
	}

	return fn(ctx, binding)
}

// UpdateCredentials applies new credentials and a new concurrency limit.
// A login is performed only when the credentials differ from the current
// ones; a failed login leaves the bundle unchanged. Calls already in flight
// keep their bindings and permits.
func (b *Bundle) UpdateCredentials(ctx context.Context, username, password string, maxConcurrent int) error {
	b.loginMutex.Lock()
	defer b.loginMutex.Unlock()

	b.mutex.RLock()
	current := b.credentials
	b.mutex.RUnlock()

	next := Credentials{Username: username, Password: password, Sandbox: current.Sandbox}

	if next != current {
		session, err := login(ctx, b.auth, next)
		if err != nil {
			return err
		}

		b.mutex.Lock()
		b.credentials = next
		b.session = session
		b.mutex.Unlock()

		b.logger.Info("Tenant credentials updated", map[string]interface{}{
			"tenant":  b.key,
			"sandbox": next.Sandbox,
			"user":    username,
		})
	}

	b.gate.Reconfigure(maxConcurrent)

	return nil
}

// Reauthenticate logs in again with the stored credentials and replaces the
// session. It is the caller's recovery path after crm.ErrSessionExpired.
func (b *Bundle) Reauthenticate(ctx context.Context) error {
	b.loginMutex.Lock()
	defer b.loginMutex.Unlock()

	b.mutex.RLock()
	creds := b.credentials
	b.mutex.RUnlock()

	session, err := login(ctx, b.auth, creds)
	if err != nil {
		return err
	}

	b.mutex.Lock()
	b.session = session
	b.mutex.Unlock()

	b.logger.Info("Tenant reauthenticated", map[string]interface{}{
		"tenant":  b.key,
		"sandbox": creds.Sandbox,
	})

	return nil
}

// Stats returns a snapshot of the bundle's counters.
func (b *Bundle) Stats() BundleStats {
	b.mutex.RLock()
	sandbox := b.credentials.Sandbox
	issuedAt := b.session.IssuedAt
	b.mutex.RUnlock()

	return BundleStats{
		Tenant:     b.key,
		Sandbox:    sandbox,
		Limit:      b.gate.Limit(),
		InFlight:   b.gate.InFlight(),
		Idle:       b.cache.Idle(),
		CheckedOut: b.cache.CheckedOut(),
		IssuedAt:   issuedAt,
	}
}

func login(ctx context.Context, auth Authenticator, creds Credentials) (*Session, error) {
	session, err := auth.Login(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("logging in as %s: %w", creds.Username, err)
	}

	if session == nil {
		return nil, ErrNilSession
	}

	return session, nil
}
