package connpool_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fivetwenty-io/crm-client/pkg/connpool"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBundle(t *testing.T, limit int, opts ...connpool.Option) (*connpool.Bundle, *fakeAuth, *bindingCounter) {
	t.Helper()

	auth := &fakeAuth{}
	counter := &bindingCounter{}

	pool, err := connpool.NewPool(auth, counter.factory, opts...)
	require.NoError(t, err)
	require.NoError(t, pool.Configure(context.Background(), "acme", "ada@acme.test", "secret", limit))

	bundle, err := pool.Bundle("acme")
	require.NoError(t, err)

	return bundle, auth, counter
}

func TestBundle_WithBindingBindsSession(t *testing.T) {
	t.Parallel()

	bundle, _, _ := newTestBundle(t, 2)

	err := bundle.WithBinding(context.Background(), crm.KindPartner, func(_ context.Context, binding connpool.Binding) error {
		fake, _ := binding.(*fakeBinding)
		assert.Equal(t, crm.KindPartner, fake.kind)
		assert.Equal(t, "https://prod.example.com/services/Soap/u/59.0", fake.url)
		assert.Equal(t, "token-1", fake.token)

		stats := bundle.Stats()
		assert.Equal(t, 1, stats.InFlight)
		assert.Equal(t, 1, stats.CheckedOut)

		return nil
	})
	require.NoError(t, err)

	stats := bundle.Stats()
	assert.Equal(t, 0, stats.InFlight)
	assert.Equal(t, 0, stats.CheckedOut)
	assert.Equal(t, 1, stats.Idle)
	assert.Equal(t, 2, stats.Limit)
	assert.Equal(t, "acme", stats.Tenant)
}

func TestBundle_WithBindingReleasesOnError(t *testing.T) {
	t.Parallel()

	bundle, _, _ := newTestBundle(t, 1)
	callErr := errors.New("remote failure")

	err := bundle.WithBinding(context.Background(), crm.KindREST, func(context.Context, connpool.Binding) error {
		return callErr
	})
	require.ErrorIs(t, err, callErr)

	stats := bundle.Stats()
	assert.Equal(t, 0, stats.InFlight)
	assert.Equal(t, 0, stats.CheckedOut)
	assert.Equal(t, 1, stats.Idle)
}

func TestBundle_WithBindingReleasesOnPanic(t *testing.T) {
	t.Parallel()

	bundle, _, _ := newTestBundle(t, 1)

	assert.Panics(t, func() {
		_ = bundle.WithBinding(context.Background(), crm.KindREST, func(context.Context, connpool.Binding) error {
			panic("transport exploded")
		})
	})

	stats := bundle.Stats()
	assert.Equal(t, 0, stats.InFlight)
	assert.Equal(t, 0, stats.CheckedOut)
}

func TestBundle_WithBindingUnknownKind(t *testing.T) {
	t.Parallel()

	bundle, _, _ := newTestBundle(t, 1)

	called := false
	err := bundle.WithBinding(context.Background(), crm.KindBulk, func(context.Context, connpool.Binding) error {
		called = true

		return nil
	})
	require.ErrorIs(t, err, connpool.ErrNoServerURL)
	assert.False(t, called)
	assert.Equal(t, 0, bundle.Stats().InFlight)
}

func TestBundle_BindingReturnedBeforePermit(t *testing.T) {
	t.Parallel()

	bundle, _, counter := newTestBundle(t, 1)

	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := bundle.WithBinding(context.Background(), crm.KindREST, func(context.Context, connpool.Binding) error {
				time.Sleep(time.Millisecond)

				return nil
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	// With a limit of one and the binding back in the cache before the
	// permit frees, every call reuses the same binding.
	assert.Equal(t, int64(1), counter.created.Load())
}

func TestBundle_WithBindingCanceledWhileWaiting(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	bundle, _, _ := newTestBundle(t, 1, connpool.WithRecorder(rec))

	hold := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = bundle.WithBinding(context.Background(), crm.KindREST, func(context.Context, connpool.Binding) error {
			close(started)
			<-hold

			return nil
		})
	}()

	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := bundle.WithBinding(ctx, crm.KindREST, func(context.Context, connpool.Binding) error {
		t.Error("callback ran without a permit")

		return nil
	})
	require.ErrorIs(t, err, crm.ErrCanceled)

	close(hold)

	require.Eventually(t, func() bool { return bundle.Stats().InFlight == 0 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, time.Second, 5*time.Millisecond)

	outcomes := map[string]int{}
	for _, event := range rec.all() {
		outcomes[event.Outcome()]++
	}

	assert.Equal(t, map[string]int{"canceled": 1, "success": 1}, outcomes)
}

func TestBundle_RecordsEvents(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	bundle, _, _ := newTestBundle(t, 1, connpool.WithRecorder(rec))

	remoteErr := crm.ParseRemoteError(401, "u", []byte(`[{"message": "expired", "errorCode": "INVALID_SESSION_ID"}]`))

	require.NoError(t, bundle.WithBinding(context.Background(), crm.KindREST, func(context.Context, connpool.Binding) error {
		return nil
	}))
	require.Error(t, bundle.WithBinding(context.Background(), crm.KindPartner, func(context.Context, connpool.Binding) error {
		return remoteErr
	}))

	events := rec.all()
	require.Len(t, events, 2)

	assert.Equal(t, "acme", events[0].Tenant)
	assert.Equal(t, crm.KindREST, events[0].Kind)
	assert.Equal(t, "success", events[0].Outcome())
	assert.Equal(t, crm.KindPartner, events[1].Kind)
	assert.Equal(t, "session_expired", events[1].Outcome())
}

func TestBundle_UpdateCredentials(t *testing.T) {
	t.Parallel()

	bundle, auth, _ := newTestBundle(t, 2)

	// Same credentials only reconfigure the gate.
	require.NoError(t, bundle.UpdateCredentials(context.Background(), "ada@acme.test", "secret", 5))
	assert.Equal(t, 1, auth.loginCount())
	assert.Equal(t, 5, bundle.Stats().Limit)
	assert.Equal(t, "token-1", bundle.Session().Token)

	require.NoError(t, bundle.UpdateCredentials(context.Background(), "ada@acme.test", "rotated", 3))
	assert.Equal(t, 2, auth.loginCount())
	assert.Equal(t, 3, bundle.Stats().Limit)
	assert.Equal(t, "token-2", bundle.Session().Token)
}

func TestBundle_UpdateCredentialsFailureKeepsState(t *testing.T) {
	t.Parallel()

	bundle, auth, _ := newTestBundle(t, 2)
	auth.mutex.Lock()
	auth.reject = "wrong"
	auth.mutex.Unlock()

	err := bundle.UpdateCredentials(context.Background(), "ada@acme.test", "wrong", 9)
	require.ErrorIs(t, err, errLoginRejected)

	assert.Equal(t, 2, bundle.Stats().Limit)
	assert.Equal(t, "token-1", bundle.Session().Token)
}

func TestBundle_InFlightCallKeepsBindingAcrossUpdate(t *testing.T) {
	t.Parallel()

	bundle, _, _ := newTestBundle(t, 1)

	var seenToken atomic.Value

	hold := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- bundle.WithBinding(context.Background(), crm.KindREST, func(_ context.Context, binding connpool.Binding) error {
			close(started)
			<-hold

			fake, _ := binding.(*fakeBinding)
			seenToken.Store(fake.token)

			return nil
		})
	}()

	<-started
	require.NoError(t, bundle.UpdateCredentials(context.Background(), "ada@acme.test", "rotated", 4))
	close(hold)
	require.NoError(t, <-done)

	assert.Equal(t, "token-1", seenToken.Load())
	assert.Equal(t, "token-2", bundle.Session().Token)
}

func TestBundle_Reauthenticate(t *testing.T) {
	t.Parallel()

	bundle, auth, _ := newTestBundle(t, 1)

	require.NoError(t, bundle.Reauthenticate(context.Background()))
	assert.Equal(t, 2, auth.loginCount())
	assert.Equal(t, "token-2", bundle.Session().Token)
}

func TestBundle_SessionIsCopy(t *testing.T) {
	t.Parallel()

	bundle, _, _ := newTestBundle(t, 1)

	session := bundle.Session()
	session.Token = "tampered"
	session.ServerURLs[crm.KindREST] = "https://evil.example.com"

	fresh := bundle.Session()
	assert.Equal(t, "token-1", fresh.Token)
	assert.Equal(t, "https://prod.example.com/services/data/v59.0", fresh.ServerURLs[crm.KindREST])
}
