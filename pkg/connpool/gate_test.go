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

func TestGate_NeverExceedsLimit(t *testing.T) {
	t.Parallel()

	const (
		limit   = 3
		callers = 40
	)

	gate := connpool.NewGate(limit)

	var (
		current atomic.Int64
		peak    atomic.Int64
		wg      sync.WaitGroup
	)

	for range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := gate.Do(context.Background(), func(context.Context) error {
				now := current.Add(1)
				for {
					seen := peak.Load()
					if now <= seen || peak.CompareAndSwap(seen, now) {
						break
					}
				}

				time.Sleep(time.Millisecond)
				current.Add(-1)

				return nil
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(limit))
	assert.Positive(t, peak.Load())
	assert.Equal(t, 0, gate.InFlight())
}

func TestGate_CancelWhileWaiting(t *testing.T) {
	t.Parallel()

	gate := connpool.NewGate(1)
	require.NoError(t, gate.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- gate.Acquire(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, crm.ErrCanceled)
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after cancellation")
	}

	assert.Equal(t, 1, gate.InFlight())

	gate.Release()
	assert.Equal(t, 0, gate.InFlight())

	// The canceled waiter must not have consumed capacity.
	require.NoError(t, gate.Acquire(context.Background()))
	gate.Release()
}

func TestGate_AlreadyCanceledContext(t *testing.T) {
	t.Parallel()

	gate := connpool.NewGate(5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := gate.Acquire(ctx)
	require.ErrorIs(t, err, crm.ErrCanceled)
	assert.Equal(t, 0, gate.InFlight())
}

func TestGate_DeadlineWhileWaiting(t *testing.T) {
	t.Parallel()

	gate := connpool.NewGate(1)
	require.NoError(t, gate.Acquire(context.Background()))
	defer gate.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := gate.Acquire(ctx)
	require.ErrorIs(t, err, crm.ErrCanceled)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGate_DoReleasesOnErrorAndPanic(t *testing.T) {
	t.Parallel()

	gate := connpool.NewGate(1)
	boom := errors.New("boom")

	err := gate.Do(context.Background(), func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, gate.InFlight())

	assert.Panics(t, func() {
		_ = gate.Do(context.Background(), func(context.Context) error { panic("kaboom") })
	})
	assert.Equal(t, 0, gate.InFlight())
}

func TestGate_ReleaseWithoutAcquirePanics(t *testing.T) {
	t.Parallel()

	gate := connpool.NewGate(1)
	assert.Panics(t, gate.Release)
}

func TestGate_ClampsLimit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, connpool.NewGate(0).Limit())
	assert.Equal(t, 1, connpool.NewGate(-4).Limit())

	gate := connpool.NewGate(3)
	gate.Reconfigure(0)
	assert.Equal(t, 1, gate.Limit())
}

func TestGate_ReconfigureUpWakesWaiters(t *testing.T) {
	t.Parallel()

	gate := connpool.NewGate(1)
	require.NoError(t, gate.Acquire(context.Background()))

	admitted := make(chan struct{})

	go func() {
		if err := gate.Acquire(context.Background()); err == nil {
			close(admitted)
		}
	}()

	select {
	case <-admitted:
		t.Fatal("waiter admitted above the limit")
	case <-time.After(20 * time.Millisecond):
	}

	gate.Reconfigure(2)

	select {
	case <-admitted:
	case <-time.After(time.Second):
		t.Fatal("waiter not admitted after the limit was raised")
	}

	assert.Equal(t, 2, gate.InFlight())
	gate.Release()
	gate.Release()
}

func TestGate_ReconfigureDownHonorsGrantedPermits(t *testing.T) {
	t.Parallel()

	gate := connpool.NewGate(3)
	for range 3 {
		require.NoError(t, gate.Acquire(context.Background()))
	}

	gate.Reconfigure(1)
	assert.Equal(t, 1, gate.Limit())
	assert.Equal(t, 3, gate.InFlight())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Two releases still leave one in flight, which fills the new limit.
	gate.Release()
	gate.Release()
	require.ErrorIs(t, gate.Acquire(ctx), crm.ErrCanceled)

	gate.Release()
	require.NoError(t, gate.Acquire(context.Background()))
	assert.Equal(t, 1, gate.InFlight())
	gate.Release()
}
