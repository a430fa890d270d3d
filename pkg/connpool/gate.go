package connpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/fivetwenty-io/crm-client/pkg/crm"
)

// Gate bounds the number of in-flight calls. Its limit can be changed while
// permits are outstanding: granted permits stay valid until released and
// count against the new limit, so lowering the limit only slows future
// admissions and raising it admits waiters right away.
//
// Admission order among waiters is unspecified.
type Gate struct {
	mutex    sync.Mutex
	limit    int
	inFlight int
	// changed is closed and replaced whenever capacity may have freed up.
	changed chan struct{}
}

// NewGate returns a gate admitting up to limit concurrent holders. Limits
// below one are treated as one.
func NewGate(limit int) *Gate {
	return &Gate{
		limit:   clampLimit(limit),
		changed: make(chan struct{}),
	}
}

// Acquire blocks until a permit is available or ctx is done. A canceled
// wait returns an error matching crm.ErrCanceled and holds no permit.
func (g *Gate) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", crm.ErrCanceled, err)
		}

		g.mutex.Lock()
		if g.inFlight < g.limit {
			g.inFlight++
			g.mutex.Unlock()

			return nil
		}

		wait := g.changed
		g.mutex.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", crm.ErrCanceled, ctx.Err())
		}
	}
}

// Release returns a permit. Releasing more permits than were acquired is a
// programming error and panics.
func (g *Gate) Release() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.inFlight == 0 {
		panic("connpool: Gate.Release without matching Acquire")
	}

	g.inFlight--
	g.broadcast()
}

// Do runs fn while holding a permit. The permit is released however fn
// returns, panics included.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()

	return fn(ctx)
}

// Reconfigure changes the limit in place.
func (g *Gate) Reconfigure(limit int) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	limit = clampLimit(limit)
	raised := limit > g.limit
	g.limit = limit

	if raised {
		g.broadcast()
	}
}

// Limit returns the current ceiling.
func (g *Gate) Limit() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.limit
}

// InFlight returns the number of permits currently held.
func (g *Gate) InFlight() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.inFlight
}

// broadcast wakes every waiter; callers hold the mutex.
func (g *Gate) broadcast() {
	close(g.changed)
	g.changed = make(chan struct{})
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}

	return limit
}
