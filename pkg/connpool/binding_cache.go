package connpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/fivetwenty-io/crm-client/pkg/crm"
)

// BindingCache recycles bindings. It never hands out a binding that is
// already checked out and imposes no bound on how many it creates; the
// Gate in front of it does that.
type BindingCache struct {
	factory BindingFactory

	mutex      sync.Mutex
	idle       []Binding
	checkedOut map[Binding]struct{}
}

// NewBindingCache creates an empty cache backed by factory.
func NewBindingCache(factory BindingFactory) *BindingCache {
	return &BindingCache{
		factory:    factory,
		checkedOut: make(map[Binding]struct{}),
	}
}

// Checkout returns an idle binding, or a new one when none is idle.
func (c *BindingCache) Checkout(ctx context.Context) (Binding, error) {
	c.mutex.Lock()

	if n := len(c.idle); n > 0 {
		binding := c.idle[n-1]
		c.idle[n-1] = nil
		c.idle = c.idle[:n-1]
		c.checkedOut[binding] = struct{}{}
		c.mutex.Unlock()

		return binding, nil
	}

	c.mutex.Unlock()

	// Construction happens outside the lock; the new binding is not
	// visible to anyone else until it is tracked below.
	binding, err := c.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating binding: %w", err)
	}

	if binding == nil {
		return nil, ErrNilBinding
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.checkedOut[binding]; exists {
		return nil, ErrDuplicateBinding
	}

	for _, idle := range c.idle {
		if idle == binding {
			return nil, ErrDuplicateBinding
		}
	}

	c.checkedOut[binding] = struct{}{}

	return binding, nil
}

// Release returns binding to the idle set.
func (c *BindingCache) Release(binding Binding) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if binding == nil {
		return fmt.Errorf("%w: nil binding", crm.ErrNotCheckedOut)
	}

	if _, ok := c.checkedOut[binding]; !ok {
		return fmt.Errorf("%w: %T", crm.ErrNotCheckedOut, binding)
	}

	delete(c.checkedOut, binding)
	c.idle = append(c.idle, binding)

	return nil
}

// Idle reports how many bindings are waiting for reuse.
func (c *BindingCache) Idle() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return len(c.idle)
}

// CheckedOut reports how many bindings are currently lent out.
func (c *BindingCache) CheckedOut() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return len(c.checkedOut)
}
