package connpool_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fivetwenty-io/crm-client/pkg/connpool"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
)

var errLoginRejected = errors.New("login rejected")

// fakeAuth issues numbered tokens and can be told to reject a password.
type fakeAuth struct {
	mutex  sync.Mutex
	logins []connpool.Credentials
	reject string
	delay  time.Duration
	// started, when set, receives one value as each login begins.
	started chan struct{}
}

func (a *fakeAuth) Login(ctx context.Context, creds connpool.Credentials) (*connpool.Session, error) {
	if a.started != nil {
		a.started <- struct{}{}
	}

	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.reject != "" && creds.Password == a.reject {
		return nil, errLoginRejected
	}

	a.logins = append(a.logins, creds)
	host := "https://prod.example.com"

	if creds.Sandbox {
		host = "https://sandbox.example.com"
	}

	return &connpool.Session{
		Token:       fmt.Sprintf("token-%d", len(a.logins)),
		UserID:      creds.Username,
		InstanceURL: host,
		ServerURLs: map[crm.OperationKind]string{
			crm.KindREST:    host + "/services/data/v59.0",
			crm.KindPartner: host + "/services/Soap/u/59.0",
		},
		IssuedAt: time.Now(),
	}, nil
}

func (a *fakeAuth) loginCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return len(a.logins)
}

// fakeBinding records the most recent Bind call and whether a caller is
// currently using it.
type fakeBinding struct {
	id     int
	inUse  atomic.Bool
	kind   crm.OperationKind
	url    string
	token  string
	failOn crm.OperationKind
}

func (b *fakeBinding) Bind(kind crm.OperationKind, session *connpool.Session) error {
	if b.failOn != "" && kind == b.failOn {
		return errors.New("unsupported kind")
	}

	url, err := session.ServerURL(kind)
	if err != nil {
		return err
	}

	b.kind = kind
	b.url = url
	b.token = session.Token

	return nil
}

type bindingCounter struct {
	created atomic.Int64
}

func (c *bindingCounter) factory(context.Context) (connpool.Binding, error) {
	id := c.created.Add(1)

	return &fakeBinding{id: int(id)}, nil
}

// recorder collects call events.
type recorder struct {
	mutex  sync.Mutex
	events []connpool.CallEvent
}

func (r *recorder) RecordCall(event connpool.CallEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.events = append(r.events, event)
}

func (r *recorder) all() []connpool.CallEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return append([]connpool.CallEvent(nil), r.events...)
}
