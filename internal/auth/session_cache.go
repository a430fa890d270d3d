package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fivetwenty-io/crm-client/internal/logging"
	"github.com/fivetwenty-io/crm-client/pkg/connpool"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
)

// Static errors for err113 compliance.
var (
	ErrNoSessionPersister = errors.New("no session persister configured")
)

// SessionPersister stores sessions between process runs, keyed by user and
// environment.
type SessionPersister interface {
	LoadSession(username string, sandbox bool) (*connpool.Session, bool)
	SaveSession(username string, sandbox bool, session *connpool.Session) error
	DeleteSession(username string, sandbox bool) error
}

// CachingAuthenticator returns a persisted session when one exists and
// otherwise logs in through next, persisting the result. Invalidate drops a
// persisted session so the following Login goes to the server; callers do
// that after crm.ErrSessionExpired.
type CachingAuthenticator struct {
	next      connpool.Authenticator
	persister SessionPersister
	logger    crm.Logger
	mutex     sync.Mutex
}

var _ connpool.Authenticator = (*CachingAuthenticator)(nil)

// NewCachingAuthenticator wraps next.
func NewCachingAuthenticator(next connpool.Authenticator, persister SessionPersister, logger crm.Logger) *CachingAuthenticator {
	if logger == nil {
		logger = logging.Nop{}
	}

	return &CachingAuthenticator{next: next, persister: persister, logger: logger}
}

// Login implements connpool.Authenticator.
func (c *CachingAuthenticator) Login(ctx context.Context, creds connpool.Credentials) (*connpool.Session, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.persister != nil {
		if session, ok := c.persister.LoadSession(creds.Username, creds.Sandbox); ok && session != nil && session.Token != "" {
			c.logger.Debug("Using persisted session", map[string]interface{}{
				"user":    creds.Username,
				"sandbox": creds.Sandbox,
			})

			return session.Clone(), nil
		}
	}

	session, err := c.next.Login(ctx, creds)
	if err != nil {
		return nil, err
	}

	if c.persister == nil {
		return session, nil
	}

	if err := c.persister.SaveSession(creds.Username, creds.Sandbox, session.Clone()); err != nil {
		// The session is usable even if it could not be saved.
		c.logger.Warn("Failed to persist session", map[string]interface{}{
			"user":  creds.Username,
			"error": err.Error(),
		})
	}

	return session, nil
}

// Invalidate forgets the persisted session for the user.
func (c *CachingAuthenticator) Invalidate(username string, sandbox bool) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.persister == nil {
		return ErrNoSessionPersister
	}

	if err := c.persister.DeleteSession(username, sandbox); err != nil {
		return fmt.Errorf("deleting persisted session: %w", err)
	}

	return nil
}
