package commands

import (
	"fmt"
	"sync"
	"time"

	"github.com/fivetwenty-io/crm-client/internal/constants"
	"github.com/fivetwenty-io/crm-client/pkg/connpool"
	"github.com/fivetwenty-io/crm-client/pkg/crmclient"
)

// ConfigSessionStore keeps sessions in the tenant entries of the CLI
// configuration file.
type ConfigSessionStore struct {
	mutex sync.Mutex
}

var _ crmclient.SessionStore = (*ConfigSessionStore)(nil)

// NewConfigSessionStore creates a new session store.
func NewConfigSessionStore() *ConfigSessionStore {
	return &ConfigSessionStore{}
}

// LoadSession returns the session saved for the user, if any.
func (s *ConfigSessionStore) LoadSession(username string, sandbox bool) (*connpool.Session, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tenant := findTenantByUser(loadConfig(), username, sandbox)
	if tenant == nil || tenant.Session == nil || tenant.Session.Token == "" {
		return nil, false
	}

	return tenant.Session.session(), true
}

// SaveSession stores the session on every tenant entry for the user.
func (s *ConfigSessionStore) SaveSession(username string, sandbox bool, session *connpool.Session) error {
	return s.update(username, sandbox, func(tenant *TenantConfig) {
		now := time.Now()
		tenant.Session = newSessionConfig(session)
		tenant.LastLogin = &now
	})
}

// DeleteSession forgets the session saved for the user.
func (s *ConfigSessionStore) DeleteSession(username string, sandbox bool) error {
	return s.update(username, sandbox, func(tenant *TenantConfig) {
		tenant.Session = nil
	})
}

func (s *ConfigSessionStore) update(username string, sandbox bool, apply func(*TenantConfig)) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	config := loadConfig()
	found := false

	for _, tenant := range config.Tenants {
		if tenant.Username == username && tenant.Sandbox == sandbox {
			apply(tenant)

			found = true
		}
	}

	if !found {
		return fmt.Errorf("session for %s: %w", username, constants.ErrTenantNotFound)
	}

	return saveConfigStruct(config)
}

func findTenantByUser(config *Config, username string, sandbox bool) *TenantConfig {
	for _, name := range config.tenantNames() {
		tenant := config.Tenants[name]
		if tenant.Username == username && tenant.Sandbox == sandbox {
			return tenant
		}
	}

	return nil
}
