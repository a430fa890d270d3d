package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/crm-client/internal/constants"
	"github.com/fivetwenty-io/crm-client/pkg/connpool"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
)

// Config represents the CLI configuration.
type Config struct {
	Tenants       map[string]*TenantConfig `json:"tenants,omitempty"        mapstructure:"tenants"        yaml:"tenants,omitempty"`
	CurrentTenant string                   `json:"current_tenant,omitempty" mapstructure:"current_tenant" yaml:"current_tenant,omitempty"`

	Login   LoginConfig   `json:"login"   mapstructure:"login"   yaml:"login"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics" yaml:"metrics"`

	Output string `json:"output,omitempty" mapstructure:"output" yaml:"output,omitempty"`
}

// LoginConfig holds the connected app settings shared by all tenants.
type LoginConfig struct {
	ClientID        string `json:"client_id,omitempty"         mapstructure:"client_id"         yaml:"client_id,omitempty"`
	ClientSecret    string `json:"client_secret,omitempty"     mapstructure:"client_secret"     yaml:"client_secret,omitempty"`
	LoginURL        string `json:"login_url,omitempty"         mapstructure:"login_url"         yaml:"login_url,omitempty"`
	SandboxLoginURL string `json:"sandbox_login_url,omitempty" mapstructure:"sandbox_login_url" yaml:"sandbox_login_url,omitempty"`
	APIVersion      string `json:"api_version,omitempty"       mapstructure:"api_version"       yaml:"api_version,omitempty"`
}

// MetricsConfig selects call instrumentation for CLI runs.
type MetricsConfig struct {
	NATSURL string `json:"nats_url,omitempty" mapstructure:"nats_url" yaml:"nats_url,omitempty"`
}

// TenantConfig is one saved tenant.
type TenantConfig struct {
	Key           string         `json:"key"                      mapstructure:"key"            yaml:"key"`
	Sandbox       bool           `json:"sandbox"                  mapstructure:"sandbox"        yaml:"sandbox"`
	Username      string         `json:"username"                 mapstructure:"username"       yaml:"username"`
	MaxConcurrent int            `json:"max_concurrent"           mapstructure:"max_concurrent" yaml:"max_concurrent"`
	Session       *SessionConfig `json:"session,omitempty"        mapstructure:"session"        yaml:"session,omitempty"`
	LastLogin     *time.Time     `json:"last_login,omitempty"     mapstructure:"last_login"     yaml:"last_login,omitempty"`
}

// SessionConfig is a persisted login session.
type SessionConfig struct {
	Token       string            `json:"token"               mapstructure:"token"        yaml:"token"`
	UserID      string            `json:"user_id,omitempty"   mapstructure:"user_id"      yaml:"user_id,omitempty"`
	InstanceURL string            `json:"instance_url"        mapstructure:"instance_url" yaml:"instance_url"`
	ServerURLs  map[string]string `json:"server_urls"         mapstructure:"server_urls"  yaml:"server_urls"`
	IssuedAt    time.Time         `json:"issued_at"           mapstructure:"issued_at"    yaml:"issued_at"`
}

// Tenant returns the pool tenant the configuration refers to.
func (t *TenantConfig) Tenant() crm.Tenant {
	return crm.Tenant{Key: t.Key, Sandbox: t.Sandbox}
}

func newSessionConfig(session *connpool.Session) *SessionConfig {
	urls := make(map[string]string, len(session.ServerURLs))
	for kind, serverURL := range session.ServerURLs {
		urls[kind.String()] = serverURL
	}

	return &SessionConfig{
		Token:       session.Token,
		UserID:      session.UserID,
		InstanceURL: session.InstanceURL,
		ServerURLs:  urls,
		IssuedAt:    session.IssuedAt,
	}
}

func (s *SessionConfig) session() *connpool.Session {
	urls := make(map[crm.OperationKind]string, len(s.ServerURLs))
	for kind, serverURL := range s.ServerURLs {
		urls[crm.OperationKind(kind)] = serverURL
	}

	return &connpool.Session{
		Token:       s.Token,
		UserID:      s.UserID,
		InstanceURL: s.InstanceURL,
		ServerURLs:  urls,
		IssuedAt:    s.IssuedAt,
	}
}

func loadConfig() *Config {
	config := &Config{}

	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToTimeDurationHookFunc(),
	))

	if err := viper.Unmarshal(config, hooks); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to parse configuration: %v\n", err)
	}

	if config.Tenants == nil {
		config.Tenants = make(map[string]*TenantConfig)
	}

	return config
}

func configFilePath() (string, error) {
	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		return configFile, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configDir := filepath.Join(home, constants.ConfigDirName)

	err = os.MkdirAll(configDir, constants.ConfigDirPerm)
	if err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(configDir, constants.ConfigFileName), nil
}

func saveConfigStruct(config *Config) error {
	configFile, err := configFilePath()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = os.WriteFile(configFile, data, constants.ConfigFilePerm)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	viper.SetConfigFile(configFile)

	err = viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	return nil
}

// tenantNames returns the saved tenant names in order.
func (c *Config) tenantNames() []string {
	names := make([]string, 0, len(c.Tenants))
	for name := range c.Tenants {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// resolveTenant picks the named tenant, or the current one when name is
// empty.
func (c *Config) resolveTenant(name string) (string, *TenantConfig, error) {
	if len(c.Tenants) == 0 {
		return "", nil, constants.ErrNoTenantsConfigured
	}

	if name == "" {
		name = c.CurrentTenant
	}

	if name == "" && len(c.Tenants) == 1 {
		name = c.tenantNames()[0]
	}

	tenant, ok := c.Tenants[name]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", constants.ErrTenantNotFound, name)
	}

	return name, tenant, nil
}
