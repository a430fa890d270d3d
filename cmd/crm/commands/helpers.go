package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/crm-client/internal/constants"
	"github.com/fivetwenty-io/crm-client/internal/logging"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
	"github.com/fivetwenty-io/crm-client/pkg/crmclient"
)

// Common string constants used throughout the commands package.
const (
	NotAvailable = "N/A"
	Yes          = "yes"
	No           = "no"

	defaultJSONIndent = 2
	passwordEnvKey    = "password"
)

// Common static errors used throughout the commands package.
var (
	ErrUsernameRequired  = errors.New("username is required (--username)")
	ErrSessionNotRenewed = errors.New("session expired and could not be renewed")
)

// session is a configured client bound to one saved tenant.
type session struct {
	name   string
	config *TenantConfig
	client *crmclient.Client
}

func (s *session) tenant() crm.Tenant {
	return s.config.Tenant()
}

// close prints the call counters in verbose mode and releases the client.
func (s *session) close() {
	defer s.client.Close()

	if !viper.GetBool("verbose") {
		return
	}

	counters, ok := s.client.CallMetrics(s.tenant(), crm.KindREST)
	if !ok {
		return
	}

	_, _ = fmt.Fprintf(os.Stderr, "%s: %d calls, %d errors, avg latency %s, waited %s\n",
		s.name, counters.TotalCalls, counters.TotalErrors, counters.AverageLatency, counters.TotalWait)
}

// newLogger builds the CLI logger. Without --verbose only warnings and
// errors are printed.
func newLogger() (crm.Logger, error) {
	level := "warn"
	if viper.GetBool("verbose") {
		level = "debug"
	}

	logger, err := logging.NewDevelopment(level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return logger, nil
}

// newClient builds a library client from the CLI configuration. Sessions are
// persisted in the configuration file.
func newClient(config *Config, store *ConfigSessionStore) (*crmclient.Client, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}

	clientConfig := &crm.Config{
		LoginURL:        config.Login.LoginURL,
		SandboxLoginURL: config.Login.SandboxLoginURL,
		APIVersion:      config.Login.APIVersion,
		ClientID:        config.Login.ClientID,
		ClientSecret:    config.Login.ClientSecret,
		Debug:           viper.GetBool("verbose"),
		Logger:          logger,
		Metrics:         &crm.MetricsConfig{InMemory: true, NATSURL: config.Metrics.NATSURL},
	}

	client, err := crmclient.New(clientConfig, crmclient.WithSessionStore(store))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return client, nil
}

// openSession configures the tenant selected by --tenant. A persisted
// session is reused; otherwise the password comes from CRM_PASSWORD.
func openSession(ctx context.Context) (*session, error) {
	config := loadConfig()

	name, tenant, err := config.resolveTenant(viper.GetString("tenant"))
	if err != nil {
		return nil, err
	}

	password := viper.GetString(passwordEnvKey)
	if password == "" && (tenant.Session == nil || tenant.Session.Token == "") {
		return nil, constants.ErrNoPasswordAvailable
	}

	client, err := newClient(config, NewConfigSessionStore())
	if err != nil {
		return nil, err
	}

	err = client.Configure(ctx, tenant.Tenant(), tenant.Username, password, maxConcurrent(tenant))
	if err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to configure tenant %s: %w", name, err)
	}

	return &session{name: name, config: tenant, client: client}, nil
}

// run calls fn once, and once more after renewing the session when the
// remote side reports it expired.
func (s *session) run(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if !crm.IsSessionExpired(err) {
		return err
	}

	if renewErr := s.client.Reauthenticate(ctx, s.tenant()); renewErr != nil {
		return fmt.Errorf("%w (run 'crm login %s'): %w", ErrSessionNotRenewed, s.name, renewErr)
	}

	return fn(ctx)
}

func maxConcurrent(tenant *TenantConfig) int {
	if tenant.MaxConcurrent > 0 {
		return tenant.MaxConcurrent
	}

	return constants.DefaultMaxConcurrent
}

func outputFormat() (string, error) {
	output := strings.ToLower(viper.GetString("output"))

	switch output {
	case "", constants.FormatTable:
		return constants.FormatTable, nil
	case constants.FormatJSON, constants.FormatYAML:
		return output, nil
	default:
		return "", fmt.Errorf("%w: %q", constants.ErrInvalidOutputFormat, output)
	}
}

// writeStructured writes value as JSON or YAML. YAML goes through JSON
// first so custom JSON marshalers shape both outputs.
func writeStructured(writer io.Writer, format string, value interface{}) error {
	if format == constants.FormatJSON {
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", strings.Repeat(" ", defaultJSONIndent))

		return encoder.Encode(value)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	var plain interface{}

	err = json.Unmarshal(data, &plain)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	encoder := yaml.NewEncoder(writer)
	defer func() { _ = encoder.Close() }()

	return encoder.Encode(plain)
}

func renderTable(writer io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(writer)
	table.Header(toAny(header)...)

	for _, row := range rows {
		_ = table.Append(toAny(row)...)
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

func toAny(values []string) []any {
	converted := make([]any, len(values))
	for i, value := range values {
		converted[i] = value
	}

	return converted
}

func yesNo(value bool) string {
	if value {
		return Yes
	}

	return No
}

func valueOrNA(value *string) string {
	if value == nil {
		return NotAvailable
	}

	return *value
}
