package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// Login endpoints and API version.
const (
	// DefaultLoginURL is the production login host.
	DefaultLoginURL = "https://login.salesforce.com"

	// DefaultSandboxLoginURL is the sandbox login host.
	DefaultSandboxLoginURL = "https://test.salesforce.com"

	// DefaultAPIVersion is the remote API version used in endpoint paths.
	DefaultAPIVersion = "59.0"

	// TokenPath is the OAuth2 token endpoint, relative to the login host.
	TokenPath = "/services/oauth2/token"
)

// Client identification.
const (
	// DefaultUserAgent is sent on every request.
	DefaultUserAgent = "crm-client/" + Version

	// Version of the library and CLI.
	Version = "0.4.0"
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// ShortHTTPTimeout is used for login requests.
	ShortHTTPTimeout = 10 * time.Second
)

// Retry settings, used only when retries are enabled.
const (
	// DefaultRetryWaitMin is the minimum wait time between retries.
	DefaultRetryWaitMin = 500 * time.Millisecond

	// DefaultRetryWaitMax is the maximum wait time between retries.
	DefaultRetryWaitMax = 10 * time.Second
)

// Concurrency limits.
const (
	// DefaultMaxConcurrent is the per-tenant in-flight call limit when none
	// is configured.
	DefaultMaxConcurrent = 4

	// DefaultBatchConcurrency limits concurrent operations in a batch.
	DefaultBatchConcurrency = 3
)

// Metrics defaults.
const (
	// DefaultMetricsNamespace prefixes Prometheus metric names.
	DefaultMetricsNamespace = "crm_client"

	// DefaultNATSSubjectPrefix prefixes call event subjects.
	DefaultNATSSubjectPrefix = "crm.calls"
)

// Format constants.
const (
	// FormatTable for table output format.
	FormatTable = "table"

	// FormatJSON for JSON output format.
	FormatJSON = "json"

	// FormatYAML for YAML output format.
	FormatYAML = "yaml"
)

// CLI settings.
const (
	// ConfigDirName is the CLI configuration directory under $HOME.
	ConfigDirName = ".crm"

	// ConfigFileName is the CLI configuration file name.
	ConfigFileName = "config.yml"

	// EnvPrefix prefixes environment overrides, e.g. CRM_PASSWORD.
	EnvPrefix = "CRM"

	// MinimumArgumentCount is the argument count of two-argument commands.
	MinimumArgumentCount = 2
)
