// Package auth performs the tenant login handshake.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fivetwenty-io/crm-client/internal/constants"
	crmhttp "github.com/fivetwenty-io/crm-client/internal/http"
	"github.com/fivetwenty-io/crm-client/internal/logging"
	"github.com/fivetwenty-io/crm-client/pkg/connpool"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
)

// Config holds the login endpoints and OAuth2 client credentials.
type Config struct {
	// LoginURL is the production login host.
	LoginURL string

	// SandboxLoginURL is the sandbox login host.
	SandboxLoginURL string

	// APIVersion is used to build the per-kind server URLs.
	APIVersion string

	// ClientID and ClientSecret identify the connected app.
	ClientID     string
	ClientSecret string //nolint:gosec
}

// PasswordAuthenticator logs in with the OAuth2 username-password flow.
type PasswordAuthenticator struct {
	config     Config
	production *crmhttp.Client
	sandbox    *crmhttp.Client
	logger     crm.Logger
	now        func() time.Time
}

var _ connpool.Authenticator = (*PasswordAuthenticator)(nil)

// NewPasswordAuthenticator creates an authenticator. opts configure the
// transport used for both login hosts.
func NewPasswordAuthenticator(config Config, logger crm.Logger, opts ...crmhttp.Option) *PasswordAuthenticator {
	if config.LoginURL == "" {
		config.LoginURL = constants.DefaultLoginURL
	}

	if config.SandboxLoginURL == "" {
		config.SandboxLoginURL = constants.DefaultSandboxLoginURL
	}

	if config.APIVersion == "" {
		config.APIVersion = constants.DefaultAPIVersion
	}

	opts = append([]crmhttp.Option{crmhttp.WithTimeout(constants.ShortHTTPTimeout)}, opts...)

	authenticator := &PasswordAuthenticator{
		config:     config,
		production: crmhttp.NewClient(strings.TrimRight(config.LoginURL, "/"), nil, opts...),
		sandbox:    crmhttp.NewClient(strings.TrimRight(config.SandboxLoginURL, "/"), nil, opts...),
		logger:     logger,
		now:        time.Now,
	}

	if authenticator.logger == nil {
		authenticator.logger = logging.Nop{}
	}

	return authenticator
}

// Login exchanges credentials for a session.
func (a *PasswordAuthenticator) Login(ctx context.Context, creds connpool.Credentials) (*connpool.Session, error) {
	client := a.production
	if creds.Sandbox {
		client = a.sandbox
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", a.config.ClientID)
	form.Set("client_secret", a.config.ClientSecret)
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	resp, err := client.PostForm(ctx, constants.TokenPath, form)
	if err != nil {
		a.logger.Warn("Login failed", map[string]interface{}{
			"user":    creds.Username,
			"sandbox": creds.Sandbox,
			"error":   err.Error(),
		})

		return nil, fmt.Errorf("requesting token from %s: %w", client.BaseURL(), err)
	}

	var token Token
	if err := json.Unmarshal(resp.Body, &token); err != nil {
		return nil, fmt.Errorf("%w: decoding token response: %w", crm.ErrMalformedResponse, err)
	}

	session, err := token.Session(a.config.APIVersion, a.now())
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Login succeeded", map[string]interface{}{
		"user":     creds.Username,
		"sandbox":  creds.Sandbox,
		"instance": session.InstanceURL,
	})

	return session, nil
}
