// Package connpool manages per-tenant connection state: reusable protocol
// bindings, concurrency admission, authenticated sessions, and the registry
// that maps tenant keys to them.
//
// The layering, from the bottom up:
//
//	BindingCache  recycles Binding handles, never lends one twice
//	Gate          bounds in-flight calls per tenant
//	Bundle        one authenticated tenant session (cache + gate + session)
//	Pool          tenant key -> Bundle, production and sandbox kept apart
//
// Callers normally only touch Pool and Bundle.WithBinding.
package connpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fivetwenty-io/crm-client/pkg/crm"
)

// Static errors for err113 compliance.
var (
	ErrNoServerURL       = errors.New("session has no server URL for operation kind")
	ErrNilBinding        = errors.New("binding factory returned nil")
	ErrDuplicateBinding  = errors.New("binding factory returned a binding the cache already tracks")
	ErrNilSession        = errors.New("authenticator returned nil session")
	ErrAuthenticatorNil  = errors.New("authenticator is required")
	ErrBindingFactoryNil = errors.New("binding factory is required")
)

// Credentials identify one tenant login.
type Credentials struct {
	Username string
	Password string //nolint:gosec
	Sandbox  bool
}

// Session is the result of a successful login: a bearer token plus the
// server URL to use for each operation kind.
type Session struct {
	Token       string
	UserID      string
	InstanceURL string
	ServerURLs  map[crm.OperationKind]string
	IssuedAt    time.Time
}

// ServerURL returns the endpoint for kind.
func (s *Session) ServerURL(kind crm.OperationKind) (string, error) {
	url, ok := s.ServerURLs[kind]
	if !ok || url == "" {
		return "", fmt.Errorf("%w: %s", ErrNoServerURL, kind)
	}

	return url, nil
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	clone := *s

	clone.ServerURLs = make(map[crm.OperationKind]string, len(s.ServerURLs))
	for kind, url := range s.ServerURLs {
		clone.ServerURLs[kind] = url
	}

	return &clone
}

// Authenticator performs the login handshake.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (*Session, error)
}

// Binding is a reusable, stateful handle to the remote service. A binding
// is used by at most one caller at a time. Implementations must be
// comparable; pointer types are the usual choice.
type Binding interface {
	// Bind points the binding at the endpoint for kind and installs the
	// session credentials. It is called on every checkout.
	Bind(kind crm.OperationKind, session *Session) error
}

// BindingFactory constructs a new Binding.
type BindingFactory func(ctx context.Context) (Binding, error)

// CallEvent describes one completed WithBinding call.
type CallEvent struct {
	Tenant   string
	Sandbox  bool
	Kind     crm.OperationKind
	Started  time.Time
	Wait     time.Duration
	Duration time.Duration
	Err      error
}

// Outcome classifies the call for metrics labels.
func (e CallEvent) Outcome() string {
	switch {
	case e.Err == nil:
		return "success"
	case errors.Is(e.Err, crm.ErrCanceled):
		return "canceled"
	case crm.IsSessionExpired(e.Err):
		return "session_expired"
	case crm.IsMalformed(e.Err):
		return "malformed"
	default:
		var remoteErr *crm.RemoteAPIError
		if errors.As(e.Err, &remoteErr) {
			return "remote_error"
		}

		return "error"
	}
}

// Recorder receives one event per call. Implementations must be safe for
// concurrent use and must not block for long.
type Recorder interface {
	RecordCall(event CallEvent)
}

type nopRecorder struct{}

func (nopRecorder) RecordCall(CallEvent) {}
