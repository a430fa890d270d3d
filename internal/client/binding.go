package client

import (
	"context"
	"fmt"

	"github.com/fivetwenty-io/crm-client/internal/http"
	"github.com/fivetwenty-io/crm-client/pkg/connpool"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
)

// RESTBinding is a connpool.Binding wrapping one HTTP client. Bind points
// it at the server URL for the requested kind and installs the session
// token; it is not safe for concurrent use, which the binding cache
// guarantees.
type RESTBinding struct {
	httpClient *http.Client
	token      *http.StaticToken
	kind       crm.OperationKind
}

var _ connpool.Binding = (*RESTBinding)(nil)

// NewRESTBinding creates an unbound binding.
func NewRESTBinding(opts ...http.Option) *RESTBinding {
	token := http.NewStaticToken("")

	return &RESTBinding{
		httpClient: http.NewClient("", token, opts...),
		token:      token,
	}
}

// NewBindingFactory returns a factory producing REST bindings that share
// the given transport options.
func NewBindingFactory(opts ...http.Option) connpool.BindingFactory {
	return func(context.Context) (connpool.Binding, error) {
		return NewRESTBinding(opts...), nil
	}
}

// Bind implements connpool.Binding.
func (b *RESTBinding) Bind(kind crm.OperationKind, session *connpool.Session) error {
	serverURL, err := session.ServerURL(kind)
	if err != nil {
		return err
	}

	b.httpClient.SetBaseURL(serverURL)
	b.token.SetToken(session.Token)
	b.kind = kind

	return nil
}

// Kind is the kind the binding was last bound to.
func (b *RESTBinding) Kind() crm.OperationKind {
	return b.kind
}

// HTTP returns the bound transport.
func (b *RESTBinding) HTTP() *http.Client {
	return b.httpClient
}

func asREST(binding connpool.Binding) (*RESTBinding, error) {
	rest, ok := binding.(*RESTBinding)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedBinding, binding)
	}

	return rest, nil
}
