package crm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error taxonomy. Every failure surfaced by this module matches one of these
// via errors.Is, or is a *RemoteAPIError.
var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrNotCheckedOut     = errors.New("binding is not checked out")
	ErrNotConfigured     = errors.New("tenant is not configured")
	ErrCanceled          = errors.New("canceled while waiting for admission")
	ErrMalformedResponse = errors.New("malformed response")
	ErrSessionExpired    = errors.New("session expired")
)

// Static errors for err113 compliance.
var (
	ErrInvalidQueryResult = fmt.Errorf("%w: cursor must be present exactly when the result is not done", ErrMalformedResponse)
	ErrBitIndexOutOfRange = errors.New("bit index out of range")
	ErrTenantKeyRequired  = errors.New("tenant key is required")
	ErrUsernameRequired   = errors.New("username is required")
)

// Remote error codes with dedicated handling.
const (
	ErrorCodeInvalidSession = "INVALID_SESSION_ID"
	ErrorCodeNotFound       = "NOT_FOUND"
	ErrorCodeEntityDeleted  = "ENTITY_IS_DELETED"
	ErrorCodeMalformedQuery = "MALFORMED_QUERY"
	ErrorCodeInvalidField   = "INVALID_FIELD"
)

// APIErrorEntry is one error reported by the remote endpoint.
type APIErrorEntry struct {
	Code    string   `json:"errorCode"        yaml:"error_code"`
	Message string   `json:"message"          yaml:"message"`
	Fields  []string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Error implements the error interface.
func (e *APIErrorEntry) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s (fields: %s)", e.Code, e.Message, strings.Join(e.Fields, ", "))
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// RemoteAPIError is a structured error returned by the remote endpoint.
type RemoteAPIError struct {
	StatusCode int
	URL        string
	Body       string
	Errors     []APIErrorEntry
}

// Error implements the error interface.
func (e *RemoteAPIError) Error() string {
	switch len(e.Errors) {
	case 0:
		return fmt.Sprintf("remote API error: status %d from %s: %s", e.StatusCode, e.URL, e.Body)
	case 1:
		return fmt.Sprintf("remote API error: status %d from %s: %s", e.StatusCode, e.URL, e.Errors[0].Error())
	default:
		msgs := make([]string, 0, len(e.Errors))
		for i := range e.Errors {
			msgs = append(msgs, e.Errors[i].Error())
		}

		return fmt.Sprintf("remote API error: status %d from %s: multiple errors: [%s]",
			e.StatusCode, e.URL, strings.Join(msgs, "; "))
	}
}

// Is lets errors.Is(err, ErrSessionExpired) match an invalid-session response.
func (e *RemoteAPIError) Is(target error) bool {
	if target == ErrSessionExpired {
		return e.HasCode(ErrorCodeInvalidSession)
	}

	return false
}

// HasCode reports whether any entry carries code.
func (e *RemoteAPIError) HasCode(code string) bool {
	for i := range e.Errors {
		if e.Errors[i].Code == code {
			return true
		}
	}

	return false
}

// FirstError returns the first entry or nil.
func (e *RemoteAPIError) FirstError() *APIErrorEntry {
	if len(e.Errors) > 0 {
		return &e.Errors[0]
	}

	return nil
}

// ParseRemoteError builds a RemoteAPIError from a failed response. The body
// may be a JSON array of entries, a single entry object, or an OAuth style
// {"error", "error_description"} object. Bodies that decode as none of these
// produce an error with no entries.
func ParseRemoteError(statusCode int, url string, body []byte) *RemoteAPIError {
	remoteErr := &RemoteAPIError{
		StatusCode: statusCode,
		URL:        url,
		Body:       string(body),
	}

	var entries []APIErrorEntry

	err := json.Unmarshal(body, &entries)
	if err == nil {
		remoteErr.Errors = entries

		return remoteErr
	}

	var single struct {
		APIErrorEntry

		OAuthError       string `json:"error"`
		OAuthDescription string `json:"error_description"`
	}

	err = json.Unmarshal(body, &single)
	if err != nil {
		return remoteErr
	}

	switch {
	case single.Code != "":
		remoteErr.Errors = []APIErrorEntry{single.APIErrorEntry}
	case single.OAuthError != "":
		remoteErr.Errors = []APIErrorEntry{{Code: single.OAuthError, Message: single.OAuthDescription}}
	}

	return remoteErr
}

// IsSessionExpired reports whether err signals an expired or invalid session.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// IsNotFound reports whether err is a remote not-found error.
func IsNotFound(err error) bool {
	remoteErr := &RemoteAPIError{}
	if errors.As(err, &remoteErr) {
		return remoteErr.StatusCode == http.StatusNotFound ||
			remoteErr.HasCode(ErrorCodeNotFound) ||
			remoteErr.HasCode(ErrorCodeEntityDeleted)
	}

	return false
}

// IsMalformed reports whether err is a decoding failure.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}

// malformed wraps a decoding failure so it matches ErrMalformedResponse.
func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
