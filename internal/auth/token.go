package auth

import (
	"strconv"
	"strings"
	"time"

	"github.com/fivetwenty-io/crm-client/internal/constants"
	"github.com/fivetwenty-io/crm-client/pkg/connpool"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
)

// Token is the OAuth2 token endpoint response.
type Token struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
	// ID is the identity URL; its last path segment is the user id.
	ID        string `json:"id"`
	TokenType string `json:"token_type"`
	// IssuedAt is milliseconds since the epoch, as a string.
	IssuedAt  string `json:"issued_at"`
	Signature string `json:"signature"`
}

// Valid reports whether the token can be turned into a session.
func (t *Token) Valid() bool {
	return t != nil && t.AccessToken != "" && t.InstanceURL != ""
}

// UserID extracts the user id from the identity URL.
func (t *Token) UserID() string {
	if t == nil || t.ID == "" {
		return ""
	}

	id := strings.TrimRight(t.ID, "/")

	return id[strings.LastIndex(id, "/")+1:]
}

// Issued parses IssuedAt, falling back to now.
func (t *Token) Issued(now time.Time) time.Time {
	millis, err := strconv.ParseInt(t.IssuedAt, 10, 64)
	if err != nil || millis <= 0 {
		return now
	}

	return time.UnixMilli(millis)
}

// Session converts the token into a pool session with one server URL per
// operation kind.
func (t *Token) Session(apiVersion string, now time.Time) (*connpool.Session, error) {
	if !t.Valid() {
		return nil, constants.ErrInvalidLoginResponse
	}

	return &connpool.Session{
		Token:       t.AccessToken,
		UserID:      t.UserID(),
		InstanceURL: strings.TrimRight(t.InstanceURL, "/"),
		ServerURLs:  ServerURLs(t.InstanceURL, apiVersion),
		IssuedAt:    t.Issued(now),
	}, nil
}

// ServerURLs derives the per-kind endpoints served by an instance.
func ServerURLs(instanceURL, apiVersion string) map[crm.OperationKind]string {
	if apiVersion == "" {
		apiVersion = constants.DefaultAPIVersion
	}

	base := strings.TrimRight(instanceURL, "/")

	return map[crm.OperationKind]string{
		crm.KindREST:     base + "/services/data/v" + apiVersion,
		crm.KindPartner:  base + "/services/Soap/u/" + apiVersion,
		crm.KindMetadata: base + "/services/Soap/m/" + apiVersion,
		crm.KindBulk:     base + "/services/async/" + apiVersion,
	}
}
