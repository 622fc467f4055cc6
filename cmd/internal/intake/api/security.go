package intakeapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Authorizer guards the operator endpoints (invitation creation and
// response reads). Respondent endpoints are gated by the invitation token
// itself and bypass this check.
type Authorizer interface {
	// Authorize reports whether the request may use operator endpoints.
	Authorize(r *http.Request) bool
}

// AdminKeyAuthorizer accepts requests carrying the configured key as a
// bearer token. It is the handler default; with no key configured it denies
// everything and reports itself disabled.
type AdminKeyAuthorizer struct {
	key string
}

// NewAdminKeyAuthorizer constructs an AdminKeyAuthorizer. A blank key yields
// an authorizer that denies everything.
func NewAdminKeyAuthorizer(key string) AdminKeyAuthorizer {
	return AdminKeyAuthorizer{key: strings.TrimSpace(key)}
}

// Enabled reports whether a key is configured.
func (a AdminKeyAuthorizer) Enabled() bool { return a.key != "" }

func (a AdminKeyAuthorizer) Authorize(r *http.Request) bool {
	if a.key == "" {
		return false
	}

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return false
	}
	presented := strings.TrimSpace(auth[len(prefix):])

	return subtle.ConstantTimeCompare([]byte(presented), []byte(a.key)) == 1
}
