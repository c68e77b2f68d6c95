package invoke

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"BillWatch/internal/config"
	"BillWatch/internal/domain"
)

// Credentials is what a caller presents on an invocation.
type Credentials struct {
	// Authorization is the raw Authorization header value.
	Authorization string
	// SchedulerToken is the value of the trusted scheduler header.
	SchedulerToken string
}

// BearerCredentials wraps a bare shared secret.
func BearerCredentials(secret string) Credentials {
	if secret == "" {
		return Credentials{}
	}
	return Credentials{Authorization: "Bearer " + secret}
}

// Authorizer accepts the bearer secret or the trusted scheduler header.
type Authorizer struct {
	secret          string
	schedulerHeader string
	schedulerToken  string
}

// NewAuthorizer accepts the secrets configured in cfg.
func NewAuthorizer(cfg config.AuthConfig) *Authorizer {
	return &Authorizer{
		secret:          cfg.Secret,
		schedulerHeader: cfg.SchedulerHeader,
		schedulerToken:  cfg.SchedulerToken,
	}
}

// FromHeader extracts credentials from request headers.
func (a *Authorizer) FromHeader(h http.Header) Credentials {
	creds := Credentials{Authorization: h.Get("Authorization")}
	if a.schedulerHeader != "" {
		creds.SchedulerToken = h.Get(a.schedulerHeader)
	}
	return creds
}

// Authorize returns domain.ErrUnauthorized unless one credential matches.
// An empty configured secret never matches.
func (a *Authorizer) Authorize(creds Credentials) error {
	if token, ok := bearerToken(creds.Authorization); ok && equal(token, a.secret) {
		return nil
	}
	if equal(creds.SchedulerToken, a.schedulerToken) {
		return nil
	}
	return domain.ErrUnauthorized
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func equal(given, want string) bool {
	if given == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(want)) == 1
}
