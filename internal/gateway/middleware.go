package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"dealerscope/internal/credential"
	"dealerscope/pkg/logging"

	"github.com/google/uuid"
)

// tenantBearerPrefix marks a bearer value that names a tenant explicitly.
// The middleware resolves it through the broker; everything after the prefix
// is the tenant id.
const tenantBearerPrefix = "tenant:"

// TenantHeader optionally carries the tenant id in passthrough mode, where
// the bearer value is an externally-issued access token the broker never
// sees.
const TenantHeader = "X-Dealerscope-Tenant"

// CredentialResolver is the broker surface the authenticator depends on.
// Narrowed to an interface so tests can substitute a fake broker.
type CredentialResolver interface {
	Resolve(ctx context.Context, tenantID string) (credential.Credential, error)
	ListTenants() []credential.TenantInfo
}

// Authenticator is the request authentication middleware. It sits ahead of
// every tool invocation, establishes which tenant's credential governs the
// request, and binds the resolved credential snapshot into the request
// context.
//
// Authentication decisions are made from headers only. The request body is
// never read or buffered, so streaming request and response bodies pass
// through unmodified.
type Authenticator struct {
	resolver CredentialResolver

	// exemptPaths bypass authentication entirely (health probes).
	exemptPaths map[string]bool
}

// NewAuthenticator creates the authentication middleware around the given
// resolver.
func NewAuthenticator(resolver CredentialResolver) *Authenticator {
	return &Authenticator{
		resolver: resolver,
		exemptPaths: map[string]bool{
			"/health": true,
			"/ready":  true,
		},
	}
}

// Middleware wraps next with tenant authentication.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.exemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		requestID := uuid.NewString()
		ctx := WithRequestID(r.Context(), requestID)

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			logging.Warn("Authenticator", "Missing Authorization header (request=%s path=%s)", requestID, r.URL.Path)
			writeAuthError(w, http.StatusUnauthorized)
			return
		}

		bearer, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			logging.Warn("Authenticator", "Unsupported Authorization type (request=%s)", requestID)
			writeAuthError(w, http.StatusUnauthorized)
			return
		}

		bearer = strings.TrimSpace(bearer)
		if bearer == "" {
			logging.Warn("Authenticator", "Empty bearer value (request=%s)", requestID)
			writeAuthError(w, http.StatusUnauthorized)
			return
		}

		cred, status := a.authenticate(ctx, r, bearer, requestID)
		if status != 0 {
			writeAuthError(w, status)
			return
		}

		next.ServeHTTP(w, r.WithContext(credential.NewContext(ctx, cred)))
	})
}

// authenticate turns the bearer value into a bound credential. It returns a
// non-zero HTTP status on rejection. The response body stays generic in
// every rejection case; only logs distinguish the failure classes.
func (a *Authenticator) authenticate(ctx context.Context, r *http.Request, bearer, requestID string) (credential.Credential, int) {
	if tenantID, ok := strings.CutPrefix(bearer, tenantBearerPrefix); ok {
		tenantID = strings.TrimSpace(tenantID)
		if tenantID == "" {
			logging.Warn("Authenticator", "Empty tenant id in bearer (request=%s)", requestID)
			return credential.Credential{}, http.StatusUnauthorized
		}

		cred, err := a.resolver.Resolve(ctx, tenantID)
		if err != nil {
			return credential.Credential{}, a.statusForBrokerError(err, tenantID, requestID)
		}

		logging.Debug("Authenticator", "Bound credential for tenant=%s (request=%s)", tenantID, requestID)
		return cred, 0
	}

	// Passthrough mode: the bearer value is an externally-issued access
	// token the calling platform already refreshed. It is bound as-is and
	// validated by the analytics API when the call is made.
	cred := credential.Credential{
		TenantID:    strings.TrimSpace(r.Header.Get(TenantHeader)),
		AccessToken: bearer,
	}
	logging.Debug("Authenticator", "Bound pre-authenticated token %s (request=%s tenant=%q)",
		credential.MaskToken(bearer), requestID, cred.TenantID)
	return cred, 0
}

// statusForBrokerError maps the broker's error taxonomy onto HTTP statuses.
// The classes are logged distinctly for operators; the client sees only the
// status and a generic body.
func (a *Authenticator) statusForBrokerError(err error, tenantID, requestID string) int {
	switch {
	case errors.Is(err, credential.ErrUnknownTenant):
		logging.Warn("Authenticator", "Unknown tenant=%s (request=%s)", tenantID, requestID)
		return http.StatusUnauthorized
	case errors.Is(err, credential.ErrCredentialRevoked):
		logging.Warn("Authenticator", "Credential revoked for tenant=%s, re-onboarding needed (request=%s)", tenantID, requestID)
		return http.StatusForbidden
	case errors.Is(err, credential.ErrTemporarilyUnavailable):
		logging.Warn("Authenticator", "Credential temporarily unavailable for tenant=%s (request=%s)", tenantID, requestID)
		return http.StatusServiceUnavailable
	default:
		logging.Error("Authenticator", err, "Credential resolution failed for tenant=%s (request=%s)", tenantID, requestID)
		return http.StatusServiceUnavailable
	}
}

// writeAuthError writes the generic authentication failure body. It never
// hints at which part of the credential was wrong.
func writeAuthError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"authentication failed"}`))
}
