package credential

import (
	"time"
)

// RefreshMargin is the remaining-lifetime threshold below which an access
// token is treated as expiring and refreshed before being handed out. This
// accounts for clock skew, network latency, and long-running downstream
// calls that would otherwise outlive the token.
const RefreshMargin = 5 * time.Minute

// Record holds the OAuth credential state for one tenant (dealer).
//
// Records are published to the store as immutable values: the broker never
// mutates a stored Record in place, it swaps in a replacement. A reader
// therefore always observes either the pre-refresh or the fully-updated
// post-refresh state, never a torn mix.
type Record struct {
	// TenantID is the unique tenant key, immutable after load.
	TenantID string

	// DisplayName is informational only.
	DisplayName string

	// ClientID and ClientSecret identify the OAuth2 application. They are
	// shared per issuing application, not necessarily unique per tenant.
	ClientID     string
	ClientSecret string

	// RefreshToken is the long-lived grant issued once by the authorization
	// flow. It is only replaced when the provider rotates it during refresh.
	RefreshToken string

	// AccessToken is the short-lived token, empty until the first refresh.
	AccessToken string

	// ExpiresAt is the access token expiry. Zero iff AccessToken is empty.
	ExpiresAt time.Time

	// Scopes are the granted OAuth scopes.
	Scopes []string
}

// HasValidToken reports whether the record carries an access token whose
// remaining lifetime clears the refresh margin at the given instant.
func (r *Record) HasValidToken(now time.Time) bool {
	if r.AccessToken == "" || r.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(RefreshMargin).Before(r.ExpiresAt)
}

// Snapshot returns a read-only value copy of the resolved credential. The
// copy shares nothing mutable with the record, so a concurrent refresh
// cannot change data a caller is mid-use with.
func (r *Record) Snapshot() Credential {
	scopes := make([]string, len(r.Scopes))
	copy(scopes, r.Scopes)

	return Credential{
		TenantID:    r.TenantID,
		AccessToken: r.AccessToken,
		ExpiresAt:   r.ExpiresAt,
		Scopes:      scopes,
	}
}

// Credential is the request-scoped, read-only snapshot of a resolved tenant
// credential. It is safe to pass to downstream API-calling code.
type Credential struct {
	TenantID    string
	AccessToken string
	ExpiresAt   time.Time
	Scopes      []string
}

// TenantInfo is the secret-free listing entry for diagnostic use.
type TenantInfo struct {
	TenantID    string `json:"tenant_id"`
	DisplayName string `json:"display_name"`
}

// MaskToken returns a short correlation hint for a sensitive value, suitable
// for logging. The full value is never logged.
func MaskToken(value string) string {
	const visible = 4
	if len(value) <= visible {
		return "***"
	}
	return "..." + value[len(value)-visible:]
}
