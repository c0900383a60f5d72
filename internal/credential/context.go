package credential

import "context"

type contextKey int

const credentialContextKey contextKey = iota

// NewContext binds a resolved credential snapshot to the context. The
// authentication middleware is the only writer; tool handlers read it back
// with FromContext instead of re-resolving through the broker.
func NewContext(ctx context.Context, cred Credential) context.Context {
	return context.WithValue(ctx, credentialContextKey, cred)
}

// FromContext returns the credential bound to the context, or ok=false when
// the context comes from an unauthenticated path. Callers must treat
// ok=false as a hard authentication failure; there is no ambient fallback
// credential.
func FromContext(ctx context.Context) (Credential, bool) {
	cred, ok := ctx.Value(credentialContextKey).(Credential)
	return cred, ok
}
