// Package credential implements the multi-tenant credential broker at the
// heart of dealerscope.
//
// It has three layers, leaf-first:
//
//   - Store: the in-memory table of per-tenant OAuth credential records,
//     loaded once from configuration and keyed by tenant id.
//   - Refresher: the stateless OAuth2 refresh-token grant against the
//     identity provider's token endpoint.
//   - Broker: the synchronized façade over both. It is the only component
//     other code touches to obtain a usable, valid credential for a tenant.
//
// # Concurrency model
//
// Records are published to the store as immutable values and replaced
// wholesale after a refresh, so readers never observe partial updates.
// Refreshes are deduplicated per tenant with singleflight: a burst of
// concurrent resolves for one expired tenant triggers exactly one token
// endpoint call, while unrelated tenants proceed fully concurrently. A
// waiter whose own deadline expires abandons the wait without cancelling the
// shared refresh.
//
// # Error taxonomy
//
// Resolve failures are typed: ErrUnknownTenant, ErrCredentialRevoked and
// ErrTemporarilyUnavailable, matched with errors.Is. There is deliberately
// no fallback path that substitutes another credential when resolution
// fails; that would leak one tenant's data into another tenant's request.
package credential
