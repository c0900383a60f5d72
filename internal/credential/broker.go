package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dealerscope/pkg/logging"

	"golang.org/x/sync/singleflight"
)

// DefaultCooldownWindow is how long a tenant with a revoked refresh token is
// held back before the broker attempts the provider again. Hammering a
// known-bad credential only burns provider rate limits.
const DefaultCooldownWindow = 30 * time.Second

var (
	// ErrUnknownTenant means the caller referenced a tenant absent from
	// configuration. Surfaced as an authorization failure, not a server error.
	ErrUnknownTenant = errors.New("unknown tenant")

	// ErrCredentialRevoked means the provider rejected the tenant's refresh
	// token. The tenant needs re-onboarding by an operator.
	ErrCredentialRevoked = errors.New("tenant credential revoked")

	// ErrTemporarilyUnavailable means the refresh failed transiently. The
	// caller may retry.
	ErrTemporarilyUnavailable = errors.New("credential temporarily unavailable")
)

// Broker is the single synchronized entry point for obtaining a valid tenant
// credential. It guarantees:
//
//   - every returned credential clears the refresh safety margin
//   - refreshes for one tenant are serialized and deduplicated (burst
//     traffic cannot amplify into concurrent token endpoint calls)
//   - tenants never block each other
//   - no caller observes a half-written record
type Broker struct {
	store     *Store
	refresher Refresher

	// refreshTimeout bounds each refresh network call. The refresh runs on
	// its own context so a waiter abandoning its wait does not cancel the
	// refresh other waiters still benefit from.
	refreshTimeout time.Duration

	cooldownWindow time.Duration

	// group deduplicates in-flight refreshes per tenant id. Entries are
	// released by singleflight when the shared call resolves.
	group singleflight.Group

	mu        sync.Mutex
	cooldowns map[string]time.Time

	// now is replaceable in tests.
	now func() time.Time
}

// BrokerOption configures the broker.
type BrokerOption func(*Broker)

// WithRefreshTimeout bounds each token refresh call.
func WithRefreshTimeout(timeout time.Duration) BrokerOption {
	return func(b *Broker) {
		b.refreshTimeout = timeout
	}
}

// WithCooldownWindow sets the revoked-credential cooldown window.
func WithCooldownWindow(window time.Duration) BrokerOption {
	return func(b *Broker) {
		b.cooldownWindow = window
	}
}

// WithClock replaces the broker's time source. Test hook.
func WithClock(now func() time.Time) BrokerOption {
	return func(b *Broker) {
		b.now = now
	}
}

// NewBroker creates a broker over the given store and refresher.
func NewBroker(store *Store, refresher Refresher, opts ...BrokerOption) *Broker {
	b := &Broker{
		store:          store,
		refresher:      refresher,
		refreshTimeout: DefaultRefreshTimeout,
		cooldownWindow: DefaultCooldownWindow,
		cooldowns:      make(map[string]time.Time),
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Resolve returns a currently-valid credential snapshot for the tenant,
// refreshing the access token first when it is unset or expiring within the
// safety margin.
//
// The ctx bounds only this caller's wait. If the in-flight refresh does not
// complete before ctx expires, the caller gets ctx.Err() while the refresh
// keeps running for the remaining waiters.
func (b *Broker) Resolve(ctx context.Context, tenantID string) (Credential, error) {
	rec := b.store.Get(tenantID)
	if rec == nil {
		return Credential{}, fmt.Errorf("%w: %q", ErrUnknownTenant, tenantID)
	}

	if rec.HasValidToken(b.now()) {
		return rec.Snapshot(), nil
	}

	if err := b.checkCooldown(tenantID); err != nil {
		return Credential{}, err
	}

	ch := b.group.DoChan(tenantID, func() (interface{}, error) {
		return b.refreshTenant(tenantID)
	})

	select {
	case <-ctx.Done():
		return Credential{}, fmt.Errorf("abandoned wait for credential refresh of tenant %q: %w", tenantID, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		return res.Val.(Credential), nil
	}
}

// ListTenants returns the configured tenants in configuration order, without
// secret material. Diagnostic use only.
func (b *Broker) ListTenants() []TenantInfo {
	return b.store.List()
}

// refreshTenant is the shared singleflight body: it performs one refresh and
// atomically publishes the updated record.
func (b *Broker) refreshTenant(tenantID string) (interface{}, error) {
	rec := b.store.Get(tenantID)
	if rec == nil {
		return Credential{}, fmt.Errorf("%w: %q", ErrUnknownTenant, tenantID)
	}

	// A refresh that completed while this caller queued makes ours redundant.
	if rec.HasValidToken(b.now()) {
		return rec.Snapshot(), nil
	}

	// The refresh gets its own context: waiters may abandon their wait
	// without cancelling work other waiters share.
	ctx, cancel := context.WithTimeout(context.Background(), b.refreshTimeout)
	defer cancel()

	result, err := b.refresher.Refresh(ctx, rec)
	if err != nil {
		if errors.Is(err, ErrInvalidGrant) {
			b.startCooldown(tenantID)
			logging.Warn("Broker", "Refresh token revoked for tenant=%s, cooling down for %s", tenantID, b.cooldownWindow)
			return Credential{}, fmt.Errorf("%w: %v", ErrCredentialRevoked, err)
		}
		logging.Error("Broker", err, "Transient refresh failure for tenant=%s", tenantID)
		return Credential{}, fmt.Errorf("%w: %v", ErrTemporarilyUnavailable, err)
	}

	updated := &Record{
		TenantID:     rec.TenantID,
		DisplayName:  rec.DisplayName,
		ClientID:     rec.ClientID,
		ClientSecret: rec.ClientSecret,
		RefreshToken: rec.RefreshToken,
		AccessToken:  result.AccessToken,
		ExpiresAt:    result.ExpiresAt,
		Scopes:       rec.Scopes,
	}
	// Some providers rotate the refresh token on use. The rotated value must
	// be published before any caller observes the new record.
	if result.RefreshToken != "" {
		updated.RefreshToken = result.RefreshToken
	}
	if len(result.Scopes) > 0 {
		updated.Scopes = result.Scopes
	}

	b.store.Swap(tenantID, updated)

	logging.Info("Broker", "Refreshed credential for tenant=%s (expires %s)",
		tenantID, updated.ExpiresAt.Format(time.RFC3339))

	return updated.Snapshot(), nil
}

// checkCooldown returns ErrCredentialRevoked while the tenant's cooldown
// window is open. Lapsed entries are removed so the map never leaks.
func (b *Broker) checkCooldown(tenantID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	until, ok := b.cooldowns[tenantID]
	if !ok {
		return nil
	}
	if b.now().Before(until) {
		return fmt.Errorf("%w: retry after %s", ErrCredentialRevoked, until.Format(time.RFC3339))
	}

	delete(b.cooldowns, tenantID)
	return nil
}

func (b *Broker) startCooldown(tenantID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cooldowns[tenantID] = b.now().Add(b.cooldownWindow)
}
