package credential

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRefresher is a programmable Refresher that counts its calls.
type fakeRefresher struct {
	calls   atomic.Int64
	refresh func(ctx context.Context, rec *Record) (*RefreshResult, error)
}

func (f *fakeRefresher) Refresh(ctx context.Context, rec *Record) (*RefreshResult, error) {
	f.calls.Add(1)
	return f.refresh(ctx, rec)
}

// fakeClock is a mutable time source for driving the cooldown window.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func perTenantRefresher() *fakeRefresher {
	f := &fakeRefresher{}
	f.refresh = func(ctx context.Context, rec *Record) (*RefreshResult, error) {
		return &RefreshResult{
			AccessToken: "at-" + rec.TenantID,
			ExpiresAt:   time.Now().Add(time.Hour),
		}, nil
	}
	return f
}

func TestBroker_ResolveUnknownTenant(t *testing.T) {
	refresher := perTenantRefresher()
	broker := NewBroker(NewStore(testTenants()), refresher)

	_, err := broker.Resolve(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTenant)
	assert.Zero(t, refresher.calls.Load(), "unknown tenant must not trigger a network call")
}

func TestBroker_TenantIsolation(t *testing.T) {
	broker := NewBroker(NewStore(testTenants()), perTenantRefresher())

	cred1, err := broker.Resolve(context.Background(), "d1")
	require.NoError(t, err)
	cred2, err := broker.Resolve(context.Background(), "d2")
	require.NoError(t, err)

	assert.Equal(t, "d1", cred1.TenantID)
	assert.Equal(t, "d2", cred2.TenantID)
	assert.Equal(t, "at-d1", cred1.AccessToken)
	assert.Equal(t, "at-d2", cred2.AccessToken)
	assert.NotEqual(t, cred1.AccessToken, cred2.AccessToken)
}

func TestBroker_SafetyMargin(t *testing.T) {
	tests := []struct {
		name          string
		remaining     time.Duration
		wantRefreshed bool
	}{
		{"four minutes left triggers refresh", 4 * time.Minute, true},
		{"ten minutes left is served from cache", 10 * time.Minute, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			store := NewStore(testTenants())
			seeded := store.Get("d1")
			store.Swap("d1", &Record{
				TenantID:     seeded.TenantID,
				ClientID:     seeded.ClientID,
				ClientSecret: seeded.ClientSecret,
				RefreshToken: seeded.RefreshToken,
				AccessToken:  "cached-token",
				ExpiresAt:    time.Now().Add(test.remaining),
			})

			refresher := perTenantRefresher()
			broker := NewBroker(store, refresher)

			cred, err := broker.Resolve(context.Background(), "d1")
			require.NoError(t, err)

			if test.wantRefreshed {
				assert.Equal(t, int64(1), refresher.calls.Load())
				assert.Equal(t, "at-d1", cred.AccessToken)
			} else {
				assert.Zero(t, refresher.calls.Load())
				assert.Equal(t, "cached-token", cred.AccessToken)
			}
		})
	}
}

func TestBroker_RefreshDedup(t *testing.T) {
	const callers = 25

	started := make(chan struct{})
	refresher := &fakeRefresher{}
	refresher.refresh = func(ctx context.Context, rec *Record) (*RefreshResult, error) {
		<-started // hold every caller in the same flight
		return &RefreshResult{
			AccessToken: "shared-token",
			ExpiresAt:   time.Now().Add(time.Hour),
		}, nil
	}

	broker := NewBroker(NewStore(testTenants()), refresher)

	var wg sync.WaitGroup
	results := make([]Credential, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = broker.Resolve(context.Background(), "d1")
		}(i)
	}

	// Give all goroutines a moment to pile onto the in-flight refresh.
	time.Sleep(50 * time.Millisecond)
	close(started)
	wg.Wait()

	assert.Equal(t, int64(1), refresher.calls.Load(), "N concurrent resolves must amplify into exactly one refresh")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared-token", results[i].AccessToken)
	}
}

func TestBroker_DifferentTenantsDoNotBlockEachOther(t *testing.T) {
	d1Started := make(chan struct{})
	d1Release := make(chan struct{})
	refresher := &fakeRefresher{}
	refresher.refresh = func(ctx context.Context, rec *Record) (*RefreshResult, error) {
		if rec.TenantID == "d1" {
			close(d1Started)
			<-d1Release
		}
		return &RefreshResult{
			AccessToken: "at-" + rec.TenantID,
			ExpiresAt:   time.Now().Add(time.Hour),
		}, nil
	}

	broker := NewBroker(NewStore(testTenants()), refresher)

	go func() {
		_, _ = broker.Resolve(context.Background(), "d1")
	}()
	<-d1Started

	// d2 resolves while d1's refresh is stuck in flight.
	done := make(chan struct{})
	go func() {
		defer close(done)
		cred, err := broker.Resolve(context.Background(), "d2")
		assert.NoError(t, err)
		assert.Equal(t, "at-d2", cred.AccessToken)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("resolve for d2 blocked behind d1's in-flight refresh")
	}
	close(d1Release)
}

func TestBroker_RevokedCredentialCooldown(t *testing.T) {
	clock := newFakeClock()
	refresher := &fakeRefresher{}
	refresher.refresh = func(ctx context.Context, rec *Record) (*RefreshResult, error) {
		return nil, fmt.Errorf("%w: revoked", ErrInvalidGrant)
	}

	broker := NewBroker(NewStore(testTenants()), refresher, WithClock(clock.Now))

	_, err := broker.Resolve(context.Background(), "d1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredentialRevoked)
	assert.Equal(t, int64(1), refresher.calls.Load())

	// Repeated resolves within the window short-circuit without network calls.
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		_, err = broker.Resolve(context.Background(), "d1")
		assert.ErrorIs(t, err, ErrCredentialRevoked)
	}
	assert.Equal(t, int64(1), refresher.calls.Load())

	// After the window elapses, exactly one new attempt is made.
	clock.Advance(DefaultCooldownWindow)
	_, err = broker.Resolve(context.Background(), "d1")
	assert.ErrorIs(t, err, ErrCredentialRevoked)
	assert.Equal(t, int64(2), refresher.calls.Load())
}

func TestBroker_TransientFailureAllowsImmediateRetry(t *testing.T) {
	var failures atomic.Int64
	failures.Store(1)
	refresher := &fakeRefresher{}
	refresher.refresh = func(ctx context.Context, rec *Record) (*RefreshResult, error) {
		if failures.Add(-1) >= 0 {
			return nil, fmt.Errorf("connection reset")
		}
		return &RefreshResult{
			AccessToken: "at-after-retry",
			ExpiresAt:   time.Now().Add(time.Hour),
		}, nil
	}

	broker := NewBroker(NewStore(testTenants()), refresher)

	_, err := broker.Resolve(context.Background(), "d1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTemporarilyUnavailable)
	assert.NotErrorIs(t, err, ErrCredentialRevoked)

	// No cooldown for transient failures: the next caller retries at once.
	cred, err := broker.Resolve(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "at-after-retry", cred.AccessToken)
	assert.Equal(t, int64(2), refresher.calls.Load())
}

func TestBroker_WaiterDeadlineDoesNotCancelRefresh(t *testing.T) {
	release := make(chan struct{})
	refresher := &fakeRefresher{}
	refresher.refresh = func(ctx context.Context, rec *Record) (*RefreshResult, error) {
		select {
		case <-release:
			return &RefreshResult{
				AccessToken: "slow-token",
				ExpiresAt:   time.Now().Add(time.Hour),
			}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	broker := NewBroker(NewStore(testTenants()), refresher)

	// First caller gives up quickly.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := broker.Resolve(ctx, "d1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Second caller waits for the still-running refresh and benefits from it.
	done := make(chan struct{})
	var cred Credential
	var resolveErr error
	go func() {
		defer close(done)
		cred, resolveErr = broker.Resolve(context.Background(), "d1")
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)
	<-done

	require.NoError(t, resolveErr)
	assert.Equal(t, "slow-token", cred.AccessToken)
	assert.Equal(t, int64(1), refresher.calls.Load(), "the abandoned refresh must be reused, not restarted")
}

func TestBroker_RotatedRefreshTokenIsStored(t *testing.T) {
	refresher := &fakeRefresher{}
	refresher.refresh = func(ctx context.Context, rec *Record) (*RefreshResult, error) {
		return &RefreshResult{
			AccessToken:  "at1",
			ExpiresAt:    time.Now().Add(time.Hour),
			RefreshToken: "rt1-rotated",
		}, nil
	}

	store := NewStore(testTenants())
	broker := NewBroker(store, refresher)

	_, err := broker.Resolve(context.Background(), "d1")
	require.NoError(t, err)

	rec := store.Get("d1")
	assert.Equal(t, "rt1-rotated", rec.RefreshToken)
	assert.Equal(t, "at1", rec.AccessToken)
}

func TestBroker_ListTenants(t *testing.T) {
	broker := NewBroker(NewStore(testTenants()), perTenantRefresher())

	infos := broker.ListTenants()
	require.Len(t, infos, 2)
	assert.Equal(t, "d1", infos[0].TenantID)
	assert.Equal(t, "d2", infos[1].TenantID)
}

// TestBroker_ConcreteScenario runs the end-to-end scenario against a real
// HTTPRefresher and a mock provider: two tenants with distinct refresh
// tokens resolve to distinct access tokens, and a repeat resolve before
// expiry is served from the store without another provider call.
func TestBroker_ConcreteScenario(t *testing.T) {
	var providerCalls atomic.Int64
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		providerCalls.Add(1)
		require.NoError(t, r.ParseForm())

		var accessToken string
		switch r.PostFormValue("refresh_token") {
		case "rt1":
			accessToken = "at1"
		case "rt2":
			accessToken = "at2"
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fmt.Sprintf(`{"access_token":%q,"expires_in":3600,"token_type":"Bearer"}`, accessToken)))
	}))
	defer provider.Close()

	broker := NewBroker(NewStore(testTenants()), NewHTTPRefresher(provider.URL))

	cred1, err := broker.Resolve(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", cred1.TenantID)
	assert.Equal(t, "at1", cred1.AccessToken)

	cred2, err := broker.Resolve(context.Background(), "d2")
	require.NoError(t, err)
	assert.Equal(t, "d2", cred2.TenantID)
	assert.Equal(t, "at2", cred2.AccessToken)

	// Repeat resolve before expiry: cached, no extra provider call.
	again, err := broker.Resolve(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "at1", again.AccessToken)
	assert.Equal(t, int64(2), providerCalls.Load())
}
