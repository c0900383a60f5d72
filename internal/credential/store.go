package credential

import (
	"sync"

	"dealerscope/internal/config"
	"dealerscope/pkg/logging"
)

// Store holds the authoritative set of tenant credential records. Records
// are created in bulk from validated configuration and never deleted during
// the process lifetime; the only mutation is the broker swapping in a
// refreshed record.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record

	// order preserves the configuration order for listings.
	order []string
}

// NewStore builds a store from validated tenant configuration. Validation
// (required fields, unique tenant ids) happens at config load time; the
// store assumes it holds.
func NewStore(tenants []config.TenantConfig) *Store {
	s := &Store{
		records: make(map[string]*Record, len(tenants)),
		order:   make([]string, 0, len(tenants)),
	}

	for _, t := range tenants {
		scopes := make([]string, len(t.Scopes))
		copy(scopes, t.Scopes)

		s.records[t.TenantID] = &Record{
			TenantID:     t.TenantID,
			DisplayName:  t.DisplayName,
			ClientID:     t.ClientID,
			ClientSecret: t.ClientSecret,
			RefreshToken: t.RefreshToken,
			Scopes:       scopes,
		}
		s.order = append(s.order, t.TenantID)
	}

	logging.Info("CredentialStore", "Initialized credential store with %d tenants", len(tenants))
	return s
}

// Get returns the current record for a tenant, or nil if unknown. The
// returned record must be treated as immutable.
func (s *Store) Get(tenantID string) *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[tenantID]
}

// Swap atomically replaces the record for a tenant. Used by the broker
// after a successful refresh. Swapping an unknown tenant is a no-op.
func (s *Store) Swap(tenantID string, rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[tenantID]; !ok {
		return
	}
	s.records[tenantID] = rec
}

// List returns tenant ids and display names in configuration order. No
// secret material is exposed.
func (s *Store) List() []TenantInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]TenantInfo, 0, len(s.order))
	for _, id := range s.order {
		rec := s.records[id]
		infos = append(infos, TenantInfo{
			TenantID:    rec.TenantID,
			DisplayName: rec.DisplayName,
		})
	}
	return infos
}

// Len returns the number of configured tenants.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
