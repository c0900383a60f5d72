package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfigFile(t, `
host: 0.0.0.0
port: 9090
tenants:
  - tenant_id: d1
    display_name: Dealer One
    client_id: client-1
    client_secret: secret-1
    refresh_token: rt1
    scopes:
      - https://www.googleapis.com/auth/analytics.readonly
  - tenant_id: d2
    client_id: client-2
    client_secret: secret-2
    refresh_token: rt2
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, TransportStreamableHTTP, cfg.Transport, "default transport should survive partial config")
	assert.Equal(t, DefaultTokenEndpoint, cfg.TokenEndpoint)
	require.Len(t, cfg.Tenants, 2)
	assert.Equal(t, "d1", cfg.Tenants[0].TenantID)
	assert.Equal(t, "Dealer One", cfg.Tenants[0].DisplayName)
	assert.Equal(t, []string{"https://www.googleapis.com/auth/analytics.readonly"}, cfg.Tenants[0].Scopes)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMalformed), "missing file is an IO error, not a malformed config")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "tenants: [}")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLoadConfig_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		tenant string
	}{
		{
			name: "missing tenant_id",
			tenant: `
  - display_name: Dealer
    client_id: c
    client_secret: s
    refresh_token: rt
`,
		},
		{
			name: "missing client_id",
			tenant: `
  - tenant_id: d1
    client_secret: s
    refresh_token: rt
`,
		},
		{
			name: "missing client_secret",
			tenant: `
  - tenant_id: d1
    client_id: c
    refresh_token: rt
`,
		},
		{
			name: "missing refresh_token",
			tenant: `
  - tenant_id: d1
    client_id: c
    client_secret: s
`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := writeConfigFile(t, "tenants:"+test.tenant)

			cfg, err := LoadConfig(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.Empty(t, cfg.Tenants, "failed load must not return a partial tenant set")
		})
	}
}

func TestLoadConfig_DuplicateTenantID(t *testing.T) {
	path := writeConfigFile(t, `
tenants:
  - tenant_id: d1
    client_id: c1
    client_secret: s1
    refresh_token: rt1
  - tenant_id: d1
    client_id: c2
    client_secret: s2
    refresh_token: rt2
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "duplicate tenant_id")
}

func TestLoadConfig_OneBadEntryFailsWholeLoad(t *testing.T) {
	// Nine valid tenants plus one missing a refresh token: the whole load
	// must fail rather than silently serving nine tenths of the fleet.
	content := "tenants:\n"
	for i := 0; i < 9; i++ {
		content += fmt.Sprintf(`  - tenant_id: d%d
    client_id: c%d
    client_secret: s%d
    refresh_token: rt%d
`, i, i, i, i)
	}
	content += `  - tenant_id: broken
    client_id: c
    client_secret: s
`
	path := writeConfigFile(t, content)

	cfg, err := LoadConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Empty(t, cfg.Tenants)
}

func TestLoadConfig_NoTenants(t *testing.T) {
	path := writeConfigFile(t, "host: localhost\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}
