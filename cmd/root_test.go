package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"dealerscope/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3")
	assert.Equal(t, "1.2.3", GetVersion())
}

func TestVersionCommand(t *testing.T) {
	SetVersion("9.9.9")
	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	cmd.Run(cmd, nil)
	assert.Equal(t, "dealerscope version 9.9.9\n", out.String())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCodeConfig, getExitCode(fmt.Errorf("load: %w", config.ErrMalformed)))
	assert.Equal(t, ExitCodeError, getExitCode(errors.New("boom")))
}

func TestTenantsCommand(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "dealerscope.yaml")
	content := `tenants:
  - tenant_id: dealer-east
    display_name: Dealer East
    client_id: client-east.apps.googleusercontent.com
    client_secret: secret-east
    refresh_token: 1//refresh-east
`
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0600))

	tenantsConfigPath = configFile
	var out bytes.Buffer
	tenantsCmd.SetOut(&out)

	err := runTenants(tenantsCmd, nil)
	require.NoError(t, err)

	output := out.String()
	assert.Contains(t, output, "dealer-east")
	assert.Contains(t, output, "Dealer East")
	assert.Contains(t, output, "1 tenant(s) configured")
	assert.NotContains(t, output, "1//refresh-east", "refresh tokens must be masked")
	assert.NotContains(t, output, "secret-east")
}

func TestTenantsCommandRejectsMalformedConfig(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "dealerscope.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("tenants: []\n"), 0600))

	tenantsConfigPath = configFile
	err := runTenants(tenantsCmd, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMalformed)
}
