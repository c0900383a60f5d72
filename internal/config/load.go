package config

import (
	"errors"
	"fmt"
	"os"

	"dealerscope/pkg/logging"

	"gopkg.in/yaml.v3"
)

// ErrMalformed indicates the tenant configuration is incomplete or
// inconsistent. The load is all-or-nothing: one malformed tenant entry fails
// the entire load, because a partially loaded credential set could route a
// query for one tenant through a differently-scoped fallback.
var ErrMalformed = errors.New("malformed configuration")

// LoadConfig loads configuration from the specified YAML file and validates
// the tenant set. On any validation failure it returns an error wrapping
// ErrMalformed and an empty config; the caller must refuse to serve traffic.
func LoadConfig(configFilePath string) (GatewayConfig, error) {
	data, err := os.ReadFile(configFilePath)
	if err != nil {
		return GatewayConfig{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return GatewayConfig{}, fmt.Errorf("%w: error parsing %s: %v", ErrMalformed, configFilePath, err)
	}

	if err := validate(config); err != nil {
		return GatewayConfig{}, err
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s (%d tenants)", configFilePath, len(config.Tenants))
	return config, nil
}

// validate checks the full tenant set. Required per tenant: tenant_id,
// client_id, client_secret, refresh_token. tenant_id must be unique.
func validate(config GatewayConfig) error {
	if len(config.Tenants) == 0 {
		return fmt.Errorf("%w: no tenants configured", ErrMalformed)
	}

	seen := make(map[string]bool, len(config.Tenants))
	for i, tenant := range config.Tenants {
		switch {
		case tenant.TenantID == "":
			return fmt.Errorf("%w: tenant entry %d is missing tenant_id", ErrMalformed, i)
		case tenant.ClientID == "":
			return fmt.Errorf("%w: tenant %q is missing client_id", ErrMalformed, tenant.TenantID)
		case tenant.ClientSecret == "":
			return fmt.Errorf("%w: tenant %q is missing client_secret", ErrMalformed, tenant.TenantID)
		case tenant.RefreshToken == "":
			return fmt.Errorf("%w: tenant %q is missing refresh_token", ErrMalformed, tenant.TenantID)
		}

		if seen[tenant.TenantID] {
			return fmt.Errorf("%w: duplicate tenant_id %q", ErrMalformed, tenant.TenantID)
		}
		seen[tenant.TenantID] = true
	}

	return nil
}
