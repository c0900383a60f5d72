package config

const (
	// DefaultHost is the default bind host for the gateway.
	DefaultHost = "localhost"

	// DefaultPort is the default bind port for the gateway.
	DefaultPort = 3334

	// DefaultTokenEndpoint is the Google OAuth2 token endpoint used for
	// refresh-token grants. Overridable for tests and non-Google providers.
	DefaultTokenEndpoint = "https://oauth2.googleapis.com/token"

	// DefaultRefreshTimeoutSeconds bounds a single token refresh call.
	DefaultRefreshTimeoutSeconds = 30
)

// TransportStreamableHTTP is the streamable HTTP transport. It is the only
// transport dealerscope serves: tenant authentication happens on the HTTP
// layer, so a transport without request headers has no place to carry it.
const TransportStreamableHTTP = "streamable-http"

// GatewayConfig is the top-level configuration structure for dealerscope.
type GatewayConfig struct {
	Host      string `yaml:"host,omitempty"`      // Host to bind to (default: localhost)
	Port      int    `yaml:"port,omitempty"`      // Port for the MCP endpoint (default: 3334)
	Transport string `yaml:"transport,omitempty"` // Transport to use (default: streamable-http)

	// TokenEndpoint is the OAuth2 token endpoint for refresh grants.
	TokenEndpoint string `yaml:"tokenEndpoint,omitempty"`

	// RefreshTimeoutSeconds bounds each token refresh network call.
	RefreshTimeoutSeconds int `yaml:"refreshTimeoutSeconds,omitempty"`

	// Tenants enumerates every dealer this gateway serves. Loaded once at
	// startup; adding or removing tenants requires a restart.
	Tenants []TenantConfig `yaml:"tenants"`
}

// TenantConfig holds the OAuth credential material for one tenant (dealer).
type TenantConfig struct {
	TenantID     string   `yaml:"tenant_id"`
	DisplayName  string   `yaml:"display_name,omitempty"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RefreshToken string   `yaml:"refresh_token"`
	Scopes       []string `yaml:"scopes,omitempty"`
}

// GetDefaultConfig returns the default configuration for dealerscope.
func GetDefaultConfig() GatewayConfig {
	return GatewayConfig{
		Host:                  DefaultHost,
		Port:                  DefaultPort,
		Transport:             TransportStreamableHTTP,
		TokenEndpoint:         DefaultTokenEndpoint,
		RefreshTimeoutSeconds: DefaultRefreshTimeoutSeconds,
	}
}
