package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dealerscope/pkg/logging"
)

// DefaultRefreshTimeout bounds a single token endpoint call.
const DefaultRefreshTimeout = 30 * time.Second

// ErrInvalidGrant indicates the provider rejected the refresh token
// (revoked or expired). This is terminal for the tenant until an operator
// re-issues credentials; it must not be retried in a tight loop.
var ErrInvalidGrant = errors.New("refresh token rejected by provider")

// RefreshResult carries the outcome of a successful refresh-token grant.
type RefreshResult struct {
	AccessToken string
	ExpiresAt   time.Time

	// RefreshToken is non-empty only when the provider rotated the refresh
	// token in its response.
	RefreshToken string

	// Scopes are the granted scopes from the response, nil when the
	// provider omitted them.
	Scopes []string
}

// Refresher exchanges a refresh token for a new access token.
//
// Implementations are stateless and side-effect-free beyond the network
// call; writing the result back into the record is the broker's job.
type Refresher interface {
	Refresh(ctx context.Context, rec *Record) (*RefreshResult, error)
}

// HTTPRefresher performs the OAuth2 refresh-token grant against an identity
// provider's token endpoint.
type HTTPRefresher struct {
	tokenEndpoint string
	httpClient    *http.Client
}

// RefresherOption configures the HTTP refresher.
type RefresherOption func(*HTTPRefresher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) RefresherOption {
	return func(r *HTTPRefresher) {
		r.httpClient = httpClient
	}
}

// NewHTTPRefresher creates a refresher for the given token endpoint.
func NewHTTPRefresher(tokenEndpoint string, opts ...RefresherOption) *HTTPRefresher {
	r := &HTTPRefresher{
		tokenEndpoint: tokenEndpoint,
		httpClient:    &http.Client{Timeout: DefaultRefreshTimeout},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// tokenResponse is the JSON body of a successful token endpoint response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

// tokenErrorResponse is the JSON body of a token endpoint error (RFC 6749 §5.2).
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Refresh performs the refresh-token grant for the given record.
//
// Error classification:
//   - ErrInvalidGrant (via errors.Is) when the provider rejects the grant
//   - any other error is transient: network failure, timeout, or a 5xx
//     from the provider, safe to retry with backoff
func (r *HTTPRefresher) Refresh(ctx context.Context, rec *Record) (*RefreshResult, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {rec.ClientID},
		"client_secret": {rec.ClientSecret},
		"refresh_token": {rec.RefreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, r.classifyError(rec.TenantID, resp.StatusCode, body)
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	result := &RefreshResult{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if token.ExpiresIn > 0 {
		result.ExpiresAt = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}
	if token.Scope != "" {
		result.Scopes = strings.Fields(token.Scope)
	}

	logging.Debug("Refresher", "Refreshed access token for tenant=%s (token %s, rotated_refresh_token=%t)",
		rec.TenantID, MaskToken(token.AccessToken), token.RefreshToken != "")

	return result, nil
}

// classifyError maps a non-200 token endpoint response onto the error
// taxonomy. A 4xx carrying the OAuth invalid_grant error code means the
// refresh token is revoked or expired; everything else is transient.
func (r *HTTPRefresher) classifyError(tenantID string, status int, body []byte) error {
	if status >= 400 && status < 500 {
		var oauthErr tokenErrorResponse
		if err := json.Unmarshal(body, &oauthErr); err == nil && oauthErr.Error == "invalid_grant" {
			logging.Warn("Refresher", "Provider rejected refresh token for tenant=%s: %s",
				tenantID, oauthErr.ErrorDescription)
			return fmt.Errorf("%w: %s", ErrInvalidGrant, oauthErr.ErrorDescription)
		}
		// Unauthorized client credentials are just as terminal for the tenant.
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return fmt.Errorf("%w: token endpoint returned status %d", ErrInvalidGrant, status)
		}
	}

	return fmt.Errorf("token request failed with status %d", status)
}
