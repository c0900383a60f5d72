package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"dealerscope/internal/credential"

	"golang.org/x/oauth2"
)

const (
	// DefaultAdminBaseURL is the Google Analytics Admin API base URL.
	DefaultAdminBaseURL = "https://analyticsadmin.googleapis.com/v1beta"
	// DefaultDataBaseURL is the Google Analytics Data API base URL.
	DefaultDataBaseURL = "https://analyticsdata.googleapis.com/v1beta"

	userAgent = "dealerscope/1.0"
)

var propertyIDPattern = regexp.MustCompile(`^[0-9]+$`)

// analyticsClient issues authenticated calls against the Google Analytics
// Admin and Data APIs. A client is built per request from the credential
// bound to that request, never from shared state, so one tenant's token can
// never serve another tenant's call.
type analyticsClient struct {
	adminBaseURL string
	dataBaseURL  string
}

func newAnalyticsClient(adminBaseURL, dataBaseURL string) *analyticsClient {
	return &analyticsClient{
		adminBaseURL: adminBaseURL,
		dataBaseURL:  dataBaseURL,
	}
}

// httpClient builds an HTTP client carrying the request's credential. The
// snapshot's access token is already guaranteed fresh by the broker, so a
// static source is enough; there is no refresh machinery at this layer.
func (c *analyticsClient) httpClient(ctx context.Context, cred credential.Credential) *http.Client {
	source := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cred.AccessToken,
		TokenType:   "Bearer",
		Expiry:      cred.ExpiresAt,
	})
	return oauth2.NewClient(ctx, source)
}

// propertyResourceName normalizes a property id argument into the API
// resource name. Accepted forms: a number, or "properties/" followed by a
// number.
func propertyResourceName(arg any) (string, error) {
	var id string
	switch v := arg.(type) {
	case string:
		id = strings.TrimPrefix(strings.TrimSpace(v), "properties/")
	case float64:
		id = fmt.Sprintf("%.0f", v)
	case int:
		id = fmt.Sprintf("%d", v)
	default:
		return "", fmt.Errorf("property_id must be a number or a 'properties/<number>' string, got %T", arg)
	}

	if !propertyIDPattern.MatchString(id) {
		return "", fmt.Errorf("invalid property id %q", id)
	}
	return "properties/" + id, nil
}

// listAccountSummaries retrieves every page of the caller's account
// summaries.
func (c *analyticsClient) listAccountSummaries(ctx context.Context, cred credential.Credential) ([]any, error) {
	var summaries []any
	pageToken := ""

	for {
		url := c.adminBaseURL + "/accountSummaries?pageSize=200"
		if pageToken != "" {
			url += "&pageToken=" + pageToken
		}

		page, err := c.doJSON(ctx, cred, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		if items, ok := page["accountSummaries"].([]any); ok {
			summaries = append(summaries, items...)
		}

		pageToken, _ = page["nextPageToken"].(string)
		if pageToken == "" {
			return summaries, nil
		}
	}
}

// getProperty retrieves details for one property.
func (c *analyticsClient) getProperty(ctx context.Context, cred credential.Credential, propertyRN string) (map[string]any, error) {
	return c.doJSON(ctx, cred, http.MethodGet, c.adminBaseURL+"/"+propertyRN, nil)
}

// runReportRequest is the Data API runReport request body.
type runReportRequest struct {
	DateRanges []dateRange `json:"dateRanges"`
	Dimensions []namedRef  `json:"dimensions,omitempty"`
	Metrics    []namedRef  `json:"metrics"`
	Limit      int64       `json:"limit,omitempty"`
}

type dateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type namedRef struct {
	Name string `json:"name"`
}

// runReport executes a Data API report for the property.
func (c *analyticsClient) runReport(ctx context.Context, cred credential.Credential, propertyRN string, req runReportRequest) (map[string]any, error) {
	url := fmt.Sprintf("%s/%s:runReport", c.dataBaseURL, propertyRN)
	return c.doJSON(ctx, cred, http.MethodPost, url, req)
}

// doJSON performs one authenticated API call and decodes the JSON response.
func (c *analyticsClient) doJSON(ctx context.Context, cred credential.Credential, method, url string, reqBody any) (map[string]any, error) {
	var body io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient(ctx, cred).Do(req)
	if err != nil {
		return nil, fmt.Errorf("analytics API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read analytics API response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("analytics API rejected the credential (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analytics API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var decoded map[string]any
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse analytics API response: %w", err)
	}
	return decoded, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
