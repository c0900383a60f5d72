package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"dealerscope/internal/credential"
	"dealerscope/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// TenantLister is the broker surface the diagnostic listing tool needs.
type TenantLister interface {
	ListTenants() []credential.TenantInfo
}

// Provider registers the analytics tools on an MCP server and handles their
// invocations. Every data tool reads the credential the authenticator bound
// to the request context; none of them fall back to an ambient credential.
type Provider struct {
	lister TenantLister
	api    *analyticsClient
}

// ProviderOption configures the tool provider.
type ProviderOption func(*Provider)

// WithAdminBaseURL overrides the Admin API base URL. Test hook.
func WithAdminBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.api.adminBaseURL = baseURL
	}
}

// WithDataBaseURL overrides the Data API base URL. Test hook.
func WithDataBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.api.dataBaseURL = baseURL
	}
}

// NewProvider creates a tool provider backed by the given tenant lister.
func NewProvider(lister TenantLister, opts ...ProviderOption) *Provider {
	p := &Provider{
		lister: lister,
		api:    newAnalyticsClient(DefaultAdminBaseURL, DefaultDataBaseURL),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Register creates a default provider and registers all analytics tools on
// the MCP server.
func Register(s *server.MCPServer, lister TenantLister) *Provider {
	p := NewProvider(lister)
	p.RegisterAll(s)
	return p
}

// RegisterAll registers every tool this provider serves.
func (p *Provider) RegisterAll(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("list_tenants",
		mcp.WithDescription("List the tenants (dealers) configured on this gateway. Returns tenant ids and display names only, never credential material."),
	), p.handleListTenants)

	s.AddTool(mcp.NewTool("get_account_summaries",
		mcp.WithDescription("Retrieve the Google Analytics accounts and properties visible to the authenticated tenant."),
	), p.handleGetAccountSummaries)

	s.AddTool(mcp.NewTool("get_property_details",
		mcp.WithDescription("Get details about a Google Analytics property."),
		mcp.WithString("property_id",
			mcp.Required(),
			mcp.Description("The property ID: a number, or 'properties/' followed by a number"),
		),
	), p.handleGetPropertyDetails)

	s.AddTool(mcp.NewTool("run_report",
		mcp.WithDescription("Run a Google Analytics Data API report for a property."),
		mcp.WithString("property_id",
			mcp.Required(),
			mcp.Description("The property ID: a number, or 'properties/' followed by a number"),
		),
		mcp.WithString("metrics",
			mcp.Required(),
			mcp.Description("Comma-separated metric names, e.g. 'activeUsers,sessions'"),
		),
		mcp.WithString("dimensions",
			mcp.Description("Comma-separated dimension names, e.g. 'date,country'"),
		),
		mcp.WithString("start_date",
			mcp.Description("Report start date (YYYY-MM-DD or relative like '7daysAgo'). Default: 7daysAgo"),
		),
		mcp.WithString("end_date",
			mcp.Description("Report end date (YYYY-MM-DD or 'today'). Default: today"),
		),
	), p.handleRunReport)

	logging.Info("Tools", "Registered analytics tools")
}

// boundCredential fetches the request credential or produces the uniform
// not-authenticated tool error.
func boundCredential(ctx context.Context) (credential.Credential, *mcp.CallToolResult) {
	cred, ok := credential.FromContext(ctx)
	if !ok || cred.AccessToken == "" {
		return credential.Credential{}, mcp.NewToolResultError("no credential bound to this request; the call did not pass through the authentication middleware")
	}
	return cred, nil
}

// jsonResult marshals a value into an indented text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(encoded)), nil
}

func (p *Provider) handleListTenants(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(p.lister.ListTenants())
}

func (p *Provider) handleGetAccountSummaries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cred, errResult := boundCredential(ctx)
	if errResult != nil {
		return errResult, nil
	}

	summaries, err := p.api.listAccountSummaries(ctx, cred)
	if err != nil {
		logging.Error("Tools", err, "get_account_summaries failed for tenant=%s", cred.TenantID)
		return mcp.NewToolResultError(err.Error()), nil
	}
	if summaries == nil {
		summaries = []any{}
	}
	return jsonResult(summaries)
}

func (p *Provider) handleGetPropertyDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cred, errResult := boundCredential(ctx)
	if errResult != nil {
		return errResult, nil
	}

	propertyRN, err := propertyResourceName(request.GetArguments()["property_id"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	property, err := p.api.getProperty(ctx, cred, propertyRN)
	if err != nil {
		logging.Error("Tools", err, "get_property_details failed for tenant=%s property=%s", cred.TenantID, propertyRN)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(property)
}

func (p *Provider) handleRunReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cred, errResult := boundCredential(ctx)
	if errResult != nil {
		return errResult, nil
	}

	args := request.GetArguments()

	propertyRN, err := propertyResourceName(args["property_id"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	metrics := splitNames(args["metrics"])
	if len(metrics) == 0 {
		return mcp.NewToolResultError("at least one metric is required"), nil
	}

	req := runReportRequest{
		DateRanges: []dateRange{{
			StartDate: stringArg(args, "start_date", "7daysAgo"),
			EndDate:   stringArg(args, "end_date", "today"),
		}},
		Metrics:    metrics,
		Dimensions: splitNames(args["dimensions"]),
	}

	report, err := p.api.runReport(ctx, cred, propertyRN, req)
	if err != nil {
		logging.Error("Tools", err, "run_report failed for tenant=%s property=%s", cred.TenantID, propertyRN)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

// splitNames turns a comma-separated argument into API name references.
func splitNames(arg any) []namedRef {
	s, _ := arg.(string)
	var refs []namedRef
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			refs = append(refs, namedRef{Name: name})
		}
	}
	return refs
}

func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}
