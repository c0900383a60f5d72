package cmd

import (
	"fmt"
	"strings"

	"dealerscope/internal/config"
	"dealerscope/internal/credential"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// tenantsConfigPath specifies the tenant configuration file.
var tenantsConfigPath string

// tenantsCmd lists the tenants of a configuration file without starting the
// gateway. Useful for verifying a configuration before deployment; secrets
// are masked in the output.
var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "List the tenants configured in a configuration file",
	Long: `Loads the tenant configuration the same way serve does and prints the
configured tenants as a table. Client secrets and refresh tokens are
masked. Because loading is all-or-nothing, a successful listing means
serve would accept the same file.`,
	Args: cobra.NoArgs,
	RunE: runTenants,
}

// runTenants is the entry point for the tenants command.
func runTenants(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(tenantsConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", tenantsConfigPath, err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"TENANT", "DISPLAY NAME", "CLIENT ID", "REFRESH TOKEN", "SCOPES"})

	for _, tenant := range cfg.Tenants {
		scopes := strings.Join(tenant.Scopes, ", ")
		if scopes == "" {
			scopes = "(defaults)"
		}
		t.AppendRow(table.Row{
			tenant.TenantID,
			tenant.DisplayName,
			tenant.ClientID,
			credential.MaskToken(tenant.RefreshToken),
			scopes,
		})
	}
	t.Render()

	fmt.Fprintf(cmd.OutOrStdout(), "%d tenant(s) configured, endpoint %s\n", len(cfg.Tenants), cfg.TokenEndpoint)
	return nil
}

// init registers the tenants command and its flags with the root command.
func init() {
	rootCmd.AddCommand(tenantsCmd)

	tenantsCmd.Flags().StringVar(&tenantsConfigPath, "config", "dealerscope.yaml", "Path to the tenant configuration file")
}
