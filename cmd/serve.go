package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dealerscope/internal/config"
	"dealerscope/internal/credential"
	"dealerscope/internal/gateway"
	"dealerscope/pkg/logging"

	"github.com/spf13/cobra"
)

// serveConfigPath specifies the tenant configuration file.
var serveConfigPath string

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveHost and servePort override the listen address from the configuration
// file when set.
var serveHost string
var servePort int

// serveCmd defines the serve command structure.
// This is the main command of dealerscope: it loads the tenant credential
// configuration and starts the authenticated MCP gateway.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dealerscope analytics gateway",
	Long: `Starts the dealerscope gateway: an HTTP server exposing Google Analytics
tools over the Model Context Protocol.

Every request to the MCP endpoint must carry a bearer credential. A bearer
of the form "tenant:<id>" is resolved through the credential broker, which
refreshes the tenant's Google OAuth access token as needed. Any other
bearer value is treated as a pre-authenticated Google access token and
passed through to the analytics APIs unchanged.

Configuration is a single YAML file listing the tenants and their OAuth
client credentials. The file is read once at startup; changing it requires
a restart. Loading is all-or-nothing: one malformed tenant entry rejects
the whole file.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command.
func runServe(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if serveDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	cfg, err := config.LoadConfig(serveConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", serveConfigPath, err)
	}
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	store := credential.NewStore(cfg.Tenants)
	refresher := credential.NewHTTPRefresher(cfg.TokenEndpoint)
	broker := credential.NewBroker(store, refresher,
		credential.WithRefreshTimeout(time.Duration(cfg.RefreshTimeoutSeconds)*time.Second),
	)

	server := gateway.NewServer(cfg, broker)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Start(ctx)
}

// init registers the serve command and its flags with the root command.
func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveConfigPath, "config", "dealerscope.yaml", "Path to the tenant configuration file")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides configuration)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides configuration)")
}
