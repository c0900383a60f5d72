package cmd

import (
	"errors"
	"os"

	"dealerscope/internal/config"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfig indicates the configuration could not be loaded or is malformed.
	ExitCodeConfig = 2
)

// rootCmd represents the base command for the dealerscope application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "dealerscope",
	Short: "Multi-tenant analytics gateway for AI assistants",
	Long: `dealerscope exposes Google Analytics reporting to AI assistants over the
Model Context Protocol. Each request is authenticated per tenant; the
gateway brokers and refreshes the Google OAuth credential for the tenant
before any analytics call is made.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// It initializes and executes the root command, which in turn handles subcommands and flags.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "dealerscope version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if errors.Is(err, config.ErrMalformed) {
		return ExitCodeConfig
	}
	return ExitCodeError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
