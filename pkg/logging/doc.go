// Package logging provides a structured logging system for dealerscope with
// unified log handling and level filtering.
//
// This package implements a logging system built on Go's standard slog package,
// providing consistent logging behavior with structured output and level filtering.
//
// All log entries include:
//   - Timestamp
//   - Log level (Debug, Info, Warn, Error)
//   - Subsystem identifier for categorization
//   - Message content with optional printf-style formatting
//   - Optional error information
//
// Usage:
//
//	logging.Init(logging.LevelInfo, os.Stderr)
//	logging.Info("Broker", "resolved credential for tenant=%s", tenantID)
//	logging.Error("Gateway", err, "failed to start HTTP server")
package logging
