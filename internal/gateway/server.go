package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"dealerscope/internal/config"
	"dealerscope/internal/credential"
	"dealerscope/internal/tools"
	"dealerscope/pkg/logging"

	"github.com/mark3labs/mcp-go/server"
)

const (
	// DefaultReadHeaderTimeout bounds reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultIdleTimeout is the idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second
	// shutdownTimeout bounds graceful shutdown.
	shutdownTimeout = 10 * time.Second
)

// Server hosts the analytics MCP endpoint behind the tenant authentication
// middleware.
type Server struct {
	config config.GatewayConfig
	broker *credential.Broker

	mcpServer            *server.MCPServer
	streamableHTTPServer *server.StreamableHTTPServer
	httpServer           *http.Server
}

// NewServer wires the MCP server, analytics tools, and authentication
// middleware. The broker is injected rather than constructed here so tests
// (and alternate entry points) can substitute their own.
func NewServer(cfg config.GatewayConfig, broker *credential.Broker) *Server {
	mcpServer := server.NewMCPServer(
		"dealerscope",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	tools.Register(mcpServer, broker)

	s := &Server{
		config:               cfg,
		broker:               broker,
		mcpServer:            mcpServer,
		streamableHTTPServer: server.NewStreamableHTTPServer(mcpServer),
	}

	authenticator := NewAuthenticator(broker)
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.createMux(authenticator),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}

	return s
}

// createMux routes health probes around authentication and everything else
// through it into the MCP handler.
func (s *Server) createMux(authenticator *Authenticator) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(fmt.Sprintf(`{"status":"ready","tenants":%d}`, len(s.broker.ListTenants()))))
	})

	mux.Handle("/mcp", authenticator.Middleware(s.streamableHTTPServer))

	return mux
}

// Handler returns the full HTTP handler. Exposed for httptest-based tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves the gateway until the context is cancelled or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	logging.Info("Gateway", "Starting MCP gateway on %s (transport=%s, tenants=%d)",
		s.httpServer.Addr, config.TransportStreamableHTTP, len(s.broker.ListTenants()))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway HTTP server error: %w", err)
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	logging.Info("Gateway", "Shutting down MCP gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown error: %w", err)
	}
	return nil
}
