// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keychain.
//
// go-keychain is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package unix serves the keystore channel over a Unix domain socket.
package unix

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/internal/channel"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/correlation"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/health"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/logging"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/metrics"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/ratelimit"
)

// DefaultSocketPath is the default path for the Unix socket
const DefaultSocketPath = "/var/run/keystore/keystore.sock"

// ChannelPrefix is the route prefix for channel calls. The method name
// is the final path segment.
const ChannelPrefix = "/api/v1/channel"

// DefaultMaxBodyBytes bounds a request body.
const DefaultMaxBodyBytes = 1 << 20

var (
	// ErrConfigRequired is returned by NewServer for a nil config.
	ErrConfigRequired = errors.New("unix: config is required")

	// ErrDispatcherRequired is returned by NewServer when no dispatcher is set.
	ErrDispatcherRequired = errors.New("unix: channel dispatcher is required")
)

// Config holds the Unix socket server configuration
type Config struct {
	// SocketPath is the path to the Unix socket file
	SocketPath string

	// Dispatcher executes channel calls.
	Dispatcher *channel.Dispatcher

	// HealthChecker backs the /health routes (optional)
	HealthChecker *health.Checker

	// RateLimiter throttles channel calls per peer (optional)
	RateLimiter *ratelimit.Limiter

	// Logger is the logging adapter
	Logger logging.Logger

	// SocketMode is the file mode for the socket (default: 0660)
	SocketMode os.FileMode

	// ReadTimeout is the maximum duration for reading requests
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration for writing responses. It
	// must cover a biometric prompt during unsealMasterKey.
	WriteTimeout time.Duration

	// MaxBodyBytes bounds a request body (default: 1 MiB)
	MaxBodyBytes int64
}

// Server represents the Unix domain socket server
type Server struct {
	config   *Config
	server   *http.Server
	listener net.Listener
	router   chi.Router
	logger   logging.Logger
	mu       sync.RWMutex
}

// NewServer creates a new Unix socket server
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	if cfg.Dispatcher == nil {
		return nil, ErrDispatcherRequired
	}

	if cfg.SocketPath == "" {
		cfg.SocketPath = DefaultSocketPath
	}

	if cfg.SocketMode == 0 {
		cfg.SocketMode = 0660
	}

	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}

	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}

	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	s := &Server{
		config: cfg,
		logger: cfg.Logger,
		router: chi.NewRouter(),
	}

	s.setupRoutes()

	return s, nil
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(correlation.Middleware)
	s.router.Use(metrics.HTTPMiddleware)

	handlers := NewHandlerContext(s.config.Dispatcher, s.config.HealthChecker, s.logger, s.config.MaxBodyBytes)

	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LiveHandler)
	s.router.Get("/health/ready", handlers.ReadyHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)

	s.router.Route(ChannelPrefix, func(r chi.Router) {
		if s.config.RateLimiter != nil {
			r.Use(ratelimit.Middleware(s.config.RateLimiter))
		}
		r.Get("/", handlers.MethodsHandler)
		r.Post("/{method}", handlers.ChannelHandler)
	})
}

// Handler returns the routed handler, for in-process use and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the Unix socket server and blocks until it stops.
func (s *Server) Start() error {
	socketDir := filepath.Dir(s.config.SocketPath)
	if err := os.MkdirAll(socketDir, 0750); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	if err := os.Remove(s.config.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.config.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to create Unix socket listener: %w", err)
	}

	if err := os.Chmod(s.config.SocketPath, s.config.SocketMode); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("Unix socket created", logging.String("path", s.config.SocketPath))

	s.mu.Lock()
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		ConnState:         metrics.ConnState,
		ConnContext:       connContext,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("Starting Unix socket server", logging.String("socket", s.config.SocketPath))

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("unix socket server error: %w", err)
	}

	return nil
}

// Stop gracefully stops the Unix socket server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping Unix socket server...")

	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("Error shutting down Unix socket server", logging.Error(err))
			return err
		}
	}

	if err := os.Remove(s.config.SocketPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to remove socket file", logging.Error(err))
	}

	s.logger.Info("Unix socket server stopped")
	return nil
}

// SocketPath returns the path to the Unix socket
func (s *Server) SocketPath() string {
	return s.config.SocketPath
}

// connContext keys rate limiting on the peer's credentials when the
// platform exposes them.
func connContext(ctx context.Context, c net.Conn) context.Context {
	if id := peerID(c); id != "" {
		return ratelimit.WithClientID(ctx, id)
	}
	return ctx
}
