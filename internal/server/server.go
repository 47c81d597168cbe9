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

// Package server wires the keystore daemon: backend selection, the
// keystore facade, the channel dispatcher and the Unix socket listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/internal/channel"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/internal/config"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/internal/unix"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/health"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/keystore"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/logging"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/metrics"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/preference"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/presence"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/ratelimit"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/storage"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/storage/file"
)

// resourceInterval is how often runtime resource gauges are sampled.
const resourceInterval = 30 * time.Second

// Option customizes a Server.
type Option func(*Server)

// WithStorage replaces the data directory storage.
func WithStorage(store storage.Backend) Option {
	return func(s *Server) { s.files = store }
}

// WithVerifier replaces the configured presence verifier.
func WithVerifier(verifier presence.Verifier) Option {
	return func(s *Server) { s.verifier = verifier }
}

// WithLogger replaces the logger built from the logging configuration.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// Server is the keystore daemon
type Server struct {
	config   *config.Config
	mu       sync.RWMutex
	logger   logging.Logger
	files    storage.Backend
	verifier presence.Verifier

	backend    *Backend
	keystore   *keystore.Keystore
	dispatcher *channel.Dispatcher

	unixServer    *unix.Server
	metricsServer *http.Server
	rateLimiter   *ratelimit.Limiter

	healthChecker    *health.Checker
	metricsCollector *metrics.ResourceCollector

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	errCh        chan error
}

// New creates the daemon. Nothing listens until Start.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: configuration is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:     cfg,
		ctx:        ctx,
		cancel:     cancel,
		shutdownCh: make(chan struct{}),
		errCh:      make(chan error, 2),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = setupLogger(cfg.Logging)
	}

	if err := s.initializeStorage(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := s.initializeKeyStore(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize keystore: %w", err)
	}

	s.initializeHealth()
	s.dispatcher = channel.NewDispatcher(s.keystore, s.logger.With(logging.String("component", "channel")))

	return s, nil
}

// setupLogger configures the logger based on config
func setupLogger(cfg config.LoggingConfig) logging.Logger {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		level = logging.LevelInfo
	}

	format := strings.ToLower(cfg.Format)
	if format == "console" {
		format = "text"
	}

	return logging.NewSlogAdapter(&logging.SlogConfig{
		Level:  level,
		Format: format,
		Output: os.Stdout,
	})
}

// BuildVersion retrieves the version from build information
func BuildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.version" {
			if setting.Value != "" && setting.Value != "devel" {
				return setting.Value
			}
		}
		if setting.Key == "vcs.revision" {
			if len(setting.Value) >= 7 {
				return setting.Value[:7]
			}
			return setting.Value
		}
	}

	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	return "dev"
}

// initializeStorage opens the data directory unless storage was supplied
func (s *Server) initializeStorage() error {
	if s.files != nil {
		return nil
	}
	s.logger.Info("Opening data directory", logging.String("path", s.config.Storage.Path))
	store, err := file.New(s.config.Storage.Path)
	if err != nil {
		return err
	}
	s.files = store
	return nil
}

// initializeKeyStore selects the backend and builds the keystore over it
func (s *Server) initializeKeyStore() error {
	s.logger.Info("Initializing backend...", logging.String("type", s.config.Backend.Type))

	b, err := NewBackend(s.ctx, &BackendFactoryConfig{
		Backend:   s.config.Backend,
		Biometric: s.config.Biometric,
		Files:     s.files,
		Logger:    s.logger,
		Verifier:  s.verifier,
	})
	if err != nil {
		return err
	}

	ks, err := keystore.New(keystore.Config{
		Backend:     b,
		Preferences: preference.NewStore(s.files),
		Logger:      s.logger,
	})
	if err != nil {
		_ = b.Close()
		return err
	}

	s.backend = b
	s.keystore = ks
	return nil
}

// initializeHealth registers the backend readiness check
func (s *Server) initializeHealth() {
	s.healthChecker = health.NewChecker()
	s.healthChecker.RegisterCheck("backend", health.StoreCheck(s.keystore))
	s.logger.Info("Health checker initialized", logging.Int("checks", len(s.healthChecker.GetAllChecks())))
}

// initializeMetrics enables collection and starts the resource collector
func (s *Server) initializeMetrics() {
	s.logger.Info("Initializing metrics...")
	metrics.Enable()
	s.metricsCollector = metrics.StartResourceCollector(s.ctx, resourceInterval)
	metrics.SetBackendHealth(s.keystore.Backend(), true)
}

// Start starts the socket listener and, when enabled, the metrics listener
func (s *Server) Start() error {
	s.logger.Info("Starting keystore daemon...", logging.String("version", BuildVersion()))

	mode, err := s.config.Server.Mode()
	if err != nil {
		return err
	}

	if s.config.RateLimit.Enabled {
		s.rateLimiter = ratelimit.New(&ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: s.config.RateLimit.RequestsPerMin,
			Burst:             s.config.RateLimit.Burst,
		})
	}

	s.unixServer, err = unix.NewServer(&unix.Config{
		SocketPath:    s.config.Server.SocketPath,
		Dispatcher:    s.dispatcher,
		HealthChecker: s.healthChecker,
		RateLimiter:   s.rateLimiter,
		Logger:        s.logger.With(logging.String("component", "unix")),
		SocketMode:    mode,
		ReadTimeout:   s.config.Server.ReadTimeout,
		WriteTimeout:  s.config.Server.WriteTimeout,
		MaxBodyBytes:  s.config.Server.MaxBodyBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to create unix server: %w", err)
	}

	if s.config.Metrics.Enabled {
		s.initializeMetrics()
		s.wg.Add(1)
		go s.startMetrics()
	} else {
		metrics.Disable()
	}

	s.wg.Add(1)
	go s.startUnix()

	s.healthChecker.MarkStarted()
	s.logger.Info("Keystore daemon started",
		logging.String("socket", s.unixServer.SocketPath()),
		logging.String("backend", s.keystore.Backend()))

	return nil
}

// startUnix runs the socket listener until Shutdown
func (s *Server) startUnix() {
	defer s.wg.Done()
	if err := s.unixServer.Start(); err != nil {
		s.logger.Error("Unix socket server error", logging.Error(err))
		s.errCh <- fmt.Errorf("unix server: %w", err)
	}
}

// startMetrics starts the Prometheus metrics server
func (s *Server) startMetrics() {
	defer s.wg.Done()

	mux := http.NewServeMux()
	mux.Handle(s.config.Metrics.Path, promhttp.Handler())

	s.mu.Lock()
	s.metricsServer = &http.Server{
		Addr:              s.config.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.metricsServer
	s.mu.Unlock()

	s.logger.Info("Starting metrics server",
		logging.String("address", s.config.Metrics.Listen),
		logging.String("path", s.config.Metrics.Path))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Metrics server error", logging.Error(err))
		s.errCh <- fmt.Errorf("metrics server: %w", err)
	}
}

// Errors reports listener failures after Start.
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Shutdown stops the listeners and closes the keystore. Safe to call more
// than once.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.shutdown()
	})
	return err
}

func (s *Server) shutdown() error {
	s.logger.Info("Shutting down keystore daemon...")
	s.healthChecker.MarkStopped()

	if s.metricsCollector != nil {
		s.metricsCollector.Stop()
	}

	s.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if s.unixServer != nil {
		if err := s.unixServer.Stop(shutdownCtx); err != nil {
			s.logger.Error("Error shutting down Unix socket server", logging.Error(err))
			errs = append(errs, err)
		}
	}

	s.mu.RLock()
	metricsServer := s.metricsServer
	s.mu.RUnlock()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Error shutting down metrics server", logging.Error(err))
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn("Shutdown timeout exceeded, forcing stop")
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if err := s.keystore.Close(); err != nil {
		s.logger.Error("Error closing keystore", logging.Error(err))
		errs = append(errs, err)
	}

	close(s.shutdownCh)
	s.logger.Info("Keystore daemon shutdown complete")

	return errors.Join(errs...)
}

// WaitForShutdown blocks until the server is shut down
func (s *Server) WaitForShutdown() {
	<-s.shutdownCh
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM
func SetupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		cancel()
	}()

	return ctx
}

// Keystore returns the keystore facade
func (s *Server) Keystore() *keystore.Keystore {
	return s.keystore
}

// BackendType returns the resolved backend type
func (s *Server) BackendType() string {
	return s.backend.Type
}

// HealthChecker returns the health checker
func (s *Server) HealthChecker() *health.Checker {
	return s.healthChecker
}

// UnixServer returns the Unix socket server instance
func (s *Server) UnixServer() *unix.Server {
	return s.unixServer
}
