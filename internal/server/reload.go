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

package server

import (
	"fmt"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/internal/config"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/logging"
)

// Reload applies the parts of cfg that can change without a restart.
// Currently only the daemon logger is replaced; socket, backend and
// biometric changes need a restart.
func (s *Server) Reload(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Reloading server configuration...")

	s.reloadLogging(cfg)

	if cfg.Backend.Type != s.config.Backend.Type ||
		cfg.Server.SocketPath != s.config.Server.SocketPath ||
		cfg.Storage.Path != s.config.Storage.Path {
		s.logger.Warn("Backend, socket and storage changes take effect after restart")
	}

	s.config.Logging = cfg.Logging

	s.logger.Info("Server configuration reloaded successfully")

	return nil
}

// reloadLogging updates the logging configuration
func (s *Server) reloadLogging(cfg *config.Config) {
	if cfg.Logging.Level == s.config.Logging.Level &&
		cfg.Logging.Format == s.config.Logging.Format {
		return
	}

	s.logger.Info("Updating logging configuration",
		logging.String("old_level", s.config.Logging.Level),
		logging.String("new_level", cfg.Logging.Level),
		logging.String("old_format", s.config.Logging.Format),
		logging.String("new_format", cfg.Logging.Format))

	s.logger = setupLogger(cfg.Logging)

	s.logger.Info("Logging configuration updated",
		logging.String("level", cfg.Logging.Level),
		logging.String("format", cfg.Logging.Format))
}

// Logger returns the current daemon logger
func (s *Server) Logger() logging.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}
