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

// Package config loads the keystore daemon configuration.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/internal/unix"
)

// Backend types accepted in backend.type.
const (
	BackendAuto     = "auto"
	BackendEnclave  = "enclave"
	BackendACL      = "acl"
	BackendDPAPI    = "dpapi"
	BackendKeyring  = "keyring"
	BackendSoftware = "software"
)

// Keyring stores accepted in backend.keyring.store.
const (
	KeyringSecretService = "secret-service"
	KeyringGoKeyring     = "go-keyring"
)

// Biometric verifiers accepted in biometric.verifier.
const (
	VerifierAuto    = "auto"
	VerifierFprintd = "fprintd"
	VerifierNone    = "none"
)

// Config represents the complete daemon configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Storage   StorageConfig   `yaml:"storage"`
	Backend   BackendConfig   `yaml:"backend"`
	Biometric BiometricConfig `yaml:"biometric"`
}

// ServerConfig contains the socket listener settings
type ServerConfig struct {
	SocketPath   string        `yaml:"socket_path"`
	SocketMode   string        `yaml:"socket_mode"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RateLimitConfig controls rate limiting
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	Burst          int  `yaml:"burst"`
}

// MetricsConfig controls the Prometheus listener
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Listen  string `yaml:"listen"`
}

// StorageConfig locates non-credential state: protected secret files,
// software wrap keys and the biometric preference.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// BackendConfig selects the platform secure backend
type BackendConfig struct {
	Type     string         `yaml:"type"`
	TPM      TPMConfig      `yaml:"tpm"`
	Software SoftwareConfig `yaml:"software"`
	Keyring  KeyringConfig  `yaml:"keyring"`
}

// TPMConfig contains TPM 2.0 settings for the enclave backend
type TPMConfig struct {
	Device    string `yaml:"device"`
	Simulator bool   `yaml:"simulator"`
}

// SoftwareConfig contains settings for the software wrap key provider.
// The password is never read from the file; set KEYSTORE_SOFTWARE_PASSWORD.
type SoftwareConfig struct {
	Password string `yaml:"-"`
}

// KeyringConfig contains keyring-service settings
type KeyringConfig struct {
	Store string `yaml:"store"`
}

// BiometricConfig controls the presence gate
type BiometricConfig struct {
	Verifier          string        `yaml:"verifier"`
	SessionTimeout    time.Duration `yaml:"session_timeout"`
	MaxFailedAttempts int           `yaml:"max_failed_attempts"`
	LockoutDuration   time.Duration `yaml:"lockout_duration"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			SocketPath:   unix.DefaultSocketPath,
			SocketMode:   "0660",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 2 * time.Minute,
			MaxBodyBytes: unix.DefaultMaxBodyBytes,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 600,
			Burst:          60,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Storage: StorageConfig{
			Path: DefaultDataDir(),
		},
		Backend: BackendConfig{
			Type:    BackendAuto,
			Keyring: KeyringConfig{Store: KeyringSecretService},
		},
		Biometric: BiometricConfig{
			Verifier:          VerifierAuto,
			MaxFailedAttempts: 5,
			LockoutDuration:   30 * time.Second,
		},
	}
}

// Load reads configuration from a YAML file over the defaults and applies
// environment variable overrides. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - Config file path is provided by admin/user
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies KEYSTORE_* environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if socket := os.Getenv("KEYSTORE_SOCKET"); socket != "" {
		cfg.Server.SocketPath = socket
	}

	if level := os.Getenv("KEYSTORE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("KEYSTORE_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	if dataDir := os.Getenv("KEYSTORE_DATA_DIR"); dataDir != "" {
		cfg.Storage.Path = dataDir
	}

	if backendType := os.Getenv("KEYSTORE_BACKEND"); backendType != "" {
		cfg.Backend.Type = backendType
	}
	if tpmPath := os.Getenv("KEYSTORE_TPM_DEVICE"); tpmPath != "" {
		cfg.Backend.TPM.Device = tpmPath
	}
	if sim := os.Getenv("KEYSTORE_TPM_SIMULATOR"); sim != "" {
		v, err := strconv.ParseBool(sim)
		if err != nil {
			log.Printf("Warning: invalid KEYSTORE_TPM_SIMULATOR value %q, using default %t: %v",
				sim, cfg.Backend.TPM.Simulator, err)
		} else {
			cfg.Backend.TPM.Simulator = v
		}
	}
	if password := os.Getenv("KEYSTORE_SOFTWARE_PASSWORD"); password != "" {
		cfg.Backend.Software.Password = password
	}
	if store := os.Getenv("KEYSTORE_KEYRING_STORE"); store != "" {
		cfg.Backend.Keyring.Store = store
	}

	if listen := os.Getenv("KEYSTORE_METRICS_LISTEN"); listen != "" {
		cfg.Metrics.Listen = listen
		cfg.Metrics.Enabled = true
	}

	if rpm := os.Getenv("KEYSTORE_RATE_LIMIT"); rpm != "" {
		n, err := strconv.Atoi(rpm)
		if err != nil {
			log.Printf("Warning: invalid KEYSTORE_RATE_LIMIT value %q, using default %d: %v",
				rpm, cfg.RateLimit.RequestsPerMin, err)
		} else if n < 0 {
			log.Printf("Warning: invalid KEYSTORE_RATE_LIMIT value %q (negative), using default %d",
				rpm, cfg.RateLimit.RequestsPerMin)
		} else {
			cfg.RateLimit.RequestsPerMin = n
			cfg.RateLimit.Enabled = n > 0
		}
	}

	if timeout := os.Getenv("KEYSTORE_BIOMETRIC_SESSION_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			log.Printf("Warning: invalid KEYSTORE_BIOMETRIC_SESSION_TIMEOUT value %q, using default %s: %v",
				timeout, cfg.Biometric.SessionTimeout, err)
		} else {
			cfg.Biometric.SessionTimeout = d
		}
	}
	if verifier := os.Getenv("KEYSTORE_BIOMETRIC_VERIFIER"); verifier != "" {
		cfg.Biometric.Verifier = verifier
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.SocketPath == "" {
		return fmt.Errorf("server socket_path must be specified")
	}
	if _, err := c.Server.Mode(); err != nil {
		return err
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server max_body_bytes must not be negative")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, error, or fatal)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json, text, or console)", c.Logging.Format)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin < 1 {
		return fmt.Errorf("ratelimit requests_per_min must be positive when enabled")
	}
	if c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit burst must not be negative")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Listen == "" {
			return fmt.Errorf("metrics listen address is required when metrics are enabled")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics path must start with /: %q", c.Metrics.Path)
		}
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage path must be specified")
	}

	switch c.Backend.Type {
	case BackendAuto, BackendACL, BackendDPAPI, BackendKeyring:
	case BackendEnclave:
		if c.Backend.TPM.Simulator && c.Backend.TPM.Device != "" {
			return fmt.Errorf("backend tpm device and simulator are mutually exclusive")
		}
	case BackendSoftware:
		if c.Backend.Software.Password == "" {
			return fmt.Errorf("KEYSTORE_SOFTWARE_PASSWORD is required for the software backend")
		}
	default:
		return fmt.Errorf("invalid backend type: %q (must be auto, enclave, acl, dpapi, keyring, or software)", c.Backend.Type)
	}

	switch c.Backend.Keyring.Store {
	case KeyringSecretService, KeyringGoKeyring:
	default:
		return fmt.Errorf("invalid keyring store: %q (must be secret-service or go-keyring)", c.Backend.Keyring.Store)
	}

	switch c.Biometric.Verifier {
	case VerifierAuto, VerifierFprintd, VerifierNone:
	default:
		return fmt.Errorf("invalid biometric verifier: %q (must be auto, fprintd, or none)", c.Biometric.Verifier)
	}
	if c.Biometric.SessionTimeout < 0 || c.Biometric.LockoutDuration < 0 || c.Biometric.MaxFailedAttempts < 0 {
		return fmt.Errorf("biometric limits must not be negative")
	}

	return nil
}

// Mode parses SocketMode as an octal file mode. Empty means 0660.
func (s ServerConfig) Mode() (os.FileMode, error) {
	if s.SocketMode == "" {
		return 0660, nil
	}
	mode, err := strconv.ParseUint(s.SocketMode, 8, 32)
	if err != nil || mode > 0777 {
		return 0, fmt.Errorf("invalid socket_mode: %q (must be octal, e.g. 0660)", s.SocketMode)
	}
	return os.FileMode(mode), nil
}

// DefaultDataDir returns the per-host directory for daemon state.
func DefaultDataDir() string {
	if runtime.GOOS == "windows" {
		if programData := os.Getenv("ProgramData"); programData != "" {
			return filepath.Join(programData, "keystore")
		}
		return filepath.Join(`C:\ProgramData`, "keystore")
	}
	return "/var/lib/keystore"
}
