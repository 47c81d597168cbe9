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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}
	return configPath
}

// TestLoad_Success tests successful loading of a valid config file
func TestLoad_Success(t *testing.T) {
	configPath := writeConfig(t, `
server:
  socket_path: "/run/keystore/test.sock"
  socket_mode: "0600"
  read_timeout: 10s
  write_timeout: 90s
  max_body_bytes: 4096

logging:
  level: "debug"
  format: "json"

ratelimit:
  enabled: true
  requests_per_min: 120
  burst: 10

metrics:
  enabled: true
  listen: "127.0.0.1:9090"
  path: "/metrics"

storage:
  path: "/data/keystore"

backend:
  type: "keyring"
  keyring:
    store: "go-keyring"

biometric:
  verifier: "none"
  session_timeout: 5m
  max_failed_attempts: 3
  lockout_duration: 1m
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.SocketPath != "/run/keystore/test.sock" {
		t.Errorf("Expected socket path /run/keystore/test.sock, got %s", cfg.Server.SocketPath)
	}
	mode, err := cfg.Server.Mode()
	if err != nil || mode != 0600 {
		t.Errorf("Expected socket mode 0600, got %o (%v)", mode, err)
	}
	if cfg.Server.WriteTimeout != 90*time.Second {
		t.Errorf("Expected write timeout 90s, got %s", cfg.Server.WriteTimeout)
	}
	if cfg.Server.MaxBodyBytes != 4096 {
		t.Errorf("Expected max body 4096, got %d", cfg.Server.MaxBodyBytes)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.RateLimit.RequestsPerMin != 120 || cfg.RateLimit.Burst != 10 {
		t.Errorf("Unexpected ratelimit config: %+v", cfg.RateLimit)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "127.0.0.1:9090" {
		t.Errorf("Unexpected metrics config: %+v", cfg.Metrics)
	}
	if cfg.Storage.Path != "/data/keystore" {
		t.Errorf("Expected storage path /data/keystore, got %s", cfg.Storage.Path)
	}
	if cfg.Backend.Type != BackendKeyring || cfg.Backend.Keyring.Store != KeyringGoKeyring {
		t.Errorf("Unexpected backend config: %+v", cfg.Backend)
	}
	if cfg.Biometric.SessionTimeout != 5*time.Minute || cfg.Biometric.MaxFailedAttempts != 3 {
		t.Errorf("Unexpected biometric config: %+v", cfg.Biometric)
	}
}

// TestLoad_Defaults verifies that an empty path and a partial file keep defaults
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.Backend.Type != BackendAuto {
		t.Errorf("Expected backend auto, got %s", cfg.Backend.Type)
	}
	if cfg.Server.WriteTimeout != 2*time.Minute {
		t.Errorf("Expected default write timeout 2m, got %s", cfg.Server.WriteTimeout)
	}
	if cfg.Storage.Path != DefaultDataDir() {
		t.Errorf("Expected default data dir %s, got %s", DefaultDataDir(), cfg.Storage.Path)
	}

	cfg, err = Load(writeConfig(t, "logging:\n  level: warn\n"))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format text, got %s", cfg.Logging.Format)
	}
	if !cfg.RateLimit.Enabled {
		t.Error("Expected rate limiting enabled by default")
	}
}

// TestLoad_FileNotFound tests error handling when config file doesn't exist
func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Expected error for nonexistent file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Unexpected error: %v", err)
	}
}

// TestLoad_InvalidYAML tests error handling for malformed YAML
func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  socket_path: [unterminated\n"))
	if err == nil {
		t.Fatal("Expected error for invalid YAML, got nil")
	}
	if !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("Unexpected error: %v", err)
	}
}

// TestLoad_PasswordNotReadFromFile ensures the software password only comes from the environment
func TestLoad_PasswordNotReadFromFile(t *testing.T) {
	_, err := Load(writeConfig(t, `
backend:
  type: software
  software:
    password: "in-the-file"
`))
	if err == nil {
		t.Fatal("Expected error without KEYSTORE_SOFTWARE_PASSWORD, got nil")
	}

	t.Setenv("KEYSTORE_SOFTWARE_PASSWORD", "from-env")
	cfg, err := Load(writeConfig(t, "backend:\n  type: software\n"))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Backend.Software.Password != "from-env" {
		t.Errorf("Expected password from env, got %q", cfg.Backend.Software.Password)
	}
}

// TestApplyEnvOverrides tests KEYSTORE_* environment variables
func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("KEYSTORE_SOCKET", "/tmp/env.sock")
	t.Setenv("KEYSTORE_LOG_LEVEL", "error")
	t.Setenv("KEYSTORE_LOG_FORMAT", "json")
	t.Setenv("KEYSTORE_DATA_DIR", "/tmp/env-data")
	t.Setenv("KEYSTORE_BACKEND", "enclave")
	t.Setenv("KEYSTORE_TPM_SIMULATOR", "true")
	t.Setenv("KEYSTORE_KEYRING_STORE", "go-keyring")
	t.Setenv("KEYSTORE_METRICS_LISTEN", "127.0.0.1:9191")
	t.Setenv("KEYSTORE_RATE_LIMIT", "30")
	t.Setenv("KEYSTORE_BIOMETRIC_SESSION_TIMEOUT", "45s")
	t.Setenv("KEYSTORE_BIOMETRIC_VERIFIER", "fprintd")

	cfg := Default()
	applyEnvOverrides(cfg)

	if cfg.Server.SocketPath != "/tmp/env.sock" {
		t.Errorf("Expected socket /tmp/env.sock, got %s", cfg.Server.SocketPath)
	}
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" {
		t.Errorf("Unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.Storage.Path != "/tmp/env-data" {
		t.Errorf("Expected data dir /tmp/env-data, got %s", cfg.Storage.Path)
	}
	if cfg.Backend.Type != BackendEnclave || !cfg.Backend.TPM.Simulator {
		t.Errorf("Unexpected backend config: %+v", cfg.Backend)
	}
	if cfg.Backend.Keyring.Store != KeyringGoKeyring {
		t.Errorf("Expected go-keyring store, got %s", cfg.Backend.Keyring.Store)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "127.0.0.1:9191" {
		t.Errorf("Unexpected metrics config: %+v", cfg.Metrics)
	}
	if cfg.RateLimit.RequestsPerMin != 30 || !cfg.RateLimit.Enabled {
		t.Errorf("Unexpected ratelimit config: %+v", cfg.RateLimit)
	}
	if cfg.Biometric.SessionTimeout != 45*time.Second || cfg.Biometric.Verifier != VerifierFprintd {
		t.Errorf("Unexpected biometric config: %+v", cfg.Biometric)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

// TestApplyEnvOverrides_InvalidValues tests that invalid values keep defaults
func TestApplyEnvOverrides_InvalidValues(t *testing.T) {
	t.Setenv("KEYSTORE_TPM_SIMULATOR", "maybe")
	t.Setenv("KEYSTORE_RATE_LIMIT", "-5")
	t.Setenv("KEYSTORE_BIOMETRIC_SESSION_TIMEOUT", "soon")

	cfg := Default()
	applyEnvOverrides(cfg)

	if cfg.Backend.TPM.Simulator {
		t.Error("Expected simulator to remain false")
	}
	if cfg.RateLimit.RequestsPerMin != 600 {
		t.Errorf("Expected default rate 600, got %d", cfg.RateLimit.RequestsPerMin)
	}
	if cfg.Biometric.SessionTimeout != 0 {
		t.Errorf("Expected default session timeout 0, got %s", cfg.Biometric.SessionTimeout)
	}
}

// TestApplyEnvOverrides_RateLimitZeroDisables tests that a zero rate disables limiting
func TestApplyEnvOverrides_RateLimitZeroDisables(t *testing.T) {
	t.Setenv("KEYSTORE_RATE_LIMIT", "0")
	cfg := Default()
	applyEnvOverrides(cfg)
	if cfg.RateLimit.Enabled {
		t.Error("Expected rate limiting disabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

// TestValidate tests configuration validation
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty socket", func(c *Config) { c.Server.SocketPath = "" }, "socket_path"},
		{"bad socket mode", func(c *Config) { c.Server.SocketMode = "rw-rw----" }, "socket_mode"},
		{"socket mode out of range", func(c *Config) { c.Server.SocketMode = "1777" }, "socket_mode"},
		{"negative timeout", func(c *Config) { c.Server.ReadTimeout = -time.Second }, "timeouts"},
		{"negative body", func(c *Config) { c.Server.MaxBodyBytes = -1 }, "max_body_bytes"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "invalid log level"},
		{"uppercase level", func(c *Config) { c.Logging.Level = "DEBUG" }, ""},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"zero rate", func(c *Config) { c.RateLimit.RequestsPerMin = 0 }, "requests_per_min"},
		{"zero rate disabled", func(c *Config) {
			c.RateLimit.Enabled = false
			c.RateLimit.RequestsPerMin = 0
		}, ""},
		{"negative burst", func(c *Config) { c.RateLimit.Burst = -1 }, "burst"},
		{"metrics without listen", func(c *Config) { c.Metrics.Enabled = true }, "listen"},
		{"metrics bad path", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Listen = ":9090"
			c.Metrics.Path = "metrics"
		}, "metrics path"},
		{"empty storage", func(c *Config) { c.Storage.Path = "" }, "storage path"},
		{"unknown backend", func(c *Config) { c.Backend.Type = "strongbox" }, "invalid backend type"},
		{"software without password", func(c *Config) { c.Backend.Type = BackendSoftware }, "KEYSTORE_SOFTWARE_PASSWORD"},
		{"enclave device and simulator", func(c *Config) {
			c.Backend.Type = BackendEnclave
			c.Backend.TPM.Device = "/dev/tpm0"
			c.Backend.TPM.Simulator = true
		}, "mutually exclusive"},
		{"enclave default device", func(c *Config) { c.Backend.Type = BackendEnclave }, ""},
		{"unknown keyring store", func(c *Config) { c.Backend.Keyring.Store = "kwallet" }, "invalid keyring store"},
		{"unknown verifier", func(c *Config) { c.Biometric.Verifier = "face" }, "invalid biometric verifier"},
		{"negative attempts", func(c *Config) { c.Biometric.MaxFailedAttempts = -1 }, "biometric limits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

// TestServerConfig_Mode tests octal parsing of the socket mode
func TestServerConfig_Mode(t *testing.T) {
	tests := []struct {
		in   string
		want os.FileMode
	}{
		{"", 0660},
		{"0600", 0600},
		{"660", 0660},
		{"0777", 0777},
	}
	for _, tt := range tests {
		got, err := ServerConfig{SocketMode: tt.in}.Mode()
		if err != nil {
			t.Errorf("Mode(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Mode(%q) = %o, want %o", tt.in, got, tt.want)
		}
	}
}
