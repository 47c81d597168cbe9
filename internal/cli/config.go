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

package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/client"
)

// Config holds global CLI configuration
type Config struct {
	// SocketPath is the daemon socket
	SocketPath string

	// OutputFormat controls output formatting (json, text)
	OutputFormat string

	// Timeout bounds a single daemon call
	Timeout time.Duration

	// Verbose enables verbose logging
	Verbose bool
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		SocketPath:   client.DefaultUnixSocketPath,
		OutputFormat: string(OutputFormatText),
		Timeout:      client.DefaultTimeout,
	}
}

// Load reads the bound flags and KEYSTORE_* environment variables.
func (c *Config) Load(v *viper.Viper) error {
	if socket := v.GetString("socket"); socket != "" {
		c.SocketPath = socket
	}
	if output := v.GetString("output"); output != "" {
		c.OutputFormat = output
	}
	if timeout := v.GetDuration("timeout"); timeout > 0 {
		c.Timeout = timeout
	}
	c.Verbose = v.GetBool("verbose")

	switch OutputFormat(c.OutputFormat) {
	case OutputFormatText, OutputFormatJSON:
	default:
		return usagef("invalid output format %q (must be text or json)", c.OutputFormat)
	}
	return nil
}

// CreateClient creates a client for the keystore daemon.
func (c *Config) CreateClient() (*client.Client, error) {
	c.printVerbose("Connecting to %s", c.SocketPath)
	return client.New(&client.Config{
		SocketPath: c.SocketPath,
		Timeout:    c.Timeout,
	})
}

// printVerbose prints a message if verbose mode is enabled
func (c *Config) printVerbose(format string, args ...interface{}) {
	if c.Verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] "+format+"\n", args...)
	}
}
