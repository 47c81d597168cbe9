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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/keystore"
)

// Exit codes returned by the keystore command.
const (
	ExitOK        = 0
	ExitError     = 1
	ExitCancelled = 2
	ExitUsage     = 64
)

// NewRootCmd builds the command tree. Flags fall back to KEYSTORE_*
// environment variables through viper.
func NewRootCmd() *cobra.Command {
	cfg := NewConfig()
	v := viper.New()
	v.SetEnvPrefix("KEYSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:   "keystore",
		Short: "Pirate wallet keystore client",
		Long: `keystore talks to the keystore daemon over its Unix socket. It stores
named wallet secrets, seals and unseals the wallet master key, and
manages the biometric unlock preference.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Load(v)
		},
	}

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usagef("%v", err)
	})

	flags := rootCmd.PersistentFlags()
	flags.String("socket", cfg.SocketPath, "daemon socket path")
	flags.StringP("output", "o", cfg.OutputFormat, "output format (text, json)")
	flags.Duration("timeout", cfg.Timeout, "timeout for a single call")
	flags.BoolP("verbose", "v", false, "verbose output")
	for _, name := range []string{"socket", "output", "timeout", "verbose"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(
		newVersionCmd(cfg),
		newKeyCmd(cfg),
		newMasterCmd(cfg),
		newBiometricsCmd(cfg),
		newCapabilitiesCmd(cfg),
		newHealthCmd(cfg),
	)
	return rootCmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return run(NewRootCmd(), os.Args[1:], os.Stdout, os.Stderr)
}

func run(cmd *cobra.Command, args []string, stdout, stderr io.Writer) int {
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	executed, err := cmd.ExecuteC()
	if err == nil {
		return ExitOK
	}

	format := string(OutputFormatText)
	if executed != nil {
		if f := executed.Flag("output"); f != nil {
			format = f.Value.String()
		}
	}
	_ = NewPrinter(format, stderr).PrintError(err)
	return ExitCode(err)
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case keystore.IsCancelled(err):
		return ExitCancelled
	case keystore.ErrorCodeOf(err) == keystore.CodeInvalidArgument, isUsageError(err):
		return ExitUsage
	default:
		return ExitError
	}
}

// usageError marks bad command-line input.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func isUsageError(err error) bool {
	var uerr *usageError
	return errors.As(err, &uerr)
}
