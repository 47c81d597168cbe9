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
	"github.com/spf13/cobra"
)

func newBiometricsCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "biometrics",
		Short: "Manage the biometric unlock preference",
	}
	cmd.AddCommand(
		newBiometricsSetCmd(cfg, "enable", "Turn biometric unlock on", true),
		newBiometricsSetCmd(cfg, "disable", "Turn biometric unlock off", false),
		newBiometricsStatusCmd(cfg),
	)
	return cmd
}

func newBiometricsSetCmd(cfg *Config, use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cfg.CreateClient()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.SetBiometricsEnabled(cmd.Context(), enabled); err != nil {
				return err
			}
			msg := "Biometric unlock disabled"
			if enabled {
				msg = "Biometric unlock enabled"
			}
			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintSuccess(msg)
		},
	}
}

func newBiometricsStatusCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether biometric unlock is enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cfg.CreateClient()
			if err != nil {
				return err
			}
			defer c.Close()

			enabled, err := c.BiometricsEnabled(cmd.Context())
			if err != nil {
				return err
			}
			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintBool("enabled", enabled)
		},
	}
}
