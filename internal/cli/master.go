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

func newMasterCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "master",
		Short: "Seal and unseal the wallet master key",
		Long: `Seal a 32-byte wallet master key under the platform keystore, or
recover it from a sealed blob. Unsealing may prompt for biometrics when
biometric unlock is enabled.`,
	}
	cmd.AddCommand(newMasterSealCmd(cfg), newMasterUnsealCmd(cfg))
	return cmd
}

func newMasterSealCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Seal a master key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			masterKey, err := readInput(cmd)
			if err != nil {
				return err
			}

			c, err := cfg.CreateClient()
			if err != nil {
				return err
			}
			defer c.Close()

			sealed, err := c.SealMasterKey(cmd.Context(), masterKey)
			if err != nil {
				return err
			}
			return writeOutput(cmd, cfg, "sealedKey", sealed)
		},
	}
	addInputFlags(cmd, "the master key")
	addOutputFlag(cmd, "the sealed key")
	return cmd
}

func newMasterUnsealCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unseal",
		Short: "Recover a master key from a sealed blob",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sealed, err := readInput(cmd)
			if err != nil {
				return err
			}

			c, err := cfg.CreateClient()
			if err != nil {
				return err
			}
			defer c.Close()

			masterKey, err := c.UnsealMasterKey(cmd.Context(), sealed)
			if err != nil {
				return err
			}
			return writeOutput(cmd, cfg, "masterKey", masterKey)
		},
	}
	addInputFlags(cmd, "the sealed key")
	addOutputFlag(cmd, "the master key")
	return cmd
}
