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

	"github.com/spf13/cobra"
)

func newKeyCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage named wallet secrets",
		Long:  "Store, retrieve and delete named secrets held by the platform keystore.",
	}
	cmd.AddCommand(
		newKeyStoreCmd(cfg),
		newKeyRetrieveCmd(cfg),
		newKeyDeleteCmd(cfg),
		newKeyExistsCmd(cfg),
	)
	return cmd
}

func newKeyStoreCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store <key-id>",
		Short: "Store a secret under a key ID",
		Long: `Store a secret under a key ID, replacing any existing value.

Examples:
  keystore key store spend-key-1 --data AAECAw==
  keystore key store spend-key-1 --in ./secret.bin
  cat secret.bin | keystore key store spend-key-1 --in -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd)
			if err != nil {
				return err
			}

			c, err := cfg.CreateClient()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.StoreKey(cmd.Context(), args[0], data); err != nil {
				return err
			}
			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).
				PrintSuccess(fmt.Sprintf("Stored %s", args[0]))
		},
	}
	addInputFlags(cmd, "secret")
	return cmd
}

func newKeyRetrieveCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieve <key-id>",
		Short: "Retrieve the secret stored under a key ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cfg.CreateClient()
			if err != nil {
				return err
			}
			defer c.Close()

			data, found, err := c.RetrieveKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("key %s not found", args[0])
			}
			return writeOutput(cmd, cfg, "data", data)
		},
	}
	addOutputFlag(cmd, "the secret")
	return cmd
}

func newKeyDeleteCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete the secret stored under a key ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cfg.CreateClient()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.DeleteKey(cmd.Context(), args[0]); err != nil {
				return err
			}
			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).
				PrintSuccess(fmt.Sprintf("Deleted %s", args[0]))
		},
	}
}

func newKeyExistsCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <key-id>",
		Short: "Report whether a key ID holds a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cfg.CreateClient()
			if err != nil {
				return err
			}
			defer c.Close()

			exists, err := c.KeyExists(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintBool("exists", exists)
		},
	}
}
