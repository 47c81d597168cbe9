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
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// addInputFlags registers --data (base64) and --in (file, or - for stdin).
func addInputFlags(cmd *cobra.Command, what string) {
	cmd.Flags().String("data", "", what+", base64 encoded")
	cmd.Flags().String("in", "", "read "+what+" from a file (- for stdin)")
	cmd.MarkFlagsMutuallyExclusive("data", "in")
}

// readInput returns the bytes named by --data or --in.
func readInput(cmd *cobra.Command) ([]byte, error) {
	data, _ := cmd.Flags().GetString("data")
	in, _ := cmd.Flags().GetString("in")

	switch {
	case data != "":
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, usagef("--data is not valid base64: %v", err)
		}
		return decoded, nil
	case in == "-":
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return raw, nil
	case in != "":
		raw, err := os.ReadFile(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", in, err)
		}
		return raw, nil
	default:
		return nil, usagef("one of --data or --in is required")
	}
}

// addOutputFlag registers --out for commands that return secret bytes.
func addOutputFlag(cmd *cobra.Command, what string) {
	cmd.Flags().String("out", "", "write "+what+" to a file (mode 0600) instead of stdout")
}

// writeOutput writes data to --out, or prints it base64 encoded under field.
func writeOutput(cmd *cobra.Command, cfg *Config, field string, data []byte) error {
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintBytes(field, data)
	}
	if err := os.WriteFile(out, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	cfg.printVerbose("Wrote %d bytes to %s", len(data), out)
	return nil
}
