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
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/client"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/keystore"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message. Keystore errors carry their wire code.
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		out := map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
		if keystore.KindOf(err) != 0 {
			out["code"] = keystore.ErrorCodeOf(err)
		}
		return p.printJSON(out)
	default:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	}
}

// PrintBytes prints binary data base64 encoded under field
func (p *Printer) PrintBytes(field string, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			field: encoded,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, encoded)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintBool prints a boolean answer under field
func (p *Printer) PrintBool(field string, value bool) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			field: value,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, value)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintCapabilities prints the daemon's capability report
func (p *Printer) PrintCapabilities(caps backend.Capabilities) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(caps)
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Platform:             %s\n", caps.Platform)
		fmt.Fprintf(p.writer, "Secure hardware:      %t\n", caps.HasSecureHardware)
		fmt.Fprintf(p.writer, "StrongBox:            %t\n", caps.HasStrongBox)
		fmt.Fprintf(p.writer, "Secure Enclave:       %t\n", caps.HasSecureEnclave)
		fmt.Fprintf(p.writer, "Biometrics:           %t\n", caps.HasBiometrics)
		if caps.HasBiometrics {
			fmt.Fprintf(p.writer, "Biometric type:       %s\n", caps.BiometricType)
		}
		if caps.BiometricVariantDegraded {
			fmt.Fprintln(p.writer, "Biometric unlock:     degraded (no presence check)")
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintHealth prints the daemon health and its channel methods
func (p *Printer) PrintHealth(health *client.HealthResponse, methods []string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  health.Status,
			"message": health.Message,
			"uptime":  health.Uptime,
			"methods": methods,
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Status:  %s\n", health.Status)
		if health.Uptime != "" {
			fmt.Fprintf(p.writer, "Uptime:  %s\n", health.Uptime)
		}
		fmt.Fprintf(p.writer, "Methods: %s\n", strings.Join(methods, ", "))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
