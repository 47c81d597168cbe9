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

package enclave

import (
	"context"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/crypto/ecies"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/wrapkey"
)

// ProviderInfo describes the facility holding the wrap keys.
type ProviderInfo struct {
	SecureHardware bool
	SecureEnclave  bool
	StrongBox      bool
}

// KeyProvider holds the P-256 wrap keys. Private halves never leave the
// provider; unsealing runs the key agreement inside it.
type KeyProvider interface {
	wrapkey.Factory[ecies.KeyAgreement]

	// Name identifies the provider in logs and metrics.
	Name() string

	// Probe reports the provider's protection level without creating keys.
	// ok is false when the facility cannot be reached.
	Probe(ctx context.Context) (info ProviderInfo, ok bool)

	// Close releases provider resources.
	Close() error
}
