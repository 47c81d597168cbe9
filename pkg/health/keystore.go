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

package health

import (
	"context"
	"fmt"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/metrics"
)

// ProbeKeyID is looked up by StoreCheck. It is never written.
const ProbeKeyID = "__health_probe"

// Store is the part of the keystore a readiness check touches. Both
// calls are side-effect free and never prompt the user.
type Store interface {
	Backend() string
	KeyExists(ctx context.Context, keyID string) (bool, error)
	Capabilities(ctx context.Context) backend.Capabilities
}

// StoreCheck reports whether the secure store answers lookups. A store
// whose biometric variant has no presence check reports degraded.
func StoreCheck(store Store) CheckFunc {
	return func(ctx context.Context) CheckResult {
		name := "backend:" + store.Backend()
		if _, err := store.KeyExists(ctx, ProbeKeyID); err != nil {
			metrics.SetBackendHealth(store.Backend(), false)
			return CheckResult{
				Name:    name,
				Status:  StatusUnhealthy,
				Message: "secure storage unavailable",
				Error:   err.Error(),
			}
		}
		metrics.SetBackendHealth(store.Backend(), true)

		caps := store.Capabilities(ctx)
		if caps.BiometricVariantDegraded {
			return CheckResult{
				Name:    name,
				Status:  StatusDegraded,
				Message: fmt.Sprintf("%s: biometric variant has no presence check", caps.Platform),
			}
		}
		return CheckResult{
			Name:    name,
			Status:  StatusHealthy,
			Message: fmt.Sprintf("%s ready", caps.Platform),
		}
	}
}
