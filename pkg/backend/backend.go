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

// Package backend defines the contract every platform secure backend
// implements. A backend stores opaque named secrets in the operating
// system's credential facility and seals the wallet master key under a
// platform-resident wrap key.
//
// Exactly one backend is active per process. internal/server.NewBackend
// picks it from configuration, with "auto" resolving by operating system,
// and it is injected into the keystore facade. Nothing above this package
// branches on the platform.
package backend

import "context"

// Backend is a platform secure backend.
// All implementations must be safe for concurrent use.
type Backend interface {
	// Name returns the short backend identifier used in logs and metrics.
	Name() string

	// Platform returns the platform this backend targets.
	Platform() Platform

	// Store writes data under keyID, replacing any existing record.
	Store(ctx context.Context, keyID string, data []byte) error

	// Retrieve returns the record stored under keyID.
	// Returns ErrNotFound if no record exists.
	Retrieve(ctx context.Context, keyID string) ([]byte, error)

	// Delete removes the record stored under keyID.
	// Deleting an absent record is not an error.
	Delete(ctx context.Context, keyID string) error

	// Exists reports whether a record is stored under keyID.
	// It must never trigger a user presence prompt.
	Exists(ctx context.Context, keyID string) (bool, error)

	// Seal wraps plaintext under the wrap key of the given variant,
	// creating the wrap key on first use.
	Seal(ctx context.Context, variant Variant, plaintext []byte) ([]byte, error)

	// Unseal unwraps sealed with the wrap key of the given variant. For a
	// biometric variant on a platform with a biometric gate this blocks
	// until the user completes or cancels the prompt.
	Unseal(ctx context.Context, variant Variant, sealed []byte) ([]byte, error)

	// Capabilities probes hardware and biometric availability. It has no
	// persistent side effects and never prompts the user.
	Capabilities(ctx context.Context) Capabilities

	// Close releases native handles held by the backend.
	Close() error
}
