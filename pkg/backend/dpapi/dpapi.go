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

// Package dpapi implements the session-protection backend. Named secrets
// are files protected by a Protector bound to the user session; the master
// key is sealed by the same protector with the wrap key tag as entropy.
//
// There is no presence check on this platform. The biometric variant
// keeps its own tag, so blobs never open under the other variant, but
// Capabilities reports it as degraded.
package dpapi

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/logging"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/storage"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/wrapkey"
)

// Name is the backend name reported in logs and metrics.
const Name = "dpapi"

var (
	// ErrStorageRequired is returned when Config.Files is nil.
	ErrStorageRequired = errors.New("dpapi: storage required")

	// ErrProtectorRequired is returned when Config.Protector is nil.
	ErrProtectorRequired = errors.New("dpapi: protector required")
)

// Config configures the backend.
type Config struct {
	// Files holds keystore/key_<hex>.bin files.
	Files     storage.Backend
	Protector Protector
	Platform  backend.Platform
	Logger    logging.Logger
}

// Backend is the session-protection backend.
type Backend struct {
	files     storage.Backend
	protector Protector
	platform  backend.Platform
	logger    logging.Logger
	closed    atomic.Bool
}

// New creates a session-protection backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Files == nil {
		return nil, ErrStorageRequired
	}
	if cfg.Protector == nil {
		return nil, ErrProtectorRequired
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Platform == "" {
		cfg.Platform = backend.CurrentPlatform()
	}
	return &Backend{
		files:     cfg.Files,
		protector: cfg.Protector,
		platform:  cfg.Platform,
		logger: cfg.Logger.With(
			logging.String("backend", Name),
			logging.String("protector", cfg.Protector.Name())),
	}, nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Platform() backend.Platform { return b.platform }

func (b *Backend) Store(ctx context.Context, keyID string, data []byte) error {
	if err := b.check(ctx); err != nil {
		return err
	}
	protected, err := b.protector.Protect(data, nil)
	if err != nil {
		return err
	}
	return storage.PutSecret(b.files, keyID, protected)
}

func (b *Backend) Retrieve(ctx context.Context, keyID string) ([]byte, error) {
	if err := b.check(ctx); err != nil {
		return nil, err
	}
	protected, err := storage.GetSecret(b.files, keyID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b.protector.Unprotect(protected, nil)
}

func (b *Backend) Delete(ctx context.Context, keyID string) error {
	if err := b.check(ctx); err != nil {
		return err
	}
	err := storage.DeleteSecret(b.files, keyID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

func (b *Backend) Exists(ctx context.Context, keyID string) (bool, error) {
	if err := b.check(ctx); err != nil {
		return false, err
	}
	return storage.SecretExists(b.files, keyID)
}

func (b *Backend) Seal(ctx context.Context, variant backend.Variant, plaintext []byte) ([]byte, error) {
	if err := b.check(ctx); err != nil {
		return nil, err
	}
	tag, err := wrapkey.Tag(variant)
	if err != nil {
		return nil, err
	}
	if variant == backend.VariantBiometric {
		b.logger.Warn("Sealing biometric variant without a presence check")
	}
	return b.protector.Protect(plaintext, []byte(tag))
}

func (b *Backend) Unseal(ctx context.Context, variant backend.Variant, sealed []byte) ([]byte, error) {
	if err := b.check(ctx); err != nil {
		return nil, err
	}
	tag, err := wrapkey.Tag(variant)
	if err != nil {
		return nil, err
	}
	plaintext, err := b.protector.Unprotect(sealed, []byte(tag))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrInvalidCiphertext, err)
	}
	return plaintext, nil
}

// Capabilities never reports hardware or biometrics here.
func (b *Backend) Capabilities(ctx context.Context) backend.Capabilities {
	return backend.Capabilities{
		BiometricVariantDegraded: true,
		BiometricType:            backend.BiometricNone,
		Platform:                 b.platform,
	}
}

func (b *Backend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.files.Close()
}

func (b *Backend) check(ctx context.Context) error {
	if b.closed.Load() {
		return backend.ErrClosed
	}
	return ctx.Err()
}

var _ backend.Backend = (*Backend)(nil)
