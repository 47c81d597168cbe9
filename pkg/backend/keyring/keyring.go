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

// Package keyring implements the keyring-service backend. Named secrets
// and per-variant wrap secrets are kept in a SecretStore; the master key is
// sealed with ChaCha20-Poly1305 under the wrap secret.
//
// The keyring has no presence check, so the biometric variant is reported
// as degraded.
package keyring

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/envelope"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/logging"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/wrapkey"
)

// Name is the backend name reported in logs and metrics.
const Name = "keyring"

// ErrSecretStoreRequired is returned when Config.Secrets is nil.
var ErrSecretStoreRequired = errors.New("keyring: secret store required")

// Config configures the backend.
type Config struct {
	Secrets  SecretStore
	Platform backend.Platform
	Logger   logging.Logger
	Random   io.Reader
}

// Backend is the keyring-service backend.
type Backend struct {
	secrets  SecretStore
	registry *wrapkey.Registry[[]byte]
	platform backend.Platform
	logger   logging.Logger
	random   io.Reader
	closed   atomic.Bool
}

// New creates a keyring-service backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Secrets == nil {
		return nil, ErrSecretStoreRequired
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Platform == "" {
		cfg.Platform = backend.CurrentPlatform()
	}
	if cfg.Random == nil {
		cfg.Random = rand.Reader
	}
	b := &Backend{
		secrets:  cfg.Secrets,
		platform: cfg.Platform,
		logger:   cfg.Logger.With(logging.String("backend", Name)),
		random:   cfg.Random,
	}
	b.registry = wrapkey.NewRegistry[[]byte](&secretFactory{b: b})
	return b, nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Platform() backend.Platform { return b.platform }

func (b *Backend) Store(ctx context.Context, keyID string, data []byte) error {
	if b.closed.Load() {
		return backend.ErrClosed
	}
	return b.secrets.Set(ctx, backend.ServiceName, keyID, data)
}

func (b *Backend) Retrieve(ctx context.Context, keyID string) ([]byte, error) {
	if b.closed.Load() {
		return nil, backend.ErrClosed
	}
	data, err := b.secrets.Get(ctx, backend.ServiceName, keyID)
	if errors.Is(err, ErrSecretNotFound) {
		return nil, backend.ErrNotFound
	}
	return data, err
}

func (b *Backend) Delete(ctx context.Context, keyID string) error {
	if b.closed.Load() {
		return backend.ErrClosed
	}
	err := b.secrets.Delete(ctx, backend.ServiceName, keyID)
	if errors.Is(err, ErrSecretNotFound) {
		return nil
	}
	return err
}

func (b *Backend) Exists(ctx context.Context, keyID string) (bool, error) {
	if b.closed.Load() {
		return false, backend.ErrClosed
	}
	return b.secrets.Exists(ctx, backend.ServiceName, keyID)
}

func (b *Backend) Seal(ctx context.Context, variant backend.Variant, plaintext []byte) ([]byte, error) {
	if b.closed.Load() {
		return nil, backend.ErrClosed
	}
	tag, err := wrapkey.Tag(variant)
	if err != nil {
		return nil, err
	}
	secret, err := b.registry.Resolve(ctx, variant)
	if err != nil {
		return nil, err
	}
	return envelope.Seal(b.random, envelope.ChaCha20Poly1305, secret, plaintext, []byte(tag))
}

func (b *Backend) Unseal(ctx context.Context, variant backend.Variant, sealed []byte) ([]byte, error) {
	if b.closed.Load() {
		return nil, backend.ErrClosed
	}
	tag, err := wrapkey.Tag(variant)
	if err != nil {
		return nil, err
	}
	secret, err := b.registry.Peek(ctx, variant)
	if errors.Is(err, wrapkey.ErrNotFound) {
		return nil, backend.ErrWrapKeyMissing
	}
	if err != nil {
		return nil, err
	}
	plaintext, err := envelope.Open(secret, sealed, []byte(tag))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalidCiphertext, err)
	}
	return plaintext, nil
}

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
	for _, secret := range b.registry.Cached() {
		for i := range secret {
			secret[i] = 0
		}
	}
	return b.secrets.Close()
}

type secretFactory struct {
	b *Backend
}

func (f *secretFactory) Lookup(ctx context.Context, tag string) ([]byte, bool, error) {
	secret, err := f.b.secrets.Get(ctx, wrapkey.Service, tag)
	if errors.Is(err, ErrSecretNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(secret) != envelope.KeySize {
		return nil, false, fmt.Errorf("%w: wrap secret %s has %d bytes", envelope.ErrKeySize, tag, len(secret))
	}
	return secret, true, nil
}

func (f *secretFactory) Create(ctx context.Context, tag string, variant backend.Variant) ([]byte, error) {
	secret, err := envelope.NewKey(f.b.random)
	if err != nil {
		return nil, err
	}
	if err := f.b.secrets.Set(ctx, wrapkey.Service, tag, secret); err != nil {
		return nil, err
	}
	f.b.logger.Info("Created wrap secret", logging.String("tag", tag))
	return secret, nil
}

var _ backend.Backend = (*Backend)(nil)
