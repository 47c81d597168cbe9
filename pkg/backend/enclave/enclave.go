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

// Package enclave implements the hardware-enclave backend: named secrets
// live in the platform credential item store, and the master key is sealed
// with ECIES to a P-256 wrap key held by a KeyProvider (a TPM 2.0 in
// production). The biometric wrap key is unusable until the presence gate
// passes.
package enclave

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend/itemstore"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/biometric"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/crypto/ecies"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/logging"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/presence"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/wrapkey"
)

// Name is the backend name reported in logs and metrics.
const Name = "enclave"

// UnlockReason is shown by verifiers that support a prompt message.
const UnlockReason = "Unlock your wallet"

var (
	// ErrItemStoreRequired is returned when Config.Items is nil.
	ErrItemStoreRequired = errors.New("enclave: item store required")

	// ErrKeyProviderRequired is returned when Config.Keys is nil.
	ErrKeyProviderRequired = errors.New("enclave: key provider required")
)

// Config configures the backend.
type Config struct {
	Items itemstore.Store
	Keys  KeyProvider

	// SealItems encrypts named secret data to the standard wrap key before
	// it reaches Items. Set it when Items is not an OS credential facility.
	SealItems bool

	Gate     *biometric.Gate
	Platform backend.Platform
	Logger   logging.Logger
	Random   io.Reader
}

// Backend is the hardware-enclave backend.
type Backend struct {
	items    itemstore.Store
	keys     KeyProvider
	registry *wrapkey.Registry[ecies.KeyAgreement]
	seal     bool
	gate     *biometric.Gate
	platform backend.Platform
	logger   logging.Logger
	random   io.Reader
	closed   atomic.Bool
}

// New creates a hardware-enclave backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Items == nil {
		return nil, ErrItemStoreRequired
	}
	if cfg.Keys == nil {
		return nil, ErrKeyProviderRequired
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Gate == nil {
		cfg.Gate = biometric.NewGate(presence.None{}, biometric.Config{Logger: cfg.Logger})
	}
	if cfg.Platform == "" {
		cfg.Platform = backend.CurrentPlatform()
	}
	if cfg.Random == nil {
		cfg.Random = rand.Reader
	}
	return &Backend{
		items:    cfg.Items,
		keys:     cfg.Keys,
		registry: wrapkey.NewRegistry[ecies.KeyAgreement](cfg.Keys),
		seal:     cfg.SealItems,
		gate:     cfg.Gate,
		platform: cfg.Platform,
		logger:   cfg.Logger.With(logging.String("backend", Name), logging.String("provider", cfg.Keys.Name())),
		random:   cfg.Random,
	}, nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Platform() backend.Platform { return b.platform }

func (b *Backend) Store(ctx context.Context, keyID string, data []byte) error {
	if b.closed.Load() {
		return backend.ErrClosed
	}
	if b.seal {
		key, err := b.registry.Resolve(ctx, backend.VariantStandard)
		if err != nil {
			return err
		}
		data, err = ecies.Encrypt(b.random, key.PublicKey(), data, itemAAD(keyID))
		if err != nil {
			return err
		}
	}
	return itemstore.Upsert(ctx, b.items, itemstore.Item{
		Service: backend.ServiceName,
		Account: keyID,
		Label:   backend.ItemLabel,
		Data:    data,
	})
}

func (b *Backend) Retrieve(ctx context.Context, keyID string) ([]byte, error) {
	if b.closed.Load() {
		return nil, backend.ErrClosed
	}
	item, err := b.items.Get(ctx, backend.ServiceName, keyID)
	if errors.Is(err, itemstore.ErrItemNotFound) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !b.seal {
		return item.Data, nil
	}
	return b.openItem(ctx, keyID, item.Data)
}

// itemAAD binds sealed item data to its key id.
func itemAAD(keyID string) []byte {
	return []byte(wrapkey.TagStandard + "/item/" + keyID)
}

func (b *Backend) openItem(ctx context.Context, keyID string, sealed []byte) ([]byte, error) {
	key, err := b.registry.Peek(ctx, backend.VariantStandard)
	if errors.Is(err, wrapkey.ErrNotFound) {
		return nil, backend.ErrWrapKeyMissing
	}
	if err != nil {
		return nil, err
	}
	data, err := ecies.Decrypt(key, sealed, itemAAD(keyID))
	if err != nil {
		if errors.Is(err, ecies.ErrDecrypt) || errors.Is(err, ecies.ErrCiphertextTooShort) {
			return nil, fmt.Errorf("%w: item %s: %v", backend.ErrInvalidCiphertext, keyID, err)
		}
		return nil, err
	}
	return data, nil
}

func (b *Backend) Delete(ctx context.Context, keyID string) error {
	if b.closed.Load() {
		return backend.ErrClosed
	}
	err := b.items.Delete(ctx, backend.ServiceName, keyID)
	if errors.Is(err, itemstore.ErrItemNotFound) {
		return nil
	}
	return err
}

func (b *Backend) Exists(ctx context.Context, keyID string) (bool, error) {
	if b.closed.Load() {
		return false, backend.ErrClosed
	}
	return b.items.Exists(ctx, backend.ServiceName, keyID)
}

// Seal encrypts plaintext to the variant's wrap key, creating the key on
// first use. Sealing never prompts; only the private half is gated.
func (b *Backend) Seal(ctx context.Context, variant backend.Variant, plaintext []byte) ([]byte, error) {
	if b.closed.Load() {
		return nil, backend.ErrClosed
	}
	tag, err := wrapkey.Tag(variant)
	if err != nil {
		return nil, err
	}
	key, err := b.registry.Resolve(ctx, variant)
	if err != nil {
		return nil, err
	}
	return ecies.Encrypt(b.random, key.PublicKey(), plaintext, []byte(tag))
}

func (b *Backend) Unseal(ctx context.Context, variant backend.Variant, sealed []byte) ([]byte, error) {
	if b.closed.Load() {
		return nil, backend.ErrClosed
	}
	tag, err := wrapkey.Tag(variant)
	if err != nil {
		return nil, err
	}
	key, err := b.registry.Peek(ctx, variant)
	if errors.Is(err, wrapkey.ErrNotFound) {
		return nil, backend.ErrWrapKeyMissing
	}
	if err != nil {
		return nil, err
	}

	if variant == backend.VariantBiometric {
		if err := b.gate.Require(ctx, UnlockReason); err != nil {
			logging.InfoCtx(ctx, b.logger, "Biometric unlock refused", logging.Error(err))
			return nil, err
		}
	}

	plaintext, err := ecies.Decrypt(key, sealed, []byte(tag))
	if err != nil {
		if errors.Is(err, ecies.ErrDecrypt) || errors.Is(err, ecies.ErrCiphertextTooShort) {
			return nil, fmt.Errorf("%w: %v", backend.ErrInvalidCiphertext, err)
		}
		return nil, err
	}
	return plaintext, nil
}

// Capabilities probes the key provider and the gate. Nothing is created.
func (b *Backend) Capabilities(ctx context.Context) backend.Capabilities {
	caps := backend.Capabilities{
		Platform:      b.platform,
		BiometricType: backend.BiometricNone,
	}
	if info, ok := b.keys.Probe(ctx); ok {
		caps.HasSecureHardware = info.SecureHardware
		caps.HasSecureEnclave = info.SecureEnclave
		caps.HasStrongBox = info.StrongBox
	}
	if kind, ok := b.gate.Probe(ctx); ok {
		caps.HasBiometrics = true
		caps.BiometricType = kind
	}
	return caps
}

// Close releases the key provider and the item store.
func (b *Backend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return errors.Join(b.keys.Close(), b.items.Close())
}

var _ backend.Backend = (*Backend)(nil)
