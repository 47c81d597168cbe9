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

// Package acl implements the credential-manager backend. Named secrets and
// wrap secrets are generic credential items; each wrap secret records its
// access control list at creation and the biometric one is only released
// after the presence gate passes.
package acl

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
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/envelope"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/logging"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/presence"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/wrapkey"
)

// Name is the backend name reported in logs and metrics.
const Name = "acl"

// UnlockReason is shown by verifiers that support a prompt message.
const UnlockReason = "Unlock your wallet"

// wrapSecretLabel labels wrap secret items.
const wrapSecretLabel = "Pirate Wallet Master Key"

// ErrItemStoreRequired is returned when Config.Items is nil.
var ErrItemStoreRequired = errors.New("acl: item store required")

// Config configures the backend.
type Config struct {
	Items    itemstore.Store
	Gate     *biometric.Gate
	Platform backend.Platform
	Logger   logging.Logger
	Random   io.Reader
}

// Backend is the credential-manager backend.
type Backend struct {
	items    itemstore.Store
	registry *wrapkey.Registry[[]byte]
	gate     *biometric.Gate
	platform backend.Platform
	logger   logging.Logger
	random   io.Reader
	closed   atomic.Bool
}

// New creates a credential-manager backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Items == nil {
		return nil, ErrItemStoreRequired
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
	b := &Backend{
		items:    cfg.Items,
		gate:     cfg.Gate,
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
	return b.writeItem(ctx, itemstore.Item{
		Service: backend.ServiceName,
		Account: keyID,
		Label:   backend.ItemLabel,
		Data:    data,
		Access:  itemstore.AccessNone,
	})
}

func (b *Backend) Retrieve(ctx context.Context, keyID string) ([]byte, error) {
	if b.closed.Load() {
		return nil, backend.ErrClosed
	}
	item, err := b.readItem(ctx, backend.ServiceName, keyID)
	if err != nil {
		return nil, err
	}
	return item.Data, nil
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

// Seal encrypts plaintext under the variant's wrap secret with the tag as
// associated data. The wrap secret is created on first use; sealing reads
// the secret generated in this process, so it never prompts.
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
	return envelope.Seal(b.random, envelope.AESGCM, secret, plaintext, []byte(tag))
}

func (b *Backend) Unseal(ctx context.Context, variant backend.Variant, sealed []byte) ([]byte, error) {
	if b.closed.Load() {
		return nil, backend.ErrClosed
	}
	tag, err := wrapkey.Tag(variant)
	if err != nil {
		return nil, err
	}

	// Gated secrets are read from the store on every unseal so the ACL is
	// enforced each time.
	var secret []byte
	if variant == backend.VariantBiometric {
		item, err := b.readItem(ctx, wrapkey.Service, tag)
		if errors.Is(err, backend.ErrNotFound) {
			return nil, backend.ErrWrapKeyMissing
		}
		if err != nil {
			return nil, err
		}
		secret = item.Data
	} else {
		secret, err = b.registry.Peek(ctx, variant)
		if errors.Is(err, wrapkey.ErrNotFound) {
			return nil, backend.ErrWrapKeyMissing
		}
		if err != nil {
			return nil, err
		}
	}

	plaintext, err := envelope.Open(secret, sealed, []byte(tag))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalidCiphertext, err)
	}
	return plaintext, nil
}

// Capabilities reports the gate's sensor. The credential manager is a
// software facility, so no hardware flags are set.
func (b *Backend) Capabilities(ctx context.Context) backend.Capabilities {
	caps := backend.Capabilities{
		Platform:      b.platform,
		BiometricType: backend.BiometricNone,
	}
	if kind, ok := b.gate.Probe(ctx); ok {
		caps.HasBiometrics = true
		caps.BiometricType = kind
	}
	return caps
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
	return b.items.Close()
}

// writeItem stores item. When an item already exists with a different
// ACL it is deleted and recreated, since the ACL is fixed at creation.
func (b *Backend) writeItem(ctx context.Context, item itemstore.Item) error {
	existing, err := b.items.Get(ctx, item.Service, item.Account)
	switch {
	case errors.Is(err, itemstore.ErrItemNotFound):
		return itemstore.Upsert(ctx, b.items, item)
	case err != nil:
		return err
	case existing.Access != item.Access:
		if err := b.items.Delete(ctx, item.Service, item.Account); err != nil && !errors.Is(err, itemstore.ErrItemNotFound) {
			return err
		}
		return b.items.Add(ctx, item)
	default:
		return b.items.Update(ctx, item)
	}
}

// readItem enforces the item's ACL before returning it.
func (b *Backend) readItem(ctx context.Context, service, account string) (itemstore.Item, error) {
	item, err := b.items.Get(ctx, service, account)
	if errors.Is(err, itemstore.ErrItemNotFound) {
		return itemstore.Item{}, backend.ErrNotFound
	}
	if err != nil {
		return itemstore.Item{}, err
	}
	if item.Access == itemstore.AccessBiometryCurrentSet {
		if err := b.gate.Require(ctx, UnlockReason); err != nil {
			logging.InfoCtx(ctx, b.logger, "Biometric unlock refused", logging.Error(err))
			return itemstore.Item{}, err
		}
	}
	return item, nil
}

// secretFactory creates wrap secrets as credential items. Lookup reads
// without the gate so sealing never prompts; Unseal re-reads gated secrets
// through readItem.
type secretFactory struct {
	b *Backend
}

func accessFor(variant backend.Variant) itemstore.Access {
	if variant == backend.VariantBiometric {
		return itemstore.AccessBiometryCurrentSet
	}
	return itemstore.AccessNone
}

func (f *secretFactory) Lookup(ctx context.Context, tag string) ([]byte, bool, error) {
	item, err := f.b.items.Get(ctx, wrapkey.Service, tag)
	if errors.Is(err, itemstore.ErrItemNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return item.Data, true, nil
}

func (f *secretFactory) Create(ctx context.Context, tag string, variant backend.Variant) ([]byte, error) {
	secret, err := envelope.NewKey(f.b.random)
	if err != nil {
		return nil, err
	}
	err = f.b.writeItem(ctx, itemstore.Item{
		Service: wrapkey.Service,
		Account: tag,
		Label:   wrapSecretLabel,
		Data:    secret,
		Access:  accessFor(variant),
	})
	if err != nil {
		return nil, err
	}
	f.b.logger.Info("Created wrap secret",
		logging.String("tag", tag),
		logging.String("access", accessFor(variant).String()))
	return secret, nil
}

var _ backend.Backend = (*Backend)(nil)
