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

// Package keystore is the facade over the active platform backend. It
// validates arguments, serializes access per key id and around the master
// key, selects the wrap key variant from the biometric preference, and
// converts every failure into an *Error of a closed set of kinds.
//
// Basic usage:
//
//	ks, err := keystore.New(keystore.Config{
//	    Backend:     b,
//	    Preferences: preference.NewStore(settings),
//	    Logger:      logger,
//	})
//	sealed, err := ks.SealMasterKey(ctx, masterKey)
//	masterKey, err = ks.UnsealMasterKey(ctx, sealed)
//	if keystore.IsCancelled(err) {
//	    // fall back to the passphrase path
//	}
package keystore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/logging"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/metrics"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/preference"
)

// MasterKeyID is the key id callers store the sealed master key under.
const MasterKeyID = "pirate_wallet_master_key"

// Operation names used in errors, logs and metrics.
const (
	OpStoreKey             = "storeKey"
	OpRetrieveKey          = "retrieveKey"
	OpDeleteKey            = "deleteKey"
	OpKeyExists            = "keyExists"
	OpSealMasterKey        = "sealMasterKey"
	OpUnsealMasterKey      = "unsealMasterKey"
	OpGetCapabilities      = "getCapabilities"
	OpSetBiometricsEnabled = "setBiometricsEnabled"
	OpIsBiometricsEnabled  = "isBiometricsEnabled"
)

var (
	// ErrBackendRequired is returned by New when Config.Backend is nil.
	ErrBackendRequired = errors.New("keystore: backend required")

	// ErrPreferencesRequired is returned by New when Config.Preferences is nil.
	ErrPreferencesRequired = errors.New("keystore: preference store required")
)

// Config configures a Keystore.
type Config struct {
	Backend     backend.Backend
	Preferences *preference.Store
	Logger      logging.Logger
}

// Keystore is safe for concurrent use.
type Keystore struct {
	backend backend.Backend
	prefs   *preference.Store
	logger  logging.Logger

	keys   *keyLocks
	master sync.Mutex
}

// New creates a Keystore over cfg.Backend.
func New(cfg Config) (*Keystore, error) {
	if cfg.Backend == nil {
		return nil, ErrBackendRequired
	}
	if cfg.Preferences == nil {
		return nil, ErrPreferencesRequired
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &Keystore{
		backend: cfg.Backend,
		prefs:   cfg.Preferences,
		logger: cfg.Logger.With(
			logging.String("backend", cfg.Backend.Name()),
			logging.String("platform", string(cfg.Backend.Platform()))),
		keys: newKeyLocks(),
	}, nil
}

// Backend returns the active backend's name.
func (k *Keystore) Backend() string {
	return k.backend.Name()
}

// StoreKey writes data under keyID, replacing any existing record. data
// may be empty but not nil.
func (k *Keystore) StoreKey(ctx context.Context, keyID string, data []byte) (err error) {
	defer k.observe(ctx, OpStoreKey, metrics.OpStore, time.Now(), &err)

	if keyID == "" {
		return NewError(KindInvalidArgument, OpStoreKey, errors.New("keyId required"))
	}
	if data == nil {
		return NewError(KindInvalidArgument, OpStoreKey, errors.New("encryptedKey required"))
	}

	unlock := k.keys.Lock(keyID)
	defer unlock()

	if err := k.backend.Store(ctx, keyID, data); err != nil {
		return wrapBackendError(KindKeystore, OpStoreKey, err)
	}
	return nil
}

// RetrieveKey returns the record stored under keyID. found is false, with
// a nil error, when no record exists.
func (k *Keystore) RetrieveKey(ctx context.Context, keyID string) (data []byte, found bool, err error) {
	defer k.observe(ctx, OpRetrieveKey, metrics.OpRetrieve, time.Now(), &err)

	if keyID == "" {
		return nil, false, NewError(KindInvalidArgument, OpRetrieveKey, errors.New("keyId required"))
	}

	unlock := k.keys.Lock(keyID)
	defer unlock()

	data, err = k.backend.Retrieve(ctx, keyID)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapBackendError(KindKeystore, OpRetrieveKey, err)
	}
	return data, true, nil
}

// DeleteKey removes the record under keyID. Deleting an absent record
// succeeds.
func (k *Keystore) DeleteKey(ctx context.Context, keyID string) (err error) {
	defer k.observe(ctx, OpDeleteKey, metrics.OpDelete, time.Now(), &err)

	if keyID == "" {
		return NewError(KindInvalidArgument, OpDeleteKey, errors.New("keyId required"))
	}

	unlock := k.keys.Lock(keyID)
	defer unlock()

	if err := k.backend.Delete(ctx, keyID); err != nil && !errors.Is(err, backend.ErrNotFound) {
		return wrapBackendError(KindKeystore, OpDeleteKey, err)
	}
	return nil
}

// KeyExists reports whether a record is stored under keyID. It never
// prompts the user.
func (k *Keystore) KeyExists(ctx context.Context, keyID string) (exists bool, err error) {
	defer k.observe(ctx, OpKeyExists, metrics.OpExists, time.Now(), &err)

	if keyID == "" {
		return false, NewError(KindInvalidArgument, OpKeyExists, errors.New("keyId required"))
	}

	unlock := k.keys.Lock(keyID)
	defer unlock()

	exists, err = k.backend.Exists(ctx, keyID)
	if err != nil {
		return false, wrapBackendError(KindKeystore, OpKeyExists, err)
	}
	return exists, nil
}

// SealMasterKey wraps a 32 byte master key under the wrap key selected by
// the biometric preference, creating that wrap key on first use.
func (k *Keystore) SealMasterKey(ctx context.Context, masterKey []byte) (sealed []byte, err error) {
	defer k.observe(ctx, OpSealMasterKey, metrics.OpSeal, time.Now(), &err)

	if len(masterKey) != backend.MasterKeySize {
		return nil, NewError(KindInvalidArgument, OpSealMasterKey,
			fmt.Errorf("masterKey must be %d bytes, got %d", backend.MasterKeySize, len(masterKey)))
	}

	k.master.Lock()
	defer k.master.Unlock()

	variant, err := k.variant(ctx)
	if err != nil {
		return nil, wrapBackendError(KindSeal, OpSealMasterKey, err)
	}
	sealed, err = k.backend.Seal(ctx, variant, masterKey)
	if err != nil {
		return nil, wrapBackendError(KindSeal, OpSealMasterKey, err)
	}
	logging.DebugCtx(ctx, k.logger, "Sealed master key", logging.String("variant", variant.String()))
	return sealed, nil
}

// UnsealMasterKey unwraps sealed with the wrap key selected by the
// biometric preference. For the biometric variant it blocks on the
// presence prompt; a dismissed prompt returns an *Error matching
// ErrCancelled.
func (k *Keystore) UnsealMasterKey(ctx context.Context, sealed []byte) (masterKey []byte, err error) {
	defer k.observe(ctx, OpUnsealMasterKey, metrics.OpUnseal, time.Now(), &err)

	if len(sealed) == 0 {
		return nil, NewError(KindInvalidArgument, OpUnsealMasterKey, errors.New("sealedKey required"))
	}

	k.master.Lock()
	defer k.master.Unlock()

	variant, err := k.variant(ctx)
	if err != nil {
		return nil, wrapBackendError(KindUnseal, OpUnsealMasterKey, err)
	}
	masterKey, err = k.backend.Unseal(ctx, variant, sealed)
	if err != nil {
		return nil, wrapBackendError(KindUnseal, OpUnsealMasterKey, err)
	}
	return masterKey, nil
}

// Capabilities returns a fresh capability snapshot. It never prompts and
// has no persistent side effects.
func (k *Keystore) Capabilities(ctx context.Context) backend.Capabilities {
	start := time.Now()
	caps := k.backend.Capabilities(ctx)
	metrics.RecordOperation(metrics.OpCapabilities, k.backend.Name(), metrics.StatusSuccess, time.Since(start).Seconds())
	return caps
}

// SetBiometricsEnabled writes the biometric preference. Master keys sealed
// under the previous variant are not resealed.
func (k *Keystore) SetBiometricsEnabled(ctx context.Context, enabled bool) (err error) {
	defer k.observe(ctx, OpSetBiometricsEnabled, metrics.OpSetBiometrics, time.Now(), &err)

	if err := k.prefs.Set(ctx, enabled); err != nil {
		return wrapBackendError(KindKeystore, OpSetBiometricsEnabled, err)
	}
	logging.InfoCtx(ctx, k.logger, "Biometric preference changed", logging.Bool("enabled", enabled))
	return nil
}

// BiometricsEnabled reads the biometric preference.
func (k *Keystore) BiometricsEnabled(ctx context.Context) (enabled bool, err error) {
	defer k.observe(ctx, OpIsBiometricsEnabled, metrics.OpGetBiometrics, time.Now(), &err)

	enabled, err = k.prefs.Get(ctx)
	if err != nil {
		return false, wrapBackendError(KindKeystore, OpIsBiometricsEnabled, err)
	}
	return enabled, nil
}

// Close releases the backend.
func (k *Keystore) Close() error {
	return k.backend.Close()
}

func (k *Keystore) variant(ctx context.Context) (backend.Variant, error) {
	enabled, err := k.prefs.Get(ctx)
	if err != nil {
		return backend.VariantStandard, fmt.Errorf("read biometric preference: %w", err)
	}
	return backend.VariantFor(enabled), nil
}

// observe records metrics and logs failures. Key material is never logged.
func (k *Keystore) observe(ctx context.Context, op, metricOp string, start time.Time, errp *error) {
	duration := time.Since(start).Seconds()
	name := k.backend.Name()
	if *errp == nil {
		metrics.RecordOperation(metricOp, name, metrics.StatusSuccess, duration)
		return
	}
	metrics.RecordOperation(metricOp, name, metrics.StatusError, duration)
	metrics.RecordError(metricOp, name, errorType(*errp))

	if IsCancelled(*errp) {
		logging.InfoCtx(ctx, k.logger, "Operation cancelled by user", logging.String("operation", op))
		return
	}
	logging.WarnCtx(ctx, k.logger, "Operation failed",
		logging.String("operation", op),
		logging.Error(*errp))
}
