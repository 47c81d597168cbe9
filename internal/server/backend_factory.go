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

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/internal/config"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend/acl"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend/dpapi"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend/enclave"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend/itemstore"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend/keyring"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/biometric"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/logging"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/presence"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/storage"
)

// ErrBackendUnsupported is returned when the requested backend cannot run
// on this platform or build.
var ErrBackendUnsupported = errors.New("backend not supported on this platform")

// BackendFactoryConfig contains everything needed to construct a backend
type BackendFactoryConfig struct {
	Backend   config.BackendConfig
	Biometric config.BiometricConfig

	// Files is the data directory storage shared by protected secret
	// files, wrap key records, file-backed items and preferences.
	Files storage.Backend

	Logger logging.Logger

	// Verifier overrides the configured presence verifier.
	Verifier presence.Verifier
}

// Backend is a constructed backend plus the platform resources it
// depends on but does not own.
type Backend struct {
	backend.Backend

	// Type is the resolved backend type; never "auto".
	Type string

	closers []io.Closer
}

// Close closes the backend, then its platform resources.
func (b *Backend) Close() error {
	errs := []error{b.Backend.Close()}
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i].Close())
	}
	return errors.Join(errs...)
}

// DefaultBackendType returns the backend type "auto" resolves to on the
// running platform.
func DefaultBackendType() string {
	switch runtime.GOOS {
	case "darwin", "ios":
		return config.BackendACL
	case "windows":
		return config.BackendDPAPI
	default:
		return config.BackendKeyring
	}
}

// NewBackend creates the backend named by cfg.Backend.Type.
func NewBackend(ctx context.Context, cfg *BackendFactoryConfig) (*Backend, error) {
	if cfg == nil || cfg.Files == nil {
		return nil, fmt.Errorf("backend factory: data storage is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	backendType := cfg.Backend.Type
	auto := backendType == "" || backendType == config.BackendAuto
	if auto {
		backendType = DefaultBackendType()
	}

	result := &Backend{Type: backendType}
	fail := func(err error) (*Backend, error) {
		for i := len(result.closers) - 1; i >= 0; i-- {
			_ = result.closers[i].Close()
		}
		return nil, fmt.Errorf("failed to create %s backend: %w", backendType, err)
	}

	switch backendType {
	case config.BackendKeyring:
		secrets, err := newSecretStore(cfg, auto)
		if err != nil {
			return fail(err)
		}
		b, err := keyring.New(keyring.Config{Secrets: secrets, Logger: cfg.Logger})
		if err != nil {
			_ = secrets.Close()
			return fail(err)
		}
		result.Backend = b

	case config.BackendACL:
		items, err := credentialItems()
		if err != nil {
			return fail(err)
		}
		gate := newGate(ctx, cfg, result)
		b, err := acl.New(acl.Config{Items: items, Gate: gate, Logger: cfg.Logger})
		if err != nil {
			_ = items.Close()
			return fail(err)
		}
		result.Backend = b

	case config.BackendDPAPI:
		b, err := dpapi.New(dpapi.Config{
			Files:     cfg.Files,
			Protector: sessionProtector(cfg.Files),
			Logger:    cfg.Logger,
		})
		if err != nil {
			return fail(err)
		}
		result.Backend = b

	case config.BackendEnclave:
		provider, err := enclave.OpenTPM(enclave.TPMConfig{
			Device:       cfg.Backend.TPM.Device,
			UseSimulator: cfg.Backend.TPM.Simulator,
		}, cfg.Files, cfg.Logger)
		if err != nil {
			return fail(err)
		}
		b, err := newEnclave(ctx, cfg, result, provider)
		if err != nil {
			_ = provider.Close()
			return fail(err)
		}
		result.Backend = b

	case config.BackendSoftware:
		provider, err := enclave.NewSoftwareProvider(cfg.Files, []byte(cfg.Backend.Software.Password))
		if err != nil {
			return fail(err)
		}
		cfg.Logger.Warn("Software wrap keys are not hardware backed; use for development only")
		b, err := newEnclave(ctx, cfg, result, provider)
		if err != nil {
			_ = provider.Close()
			return fail(err)
		}
		result.Backend = b

	default:
		return fail(fmt.Errorf("unknown backend type %q", backendType))
	}

	cfg.Logger.Info("Backend initialized",
		logging.String("backend", result.Name()),
		logging.String("platform", string(result.Platform())),
		logging.Bool("auto", auto))
	return result, nil
}

func newEnclave(ctx context.Context, cfg *BackendFactoryConfig, result *Backend, keys enclave.KeyProvider) (*enclave.Backend, error) {
	return enclave.New(enclave.Config{
		Items:     itemstore.NewFiles(cfg.Files),
		Keys:      keys,
		SealItems: true,
		Gate:      newGate(ctx, cfg, result),
		Logger:    cfg.Logger,
	})
}

// newSecretStore opens the configured keyring. With auto selection an
// unreachable Secret Service falls back to go-keyring.
func newSecretStore(cfg *BackendFactoryConfig, auto bool) (keyring.SecretStore, error) {
	if cfg.Backend.Keyring.Store == config.KeyringGoKeyring {
		return keyring.NewGoKeyring(), nil
	}
	secrets, err := secretServiceStore()
	if err == nil {
		return secrets, nil
	}
	if !auto {
		return nil, err
	}
	cfg.Logger.Warn("Secret Service unavailable, falling back to go-keyring", logging.Error(err))
	return keyring.NewGoKeyring(), nil
}

// newGate builds the presence gate. Verifier resources are registered on
// result so they outlive the backend.
func newGate(ctx context.Context, cfg *BackendFactoryConfig, result *Backend) *biometric.Gate {
	verifier := cfg.Verifier
	if verifier == nil {
		verifier = newVerifier(ctx, cfg.Biometric.Verifier, cfg.Logger)
	}
	if closer, ok := verifier.(io.Closer); ok {
		result.closers = append(result.closers, closer)
	}
	return biometric.NewGate(verifier, biometric.Config{
		SessionTimeout:    cfg.Biometric.SessionTimeout,
		MaxFailedAttempts: cfg.Biometric.MaxFailedAttempts,
		LockoutDuration:   cfg.Biometric.LockoutDuration,
		Logger:            cfg.Logger,
	})
}

// newVerifier resolves the configured verifier. fprintd is only probed on
// Linux; anything unreachable degrades to no biometrics.
func newVerifier(ctx context.Context, name string, logger logging.Logger) presence.Verifier {
	if name == config.VerifierNone {
		return presence.None{}
	}
	if name == config.VerifierAuto && runtime.GOOS != "linux" {
		return presence.None{}
	}
	fp, err := presence.NewFprintd()
	if err != nil {
		logger.Warn("Fingerprint verifier unavailable", logging.Error(err))
		return presence.None{}
	}
	if kind, ok := fp.Available(ctx); ok {
		logger.Info("Fingerprint verifier available", logging.String("type", string(kind)))
	} else {
		logger.Info("No enrolled fingerprint reader found")
	}
	return fp
}
