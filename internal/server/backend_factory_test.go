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
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/internal/config"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend/enclave"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend/itemstore"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/presence"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/storage"
)

type closingVerifier struct {
	presence.Func
	closed atomic.Int32
}

func (v *closingVerifier) Close() error {
	v.closed.Add(1)
	return nil
}

func softwareConfig(files storage.Backend) *BackendFactoryConfig {
	cfg := config.Default()
	cfg.Backend.Type = config.BackendSoftware
	cfg.Backend.Software.Password = "correct horse battery staple"
	return &BackendFactoryConfig{
		Backend:   cfg.Backend,
		Biometric: cfg.Biometric,
		Files:     files,
		Verifier:  presence.None{},
	}
}

func TestNewBackend_RequiresStorage(t *testing.T) {
	_, err := NewBackend(context.Background(), nil)
	assert.Error(t, err)

	_, err = NewBackend(context.Background(), &BackendFactoryConfig{})
	assert.Error(t, err)
}

func TestNewBackend_UnknownType(t *testing.T) {
	cfg := softwareConfig(storage.NewMemory())
	cfg.Backend.Type = "strongbox"
	_, err := NewBackend(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend type")
}

func TestDefaultBackendType(t *testing.T) {
	want := map[string]string{
		"darwin":  config.BackendACL,
		"windows": config.BackendDPAPI,
		"linux":   config.BackendKeyring,
	}
	if expected, ok := want[runtime.GOOS]; ok {
		assert.Equal(t, expected, DefaultBackendType())
	}
	assert.NotEqual(t, config.BackendAuto, DefaultBackendType())
}

func TestNewBackend_Software(t *testing.T) {
	ctx := context.Background()
	b, err := NewBackend(ctx, softwareConfig(storage.NewMemory()))
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, config.BackendSoftware, b.Type)
	assert.Equal(t, enclave.Name, b.Name())

	sealed, err := b.Seal(ctx, backend.VariantStandard, make([]byte, backend.MasterKeySize))
	require.NoError(t, err)
	plain, err := b.Unseal(ctx, backend.VariantStandard, sealed)
	require.NoError(t, err)
	assert.Len(t, plain, backend.MasterKeySize)

	caps := b.Capabilities(ctx)
	assert.False(t, caps.HasSecureHardware)
}

func TestNewBackend_SoftwareRequiresPassword(t *testing.T) {
	cfg := softwareConfig(storage.NewMemory())
	cfg.Backend.Software.Password = ""
	_, err := NewBackend(context.Background(), cfg)
	assert.ErrorIs(t, err, enclave.ErrPasswordRequired)
}

func TestNewBackend_SoftwareKeysPersist(t *testing.T) {
	ctx := context.Background()
	files := storage.NewMemory()

	first, err := NewBackend(ctx, softwareConfig(files))
	require.NoError(t, err)
	master := []byte("0123456789abcdef0123456789abcdef")
	sealed, err := first.Seal(ctx, backend.VariantStandard, master)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewBackend(ctx, softwareConfig(files))
	require.NoError(t, err)
	defer second.Close()
	plain, err := second.Unseal(ctx, backend.VariantStandard, sealed)
	require.NoError(t, err)
	assert.Equal(t, master, plain)
}

func TestNewBackend_SoftwareSealsNamedSecrets(t *testing.T) {
	ctx := context.Background()
	files := storage.NewMemory()
	secret := []byte("spend key seed material")

	first, err := NewBackend(ctx, softwareConfig(files))
	require.NoError(t, err)
	require.NoError(t, first.Store(ctx, "spend-key-1", secret))
	require.NoError(t, first.Close())

	item, err := itemstore.NewFiles(files).Get(ctx, backend.ServiceName, "spend-key-1")
	require.NoError(t, err)
	assert.NotContains(t, string(item.Data), string(secret))

	second, err := NewBackend(ctx, softwareConfig(files))
	require.NoError(t, err)
	defer second.Close()
	got, err := second.Retrieve(ctx, "spend-key-1")
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}

func TestNewBackend_DPAPI(t *testing.T) {
	ctx := context.Background()
	cfg := softwareConfig(storage.NewMemory())
	cfg.Backend.Type = config.BackendDPAPI

	b, err := NewBackend(ctx, cfg)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Store(ctx, "spend-key-1", []byte("ciphertext")))
	got, err := b.Retrieve(ctx, "spend-key-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext"), got)
}

func TestNewBackend_VerifierClosedWithBackend(t *testing.T) {
	verifier := &closingVerifier{Func: presence.Always(backend.BiometricFingerprint, presence.OutcomeSuccess)}
	cfg := softwareConfig(storage.NewMemory())
	cfg.Verifier = verifier

	b, err := NewBackend(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, b.Capabilities(context.Background()).HasBiometrics)

	require.NoError(t, b.Close())
	assert.Equal(t, int32(1), verifier.closed.Load())
}

func TestNewBackend_ACLUnsupported(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("credential item store available on this platform")
	}
	verifier := &closingVerifier{}
	cfg := softwareConfig(storage.NewMemory())
	cfg.Backend.Type = config.BackendACL
	cfg.Verifier = verifier

	_, err := NewBackend(context.Background(), cfg)
	assert.True(t, errors.Is(err, ErrBackendUnsupported), "got %v", err)
	assert.Equal(t, int32(0), verifier.closed.Load())
}

func TestNewVerifier_None(t *testing.T) {
	v := newVerifier(context.Background(), config.VerifierNone, nil)
	assert.Equal(t, presence.None{}, v)
}
