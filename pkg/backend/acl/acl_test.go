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

package acl

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend/backendtest"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend/itemstore"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/biometric"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/envelope"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/presence"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/wrapkey"
)

func newTestBackend(t *testing.T, items itemstore.Store, verifier presence.Verifier) *Backend {
	t.Helper()
	b, err := New(Config{
		Items:    items,
		Gate:     biometric.NewGate(verifier, biometric.Config{}),
		Platform: backend.PlatformMacOS,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackendContract(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		return newTestBackend(t, itemstore.NewMemory(), presence.Always(backend.BiometricFingerprint, presence.OutcomeSuccess))
	}, backendtest.Options{})
}

func TestNew_RequiresItemStore(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrItemStoreRequired)
}

func TestSeal_WrapSecretACL(t *testing.T) {
	items := itemstore.NewMemory()
	b := newTestBackend(t, items, presence.Always(backend.BiometricFace, presence.OutcomeSuccess))
	ctx := context.Background()

	_, err := b.Seal(ctx, backend.VariantStandard, backendtest.TestMasterKey(1))
	require.NoError(t, err)
	_, err = b.Seal(ctx, backend.VariantBiometric, backendtest.TestMasterKey(2))
	require.NoError(t, err)

	std, err := items.Get(ctx, wrapkey.Service, wrapkey.TagStandard)
	require.NoError(t, err)
	assert.Equal(t, itemstore.AccessNone, std.Access)
	assert.Len(t, std.Data, envelope.KeySize)

	bio, err := items.Get(ctx, wrapkey.Service, wrapkey.TagBiometric)
	require.NoError(t, err)
	assert.Equal(t, itemstore.AccessBiometryCurrentSet, bio.Access)
	assert.NotEqual(t, std.Data, bio.Data)
}

func TestSeal_EnvelopeFormat(t *testing.T) {
	b := newTestBackend(t, itemstore.NewMemory(), presence.None{})
	sealed, err := b.Seal(context.Background(), backend.VariantStandard, backendtest.TestMasterKey(3))
	require.NoError(t, err)

	alg, err := envelope.Inspect(sealed)
	require.NoError(t, err)
	assert.Equal(t, envelope.AESGCM, alg)
	assert.Len(t, sealed, backend.MasterKeySize+envelope.Overhead)
}

func TestWriteItem_RecreatesOnACLChange(t *testing.T) {
	items := itemstore.NewMemory()
	b := newTestBackend(t, items, presence.None{})
	ctx := context.Background()

	require.NoError(t, items.Add(ctx, itemstore.Item{
		Service: backend.ServiceName,
		Account: "wallet",
		Data:    []byte("old"),
		Access:  itemstore.AccessBiometryCurrentSet,
	}))

	require.NoError(t, b.Store(ctx, "wallet", []byte("new")))

	item, err := items.Get(ctx, backend.ServiceName, "wallet")
	require.NoError(t, err)
	assert.Equal(t, itemstore.AccessNone, item.Access)
	assert.Equal(t, []byte("new"), item.Data)
	assert.Equal(t, backend.ItemLabel, item.Label)
}

func TestRetrieve_GatedItemRequiresPresence(t *testing.T) {
	items := itemstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, items.Add(ctx, itemstore.Item{
		Service: backend.ServiceName,
		Account: "gated",
		Data:    []byte("secret"),
		Access:  itemstore.AccessBiometryCurrentSet,
	}))

	cancelled := newTestBackend(t, items, presence.Always(backend.BiometricFingerprint, presence.OutcomeCancelled))
	_, err := cancelled.Retrieve(ctx, "gated")
	assert.ErrorIs(t, err, backend.ErrUserCancelled)

	none := newTestBackend(t, items, presence.None{})
	_, err = none.Retrieve(ctx, "gated")
	assert.ErrorIs(t, err, backend.ErrNotAvailable)

	ok := newTestBackend(t, items, presence.Always(backend.BiometricFingerprint, presence.OutcomeSuccess))
	data, err := ok.Retrieve(ctx, "gated")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), data)
}

func TestUnseal_BiometricPromptsEveryTime(t *testing.T) {
	var prompts atomic.Int32
	verifier := presence.Func{
		Type: backend.BiometricFingerprint,
		Fn: func(ctx context.Context, reason string) (presence.Outcome, error) {
			prompts.Add(1)
			assert.Equal(t, UnlockReason, reason)
			return presence.OutcomeSuccess, nil
		},
	}
	b := newTestBackend(t, itemstore.NewMemory(), verifier)
	ctx := context.Background()
	key := backendtest.TestMasterKey(4)

	sealed, err := b.Seal(ctx, backend.VariantBiometric, key)
	require.NoError(t, err)
	assert.Equal(t, int32(0), prompts.Load())

	for i := 0; i < 3; i++ {
		got, err := b.Unseal(ctx, backend.VariantBiometric, sealed)
		require.NoError(t, err)
		assert.Equal(t, key, got)
	}
	assert.Equal(t, int32(3), prompts.Load())
}

func TestUnseal_StandardNeverPrompts(t *testing.T) {
	verifier := presence.Func{
		Type: backend.BiometricFingerprint,
		Fn: func(ctx context.Context, reason string) (presence.Outcome, error) {
			t.Fatal("standard unseal must not prompt")
			return presence.OutcomeFailed, nil
		},
	}
	b := newTestBackend(t, itemstore.NewMemory(), verifier)
	ctx := context.Background()

	sealed, err := b.Seal(ctx, backend.VariantStandard, backendtest.TestMasterKey(5))
	require.NoError(t, err)
	_, err = b.Unseal(ctx, backend.VariantStandard, sealed)
	require.NoError(t, err)
}

func TestUnseal_MissingWrapSecret(t *testing.T) {
	items := itemstore.NewMemory()
	b := newTestBackend(t, items, presence.Always(backend.BiometricFace, presence.OutcomeSuccess))
	ctx := context.Background()

	for _, variant := range []backend.Variant{backend.VariantStandard, backend.VariantBiometric} {
		_, err := b.Unseal(ctx, variant, make([]byte, 64))
		assert.ErrorIs(t, err, backend.ErrWrapKeyMissing, variant.String())
	}
	assert.Equal(t, 0, items.Len())
}

func TestWrapSecretSurvivesRestart(t *testing.T) {
	items := itemstore.NewMemory()
	ctx := context.Background()
	key := backendtest.TestMasterKey(6)

	first, err := New(Config{Items: items})
	require.NoError(t, err)
	sealed, err := first.Seal(ctx, backend.VariantStandard, key)
	require.NoError(t, err)

	// Close would close the shared store; a restarted process opens a
	// fresh backend over the same credential items.
	second := newTestBackend(t, items, presence.None{})
	got, err := second.Unseal(ctx, backend.VariantStandard, sealed)
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestCapabilities(t *testing.T) {
	b := newTestBackend(t, itemstore.NewMemory(), presence.Always(backend.BiometricFace, presence.OutcomeSuccess))
	caps := b.Capabilities(context.Background())
	assert.Equal(t, backend.PlatformMacOS, caps.Platform)
	assert.True(t, caps.HasBiometrics)
	assert.Equal(t, backend.BiometricFace, caps.BiometricType)
	assert.False(t, caps.HasSecureHardware)
	assert.False(t, caps.HasSecureEnclave)
	assert.False(t, caps.HasStrongBox)

	b = newTestBackend(t, itemstore.NewMemory(), presence.None{})
	caps = b.Capabilities(context.Background())
	assert.False(t, caps.HasBiometrics)
	assert.Equal(t, backend.BiometricNone, caps.BiometricType)
}
