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

// Package backendtest holds the contract tests every backend.Backend
// implementation must pass.
package backendtest

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
)

// Factory returns a fresh, empty backend. The factory registers its own
// cleanup.
type Factory func(t *testing.T) backend.Backend

// Options tunes the contract run for backend specific behavior.
type Options struct {
	// SkipBiometric skips biometric variant seal tests, for backends whose
	// gate cannot succeed in the test environment.
	SkipBiometric bool
}

// TestMasterKey returns a deterministic 32 byte master key.
func TestMasterKey(seed byte) []byte {
	key := make([]byte, backend.MasterKeySize)
	for i := range key {
		key[i] = seed + byte(i)
	}
	return key
}

// Run runs the contract tests against backends created by newBackend.
func Run(t *testing.T, newBackend Factory, opts Options) {
	t.Helper()

	t.Run("StoreRetrieveRoundTrip", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		data := []byte{0x00, 0x01, 0x02, 0xff}
		require.NoError(t, b.Store(ctx, "wallet_seed", data))

		got, err := b.Retrieve(ctx, "wallet_seed")
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("StoreIsUpsert", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		require.NoError(t, b.Store(ctx, "k", []byte("first")))
		require.NoError(t, b.Store(ctx, "k", []byte("second")))

		got, err := b.Retrieve(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), got)
	})

	t.Run("RetrieveAbsent", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Retrieve(context.Background(), "missing")
		assert.ErrorIs(t, err, backend.ErrNotFound)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		require.NoError(t, b.Store(ctx, "k", []byte("v")))
		require.NoError(t, b.Delete(ctx, "k"))
		require.NoError(t, b.Delete(ctx, "k"))
		require.NoError(t, b.Delete(ctx, "never-existed"))

		_, err := b.Retrieve(ctx, "k")
		assert.ErrorIs(t, err, backend.ErrNotFound)
	})

	t.Run("Exists", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		ok, err := b.Exists(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, b.Store(ctx, "k", []byte("v")))
		ok, err = b.Exists(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, b.Delete(ctx, "k"))
		ok, err = b.Exists(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		require.NoError(t, b.Store(ctx, "a", []byte("A")))
		require.NoError(t, b.Store(ctx, "b", []byte("B")))
		require.NoError(t, b.Delete(ctx, "a"))

		got, err := b.Retrieve(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, []byte("B"), got)
	})

	t.Run("EmptyPayload", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		require.NoError(t, b.Store(ctx, "empty", []byte{}))
		got, err := b.Retrieve(ctx, "empty")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	variants := []backend.Variant{backend.VariantStandard}
	if !opts.SkipBiometric {
		variants = append(variants, backend.VariantBiometric)
	}
	for _, v := range variants {
		v := v
		t.Run(fmt.Sprintf("SealUnsealRoundTrip/%s", v), func(t *testing.T) {
			ctx := context.Background()
			b := newBackend(t)
			mk := TestMasterKey(7)

			sealed, err := b.Seal(ctx, v, mk)
			require.NoError(t, err)
			assert.Greater(t, len(sealed), backend.MasterKeySize)
			assert.False(t, bytes.Contains(sealed, mk), "sealed output contains the plaintext")

			got, err := b.Unseal(ctx, v, sealed)
			require.NoError(t, err)
			assert.Equal(t, mk, got)
		})
	}

	t.Run("SealIsRandomized", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)
		mk := TestMasterKey(1)

		s1, err := b.Seal(ctx, backend.VariantStandard, mk)
		require.NoError(t, err)
		s2, err := b.Seal(ctx, backend.VariantStandard, mk)
		require.NoError(t, err)
		assert.NotEqual(t, s1, s2)
	})

	t.Run("UnsealTampered", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		sealed, err := b.Seal(ctx, backend.VariantStandard, TestMasterKey(3))
		require.NoError(t, err)
		sealed[len(sealed)-1] ^= 0x01

		_, err = b.Unseal(ctx, backend.VariantStandard, sealed)
		assert.Error(t, err)
	})

	t.Run("UnsealTruncated", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		sealed, err := b.Seal(ctx, backend.VariantStandard, TestMasterKey(3))
		require.NoError(t, err)

		_, err = b.Unseal(ctx, backend.VariantStandard, sealed[:5])
		assert.Error(t, err)
	})

	t.Run("UnsealBeforeAnySeal", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Unseal(context.Background(), backend.VariantStandard, make([]byte, 128))
		assert.Error(t, err)
	})

	if !opts.SkipBiometric {
		t.Run("VariantBinding", func(t *testing.T) {
			ctx := context.Background()
			b := newBackend(t)

			sealed, err := b.Seal(ctx, backend.VariantStandard, TestMasterKey(9))
			require.NoError(t, err)
			// Create the biometric wrap key too so the failure is not just
			// a missing key.
			_, err = b.Seal(ctx, backend.VariantBiometric, TestMasterKey(9))
			require.NoError(t, err)

			_, err = b.Unseal(ctx, backend.VariantBiometric, sealed)
			assert.Error(t, err)
		})
	}

	t.Run("InvalidVariant", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Seal(context.Background(), backend.Variant(7), TestMasterKey(0))
		assert.ErrorIs(t, err, backend.ErrInvalidVariant)
	})

	t.Run("CapabilitiesDeterministic", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		first := b.Capabilities(ctx)
		second := b.Capabilities(ctx)
		assert.Equal(t, first, second)
		assert.Equal(t, b.Platform(), first.Platform)

		// Probing must not create records.
		ok, err := b.Exists(ctx, "anything")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ConcurrentFirstSeal", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		const n = 16
		sealed := make([][]byte, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				s, err := b.Seal(ctx, backend.VariantStandard, TestMasterKey(byte(i)))
				assert.NoError(t, err)
				sealed[i] = s
			}(i)
		}
		wg.Wait()

		// Every ciphertext opens, so all callers used the same wrap key.
		for i, s := range sealed {
			got, err := b.Unseal(ctx, backend.VariantStandard, s)
			require.NoError(t, err)
			assert.Equal(t, TestMasterKey(byte(i)), got)
		}
	})

	t.Run("ClosedBackend", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)
		require.NoError(t, b.Close())

		assert.ErrorIs(t, b.Store(ctx, "k", []byte("v")), backend.ErrClosed)
		_, err := b.Retrieve(ctx, "k")
		assert.ErrorIs(t, err, backend.ErrClosed)
		_, err = b.Seal(ctx, backend.VariantStandard, TestMasterKey(0))
		assert.ErrorIs(t, err, backend.ErrClosed)
		assert.NoError(t, b.Close())
	})
}
