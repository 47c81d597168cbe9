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

//go:build tpm_simulator

package enclave

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend/backendtest"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend/itemstore"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/biometric"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/crypto/ecies"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/presence"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/storage"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/wrapkey"
)

func openSimulatorProvider(t *testing.T, store storage.Backend) *TPMProvider {
	t.Helper()
	p, err := OpenTPM(TPMConfig{UseSimulator: true}, store, nil)
	require.NoError(t, err)
	return p
}

func TestTPMBackendContract(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		b, err := New(Config{
			Items: itemstore.NewMemory(),
			Keys:  openSimulatorProvider(t, storage.NewMemory()),
			Gate:  biometric.NewGate(presence.Always(backend.BiometricFingerprint, presence.OutcomeSuccess), biometric.Config{}),
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Close() })
		return b
	}, backendtest.Options{})
}

func TestTPMProvider_Probe(t *testing.T) {
	p := openSimulatorProvider(t, storage.NewMemory())
	defer p.Close()

	info, ok := p.Probe(context.Background())
	assert.True(t, ok)
	assert.True(t, info.SecureHardware)
	assert.Empty(t, p.handles, "capability query must not load keys")
}

func TestTPMProvider_DeterministicKeys(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	p := openSimulatorProvider(t, store)
	defer p.Close()

	_, ok, err := p.Lookup(ctx, wrapkey.TagStandard)
	require.NoError(t, err)
	assert.False(t, ok)

	std, err := p.Create(ctx, wrapkey.TagStandard, backend.VariantStandard)
	require.NoError(t, err)
	bio, err := p.Create(ctx, wrapkey.TagBiometric, backend.VariantBiometric)
	require.NoError(t, err)
	assert.False(t, std.PublicKey().Equal(bio.PublicKey()))

	// Forget the loaded handle; lookup re-derives the same key.
	p.mu.Lock()
	p.flushLocked(wrapkey.TagStandard)
	p.mu.Unlock()

	again, ok, err := p.Lookup(ctx, wrapkey.TagStandard)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, std.PublicKey().Equal(again.PublicKey()))
}

func TestTPMProvider_ECIESRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := openSimulatorProvider(t, storage.NewMemory())
	defer p.Close()

	key, err := p.Create(ctx, wrapkey.TagStandard, backend.VariantStandard)
	require.NoError(t, err)

	plaintext := backendtest.TestMasterKey(11)
	sealed, err := ecies.Encrypt(rand.Reader, key.PublicKey(), plaintext, []byte("aad"))
	require.NoError(t, err)

	got, err := ecies.Decrypt(key, sealed, []byte("aad"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestTPMProvider_CapabilityQueryConcurrentWithDecrypt(t *testing.T) {
	ctx := context.Background()
	p := openSimulatorProvider(t, storage.NewMemory())
	defer p.Close()

	key, err := p.Create(ctx, wrapkey.TagStandard, backend.VariantStandard)
	require.NoError(t, err)
	plaintext := backendtest.TestMasterKey(5)
	sealed, err := ecies.Encrypt(rand.Reader, key.PublicKey(), plaintext, nil)
	require.NoError(t, err)

	const rounds = 20
	var wg sync.WaitGroup
	capFailures := make(chan struct{}, rounds)
	decryptErrs := make(chan error, rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, ok := p.Probe(ctx); !ok {
				capFailures <- struct{}{}
			}
		}()
		go func() {
			defer wg.Done()
			got, err := ecies.Decrypt(key, sealed, nil)
			if err == nil && string(got) != string(plaintext) {
				err = assert.AnError
			}
			if err != nil {
				decryptErrs <- err
			}
		}()
	}
	wg.Wait()
	close(capFailures)
	close(decryptErrs)

	assert.Empty(t, capFailures)
	for err := range decryptErrs {
		assert.NoError(t, err)
	}
}
