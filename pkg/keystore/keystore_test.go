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

package keystore

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend/acl"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend/itemstore"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/biometric"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/correlation"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/logging"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/metrics"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/preference"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/presence"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/storage"
)

type testEnv struct {
	ks       *Keystore
	items    *itemstore.Memory
	prompts  *atomic.Int32
	outcome  *atomic.Int32
	settings storage.Backend
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		items:    itemstore.NewMemory(),
		prompts:  &atomic.Int32{},
		outcome:  &atomic.Int32{},
		settings: storage.NewMemory(),
	}
	env.outcome.Store(int32(presence.OutcomeSuccess))

	verifier := presence.Func{
		Type: backend.BiometricFingerprint,
		Fn: func(ctx context.Context, reason string) (presence.Outcome, error) {
			env.prompts.Add(1)
			return presence.Outcome(env.outcome.Load()), nil
		},
	}
	b, err := acl.New(acl.Config{
		Items:    env.items,
		Gate:     biometric.NewGate(verifier, biometric.Config{}),
		Platform: backend.PlatformMacOS,
	})
	require.NoError(t, err)

	env.ks, err = New(Config{
		Backend:     b,
		Preferences: preference.NewStore(env.settings),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.ks.Close() })
	return env
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrBackendRequired)

	b, err := acl.New(acl.Config{Items: itemstore.NewMemory()})
	require.NoError(t, err)
	_, err = New(Config{Backend: b})
	assert.ErrorIs(t, err, ErrPreferencesRequired)
}

func TestStoreRetrieveDeleteScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	secret := randomBytes(t, 32)

	require.NoError(t, env.ks.StoreKey(ctx, "spend-key-1", secret))

	got, found, err := env.ks.RetrieveKey(ctx, "spend-key-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, secret, got)

	require.NoError(t, env.ks.DeleteKey(ctx, "spend-key-1"))

	got, found, err = env.ks.RetrieveKey(ctx, "spend-key-1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	payloads := map[string][]byte{
		"empty":     {},
		"one":       {0x01},
		"binary":    {0x00, 0xff, 0x00, 0xfe},
		"large":     randomBytes(t, 4096),
		"unicode ü": []byte("ключ"),
	}
	for id, data := range payloads {
		require.NoError(t, env.ks.StoreKey(ctx, id, data), id)
		got, found, err := env.ks.RetrieveKey(ctx, id)
		require.NoError(t, err, id)
		assert.True(t, found, id)
		assert.Equal(t, data, got, id)
	}
}

func TestIdempotentDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.NoError(t, env.ks.DeleteKey(ctx, "never-stored"))

	require.NoError(t, env.ks.StoreKey(ctx, "k", []byte("v")))
	assert.NoError(t, env.ks.DeleteKey(ctx, "k"))
	assert.NoError(t, env.ks.DeleteKey(ctx, "k"))
}

func TestAbsentIsNotError(t *testing.T) {
	env := newTestEnv(t)
	data, found, err := env.ks.RetrieveKey(context.Background(), "missing")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, data)
}

func TestUpsertOverwrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.ks.StoreKey(ctx, "k", []byte("first")))
	require.NoError(t, env.ks.StoreKey(ctx, "k", []byte("second")))

	got, found, err := env.ks.RetrieveKey(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("second"), got)
}

func TestExistenceTracksStorage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ok, err := env.ks.KeyExists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, env.ks.StoreKey(ctx, "k", []byte("v")))
	ok, err = env.ks.KeyExists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, env.ks.DeleteKey(ctx, "k"))
	ok, err = env.ks.KeyExists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidArguments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"store empty id", func() error { return env.ks.StoreKey(ctx, "", []byte("v")) }},
		{"store nil data", func() error { return env.ks.StoreKey(ctx, "k", nil) }},
		{"retrieve empty id", func() error { _, _, err := env.ks.RetrieveKey(ctx, ""); return err }},
		{"delete empty id", func() error { return env.ks.DeleteKey(ctx, "") }},
		{"exists empty id", func() error { _, err := env.ks.KeyExists(ctx, ""); return err }},
		{"seal short key", func() error { _, err := env.ks.SealMasterKey(ctx, make([]byte, 31)); return err }},
		{"seal long key", func() error { _, err := env.ks.SealMasterKey(ctx, make([]byte, 33)); return err }},
		{"seal nil key", func() error { _, err := env.ks.SealMasterKey(ctx, nil); return err }},
		{"unseal empty", func() error { _, err := env.ks.UnsealMasterKey(ctx, nil); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Equal(t, KindInvalidArgument, KindOf(err))
			assert.Equal(t, CodeInvalidArgument, ErrorCodeOf(err))
		})
	}
	assert.Equal(t, 0, env.items.Len())
}

func TestSealUnsealScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	master := randomBytes(t, backend.MasterKeySize)

	sealed, err := env.ks.SealMasterKey(ctx, master)
	require.NoError(t, err)
	assert.Greater(t, len(sealed), len(master))

	got, err := env.ks.UnsealMasterKey(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, master, got)
	assert.Equal(t, int32(0), env.prompts.Load())
}

func TestSealUnsealBiometric(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	master := randomBytes(t, backend.MasterKeySize)

	require.NoError(t, env.ks.SetBiometricsEnabled(ctx, true))
	sealed, err := env.ks.SealMasterKey(ctx, master)
	require.NoError(t, err)
	assert.Equal(t, int32(0), env.prompts.Load())

	got, err := env.ks.UnsealMasterKey(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, master, got)
	assert.Equal(t, int32(1), env.prompts.Load())
}

func TestVariantBindingAfterPreferenceFlip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	master := randomBytes(t, backend.MasterKeySize)

	sealed, err := env.ks.SealMasterKey(ctx, master)
	require.NoError(t, err)

	require.NoError(t, env.ks.SetBiometricsEnabled(ctx, true))
	_, err = env.ks.UnsealMasterKey(ctx, sealed)
	assert.ErrorIs(t, err, ErrUnseal)
	assert.False(t, IsCancelled(err))

	// Sealing under the biometric variant creates its key; the old blob
	// still fails.
	_, err = env.ks.SealMasterKey(ctx, master)
	require.NoError(t, err)
	_, err = env.ks.UnsealMasterKey(ctx, sealed)
	assert.ErrorIs(t, err, ErrUnseal)

	require.NoError(t, env.ks.SetBiometricsEnabled(ctx, false))
	got, err := env.ks.UnsealMasterKey(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, master, got)
}

func TestUnsealCancelled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.ks.SetBiometricsEnabled(ctx, true))
	sealed, err := env.ks.SealMasterKey(ctx, randomBytes(t, backend.MasterKeySize))
	require.NoError(t, err)

	env.outcome.Store(int32(presence.OutcomeCancelled))
	_, err = env.ks.UnsealMasterKey(ctx, sealed)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnseal)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.True(t, IsCancelled(err))
	assert.Equal(t, CodeUserCancelled, ErrorCodeOf(err))

	var kerr *Error
	require.ErrorAs(t, err, &kerr)
	assert.True(t, kerr.Cancelled())
	assert.Equal(t, OpUnsealMasterKey, kerr.Op)
}

func TestUnsealFailedIsNotCancelled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.ks.SetBiometricsEnabled(ctx, true))
	sealed, err := env.ks.SealMasterKey(ctx, randomBytes(t, backend.MasterKeySize))
	require.NoError(t, err)

	env.outcome.Store(int32(presence.OutcomeFailed))
	_, err = env.ks.UnsealMasterKey(ctx, sealed)
	assert.ErrorIs(t, err, ErrUnseal)
	assert.False(t, IsCancelled(err))
	assert.Equal(t, CodeUnseal, ErrorCodeOf(err))
}

func TestUnsealGarbage(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ks.UnsealMasterKey(context.Background(), []byte("not a sealed key"))
	assert.ErrorIs(t, err, ErrUnseal)
}

func TestCapabilityDeterminism(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.ks.Capabilities(ctx)
	second := env.ks.Capabilities(ctx)
	assert.Equal(t, first, second)
	assert.True(t, first.HasBiometrics)
	assert.Equal(t, backend.PlatformMacOS, first.Platform)

	assert.Equal(t, 0, env.items.Len())
	assert.Equal(t, int32(0), env.prompts.Load())
}

func TestSetBiometricsEnabled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	enabled, err := env.ks.BiometricsEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, env.ks.SetBiometricsEnabled(ctx, true))
	enabled, err = env.ks.BiometricsEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)

	raw, err := env.settings.Get(preference.BiometricsEnabledKey)
	require.NoError(t, err)
	assert.Equal(t, "true", string(raw))
}

func TestCorruptPreference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.settings.Put(preference.BiometricsEnabledKey, []byte("maybe"), nil))

	_, err := env.ks.SealMasterKey(ctx, randomBytes(t, backend.MasterKeySize))
	assert.ErrorIs(t, err, ErrSeal)

	_, err = env.ks.BiometricsEnabled(ctx)
	assert.ErrorIs(t, err, ErrKeystore)
}

func TestConcurrentStoreDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, env.ks.StoreKey(ctx, "shared", []byte(fmt.Sprintf("v%d", i))))
		}(i)
		go func() {
			defer wg.Done()
			assert.NoError(t, env.ks.DeleteKey(ctx, "shared"))
		}()
	}
	wg.Wait()

	data, found, err := env.ks.RetrieveKey(ctx, "shared")
	require.NoError(t, err)
	if found {
		assert.Regexp(t, `^v\d+$`, string(data))
	}
	assert.Equal(t, 0, env.ks.keys.len())
}

func TestConcurrentFirstSeal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const n = 16
	masters := make([][]byte, n)
	sealed := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		masters[i] = randomBytes(t, backend.MasterKeySize)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := env.ks.SealMasterKey(ctx, masters[i])
			assert.NoError(t, err)
			sealed[i] = s
		}(i)
	}
	wg.Wait()

	for i := range sealed {
		got, err := env.ks.UnsealMasterKey(ctx, sealed[i])
		require.NoError(t, err)
		assert.Equal(t, masters[i], got)
	}
}

// stubBackend fails every call with err.
type stubBackend struct {
	err error
}

func (s stubBackend) Name() string               { return "stub" }
func (s stubBackend) Platform() backend.Platform { return backend.PlatformUnknown }
func (s stubBackend) Store(context.Context, string, []byte) error {
	return s.err
}
func (s stubBackend) Retrieve(context.Context, string) ([]byte, error) {
	return nil, s.err
}
func (s stubBackend) Delete(context.Context, string) error { return s.err }
func (s stubBackend) Exists(context.Context, string) (bool, error) {
	return false, s.err
}
func (s stubBackend) Seal(context.Context, backend.Variant, []byte) ([]byte, error) {
	return nil, s.err
}
func (s stubBackend) Unseal(context.Context, backend.Variant, []byte) ([]byte, error) {
	return nil, s.err
}
func (s stubBackend) Capabilities(context.Context) backend.Capabilities {
	return backend.Capabilities{Platform: backend.PlatformUnknown, BiometricType: backend.BiometricNone}
}
func (s stubBackend) Close() error { return nil }

func TestNativeErrorsAreConverted(t *testing.T) {
	native := backend.NewNativeError("SecItemCopyMatching", -25308, errors.New("interaction not allowed"))
	ks, err := New(Config{Backend: stubBackend{err: native}, Preferences: preference.NewStore(storage.NewMemory())})
	require.NoError(t, err)
	ctx := context.Background()

	_, _, retrieveErr := ks.RetrieveKey(ctx, "k")
	_, existsErr := ks.KeyExists(ctx, "k")
	_, sealErr := ks.SealMasterKey(ctx, make([]byte, 32))
	_, unsealErr := ks.UnsealMasterKey(ctx, []byte{1})

	type check struct {
		name string
		err  error
		kind Kind
		code ErrorCode
	}
	checks := []check{
		{"store", ks.StoreKey(ctx, "k", []byte("v")), KindKeystore, CodeKeystore},
		{"retrieve", retrieveErr, KindKeystore, CodeKeystore},
		{"delete", ks.DeleteKey(ctx, "k"), KindKeystore, CodeKeystore},
		{"exists", existsErr, KindKeystore, CodeKeystore},
		{"seal", sealErr, KindSeal, CodeSeal},
		{"unseal", unsealErr, KindUnseal, CodeUnseal},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			var kerr *Error
			require.ErrorAs(t, c.err, &kerr)
			assert.Equal(t, c.kind, kerr.Kind)
			assert.Equal(t, -25308, kerr.Code)
			assert.Equal(t, c.code, ErrorCodeOf(c.err))
			assert.Contains(t, kerr.Error(), "interaction not allowed")

			var nerr *backend.NativeError
			assert.False(t, errors.As(c.err, &nerr), "native error escaped the facade")
		})
	}
}

func TestStubNotFoundIsAbsent(t *testing.T) {
	ks, err := New(Config{Backend: stubBackend{err: backend.ErrNotFound}, Preferences: preference.NewStore(storage.NewMemory())})
	require.NoError(t, err)
	ctx := context.Background()

	_, found, err := ks.RetrieveKey(ctx, "k")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, ks.DeleteKey(ctx, "k"))
}

func TestMetricsRecorded(t *testing.T) {
	metrics.Enable()
	metrics.OperationsTotal.Reset()
	metrics.ErrorsTotal.Reset()

	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.ks.StoreKey(ctx, "k", []byte("v")))
	_ = env.ks.StoreKey(ctx, "", []byte("v"))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues(metrics.OpStore, acl.Name, metrics.StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues(metrics.OpStore, acl.Name, metrics.StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ErrorsTotal.WithLabelValues(metrics.OpStore, acl.Name, "invalid_argument")))
}

func TestLogsNeverContainKeyMaterial(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewSlogAdapter(&logging.SlogConfig{Level: logging.LevelDebug, Format: "json", Output: &buf})

	b, err := acl.New(acl.Config{Items: itemstore.NewMemory(), Logger: logger})
	require.NoError(t, err)
	ks, err := New(Config{Backend: b, Preferences: preference.NewStore(storage.NewMemory()), Logger: logger})
	require.NoError(t, err)

	ctx := correlation.WithCorrelationID(context.Background(), "req-42")
	master := randomBytes(t, backend.MasterKeySize)
	secret := []byte("super-secret-payload")

	require.NoError(t, ks.StoreKey(ctx, "k", secret))
	sealed, err := ks.SealMasterKey(ctx, master)
	require.NoError(t, err)
	_, err = ks.UnsealMasterKey(ctx, sealed[:10])
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "req-42")
	assert.NotContains(t, out, string(secret))
	assert.NotContains(t, out, hex.EncodeToString(master))
}

func TestCapabilitiesDuringBiometricPrompt(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	verifier := presence.Func{
		Type: backend.BiometricFingerprint,
		Fn: func(context.Context, string) (presence.Outcome, error) {
			entered <- struct{}{}
			<-release
			return presence.OutcomeSuccess, nil
		},
	}
	b, err := acl.New(acl.Config{
		Items:    itemstore.NewMemory(),
		Gate:     biometric.NewGate(verifier, biometric.Config{}),
		Platform: backend.PlatformMacOS,
	})
	require.NoError(t, err)
	ks, err := New(Config{Backend: b, Preferences: preference.NewStore(storage.NewMemory())})
	require.NoError(t, err)
	defer ks.Close()

	ctx := context.Background()
	require.NoError(t, ks.SetBiometricsEnabled(ctx, true))
	master := randomBytes(t, backend.MasterKeySize)
	sealed, err := ks.SealMasterKey(ctx, master)
	require.NoError(t, err)

	unsealed := make(chan []byte, 1)
	go func() {
		plain, err := ks.UnsealMasterKey(ctx, sealed)
		assert.NoError(t, err)
		unsealed <- plain
	}()
	<-entered

	capsCh := make(chan backend.Capabilities, 1)
	go func() { capsCh <- ks.Capabilities(ctx) }()
	select {
	case caps := <-capsCh:
		assert.True(t, caps.HasBiometrics)
	case <-time.After(2 * time.Second):
		t.Fatal("Capabilities blocked behind an open biometric prompt")
	}

	close(release)
	assert.Equal(t, master, <-unsealed)
}
