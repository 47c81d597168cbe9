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

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretPath(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"a", "keystore/key_61.bin"},
		{"pirate_wallet_master_key", "keystore/key_7069726174655f77616c6c65745f6d61737465725f6b6579.bin"},
		{"../x", "keystore/key_2e2e2f78.bin"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, SecretPath(tt.id))
		})
	}
}

func TestWrapKeyAndSettingPaths(t *testing.T) {
	assert.Equal(t, "wrapkeys/6162.p8", WrapKeyPath("ab"))
	assert.Equal(t, "settings/biometrics_enabled", SettingPath("biometrics_enabled"))
}

func TestListSecrets(t *testing.T) {
	backend := NewMemory()
	require.NoError(t, PutSecret(backend, "wallet-b", []byte("1")))
	require.NoError(t, PutSecret(backend, "wallet-a", []byte("2")))
	require.NoError(t, backend.Put("keystore/garbage", []byte("3"), nil))
	require.NoError(t, backend.Put("keystore/key_zz.bin", []byte("4"), nil))
	require.NoError(t, backend.Put(SettingPath("x"), []byte("5"), nil))

	ids, err := ListSecrets(backend)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"wallet-a", "wallet-b"}, ids)
}

func TestSecretAdapters(t *testing.T) {
	backend := NewMemory()

	require.NoError(t, PutSecret(backend, "id", []byte("data")))

	ok, err := SecretExists(backend, "id")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := GetSecret(backend, "id")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)

	require.NoError(t, DeleteSecret(backend, "id"))
	_, err = GetSecret(backend, "id")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, DeleteSecret(backend, "id"), ErrNotFound)
}

func TestSecretAdapters_InvalidID(t *testing.T) {
	backend := NewMemory()

	assert.ErrorIs(t, PutSecret(backend, "", nil), ErrInvalidID)
	_, err := GetSecret(backend, "")
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.ErrorIs(t, DeleteSecret(backend, ""), ErrInvalidID)
	_, err = SecretExists(backend, "")
	assert.ErrorIs(t, err, ErrInvalidID)
}
