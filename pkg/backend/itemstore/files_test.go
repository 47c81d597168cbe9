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

package itemstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/storage"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/storage/file"
)

func TestFiles_AddGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewFiles(storage.NewMemory())

	item := Item{Service: "svc", Account: "acct", Label: "label", Data: []byte{1, 2, 3}, Access: AccessBiometryCurrentSet}
	require.NoError(t, s.Add(ctx, item))
	assert.ErrorIs(t, s.Add(ctx, item), ErrDuplicateItem)

	got, err := s.Get(ctx, "svc", "acct")
	require.NoError(t, err)
	assert.Equal(t, item, got)

	require.NoError(t, s.Update(ctx, Item{Service: "svc", Account: "acct", Label: "new", Data: []byte{9}}))
	got, err = s.Get(ctx, "svc", "acct")
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, got.Data)
	assert.Equal(t, "new", got.Label)
	assert.Equal(t, AccessBiometryCurrentSet, got.Access, "update keeps the recorded access")

	assert.ErrorIs(t, s.Update(ctx, Item{Service: "svc", Account: "other"}), ErrItemNotFound)
}

func TestFiles_DeleteExists(t *testing.T) {
	ctx := context.Background()
	s := NewFiles(storage.NewMemory())

	ok, err := s.Exists(ctx, "svc", "acct")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, Upsert(ctx, s, Item{Service: "svc", Account: "acct", Data: []byte("x")}))
	ok, err = s.Exists(ctx, "svc", "acct")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "svc", "acct"))
	assert.ErrorIs(t, s.Delete(ctx, "svc", "acct"), ErrItemNotFound)
	_, err = s.Get(ctx, "svc", "acct")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestFiles_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fs1, err := file.New(dir)
	require.NoError(t, err)
	require.NoError(t, NewFiles(fs1).Add(ctx, Item{Service: "svc", Account: "a/../b", Data: []byte("payload")}))

	fs2, err := file.New(dir)
	require.NoError(t, err)
	got, err := NewFiles(fs2).Get(ctx, "svc", "a/../b")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got.Data)
}

func TestFiles_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	require.NoError(t, mem.Put(itemPath("svc", "acct"), []byte("{"), nil))

	_, err := NewFiles(mem).Get(ctx, "svc", "acct")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrItemNotFound)
}

func TestFiles_InvalidAndClosed(t *testing.T) {
	ctx := context.Background()
	s := NewFiles(storage.NewMemory())
	assert.ErrorIs(t, s.Add(ctx, Item{Service: "svc"}), ErrInvalidItem)

	require.NoError(t, s.Close())
	_, err := s.Get(ctx, "svc", "acct")
	assert.ErrorIs(t, err, backend.ErrClosed)
}
