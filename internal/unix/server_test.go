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

package unix

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/internal/channel"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend/acl"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend/itemstore"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/keystore"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/preference"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/storage"
)

func newTestKeystore(t *testing.T) *keystore.Keystore {
	t.Helper()
	b, err := acl.New(acl.Config{
		Items:    itemstore.NewMemory(),
		Platform: backend.PlatformMacOS,
	})
	require.NoError(t, err)
	ks, err := keystore.New(keystore.Config{
		Backend:     b,
		Preferences: preference.NewStore(storage.NewMemory()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ks.Close() })
	return ks
}

func newTestDispatcher(t *testing.T) *channel.Dispatcher {
	t.Helper()
	return channel.NewDispatcher(newTestKeystore(t), nil)
}

// shortTempDir keeps socket paths under the sun_path limit.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "ks-")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func socketClient(path string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", path)
			},
		},
		Timeout: 5 * time.Second,
	}
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", path)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNewServer_NilConfig(t *testing.T) {
	_, err := NewServer(nil)
	assert.ErrorIs(t, err, ErrConfigRequired)
}

func TestNewServer_NoDispatcher(t *testing.T) {
	_, err := NewServer(&Config{})
	assert.ErrorIs(t, err, ErrDispatcherRequired)
}

func TestNewServer_DefaultConfig(t *testing.T) {
	server, err := NewServer(&Config{Dispatcher: newTestDispatcher(t)})
	require.NoError(t, err)

	assert.Equal(t, DefaultSocketPath, server.config.SocketPath)
	assert.Equal(t, os.FileMode(0660), server.config.SocketMode)
	assert.Equal(t, 30*time.Second, server.config.ReadTimeout)
	assert.Equal(t, 2*time.Minute, server.config.WriteTimeout)
	assert.Equal(t, int64(DefaultMaxBodyBytes), server.config.MaxBodyBytes)
}

func TestNewServer_CustomConfig(t *testing.T) {
	server, err := NewServer(&Config{
		Dispatcher:   newTestDispatcher(t),
		SocketPath:   "/tmp/custom.sock",
		SocketMode:   0600,
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.sock", server.SocketPath())
	assert.Equal(t, os.FileMode(0600), server.config.SocketMode)
	assert.Equal(t, time.Minute, server.config.WriteTimeout)
}

func TestServer_StartStop(t *testing.T) {
	socketPath := filepath.Join(shortTempDir(t), "ks.sock")
	server, err := NewServer(&Config{
		SocketPath: socketPath,
		Dispatcher: newTestDispatcher(t),
	})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()
	waitForSocket(t, socketPath)

	info, err := os.Stat(socketPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0660), info.Mode().Perm())

	client := socketClient(socketPath)
	resp, err := client.Post("http://keystore"+ChannelPrefix+"/storeKey", "application/json",
		strings.NewReader(`{"keyId":"spend-key-1","encryptedKey":"AQID"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get("http://keystore/health/live")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not return after Stop")
	}

	_, err = os.Stat(socketPath)
	assert.True(t, os.IsNotExist(err), "socket file should be removed")
}

func TestServer_StartReplacesStaleSocket(t *testing.T) {
	socketPath := filepath.Join(shortTempDir(t), "ks.sock")
	require.NoError(t, os.WriteFile(socketPath, nil, 0600))

	server, err := NewServer(&Config{
		SocketPath: socketPath,
		Dispatcher: newTestDispatcher(t),
	})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()
	waitForSocket(t, socketPath)

	info, err := os.Stat(socketPath)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSocket)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
	assert.NoError(t, <-errCh)
}

func TestServer_StopBeforeStart(t *testing.T) {
	server, err := NewServer(&Config{
		SocketPath: filepath.Join(shortTempDir(t), "never.sock"),
		Dispatcher: newTestDispatcher(t),
	})
	require.NoError(t, err)
	assert.NoError(t, server.Stop(context.Background()))
}
