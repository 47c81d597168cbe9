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

// Package client talks to the keystore daemon over its Unix socket. Each
// call is one request on the channel; failures come back as
// *keystore.Error carrying the same code the daemon reported.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/internal/channel"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/internal/unix"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/keystore"
)

// DefaultUnixSocketPath is the default Unix socket path
const DefaultUnixSocketPath = unix.DefaultSocketPath

// DefaultTimeout covers a biometric prompt during unsealMasterKey.
const DefaultTimeout = 2 * time.Minute

var (
	// ErrConnectionFailed is returned when the connection to the server fails
	ErrConnectionFailed = errors.New("connection failed")

	// ErrNotSupported is returned when the daemon does not implement a method
	ErrNotSupported = errors.New("operation not supported by the daemon")
)

// Config configures the keystore client.
type Config struct {
	// SocketPath is the daemon socket (default: DefaultUnixSocketPath)
	SocketPath string

	// Timeout bounds a single call (default: DefaultTimeout)
	Timeout time.Duration

	// Headers are additional HTTP headers to include in requests
	Headers map[string]string
}

// HealthResponse contains health check information.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// Client is a keystore daemon client. It is safe for concurrent use.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// New creates a client. Nothing is dialed until the first call.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	if c.SocketPath == "" {
		c.SocketPath = DefaultUnixSocketPath
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if strings.HasPrefix(c.SocketPath, "unix://") {
		c.SocketPath = strings.TrimPrefix(c.SocketPath, "unix://")
	}

	socketPath := c.SocketPath
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{
		config: &c,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   c.Timeout,
		},
	}, nil
}

// Connect verifies the daemon is reachable.
func (c *Client) Connect(ctx context.Context) error {
	if _, err := c.Health(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SocketPath returns the socket the client dials.
func (c *Client) SocketPath() string {
	return c.config.SocketPath
}

// Health returns the daemon's aggregated health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &health, fmt.Errorf("daemon is %s: %s", health.Status, health.Message)
	}
	return &health, nil
}

// Methods lists the channel methods the daemon implements.
func (c *Client) Methods(ctx context.Context) ([]string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, unix.ChannelPrefix+"/", nil)
	if err != nil {
		return nil, err
	}
	var methods []string
	if err := c.do(req, "methods", &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

// StoreKey writes data under keyID.
func (c *Client) StoreKey(ctx context.Context, keyID string, data []byte) error {
	return c.call(ctx, channel.MethodStoreKey, map[string]any{
		channel.ArgKeyID:        keyID,
		channel.ArgEncryptedKey: data,
	}, nil)
}

// RetrieveKey returns the data under keyID. found is false when nothing
// is stored.
func (c *Client) RetrieveKey(ctx context.Context, keyID string) (data []byte, found bool, err error) {
	var raw json.RawMessage
	if err := c.call(ctx, channel.MethodRetrieveKey, map[string]any{channel.ArgKeyID: keyID}, &raw); err != nil {
		return nil, false, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, false, fmt.Errorf("failed to decode key: %w", err)
	}
	return data, true, nil
}

// DeleteKey removes keyID. Deleting an absent key succeeds.
func (c *Client) DeleteKey(ctx context.Context, keyID string) error {
	return c.call(ctx, channel.MethodDeleteKey, map[string]any{channel.ArgKeyID: keyID}, nil)
}

// KeyExists reports whether keyID is stored.
func (c *Client) KeyExists(ctx context.Context, keyID string) (bool, error) {
	var exists bool
	err := c.call(ctx, channel.MethodKeyExists, map[string]any{channel.ArgKeyID: keyID}, &exists)
	return exists, err
}

// SealMasterKey seals a 32-byte master key.
func (c *Client) SealMasterKey(ctx context.Context, masterKey []byte) ([]byte, error) {
	var sealed []byte
	err := c.call(ctx, channel.MethodSealMasterKey, map[string]any{channel.ArgMasterKey: masterKey}, &sealed)
	return sealed, err
}

// UnsealMasterKey recovers the master key. The daemon may prompt for
// biometrics; a refusal comes back with UserCancelled set.
func (c *Client) UnsealMasterKey(ctx context.Context, sealed []byte) ([]byte, error) {
	var masterKey []byte
	err := c.call(ctx, channel.MethodUnsealMasterKey, map[string]any{channel.ArgSealedKey: sealed}, &masterKey)
	return masterKey, err
}

// Capabilities reports the daemon's secure hardware and biometrics.
func (c *Client) Capabilities(ctx context.Context) (backend.Capabilities, error) {
	var caps backend.Capabilities
	err := c.call(ctx, channel.MethodGetCapabilities, nil, &caps)
	return caps, err
}

// SetBiometricsEnabled persists the biometric preference.
func (c *Client) SetBiometricsEnabled(ctx context.Context, enabled bool) error {
	return c.call(ctx, channel.MethodSetBiometricsEnabled, map[string]any{channel.ArgEnabled: enabled}, nil)
}

// BiometricsEnabled reads the biometric preference.
func (c *Client) BiometricsEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := c.call(ctx, channel.MethodIsBiometricsEnabled, map[string]any{}, &enabled)
	return enabled, err
}

func (c *Client) call(ctx context.Context, method string, args any, out any) error {
	var body io.Reader
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, http.MethodPost, unix.ChannelPrefix+"/"+method, body)
	if err != nil {
		return err
	}
	return c.do(req, method, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, "http://keystore"+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// do sends req and decodes the channel envelope into out.
func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return keystore.NewError(keystore.KindKeystore, method, fmt.Errorf("%w: %v", ErrConnectionFailed, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *channel.Error  `json:"error"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return keystore.ErrorFromCode(keystore.CodeKeystore, method,
			fmt.Sprintf("daemon returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))), 0)
	}
	if envelope.Error != nil {
		if envelope.Error.Code == keystore.CodeNotImplemented {
			return fmt.Errorf("%w: %s", ErrNotSupported, method)
		}
		return envelope.Error.KeystoreError(method)
	}
	if resp.StatusCode >= 400 {
		return keystore.ErrorFromCode(keystore.CodeKeystore, method,
			fmt.Sprintf("daemon returned status %d", resp.StatusCode), 0)
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = envelope.Result
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}
