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

package keyring

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	gokeyring "github.com/zalando/go-keyring"
)

// ErrSecretNotFound is returned by a SecretStore when no secret matches.
var ErrSecretNotFound = errors.New("keyring: secret not found")

// SecretStore is a keyring holding binary secrets addressed by service and
// id. Set replaces any existing secret.
type SecretStore interface {
	Set(ctx context.Context, service, id string, data []byte) error
	Get(ctx context.Context, service, id string) ([]byte, error)
	Delete(ctx context.Context, service, id string) error
	Exists(ctx context.Context, service, id string) (bool, error)
	Close() error
}

// GoKeyring stores secrets through the go-keyring package, which picks the
// platform keyring itself. Payloads are base64 encoded since the package
// only stores strings. Calls are serialized.
type GoKeyring struct {
	mu sync.Mutex
}

// NewGoKeyring returns a SecretStore over go-keyring.
func NewGoKeyring() *GoKeyring {
	return &GoKeyring{}
}

func (s *GoKeyring) Set(ctx context.Context, service, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := gokeyring.Set(service, id, base64.StdEncoding.EncodeToString(data)); err != nil {
		return mapGoKeyringError("set", err)
	}
	return nil
}

func (s *GoKeyring) Get(ctx context.Context, service, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	encoded, err := gokeyring.Get(service, id)
	s.mu.Unlock()
	if err != nil {
		return nil, mapGoKeyringError("get", err)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("keyring: decode %s: %w", id, err)
	}
	return data, nil
}

func (s *GoKeyring) Delete(ctx context.Context, service, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := gokeyring.Delete(service, id); err != nil {
		return mapGoKeyringError("delete", err)
	}
	return nil
}

func (s *GoKeyring) Exists(ctx context.Context, service, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	_, err := gokeyring.Get(service, id)
	s.mu.Unlock()
	if errors.Is(err, gokeyring.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, mapGoKeyringError("exists", err)
	}
	return true, nil
}

func (s *GoKeyring) Close() error { return nil }

func mapGoKeyringError(op string, err error) error {
	if errors.Is(err, gokeyring.ErrNotFound) {
		return ErrSecretNotFound
	}
	return fmt.Errorf("keyring: %s: %w", op, err)
}

var _ SecretStore = (*GoKeyring)(nil)
