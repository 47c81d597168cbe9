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

package dpapi

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/envelope"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/storage"
)

// Description is attached to every protected blob.
const Description = "Pirate Wallet Key"

// sessionSecretPath is where the session protector keeps its secret.
const sessionSecretPath = "session/secret.bin"

var (
	// ErrEmptyInput is returned when unprotecting an empty blob.
	ErrEmptyInput = errors.New("dpapi: input data is empty")

	// ErrProtect is returned when the protector cannot encrypt.
	ErrProtect = errors.New("dpapi: protect failed")

	// ErrUnprotect is returned when the protector cannot decrypt.
	ErrUnprotect = errors.New("dpapi: unprotect failed")

	// ErrSessionSecretCorrupt is returned when the stored session secret
	// exists but is not a valid key. It is never replaced.
	ErrSessionSecretCorrupt = errors.New("dpapi: session secret corrupt")
)

// Protector encrypts data under a secret bound to the current user
// session. entropy is optional and must match between the two calls.
type Protector interface {
	Name() string
	Protect(plaintext, entropy []byte) ([]byte, error)
	Unprotect(data, entropy []byte) ([]byte, error)
}

// SessionProtector is a portable Protector. Its AES-256-GCM key is
// generated once and kept in storage readable only by the owning user.
type SessionProtector struct {
	store  storage.Backend
	random io.Reader

	once   sync.Once
	secret []byte
	err    error
}

// NewSessionProtector returns a protector whose secret lives in store.
func NewSessionProtector(store storage.Backend) *SessionProtector {
	return &SessionProtector{store: store, random: rand.Reader}
}

func (p *SessionProtector) Name() string { return "session" }

func (p *SessionProtector) Protect(plaintext, entropy []byte) ([]byte, error) {
	secret, err := p.load()
	if err != nil {
		return nil, err
	}
	out, err := envelope.Seal(p.random, envelope.AESGCM, secret, plaintext, entropy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtect, err)
	}
	return out, nil
}

func (p *SessionProtector) Unprotect(data, entropy []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	secret, err := p.load()
	if err != nil {
		return nil, err
	}
	out, err := envelope.Open(secret, data, entropy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnprotect, err)
	}
	return out, nil
}

func (p *SessionProtector) load() ([]byte, error) {
	p.once.Do(func() {
		secret, err := p.store.Get(sessionSecretPath)
		switch {
		case err == nil && len(secret) == envelope.KeySize:
			p.secret = secret
			return
		case err == nil:
			p.err = fmt.Errorf("%w: %d bytes, want %d", ErrSessionSecretCorrupt, len(secret), envelope.KeySize)
			return
		case !errors.Is(err, storage.ErrNotFound):
			p.err = fmt.Errorf("dpapi: load session secret: %w", err)
			return
		}
		secret, err = envelope.NewKey(p.random)
		if err != nil {
			p.err = err
			return
		}
		if err := p.store.Put(sessionSecretPath, secret, storage.DefaultOptions()); err != nil {
			p.err = fmt.Errorf("dpapi: save session secret: %w", err)
			return
		}
		p.secret = secret
	})
	return p.secret, p.err
}
