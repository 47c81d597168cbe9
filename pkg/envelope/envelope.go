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

// Package envelope implements the versioned sealed-key format used by the
// symmetric wrap key backends:
//
//	[version:1][algorithm:1][nonce:12][ciphertext || tag:16]
//
// The wrap key tag is passed as associated data so a blob sealed under one
// variant never opens under the other, even if the two keys collide.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Version is the current envelope version.
const Version byte = 1

const (
	// KeySize is the wrap key length for both algorithms.
	KeySize = 32

	// NonceSize is the nonce length for both algorithms.
	NonceSize = 12

	// TagSize is the AEAD authentication tag length.
	TagSize = 16

	headerSize = 2
)

// Algorithm identifies the AEAD used inside an envelope.
type Algorithm byte

const (
	AESGCM           Algorithm = 0
	ChaCha20Poly1305 Algorithm = 1
)

// String returns the algorithm name.
func (a Algorithm) String() string {
	switch a {
	case AESGCM:
		return "AES-256-GCM"
	case ChaCha20Poly1305:
		return "ChaCha20-Poly1305"
	default:
		return fmt.Sprintf("algorithm(%d)", byte(a))
	}
}

var (
	// ErrMalformed is returned when sealed data is not a valid envelope.
	ErrMalformed = errors.New("envelope: malformed")

	// ErrUnsupported is returned for an unknown version or algorithm.
	ErrUnsupported = errors.New("envelope: unsupported version or algorithm")

	// ErrOpen is returned when authentication fails.
	ErrOpen = errors.New("envelope: authentication failed")

	// ErrKeySize is returned for a wrap key that is not KeySize bytes.
	ErrKeySize = errors.New("envelope: invalid key size")
)

// Overhead is the number of bytes Seal adds to the plaintext.
const Overhead = headerSize + NonceSize + TagSize

// Seal encrypts plaintext under key with alg and returns the envelope.
func Seal(random io.Reader, alg Algorithm, key, plaintext, aad []byte) ([]byte, error) {
	if random == nil {
		random = rand.Reader
	}
	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize+NonceSize, Overhead+len(plaintext))
	out[0] = Version
	out[1] = byte(alg)
	nonce := out[headerSize : headerSize+NonceSize]
	if _, err := io.ReadFull(random, nonce); err != nil {
		return nil, fmt.Errorf("envelope: failed to generate nonce: %w", err)
	}

	return aead.Seal(out, nonce, plaintext, aad), nil
}

// Open authenticates and decrypts an envelope produced by Seal. The
// algorithm is read from the envelope header.
func Open(key, sealed, aad []byte) ([]byte, error) {
	alg, err := Inspect(sealed)
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, err
	}

	nonce := sealed[headerSize : headerSize+NonceSize]
	plaintext, err := aead.Open(nil, nonce, sealed[headerSize+NonceSize:], aad)
	if err != nil {
		return nil, ErrOpen
	}
	return plaintext, nil
}

// Inspect validates the envelope header and returns its algorithm.
func Inspect(sealed []byte) (Algorithm, error) {
	if len(sealed) < Overhead {
		return 0, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformed, len(sealed), Overhead)
	}
	if sealed[0] != Version {
		return 0, fmt.Errorf("%w: version %d", ErrUnsupported, sealed[0])
	}
	alg := Algorithm(sealed[1])
	if alg != AESGCM && alg != ChaCha20Poly1305 {
		return 0, fmt.Errorf("%w: %s", ErrUnsupported, alg)
	}
	return alg, nil
}

// NewKey returns a fresh random wrap key.
func NewKey(random io.Reader) ([]byte, error) {
	if random == nil {
		random = rand.Reader
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(random, key); err != nil {
		return nil, fmt.Errorf("envelope: failed to generate key: %w", err)
	}
	return key, nil
}

func newAEAD(alg Algorithm, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrKeySize, len(key))
	}
	switch alg {
	case AESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("envelope: failed to create cipher: %w", err)
		}
		return cipher.NewGCM(block)
	case ChaCha20Poly1305:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, alg)
	}
}
