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

// Package ecies provides Elliptic Curve Integrated Encryption Scheme (ECIES)
// for sealing data to a P-256 public key whose private half may live in
// hardware.
//
// ECIES combines:
//  1. ECDH for key agreement (ephemeral-static)
//  2. HKDF-SHA256 for key derivation, salted with the ephemeral public key
//  3. AES-256-GCM for authenticated encryption
//
// The encryption format is:
//
//	[ephemeral_public_key || nonce || ciphertext || tag]
//
// Decryption only needs the recipient to perform the ECDH step, so it is
// expressed through the KeyAgreement interface. A TPM or other hardware key
// implements it without ever exposing the private scalar.
package ecies

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// Key size for AES-256
	aesKeySize = 32

	// GCM nonce size (96 bits / 12 bytes is standard)
	nonceSize = 12

	// GCM tag size (128 bits / 16 bytes)
	tagSize = 16

	// Uncompressed P-256 point: 1 (format) + 32 (x) + 32 (y)
	p256PointSize = 65

	hkdfInfo = "pirate-wallet-master-seal-v1"
)

// Overhead is the number of bytes Encrypt adds to the plaintext.
const Overhead = p256PointSize + nonceSize + tagSize

var (
	// ErrCiphertextTooShort is returned when the input cannot hold the ECIES
	// framing.
	ErrCiphertextTooShort = errors.New("ecies: ciphertext too short")

	// ErrDecrypt is returned when the AEAD tag does not verify.
	ErrDecrypt = errors.New("ecies: decryption failed")

	// ErrUnsupportedCurve is returned for any curve other than P-256.
	ErrUnsupportedCurve = errors.New("ecies: unsupported curve")
)

// KeyAgreement performs the recipient side of ECDH.
type KeyAgreement interface {
	// PublicKey returns the recipient public key.
	PublicKey() *ecdh.PublicKey

	// ECDH returns the shared secret between the recipient private key and
	// peer.
	ECDH(peer *ecdh.PublicKey) ([]byte, error)
}

// PrivateKey adapts an in-memory *ecdh.PrivateKey to KeyAgreement.
type PrivateKey struct {
	Key *ecdh.PrivateKey
}

// PublicKey returns the public half of the key.
func (p PrivateKey) PublicKey() *ecdh.PublicKey {
	return p.Key.PublicKey()
}

// ECDH computes the shared secret with peer.
func (p PrivateKey) ECDH(peer *ecdh.PublicKey) ([]byte, error) {
	return p.Key.ECDH(peer)
}

// Encrypt seals plaintext to publicKey.
//
// The encryption process:
//  1. Generate ephemeral P-256 key pair
//  2. Perform ECDH with ephemeral private key and recipient public key
//  3. Derive AES-256 key using HKDF from shared secret
//  4. Encrypt plaintext using AES-256-GCM
//  5. Return: ephemeral_public_key || nonce || ciphertext || tag
func Encrypt(random io.Reader, publicKey *ecdh.PublicKey, plaintext, aad []byte) ([]byte, error) {
	if random == nil {
		return nil, fmt.Errorf("random source cannot be nil")
	}
	if publicKey == nil {
		return nil, fmt.Errorf("public key cannot be nil")
	}
	if plaintext == nil {
		return nil, fmt.Errorf("plaintext cannot be nil")
	}
	if publicKey.Curve() != ecdh.P256() {
		return nil, ErrUnsupportedCurve
	}

	ephemeral, err := ecdh.P256().GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	shared, err := ephemeral.ECDH(publicKey)
	if err != nil {
		return nil, fmt.Errorf("ECDH failed: %w", err)
	}

	ephemeralPub := ephemeral.PublicKey().Bytes()
	gcm, err := newGCM(shared, ephemeralPub, publicKey.Bytes())
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, Overhead+len(plaintext))
	out = append(out, ephemeralPub...)
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(random, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	out = append(out, nonce...)

	return gcm.Seal(out, nonce, plaintext, aad), nil
}

// Decrypt opens ciphertext produced by Encrypt using the recipient key.
func Decrypt(recipient KeyAgreement, ciphertext, aad []byte) ([]byte, error) {
	if recipient == nil {
		return nil, fmt.Errorf("recipient key cannot be nil")
	}
	if len(ciphertext) < Overhead {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d",
			ErrCiphertextTooShort, len(ciphertext), Overhead)
	}

	ephemeralPubBytes := ciphertext[:p256PointSize]
	nonce := ciphertext[p256PointSize : p256PointSize+nonceSize]
	sealed := ciphertext[p256PointSize+nonceSize:]

	ephemeralPub, err := ecdh.P256().NewPublicKey(ephemeralPubBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ephemeral public key", ErrDecrypt)
	}

	shared, err := recipient.ECDH(ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("ECDH failed: %w", err)
	}

	gcm, err := newGCM(shared, ephemeralPubBytes, recipient.PublicKey().Bytes())
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// newGCM derives the AES key from the shared secret. Both public keys are
// bound into the derivation so a ciphertext cannot be replayed against a
// different recipient.
func newGCM(shared, ephemeralPub, recipientPub []byte) (cipher.AEAD, error) {
	info := make([]byte, 0, len(hkdfInfo)+len(recipientPub))
	info = append(info, hkdfInfo...)
	info = append(info, recipientPub...)

	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, ephemeralPub, info), key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
