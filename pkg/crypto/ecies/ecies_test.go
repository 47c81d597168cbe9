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

package ecies

import (
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecipient(t *testing.T) PrivateKey {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	return PrivateKey{Key: priv}
}

func TestEncryptDecrypt(t *testing.T) {
	recipient := newRecipient(t)
	plaintext := make([]byte, 32)
	_, err := rand.Read(plaintext)
	require.NoError(t, err)

	ciphertext, err := Encrypt(rand.Reader, recipient.PublicKey(), plaintext, []byte("tag"))
	require.NoError(t, err)
	assert.Len(t, ciphertext, len(plaintext)+Overhead)

	decrypted, err := Decrypt(recipient, ciphertext, []byte("tag"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecrypt_WrongRecipient(t *testing.T) {
	alice := newRecipient(t)
	bob := newRecipient(t)

	ciphertext, err := Encrypt(rand.Reader, alice.PublicKey(), []byte("secret"), nil)
	require.NoError(t, err)

	_, err = Decrypt(bob, ciphertext, nil)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecrypt_WrongAAD(t *testing.T) {
	recipient := newRecipient(t)
	ciphertext, err := Encrypt(rand.Reader, recipient.PublicKey(), []byte("secret"), []byte("standard"))
	require.NoError(t, err)

	_, err = Decrypt(recipient, ciphertext, []byte("biometric"))
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecrypt_TooShort(t *testing.T) {
	recipient := newRecipient(t)
	_, err := Decrypt(recipient, make([]byte, Overhead-1), nil)
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestDecrypt_Tampered(t *testing.T) {
	recipient := newRecipient(t)
	ciphertext, err := Encrypt(rand.Reader, recipient.PublicKey(), []byte("secret"), nil)
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0x01
	_, err = Decrypt(recipient, ciphertext, nil)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestEncrypt_RejectsOtherCurves(t *testing.T) {
	priv, err := ecdh.P384().GenerateKey(rand.Reader)
	require.NoError(t, err)

	_, err = Encrypt(rand.Reader, priv.PublicKey(), []byte("x"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedCurve)
}

type failingAgreement struct {
	PrivateKey
}

func (f failingAgreement) ECDH(*ecdh.PublicKey) ([]byte, error) {
	return nil, errors.New("device removed")
}

func TestDecrypt_AgreementError(t *testing.T) {
	recipient := newRecipient(t)
	ciphertext, err := Encrypt(rand.Reader, recipient.PublicKey(), []byte("secret"), nil)
	require.NoError(t, err)

	_, err = Decrypt(failingAgreement{recipient}, ciphertext, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device removed")
}
