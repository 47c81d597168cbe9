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

// PutSecret stores a named secret.
func PutSecret(backend Backend, id string, data []byte) error {
	if id == "" {
		return ErrInvalidID
	}
	return backend.Put(SecretPath(id), data, DefaultOptions())
}

// GetSecret retrieves a named secret.
func GetSecret(backend Backend, id string) ([]byte, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	return backend.Get(SecretPath(id))
}

// DeleteSecret removes a named secret.
// Returns ErrNotFound if the secret does not exist.
func DeleteSecret(backend Backend, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	return backend.Delete(SecretPath(id))
}

// SecretExists reports whether a named secret is stored.
func SecretExists(backend Backend, id string) (bool, error) {
	if id == "" {
		return false, ErrInvalidID
	}
	return backend.Exists(SecretPath(id))
}
