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
	"encoding/hex"
	"strings"
)

const (
	secretsPrefix  = "keystore/"
	secretFilePre  = "key_"
	secretFileExt  = ".bin"
	wrapKeysPrefix = "wrapkeys/"
	settingsPrefix = "settings/"
)

// SecretPath returns the storage path for a named secret.
// The key ID is hex encoded so any caller supplied string maps to a safe
// file name: keystore/key_{hex(id)}.bin
func SecretPath(id string) string {
	return secretsPrefix + secretFilePre + hex.EncodeToString([]byte(id)) + secretFileExt
}

// WrapKeyPath returns the storage path for a software wrap key.
func WrapKeyPath(tag string) string {
	return wrapKeysPrefix + hex.EncodeToString([]byte(tag)) + ".p8"
}

// SettingPath returns the storage path for a plain setting.
func SettingPath(name string) string {
	return settingsPrefix + name
}

// ListSecrets returns the IDs of all stored secrets.
func ListSecrets(backend Backend) ([]string, error) {
	keys, err := backend.List(secretsPrefix)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		name := strings.TrimPrefix(k, secretsPrefix)
		if !strings.HasPrefix(name, secretFilePre) || !strings.HasSuffix(name, secretFileExt) {
			continue
		}
		name = strings.TrimSuffix(strings.TrimPrefix(name, secretFilePre), secretFileExt)
		raw, err := hex.DecodeString(name)
		if err != nil || len(raw) == 0 {
			continue
		}
		ids = append(ids, string(raw))
	}
	return ids, nil
}
