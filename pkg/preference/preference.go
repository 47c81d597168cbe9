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

// Package preference persists the biometric unlock preference that selects
// which wrap-key variant seals and unseals the master key.
package preference

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/storage"
)

// BiometricsEnabledKey is the storage key of the preference.
var BiometricsEnabledKey = storage.SettingPath("biometrics_enabled")

// Store reads and writes the biometric preference.
type Store struct {
	backend storage.Backend
	mu      sync.RWMutex
}

// NewStore returns a preference store over backend.
func NewStore(backend storage.Backend) *Store {
	return &Store{backend: backend}
}

// Get returns the preference. An absent entry reads as false.
func (s *Store) Get(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := s.backend.Get(BiometricsEnabledKey)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("preference: read: %w", err)
	}
	enabled, err := strconv.ParseBool(string(raw))
	if err != nil {
		return false, fmt.Errorf("preference: corrupt value %q: %w", raw, err)
	}
	return enabled, nil
}

// Set writes the preference.
func (s *Store) Set(ctx context.Context, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Put(BiometricsEnabledKey, []byte(strconv.FormatBool(enabled)), storage.DefaultOptions()); err != nil {
		return fmt.Errorf("preference: write: %w", err)
	}
	return nil
}
