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

package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
)

type fakeStore struct {
	err      error
	caps     backend.Capabilities
	lookedUp []string
}

func (f *fakeStore) Backend() string { return "fake" }

func (f *fakeStore) KeyExists(_ context.Context, keyID string) (bool, error) {
	f.lookedUp = append(f.lookedUp, keyID)
	return false, f.err
}

func (f *fakeStore) Capabilities(context.Context) backend.Capabilities { return f.caps }

func TestStoreCheck(t *testing.T) {
	tests := []struct {
		name   string
		store  *fakeStore
		status Status
	}{
		{"healthy", &fakeStore{caps: backend.Capabilities{Platform: backend.PlatformLinux}}, StatusHealthy},
		{"degraded", &fakeStore{caps: backend.Capabilities{BiometricVariantDegraded: true}}, StatusDegraded},
		{"unhealthy", &fakeStore{err: errors.New("dbus down")}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := StoreCheck(tt.store)(context.Background())
			assert.Equal(t, tt.status, result.Status)
			assert.Equal(t, "backend:fake", result.Name)
			assert.Equal(t, []string{ProbeKeyID}, tt.store.lookedUp)
			if tt.store.err != nil {
				assert.Equal(t, "dbus down", result.Error)
			}
		})
	}
}

func TestStoreCheck_Readiness(t *testing.T) {
	checker := NewChecker()
	checker.RegisterCheck("backend", StoreCheck(&fakeStore{err: errors.New("locked")}))
	assert.Equal(t, StatusUnhealthy, AggregateStatus(checker.Ready(context.Background())))
}
