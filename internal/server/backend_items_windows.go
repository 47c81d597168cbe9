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

//go:build windows

package server

import (
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend/itemstore"
)

func credentialItems() (itemstore.Store, error) {
	return itemstore.NewCredentialManager(), nil
}
