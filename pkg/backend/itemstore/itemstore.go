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

// Package itemstore abstracts the generic credential item facilities that
// back the hardware-enclave and credential-manager backends: the darwin
// keychain, the Windows credential manager, and an in-memory store for
// tests and unsupported platforms.
//
// Items are addressed by (service, account). The store never inspects item
// data.
package itemstore

import (
	"context"
	"errors"
)

var (
	// ErrDuplicateItem is returned by Add when the item already exists.
	ErrDuplicateItem = errors.New("itemstore: duplicate item")

	// ErrItemNotFound is returned when the addressed item does not exist.
	ErrItemNotFound = errors.New("itemstore: item not found")

	// ErrInvalidItem is returned when service or account is empty.
	ErrInvalidItem = errors.New("itemstore: invalid item")
)

// Access is the access control policy recorded on an item at creation.
type Access int

const (
	// AccessNone allows reads whenever the device is unlocked.
	AccessNone Access = iota

	// AccessBiometryCurrentSet requires a successful biometric check
	// against the currently enrolled set before the item may be read.
	AccessBiometryCurrentSet
)

// String returns the stable name of the access policy.
func (a Access) String() string {
	switch a {
	case AccessNone:
		return "none"
	case AccessBiometryCurrentSet:
		return "biometry-current-set"
	default:
		return "unknown"
	}
}

// ParseAccess parses the value returned by String. Unknown values map to
// AccessNone with ok=false.
func ParseAccess(s string) (Access, bool) {
	switch s {
	case "", "none":
		return AccessNone, true
	case "biometry-current-set":
		return AccessBiometryCurrentSet, true
	default:
		return AccessNone, false
	}
}

// Item is a generic credential item.
type Item struct {
	Service string
	Account string
	Label   string
	Data    []byte
	Access  Access
}

// Store is a generic credential item facility.
// Implementations must be safe for concurrent use.
type Store interface {
	// Add creates a new item. Returns ErrDuplicateItem when an item with the
	// same service and account exists.
	Add(ctx context.Context, item Item) error

	// Update replaces the label and data of an existing item in place. The
	// recorded Access is not changed. Returns ErrItemNotFound when absent.
	Update(ctx context.Context, item Item) error

	// Get returns the item. Returns ErrItemNotFound when absent.
	Get(ctx context.Context, service, account string) (Item, error)

	// Delete removes the item. Returns ErrItemNotFound when absent.
	Delete(ctx context.Context, service, account string) error

	// Exists reports whether the item exists without reading its data.
	Exists(ctx context.Context, service, account string) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}

// Upsert adds the item, updating it in place when it already exists.
func Upsert(ctx context.Context, s Store, item Item) error {
	err := s.Add(ctx, item)
	if errors.Is(err, ErrDuplicateItem) {
		return s.Update(ctx, item)
	}
	return err
}

func validate(service, account string) error {
	if service == "" || account == "" {
		return ErrInvalidItem
	}
	return nil
}
