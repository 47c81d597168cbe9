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

//go:build darwin && cgo

package itemstore

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/keybase/go-keychain"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
)

// accessCommentPrefix marks the recorded access policy in the item comment.
const accessCommentPrefix = "access="

// Keychain is a Store over the darwin login keychain. Items are generic
// passwords, device-only and never synchronized.
type Keychain struct {
	// AccessGroup optionally scopes items to a keychain access group.
	AccessGroup string

	mu sync.Mutex
}

// NewKeychain returns a keychain-backed store.
func NewKeychain(accessGroup string) *Keychain {
	return &Keychain{AccessGroup: accessGroup}
}

func (k *Keychain) Add(ctx context.Context, item Item) error {
	if err := validate(item.Service, item.Account); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	kc := keychain.NewGenericPassword(item.Service, item.Account, item.Label, item.Data, k.AccessGroup)
	kc.SetSynchronizable(keychain.SynchronizableNo)
	kc.SetAccessible(keychain.AccessibleWhenUnlockedThisDeviceOnly)
	kc.SetComment(accessCommentPrefix + item.Access.String())
	return mapKeychainError("add", keychain.AddItem(kc))
}

func (k *Keychain) Update(ctx context.Context, item Item) error {
	if err := validate(item.Service, item.Account); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	query := keychain.NewGenericPassword(item.Service, item.Account, "", nil, k.AccessGroup)
	update := keychain.NewItem()
	update.SetData(item.Data)
	if item.Label != "" {
		update.SetLabel(item.Label)
	}
	return mapKeychainError("update", keychain.UpdateItem(query, update))
}

func (k *Keychain) Get(ctx context.Context, service, account string) (Item, error) {
	if err := validate(service, account); err != nil {
		return Item{}, err
	}
	results, err := k.query(service, account, true)
	if err != nil {
		return Item{}, err
	}
	r := results[0]
	access, _ := ParseAccess(strings.TrimPrefix(r.Comment, accessCommentPrefix))
	return Item{
		Service: service,
		Account: account,
		Label:   r.Label,
		Data:    r.Data,
		Access:  access,
	}, nil
}

func (k *Keychain) Delete(ctx context.Context, service, account string) error {
	if err := validate(service, account); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	query := keychain.NewGenericPassword(service, account, "", nil, k.AccessGroup)
	return mapKeychainError("delete", keychain.DeleteItem(query))
}

func (k *Keychain) Exists(ctx context.Context, service, account string) (bool, error) {
	if err := validate(service, account); err != nil {
		return false, err
	}
	_, err := k.query(service, account, false)
	if errors.Is(err, ErrItemNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (k *Keychain) Close() error { return nil }

func (k *Keychain) query(service, account string, withData bool) ([]keychain.QueryResult, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	q := keychain.NewItem()
	q.SetSecClass(keychain.SecClassGenericPassword)
	q.SetService(service)
	q.SetAccount(account)
	if k.AccessGroup != "" {
		q.SetAccessGroup(k.AccessGroup)
	}
	q.SetMatchLimit(keychain.MatchLimitOne)
	q.SetReturnAttributes(true)
	q.SetReturnData(withData)

	results, err := keychain.QueryItem(q)
	if err != nil {
		return nil, mapKeychainError("query", err)
	}
	if len(results) == 0 {
		return nil, ErrItemNotFound
	}
	return results, nil
}

// mapKeychainError converts an OSStatus into the package and backend
// vocabulary, keeping the status code.
func mapKeychainError(op string, err error) error {
	if err == nil {
		return nil
	}
	var status keychain.Error
	if !errors.As(err, &status) {
		return backend.NewNativeError(op, 0, err)
	}
	var kind error
	switch status {
	case keychain.ErrorDuplicateItem:
		kind = ErrDuplicateItem
	case keychain.ErrorItemNotFound:
		kind = ErrItemNotFound
	case keychain.ErrorUserCanceled:
		kind = backend.ErrUserCancelled
	case keychain.ErrorAuthFailed:
		kind = backend.ErrAuthFailed
	case keychain.ErrorInteractionNotAllowed, keychain.ErrorNotAvailable:
		kind = backend.ErrNotAvailable
	default:
		return backend.NewNativeError(op, int(status), err)
	}
	return backend.NewNativeError(op, int(status), errors.Join(kind, err))
}

var _ Store = (*Keychain)(nil)
