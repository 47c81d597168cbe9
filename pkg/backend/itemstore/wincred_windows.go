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

package itemstore

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/danieljoos/wincred"
	"golang.org/x/sys/windows"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
)

const accessCommentPrefix = "access="

// CredentialManager is a Store over the Windows credential manager.
// Each item is a generic credential whose target name is
// "<service>/<account>".
type CredentialManager struct {
	mu sync.Mutex
}

// NewCredentialManager returns a credential-manager backed store.
func NewCredentialManager() *CredentialManager {
	return &CredentialManager{}
}

func target(service, account string) string {
	return service + "/" + account
}

func (c *CredentialManager) Add(ctx context.Context, item Item) error {
	if err := validate(item.Service, item.Account); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := wincred.GetGenericCredential(target(item.Service, item.Account)); err == nil {
		return ErrDuplicateItem
	} else if !errors.Is(err, wincred.ErrElementNotFound) {
		return mapWincredError("add", err)
	}
	return c.write(item, item.Access)
}

func (c *CredentialManager) Update(ctx context.Context, item Item) error {
	if err := validate(item.Service, item.Account); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := wincred.GetGenericCredential(target(item.Service, item.Account))
	if err != nil {
		return mapWincredError("update", err)
	}
	access, _ := ParseAccess(strings.TrimPrefix(existing.Comment, accessCommentPrefix))
	return c.write(item, access)
}

func (c *CredentialManager) write(item Item, access Access) error {
	cred := wincred.NewGenericCredential(target(item.Service, item.Account))
	cred.UserName = item.Account
	cred.CredentialBlob = item.Data
	cred.Comment = accessCommentPrefix + access.String()
	cred.Persist = wincred.PersistLocalMachine
	if item.Label != "" {
		cred.TargetAlias = item.Label
	}
	return mapWincredError("write", cred.Write())
}

func (c *CredentialManager) Get(ctx context.Context, service, account string) (Item, error) {
	if err := validate(service, account); err != nil {
		return Item{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := wincred.GetGenericCredential(target(service, account))
	if err != nil {
		return Item{}, mapWincredError("get", err)
	}
	access, _ := ParseAccess(strings.TrimPrefix(cred.Comment, accessCommentPrefix))
	return Item{
		Service: service,
		Account: account,
		Label:   cred.TargetAlias,
		Data:    cred.CredentialBlob,
		Access:  access,
	}, nil
}

func (c *CredentialManager) Delete(ctx context.Context, service, account string) error {
	if err := validate(service, account); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := wincred.GetGenericCredential(target(service, account))
	if err != nil {
		return mapWincredError("delete", err)
	}
	return mapWincredError("delete", cred.Delete())
}

func (c *CredentialManager) Exists(ctx context.Context, service, account string) (bool, error) {
	if err := validate(service, account); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := wincred.GetGenericCredential(target(service, account))
	if errors.Is(err, wincred.ErrElementNotFound) {
		return false, nil
	}
	if err != nil {
		return false, mapWincredError("exists", err)
	}
	return true, nil
}

func (c *CredentialManager) Close() error { return nil }

func mapWincredError(op string, err error) error {
	if err == nil {
		return nil
	}
	code := 0
	var errno windows.Errno
	if errors.As(err, &errno) {
		code = int(errno)
	}
	switch {
	case errors.Is(err, wincred.ErrElementNotFound):
		return backend.NewNativeError(op, code, errors.Join(ErrItemNotFound, err))
	case errors.Is(err, windows.ERROR_CANCELLED):
		return backend.NewNativeError(op, code, errors.Join(backend.ErrUserCancelled, err))
	case errors.Is(err, windows.ERROR_ACCESS_DENIED):
		return backend.NewNativeError(op, code, errors.Join(backend.ErrAuthFailed, err))
	}
	return backend.NewNativeError(op, code, err)
}

var _ Store = (*CredentialManager)(nil)
