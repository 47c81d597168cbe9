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

package itemstore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/storage"
)

const itemsPrefix = "items/"

// fileItem is the on-disk form of an Item.
type fileItem struct {
	Label  string `json:"label"`
	Access string `json:"access"`
	Data   []byte `json:"data"`
}

// Files keeps items as owner-only files in a storage.Backend. It backs the
// enclave backend on platforms without a credential item facility. The
// enclave seals item data to its standard wrap key before it gets here.
type Files struct {
	mu     sync.RWMutex
	store  storage.Backend
	closed bool
}

// NewFiles returns a store over s. Close does not close s.
func NewFiles(s storage.Backend) *Files {
	return &Files{store: s}
}

func itemPath(service, account string) string {
	return itemsPrefix + hex.EncodeToString([]byte(service)) + "/" + hex.EncodeToString([]byte(account)) + ".json"
}

func (f *Files) Add(ctx context.Context, item Item) error {
	if err := validate(item.Service, item.Account); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return backend.ErrClosed
	}
	path := itemPath(item.Service, item.Account)
	exists, err := f.store.Exists(path)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateItem
	}
	return f.write(path, item, item.Access)
}

func (f *Files) Update(ctx context.Context, item Item) error {
	if err := validate(item.Service, item.Account); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return backend.ErrClosed
	}
	path := itemPath(item.Service, item.Account)
	existing, err := f.read(path)
	if err != nil {
		return err
	}
	access, _ := ParseAccess(existing.Access)
	return f.write(path, item, access)
}

func (f *Files) Get(ctx context.Context, service, account string) (Item, error) {
	if err := validate(service, account); err != nil {
		return Item{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return Item{}, backend.ErrClosed
	}
	rec, err := f.read(itemPath(service, account))
	if err != nil {
		return Item{}, err
	}
	access, ok := ParseAccess(rec.Access)
	if !ok {
		return Item{}, fmt.Errorf("itemstore: unknown access %q", rec.Access)
	}
	return Item{
		Service: service,
		Account: account,
		Label:   rec.Label,
		Data:    rec.Data,
		Access:  access,
	}, nil
}

func (f *Files) Delete(ctx context.Context, service, account string) error {
	if err := validate(service, account); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return backend.ErrClosed
	}
	err := f.store.Delete(itemPath(service, account))
	if errors.Is(err, storage.ErrNotFound) {
		return ErrItemNotFound
	}
	return err
}

func (f *Files) Exists(ctx context.Context, service, account string) (bool, error) {
	if err := validate(service, account); err != nil {
		return false, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return false, backend.ErrClosed
	}
	return f.store.Exists(itemPath(service, account))
}

func (f *Files) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *Files) read(path string) (fileItem, error) {
	raw, err := f.store.Get(path)
	if errors.Is(err, storage.ErrNotFound) {
		return fileItem{}, ErrItemNotFound
	}
	if err != nil {
		return fileItem{}, err
	}
	var rec fileItem
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fileItem{}, fmt.Errorf("itemstore: decode %s: %w", path, err)
	}
	return rec, nil
}

func (f *Files) write(path string, item Item, access Access) error {
	raw, err := json.Marshal(fileItem{
		Label:  item.Label,
		Access: access.String(),
		Data:   item.Data,
	})
	if err != nil {
		return err
	}
	return f.store.Put(path, raw, storage.DefaultOptions())
}

var _ Store = (*Files)(nil)
