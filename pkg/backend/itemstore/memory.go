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
	"sync"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
)

type memoryKey struct {
	service string
	account string
}

// Memory is an in-memory Store.
type Memory struct {
	mu     sync.RWMutex
	items  map[memoryKey]Item
	closed bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[memoryKey]Item)}
}

func (m *Memory) Add(ctx context.Context, item Item) error {
	if err := validate(item.Service, item.Account); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return backend.ErrClosed
	}
	k := memoryKey{item.Service, item.Account}
	if _, ok := m.items[k]; ok {
		return ErrDuplicateItem
	}
	m.items[k] = cloneItem(item)
	return nil
}

func (m *Memory) Update(ctx context.Context, item Item) error {
	if err := validate(item.Service, item.Account); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return backend.ErrClosed
	}
	k := memoryKey{item.Service, item.Account}
	existing, ok := m.items[k]
	if !ok {
		return ErrItemNotFound
	}
	updated := cloneItem(item)
	updated.Access = existing.Access
	m.items[k] = updated
	return nil
}

func (m *Memory) Get(ctx context.Context, service, account string) (Item, error) {
	if err := validate(service, account); err != nil {
		return Item{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Item{}, backend.ErrClosed
	}
	item, ok := m.items[memoryKey{service, account}]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return cloneItem(item), nil
}

func (m *Memory) Delete(ctx context.Context, service, account string) error {
	if err := validate(service, account); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return backend.ErrClosed
	}
	k := memoryKey{service, account}
	if _, ok := m.items[k]; !ok {
		return ErrItemNotFound
	}
	delete(m.items, k)
	return nil
}

func (m *Memory) Exists(ctx context.Context, service, account string) (bool, error) {
	if err := validate(service, account); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, backend.ErrClosed
	}
	_, ok := m.items[memoryKey{service, account}]
	return ok, nil
}

// Len returns the number of stored items.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.items = nil
	return nil
}

func cloneItem(item Item) Item {
	out := item
	if item.Data != nil {
		out.Data = append([]byte(nil), item.Data...)
	}
	return out
}

var _ Store = (*Memory)(nil)
