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

// Package wrapkey maintains the wrap keys used only for master key sealing.
//
// There are at most two wrap keys per installation, one per variant, each
// addressed by a fixed versioned tag. The registry resolves a variant to a
// backend specific handle, creating the key on first use. Concurrent first
// use is collapsed into a single create so two callers can never end up
// with two distinct keys for the same tag.
package wrapkey

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
)

const (
	// TagStandard addresses the standard wrap key.
	TagStandard = backend.ServiceName + ".wrapkey.standard.v1"

	// TagBiometric addresses the biometric gated wrap key.
	TagBiometric = backend.ServiceName + ".wrapkey.biometric.v1"

	// Service namespaces wrap secrets kept as credential items, apart from
	// named secrets.
	Service = backend.ServiceName + ".wrapkey"
)

// ErrNotFound is returned by Peek when the wrap key does not exist yet.
var ErrNotFound = errors.New("wrapkey: not found")

// Tag returns the fixed tag for variant.
func Tag(variant backend.Variant) (string, error) {
	switch variant {
	case backend.VariantStandard:
		return TagStandard, nil
	case backend.VariantBiometric:
		return TagBiometric, nil
	default:
		return "", fmt.Errorf("%w: %s", backend.ErrInvalidVariant, variant)
	}
}

// Factory looks up and creates wrap keys in the platform key store.
type Factory[H any] interface {
	// Lookup returns the handle stored under tag. ok is false when no key
	// exists yet.
	Lookup(ctx context.Context, tag string) (handle H, ok bool, err error)

	// Create generates a new wrap key under tag with the access policy of
	// variant.
	Create(ctx context.Context, tag string, variant backend.Variant) (H, error)
}

// Registry resolves variants to wrap key handles.
type Registry[H any] struct {
	factory Factory[H]
	group   singleflight.Group

	mu    sync.RWMutex
	cache map[string]H
}

// NewRegistry creates a registry backed by factory.
func NewRegistry[H any](factory Factory[H]) *Registry[H] {
	return &Registry[H]{
		factory: factory,
		cache:   make(map[string]H),
	}
}

// Resolve returns the handle for variant, creating the wrap key if absent.
func (r *Registry[H]) Resolve(ctx context.Context, variant backend.Variant) (H, error) {
	return r.resolve(ctx, variant, true)
}

// Peek returns the handle for variant without creating it.
// Returns ErrNotFound when the wrap key does not exist.
func (r *Registry[H]) Peek(ctx context.Context, variant backend.Variant) (H, error) {
	return r.resolve(ctx, variant, false)
}

// Forget drops the cached handle for variant so the next resolve goes back
// to the platform key store.
func (r *Registry[H]) Forget(variant backend.Variant) {
	tag, err := Tag(variant)
	if err != nil {
		return
	}
	r.mu.Lock()
	delete(r.cache, tag)
	r.mu.Unlock()
}

// Cached returns the handles currently held in memory.
func (r *Registry[H]) Cached() []H {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := make([]H, 0, len(r.cache))
	for _, h := range r.cache {
		handles = append(handles, h)
	}
	return handles
}

func (r *Registry[H]) resolve(ctx context.Context, variant backend.Variant, create bool) (H, error) {
	var zero H

	tag, err := Tag(variant)
	if err != nil {
		return zero, err
	}

	r.mu.RLock()
	handle, ok := r.cache[tag]
	r.mu.RUnlock()
	if ok {
		return handle, nil
	}

	// Peeks get their own flight so they never join a create.
	key := tag
	if !create {
		key = tag + "#peek"
	}
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		r.mu.RLock()
		cached, ok := r.cache[tag]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		h, found, err := r.factory.Lookup(ctx, tag)
		if err != nil {
			return nil, fmt.Errorf("wrapkey: lookup %s: %w", tag, err)
		}
		if !found {
			if !create {
				return nil, ErrNotFound
			}
			h, err = r.factory.Create(ctx, tag, variant)
			if err != nil {
				return nil, fmt.Errorf("wrapkey: create %s: %w", tag, err)
			}
		}

		r.mu.Lock()
		r.cache[tag] = h
		r.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(H), nil
}
