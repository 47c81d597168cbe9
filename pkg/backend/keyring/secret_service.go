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

//go:build linux || freebsd || openbsd || netbsd || dragonfly

package keyring

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/godbus/dbus/v5"
	ss "github.com/zalando/go-keyring/secret_service"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
)

const (
	// Schema is the xdg:schema attribute on named secrets.
	Schema = "com.pirate.wallet.keystore"

	// ServiceSchema is the xdg:schema attribute on items of any other
	// service, wrap secrets included. Searches match attribute subsets, so
	// a named secret query must never share a schema with these.
	ServiceSchema = "com.pirate.wallet.keystore.service"

	// AttrKeyID is the attribute holding the key id.
	AttrKeyID = "key_id"

	attrSchema  = "xdg:schema"
	attrService = "service"

	secretsDest       = "org.freedesktop.secrets"
	defaultCollection = dbus.ObjectPath("/org/freedesktop/secrets/aliases/default")
)

// SecretService stores secrets in the freedesktop Secret Service default
// collection. One session is held open until Close.
type SecretService struct {
	mu      sync.Mutex
	svc     *ss.SecretService
	session dbus.BusObject
}

// NewSecretService connects to the session bus and opens a plain session.
func NewSecretService() (*SecretService, error) {
	svc, err := ss.NewSecretService()
	if err != nil {
		return nil, dbusError("connect", err)
	}
	session, err := svc.OpenSession()
	if err != nil {
		return nil, dbusError("open session", err)
	}
	return &SecretService{svc: svc, session: session}, nil
}

// attributes addresses an item. Named secrets carry only the schema and
// key id; other services use ServiceSchema and add a service attribute.
func attributes(service, id string) map[string]string {
	if service == backend.ServiceName {
		return map[string]string{
			attrSchema: Schema,
			AttrKeyID:  id,
		}
	}
	return map[string]string{
		attrSchema:  ServiceSchema,
		attrService: service,
		AttrKeyID:   id,
	}
}

func (s *SecretService) Set(ctx context.Context, service, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	collection, err := s.collection()
	if err != nil {
		return err
	}
	secret := ss.NewSecret(s.session.Path(), base64.StdEncoding.EncodeToString(data))
	if err := s.svc.CreateItem(collection, backend.ItemLabel, attributes(service, id), secret); err != nil {
		return dbusError("create item", err)
	}
	return nil
}

func (s *SecretService) Get(ctx context.Context, service, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.search(service, id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrSecretNotFound
	}
	secret, err := s.svc.GetSecret(items[0], s.session.Path())
	if err != nil {
		return nil, dbusError("get secret", err)
	}
	data, err := base64.StdEncoding.DecodeString(string(secret.Value))
	if err != nil {
		return nil, fmt.Errorf("keyring: decode %s: %w", id, err)
	}
	return data, nil
}

// Delete removes every item matching the attributes.
func (s *SecretService) Delete(ctx context.Context, service, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.search(service, id)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return ErrSecretNotFound
	}
	for _, item := range items {
		if err := s.svc.Delete(item); err != nil {
			return dbusError("delete item", err)
		}
	}
	return nil
}

func (s *SecretService) Exists(ctx context.Context, service, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.search(service, id)
	if err != nil {
		return false, err
	}
	return len(items) > 0, nil
}

func (s *SecretService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	// The bus connection is shared and stays open.
	err := s.svc.Close(s.session)
	s.session = nil
	return err
}

func (s *SecretService) collection() (dbus.BusObject, error) {
	if s.session == nil {
		return nil, backend.ErrClosed
	}
	collection := s.svc.Object(secretsDest, defaultCollection)
	if err := s.svc.Unlock(collection.Path()); err != nil {
		return nil, dbusError("unlock", err)
	}
	return collection, nil
}

func (s *SecretService) search(service, id string) ([]dbus.ObjectPath, error) {
	collection, err := s.collection()
	if err != nil {
		return nil, err
	}
	items, err := s.svc.SearchItems(collection, attributes(service, id))
	if err != nil {
		return nil, dbusError("search items", err)
	}
	return items, nil
}

// dbusError wraps D-Bus errors as native errors whose code is a hash of
// the error name.
func dbusError(op string, err error) error {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(dbusErr.Name))
		return backend.NewNativeError("secret service "+op, int(int32(h.Sum32())), err)
	}
	return fmt.Errorf("keyring: %s: %w", op, err)
}

var _ SecretStore = (*SecretService)(nil)
