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

package enclave

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/youmark/pkcs8"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/crypto/ecies"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/storage"
)

// ErrPasswordRequired is returned when the software provider is created
// without a password.
var ErrPasswordRequired = errors.New("enclave: software key password required")

// SoftwareProvider keeps wrap keys as password-encrypted PKCS#8 blobs in a
// storage backend. It exists for development and CI hosts without a TPM and
// reports no secure hardware.
type SoftwareProvider struct {
	store    storage.Backend
	password []byte
	random   io.Reader
}

// NewSoftwareProvider returns a provider persisting keys in store.
func NewSoftwareProvider(store storage.Backend, password []byte) (*SoftwareProvider, error) {
	if len(password) == 0 {
		return nil, ErrPasswordRequired
	}
	return &SoftwareProvider{
		store:    store,
		password: append([]byte(nil), password...),
		random:   rand.Reader,
	}, nil
}

func (p *SoftwareProvider) Name() string { return "software" }

func (p *SoftwareProvider) Probe(ctx context.Context) (ProviderInfo, bool) {
	return ProviderInfo{}, true
}

func (p *SoftwareProvider) Lookup(ctx context.Context, tag string) (ecies.KeyAgreement, bool, error) {
	der, err := p.store.Get(storage.WrapKeyPath(tag))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	parsed, err := pkcs8.ParsePKCS8PrivateKey(der, p.password)
	if err != nil {
		return nil, false, fmt.Errorf("enclave: decode wrap key: %w", err)
	}
	ecKey, ok := parsed.(*ecdsa.PrivateKey)
	if !ok || ecKey.Curve != elliptic.P256() {
		return nil, false, fmt.Errorf("enclave: wrap key %s is not a P-256 key", tag)
	}
	key, err := ecKey.ECDH()
	if err != nil {
		return nil, false, fmt.Errorf("enclave: convert wrap key: %w", err)
	}
	return ecies.PrivateKey{Key: key}, true, nil
}

func (p *SoftwareProvider) Create(ctx context.Context, tag string, variant backend.Variant) (ecies.KeyAgreement, error) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), p.random)
	if err != nil {
		return nil, fmt.Errorf("enclave: generate wrap key: %w", err)
	}
	der, err := pkcs8.MarshalPrivateKey(ecKey, p.password, nil)
	if err != nil {
		return nil, fmt.Errorf("enclave: encode wrap key: %w", err)
	}
	if err := p.store.Put(storage.WrapKeyPath(tag), der, storage.DefaultOptions()); err != nil {
		return nil, err
	}
	key, err := ecKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("enclave: convert wrap key: %w", err)
	}
	return ecies.PrivateKey{Key: key}, nil
}

func (p *SoftwareProvider) Close() error {
	for i := range p.password {
		p.password[i] = 0
	}
	return nil
}

var _ KeyProvider = (*SoftwareProvider)(nil)
