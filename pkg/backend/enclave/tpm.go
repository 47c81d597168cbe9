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
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/crypto/ecies"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/logging"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/storage"
)

var (
	// ErrSimulatorNotAvailable is returned when simulator support is not
	// compiled in.
	ErrSimulatorNotAvailable = errors.New("enclave: tpm simulator support not compiled (build with -tags tpm_simulator)")

	// ErrWrapKeyChanged is returned when the TPM re-derives a different
	// public key than the one recorded at creation, which happens after a
	// TPM clear.
	ErrWrapKeyChanged = errors.New("enclave: tpm wrap key changed")
)

// simulatorOpener is replaced when built with the tpm_simulator tag.
var simulatorOpener = func() (transport.TPMCloser, error) {
	return nil, ErrSimulatorNotAvailable
}

// TPMConfig selects the TPM transport.
type TPMConfig struct {
	// Device is the TPM character device or a swtpm unix socket (".sock").
	Device string

	// UseSimulator opens the embedded simulator.
	UseSimulator bool
}

// TPMProvider derives wrap keys as ECC primary keys under the owner
// hierarchy. The template's unique field is SHA-256 of the tag, so the same
// tag always re-derives the same key and nothing needs to be exported.
// A record of the public key is kept in store so Lookup can tell a key that
// was never created apart from one that merely is not loaded.
type TPMProvider struct {
	tpm    transport.TPM
	closer io.Closer
	store  storage.Backend
	logger logging.Logger

	mu      sync.Mutex
	handles map[string]*tpmKey
}

// OpenTPM opens the configured transport and returns a provider.
func OpenTPM(cfg TPMConfig, store storage.Backend, logger logging.Logger) (*TPMProvider, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	var (
		conn transport.TPMCloser
		err  error
	)
	if cfg.UseSimulator {
		logger.Info("Opening TPM simulator")
		conn, err = simulatorOpener()
	} else {
		logger.Info("Opening TPM device", logging.String("device", cfg.Device))
		conn, err = openDevice(cfg.Device)
	}
	if err != nil {
		return nil, fmt.Errorf("enclave: open tpm: %w", err)
	}
	return NewTPMProvider(conn, conn, store, logger), nil
}

// NewTPMProvider wraps an open transport. closer may be nil.
func NewTPMProvider(t transport.TPM, closer io.Closer, store storage.Backend, logger logging.Logger) *TPMProvider {
	if logger == nil {
		logger = logging.Nop()
	}
	return &TPMProvider{
		tpm:     t,
		closer:  closer,
		store:   store,
		logger:  logger,
		handles: make(map[string]*tpmKey),
	}
}

func (p *TPMProvider) Name() string { return "tpm2" }

// Probe reports secure hardware when the transport answers. No objects
// are created. Commands share the transport, so it runs under mu.
func (p *TPMProvider) Probe(ctx context.Context) (ProviderInfo, bool) {
	if p.tpm == nil {
		return ProviderInfo{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := tpm2.GetCapability{
		Capability:    tpm2.TPMCapTPMProperties,
		Property:      uint32(tpm2.TPMPTManufacturer),
		PropertyCount: 1,
	}.Execute(p.tpm)
	if err != nil {
		return ProviderInfo{}, false
	}
	return ProviderInfo{SecureHardware: true}, true
}

func (p *TPMProvider) Lookup(ctx context.Context, tag string) (ecies.KeyAgreement, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if k, ok := p.handles[tag]; ok {
		return k, true, nil
	}

	recorded, err := p.store.Get(storage.WrapKeyPath(tag))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	k, err := p.loadLocked(tag)
	if err != nil {
		return nil, false, err
	}
	if !bytes.Equal(recorded, k.pub.Bytes()) {
		p.flushLocked(tag)
		return nil, false, backend.NewNativeError("tpm lookup", 0, ErrWrapKeyChanged)
	}
	return k, true, nil
}

func (p *TPMProvider) Create(ctx context.Context, tag string, variant backend.Variant) (ecies.KeyAgreement, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	k, ok := p.handles[tag]
	if !ok {
		var err error
		if k, err = p.loadLocked(tag); err != nil {
			return nil, err
		}
	}
	if err := p.store.Put(storage.WrapKeyPath(tag), k.pub.Bytes(), storage.DefaultOptions()); err != nil {
		return nil, err
	}
	p.logger.Info("Created TPM wrap key",
		logging.String("tag", tag),
		logging.String("variant", variant.String()))
	return k, nil
}

// Close flushes loaded keys and closes the transport.
func (p *TPMProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for tag := range p.handles {
		p.flushLocked(tag)
	}
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}

func (p *TPMProvider) loadLocked(tag string) (*tpmKey, error) {
	rsp, err := tpm2.CreatePrimary{
		PrimaryHandle: tpm2.AuthHandle{
			Handle: tpm2.TPMRHOwner,
			Auth:   tpm2.PasswordAuth(nil),
		},
		InPublic: tpm2.New2B(wrapKeyTemplate(tag)),
	}.Execute(p.tpm)
	if err != nil {
		return nil, tpmError("create primary", err)
	}

	outPub, err := rsp.OutPublic.Contents()
	if err != nil {
		p.flush(rsp.ObjectHandle)
		return nil, fmt.Errorf("enclave: read tpm public: %w", err)
	}
	parms, err := outPub.Parameters.ECCDetail()
	if err != nil {
		p.flush(rsp.ObjectHandle)
		return nil, fmt.Errorf("enclave: read tpm ecc parms: %w", err)
	}
	point, err := outPub.Unique.ECC()
	if err != nil {
		p.flush(rsp.ObjectHandle)
		return nil, fmt.Errorf("enclave: read tpm ecc point: %w", err)
	}
	pub, err := tpm2.ECDHPub(parms, point)
	if err != nil {
		p.flush(rsp.ObjectHandle)
		return nil, fmt.Errorf("enclave: convert tpm public: %w", err)
	}

	k := &tpmKey{
		provider: p,
		handle:   rsp.ObjectHandle,
		name:     rsp.Name,
		pub:      pub,
	}
	p.handles[tag] = k
	return k, nil
}

func (p *TPMProvider) flushLocked(tag string) {
	if k, ok := p.handles[tag]; ok {
		p.flush(k.handle)
		delete(p.handles, tag)
	}
}

func (p *TPMProvider) flush(h tpm2.TPMHandle) {
	if _, err := (tpm2.FlushContext{FlushHandle: h}).Execute(p.tpm); err != nil {
		p.logger.Warn("Failed to flush TPM handle", logging.Error(err))
	}
}

// wrapKeyTemplate is a non-restricted P-256 decryption key usable for
// TPM2_ECDH_ZGen.
func wrapKeyTemplate(tag string) tpm2.TPMTPublic {
	unique := sha256.Sum256([]byte(tag))
	return tpm2.TPMTPublic{
		Type:    tpm2.TPMAlgECC,
		NameAlg: tpm2.TPMAlgSHA256,
		ObjectAttributes: tpm2.TPMAObject{
			FixedTPM:            true,
			FixedParent:         true,
			SensitiveDataOrigin: true,
			UserWithAuth:        true,
			NoDA:                true,
			Decrypt:             true,
		},
		Parameters: tpm2.NewTPMUPublicParms(
			tpm2.TPMAlgECC,
			&tpm2.TPMSECCParms{
				Symmetric: tpm2.TPMTSymDefObject{Algorithm: tpm2.TPMAlgNull},
				Scheme:    tpm2.TPMTECCScheme{Scheme: tpm2.TPMAlgNull},
				CurveID:   tpm2.TPMECCNistP256,
				KDF:       tpm2.TPMTKDFScheme{Scheme: tpm2.TPMAlgNull},
			},
		),
		Unique: tpm2.NewTPMUPublicID(
			tpm2.TPMAlgECC,
			&tpm2.TPMSECCPoint{
				X: tpm2.TPM2BECCParameter{Buffer: unique[:]},
				Y: tpm2.TPM2BECCParameter{Buffer: make([]byte, 32)},
			},
		),
	}
}

// tpmKey is a loaded wrap key. ECDH runs inside the TPM.
type tpmKey struct {
	provider *TPMProvider
	handle   tpm2.TPMHandle
	name     tpm2.TPM2BName
	pub      *ecdh.PublicKey
}

func (k *tpmKey) PublicKey() *ecdh.PublicKey {
	return k.pub
}

func (k *tpmKey) ECDH(peer *ecdh.PublicKey) ([]byte, error) {
	x, y, err := tpm2.ECCPoint(peer)
	if err != nil {
		return nil, fmt.Errorf("enclave: peer point: %w", err)
	}

	k.provider.mu.Lock()
	defer k.provider.mu.Unlock()

	rsp, err := tpm2.ECDHZGen{
		KeyHandle: tpm2.AuthHandle{
			Handle: k.handle,
			Name:   k.name,
			Auth:   tpm2.PasswordAuth(nil),
		},
		InPoint: tpm2.New2B(tpm2.TPMSECCPoint{
			X: tpm2.TPM2BECCParameter{Buffer: x.FillBytes(make([]byte, 32))},
			Y: tpm2.TPM2BECCParameter{Buffer: y.FillBytes(make([]byte, 32))},
		}),
	}.Execute(k.provider.tpm)
	if err != nil {
		return nil, tpmError("ecdh zgen", err)
	}

	out, err := rsp.OutPoint.Contents()
	if err != nil {
		return nil, fmt.Errorf("enclave: read shared point: %w", err)
	}
	// The shared secret is the x coordinate, left padded to the field size.
	secret := make([]byte, 32)
	copy(secret[32-len(out.X.Buffer):], out.X.Buffer)
	return secret, nil
}

// tpmError keeps the TPM response code as the native status.
func tpmError(op string, err error) error {
	var rc tpm2.TPMRC
	if errors.As(err, &rc) {
		return backend.NewNativeError("tpm "+op, int(rc), err)
	}
	return backend.NewNativeError("tpm "+op, 0, err)
}

var _ KeyProvider = (*TPMProvider)(nil)
