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

// Package channel maps the named request/response catalog onto the
// keystore facade. Requests arrive as a method name and an argument map;
// replies are a result value or a coded *Error.
package channel

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/keystore"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/logging"
)

// Method names accepted by Dispatch.
const (
	MethodStoreKey             = "storeKey"
	MethodRetrieveKey          = "retrieveKey"
	MethodDeleteKey            = "deleteKey"
	MethodKeyExists            = "keyExists"
	MethodSealMasterKey        = "sealMasterKey"
	MethodUnsealMasterKey      = "unsealMasterKey"
	MethodGetCapabilities      = "getCapabilities"
	MethodSetBiometricsEnabled = "setBiometricsEnabled"
	MethodIsBiometricsEnabled  = "isBiometricsEnabled"
)

// Argument names.
const (
	ArgKeyID        = "keyId"
	ArgEncryptedKey = "encryptedKey"
	ArgMasterKey    = "masterKey"
	ArgSealedKey    = "sealedKey"
	ArgEnabled      = "enabled"
)

// Methods lists every method in the catalog.
var Methods = []string{
	MethodStoreKey,
	MethodRetrieveKey,
	MethodDeleteKey,
	MethodKeyExists,
	MethodSealMasterKey,
	MethodUnsealMasterKey,
	MethodGetCapabilities,
	MethodSetBiometricsEnabled,
	MethodIsBiometricsEnabled,
}

// Keystore is the facade surface the dispatcher drives.
type Keystore interface {
	StoreKey(ctx context.Context, keyID string, data []byte) error
	RetrieveKey(ctx context.Context, keyID string) ([]byte, bool, error)
	DeleteKey(ctx context.Context, keyID string) error
	KeyExists(ctx context.Context, keyID string) (bool, error)
	SealMasterKey(ctx context.Context, masterKey []byte) ([]byte, error)
	UnsealMasterKey(ctx context.Context, sealed []byte) ([]byte, error)
	Capabilities(ctx context.Context) backend.Capabilities
	SetBiometricsEnabled(ctx context.Context, enabled bool) error
	BiometricsEnabled(ctx context.Context) (bool, error)
}

// ErrorDetails carries diagnostics that do not change the error class.
type ErrorDetails struct {
	NativeCode int `json:"nativeCode"`
}

// Error is the wire form of a failed call.
type Error struct {
	Code    keystore.ErrorCode `json:"code"`
	Message string             `json:"message"`
	Details *ErrorDetails      `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Dispatcher routes method calls to a Keystore.
type Dispatcher struct {
	keystore Keystore
	logger   logging.Logger
}

// NewDispatcher returns a dispatcher over ks. A nil logger discards output.
func NewDispatcher(ks Keystore, logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Dispatcher{keystore: ks, logger: logger}
}

// Dispatch executes method with args. args must be a map[string]any for
// every method except getCapabilities. The result is JSON-encodable;
// byte results are []byte and an absent retrieveKey result is nil.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, args any) (any, *Error) {
	logging.DebugCtx(ctx, d.logger, "channel call", logging.String("method", method))

	if method == MethodGetCapabilities {
		return d.keystore.Capabilities(ctx), nil
	}
	if !isKnown(method) {
		return nil, &Error{
			Code:    keystore.CodeNotImplemented,
			Message: fmt.Sprintf("method %q not implemented", method),
		}
	}
	m, ok := args.(map[string]any)
	if !ok || m == nil {
		return nil, invalid("Arguments missing")
	}

	switch method {
	case MethodStoreKey:
		keyID, ok := stringArg(m, ArgKeyID)
		data, okData := bytesArg(m, ArgEncryptedKey)
		if !ok || !okData {
			return nil, invalid("keyId and encryptedKey required")
		}
		if err := d.keystore.StoreKey(ctx, keyID, data); err != nil {
			return nil, d.fail(ctx, method, err)
		}
		return true, nil

	case MethodRetrieveKey:
		keyID, ok := stringArg(m, ArgKeyID)
		if !ok {
			return nil, invalid("keyId required")
		}
		data, found, err := d.keystore.RetrieveKey(ctx, keyID)
		if err != nil {
			return nil, d.fail(ctx, method, err)
		}
		if !found {
			return nil, nil
		}
		return data, nil

	case MethodDeleteKey:
		keyID, ok := stringArg(m, ArgKeyID)
		if !ok {
			return nil, invalid("keyId required")
		}
		if err := d.keystore.DeleteKey(ctx, keyID); err != nil {
			return nil, d.fail(ctx, method, err)
		}
		return true, nil

	case MethodKeyExists:
		keyID, ok := stringArg(m, ArgKeyID)
		if !ok {
			return nil, invalid("keyId required")
		}
		exists, err := d.keystore.KeyExists(ctx, keyID)
		if err != nil {
			return nil, d.fail(ctx, method, err)
		}
		return exists, nil

	case MethodSealMasterKey:
		masterKey, ok := bytesArg(m, ArgMasterKey)
		if !ok {
			return nil, invalid("masterKey required")
		}
		sealed, err := d.keystore.SealMasterKey(ctx, masterKey)
		if err != nil {
			return nil, d.fail(ctx, method, err)
		}
		return sealed, nil

	case MethodUnsealMasterKey:
		sealed, ok := bytesArg(m, ArgSealedKey)
		if !ok {
			return nil, invalid("sealedKey required")
		}
		masterKey, err := d.keystore.UnsealMasterKey(ctx, sealed)
		if err != nil {
			return nil, d.fail(ctx, method, err)
		}
		return masterKey, nil

	case MethodSetBiometricsEnabled:
		enabled, ok := m[ArgEnabled].(bool)
		if !ok {
			return nil, invalid("enabled required")
		}
		if err := d.keystore.SetBiometricsEnabled(ctx, enabled); err != nil {
			return nil, d.fail(ctx, method, err)
		}
		return true, nil

	default: // MethodIsBiometricsEnabled
		enabled, err := d.keystore.BiometricsEnabled(ctx)
		if err != nil {
			return nil, d.fail(ctx, method, err)
		}
		return enabled, nil
	}
}

func (d *Dispatcher) fail(ctx context.Context, method string, err error) *Error {
	cerr := FromError(err)
	logging.DebugCtx(ctx, d.logger, "channel call failed",
		logging.String("method", method),
		logging.String("code", string(cerr.Code)))
	return cerr
}

// FromError converts a facade error into its wire form.
func FromError(err error) *Error {
	cerr := &Error{Code: keystore.ErrorCodeOf(err), Message: err.Error()}
	var kerr *keystore.Error
	if errors.As(err, &kerr) {
		if kerr.Err != nil {
			cerr.Message = kerr.Err.Error()
		} else {
			cerr.Message = kerr.Kind.String()
		}
		if kerr.Code != 0 {
			cerr.Details = &ErrorDetails{NativeCode: kerr.Code}
		}
	}
	return cerr
}

// KeystoreError rebuilds the facade error for a wire error received from
// method.
func (e *Error) KeystoreError(method string) *keystore.Error {
	native := 0
	if e.Details != nil {
		native = e.Details.NativeCode
	}
	return keystore.ErrorFromCode(e.Code, method, e.Message, native)
}

func invalid(message string) *Error {
	return &Error{Code: keystore.CodeInvalidArgument, Message: message}
}

func isKnown(method string) bool {
	for _, m := range Methods {
		if m == method {
			return true
		}
	}
	return false
}

func stringArg(args map[string]any, name string) (string, bool) {
	s, ok := args[name].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// bytesArg accepts raw bytes, a base64 string, or a JSON array of
// integers in [0, 255].
func bytesArg(args map[string]any, name string) ([]byte, bool) {
	switch v := args[name].(type) {
	case []byte:
		return v, v != nil
	case string:
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, false
		}
		return b, true
	case []any:
		b := make([]byte, len(v))
		for i, e := range v {
			n, ok := e.(float64)
			if !ok || n < 0 || n > 255 || n != float64(int(n)) {
				return nil, false
			}
			b[i] = byte(n)
		}
		return b, true
	default:
		return nil, false
	}
}
