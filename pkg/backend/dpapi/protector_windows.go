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

package dpapi

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
)

// DPAPIProtector protects data with CryptProtectData under the current
// user's logon credentials. It never shows UI.
type DPAPIProtector struct{}

// NewDPAPIProtector returns the Windows data protection protector.
func NewDPAPIProtector() DPAPIProtector {
	return DPAPIProtector{}
}

func (DPAPIProtector) Name() string { return "dpapi" }

func (DPAPIProtector) Protect(plaintext, entropy []byte) ([]byte, error) {
	description, err := windows.UTF16PtrFromString(Description)
	if err != nil {
		return nil, err
	}
	var out windows.DataBlob
	err = windows.CryptProtectData(blob(plaintext), description, optionalBlob(entropy),
		0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out)
	if err != nil {
		return nil, nativeError("CryptProtectData", ErrProtect, err)
	}
	return takeBlob(&out), nil
}

func (DPAPIProtector) Unprotect(data, entropy []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	var out windows.DataBlob
	err := windows.CryptUnprotectData(blob(data), nil, optionalBlob(entropy),
		0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out)
	if err != nil {
		return nil, nativeError("CryptUnprotectData", ErrUnprotect, err)
	}
	return takeBlob(&out), nil
}

func blob(b []byte) *windows.DataBlob {
	if len(b) == 0 {
		return &windows.DataBlob{}
	}
	return &windows.DataBlob{Size: uint32(len(b)), Data: &b[0]}
}

func optionalBlob(b []byte) *windows.DataBlob {
	if len(b) == 0 {
		return nil
	}
	return blob(b)
}

// takeBlob copies out of the LocalAlloc'd buffer and frees it.
func takeBlob(out *windows.DataBlob) []byte {
	if out.Data == nil {
		return []byte{}
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(out.Data)))
	return append([]byte(nil), unsafe.Slice(out.Data, out.Size)...)
}

func nativeError(op string, kind, err error) error {
	var errno windows.Errno
	if errors.As(err, &errno) {
		return backend.NewNativeError(op, int(errno), fmt.Errorf("%w: %v", kind, err))
	}
	return fmt.Errorf("%w: %v", kind, err)
}

var _ Protector = DPAPIProtector{}
