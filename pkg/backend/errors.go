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

package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record exists for a key ID.
	ErrNotFound = errors.New("backend: not found")

	// ErrClosed is returned when using a backend after Close.
	ErrClosed = errors.New("backend: closed")

	// ErrUserCancelled is returned when the user dismissed a presence prompt.
	ErrUserCancelled = errors.New("backend: user cancelled authentication")

	// ErrAuthFailed is returned when a presence check ran and did not match.
	ErrAuthFailed = errors.New("backend: authentication failed")

	// ErrLockedOut is returned after too many failed presence checks.
	ErrLockedOut = errors.New("backend: too many failed attempts")

	// ErrNotAvailable is returned when the native facility is absent.
	ErrNotAvailable = errors.New("backend: secure facility not available")

	// ErrWrapKeyMissing is returned when unsealing with a variant whose wrap
	// key has never been created.
	ErrWrapKeyMissing = errors.New("backend: wrap key missing")

	// ErrInvalidCiphertext is returned when sealed data cannot be opened with
	// the selected wrap key.
	ErrInvalidCiphertext = errors.New("backend: invalid sealed data")

	// ErrInvalidVariant is returned for an unknown wrap key variant.
	ErrInvalidVariant = errors.New("backend: invalid variant")
)

// NativeError carries a platform status code (OSStatus, Win32 error,
// TPM response code) alongside the operation that produced it.
type NativeError struct {
	Op   string
	Code int
	Err  error
}

// NewNativeError wraps err with a native status code.
func NewNativeError(op string, code int, err error) *NativeError {
	return &NativeError{Op: op, Code: code, Err: err}
}

func (e *NativeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: native status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: native status %d: %v", e.Op, e.Code, e.Err)
}

func (e *NativeError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the first native status code found in err's chain.
func StatusCode(err error) (int, bool) {
	var native *NativeError
	if errors.As(err, &native) {
		return native.Code, true
	}
	return 0, false
}
