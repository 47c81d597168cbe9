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

package keystore

import (
	"errors"
	"fmt"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
)

// Kind is the closed set of failure classes surfaced to callers.
type Kind int

const (
	KindInvalidArgument Kind = iota + 1
	KindKeystore
	KindSeal
	KindUnseal
)

// String returns the kind in snake case, as used for metric labels.
func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindKeystore:
		return "keystore_error"
	case KindSeal:
		return "seal_error"
	case KindUnseal:
		return "unseal_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	// ErrInvalidArgument matches malformed or missing call arguments.
	ErrInvalidArgument = errors.New("keystore: invalid argument")

	// ErrKeystore matches backend failures on named-secret operations.
	ErrKeystore = errors.New("keystore: secure storage unavailable")

	// ErrSeal matches master key seal failures.
	ErrSeal = errors.New("keystore: seal failed")

	// ErrUnseal matches master key unseal failures, cancellation included.
	ErrUnseal = errors.New("keystore: unseal failed")

	// ErrCancelled matches an unseal the user cancelled at the biometric
	// prompt.
	ErrCancelled = errors.New("keystore: user cancelled authentication")
)

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindKeystore:
		return ErrKeystore
	case KindSeal:
		return ErrSeal
	case KindUnseal:
		return ErrUnseal
	default:
		return nil
	}
}

// Error is the only error type returned by Keystore. Err holds the
// backend's message only; native error types are not reachable through
// it. Code is the native status (OSStatus, Win32 error, TPM response code,
// D-Bus error name hash) or 0 when unknown.
type Error struct {
	Kind          Kind
	Op            string
	Code          int
	UserCancelled bool
	Err           error
}

// NewError builds an Error of kind for op. A nil err yields the kind's
// own message.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := "keystore: " + e.Op + ": " + e.Kind.String()
	if e.UserCancelled {
		msg += ": user cancelled"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Code != 0 {
		msg += fmt.Sprintf(" (native status %d)", e.Code)
	}
	return msg
}

// Is matches the kind sentinels and ErrCancelled.
func (e *Error) Is(target error) bool {
	if target == ErrCancelled {
		return e.UserCancelled
	}
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Cancelled reports whether the user dismissed the biometric prompt.
func (e *Error) Cancelled() bool {
	return e.UserCancelled
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Kind
	}
	return 0
}

// IsCancelled reports whether err is a cancelled unseal.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// wrapBackendError converts a backend error into an *Error of kind. The
// native status code is kept and the chain is cut to the message text.
func wrapBackendError(kind Kind, op string, err error) *Error {
	e := &Error{Kind: kind, Op: op, Err: errors.New(err.Error())}
	if code, ok := backend.StatusCode(err); ok {
		e.Code = code
	}
	if kind == KindUnseal && errors.Is(err, backend.ErrUserCancelled) {
		e.UserCancelled = true
	}
	return e
}

// errorType is the metric label for err.
func errorType(err error) string {
	var kerr *Error
	if !errors.As(err, &kerr) {
		return "unknown"
	}
	if kerr.UserCancelled {
		return "user_cancelled"
	}
	return kerr.Kind.String()
}
