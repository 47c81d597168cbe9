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

import "errors"

// ErrorCode is the wire code for a failure on the request channel.
type ErrorCode string

const (
	CodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	CodeKeystore        ErrorCode = "KEYSTORE_ERROR"
	CodeSeal            ErrorCode = "SEAL_ERROR"
	CodeUnseal          ErrorCode = "UNSEAL_ERROR"
	CodeUserCancelled   ErrorCode = "USER_CANCELLED"
	CodeNotImplemented  ErrorCode = "NOT_IMPLEMENTED"
)

// ErrorCodeOf returns the wire code for err. Errors that are not an
// *Error map to KEYSTORE_ERROR.
func ErrorCodeOf(err error) ErrorCode {
	var kerr *Error
	if !errors.As(err, &kerr) {
		return CodeKeystore
	}
	if kerr.UserCancelled {
		return CodeUserCancelled
	}
	switch kerr.Kind {
	case KindInvalidArgument:
		return CodeInvalidArgument
	case KindSeal:
		return CodeSeal
	case KindUnseal:
		return CodeUnseal
	default:
		return CodeKeystore
	}
}

// ErrorFromCode rebuilds an *Error received over the channel.
// NOT_IMPLEMENTED and unknown codes become KindKeystore.
func ErrorFromCode(code ErrorCode, op, message string, nativeCode int) *Error {
	e := &Error{Op: op, Code: nativeCode}
	if message != "" {
		e.Err = errors.New(message)
	}
	switch code {
	case CodeInvalidArgument:
		e.Kind = KindInvalidArgument
	case CodeSeal:
		e.Kind = KindSeal
	case CodeUnseal:
		e.Kind = KindUnseal
	case CodeUserCancelled:
		e.Kind = KindUnseal
		e.UserCancelled = true
	default:
		e.Kind = KindKeystore
	}
	return e
}
