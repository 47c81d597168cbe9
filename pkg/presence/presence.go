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

// Package presence defines the user-presence verifiers consulted before a
// biometric-bound wrap key may be used.
package presence

import (
	"context"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
)

// Outcome is the result of a single presence check.
type Outcome int

const (
	// OutcomeSuccess means the user was verified.
	OutcomeSuccess Outcome = iota

	// OutcomeCancelled means the user dismissed the prompt or the caller
	// cancelled the context.
	OutcomeCancelled

	// OutcomeFailed means the check ran and did not match.
	OutcomeFailed

	// OutcomeNotAvailable means no verifier hardware or enrollment exists.
	OutcomeNotAvailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	case OutcomeNotAvailable:
		return "not_available"
	default:
		return "unknown"
	}
}

// Verifier performs user presence checks.
type Verifier interface {
	// Available probes for an enrolled verifier without prompting.
	Available(ctx context.Context) (backend.BiometricType, bool)

	// Verify prompts the user. reason is shown where the platform
	// supports it. An error is returned only for transport failures; a
	// negative answer is reported through the Outcome.
	Verify(ctx context.Context, reason string) (Outcome, error)
}

// None is a Verifier for devices without biometrics.
type None struct{}

func (None) Available(context.Context) (backend.BiometricType, bool) {
	return backend.BiometricNone, false
}

func (None) Verify(context.Context, string) (Outcome, error) {
	return OutcomeNotAvailable, nil
}

// Func adapts a function to the Verifier interface.
type Func struct {
	Type backend.BiometricType
	Fn   func(ctx context.Context, reason string) (Outcome, error)
}

func (f Func) Available(context.Context) (backend.BiometricType, bool) {
	if f.Fn == nil || f.Type == backend.BiometricNone || f.Type == "" {
		return backend.BiometricNone, false
	}
	return f.Type, true
}

func (f Func) Verify(ctx context.Context, reason string) (Outcome, error) {
	if f.Fn == nil {
		return OutcomeNotAvailable, nil
	}
	if err := ctx.Err(); err != nil {
		return OutcomeCancelled, nil
	}
	return f.Fn(ctx, reason)
}

// Always returns a verifier of the given type that answers every prompt
// with outcome.
func Always(kind backend.BiometricType, outcome Outcome) Func {
	return Func{
		Type: kind,
		Fn: func(context.Context, string) (Outcome, error) {
			return outcome, nil
		},
	}
}

var (
	_ Verifier = None{}
	_ Verifier = Func{}
)
