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

// Package biometric gates use of biometric-bound wrap keys behind a
// presence.Verifier, tracking failed attempts, lockout, and an optional
// session window during which a recent success is reused.
package biometric

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/logging"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/metrics"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/presence"
)

const (
	// MaxFailedAttempts is the number of consecutive failures that trigger
	// a lockout.
	MaxFailedAttempts = 5

	// LockoutDuration is how long the gate refuses to prompt after a lockout.
	LockoutDuration = 30 * time.Second

	// RecommendedSessionTimeout is the reuse window used by interactive
	// front ends.
	RecommendedSessionTimeout = 30 * time.Second
)

// State is the gate's current state.
type State int

const (
	StateNotConfigured State = iota
	StateReady
	StateLockedOut
	StateDisabled
	StateNotAvailable
)

func (s State) String() string {
	switch s {
	case StateNotConfigured:
		return "not_configured"
	case StateReady:
		return "ready"
	case StateLockedOut:
		return "locked_out"
	case StateDisabled:
		return "disabled"
	case StateNotAvailable:
		return "not_available"
	default:
		return "unknown"
	}
}

// Config configures a Gate.
type Config struct {
	// SessionTimeout reuses a success for this long. Zero prompts every time.
	SessionTimeout time.Duration

	// MaxFailedAttempts overrides the default lockout threshold.
	MaxFailedAttempts int

	// LockoutDuration overrides the default lockout period.
	LockoutDuration time.Duration

	Logger logging.Logger

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Gate serializes presence checks and applies the lockout policy.
type Gate struct {
	verifier presence.Verifier
	cfg      Config

	// promptMu is held for the whole of a prompt; mu only guards state.
	promptMu sync.Mutex

	mu          sync.Mutex
	state       State
	failed      int
	lockedUntil time.Time
	lastSuccess time.Time
}

// NewGate returns a gate over verifier.
func NewGate(verifier presence.Verifier, cfg Config) *Gate {
	if verifier == nil {
		verifier = presence.None{}
	}
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = MaxFailedAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = LockoutDuration
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &Gate{
		verifier: verifier,
		cfg:      cfg,
		state:    StateNotConfigured,
	}
}

// Probe reports the sensor type without prompting or changing state
// beyond recording availability.
func (g *Gate) Probe(ctx context.Context) (backend.BiometricType, bool) {
	kind, ok := g.verifier.Available(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case !ok && g.state != StateDisabled:
		g.state = StateNotAvailable
	case ok && (g.state == StateNotConfigured || g.state == StateNotAvailable):
		g.state = StateReady
	}
	if !ok {
		return backend.BiometricNone, false
	}
	return kind, true
}

// State returns the current state, expiring an elapsed lockout.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expireLockoutLocked()
	return g.state
}

// FailedAttempts returns the consecutive failure count.
func (g *Gate) FailedAttempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failed
}

// Require prompts for presence unless a valid session exists. It returns
// nil on success, backend.ErrUserCancelled, backend.ErrAuthFailed,
// backend.ErrLockedOut or backend.ErrNotAvailable. Prompts are serialized;
// state readers such as Probe and State never wait on an open prompt.
func (g *Gate) Require(ctx context.Context, reason string) error {
	g.promptMu.Lock()
	defer g.promptMu.Unlock()

	if done, err := g.admit(); done {
		return err
	}

	_, available := g.verifier.Available(ctx)
	var (
		outcome presence.Outcome
		err     error
	)
	if available {
		outcome, err = g.verifier.Verify(ctx, reason)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !available {
		if g.state != StateDisabled {
			g.state = StateNotAvailable
		}
		return backend.ErrNotAvailable
	}
	if g.state == StateNotConfigured || g.state == StateNotAvailable {
		g.state = StateReady
	}
	if err != nil {
		g.cfg.Logger.Warn("presence verification error", logging.Error(err))
		metrics.RecordPrompt("error")
		return fmt.Errorf("%w: %v", backend.ErrAuthFailed, err)
	}
	metrics.RecordPrompt(outcome.String())

	switch outcome {
	case presence.OutcomeSuccess:
		if g.state == StateDisabled {
			return fmt.Errorf("%w: biometric gate disabled", backend.ErrNotAvailable)
		}
		g.failed = 0
		g.lastSuccess = g.cfg.Now()
		g.state = StateReady
		return nil
	case presence.OutcomeCancelled:
		return backend.ErrUserCancelled
	case presence.OutcomeNotAvailable:
		if g.state != StateDisabled {
			g.state = StateNotAvailable
		}
		return backend.ErrNotAvailable
	default:
		g.recordFailureLocked()
		if g.state == StateLockedOut {
			metrics.RecordLockout()
			return backend.ErrLockedOut
		}
		return backend.ErrAuthFailed
	}
}

// admit decides under the state lock whether Require can finish without
// prompting.
func (g *Gate) admit() (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.expireLockoutLocked()
	switch g.state {
	case StateDisabled:
		return true, fmt.Errorf("%w: biometric gate disabled", backend.ErrNotAvailable)
	case StateLockedOut:
		return true, backend.ErrLockedOut
	}
	if g.sessionValidLocked() {
		return true, nil
	}
	return false, nil
}

// ResetLockout clears the failure counter and an active lockout.
func (g *Gate) ResetLockout() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failed = 0
	g.lockedUntil = time.Time{}
	if g.state == StateLockedOut {
		g.state = StateReady
	}
}

// Disable refuses every subsequent Require until Enable is called.
func (g *Gate) Disable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = StateDisabled
	g.lastSuccess = time.Time{}
}

// Enable re-enables a disabled gate.
func (g *Gate) Enable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateDisabled {
		g.state = StateNotConfigured
	}
}

// InvalidateSession forces the next Require to prompt.
func (g *Gate) InvalidateSession() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastSuccess = time.Time{}
}

func (g *Gate) recordFailureLocked() {
	g.failed++
	if g.failed >= g.cfg.MaxFailedAttempts {
		g.state = StateLockedOut
		g.lockedUntil = g.cfg.Now().Add(g.cfg.LockoutDuration)
		g.cfg.Logger.Warn("biometric gate locked out",
			logging.Int("failed_attempts", g.failed),
			logging.Duration("lockout", g.cfg.LockoutDuration))
	}
}

func (g *Gate) expireLockoutLocked() {
	if g.state == StateLockedOut && !g.cfg.Now().Before(g.lockedUntil) {
		g.failed = 0
		g.lockedUntil = time.Time{}
		g.state = StateReady
	}
}

func (g *Gate) sessionValidLocked() bool {
	if g.cfg.SessionTimeout <= 0 || g.lastSuccess.IsZero() {
		return false
	}
	return g.cfg.Now().Sub(g.lastSuccess) < g.cfg.SessionTimeout
}
