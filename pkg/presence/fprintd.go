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

package presence

import (
	"context"
	"errors"
	"fmt"
	"os/user"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/backend"
)

const (
	fprintdService       = "net.reactivated.Fprint"
	fprintdManagerPath   = dbus.ObjectPath("/net/reactivated/Fprint/Manager")
	fprintdManagerIface  = "net.reactivated.Fprint.Manager"
	fprintdDeviceIface   = "net.reactivated.Fprint.Device"
	fprintdVerifyStatus  = "VerifyStatus"
	fprintdAnyFinger     = "any"
	fprintdNoEnrolledErr = "net.reactivated.Fprint.Error.NoEnrolledPrints"
	fprintdNoDeviceErr   = "net.reactivated.Fprint.Error.NoSuchDevice"
)

// fprintd verify results
const (
	verifyMatch        = "verify-match"
	verifyNoMatch      = "verify-no-match"
	verifyDisconnected = "verify-disconnected"
	verifyUnknownError = "verify-unknown-error"
)

// Fprintd verifies presence with the Linux fingerprint daemon over the
// system bus.
type Fprintd struct {
	// Username is the enrolled user. Defaults to the current user.
	Username string

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewFprintd connects to the system bus.
func NewFprintd() (*Fprintd, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("presence: connect system bus: %w", err)
	}
	return &Fprintd{conn: conn}, nil
}

// NewFprintdWithConn uses an existing bus connection.
func NewFprintdWithConn(conn *dbus.Conn) *Fprintd {
	return &Fprintd{conn: conn}
}

// Close closes the bus connection.
func (f *Fprintd) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}

func (f *Fprintd) username() (string, error) {
	if f.Username != "" {
		return f.Username, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

func (f *Fprintd) device(ctx context.Context) (dbus.BusObject, error) {
	var path dbus.ObjectPath
	manager := f.conn.Object(fprintdService, fprintdManagerPath)
	if err := manager.CallWithContext(ctx, fprintdManagerIface+".GetDefaultDevice", 0).Store(&path); err != nil {
		return nil, err
	}
	return f.conn.Object(fprintdService, path), nil
}

// Available reports a fingerprint verifier when fprintd has a default
// device with at least one enrolled finger for the user.
func (f *Fprintd) Available(ctx context.Context) (backend.BiometricType, bool) {
	if f.conn == nil {
		return backend.BiometricNone, false
	}
	dev, err := f.device(ctx)
	if err != nil {
		return backend.BiometricNone, false
	}
	name, err := f.username()
	if err != nil {
		return backend.BiometricNone, false
	}
	var fingers []string
	if err := dev.CallWithContext(ctx, fprintdDeviceIface+".ListEnrolledFingers", 0, name).Store(&fingers); err != nil {
		return backend.BiometricNone, false
	}
	if len(fingers) == 0 {
		return backend.BiometricNone, false
	}
	return backend.BiometricFingerprint, true
}

// Verify claims the default device, starts a verification and waits for
// the final VerifyStatus signal. Cancelling ctx stops the scan and reports
// OutcomeCancelled.
func (f *Fprintd) Verify(ctx context.Context, reason string) (Outcome, error) {
	if f.conn == nil {
		return OutcomeNotAvailable, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	dev, err := f.device(ctx)
	if err != nil {
		if isDBusError(err, fprintdNoDeviceErr) {
			return OutcomeNotAvailable, nil
		}
		return OutcomeFailed, fmt.Errorf("presence: fprintd device: %w", err)
	}
	name, err := f.username()
	if err != nil {
		return OutcomeFailed, fmt.Errorf("presence: resolve user: %w", err)
	}

	if err := dev.CallWithContext(ctx, fprintdDeviceIface+".Claim", 0, name).Err; err != nil {
		return OutcomeFailed, fmt.Errorf("presence: fprintd claim: %w", err)
	}
	defer dev.Call(fprintdDeviceIface+".Release", 0)

	matchOpts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(dev.Path()),
		dbus.WithMatchInterface(fprintdDeviceIface),
		dbus.WithMatchMember(fprintdVerifyStatus),
	}
	if err := f.conn.AddMatchSignal(matchOpts...); err != nil {
		return OutcomeFailed, fmt.Errorf("presence: fprintd subscribe: %w", err)
	}
	defer func() { _ = f.conn.RemoveMatchSignal(matchOpts...) }()

	signals := make(chan *dbus.Signal, 8)
	f.conn.Signal(signals)
	defer f.conn.RemoveSignal(signals)

	if err := dev.CallWithContext(ctx, fprintdDeviceIface+".VerifyStart", 0, fprintdAnyFinger).Err; err != nil {
		if isDBusError(err, fprintdNoEnrolledErr) {
			return OutcomeNotAvailable, nil
		}
		return OutcomeFailed, fmt.Errorf("presence: fprintd verify start: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			dev.Call(fprintdDeviceIface+".VerifyStop", 0)
			return OutcomeCancelled, nil
		case sig, ok := <-signals:
			if !ok {
				return OutcomeFailed, errors.New("presence: fprintd signal channel closed")
			}
			if sig.Path != dev.Path() || sig.Name != fprintdDeviceIface+"."+fprintdVerifyStatus {
				continue
			}
			result, done, ok := parseVerifyStatus(sig.Body)
			if !ok || !done {
				continue
			}
			dev.Call(fprintdDeviceIface+".VerifyStop", 0)
			return verifyOutcome(result), nil
		}
	}
}

func parseVerifyStatus(body []interface{}) (string, bool, bool) {
	if len(body) < 2 {
		return "", false, false
	}
	result, ok := body[0].(string)
	if !ok {
		return "", false, false
	}
	done, ok := body[1].(bool)
	if !ok {
		return "", false, false
	}
	return result, done, true
}

func verifyOutcome(result string) Outcome {
	switch result {
	case verifyMatch:
		return OutcomeSuccess
	case verifyDisconnected:
		return OutcomeNotAvailable
	case verifyNoMatch, verifyUnknownError:
		return OutcomeFailed
	default:
		return OutcomeFailed
	}
}

func isDBusError(err error, name string) bool {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name == name
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return dbusErrPtr.Name == name
	}
	return false
}

var _ Verifier = (*Fprintd)(nil)
