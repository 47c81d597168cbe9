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
	"fmt"
	"runtime"
)

const (
	// ServiceName is the fixed namespace for every named secret and wrap
	// key. It must never change between releases or previously stored data
	// is orphaned.
	ServiceName = "com.pirate.wallet"

	// ItemLabel is the human readable label attached to stored secrets.
	ItemLabel = "Pirate Wallet Key"

	// MasterKeySize is the length of the plaintext master key.
	MasterKeySize = 32
)

// Variant selects which wrap key seals the master key.
type Variant int

const (
	// VariantStandard uses the wrap key with no presence requirement.
	VariantStandard Variant = iota

	// VariantBiometric uses the wrap key gated behind biometric or user
	// presence where the platform supports it.
	VariantBiometric
)

// String returns the variant name.
func (v Variant) String() string {
	switch v {
	case VariantStandard:
		return "standard"
	case VariantBiometric:
		return "biometric"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Valid reports whether v is a known variant.
func (v Variant) Valid() bool {
	return v == VariantStandard || v == VariantBiometric
}

// VariantFor returns the variant selected by the biometric preference.
func VariantFor(biometricsEnabled bool) Variant {
	if biometricsEnabled {
		return VariantBiometric
	}
	return VariantStandard
}

// Platform identifies the operating system family a backend targets.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformMacOS   Platform = "macos"
	PlatformWindows Platform = "windows"
	PlatformLinux   Platform = "linux"
	PlatformUnknown Platform = "unknown"
)

// CurrentPlatform maps runtime.GOOS to a Platform.
func CurrentPlatform() Platform {
	switch runtime.GOOS {
	case "android":
		return PlatformAndroid
	case "ios":
		return PlatformIOS
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
		return PlatformLinux
	default:
		return PlatformUnknown
	}
}

// BiometricType describes the biometric sensor available to the gate.
type BiometricType string

const (
	BiometricFingerprint BiometricType = "fingerprint"
	BiometricFace        BiometricType = "face"
	BiometricIris        BiometricType = "iris"
	BiometricMultiple    BiometricType = "multiple"
	BiometricNone        BiometricType = "none"
)

// Capabilities is a point-in-time capability snapshot. It is never
// persisted and is recomputed on every query.
type Capabilities struct {
	HasSecureHardware bool `json:"hasSecureHardware"`
	HasStrongBox      bool `json:"hasStrongBox"`
	HasSecureEnclave  bool `json:"hasSecureEnclave"`
	HasBiometrics     bool `json:"hasBiometrics"`

	// BiometricVariantDegraded is true when the biometric variant has its
	// own wrap key but no presence check guards it.
	BiometricVariantDegraded bool `json:"biometricVariantDegraded"`

	BiometricType BiometricType `json:"biometricType"`
	Platform      Platform      `json:"platform"`
}
