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

//go:build !windows

package enclave

import (
	"strings"

	"github.com/google/go-tpm/tpm2/transport"
	"github.com/google/go-tpm/tpm2/transport/linuxtpm"
	"github.com/google/go-tpm/tpm2/transport/linuxudstpm"
)

// DefaultTPMDevice is the kernel resource manager device.
const DefaultTPMDevice = "/dev/tpmrm0"

func openDevice(device string) (transport.TPMCloser, error) {
	if device == "" {
		device = DefaultTPMDevice
	}
	if strings.HasSuffix(device, ".sock") {
		return linuxudstpm.Open(device)
	}
	return linuxtpm.Open(device)
}
