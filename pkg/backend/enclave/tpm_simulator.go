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

//go:build tpm_simulator

package enclave

import (
	"github.com/google/go-tpm-tools/simulator"
	"github.com/google/go-tpm/tpm2/transport"
)

// simulatorCloser adapts the embedded simulator to transport.TPMCloser.
type simulatorCloser struct {
	sim *simulator.Simulator
	transport.TPM
}

func (s *simulatorCloser) Close() error {
	return s.sim.Close()
}

func openSimulator() (transport.TPMCloser, error) {
	sim, err := simulator.GetWithFixedSeedInsecure(1234567890)
	if err != nil {
		return nil, err
	}
	return &simulatorCloser{sim: sim, TPM: transport.FromReadWriter(sim)}, nil
}

func init() {
	simulatorOpener = openSimulator
}
