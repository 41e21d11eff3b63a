// Copyright 2024 The qflow Authors
// This file is part of the qflow library.
//
// The qflow library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The qflow library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the qflow library. If not, see <http://www.gnu.org/licenses/>.

package coordination

import (
	"fmt"

	"github.com/qflow/qflow/internal/ledger"
)

// chainVerifyDownWeight is the multiplicative score penalty applied to a
// peer whose gossiped entry fails signer verification in VerifyEntry
// (§4.7 "Byzantine tolerance": "the source is down-weighted in the
// dispatcher score").
const chainVerifyDownWeight = 0.5

// SignatureVerifier checks a signed ledger entry's signer, mirroring
// internal/validation.SignatureVerifier's shape so the same
// Ed25519Verifier implementation serves both validation and chain
// verification.
type SignatureVerifier interface {
	Verify(payload, signature []byte, signer string) error
}

// VerifyEntry checks e's signer (the signature over e.Hash); it does not
// recompute the chain hash, which AppendReplicated checks when the entry
// is appended. On failure it down-weights fromNode in the
// shared nodearena.Arena on failure so the dispatcher scores it lower and
// a failing source gradually loses influence (§4.7: "invalid entries are
// dropped and the source is down-weighted"). It never triggers
// re-election itself — the caller is expected to call ElectLeader once
// too many verification failures accumulate from the current leader.
func (c *Coordinator) VerifyEntry(fromNode string, e ledger.Entry, signature []byte, verifier SignatureVerifier) error {
	if err := verifier.Verify(e.Hash[:], signature, fromNode); err != nil {
		if c.arena != nil {
			c.arena.DownWeight(fromNode, chainVerifyDownWeight)
		}
		return fmt.Errorf("coordination: entry from %s failed signer verification: %w", fromNode, err)
	}
	return nil
}
