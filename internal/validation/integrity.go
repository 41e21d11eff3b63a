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

package validation

import (
	"fmt"

	"crypto/ed25519"
)

// Ed25519Verifier checks a payload's signature against a signer identity
// whose public key is resolved by KeyFor. There is no third-party signature
// library in the example pack's dependency set (the pack's own signature
// handling is secp256k1-based account signing deep inside crypto/ and
// accounts/, not a reusable verifier); crypto/ed25519 is the standard
// library's own constant-time implementation, so no external package is
// reached for here.
type Ed25519Verifier struct {
	KeyFor func(signer string) (ed25519.PublicKey, error)
}

// Verify implements SignatureVerifier.
func (v Ed25519Verifier) Verify(payload, signature []byte, signer string) error {
	pub, err := v.KeyFor(signer)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrityViolation, err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: malformed public key for signer %s", ErrIntegrityViolation, signer)
	}
	if !ed25519.Verify(pub, payload, signature) {
		return fmt.Errorf("%w: signature mismatch for signer %s", ErrIntegrityViolation, signer)
	}
	return nil
}

// StaticSchemaValidator enforces a minimal structural invariant: a
// validated payload must be non-empty and, when maxLen is positive, must
// not exceed it. Real schemas are a property of the step/flow definition
// and are supplied by the engine layer (C5); this default exists so the
// pipeline is usable standalone and in tests.
type StaticSchemaValidator struct {
	MaxLen int
}

// Validate implements SchemaValidator.
func (v StaticSchemaValidator) Validate(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrSchemaInvalid)
	}
	if v.MaxLen > 0 && len(payload) > v.MaxLen {
		return fmt.Errorf("%w: payload exceeds %d bytes", ErrSchemaInvalid, v.MaxLen)
	}
	return nil
}
