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

// Package validation implements C3: the fixed, ordered chain of checks
// applied to every payload crossing the system (flow admission, external
// event ingress, step payload, step result), per spec.md §4.3.
package validation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// KeyResolver resolves a tenant-scoped key reference to the symmetric key
// material used to open a sealed payload. Implementations live in the
// Isolation Layer (C4): this package never resolves a key itself.
type KeyResolver interface {
	ResolveKey(ctx context.Context, tenantID, keyRef string) ([]byte, error)
}

// Decrypter opens a sealed payload with a resolved key. Kept distinct from
// KeyResolver so tests can swap the AEAD implementation without faking key
// management.
type Decrypter interface {
	Open(key, ciphertext []byte) ([]byte, error)
}

// PermissionChecker answers whether identity may perform action on resource
// under the active tenant/DAO subnet.
type PermissionChecker interface {
	Allowed(ctx context.Context, tenantID, subnetID, identity, action, resource string) (bool, error)
}

// Indexer records an operation's content fingerprint for idempotent retry
// suppression and external discovery. Index reports dup=true and a
// reference to the previously recorded result when the fingerprint was
// already seen under the same tenant/subnet.
type Indexer interface {
	Index(ctx context.Context, tenantID, subnetID, fingerprint string) (dup bool, cachedRef string, err error)
}

// SignatureVerifier checks a payload's attached signature against its
// claimed signer.
type SignatureVerifier interface {
	Verify(payload, signature []byte, signer string) error
}

// SchemaValidator checks a plaintext payload's structural invariants.
type SchemaValidator interface {
	Validate(payload []byte) error
}

// Input is one payload crossing a validation boundary: flow admission,
// external event ingress, a step payload, or a step result.
type Input struct {
	TenantID string
	SubnetID string

	// Sealed payloads carry ciphertext and a key reference; unsealed
	// payloads carry plaintext directly and skip stage 1.
	Sealed     bool
	Ciphertext []byte
	KeyRef     string
	Plaintext  []byte

	Identity string
	Action   string
	Resource string

	Signature []byte
	Signer    string
}

// Result is what a successful (or cache-hit) pass through the pipeline
// produces.
type Result struct {
	Plaintext   []byte
	Fingerprint string

	// FromCache is true when this Result was served from the stage cache
	// rather than freshly computed; per §4.3 it must be indistinguishable
	// from a fresh pass at this struct's fields.
	FromCache bool

	// DuplicateOf is set when stage 3 suppressed this operation as a
	// duplicate, and holds the Indexer's reference to the prior result.
	DuplicateOf string
}

func fingerprintOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
