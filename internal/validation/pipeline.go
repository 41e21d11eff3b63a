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
	"context"
	"errors"
	"fmt"

	"github.com/qflow/qflow/common/lru"
)

// DefaultCacheSize bounds the process-wide secondary cache used when a
// Pipeline is not given a per-execution cache explicitly (§9 Open Question:
// "per-execution validation cache with an optional process-wide
// secondary").
const DefaultCacheSize = 4096

// cacheKey memoizes stage results on a content fingerprint plus the active
// tenant/DAO subnet, exactly as §4.3's Caching clause specifies.
type cacheKey struct {
	fingerprint string
	tenant      string
	subnet      string
}

// Pipeline runs the four fixed, ordered stages of §4.3 over every payload
// crossing a validation boundary. Each stage's behavior is supplied by a
// narrow interface so the engine, the flow-admission endpoint, and tests
// can each wire their own key/permission/index/signature backends against
// the same fixed ordering and error taxonomy.
type Pipeline struct {
	Keys    KeyResolver
	Decrypt Decrypter
	Perms   PermissionChecker
	Index   Indexer
	Sigs    SignatureVerifier
	Schema  SchemaValidator

	cache *lru.Cache[cacheKey, Result]
}

// NewPipeline builds a Pipeline. cacheSize <= 0 uses DefaultCacheSize.
func NewPipeline(keys KeyResolver, dec Decrypter, perms PermissionChecker, idx Indexer, sigs SignatureVerifier, schema SchemaValidator, cacheSize int) *Pipeline {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &Pipeline{
		Keys:    keys,
		Decrypt: dec,
		Perms:   perms,
		Index:   idx,
		Sigs:    sigs,
		Schema:  schema,
		cache:   lru.NewCache[cacheKey, Result](cacheSize),
	}
}

// Validate runs in.TenantID/in.SubnetID's payload through stages 1-4 in
// order, short-circuiting on the first failure or on a cache hit. A cache
// hit returns a Result with FromCache set but is otherwise identical in
// shape to a freshly computed Result, per §4.3's Caching clause.
func (p *Pipeline) Validate(ctx context.Context, in Input) (Result, error) {
	plaintext := in.Plaintext
	if in.Sealed {
		key, err := p.Keys.ResolveKey(ctx, in.TenantID, in.KeyRef)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
		}
		plaintext, err = p.Decrypt.Open(key, in.Ciphertext)
		if err != nil {
			return Result{}, err
		}
	}

	fp := fingerprintOf(plaintext)
	key := cacheKey{fingerprint: fp, tenant: in.TenantID, subnet: in.SubnetID}
	if cached, ok := p.cache.Get(key); ok {
		cached.FromCache = true
		return cached, nil
	}

	allowed, err := p.Perms.Allowed(ctx, in.TenantID, in.SubnetID, in.Identity, in.Action, in.Resource)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if !allowed {
		return Result{}, ErrPermissionDenied
	}

	dup, cachedRef, err := p.Index.Index(ctx, in.TenantID, in.SubnetID, fp)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrIndexingUnavailable, err)
	}
	if dup {
		return Result{Fingerprint: fp, DuplicateOf: cachedRef}, ErrDuplicateSuppressed
	}

	if p.Sigs != nil && len(in.Signature) > 0 {
		if err := p.Sigs.Verify(plaintext, in.Signature, in.Signer); err != nil {
			return Result{}, errors.Join(ErrIntegrityViolation, err)
		}
	}
	if p.Schema != nil {
		if err := p.Schema.Validate(plaintext); err != nil {
			return Result{}, err
		}
	}

	res := Result{Plaintext: plaintext, Fingerprint: fp}
	p.cache.Add(key, res)
	return res, nil
}
