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

package isolation

import (
	"context"
	"encoding/hex"

	"github.com/qflow/qflow/internal/storage"
)

// Store is the only place a step action's keyed state is read or written.
// Every key is namespaced by tenant, DAO subnet, and execution id before it
// ever reaches storage.KV, the same way core/rawdb prefixes every key by
// table rather than trusting callers to never collide — here the prefix
// also carries the access-control boundary, not just a namespace.
type Store struct {
	kv storage.KV
}

// NewStore wraps kv with tenant/subnet/execution-scoped state isolation.
func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv}
}

func stateKey(tenantID, subnetID, execID, key string) []byte {
	// hex-encode each component so an embedded separator byte in any of
	// tenant/subnet/execID/key can never make one caller's key collide
	// with another's.
	b := make([]byte, 0, 4+4*32+len(tenantID)*2+len(subnetID)*2+len(execID)*2+len(key)*2)
	b = append(b, "st/"...)
	for _, part := range []string{tenantID, subnetID, execID, key} {
		b = append(b, '/')
		b = append(b, []byte(hex.EncodeToString([]byte(part)))...)
	}
	return b
}

// Read returns the value stored for key under the given tenant/subnet/exec
// context. It never returns a value written under a different tenant or
// subnet, and a miss looks identical whether the key was never written or
// was written under a different context (§4.4's no-existence-leak
// contract applies one level up, at Get/Write below — this method itself
// is already scoped, so callers only ever see their own namespace).
func (s *Store) Read(ctx context.Context, tenantID, subnetID, execID, key string) ([]byte, bool, error) {
	v, err := s.kv.Get(stateKey(tenantID, subnetID, execID, key))
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

// Write stores value for key under the given tenant/subnet/exec context.
func (s *Store) Write(ctx context.Context, tenantID, subnetID, execID, key string, value []byte) error {
	return s.kv.Put(stateKey(tenantID, subnetID, execID, key), value)
}

// Bound adapts Store to sandbox.StateStore for one fixed DAO subnet: a
// sandbox invocation only ever carries tenantID/execID (the narrow host
// ABI has no subnet parameter, by design — see spec.md §4.2), so the
// subnet is pinned once per execution by whoever invokes the sandbox.
type Bound struct {
	store    *Store
	subnetID string
}

// Bind fixes subnetID for the lifetime of one execution's sandbox calls.
func (s *Store) Bind(subnetID string) *Bound {
	return &Bound{store: s, subnetID: subnetID}
}

// ReadState implements sandbox.StateStore.
func (b *Bound) ReadState(ctx context.Context, tenantID, execID, key string) ([]byte, bool, error) {
	return b.store.Read(ctx, tenantID, b.subnetID, execID, key)
}

// WriteState implements sandbox.StateStore.
func (b *Bound) WriteState(ctx context.Context, tenantID, execID, key string, value []byte) error {
	return b.store.Write(ctx, tenantID, b.subnetID, execID, key, value)
}
