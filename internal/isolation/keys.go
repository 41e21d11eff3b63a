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
	"fmt"
	"sync"
)

// KeyStore implements validation.KeyResolver: key references are opaque
// strings resolvable only under the tenant that owns them (§4.4). It holds
// key material in memory only — persisting sealed key material is a
// deployment concern left to whoever constructs a KeyStore, not this
// package.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[string][]byte // tenantID + "/" + keyRef -> key bytes
}

// NewKeyStore returns an empty KeyStore.
func NewKeyStore() *KeyStore {
	return &KeyStore{keys: make(map[string][]byte)}
}

// Put registers key material for tenantID/keyRef. A later Put with the
// same tenant/ref overwrites it (key rotation).
func (k *KeyStore) Put(tenantID, keyRef string, key []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[tenantID+"/"+keyRef] = append([]byte(nil), key...)
}

// ResolveKey implements validation.KeyResolver. A keyRef registered under
// one tenant is never visible to a ResolveKey call for another tenant,
// even when the ref string is identical.
func (k *KeyStore) ResolveKey(ctx context.Context, tenantID, keyRef string) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[tenantID+"/"+keyRef]
	if !ok {
		return nil, fmt.Errorf("%w: key ref %q", ErrIsolationViolation, keyRef)
	}
	return key, nil
}
