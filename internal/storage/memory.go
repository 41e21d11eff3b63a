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

package storage

import (
	"bytes"
	"sort"
	"sync"
)

// memoryDB is a sorted in-memory KV, the same role go-ethereum's
// ethdb/memorydb plays for unit tests that should not touch disk.
type memoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns a KV backed by a plain Go map, for tests and for a
// node with no data dir configured.
func NewMemory() KV {
	return &memoryDB{data: make(map[string][]byte)}
}

func (db *memoryDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *memoryDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	v, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (db *memoryDB) Put(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	db.data[string(key)] = cp
	return nil
}

func (db *memoryDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

func (db *memoryDB) Close() error { return nil }

func (db *memoryDB) NewBatch() Batch {
	return &memoryBatch{db: db}
}

type memoryOp struct {
	key    []byte
	value  []byte
	delete bool
}

type memoryBatch struct {
	db  *memoryDB
	ops []memoryOp
}

func (b *memoryBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, memoryOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
	return nil
}

func (b *memoryBatch) Delete(key []byte) error {
	b.ops = append(b.ops, memoryOp{key: append([]byte(nil), key...), delete: true})
	return nil
}

func (b *memoryBatch) Commit() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(b.db.data, string(op.key))
			continue
		}
		b.db.data[string(op.key)] = op.value
	}
	return nil
}

func (b *memoryBatch) Reset()   { b.ops = b.ops[:0] }
func (b *memoryBatch) Len() int { return len(b.ops) }

type memoryIterator struct {
	keys []string
	vals map[string][]byte
	pos  int
}

func (db *memoryDB) NewIteratorWithPrefix(prefix []byte) Iterator {
	db.mu.RLock()
	defer db.mu.RUnlock()

	vals := make(map[string][]byte, len(db.data))
	var keys []string
	for k, v := range db.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			cp := make([]byte, len(v))
			copy(cp, v)
			vals[k] = cp
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return &memoryIterator{keys: keys, vals: vals, pos: -1}
}

func (it *memoryIterator) Next() bool {
	it.pos++
	return it.pos < len(it.keys)
}

func (it *memoryIterator) Key() []byte   { return []byte(it.keys[it.pos]) }
func (it *memoryIterator) Value() []byte { return it.vals[it.keys[it.pos]] }
func (it *memoryIterator) Error() error  { return nil }
func (it *memoryIterator) Release()      {}
