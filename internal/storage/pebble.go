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
	"github.com/cockroachdb/pebble"
)

// pebbleDB adapts cockroachdb/pebble, an embedded ordered KV store with
// native atomic batches, to the KV interface. This is the one node-wide
// store every execution's ledger stream and isolated step state live in
// (node records and quota counters are kept in memory), namespaced by key
// prefix rather than by separate
// database files — the same layering go-ethereum uses leveldb/pebble for
// its chain database under ethdb.Database.
type pebbleDB struct {
	db *pebble.DB
}

// OpenPebble opens (creating if absent) a pebble store rooted at dir.
func OpenPebble(dir string) (KV, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &pebbleDB{db: db}, nil
}

func (p *pebbleDB) Has(key []byte) (bool, error) {
	v, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = v
	return true, closer.Close()
}

func (p *pebbleDB) Get(key []byte) ([]byte, error) {
	v, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return cp, nil
}

func (p *pebbleDB) Put(key, value []byte) error {
	return p.db.Set(key, value, pebble.Sync)
}

func (p *pebbleDB) Delete(key []byte) error {
	return p.db.Delete(key, pebble.Sync)
}

func (p *pebbleDB) Close() error {
	return p.db.Close()
}

func (p *pebbleDB) NewBatch() Batch {
	return &pebbleBatch{batch: p.db.NewBatch()}
}

type pebbleBatch struct {
	batch *pebble.Batch
}

func (b *pebbleBatch) Put(key, value []byte) error { return b.batch.Set(key, value, nil) }
func (b *pebbleBatch) Delete(key []byte) error      { return b.batch.Delete(key, nil) }
func (b *pebbleBatch) Commit() error                { return b.batch.Commit(pebble.Sync) }
func (b *pebbleBatch) Reset()                       { b.batch.Reset() }
func (b *pebbleBatch) Len() int                     { return b.batch.Count() }

type pebbleIterator struct {
	it   *pebble.Iterator
	done bool
}

func (p *pebbleDB) NewIteratorWithPrefix(prefix []byte) Iterator {
	end := upperBound(prefix)
	it, _ := p.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: end})
	return &pebbleIterator{it: it}
}

// upperBound returns the smallest key that is strictly greater than every
// key with the given prefix, forming a half-open range [prefix, upperBound).
func upperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix was all 0xff: unbounded above
}

func (it *pebbleIterator) Next() bool {
	if it.done {
		return it.it.Next()
	}
	it.done = true
	return it.it.First()
}

func (it *pebbleIterator) Key() []byte   { return it.it.Key() }
func (it *pebbleIterator) Value() []byte { return it.it.Value() }
func (it *pebbleIterator) Error() error  { return it.it.Error() }
func (it *pebbleIterator) Release()      { it.it.Close() }
