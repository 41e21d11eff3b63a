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

// Package storage defines the key-value abstraction the ledger (and every
// other component that needs durable per-node state) is built on, the same
// way go-ethereum's core databases are built on ethdb.Database rather than
// directly on a concrete engine. A node process holds one KV, backed by
// cockroachdb/pebble when a data dir is configured and by the in-memory
// implementation otherwise; tests run against the in-memory implementation.
package storage

import "errors"

// ErrNotFound is returned by Get when a key is absent; Has reports
// (false, nil) instead.
var ErrNotFound = errors.New("storage: key not found")

// KV is the minimal durable key-value store every component depends on.
// Keys are raw bytes ordered lexicographically; callers impose their own
// namespacing by key prefix.
type KV interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error

	// NewBatch returns a write batch that commits atomically: the ledger
	// relies on this for append(entry) + advance(head) to land together.
	NewBatch() Batch

	// NewIteratorWithPrefix returns an iterator over all keys sharing the
	// given prefix, in ascending lexicographic order.
	NewIteratorWithPrefix(prefix []byte) Iterator

	Close() error
}

// Batch accumulates writes for atomic commit.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
	Reset()
	Len() int
}

// Iterator walks a KV's keys in order. Callers must call Release when done.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Release()
}
