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
	"testing"
)

func TestMemoryPutGet(t *testing.T) {
	db := NewMemory()
	defer db.Close()

	if _, err := db.Get([]byte("missing")); err != ErrNotFound {
		t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
	}
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	v, err := db.Get([]byte("k"))
	if err != nil || !bytes.Equal(v, []byte("v")) {
		t.Fatalf("Get(k) = %q, %v, want v, nil", v, err)
	}
	if ok, _ := db.Has([]byte("k")); !ok {
		t.Fatal("Has(k) = false, want true")
	}
	if err := db.Delete([]byte("k")); err != nil {
		t.Fatal(err)
	}
	if ok, _ := db.Has([]byte("k")); ok {
		t.Fatal("Has(k) = true after Delete, want false")
	}
}

func TestMemoryBatchAtomicity(t *testing.T) {
	db := NewMemory()
	defer db.Close()

	b := db.NewBatch()
	b.Put([]byte("a"), []byte("1"))
	b.Put([]byte("b"), []byte("2"))
	if ok, _ := db.Has([]byte("a")); ok {
		t.Fatal("uncommitted batch write visible before Commit")
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}
	for k, want := range map[string]string{"a": "1", "b": "2"} {
		v, err := db.Get([]byte(k))
		if err != nil || string(v) != want {
			t.Fatalf("Get(%s) = %q, %v, want %s, nil", k, v, err, want)
		}
	}
}

func TestMemoryIteratorPrefix(t *testing.T) {
	tests := []struct {
		content map[string]string
		prefix  string
		order   []string
	}{
		{map[string]string{}, "", nil},
		{map[string]string{"key": "val"}, "k", []string{"key"}},
		{map[string]string{"key": "val"}, "l", nil},
		{
			map[string]string{"k1": "v1", "k5": "v5", "k2": "v2", "k4": "v4", "k3": "v3"},
			"k",
			[]string{"k1", "k2", "k3", "k4", "k5"},
		},
		{
			map[string]string{
				"ka1": "va1", "ka2": "va2", "kb1": "vb1", "kb2": "vb2",
			},
			"ka",
			[]string{"ka1", "ka2"},
		},
	}
	for i, tt := range tests {
		db := NewMemory()
		for k, v := range tt.content {
			if err := db.Put([]byte(k), []byte(v)); err != nil {
				t.Fatalf("test %d: Put(%s): %v", i, k, err)
			}
		}
		it := db.NewIteratorWithPrefix([]byte(tt.prefix))
		var have []string
		for it.Next() {
			have = append(have, string(it.Key()))
			if string(it.Value()) != tt.content[string(it.Key())] {
				t.Errorf("test %d: value mismatch for %s", i, it.Key())
			}
		}
		it.Release()
		if len(have) != len(tt.order) {
			t.Fatalf("test %d: have %v, want %v", i, have, tt.order)
		}
		for j := range have {
			if have[j] != tt.order[j] {
				t.Fatalf("test %d: have %v, want %v", i, have, tt.order)
			}
		}
		db.Close()
	}
}
