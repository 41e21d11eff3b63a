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

package sandbox

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"
)

// minimalRunModule is a hand-assembled WASM binary equivalent to:
//
//	(module
//	  (memory (export "memory") 1)
//	  (func (export "run") (param i32 i32) (result i32) i32.const 0))
//
// It declares no imports, so it exercises the success path without needing
// a real compiled action module on disk.
var minimalRunModule = mustHex(
	"0061736d01000000" +
		"01070160027f7f017f" +
		"03020100" +
		"0503010001" +
		"071002066d656d6f727902000372756e0000" +
		"0a0601040041000b",
)

// missingRunExportModule is the same shape but exports "main" instead of
// "run", so compile() must reject it with ErrMissingEntryPoint.
var missingRunExportModule = mustHex(
	"0061736d01000000" +
		"01070160027f7f017f" +
		"03020100" +
		"0503010001" +
		"071102066d656d6f72790200046d61696e0000" +
		"0a0601040041000b",
)

// disallowedImportModule declares an import "env"."evil", outside the
// narrow ABI, so checkImports must reject it.
var disallowedImportModule = mustHex(
	"0061736d01000000" +
		"010401600000" +
		"020c0103656e76046576696c0000",
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

type fakeStore struct {
	data map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{data: make(map[string][]byte)} }

func (s *fakeStore) ReadState(ctx context.Context, tenantID, execID, key string) ([]byte, bool, error) {
	v, ok := s.data[tenantID+"/"+execID+"/"+key]
	return v, ok, nil
}

func (s *fakeStore) WriteState(ctx context.Context, tenantID, execID, key string, value []byte) error {
	s.data[tenantID+"/"+execID+"/"+key] = value
	return nil
}

type fakeEvents struct {
	events [][]byte
}

func (e *fakeEvents) EmitEvent(ctx context.Context, execID string, event []byte) error {
	e.events = append(e.events, event)
	return nil
}

func TestInvokeSucceedsOnMinimalModule(t *testing.T) {
	ctx := context.Background()
	h := NewHost(ctx, DefaultConfig())
	defer h.Close(ctx)

	res, err := h.Invoke(ctx, "noop", minimalRunModule, "tenant-a", "exec-1", []byte("hi"), newFakeStore(), &fakeEvents{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Output == nil {
		t.Fatal("expected non-nil output slice")
	}
}

func TestInvokeRejectsMissingRunExport(t *testing.T) {
	ctx := context.Background()
	h := NewHost(ctx, DefaultConfig())
	defer h.Close(ctx)

	_, err := h.Invoke(ctx, "no-run", missingRunExportModule, "tenant-a", "exec-1", nil, newFakeStore(), nil)
	if !errors.Is(err, ErrMissingEntryPoint) {
		t.Fatalf("err = %v, want ErrMissingEntryPoint", err)
	}
}

func TestInvokeRejectsDisallowedImport(t *testing.T) {
	ctx := context.Background()
	h := NewHost(ctx, DefaultConfig())
	defer h.Close(ctx)

	_, err := h.Invoke(ctx, "evil", disallowedImportModule, "tenant-a", "exec-1", nil, newFakeStore(), nil)
	if !errors.Is(err, ErrDisallowedImport) {
		t.Fatalf("err = %v, want ErrDisallowedImport", err)
	}
}

func TestInvokeCompletesWithPoolSizeOne(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.WorkerPoolSize = 1
	h := NewHost(ctx, cfg)
	defer h.Close(ctx)

	done := make(chan struct{})
	go func() {
		h.Invoke(ctx, "noop", minimalRunModule, "tenant-a", "exec-1", nil, newFakeStore(), nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Invoke did not complete in time")
	}
}

func TestCompileModuleIsCachedByKey(t *testing.T) {
	ctx := context.Background()
	h := NewHost(ctx, DefaultConfig())
	defer h.Close(ctx)

	cm1, err := h.compile(ctx, "noop", minimalRunModule)
	if err != nil {
		t.Fatal(err)
	}
	cm2, err := h.compile(ctx, "noop", minimalRunModule)
	if err != nil {
		t.Fatal(err)
	}
	if cm1 != cm2 {
		t.Fatal("expected the same compiled module instance on cache hit")
	}
}
