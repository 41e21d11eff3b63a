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
	"errors"
	"testing"

	"github.com/qflow/qflow/internal/storage"
	"github.com/qflow/qflow/metrics"
)

func TestStoreIsolatesAcrossTenants(t *testing.T) {
	s := NewStore(storage.NewMemory())
	ctx := context.Background()

	if err := s.Write(ctx, "tenant-a", "subnet-1", "exec-1", "k", []byte("secret")); err != nil {
		t.Fatal(err)
	}

	if _, found, err := s.Read(ctx, "tenant-b", "subnet-1", "exec-1", "k"); err != nil || found {
		t.Fatalf("found=%v err=%v, want a clean miss for a different tenant", found, err)
	}
	if _, found, err := s.Read(ctx, "tenant-a", "subnet-2", "exec-1", "k"); err != nil || found {
		t.Fatalf("found=%v err=%v, want a clean miss for a different subnet", found, err)
	}

	v, found, err := s.Read(ctx, "tenant-a", "subnet-1", "exec-1", "k")
	if err != nil || !found {
		t.Fatalf("expected a hit in the owning context, found=%v err=%v", found, err)
	}
	if string(v) != "secret" {
		t.Fatalf("value = %q", v)
	}
}

func TestBoundAdaptsStoreForSandboxABI(t *testing.T) {
	s := NewStore(storage.NewMemory())
	ctx := context.Background()
	b := s.Bind("subnet-1")

	if err := b.WriteState(ctx, "tenant-a", "exec-1", "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	v, found, err := b.ReadState(ctx, "tenant-a", "exec-1", "k")
	if err != nil || !found || string(v) != "v" {
		t.Fatalf("found=%v err=%v v=%q", found, err, v)
	}

	other := s.Bind("subnet-2")
	if _, found, _ := other.ReadState(ctx, "tenant-a", "exec-1", "k"); found {
		t.Fatal("expected a miss across subnets via a differently bound adapter")
	}
}

func TestKeyStoreResolvesOnlyUnderOwningTenant(t *testing.T) {
	ks := NewKeyStore()
	ks.Put("tenant-a", "ref1", []byte("key-material"))

	key, err := ks.ResolveKey(context.Background(), "tenant-a", "ref1")
	if err != nil || string(key) != "key-material" {
		t.Fatalf("key=%q err=%v", key, err)
	}

	if _, err := ks.ResolveKey(context.Background(), "tenant-b", "ref1"); !errors.Is(err, ErrIsolationViolation) {
		t.Fatalf("err = %v, want ErrIsolationViolation", err)
	}
}

func TestAccountantDeniesUnconfiguredTenant(t *testing.T) {
	a := NewAccountant(metrics.NewRegistry())
	if err := a.Charge("tenant-a", ResourceMemoryBytes, 10); !errors.Is(err, ErrQuotaNotConfigured) {
		t.Fatalf("err = %v, want ErrQuotaNotConfigured", err)
	}
}

func TestAccountantEnforcesQuotaCeiling(t *testing.T) {
	a := NewAccountant(metrics.NewRegistry())
	a.SetQuota("tenant-a", Quota{MemoryBytes: 100})

	if err := a.Charge("tenant-a", ResourceMemoryBytes, 60); err != nil {
		t.Fatal(err)
	}
	if err := a.Charge("tenant-a", ResourceMemoryBytes, 60); !errors.Is(err, ErrResourceExceeded) {
		t.Fatalf("err = %v, want ErrResourceExceeded", err)
	}
	if got := a.Usage("tenant-a", ResourceMemoryBytes); got != 60 {
		t.Fatalf("usage = %d, want 60 (rejected charge must not apply)", got)
	}
}

func TestAccountantQuotaIsPerTenant(t *testing.T) {
	a := NewAccountant(metrics.NewRegistry())
	a.SetQuota("tenant-a", Quota{ConcurrentSteps: 1})
	a.SetQuota("tenant-b", Quota{ConcurrentSteps: 1})

	if err := a.Charge("tenant-a", ResourceConcurrentStep, 1); err != nil {
		t.Fatal(err)
	}
	if err := a.Charge("tenant-a", ResourceConcurrentStep, 1); !errors.Is(err, ErrResourceExceeded) {
		t.Fatalf("tenant-a err = %v, want ErrResourceExceeded", err)
	}
	// tenant-b's quota must be untouched by tenant-a's exhaustion.
	if err := a.Charge("tenant-b", ResourceConcurrentStep, 1); err != nil {
		t.Fatalf("tenant-b Charge failed, quotas must not leak across tenants: %v", err)
	}
}

func TestAccountantReleaseFreesCapacity(t *testing.T) {
	a := NewAccountant(metrics.NewRegistry())
	a.SetQuota("tenant-a", Quota{ConcurrentSteps: 1})

	if err := a.Charge("tenant-a", ResourceConcurrentStep, 1); err != nil {
		t.Fatal(err)
	}
	a.Release("tenant-a", ResourceConcurrentStep, 1)
	if err := a.Charge("tenant-a", ResourceConcurrentStep, 1); err != nil {
		t.Fatalf("expected released capacity to be chargeable again: %v", err)
	}
}
