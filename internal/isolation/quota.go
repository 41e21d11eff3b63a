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
	"fmt"
	"sync"

	"github.com/qflow/qflow/metrics"
)

// Resource names a quota-accounted dimension (§4.4's "memory, CPU
// seconds, concurrent steps, storage, network bytes").
type Resource string

const (
	ResourceMemoryBytes    Resource = "memory_bytes"
	ResourceCPUSeconds     Resource = "cpu_seconds"
	ResourceConcurrentStep Resource = "concurrent_steps"
	ResourceStorageBytes   Resource = "storage_bytes"
	ResourceNetworkBytes   Resource = "network_bytes"
)

// Quota is one tenant's resource ceilings. A zero value for a resource
// means no ceiling for that resource: Charge accepts any amount of it. Only
// a tenant with no Quota at all is denied — see Accountant.Charge.
type Quota struct {
	MemoryBytes     int64
	CPUSeconds      int64
	ConcurrentSteps int64
	StorageBytes    int64
	NetworkBytes    int64
}

func (q Quota) limit(r Resource) (int64, bool) {
	switch r {
	case ResourceMemoryBytes:
		return q.MemoryBytes, q.MemoryBytes > 0
	case ResourceCPUSeconds:
		return q.CPUSeconds, q.CPUSeconds > 0
	case ResourceConcurrentStep:
		return q.ConcurrentSteps, q.ConcurrentSteps > 0
	case ResourceStorageBytes:
		return q.StorageBytes, q.StorageBytes > 0
	case ResourceNetworkBytes:
		return q.NetworkBytes, q.NetworkBytes > 0
	default:
		return 0, false
	}
}

// Accountant tracks per-tenant resource consumption against configured
// Quotas and exposes every counter as a metrics.Registry gauge, the same
// atomic-counter-plus-registry pattern the teacher's metrics package uses
// for meters so an operator scrapes tenant quota state the same way they
// scrape chain metrics (via the adapted metrics/prometheus exporter).
type Accountant struct {
	mu     sync.Mutex
	quotas map[string]Quota
	usage  map[string]map[Resource]int64
	r      metrics.Registry
}

// NewAccountant builds an Accountant whose gauges register into r. A nil
// r uses metrics.DefaultRegistry.
func NewAccountant(r metrics.Registry) *Accountant {
	if r == nil {
		r = metrics.DefaultRegistry
	}
	return &Accountant{
		quotas: make(map[string]Quota),
		usage:  make(map[string]map[Resource]int64),
		r:      r,
	}
}

// SetQuota configures tenantID's ceilings. An unconfigured tenant has no
// Quota entry at all, which Charge treats as "deny" per ErrQuotaNotConfigured
// — quotas are opt-in only in the sense that an operator must provision a
// tenant before it can consume anything.
func (a *Accountant) SetQuota(tenantID string, q Quota) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.quotas[tenantID] = q
}

func (a *Accountant) gauge(tenantID string, r Resource) metrics.Gauge {
	name := fmt.Sprintf("isolation/tenant/%s/%s", tenantID, r)
	return metrics.GetOrRegisterGauge(name, a.r)
}

// Charge adds delta to tenantID's running usage of r and fails
// ErrResourceExceeded if the new total exceeds the configured quota. A
// failed Charge still leaves the tenant's usage counter at its prior
// value — the charge is rejected, not partially applied — and never
// touches any other tenant's accounting.
func (a *Accountant) Charge(tenantID string, r Resource, delta int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	q, ok := a.quotas[tenantID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrQuotaNotConfigured, tenantID)
	}
	if a.usage[tenantID] == nil {
		a.usage[tenantID] = make(map[Resource]int64)
	}
	next := a.usage[tenantID][r] + delta
	if limit, bounded := q.limit(r); bounded && next > limit {
		return fmt.Errorf("%w: tenant %s resource %s would reach %d > %d", ErrResourceExceeded, tenantID, r, next, limit)
	}
	a.usage[tenantID][r] = next
	a.gauge(tenantID, r).Update(next)
	return nil
}

// Release subtracts delta from tenantID's running usage of r (e.g. a
// concurrent-step slot freed on step completion). It never fails.
func (a *Accountant) Release(tenantID string, r Resource, delta int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.usage[tenantID] == nil {
		return
	}
	next := a.usage[tenantID][r] - delta
	if next < 0 {
		next = 0
	}
	a.usage[tenantID][r] = next
	a.gauge(tenantID, r).Update(next)
}

// Usage returns tenantID's current tracked usage of r.
func (a *Accountant) Usage(tenantID string, r Resource) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage[tenantID][r]
}
