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

import "errors"

// ErrIsolationViolation is returned for any cross-tenant or cross-subnet
// access attempt. Per spec.md §4.4 it never signals whether the key or
// resource exists under the other context: a wrong-context read fails
// identically to a read of a key that was never written.
var ErrIsolationViolation = errors.New("isolation: access outside the active tenant/subnet context")

// ErrResourceExceeded is returned when a tenant's sampled resource
// consumption (memory, CPU seconds, concurrent steps, storage, network
// bytes) exceeds its quota. It is fatal to the current step only; it must
// never affect other tenants.
var ErrResourceExceeded = errors.New("isolation: tenant resource quota exceeded")

// ErrQuotaNotConfigured is returned when a tenant has no quota record at
// all, which Accounting treats as "deny" rather than "unlimited" — an
// unconfigured tenant is a misconfiguration, not an allowance.
var ErrQuotaNotConfigured = errors.New("isolation: no quota configured for tenant")
