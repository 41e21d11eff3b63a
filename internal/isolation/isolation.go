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

// Package isolation implements C4: gating every cross-boundary access
// (state, keys, permissions, peer resource) by the active tenant and DAO
// subnet, per spec.md §4.4. Every enforcement point lives here; callers
// above this layer must never bypass it even with a "known safe" key.
package isolation

// Context is the active tenant/DAO-subnet pair an operation runs under.
// Every isolation check is relative to exactly this pair — there is no
// notion of a superuser context within this package.
type Context struct {
	TenantID string
	SubnetID string
}
