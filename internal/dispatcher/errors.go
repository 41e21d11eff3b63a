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

package dispatcher

import "errors"

var (
	// ErrNoEligibleNode means every candidate node either failed the
	// capability match or had no remaining quota to admit the step (§7,
	// retryable).
	ErrNoEligibleNode = errors.New("dispatcher: no eligible node for step")

	// ErrTenantAtCap means the step's tenant is already at
	// max_concurrent_flows; the dispatcher skips it rather than blocking
	// other tenants (§4.6 "Fairness").
	ErrTenantAtCap = errors.New("dispatcher: tenant at concurrency cap")

	// ErrUnknownNode is returned when a caller references a node_id the
	// arena has never seen a sample from.
	ErrUnknownNode = errors.New("dispatcher: unknown node")
)
