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

package ledger

import "errors"

// Sentinel errors matching the taxonomy in §7: LedgerConflict and NotFound
// are retryable by the caller under policy; IntegrityViolation is fatal and
// must never be retried.
var (
	ErrNotFound          = errors.New("ledger: not found")
	ErrLedgerConflict    = errors.New("ledger: conflicting concurrent append")
	ErrIntegrityViolation = errors.New("ledger: hash chain integrity violation")
	ErrInvalidRange      = errors.New("ledger: invalid seq range")
)
