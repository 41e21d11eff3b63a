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

package validation

import "errors"

// Sentinel errors for every stage failure mode named in spec.md §4.3/§7.
// ErrDuplicateSuppressed and ErrIndexingUnavailable are not failures of the
// payload itself: the former short-circuits the pipeline with a cached
// result, the latter is in the retryable set and belongs to the caller's
// step retry policy, not a dropped payload.
var (
	ErrDecryptionFailed    = errors.New("validation: payload could not be decrypted under the bound key")
	ErrPermissionDenied    = errors.New("validation: identity lacks the declared action on the declared resource")
	ErrIndexingUnavailable = errors.New("validation: dedup index unavailable")
	ErrDuplicateSuppressed = errors.New("validation: operation already indexed, suppressing as duplicate")
	ErrIntegrityViolation  = errors.New("validation: signature or structural invariant check failed")
	ErrSchemaInvalid       = errors.New("validation: payload does not conform to the declared schema")
)
