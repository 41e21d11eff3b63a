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

package engine

import (
	"fmt"

	"github.com/hashicorp/go-bexpr"
)

// evalGuard evaluates a fail-if{...}/loop-guard boolean expression against
// the execution's flat shared-state map, the same map[string]string
// selector shape go-bexpr is commonly driven from for tag/attribute
// filters. An empty expression is always true (an unconditional step).
func evalGuard(expr string, state map[string]string) (bool, error) {
	if expr == "" {
		return true, nil
	}
	eval, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		return false, fmt.Errorf("engine: invalid guard expression %q: %w", expr, err)
	}
	ok, err := eval.Evaluate(state)
	if err != nil {
		return false, fmt.Errorf("engine: guard evaluation failed for %q: %w", expr, err)
	}
	return ok, nil
}
