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

	"github.com/heimdalr/dag"
)

// vertex is the value every step id is stored under in the underlying DAG.
// heimdalr/dag keys a vertex by its ID() when the value implements
// dag.IDInterface, so this is the only adapter needed between a step id
// string and the library's vertex type.
type vertex struct {
	id string
}

func (v vertex) ID() string { return v.id }

// Graph wraps a heimdalr/dag.DAG with the step-graph operations the state
// machine needs: add a step, declare a dependency edge, and query
// children/parents/roots. loop steps synthesize vertices into this same
// DAG lazily (see unrollNext in loop.go) rather than introducing a
// second, bespoke graph type — the same reuse-over-reinvention the pack
// itself favors by building on `heimdalr/dag` for its own ordering DAGs.
type Graph struct {
	d   *dag.DAG
	ids []string
}

// NewGraph returns an empty step graph.
func NewGraph() *Graph {
	return &Graph{d: dag.NewDAG()}
}

// AddStep adds id as a vertex. Adding the same id twice is a no-op.
func (g *Graph) AddStep(id string) error {
	if _, err := g.d.GetVertex(id); err == nil {
		return nil
	}
	if _, err := g.d.AddVertex(vertex{id: id}); err != nil {
		return err
	}
	g.ids = append(g.ids, id)
	return nil
}

// AddDependency records that step dependsOn must be Completed (or Skipped)
// before step can become Ready.
func (g *Graph) AddDependency(step, dependsOn string) error {
	if err := g.d.AddEdge(dependsOn, step); err != nil {
		return fmt.Errorf("%w: %v", ErrCycleDetected, err)
	}
	return nil
}

// Parents returns the step ids step directly depends on.
func (g *Graph) Parents(step string) ([]string, error) {
	m, err := g.d.GetParents(step)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, step)
	}
	return vertexIDs(m), nil
}

// Children returns the step ids that directly depend on step.
func (g *Graph) Children(step string) ([]string, error) {
	m, err := g.d.GetChildren(step)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, step)
	}
	return vertexIDs(m), nil
}

// Roots returns every step with no dependencies.
func (g *Graph) Roots() []string {
	return vertexIDs(g.d.GetRoots())
}

// StepIDs returns every step id currently in the graph, in insertion order.
func (g *Graph) StepIDs() []string {
	out := make([]string, len(g.ids))
	copy(out, g.ids)
	return out
}

func vertexIDs(m map[string]interface{}) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}
