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

package metrics

import (
	"math"
	"sync/atomic"
)

// GaugeFloat64 holds a float64 value that can be set arbitrarily.
type GaugeFloat64 interface {
	Snapshot() GaugeFloat64
	Update(float64)
	Value() float64
}

func NewGaugeFloat64() GaugeFloat64 {
	return &StandardGaugeFloat64{}
}

func NewRegisteredGaugeFloat64(name string, r Registry) GaugeFloat64 {
	c := NewGaugeFloat64()
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, c)
	return c
}

func GetOrRegisterGaugeFloat64(name string, r Registry) GaugeFloat64 {
	if r == nil {
		r = DefaultRegistry
	}
	return r.GetOrRegister(name, NewGaugeFloat64).(GaugeFloat64)
}

// NewFunctionalGaugeFloat64 returns a GaugeFloat64 whose value is computed
// by calling f on every read; it is never updated directly.
func NewFunctionalGaugeFloat64(f func() float64) GaugeFloat64 {
	return &FunctionalGaugeFloat64{value: f}
}

func NewRegisteredFunctionalGaugeFloat64(name string, r Registry, f func() float64) GaugeFloat64 {
	c := NewFunctionalGaugeFloat64(f)
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, c)
	return c
}

type GaugeFloat64Snapshot float64

func (g GaugeFloat64Snapshot) Snapshot() GaugeFloat64 { return g }
func (GaugeFloat64Snapshot) Update(float64)           { panic("Update called on a GaugeFloat64Snapshot") }
func (g GaugeFloat64Snapshot) Value() float64         { return float64(g) }

type NilGaugeFloat64 struct{}

func (NilGaugeFloat64) Snapshot() GaugeFloat64 { return NilGaugeFloat64{} }
func (NilGaugeFloat64) Update(v float64)       {}
func (NilGaugeFloat64) Value() float64         { return 0 }

// StandardGaugeFloat64 uses math.Float64bits over an atomic uint64 to store
// a float64 without locking.
type StandardGaugeFloat64 struct {
	bits atomic.Uint64
}

func (g *StandardGaugeFloat64) Snapshot() GaugeFloat64 {
	return GaugeFloat64Snapshot(g.Value())
}

func (g *StandardGaugeFloat64) Update(v float64) {
	g.bits.Store(math.Float64bits(v))
}

func (g *StandardGaugeFloat64) Value() float64 {
	return math.Float64frombits(g.bits.Load())
}

// FunctionalGaugeFloat64 returns value from a function, ignoring direct updates.
type FunctionalGaugeFloat64 struct {
	value func() float64
}

func (g FunctionalGaugeFloat64) Value() float64        { return g.value() }
func (g FunctionalGaugeFloat64) Snapshot() GaugeFloat64 { return GaugeFloat64Snapshot(g.Value()) }
func (FunctionalGaugeFloat64) Update(float64) {
	panic("Update called on a FunctionalGaugeFloat64")
}
