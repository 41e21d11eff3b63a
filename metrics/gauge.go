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

import "sync/atomic"

// Gauge holds an int64 value that can be set arbitrarily. The isolation
// layer (§4.4) uses it for per-tenant quota usage; the dispatcher uses it
// for queue depth.
type Gauge interface {
	Snapshot() Gauge
	Update(int64)
	Dec(int64)
	Inc(int64)
	Value() int64
}

func NewGauge() Gauge {
	return &StandardGauge{}
}

func NewRegisteredGauge(name string, r Registry) Gauge {
	c := NewGauge()
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, c)
	return c
}

func GetOrRegisterGauge(name string, r Registry) Gauge {
	if r == nil {
		r = DefaultRegistry
	}
	return r.GetOrRegister(name, NewGauge).(Gauge)
}

// NewFunctionalGauge returns a Gauge whose value is computed by calling f
// on every read; it is never updated directly.
func NewFunctionalGauge(f func() int64) Gauge {
	return &FunctionalGauge{value: f}
}

func NewRegisteredFunctionalGauge(name string, r Registry, f func() int64) Gauge {
	c := NewFunctionalGauge(f)
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, c)
	return c
}

type GaugeSnapshot int64

func (g GaugeSnapshot) Snapshot() Gauge { return g }
func (GaugeSnapshot) Update(int64)      { panic("Update called on a GaugeSnapshot") }
func (GaugeSnapshot) Dec(int64)         { panic("Dec called on a GaugeSnapshot") }
func (GaugeSnapshot) Inc(int64)         { panic("Inc called on a GaugeSnapshot") }
func (g GaugeSnapshot) Value() int64    { return int64(g) }

type NilGauge struct{}

func (NilGauge) Snapshot() Gauge { return NilGauge{} }
func (NilGauge) Update(v int64)  {}
func (NilGauge) Dec(i int64)     {}
func (NilGauge) Inc(i int64)     {}
func (NilGauge) Value() int64    { return 0 }

// StandardGauge is the standard implementation of a Gauge.
type StandardGauge struct {
	value atomic.Int64
}

func (g *StandardGauge) Snapshot() Gauge { return GaugeSnapshot(g.Value()) }
func (g *StandardGauge) Update(v int64)  { g.value.Store(v) }
func (g *StandardGauge) Dec(i int64)     { g.value.Add(-i) }
func (g *StandardGauge) Inc(i int64)     { g.value.Add(i) }
func (g *StandardGauge) Value() int64    { return g.value.Load() }

// FunctionalGauge returns value from a function, ignoring direct updates.
type FunctionalGauge struct {
	value func() int64
}

func (g FunctionalGauge) Value() int64    { return g.value() }
func (g FunctionalGauge) Snapshot() Gauge { return GaugeSnapshot(g.Value()) }
func (FunctionalGauge) Update(int64)      { panic("Update called on a FunctionalGauge") }
func (FunctionalGauge) Dec(int64)         { panic("Dec called on a FunctionalGauge") }
func (FunctionalGauge) Inc(int64)         { panic("Inc called on a FunctionalGauge") }
