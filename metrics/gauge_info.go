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
	"encoding/json"
	"sync"
)

// GaugeInfoValue holds arbitrary string key/value metadata, e.g. a node's
// subnet id and build version, exposed as a single informational gauge.
type GaugeInfoValue map[string]string

// String renders v as compact, key-sorted JSON (json.Marshal sorts map keys).
func (v GaugeInfoValue) String() string {
	blob, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(blob)
}

// GaugeInfo holds a GaugeInfoValue that can be updated atomically.
type GaugeInfo interface {
	Value() GaugeInfoValue
	Update(GaugeInfoValue)
	Snapshot() GaugeInfo
}

func NewGaugeInfo() GaugeInfo {
	return &StandardGaugeInfo{}
}

func NewRegisteredGaugeInfo(name string, r Registry) GaugeInfo {
	c := NewGaugeInfo()
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, c)
	return c
}

func GetOrRegisterGaugeInfo(name string, r Registry) GaugeInfo {
	if r == nil {
		r = DefaultRegistry
	}
	return r.GetOrRegister(name, NewGaugeInfo).(GaugeInfo)
}

func NewFunctionalGaugeInfo(f func() GaugeInfoValue) GaugeInfo {
	return &FunctionalGaugeInfo{value: f}
}

func NewRegisteredFunctionalGaugeInfo(name string, r Registry, f func() GaugeInfoValue) GaugeInfo {
	c := NewFunctionalGaugeInfo(f)
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, c)
	return c
}

type GaugeInfoSnapshot GaugeInfoValue

func (g GaugeInfoSnapshot) Value() GaugeInfoValue { return GaugeInfoValue(g) }
func (g GaugeInfoSnapshot) Snapshot() GaugeInfo    { return g }
func (GaugeInfoSnapshot) Update(GaugeInfoValue)    { panic("Update called on a GaugeInfoSnapshot") }

// StandardGaugeInfo is the standard implementation of a GaugeInfo.
type StandardGaugeInfo struct {
	mu    sync.Mutex
	value GaugeInfoValue
}

func (g *StandardGaugeInfo) Value() GaugeInfoValue {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

func (g *StandardGaugeInfo) Update(v GaugeInfoValue) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
}

func (g *StandardGaugeInfo) Snapshot() GaugeInfo {
	return GaugeInfoSnapshot(g.Value())
}

// FunctionalGaugeInfo returns value from a function.
type FunctionalGaugeInfo struct {
	value func() GaugeInfoValue
}

func (g *FunctionalGaugeInfo) Value() GaugeInfoValue { return g.value() }
func (g *FunctionalGaugeInfo) Snapshot() GaugeInfo     { return GaugeInfoSnapshot(g.Value()) }
func (*FunctionalGaugeInfo) Update(GaugeInfoValue)     { panic("Update called on a FunctionalGaugeInfo") }
