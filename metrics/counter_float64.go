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

import "sync"

// CounterFloat64 holds a monotonic float64 count.
type CounterFloat64 interface {
	Clear()
	Dec(float64)
	Inc(float64)
	Count() float64
	Snapshot() CounterFloat64
}

func NewCounterFloat64() CounterFloat64 {
	return &StandardCounterFloat64{}
}

func NewRegisteredCounterFloat64(name string, r Registry) CounterFloat64 {
	c := NewCounterFloat64()
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, c)
	return c
}

func GetOrRegisterCounterFloat64(name string, r Registry) CounterFloat64 {
	if r == nil {
		r = DefaultRegistry
	}
	return r.GetOrRegister(name, NewCounterFloat64).(CounterFloat64)
}

type CounterFloat64Snapshot float64

func (c CounterFloat64Snapshot) Clear()                    { panic("Clear called on a CounterFloat64Snapshot") }
func (c CounterFloat64Snapshot) Dec(float64)                { panic("Dec called on a CounterFloat64Snapshot") }
func (c CounterFloat64Snapshot) Inc(float64)                { panic("Inc called on a CounterFloat64Snapshot") }
func (c CounterFloat64Snapshot) Count() float64             { return float64(c) }
func (c CounterFloat64Snapshot) Snapshot() CounterFloat64   { return c }

type NilCounterFloat64 struct{}

func (NilCounterFloat64) Clear()                  {}
func (NilCounterFloat64) Dec(i float64)           {}
func (NilCounterFloat64) Inc(i float64)           {}
func (NilCounterFloat64) Count() float64          { return 0 }
func (NilCounterFloat64) Snapshot() CounterFloat64 { return NilCounterFloat64{} }

// StandardCounterFloat64 is the standard implementation of a CounterFloat64,
// guarded by a mutex since Go has no atomic float64 add.
type StandardCounterFloat64 struct {
	mu    sync.Mutex
	count float64
}

func (c *StandardCounterFloat64) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = 0
}

func (c *StandardCounterFloat64) Dec(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count -= v
}

func (c *StandardCounterFloat64) Inc(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count += v
}

func (c *StandardCounterFloat64) Count() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func (c *StandardCounterFloat64) Snapshot() CounterFloat64 {
	return CounterFloat64Snapshot(c.Count())
}
