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

// Counter holds a monotonic int64 count that can be incremented or
// decremented.
type Counter interface {
	Clear()
	Dec(int64)
	Inc(int64)
	Count() int64
	Snapshot() Counter
}

// NewCounter constructs a new standard Counter. Use NilCounter directly to
// opt a specific call site out of collection.
func NewCounter() Counter {
	return &StandardCounter{}
}

// NewRegisteredCounter constructs and registers a new standard Counter.
func NewRegisteredCounter(name string, r Registry) Counter {
	c := NewCounter()
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, c)
	return c
}

// GetOrRegisterCounter returns an existing Counter or constructs and
// registers a new one.
func GetOrRegisterCounter(name string, r Registry) Counter {
	if r == nil {
		r = DefaultRegistry
	}
	return r.GetOrRegister(name, NewCounter).(Counter)
}

// CounterSnapshot is a read-only copy of a Counter's value.
type CounterSnapshot int64

func (c CounterSnapshot) Clear() {
	panic("Clear called on a CounterSnapshot")
}
func (c CounterSnapshot) Dec(int64) {
	panic("Dec called on a CounterSnapshot")
}
func (c CounterSnapshot) Inc(int64) {
	panic("Inc called on a CounterSnapshot")
}
func (c CounterSnapshot) Count() int64        { return int64(c) }
func (c CounterSnapshot) Snapshot() Counter   { return c }

// NilCounter is a no-op Counter used when metrics are disabled.
type NilCounter struct{}

func (NilCounter) Clear()            {}
func (NilCounter) Dec(i int64)       {}
func (NilCounter) Inc(i int64)       {}
func (NilCounter) Count() int64      { return 0 }
func (NilCounter) Snapshot() Counter { return NilCounter{} }

// StandardCounter is the standard implementation of a Counter.
type StandardCounter struct {
	count atomic.Int64
}

func (c *StandardCounter) Clear() {
	c.count.Store(0)
}

func (c *StandardCounter) Dec(i int64) {
	c.count.Add(-i)
}

func (c *StandardCounter) Inc(i int64) {
	c.count.Add(i)
}

func (c *StandardCounter) Count() int64 {
	return c.count.Load()
}

func (c *StandardCounter) Snapshot() Counter {
	return CounterSnapshot(c.Count())
}
