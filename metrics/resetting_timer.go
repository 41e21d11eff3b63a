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
	"sort"
	"sync"
	"time"
)

// ResettingTimer is a Timer variant whose Snapshot both reads and clears
// the accumulated values, for callers (e.g. a periodic flush to a metrics
// sink) that want a fresh distribution each interval rather than a
// decaying sample across the process lifetime.
type ResettingTimer interface {
	Update(time.Duration)
	UpdateSince(time.Time)
	Time(func())
	Snapshot() *ResettingTimerSnapshot
}

func NewResettingTimer() ResettingTimer {
	return &StandardResettingTimer{}
}

func NewRegisteredResettingTimer(name string, r Registry) ResettingTimer {
	c := NewResettingTimer()
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, c)
	return c
}

func GetOrRegisterResettingTimer(name string, r Registry) ResettingTimer {
	if r == nil {
		r = DefaultRegistry
	}
	return r.GetOrRegister(name, NewResettingTimer).(ResettingTimer)
}

// StandardResettingTimer is the standard implementation of a
// ResettingTimer: an unbounded slice of raw nanosecond durations, reset to
// nil each time Snapshot is taken.
type StandardResettingTimer struct {
	mutex  sync.Mutex
	values []int64
}

func (t *StandardResettingTimer) Update(d time.Duration) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.values = append(t.values, int64(d))
}

func (t *StandardResettingTimer) UpdateSince(ts time.Time) {
	t.Update(time.Since(ts))
}

func (t *StandardResettingTimer) Time(f func()) {
	ts := time.Now()
	f()
	t.UpdateSince(ts)
}

// Snapshot freezes the current values and clears them from t.
func (t *StandardResettingTimer) Snapshot() *ResettingTimerSnapshot {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	values := t.values
	t.values = nil
	return &ResettingTimerSnapshot{values: values}
}

// ResettingTimerSnapshot is a read-only copy of a ResettingTimer's
// accumulated values at the moment it was reset.
type ResettingTimerSnapshot struct {
	values []int64
}

func (t *ResettingTimerSnapshot) Count() int64 { return int64(len(t.values)) }
func (t *ResettingTimerSnapshot) Min() int64   { return SampleMin(t.values) }
func (t *ResettingTimerSnapshot) Max() int64   { return SampleMax(t.values) }
func (t *ResettingTimerSnapshot) Mean() float64 {
	return SampleMean(t.values)
}

func (t *ResettingTimerSnapshot) Percentile(p float64) float64 {
	sorted := t.sortedValues()
	return SamplePercentile(sorted, p)
}

func (t *ResettingTimerSnapshot) Percentiles(ps []float64) []float64 {
	sorted := t.sortedValues()
	return SamplePercentiles(sorted, ps)
}

func (t *ResettingTimerSnapshot) sortedValues() int64Slice {
	sorted := make(int64Slice, len(t.values))
	copy(sorted, t.values)
	sort.Sort(sorted)
	return sorted
}
