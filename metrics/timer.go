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
	"time"
)

// Timer captures the duration and rate of events, composing a Histogram
// (duration distribution) with a Meter (rate).
type Timer interface {
	Count() int64
	Max() int64
	Mean() float64
	Min() int64
	Percentile(float64) float64
	Percentiles([]float64) []float64
	Rate1() float64
	Rate5() float64
	Rate15() float64
	RateMean() float64
	Snapshot() Timer
	StdDev() float64
	Stop()
	Sum() int64
	Time(func())
	Update(time.Duration)
	UpdateSince(time.Time)
	Variance() float64
}

// NewTimer constructs a new StandardTimer using an exponentially-decaying
// sample of 1028 elements, matching the default used elsewhere for
// latency-sensitive histograms.
func NewTimer() Timer {
	m := newStandardMeter()
	arbiter.add(m)
	return &StandardTimer{
		histogram: NewHistogram(NewExpDecaySample(1028, 0.015)),
		meter:     m,
	}
}

func NewRegisteredTimer(name string, r Registry) Timer {
	c := NewTimer()
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, c)
	return c
}

func GetOrRegisterTimer(name string, r Registry) Timer {
	if r == nil {
		r = DefaultRegistry
	}
	return r.GetOrRegister(name, NewTimer).(Timer)
}

// NewCustomTimer constructs a Timer from an arbitrary Histogram and Meter,
// for callers that need a non-default sample strategy.
func NewCustomTimer(h Histogram, m Meter) Timer {
	return &StandardTimer{histogram: h, meter: m}
}

// TimerSnapshot is a read-only copy of a Timer.
type TimerSnapshot struct {
	histogram Histogram
	meter     Meter
}

func (t *TimerSnapshot) Count() int64      { return t.histogram.Count() }
func (t *TimerSnapshot) Max() int64        { return t.histogram.Max() }
func (t *TimerSnapshot) Mean() float64     { return t.histogram.Mean() }
func (t *TimerSnapshot) Min() int64        { return t.histogram.Min() }
func (t *TimerSnapshot) Percentile(p float64) float64 {
	return t.histogram.Percentile(p)
}
func (t *TimerSnapshot) Percentiles(ps []float64) []float64 {
	return t.histogram.Percentiles(ps)
}
func (t *TimerSnapshot) Rate1() float64    { return t.meter.Rate1() }
func (t *TimerSnapshot) Rate5() float64    { return t.meter.Rate5() }
func (t *TimerSnapshot) Rate15() float64   { return t.meter.Rate15() }
func (t *TimerSnapshot) RateMean() float64 { return t.meter.RateMean() }
func (t *TimerSnapshot) Snapshot() Timer   { return t }
func (t *TimerSnapshot) StdDev() float64   { return t.histogram.StdDev() }
func (*TimerSnapshot) Stop()               {}
func (t *TimerSnapshot) Sum() int64        { return t.histogram.Sum() }
func (*TimerSnapshot) Time(func())         { panic("Time called on a TimerSnapshot") }
func (*TimerSnapshot) Update(time.Duration) {
	panic("Update called on a TimerSnapshot")
}
func (*TimerSnapshot) UpdateSince(time.Time) {
	panic("UpdateSince called on a TimerSnapshot")
}
func (t *TimerSnapshot) Variance() float64 { return t.histogram.Variance() }

// StandardTimer is the standard implementation of a Timer, wrapping a
// Histogram of elapsed nanoseconds and a Meter of call rate.
type StandardTimer struct {
	histogram Histogram
	meter     Meter
}

func (t *StandardTimer) Count() int64  { return t.histogram.Count() }
func (t *StandardTimer) Max() int64    { return t.histogram.Max() }
func (t *StandardTimer) Mean() float64 { return t.histogram.Mean() }
func (t *StandardTimer) Min() int64    { return t.histogram.Min() }
func (t *StandardTimer) Percentile(p float64) float64 {
	return t.histogram.Percentile(p)
}
func (t *StandardTimer) Percentiles(ps []float64) []float64 {
	return t.histogram.Percentiles(ps)
}
func (t *StandardTimer) Rate1() float64    { return t.meter.Rate1() }
func (t *StandardTimer) Rate5() float64    { return t.meter.Rate5() }
func (t *StandardTimer) Rate15() float64   { return t.meter.Rate15() }
func (t *StandardTimer) RateMean() float64 { return t.meter.RateMean() }

func (t *StandardTimer) Snapshot() Timer {
	return &TimerSnapshot{
		histogram: t.histogram.Snapshot(),
		meter:     t.meter.Snapshot(),
	}
}

func (t *StandardTimer) StdDev() float64 { return t.histogram.StdDev() }

// Stop unregisters the timer's meter from the arbiter; future rate ticks
// no longer touch it.
func (t *StandardTimer) Stop() { t.meter.Stop() }

func (t *StandardTimer) Sum() int64 { return t.histogram.Sum() }

// Time runs f and records its elapsed duration.
func (t *StandardTimer) Time(f func()) {
	ts := time.Now()
	f()
	t.Update(time.Since(ts))
}

// Update records the duration of an event, in nanoseconds.
func (t *StandardTimer) Update(d time.Duration) {
	t.histogram.Update(int64(d))
	t.meter.Mark(1)
}

// UpdateSince records the duration elapsed since ts.
func (t *StandardTimer) UpdateSince(ts time.Time) {
	t.Update(time.Since(ts))
}

func (t *StandardTimer) Variance() float64 { return t.histogram.Variance() }
