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

// Package mclock is a wrapper for monotonic clock reads. Every deadline the
// core measures — lease TTLs, heartbeat intervals, partition thresholds —
// apart from the sandbox's wall-clock cap goes through a Clock so that dispatcher and
// coordination tests can drive time deterministically with Simulated instead
// of sleeping real wall-clock seconds.
package mclock

import (
	"time"

	_ "unsafe" // for go:linkname
)

// AbsTime represents absolute monotonic time in nanoseconds.
type AbsTime int64

// Add returns t + d.
func (t AbsTime) Add(d time.Duration) AbsTime {
	return t + AbsTime(d)
}

// Sub returns t - t2.
func (t AbsTime) Sub(t2 AbsTime) time.Duration {
	return time.Duration(t - t2)
}

// Clock interface makes it possible to replace the monotonic system clock
// with a simulated clock for deterministic tests.
type Clock interface {
	Now() AbsTime
	Sleep(time.Duration)
	NewTimer(time.Duration) Timer
	After(time.Duration) <-chan AbsTime
	AfterFunc(d time.Duration, f func()) Timer
}

// System implements Clock using the system clock.
type System struct{}

// Now returns the current monotonic time.
func (System) Now() AbsTime {
	return AbsTime(nanotime())
}

// Sleep blocks for the given duration.
func (System) Sleep(d time.Duration) {
	time.Sleep(d)
}

// NewTimer creates a timer firing after d.
func (System) NewTimer(d time.Duration) Timer {
	ch := make(chan AbsTime, 1)
	t := time.AfterFunc(d, func() {
		select {
		case ch <- System{}.Now():
		default:
		}
	})
	return &systemTimer{t, ch}
}

// After returns a channel that receives the current time after d elapses.
func (s System) After(d time.Duration) <-chan AbsTime {
	return s.NewTimer(d).C()
}

// AfterFunc runs f in its own goroutine after d elapses.
func (System) AfterFunc(d time.Duration, f func()) Timer {
	return &systemTimer{time.AfterFunc(d, f), nil}
}

// Timer represents a cancellable event fired at a predetermined time.
type Timer interface {
	C() <-chan AbsTime
	Stop() bool
	Reset(time.Duration)
}

type systemTimer struct {
	*time.Timer
	ch chan AbsTime
}

func (st *systemTimer) C() <-chan AbsTime {
	return st.ch
}

func (st *systemTimer) Reset(d time.Duration) {
	st.Timer.Reset(d)
}

//go:linkname nanotime runtime.nanotime
func nanotime() int64
