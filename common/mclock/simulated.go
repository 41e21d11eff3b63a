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

package mclock

import (
	"container/heap"
	"sync"
	"time"
)

// Simulated implements Clock explicitly for testing. Time only advances
// when Run is called; this lets dispatcher, ledger, and coordination tests
// assert lease expiry / heartbeat-miss behavior without real sleeps.
type Simulated struct {
	mu     sync.RWMutex
	now    AbsTime
	timers simTimerHeap
	cond   *sync.Cond
}

type simTimer struct {
	at        AbsTime
	index     int
	fired     bool
	period    time.Duration
	trigger   chan struct{}
	callback  func()
	ch        chan AbsTime
	clock     *Simulated
}

func (s *Simulated) init() {
	if s.cond == nil {
		s.cond = sync.NewCond(&s.mu)
	}
}

// Now returns the current simulated time.
func (s *Simulated) Now() AbsTime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now
}

// Sleep blocks until the simulated time advances past d.
func (s *Simulated) Sleep(d time.Duration) {
	<-s.After(d)
}

// NewTimer creates a new timer firing when the simulated clock passes the
// deadline.
func (s *Simulated) NewTimer(d time.Duration) Timer {
	s.mu.Lock()
	s.init()
	defer s.mu.Unlock()
	t := &simTimer{
		at:    s.now.Add(d),
		ch:    make(chan AbsTime, 1),
		clock: s,
	}
	s.scheduleLocked(t)
	return t
}

// After returns a channel receiving the fire time once d elapses.
func (s *Simulated) After(d time.Duration) <-chan AbsTime {
	return s.NewTimer(d).C()
}

// AfterFunc schedules f to run (synchronously, within Run) once d elapses.
func (s *Simulated) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	s.init()
	defer s.mu.Unlock()
	t := &simTimer{
		at:       s.now.Add(d),
		callback: f,
		clock:    s,
	}
	s.scheduleLocked(t)
	return t
}

func (s *Simulated) scheduleLocked(t *simTimer) {
	heap.Push(&s.timers, t)
	s.cond.Broadcast()
}

// ActiveTimers returns the number of timers that have not yet fired.
func (s *Simulated) ActiveTimers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.timers)
}

// WaitForTimers blocks until at least n timers are scheduled.
func (s *Simulated) WaitForTimers(n int) {
	s.mu.Lock()
	s.init()
	defer s.mu.Unlock()
	for len(s.timers) < n {
		s.cond.Wait()
	}
}

// Run advances the simulated clock by d, firing any timers whose deadline
// has passed, in deadline order.
func (s *Simulated) Run(d time.Duration) {
	s.mu.Lock()
	s.init()
	s.now += AbsTime(d)
	var due []*simTimer
	for len(s.timers) > 0 && s.timers[0].at <= s.now {
		t := heap.Pop(&s.timers).(*simTimer)
		t.fired = true
		due = append(due, t)
	}
	s.mu.Unlock()

	for _, t := range due {
		if t.ch != nil {
			select {
			case t.ch <- t.at:
			default:
			}
		}
		if t.callback != nil {
			t.callback()
		}
	}
}

func (t *simTimer) C() <-chan AbsTime { return t.ch }

func (t *simTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.fired {
		return false
	}
	if t.index >= 0 && t.index < len(c.timers) && c.timers[t.index] == t {
		heap.Remove(&c.timers, t.index)
	}
	t.fired = true
	return true
}

func (t *simTimer) Reset(d time.Duration) {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if !t.fired && t.index >= 0 && t.index < len(c.timers) && c.timers[t.index] == t {
		heap.Remove(&c.timers, t.index)
	}
	t.fired = false
	t.at = c.now.Add(d)
	heap.Push(&c.timers, t)
}

type simTimerHeap []*simTimer

func (h simTimerHeap) Len() int            { return len(h) }
func (h simTimerHeap) Less(i, j int) bool  { return h[i].at < h[j].at }
func (h simTimerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *simTimerHeap) Push(x any) {
	t := x.(*simTimer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *simTimerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
