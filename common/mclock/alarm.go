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

import "sync"

// Alarm sends on a channel at (or after) a scheduled absolute time. Unlike a
// raw Timer, Schedule can be called repeatedly: a deadline earlier than the
// pending one moves the fire earlier, while a later one leaves the pending
// fire in place, so the alarm fires no later than the earliest deadline
// still pending. Only one pending fire is ever in flight.
type Alarm struct {
	clock Clock
	mu    sync.Mutex
	timer Timer
	ch    chan struct{}
	dead  AbsTime
	set   bool
}

// NewAlarm creates an Alarm using the given clock.
func NewAlarm(clock Clock) *Alarm {
	if clock == nil {
		clock = System{}
	}
	return &Alarm{clock: clock, ch: make(chan struct{}, 1)}
}

// C returns the alarm's channel.
func (e *Alarm) C() <-chan struct{} {
	return e.ch
}

// Schedule arms the alarm to fire no later than the absolute time 'at'. If
// the alarm is already scheduled for an earlier time that has not passed
// yet, that earlier fire is kept.
func (e *Alarm) Schedule(at AbsTime) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if e.timer != nil && e.set && now < e.dead && e.dead <= at {
		return
	}
	e.dead = at
	e.set = true
	if e.timer == nil {
		e.timer = e.clock.AfterFunc(at.Sub(now), e.fire)
		return
	}
	e.timer.Reset(at.Sub(now))
}

func (e *Alarm) fire() {
	select {
	case e.ch <- struct{}{}:
	default:
	}
}
