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
	"sync"
	"time"
)

// Meter tracks the rate of events over time, exposing mean and 1/5/15-minute
// moving averages, the way host load averages are reported.
type Meter interface {
	Count() int64
	Mark(int64)
	Rate1() float64
	Rate5() float64
	Rate15() float64
	RateMean() float64
	Snapshot() Meter
	Stop()
}

func NewMeter() Meter {
	m := newStandardMeter()
	arbiter.add(m)
	return m
}

func NewRegisteredMeter(name string, r Registry) Meter {
	c := NewMeter()
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, c)
	return c
}

func GetOrRegisterMeter(name string, r Registry) Meter {
	if r == nil {
		r = DefaultRegistry
	}
	return r.GetOrRegister(name, NewMeter).(Meter)
}

// MeterSnapshot is a read-only copy of a Meter.
type MeterSnapshot struct {
	count                          int64
	rate1, rate5, rate15, rateMean float64
}

func (m *MeterSnapshot) Count() int64       { return m.count }
func (*MeterSnapshot) Mark(n int64)         { panic("Mark called on a MeterSnapshot") }
func (m *MeterSnapshot) Rate1() float64     { return m.rate1 }
func (m *MeterSnapshot) Rate5() float64     { return m.rate5 }
func (m *MeterSnapshot) Rate15() float64    { return m.rate15 }
func (m *MeterSnapshot) RateMean() float64  { return m.rateMean }
func (m *MeterSnapshot) Snapshot() Meter    { return m }
func (*MeterSnapshot) Stop()                {}

// StandardMeter is the standard implementation of a Meter.
type StandardMeter struct {
	lock        sync.RWMutex
	snapshot    *MeterSnapshot
	a1, a5, a15 EWMA
	startTime   time.Time
}

func newStandardMeter() *StandardMeter {
	return &StandardMeter{
		snapshot:  &MeterSnapshot{},
		a1:        NewEWMA1(),
		a5:        NewEWMA5(),
		a15:       NewEWMA15(),
		startTime: time.Now(),
	}
}

func (m *StandardMeter) Stop() {
	arbiter.remove(m)
}

// tick refreshes the cached rates under lock; called by the arbiter's
// background goroutine so that Rate1/Rate5/Rate15 stay current even for
// meters that aren't being Marked.
func (m *StandardMeter) tick() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.updateSnapshot()
}

func (m *StandardMeter) Count() int64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.snapshot.count
}

func (m *StandardMeter) Mark(n int64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.snapshot.count += n
	m.a1.Update(n)
	m.a5.Update(n)
	m.a15.Update(n)
	m.updateSnapshot()
}

func (m *StandardMeter) Rate1() float64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.snapshot.rate1
}

func (m *StandardMeter) Rate5() float64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.snapshot.rate5
}

func (m *StandardMeter) Rate15() float64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.snapshot.rate15
}

func (m *StandardMeter) RateMean() float64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.snapshot.count) / elapsed
}

func (m *StandardMeter) Snapshot() Meter {
	m.lock.RLock()
	defer m.lock.RUnlock()
	snapshot := *m.snapshot
	snapshot.rateMean = m.RateMean()
	return &snapshot
}

// updateSnapshot must be called with m.lock held; it refreshes the cached
// 1/5/15-minute rates so concurrent readers never tick the EWMAs directly.
func (m *StandardMeter) updateSnapshot() {
	m.snapshot.rate1 = m.a1.Rate()
	m.snapshot.rate5 = m.a5.Rate()
	m.snapshot.rate15 = m.a15.Rate()
}

// meterArbiter ticks every live StandardMeter from a single shared
// goroutine, rather than running one ticker per meter. Since EWMA folds in
// elapsed intervals lazily on read, this background tick is not required
// for correctness (Rate() self-corrects whenever called), but registration
// bookkeeping is still load-bearing: Registry and Timer/Meter lifecycle
// rely on arbiter.meters reflecting exactly the live, unstopped meters.
type meterArbiter struct {
	sync.Mutex
	started bool
	meters  map[*StandardMeter]struct{}
	ticker  *time.Ticker
}

var arbiter = meterArbiter{ticker: time.NewTicker(5 * time.Second), meters: make(map[*StandardMeter]struct{})}

func (ma *meterArbiter) add(m *StandardMeter) {
	ma.Lock()
	defer ma.Unlock()
	ma.meters[m] = struct{}{}
	if !ma.started {
		ma.started = true
		go ma.tickLoop()
	}
}

func (ma *meterArbiter) remove(m *StandardMeter) {
	ma.Lock()
	defer ma.Unlock()
	delete(ma.meters, m)
}

func (ma *meterArbiter) tickLoop() {
	for range ma.ticker.C {
		ma.tickMeters()
	}
}

func (ma *meterArbiter) tickMeters() {
	ma.Lock()
	meters := make([]*StandardMeter, 0, len(ma.meters))
	for m := range ma.meters {
		meters = append(meters, m)
	}
	ma.Unlock()
	for _, m := range meters {
		m.tick()
	}
}
