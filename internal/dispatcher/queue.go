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

package dispatcher

import (
	"github.com/qflow/qflow/common/mclock"
	"github.com/qflow/qflow/common/prque"
)

// FlowPriority is a flow's authored priority band (§4.6 "flow priority
// (low..critical)").
type FlowPriority int64

const (
	PriorityLow FlowPriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// readyItem is one admitted-but-not-yet-leased step waiting in the
// ready-queue.
type readyItem struct {
	ExecID     string
	StepID     string
	TenantID   string
	Priority   FlowPriority
	EnqueuedAt mclock.AbsTime
}

// priorityWindow is how many nanoseconds of wait time equal one priority
// band step, so that a long-waiting Normal step can eventually out-rank a
// freshly-enqueued Critical one rather than starving forever.
const priorityWindow = int64(30_000_000_000) // 30s

// combinedPriority folds flow priority and wait time into the single
// ordered key prque.Prque sorts on: priority bands dominate over short
// waits, but wait time accumulates enough to eventually overtake a higher
// band, preventing starvation.
func combinedPriority(it readyItem, now mclock.AbsTime) int64 {
	waited := int64(now.Sub(it.EnqueuedAt))
	return int64(it.Priority)*priorityWindow + waited
}

// readyQueue wraps prque.Prque with the dispatcher's admit-ordering rule.
type readyQueue struct {
	q     *prque.Prque[int64, readyItem]
	clock mclock.Clock
}

func newReadyQueue(clock mclock.Clock) *readyQueue {
	return &readyQueue{clock: clock, q: prque.New[int64, readyItem](nil)}
}

// push keys it against a fixed reference time (0) rather than the current
// one: every queued item's wait grows at the same rate, so this key orders
// the heap exactly as combinedPriority at any later now would, and items
// already in the heap keep aging without being re-keyed.
func (rq *readyQueue) push(it readyItem) {
	rq.q.Push(it, combinedPriority(it, 0))
}

func (rq *readyQueue) pop() (readyItem, bool) {
	if rq.q.Empty() {
		return readyItem{}, false
	}
	it, _ := rq.q.Pop()
	return it, true
}

func (rq *readyQueue) size() int { return rq.q.Size() }
