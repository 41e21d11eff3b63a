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

package nodearena

import (
	"sort"
	"sync"
	"time"

	"github.com/qflow/qflow/common/mclock"
)

// MissedBeatsUnhealthy and MissedBeatsOffline are the consecutive-missed-
// sample thresholds from §4.6: "A node that misses N consecutive samples
// is marked unhealthy; 2N -> offline."
const (
	MissedBeatsUnhealthy = 3
	MissedBeatsOffline   = 2 * MissedBeatsUnhealthy
)

// Arena is the lock-guarded store of every node's Record. All mutation
// takes mu's write lock on the caller's goroutine (there is no dedicated
// arena goroutine); Snapshot and All hand out copies so a dispatcher
// scoring pass never observes a torn update.
type Arena struct {
	clock mclock.Clock

	mu      sync.RWMutex
	records map[string]*Record
}

// New creates an empty Arena. clock is injectable so tests can drive
// staleness and missed-beat detection deterministically with
// mclock.Simulated.
func New(clock mclock.Clock) *Arena {
	if clock == nil {
		clock = mclock.System{}
	}
	return &Arena{clock: clock, records: make(map[string]*Record)}
}

// ReportSample records a fresh load sample for nodeID, resetting its
// missed-beat counter and restoring HealthHealthy if it had degraded.
// This is the only path that advances LastSeen, so it is the natural
// single-writer entry point: callers (the coordinator's heartbeat
// handler) are expected to serialize calls per node, but Arena itself is
// safe for concurrent callers across distinct nodes.
func (a *Arena) ReportSample(nodeID string, s Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.records[nodeID]
	if !ok {
		r = &Record{NodeID: nodeID, DownWeight: 1.0}
		a.records[nodeID] = r
	}
	r.Sample = s
	r.LastSeen = a.clock.Now()
	r.MissedBeats = 0
	r.Health = HealthHealthy
}

// Tick re-evaluates health for every node whose last sample is older than
// staleThreshold, advancing missed-beat counts and crossing the
// unhealthy/offline thresholds per §4.6. It is meant to be called on the
// metrics task's sampling interval.
func (a *Arena) Tick(staleThreshold time.Duration) {
	now := a.clock.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.records {
		if now.Sub(r.LastSeen) < staleThreshold {
			continue
		}
		r.MissedBeats++
		switch {
		case r.MissedBeats >= MissedBeatsOffline:
			r.Health = HealthOffline
		case r.MissedBeats >= MissedBeatsUnhealthy:
			r.Health = HealthUnhealthy
		}
	}
}

// DownWeight applies a Byzantine-tolerance down-weight to nodeID's score
// (§4.7: "the source is down-weighted in the dispatcher score"). factor
// multiplies the existing weight, so repeated violations compound.
func (a *Arena) DownWeight(nodeID string, factor float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r, ok := a.records[nodeID]; ok {
		r.DownWeight *= factor
	}
}

// Reclaim marks nodeID offline, leaving its DownWeight unchanged; used when a node is declared offline and its leases unconditionally
// reclaimed (§4.6).
func (a *Arena) Reclaim(nodeID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r, ok := a.records[nodeID]; ok {
		r.Health = HealthOffline
	}
}

// Snapshot returns a copy of nodeID's Record, or false if unknown.
func (a *Arena) Snapshot(nodeID string) (Snapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.records[nodeID]
	if !ok {
		return Snapshot{}, false
	}
	return *r, true
}

// All returns a snapshot of every known node, sorted by NodeID so callers
// that need deterministic tie-breaking (§4.6's "ties broken by lowest
// node_id") don't have to sort themselves.
func (a *Arena) All() []Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Snapshot, 0, len(a.records))
	for _, r := range a.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}
