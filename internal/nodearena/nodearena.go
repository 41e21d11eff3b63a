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

// Package nodearena holds the live record of every node the cluster knows
// about: its last-reported load sample, health, and capability set. Every
// mutation is serialized by the Arena's sync.RWMutex; readers — dispatcher
// scoring, coordinator failover, diagnostics — get copied Snapshots so load
// updates never race a scoring pass.
package nodearena

import (
	"github.com/qflow/qflow/common/mclock"
)

// Health is a node's current liveness classification, per §4.6's missed-
// heartbeat rule.
type Health uint8

const (
	HealthHealthy Health = iota
	HealthUnhealthy
	HealthOffline
)

func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	case HealthOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Sample is one node's self-reported load, pushed at a configured
// interval (§4.6 "Load updates").
type Sample struct {
	CPUPercent   float64
	MemPercent   float64
	NetPercent   float64
	LatencyMS    float64
	ErrorRate    float64
	QueueDepth   int
	Capabilities map[string]bool
}

// Record is one node's arena entry: its last sample, health, consecutive
// missed-sample count, and the chain-verification down-weight a
// Byzantine-tolerant follower applies per §4.7.
type Record struct {
	NodeID      string
	Sample      Sample
	Health      Health
	LastSeen    mclock.AbsTime
	MissedBeats int
	DownWeight  float64 // multiplicative score penalty, 1.0 = none
}

// Snapshot is an immutable copy of a Record safe to read without the
// arena's lock.
type Snapshot = Record
