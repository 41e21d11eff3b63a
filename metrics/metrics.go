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

// Package metrics implements low-overhead runtime counters, gauges,
// histograms, meters and timers with an optional Prometheus text exporter.
// The dispatcher (§4.6) registers its queue depth and the isolation layer
// (§4.4) its per-tenant quota usage as gauges; metrics/prometheus offers an
// http.Handler rendering a registry, which the node binary does not mount.
package metrics

import (
	"runtime"
	"time"
)

// Enabled is not checked by any constructor: every constructor returns a
// fully functional standard metric whatever its value, and no code in this
// module reads it.
var Enabled = false

// EnabledExpensive handles runtime-sampled metrics whose collection cost
// scales with the size of the process (full GC stats, per-goroutine
// snapshots). Off by default. No code in this module reads it;
// RegisterDebugGCStats leaves that gating to its callers.
var EnabledExpensive = false

// Enabled and EnabledExpensive are plain bools, not atomics, so they are
// only safe to set once at startup before any goroutine reads them.

// runtimeStats captures a snapshot of process-wide runtime counters used by
// the "runtime" gauge set registered via RegisterRuntimeMemStats.
type runtimeStats struct {
	Time           time.Time
	GoMaxProcs     int
	NumGoroutine   int
	MemAlloc       uint64
	MemSys         uint64
	HeapAlloc      uint64
	HeapIdle       uint64
	HeapInuse      uint64
	HeapObjects    uint64
	HeapReleased   uint64
	HeapSys        uint64
	StackInuse     uint64
	StackSys       uint64
	NumGC          uint32
	NumForcedGC    uint32
	GCCPUFraction  float64
	PauseNs        uint64
	PauseTotalNs   uint64
}

var memStats runtime.MemStats

func readRuntimeStats(v *runtimeStats) {
	runtime.ReadMemStats(&memStats)

	v.Time = time.Now()
	v.GoMaxProcs = runtime.GOMAXPROCS(0)
	v.NumGoroutine = runtime.NumGoroutine()
	v.MemAlloc = memStats.Alloc
	v.MemSys = memStats.Sys
	v.HeapAlloc = memStats.HeapAlloc
	v.HeapIdle = memStats.HeapIdle
	v.HeapInuse = memStats.HeapInuse
	v.HeapObjects = memStats.HeapObjects
	v.HeapReleased = memStats.HeapReleased
	v.HeapSys = memStats.HeapSys
	v.StackInuse = memStats.StackInuse
	v.StackSys = memStats.StackSys
	v.NumGC = memStats.NumGC
	v.GCCPUFraction = memStats.GCCPUFraction
	if n := len(memStats.PauseNs); n > 0 {
		v.PauseNs = memStats.PauseNs[(memStats.NumGC+255)%256]
	}
	v.PauseTotalNs = memStats.PauseTotalNs
}

// RegisterRuntimeMemStats and CaptureRuntimeMemStatsOnce (runtime.go) are
// the registry-integrated counterpart of readRuntimeStats above: they keep
// a persistent set of gauges (plus a PauseNs histogram) updated across
// calls rather than returning a fresh snapshot struct each time.
