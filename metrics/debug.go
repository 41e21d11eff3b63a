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
	"runtime/debug"
	"sync"
	"time"
)

var (
	debugMetrics struct {
		GCStats struct {
			LastGC    Gauge
			NumGC     Gauge
			Pause     Histogram
			PauseTotal Gauge
		}
		ReadGCStats Timer
	}
	debugMetricsOnce sync.Once
	gcStats          debug.GCStats
)

// RegisterDebugGCStats installs gauges and a histogram tracking the Go
// runtime's garbage-collector pause statistics into r, refreshed by
// CaptureDebugGCStats / CaptureDebugGCStatsOnce. Expensive: reading GC
// stats stops the world briefly, so callers should gate this behind
// EnabledExpensive.
func RegisterDebugGCStats(r Registry) {
	debugMetricsOnce.Do(func() {
		debugMetrics.GCStats.LastGC = NewGauge()
		debugMetrics.GCStats.NumGC = NewGauge()
		debugMetrics.GCStats.Pause = NewHistogram(NewExpDecaySample(1028, 0.015))
		debugMetrics.GCStats.PauseTotal = NewGauge()
		debugMetrics.ReadGCStats = NewTimer()
	})
	r.Register("debug/GCStats/LastGC", debugMetrics.GCStats.LastGC)
	r.Register("debug/GCStats/NumGC", debugMetrics.GCStats.NumGC)
	r.Register("debug/GCStats/Pause", debugMetrics.GCStats.Pause)
	r.Register("debug/GCStats/PauseTotal", debugMetrics.GCStats.PauseTotal)
	r.Register("debug/ReadGCStats", debugMetrics.ReadGCStats)
}

// CaptureDebugGCStats refreshes the metrics installed by
// RegisterDebugGCStats at the given interval until stopped by closing
// the returned stop channel.
func CaptureDebugGCStats(r Registry, d time.Duration) chan struct{} {
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-time.After(d):
				CaptureDebugGCStatsOnce(r)
			case <-stop:
				return
			}
		}
	}()
	return stop
}

// CaptureDebugGCStatsOnce takes a single snapshot of the Go runtime's
// garbage-collector stats and updates the metrics registered by
// RegisterDebugGCStats.
func CaptureDebugGCStatsOnce(r Registry) {
	debugMetrics.ReadGCStats.Time(func() {
		debug.ReadGCStats(&gcStats)
	})

	debugMetrics.GCStats.NumGC.Update(gcStats.NumGC)
	if len(gcStats.Pause) > 0 {
		debugMetrics.GCStats.LastGC.Update(int64(gcStats.LastGC.UnixNano()))
		debugMetrics.GCStats.Pause.Update(int64(gcStats.Pause[0]))
	}
	debugMetrics.GCStats.PauseTotal.Update(int64(gcStats.PauseTotal))
}
