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
	"runtime"
	"runtime/pprof"
	"time"
)

type runtimeMetricsT struct {
	MemStats struct {
		Alloc         Gauge
		BuckHashSys   Gauge
		Frees         Gauge
		HeapAlloc     Gauge
		HeapIdle      Gauge
		HeapInuse     Gauge
		HeapObjects   Gauge
		HeapReleased  Gauge
		HeapSys       Gauge
		LastGC        Gauge
		Lookups       Gauge
		Mallocs       Gauge
		MCacheInuse   Gauge
		MCacheSys     Gauge
		MSpanInuse    Gauge
		MSpanSys      Gauge
		NextGC        Gauge
		NumGC         Gauge
		GCCPUFraction GaugeFloat64
		PauseNs       Histogram
		PauseTotalNs  Gauge
		StackInuse    Gauge
		StackSys      Gauge
		Sys           Gauge
		TotalAlloc    Gauge
	}
	NumCgoCall   Gauge
	NumGoroutine Gauge
	NumThread    Gauge
	ReadMemStats Timer
}

var (
	runtimeMetrics runtimeMetricsT

	frozenMemStats runtime.MemStats
	lastNumGC      uint32

	threadCreateProfile = pprof.Lookup("threadcreate")
)

// RegisterRuntimeMemStats installs a fixed set of gauges (and a PauseNs
// histogram) for the process's Go runtime memory statistics into r,
// refreshed on each call to CaptureRuntimeMemStatsOnce. Operators scrape
// these the same way they would any go-ethereum node's runtime/* metrics.
func RegisterRuntimeMemStats(r Registry) {
	runtimeMetrics.MemStats.Alloc = NewGauge()
	runtimeMetrics.MemStats.BuckHashSys = NewGauge()
	runtimeMetrics.MemStats.Frees = NewGauge()
	runtimeMetrics.MemStats.HeapAlloc = NewGauge()
	runtimeMetrics.MemStats.HeapIdle = NewGauge()
	runtimeMetrics.MemStats.HeapInuse = NewGauge()
	runtimeMetrics.MemStats.HeapObjects = NewGauge()
	runtimeMetrics.MemStats.HeapReleased = NewGauge()
	runtimeMetrics.MemStats.HeapSys = NewGauge()
	runtimeMetrics.MemStats.LastGC = NewGauge()
	runtimeMetrics.MemStats.Lookups = NewGauge()
	runtimeMetrics.MemStats.Mallocs = NewGauge()
	runtimeMetrics.MemStats.MCacheInuse = NewGauge()
	runtimeMetrics.MemStats.MCacheSys = NewGauge()
	runtimeMetrics.MemStats.MSpanInuse = NewGauge()
	runtimeMetrics.MemStats.MSpanSys = NewGauge()
	runtimeMetrics.MemStats.NextGC = NewGauge()
	runtimeMetrics.MemStats.NumGC = NewGauge()
	runtimeMetrics.MemStats.GCCPUFraction = NewGaugeFloat64()
	runtimeMetrics.MemStats.PauseNs = NewHistogram(NewExpDecaySample(1028, 0.015))
	runtimeMetrics.MemStats.PauseTotalNs = NewGauge()
	runtimeMetrics.MemStats.StackInuse = NewGauge()
	runtimeMetrics.MemStats.StackSys = NewGauge()
	runtimeMetrics.MemStats.Sys = NewGauge()
	runtimeMetrics.MemStats.TotalAlloc = NewGauge()

	runtimeMetrics.NumCgoCall = NewGauge()
	runtimeMetrics.NumGoroutine = NewGauge()
	runtimeMetrics.NumThread = NewGauge()
	runtimeMetrics.ReadMemStats = NewTimer()

	r.Register("runtime/MemStats/Alloc", runtimeMetrics.MemStats.Alloc)
	r.Register("runtime/MemStats/BuckHashSys", runtimeMetrics.MemStats.BuckHashSys)
	r.Register("runtime/MemStats/Frees", runtimeMetrics.MemStats.Frees)
	r.Register("runtime/MemStats/HeapAlloc", runtimeMetrics.MemStats.HeapAlloc)
	r.Register("runtime/MemStats/HeapIdle", runtimeMetrics.MemStats.HeapIdle)
	r.Register("runtime/MemStats/HeapInuse", runtimeMetrics.MemStats.HeapInuse)
	r.Register("runtime/MemStats/HeapObjects", runtimeMetrics.MemStats.HeapObjects)
	r.Register("runtime/MemStats/HeapReleased", runtimeMetrics.MemStats.HeapReleased)
	r.Register("runtime/MemStats/HeapSys", runtimeMetrics.MemStats.HeapSys)
	r.Register("runtime/MemStats/LastGC", runtimeMetrics.MemStats.LastGC)
	r.Register("runtime/MemStats/Lookups", runtimeMetrics.MemStats.Lookups)
	r.Register("runtime/MemStats/Mallocs", runtimeMetrics.MemStats.Mallocs)
	r.Register("runtime/MemStats/MCacheInuse", runtimeMetrics.MemStats.MCacheInuse)
	r.Register("runtime/MemStats/MCacheSys", runtimeMetrics.MemStats.MCacheSys)
	r.Register("runtime/MemStats/MSpanInuse", runtimeMetrics.MemStats.MSpanInuse)
	r.Register("runtime/MemStats/MSpanSys", runtimeMetrics.MemStats.MSpanSys)
	r.Register("runtime/MemStats/NextGC", runtimeMetrics.MemStats.NextGC)
	r.Register("runtime/MemStats/NumGC", runtimeMetrics.MemStats.NumGC)
	r.Register("runtime/MemStats/GCCPUFraction", runtimeMetrics.MemStats.GCCPUFraction)
	r.Register("runtime/MemStats/PauseNs", runtimeMetrics.MemStats.PauseNs)
	r.Register("runtime/MemStats/PauseTotalNs", runtimeMetrics.MemStats.PauseTotalNs)
	r.Register("runtime/MemStats/StackInuse", runtimeMetrics.MemStats.StackInuse)
	r.Register("runtime/MemStats/StackSys", runtimeMetrics.MemStats.StackSys)
	r.Register("runtime/MemStats/Sys", runtimeMetrics.MemStats.Sys)
	r.Register("runtime/MemStats/TotalAlloc", runtimeMetrics.MemStats.TotalAlloc)

	r.Register("runtime/NumCgoCall", runtimeMetrics.NumCgoCall)
	r.Register("runtime/NumGoroutine", runtimeMetrics.NumGoroutine)
	r.Register("runtime/NumThread", runtimeMetrics.NumThread)
	r.Register("runtime/ReadMemStats", runtimeMetrics.ReadMemStats)
}

// CaptureRuntimeMemStats refreshes the gauges installed by
// RegisterRuntimeMemStats at the given interval until stopped.
func CaptureRuntimeMemStats(r Registry, d time.Duration) chan struct{} {
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-time.After(d):
				CaptureRuntimeMemStatsOnce(r)
			case <-stop:
				return
			}
		}
	}()
	return stop
}

// CaptureRuntimeMemStatsOnce takes a single snapshot and updates every
// gauge installed by RegisterRuntimeMemStats. GC pauses are folded into
// the PauseNs histogram from runtime.MemStats's 256-entry circular buffer,
// replaying exactly the pauses that happened since the previous capture
// (and, if more than 256 GCs happened in between, as many of the most
// recent 256 as the buffer still holds).
func CaptureRuntimeMemStatsOnce(r Registry) {
	t := time.Now()
	runtime.ReadMemStats(&frozenMemStats)
	runtimeMetrics.ReadMemStats.UpdateSince(t)

	runtimeMetrics.MemStats.Alloc.Update(int64(frozenMemStats.Alloc))
	runtimeMetrics.MemStats.BuckHashSys.Update(int64(frozenMemStats.BuckHashSys))
	runtimeMetrics.MemStats.Frees.Update(int64(frozenMemStats.Frees))
	runtimeMetrics.MemStats.HeapAlloc.Update(int64(frozenMemStats.HeapAlloc))
	runtimeMetrics.MemStats.HeapIdle.Update(int64(frozenMemStats.HeapIdle))
	runtimeMetrics.MemStats.HeapInuse.Update(int64(frozenMemStats.HeapInuse))
	runtimeMetrics.MemStats.HeapObjects.Update(int64(frozenMemStats.HeapObjects))
	runtimeMetrics.MemStats.HeapReleased.Update(int64(frozenMemStats.HeapReleased))
	runtimeMetrics.MemStats.HeapSys.Update(int64(frozenMemStats.HeapSys))
	runtimeMetrics.MemStats.LastGC.Update(int64(frozenMemStats.LastGC))
	runtimeMetrics.MemStats.Lookups.Update(int64(frozenMemStats.Lookups))
	runtimeMetrics.MemStats.Mallocs.Update(int64(frozenMemStats.Mallocs))
	runtimeMetrics.MemStats.MCacheInuse.Update(int64(frozenMemStats.MCacheInuse))
	runtimeMetrics.MemStats.MCacheSys.Update(int64(frozenMemStats.MCacheSys))
	runtimeMetrics.MemStats.MSpanInuse.Update(int64(frozenMemStats.MSpanInuse))
	runtimeMetrics.MemStats.MSpanSys.Update(int64(frozenMemStats.MSpanSys))
	runtimeMetrics.MemStats.NextGC.Update(int64(frozenMemStats.NextGC))
	runtimeMetrics.MemStats.NumGC.Update(int64(frozenMemStats.NumGC))
	runtimeMetrics.MemStats.GCCPUFraction.Update(frozenMemStats.GCCPUFraction)

	i := lastNumGC % uint32(len(frozenMemStats.PauseNs))
	ii := frozenMemStats.NumGC % uint32(len(frozenMemStats.PauseNs))
	if frozenMemStats.NumGC-lastNumGC >= uint32(len(frozenMemStats.PauseNs)) {
		for i = 0; i < uint32(len(frozenMemStats.PauseNs)); i++ {
			runtimeMetrics.MemStats.PauseNs.Update(int64(frozenMemStats.PauseNs[i]))
		}
	} else {
		if i > ii {
			for ; i < uint32(len(frozenMemStats.PauseNs)); i++ {
				runtimeMetrics.MemStats.PauseNs.Update(int64(frozenMemStats.PauseNs[i]))
			}
			i = 0
		}
		for ; i < ii; i++ {
			runtimeMetrics.MemStats.PauseNs.Update(int64(frozenMemStats.PauseNs[i]))
		}
	}
	lastNumGC = frozenMemStats.NumGC

	runtimeMetrics.MemStats.PauseTotalNs.Update(int64(frozenMemStats.PauseTotalNs))
	runtimeMetrics.MemStats.StackInuse.Update(int64(frozenMemStats.StackInuse))
	runtimeMetrics.MemStats.StackSys.Update(int64(frozenMemStats.StackSys))
	runtimeMetrics.MemStats.Sys.Update(int64(frozenMemStats.Sys))
	runtimeMetrics.MemStats.TotalAlloc.Update(int64(frozenMemStats.TotalAlloc))

	runtimeMetrics.NumCgoCall.Update(runtime.NumCgoCall())
	runtimeMetrics.NumGoroutine.Update(int64(runtime.NumGoroutine()))
	runtimeMetrics.NumThread.Update(int64(threadCreateProfile.Count()))
}
