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
	"testing"
	"time"

	"github.com/qflow/qflow/common/mclock"
)

func TestReportSampleMarksHealthy(t *testing.T) {
	clock := &mclock.Simulated{}
	a := New(clock)
	a.ReportSample("n1", Sample{CPUPercent: 0.5})

	snap, ok := a.Snapshot("n1")
	if !ok {
		t.Fatal("expected n1 to exist")
	}
	if snap.Health != HealthHealthy {
		t.Fatalf("health = %v, want Healthy", snap.Health)
	}
}

func TestTickDegradesThenOfflinesStaleNode(t *testing.T) {
	clock := &mclock.Simulated{}
	a := New(clock)
	a.ReportSample("n1", Sample{})

	const stale = 10 * time.Second
	for i := 0; i < MissedBeatsUnhealthy; i++ {
		clock.Run(stale)
		a.Tick(stale)
	}
	snap, _ := a.Snapshot("n1")
	if snap.Health != HealthUnhealthy {
		t.Fatalf("health = %v, want Unhealthy after %d missed beats", snap.Health, MissedBeatsUnhealthy)
	}

	for i := MissedBeatsUnhealthy; i < MissedBeatsOffline; i++ {
		clock.Run(stale)
		a.Tick(stale)
	}
	snap, _ = a.Snapshot("n1")
	if snap.Health != HealthOffline {
		t.Fatalf("health = %v, want Offline after %d missed beats", snap.Health, MissedBeatsOffline)
	}
}

func TestReportSampleRecoversHealth(t *testing.T) {
	clock := &mclock.Simulated{}
	a := New(clock)
	a.ReportSample("n1", Sample{})

	const stale = 10 * time.Second
	clock.Run(stale)
	a.Tick(stale)
	snap, _ := a.Snapshot("n1")
	if snap.MissedBeats == 0 {
		t.Fatal("expected a missed beat to be recorded")
	}

	a.ReportSample("n1", Sample{CPUPercent: 0.1})
	snap, _ = a.Snapshot("n1")
	if snap.Health != HealthHealthy || snap.MissedBeats != 0 {
		t.Fatalf("snapshot = %+v, want healthy with reset missed beats", snap)
	}
}

func TestDownWeightCompounds(t *testing.T) {
	a := New(nil)
	a.ReportSample("n1", Sample{})
	a.DownWeight("n1", 0.5)
	a.DownWeight("n1", 0.5)
	snap, _ := a.Snapshot("n1")
	if snap.DownWeight != 0.25 {
		t.Fatalf("downweight = %v, want 0.25", snap.DownWeight)
	}
}

func TestAllIsSortedByNodeID(t *testing.T) {
	a := New(nil)
	a.ReportSample("n2", Sample{})
	a.ReportSample("n1", Sample{})
	a.ReportSample("n3", Sample{})

	all := a.All()
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].NodeID >= all[i].NodeID {
			t.Fatalf("All() not sorted: %v", all)
		}
	}
}

func TestReclaimMarksOffline(t *testing.T) {
	a := New(nil)
	a.ReportSample("n1", Sample{})
	a.Reclaim("n1")
	snap, _ := a.Snapshot("n1")
	if snap.Health != HealthOffline {
		t.Fatalf("health = %v, want Offline after reclaim", snap.Health)
	}
}
