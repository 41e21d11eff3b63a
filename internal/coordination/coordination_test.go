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

package coordination

import (
	"errors"
	"testing"
	"time"

	"github.com/qflow/qflow/common/mclock"
	"github.com/qflow/qflow/internal/ledger"
	"github.com/qflow/qflow/internal/nodearena"
	"github.com/qflow/qflow/internal/storage"
)

func newTestCoordinator(t *testing.T, nodeID string, clock mclock.Clock) (*Coordinator, *ledger.Ledger, *nodearena.Arena) {
	t.Helper()
	l := ledger.New(storage.NewMemory())
	arena := nodearena.New(clock)
	return New(nodeID, clock, l, arena), l, arena
}

func TestAdmitAsLeaderMakesThisNodeLeader(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "n1", nil)
	c.AdmitAsLeader("exec-1")
	if c.Role("exec-1") != RoleLeader {
		t.Fatal("expected RoleLeader after AdmitAsLeader")
	}
	if c.LeaderID("exec-1") != "n1" {
		t.Fatalf("leaderID = %s, want n1", c.LeaderID("exec-1"))
	}
	if err := c.RequireLeader("exec-1"); err != nil {
		t.Fatalf("RequireLeader: %v", err)
	}
}

func TestElectLeaderPicksHighestSeqLowestNodeID(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "n2", nil)
	c.ReportPeerPosition("exec-1", "n3", 5)
	c.ReportPeerPosition("exec-1", "n1", 5)
	c.ReportPeerPosition("exec-1", "n2", 3)

	winner, err := c.ElectLeader("exec-1")
	if err != nil {
		t.Fatal(err)
	}
	if winner != "n1" {
		t.Fatalf("winner = %s, want n1 (tied at highest seq, lowest id)", winner)
	}
	if c.Role("exec-1") != RoleFollower {
		t.Fatal("expected RoleFollower since n2 lost the election")
	}
	if c.Epoch("exec-1") != 1 {
		t.Fatalf("epoch = %d, want 1", c.Epoch("exec-1"))
	}
}

func TestElectLeaderNoQuorum(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "n1", nil)
	if _, err := c.ElectLeader("exec-1"); !errors.Is(err, ErrNoQuorum) {
		t.Fatalf("err = %v, want ErrNoQuorum", err)
	}
}

func TestRequireLeaderFailsForFollower(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "n2", nil)
	c.ReportPeerPosition("exec-1", "n1", 5)
	c.ReportPeerPosition("exec-1", "n2", 5)
	c.ElectLeader("exec-1")
	if err := c.RequireLeader("exec-1"); !errors.Is(err, ErrNotLeader) {
		t.Fatalf("err = %v, want ErrNotLeader", err)
	}
}

func TestPartitionedAfterThresholdElapses(t *testing.T) {
	clock := &mclock.Simulated{}
	c, _, _ := newTestCoordinator(t, "n2", clock)
	c.ReportPeerPosition("exec-1", "n1", 5)
	c.ReportPeerPosition("exec-1", "n2", 5)
	c.ElectLeader("exec-1") // n1 wins, this node becomes a follower

	const threshold = 5 * time.Second
	if c.Partitioned("exec-1", threshold) {
		t.Fatal("should not be partitioned immediately after election")
	}
	clock.Run(threshold)
	if !c.Partitioned("exec-1", threshold) {
		t.Fatal("expected partitioned once threshold elapses with no heartbeat")
	}
	if c.CanLease("exec-1", threshold) {
		t.Fatal("CanLease should be false while partitioned")
	}

	c.Heartbeat("exec-1")
	if c.Partitioned("exec-1", threshold) {
		t.Fatal("heartbeat should clear the partition")
	}
}

func TestLeaderIsNeverPartitionedFromItself(t *testing.T) {
	clock := &mclock.Simulated{}
	c, _, _ := newTestCoordinator(t, "n1", clock)
	c.AdmitAsLeader("exec-1")
	clock.Run(time.Hour)
	if c.Partitioned("exec-1", time.Second) {
		t.Fatal("a leader is never partitioned from itself")
	}
}

func TestReconcileTruncatesDivergedTailAndReplaysLeader(t *testing.T) {
	// Build a shared prefix, then diverge: local appends one conflicting
	// entry the leader never produced.
	leaderLedger := ledger.New(storage.NewMemory())
	leaderLedger.Append("exec-1", ledger.KindFlowStarted, nil)
	leaderLedger.Append("exec-1", ledger.KindStepReady, []byte("a"))
	leaderLedger.Append("exec-1", ledger.KindStepLeased, []byte("a"))
	leaderEntries, err := leaderLedger.Read("exec-1", 1, 3)
	if err != nil {
		t.Fatal(err)
	}

	c, localLedger, _ := newTestCoordinator(t, "n2", nil)
	localLedger.AppendReplicated(leaderEntries[0])
	localLedger.AppendReplicated(leaderEntries[1])
	// Local's own conflicting seq 3 (different payload than the leader's).
	localLedger.Append("exec-1", ledger.KindStepFailed, []byte("conflicting"))

	discarded, err := c.Reconcile("exec-1", leaderEntries)
	if err != nil {
		t.Fatal(err)
	}
	if len(discarded) != 1 || discarded[0] != 3 {
		t.Fatalf("discarded = %v, want [3]", discarded)
	}

	gotSeq, gotHash, err := localLedger.Head("exec-1")
	if err != nil {
		t.Fatal(err)
	}
	wantSeq, wantHash, err := leaderLedger.Head("exec-1")
	if err != nil {
		t.Fatal(err)
	}
	if gotSeq != wantSeq || gotHash != wantHash {
		t.Fatalf("local head = (%d,%s), want (%d,%s) matching leader", gotSeq, gotHash, wantSeq, wantHash)
	}
}

func TestReconcileNoOpWhenAlreadyCaughtUp(t *testing.T) {
	leaderLedger := ledger.New(storage.NewMemory())
	leaderLedger.Append("exec-1", ledger.KindFlowStarted, nil)
	entries, _ := leaderLedger.Read("exec-1", 1, 1)

	c, localLedger, _ := newTestCoordinator(t, "n2", nil)
	localLedger.AppendReplicated(entries[0])

	discarded, err := c.Reconcile("exec-1", entries)
	if err != nil {
		t.Fatal(err)
	}
	if len(discarded) != 0 {
		t.Fatalf("discarded = %v, want none", discarded)
	}
}

type fakeVerifier struct{ fail bool }

func (f fakeVerifier) Verify(payload, signature []byte, signer string) error {
	if f.fail {
		return errors.New("bad signature")
	}
	return nil
}

func TestVerifyEntryDownWeightsFailingPeer(t *testing.T) {
	c, _, arena := newTestCoordinator(t, "n2", nil)
	arena.ReportSample("n1", nodearena.Sample{})

	e := ledger.Entry{ExecID: "exec-1", Seq: 1}
	if err := c.VerifyEntry("n1", e, nil, fakeVerifier{fail: true}); err == nil {
		t.Fatal("expected verification failure")
	}
	snap, _ := arena.Snapshot("n1")
	if snap.DownWeight != chainVerifyDownWeight {
		t.Fatalf("downweight = %v, want %v", snap.DownWeight, chainVerifyDownWeight)
	}
}

func TestVerifyEntryPassesThrough(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "n2", nil)
	e := ledger.Entry{ExecID: "exec-1", Seq: 1}
	if err := c.VerifyEntry("n1", e, nil, fakeVerifier{fail: false}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
