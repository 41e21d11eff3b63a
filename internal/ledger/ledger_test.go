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

package ledger

import (
	"errors"
	"sync"
	"testing"

	"github.com/qflow/qflow/internal/storage"
)

func newTestLedger() *Ledger {
	return New(storage.NewMemory())
}

func TestAppendChainsHashes(t *testing.T) {
	l := newTestLedger()
	seq1, hash1, err := l.Append("exec-1", KindFlowStarted, []byte("flow started"))
	if err != nil {
		t.Fatal(err)
	}
	if seq1 != 1 {
		t.Fatalf("seq1 = %d, want 1", seq1)
	}
	seq2, hash2, err := l.Append("exec-1", KindStepReady, []byte("step-a ready"))
	if err != nil {
		t.Fatal(err)
	}
	if seq2 != 2 {
		t.Fatalf("seq2 = %d, want 2", seq2)
	}
	entries, err := l.Read("exec-1", 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Hash != hash1 || entries[1].Hash != hash2 {
		t.Fatal("read entries do not match returned hashes")
	}
	if entries[1].PrevHash != hash1 {
		t.Fatalf("entries[1].PrevHash = %s, want %s", entries[1].PrevHash, hash1)
	}
	if !entries[0].PrevHash.IsZero() {
		t.Fatal("genesis entry's prev_hash must be the zero hash")
	}
}

func TestHeadReflectsLatestAppend(t *testing.T) {
	l := newTestLedger()
	if seq, h, err := l.Head("unknown"); err != nil || seq != 0 || !h.IsZero() {
		t.Fatalf("Head(unknown) = %d, %s, %v, want 0, zero, nil", seq, h, err)
	}
	_, h1, _ := l.Append("exec-1", KindFlowStarted, nil)
	seq, h, err := l.Head("exec-1")
	if err != nil || seq != 1 || h != h1 {
		t.Fatalf("Head = %d, %s, %v, want 1, %s, nil", seq, h, err, h1)
	}
}

func TestReadGapless(t *testing.T) {
	l := newTestLedger()
	for i := 0; i < 5; i++ {
		if _, _, err := l.Append("exec-1", KindStepReady, nil); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := l.Read("exec-1", 1, 5)
	if err != nil {
		t.Fatal(err)
	}
	for i, e := range entries {
		if e.Seq != uint64(i+1) {
			t.Fatalf("entries[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
	}
	if _, err := l.Read("exec-1", 1, 6); err != ErrNotFound {
		t.Fatalf("Read past head = %v, want ErrNotFound", err)
	}
}

func TestConcurrentAppendsAreSerialized(t *testing.T) {
	l := newTestLedger()
	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, _, err := l.Append("exec-1", KindStepReady, nil); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	seq, _, err := l.Head("exec-1")
	if err != nil {
		t.Fatal(err)
	}
	if seq != n {
		t.Fatalf("head seq = %d, want %d (gapless under concurrency)", seq, n)
	}
	if err := l.Verify("exec-1"); err != nil {
		t.Fatalf("chain not intact after concurrent appends: %v", err)
	}
}

func TestVerifyDetectsNoTampering(t *testing.T) {
	l := newTestLedger()
	for i := 0; i < 3; i++ {
		l.Append("exec-1", KindStepReady, []byte{byte(i)})
	}
	if err := l.Verify("exec-1"); err != nil {
		t.Fatalf("Verify on an untampered chain failed: %v", err)
	}
}

// TestTamperedPayloadDetected is scenario S6 from spec.md §8: flipping one
// byte of a middle entry's payload must make Verify fail IntegrityViolation.
func TestTamperedPayloadDetected(t *testing.T) {
	l := newTestLedger()
	l.Append("exec-1", KindFlowStarted, []byte("a"))
	l.Append("exec-1", KindStepReady, []byte("bbb"))
	l.Append("exec-1", KindStepCompleted, []byte("c"))

	raw, err := l.kv.Get(entryKey("exec-1", 2))
	if err != nil {
		t.Fatal(err)
	}
	e, err := unmarshalEntry(raw)
	if err != nil {
		t.Fatal(err)
	}
	e.Payload[0] ^= 0xff
	tampered, err := marshalEntry(e)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.kv.Put(entryKey("exec-1", 2), tampered); err != nil {
		t.Fatal(err)
	}

	err = l.Verify("exec-1")
	if !errors.Is(err, ErrIntegrityViolation) {
		t.Fatalf("Verify after tampering = %v, want ErrIntegrityViolation", err)
	}
}

func TestProveAndVerifyInclusion(t *testing.T) {
	l := newTestLedger()
	for i := 0; i < 6; i++ {
		l.Append("exec-1", KindStepReady, []byte{byte(i)})
	}
	root, err := l.Root("exec-1")
	if err != nil {
		t.Fatal(err)
	}
	proof, err := l.Prove("exec-1", 4)
	if err != nil {
		t.Fatal(err)
	}
	if proof.Root != root {
		t.Fatalf("proof root = %s, want %s", proof.Root, root)
	}
	if proof.Index != 3 {
		t.Fatalf("proof.Index = %d, want 3", proof.Index)
	}
}

func TestProveOutOfRange(t *testing.T) {
	l := newTestLedger()
	l.Append("exec-1", KindFlowStarted, nil)
	if _, err := l.Prove("exec-1", 99); err != ErrNotFound {
		t.Fatalf("Prove(99) = %v, want ErrNotFound", err)
	}
}

func TestCrossExecutionChainsAreIndependent(t *testing.T) {
	l := newTestLedger()
	l.Append("exec-1", KindFlowStarted, nil)
	l.Append("exec-2", KindFlowStarted, nil)
	seq1, _, _ := l.Head("exec-1")
	seq2, _, _ := l.Head("exec-2")
	if seq1 != 1 || seq2 != 1 {
		t.Fatalf("seq1=%d seq2=%d, want independent seq 1 for both", seq1, seq2)
	}
}

func TestAppendReplicatedAcceptsValidEntry(t *testing.T) {
	leader := newTestLedger()
	seq, hash, err := leader.Append("exec-1", KindFlowStarted, nil)
	if err != nil {
		t.Fatal(err)
	}
	entries, err := leader.Read("exec-1", seq, seq)
	if err != nil {
		t.Fatal(err)
	}

	follower := newTestLedger()
	if err := follower.AppendReplicated(entries[0]); err != nil {
		t.Fatalf("AppendReplicated: %v", err)
	}
	gotSeq, gotHash, err := follower.Head("exec-1")
	if err != nil {
		t.Fatal(err)
	}
	if gotSeq != seq || gotHash != hash {
		t.Fatalf("follower head = (%d, %s), want (%d, %s)", gotSeq, gotHash, seq, hash)
	}
}

func TestAppendReplicatedRejectsBrokenChain(t *testing.T) {
	leader := newTestLedger()
	leader.Append("exec-1", KindFlowStarted, nil)
	_, _, err := leader.Append("exec-1", KindStepReady, []byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	entries, err := leader.Read("exec-1", 2, 2)
	if err != nil {
		t.Fatal(err)
	}

	follower := newTestLedger()
	// Follower never saw seq 1, so seq 2 arriving first must be rejected.
	if err := follower.AppendReplicated(entries[0]); !errors.Is(err, ErrIntegrityViolation) {
		t.Fatalf("err = %v, want ErrIntegrityViolation", err)
	}
}

func TestAppendReplicatedRejectsTamperedPayload(t *testing.T) {
	leader := newTestLedger()
	seq, _, err := leader.Append("exec-1", KindFlowStarted, []byte("original"))
	if err != nil {
		t.Fatal(err)
	}
	entries, err := leader.Read("exec-1", seq, seq)
	if err != nil {
		t.Fatal(err)
	}
	tampered := entries[0]
	tampered.Payload = []byte("tampered")

	follower := newTestLedger()
	if err := follower.AppendReplicated(tampered); !errors.Is(err, ErrIntegrityViolation) {
		t.Fatalf("err = %v, want ErrIntegrityViolation", err)
	}
}

func TestTruncateAfterRewindsHead(t *testing.T) {
	l := newTestLedger()
	l.Append("exec-1", KindFlowStarted, nil)
	seq2, hash2, _ := l.Append("exec-1", KindStepReady, []byte("a"))
	l.Append("exec-1", KindStepLeased, []byte("a"))

	if err := l.TruncateAfter("exec-1", seq2); err != nil {
		t.Fatal(err)
	}
	gotSeq, gotHash, err := l.Head("exec-1")
	if err != nil {
		t.Fatal(err)
	}
	if gotSeq != seq2 || gotHash != hash2 {
		t.Fatalf("head = (%d, %s), want (%d, %s)", gotSeq, gotHash, seq2, hash2)
	}
	if _, err := l.Read("exec-1", seq2+1, seq2+1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for truncated entry", err)
	}
}

func TestTruncateAfterZeroRewindsToGenesis(t *testing.T) {
	l := newTestLedger()
	l.Append("exec-1", KindFlowStarted, nil)

	if err := l.TruncateAfter("exec-1", 0); err != nil {
		t.Fatal(err)
	}
	gotSeq, gotHash, err := l.Head("exec-1")
	if err != nil {
		t.Fatal(err)
	}
	if gotSeq != 0 || !gotHash.IsZero() {
		t.Fatalf("head = (%d, %s), want genesis", gotSeq, gotHash)
	}
}
