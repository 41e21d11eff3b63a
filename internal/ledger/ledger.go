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

// Package ledger implements C1: the append-only, hash-chained per-execution
// event log with atomic commit described in spec.md §4.1.
package ledger

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/qflow/qflow/internal/storage"
)

const (
	headPrefix  = "h/"
	entryPrefix = "e/"

	// maxAppendRetries bounds the optimistic re-read loop Append performs;
	// exhausting it surfaces ErrLedgerConflict per §4.1's failure semantics.
	maxAppendRetries = 8
)

func headKey(execID string) []byte {
	return []byte(headPrefix + execID)
}

func entryKey(execID string, seq uint64) []byte {
	k := make([]byte, 0, len(entryPrefix)+len(execID)+1+8)
	k = append(k, entryPrefix...)
	k = append(k, execID...)
	k = append(k, '/')
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	return append(k, seqBuf[:]...)
}

// head is the persisted chain tip for one execution.
type head struct {
	Seq  uint64
	Hash Hash
}

func encodeHead(h head) []byte {
	buf := make([]byte, 8+len(h.Hash))
	binary.BigEndian.PutUint64(buf[:8], h.Seq)
	copy(buf[8:], h.Hash[:])
	return buf
}

func decodeHead(b []byte) (head, error) {
	if len(b) != 8+len(Hash{}) {
		return head{}, fmt.Errorf("ledger: malformed head record (%d bytes)", len(b))
	}
	var h head
	h.Seq = binary.BigEndian.Uint64(b[:8])
	copy(h.Hash[:], b[8:])
	return h, nil
}

// Ledger is a per-node store of hash-chained execution event logs, one
// independent chain per exec_id (§3: "entries carry no pointers into other
// executions; cross-execution ordering is not defined").
type Ledger struct {
	kv storage.KV

	// execLocks serializes concurrent Append calls against the same
	// exec_id, so "the loser retries against the new head" is true by
	// construction rather than by racing on storage.
	execLocksMu sync.Mutex
	execLocks   map[string]*sync.Mutex
}

// New wraps a KV store as a Ledger. A single KV is shared by every
// execution on the node, namespaced by key prefix.
func New(kv storage.KV) *Ledger {
	return &Ledger{kv: kv, execLocks: make(map[string]*sync.Mutex)}
}

func (l *Ledger) lockFor(execID string) *sync.Mutex {
	l.execLocksMu.Lock()
	defer l.execLocksMu.Unlock()
	mu, ok := l.execLocks[execID]
	if !ok {
		mu = &sync.Mutex{}
		l.execLocks[execID] = mu
	}
	return mu
}

// Head returns the current chain tip for execID: seq 0 and the zero hash if
// no entry has ever been appended.
func (l *Ledger) Head(execID string) (seq uint64, h Hash, err error) {
	raw, err := l.kv.Get(headKey(execID))
	if err == storage.ErrNotFound {
		return 0, Hash{}, nil
	}
	if err != nil {
		return 0, Hash{}, err
	}
	hd, err := decodeHead(raw)
	if err != nil {
		return 0, Hash{}, err
	}
	return hd.Seq, hd.Hash, nil
}

// Append writes one new entry to execID's chain and returns its assigned
// seq and hash. Concurrent Appends on the same exec_id are serialized; a
// caller that keeps losing the race against storage I/O failures sees
// ErrLedgerConflict once the retry budget is exhausted.
func (l *Ledger) Append(execID string, kind Kind, payload []byte) (seq uint64, h Hash, err error) {
	mu := l.lockFor(execID)
	mu.Lock()
	defer mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		curSeq, curHash, err := l.Head(execID)
		if err != nil {
			lastErr = err
			continue
		}
		newSeq := curSeq + 1
		ts := time.Now().UnixNano()
		newHash, err := computeHash(execID, newSeq, ts, kind, payload, curHash)
		if err != nil {
			return 0, Hash{}, err
		}
		entry := Entry{
			ExecID:    execID,
			Seq:       newSeq,
			Timestamp: ts,
			Kind:      kind,
			Payload:   payload,
			PrevHash:  curHash,
			Hash:      newHash,
		}
		encEntry, err := marshalEntry(entry)
		if err != nil {
			return 0, Hash{}, err
		}
		batch := l.kv.NewBatch()
		if err := batch.Put(entryKey(execID, newSeq), encEntry); err != nil {
			lastErr = err
			continue
		}
		if err := batch.Put(headKey(execID), encodeHead(head{Seq: newSeq, Hash: newHash})); err != nil {
			lastErr = err
			continue
		}
		if err := batch.Commit(); err != nil {
			lastErr = err
			continue
		}
		return newSeq, newHash, nil
	}
	if lastErr != nil {
		return 0, Hash{}, fmt.Errorf("%w: %v", ErrLedgerConflict, lastErr)
	}
	return 0, Hash{}, ErrLedgerConflict
}

// AppendReplicated persists e verbatim as received from execID's leader
// over the peer transport (§4.7: "followers receive ledger deltas... and
// maintain a read-only replica"). Unlike Append, the caller supplies seq,
// timestamp and hash; AppendReplicated only verifies them — that e.Seq is
// the immediate successor of the local head, that e.PrevHash matches it,
// and that e.Hash is what computeHash actually yields for e's fields —
// before storing. Any mismatch means either a Byzantine or corrupted
// sender and is reported as ErrIntegrityViolation without being stored, so
// a follower's replica can never silently diverge from what it claims to
// hold.
func (l *Ledger) AppendReplicated(e Entry) error {
	mu := l.lockFor(e.ExecID)
	mu.Lock()
	defer mu.Unlock()

	curSeq, curHash, err := l.Head(e.ExecID)
	if err != nil {
		return err
	}
	if e.Seq != curSeq+1 {
		return fmt.Errorf("%w: exec %s expected seq %d, got %d", ErrIntegrityViolation, e.ExecID, curSeq+1, e.Seq)
	}
	if e.PrevHash != curHash {
		return fmt.Errorf("%w: exec %s prev_hash mismatch at seq %d", ErrIntegrityViolation, e.ExecID, e.Seq)
	}
	wantHash, err := computeHash(e.ExecID, e.Seq, e.Timestamp, e.Kind, e.Payload, e.PrevHash)
	if err != nil {
		return err
	}
	if wantHash != e.Hash {
		return fmt.Errorf("%w: exec %s hash mismatch at seq %d", ErrIntegrityViolation, e.ExecID, e.Seq)
	}

	encEntry, err := marshalEntry(e)
	if err != nil {
		return err
	}
	batch := l.kv.NewBatch()
	if err := batch.Put(entryKey(e.ExecID, e.Seq), encEntry); err != nil {
		return err
	}
	if err := batch.Put(headKey(e.ExecID), encodeHead(head{Seq: e.Seq, Hash: e.Hash})); err != nil {
		return err
	}
	return batch.Commit()
}

// TruncateAfter discards every entry after keepSeq and rewinds the head to
// it, used when partition healing resolves a divergence by
// longest-prefix-with-highest-leader-epoch and the local tail turns out to
// be the one that must be discarded (§4.7 "Partition handling"). The
// steps that owned the discarded entries are the caller's responsibility
// to return to Ready.
func (l *Ledger) TruncateAfter(execID string, keepSeq uint64) error {
	mu := l.lockFor(execID)
	mu.Lock()
	defer mu.Unlock()

	curSeq, _, err := l.Head(execID)
	if err != nil {
		return err
	}
	if keepSeq >= curSeq {
		return nil
	}
	batch := l.kv.NewBatch()
	for seq := keepSeq + 1; seq <= curSeq; seq++ {
		if err := batch.Delete(entryKey(execID, seq)); err != nil {
			return err
		}
	}
	var newHead head
	if keepSeq == 0 {
		newHead = head{Seq: 0, Hash: Hash{}}
	} else {
		raw, err := l.kv.Get(entryKey(execID, keepSeq))
		if err != nil {
			return err
		}
		kept, err := unmarshalEntry(raw)
		if err != nil {
			return err
		}
		newHead = head{Seq: kept.Seq, Hash: kept.Hash}
	}
	if err := batch.Put(headKey(execID), encodeHead(newHead)); err != nil {
		return err
	}
	return batch.Commit()
}

// Read returns the contiguous entry range [fromSeq, toSeq] for execID.
func (l *Ledger) Read(execID string, fromSeq, toSeq uint64) ([]Entry, error) {
	if fromSeq == 0 || toSeq < fromSeq {
		return nil, ErrInvalidRange
	}
	entries := make([]Entry, 0, toSeq-fromSeq+1)
	for seq := fromSeq; seq <= toSeq; seq++ {
		raw, err := l.kv.Get(entryKey(execID, seq))
		if err == storage.ErrNotFound {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		e, err := unmarshalEntry(raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// allEntries returns every entry for execID in seq order, used by Verify
// and inclusion-proof generation, both of which need the full leaf set.
func (l *Ledger) allEntries(execID string) ([]Entry, error) {
	seq, _, err := l.Head(execID)
	if err != nil {
		return nil, err
	}
	if seq == 0 {
		return nil, nil
	}
	return l.Read(execID, 1, seq)
}

// Verify recomputes execID's entire hash chain from the genesis zero hash
// and reports whether it is intact. Integrity failures are never retried:
// the caller is expected to mark the execution Failed{IntegrityViolation}
// and halt it, per §4.1's failure semantics.
func (l *Ledger) Verify(execID string) error {
	entries, err := l.allEntries(execID)
	if err != nil {
		return err
	}
	prev := Hash{}
	for _, e := range entries {
		if e.PrevHash != prev {
			return fmt.Errorf("%w: exec %s seq %d: prev_hash mismatch", ErrIntegrityViolation, execID, e.Seq)
		}
		want, err := computeHash(e.ExecID, e.Seq, e.Timestamp, e.Kind, e.Payload, e.PrevHash)
		if err != nil {
			return err
		}
		if want != e.Hash {
			return fmt.Errorf("%w: exec %s seq %d: hash mismatch", ErrIntegrityViolation, execID, e.Seq)
		}
		prev = e.Hash
	}
	return nil
}

// Prove returns an inclusion proof that the entry at seq belongs to
// execID's chain, checkable against the Merkle root without replaying
// every prior entry.
func (l *Ledger) Prove(execID string, seq uint64) (InclusionProof, error) {
	entries, err := l.allEntries(execID)
	if err != nil {
		return InclusionProof{}, err
	}
	if seq == 0 || seq > uint64(len(entries)) {
		return InclusionProof{}, ErrNotFound
	}
	leaves := make([]Hash, len(entries))
	for i, e := range entries {
		leaves[i] = e.Hash
	}
	return inclusionProofFor(leaves, int(seq-1))
}

// Root returns the Merkle root over execID's current entry set.
func (l *Ledger) Root(execID string) (Hash, error) {
	entries, err := l.allEntries(execID)
	if err != nil {
		return Hash{}, err
	}
	leaves := make([]Hash, len(entries))
	for i, e := range entries {
		leaves[i] = e.Hash
	}
	return merkleRootOf(leaves)
}
