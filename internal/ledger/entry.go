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
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/qflow/qflow/internal/codec"
)

// Hash is a SHA-256 digest, the fixed hash function §3 requires so
// independent verifiers converge on the same chain.
type Hash [sha256.Size]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }
func (h Hash) IsZero() bool   { return h == Hash{} }

// Kind enumerates the ledger entry kinds fixed by §3's data model.
type Kind uint8

const (
	KindFlowStarted Kind = iota + 1
	KindStepReady
	KindStepLeased
	KindStepStarted
	KindStepCompleted
	KindStepFailed
	KindStepRetried
	KindFlowPaused
	KindFlowResumed
	KindFlowCompleted
	KindFlowFailed
	KindFlowAborted
	KindNodeFailoverOccurred
)

func (k Kind) String() string {
	switch k {
	case KindFlowStarted:
		return "FlowStarted"
	case KindStepReady:
		return "StepReady"
	case KindStepLeased:
		return "StepLeased"
	case KindStepStarted:
		return "StepStarted"
	case KindStepCompleted:
		return "StepCompleted"
	case KindStepFailed:
		return "StepFailed"
	case KindStepRetried:
		return "StepRetried"
	case KindFlowPaused:
		return "FlowPaused"
	case KindFlowResumed:
		return "FlowResumed"
	case KindFlowCompleted:
		return "FlowCompleted"
	case KindFlowFailed:
		return "FlowFailed"
	case KindFlowAborted:
		return "FlowAborted"
	case KindNodeFailoverOccurred:
		return "NodeFailoverOccurred"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// wireEntry is the canonical, hashed representation of an Entry: every
// field that participates in hash = H(prev_hash ‖ canonical(fields)),
// PrevHash first so the chain linkage is baked into the encoded prefix.
type wireEntry struct {
	PrevHash  []byte `codec:"0"`
	ExecID    string `codec:"1"`
	Seq       uint64 `codec:"2"`
	Timestamp int64  `codec:"3"`
	Kind      uint64 `codec:"4"`
	Payload   []byte `codec:"5"`
}

// Entry is one tamper-evident record in an execution's ledger.
type Entry struct {
	ExecID    string
	Seq       uint64
	Timestamp int64 // unix nanoseconds
	Kind      Kind
	Payload   []byte
	PrevHash  Hash
	Hash      Hash
}

func computeHash(execID string, seq uint64, ts int64, kind Kind, payload []byte, prev Hash) (Hash, error) {
	enc, err := codec.Encode(&wireEntry{
		PrevHash:  prev[:],
		ExecID:    execID,
		Seq:       seq,
		Timestamp: ts,
		Kind:      uint64(kind),
		Payload:   payload,
	})
	if err != nil {
		return Hash{}, err
	}
	return sha256.Sum256(enc), nil
}

// marshal/unmarshal persist an Entry (including its own hash, which is not
// part of the hashed wire form but must survive a storage round-trip).
type storedEntry struct {
	ExecID    string `codec:"0"`
	Seq       uint64 `codec:"1"`
	Timestamp int64  `codec:"2"`
	Kind      uint64 `codec:"3"`
	Payload   []byte `codec:"4"`
	PrevHash  []byte `codec:"5"`
	Hash      []byte `codec:"6"`
}

func marshalEntry(e Entry) ([]byte, error) {
	return codec.Encode(&storedEntry{
		ExecID:    e.ExecID,
		Seq:       e.Seq,
		Timestamp: e.Timestamp,
		Kind:      uint64(e.Kind),
		Payload:   e.Payload,
		PrevHash:  e.PrevHash[:],
		Hash:      e.Hash[:],
	})
}

func unmarshalEntry(data []byte) (Entry, error) {
	var s storedEntry
	if err := codec.Decode(data, &s); err != nil {
		return Entry{}, err
	}
	var e Entry
	e.ExecID = s.ExecID
	e.Seq = s.Seq
	e.Timestamp = s.Timestamp
	e.Kind = Kind(s.Kind)
	e.Payload = s.Payload
	copy(e.PrevHash[:], s.PrevHash)
	copy(e.Hash[:], s.Hash)
	return e, nil
}
