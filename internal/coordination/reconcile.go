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

import "github.com/qflow/qflow/internal/ledger"

// Reconcile resolves a divergence discovered once a partition heals: it
// walks leaderEntries (the authoritative chain as the current leader
// reports it, already sorted by Seq) to find the last seq where the local
// chain and the leader's agree, truncates the local tail past that point,
// and replays the leader's entries from there. This is §4.7's
// "longest-prefix-with-highest-leader-epoch; conflicting tails are
// discarded" rule — the leader epoch ordering itself is enforced by the
// caller only ever reconciling against the currently elected leader
// (ElectLeader already chose the highest-seq, lowest-id winner).
//
// It returns the seq numbers of any locally-held entries that were
// discarded; the caller (the node layer) is responsible for mapping those
// back to step ids and returning them to Ready via internal/engine, since
// this package has no notion of steps.
func (c *Coordinator) Reconcile(execID string, leaderEntries []ledger.Entry) (discarded []uint64, err error) {
	localSeq, _, err := c.ledger.Head(execID)
	if err != nil {
		return nil, err
	}

	matchSeq := uint64(0)
	for _, le := range leaderEntries {
		if le.Seq > localSeq {
			break
		}
		local, err := c.ledger.Read(execID, le.Seq, le.Seq)
		if err != nil {
			return nil, err
		}
		if local[0].Hash != le.Hash {
			break
		}
		matchSeq = le.Seq
	}

	if matchSeq < localSeq {
		for seq := matchSeq + 1; seq <= localSeq; seq++ {
			discarded = append(discarded, seq)
		}
		if err := c.ledger.TruncateAfter(execID, matchSeq); err != nil {
			return nil, err
		}
	}

	for _, le := range leaderEntries {
		if le.Seq <= matchSeq {
			continue
		}
		if err := c.ledger.AppendReplicated(le); err != nil {
			return discarded, err
		}
	}
	return discarded, nil
}
