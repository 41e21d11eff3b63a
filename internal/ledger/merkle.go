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
	"fmt"

	merkle "github.com/xsleonard/go-merkle"
)

// InclusionProof lets a verifier confirm a single entry belongs to an
// execution's chain without replaying every entry, trading the hash
// chain's O(n) verify for an O(log n) check against a Merkle root computed
// over the same leaf hashes.
type InclusionProof struct {
	Index int
	Leaf  Hash
	Root  Hash
	Path  [][]byte
}

// buildMerkleTree builds a Merkle tree over the given leaf hashes (in seq
// order) and returns the tree, so a single build can answer both Verify
// (root only) and an inclusion proof for any entry.
func buildMerkleTree(leaves []Hash) (*merkle.Tree, error) {
	blocks := make([][]byte, len(leaves))
	for i, h := range leaves {
		b := make([]byte, len(h))
		copy(b, h[:])
		blocks[i] = b
	}
	tree := merkle.NewTree()
	if err := tree.Generate(blocks, sha256.New()); err != nil {
		return nil, fmt.Errorf("ledger: merkle generate: %w", err)
	}
	return tree, nil
}

func merkleRootOf(leaves []Hash) (Hash, error) {
	if len(leaves) == 0 {
		return Hash{}, nil
	}
	tree, err := buildMerkleTree(leaves)
	if err != nil {
		return Hash{}, err
	}
	var root Hash
	copy(root[:], tree.Root().Hash)
	return root, nil
}

// inclusionProofFor computes the sibling path for the entry at index within
// the chain's full leaf set.
func inclusionProofFor(leaves []Hash, index int) (InclusionProof, error) {
	if index < 0 || index >= len(leaves) {
		return InclusionProof{}, fmt.Errorf("ledger: index %d out of range [0,%d)", index, len(leaves))
	}
	tree, err := buildMerkleTree(leaves)
	if err != nil {
		return InclusionProof{}, err
	}
	path, _, err := tree.GetMerklePath(tree.Leaves[index].Hash)
	if err != nil {
		return InclusionProof{}, fmt.Errorf("ledger: merkle path: %w", err)
	}
	var root Hash
	copy(root[:], tree.Root().Hash)
	return InclusionProof{
		Index: index,
		Leaf:  leaves[index],
		Root:  root,
		Path:  path,
	}, nil
}
