// Copyright (c) 2024 EverX Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package cell

import (
	"fmt"

	"github.com/everx-labs/ever-block-go/common"
)

// NewPrunedBranch creates a stand-in cell for the given target, recording the
// target's hash and depth for every level visible below the new pruning
// layer. merkleDepth is the number of merkle layers already enclosing the
// target; plain proofs over fully disclosed trees use zero.
func NewPrunedBranch(target *Cell, merkleDepth int) (*Cell, error) {
	if merkleDepth < 0 || merkleDepth >= MaxLevel {
		return nil, fmt.Errorf("%w: invalid merkle depth %d", common.ErrFormat, merkleDepth)
	}
	mask := target.mask | (1 << merkleDepth)

	b := NewBuilder()
	if err := b.StoreUint(tagPrunedBranch, 8); err != nil {
		return nil, err
	}
	if err := b.StoreUint(uint64(mask), 8); err != nil {
		return nil, err
	}
	count := mask.HashIndex()
	for idx := 0; idx < count; idx++ {
		if err := b.StoreHash(target.HashAt(lowestLevelOfIndex(mask, idx))); err != nil {
			return nil, err
		}
	}
	for idx := 0; idx < count; idx++ {
		if err := b.StoreUint(uint64(target.DepthAt(lowestLevelOfIndex(mask, idx))), 16); err != nil {
			return nil, err
		}
	}
	return b.finalizeAs(TypePrunedBranch)
}

// lowestLevelOfIndex returns the smallest level whose hash index under the
// given mask equals idx.
func lowestLevelOfIndex(mask LevelMask, idx int) int {
	for level := 0; level <= MaxLevel; level++ {
		if mask.Apply(level).HashIndex() == idx {
			return level
		}
	}
	return MaxLevel
}

// NewMerkleProof wraps the given virtual root into a merkle proof cell that
// commits to the root's fully disclosed hash and depth.
func NewMerkleProof(virtualRoot *Cell) (*Cell, error) {
	b := NewBuilder()
	if err := b.StoreUint(tagMerkleProof, 8); err != nil {
		return nil, err
	}
	if err := b.StoreHash(virtualRoot.HashAt(0)); err != nil {
		return nil, err
	}
	if err := b.StoreUint(uint64(virtualRoot.DepthAt(0)), 16); err != nil {
		return nil, err
	}
	if err := b.StoreRef(virtualRoot); err != nil {
		return nil, err
	}
	return b.finalizeAs(TypeMerkleProof)
}

// NewMerkleUpdate pairs a pruned view of an old state with a pruned view of a
// new state into a merkle update cell committing to both root hashes.
func NewMerkleUpdate(oldRoot, newRoot *Cell) (*Cell, error) {
	b := NewBuilder()
	if err := b.StoreUint(tagMerkleUpdate, 8); err != nil {
		return nil, err
	}
	if err := b.StoreHash(oldRoot.HashAt(0)); err != nil {
		return nil, err
	}
	if err := b.StoreHash(newRoot.HashAt(0)); err != nil {
		return nil, err
	}
	if err := b.StoreUint(uint64(oldRoot.DepthAt(0)), 16); err != nil {
		return nil, err
	}
	if err := b.StoreUint(uint64(newRoot.DepthAt(0)), 16); err != nil {
		return nil, err
	}
	if err := b.StoreRef(oldRoot); err != nil {
		return nil, err
	}
	if err := b.StoreRef(newRoot); err != nil {
		return nil, err
	}
	return b.finalizeAs(TypeMerkleUpdate)
}

// NewLibraryReference creates a cell referencing an external library by hash.
func NewLibraryReference(library common.Hash) (*Cell, error) {
	b := NewBuilder()
	if err := b.StoreUint(tagLibraryReference, 8); err != nil {
		return nil, err
	}
	if err := b.StoreHash(library); err != nil {
		return nil, err
	}
	return b.finalizeAs(TypeLibraryReference)
}
