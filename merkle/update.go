// Copyright (c) 2024 EverX Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package merkle

import (
	"fmt"

	"github.com/everx-labs/ever-block-go/cell"
	"github.com/everx-labs/ever-block-go/common"
)

// CreateUpdate encodes the transition between two states as a merkle update
// cell. Subtrees shared between both states appear pruned on both sides;
// content present only in the new state is disclosed in full under the new
// side, and the old side discloses just enough structure to locate it.
func CreateUpdate(oldState, newState *cell.Cell) (*cell.Cell, error) {
	oldHashes := map[common.Hash]struct{}{}
	collectHashes(oldState, oldHashes)
	newHashes := map[common.Hash]struct{}{}
	collectHashes(newState, newHashes)

	prunedOld, err := pruneShared(oldState, newHashes)
	if err != nil {
		return nil, err
	}
	prunedNew, err := pruneShared(newState, oldHashes)
	if err != nil {
		return nil, err
	}
	return cell.NewMerkleUpdate(prunedOld, prunedNew)
}

// ApplyUpdate verifies that the update's declared old root matches the given
// state and produces the new state by grafting every disclosed cell of the
// update's new side over the matching pruned positions, sharing untouched
// subtrees with the old state.
func ApplyUpdate(update, oldState *cell.Cell) (*cell.Cell, error) {
	if update.Type() != cell.TypeMerkleUpdate {
		return nil, fmt.Errorf("%w: cell %v is not a merkle update", common.ErrFormat, update.Type())
	}
	oldSide, newSide := update.Ref(0), update.Ref(1)
	if got, want := oldState.HashAt(0), oldSide.HashAt(0); got != want {
		return nil, fmt.Errorf("%w: update expects old state %v, got %v", common.ErrProof, want, got)
	}

	index := map[common.Hash]*cell.Cell{}
	collectCells(oldState, index)
	newState, err := graft(newSide, index)
	if err != nil {
		return nil, err
	}
	if got, want := newState.Hash(), newSide.HashAt(0); got != want {
		return nil, fmt.Errorf("%w: grafted state hash %v does not match declared new root %v", common.ErrProof, got, want)
	}
	return newState, nil
}

// graft rebuilds the new side of an update, substituting pruned positions by
// the subtrees the old state holds for their recorded hashes.
func graft(c *cell.Cell, index map[common.Hash]*cell.Cell) (*cell.Cell, error) {
	if c.Type() == cell.TypePrunedBranch {
		old, ok := index[c.HashAt(0)]
		if !ok {
			return nil, fmt.Errorf("%w: update references subtree %v missing from old state", common.ErrFormat, c.HashAt(0))
		}
		return old, nil
	}

	changed := false
	refs := make([]*cell.Cell, c.RefsCount())
	for i := range refs {
		r, err := graft(c.Ref(i), index)
		if err != nil {
			return nil, err
		}
		refs[i] = r
		if r != c.Ref(i) {
			changed = true
		}
	}
	if !changed && c.Level() == 0 {
		return c, nil
	}

	b := cell.NewBuilder()
	if err := b.StoreBits(c.Data(), c.Bits()); err != nil {
		return nil, err
	}
	for _, r := range refs {
		if err := b.StoreRef(r); err != nil {
			return nil, err
		}
	}
	if c.Type().IsExotic() {
		return b.FinalizeExotic()
	}
	return b.Finalize()
}

// pruneShared replaces every subtree whose hash also appears in the other
// state by a pruned stub, leaving only changed content disclosed.
func pruneShared(c *cell.Cell, other map[common.Hash]struct{}) (*cell.Cell, error) {
	if _, shared := other[c.Hash()]; shared {
		return cell.NewPrunedBranch(c, 0)
	}
	changed := false
	refs := make([]*cell.Cell, c.RefsCount())
	for i := range refs {
		r, err := pruneShared(c.Ref(i), other)
		if err != nil {
			return nil, err
		}
		refs[i] = r
		if r != c.Ref(i) {
			changed = true
		}
	}
	if !changed {
		return c, nil
	}
	b := cell.NewBuilder()
	if err := b.StoreBits(c.Data(), c.Bits()); err != nil {
		return nil, err
	}
	for _, r := range refs {
		if err := b.StoreRef(r); err != nil {
			return nil, err
		}
	}
	if c.Type().IsExotic() {
		return b.FinalizeExotic()
	}
	return b.Finalize()
}

func collectHashes(c *cell.Cell, out map[common.Hash]struct{}) {
	if _, seen := out[c.Hash()]; seen {
		return
	}
	out[c.Hash()] = struct{}{}
	for i := 0; i < c.RefsCount(); i++ {
		collectHashes(c.Ref(i), out)
	}
}

func collectCells(c *cell.Cell, out map[common.Hash]*cell.Cell) {
	if _, seen := out[c.Hash()]; seen {
		return
	}
	out[c.Hash()] = c
	for i := 0; i < c.RefsCount(); i++ {
		collectCells(c.Ref(i), out)
	}
}
