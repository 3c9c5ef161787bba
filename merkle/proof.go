// Copyright (c) 2024 EverX Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package merkle builds and verifies partial-disclosure proofs and
// state-transition updates over immutable cell graphs. A proof replaces every
// branch without a disclosed descendant by a pruned stub whose recorded hash
// keeps the root hash intact; an update pairs two such pruned views encoding
// a before/after transition.
package merkle

import (
	"fmt"

	"github.com/everx-labs/ever-block-go/cell"
	"github.com/everx-labs/ever-block-go/common"
)

// CreateProof builds a merkle proof over the tree rooted at root, disclosing
// the cells whose hashes appear in the disclosure set together with every
// ancestor on the path to them. Branches holding no disclosed descendant
// collapse to a single pruned stub, so the proof is minimal.
func CreateProof(root *cell.Cell, disclosed map[common.Hash]struct{}) (*cell.Cell, error) {
	pruned, _, err := pruneUndisclosed(root, disclosed)
	if err != nil {
		return nil, err
	}
	return cell.NewMerkleProof(pruned)
}

// pruneUndisclosed rebuilds the subtree keeping disclosed paths and reports
// whether anything beneath (or at) the given cell was disclosed.
func pruneUndisclosed(c *cell.Cell, disclosed map[common.Hash]struct{}) (*cell.Cell, bool, error) {
	_, disclosedHere := disclosed[c.Hash()]

	refs := make([]*cell.Cell, c.RefsCount())
	anyChild := false
	for i := range refs {
		r, d, err := pruneUndisclosed(c.Ref(i), disclosed)
		if err != nil {
			return nil, false, err
		}
		refs[i] = r
		anyChild = anyChild || d
	}

	if !disclosedHere && !anyChild {
		stub, err := cell.NewPrunedBranch(c, 0)
		if err != nil {
			return nil, false, err
		}
		return stub, false, nil
	}

	b := cell.NewBuilder()
	if err := b.StoreBits(c.Data(), c.Bits()); err != nil {
		return nil, false, err
	}
	for _, r := range refs {
		if err := b.StoreRef(r); err != nil {
			return nil, false, err
		}
	}
	var rebuilt *cell.Cell
	var err error
	if c.Type().IsExotic() {
		rebuilt, err = b.FinalizeExotic()
	} else {
		rebuilt, err = b.Finalize()
	}
	if err != nil {
		return nil, false, err
	}
	return rebuilt, true, nil
}

// VerifyProof checks a merkle proof cell against the expected root hash of
// the tree it discloses and returns the proof's virtual root. The virtual
// root's disclosed hash is recomputed from content during finalization, so a
// successful comparison guarantees every disclosed bit is covered by the
// expected hash.
func VerifyProof(proof *cell.Cell, expected common.Hash) (*cell.Cell, error) {
	if proof.Type() != cell.TypeMerkleProof {
		return nil, fmt.Errorf("%w: cell %v is not a merkle proof", common.ErrFormat, proof.Type())
	}
	virtualRoot := proof.Ref(0)
	if got := virtualRoot.HashAt(0); got != expected {
		return nil, fmt.Errorf("%w: proof discloses root %v, expected %v", common.ErrProof, got, expected)
	}
	return virtualRoot, nil
}
