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
	"errors"
	"testing"

	"github.com/everx-labs/ever-block-go/common"
)

// makeLeaf builds an ordinary cell holding the given value.
func makeLeaf(t *testing.T, value uint64) *Cell {
	t.Helper()
	b := NewBuilder()
	if err := b.StoreUint(value, 64); err != nil {
		t.Fatalf("failed to store value: %v", err)
	}
	c, err := b.Finalize()
	if err != nil {
		t.Fatalf("failed to finalize leaf: %v", err)
	}
	return c
}

// makeNode builds an ordinary cell referencing the given children.
func makeNode(t *testing.T, value uint64, children ...*Cell) *Cell {
	t.Helper()
	b := NewBuilder()
	if err := b.StoreUint(value, 32); err != nil {
		t.Fatalf("failed to store value: %v", err)
	}
	for _, child := range children {
		if err := b.StoreRef(child); err != nil {
			t.Fatalf("failed to store reference: %v", err)
		}
	}
	c, err := b.Finalize()
	if err != nil {
		t.Fatalf("failed to finalize node: %v", err)
	}
	return c
}

func TestCell_HashIsContentAddressed(t *testing.T) {
	a := makeNode(t, 7, makeLeaf(t, 1), makeLeaf(t, 2))
	b := makeNode(t, 7, makeLeaf(t, 1), makeLeaf(t, 2))
	if a.Hash() != b.Hash() {
		t.Errorf("structurally equal cells have different hashes: %v vs %v", a.Hash(), b.Hash())
	}

	c := makeNode(t, 7, makeLeaf(t, 1), makeLeaf(t, 3))
	if a.Hash() == c.Hash() {
		t.Errorf("cells with different content share hash %v", a.Hash())
	}

	d := makeNode(t, 8, makeLeaf(t, 1), makeLeaf(t, 2))
	if a.Hash() == d.Hash() {
		t.Errorf("cells with different data share hash %v", a.Hash())
	}
}

func TestCell_DepthGrowsWithTree(t *testing.T) {
	leaf := makeLeaf(t, 1)
	if got, want := leaf.Depth(), uint16(0); got != want {
		t.Errorf("invalid leaf depth, got %d, wanted %d", got, want)
	}
	node := makeNode(t, 1, leaf)
	if got, want := node.Depth(), uint16(1); got != want {
		t.Errorf("invalid node depth, got %d, wanted %d", got, want)
	}
	root := makeNode(t, 1, node, leaf)
	if got, want := root.Depth(), uint16(2); got != want {
		t.Errorf("invalid root depth, got %d, wanted %d", got, want)
	}
}

func TestCell_DepthLimitEnforced(t *testing.T) {
	c := makeLeaf(t, 0)
	var err error
	for i := 0; i <= MaxDepth; i++ {
		b := NewBuilder()
		if err := b.StoreRef(c); err != nil {
			t.Fatalf("failed to store reference: %v", err)
		}
		c, err = b.Finalize()
		if err != nil {
			break
		}
	}
	if !errors.Is(err, common.ErrFormat) {
		t.Errorf("expected format error on depth overflow, got %v", err)
	}
}

func TestCell_PrunedBranchPreservesHashAndDepth(t *testing.T) {
	subtree := makeNode(t, 9, makeLeaf(t, 4), makeLeaf(t, 5))
	pruned, err := NewPrunedBranch(subtree, 0)
	if err != nil {
		t.Fatalf("failed to create pruned branch: %v", err)
	}
	if got, want := pruned.Type(), TypePrunedBranch; got != want {
		t.Fatalf("invalid cell type, got %v, wanted %v", got, want)
	}
	if got, want := pruned.Level(), 1; got != want {
		t.Fatalf("invalid pruned branch level, got %d, wanted %d", got, want)
	}
	if got, want := pruned.HashAt(0), subtree.Hash(); got != want {
		t.Errorf("pruned branch level-0 hash %v does not preserve subtree hash %v", got, want)
	}
	if got, want := pruned.DepthAt(0), subtree.Depth(); got != want {
		t.Errorf("pruned branch level-0 depth %d does not preserve subtree depth %d", got, want)
	}
}

func TestCell_PruningIsHashPreserving(t *testing.T) {
	// Replacing a subtree by its pruned stand-in must not change the
	// level-0 hash of any ancestor.
	left := makeNode(t, 1, makeLeaf(t, 10), makeLeaf(t, 11))
	right := makeNode(t, 2, makeLeaf(t, 20))
	root := makeNode(t, 3, left, right)

	prunedRight, err := NewPrunedBranch(right, 0)
	if err != nil {
		t.Fatalf("failed to prune right subtree: %v", err)
	}
	partialRoot := makeNode(t, 3, left, prunedRight)

	if got, want := partialRoot.HashAt(0), root.Hash(); got != want {
		t.Errorf("pruning changed the disclosed hash: got %v, wanted %v", got, want)
	}
	if partialRoot.Hash() == root.Hash() {
		t.Errorf("the raw hash of a partially pruned tree must differ from the full tree hash")
	}
	if got, want := partialRoot.Level(), 1; got != want {
		t.Errorf("invalid partial root level, got %d, wanted %d", got, want)
	}
}

func TestCell_MerkleProofCommitsToVirtualRootHash(t *testing.T) {
	tree := makeNode(t, 1, makeLeaf(t, 2), makeLeaf(t, 3))
	proof, err := NewMerkleProof(tree)
	if err != nil {
		t.Fatalf("failed to create merkle proof cell: %v", err)
	}
	if got, want := proof.Level(), 0; got != want {
		t.Errorf("proof over fully disclosed tree must have level 0, got %d", got)
	}

	// A proof cell claiming a different hash for its child is rejected.
	b := NewBuilder()
	if err := b.StoreUint(tagMerkleProof, 8); err != nil {
		t.Fatalf("failed to store tag: %v", err)
	}
	wrong := common.Hash{0x01}
	if err := b.StoreHash(wrong); err != nil {
		t.Fatalf("failed to store hash: %v", err)
	}
	if err := b.StoreUint(uint64(tree.DepthAt(0)), 16); err != nil {
		t.Fatalf("failed to store depth: %v", err)
	}
	if err := b.StoreRef(tree); err != nil {
		t.Fatalf("failed to store reference: %v", err)
	}
	if _, err := b.FinalizeExotic(); !errors.Is(err, common.ErrProof) {
		t.Errorf("expected proof error for inconsistent stored hash, got %v", err)
	}
}

func TestCell_ExoticShapeValidation(t *testing.T) {
	leaf := makeLeaf(t, 1)
	tests := map[string]func(b *Builder){
		"pruned branch with reference": func(b *Builder) {
			_ = b.StoreUint(tagPrunedBranch, 8)
			_ = b.StoreUint(1, 8)
			_ = b.StoreHash(common.Hash{})
			_ = b.StoreUint(0, 16)
			_ = b.StoreRef(leaf)
		},
		"pruned branch with zero mask": func(b *Builder) {
			_ = b.StoreUint(tagPrunedBranch, 8)
			_ = b.StoreUint(0, 8)
			_ = b.StoreHash(common.Hash{})
			_ = b.StoreUint(0, 16)
		},
		"pruned branch with truncated payload": func(b *Builder) {
			_ = b.StoreUint(tagPrunedBranch, 8)
			_ = b.StoreUint(1, 8)
			_ = b.StoreUint(0, 16)
		},
		"library reference with payload of wrong size": func(b *Builder) {
			_ = b.StoreUint(tagLibraryReference, 8)
			_ = b.StoreUint(0, 16)
		},
		"merkle proof without reference": func(b *Builder) {
			_ = b.StoreUint(tagMerkleProof, 8)
			_ = b.StoreHash(common.Hash{})
			_ = b.StoreUint(0, 16)
		},
		"merkle update with single reference": func(b *Builder) {
			_ = b.StoreUint(tagMerkleUpdate, 8)
			_ = b.StoreHash(common.Hash{})
			_ = b.StoreHash(common.Hash{})
			_ = b.StoreUint(0, 16)
			_ = b.StoreUint(0, 16)
			_ = b.StoreRef(leaf)
		},
		"unknown exotic tag": func(b *Builder) {
			_ = b.StoreUint(0x17, 8)
		},
	}
	for name, build := range tests {
		t.Run(name, func(t *testing.T) {
			b := NewBuilder()
			build(b)
			if _, err := b.FinalizeExotic(); !errors.Is(err, common.ErrFormat) {
				t.Errorf("expected format error, got %v", err)
			}
		})
	}
}

func TestCell_LibraryReference(t *testing.T) {
	lib, err := NewLibraryReference(common.Hash{0xab})
	if err != nil {
		t.Fatalf("failed to create library reference: %v", err)
	}
	if got, want := lib.Type(), TypeLibraryReference; got != want {
		t.Errorf("invalid cell type, got %v, wanted %v", got, want)
	}
	if got, want := lib.Level(), 0; got != want {
		t.Errorf("invalid level, got %d, wanted %d", got, want)
	}
}
