// Copyright (c) 2024 EverX Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package boc

import (
	"errors"
	"testing"

	"github.com/everx-labs/ever-block-go/cell"
	"github.com/everx-labs/ever-block-go/common"
	"go.uber.org/mock/gomock"
)

func TestResolve_RebuildsPrunedSubtrees(t *testing.T) {
	left := makeNode(t, 1, 32, makeLeaf(t, 10))
	right := makeNode(t, 2, 32, makeLeaf(t, 20))
	full := makeNode(t, 3, 32, left, right)

	prunedRight, err := cell.NewPrunedBranch(right, 0)
	if err != nil {
		t.Fatalf("failed to prune subtree: %v", err)
	}
	partial := makeNode(t, 3, 32, left, prunedRight)

	resolved, err := Resolve(partial, NewCellMap(full))
	if err != nil {
		t.Fatalf("failed to resolve pruned tree: %v", err)
	}
	if got, want := resolved.Hash(), full.Hash(); got != want {
		t.Errorf("resolution produced hash %v, wanted %v", got, want)
	}
}

func TestResolve_SharesUntouchedSubtrees(t *testing.T) {
	full := makeNode(t, 3, 32, makeLeaf(t, 1), makeLeaf(t, 2))
	resolved, err := Resolve(full, NewCellMap())
	if err != nil {
		t.Fatalf("failed to resolve complete tree: %v", err)
	}
	if resolved != full {
		t.Errorf("resolving a complete tree must return the tree itself")
	}
}

func TestResolve_MissingSubtreeFailsWithFormatError(t *testing.T) {
	ctrl := gomock.NewController(t)

	subtree := makeLeaf(t, 7)
	pruned, err := cell.NewPrunedBranch(subtree, 0)
	if err != nil {
		t.Fatalf("failed to prune subtree: %v", err)
	}
	root := makeNode(t, 1, 32, pruned)

	loader := NewMockLoader(ctrl)
	loader.EXPECT().Load(subtree.Hash()).Return(nil, common.ErrNotFound)

	if _, err := Resolve(root, loader); !errors.Is(err, common.ErrFormat) {
		t.Errorf("expected format error for unresolvable subtree, got %v", err)
	}
}

func TestResolve_RejectsLoaderReturningWrongCell(t *testing.T) {
	ctrl := gomock.NewController(t)

	subtree := makeLeaf(t, 7)
	pruned, err := cell.NewPrunedBranch(subtree, 0)
	if err != nil {
		t.Fatalf("failed to prune subtree: %v", err)
	}
	root := makeNode(t, 1, 32, pruned)

	loader := NewMockLoader(ctrl)
	loader.EXPECT().Load(subtree.Hash()).Return(makeLeaf(t, 8), nil)

	if _, err := Resolve(root, loader); !errors.Is(err, common.ErrProof) {
		t.Errorf("expected proof error for wrong loader answer, got %v", err)
	}
}
