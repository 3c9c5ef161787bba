// Copyright (c) 2024 EverX Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package store

import (
	"errors"
	"testing"

	"github.com/everx-labs/ever-block-go/boc"
	"github.com/everx-labs/ever-block-go/cell"
	"github.com/everx-labs/ever-block-go/common"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return s
}

func makeLeaf(t *testing.T, payload uint64) *cell.Cell {
	t.Helper()
	b := cell.NewBuilder()
	if err := b.StoreUint(payload, 64); err != nil {
		t.Fatalf("failed to store payload: %v", err)
	}
	c, err := b.Finalize()
	if err != nil {
		t.Fatalf("failed to finalize leaf: %v", err)
	}
	return c
}

func makeNode(t *testing.T, payload uint64, refs ...*cell.Cell) *cell.Cell {
	t.Helper()
	b := cell.NewBuilder()
	if err := b.StoreUint(payload, 13); err != nil {
		t.Fatalf("failed to store payload: %v", err)
	}
	for _, r := range refs {
		if err := b.StoreRef(r); err != nil {
			t.Fatalf("failed to store reference: %v", err)
		}
	}
	c, err := b.Finalize()
	if err != nil {
		t.Fatalf("failed to finalize node: %v", err)
	}
	return c
}

func TestStore_PutLoadRoundTrip(t *testing.T) {
	s := openStore(t)
	shared := makeNode(t, 1, makeLeaf(t, 10), makeLeaf(t, 11))
	root := makeNode(t, 0, shared, makeNode(t, 2, shared))

	if err := s.Put(root); err != nil {
		t.Fatalf("failed to store tree: %v", err)
	}
	loaded, err := s.Load(root.Hash())
	if err != nil {
		t.Fatalf("failed to load root: %v", err)
	}
	if got, want := loaded.Hash(), root.Hash(); got != want {
		t.Errorf("loaded cell has hash %v, wanted %v", got, want)
	}
	if got, want := loaded.Depth(), root.Depth(); got != want {
		t.Errorf("loaded cell has depth %d, wanted %d", got, want)
	}
}

func TestStore_LoadIsCached(t *testing.T) {
	s := openStore(t)
	root := makeNode(t, 0, makeLeaf(t, 7))
	if err := s.Put(root); err != nil {
		t.Fatalf("failed to store tree: %v", err)
	}
	first, err := s.Load(root.Hash())
	if err != nil {
		t.Fatalf("failed to load root: %v", err)
	}
	second, err := s.Load(root.Hash())
	if err != nil {
		t.Fatalf("failed to load root again: %v", err)
	}
	if first != second {
		t.Errorf("repeated load did not hit the cache")
	}
}

func TestStore_MissingHash(t *testing.T) {
	s := openStore(t)
	var missing common.Hash
	missing[0] = 0xFF
	if _, err := s.Load(missing); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected not-found error, got %v", err)
	}
	present, err := s.Has(missing)
	if err != nil || present {
		t.Errorf("missing hash reported present: %v, %v", present, err)
	}
}

func TestStore_ExoticCellsSurvive(t *testing.T) {
	s := openStore(t)
	target := makeNode(t, 3, makeLeaf(t, 30))
	stub, err := cell.NewPrunedBranch(target, 0)
	if err != nil {
		t.Fatalf("failed to prune branch: %v", err)
	}
	root := makeNode(t, 0, stub)

	if err := s.Put(root); err != nil {
		t.Fatalf("failed to store tree: %v", err)
	}
	loaded, err := s.Load(root.Hash())
	if err != nil {
		t.Fatalf("failed to load root: %v", err)
	}
	if got, want := loaded.Ref(0).Type(), cell.TypePrunedBranch; got != want {
		t.Errorf("loaded reference is %v, wanted %v", got, want)
	}
	if got, want := loaded.Ref(0).HashAt(0), target.Hash(); got != want {
		t.Errorf("pruned stub lost its stored hash: %v vs %v", got, want)
	}
}

func TestStore_ResolvesPrunedState(t *testing.T) {
	s := openStore(t)
	subtree := makeNode(t, 5, makeLeaf(t, 50), makeLeaf(t, 51))
	full := makeNode(t, 0, subtree, makeLeaf(t, 60))
	if err := s.Put(full); err != nil {
		t.Fatalf("failed to store full tree: %v", err)
	}

	stub, err := cell.NewPrunedBranch(subtree, 0)
	if err != nil {
		t.Fatalf("failed to prune branch: %v", err)
	}
	partial := makeNode(t, 0, stub, makeLeaf(t, 60))

	resolved, err := boc.Resolve(partial, s)
	if err != nil {
		t.Fatalf("failed to resolve pruned tree: %v", err)
	}
	if got, want := resolved.Hash(), full.Hash(); got != want {
		t.Errorf("resolved tree has hash %v, wanted %v", got, want)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	root := makeNode(t, 0, makeLeaf(t, 70))

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := s.Put(root); err != nil {
		t.Fatalf("failed to store tree: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()
	loaded, err := reopened.Load(root.Hash())
	if err != nil {
		t.Fatalf("failed to load after reopen: %v", err)
	}
	if got, want := loaded.Hash(), root.Hash(); got != want {
		t.Errorf("loaded cell has hash %v, wanted %v", got, want)
	}
}
