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

//go:generate mockgen -source loader.go -destination loader_mocks.go -package boc

import (
	"fmt"

	"github.com/everx-labs/ever-block-go/cell"
	"github.com/everx-labs/ever-block-go/common"
)

// Loader resolves cells by their representation hash. It is the access path
// for state too large to hold in memory; implementations may block on disk or
// network. A loader must be total: it answers deterministically for every
// queried hash, reporting common.ErrNotFound for hashes it does not know.
type Loader interface {
	Load(hash common.Hash) (*cell.Cell, error)
}

// CellMap is an in-memory Loader backed by a plain map.
type CellMap map[common.Hash]*cell.Cell

// NewCellMap indexes every cell reachable from the given roots by hash.
func NewCellMap(roots ...*cell.Cell) CellMap {
	m := CellMap{}
	for _, root := range roots {
		m.Add(root)
	}
	return m
}

// Add indexes the cell and its transitive references.
func (m CellMap) Add(c *cell.Cell) {
	if _, exists := m[c.Hash()]; exists {
		return
	}
	m[c.Hash()] = c
	for i := 0; i < c.RefsCount(); i++ {
		m.Add(c.Ref(i))
	}
}

func (m CellMap) Load(hash common.Hash) (*cell.Cell, error) {
	if c, ok := m[hash]; ok {
		return c, nil
	}
	return nil, common.ErrNotFound
}

// Resolve replaces every pruned branch reachable from the root by the full
// subtree the loader supplies for its recorded hash, reusing unchanged cells.
// A hash the loader cannot supply fails the resolution with a format error;
// absent content is never silently substituted.
func Resolve(root *cell.Cell, loader Loader) (*cell.Cell, error) {
	if root.Type() == cell.TypePrunedBranch {
		loaded, err := loader.Load(root.HashAt(0))
		if err != nil {
			return nil, fmt.Errorf("%w: cannot resolve pruned subtree %v: %v", common.ErrFormat, root.HashAt(0), err)
		}
		if loaded.Hash() != root.HashAt(0) {
			return nil, fmt.Errorf("%w: loader returned cell %v for hash %v", common.ErrProof, loaded.Hash(), root.HashAt(0))
		}
		return loaded, nil
	}

	changed := false
	refs := make([]*cell.Cell, root.RefsCount())
	for i := range refs {
		resolved, err := Resolve(root.Ref(i), loader)
		if err != nil {
			return nil, err
		}
		refs[i] = resolved
		if resolved != root.Ref(i) {
			changed = true
		}
	}
	if !changed {
		return root, nil
	}

	b := cell.NewBuilder()
	if err := b.StoreBits(root.Data(), root.Bits()); err != nil {
		return nil, err
	}
	for _, r := range refs {
		if err := b.StoreRef(r); err != nil {
			return nil, err
		}
	}
	if root.Type().IsExotic() {
		return b.FinalizeExotic()
	}
	return b.Finalize()
}
