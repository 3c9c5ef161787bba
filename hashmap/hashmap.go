// Copyright (c) 2024 EverX Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package hashmap decodes the binary-trie dictionaries encoded on the cell
// substrate: compressed edge labels, a branch per key bit, values stored in
// leaves. Account maps, transaction maps and the configuration dictionary all
// share this shape. The walk is bounded by the fixed key bit-length, so
// maliciously deep encodings fail deterministically instead of recursing
// without limit.
package hashmap

import (
	"fmt"

	"github.com/everx-labs/ever-block-go/cell"
	"github.com/everx-labs/ever-block-go/common"
)

// SkipExtraFunc advances a leaf slice past the augmentation payload of an
// augmented dictionary, leaving the cursor at the value.
type SkipExtraFunc func(*cell.Slice) error

// Dictionary is a read-only view of a binary-trie dictionary with a fixed
// key bit-length.
type Dictionary struct {
	root      *cell.Cell
	keyBits   int
	skipExtra SkipExtraFunc

	// OnPruned, when set, is invoked for every pruned branch encountered
	// during a walk instead of failing; the pruned subtree is skipped when
	// the callback returns nil. When unset a pruned branch fails the walk
	// with an incomplete-data error.
	OnPruned func(node *cell.Cell) error
}

// Load reads a dictionary stored as an optional reference: a presence bit
// followed by the trie root. An absent dictionary decodes as empty.
func Load(s *cell.Slice, keyBits int) (*Dictionary, error) {
	root, err := s.LoadMaybeRef()
	if err != nil {
		return nil, err
	}
	return &Dictionary{root: root, keyBits: keyBits}, nil
}

// LoadAug reads an augmented dictionary stored as an optional reference. The
// skipExtra callback must advance a leaf slice past the per-node
// augmentation so the walk can locate the value.
func LoadAug(s *cell.Slice, keyBits int, skipExtra SkipExtraFunc) (*Dictionary, error) {
	d, err := Load(s, keyBits)
	if err != nil {
		return nil, err
	}
	d.skipExtra = skipExtra
	return d, nil
}

// FromCell views an already extracted trie root as a dictionary. A nil root
// is the empty dictionary.
func FromCell(root *cell.Cell, keyBits int) *Dictionary {
	return &Dictionary{root: root, keyBits: keyBits}
}

// FromCellAug is FromCell for augmented dictionaries.
func FromCellAug(root *cell.Cell, keyBits int, skipExtra SkipExtraFunc) *Dictionary {
	return &Dictionary{root: root, keyBits: keyBits, skipExtra: skipExtra}
}

// KeyBits returns the fixed key length in bits.
func (d *Dictionary) KeyBits() int {
	return d.keyBits
}

// IsEmpty reports whether the dictionary holds no entries.
func (d *Dictionary) IsEmpty() bool {
	return d.root == nil
}

// Root returns the trie root cell, nil for an empty dictionary.
func (d *Dictionary) Root() *cell.Cell {
	return d.root
}

// Iterate walks the entries in ascending key order, invoking the callback
// with the key (keyBits bits, big-endian) and a slice positioned at the
// value. The walk stops early when the callback returns false. The sequence
// is produced lazily and is not restartable mid-way.
func (d *Dictionary) Iterate(fn func(key []byte, value *cell.Slice) (bool, error)) error {
	if d.root == nil {
		return nil
	}
	prefix := make([]byte, d.keyBits) // one bit per byte
	onPath := map[common.Hash]struct{}{}
	_, err := d.walk(d.root, prefix, 0, onPath, fn)
	return err
}

// Lookup finds the value stored under the given key (keyBits bits,
// big-endian). It returns nil without error when the key is absent.
func (d *Dictionary) Lookup(key []byte) (*cell.Slice, error) {
	if len(key)*8 < d.keyBits {
		return nil, fmt.Errorf("%w: key shorter than %d bits", common.ErrFormat, d.keyBits)
	}
	if d.root == nil {
		return nil, nil
	}

	node := d.root
	pos := 0
	onPath := map[common.Hash]struct{}{}
	for {
		if _, revisit := onPath[node.Hash()]; revisit {
			return nil, fmt.Errorf("%w: dictionary edge revisits cell %v", common.ErrFormat, node.Hash())
		}
		onPath[node.Hash()] = struct{}{}

		if node.Type() == cell.TypePrunedBranch {
			if d.OnPruned == nil {
				return nil, fmt.Errorf("%w: dictionary subtree pruned at cell %v", common.ErrIncompleteData, node.Hash())
			}
			if err := d.OnPruned(node); err != nil {
				return nil, err
			}
			return nil, nil
		}

		s := node.Begin()
		label, err := loadLabel(s, d.keyBits-pos)
		if err != nil {
			return nil, err
		}
		for _, bit := range label {
			if keyBit(key, pos) != (bit != 0) {
				return nil, nil
			}
			pos++
		}
		if pos == d.keyBits {
			if d.skipExtra != nil {
				if err := d.skipExtra(s); err != nil {
					return nil, err
				}
			}
			return s, nil
		}
		if s.RefsLeft() < 2 {
			return nil, fmt.Errorf("%w: dictionary fork with %d branches", common.ErrFormat, s.RefsLeft())
		}
		left, _ := s.LoadRef()
		right, _ := s.LoadRef()
		if keyBit(key, pos) {
			node = right
		} else {
			node = left
		}
		pos++
	}
}

// walk recurses over a subtree; prefix[:pos] holds the key bits accumulated
// so far, one per byte.
func (d *Dictionary) walk(node *cell.Cell, prefix []byte, pos int, onPath map[common.Hash]struct{}, fn func([]byte, *cell.Slice) (bool, error)) (bool, error) {
	if _, revisit := onPath[node.Hash()]; revisit {
		return false, fmt.Errorf("%w: dictionary edge revisits cell %v", common.ErrFormat, node.Hash())
	}
	onPath[node.Hash()] = struct{}{}
	defer delete(onPath, node.Hash())

	if node.Type() == cell.TypePrunedBranch {
		if d.OnPruned == nil {
			return false, fmt.Errorf("%w: dictionary subtree pruned at cell %v", common.ErrIncompleteData, node.Hash())
		}
		return true, d.OnPruned(node)
	}
	if node.Type() != cell.TypeOrdinary {
		return false, fmt.Errorf("%w: dictionary node is a %v cell", common.ErrFormat, node.Type())
	}

	s := node.Begin()
	label, err := loadLabel(s, d.keyBits-pos)
	if err != nil {
		return false, err
	}
	copy(prefix[pos:], label)
	pos += len(label)

	if pos == d.keyBits {
		if d.skipExtra != nil {
			if err := d.skipExtra(s); err != nil {
				return false, err
			}
		}
		return fn(packKey(prefix, d.keyBits), s)
	}

	if s.RefsLeft() < 2 {
		return false, fmt.Errorf("%w: dictionary fork with %d branches", common.ErrFormat, s.RefsLeft())
	}
	left, _ := s.LoadRef()
	right, _ := s.LoadRef()

	prefix[pos] = 0
	cont, err := d.walk(left, prefix, pos+1, onPath, fn)
	if err != nil || !cont {
		return cont, err
	}
	prefix[pos] = 1
	return d.walk(right, prefix, pos+1, onPath, fn)
}

// keyBit extracts bit i of a big-endian key.
func keyBit(key []byte, i int) bool {
	return key[i/8]&(0x80>>(i%8)) != 0
}

// packKey converts a one-bit-per-byte prefix into a packed big-endian key.
func packKey(prefix []byte, bits int) []byte {
	key := make([]byte, (bits+7)/8)
	for i := 0; i < bits; i++ {
		if prefix[i] != 0 {
			key[i/8] |= 0x80 >> (i % 8)
		}
	}
	return key
}
