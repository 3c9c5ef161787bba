// Copyright (c) 2024 EverX Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package hashmap

import (
	"fmt"
	"sort"

	"github.com/everx-labs/ever-block-go/cell"
	"github.com/everx-labs/ever-block-go/common"
)

// Builder assembles a dictionary from key/value pairs. Values are stored
// inline at the leaves: the value cell's data bits and references are
// appended after the leaf label.
type Builder struct {
	keyBits int
	entries map[string]*cell.Cell
}

// NewBuilder creates a dictionary builder for the given key bit-length.
func NewBuilder(keyBits int) *Builder {
	return &Builder{keyBits: keyBits, entries: map[string]*cell.Cell{}}
}

// Set stores the value under the key (keyBits bits, big-endian), replacing
// any previous value.
func (b *Builder) Set(key []byte, value *cell.Cell) error {
	if len(key) != (b.keyBits+7)/8 {
		return fmt.Errorf("%w: key of %d bytes does not fit %d bits", common.ErrFormat, len(key), b.keyBits)
	}
	b.entries[string(key)] = value
	return nil
}

// Finalize builds the trie and returns its root cell, nil when empty.
func (b *Builder) Finalize() (*cell.Cell, error) {
	if len(b.entries) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	unpacked := make([][]byte, len(keys))
	for i, k := range keys {
		unpacked[i] = unpackKey([]byte(k), b.keyBits)
	}
	return b.build(unpacked, keys, 0)
}

// Store appends the dictionary to the parent builder as an optional
// reference: a presence bit followed by the root when non-empty.
func (b *Builder) Store(parent *cell.Builder) error {
	root, err := b.Finalize()
	if err != nil {
		return err
	}
	return parent.StoreMaybeRef(root)
}

// build assembles the subtree for the given keys, all sharing prefix[:pos].
func (b *Builder) build(unpacked [][]byte, keys []string, pos int) (*cell.Cell, error) {
	label := commonSuffixLabel(unpacked, pos, b.keyBits)

	node := cell.NewBuilder()
	if err := storeLabel(node, label, b.keyBits-pos); err != nil {
		return nil, err
	}
	pos += len(label)

	if pos == b.keyBits {
		value := b.entries[keys[0]]
		if err := node.StoreSlice(value.Begin()); err != nil {
			return nil, err
		}
		return node.Finalize()
	}

	// split on the next key bit
	split := sort.Search(len(unpacked), func(i int) bool {
		return unpacked[i][pos] != 0
	})
	left, err := b.build(unpacked[:split], keys[:split], pos+1)
	if err != nil {
		return nil, err
	}
	right, err := b.build(unpacked[split:], keys[split:], pos+1)
	if err != nil {
		return nil, err
	}
	if err := node.StoreRef(left); err != nil {
		return nil, err
	}
	if err := node.StoreRef(right); err != nil {
		return nil, err
	}
	return node.Finalize()
}

// commonSuffixLabel returns the longest run of bits shared by all keys
// starting at pos, one bit per byte.
func commonSuffixLabel(unpacked [][]byte, pos, keyBits int) []byte {
	if len(unpacked) == 0 {
		return nil
	}
	first := unpacked[0]
	end := keyBits
	for _, k := range unpacked[1:] {
		i := pos
		for i < end && k[i] == first[i] {
			i++
		}
		if i < end {
			end = i
		}
	}
	label := make([]byte, end-pos)
	copy(label, first[pos:end])
	return label
}

func unpackKey(key []byte, bits int) []byte {
	out := make([]byte, bits)
	for i := 0; i < bits; i++ {
		if keyBit(key, i) {
			out[i] = 1
		}
	}
	return out
}
