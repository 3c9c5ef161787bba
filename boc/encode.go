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
	"encoding/binary"
	"fmt"

	"github.com/everx-labs/ever-block-go/cell"
	"github.com/everx-labs/ever-block-go/common"
)

// EncodeOptions control the optional parts of the serialized container.
type EncodeOptions struct {
	// WithIndex emits the random-access offset table.
	WithIndex bool
	// WithCrc appends a CRC32-C checksum over the entire container.
	WithCrc bool
	// WithCacheBits shifts index entries left by one bit, reserving the
	// lowest bit for consumer-side cache marks. Implies WithIndex.
	WithCacheBits bool
}

// Encode serializes the graph rooted at the given cell with default options.
func Encode(root *cell.Cell) ([]byte, error) {
	return EncodeWithOptions([]*cell.Cell{root}, EncodeOptions{})
}

// EncodeWithOptions serializes the graph reachable from the given roots.
// Structurally identical cells are deduplicated to a single entry, and cells
// are emitted in topological order, parents before children, so every
// reference points to a strictly larger index.
func EncodeWithOptions(roots []*cell.Cell, opts EncodeOptions) ([]byte, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: no roots to serialize", common.ErrFormat)
	}
	order, index, err := topologicalOrder(roots)
	if err != nil {
		return nil, err
	}

	refSize := minBytesFor(uint64(len(order)))
	totalDataSize := uint64(0)
	for _, c := range order {
		totalDataSize += uint64(cellWireSize(c, refSize))
	}
	offSize := minBytesFor(totalDataSize)

	flags := byte(refSize)
	if opts.WithIndex || opts.WithCacheBits {
		flags |= flagHasIndex
	}
	if opts.WithCrc {
		flags |= flagHasCrc32c
	}
	if opts.WithCacheBits {
		flags |= flagHasCacheBits
	}

	buf := make([]byte, 0, 16+totalDataSize)
	buf = binary.BigEndian.AppendUint32(buf, magic)
	buf = append(buf, flags, byte(offSize))
	buf = appendUint(buf, uint64(len(order)), refSize)
	buf = appendUint(buf, uint64(len(roots)), refSize)
	buf = appendUint(buf, 0, refSize) // absent cells are never emitted
	buf = appendUint(buf, totalDataSize, offSize)
	for _, root := range roots {
		buf = appendUint(buf, uint64(index[root.Hash()]), refSize)
	}

	if flags&flagHasIndex != 0 {
		offset := uint64(0)
		for _, c := range order {
			offset += uint64(cellWireSize(c, refSize))
			entry := offset
			if opts.WithCacheBits {
				entry <<= 1
			}
			buf = appendUint(buf, entry, offSize)
		}
	}

	for _, c := range order {
		buf = append(buf, c.Descriptors()...)
		buf = append(buf, c.PaddedData()...)
		for i := 0; i < c.RefsCount(); i++ {
			buf = appendUint(buf, uint64(index[c.Ref(i).Hash()]), refSize)
		}
	}

	if opts.WithCrc {
		buf = binary.LittleEndian.AppendUint32(buf, common.Crc32c(buf))
	}
	return buf, nil
}

// topologicalOrder lists every cell reachable from the roots exactly once,
// parents before children. Cells with equal hashes collapse to one entry.
func topologicalOrder(roots []*cell.Cell) ([]*cell.Cell, map[common.Hash]int, error) {
	var order []*cell.Cell
	seen := map[common.Hash]bool{}

	var visit func(c *cell.Cell)
	visit = func(c *cell.Cell) {
		if seen[c.Hash()] {
			return
		}
		seen[c.Hash()] = true
		for i := 0; i < c.RefsCount(); i++ {
			visit(c.Ref(i))
		}
		order = append(order, c)
	}
	for _, root := range roots {
		visit(root)
	}

	// reversed post-order: every reference ends up pointing forward
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	index := make(map[common.Hash]int, len(order))
	for i, c := range order {
		index[c.Hash()] = i
	}
	return order, index, nil
}

// cellWireSize returns the serialized size of one cell entry.
func cellWireSize(c *cell.Cell, refSize int) int {
	return 2 + (c.Bits()+7)/8 + c.RefsCount()*refSize
}

// appendUint appends n as a big-endian integer of the given byte width.
func appendUint(buf []byte, n uint64, size int) []byte {
	for i := size - 1; i >= 0; i-- {
		buf = append(buf, byte(n>>(8*i)))
	}
	return buf
}
