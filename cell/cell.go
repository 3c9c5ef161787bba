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
	"encoding/binary"
	"fmt"

	"github.com/everx-labs/ever-block-go/common"
)

const (
	// MaxDataBits is the capacity of a single cell in bits.
	MaxDataBits = 1023
	// MaxRefs is the maximum number of references a cell can hold.
	MaxRefs = 4
	// MaxDepth is the maximum depth of a cell graph. Deeper graphs are
	// rejected during finalization to bound recursion on adversarial input.
	MaxDepth = 1024
)

// Type enumerates the closed set of cell kinds. All consumers match on it
// exhaustively; adding a new kind is a deliberate event.
type Type byte

const (
	TypeOrdinary Type = iota
	TypePrunedBranch
	TypeLibraryReference
	TypeMerkleProof
	TypeMerkleUpdate
)

// Exotic payload tags as they appear in the first data byte of a non-ordinary
// cell on the wire.
const (
	tagPrunedBranch     = 0x01
	tagLibraryReference = 0x02
	tagMerkleProof      = 0x03
	tagMerkleUpdate     = 0x04
)

func (t Type) String() string {
	switch t {
	case TypeOrdinary:
		return "ordinary"
	case TypePrunedBranch:
		return "pruned_branch"
	case TypeLibraryReference:
		return "library_reference"
	case TypeMerkleProof:
		return "merkle_proof"
	case TypeMerkleUpdate:
		return "merkle_update"
	}
	return fmt.Sprintf("unknown(%d)", byte(t))
}

// IsExotic reports whether cells of this type carry a payload tag byte and
// participate in the proof machinery.
func (t Type) IsExotic() bool {
	return t != TypeOrdinary
}

// Cell is the atomic node of the storage graph: up to 1023 bits of data and
// up to four ordered references to other cells. Cells are immutable once
// finalized by a Builder or the BOC decoder; all hashes and depths are
// computed eagerly at that point, so every accessor below is a lock-free
// read and cells may be shared freely between goroutines.
type Cell struct {
	typ  Type
	mask LevelMask
	bits int
	data []byte // ceil(bits/8) bytes, unused trailing bits are zero
	refs []*Cell

	// hashes and depths indexed by hash index; pruned branches store a
	// single own hash, their lower-level hashes live in the payload.
	hashes []common.Hash
	depths []uint16
}

// Type returns the cell's kind.
func (c *Cell) Type() Type {
	return c.typ
}

// Mask returns the cell's level mask.
func (c *Cell) Mask() LevelMask {
	return c.mask
}

// Level returns the cell's level, the number of proof/update layers it
// carries distinct hashes for.
func (c *Cell) Level() int {
	return c.mask.Level()
}

// Bits returns the number of data bits stored in the cell.
func (c *Cell) Bits() int {
	return c.bits
}

// Data returns the cell's raw data bytes. The returned slice must not be
// modified.
func (c *Cell) Data() []byte {
	return c.data
}

// RefsCount returns the number of references the cell holds.
func (c *Cell) RefsCount() int {
	return len(c.refs)
}

// Ref returns the i-th referenced cell.
func (c *Cell) Ref(i int) *Cell {
	return c.refs[i]
}

// Begin opens a bit-level reader over the cell's data and references.
func (c *Cell) Begin() *Slice {
	return &Slice{cell: c, bitsEnd: c.bits}
}

// Hash returns the representation hash of the cell, its identity within the
// graph and in every external container.
func (c *Cell) Hash() common.Hash {
	return c.HashAt(MaxLevel)
}

// HashAt returns the cell's hash as seen from under the given number of
// enclosing proof/update layers. Level 0 is the fully disclosed hash; for a
// pruned branch it is the stored hash of the subtree it stands in for.
func (c *Cell) HashAt(level int) common.Hash {
	idx := c.mask.Apply(level).HashIndex()
	if c.typ == TypePrunedBranch {
		if idx != c.mask.HashIndex() {
			var h common.Hash
			copy(h[:], c.data[2+idx*32:])
			return h
		}
		idx = 0
	}
	return c.hashes[idx]
}

// Depth returns the depth of the cell graph rooted at this cell.
func (c *Cell) Depth() uint16 {
	return c.DepthAt(MaxLevel)
}

// DepthAt returns the cell's declared depth at the given level, mirroring
// HashAt.
func (c *Cell) DepthAt(level int) uint16 {
	idx := c.mask.Apply(level).HashIndex()
	if c.typ == TypePrunedBranch {
		if idx != c.mask.HashIndex() {
			off := 2 + c.mask.HashIndex()*32 + idx*2
			return binary.BigEndian.Uint16(c.data[off:])
		}
		idx = 0
	}
	return c.depths[idx]
}

// Descriptors returns the two wire descriptor bytes of the cell under its
// own level mask, as they appear in the serialized container.
func (c *Cell) Descriptors() []byte {
	return c.descriptors(c.mask)
}

// PaddedData returns the cell data with the completion tag applied: when the
// bit count is not a multiple of eight, a single one-bit follows the payload
// and the remainder of the last byte is zero. This is the form the data takes
// in hashing and in the serialized container.
func (c *Cell) PaddedData() []byte {
	if c.bits%8 == 0 {
		return c.data
	}
	padded := make([]byte, len(c.data))
	copy(padded, c.data)
	padded[c.bits/8] |= 0x80 >> (c.bits % 8)
	return padded
}

func (c *Cell) String() string {
	return fmt.Sprintf("cell{%v bits=%d refs=%d level=%d hash=%v}",
		c.typ, c.bits, len(c.refs), c.Level(), c.Hash())
}
