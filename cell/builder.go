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
	"fmt"

	"github.com/everx-labs/ever-block-go/common"
	"github.com/holiman/uint256"
)

// Builder assembles the data bits and references of a single cell. A zero
// builder is not usable; obtain one through NewBuilder. Finalizing hands the
// accumulated content over to an immutable Cell and computes its hashes.
type Builder struct {
	data []byte
	bits int
	refs []*Cell
}

// NewBuilder creates an empty cell builder.
func NewBuilder() *Builder {
	return &Builder{data: make([]byte, 0, 128)}
}

// Bits returns the number of bits stored so far.
func (b *Builder) Bits() int {
	return b.bits
}

// RefsCount returns the number of references stored so far.
func (b *Builder) RefsCount() int {
	return len(b.refs)
}

// StoreBit appends a single bit.
func (b *Builder) StoreBit(v bool) error {
	if b.bits+1 > MaxDataBits {
		return fmt.Errorf("%w: cell data capacity exceeded", common.ErrFormat)
	}
	b.grow(b.bits + 1)
	if v {
		b.data[b.bits/8] |= 0x80 >> (b.bits % 8)
	}
	b.bits++
	return nil
}

// StoreUint appends the low `bits` bits of v, most significant bit first.
func (b *Builder) StoreUint(v uint64, bits int) error {
	if bits < 0 || bits > 64 {
		return fmt.Errorf("%w: invalid bit width %d", common.ErrFormat, bits)
	}
	for i := bits - 1; i >= 0; i-- {
		if err := b.StoreBit(v&(1<<i) != 0); err != nil {
			return err
		}
	}
	return nil
}

// StoreInt appends v as a two's-complement integer of the given width.
func (b *Builder) StoreInt(v int64, bits int) error {
	return b.StoreUint(uint64(v)&(^uint64(0)>>(64-bits)), bits)
}

// StoreBits appends the first `bits` bits of data, most significant bit of
// each byte first.
func (b *Builder) StoreBits(data []byte, bits int) error {
	if bits > len(data)*8 {
		return fmt.Errorf("%w: bit count %d exceeds buffer size", common.ErrFormat, bits)
	}
	if b.bits+bits > MaxDataBits {
		return fmt.Errorf("%w: cell data capacity exceeded", common.ErrFormat)
	}
	if b.bits%8 == 0 && bits%8 == 0 {
		b.grow(b.bits + bits)
		copy(b.data[b.bits/8:], data[:bits/8])
		b.bits += bits
		return nil
	}
	for i := 0; i < bits; i++ {
		if err := b.StoreBit(data[i/8]&(0x80>>(i%8)) != 0); err != nil {
			return err
		}
	}
	return nil
}

// StoreBytes appends whole bytes.
func (b *Builder) StoreBytes(data []byte) error {
	return b.StoreBits(data, len(data)*8)
}

// StoreHash appends a 32-byte hash.
func (b *Builder) StoreHash(h common.Hash) error {
	return b.StoreBytes(h[:])
}

// StoreRef appends a reference to an already finalized cell.
func (b *Builder) StoreRef(c *Cell) error {
	if len(b.refs) >= MaxRefs {
		return fmt.Errorf("%w: cell reference capacity exceeded", common.ErrFormat)
	}
	if c == nil {
		return fmt.Errorf("%w: nil cell reference", common.ErrFormat)
	}
	b.refs = append(b.refs, c)
	return nil
}

// StoreMaybeRef appends a one-bit presence flag followed by the reference
// when the cell is not nil.
func (b *Builder) StoreMaybeRef(c *Cell) error {
	if c == nil {
		return b.StoreBit(false)
	}
	if err := b.StoreBit(true); err != nil {
		return err
	}
	return b.StoreRef(c)
}

// StoreVarUint appends a variable-length unsigned integer: a length prefix
// of ceil(log2(maxBytes)) bits followed by the shortest big-endian encoding
// of v. Coin amounts use maxBytes = 16.
func (b *Builder) StoreVarUint(v *uint256.Int, maxBytes int) error {
	data := v.Bytes()
	if len(data) >= maxBytes {
		return fmt.Errorf("%w: value does not fit %d bytes", common.ErrFormat, maxBytes)
	}
	if err := b.StoreUint(uint64(len(data)), bitsForNumber(uint64(maxBytes-1))); err != nil {
		return err
	}
	return b.StoreBytes(data)
}

// StoreCoins appends a 120-bit-capacity coin amount (VarUInteger 16).
func (b *Builder) StoreCoins(v *uint256.Int) error {
	return b.StoreVarUint(v, 16)
}

// StoreSlice appends the remaining bits and references of a slice.
func (b *Builder) StoreSlice(s *Slice) error {
	for s.BitsLeft() > 0 {
		n := s.BitsLeft()
		if n > 64 {
			n = 64
		}
		v, err := s.LoadUint(n)
		if err != nil {
			return err
		}
		if err := b.StoreUint(v, n); err != nil {
			return err
		}
	}
	for s.RefsLeft() > 0 {
		r, err := s.LoadRef()
		if err != nil {
			return err
		}
		if err := b.StoreRef(r); err != nil {
			return err
		}
	}
	return nil
}

// Finalize seals the builder content into an ordinary cell.
func (b *Builder) Finalize() (*Cell, error) {
	return b.finalizeAs(TypeOrdinary)
}

// FinalizeExotic seals the builder content into an exotic cell whose kind is
// determined by the payload tag in the first data byte.
func (b *Builder) FinalizeExotic() (*Cell, error) {
	if b.bits < 8 {
		return nil, fmt.Errorf("%w: exotic cell payload too short", common.ErrFormat)
	}
	var typ Type
	switch b.data[0] {
	case tagPrunedBranch:
		typ = TypePrunedBranch
	case tagLibraryReference:
		typ = TypeLibraryReference
	case tagMerkleProof:
		typ = TypeMerkleProof
	case tagMerkleUpdate:
		typ = TypeMerkleUpdate
	default:
		return nil, fmt.Errorf("%w: unknown exotic cell tag %d", common.ErrFormat, b.data[0])
	}
	return b.finalizeAs(typ)
}

func (b *Builder) finalizeAs(typ Type) (*Cell, error) {
	data := make([]byte, (b.bits+7)/8)
	copy(data, b.data)
	refs := make([]*Cell, len(b.refs))
	copy(refs, b.refs)
	c := &Cell{typ: typ, bits: b.bits, data: data, refs: refs}
	if err := c.finalize(); err != nil {
		return nil, err
	}
	return c, nil
}

func (b *Builder) grow(bits int) {
	need := (bits + 7) / 8
	for len(b.data) < need {
		b.data = append(b.data, 0)
	}
}
