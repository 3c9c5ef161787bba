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

// Slice is a bit-level reader over a cell's data and references. It advances
// a cursor over the underlying immutable cell and is itself cheap to copy;
// the cell content is never modified.
type Slice struct {
	cell    *Cell
	bitsPos int
	bitsEnd int
	refsPos int
}

// Cell returns the cell this slice reads from.
func (s *Slice) Cell() *Cell {
	return s.cell
}

// BitsLeft returns the number of unread data bits.
func (s *Slice) BitsLeft() int {
	return s.bitsEnd - s.bitsPos
}

// RefsLeft returns the number of unread references.
func (s *Slice) RefsLeft() int {
	return len(s.cell.refs) - s.refsPos
}

// LoadBit reads a single bit.
func (s *Slice) LoadBit() (bool, error) {
	if s.BitsLeft() < 1 {
		return false, fmt.Errorf("%w: cell data underflow", common.ErrFormat)
	}
	v := s.cell.data[s.bitsPos/8]&(0x80>>(s.bitsPos%8)) != 0
	s.bitsPos++
	return v, nil
}

// LoadUint reads an unsigned big-endian integer of the given bit width.
func (s *Slice) LoadUint(bits int) (uint64, error) {
	if bits < 0 || bits > 64 {
		return 0, fmt.Errorf("%w: invalid bit width %d", common.ErrFormat, bits)
	}
	if s.BitsLeft() < bits {
		return 0, fmt.Errorf("%w: cell data underflow reading %d bits", common.ErrFormat, bits)
	}
	var v uint64
	for i := 0; i < bits; i++ {
		bit, _ := s.LoadBit()
		v <<= 1
		if bit {
			v |= 1
		}
	}
	return v, nil
}

// LoadInt reads a two's-complement signed integer of the given bit width.
func (s *Slice) LoadInt(bits int) (int64, error) {
	v, err := s.LoadUint(bits)
	if err != nil {
		return 0, err
	}
	if bits < 64 && v&(1<<(bits-1)) != 0 {
		v |= ^uint64(0) << bits
	}
	return int64(v), nil
}

// LoadBits reads the given number of bits into a fresh byte slice, most
// significant bit of each byte first.
func (s *Slice) LoadBits(bits int) ([]byte, error) {
	if s.BitsLeft() < bits {
		return nil, fmt.Errorf("%w: cell data underflow reading %d bits", common.ErrFormat, bits)
	}
	out := make([]byte, (bits+7)/8)
	if s.bitsPos%8 == 0 {
		copy(out, s.cell.data[s.bitsPos/8:])
		if bits%8 != 0 {
			out[len(out)-1] &= 0xff << (8 - bits%8)
		}
		s.bitsPos += bits
		return out, nil
	}
	for i := 0; i < bits; i++ {
		bit, _ := s.LoadBit()
		if bit {
			out[i/8] |= 0x80 >> (i % 8)
		}
	}
	return out, nil
}

// LoadBytes reads whole bytes.
func (s *Slice) LoadBytes(n int) ([]byte, error) {
	return s.LoadBits(n * 8)
}

// LoadHash reads a 32-byte hash.
func (s *Slice) LoadHash() (common.Hash, error) {
	data, err := s.LoadBytes(32)
	if err != nil {
		return common.Hash{}, err
	}
	return common.HashFromBytes(data)
}

// SkipBits advances the cursor without reading.
func (s *Slice) SkipBits(bits int) error {
	if s.BitsLeft() < bits {
		return fmt.Errorf("%w: cell data underflow skipping %d bits", common.ErrFormat, bits)
	}
	s.bitsPos += bits
	return nil
}

// LoadRef reads the next reference.
func (s *Slice) LoadRef() (*Cell, error) {
	if s.RefsLeft() < 1 {
		return nil, fmt.Errorf("%w: cell reference underflow", common.ErrFormat)
	}
	r := s.cell.refs[s.refsPos]
	s.refsPos++
	return r, nil
}

// LoadMaybeRef reads a one-bit presence flag and, when set, the following
// reference. It returns nil when the flag is clear.
func (s *Slice) LoadMaybeRef() (*Cell, error) {
	present, err := s.LoadBit()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	return s.LoadRef()
}

// LoadVarUint reads a variable-length unsigned integer: a length prefix of
// ceil(log2(maxBytes)) bits followed by that many bytes of big-endian value.
// Coin amounts use maxBytes = 16.
func (s *Slice) LoadVarUint(maxBytes int) (*uint256.Int, error) {
	lenBits := bitsForNumber(uint64(maxBytes - 1))
	n, err := s.LoadUint(lenBits)
	if err != nil {
		return nil, err
	}
	if n > 32 {
		return nil, fmt.Errorf("%w: variable integer of %d bytes too large", common.ErrFormat, n)
	}
	data, err := s.LoadBytes(int(n))
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(data), nil
}

// LoadCoins reads a 120-bit-capacity coin amount (VarUInteger 16).
func (s *Slice) LoadCoins() (*uint256.Int, error) {
	return s.LoadVarUint(16)
}

// bitsForNumber returns the number of bits needed to represent n.
func bitsForNumber(n uint64) int {
	bits := 0
	for n != 0 {
		bits++
		n >>= 1
	}
	return bits
}
