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
	"math/bits"

	"github.com/everx-labs/ever-block-go/cell"
	"github.com/everx-labs/ever-block-go/common"
)

// Edge labels come in three encodings, all carrying up to maxLen key bits:
//
//	short: '0'  followed by the length in unary and the bits verbatim
//	long:  '10' followed by the length in ceil(log2(maxLen+1)) bits and the bits verbatim
//	same:  '11' followed by one repeated bit and the length field
//
// The decoder accepts all three transparently; the encoder picks whichever
// is shortest.

// lenBits returns the width of a length field able to hold 0..maxLen.
func lenBits(maxLen int) int {
	return bits.Len(uint(maxLen))
}

// loadLabel reads an edge label of at most maxLen bits. It returns the label
// as one bit per byte.
func loadLabel(s *cell.Slice, maxLen int) ([]byte, error) {
	short, err := s.LoadBit()
	if err != nil {
		return nil, err
	}
	if !short {
		// unary length: a run of ones terminated by a zero
		n := 0
		for {
			one, err := s.LoadBit()
			if err != nil {
				return nil, err
			}
			if !one {
				break
			}
			n++
			if n > maxLen {
				return nil, fmt.Errorf("%w: edge label longer than remaining key", common.ErrFormat)
			}
		}
		return loadLabelBits(s, n)
	}

	same, err := s.LoadBit()
	if err != nil {
		return nil, err
	}
	if !same {
		n, err := s.LoadUint(lenBits(maxLen))
		if err != nil {
			return nil, err
		}
		if int(n) > maxLen {
			return nil, fmt.Errorf("%w: edge label longer than remaining key", common.ErrFormat)
		}
		return loadLabelBits(s, int(n))
	}

	repeated, err := s.LoadBit()
	if err != nil {
		return nil, err
	}
	n, err := s.LoadUint(lenBits(maxLen))
	if err != nil {
		return nil, err
	}
	if int(n) > maxLen {
		return nil, fmt.Errorf("%w: edge label longer than remaining key", common.ErrFormat)
	}
	label := make([]byte, n)
	if repeated {
		for i := range label {
			label[i] = 1
		}
	}
	return label, nil
}

func loadLabelBits(s *cell.Slice, n int) ([]byte, error) {
	label := make([]byte, n)
	for i := 0; i < n; i++ {
		bit, err := s.LoadBit()
		if err != nil {
			return nil, err
		}
		if bit {
			label[i] = 1
		}
	}
	return label, nil
}

// storeLabel writes the label using the shortest of the three encodings.
func storeLabel(b *cell.Builder, label []byte, maxLen int) error {
	n := len(label)
	allSame := n > 0
	for _, bit := range label {
		if bit != label[0] {
			allSame = false
			break
		}
	}

	shortSize := 2*n + 2
	longSize := 2 + lenBits(maxLen) + n
	sameSize := 3 + lenBits(maxLen)

	if allSame && sameSize < shortSize && sameSize < longSize {
		if err := b.StoreUint(0b11, 2); err != nil {
			return err
		}
		if err := b.StoreBit(label[0] != 0); err != nil {
			return err
		}
		return b.StoreUint(uint64(n), lenBits(maxLen))
	}
	if shortSize <= longSize {
		if err := b.StoreBit(false); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := b.StoreBit(true); err != nil {
				return err
			}
		}
		if err := b.StoreBit(false); err != nil {
			return err
		}
		return storeLabelBits(b, label)
	}
	if err := b.StoreUint(0b10, 2); err != nil {
		return err
	}
	if err := b.StoreUint(uint64(n), lenBits(maxLen)); err != nil {
		return err
	}
	return storeLabelBits(b, label)
}

func storeLabelBits(b *cell.Builder, label []byte) error {
	for _, bit := range label {
		if err := b.StoreBit(bit != 0); err != nil {
			return err
		}
	}
	return nil
}
