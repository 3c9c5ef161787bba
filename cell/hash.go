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
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/everx-labs/ever-block-go/common"
)

// finalize validates the structural consistency of a freshly assembled cell,
// derives its level mask from its type and references, and computes the
// hashes and depths for every significant level. After finalize returns the
// cell is immutable.
func (c *Cell) finalize() error {
	if c.bits > MaxDataBits {
		return fmt.Errorf("%w: cell data of %d bits exceeds %d-bit capacity", common.ErrFormat, c.bits, MaxDataBits)
	}
	if len(c.refs) > MaxRefs {
		return fmt.Errorf("%w: cell holds %d references, at most %d allowed", common.ErrFormat, len(c.refs), MaxRefs)
	}
	if err := c.applyTypeRules(); err != nil {
		return err
	}
	if err := c.computeHashes(); err != nil {
		return err
	}
	return c.checkStoredHashes()
}

// applyTypeRules enforces the payload shape of each cell kind and derives the
// level mask.
func (c *Cell) applyTypeRules() error {
	switch c.typ {
	case TypeOrdinary:
		var m LevelMask
		for _, r := range c.refs {
			m |= r.mask
		}
		c.mask = m
		return nil

	case TypePrunedBranch:
		if len(c.refs) != 0 {
			return fmt.Errorf("%w: pruned branch must not hold references", common.ErrFormat)
		}
		if c.bits < 16 || c.data[0] != tagPrunedBranch {
			return fmt.Errorf("%w: malformed pruned branch payload", common.ErrFormat)
		}
		mask := LevelMask(c.data[1])
		if mask == 0 || mask > 7 {
			return fmt.Errorf("%w: invalid pruned branch level mask %d", common.ErrFormat, mask)
		}
		if c.bits != 16+mask.HashIndex()*(256+16) {
			return fmt.Errorf("%w: pruned branch payload of %d bits does not match mask %d", common.ErrFormat, c.bits, mask)
		}
		c.mask = mask
		return nil

	case TypeLibraryReference:
		if len(c.refs) != 0 || c.bits != 8+256 || c.data[0] != tagLibraryReference {
			return fmt.Errorf("%w: malformed library reference payload", common.ErrFormat)
		}
		c.mask = 0
		return nil

	case TypeMerkleProof:
		if len(c.refs) != 1 || c.bits != 8+256+16 || c.data[0] != tagMerkleProof {
			return fmt.Errorf("%w: malformed merkle proof payload", common.ErrFormat)
		}
		c.mask = c.refs[0].mask >> 1
		return nil

	case TypeMerkleUpdate:
		if len(c.refs) != 2 || c.bits != 8+2*(256+16) || c.data[0] != tagMerkleUpdate {
			return fmt.Errorf("%w: malformed merkle update payload", common.ErrFormat)
		}
		c.mask = (c.refs[0].mask | c.refs[1].mask) >> 1
		return nil
	}
	return fmt.Errorf("%w: unknown cell type %d", common.ErrFormat, c.typ)
}

// computeHashes fills in the cell's hash and depth arrays bottom-up. The
// representation at level index i covers the refreshed descriptors, the data
// (or the previous-level hash for higher levels of an ordinary cell), each
// child's depth and each child's hash, with children of merkle cells viewed
// one level higher.
func (c *Cell) computeHashes() error {
	totalCount := c.mask.HashCount()
	count := totalCount
	if c.typ == TypePrunedBranch {
		count = 1 // lower-level hashes live in the payload
	}
	offset := totalCount - count
	c.hashes = make([]common.Hash, count)
	c.depths = make([]uint16, count)

	hashIdx := 0
	for level := 0; level <= c.mask.Level(); level++ {
		if !c.mask.IsSignificant(level) {
			continue
		}
		if hashIdx < offset {
			hashIdx++
			continue
		}

		childLevel := level
		if c.typ == TypeMerkleProof || c.typ == TypeMerkleUpdate {
			childLevel = level + 1
		}

		repr := sha256.New()
		repr.Write(c.descriptors(c.mask.Apply(level)))
		if hashIdx == offset {
			repr.Write(c.PaddedData())
		} else {
			prev := c.hashes[hashIdx-offset-1]
			repr.Write(prev[:])
		}

		var depth uint16
		var buf [2]byte
		for _, r := range c.refs {
			childDepth := r.DepthAt(childLevel)
			binary.BigEndian.PutUint16(buf[:], childDepth)
			repr.Write(buf[:])
			if childDepth > depth {
				depth = childDepth
			}
		}
		if len(c.refs) > 0 {
			depth++
			if depth > MaxDepth {
				return fmt.Errorf("%w: cell graph depth %d exceeds limit %d", common.ErrFormat, depth, MaxDepth)
			}
		}
		for _, r := range c.refs {
			h := r.HashAt(childLevel)
			repr.Write(h[:])
		}

		copy(c.hashes[hashIdx-offset][:], repr.Sum(nil))
		c.depths[hashIdx-offset] = depth
		hashIdx++
	}
	return nil
}

// descriptors returns the two descriptor bytes of the cell under the given
// level mask: d1 packs the reference count, the exotic flag and the mask,
// d2 encodes the data length with an odd-bit marker.
func (c *Cell) descriptors(mask LevelMask) []byte {
	d1 := byte(len(c.refs)) + byte(mask)*32
	if c.typ.IsExotic() {
		d1 += 8
	}
	d2 := byte(c.bits/8) + byte((c.bits+7)/8)
	return []byte{d1, d2}
}

// checkStoredHashes cross-checks the hashes and depths an exotic cell claims
// for its children against the children's actual values. A mismatch means the
// proof structure lies about the subtree it covers.
func (c *Cell) checkStoredHashes() error {
	switch c.typ {
	case TypeMerkleProof:
		child := c.refs[0]
		if h := child.HashAt(0); !bytes.Equal(c.data[1:33], h[:]) {
			return fmt.Errorf("%w: merkle proof stores hash %x, virtual root has %v", common.ErrProof, c.data[1:33], h)
		}
		if d := binary.BigEndian.Uint16(c.data[33:35]); d != child.DepthAt(0) {
			return fmt.Errorf("%w: merkle proof stores depth %d, virtual root has %d", common.ErrProof, d, child.DepthAt(0))
		}
	case TypeMerkleUpdate:
		oldChild, newChild := c.refs[0], c.refs[1]
		if h := oldChild.HashAt(0); !bytes.Equal(c.data[1:33], h[:]) {
			return fmt.Errorf("%w: merkle update stores old hash %x, old branch has %v", common.ErrProof, c.data[1:33], h)
		}
		if h := newChild.HashAt(0); !bytes.Equal(c.data[33:65], h[:]) {
			return fmt.Errorf("%w: merkle update stores new hash %x, new branch has %v", common.ErrProof, c.data[33:65], h)
		}
		if d := binary.BigEndian.Uint16(c.data[65:67]); d != oldChild.DepthAt(0) {
			return fmt.Errorf("%w: merkle update stores old depth %d, old branch has %d", common.ErrProof, d, oldChild.DepthAt(0))
		}
		if d := binary.BigEndian.Uint16(c.data[67:69]); d != newChild.DepthAt(0) {
			return fmt.Errorf("%w: merkle update stores new depth %d, new branch has %d", common.ErrProof, d, newChild.DepthAt(0))
		}
	}
	return nil
}
