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

import "math/bits"

// LevelMask describes which proof/update layers a cell participates in.
// Bit i-1 of the mask is set when the cell carries a distinct hash for
// level i. A mask of zero means the cell is fully disclosed and presents a
// single hash at every level.
type LevelMask byte

// MaxLevel is the highest level a cell can sit at; the mask therefore uses
// only its three lowest bits.
const MaxLevel = 3

// Level returns the level of the mask, the position of its highest set bit.
func (m LevelMask) Level() int {
	return bits.Len8(byte(m))
}

// Apply truncates the mask to the given level, keeping only the layers
// below it. It is used to select the hash a cell presents when viewed
// through a given number of enclosing proof layers.
func (m LevelMask) Apply(level int) LevelMask {
	return m & LevelMask((1<<level)-1)
}

// HashIndex returns the index of the hash corresponding to this mask within
// a cell's hash array.
func (m LevelMask) HashIndex() int {
	return bits.OnesCount8(byte(m))
}

// HashCount returns the number of distinct hashes a cell with this mask
// stores.
func (m LevelMask) HashCount() int {
	return m.HashIndex() + 1
}

// IsSignificant reports whether the given level contributes a distinct hash
// under this mask. Level 0 is always significant.
func (m LevelMask) IsSignificant(level int) bool {
	return level == 0 || (m>>(level-1))&1 != 0
}
