// Copyright (c) 2024 EverX Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package boc implements the bag-of-cells binary container: the canonical
// serialization of a rooted cell graph used for blocks, shard states, proofs
// and message payloads. The byte layout round-trips bit-for-bit against other
// producers and consumers of the format.
package boc

// Container magic and header flag bits of the flags/size byte following it.
const (
	magic = 0xb5ee9c72

	flagHasIndex     = 0x80
	flagHasCrc32c    = 0x40
	flagHasCacheBits = 0x20
	flagsReserved    = 0x18 // two reserved flag bits, must be zero
	refSizeMask      = 0x07
)

// minBytesFor returns the smallest byte width able to represent n.
func minBytesFor(n uint64) int {
	size := 1
	for n > 0xff {
		size++
		n >>= 8
	}
	return size
}

// absentMarker is the first descriptor byte of an "absent" cell entry: a
// reference count of seven is not representable by a real cell, making the
// marker unambiguous. An absent entry carries only the 32-byte level-0 hash
// of the omitted cell.
const absentMarker = 0x07
