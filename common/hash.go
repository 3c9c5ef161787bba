// Copyright (c) 2024 EverX Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Hash is the SHA-256 representation hash of a cell. It is the sole identity
// of a cell: two cells with equal hashes are structurally identical.
type Hash [32]byte

// ZeroHash is the all-zero hash. It never occurs as a real cell hash and is
// used as a sentinel for "no hash".
var ZeroHash = Hash{}

// HashFromBytes copies the given 32 bytes into a Hash.
func HashFromBytes(data []byte) (Hash, error) {
	var h Hash
	if len(data) != len(h) {
		return h, fmt.Errorf("%w: invalid hash length %d", ErrFormat, len(data))
	}
	copy(h[:], data)
	return h, nil
}

// HashFromString parses a 0x-prefixed hexadecimal hash representation.
func HashFromString(s string) (Hash, error) {
	data, err := hexutil.Decode(s)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return HashFromBytes(data)
}

func (h Hash) String() string {
	return hexutil.Encode(h[:])
}
