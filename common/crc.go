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

import "hash/crc32"

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Crc32c computes the CRC32-C (Castagnoli) checksum used by the bag-of-cells
// container trailer.
func Crc32c(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}
