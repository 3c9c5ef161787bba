// Copyright (c) 2024 EverX Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package block

import (
	"fmt"

	"github.com/everx-labs/ever-block-go/boc"
	"github.com/everx-labs/ever-block-go/cell"
	"github.com/everx-labs/ever-block-go/common"
)

// The producer adapters reduce each known export framing to the Input the
// parser accepts. The parser itself never learns which producer supplied
// the bytes.

// FromNodeExport adapts a full validating node's export: a single container
// whose root is the fully disclosed block.
func FromNodeExport(data []byte) (Input, error) {
	root, err := boc.Decode(data)
	if err != nil {
		return Input{}, err
	}
	return Input{Root: root}, nil
}

// FromServiceExport adapts an external indexing service's export: a
// container whose root is a merkle proof disclosing the parts of the block
// the service chose to publish. The virtual block behind the proof becomes
// the parser input.
func FromServiceExport(data []byte) (Input, error) {
	root, err := boc.Decode(data)
	if err != nil {
		return Input{}, err
	}
	if root.Type() != cell.TypeMerkleProof {
		return Input{}, fmt.Errorf("%w: service export root is a %v cell", common.ErrFormat, root.Type())
	}
	return Input{Root: root.Ref(0)}, nil
}

// FromEmulatorExport adapts a local execution emulator's export: the block
// container plus the pre-block shard state the emulator ran against, which
// lets the parser materialize the post-block state.
func FromEmulatorExport(blockData, prevStateData []byte) (Input, error) {
	root, err := boc.Decode(blockData)
	if err != nil {
		return Input{}, err
	}
	prev, err := boc.Decode(prevStateData)
	if err != nil {
		return Input{}, err
	}
	return Input{Root: root, PrevState: prev}, nil
}
