// Copyright (c) 2024 EverX Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package boc

import (
	"fmt"

	"github.com/everx-labs/ever-block-go/cell"
	"github.com/everx-labs/ever-block-go/common"
)

// DecodeOptions control validation performed while parsing a container.
type DecodeOptions struct {
	// ExpectedRootHashes, when set, must match the representation hashes of
	// the decoded roots in order; a mismatch fails with a proof error.
	ExpectedRootHashes []common.Hash
}

// Decode parses a container holding a single root.
func Decode(data []byte) (*cell.Cell, error) {
	roots, err := DecodeWithOptions(data, DecodeOptions{})
	if err != nil {
		return nil, err
	}
	if len(roots) != 1 {
		return nil, fmt.Errorf("%w: expected a single root, got %d", common.ErrFormat, len(roots))
	}
	return roots[0], nil
}

// rawCell is one parsed but not yet reconstructed cell entry. The descriptor
// level mask is not kept: masks are recomputed from content during
// finalization, and absent placeholders may legally raise a parent's mask
// above the declared value.
type rawCell struct {
	exotic bool
	bits   int
	data   []byte
	refs   []int
	absent bool
	hash   common.Hash // set for absent entries only
}

// DecodeWithOptions parses a serialized container and reconstructs the cell
// graph it holds. Every reference index must point to a strictly larger,
// in-range cell index; this forecloses cycles and forward dangling references
// without a separate traversal. Absent entries reconstruct as pruned-branch
// placeholders carrying only the recorded hash.
func DecodeWithOptions(data []byte, opts DecodeOptions) ([]*cell.Cell, error) {
	r := &reader{data: data}

	if m, err := r.readUint(4); err != nil {
		return nil, err
	} else if m != magic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", common.ErrFormat, m)
	}
	flags, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if flags&flagsReserved != 0 {
		return nil, fmt.Errorf("%w: reserved header flags set", common.ErrFormat)
	}
	refSize := int(flags & refSizeMask)
	if refSize == 0 || refSize > 8 {
		return nil, fmt.Errorf("%w: invalid reference size %d", common.ErrFormat, refSize)
	}
	offSizeByte, err := r.readByte()
	if err != nil {
		return nil, err
	}
	offSize := int(offSizeByte)
	if offSize == 0 || offSize > 8 {
		return nil, fmt.Errorf("%w: invalid offset size %d", common.ErrFormat, offSize)
	}

	cellCount, err := r.readUint(refSize)
	if err != nil {
		return nil, err
	}
	rootCount, err := r.readUint(refSize)
	if err != nil {
		return nil, err
	}
	absentCount, err := r.readUint(refSize)
	if err != nil {
		return nil, err
	}
	totalDataSize, err := r.readUint(offSize)
	if err != nil {
		return nil, err
	}
	// every cell entry takes at least its two descriptor bytes
	if cellCount == 0 || cellCount > uint64(len(data))/2 {
		return nil, fmt.Errorf("%w: implausible cell count %d", common.ErrFormat, cellCount)
	}
	if rootCount == 0 || rootCount > cellCount {
		return nil, fmt.Errorf("%w: invalid root count %d", common.ErrFormat, rootCount)
	}
	if absentCount > cellCount {
		return nil, fmt.Errorf("%w: invalid absent count %d", common.ErrFormat, absentCount)
	}
	if totalDataSize > uint64(len(data)) {
		return nil, fmt.Errorf("%w: declared data size %d exceeds buffer", common.ErrFormat, totalDataSize)
	}

	rootIdx := make([]int, rootCount)
	for i := range rootIdx {
		idx, err := r.readUint(refSize)
		if err != nil {
			return nil, err
		}
		if idx >= cellCount {
			return nil, fmt.Errorf("%w: root index %d out of range", common.ErrFormat, idx)
		}
		rootIdx[i] = int(idx)
	}

	if flags&flagHasIndex != 0 {
		// the offset table is redundant for sequential decoding
		if err := r.skip(int(cellCount) * offSize); err != nil {
			return nil, err
		}
	}

	raw := make([]rawCell, cellCount)
	absentSeen := uint64(0)
	payloadStart := r.pos
	for i := range raw {
		if err := r.readCell(&raw[i], i, int(cellCount), refSize); err != nil {
			return nil, err
		}
		if raw[i].absent {
			absentSeen++
		}
	}
	if uint64(r.pos-payloadStart) != totalDataSize {
		return nil, fmt.Errorf("%w: cell data occupies %d bytes, header declares %d",
			common.ErrFormat, r.pos-payloadStart, totalDataSize)
	}
	if absentSeen != absentCount {
		return nil, fmt.Errorf("%w: found %d absent cells, header declares %d",
			common.ErrFormat, absentSeen, absentCount)
	}

	if flags&flagHasCrc32c != 0 {
		sum, err := r.readUintLE(4)
		if err != nil {
			return nil, err
		}
		if got := common.Crc32c(data[:len(data)-4]); uint64(got) != sum {
			return nil, fmt.Errorf("%w: checksum mismatch, got 0x%08x, stored 0x%08x", common.ErrFormat, got, sum)
		}
	}
	if r.pos != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes after container", common.ErrFormat, len(data)-r.pos)
	}

	// children carry larger indices, so building back-to-front guarantees
	// every reference resolves to an already built cell
	cells := make([]*cell.Cell, cellCount)
	for i := int(cellCount) - 1; i >= 0; i-- {
		c, err := buildCell(&raw[i], cells)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		cells[i] = c
	}

	roots := make([]*cell.Cell, rootCount)
	for i, idx := range rootIdx {
		roots[i] = cells[idx]
	}
	for i, expected := range opts.ExpectedRootHashes {
		if i >= len(roots) {
			break
		}
		if got := roots[i].Hash(); got != expected {
			return nil, fmt.Errorf("%w: root %d hash %v does not match expected %v", common.ErrProof, i, got, expected)
		}
	}
	return roots, nil
}

func buildCell(raw *rawCell, cells []*cell.Cell) (*cell.Cell, error) {
	b := cell.NewBuilder()
	if raw.absent {
		// reconstruct as a pruned stand-in carrying the recorded hash
		if err := b.StoreUint(0x01, 8); err != nil {
			return nil, err
		}
		if err := b.StoreUint(0x01, 8); err != nil {
			return nil, err
		}
		if err := b.StoreHash(raw.hash); err != nil {
			return nil, err
		}
		if err := b.StoreUint(0, 16); err != nil {
			return nil, err
		}
		return b.FinalizeExotic()
	}
	if err := b.StoreBits(raw.data, raw.bits); err != nil {
		return nil, err
	}
	for _, ref := range raw.refs {
		if err := b.StoreRef(cells[ref]); err != nil {
			return nil, err
		}
	}
	if raw.exotic {
		return b.FinalizeExotic()
	}
	return b.Finalize()
}

// reader is a bounds-checked byte cursor over the container buffer.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("%w: truncated container", common.ErrFormat)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readUint(size int) (uint64, error) {
	if r.pos+size > len(r.data) {
		return 0, fmt.Errorf("%w: truncated container", common.ErrFormat)
	}
	var v uint64
	for i := 0; i < size; i++ {
		v = v<<8 | uint64(r.data[r.pos+i])
	}
	r.pos += size
	return v, nil
}

func (r *reader) readUintLE(size int) (uint64, error) {
	if r.pos+size > len(r.data) {
		return 0, fmt.Errorf("%w: truncated container", common.ErrFormat)
	}
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint64(r.data[r.pos+i])
	}
	r.pos += size
	return v, nil
}

func (r *reader) skip(n int) error {
	if r.pos+n > len(r.data) {
		return fmt.Errorf("%w: truncated container", common.ErrFormat)
	}
	r.pos += n
	return nil
}

func (r *reader) readSlice(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("%w: truncated container", common.ErrFormat)
	}
	s := r.data[r.pos : r.pos+n]
	r.pos += n
	return s, nil
}

// readCell parses one cell entry at index idx, validating reference
// monotonicity against the total cell count.
func (r *reader) readCell(out *rawCell, idx, cellCount, refSize int) error {
	d1, err := r.readByte()
	if err != nil {
		return err
	}
	if d1 == absentMarker {
		hashData, err := r.readSlice(32)
		if err != nil {
			return err
		}
		out.absent = true
		out.hash, _ = common.HashFromBytes(hashData)
		return nil
	}

	refs := int(d1 & 0x07)
	exotic := d1&0x08 != 0
	if refs > cell.MaxRefs {
		return fmt.Errorf("%w: cell %d holds %d references", common.ErrFormat, idx, refs)
	}

	d2, err := r.readByte()
	if err != nil {
		return err
	}
	dataBytes := (int(d2) + 1) / 2
	data, err := r.readSlice(dataBytes)
	if err != nil {
		return err
	}
	bits := int(d2/2) * 8
	if d2%2 != 0 {
		// odd descriptor: strip the completion tag
		last := data[dataBytes-1]
		if last == 0 {
			return fmt.Errorf("%w: cell %d lacks a completion tag", common.ErrFormat, idx)
		}
		tail := 0
		for last&1 == 0 {
			last >>= 1
			tail++
		}
		bits = dataBytes*8 - tail - 1
	}

	refIdx := make([]int, refs)
	for i := range refIdx {
		ref, err := r.readUint(refSize)
		if err != nil {
			return err
		}
		if ref >= uint64(cellCount) {
			return fmt.Errorf("%w: cell %d references out-of-range index %d", common.ErrFormat, idx, ref)
		}
		if ref <= uint64(idx) {
			return fmt.Errorf("%w: cell %d references non-monotonic index %d", common.ErrFormat, idx, ref)
		}
		refIdx[i] = int(ref)
	}

	out.exotic = exotic
	out.bits = bits
	out.data = data
	out.refs = refIdx
	return nil
}
