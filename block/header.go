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
	"github.com/everx-labs/ever-block-go/cell"
)

// BlockHeader carries the block-info fields: shard identity, sequence
// numbers, generation time, the logical-time window covered by the block and
// the masterchain anchors.
type BlockHeader struct {
	Record

	Version     uint32
	NotMaster   bool
	AfterMerge  bool
	BeforeSplit bool
	AfterSplit  bool
	WantSplit   bool
	WantMerge   bool
	KeyBlock    bool

	Workchain   int32
	ShardPrefix uint64
	SeqNo       uint32
	VertSeqNo   uint32

	GenUtime uint32
	StartLT  uint64
	EndLT    uint64

	GenValidatorListHashShort uint32
	GenCatchainSeqno          uint32
	MinRefMcSeqno             uint32
	PrevKeyBlockSeqno         uint32
}

const tagBlockInfo = 0x9bc7a987

func parseHeader(c *cell.Cell, opts ParseOptions) (*BlockHeader, error) {
	h := &BlockHeader{Record: Record{Hash: c.HashAt(0)}}
	if c.Type() == cell.TypePrunedBranch {
		if err := opts.requireComplete(c); err != nil {
			return nil, err
		}
		h.Pruned = true
		return h, nil
	}

	s := c.Begin()
	tag, err := s.LoadUint(32)
	if err != nil {
		h.Err = schemaErr("block info", err)
		return h, nil
	}
	if tag != tagBlockInfo {
		h.Err = schemaErrf("block info tag %#x", tag)
		return h, nil
	}
	if err := h.loadFields(s); err != nil {
		h.Err = schemaErr("block info", err)
	}
	return h, nil
}

func (h *BlockHeader) loadFields(s *cell.Slice) error {
	v, err := s.LoadUint(32)
	if err != nil {
		return err
	}
	h.Version = uint32(v)

	for _, flag := range []*bool{
		&h.NotMaster, &h.AfterMerge, &h.BeforeSplit, &h.AfterSplit,
		&h.WantSplit, &h.WantMerge, &h.KeyBlock,
	} {
		if *flag, err = s.LoadBit(); err != nil {
			return err
		}
	}

	wc, err := s.LoadInt(32)
	if err != nil {
		return err
	}
	h.Workchain = int32(wc)
	if h.ShardPrefix, err = s.LoadUint(64); err != nil {
		return err
	}

	for _, field := range []*uint32{&h.SeqNo, &h.VertSeqNo, &h.GenUtime} {
		v, err := s.LoadUint(32)
		if err != nil {
			return err
		}
		*field = uint32(v)
	}
	if h.StartLT, err = s.LoadUint(64); err != nil {
		return err
	}
	if h.EndLT, err = s.LoadUint(64); err != nil {
		return err
	}
	for _, field := range []*uint32{
		&h.GenValidatorListHashShort, &h.GenCatchainSeqno,
		&h.MinRefMcSeqno, &h.PrevKeyBlockSeqno,
	} {
		v, err := s.LoadUint(32)
		if err != nil {
			return err
		}
		*field = uint32(v)
	}
	return nil
}
