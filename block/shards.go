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
	"encoding/binary"
	"fmt"

	"github.com/everx-labs/ever-block-go/cell"
	"github.com/everx-labs/ever-block-go/common"
	"github.com/everx-labs/ever-block-go/hashmap"
)

// ShardDescr describes one shard chain as registered in a masterchain block:
// its latest block, logical-time window and split/merge intentions.
type ShardDescr struct {
	Record

	Workchain int32
	Shard     uint64

	SeqNo      uint32
	RegMcSeqno uint32
	StartLT    uint64
	EndLT      uint64

	RootHash common.Hash
	FileHash common.Hash

	BeforeSplit bool
	BeforeMerge bool
	WantSplit   bool
	WantMerge   bool

	NextCatchainSeqno  uint32
	NextValidatorShard uint64
	MinRefMcSeqno      uint32
	GenUtime           uint32
}

const (
	tagMcBlockExtra  = 0xcca5
	tagShardDescr    = 0xb
	tagShardDescrOld = 0xa

	workchainKeyBits = 32

	// shard splits never nest deeper than the shard prefix is wide
	maxShardSplitDepth = 64
)

// mcExtra is the masterchain part of a block extra section.
type mcExtra struct {
	keyBlock bool
	shards   []*ShardDescr
	config   *Config
}

// parseMcExtra decodes the masterchain extension: the shard registry keyed
// by workchain and, in key blocks, the configuration.
func parseMcExtra(c *cell.Cell, opts ParseOptions) (*mcExtra, error) {
	if c.Type() == cell.TypePrunedBranch {
		return &mcExtra{}, opts.requireComplete(c)
	}
	s := c.Begin()
	tag, err := s.LoadUint(16)
	if err != nil {
		return nil, err
	}
	if tag != tagMcBlockExtra {
		return nil, fmt.Errorf("%w: masterchain extra tag %#x", common.ErrSchema, tag)
	}

	extra := &mcExtra{}
	if extra.keyBlock, err = s.LoadBit(); err != nil {
		return nil, err
	}
	if extra.shards, err = parseShardHashes(s, opts); err != nil {
		return nil, err
	}
	if extra.keyBlock {
		if extra.config, err = parseConfig(s, opts); err != nil {
			return nil, err
		}
	}
	return extra, nil
}

// parseShardHashes walks the per-workchain shard registry: a dictionary
// keyed by workchain id whose leaves reference a binary shard-split tree of
// shard descriptions.
func parseShardHashes(s *cell.Slice, opts ParseOptions) ([]*ShardDescr, error) {
	dict, err := hashmap.Load(s, workchainKeyBits)
	if err != nil {
		return nil, err
	}
	dict.OnPruned = opts.prunedHook()

	var shards []*ShardDescr
	err = dict.Iterate(func(key []byte, value *cell.Slice) (bool, error) {
		workchain := int32(binary.BigEndian.Uint32(key))
		tree, err := value.LoadRef()
		if err != nil {
			return false, err
		}
		return true, walkShardTree(tree, workchain, 0, opts, &shards)
	})
	if err != nil {
		return nil, err
	}
	return shards, nil
}

// walkShardTree recurses over a shard-split binary tree: a leaf bit followed
// by an inline description, or a fork with two subtree references.
func walkShardTree(c *cell.Cell, workchain int32, depth int, opts ParseOptions, out *[]*ShardDescr) error {
	if depth > maxShardSplitDepth {
		return fmt.Errorf("%w: shard tree deeper than %d", common.ErrFormat, maxShardSplitDepth)
	}
	if c.Type() == cell.TypePrunedBranch {
		if err := opts.requireComplete(c); err != nil {
			return err
		}
		*out = append(*out, &ShardDescr{
			Record:    Record{Hash: c.HashAt(0), Pruned: true},
			Workchain: workchain,
		})
		return nil
	}

	s := c.Begin()
	fork, err := s.LoadBit()
	if err != nil {
		return err
	}
	if !fork {
		descr := parseShardDescr(s, workchain)
		descr.Hash = c.HashAt(0)
		*out = append(*out, descr)
		return nil
	}
	if s.RefsLeft() < 2 {
		return fmt.Errorf("%w: shard tree fork with %d branches", common.ErrFormat, s.RefsLeft())
	}
	left, _ := s.LoadRef()
	right, _ := s.LoadRef()
	if err := walkShardTree(left, workchain, depth+1, opts, out); err != nil {
		return err
	}
	return walkShardTree(right, workchain, depth+1, opts, out)
}

func parseShardDescr(s *cell.Slice, workchain int32) *ShardDescr {
	descr := &ShardDescr{Workchain: workchain}
	if err := descr.loadFields(s); err != nil {
		descr.Err = schemaErr("shard description", err)
	}
	return descr
}

func (d *ShardDescr) loadFields(s *cell.Slice) error {
	tag, err := s.LoadUint(4)
	if err != nil {
		return err
	}
	if tag != tagShardDescr && tag != tagShardDescrOld {
		return fmt.Errorf("unexpected tag %#x", tag)
	}

	for _, field := range []*uint32{&d.SeqNo, &d.RegMcSeqno} {
		v, err := s.LoadUint(32)
		if err != nil {
			return err
		}
		*field = uint32(v)
	}
	if d.StartLT, err = s.LoadUint(64); err != nil {
		return err
	}
	if d.EndLT, err = s.LoadUint(64); err != nil {
		return err
	}
	if d.RootHash, err = s.LoadHash(); err != nil {
		return err
	}
	if d.FileHash, err = s.LoadHash(); err != nil {
		return err
	}

	for _, flag := range []*bool{&d.BeforeSplit, &d.BeforeMerge, &d.WantSplit, &d.WantMerge} {
		if *flag, err = s.LoadBit(); err != nil {
			return err
		}
	}
	// nx_cc_updated plus three reserved flag bits
	if err := s.SkipBits(4); err != nil {
		return err
	}

	seqno, err := s.LoadUint(32)
	if err != nil {
		return err
	}
	d.NextCatchainSeqno = uint32(seqno)
	if d.NextValidatorShard, err = s.LoadUint(64); err != nil {
		return err
	}
	d.Shard = d.NextValidatorShard
	ref, err := s.LoadUint(32)
	if err != nil {
		return err
	}
	d.MinRefMcSeqno = uint32(ref)
	utime, err := s.LoadUint(32)
	if err != nil {
		return err
	}
	d.GenUtime = uint32(utime)
	return nil
}
