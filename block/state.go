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
	"errors"
	"fmt"

	"github.com/everx-labs/ever-block-go/cell"
	"github.com/everx-labs/ever-block-go/common"
	"github.com/everx-labs/ever-block-go/hashmap"
)

// ShardState is the parsed account snapshot of one shard: identity and
// sequence fields plus the accounts extracted from the state dictionary. The
// outbound message queue and the masterchain extension are kept as raw cells.
type ShardState struct {
	Record

	GlobalID    int32
	Workchain   int32
	ShardPrefix uint64
	SeqNo       uint32
	VertSeqNo   uint32
	GenUtime    uint32
	GenLT       uint64

	MinRefMcSeqno uint32
	BeforeSplit   bool

	Accounts []*Account

	OutMsgQueue *cell.Cell
	Custom      *cell.Cell
}

const tagShardState = 0x9023afe2

// ParseState decodes a shard-state cell graph into a ShardState. A merkle
// proof root is accepted and unwrapped to its virtual state.
func ParseState(root *cell.Cell, opts ParseOptions) (*ShardState, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: no state root", common.ErrFormat)
	}
	if root.Type() == cell.TypeMerkleProof {
		root = root.Ref(0)
	}

	st := &ShardState{Record: Record{Hash: root.HashAt(0)}}
	if root.Type() == cell.TypePrunedBranch {
		if err := opts.requireComplete(root); err != nil {
			return nil, err
		}
		st.Pruned = true
		return st, nil
	}
	if err := st.loadFields(root.Begin(), opts); err != nil {
		if errors.Is(err, common.ErrIncompleteData) {
			return nil, err
		}
		st.Err = schemaErr("shard state", err)
	}
	return st, nil
}

func (st *ShardState) loadFields(s *cell.Slice, opts ParseOptions) error {
	tag, err := s.LoadUint(32)
	if err != nil {
		return err
	}
	if tag != tagShardState {
		return fmt.Errorf("unexpected tag %#x", tag)
	}

	gid, err := s.LoadInt(32)
	if err != nil {
		return err
	}
	st.GlobalID = int32(gid)
	wc, err := s.LoadInt(32)
	if err != nil {
		return err
	}
	st.Workchain = int32(wc)
	if st.ShardPrefix, err = s.LoadUint(64); err != nil {
		return err
	}
	for _, field := range []*uint32{&st.SeqNo, &st.VertSeqNo, &st.GenUtime} {
		v, err := s.LoadUint(32)
		if err != nil {
			return err
		}
		*field = uint32(v)
	}
	if st.GenLT, err = s.LoadUint(64); err != nil {
		return err
	}
	ref, err := s.LoadUint(32)
	if err != nil {
		return err
	}
	st.MinRefMcSeqno = uint32(ref)
	if st.BeforeSplit, err = s.LoadBit(); err != nil {
		return err
	}

	if st.OutMsgQueue, err = s.LoadRef(); err != nil {
		return err
	}
	accounts, err := s.LoadRef()
	if err != nil {
		return err
	}
	if st.Accounts, err = parseAccounts(accounts, opts); err != nil {
		return err
	}
	st.Custom, err = s.LoadMaybeRef()
	return err
}

// parseAccounts walks the accounts dictionary keyed by account id. Each leaf
// carries a depth-balance augmentation, the account cell reference and the
// last-transaction link.
func parseAccounts(c *cell.Cell, opts ParseOptions) ([]*Account, error) {
	if c.Type() == cell.TypePrunedBranch {
		return nil, opts.requireComplete(c)
	}

	dict, err := hashmap.LoadAug(c.Begin(), addressKeyBits, skipDepthBalance)
	if err != nil {
		return nil, err
	}
	dict.OnPruned = opts.prunedHook()

	var accounts []*Account
	err = dict.Iterate(func(key []byte, value *cell.Slice) (bool, error) {
		accCell, err := value.LoadRef()
		if err != nil {
			return false, err
		}
		lastHash, err := value.LoadHash()
		if err != nil {
			return false, err
		}
		lastLT, err := value.LoadUint(64)
		if err != nil {
			return false, err
		}
		acc, err := parseAccount(accCell, opts)
		if err != nil {
			return false, err
		}
		acc.LastTransHash = lastHash
		acc.LastTransLT = lastLT
		accounts = append(accounts, acc)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// skipDepthBalance advances past the depth-balance augmentation: a 5-bit
// split depth followed by a currency collection.
func skipDepthBalance(s *cell.Slice) error {
	if err := s.SkipBits(5); err != nil {
		return err
	}
	return skipCurrency(s)
}
