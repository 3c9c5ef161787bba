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

// Transaction is one parsed transaction: account, logical-time window link
// to the previous transaction, status transition, fees, and the consumed and
// produced messages. StateUpdate and Description keep the untyped tails of
// the record for callers that interpret them.
type Transaction struct {
	Record

	AccountAddr common.Hash
	LT          uint64

	PrevTransHash common.Hash
	PrevTransLT   uint64

	Now         uint32
	OutMsgCount int
	OrigStatus  AccountStatus
	EndStatus   AccountStatus

	TotalFees *CurrencyCollection

	InMsg   *Message
	OutMsgs []*Message

	StateUpdate *cell.Cell
	Description *cell.Cell
}

// AccountBlock groups the transactions one account contributed to a block.
type AccountBlock struct {
	Record

	Addr         common.Hash
	Transactions []*Transaction
}

const (
	tagAccountBlock = 0x5
	tagTransaction  = 0x7

	transactionKeyBits = 64
	outMsgKeyBits      = 15
	addressKeyBits     = 256
)

// parseAccountBlocks walks the account-blocks dictionary keyed by account
// address. Each leaf carries a fee augmentation, the account address and the
// account's transaction dictionary keyed by logical time.
func parseAccountBlocks(root *cell.Cell, opts ParseOptions) ([]*AccountBlock, error) {
	dict := hashmap.FromCellAug(root, addressKeyBits, skipCurrency)
	dict.OnPruned = opts.prunedHook()

	var blocks []*AccountBlock
	err := dict.Iterate(func(key []byte, value *cell.Slice) (bool, error) {
		ab := &AccountBlock{Record: Record{Hash: value.Cell().HashAt(0)}}
		copy(ab.Addr[:], key)
		blocks = append(blocks, ab)

		if err := ab.loadTransactions(value, opts); err != nil {
			// incomplete data aborts the walk; shape trouble stays local
			if errors.Is(err, common.ErrIncompleteData) {
				return false, err
			}
			ab.Err = schemaErr("account block", err)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

func (ab *AccountBlock) loadTransactions(s *cell.Slice, opts ParseOptions) error {
	tag, err := s.LoadUint(4)
	if err != nil {
		return err
	}
	if tag != tagAccountBlock {
		return fmt.Errorf("unexpected tag %#x", tag)
	}
	addr, err := s.LoadHash()
	if err != nil {
		return err
	}
	if addr != ab.Addr {
		return fmt.Errorf("entry for %v filed under key %v", addr, ab.Addr)
	}

	dict, err := hashmap.LoadAug(s, transactionKeyBits, skipCurrency)
	if err != nil {
		return err
	}
	dict.OnPruned = opts.prunedHook()
	return dict.Iterate(func(key []byte, value *cell.Slice) (bool, error) {
		txCell, err := value.LoadRef()
		if err != nil {
			return false, err
		}
		tx, err := parseTransaction(txCell, opts)
		if err != nil {
			return false, err
		}
		ab.Transactions = append(ab.Transactions, tx)
		return true, nil
	})
}

func parseTransaction(c *cell.Cell, opts ParseOptions) (*Transaction, error) {
	tx := &Transaction{Record: Record{Hash: c.HashAt(0)}}
	if c.Type() == cell.TypePrunedBranch {
		if err := opts.requireComplete(c); err != nil {
			return nil, err
		}
		tx.Pruned = true
		return tx, nil
	}
	if err := tx.loadFields(c.Begin(), opts); err != nil {
		if errors.Is(err, common.ErrIncompleteData) {
			return nil, err
		}
		tx.Err = schemaErr("transaction", err)
	}
	return tx, nil
}

func (tx *Transaction) loadFields(s *cell.Slice, opts ParseOptions) error {
	tag, err := s.LoadUint(4)
	if err != nil {
		return err
	}
	if tag != tagTransaction {
		return fmt.Errorf("unexpected tag %#x", tag)
	}

	if tx.AccountAddr, err = s.LoadHash(); err != nil {
		return err
	}
	if tx.LT, err = s.LoadUint(64); err != nil {
		return err
	}
	if tx.PrevTransHash, err = s.LoadHash(); err != nil {
		return err
	}
	if tx.PrevTransLT, err = s.LoadUint(64); err != nil {
		return err
	}
	now, err := s.LoadUint(32)
	if err != nil {
		return err
	}
	tx.Now = uint32(now)
	count, err := s.LoadUint(15)
	if err != nil {
		return err
	}
	tx.OutMsgCount = int(count)
	orig, err := s.LoadUint(2)
	if err != nil {
		return err
	}
	end, err := s.LoadUint(2)
	if err != nil {
		return err
	}
	tx.OrigStatus, tx.EndStatus = AccountStatus(orig), AccountStatus(end)

	inMsg, err := s.LoadMaybeRef()
	if err != nil {
		return err
	}
	if inMsg != nil {
		if tx.InMsg, err = parseMessage(inMsg, opts); err != nil {
			return err
		}
	}
	if err := tx.loadOutMsgs(s, opts); err != nil {
		return err
	}

	if tx.TotalFees, err = loadCurrency(s); err != nil {
		return err
	}
	if tx.StateUpdate, err = s.LoadRef(); err != nil {
		return err
	}
	tx.Description, err = s.LoadRef()
	return err
}

// loadOutMsgs walks the outbound-message dictionary keyed by message index.
func (tx *Transaction) loadOutMsgs(s *cell.Slice, opts ParseOptions) error {
	dict, err := hashmap.Load(s, outMsgKeyBits)
	if err != nil {
		return err
	}
	dict.OnPruned = opts.prunedHook()
	return dict.Iterate(func(key []byte, value *cell.Slice) (bool, error) {
		msgCell, err := value.LoadRef()
		if err != nil {
			return false, err
		}
		msg, err := parseMessage(msgCell, opts)
		if err != nil {
			return false, err
		}
		tx.OutMsgs = append(tx.OutMsgs, msg)
		return true, nil
	})
}
