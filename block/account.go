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

	"github.com/everx-labs/ever-block-go/cell"
	"github.com/everx-labs/ever-block-go/common"
)

// Account is one parsed account record: address, balance, lifecycle status
// and the link to its latest transaction. Active accounts keep their
// state-init content in StateInit; frozen accounts only its hash.
type Account struct {
	Record

	Addr     Address
	LastPaid uint32
	Balance  *CurrencyCollection
	Status   AccountStatus

	StateInit  *cell.Cell
	FrozenHash common.Hash

	LastTransHash common.Hash
	LastTransLT   uint64
}

func parseAccount(c *cell.Cell, opts ParseOptions) (*Account, error) {
	acc := &Account{Record: Record{Hash: c.HashAt(0)}}
	if c.Type() == cell.TypePrunedBranch {
		if err := opts.requireComplete(c); err != nil {
			return nil, err
		}
		acc.Pruned = true
		return acc, nil
	}
	if err := acc.loadFields(c.Begin()); err != nil {
		acc.Err = schemaErr("account", err)
	}
	return acc, nil
}

func (acc *Account) loadFields(s *cell.Slice) error {
	// account_none$0 / account$1
	present, err := s.LoadBit()
	if err != nil {
		return err
	}
	if !present {
		acc.Status = StatusNonExist
		return nil
	}

	if acc.Addr, err = loadAddress(s); err != nil {
		return err
	}
	paid, err := s.LoadUint(32)
	if err != nil {
		return err
	}
	acc.LastPaid = uint32(paid)
	if acc.Balance, err = loadCurrency(s); err != nil {
		return err
	}

	// account_uninit$00 / account_frozen$01 state_hash / account_active$1 init
	active, err := s.LoadBit()
	if err != nil {
		return err
	}
	if active {
		acc.Status = StatusActive
		acc.StateInit, err = s.LoadRef()
		return err
	}
	frozen, err := s.LoadBit()
	if err != nil {
		return err
	}
	if !frozen {
		acc.Status = StatusUninit
		return nil
	}
	acc.Status = StatusFrozen
	acc.FrozenHash, err = s.LoadHash()
	return err
}

// Store appends the account to a builder in its wire layout.
func (acc *Account) Store(b *cell.Builder) error {
	if acc.Status == StatusNonExist {
		return b.StoreBit(false)
	}
	if err := b.StoreBit(true); err != nil {
		return err
	}
	if err := acc.Addr.Store(b); err != nil {
		return err
	}
	if err := b.StoreUint(uint64(acc.LastPaid), 32); err != nil {
		return err
	}
	if err := acc.Balance.Store(b); err != nil {
		return err
	}
	switch acc.Status {
	case StatusActive:
		if err := b.StoreBit(true); err != nil {
			return err
		}
		return b.StoreRef(acc.StateInit)
	case StatusUninit:
		return b.StoreUint(0b00, 2)
	case StatusFrozen:
		if err := b.StoreUint(0b01, 2); err != nil {
			return err
		}
		return b.StoreHash(acc.FrozenHash)
	}
	return fmt.Errorf("%w: unsupported account status %v", common.ErrFormat, acc.Status)
}
