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
	"github.com/holiman/uint256"
)

// CurrencyCollection is a coin amount together with an optional dictionary
// of extra-currency balances. The extra dictionary is kept as its raw trie
// root; its entries are not interpreted here.
type CurrencyCollection struct {
	Coins *uint256.Int
	Extra *cell.Cell
}

// loadCurrency reads a coin amount followed by the optional extra-currency
// dictionary reference.
func loadCurrency(s *cell.Slice) (*CurrencyCollection, error) {
	coins, err := s.LoadCoins()
	if err != nil {
		return nil, err
	}
	extra, err := s.LoadMaybeRef()
	if err != nil {
		return nil, err
	}
	return &CurrencyCollection{Coins: coins, Extra: extra}, nil
}

// skipCurrency advances past a currency collection without decoding it.
func skipCurrency(s *cell.Slice) error {
	_, err := loadCurrency(s)
	return err
}

// Store appends the collection to a builder in its wire layout.
func (c *CurrencyCollection) Store(b *cell.Builder) error {
	if err := b.StoreCoins(c.Coins); err != nil {
		return err
	}
	return b.StoreMaybeRef(c.Extra)
}

// ValueFlow aggregates the coin movements of one block: carried-over and
// forwarded balances, import/export totals, collected and imported fees, and
// the amounts recovered, created and minted by the block.
type ValueFlow struct {
	Record

	FromPrevBlock *CurrencyCollection
	ToNextBlock   *CurrencyCollection
	Imported      *CurrencyCollection
	Exported      *CurrencyCollection
	FeesCollected *CurrencyCollection
	FeesImported  *CurrencyCollection
	Recovered     *CurrencyCollection
	Created       *CurrencyCollection
	Minted        *CurrencyCollection
}

const tagValueFlow = 0xb8e48dfb

// parseValueFlow decodes the value-flow cell: a tag, two referenced groups
// of four collections each, and the collected fees inline.
func parseValueFlow(c *cell.Cell, opts ParseOptions) (*ValueFlow, error) {
	vf := &ValueFlow{Record: Record{Hash: c.HashAt(0)}}
	if c.Type() == cell.TypePrunedBranch {
		if err := opts.requireComplete(c); err != nil {
			return nil, err
		}
		vf.Pruned = true
		return vf, nil
	}

	s := c.Begin()
	tag, err := s.LoadUint(32)
	if err != nil {
		vf.Err = schemaErr("value flow", err)
		return vf, nil
	}
	if tag != tagValueFlow {
		vf.Err = schemaErrf("value flow tag %#x", tag)
		return vf, nil
	}
	if s.RefsLeft() < 2 {
		vf.Err = schemaErrf("value flow with %d references", s.RefsLeft())
		return vf, nil
	}

	in, _ := s.LoadRef()
	if err := loadCurrencyGroup(in.Begin(), &vf.FromPrevBlock, &vf.ToNextBlock, &vf.Imported, &vf.Exported); err != nil {
		vf.Err = schemaErr("value flow imports", err)
		return vf, nil
	}
	if vf.FeesCollected, err = loadCurrency(s); err != nil {
		vf.Err = schemaErr("collected fees", err)
		return vf, nil
	}
	out, _ := s.LoadRef()
	if err := loadCurrencyGroup(out.Begin(), &vf.FeesImported, &vf.Recovered, &vf.Created, &vf.Minted); err != nil {
		vf.Err = schemaErr("value flow exports", err)
	}
	return vf, nil
}

func loadCurrencyGroup(s *cell.Slice, out ...**CurrencyCollection) error {
	for _, target := range out {
		c, err := loadCurrency(s)
		if err != nil {
			return err
		}
		*target = c
	}
	return nil
}
