// Copyright (c) 2024 EverX Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package block normalizes decoded block and shard-state cell graphs into
// canonical records: header, value flow, accounts, transactions, messages,
// shard descriptions and configuration parameters. Parsing is a pure
// function of the cell graph and behaves identically regardless of which
// producer exported the bytes; producer-specific framing is stripped by the
// adapters in this package. Subtrees redacted by a proof yield hash-only
// stub records unless full resolution is requested, and a malformed record
// carries its own schema error without aborting the rest of the parse.
package block

import (
	"errors"
	"fmt"

	"github.com/everx-labs/ever-block-go/cell"
	"github.com/everx-labs/ever-block-go/common"
	"github.com/everx-labs/ever-block-go/merkle"
)

// Input is the producer-agnostic parser input: the block root and, when the
// caller wants the post-block state materialized, the previous shard state
// to apply the block's state update to.
type Input struct {
	Root      *cell.Cell
	PrevState *cell.Cell
}

// ParseOptions controls the partial-data policy of a parse.
type ParseOptions struct {
	// RequireComplete makes the parse fail with an incomplete-data error
	// whenever a needed subtree is available as hash only. By default such
	// subtrees yield pruned stub records.
	RequireComplete bool
}

// requireComplete fails when the policy demands fully disclosed input.
func (o ParseOptions) requireComplete(c *cell.Cell) error {
	if o.RequireComplete {
		return fmt.Errorf("%w: subtree %v available as hash only", common.ErrIncompleteData, c.HashAt(0))
	}
	return nil
}

// prunedHook returns the dictionary pruning policy: skip redacted subtrees,
// or abort when full resolution was requested.
func (o ParseOptions) prunedHook() func(*cell.Cell) error {
	return func(c *cell.Cell) error {
		return o.requireComplete(c)
	}
}

// Block is the parse result. Record slices hold one entry per decoded
// entity; entities redacted by a proof appear as pruned stubs and entities
// with a malformed shape carry a record-local error.
type Block struct {
	Hash     common.Hash
	GlobalID int32

	Header    *BlockHeader
	ValueFlow *ValueFlow

	// StateUpdate is the raw merkle-update cell describing the state
	// transition; State is the post-block state, materialized only when
	// the input carried the previous state.
	StateUpdate *cell.Cell
	State       *ShardState

	RandSeed  common.Hash
	CreatedBy common.Hash

	AccountBlocks []*AccountBlock
	Transactions  []*Transaction
	Messages      []*Message
	Processing    []*ProcessingInfo

	KeyBlock bool
	Shards   []*ShardDescr
	Config   *Config
}

const (
	tagBlock      = 0x11ef55aa
	tagBlockExtra = 0x4a33f6fd
)

// Parse decodes a block cell graph into its canonical records. A merkle
// proof root is accepted and unwrapped to the virtual block it discloses.
func Parse(in Input, opts ParseOptions) (*Block, error) {
	root := in.Root
	if root == nil {
		return nil, fmt.Errorf("%w: no block root", common.ErrFormat)
	}
	if root.Type() == cell.TypeMerkleProof {
		root = root.Ref(0)
	}
	if root.Type() != cell.TypeOrdinary {
		return nil, fmt.Errorf("%w: block root is a %v cell", common.ErrFormat, root.Type())
	}

	s := root.Begin()
	tag, err := s.LoadUint(32)
	if err != nil {
		return nil, fmt.Errorf("%w: block envelope: %v", common.ErrSchema, err)
	}
	if tag != tagBlock {
		return nil, fmt.Errorf("%w: block envelope tag %#x", common.ErrSchema, tag)
	}
	gid, err := s.LoadInt(32)
	if err != nil {
		return nil, fmt.Errorf("%w: block envelope: %v", common.ErrSchema, err)
	}
	if s.RefsLeft() < 4 {
		return nil, fmt.Errorf("%w: block envelope with %d references", common.ErrSchema, s.RefsLeft())
	}
	info, _ := s.LoadRef()
	valueFlow, _ := s.LoadRef()
	stateUpdate, _ := s.LoadRef()
	extra, _ := s.LoadRef()

	b := &Block{Hash: root.HashAt(0), GlobalID: int32(gid), StateUpdate: stateUpdate}
	if b.Header, err = parseHeader(info, opts); err != nil {
		return nil, err
	}
	if b.ValueFlow, err = parseValueFlow(valueFlow, opts); err != nil {
		return nil, err
	}
	if err := b.applyStateUpdate(in.PrevState, opts); err != nil {
		return nil, err
	}
	if err := b.parseExtra(extra, opts); err != nil {
		return nil, err
	}
	b.collectMessages()
	return b, nil
}

// applyStateUpdate materializes the post-block state when the previous state
// is available and the update cell is fully disclosed.
func (b *Block) applyStateUpdate(prev *cell.Cell, opts ParseOptions) error {
	if b.StateUpdate.Type() == cell.TypePrunedBranch {
		return opts.requireComplete(b.StateUpdate)
	}
	if prev == nil {
		return nil
	}
	next, err := merkle.ApplyUpdate(b.StateUpdate, prev)
	if err != nil {
		return err
	}
	b.State, err = ParseState(next, opts)
	return err
}

// parseExtra decodes the block extra section: message descriptors (kept
// raw), the account-blocks dictionary, the random seed and creator fields
// and the optional masterchain extension.
func (b *Block) parseExtra(c *cell.Cell, opts ParseOptions) error {
	if c.Type() == cell.TypePrunedBranch {
		return opts.requireComplete(c)
	}

	s := c.Begin()
	tag, err := s.LoadUint(32)
	if err != nil {
		return fmt.Errorf("%w: block extra: %v", common.ErrSchema, err)
	}
	if tag != tagBlockExtra {
		return fmt.Errorf("%w: block extra tag %#x", common.ErrSchema, tag)
	}
	if s.RefsLeft() < 3 {
		return fmt.Errorf("%w: block extra with %d references", common.ErrSchema, s.RefsLeft())
	}
	// inbound and outbound message descriptors are not interpreted here
	if _, err := s.LoadRef(); err != nil {
		return err
	}
	if _, err := s.LoadRef(); err != nil {
		return err
	}
	accountBlocks, _ := s.LoadRef()
	if err := b.parseAccountBlocksRef(accountBlocks, opts); err != nil {
		return err
	}

	if b.RandSeed, err = s.LoadHash(); err != nil {
		return fmt.Errorf("%w: block extra: %v", common.ErrSchema, err)
	}
	if b.CreatedBy, err = s.LoadHash(); err != nil {
		return fmt.Errorf("%w: block extra: %v", common.ErrSchema, err)
	}

	custom, err := s.LoadMaybeRef()
	if err != nil {
		return fmt.Errorf("%w: block extra: %v", common.ErrSchema, err)
	}
	if custom == nil {
		return nil
	}
	extra, err := parseMcExtra(custom, opts)
	if err != nil {
		return err
	}
	b.KeyBlock = extra.keyBlock
	b.Shards = extra.shards
	b.Config = extra.config
	return nil
}

// parseAccountBlocksRef unwraps the optional account-blocks dictionary held
// in its own reference cell.
func (b *Block) parseAccountBlocksRef(c *cell.Cell, opts ParseOptions) error {
	if c.Type() == cell.TypePrunedBranch {
		return opts.requireComplete(c)
	}
	s := c.Begin()
	root, err := s.LoadMaybeRef()
	if err != nil {
		return fmt.Errorf("%w: account blocks: %v", common.ErrSchema, err)
	}
	if root == nil {
		return nil
	}
	if b.AccountBlocks, err = parseAccountBlocks(root, opts); err != nil {
		if errors.Is(err, common.ErrIncompleteData) {
			return err
		}
		return fmt.Errorf("%w: account blocks: %v", common.ErrSchema, err)
	}
	return nil
}

// collectMessages flattens the per-account transactions and derives the
// processing records tying each message to the transaction that consumed or
// produced it.
func (b *Block) collectMessages() {
	for _, ab := range b.AccountBlocks {
		for _, tx := range ab.Transactions {
			b.Transactions = append(b.Transactions, tx)
			if tx.InMsg != nil {
				b.Messages = append(b.Messages, tx.InMsg)
				b.Processing = append(b.Processing, &ProcessingInfo{
					MessageHash:     tx.InMsg.Hash,
					TransactionHash: tx.Hash,
					LT:              tx.LT,
					Inbound:         true,
				})
			}
			for _, msg := range tx.OutMsgs {
				b.Messages = append(b.Messages, msg)
				b.Processing = append(b.Processing, &ProcessingInfo{
					MessageHash:     msg.Hash,
					TransactionHash: tx.Hash,
					LT:              tx.LT,
				})
			}
		}
	}
}
