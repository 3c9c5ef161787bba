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
	"testing"

	"github.com/everx-labs/ever-block-go/cell"
	"github.com/everx-labs/ever-block-go/common"
	"github.com/everx-labs/ever-block-go/hashmap"
	"github.com/stretchr/testify/require"
)

func buildConfigDict(t *testing.T, params map[uint32]*cell.Cell) *cell.Cell {
	t.Helper()
	dict := hashmap.NewBuilder(workchainKeyBits)
	for id, c := range params {
		leaf := cell.NewBuilder()
		require.NoError(t, leaf.StoreRef(c))
		value, err := leaf.Finalize()
		require.NoError(t, err)
		key := make([]byte, 4)
		binary.BigEndian.PutUint32(key, id)
		require.NoError(t, dict.Set(key, value))
	}
	root, err := dict.Finalize()
	require.NoError(t, err)
	return root
}

func buildShardDescrLeaf(t *testing.T, seqNo uint32, shard uint64) *cell.Cell {
	t.Helper()
	b := cell.NewBuilder()
	require.NoError(t, b.StoreBit(false)) // leaf
	require.NoError(t, b.StoreUint(tagShardDescr, 4))
	require.NoError(t, b.StoreUint(uint64(seqNo), 32))
	require.NoError(t, b.StoreUint(uint64(seqNo), 32)) // reg mc seqno
	require.NoError(t, b.StoreUint(5000, 64))          // start lt
	require.NoError(t, b.StoreUint(6000, 64))          // end lt
	require.NoError(t, b.StoreHash(hashOf(0x11)))
	require.NoError(t, b.StoreHash(hashOf(0x22)))
	require.NoError(t, b.StoreUint(0b0010, 4)) // want split
	require.NoError(t, b.StoreUint(0, 4))      // nx_cc_updated + reserved
	require.NoError(t, b.StoreUint(9, 32))     // next catchain seqno
	require.NoError(t, b.StoreUint(shard, 64))
	require.NoError(t, b.StoreUint(100, 32))        // min ref mc seqno
	require.NoError(t, b.StoreUint(1700000000, 32)) // gen utime
	c, err := b.Finalize()
	require.NoError(t, err)
	return c
}

func buildShardFork(t *testing.T, left, right *cell.Cell) *cell.Cell {
	t.Helper()
	b := cell.NewBuilder()
	require.NoError(t, b.StoreBit(true))
	require.NoError(t, b.StoreRef(left))
	require.NoError(t, b.StoreRef(right))
	c, err := b.Finalize()
	require.NoError(t, err)
	return c
}

func buildMcExtra(t *testing.T, shardTrees map[int32]*cell.Cell, cfgAddr common.Hash, cfgRoot *cell.Cell) *cell.Cell {
	t.Helper()
	b := cell.NewBuilder()
	require.NoError(t, b.StoreUint(tagMcBlockExtra, 16))
	require.NoError(t, b.StoreBit(cfgRoot != nil)) // key block

	shards := hashmap.NewBuilder(workchainKeyBits)
	for wc, tree := range shardTrees {
		leaf := cell.NewBuilder()
		require.NoError(t, leaf.StoreRef(tree))
		value, err := leaf.Finalize()
		require.NoError(t, err)
		key := make([]byte, 4)
		binary.BigEndian.PutUint32(key, uint32(wc))
		require.NoError(t, shards.Set(key, value))
	}
	require.NoError(t, shards.Store(b))

	if cfgRoot != nil {
		require.NoError(t, b.StoreHash(cfgAddr))
		require.NoError(t, b.StoreRef(cfgRoot))
	}
	c, err := b.Finalize()
	require.NoError(t, err)
	return c
}

func buildGlobalVersionCell(t *testing.T, version uint32, caps uint64) *cell.Cell {
	t.Helper()
	b := cell.NewBuilder()
	require.NoError(t, b.StoreUint(tagGlobalVersion, 8))
	require.NoError(t, b.StoreUint(uint64(version), 32))
	require.NoError(t, b.StoreUint(caps, 64))
	c, err := b.Finalize()
	require.NoError(t, err)
	return c
}

func buildValidatorSetCell(t *testing.T, validators map[uint16]Validator) *cell.Cell {
	t.Helper()
	list := hashmap.NewBuilder(validatorKeyBits)
	var totalWeight uint64
	for idx, v := range validators {
		leaf := cell.NewBuilder()
		require.NoError(t, leaf.StoreUint(tagValidatorAddr, 8))
		require.NoError(t, leaf.StoreUint(tagSigPubKey, 32))
		require.NoError(t, leaf.StoreHash(v.PublicKey))
		require.NoError(t, leaf.StoreUint(v.Weight, 64))
		require.NoError(t, leaf.StoreHash(v.ADNLAddr))
		value, err := leaf.Finalize()
		require.NoError(t, err)
		key := make([]byte, 2)
		binary.BigEndian.PutUint16(key, idx)
		require.NoError(t, list.Set(key, value))
		totalWeight += v.Weight
	}

	b := cell.NewBuilder()
	require.NoError(t, b.StoreUint(tagValidatorSetExt, 8))
	require.NoError(t, b.StoreUint(1700000000, 32)) // utime since
	require.NoError(t, b.StoreUint(1700086400, 32)) // utime until
	require.NoError(t, b.StoreUint(uint64(len(validators)), 16))
	require.NoError(t, b.StoreUint(1, 16)) // main
	require.NoError(t, b.StoreUint(totalWeight, 64))
	require.NoError(t, list.Store(b))
	c, err := b.Finalize()
	require.NoError(t, err)
	return c
}

func parseKeyBlock(t *testing.T, custom *cell.Cell) *Block {
	t.Helper()
	root := buildBlockCell(t,
		buildHeaderCell(t, 20),
		buildValueFlowCell(t),
		dummyCell(t, 0x57A7E),
		buildExtraCell(t, nil, custom))
	b, err := Parse(Input{Root: root}, ParseOptions{})
	require.NoError(t, err)
	return b
}

func TestParse_ShardRegistry(t *testing.T) {
	tree := buildShardFork(t,
		buildShardDescrLeaf(t, 100, 0x4000000000000000),
		buildShardDescrLeaf(t, 101, 0xc000000000000000))
	custom := buildMcExtra(t, map[int32]*cell.Cell{0: tree}, common.Hash{}, nil)

	b := parseKeyBlock(t, custom)
	require.False(t, b.KeyBlock)
	require.Nil(t, b.Config)
	require.Len(t, b.Shards, 2)

	left, right := b.Shards[0], b.Shards[1]
	require.NoError(t, left.Err)
	require.Equal(t, int32(0), left.Workchain)
	require.Equal(t, uint32(100), left.SeqNo)
	require.Equal(t, uint64(0x4000000000000000), left.Shard)
	require.Equal(t, uint64(5000), left.StartLT)
	require.Equal(t, hashOf(0x11), left.RootHash)
	require.True(t, left.WantSplit)
	require.False(t, left.BeforeSplit)
	require.Equal(t, uint64(0xc000000000000000), right.Shard)
	require.Equal(t, uint32(101), right.SeqNo)
}

func TestParse_ConfigPreservesUnrecognizedIDs(t *testing.T) {
	raw := dummyCell(t, 0xCAFE)
	cfgRoot := buildConfigDict(t, map[uint32]*cell.Cell{
		ParamGlobalVersion: buildGlobalVersionCell(t, 30, 0x1ee),
		999:                raw,
	})
	custom := buildMcExtra(t, nil, hashOf(0xCF), cfgRoot)

	b := parseKeyBlock(t, custom)
	require.True(t, b.KeyBlock)
	require.NotNil(t, b.Config)
	require.Equal(t, hashOf(0xCF), b.Config.Address)
	require.Equal(t, []uint32{ParamGlobalVersion, 999}, b.Config.IDs())

	// the unrecognized parameter survives verbatim
	require.Equal(t, raw.Hash(), b.Config.Param(999).Hash())
	params := b.Config.Params()
	require.Len(t, params, 2)
	require.Equal(t, uint32(999), params[1].ID)

	gv, err := b.Config.GlobalVersion()
	require.NoError(t, err)
	require.Equal(t, uint32(30), gv.Version)
	require.Equal(t, uint64(0x1ee), gv.Capabilities)

	_, err = b.Config.GasPrices(false)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestConfig_ValidatorSet(t *testing.T) {
	set := map[uint16]Validator{
		0: {PublicKey: hashOf(0x51), Weight: 17, ADNLAddr: hashOf(0x61)},
		1: {PublicKey: hashOf(0x52), Weight: 3, ADNLAddr: hashOf(0x62)},
	}
	cfgRoot := buildConfigDict(t, map[uint32]*cell.Cell{
		ParamCurrValidators: buildValidatorSetCell(t, set),
	})
	custom := buildMcExtra(t, nil, hashOf(0xCF), cfgRoot)
	b := parseKeyBlock(t, custom)

	vs, err := b.Config.ValidatorSet(ParamCurrValidators)
	require.NoError(t, err)
	require.Equal(t, uint16(2), vs.Total)
	require.Equal(t, uint64(20), vs.TotalWeight)
	require.Len(t, vs.Validators, 2)
	require.Equal(t, hashOf(0x51), vs.Validators[0].PublicKey)
	require.Equal(t, uint64(17), vs.Validators[0].Weight)
	require.Equal(t, hashOf(0x62), vs.Validators[1].ADNLAddr)

	_, err = b.Config.ValidatorSet(ParamGlobalVersion)
	require.ErrorIs(t, err, common.ErrSchema)
}

func TestConfig_GasAndForwardPrices(t *testing.T) {
	gas := cell.NewBuilder()
	require.NoError(t, gas.StoreUint(tagGasPrices, 8))
	for _, v := range []uint64{10, 1_000_000, 10_000, 10_000_000, 100, 200} {
		require.NoError(t, gas.StoreUint(v, 64))
	}
	gasCell, err := gas.Finalize()
	require.NoError(t, err)

	fwd := cell.NewBuilder()
	require.NoError(t, fwd.StoreUint(tagForwardPrices, 8))
	for _, v := range []uint64{400000, 26214400, 2621440000} {
		require.NoError(t, fwd.StoreUint(v, 64))
	}
	require.NoError(t, fwd.StoreUint(98304, 32))
	require.NoError(t, fwd.StoreUint(21845, 16))
	require.NoError(t, fwd.StoreUint(21845, 16))
	fwdCell, err := fwd.Finalize()
	require.NoError(t, err)

	cfgRoot := buildConfigDict(t, map[uint32]*cell.Cell{
		ParamGasPrices:     gasCell,
		ParamForwardPrices: fwdCell,
	})
	custom := buildMcExtra(t, nil, hashOf(0xCF), cfgRoot)
	b := parseKeyBlock(t, custom)

	gp, err := b.Config.GasPrices(false)
	require.NoError(t, err)
	require.Equal(t, uint64(10), gp.GasPrice)
	require.Equal(t, uint64(200), gp.DeleteDueLimit)
	_, err = b.Config.GasPrices(true)
	require.ErrorIs(t, err, common.ErrNotFound)

	fp, err := b.Config.ForwardPrices(false)
	require.NoError(t, err)
	require.Equal(t, uint64(400000), fp.LumpPrice)
	require.Equal(t, uint32(98304), fp.IHRPriceFactor)
	require.Equal(t, uint16(21845), fp.NextFrac)
}
