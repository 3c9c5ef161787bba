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
	"golang.org/x/exp/slices"
)

// Well-known configuration parameter ids with a typed decoding. All other
// ids are preserved as raw cells.
const (
	ParamGlobalVersion      = 8
	ParamGasPricesMc        = 20
	ParamGasPrices          = 21
	ParamForwardPricesMc    = 24
	ParamForwardPrices      = 25
	ParamPrevValidators     = 32
	ParamPrevTempValidators = 33
	ParamCurrValidators     = 34
	ParamNextTempValidators = 35
	ParamNextValidators     = 36
)

// Config is the protocol configuration of a key block: the configuration
// account address and the parameter dictionary keyed by numeric id. Every
// parameter is preserved as its raw cell; recognized ids additionally decode
// through the typed accessors.
type Config struct {
	Record

	Address common.Hash
	params  map[uint32]*cell.Cell
}

// ConfigParam is one (id, raw cell) configuration entry.
type ConfigParam struct {
	ID   uint32
	Cell *cell.Cell
}

// parseConfig reads the configuration account address and the parameter
// dictionary reference that follow it.
func parseConfig(s *cell.Slice, opts ParseOptions) (*Config, error) {
	addr, err := s.LoadHash()
	if err != nil {
		return nil, err
	}
	root, err := s.LoadRef()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Record:  Record{Hash: root.HashAt(0)},
		Address: addr,
		params:  map[uint32]*cell.Cell{},
	}
	if root.Type() == cell.TypePrunedBranch {
		if err := opts.requireComplete(root); err != nil {
			return nil, err
		}
		cfg.Pruned = true
		return cfg, nil
	}

	dict := hashmap.FromCell(root, workchainKeyBits)
	dict.OnPruned = opts.prunedHook()
	err = dict.Iterate(func(key []byte, value *cell.Slice) (bool, error) {
		param, err := value.LoadRef()
		if err != nil {
			return false, err
		}
		cfg.params[binary.BigEndian.Uint32(key)] = param
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// IDs returns all stored parameter ids in ascending order.
func (c *Config) IDs() []uint32 {
	ids := make([]uint32, 0, len(c.params))
	for id := range c.params {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Param returns the raw cell of the parameter, nil when absent.
func (c *Config) Param(id uint32) *cell.Cell {
	return c.params[id]
}

// Params returns all entries in ascending id order.
func (c *Config) Params() []ConfigParam {
	params := make([]ConfigParam, 0, len(c.params))
	for _, id := range c.IDs() {
		params = append(params, ConfigParam{ID: id, Cell: c.params[id]})
	}
	return params
}

func (c *Config) param(id uint32) (*cell.Slice, error) {
	p := c.params[id]
	if p == nil {
		return nil, fmt.Errorf("%w: configuration parameter %d", common.ErrNotFound, id)
	}
	return p.Begin(), nil
}

// GlobalVersion is parameter 8: the protocol version and capability flags.
type GlobalVersion struct {
	Version      uint32
	Capabilities uint64
}

const tagGlobalVersion = 0xc4

func (c *Config) GlobalVersion() (*GlobalVersion, error) {
	s, err := c.param(ParamGlobalVersion)
	if err != nil {
		return nil, err
	}
	tag, err := s.LoadUint(8)
	if err != nil {
		return nil, err
	}
	if tag != tagGlobalVersion {
		return nil, fmt.Errorf("%w: global version tag %#x", common.ErrSchema, tag)
	}
	v, err := s.LoadUint(32)
	if err != nil {
		return nil, err
	}
	caps, err := s.LoadUint(64)
	if err != nil {
		return nil, err
	}
	return &GlobalVersion{Version: uint32(v), Capabilities: caps}, nil
}

// GasPrices is parameter 20 (masterchain) or 21 (base workchains): the gas
// cost schedule.
type GasPrices struct {
	GasPrice       uint64
	GasLimit       uint64
	GasCredit      uint64
	BlockGasLimit  uint64
	FreezeDueLimit uint64
	DeleteDueLimit uint64
}

const tagGasPrices = 0xdd

func (c *Config) GasPrices(masterchain bool) (*GasPrices, error) {
	id := uint32(ParamGasPrices)
	if masterchain {
		id = ParamGasPricesMc
	}
	s, err := c.param(id)
	if err != nil {
		return nil, err
	}
	tag, err := s.LoadUint(8)
	if err != nil {
		return nil, err
	}
	if tag != tagGasPrices {
		return nil, fmt.Errorf("%w: gas prices tag %#x", common.ErrSchema, tag)
	}
	p := &GasPrices{}
	for _, field := range []*uint64{
		&p.GasPrice, &p.GasLimit, &p.GasCredit,
		&p.BlockGasLimit, &p.FreezeDueLimit, &p.DeleteDueLimit,
	} {
		if *field, err = s.LoadUint(64); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ForwardPrices is parameter 24 (masterchain) or 25 (base workchains): the
// message forwarding cost schedule.
type ForwardPrices struct {
	LumpPrice      uint64
	BitPrice       uint64
	CellPrice      uint64
	IHRPriceFactor uint32
	FirstFrac      uint16
	NextFrac       uint16
}

const tagForwardPrices = 0xea

func (c *Config) ForwardPrices(masterchain bool) (*ForwardPrices, error) {
	id := uint32(ParamForwardPrices)
	if masterchain {
		id = ParamForwardPricesMc
	}
	s, err := c.param(id)
	if err != nil {
		return nil, err
	}
	tag, err := s.LoadUint(8)
	if err != nil {
		return nil, err
	}
	if tag != tagForwardPrices {
		return nil, fmt.Errorf("%w: forward prices tag %#x", common.ErrSchema, tag)
	}
	p := &ForwardPrices{}
	for _, field := range []*uint64{&p.LumpPrice, &p.BitPrice, &p.CellPrice} {
		if *field, err = s.LoadUint(64); err != nil {
			return nil, err
		}
	}
	factor, err := s.LoadUint(32)
	if err != nil {
		return nil, err
	}
	p.IHRPriceFactor = uint32(factor)
	first, err := s.LoadUint(16)
	if err != nil {
		return nil, err
	}
	next, err := s.LoadUint(16)
	if err != nil {
		return nil, err
	}
	p.FirstFrac, p.NextFrac = uint16(first), uint16(next)
	return p, nil
}

// Validator is one entry of a validator set: its signing key, relative
// weight and, when present, its network address.
type Validator struct {
	PublicKey common.Hash
	Weight    uint64
	ADNLAddr  common.Hash
}

// ValidatorSet is one of parameters 32-36: the validators active over a time
// window, with their total and masterchain-subset counts.
type ValidatorSet struct {
	UtimeSince  uint32
	UtimeUntil  uint32
	Total       uint16
	Main        uint16
	TotalWeight uint64
	Validators  []Validator
}

const (
	tagValidatorSet    = 0x11
	tagValidatorSetExt = 0x12
	tagValidator       = 0x53
	tagValidatorAddr   = 0x73
	tagSigPubKey       = 0x8e81278a

	validatorKeyBits = 16
)

// ValidatorSet decodes one of the validator-set parameters (previous,
// current or next set, ids 32-36).
func (c *Config) ValidatorSet(id uint32) (*ValidatorSet, error) {
	if id < ParamPrevValidators || id > ParamNextValidators {
		return nil, fmt.Errorf("%w: parameter %d is not a validator set", common.ErrSchema, id)
	}
	s, err := c.param(id)
	if err != nil {
		return nil, err
	}

	tag, err := s.LoadUint(8)
	if err != nil {
		return nil, err
	}
	if tag != tagValidatorSet && tag != tagValidatorSetExt {
		return nil, fmt.Errorf("%w: validator set tag %#x", common.ErrSchema, tag)
	}

	set := &ValidatorSet{}
	since, err := s.LoadUint(32)
	if err != nil {
		return nil, err
	}
	until, err := s.LoadUint(32)
	if err != nil {
		return nil, err
	}
	set.UtimeSince, set.UtimeUntil = uint32(since), uint32(until)
	total, err := s.LoadUint(16)
	if err != nil {
		return nil, err
	}
	main, err := s.LoadUint(16)
	if err != nil {
		return nil, err
	}
	set.Total, set.Main = uint16(total), uint16(main)
	if tag == tagValidatorSetExt {
		if set.TotalWeight, err = s.LoadUint(64); err != nil {
			return nil, err
		}
	}

	dict, err := hashmap.Load(s, validatorKeyBits)
	if err != nil {
		return nil, err
	}
	err = dict.Iterate(func(key []byte, value *cell.Slice) (bool, error) {
		v, err := loadValidator(value)
		if err != nil {
			return false, err
		}
		set.Validators = append(set.Validators, v)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

func loadValidator(s *cell.Slice) (Validator, error) {
	tag, err := s.LoadUint(8)
	if err != nil {
		return Validator{}, err
	}
	if tag != tagValidator && tag != tagValidatorAddr {
		return Validator{}, fmt.Errorf("%w: validator tag %#x", common.ErrSchema, tag)
	}
	keyTag, err := s.LoadUint(32)
	if err != nil {
		return Validator{}, err
	}
	if keyTag != tagSigPubKey {
		return Validator{}, fmt.Errorf("%w: public key tag %#x", common.ErrSchema, keyTag)
	}

	v := Validator{}
	if v.PublicKey, err = s.LoadHash(); err != nil {
		return Validator{}, err
	}
	if v.Weight, err = s.LoadUint(64); err != nil {
		return Validator{}, err
	}
	if tag == tagValidatorAddr {
		if v.ADNLAddr, err = s.LoadHash(); err != nil {
			return Validator{}, err
		}
	}
	return v, nil
}
