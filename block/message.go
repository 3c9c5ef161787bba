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
	"encoding/hex"
	"fmt"

	"github.com/everx-labs/ever-block-go/cell"
	"github.com/everx-labs/ever-block-go/common"
	"github.com/holiman/uint256"
)

// AddressType distinguishes the address encodings a message may carry.
type AddressType byte

const (
	AddrNone AddressType = iota
	AddrExtern
	AddrStd
)

// Address is a message source or destination. Standard addresses carry a
// workchain and a 256-bit account id; external addresses an opaque bit
// string; the none address is empty.
type Address struct {
	Type      AddressType
	Workchain int32
	Addr      []byte
}

func (a Address) String() string {
	switch a.Type {
	case AddrStd:
		return fmt.Sprintf("%d:%s", a.Workchain, hex.EncodeToString(a.Addr))
	case AddrExtern:
		return "extern:" + hex.EncodeToString(a.Addr)
	}
	return ""
}

// AccountID returns the 256-bit account id of a standard address.
func (a Address) AccountID() common.Hash {
	var h common.Hash
	copy(h[:], a.Addr)
	return h
}

// loadAddress reads one of the address encodings: a 2-bit tag selects none,
// external (9-bit length plus that many bits) or standard (workchain byte
// plus a 256-bit account id). Anycast prefixes and variable-length internal
// addresses are not supported.
func loadAddress(s *cell.Slice) (Address, error) {
	tag, err := s.LoadUint(2)
	if err != nil {
		return Address{}, err
	}
	switch tag {
	case 0b00:
		return Address{Type: AddrNone}, nil
	case 0b01:
		n, err := s.LoadUint(9)
		if err != nil {
			return Address{}, err
		}
		addr, err := s.LoadBits(int(n))
		if err != nil {
			return Address{}, err
		}
		return Address{Type: AddrExtern, Addr: addr}, nil
	case 0b10:
		anycast, err := s.LoadBit()
		if err != nil {
			return Address{}, err
		}
		if anycast {
			return Address{}, fmt.Errorf("%w: anycast address prefix", common.ErrFormat)
		}
		wc, err := s.LoadInt(8)
		if err != nil {
			return Address{}, err
		}
		id, err := s.LoadHash()
		if err != nil {
			return Address{}, err
		}
		return Address{Type: AddrStd, Workchain: int32(wc), Addr: id[:]}, nil
	}
	return Address{}, fmt.Errorf("%w: unsupported address tag %#b", common.ErrFormat, tag)
}

// Store appends the address to a builder in its wire layout.
func (a Address) Store(b *cell.Builder) error {
	switch a.Type {
	case AddrNone:
		return b.StoreUint(0b00, 2)
	case AddrExtern:
		if err := b.StoreUint(0b01, 2); err != nil {
			return err
		}
		if err := b.StoreUint(uint64(len(a.Addr)*8), 9); err != nil {
			return err
		}
		return b.StoreBytes(a.Addr)
	case AddrStd:
		if err := b.StoreUint(0b10, 2); err != nil {
			return err
		}
		if err := b.StoreBit(false); err != nil {
			return err
		}
		if err := b.StoreInt(int64(a.Workchain), 8); err != nil {
			return err
		}
		return b.StoreBytes(a.Addr)
	}
	return fmt.Errorf("%w: unsupported address type %d", common.ErrFormat, a.Type)
}

// MessageType distinguishes the three message kinds.
type MessageType byte

const (
	MsgInternal MessageType = iota
	MsgExternalIn
	MsgExternalOut
)

func (t MessageType) String() string {
	switch t {
	case MsgInternal:
		return "internal"
	case MsgExternalIn:
		return "external-in"
	case MsgExternalOut:
		return "external-out"
	}
	return fmt.Sprintf("message(%d)", byte(t))
}

// Message is a parsed message envelope. Value and fee fields are populated
// for the message kinds that carry them. Init holds the optional state-init
// reference; Body is positioned at the message body, inline or referenced.
type Message struct {
	Record

	Type MessageType
	Src  Address
	Dst  Address

	Value     *CurrencyCollection
	IHRFee    *uint256.Int
	FwdFee    *uint256.Int
	ImportFee *uint256.Int

	IHRDisabled bool
	Bounce      bool
	Bounced     bool
	CreatedLT   uint64
	CreatedAt   uint32

	Init *cell.Cell
	Body *cell.Slice
}

func parseMessage(c *cell.Cell, opts ParseOptions) (*Message, error) {
	m := &Message{Record: Record{Hash: c.HashAt(0)}}
	if c.Type() == cell.TypePrunedBranch {
		if err := opts.requireComplete(c); err != nil {
			return nil, err
		}
		m.Pruned = true
		return m, nil
	}
	if err := m.loadFields(c.Begin()); err != nil {
		m.Err = schemaErr("message", err)
	}
	return m, nil
}

func (m *Message) loadFields(s *cell.Slice) error {
	// int_msg_info$0, ext_in_msg_info$10, ext_out_msg_info$11
	external, err := s.LoadBit()
	if err != nil {
		return err
	}
	if !external {
		if err := m.loadInternalInfo(s); err != nil {
			return err
		}
	} else {
		outbound, err := s.LoadBit()
		if err != nil {
			return err
		}
		if !outbound {
			if err := m.loadExternalInInfo(s); err != nil {
				return err
			}
		} else if err := m.loadExternalOutInfo(s); err != nil {
			return err
		}
	}

	if m.Init, err = s.LoadMaybeRef(); err != nil {
		return err
	}
	inRef, err := s.LoadBit()
	if err != nil {
		return err
	}
	if inRef {
		body, err := s.LoadRef()
		if err != nil {
			return err
		}
		m.Body = body.Begin()
	} else {
		m.Body = s
	}
	return nil
}

func (m *Message) loadInternalInfo(s *cell.Slice) error {
	m.Type = MsgInternal
	var err error
	for _, flag := range []*bool{&m.IHRDisabled, &m.Bounce, &m.Bounced} {
		if *flag, err = s.LoadBit(); err != nil {
			return err
		}
	}
	if m.Src, err = loadAddress(s); err != nil {
		return err
	}
	if m.Dst, err = loadAddress(s); err != nil {
		return err
	}
	if m.Value, err = loadCurrency(s); err != nil {
		return err
	}
	if m.IHRFee, err = s.LoadCoins(); err != nil {
		return err
	}
	if m.FwdFee, err = s.LoadCoins(); err != nil {
		return err
	}
	if m.CreatedLT, err = s.LoadUint(64); err != nil {
		return err
	}
	at, err := s.LoadUint(32)
	if err != nil {
		return err
	}
	m.CreatedAt = uint32(at)
	return nil
}

func (m *Message) loadExternalInInfo(s *cell.Slice) error {
	m.Type = MsgExternalIn
	var err error
	if m.Src, err = loadAddress(s); err != nil {
		return err
	}
	if m.Dst, err = loadAddress(s); err != nil {
		return err
	}
	m.ImportFee, err = s.LoadCoins()
	return err
}

func (m *Message) loadExternalOutInfo(s *cell.Slice) error {
	m.Type = MsgExternalOut
	var err error
	if m.Src, err = loadAddress(s); err != nil {
		return err
	}
	if m.Dst, err = loadAddress(s); err != nil {
		return err
	}
	if m.CreatedLT, err = s.LoadUint(64); err != nil {
		return err
	}
	at, err := s.LoadUint(32)
	if err != nil {
		return err
	}
	m.CreatedAt = uint32(at)
	return nil
}
