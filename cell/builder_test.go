// Copyright (c) 2024 EverX Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package cell

import (
	"errors"
	"testing"

	"github.com/everx-labs/ever-block-go/common"
)

func TestBuilder_UintRoundTrip(t *testing.T) {
	tests := []struct {
		value uint64
		bits  int
	}{
		{0, 1},
		{1, 1},
		{5, 3},
		{0xff, 8},
		{0x1234, 16},
		{0xdeadbeef, 32},
		{^uint64(0), 64},
		{42, 17},
	}
	for _, test := range tests {
		b := NewBuilder()
		if err := b.StoreUint(test.value, test.bits); err != nil {
			t.Fatalf("failed to store %d bits: %v", test.bits, err)
		}
		c, err := b.Finalize()
		if err != nil {
			t.Fatalf("failed to finalize cell: %v", err)
		}
		got, err := c.Begin().LoadUint(test.bits)
		if err != nil {
			t.Fatalf("failed to load %d bits: %v", test.bits, err)
		}
		if got != test.value {
			t.Errorf("round trip of %d over %d bits produced %d", test.value, test.bits, got)
		}
	}
}

func TestBuilder_IntRoundTrip(t *testing.T) {
	tests := []struct {
		value int64
		bits  int
	}{
		{0, 8},
		{-1, 8},
		{-1, 32},
		{127, 8},
		{-128, 8},
		{-42, 17},
		{1 << 40, 50},
	}
	for _, test := range tests {
		b := NewBuilder()
		if err := b.StoreInt(test.value, test.bits); err != nil {
			t.Fatalf("failed to store int: %v", err)
		}
		c, err := b.Finalize()
		if err != nil {
			t.Fatalf("failed to finalize cell: %v", err)
		}
		got, err := c.Begin().LoadInt(test.bits)
		if err != nil {
			t.Fatalf("failed to load int: %v", err)
		}
		if got != test.value {
			t.Errorf("round trip of %d over %d bits produced %d", test.value, test.bits, got)
		}
	}
}

func TestBuilder_BitsRoundTripUnaligned(t *testing.T) {
	b := NewBuilder()
	if err := b.StoreUint(5, 3); err != nil {
		t.Fatalf("failed to store prefix: %v", err)
	}
	payload := []byte{0xca, 0xfe, 0xba, 0xbe}
	if err := b.StoreBits(payload, 30); err != nil {
		t.Fatalf("failed to store payload: %v", err)
	}
	c, err := b.Finalize()
	if err != nil {
		t.Fatalf("failed to finalize cell: %v", err)
	}
	if got, want := c.Bits(), 33; got != want {
		t.Fatalf("invalid bit count, got %d, wanted %d", got, want)
	}
	s := c.Begin()
	if _, err := s.LoadUint(3); err != nil {
		t.Fatalf("failed to skip prefix: %v", err)
	}
	got, err := s.LoadBits(30)
	if err != nil {
		t.Fatalf("failed to load payload: %v", err)
	}
	want := []byte{0xca, 0xfe, 0xba, 0xbc} // last two bits cut off
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("invalid payload byte %d, got %x, wanted %x", i, got[i], want[i])
		}
	}
}

func TestBuilder_CapacityLimits(t *testing.T) {
	b := NewBuilder()
	if err := b.StoreBits(make([]byte, 128), MaxDataBits); err != nil {
		t.Fatalf("failed to fill cell to capacity: %v", err)
	}
	if err := b.StoreBit(false); !errors.Is(err, common.ErrFormat) {
		t.Errorf("expected format error on capacity overflow, got %v", err)
	}

	b = NewBuilder()
	child, err := NewBuilder().Finalize()
	if err != nil {
		t.Fatalf("failed to create child: %v", err)
	}
	for i := 0; i < MaxRefs; i++ {
		if err := b.StoreRef(child); err != nil {
			t.Fatalf("failed to store reference %d: %v", i, err)
		}
	}
	if err := b.StoreRef(child); !errors.Is(err, common.ErrFormat) {
		t.Errorf("expected format error on reference overflow, got %v", err)
	}
}

func TestBuilder_StoreMaybeRef(t *testing.T) {
	child, err := NewBuilder().Finalize()
	if err != nil {
		t.Fatalf("failed to create child: %v", err)
	}

	b := NewBuilder()
	if err := b.StoreMaybeRef(nil); err != nil {
		t.Fatalf("failed to store empty reference: %v", err)
	}
	if err := b.StoreMaybeRef(child); err != nil {
		t.Fatalf("failed to store present reference: %v", err)
	}
	c, err := b.Finalize()
	if err != nil {
		t.Fatalf("failed to finalize cell: %v", err)
	}

	s := c.Begin()
	if r, err := s.LoadMaybeRef(); err != nil || r != nil {
		t.Errorf("expected absent reference, got %v, %v", r, err)
	}
	r, err := s.LoadMaybeRef()
	if err != nil {
		t.Fatalf("failed to load present reference: %v", err)
	}
	if r == nil || r.Hash() != child.Hash() {
		t.Errorf("present reference does not match stored child")
	}
}

func TestBuilder_VarUintRoundTrip(t *testing.T) {
	tests := []uint64{0, 1, 255, 256, 1_000_000_000, ^uint64(0)}
	for _, value := range tests {
		b := NewBuilder()
		// store as VarUInteger 16: 4-bit length followed by value bytes
		data := make([]byte, 0, 8)
		v := value
		for v != 0 {
			data = append([]byte{byte(v)}, data...)
			v >>= 8
		}
		if err := b.StoreUint(uint64(len(data)), 4); err != nil {
			t.Fatalf("failed to store length: %v", err)
		}
		if err := b.StoreBytes(data); err != nil {
			t.Fatalf("failed to store value: %v", err)
		}
		c, err := b.Finalize()
		if err != nil {
			t.Fatalf("failed to finalize cell: %v", err)
		}
		got, err := c.Begin().LoadCoins()
		if err != nil {
			t.Fatalf("failed to load coins: %v", err)
		}
		if got.Uint64() != value {
			t.Errorf("round trip of %d produced %v", value, got)
		}
	}
}
