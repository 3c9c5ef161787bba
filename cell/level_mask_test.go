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

import "testing"

func TestLevelMask_Level(t *testing.T) {
	tests := []struct {
		mask  LevelMask
		level int
	}{
		{0b000, 0},
		{0b001, 1},
		{0b010, 2},
		{0b011, 2},
		{0b100, 3},
		{0b101, 3},
		{0b111, 3},
	}
	for _, test := range tests {
		if got, want := test.mask.Level(), test.level; got != want {
			t.Errorf("mask %03b: invalid level, got %d, wanted %d", test.mask, got, want)
		}
	}
}

func TestLevelMask_Apply(t *testing.T) {
	tests := []struct {
		mask   LevelMask
		level  int
		result LevelMask
	}{
		{0b111, 0, 0b000},
		{0b111, 1, 0b001},
		{0b111, 2, 0b011},
		{0b111, 3, 0b111},
		{0b101, 2, 0b001},
		{0b010, 1, 0b000},
	}
	for _, test := range tests {
		if got, want := test.mask.Apply(test.level), test.result; got != want {
			t.Errorf("mask %03b apply %d: got %03b, wanted %03b", test.mask, test.level, got, want)
		}
	}
}

func TestLevelMask_HashIndexAndCount(t *testing.T) {
	tests := []struct {
		mask  LevelMask
		index int
	}{
		{0b000, 0},
		{0b001, 1},
		{0b011, 2},
		{0b111, 3},
		{0b101, 2},
	}
	for _, test := range tests {
		if got, want := test.mask.HashIndex(), test.index; got != want {
			t.Errorf("mask %03b: invalid hash index, got %d, wanted %d", test.mask, got, want)
		}
		if got, want := test.mask.HashCount(), test.index+1; got != want {
			t.Errorf("mask %03b: invalid hash count, got %d, wanted %d", test.mask, got, want)
		}
	}
}

func TestLevelMask_IsSignificant(t *testing.T) {
	tests := []struct {
		mask        LevelMask
		level       int
		significant bool
	}{
		{0b000, 0, true},
		{0b000, 1, false},
		{0b001, 1, true},
		{0b001, 2, false},
		{0b100, 3, true},
		{0b100, 2, false},
	}
	for _, test := range tests {
		if got, want := test.mask.IsSignificant(test.level), test.significant; got != want {
			t.Errorf("mask %03b level %d: got significance %t, wanted %t", test.mask, test.level, got, want)
		}
	}
}
