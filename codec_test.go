// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package packer

import (
	"math/big"
	"math/rand"
	"testing"
)

func ints(vs ...int64) []*big.Int {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		out[i] = big.NewInt(v)
	}
	return out
}

func equalInts(a, b []*big.Int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Cmp(b[i]) != 0 {
			return false
		}
	}
	return true
}

func TestEncodeSlot(t *testing.T) {
	got := EncodeSlot(ints(5, 6, 7, 8), []int{10, 10, 10, 10})
	want := big.NewInt(5<<30 | 6<<20 | 7<<10 | 8)
	if got.Cmp(want) != 0 {
		t.Errorf("EncodeSlot = %s, want %s", got, want)
	}

	if got := EncodeSlot(nil, nil); got.Sign() != 0 {
		t.Errorf("EncodeSlot(nil) = %s, want 0", got)
	}
}

func TestDecodeSlot(t *testing.T) {
	slot := big.NewInt(5<<30 | 6<<20 | 7<<10 | 8)
	got := DecodeSlot(slot, []int{10, 10, 10, 10})
	if !equalInts(got, ints(5, 6, 7, 8)) {
		t.Errorf("DecodeSlot = %v", got)
	}
	if DecodeSlot(slot, nil) != nil {
		t.Error("DecodeSlot with no widths should return nil")
	}
}

func TestSlotRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 500; iter++ {
		n := 1 + rng.Intn(8)
		widths := make([]int, n)
		values := make([]*big.Int, n)
		for i := range widths {
			widths[i] = 1 + rng.Intn(100)
			limit := new(big.Int).Lsh(big.NewInt(1), uint(widths[i]))
			values[i] = new(big.Int).Rand(rng, limit)
		}

		got := DecodeSlot(EncodeSlot(values, widths), widths)
		if !equalInts(got, values) {
			t.Fatalf("widths %v: round trip of %v gave %v", widths, values, got)
		}
	}
}

func TestSlotRoundTripExtremes(t *testing.T) {
	widths := []int{1, 64, 3}
	max64 := new(big.Int).SetUint64(^uint64(0))
	for _, values := range [][]*big.Int{
		ints(0, 0, 0),
		{big.NewInt(1), max64, big.NewInt(7)},
		{big.NewInt(0), max64, big.NewInt(0)},
	} {
		got := DecodeSlot(EncodeSlot(values, widths), widths)
		if !equalInts(got, values) {
			t.Errorf("round trip of %v gave %v", values, got)
		}
	}
}

func TestSplitPadded(t *testing.T) {
	// Record 0 occupies the low bits.
	v := big.NewInt(3<<16 | 2<<8 | 1)
	got := SplitPadded(v, 8, 3)
	if !equalInts(got, ints(1, 2, 3)) {
		t.Errorf("SplitPadded = %v, want [1 2 3]", got)
	}

	// Missing high records decode as zero.
	got = SplitPadded(big.NewInt(5), 8, 3)
	if !equalInts(got, ints(5, 0, 0)) {
		t.Errorf("SplitPadded = %v, want [5 0 0]", got)
	}
}
